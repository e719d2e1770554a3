package catalog

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ossc-db/pg_rman/internal/rmanlog"
)

// TimeRange bounds a List call; a zero Time on either side means
// unbounded in that direction.
type TimeRange struct {
	From, To time.Time
}

func (r TimeRange) contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !t.Before(r.To) {
		return false
	}
	return true
}

// List walks <root>/YYYYMMDD/HHMMSS two levels deep, skipping the
// reserved backup/ and timeline_history/ subdirectories and any dotfile,
// reads each backup.ini, silently drops entries whose file can't be
// read or has no result section, and returns the survivors sorted
// strictly descending by start time.
func (l Layout) List(r TimeRange) ([]*Record, error) {
	dateDirs, err := os.ReadDir(l.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []*Record
	for _, dd := range dateDirs {
		name := dd.Name()
		if !dd.IsDir() || reservedSubdirs[name] || strings.HasPrefix(name, ".") {
			continue
		}
		datePath := filepath.Join(l.Root, name)
		timeDirs, err := os.ReadDir(datePath)
		if err != nil {
			continue
		}
		for _, td := range timeDirs {
			if !td.IsDir() || strings.HasPrefix(td.Name(), ".") {
				continue
			}
			iniPath := filepath.Join(datePath, td.Name(), "backup.ini")
			rec, err := ReadINI(iniPath)
			if err != nil {
				rmanlog.Warnf("skipping corrupt backup record %s: %v", iniPath, err)
				continue
			}
			if rec == nil {
				continue
			}
			if rec.StartTime.IsZero() {
				if t, ok := parseDirTime(name, td.Name()); ok {
					rec.StartTime = t
				} else {
					continue
				}
			}
			if !r.contains(rec.StartTime) {
				continue
			}
			out = append(out, rec)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out, nil
}

func parseDirTime(date, clock string) (time.Time, bool) {
	t, err := time.ParseInLocation("20060102 150405", date+" "+clock, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// LastOfKind returns the first record (the list must already be sorted
// descending) with Status OK whose mode satisfies kind.
func LastOfKind(sorted []*Record, kind func(*Record) bool) *Record {
	for _, r := range sorted {
		if r.Status == StatusOK && kind(r) {
			return r
		}
	}
	return nil
}

// LastFullOnTimeline returns the newest OK FULL backup on the given
// timeline, used by preflight to find the base for a non-FULL backup.
func LastFullOnTimeline(sorted []*Record, tli uint32) *Record {
	return LastOfKind(sorted, func(r *Record) bool {
		return r.Mode == ModeFull && r.Timeline == tli
	})
}
