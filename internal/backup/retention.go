package backup

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ossc-db/pg_rman/internal/catalog"
	"github.com/ossc-db/pg_rman/internal/manifest"
	"github.com/ossc-db/pg_rman/internal/pgconf"
	"github.com/ossc-db/pg_rman/internal/rmanerr"
	"github.com/ossc-db/pg_rman/internal/rmanlog"
	"github.com/ossc-db/pg_rman/internal/xlog"
)

// RunRetention performs the two passes the design notes describe: a
// generation/day pass over data backups, and a time/count pass over the
// archive-log and server-log streams of the backups that remain. It never
// deletes the backup still required to reach a reachable recovery target
// because SelectForDeletion only ever removes an OK FULL's entire
// generation once a newer one has taken its place.
func RunRetention(l catalog.Layout, cfg pgconf.Cfg, now time.Time) error {
	records, err := l.List(catalog.TimeRange{})
	if err != nil {
		return rmanerr.Wrap(err, rmanerr.KindSystem, "listing catalog for retention")
	}

	toDelete := SelectForDeletion(records, cfg.KeepGenerations, cfg.KeepDaysData, now)
	deleted := make(map[string]bool, len(toDelete))
	for _, r := range toDelete {
		if err := Delete(l, r); err != nil {
			rmanlog.Warnf("deleting backup %s: %v", r.Key(), err)
			continue
		}
		deleted[r.Key()] = true
	}

	var surviving []*catalog.Record
	for _, r := range records {
		if !deleted[r.Key()] {
			surviving = append(surviving, r)
		}
	}

	if err := RunFileRetention(l, surviving, cfg, now, xlog.DefaultSegSize, copierBLCKSZ); err != nil {
		rmanlog.Warnf("file retention pass failed: %v", err)
	}
	return nil
}

// copierBLCKSZ mirrors copier.BLCKSZ without importing the copier package
// for a single constant; the arclog eligibility check only needs the page
// size, not the page-parsing machinery.
const copierBLCKSZ = 8192

// streamFile pairs a manifest entry's mtime-sortable identity with its
// absolute on-disk path, across every surviving backup's stream directory.
type streamFile struct {
	path  string
	mtime time.Time
	size  int64
}

// RunFileRetention applies the time/count pass of §4.4.2 independently to
// the archive-log and server-log streams of every surviving backup: sort
// by mtime descending, always keep the first keepFiles, and additionally
// keep anything newer than local-midnight-minus-keepDays. Archive-log
// files must also look like a complete WAL segment to be eligible for
// deletion at all — anything else (a partial segment, a non-WAL file) is
// left alone regardless of age.
func RunFileRetention(l catalog.Layout, records []*catalog.Record, cfg pgconf.Cfg, now time.Time, segSize int64, blcksz int) error {
	if err := runStreamRetention(l, records, "arclog", cfg.KeepFilesArclog, cfg.KeepDaysArclog, now, func(f streamFile) bool {
		return isCompleteWALFile(f, segSize, blcksz)
	}); err != nil {
		return err
	}
	return runStreamRetention(l, records, "srvlog", cfg.KeepFilesSrvlog, cfg.KeepDaysSrvlog, now, func(streamFile) bool {
		return true
	})
}

func runStreamRetention(l catalog.Layout, records []*catalog.Record, stream string, keepFiles, keepDays int, now time.Time, eligible func(streamFile) bool) error {
	if keepFiles <= 0 && keepDays <= 0 {
		rmanlog.Debugf("%s retention: keep_files and keep_days both unlimited, nothing to do", stream)
		return nil
	}

	var files []streamFile
	for _, r := range records {
		if r.Status == catalog.StatusDeleting || r.Status == catalog.StatusDeleted {
			continue
		}
		mfPath := l.ManifestFile(r.StartTime, stream)
		mf, err := manifest.Read(mfPath, streamDir(l, r.StartTime, stream))
		if err != nil {
			continue
		}
		for _, e := range mf.Entries {
			if e.Type != manifest.TypeRegular && e.Type != manifest.TypeDataFile {
				continue
			}
			if e.WriteSize == manifest.BytesInvalid {
				continue
			}
			files = append(files, streamFile{path: e.Path, mtime: e.MTime, size: e.WriteSize})
		}
	}
	if len(files) == 0 {
		return nil
	}

	sort.Slice(files, func(i, j int) bool { return files[i].mtime.After(files[j].mtime) })

	threshold := midnight(now)
	if keepDays > 0 {
		threshold = threshold.AddDate(0, 0, -keepDays)
	}

	var removed int
	for i, f := range files {
		if keepFiles > 0 && i < keepFiles {
			continue
		}
		if keepDays > 0 && !f.mtime.Before(threshold) {
			continue
		}
		if !eligible(f) {
			continue
		}
		if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
			rmanlog.Warnf("%s retention: removing %s: %v", stream, f.path, err)
			continue
		}
		removed++
	}
	rmanlog.Debugf("%s retention: removed %d of %d files", stream, removed, len(files))
	return nil
}

func streamDir(l catalog.Layout, start time.Time, stream string) string {
	switch stream {
	case "arclog":
		return l.ArclogDir(start)
	case "srvlog":
		return l.SrvlogDir(start)
	default:
		return ""
	}
}

// isCompleteWALFile applies §9's "only complete WAL segments are eligible"
// rule: the filename must have the fixed 24-hex-digit shape and the file's
// first page must carry a valid XLog long header for segSize/blcksz.
func isCompleteWALFile(f streamFile, segSize int64, blcksz int) bool {
	base := filepath.Base(f.path)
	name := base
	if ext := filepath.Ext(name); ext != "" {
		name = name[:len(name)-len(ext)]
	}
	if !xlog.IsSegmentName(name) {
		return false
	}
	fh, err := os.Open(f.path)
	if err != nil {
		return false
	}
	defer fh.Close()
	buf := make([]byte, blcksz)
	n, _ := fh.Read(buf)
	if n < blcksz {
		return false
	}
	st, err := fh.Stat()
	if err != nil {
		return false
	}
	return xlog.IsCompleteWAL(buf, st.Size(), segSize, blcksz)
}

// SelectForDeletion walks records (already sorted newest-first by List)
// and returns the ones eligible for deletion: once keepGenerations FULL
// backups with status OK or DONE have been kept, every older record is a candidate, except any
// still within the keepDays age window measured from local midnight.
// keepGenerations <= 0 means unlimited retention — nothing is ever removed
// by this pass.
func SelectForDeletion(records []*catalog.Record, keepGenerations, keepDays int, now time.Time) []*catalog.Record {
	if keepGenerations <= 0 {
		return nil
	}
	threshold := midnight(now).AddDate(0, 0, -keepDays)

	fullsKept := 0
	pastBoundary := false
	var out []*catalog.Record
	for _, r := range records {
		eligibleStatus := r.Status == catalog.StatusOK || r.Status == catalog.StatusDone
		if !eligibleStatus {
			continue
		}
		if r.Mode == catalog.ModeFull {
			fullsKept++
			if fullsKept > keepGenerations {
				pastBoundary = true
			}
		}
		if !pastBoundary {
			continue
		}
		if !r.StartTime.Before(threshold) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Local().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}

// Delete marks rec DELETING, removes every file its manifests list (in
// reverse path order, so a directory empties before it is itself removed),
// then marks it DELETED. The backup's own directory tree is left behind
// for Purge.
func Delete(l catalog.Layout, rec *catalog.Record) error {
	rec.Status = catalog.StatusDeleting
	if err := catalog.WriteINI(l.BackupINI(rec.StartTime), rec); err != nil {
		return err
	}

	for _, stream := range []string{"database", "arclog", "srvlog"} {
		mfPath := l.ManifestFile(rec.StartTime, stream)
		mf, err := manifest.Read(mfPath, "")
		if err != nil {
			continue
		}
		var streamRoot string
		switch stream {
		case "database":
			streamRoot = l.DatabaseDir(rec.StartTime)
		case "arclog":
			streamRoot = l.ArclogDir(rec.StartTime)
		case "srvlog":
			streamRoot = l.SrvlogDir(rec.StartTime)
		}
		paths := make([]string, 0, len(mf.Entries))
		for _, e := range mf.Entries {
			if e.Type == manifest.TypeDataFile || e.Type == manifest.TypeRegular || e.Type == manifest.TypeSymlink {
				paths = append(paths, filepath.Join(streamRoot, e.RelPath))
			}
		}
		sort.Sort(sort.Reverse(sort.StringSlice(paths)))
		for _, p := range paths {
			os.Remove(p)
		}
	}

	rec.Status = catalog.StatusDeleted
	return catalog.WriteINI(l.BackupINI(rec.StartTime), rec)
}

// Purge removes the on-disk directory of every DELETED record, and any
// date-level directory that becomes empty as a result.
func Purge(l catalog.Layout) error {
	records, err := l.List(catalog.TimeRange{})
	if err != nil {
		return rmanerr.Wrap(err, rmanerr.KindSystem, "listing catalog for purge")
	}
	touched := make(map[string]bool)
	for _, r := range records {
		if r.Status != catalog.StatusDeleted {
			continue
		}
		dir := l.BackupDir(r.StartTime)
		if err := os.RemoveAll(dir); err != nil {
			rmanlog.Warnf("purging %s: %v", dir, err)
			continue
		}
		touched[filepath.Dir(dir)] = true
	}
	for dateDir := range touched {
		entries, err := os.ReadDir(dateDir)
		if err == nil && len(entries) == 0 {
			os.Remove(dateDir)
		}
	}
	return nil
}
