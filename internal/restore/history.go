package restore

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ossc-db/pg_rman/internal/catalog"
	"github.com/ossc-db/pg_rman/internal/rmanerr"
	"github.com/ossc-db/pg_rman/internal/xlog"
)

// ResolveTimeline picks the target TLI and loads its ancestry. History
// files are read from the catalog's timeline_history directory, falling
// back to the restore-staging directory, matching the design notes'
// "fallback to restore-staging dir" rule for a catalog that hasn't
// archived that history file yet.
func ResolveTimeline(l catalog.Layout, t Target) (uint32, []xlog.HistoryEntry, error) {
	histFiles, err := listHistoryTimelines(l)
	if err != nil {
		return 0, nil, err
	}

	records, err := l.List(catalog.TimeRange{})
	if err != nil {
		return 0, nil, rmanerr.Wrap(err, rmanerr.KindSystem, "listing catalog")
	}
	var newestTLI uint32
	if len(records) > 0 {
		newestTLI = records[0].Timeline
	}

	tli, err := ParseTimeline(t, histFiles, newestTLI)
	if err != nil {
		return 0, nil, err
	}

	if tli <= 1 {
		return tli, []xlog.HistoryEntry{{TLI: tli, EndLSN: xlog.LSN(^uint64(0))}}, nil
	}

	name := xlog.HistoryFileName(tli)
	data, err := readHistoryFile(l, name)
	if err != nil {
		return 0, nil, err
	}
	entries, err := xlog.ParseHistory(strings.NewReader(string(data)), tli)
	if err != nil {
		return 0, nil, err
	}
	return tli, entries, nil
}

func readHistoryFile(l catalog.Layout, name string) ([]byte, error) {
	primary := filepath.Join(l.TimelineHistDir(), name)
	data, err := os.ReadFile(primary)
	if err == nil {
		return data, nil
	}
	fallback := filepath.Join(l.RestoreStagingDir(), name)
	data, ferr := os.ReadFile(fallback)
	if ferr == nil {
		return data, nil
	}
	return nil, rmanerr.Wrap(err, rmanerr.KindCorrupted, "reading timeline history %s", name)
}

func listHistoryTimelines(l catalog.Layout) ([]uint32, error) {
	entries, err := os.ReadDir(l.TimelineHistDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, rmanerr.Wrap(err, rmanerr.KindSystem, "reading %s", l.TimelineHistDir())
	}
	var out []uint32
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".history") {
			continue
		}
		v, err := strconv.ParseUint(strings.TrimSuffix(name, ".history"), 16, 32)
		if err != nil {
			continue
		}
		out = append(out, uint32(v))
	}
	return out, nil
}
