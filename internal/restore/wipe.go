package restore

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/ossc-db/pg_rman/internal/rmanerr"
)

// WipeDestination deletes every file and subdirectory under pgdata,
// leaf-first over a lexicographically sorted listing, preserving pgdata
// itself — step 2 of the staging order. It must only be called after a
// plan has been selected: wiping before base selection would destroy the
// cluster on a failed recovery-target lookup.
func WipeDestination(pgdata string) error {
	var paths []string
	err := filepath.WalkDir(pgdata, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == pgdata {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return rmanerr.Wrap(err, rmanerr.KindSystem, "walking %s", pgdata)
	}

	sort.Sort(sort.Reverse(sort.StringSlice(paths)))
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return rmanerr.Wrap(err, rmanerr.KindSystem, "removing %s", p)
		}
	}
	return nil
}
