package restore

import (
	"os"
	"path/filepath"

	"github.com/ossc-db/pg_rman/internal/catalog"
	"github.com/ossc-db/pg_rman/internal/copier"
	"github.com/ossc-db/pg_rman/internal/rmanerr"
)

// StageOnlineLogs copies the live cluster's current pg_wal and (if
// srvlogSrc is non-empty) server log directories into the catalog's
// restore-staging area, per step 1 of the staging order. It is a no-op
// when the staging subdirectory already has content, matching "skipped if
// staging is already present" — a second restore attempt against the same
// target doesn't restage logs a first attempt already captured.
func StageOnlineLogs(l catalog.Layout, pgWalSrc, srvlogSrc string) error {
	if err := stageDir(pgWalSrc, filepath.Join(l.RestoreStagingDir(), "pg_wal")); err != nil {
		return err
	}
	if srvlogSrc == "" {
		return nil
	}
	return stageDir(srvlogSrc, filepath.Join(l.RestoreStagingDir(), "srvlog"))
}

func stageDir(src, dst string) error {
	if src == "" {
		return nil
	}
	if entries, err := os.ReadDir(dst); err == nil && len(entries) > 0 {
		return nil
	}
	if err := os.MkdirAll(dst, 0755); err != nil {
		return rmanerr.Wrap(err, rmanerr.KindSystem, "creating staging dir %s", dst)
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return rmanerr.Wrap(err, rmanerr.KindSystem, "reading %s", src)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, err := copier.CopyFile(filepath.Join(src, e.Name()), filepath.Join(dst, e.Name()), copier.Plain, nil, 0644); err != nil {
			return err
		}
	}
	return nil
}

// RestoreStagedOnlineWAL copies the staged pg_wal content back into
// <pgdata>/pg_wal, step 6 of the staging order.
func RestoreStagedOnlineWAL(l catalog.Layout, pgdata string) error {
	src := filepath.Join(l.RestoreStagingDir(), "pg_wal")
	dst := filepath.Join(pgdata, "pg_wal")
	entries, err := os.ReadDir(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return rmanerr.Wrap(err, rmanerr.KindSystem, "reading staged pg_wal %s", src)
	}
	if err := os.MkdirAll(dst, 0755); err != nil {
		return rmanerr.Wrap(err, rmanerr.KindSystem, "creating %s", dst)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, err := copier.CopyFile(filepath.Join(src, e.Name()), filepath.Join(dst, e.Name()), copier.Plain, nil, 0600); err != nil {
			return err
		}
	}
	return nil
}
