package restore

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ossc-db/pg_rman/internal/catalog"
	"github.com/ossc-db/pg_rman/internal/copier"
	"github.com/ossc-db/pg_rman/internal/manifest"
	"github.com/ossc-db/pg_rman/internal/rmanerr"
)

// RunMkdirs executes the base backup's mkdirs.sh with CWD = pgdata, step 3
// of the staging order — it recreates the directory skeleton the backup
// walked before any file is restored into it. Tablespace symlinks and
// their target directories are not part of that skeleton.
func RunMkdirs(l catalog.Layout, base *catalog.Record, pgdata string) error {
	script := l.MkdirsScript(base.StartTime)
	if _, err := os.Stat(script); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return rmanerr.Wrap(err, rmanerr.KindSystem, "stat %s", script)
	}
	cmd := exec.Command("/bin/sh", script)
	cmd.Dir = pgdata
	out, err := cmd.CombinedOutput()
	if err != nil {
		return rmanerr.Wrap(err, rmanerr.KindSystem, "mkdirs.sh failed: %s", strings.TrimSpace(string(out)))
	}
	return nil
}

// RestoreChain replays the base backup's database manifest onto pgdata,
// then each incremental's manifest in ascending order, step 4 of the
// staging order. A data file (manifest type 'F') is replayed page by page
// with RestoreDataFile so later incrementals overlay earlier content and
// an endpoint record truncates relations the base over-provisioned; every
// other entry type is copied or recreated outright, the later backup
// always winning.
func RestoreChain(l catalog.Layout, plan *Plan, pgdata string) error {
	all := plan.All()
	for _, rec := range all {
		dbDir := l.DatabaseDir(rec.StartTime)
		mf, err := manifest.Read(l.ManifestFile(rec.StartTime, "database"), "")
		if err != nil {
			return err
		}
		for _, e := range mf.Entries {
			if e.WriteSize == manifest.BytesInvalid {
				continue
			}
			dst := filepath.Join(pgdata, e.RelPath)
			src := filepath.Join(dbDir, e.RelPath)
			if err := restoreEntry(e, src, dst, rec.CompressData); err != nil {
				return err
			}
		}
	}
	return nil
}

func restoreEntry(e manifest.Entry, src, dst string, compressed bool) error {
	switch e.Type {
	case manifest.TypeDir:
		return rmanerr.Wrap(os.MkdirAll(dst, os.FileMode(e.Mode)), rmanerr.KindSystem, "creating %s", dst)
	case manifest.TypeSymlink:
		os.Remove(dst)
		return rmanerr.Wrap(os.Symlink(e.LinkTarget, dst), rmanerr.KindSystem, "symlinking %s", dst)
	case manifest.TypeSocket:
		return nil
	case manifest.TypeDataFile:
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return rmanerr.Wrap(err, rmanerr.KindSystem, "creating %s", filepath.Dir(dst))
		}
		return copier.RestoreDataFile(src, dst, compressed, nil)
	default:
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return rmanerr.Wrap(err, rmanerr.KindSystem, "creating %s", filepath.Dir(dst))
		}
		mode := copier.Plain
		if compressed {
			mode = copier.Decompressed
		}
		_, err := copier.CopyFile(src, dst, mode, copier.Deflate{}, os.FileMode(e.Mode))
		return err
	}
}

// OverlayArclog implements step 5: for every plan backup that carries an
// archive-log stream, its entries are either symlinked into arclogDir (the
// default) or hard-copied when hardCopy is set, skipping .history files —
// those came from the catalog's history directory, not a chain backup.
func OverlayArclog(l catalog.Layout, plan *Plan, arclogDir string, hardCopy bool) error {
	if err := os.MkdirAll(arclogDir, 0755); err != nil {
		return rmanerr.Wrap(err, rmanerr.KindSystem, "creating %s", arclogDir)
	}
	for _, rec := range plan.All() {
		if !rec.HasArclog() {
			continue
		}
		path := l.ManifestFile(rec.StartTime, "arclog")
		mf, err := manifest.Read(path, "")
		if err != nil {
			if os.IsNotExist(errUnwrap(err)) {
				continue
			}
			return err
		}
		srcDir := l.ArclogDir(rec.StartTime)
		for _, e := range mf.Entries {
			if e.Type != manifest.TypeRegular && e.Type != manifest.TypeDataFile {
				continue
			}
			if strings.HasSuffix(e.RelPath, ".history") {
				continue
			}
			src := filepath.Join(srcDir, e.RelPath)
			dst := filepath.Join(arclogDir, e.RelPath)
			os.Remove(dst)
			if hardCopy {
				if _, err := copier.CopyFile(src, dst, copier.Plain, nil, os.FileMode(e.Mode)); err != nil {
					return err
				}
				continue
			}
			if err := os.Symlink(src, dst); err != nil {
				return rmanerr.Wrap(err, rmanerr.KindSystem, "symlinking %s", dst)
			}
		}
	}
	return nil
}

func errUnwrap(err error) error {
	type causer interface{ Unwrap() error }
	if c, ok := err.(causer); ok {
		return c.Unwrap()
	}
	return err
}
