package backup

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/ossc-db/pg_rman/internal/catalog"
	"github.com/ossc-db/pg_rman/internal/copier"
	"github.com/ossc-db/pg_rman/internal/manifest"
	"github.com/ossc-db/pg_rman/internal/rmanerr"
	"github.com/ossc-db/pg_rman/internal/rmanlog"
	"github.com/ossc-db/pg_rman/internal/xlog"
)

// pgdataExclude is the base exclusion list every enumeration of the cluster
// directory applies; snapshot mode appends pg_tblspc on top of it because
// tablespaces are copied by copyTablespaces instead, which picks each
// tablespace's source (mountpoint or live location) individually per the
// split/mount reconciliation.
var pgdataExclude = []string{
	"pg_wal", "postmaster.pid", "postmaster.opts", "pg_rman_recovery.conf",
}

// copyCluster walks pgdata (or, in snapshot mode, the PG-DATA mountpoint
// when the snapshot reports one) and copies every entry into the backup's
// database/ directory, building and returning its manifest. prev is the
// manifest of the backup this session is incremental against, or nil for a
// FULL backup. mounts is the reconciled name->mountpoint map from
// Snapshot.Mount; it is nil outside snapshot mode.
func copyCluster(ctx context.Context, s *Session, prev *manifest.Manifest, sinceLSN sinceLSNInfo, mounts map[string]string) (*manifest.Manifest, error) {
	root := s.PGData
	opts := manifest.WalkOptions{Exclude: pgdataExclude}
	if s.Snapshot != nil {
		if mp, ok := mounts["PG-DATA"]; ok {
			root = mp
		}
		opts.Exclude = append(append([]string{}, pgdataExclude...), "pg_tblspc")
	}
	entries, err := manifest.Walk(root, opts)
	if err != nil {
		return nil, err
	}

	destRoot := s.Catalog.DatabaseDir(s.Record.StartTime)
	out := manifest.New()
	comp, err := copier.Capability(s.Record.CompressData)
	if err != nil {
		return nil, err
	}

	for _, e := range entries {
		if err := copyOneEntry(s, e, destRoot, prev, sinceLSN, comp, out); err != nil {
			return nil, err
		}
	}

	if s.Snapshot != nil {
		if err := copyTablespaces(ctx, s, mounts, prev, sinceLSN, destRoot, comp, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// copyOneEntry applies the copy dispatch (directory/symlink/socket/data
// file/regular file, with the previous-backup mtime short-circuit) for a
// single walked entry, appending the result to out and updating the
// session's byte counters.
func copyOneEntry(s *Session, e manifest.Entry, destRoot string, prev *manifest.Manifest, sinceLSN sinceLSNInfo, comp copier.Compression, out *manifest.Manifest) error {
	if copier.Interrupted() {
		return rmanerr.New(rmanerr.KindInterrupted, "interrupted during file copy")
	}
	dst := filepath.Join(destRoot, e.RelPath)

	switch e.Type {
	case manifest.TypeDir:
		if err := os.MkdirAll(dst, os.FileMode(e.Mode)|0700); err != nil {
			return rmanerr.Wrap(err, rmanerr.KindSystem, "creating %s", dst)
		}
		out.Add(e)
		return nil
	case manifest.TypeSymlink:
		os.MkdirAll(filepath.Dir(dst), 0755)
		_ = os.Symlink(e.LinkTarget, dst)
		out.Add(e)
		return nil
	case manifest.TypeSocket:
		skipped := e
		skipped.WriteSize = manifest.BytesInvalid
		out.Add(skipped)
		return nil
	}

	os.MkdirAll(filepath.Dir(dst), 0755)

	if prev != nil {
		if prevEntry, ok := prev.Lookup(e.RelPath); ok {
			cur, err := settleMTime(s, e.MTime)
			if err != nil {
				return err
			}
			e.MTime = cur
			if prevEntry.MTime.Equal(cur) {
				skipped := e
				skipped.WriteSize = manifest.BytesInvalid
				out.Add(skipped)
				return nil
			}
		}
	}

	if manifest.IsDataFile(e.RelPath) {
		dres, err := copier.BackupDataFile(e.Path, dst, copier.BackupDataFileOptions{
			SinceLSN:        sinceLSN.lsn,
			HasSinceLSN:     sinceLSN.valid,
			PrevMissing:     prev != nil && !entryExists(prev, e.RelPath),
			Compress:        s.Record.CompressData,
			Comp:            comp,
			IncrementalMode: s.Record.Mode != catalog.ModeFull,
			ChecksumEnabled: s.Control.DataChecksumVersion != 0,
			SegNo:           copier.SegNo(e.Path),
		})
		if err != nil {
			return err
		}
		if dres.Skipped {
			return nil
		}
		if dres.Fallback {
			cres, err := copier.CopyFile(e.Path, dst, plainOrCompressed(s.Record.CompressData), comp, 0)
			if err != nil {
				return err
			}
			if cres.Skipped {
				return nil
			}
			e.Type = manifest.TypeRegular
			e.WriteSize = cres.WriteSize
			e.CRC = cres.CRC
		} else {
			e.Type = manifest.TypeDataFile
			e.WriteSize = dres.WriteSize
			e.CRC = dres.CRC
		}
	} else {
		cres, err := copier.CopyFile(e.Path, dst, plainOrCompressed(s.Record.CompressData), comp, 0)
		if err != nil {
			return err
		}
		if cres.Skipped {
			return nil
		}
		e.WriteSize = cres.WriteSize
		e.CRC = cres.CRC
	}
	s.Record.Bytes.TotalData += e.Size
	s.Record.Bytes.ReadData += e.Size
	s.Record.Bytes.WriteBytes += e.WriteSize
	out.Add(e)
	return nil
}

// copyTablespaces implements the tablespace half of the §4.4.1
// reconciliation: every pg_tblspc/<oid> symlink on the live cluster is
// resolved to its location, matched against the database's pg_tablespace
// view to recover its name, and copied from mounts[name] when the snapshot
// reports that tablespace, or from its live location otherwise. The
// pg_tblspc/<oid> symlink entry itself is recorded pointing at the live
// location regardless of which source fed the copy, since that is where
// restore must recreate it.
func copyTablespaces(ctx context.Context, s *Session, mounts map[string]string, prev *manifest.Manifest, sinceLSN sinceLSNInfo, destRoot string, comp copier.Compression, out *manifest.Manifest) error {
	known, err := s.Conn.TablespaceList(ctx)
	if err != nil {
		return rmanerr.Wrap(err, rmanerr.KindPGCommand, "listing tablespaces")
	}

	tblspcDir := filepath.Join(s.PGData, "pg_tblspc")
	dirents, err := os.ReadDir(tblspcDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return rmanerr.Wrap(err, rmanerr.KindSystem, "reading %s", tblspcDir)
	}

	for _, de := range dirents {
		linkPath := filepath.Join(tblspcDir, de.Name())
		info, err := os.Lstat(linkPath)
		if err != nil {
			return rmanerr.Wrap(err, rmanerr.KindSystem, "stat %s", linkPath)
		}
		if info.Mode()&os.ModeSymlink == 0 {
			continue
		}
		target, err := os.Readlink(linkPath)
		if err != nil {
			return rmanerr.Wrap(err, rmanerr.KindSystem, "reading symlink %s", linkPath)
		}
		name, ok := tablespaceNameForLocation(known, target)
		if !ok {
			rmanlog.Warnf("pg_tblspc/%s targets %s, which pg_tablespace does not report; skipping", de.Name(), target)
			continue
		}

		rel := filepath.ToSlash(filepath.Join("pg_tblspc", de.Name()))
		linkEntry := manifest.Entry{
			RelPath:    rel,
			Type:       manifest.TypeSymlink,
			LinkTarget: target,
			Mode:       uint32(info.Mode().Perm()),
			MTime:      info.ModTime(),
		}
		if err := copyOneEntry(s, linkEntry, destRoot, nil, sinceLSNInfo{}, comp, out); err != nil {
			return err
		}

		srcRoot := target
		if mp, ok := mounts[name]; ok {
			srcRoot = mp
		}
		tsEntries, err := manifest.Walk(srcRoot, manifest.WalkOptions{})
		if err != nil {
			return err
		}
		for _, e := range tsEntries {
			e.RelPath = filepath.ToSlash(filepath.Join(rel, e.RelPath))
			if err := copyOneEntry(s, e, destRoot, prev, sinceLSN, comp, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// tablespaceNameForLocation finds the pg_tablespace name whose location
// matches target, the resolved pg_tblspc/<oid> symlink target.
func tablespaceNameForLocation(known map[string]string, target string) (string, bool) {
	target = filepath.Clean(target)
	for name, loc := range known {
		if filepath.Clean(loc) == target {
			return name, true
		}
	}
	return "", false
}

func plainOrCompressed(compress bool) copier.CopyMode {
	if compress {
		return copier.Compressed
	}
	return copier.Plain
}

func entryExists(m *manifest.Manifest, rel string) bool {
	e, ok := m.Lookup(rel)
	return ok && e.WriteSize != manifest.BytesInvalid
}

type sinceLSNInfo struct {
	lsn   xlog.LSN
	valid bool
}

// settleMTime implements the clock-rewind guard from the design notes: a
// file whose mtime is strictly after the current wall clock is fatal, and a
// file whose mtime equals the current wall-clock second is waited out so
// the eventual comparison against the previous backup's manifest remains
// meaningful (two copies a second apart must never compare mtime-equal).
func settleMTime(s *Session, mtime time.Time) (time.Time, error) {
	for {
		now := s.Now()
		if mtime.After(now) {
			return time.Time{}, rmanerr.New(rmanerr.KindSystem,
				"file mtime %s is after the current wall clock %s", mtime, now).
				WithHint("the system clock appears to have moved backward")
		}
		if !mtime.Truncate(time.Second).Equal(now.Truncate(time.Second)) {
			return mtime, nil
		}
		s.Sleep(100 * time.Millisecond)
	}
}
