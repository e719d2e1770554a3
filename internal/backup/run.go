package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ossc-db/pg_rman/internal/catalog"
	"github.com/ossc-db/pg_rman/internal/copier"
	"github.com/ossc-db/pg_rman/internal/manifest"
	"github.com/ossc-db/pg_rman/internal/pgctl"
	"github.com/ossc-db/pg_rman/internal/rmanerr"
	"github.com/ossc-db/pg_rman/internal/rmanlog"
	"github.com/ossc-db/pg_rman/internal/xlog"
)

// Run drives a session through every state of the backup protocol,
// finishing with the retention passes. On any failure it transitions to
// ERROR, records the failure, replays the cleanup stack, and releases the
// catalog lock before returning the error.
func Run(ctx context.Context, s *Session) error {
	if err := Preflight(ctx, s); err != nil {
		return err
	}

	label := fmt.Sprintf("pg_rman backup, start_time %s", s.Record.StartTime.UTC().Format(time.RFC3339))
	timeline, startLSN, err := s.Conn.StartBackup(ctx, label, !s.Cfg.Smooth)
	if err != nil {
		return s.fail(rmanerr.Wrap(err, rmanerr.KindPGCommand, "pg_backup_start failed"))
	}
	s.Record.Timeline = timeline
	s.Record.StartLSN = startLSN
	s.State = StateStarted
	s.pushCleanup(func() { s.Conn.Close() })

	if s.StandbyConn != nil {
		if s.Snapshot != nil {
			return s.fail(rmanerr.New(rmanerr.KindArgs, "snapshot mode is incompatible with backup-from-standby"))
		}
		if err := pgctl.StandbyWait(ctx, s.StandbyConn, startLSN, s.Sleep); err != nil {
			return s.fail(err)
		}
	}

	var mounts map[string]string
	if s.Snapshot != nil {
		names, err := s.Snapshot.Freeze(ctx)
		if err != nil {
			s.runSnapshotCleanupOnError(ctx)
			return s.fail(err)
		}
		if err := s.reconcileTablespaces(ctx, names); err != nil {
			s.runSnapshotCleanupOnError(ctx)
			return s.fail(err)
		}
		mounts, err = s.Snapshot.Mount(ctx)
		if err != nil {
			s.runSnapshotCleanupOnError(ctx)
			return s.fail(err)
		}
	}

	if err := writeMkdirsScript(s); err != nil {
		return s.fail(err)
	}

	s.State = StateCopying
	prev, sinceLSN := s.incrementalBasis()
	mf, err := copyCluster(ctx, s, prev, sinceLSN, mounts)
	if err != nil {
		return s.fail(err)
	}

	stopLSN, backupLabel, tsMap, err := s.Conn.StopBackup(ctx, true)
	if err != nil {
		return s.fail(rmanerr.Wrap(err, rmanerr.KindPGCommand, "pg_backup_stop failed"))
	}
	s.Record.StopLSN = stopLSN
	s.State = StateStopped

	if err := writeStopArtifacts(s, mf, backupLabel, tsMap); err != nil {
		return s.fail(err)
	}

	xid, err := s.Conn.CurrentXID(ctx)
	if err != nil {
		return s.fail(rmanerr.Wrap(err, rmanerr.KindPGCommand, "txid_current failed"))
	}
	s.Record.RecoveryXID = xid
	s.Record.RecoveryTime = s.Now()

	lastWAL := xlog.SegmentName(timeline, stopLSN, s.Control.WALSegSize)
	if err := waitArchived(ctx, s, lastWAL); err != nil {
		return s.fail(err)
	}
	s.State = StateWALArchived

	arclogMF, err := backupArclog(s, lastWAL)
	if err != nil {
		return s.fail(err)
	}
	if err := manifest.Write(s.Catalog.ManifestFile(s.Record.StartTime, "database"), mf); err != nil {
		return s.fail(err)
	}
	if arclogMF != nil {
		if err := manifest.Write(s.Catalog.ManifestFile(s.Record.StartTime, "arclog"), arclogMF); err != nil {
			return s.fail(err)
		}
	}

	var srvlogMF *manifest.Manifest
	if s.Record.WithServerlog && s.SrvlogSourceDir != "" {
		srvlogMF, err = backupSrvlog(s)
		if err != nil {
			return s.fail(err)
		}
		if err := manifest.Write(s.Catalog.ManifestFile(s.Record.StartTime, "srvlog"), srvlogMF); err != nil {
			return s.fail(err)
		}
	}

	s.State = StateDone
	s.Record.Status = catalog.StatusDone
	s.Record.EndTime = s.Now()
	if err := catalog.WriteINI(s.Catalog.BackupINI(s.Record.StartTime), s.Record); err != nil {
		return s.fail(err)
	}

	s.cleanup = nil // backup completed; nothing left to unwind
	s.lock.Release()

	if err := RunRetention(s.Catalog, s.Cfg, s.Now()); err != nil {
		rmanlog.Warnf("retention pass failed: %v", err)
	}
	return nil
}

func (s *Session) runSnapshotCleanupOnError(ctx context.Context) {
	for _, err := range s.Snapshot.Cleanup(ctx) {
		rmanlog.Warnf("snapshot cleanup: %v", err)
	}
}

// reconcileTablespaces checks the snapshot's reported tablespace names
// against the database's own view, per §4.4.1: unknown names are fatal.
func (s *Session) reconcileTablespaces(ctx context.Context, snapshotNames []string) error {
	known, err := s.Conn.TablespaceList(ctx)
	if err != nil {
		return rmanerr.Wrap(err, rmanerr.KindPGCommand, "listing tablespaces")
	}
	for _, name := range snapshotNames {
		if name == "PG-DATA" {
			continue
		}
		if _, ok := known[name]; !ok {
			return rmanerr.New(rmanerr.KindSystem, "snapshot_script reports unknown tablespace %q", name)
		}
	}
	return nil
}

// incrementalBasis locates the manifest and start LSN this session's
// data-file copy is relative to: the previous OK backup on the current
// timeline that carries a database stream. A FULL backup has no basis.
func (s *Session) incrementalBasis() (*manifest.Manifest, sinceLSNInfo) {
	if s.Record.Mode == catalog.ModeFull {
		return nil, sinceLSNInfo{}
	}
	records, err := s.Catalog.List(catalog.TimeRange{})
	if err != nil {
		return nil, sinceLSNInfo{}
	}
	base := catalog.LastOfKind(records, func(r *catalog.Record) bool {
		return r.HasDatabase() && r.Timeline == s.Record.Timeline
	})
	if base == nil {
		return nil, sinceLSNInfo{}
	}
	mf, err := manifest.Read(s.Catalog.ManifestFile(base.StartTime, "database"), "")
	if err != nil {
		return nil, sinceLSNInfo{}
	}
	return mf, sinceLSNInfo{lsn: base.StartLSN, valid: true}
}

// writeMkdirsScript emits the shell script restore replays (with CWD =
// pgdata) to recreate every directory this backup saw, in walk order.
func writeMkdirsScript(s *Session) error {
	entries, err := manifest.Walk(s.PGData, manifest.WalkOptions{Exclude: pgdataExclude})
	if err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString("#!/bin/sh\nset -e\n")
	for _, e := range entries {
		if e.Type == manifest.TypeDir {
			fmt.Fprintf(&b, "mkdir -p %s\n", shQuote(e.RelPath))
		}
	}
	path := s.Catalog.MkdirsScript(s.Record.StartTime)
	os.MkdirAll(filepath.Dir(path), 0755)
	return os.WriteFile(path, []byte(b.String()), 0755)
}

func shQuote(p string) string {
	return "'" + strings.ReplaceAll(p, "'", `'\''`) + "'"
}

// writeStopArtifacts saves backup_label and (if present) tablespace_map
// into the backup's database/ directory and appends manifest entries for
// both.
func writeStopArtifacts(s *Session, mf *manifest.Manifest, backupLabel, tsMap []byte) error {
	dbDir := s.Catalog.DatabaseDir(s.Record.StartTime)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return rmanerr.Wrap(err, rmanerr.KindSystem, "creating %s", dbDir)
	}
	if err := writeArtifact(s.Catalog.BackupLabel(s.Record.StartTime), backupLabel, mf, "backup_label", s.Now()); err != nil {
		return err
	}
	if len(tsMap) > 0 {
		if err := writeArtifact(s.Catalog.TablespaceMap(s.Record.StartTime), tsMap, mf, "tablespace_map", s.Now()); err != nil {
			return err
		}
	}
	return nil
}

func writeArtifact(path string, data []byte, mf *manifest.Manifest, rel string, now time.Time) error {
	if err := os.WriteFile(path, data, 0600); err != nil {
		return rmanerr.Wrap(err, rmanerr.KindSystem, "writing %s", path)
	}
	crc := copier.NewCRC32C()
	crc.Write(data)
	mf.Add(manifest.Entry{
		RelPath:   rel,
		Type:      manifest.TypeRegular,
		WriteSize: int64(len(data)),
		CRC:       crc.Sum32(),
		Mode:      0600,
		MTime:     now,
	})
	return nil
}

// waitArchived polls <pgdata>/pg_wal/archive_status/<lastWAL>.done once a
// second up to the configured timeout, per the STOPPED->WAL_ARCHIVED
// transition.
func waitArchived(ctx context.Context, s *Session, lastWAL string) error {
	doneFile := filepath.Join(s.PGData, "pg_wal", "archive_status", lastWAL+".done")
	timeout := time.Duration(s.Cfg.ArchiveWaitTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	deadline := s.Now().Add(timeout)
	for {
		if copier.Interrupted() {
			return rmanerr.New(rmanerr.KindInterrupted, "interrupted while waiting for WAL archival")
		}
		if _, err := os.Stat(doneFile); err == nil {
			return nil
		}
		if s.Now().After(deadline) {
			return rmanerr.New(rmanerr.KindArchiveFailed, "timed out waiting for %s to be archived", lastWAL)
		}
		select {
		case <-ctx.Done():
			return rmanerr.Wrap(ctx.Err(), rmanerr.KindInterrupted, "interrupted while waiting for WAL archival")
		default:
		}
		s.Sleep(1 * time.Second)
	}
}

// backupArclog copies archived WAL segments with name <= lastWAL
// (lexicographic on the tli/log/seg hex prefix) from ArclogSourceDir into
// this backup's arclog/ directory, and saves any *.history files straight
// into the catalog's shared timeline_history/ directory.
func backupArclog(s *Session, lastWAL string) (*manifest.Manifest, error) {
	if s.ArclogSourceDir == "" {
		return nil, nil
	}
	entries, err := manifest.Walk(s.ArclogSourceDir, manifest.WalkOptions{})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].RelPath < entries[j].RelPath })

	comp, _ := copier.Capability(s.Record.CompressData)
	out := manifest.New()
	for _, e := range entries {
		if e.Type != manifest.TypeRegular {
			continue
		}
		if strings.HasSuffix(e.RelPath, ".history") {
			dst := filepath.Join(s.Catalog.TimelineHistDir(), e.RelPath)
			os.MkdirAll(filepath.Dir(dst), 0755)
			if _, err := copier.CopyFile(e.Path, dst, copier.Plain, copier.None{}, 0644); err != nil {
				return nil, err
			}
			continue
		}
		base := strings.TrimSuffix(filepath.Base(e.RelPath), filepath.Ext(e.RelPath))
		if !xlog.IsSegmentName(base) {
			continue
		}
		if base > lastWAL {
			continue
		}
		dst := filepath.Join(s.Catalog.ArclogDir(s.Record.StartTime), e.RelPath)
		os.MkdirAll(filepath.Dir(dst), 0755)
		res, err := copier.CopyFile(e.Path, dst, plainOrCompressed(s.Record.CompressData), comp, 0644)
		if err != nil {
			return nil, err
		}
		if res.Skipped {
			continue
		}
		e.WriteSize = res.WriteSize
		e.CRC = res.CRC
		s.Record.Bytes.ReadArclog += e.Size
		s.Record.Bytes.WriteBytes += e.WriteSize
		out.Add(e)
	}
	return out, nil
}

func backupSrvlog(s *Session) (*manifest.Manifest, error) {
	entries, err := manifest.Walk(s.SrvlogSourceDir, manifest.WalkOptions{})
	if err != nil {
		return nil, err
	}
	comp, _ := copier.Capability(s.Record.CompressData)
	out := manifest.New()
	for _, e := range entries {
		if e.Type != manifest.TypeRegular {
			continue
		}
		dst := filepath.Join(s.Catalog.SrvlogDir(s.Record.StartTime), e.RelPath)
		os.MkdirAll(filepath.Dir(dst), 0755)
		res, err := copier.CopyFile(e.Path, dst, plainOrCompressed(s.Record.CompressData), comp, 0644)
		if err != nil {
			return nil, err
		}
		if res.Skipped {
			continue
		}
		e.WriteSize = res.WriteSize
		e.CRC = res.CRC
		s.Record.Bytes.ReadSrvlog += e.Size
		s.Record.Bytes.WriteBytes += e.WriteSize
		out.Add(e)
	}
	return out, nil
}
