package backup

import (
	"context"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ossc-db/pg_rman/internal/catalog"
	"github.com/ossc-db/pg_rman/internal/copier"
	"github.com/ossc-db/pg_rman/internal/rmanerr"
)

// Preflight runs the checks the design notes list before any state
// transition: path sanity, catalog lock, system identifier binding, block
// size agreement, and (for a non-FULL mode) locating the full backup this
// session will be incremental against.
func Preflight(ctx context.Context, s *Session) error {
	if !filepath.IsAbs(s.PGData) {
		return rmanerr.New(rmanerr.KindArgs, "pgdata path %q must be absolute", s.PGData)
	}
	if !filepath.IsAbs(s.Catalog.Root) {
		return rmanerr.New(rmanerr.KindArgs, "catalog path %q must be absolute", s.Catalog.Root)
	}

	lock, err := catalog.AcquireLock(s.Catalog.LockFile())
	if err != nil {
		return err
	}
	s.lock = lock
	s.State = StateLocked

	if err := s.Catalog.CheckSystemIdentifier(s.Control.SystemIdentifier); err != nil {
		return s.fail(err)
	}

	if err := s.checkBlockSizes(ctx); err != nil {
		return s.fail(err)
	}

	if s.Record.Mode != catalog.ModeFull {
		records, err := s.Catalog.List(catalog.TimeRange{})
		if err != nil {
			return s.fail(rmanerr.Wrap(err, rmanerr.KindSystem, "listing catalog"))
		}
		base := catalog.LastFullOnTimeline(records, s.Control.Timeline)
		if base == nil {
			if !s.Record.FullBackupOnError {
				return s.fail(rmanerr.New(rmanerr.KindNoBackup,
					"no full backup found on timeline %d to base an incremental backup on", s.Control.Timeline).
					WithHint("run a FULL backup first, or set full_backup_on_error"))
			}
			s.Record.Mode = catalog.ModeFull
		}
	}

	if err := os.MkdirAll(s.Catalog.BackupDir(s.Record.StartTime), 0755); err != nil {
		return s.fail(rmanerr.Wrap(err, rmanerr.KindSystem, "creating backup directory"))
	}
	if err := catalog.WriteINI(s.Catalog.BackupINI(s.Record.StartTime), s.Record); err != nil {
		return s.fail(err)
	}
	return nil
}

// checkBlockSizes confirms the connected server's block_size and
// wal_block_size GUCs agree with what this build of the copier was
// compiled for, per the design notes' (e) preflight step.
func (s *Session) checkBlockSizes(ctx context.Context) error {
	bs, err := s.Conn.Setting(ctx, "block_size")
	if err != nil {
		return rmanerr.Wrap(err, rmanerr.KindPGCommand, "reading block_size")
	}
	n, err := strconv.Atoi(bs)
	if err != nil {
		return rmanerr.Wrap(err, rmanerr.KindPGCommand, "parsing block_size %q", bs)
	}
	if n != copier.BLCKSZ {
		return rmanerr.New(rmanerr.KindPGIncompatible,
			"server block_size %d does not match the %d this build was compiled for", n, copier.BLCKSZ)
	}
	s.Record.BlockSize = n

	wbs, err := s.Conn.Setting(ctx, "wal_block_size")
	if err != nil {
		return rmanerr.Wrap(err, rmanerr.KindPGCommand, "reading wal_block_size")
	}
	wn, err := strconv.Atoi(wbs)
	if err != nil {
		return rmanerr.Wrap(err, rmanerr.KindPGCommand, "parsing wal_block_size %q", wbs)
	}
	s.Record.WALBlockSize = wn
	return nil
}
