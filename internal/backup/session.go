// Package backup implements the backup session state machine: preflight
// checks, the start/copy/stop/archive-wait protocol driven against a
// pgctl.Conn, manifest and record writing, and the post-backup retention
// passes.
package backup

import (
	"os"
	"time"

	"github.com/ossc-db/pg_rman/internal/catalog"
	"github.com/ossc-db/pg_rman/internal/pgconf"
	"github.com/ossc-db/pg_rman/internal/pgctl"
)

// State is one node of the session state machine in the design notes:
// INIT -> LOCKED -> STARTED -> COPYING -> STOPPED -> WAL_ARCHIVED -> DONE,
// with an ERROR branch reachable from any state.
type State int

const (
	StateInit State = iota
	StateLocked
	StateStarted
	StateCopying
	StateStopped
	StateWALArchived
	StateDone
	StateError
)

func (s State) String() string {
	switch s {
	case StateLocked:
		return "LOCKED"
	case StateStarted:
		return "STARTED"
	case StateCopying:
		return "COPYING"
	case StateStopped:
		return "STOPPED"
	case StateWALArchived:
		return "WAL_ARCHIVED"
	case StateDone:
		return "DONE"
	case StateError:
		return "ERROR"
	default:
		return "INIT"
	}
}

// Params is everything a session needs from its caller: the collaborators
// named as external interfaces (database connection, control file) plus
// the catalog root and resolved configuration.
type Params struct {
	PGData  string
	Cfg     pgconf.Cfg
	Catalog catalog.Layout
	Control pgctl.ControlFile

	// Conn drives the backup-control protocol against the primary (or the
	// only connection, when not backing up from a standby).
	Conn pgctl.Conn
	// StandbyConn is non-nil only when backing up from a standby; it polls
	// replay position during the STARTED->COPYING restartpoint wait.
	StandbyConn pgctl.Conn

	// ArclogSourceDir is where the database deposits already-archived WAL;
	// empty disables the archive-log backup stream.
	ArclogSourceDir string
	// SrvlogSourceDir is where server logs accumulate; empty disables the
	// server-log stream regardless of WithServerlog.
	SrvlogSourceDir string

	Snapshot *SnapshotRunner // nil disables snapshot mode

	Now   func() time.Time
	Sleep func(time.Duration)
}

// Session is the mutable state the engine carries through one backup run.
type Session struct {
	Params

	State  State
	Record *catalog.Record
	lock   *catalog.Lock

	// cleanup is the LIFO stack of inverse operations the error handler
	// replays: snapshot cleanup, connection teardown.
	cleanup []func()
}

// New builds a session bound to a fresh backup record in RUNNING state. The
// record's mode and flags come from cfg; start time is fixed at call time
// so every path derived from it (catalog directory, manifest keys) agrees.
func New(p Params) (*Session, error) {
	if p.Now == nil {
		p.Now = time.Now
	}
	if p.Sleep == nil {
		p.Sleep = time.Sleep
	}
	mode, err := catalog.ParseMode(p.Cfg.BackupMode)
	if err != nil {
		return nil, err
	}
	rec := &catalog.Record{
		Mode:              mode,
		Status:            catalog.StatusRunning,
		StartTime:         p.Now(),
		WithServerlog:     p.Cfg.WithServerlog,
		CompressData:      p.Cfg.CompressData,
		FullBackupOnError: p.Cfg.FullBackupOnError,
	}
	return &Session{Params: p, State: StateInit, Record: rec}, nil
}

func (s *Session) pushCleanup(f func()) { s.cleanup = append(s.cleanup, f) }

// runCleanup replays the cleanup stack LIFO, the same ordering the snapshot
// protocol's cleanup stack uses.
func (s *Session) runCleanup() {
	for i := len(s.cleanup) - 1; i >= 0; i-- {
		s.cleanup[i]()
	}
	s.cleanup = nil
}

func (s *Session) fail(err error) error {
	s.State = StateError
	if s.Record.Status != catalog.StatusDone {
		s.Record.Status = catalog.StatusError
		s.Record.EndTime = s.Now()
		if s.lock != nil {
			if err := os.MkdirAll(s.Catalog.BackupDir(s.Record.StartTime), 0755); err == nil {
				catalog.WriteINI(s.Catalog.BackupINI(s.Record.StartTime), s.Record)
			}
		}
	}
	s.runCleanup()
	if s.lock != nil {
		s.lock.Release()
	}
	return err
}
