// Package catalog implements the on-disk, filesystem-addressed backup
// catalog: directory-per-backup layout keyed by start time, INI-serialized
// backup records, a single-writer lock, and the listing/lookup operations
// the backup engine and restore planner drive through.
package catalog

import (
	"fmt"
	"time"

	"github.com/ossc-db/pg_rman/internal/xlog"
)

// Mode is the backup kind. The ordering matters: ARCHIVE < INCREMENTAL <
// FULL, so that "mode >= INCREMENTAL" selects both incremental and full
// backups (HasDatabase) and "mode >= ARCHIVE" selects every kind
// (HasArclog) — the same comparison the original HAVE_DATABASE/HAVE_ARCLOG
// macros use.
type Mode int

const (
	ModeInvalid Mode = iota
	ModeArchive
	ModeIncremental
	ModeFull
)

func (m Mode) String() string {
	switch m {
	case ModeFull:
		return "FULL"
	case ModeIncremental:
		return "INCREMENTAL"
	case ModeArchive:
		return "ARCHIVE"
	default:
		return "UNKNOWN"
	}
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "FULL":
		return ModeFull, nil
	case "INCREMENTAL":
		return ModeIncremental, nil
	case "ARCHIVE":
		return ModeArchive, nil
	default:
		return 0, fmt.Errorf("unknown backup mode %q", s)
	}
}

// Status is the backup record lifecycle state.
type Status int

const (
	StatusInvalid Status = iota
	StatusOK
	StatusRunning
	StatusError
	StatusDeleting
	StatusDeleted
	StatusDone
	StatusCorrupt
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusRunning:
		return "RUNNING"
	case StatusError:
		return "ERROR"
	case StatusDeleting:
		return "DELETING"
	case StatusDeleted:
		return "DELETED"
	case StatusDone:
		return "DONE"
	case StatusCorrupt:
		return "CORRUPT"
	default:
		return "INVALID"
	}
}

func ParseStatus(s string) Status {
	switch s {
	case "OK":
		return StatusOK
	case "RUNNING":
		return StatusRunning
	case "ERROR":
		return StatusError
	case "DELETING":
		return StatusDeleting
	case "DELETED":
		return StatusDeleted
	case "DONE":
		return StatusDone
	case "CORRUPT":
		return StatusCorrupt
	default:
		return StatusInvalid
	}
}

// ByteCounters groups the total/read/write counters kept per stream.
type ByteCounters struct {
	TotalData   int64
	ReadData    int64
	ReadArclog  int64
	ReadSrvlog  int64
	WriteBytes  int64
}

// Record is one backup's catalog entry: the fields listed in the data
// model plus the byte counters tracked per stream.
type Record struct {
	Mode     Mode
	Status   Status
	Timeline uint32

	StartLSN xlog.LSN
	StopLSN  xlog.LSN

	StartTime    time.Time
	EndTime      time.Time
	RecoveryTime time.Time
	RecoveryXID  uint32

	Bytes ByteCounters

	BlockSize     int
	WALBlockSize  int

	WithServerlog    bool
	CompressData     bool
	FullBackupOnError bool
}

// Key is the record's filesystem key: a seconds-resolution timestamp that
// is also its only identity (there is no separate numeric id).
func (r *Record) Key() string {
	return r.StartTime.UTC().Format("20060102/150405")
}

// HasDatabase and HasArclog implement the "last of kind" predicates: a
// incremental-or-better backup carries a data-file stream, an archive-or-better
// backup also carries WAL.
func (r *Record) HasDatabase() bool { return r.Mode >= ModeIncremental }
func (r *Record) HasArclog() bool   { return r.Mode >= ModeArchive }
