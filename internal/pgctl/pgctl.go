// Package pgctl defines the named interfaces through which the backup
// engine and restore planner talk to the database server and its control
// file. Both are explicitly out of scope as implementations — direct
// protocol/connection management belongs to a driver package nobody in
// this module is required to import — but the engine needs a seam to
// drive start/stop-backup and read GUCs, so it is modeled as a narrow
// interface any real client can satisfy.
package pgctl

import (
	"context"
	"time"

	"github.com/ossc-db/pg_rman/internal/xlog"
)

// ControlFile is the subset of the cluster control file the engine reads
// at preflight: the configured WAL segment size and whether page
// checksums are enabled cluster-wide.
type ControlFile struct {
	SystemIdentifier   uint64
	WALSegSize         int64
	DataChecksumVersion int // 0 disables page checksums
	Timeline           uint32
}

// ControlFileReader parses pg_control. No reader is implemented
// against a live binary layout here: the control file format is a
// database-internal detail outside this module's scope, and callers in
// tests/tools provide a fake. Production wiring supplies a real reader
// satisfying this same signature.
type ControlFileReader func(pgdataDir string) (ControlFile, error)

// Conn is the narrow slice of the backup-control protocol the engine
// drives a session through. A real implementation wraps a pooled
// connection; the engine never manages pooling itself.
type Conn interface {
	// StartBackup issues the equivalent of pg_backup_start(label, fast)
	// and returns the timeline and start LSN the server reports.
	StartBackup(ctx context.Context, label string, fast bool) (timeline uint32, startLSN xlog.LSN, err error)
	// StopBackup issues pg_backup_stop(wait) and returns the stop LSN
	// plus the backup_label/tablespace_map payload the server hands back.
	StopBackup(ctx context.Context, wait bool) (stopLSN xlog.LSN, backupLabel, tablespaceMap []byte, err error)
	// CurrentXID runs txid_current().
	CurrentXID(ctx context.Context) (uint32, error)
	// Setting runs current_setting(name).
	Setting(ctx context.Context, name string) (string, error)
	// ReplayLSN polls the standby's last-replayed LSN for the restartpoint
	// wait; it is only called when backing up from a standby.
	ReplayLSN(ctx context.Context) (xlog.LSN, error)
	// Checkpoint issues CHECKPOINT.
	Checkpoint(ctx context.Context) error
	// TablespaceList returns non-default, non-global tablespaces as
	// (name, location) pairs, for snapshot-mode reconciliation.
	TablespaceList(ctx context.Context) (map[string]string, error)
	// Cancel forwards a cancellation request to any in-flight query.
	Cancel(ctx context.Context) error
	Close() error
}

// StandbyWait implements the exponential backoff the design calls for
// while waiting on a standby's replay position to reach target:
// 1,2,4,8,16,32,60,60… seconds between polls.
func StandbyWait(ctx context.Context, conn Conn, target xlog.LSN, sleep func(time.Duration)) error {
	delays := []time.Duration{1, 2, 4, 8, 16, 32, 60}
	for i := 0; ; i++ {
		lsn, err := conn.ReplayLSN(ctx)
		if err != nil {
			return err
		}
		if lsn >= target {
			return conn.Checkpoint(ctx)
		}
		d := delays[len(delays)-1]
		if i < len(delays) {
			d = delays[i]
		}
		sleep(d * time.Second)
	}
}
