package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ossc-db/pg_rman/internal/catalog"
	"github.com/ossc-db/pg_rman/internal/manifest"
	"github.com/ossc-db/pg_rman/internal/pgconf"
	"github.com/ossc-db/pg_rman/internal/pgctl"
	"github.com/ossc-db/pg_rman/internal/xlog"
)

type fakeConn struct {
	settings map[string]string
	xid      uint32
	tsList   map[string]string
}

func (f *fakeConn) StartBackup(ctx context.Context, label string, fast bool) (uint32, xlog.LSN, error) {
	return 1, xlog.MakeLSN(0, 0x1000000), nil
}
func (f *fakeConn) StopBackup(ctx context.Context, wait bool) (xlog.LSN, []byte, []byte, error) {
	return xlog.MakeLSN(0, 0x2000000), []byte("START WAL LOCATION: 0/1000000\n"), nil, nil
}
func (f *fakeConn) CurrentXID(ctx context.Context) (uint32, error) { return f.xid, nil }
func (f *fakeConn) Setting(ctx context.Context, name string) (string, error) {
	return f.settings[name], nil
}
func (f *fakeConn) ReplayLSN(ctx context.Context) (xlog.LSN, error) { return xlog.MakeLSN(0, 0x2000000), nil }
func (f *fakeConn) Checkpoint(ctx context.Context) error            { return nil }
func (f *fakeConn) TablespaceList(ctx context.Context) (map[string]string, error) {
	return f.tsList, nil
}
func (f *fakeConn) Cancel(ctx context.Context) error { return nil }
func (f *fakeConn) Close() error                     { return nil }

func newFakeConn() *fakeConn {
	return &fakeConn{
		settings: map[string]string{"block_size": "8192", "wal_block_size": "8192"},
		xid:      4242,
	}
}

func writeFile(t *testing.T, path string, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestFullBackupHappyPath(t *testing.T) {
	pgdata := t.TempDir()
	writeFile(t, filepath.Join(pgdata, "PG_VERSION"), "16\n")
	writeFile(t, filepath.Join(pgdata, "global", "pg_control"), "control-file-bytes")

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(root, 0755))

	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	params := Params{
		PGData:  pgdata,
		Cfg:     pgconf.Cfg{BackupMode: "FULL"},
		Catalog: catalog.Layout{Root: root},
		Control: pgctlControlFileFor(1),
		Conn:    newFakeConn(),
		Now:     func() time.Time { return now },
		Sleep:   func(time.Duration) {},
	}

	sess, err := New(params)
	require.NoError(t, err)

	err = Run(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, StateDone, sess.State)
	assert.Equal(t, catalog.StatusDone, sess.Record.Status)

	rec, err := catalog.ReadINI(root + "/" + sess.Record.Key() + "/backup.ini")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, catalog.StatusDone, rec.Status)
	assert.Equal(t, catalog.ModeFull, rec.Mode)

	dbDir := sess.Catalog.DatabaseDir(sess.Record.StartTime)
	_, err = os.Stat(filepath.Join(dbDir, "PG_VERSION"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dbDir, "backup_label"))
	assert.NoError(t, err)
}

func TestPreflightDowngradesToFullWhenNoBaseAndAllowed(t *testing.T) {
	pgdata := t.TempDir()
	writeFile(t, filepath.Join(pgdata, "PG_VERSION"), "16\n")
	root := t.TempDir()

	params := Params{
		PGData:  pgdata,
		Cfg:     pgconf.Cfg{BackupMode: "INCREMENTAL", FullBackupOnError: true},
		Catalog: catalog.Layout{Root: root},
		Control: pgctlControlFileFor(1),
		Conn:    newFakeConn(),
		Now:     time.Now,
		Sleep:   func(time.Duration) {},
	}
	sess, err := New(params)
	require.NoError(t, err)
	require.NoError(t, Preflight(context.Background(), sess))
	assert.Equal(t, catalog.ModeFull, sess.Record.Mode)
	sess.lock.Release()
}

func TestPreflightFailsWithoutBaseWhenNotAllowed(t *testing.T) {
	pgdata := t.TempDir()
	root := t.TempDir()

	params := Params{
		PGData:  pgdata,
		Cfg:     pgconf.Cfg{BackupMode: "INCREMENTAL"},
		Catalog: catalog.Layout{Root: root},
		Control: pgctlControlFileFor(1),
		Conn:    newFakeConn(),
		Now:     time.Now,
		Sleep:   func(time.Duration) {},
	}
	sess, err := New(params)
	require.NoError(t, err)
	err = Preflight(context.Background(), sess)
	assert.Error(t, err)
	assert.Equal(t, StateError, sess.State)
}

func TestSelectForDeletionKeepsGenerationsAndWindow(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.Local)
	mk := func(daysAgo int, mode catalog.Mode) *catalog.Record {
		return &catalog.Record{Mode: mode, Status: catalog.StatusOK, StartTime: now.AddDate(0, 0, -daysAgo)}
	}
	records := []*catalog.Record{
		mk(0, catalog.ModeFull),        // newest full, kept (generation 1)
		mk(1, catalog.ModeIncremental), // taken after the 5-days-old full, inside the window
		mk(5, catalog.ModeFull),        // generation 2, kept
		mk(10, catalog.ModeFull),       // generation 3, past keepGenerations=2, outside window -> deleted
		mk(11, catalog.ModeIncremental),
	}
	toDelete := SelectForDeletion(records, 2, 3, now)
	require.Len(t, toDelete, 2)
	assert.Equal(t, 10*24*time.Hour, now.Sub(toDelete[0].StartTime).Round(24*time.Hour))
}

func TestSelectForDeletionUnlimitedWhenZero(t *testing.T) {
	records := []*catalog.Record{{Mode: catalog.ModeFull, Status: catalog.StatusOK, StartTime: time.Now().AddDate(-5, 0, 0)}}
	assert.Nil(t, SelectForDeletion(records, 0, 0, time.Now()))
}

func TestSettleMTimeRejectsClockRewind(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := &Session{Params: Params{Now: func() time.Time { return now }, Sleep: func(time.Duration) {}}}
	_, err := settleMTime(s, now.Add(time.Hour))
	assert.Error(t, err)
}

func TestSettleMTimeWaitsPastEqualSecond(t *testing.T) {
	calls := 0
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := &Session{Params: Params{
		Now: func() time.Time {
			if calls > 0 {
				return now.Add(time.Second)
			}
			return now
		},
		Sleep: func(time.Duration) { calls++ },
	}}
	got, err := settleMTime(s, now)
	require.NoError(t, err)
	assert.True(t, got.Equal(now))
	assert.Equal(t, 1, calls)
}

func TestCopyClusterSnapshotModeCopiesTablespacesFromMountOrDirect(t *testing.T) {
	pgdata := t.TempDir()
	writeFile(t, filepath.Join(pgdata, "PG_VERSION"), "16\n")
	writeFile(t, filepath.Join(pgdata, "global", "pg_control"), "control-file-bytes")

	tblspc1Live := t.TempDir()
	writeFile(t, filepath.Join(tblspc1Live, "a"), "ts1-live")
	tblspc1Mount := t.TempDir()
	writeFile(t, filepath.Join(tblspc1Mount, "a"), "ts1-mounted")

	tblspc2Live := t.TempDir()
	writeFile(t, filepath.Join(tblspc2Live, "b"), "ts2-live")

	require.NoError(t, os.MkdirAll(filepath.Join(pgdata, "pg_tblspc"), 0755))
	require.NoError(t, os.Symlink(tblspc1Live, filepath.Join(pgdata, "pg_tblspc", "11111")))
	require.NoError(t, os.Symlink(tblspc2Live, filepath.Join(pgdata, "pg_tblspc", "22222")))

	root := t.TempDir()
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	conn := newFakeConn()
	conn.tsList = map[string]string{"ts1": tblspc1Live, "ts2": tblspc2Live}

	params := Params{
		PGData:  pgdata,
		Cfg:     pgconf.Cfg{BackupMode: "FULL"},
		Catalog: catalog.Layout{Root: root},
		Control: pgctlControlFileFor(1),
		Conn:    conn,
		Now:     func() time.Time { return now },
		Sleep:   func(time.Duration) {},
		Snapshot: &SnapshotRunner{},
	}
	sess, err := New(params)
	require.NoError(t, err)

	// ts1 is present in the snapshot (copy from its mountpoint); ts2 is
	// absent (copy straight from its live location).
	mounts := map[string]string{"ts1": tblspc1Mount}

	mf, err := copyCluster(context.Background(), sess, nil, sinceLSNInfo{}, mounts)
	require.NoError(t, err)

	link1, ok := mf.Lookup("pg_tblspc/11111")
	require.True(t, ok)
	assert.Equal(t, manifest.TypeSymlink, link1.Type)
	assert.Equal(t, tblspc1Live, link1.LinkTarget)

	_, ok = mf.Lookup("pg_tblspc/11111/a")
	require.True(t, ok)
	dbDir := sess.Catalog.DatabaseDir(sess.Record.StartTime)
	got, err := os.ReadFile(filepath.Join(dbDir, "pg_tblspc", "11111", "a"))
	require.NoError(t, err)
	assert.Equal(t, "ts1-mounted", string(got))

	_, ok = mf.Lookup("pg_tblspc/22222/b")
	require.True(t, ok)
	got, err = os.ReadFile(filepath.Join(dbDir, "pg_tblspc", "22222", "b"))
	require.NoError(t, err)
	assert.Equal(t, "ts2-live", string(got))
}

func pgctlControlFileFor(tli uint32) pgctl.ControlFile {
	return pgctl.ControlFile{
		SystemIdentifier: 123456,
		WALSegSize:       16 * 1024 * 1024,
		Timeline:         tli,
	}
}
