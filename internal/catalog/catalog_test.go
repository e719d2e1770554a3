package catalog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ossc-db/pg_rman/internal/xlog"
)

func TestINIRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "backup.ini")

	rec := &Record{
		Mode:         ModeIncremental,
		Status:       StatusOK,
		Timeline:     3,
		StartLSN:     xlog.MakeLSN(0, 0x1000000),
		StopLSN:      xlog.MakeLSN(0, 0x2000000),
		StartTime:    time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
		EndTime:      time.Date(2026, 3, 4, 5, 10, 0, 0, time.UTC),
		RecoveryTime: time.Date(2026, 3, 4, 5, 9, 0, 0, time.UTC),
		RecoveryXID:  4242,
		Bytes:        ByteCounters{TotalData: 100, ReadData: 90, WriteBytes: 80},
		BlockSize:    8192,
		WALBlockSize: 8192,
		CompressData: true,
	}

	require.NoError(t, WriteINI(path, rec))
	got, err := ReadINI(path)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, rec.Mode, got.Mode)
	assert.Equal(t, rec.Status, got.Status)
	assert.Equal(t, rec.Timeline, got.Timeline)
	assert.Equal(t, rec.StartLSN, got.StartLSN)
	assert.Equal(t, rec.StopLSN, got.StopLSN)
	assert.True(t, rec.StartTime.Equal(got.StartTime))
	assert.Equal(t, rec.RecoveryXID, got.RecoveryXID)
	assert.Equal(t, rec.Bytes, got.Bytes)
	assert.True(t, got.CompressData)
}

func TestReadINIMissingFileReturnsNilNotError(t *testing.T) {
	rec, err := ReadINI("/nonexistent/path/backup.ini")
	assert.NoError(t, err)
	assert.Nil(t, rec)
}

func TestListSortsDescendingAndSkipsReserved(t *testing.T) {
	root := t.TempDir()
	l := Layout{Root: root}

	times := []time.Time{
		time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC),
	}
	for i, ts := range times {
		dir := l.BackupDir(ts)
		require.NoError(t, os.MkdirAll(dir, 0755))
		rec := &Record{Mode: ModeFull, Status: StatusOK, StartTime: ts, Timeline: uint32(i + 1)}
		require.NoError(t, WriteINI(l.BackupINI(ts), rec))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(root, "backup"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "timeline_history"), 0755))

	recs, err := l.List(TimeRange{})
	require.NoError(t, err)
	require.Len(t, recs, 3)
	for i := 1; i < len(recs); i++ {
		assert.True(t, recs[i-1].StartTime.After(recs[i].StartTime))
	}
}

func TestLastOfKindSkipsNonOK(t *testing.T) {
	recs := []*Record{
		{Mode: ModeFull, Status: StatusRunning, Timeline: 1},
		{Mode: ModeFull, Status: StatusOK, Timeline: 1},
		{Mode: ModeIncremental, Status: StatusOK, Timeline: 1},
	}
	last := LastFullOnTimeline(recs, 1)
	require.NotNil(t, last)
	assert.Equal(t, StatusOK, last.Status)
	assert.Equal(t, ModeFull, last.Mode)
}

func TestHasDatabaseAndHasArclogOrdering(t *testing.T) {
	full := &Record{Mode: ModeFull}
	inc := &Record{Mode: ModeIncremental}
	arc := &Record{Mode: ModeArchive}
	assert.True(t, full.HasDatabase())
	assert.True(t, inc.HasDatabase())
	assert.False(t, arc.HasDatabase())
	assert.True(t, full.HasArclog())
	assert.True(t, inc.HasArclog())
	assert.True(t, arc.HasArclog())
}

func TestAcquireLockContention(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pg_rman.ini")

	l1, err := AcquireLock(path)
	require.NoError(t, err)
	defer l1.Release()

	_, err = AcquireLock(path)
	require.Error(t, err)
}

func TestSystemIdentifierMismatchIsFatal(t *testing.T) {
	root := t.TempDir()
	l := Layout{Root: root}
	require.NoError(t, l.WriteSystemIdentifier(111))

	err := l.CheckSystemIdentifier(222)
	assert.Error(t, err)
}

func TestSystemIdentifierFirstOpenBinds(t *testing.T) {
	root := t.TempDir()
	l := Layout{Root: root}

	require.NoError(t, l.CheckSystemIdentifier(555))
	id, err := l.ReadSystemIdentifier()
	require.NoError(t, err)
	assert.Equal(t, uint64(555), id)
}
