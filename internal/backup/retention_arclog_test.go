package backup

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ossc-db/pg_rman/internal/catalog"
	"github.com/ossc-db/pg_rman/internal/manifest"
	"github.com/ossc-db/pg_rman/internal/pgconf"
)

// testSegSize is intentionally far smaller than a real 16 MiB WAL segment;
// IsCompleteWAL only cares that the declared and actual sizes agree.
const testBlcksz = 8192
const testSegSize = 64 * 1024

func writeWALSegment(t *testing.T, path string, valid bool, size int64) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	buf := make([]byte, size)
	if valid {
		binary.LittleEndian.PutUint16(buf[0:2], 0xD110)
		binary.LittleEndian.PutUint16(buf[2:4], 0x0002)
		binary.LittleEndian.PutUint32(buf[32:36], uint32(testSegSize))
		binary.LittleEndian.PutUint32(buf[36:40], uint32(testBlcksz))
	}
	require.NoError(t, os.WriteFile(path, buf, 0644))
}

func writeArclogManifest(t *testing.T, l catalog.Layout, start time.Time, entries []manifest.Entry) {
	t.Helper()
	mf := manifest.New()
	for _, e := range entries {
		mf.Add(e)
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(l.ManifestFile(start, "arclog")), 0755))
	require.NoError(t, manifest.Write(l.ManifestFile(start, "arclog"), mf))
}

func TestRunFileRetentionKeepsNewestFilesAndWindow(t *testing.T) {
	root := t.TempDir()
	l := catalog.Layout{Root: root}
	start := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	now := time.Date(2026, 6, 10, 0, 0, 0, 0, time.Local)

	names := []string{
		"00000001000000000000000A", // oldest, should be deleted
		"00000001000000000000000B",
		"00000001000000000000000C", // newest, kept by keepFiles
	}
	mtimes := []time.Time{
		now.AddDate(0, 0, -20),
		now.AddDate(0, 0, -15),
		now.AddDate(0, 0, -1),
	}
	var entries []manifest.Entry
	for i, n := range names {
		p := filepath.Join(l.ArclogDir(start), n)
		writeWALSegment(t, p, true, testSegSize)
		os.Chtimes(p, mtimes[i], mtimes[i])
		entries = append(entries, manifest.Entry{
			Path: p, RelPath: n, Type: manifest.TypeRegular,
			WriteSize: testSegSize, Mode: 0644, MTime: mtimes[i],
		})
	}
	writeArclogManifest(t, l, start, entries)

	rec := &catalog.Record{StartTime: start, Mode: catalog.ModeFull, Status: catalog.StatusOK}
	cfg := pgconf.Cfg{KeepFilesArclog: 1, KeepDaysArclog: 5}

	err := RunFileRetention(l, []*catalog.Record{rec}, cfg, now, testSegSize, testBlcksz)
	require.NoError(t, err)

	_, err0 := os.Stat(filepath.Join(l.ArclogDir(start), names[0]))
	assert.True(t, os.IsNotExist(err0), "oldest segment outside keep window should be removed")
	_, err1 := os.Stat(filepath.Join(l.ArclogDir(start), names[1]))
	assert.True(t, os.IsNotExist(err1), "second-oldest segment outside keep window should be removed")
	_, err2 := os.Stat(filepath.Join(l.ArclogDir(start), names[2]))
	assert.NoError(t, err2, "newest segment kept by keep_files")
}

func TestRunFileRetentionNeverRemovesIncompleteSegment(t *testing.T) {
	root := t.TempDir()
	l := catalog.Layout{Root: root}
	start := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	now := time.Date(2026, 6, 10, 0, 0, 0, 0, time.Local)

	name := "00000001000000000000000A"
	p := filepath.Join(l.ArclogDir(start), name)
	old := now.AddDate(0, 0, -100)
	writeWALSegment(t, p, false, testSegSize) // bad header, not a complete WAL
	os.Chtimes(p, old, old)
	writeArclogManifest(t, l, start, []manifest.Entry{{
		Path: p, RelPath: name, Type: manifest.TypeRegular,
		WriteSize: testSegSize, Mode: 0644, MTime: old,
	}})

	rec := &catalog.Record{StartTime: start, Mode: catalog.ModeFull, Status: catalog.StatusOK}
	cfg := pgconf.Cfg{KeepFilesArclog: 0, KeepDaysArclog: 1}

	require.NoError(t, RunFileRetention(l, []*catalog.Record{rec}, cfg, now, testSegSize, testBlcksz))

	_, err := os.Stat(p)
	assert.NoError(t, err, "incomplete WAL segment is never deleted by this pass")
}

func TestRunFileRetentionNoopWhenUnlimited(t *testing.T) {
	root := t.TempDir()
	l := catalog.Layout{Root: root}
	start := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	now := time.Date(2026, 6, 10, 0, 0, 0, 0, time.Local)

	name := "00000001000000000000000A"
	p := filepath.Join(l.ArclogDir(start), name)
	old := now.AddDate(-1, 0, 0)
	writeWALSegment(t, p, true, testSegSize)
	os.Chtimes(p, old, old)
	writeArclogManifest(t, l, start, []manifest.Entry{{
		Path: p, RelPath: name, Type: manifest.TypeRegular,
		WriteSize: testSegSize, Mode: 0644, MTime: old,
	}})

	rec := &catalog.Record{StartTime: start, Mode: catalog.ModeFull, Status: catalog.StatusOK}
	cfg := pgconf.Cfg{} // KeepFilesArclog=0, KeepDaysArclog=0 -> unlimited

	require.NoError(t, RunFileRetention(l, []*catalog.Record{rec}, cfg, now, testSegSize, testBlcksz))
	_, err := os.Stat(p)
	assert.NoError(t, err)
}
