package manifest

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteParseRoundTrip(t *testing.T) {
	e := Entry{
		RelPath:   "base/16384/16385",
		Type:      TypeDataFile,
		WriteSize: 8192,
		CRC:       0xdeadbeef,
		Mode:      0600,
		MTime:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	var buf bytes.Buffer
	require.NoError(t, WriteLine(&buf, e))

	got, err := ParseLine(buf.String())
	require.NoError(t, err)
	assert.Equal(t, e.RelPath, got.RelPath)
	assert.Equal(t, e.Type, got.Type)
	assert.Equal(t, e.WriteSize, got.WriteSize)
	assert.Equal(t, e.CRC, got.CRC)
	assert.Equal(t, e.Mode, got.Mode)
	assert.True(t, e.MTime.Equal(got.MTime))
}

func TestParseLineSymlink(t *testing.T) {
	e := Entry{RelPath: "pg_tblspc/16390", Type: TypeSymlink, WriteSize: 0, CRC: 0, Mode: 0777,
		MTime: time.Now().UTC(), LinkTarget: "/mnt/tbs1"}
	var buf bytes.Buffer
	require.NoError(t, WriteLine(&buf, e))
	got, err := ParseLine(buf.String())
	require.NoError(t, err)
	assert.Equal(t, "/mnt/tbs1", got.LinkTarget)
}

func TestParseLineRejectsBadFieldCount(t *testing.T) {
	_, err := ParseLine("onlyonefield")
	assert.Error(t, err)
}

func TestBytesInvalidSentinel(t *testing.T) {
	e := Entry{RelPath: "base/1/2", Type: TypeRegular, WriteSize: BytesInvalid, Mode: 0600, MTime: time.Now()}
	var buf bytes.Buffer
	require.NoError(t, WriteLine(&buf, e))
	got, err := ParseLine(buf.String())
	require.NoError(t, err)
	assert.Equal(t, BytesInvalid, got.WriteSize)
}

func TestIsDataFile(t *testing.T) {
	cases := map[string]bool{
		"base/16384/16385":     true,
		"base/16384/16385_fsm": true,
		"global/1262":          true,
		"pg_tblspc/1/PG_16/2/3": true,
		"base/16384/PG_VERSION": false,
		"pg_wal/000000010000000000000001": false,
		"postgresql.conf": false,
	}
	for rel, want := range cases {
		assert.Equal(t, want, IsDataFile(rel), rel)
	}
}

func TestWalkLexicographicOrder(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "b"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b", "c.txt"), []byte("y"), 0644))

	entries, err := Walk(root, WalkOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i := 1; i < len(entries); i++ {
		assert.Less(t, entries[i-1].Path, entries[i].Path)
	}
}

func TestWalkExcludesByNameAndPath(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "postmaster.pid"), []byte("1"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "keep.txt"), []byte("1"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "drop.txt"), []byte("1"), 0644))

	entries, err := Walk(root, WalkOptions{Exclude: []string{"postmaster.pid", filepath.Join(root, "drop.txt")}})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "keep.txt", entries[0].RelPath)
}

func TestLoadBlacklistSkipsCommentsAndBlankLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blacklist.txt")
	require.NoError(t, os.WriteFile(path, []byte("# comment\n\n/var/lib/data/x\n/var/lib/data/y\n"), 0644))

	list, err := LoadBlacklist(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/var/lib/data/x", "/var/lib/data/y"}, list)
}
