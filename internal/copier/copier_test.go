package copier

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ossc-db/pg_rman/internal/xlog"
)

func makePage(lsn xlog.LSN, lower, upper, special uint16) []byte {
	p := make([]byte, BLCKSZ)
	binary.LittleEndian.PutUint64(p[0:8], uint64(lsn))
	binary.LittleEndian.PutUint16(p[12:14], lower)
	binary.LittleEndian.PutUint16(p[14:16], upper)
	binary.LittleEndian.PutUint16(p[16:18], special)
	binary.LittleEndian.PutUint16(p[18:20], BLCKSZ|pageLayoutVersion)
	for i := int(lower); i < int(upper); i++ {
		p[i] = 0 // hole stays zero so truncated-hole comparisons are simple
	}
	for i := int(upper); i < int(special); i++ {
		p[i] = byte(i)
	}
	return p
}

func TestPageHeaderRecognized(t *testing.T) {
	p := makePage(100, SizeOfPageHeaderData, 4000, BLCKSZ)
	h := ParsePageHeader(p)
	assert.True(t, h.Recognized())
	assert.Equal(t, uint16(SizeOfPageHeaderData), h.HoleOffset())
	assert.Equal(t, uint16(4000-SizeOfPageHeaderData), h.HoleLength())
}

func TestPageHeaderRejectsInvalidLSN(t *testing.T) {
	p := makePage(xlog.InvalidLSN, SizeOfPageHeaderData, 4000, BLCKSZ)
	assert.False(t, ParsePageHeader(p).Recognized())
}

func TestPageHeaderRejectsBadOffsets(t *testing.T) {
	p := makePage(100, 4000, 100, BLCKSZ) // lower > upper
	assert.False(t, ParsePageHeader(p).Recognized())
}

func TestPageHeaderRecognizesAllVisibleHeapPage(t *testing.T) {
	// PD_ALL_VISIBLE (0x0004) is a routine flag VACUUM sets on ordinary
	// heap pages; it must not be mistaken for an index-metapage marker.
	p := makePage(100, SizeOfPageHeaderData, 4000, BLCKSZ)
	binary.LittleEndian.PutUint16(p[10:12], 0x0004)
	assert.True(t, ParsePageHeader(p).Recognized())
	assert.False(t, IsIndexMetapage(p, 0))
}

func TestIsIndexMetapageDetectsGIN(t *testing.T) {
	p := makePage(100, SizeOfPageHeaderData, 4000, BLCKSZ)
	binary.LittleEndian.PutUint32(p[ginVersionOffset:ginVersionOffset+4], ginCurrentVersion)
	assert.True(t, IsIndexMetapage(p, 0))
	assert.False(t, IsIndexMetapage(p, 1), "only block 0 is ever a metapage")
}

func TestIsIndexMetapageDetectsBRIN(t *testing.T) {
	p := makePage(100, SizeOfPageHeaderData, 4000, BLCKSZ)
	binary.LittleEndian.PutUint32(p[brinMagicOffset:brinMagicOffset+4], brinMetaMagic)
	binary.LittleEndian.PutUint32(p[brinVersionOffset:brinVersionOffset+4], brinCurrentVersion)
	assert.True(t, IsIndexMetapage(p, 0))
}

func TestIsIndexMetapageDetectsSPGiST(t *testing.T) {
	p := makePage(100, SizeOfPageHeaderData, 4000, BLCKSZ)
	binary.LittleEndian.PutUint32(p[spgistMagicOffset:spgistMagicOffset+4], spgistMagicNumber)
	assert.True(t, IsIndexMetapage(p, 0))
}

func TestIsIndexMetapageFalseForOrdinaryPage(t *testing.T) {
	p := makePage(100, SizeOfPageHeaderData, 4000, BLCKSZ)
	assert.False(t, IsIndexMetapage(p, 0))
}

func TestChecksumDeterministicAndBlockSensitive(t *testing.T) {
	p := makePage(100, SizeOfPageHeaderData, 4000, BLCKSZ)
	c1 := ComputePageChecksum(p, 5)
	c2 := ComputePageChecksum(p, 5)
	c3 := ComputePageChecksum(p, 6)
	assert.Equal(t, c1, c2)
	assert.NotEqual(t, c1, c3)
}

func TestSegNo(t *testing.T) {
	assert.Equal(t, uint32(0), SegNo("base/16384/16385"))
	assert.Equal(t, uint32(2), SegNo("base/16384/16385.2"))
}

func TestCopyFilePlainRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	content := []byte("hello backup world")
	require.NoError(t, os.WriteFile(src, content, 0640))

	res, err := CopyFile(src, dst, Plain, None{}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), res.WriteSize)
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestCopyFileMissingSourceIsSkippedNotError(t *testing.T) {
	dir := t.TempDir()
	res, err := CopyFile(filepath.Join(dir, "nope"), filepath.Join(dir, "dst"), Plain, None{}, 0)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
}

func TestCopyFileCompressedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	compressed := filepath.Join(dir, "mid.z")
	restored := filepath.Join(dir, "out.txt")
	content := []byte("compress me please, several repeated repeated repeated bytes")
	require.NoError(t, os.WriteFile(src, content, 0640))

	_, err := CopyFile(src, compressed, Compressed, Deflate{}, 0)
	require.NoError(t, err)

	_, err = CopyFile(compressed, restored, Decompressed, Deflate{}, 0)
	require.NoError(t, err)

	got, err := os.ReadFile(restored)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestBackupRestoreDataFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "16385")
	dst := filepath.Join(dir, "16385.bkp")
	restored := filepath.Join(dir, "16385.out")

	var full []byte
	for b := 0; b < 4; b++ {
		full = append(full, makePage(xlog.LSN(1000+b), SizeOfPageHeaderData, 4000, BLCKSZ)...)
	}
	require.NoError(t, os.WriteFile(src, full, 0640))

	res, err := BackupDataFile(src, dst, BackupDataFileOptions{})
	require.NoError(t, err)
	assert.False(t, res.Fallback)
	assert.False(t, res.Skipped)

	require.NoError(t, os.WriteFile(restored, nil, 0640))
	require.NoError(t, RestoreDataFile(dst, restored, false, nil))

	got, err := os.ReadFile(restored)
	require.NoError(t, err)
	assert.Equal(t, full, got)
}

func TestBackupDataFileLSNFilterSkipsUnmodifiedBlocks(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "16385")

	var full []byte
	full = append(full, makePage(xlog.LSN(100), SizeOfPageHeaderData, 4000, BLCKSZ)...) // below since_lsn
	full = append(full, makePage(xlog.LSN(500), SizeOfPageHeaderData, 4000, BLCKSZ)...) // above since_lsn
	require.NoError(t, os.WriteFile(src, full, 0640))

	dst := filepath.Join(dir, "16385.inc")
	res, err := BackupDataFile(src, dst, BackupDataFileOptions{
		HasSinceLSN:     true,
		SinceLSN:        xlog.LSN(300),
		IncrementalMode: true,
	})
	require.NoError(t, err)
	assert.False(t, res.Skipped)

	f, err := os.Open(dst)
	require.NoError(t, err)
	defer f.Close()
	hdr, err := ReadBackupPageHeader(f)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), hdr.Block) // block 0 was filtered out
}

func TestBackupDataFileFallsBackOnUnrecognizedPage(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "corrupt")
	// pd_lower > pd_upper makes the header invalid.
	p := makePage(100, 4000, 100, BLCKSZ)
	require.NoError(t, os.WriteFile(src, p, 0640))

	res, err := BackupDataFile(src, filepath.Join(dir, "out"), BackupDataFileOptions{})
	require.NoError(t, err)
	assert.True(t, res.Fallback)
}

func TestBackupDataFileEmptyFileIsNotADataFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(src, nil, 0640))

	res, err := BackupDataFile(src, filepath.Join(dir, "out"), BackupDataFileOptions{})
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.False(t, res.Skipped)
}

func TestBackupDataFileShortFirstReadFallsBack(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "short")
	require.NoError(t, os.WriteFile(src, make([]byte, 100), 0640))

	res, err := BackupDataFile(src, filepath.Join(dir, "out"), BackupDataFileOptions{})
	require.NoError(t, err)
	assert.True(t, res.Fallback)
}

func TestEndpointRecordTruncatesRestoredFile(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "rel")
	// Base backup: 3 blocks.
	var full []byte
	for b := 0; b < 3; b++ {
		full = append(full, makePage(xlog.LSN(100+b), SizeOfPageHeaderData, 4000, BLCKSZ)...)
	}
	require.NoError(t, os.WriteFile(base, full, 0640))

	restored := filepath.Join(dir, "rel.out")
	baseStream := filepath.Join(dir, "rel.base.bkp")
	res, err := BackupDataFile(base, baseStream, BackupDataFileOptions{})
	require.NoError(t, err)
	require.False(t, res.Fallback)
	require.NoError(t, os.WriteFile(restored, nil, 0640))
	require.NoError(t, RestoreDataFile(baseStream, restored, false, nil))

	st, err := os.Stat(restored)
	require.NoError(t, err)
	assert.Equal(t, int64(3*BLCKSZ), st.Size())

	// Incremental: relation truncated to 0 blocks, only the endpoint sentinel.
	incStream := filepath.Join(dir, "rel.inc.bkp")
	incRes, err := BackupDataFile(makeEmptyFile(t, dir), incStream, BackupDataFileOptions{
		IncrementalMode: true,
		HasSinceLSN:     true,
		SinceLSN:        xlog.LSN(1_000_000),
	})
	require.NoError(t, err)
	assert.False(t, incRes.Skipped)

	require.NoError(t, RestoreDataFile(incStream, restored, false, nil))
	st, err = os.Stat(restored)
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.Size())
}

func makeEmptyFile(t *testing.T, dir string) string {
	t.Helper()
	p := filepath.Join(dir, "empty-rel")
	require.NoError(t, os.WriteFile(p, nil, 0640))
	return p
}
