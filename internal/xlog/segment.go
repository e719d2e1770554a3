package xlog

import (
	"encoding/binary"
	"fmt"
	"regexp"
	"strconv"

	"github.com/ossc-db/pg_rman/internal/rmanerr"
)

// DefaultSegSize is the conventional 16 MiB WAL segment size; the actual
// value is read from the cluster's control file at preflight and threaded
// through every call in this package.
const DefaultSegSize int64 = 16 * 1024 * 1024

// segmentNameRE matches the fixed 24-character WAL filename shape:
// 8 hex timeline + 8 hex log id + 8 hex segment id. The archive-log
// retention pass depends on rejecting anything that doesn't match this
// shape before it does a lexicographic sort over filenames.
var segmentNameRE = regexp.MustCompile(`^[0-9A-F]{8}[0-9A-F]{8}[0-9A-F]{8}$`)

// IsSegmentName reports whether name has the fixed 24-hex-digit WAL segment
// shape (timeline history and partial ".partial"/".backup" suffixes are
// rejected here; callers strip those first).
func IsSegmentName(name string) bool {
	return len(name) == 24 && segmentNameRE.MatchString(name)
}

// SegmentName computes the archive filename for the WAL segment containing
// lsn on timeline tli, given the cluster's configured segment size.
func SegmentName(tli uint32, lsn LSN, segSize int64) string {
	segsPerLog := uint32(0x100000000 / uint64(segSize))
	segNo := uint64(lsn) / uint64(segSize)
	logID := uint32(segNo / uint64(segsPerLog))
	seg := uint32(segNo % uint64(segsPerLog))
	return fmt.Sprintf("%08X%08X%08X", tli, logID, seg)
}

// Timeline parses the 8 leading hex digits of a WAL segment filename.
func Timeline(name string) (uint32, error) {
	if len(name) < 8 {
		return 0, rmanerr.New(rmanerr.KindCorrupted, "malformed WAL segment name %q", name)
	}
	v, err := strconv.ParseUint(name[:8], 16, 32)
	if err != nil {
		return 0, rmanerr.Wrap(err, rmanerr.KindCorrupted, "malformed WAL segment name %q", name)
	}
	return uint32(v), nil
}

// HistoryFileName returns the name of the timeline history file for tli, or
// "" for timeline 1, which has no history file: it is the implicit root
// timeline with an open end.
func HistoryFileName(tli uint32) string {
	if tli <= 1 {
		return ""
	}
	return fmt.Sprintf("%08X.history", tli)
}

// xlogPageMagic is XLOG_PAGE_MAGIC for the PostgreSQL versions this format
// targets; xlpLongHeader marks the first page of a segment, which carries
// the long header fields this check depends on.
const (
	xlogPageMagic = 0xD110
	xlpLongHeader = 0x0002
	xlpAllFlags   = 0x0007
	longHeaderLen = 40 // xlp_magic..xlp_xlog_blcksz, no padding on 64-bit
)

// IsCompleteWAL reports whether the first BLCKSZ bytes of a file look like
// a valid XLog long page header for a segment of segSize/blcksz, and the
// file's actual size matches a full segment — the archive-log retention
// pass's eligibility check, ported from xlog_is_complete_wal() in
// xlog.c (itself based on ValidXLOGHeader()).
func IsCompleteWAL(firstPage []byte, fileSize, segSize int64, blcksz int) bool {
	if len(firstPage) < longHeaderLen || int64(len(firstPage)) < int64(blcksz) {
		return false
	}
	magic := binary.LittleEndian.Uint16(firstPage[0:2])
	info := binary.LittleEndian.Uint16(firstPage[2:4])
	if magic != xlogPageMagic {
		return false
	}
	if info&^xlpAllFlags != 0 {
		return false
	}
	if info&xlpLongHeader == 0 {
		return false
	}
	// xlp_magic(2) + xlp_info(2) + xlp_tli(4) + xlp_pageaddr(8) +
	// xlp_rem_len(4) = 20, padded to 8-byte alignment (24) before
	// xlp_sysid(8); xlp_seg_size and xlp_xlog_blcksz follow at 32 and 36.
	segSizeField := binary.LittleEndian.Uint32(firstPage[32:36])
	blockSizeField := binary.LittleEndian.Uint32(firstPage[36:40])
	if int64(segSizeField) != segSize {
		return false
	}
	if int(blockSizeField) != blcksz {
		return false
	}
	return fileSize == segSize
}
