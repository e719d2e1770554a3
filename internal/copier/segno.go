package copier

import (
	"path/filepath"
	"strconv"
	"strings"
)

// RelSegSize is the number of BLCKSZ blocks per data-file segment (the
// database splits any relation larger than this across "<relfilenode>.N"
// files).
const RelSegSize = 131072 // 1 GiB / BLCKSZ

// SegNo parses the ".N" suffix off a data-file basename, returning 0 when
// there is no suffix (the first segment never carries one).
func SegNo(path string) uint32 {
	base := filepath.Base(path)
	idx := strings.LastIndexByte(base, '.')
	if idx < 0 {
		return 0
	}
	n, err := strconv.ParseUint(base[idx+1:], 10, 32)
	if err != nil {
		return 0
	}
	return uint32(n)
}

// AbsoluteBlock computes the absolute block number a page checksum must be
// computed against: the block's offset within its segment file, plus
// RelSegSize blocks for every preceding segment.
func AbsoluteBlock(blknum, segno uint32) uint32 {
	return blknum + RelSegSize*segno
}
