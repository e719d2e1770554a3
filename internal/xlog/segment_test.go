package xlog

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSegmentName(t *testing.T) {
	assert.True(t, IsSegmentName("00000001000000000000000A"))
	assert.True(t, IsSegmentName("0000000100000000000000FF"))
	assert.False(t, IsSegmentName("0000000100000000000000ff")) // lowercase rejected
	assert.False(t, IsSegmentName("0000000100000000000000FF.history"))
	assert.False(t, IsSegmentName("tooshort"))
}

func TestSegmentNameRoundTripsTimeline(t *testing.T) {
	name := SegmentName(7, MakeLSN(0, 0x1000000), DefaultSegSize)
	tli, err := Timeline(name)
	assert.NoError(t, err)
	assert.Equal(t, uint32(7), tli)
}

func longHeader(segSize int64, blcksz int, fileSize int64) []byte {
	buf := make([]byte, blcksz)
	binary.LittleEndian.PutUint16(buf[0:2], xlogPageMagic)
	binary.LittleEndian.PutUint16(buf[2:4], xlpLongHeader)
	binary.LittleEndian.PutUint32(buf[32:36], uint32(segSize))
	binary.LittleEndian.PutUint32(buf[36:40], uint32(blcksz))
	return buf
}

func TestIsCompleteWALAcceptsValidLongHeader(t *testing.T) {
	buf := longHeader(DefaultSegSize, BLCKSZForTest, DefaultSegSize)
	assert.True(t, IsCompleteWAL(buf, DefaultSegSize, DefaultSegSize, BLCKSZForTest))
}

func TestIsCompleteWALRejectsBadMagic(t *testing.T) {
	buf := longHeader(DefaultSegSize, BLCKSZForTest, DefaultSegSize)
	binary.LittleEndian.PutUint16(buf[0:2], 0x1234)
	assert.False(t, IsCompleteWAL(buf, DefaultSegSize, DefaultSegSize, BLCKSZForTest))
}

func TestIsCompleteWALRejectsMissingLongHeaderFlag(t *testing.T) {
	buf := longHeader(DefaultSegSize, BLCKSZForTest, DefaultSegSize)
	binary.LittleEndian.PutUint16(buf[2:4], 0)
	assert.False(t, IsCompleteWAL(buf, DefaultSegSize, DefaultSegSize, BLCKSZForTest))
}

func TestIsCompleteWALRejectsSegSizeMismatch(t *testing.T) {
	buf := longHeader(8*1024*1024, BLCKSZForTest, DefaultSegSize)
	assert.False(t, IsCompleteWAL(buf, DefaultSegSize, DefaultSegSize, BLCKSZForTest))
}

func TestIsCompleteWALRejectsTruncatedFile(t *testing.T) {
	buf := longHeader(DefaultSegSize, BLCKSZForTest, DefaultSegSize)
	assert.False(t, IsCompleteWAL(buf, DefaultSegSize/2, DefaultSegSize, BLCKSZForTest))
}

// BLCKSZForTest avoids importing internal/copier for a single constant.
const BLCKSZForTest = 8192
