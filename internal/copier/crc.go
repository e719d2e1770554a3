package copier

import "hash/crc32"

var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// NewCRC32C returns a fresh running crc32c accumulator, the integrity
// witness stored in every manifest entry.
func NewCRC32C() *CRC32C {
	return &CRC32C{}
}

// CRC32C is a thin wrapper so callers can Write through it like any other
// hash.Hash32 without importing hash/crc32 and its table everywhere.
type CRC32C struct {
	crc uint32
}

func (c *CRC32C) Write(p []byte) (int, error) {
	c.crc = crc32.Update(c.crc, castagnoliTable, p)
	return len(p), nil
}

func (c *CRC32C) Sum32() uint32 { return c.crc }
