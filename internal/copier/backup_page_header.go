package copier

import (
	"encoding/binary"
	"io"

	"github.com/ossc-db/pg_rman/internal/rmanerr"
)

// BackupPageHeaderSize is the on-disk size of BackupPageHeader: a 32-bit
// block number, two 16-bit hole fields and a one-byte endpoint flag,
// written little-endian and unpadded whatever the host's byte order. The
// format carries no magic number; the manifest's crc32c is the only
// integrity witness.
const BackupPageHeaderSize = 4 + 2 + 2 + 1

// BackupPageHeader precedes every page (or the final sentinel) in a
// data-file backup stream.
type BackupPageHeader struct {
	Block      uint32
	HoleOffset uint16
	HoleLength uint16
	Endpoint   bool
}

// WriteTo serializes h in the fixed 9-byte layout.
func (h BackupPageHeader) WriteTo(w io.Writer) error {
	var buf [BackupPageHeaderSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], h.Block)
	binary.LittleEndian.PutUint16(buf[4:6], h.HoleOffset)
	binary.LittleEndian.PutUint16(buf[6:8], h.HoleLength)
	if h.Endpoint {
		buf[8] = 1
	}
	_, err := w.Write(buf[:])
	return err
}

// ReadBackupPageHeader reads one header, returning io.EOF when the stream
// is cleanly exhausted (the caller's loop terminates there just as it
// would at a regular EOF on the raw file).
func ReadBackupPageHeader(r io.Reader) (BackupPageHeader, error) {
	var buf [BackupPageHeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return BackupPageHeader{}, rmanerr.New(rmanerr.KindCorrupted, "truncated backup page header")
		}
		return BackupPageHeader{}, err
	}
	return BackupPageHeader{
		Block:      binary.LittleEndian.Uint32(buf[0:4]),
		HoleOffset: binary.LittleEndian.Uint16(buf[4:6]),
		HoleLength: binary.LittleEndian.Uint16(buf[6:8]),
		Endpoint:   buf[8] != 0,
	}, nil
}
