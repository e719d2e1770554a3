package copier

import (
	"io"
	"os"

	"github.com/ossc-db/pg_rman/internal/rmanerr"
)

// RestoreDataFile replays a backup_data_file stream onto dst, which is
// opened for update ("r+") and created ("w") only if it doesn't exist yet
// — later incrementals in a chain restore on top of the base's file, not a
// fresh one. An endpoint record truncates dst to (block-1)*BLCKSZ and ends
// the replay; that truncate is the only mechanism that removes trailing
// blocks a base backup left behind.
func RestoreDataFile(srcPath, dstPath string, compress bool, comp Compression) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return rmanerr.Wrap(err, rmanerr.KindSystem, "opening backup stream %s", srcPath)
	}
	defer src.Close()

	dst, err := os.OpenFile(dstPath, os.O_RDWR, 0)
	if err != nil {
		if !os.IsNotExist(err) {
			return rmanerr.Wrap(err, rmanerr.KindSystem, "opening destination %s", dstPath)
		}
		dst, err = os.OpenFile(dstPath, os.O_RDWR|os.O_CREATE, 0600)
		if err != nil {
			return rmanerr.Wrap(err, rmanerr.KindSystem, "creating destination %s", dstPath)
		}
	}
	defer dst.Close()

	var reader io.Reader = src
	if compress {
		if comp == nil {
			comp = Deflate{}
		}
		inflate, err := comp.NewReader(src)
		if err != nil {
			return rmanerr.Wrap(err, rmanerr.KindSystem, "starting decompression for %s", srcPath)
		}
		defer inflate.Close()
		reader = inflate
	}

	var lastBlock uint32
	var seenAny bool
	var page [BLCKSZ]byte

	for {
		if err := checkInterrupted(); err != nil {
			return err
		}
		hdr, err := ReadBackupPageHeader(reader)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		if hdr.Endpoint {
			if err := dst.Truncate(int64(hdr.Block-1) * BLCKSZ); err != nil {
				return rmanerr.Wrap(err, rmanerr.KindSystem, "truncating %s", dstPath)
			}
			return nil
		}

		if seenAny && hdr.Block < lastBlock {
			return rmanerr.New(rmanerr.KindCorrupted, "backup stream %s out of order at block %d", srcPath, hdr.Block)
		}
		if hdr.HoleOffset > BLCKSZ || uint32(hdr.HoleOffset)+uint32(hdr.HoleLength) > BLCKSZ {
			return rmanerr.New(rmanerr.KindCorrupted, "backup stream %s has invalid hole bounds at block %d", srcPath, hdr.Block)
		}
		lastBlock = hdr.Block
		seenAny = true

		for i := range page {
			page[i] = 0
		}
		if hdr.HoleOffset > 0 {
			if _, err := io.ReadFull(reader, page[:hdr.HoleOffset]); err != nil {
				return rmanerr.Wrap(err, rmanerr.KindCorrupted, "reading page body from %s", srcPath)
			}
		}
		upperOffset := int(hdr.HoleOffset) + int(hdr.HoleLength)
		if upperOffset < BLCKSZ {
			if _, err := io.ReadFull(reader, page[upperOffset:BLCKSZ]); err != nil {
				return rmanerr.Wrap(err, rmanerr.KindCorrupted, "reading page body from %s", srcPath)
			}
		}

		if _, err := dst.WriteAt(page[:], int64(hdr.Block)*BLCKSZ); err != nil {
			return rmanerr.Wrap(err, rmanerr.KindSystem, "writing %s", dstPath)
		}
	}
}
