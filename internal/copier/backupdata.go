package copier

import (
	"io"
	"os"

	"github.com/ossc-db/pg_rman/internal/rmanerr"
	"github.com/ossc-db/pg_rman/internal/xlog"
)

// BackupDataFileOptions configures one data-file copy.
type BackupDataFileOptions struct {
	SinceLSN        xlog.LSN // InvalidLSN means "no LSN filter" (full backup)
	HasSinceLSN     bool
	PrevMissing     bool // the file did not exist in the previous backup
	Compress        bool
	Comp            Compression
	IncrementalMode bool // the overall backup session mode is INCREMENTAL
	ChecksumEnabled bool
	SegNo           uint32
}

// BackupDataFileResult reports what the page-aware path produced. Fallback
// is true when the page parser rejected the file and the caller must
// instead invoke CopyFile against dstPath from scratch.
type BackupDataFileResult struct {
	CopyResult
	Fallback bool
	Skipped  bool // filtered to nothing; caller removes dstPath
}

// BackupDataFile streams src in BLCKSZ blocks, emitting a BackupPageHeader
// plus the non-hole payload for each retained block. It never reads past
// the first unrecognized page: on that block it reports Fallback so the
// caller reopens src with CopyFile and saves it verbatim, manifest type
// downgraded to regular.
func BackupDataFile(srcPath, dstPath string, opts BackupDataFileOptions) (BackupDataFileResult, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return BackupDataFileResult{Skipped: true}, nil
		}
		return BackupDataFileResult{}, rmanerr.Wrap(err, rmanerr.KindSystem, "opening source %s", srcPath)
	}

	dst, err := os.Create(dstPath)
	if err != nil {
		src.Close()
		return BackupDataFileResult{}, rmanerr.Wrap(err, rmanerr.KindSystem, "creating destination %s", dstPath)
	}

	comp := opts.Comp
	if comp == nil {
		comp, _ = Capability(opts.Compress)
	}
	crc := NewCRC32C()
	var out io.Writer = io.MultiWriter(dst, crc)
	var deflate io.WriteCloser
	if opts.Compress {
		deflate, err = comp.NewWriter(out)
		if err != nil {
			dst.Close()
			src.Close()
			return BackupDataFileResult{}, rmanerr.Wrap(err, rmanerr.KindSystem, "starting compression for %s", dstPath)
		}
		out = deflate
	}

	abortCleanup := func() {
		if deflate != nil {
			deflate.Close()
		}
		dst.Close()
		src.Close()
		os.Remove(dstPath)
	}

	var (
		blknum     uint32
		wroteAny   bool
		hadContent bool
		page       [BLCKSZ]byte
	)

	for {
		if err := checkInterrupted(); err != nil {
			abortCleanup()
			return BackupDataFileResult{}, err
		}
		n, rerr := io.ReadFull(src, page[:])
		if rerr == io.EOF {
			// A zero-length file is not a data file and is copied verbatim,
			// except in INCREMENTAL mode, where it still gets its sentinel.
			if blknum == 0 && !opts.IncrementalMode {
				abortCleanup()
				return BackupDataFileResult{Fallback: true}, nil
			}
			break
		}
		if rerr == io.ErrUnexpectedEOF {
			// Short final read.
			if blknum == 0 {
				abortCleanup()
				return BackupDataFileResult{Fallback: true}, nil
			}
			hadContent = true
			hdr := BackupPageHeader{Block: blknum, HoleOffset: 0, HoleLength: 0}
			if err := hdr.WriteTo(out); err != nil {
				abortCleanup()
				return BackupDataFileResult{}, rmanerr.Wrap(err, rmanerr.KindSystem, "writing %s", dstPath)
			}
			if _, err := out.Write(page[:n]); err != nil {
				abortCleanup()
				return BackupDataFileResult{}, rmanerr.Wrap(err, rmanerr.KindSystem, "writing %s", dstPath)
			}
			wroteAny = true
			blknum++
			break
		}
		if rerr != nil {
			abortCleanup()
			return BackupDataFileResult{}, rmanerr.Wrap(rerr, rmanerr.KindSystem, "reading %s", srcPath)
		}
		hadContent = true

		hdr := ParsePageHeader(page[:])
		if !hdr.Recognized() || IsIndexMetapage(page[:], blknum) {
			abortCleanup()
			return BackupDataFileResult{Fallback: true}, nil
		}

		if opts.HasSinceLSN && !opts.PrevMissing && hdr.LSN.Valid() && hdr.LSN < opts.SinceLSN {
			blknum++
			continue
		}

		holeOffset := hdr.HoleOffset()
		holeLength := hdr.HoleLength()

		if opts.ChecksumEnabled {
			for i := uint16(0); i < holeLength; i++ {
				page[int(holeOffset)+int(i)] = 0
			}
			abs := AbsoluteBlock(blknum, opts.SegNo)
			checksum := ComputePageChecksum(page[:], abs)
			SetChecksum(page[:], checksum)
		}

		bph := BackupPageHeader{Block: blknum, HoleOffset: holeOffset, HoleLength: holeLength}
		if err := bph.WriteTo(out); err != nil {
			abortCleanup()
			return BackupDataFileResult{}, rmanerr.Wrap(err, rmanerr.KindSystem, "writing %s", dstPath)
		}
		if holeOffset > 0 {
			if _, err := out.Write(page[:holeOffset]); err != nil {
				abortCleanup()
				return BackupDataFileResult{}, rmanerr.Wrap(err, rmanerr.KindSystem, "writing %s", dstPath)
			}
		}
		upperOffset := int(holeOffset) + int(holeLength)
		if upperOffset < BLCKSZ {
			if _, err := out.Write(page[upperOffset:BLCKSZ]); err != nil {
				abortCleanup()
				return BackupDataFileResult{}, rmanerr.Wrap(err, rmanerr.KindSystem, "writing %s", dstPath)
			}
		}
		wroteAny = true
		blknum++
	}

	if opts.IncrementalMode {
		// One past the block count: restore truncates to (Block-1)*BLCKSZ.
		sentinel := BackupPageHeader{Block: blknum + 1, Endpoint: true}
		if err := sentinel.WriteTo(out); err != nil {
			abortCleanup()
			return BackupDataFileResult{}, rmanerr.Wrap(err, rmanerr.KindSystem, "writing %s", dstPath)
		}
		wroteAny = true
	}

	if deflate != nil {
		if err := deflate.Close(); err != nil {
			dst.Close()
			src.Close()
			return BackupDataFileResult{}, rmanerr.Wrap(err, rmanerr.KindSystem, "finalizing compression for %s", dstPath)
		}
	}
	src.Close()

	if !wroteAny && hadContent {
		dst.Close()
		os.Remove(dstPath)
		return BackupDataFileResult{Skipped: true}, nil
	}

	var writeSize int64
	if st, serr := dst.Stat(); serr == nil {
		writeSize = st.Size()
	}
	dst.Close()

	return BackupDataFileResult{CopyResult: CopyResult{WriteSize: writeSize, CRC: crc.Sum32()}}, nil
}
