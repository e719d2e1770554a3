package copier

import (
	"io"
	"os"

	"github.com/ossc-db/pg_rman/internal/rmanerr"
)

// CopyMode selects how CopyFile treats the byte stream relative to the
// destination.
type CopyMode int

const (
	Plain CopyMode = iota
	Compressed
	Decompressed
)

// CopyResult reports what CopyFile actually moved.
type CopyResult struct {
	ReadSize  int64
	WriteSize int64
	CRC       uint32
	Skipped   bool // source vanished (ENOENT); not fatal
}

// Interrupted is polled at a bounded cadence by every copy loop; the
// cancellation handler sets it and every loop here raises KindInterrupted
// the next time it's checked.
var Interrupted func() bool = func() bool { return false }

func checkInterrupted() error {
	if Interrupted() {
		return rmanerr.New(rmanerr.KindInterrupted, "interrupted")
	}
	return nil
}

const copyBufSize = 64 * 1024

// CopyFile performs a byte-accurate copy of srcPath into dstPath,
// computing a running crc32c over
// everything actually written. Mode selects whether the output should be
// wrapped in a deflate stream (Compressed) or the input unwrapped from one
// (Decompressed). ENOENT on the source is reported as CopyResult.Skipped,
// not an error; every other I/O failure is fatal.
func CopyFile(srcPath, dstPath string, mode CopyMode, comp Compression, destPerm os.FileMode) (CopyResult, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return CopyResult{Skipped: true}, nil
		}
		return CopyResult{}, rmanerr.Wrap(err, rmanerr.KindSystem, "opening source %s", srcPath)
	}
	defer src.Close()

	if info, statErr := src.Stat(); statErr == nil {
		destPerm = info.Mode().Perm()
	}

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, destPerm)
	if err != nil {
		return CopyResult{}, rmanerr.Wrap(err, rmanerr.KindSystem, "creating destination %s", dstPath)
	}
	closeDst := func() { dst.Close() }
	defer closeDst()

	crc := NewCRC32C()
	var reader io.Reader = src
	var writer io.Writer = dst
	var inflate io.ReadCloser
	var deflate io.WriteCloser

	switch mode {
	case Compressed:
		deflate, err = comp.NewWriter(io.MultiWriter(dst, crc))
		if err != nil {
			return CopyResult{}, rmanerr.Wrap(err, rmanerr.KindSystem, "starting compression for %s", dstPath)
		}
		writer = deflate
	case Decompressed:
		inflate, err = comp.NewReader(src)
		if err != nil {
			return CopyResult{}, rmanerr.Wrap(err, rmanerr.KindSystem, "starting decompression for %s", srcPath)
		}
		reader = inflate
		writer = io.MultiWriter(dst, crc)
	default:
		writer = io.MultiWriter(dst, crc)
	}

	buf := make([]byte, copyBufSize)
	var readSize int64
	for {
		if err := checkInterrupted(); err != nil {
			return CopyResult{}, err
		}
		n, rerr := reader.Read(buf)
		if n > 0 {
			readSize += int64(n)
			if _, werr := writer.Write(buf[:n]); werr != nil {
				return CopyResult{}, rmanerr.Wrap(werr, rmanerr.KindSystem, "writing %s", dstPath)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return CopyResult{}, rmanerr.Wrap(rerr, rmanerr.KindSystem, "reading %s", srcPath)
		}
	}
	if inflate != nil {
		inflate.Close()
	}
	if deflate != nil {
		if err := deflate.Close(); err != nil {
			return CopyResult{}, rmanerr.Wrap(err, rmanerr.KindSystem, "finalizing compression for %s", dstPath)
		}
	}

	writeSize := readSize
	if mode == Compressed {
		if st, serr := dst.Stat(); serr == nil {
			writeSize = st.Size()
		}
	}

	return CopyResult{ReadSize: readSize, WriteSize: writeSize, CRC: crc.Sum32()}, nil
}
