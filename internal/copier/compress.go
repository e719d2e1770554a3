package copier

import (
	"compress/flate"
	"io"

	"github.com/ossc-db/pg_rman/internal/rmanerr"
)

// Compression is the pluggable capability the design notes call for: a
// compressor/decompressor pair scoped to a single file copy. Deflate is
// always built in; nothing in this package refuses to read a compressed
// backup.
type Compression interface {
	NewWriter(w io.Writer) (io.WriteCloser, error)
	NewReader(r io.Reader) (io.ReadCloser, error)
}

// Deflate is the default Compression backed by the standard library's
// DEFLATE implementation, matching the wire format the page stream uses.
type Deflate struct{}

func (Deflate) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return flate.NewWriter(w, flate.DefaultCompression)
}

func (Deflate) NewReader(r io.Reader) (io.ReadCloser, error) {
	return flate.NewReader(r), nil
}

// None disables compression entirely; its presence lets a build omit the
// deflate capability without touching the copier's control flow.
type None struct{}

func (None) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{w}, nil
}

func (None) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// Capability resolves the configured compression backend: Deflate when
// enabled, None otherwise. It never returns an error.
func Capability(enabled bool) (Compression, error) {
	if !enabled {
		return None{}, nil
	}
	return Deflate{}, nil
}

var errNoCompressionSupport = rmanerr.New(rmanerr.KindSystem, "this build has no compression support; backup was taken with compress_data enabled")
