// Package xlog implements the WAL-position arithmetic the backup engine and
// restore planner both depend on: LSN parsing/formatting, WAL segment
// filename computation, and timeline history file parsing. None of this
// touches the network; it mirrors the textual conventions the database's
// control protocol and archiver use, grounded in the original xlog.c.
package xlog

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ossc-db/pg_rman/internal/rmanerr"
)

// LSN is a 64-bit WAL position, textually "hi/lo" in hex.
type LSN uint64

const InvalidLSN LSN = 0

func (l LSN) Hi() uint32 { return uint32(l >> 32) }
func (l LSN) Lo() uint32 { return uint32(l) }

func (l LSN) String() string {
	return fmt.Sprintf("%X/%X", l.Hi(), l.Lo())
}

func (l LSN) Valid() bool { return l != InvalidLSN }

// ParseLSN parses the "X/XXXXXXXX" textual form used throughout backup.ini
// and the control protocol.
func ParseLSN(s string) (LSN, error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return 0, rmanerr.New(rmanerr.KindCorrupted, "malformed LSN %q", s)
	}
	hi, err := strconv.ParseUint(parts[0], 16, 32)
	if err != nil {
		return 0, rmanerr.Wrap(err, rmanerr.KindCorrupted, "malformed LSN %q", s)
	}
	lo, err := strconv.ParseUint(parts[1], 16, 32)
	if err != nil {
		return 0, rmanerr.Wrap(err, rmanerr.KindCorrupted, "malformed LSN %q", s)
	}
	return LSN(hi<<32 | lo), nil
}

// MakeLSN combines the two 32-bit halves the control protocol returns
// separately into a single comparable value.
func MakeLSN(hi, lo uint32) LSN {
	return LSN(uint64(hi)<<32 | uint64(lo))
}
