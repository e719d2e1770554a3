// Package restore implements the Restore Planner & Driver: recovery-target
// predicates over the catalog, timeline-history-based base/chain selection,
// and the staged restoration that replays a chain of backups onto a
// cluster directory.
package restore

import (
	"strconv"
	"time"

	"github.com/ossc-db/pg_rman/internal/catalog"
	"github.com/ossc-db/pg_rman/internal/rmanerr"
	"github.com/ossc-db/pg_rman/internal/xlog"
)

// Target is the recovery-target triple: an optional time, an optional
// xid, an inclusive flag, a recovery action, and a timeline selector that
// is either an explicit TLI or the literal "latest".
type Target struct {
	Time    time.Time
	HasTime bool

	XID    uint32
	HasXID bool

	Inclusive bool
	Action    string // "", "pause", "promote", "shutdown"
	Timeline  string // "latest", "current", or a decimal TLI
}

// SatisfiesTarget implements the Satisfies-target predicate: an xid target
// takes priority over a time target; with neither set, every backup
// satisfies the target (restore to the newest available point).
func SatisfiesTarget(rec *catalog.Record, t Target) bool {
	switch {
	case t.HasXID:
		return rec.RecoveryXID <= t.XID
	case t.HasTime:
		return !rec.RecoveryTime.After(t.Time)
	default:
		return true
	}
}

// SatisfiesTimeline reports whether rec's (timeline, stop_lsn) lies on the
// ancestry described by entries, as produced by ResolveTimeline.
func SatisfiesTimeline(rec *catalog.Record, entries []xlog.HistoryEntry) bool {
	return xlog.SatisfiesTimeline(entries, rec.Timeline, rec.StopLSN)
}

// ParseTimeline resolves t.Timeline to a concrete TLI. "latest" and
// "current" both mean "the highest timeline this catalog has seen",
// determined from histFiles (the set of timeline numbers that have a
// history file in the catalog) and the newest record's own timeline —
// timeline 1 never has a history file, so the newest record covers that
// case.
func ParseTimeline(t Target, histFiles []uint32, newestRecordTLI uint32) (uint32, error) {
	switch t.Timeline {
	case "", "latest", "current":
		best := newestRecordTLI
		for _, tli := range histFiles {
			if tli > best {
				best = tli
			}
		}
		return best, nil
	default:
		v, err := strconv.ParseUint(t.Timeline, 10, 32)
		if err != nil {
			return 0, rmanerr.Wrap(err, rmanerr.KindArgs, "malformed recovery_target_timeline %q", t.Timeline)
		}
		return uint32(v), nil
	}
}
