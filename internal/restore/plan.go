package restore

import (
	"sort"

	"github.com/ossc-db/pg_rman/internal/catalog"
	"github.com/ossc-db/pg_rman/internal/rmanerr"
)

// Plan is the selected restore chain: a base FULL backup and zero or more
// INCREMENTAL backups to apply on top of it, in the order they must be
// replayed.
type Plan struct {
	Timeline uint32
	Base     *catalog.Record
	Chain    []*catalog.Record // ascending start-time order
}

// BuildPlan implements base selection and chain collection exactly as the
// design notes describe: scan the catalog descending (newest first) for
// the first FULL, OK backup that satisfies both predicates; that is the
// base. Then continue scanning from just newer than the base toward the
// newest entries, collecting same-timeline OK INCREMENTAL backups that
// also satisfy both predicates, and replay them oldest first.
func BuildPlan(l catalog.Layout, t Target) (*Plan, error) {
	tli, entries, err := ResolveTimeline(l, t)
	if err != nil {
		return nil, err
	}

	records, err := l.List(catalog.TimeRange{})
	if err != nil {
		return nil, rmanerr.Wrap(err, rmanerr.KindSystem, "listing catalog")
	}

	baseIdx := -1
	for i, rec := range records {
		if rec.Mode == catalog.ModeFull && rec.Status == catalog.StatusOK &&
			SatisfiesTimeline(rec, entries) && SatisfiesTarget(rec, t) {
			baseIdx = i
			break
		}
	}
	if baseIdx < 0 {
		return nil, rmanerr.New(rmanerr.KindNoBackup, "no full backup satisfies the requested recovery target").
			WithHint("run show to list available backups")
	}
	base := records[baseIdx]

	var chain []*catalog.Record
	for i := baseIdx - 1; i >= 0; i-- {
		rec := records[i]
		if rec.Mode != catalog.ModeIncremental || rec.Status != catalog.StatusOK || rec.Timeline != base.Timeline {
			continue
		}
		if !SatisfiesTimeline(rec, entries) || !SatisfiesTarget(rec, t) {
			continue
		}
		chain = append(chain, rec)
	}
	sort.Slice(chain, func(i, j int) bool { return chain[i].StartTime.Before(chain[j].StartTime) })

	return &Plan{Timeline: tli, Base: base, Chain: chain}, nil
}

// All returns the base followed by the chain, the order files are applied
// in during restoration.
func (p *Plan) All() []*catalog.Record {
	out := make([]*catalog.Record, 0, len(p.Chain)+1)
	out = append(out, p.Base)
	out = append(out, p.Chain...)
	return out
}
