package xlog

import (
	"bufio"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/ossc-db/pg_rman/internal/rmanerr"
)

// HistoryEntry is one line of a timeline history file: the timeline that
// ended, and the LSN at which it ended (the point a child timeline's WAL
// diverges from it).
type HistoryEntry struct {
	TLI    uint32
	EndLSN LSN
}

// ParseHistory reads a <tli>.history file and returns its entries newest
// timeline first, with a sentinel (targetTLI, max-LSN) appended so the
// target timeline itself always satisfies an "ends after this backup"
// check. Comment lines (leading '#') and blank lines are skipped; TLI must
// strictly increase line over line.
func ParseHistory(r io.Reader, targetTLI uint32) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	scanner := bufio.NewScanner(r)
	var lastTLI uint32
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, rmanerr.New(rmanerr.KindCorrupted, "malformed timeline history line %q", line)
		}
		tli64, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			return nil, rmanerr.Wrap(err, rmanerr.KindCorrupted, "malformed timeline in history line %q", line)
		}
		tli := uint32(tli64)
		if tli <= lastTLI {
			return nil, rmanerr.New(rmanerr.KindCorrupted, "timeline history entries must strictly increase (%d after %d)", tli, lastTLI)
		}
		lastTLI = tli
		lsn, err := ParseLSN(fields[1])
		if err != nil {
			return nil, err
		}
		entries = append(entries, HistoryEntry{TLI: tli, EndLSN: lsn})
	}
	if err := scanner.Err(); err != nil {
		return nil, rmanerr.Wrap(err, rmanerr.KindSystem, "reading timeline history")
	}
	// newest-first
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	entries = append(entries, HistoryEntry{TLI: targetTLI, EndLSN: LSN(math.MaxUint64)})
	return entries, nil
}

// SatisfiesTimeline reports whether a backup taken on tli with the given
// stop LSN lies on the ancestry of the target timeline described by
// entries (as produced by ParseHistory).
func SatisfiesTimeline(entries []HistoryEntry, tli uint32, stopLSN LSN) bool {
	for _, e := range entries {
		if e.TLI == tli && stopLSN < e.EndLSN {
			return true
		}
	}
	return false
}
