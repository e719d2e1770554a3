package catalog

import (
	"strings"
	"time"

	"github.com/ossc-db/pg_rman/internal/rmanerr"
)

// ParseDATE parses the variable-precision timestamp-prefix grammar the
// show/validate/delete verbs accept: YYYY, YYYYMM, YYYYMMDD, YYYYMMDDHH,
// YYYYMMDDHHMI or YYYYMMDDHHMISS, with any non-digit separators stripped
// first (so "2026-05-01 10:00:00" and "20260501100000" parse the same).
// It returns the token's start instant and the duration of the unit it
// names, so callers can build an inclusive half-open range from it.
func ParseDATE(s string) (start time.Time, unit time.Duration, err error) {
	digits := stripSeparators(s)
	layouts := []struct {
		width int
		unit  time.Duration
	}{
		{4, 0},  // YYYY, unit filled in below (1 year, not fixed-duration)
		{6, 0},  // YYYYMM, 1 month
		{8, 24 * time.Hour},
		{10, time.Hour},
		{12, time.Minute},
		{14, time.Second},
	}
	for _, l := range layouts {
		if len(digits) == l.width {
			t, perr := parseDigits(digits)
			if perr != nil {
				return time.Time{}, 0, perr
			}
			if l.width == 4 {
				return t, t.AddDate(1, 0, 0).Sub(t), nil
			}
			if l.width == 6 {
				return t, t.AddDate(0, 1, 0).Sub(t), nil
			}
			return t, l.unit, nil
		}
	}
	return time.Time{}, 0, rmanerr.New(rmanerr.KindArgs, "malformed DATE %q", s)
}

// ParseDATERange parses one or two DATE tokens into an inclusive-start,
// exclusive-end range: two tokens form [first.start, second.start+unit);
// one token expands to [t, t+1 unit).
func ParseDATERange(tokens []string) (TimeRange, error) {
	if len(tokens) == 0 || len(tokens) > 2 {
		return TimeRange{}, rmanerr.New(rmanerr.KindArgs, "DATE expects one or two tokens, got %d", len(tokens))
	}
	start, unit, err := ParseDATE(tokens[0])
	if err != nil {
		return TimeRange{}, err
	}
	if len(tokens) == 1 {
		return TimeRange{From: start, To: start.Add(unit)}, nil
	}
	end, endUnit, err := ParseDATE(tokens[1])
	if err != nil {
		return TimeRange{}, err
	}
	return TimeRange{From: start, To: end.Add(endUnit)}, nil
}

func stripSeparators(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func parseDigits(digits string) (time.Time, error) {
	padded := digits + "20010101000000"[len(digits):]
	t, err := time.ParseInLocation("20060102150405", padded, time.UTC)
	if err != nil {
		return time.Time{}, rmanerr.Wrap(err, rmanerr.KindArgs, "malformed DATE digits %q", digits)
	}
	return t, nil
}
