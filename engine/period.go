/*
period.go - Billing period value type

PURPOSE:
  A Period is a calendar month key (year, month) - the time axis of the
  ledger. Every charge, payment and lock is keyed by a Period.

CANONICAL FORM:
  "YYYY-MM" with a zero-padded month. This is the only external
  representation: it is what the API accepts, what the store persists,
  and it sorts lexicographically in period order.

SENTINEL:
  PreLedger is the reserved "before the ledger existed" period used by
  retroactive allocations that retire pre-system debt. On the wire it is
  the token "__prevDebt", which can never collide with a real "YYYY-MM".

SEE ALSO:
  - allocation.go: Advance/retro targets are Periods
  - statement.go: Statements iterate a Period range
*/
package engine

import (
	"fmt"
	"regexp"
	"time"
)

// =============================================================================
// PERIOD - (year, month) key, totally ordered
// =============================================================================

// Period identifies one billing month. The zero value is PreLedger, the
// sentinel for pre-system debt; all real periods have Month in 1..12.
type Period struct {
	Year  int
	Month time.Month
}

// PreLedger is the sentinel period for debt/credit predating the ledger.
var PreLedger = Period{}

// PreLedgerToken is the wire representation of PreLedger.
const PreLedgerToken = "__prevDebt"

var periodRe = regexp.MustCompile(`^(\d{4})-(\d{2})$`)

// NewPeriod builds a period for the given year and month.
func NewPeriod(year int, month time.Month) Period {
	return Period{Year: year, Month: month}
}

// ParsePeriod parses the canonical "YYYY-MM" form, or the PreLedger token.
func ParsePeriod(s string) (Period, error) {
	if s == PreLedgerToken {
		return PreLedger, nil
	}
	m := periodRe.FindStringSubmatch(s)
	if m == nil {
		return Period{}, fmt.Errorf("parse period %q: want YYYY-MM", s)
	}
	var year, month int
	fmt.Sscanf(m[1], "%d", &year)
	fmt.Sscanf(m[2], "%d", &month)
	if month < 1 || month > 12 {
		return Period{}, fmt.Errorf("parse period %q: month out of range", s)
	}
	return Period{Year: year, Month: time.Month(month)}, nil
}

// MustParsePeriod is ParsePeriod for literals in tests and fixtures.
func MustParsePeriod(s string) Period {
	p, err := ParsePeriod(s)
	if err != nil {
		panic(err)
	}
	return p
}

// IsPreLedger reports whether p is the pre-system sentinel.
func (p Period) IsPreLedger() bool { return p == PreLedger }

// Next returns the following month.
func (p Period) Next() Period {
	if p.Month == time.December {
		return Period{Year: p.Year + 1, Month: time.January}
	}
	return Period{Year: p.Year, Month: p.Month + 1}
}

// Prev returns the preceding month.
func (p Period) Prev() Period {
	if p.Month == time.January {
		return Period{Year: p.Year - 1, Month: time.December}
	}
	return Period{Year: p.Year, Month: p.Month - 1}
}

// Compare returns -1, 0 or +1. PreLedger sorts before every real period.
func (p Period) Compare(o Period) int {
	switch {
	case p.Year != o.Year:
		if p.Year < o.Year {
			return -1
		}
		return 1
	case p.Month != o.Month:
		if p.Month < o.Month {
			return -1
		}
		return 1
	default:
		return 0
	}
}

func (p Period) Before(o Period) bool { return p.Compare(o) < 0 }
func (p Period) After(o Period) bool  { return p.Compare(o) > 0 }

// String returns the canonical "YYYY-MM" form, or the PreLedger token.
func (p Period) String() string {
	if p.IsPreLedger() {
		return PreLedgerToken
	}
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// MarshalText implements encoding.TextMarshaler so Periods work as JSON
// map keys in their canonical form.
func (p Period) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Period) UnmarshalText(b []byte) error {
	parsed, err := ParsePeriod(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// =============================================================================
// RANGE - Ascending, inclusive enumeration
// =============================================================================

// Range returns every period from 'from' to 'to', ascending and inclusive
// of both ends. Fails with an InvalidRangeError when from > to or when
// either end is the PreLedger sentinel.
func Range(from, to Period) ([]Period, error) {
	if from.IsPreLedger() || to.IsPreLedger() || from.After(to) {
		return nil, &InvalidRangeError{From: from, To: to}
	}
	var out []Period
	for p := from; !p.After(to); p = p.Next() {
		out = append(out, p)
	}
	return out, nil
}
