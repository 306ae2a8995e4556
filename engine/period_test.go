package engine_test

import (
	"errors"
	"testing"
	"time"

	"github.com/vecindario/condo-engine/engine"
)

func TestPeriod_CanonicalForm_RoundTrips(t *testing.T) {
	cases := []struct {
		in   string
		year int
		mon  time.Month
	}{
		{"2024-01", 2024, time.January},
		{"2024-12", 2024, time.December},
		{"1999-07", 1999, time.July},
	}
	for _, c := range cases {
		p, err := engine.ParsePeriod(c.in)
		if err != nil {
			t.Fatalf("ParsePeriod(%q): %v", c.in, err)
		}
		if p.Year != c.year || p.Month != c.mon {
			t.Errorf("ParsePeriod(%q) = %v", c.in, p)
		}
		if p.String() != c.in {
			t.Errorf("String() = %q, want %q", p.String(), c.in)
		}
	}
}

func TestPeriod_ParseRejectsMalformedInput(t *testing.T) {
	for _, in := range []string{"", "2024-13", "2024-00", "2024-1", "24-01", "2024/01", "2024-01-01"} {
		if _, err := engine.ParsePeriod(in); err == nil {
			t.Errorf("ParsePeriod(%q): expected error", in)
		}
	}
}

func TestPeriod_PreLedgerSentinel(t *testing.T) {
	// The sentinel must round-trip its token and never collide with a
	// real period.
	p, err := engine.ParsePeriod(engine.PreLedgerToken)
	if err != nil {
		t.Fatalf("ParsePeriod(sentinel): %v", err)
	}
	if !p.IsPreLedger() {
		t.Error("sentinel did not parse to PreLedger")
	}
	if p.String() != engine.PreLedgerToken {
		t.Errorf("sentinel String() = %q", p.String())
	}
	if engine.MustParsePeriod("2024-01").IsPreLedger() {
		t.Error("real period reported as PreLedger")
	}
}

func TestPeriod_NextPrevAcrossYearBoundary(t *testing.T) {
	dec := engine.NewPeriod(2023, time.December)
	jan := engine.NewPeriod(2024, time.January)

	if dec.Next() != jan {
		t.Errorf("2023-12.Next() = %v", dec.Next())
	}
	if jan.Prev() != dec {
		t.Errorf("2024-01.Prev() = %v", jan.Prev())
	}
}

func TestPeriod_CompareIsTotalOrder(t *testing.T) {
	a := engine.MustParsePeriod("2023-12")
	b := engine.MustParsePeriod("2024-01")
	c := engine.MustParsePeriod("2024-01")

	if a.Compare(b) != -1 || b.Compare(a) != 1 || b.Compare(c) != 0 {
		t.Error("Compare is not a total order over (year, month)")
	}
	if !a.Before(b) || !b.After(a) {
		t.Error("Before/After disagree with Compare")
	}
}

func TestRange_InclusiveAscending(t *testing.T) {
	from := engine.MustParsePeriod("2023-11")
	to := engine.MustParsePeriod("2024-02")

	got, err := engine.Range(from, to)
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	want := []string{"2023-11", "2023-12", "2024-01", "2024-02"}
	if len(got) != len(want) {
		t.Fatalf("Range returned %d periods, want %d", len(got), len(want))
	}
	for i, p := range got {
		if p.String() != want[i] {
			t.Errorf("Range[%d] = %s, want %s", i, p, want[i])
		}
	}
}

func TestRange_SinglePeriod(t *testing.T) {
	p := engine.MustParsePeriod("2024-06")
	got, err := engine.Range(p, p)
	if err != nil || len(got) != 1 || got[0] != p {
		t.Fatalf("Range(p, p) = %v, %v", got, err)
	}
}

func TestRange_InvertedFailsWithInvalidRange(t *testing.T) {
	_, err := engine.Range(engine.MustParsePeriod("2024-02"), engine.MustParsePeriod("2024-01"))
	if !errors.Is(err, engine.ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
	var rangeErr *engine.InvalidRangeError
	if !errors.As(err, &rangeErr) {
		t.Fatal("expected *InvalidRangeError")
	}
}

func TestRange_RejectsPreLedgerEnds(t *testing.T) {
	if _, err := engine.Range(engine.PreLedger, engine.MustParsePeriod("2024-01")); !errors.Is(err, engine.ErrInvalidRange) {
		t.Errorf("PreLedger start: got %v", err)
	}
}
