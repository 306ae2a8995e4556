/*
allocation.go - Payment normalization

PURPOSE:
  Splits one raw PaymentRecord into the amounts that actually move each
  ledger: own-period amounts, advances to named future periods, retro
  amounts to named past periods (or pre-system debt), and redirections
  to another unit. Everything downstream - statements and reconciliation
  reports - consumes Allocations, never raw records.

GROSS CARVE-OUT:
  A FieldPayment's ReceivedAmount is the gross captured figure. Advance
  targets and adeudo earmarks are carved OUT of it; whatever remains
  stays attributed to the record's own period. A record whose earmarks
  exceed the gross amount is rejected.

REDIRECTS:
  A redirected FieldPayment (TargetUnit set) belongs entirely to the
  target unit: its own-period remainder, its advances and its adeudo
  carve-outs all land on the target unit's ledger. The resolver runs
  once per affected unit and filters accordingly.

VALIDATION:
  Resolve validates the whole record regardless of which unit it is
  resolving for, so a malformed record is rejected identically from
  every angle. ResolveCapture additionally gates on the period lock.

SEE ALSO:
  - statement.go: Folds allocations into per-period rows
  - lock.go:      The capture gate
*/
package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ALLOCATION - Normalized view of one record, for one unit
// =============================================================================

// Redirect is one cross-unit redirection carried by a record.
type Redirect struct {
	TargetUnit string
	FieldKey   string
	Amount     decimal.Decimal
}

// Allocation is the normalized contribution of one PaymentRecord to one
// unit's ledger. Amounts here are unclamped; the ledger calculator clamps
// own-period amounts against that period's per-field charge.
type Allocation struct {
	UnitID       string // unit this allocation is for
	RecordUnit   string // unit the record was captured on
	RecordPeriod Period

	// Own-period amounts by field key (gross minus carve-outs).
	OwnPeriodByField map[string]decimal.Decimal

	// Advances earmarked for future periods: period -> field -> amount.
	AdvancesByPeriod map[Period]map[string]decimal.Decimal

	// Retro amounts earmarked for past periods or PreLedger.
	RetroByTarget map[Period]map[string]decimal.Decimal

	// Redirections carried by the record (populated when resolving for
	// the capturing unit, where they explain the missing funds).
	Redirects []Redirect

	// CapturedTotal is the gross captured amount flowing to this unit,
	// before any clamping. Feeds the cash-basis reconciliation view.
	CapturedTotal decimal.Decimal
}

// RetroTotal sums every retro amount targeting p.
func (a Allocation) RetroTotal(p Period) decimal.Decimal {
	total := decimal.Zero
	for _, amt := range a.RetroByTarget[p] {
		total = total.Add(amt)
	}
	return total
}

// AdvanceTotal sums every advance amount targeting p.
func (a Allocation) AdvanceTotal(p Period) decimal.Decimal {
	total := decimal.Zero
	for _, amt := range a.AdvancesByPeriod[p] {
		total = total.Add(amt)
	}
	return total
}

// =============================================================================
// RESOLVER
// =============================================================================

// Resolver normalizes payment records against a catalog snapshot.
type Resolver struct {
	Catalog Catalog

	// Locks gates ResolveCapture. Nil means no periods are locked.
	Locks LockTable
}

// Resolve normalizes rec from the point of view of forUnit. Funds whose
// effective target is a different unit are validated but contribute
// nothing to the returned allocation.
func (r Resolver) Resolve(rec PaymentRecord, forUnit string) (*Allocation, error) {
	alloc := &Allocation{
		UnitID:           forUnit,
		RecordUnit:       rec.UnitID,
		RecordPeriod:     rec.Period,
		OwnPeriodByField: make(map[string]decimal.Decimal),
		AdvancesByPeriod: make(map[Period]map[string]decimal.Decimal),
		RetroByTarget:    make(map[Period]map[string]decimal.Decimal),
		CapturedTotal:    decimal.Zero,
	}

	if err := r.validateAdeudoTargets(rec); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	consumedAdeudo := make(map[string]bool)

	for _, fp := range rec.Fields {
		if seen[fp.FieldKey] {
			return nil, &InvalidAllocationError{UnitID: rec.UnitID, Period: rec.Period,
				Reason: fmt.Sprintf("duplicate field payment %q", fp.FieldKey)}
		}
		seen[fp.FieldKey] = true

		crossUnit, known := r.Catalog.fieldSpec(fp.FieldKey)
		if !known {
			return nil, &UnknownFieldError{FieldKey: fp.FieldKey}
		}
		if fp.ReceivedAmount.IsNegative() {
			return nil, &ArithmeticInvariantError{Context: "received amount for " + fp.FieldKey, Value: fp.ReceivedAmount}
		}

		effTarget := rec.UnitID
		if fp.TargetUnit != "" {
			if !crossUnit {
				return nil, &InvalidAllocationError{UnitID: rec.UnitID, Period: rec.Period,
					Reason: fmt.Sprintf("field %q does not allow cross-unit payments", fp.FieldKey)}
			}
			if fp.TargetUnit == rec.UnitID {
				return nil, &InvalidAllocationError{UnitID: rec.UnitID, Period: rec.Period,
					Reason: "redirect targets the capturing unit"}
			}
			effTarget = fp.TargetUnit
		}

		advanceSum := decimal.Zero
		for target, amt := range fp.AdvanceTargets {
			if !target.After(rec.Period) {
				return nil, &InvalidAllocationError{UnitID: rec.UnitID, Period: rec.Period,
					Reason: fmt.Sprintf("advance target %s is not strictly future", target)}
			}
			if amt.IsNegative() {
				return nil, &ArithmeticInvariantError{Context: "advance to " + target.String(), Value: amt}
			}
			advanceSum = advanceSum.Add(amt)
		}

		adeudoSum := decimal.Zero
		for _, byField := range rec.Adeudos {
			if amt, ok := byField[fp.FieldKey]; ok {
				if amt.IsNegative() {
					return nil, &ArithmeticInvariantError{Context: "adeudo for " + fp.FieldKey, Value: amt}
				}
				adeudoSum = adeudoSum.Add(amt)
			}
		}
		consumedAdeudo[fp.FieldKey] = true

		own := fp.ReceivedAmount.Sub(advanceSum).Sub(adeudoSum)
		if own.IsNegative() {
			return nil, &InvalidAllocationError{UnitID: rec.UnitID, Period: rec.Period,
				Reason: fmt.Sprintf("earmarks for %q exceed the captured amount", fp.FieldKey)}
		}

		if fp.TargetUnit != "" && forUnit == rec.UnitID {
			alloc.Redirects = append(alloc.Redirects, Redirect{
				TargetUnit: fp.TargetUnit,
				FieldKey:   fp.FieldKey,
				Amount:     fp.ReceivedAmount,
			})
		}

		if effTarget != forUnit {
			continue
		}

		alloc.CapturedTotal = alloc.CapturedTotal.Add(fp.ReceivedAmount)
		alloc.OwnPeriodByField[fp.FieldKey] = alloc.OwnPeriodByField[fp.FieldKey].Add(own)
		for target, amt := range fp.AdvanceTargets {
			addNested(alloc.AdvancesByPeriod, target, fp.FieldKey, amt)
		}
		for target, byField := range rec.Adeudos {
			if amt, ok := byField[fp.FieldKey]; ok {
				addNested(alloc.RetroByTarget, target, fp.FieldKey, amt)
			}
		}
	}

	// Every adeudo earmark must be funded by a field payment.
	for target, byField := range rec.Adeudos {
		for fieldKey := range byField {
			if !consumedAdeudo[fieldKey] {
				return nil, &InvalidAllocationError{UnitID: rec.UnitID, Period: rec.Period,
					Reason: fmt.Sprintf("adeudo to %s references unpaid field %q", target, fieldKey)}
			}
		}
	}

	return alloc, nil
}

// ResolveCapture validates a record on the write path: the capture is
// gated on the period lock, then resolved for the capturing unit.
func (r Resolver) ResolveCapture(rec PaymentRecord) (*Allocation, error) {
	if err := r.Locks.Gate(rec.Period); err != nil {
		return nil, err
	}
	return r.Resolve(rec, rec.UnitID)
}

// validateAdeudoTargets checks that every retro target is strictly before
// the record's period or the PreLedger sentinel.
func (r Resolver) validateAdeudoTargets(rec PaymentRecord) error {
	for target := range rec.Adeudos {
		if target.IsPreLedger() {
			continue
		}
		if !target.Before(rec.Period) {
			return &InvalidAllocationError{UnitID: rec.UnitID, Period: rec.Period,
				Reason: fmt.Sprintf("retro target %s is not strictly past", target)}
		}
	}
	return nil
}

func addNested(m map[Period]map[string]decimal.Decimal, p Period, field string, amt decimal.Decimal) {
	if m[p] == nil {
		m[p] = make(map[string]decimal.Decimal)
	}
	m[p][field] = m[p][field].Add(amt)
}
