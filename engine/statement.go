/*
statement.go - Per-unit account statement

PURPOSE:
  Produces the running-balance statement for one unit over a period
  range: per period the obligatory charge, what was paid against it,
  a pagado/parcial/pendiente status, and the cumulative balance.

ALGORITHM:
  netPreviousDebt = max(0, previousDebt - retro amounts to PreLedger)
  balance         = netPreviousDebt - creditBalance
  per period, ascending:
    charge = obligatory charge, required fields only
    paid   = sum over required fields of min(fieldCharge, own amount)
           + advances targeting the period
           + retro amounts targeting the period
    balance += charge - paid

  Own-period amounts are clamped per field against that field's own
  charge; advances and retros are applied as earmarked. Optional-field
  payments never move charge, status or balance - they only show in the
  row's Collected total.

DETERMINISM:
  A statement is recomputed from its seed on every call. This is
  intentional: it guarantees the statement is always consistent with
  the current record set, not with a possibly-stale cache.

SEE ALSO:
  - allocation.go: Supplies the normalized inputs
  - catalog.go:    Supplies per-field charges
*/
package engine

import "github.com/shopspring/decimal"

// =============================================================================
// OUTPUT TYPES
// =============================================================================

// PaymentStatus classifies a statement row.
type PaymentStatus string

const (
	StatusPagado    PaymentStatus = "pagado"
	StatusParcial   PaymentStatus = "parcial"
	StatusPendiente PaymentStatus = "pendiente"
)

// StatementRow is one period of a unit's statement. Balance is the
// cumulative balance after the row; negative means credit.
type StatementRow struct {
	Period    Period
	Charge    decimal.Decimal
	Paid      decimal.Decimal
	Collected decimal.Decimal // gross captured, incl. optional fields
	Status    PaymentStatus
	Balance   decimal.Decimal
}

// Statement is the full accrual view for one unit over a range.
type Statement struct {
	UnitID          string
	From, To        Period
	NetPreviousDebt decimal.Decimal
	CreditBalance   decimal.Decimal
	Rows            []StatementRow
	FinalBalance    decimal.Decimal
}

// =============================================================================
// CALCULATOR
// =============================================================================

// Calculator folds catalog charges and normalized allocations into
// statements. Records must be the tenant's full record set: redirects
// into the unit can come from any other unit's captures.
type Calculator struct {
	Catalog Catalog
	Records []PaymentRecord
}

// Statement computes the running balance for unit over [from, to].
func (c *Calculator) Statement(unit Unit, from, to Period) (*Statement, error) {
	periods, err := Range(from, to)
	if err != nil {
		return nil, err
	}

	resolver := Resolver{Catalog: c.Catalog}
	var allocs []*Allocation
	for _, rec := range c.Records {
		if !rec.Touches(unit.ID) {
			continue
		}
		alloc, err := resolver.Resolve(rec, unit.ID)
		if err != nil {
			return nil, err
		}
		allocs = append(allocs, alloc)
	}

	// Seed: pre-ledger debt net of everything explicitly paid against it.
	if unit.PreviousDebt.IsNegative() {
		return nil, &ArithmeticInvariantError{Context: "previous debt", Value: unit.PreviousDebt}
	}
	if unit.CreditBalance.IsNegative() {
		return nil, &ArithmeticInvariantError{Context: "credit balance", Value: unit.CreditBalance}
	}
	preLedgerPaid := decimal.Zero
	for _, a := range allocs {
		preLedgerPaid = preLedgerPaid.Add(a.RetroTotal(PreLedger))
	}
	netPreviousDebt := unit.PreviousDebt.Sub(preLedgerPaid)
	if netPreviousDebt.IsNegative() {
		netPreviousDebt = decimal.Zero
	}
	balance := netPreviousDebt.Sub(unit.CreditBalance)

	st := &Statement{
		UnitID:          unit.ID,
		From:            from,
		To:              to,
		NetPreviousDebt: netPreviousDebt,
		CreditBalance:   unit.CreditBalance,
		Rows:            make([]StatementRow, 0, len(periods)),
	}

	for _, p := range periods {
		charges, err := c.Catalog.RequiredCharges(unit, p)
		if err != nil {
			return nil, err
		}
		charge := decimal.Zero
		for _, amt := range charges {
			if amt.IsNegative() {
				return nil, &ArithmeticInvariantError{Context: "charge at " + p.String(), Value: amt}
			}
			charge = charge.Add(amt)
		}

		paid := decimal.Zero
		collected := decimal.Zero
		for _, a := range allocs {
			// Own-period contribution, clamped per field to that
			// field's own charge. Only required fields count.
			if a.RecordPeriod == p {
				collected = collected.Add(a.CapturedTotal)
				for fieldKey, own := range a.OwnPeriodByField {
					fieldCharge, required := charges[fieldKey]
					if !required {
						continue
					}
					paid = paid.Add(decimal.Min(fieldCharge, own))
				}
			}
			// Advances from earlier records (or redirects) landing here.
			if p.After(a.RecordPeriod) {
				paid = paid.Add(a.AdvanceTotal(p))
			}
			// Retro amounts from later records settling this period.
			if p.Before(a.RecordPeriod) {
				paid = paid.Add(a.RetroTotal(p))
			}
		}

		status := StatusPendiente
		switch {
		case paid.GreaterThanOrEqual(charge):
			status = StatusPagado
		case paid.IsPositive():
			status = StatusParcial
		}

		balance = balance.Add(charge.Sub(paid))
		st.Rows = append(st.Rows, StatementRow{
			Period:    p,
			Charge:    charge,
			Paid:      paid,
			Collected: collected,
			Status:    status,
			Balance:   balance,
		})
	}

	st.FinalBalance = balance
	return st, nil
}
