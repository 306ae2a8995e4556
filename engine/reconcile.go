/*
reconcile.go - Tenant-wide treasury reconciliation

PURPOSE:
  Splits what came in and what went out for a period into bank-reconciled
  and pending-in-transit buckets, folding in income that could not be
  attributed to any unit. This is a CASH view over captured totals - it
  intentionally diverges from the per-unit accrual view in statement.go,
  and the two must never be conflated in a report.

SUMS:
  CollectedReconciled / CollectedPending:
    Gross captured payment totals for the period, split by the record's
    BankReconciled flag. Unrecognized income counts on the reconciled
    side. No clamping: this is money in hand, not debt retired.
  ExpenseReconciled / ExpensePending:
    Expense records for the period, split the same way.
  NetBalance = collected (both buckets) - expenses (both buckets).

SEE ALSO:
  - statement.go: The accrual counterpart
*/
package engine

import "github.com/shopspring/decimal"

// ReconciliationReport is the treasury view of one period.
type ReconciliationReport struct {
	Period              Period
	ObligatoryTotal     decimal.Decimal
	CollectedReconciled decimal.Decimal
	CollectedPending    decimal.Decimal
	ExpenseReconciled   decimal.Decimal
	ExpensePending      decimal.Decimal
	NetBalance          decimal.Decimal
}

// Aggregator computes treasury reports across all of a tenant's units.
type Aggregator struct {
	Catalog      Catalog
	Units        []Unit
	Records      []PaymentRecord
	Expenses     []ExpenseRecord
	Unrecognized []UnrecognizedIncome
}

// Reconcile produces the treasury report for one period.
func (a *Aggregator) Reconcile(p Period) (*ReconciliationReport, error) {
	rep := &ReconciliationReport{
		Period:              p,
		ObligatoryTotal:     decimal.Zero,
		CollectedReconciled: decimal.Zero,
		CollectedPending:    decimal.Zero,
		ExpenseReconciled:   decimal.Zero,
		ExpensePending:      decimal.Zero,
	}

	for _, u := range a.Units {
		charge, err := a.Catalog.ObligatoryCharge(u, p)
		if err != nil {
			return nil, err
		}
		rep.ObligatoryTotal = rep.ObligatoryTotal.Add(charge)
	}

	for _, rec := range a.Records {
		if rec.Period != p {
			continue
		}
		captured := decimal.Zero
		for _, fp := range rec.Fields {
			if fp.ReceivedAmount.IsNegative() {
				return nil, &ArithmeticInvariantError{Context: "received amount for " + fp.FieldKey, Value: fp.ReceivedAmount}
			}
			captured = captured.Add(fp.ReceivedAmount)
		}
		if rec.BankReconciled {
			rep.CollectedReconciled = rep.CollectedReconciled.Add(captured)
		} else {
			rep.CollectedPending = rep.CollectedPending.Add(captured)
		}
	}

	// Income with no owning unit still counts as money in hand.
	for _, inc := range a.Unrecognized {
		if inc.Period != p {
			continue
		}
		if inc.Amount.IsNegative() {
			return nil, &ArithmeticInvariantError{Context: "unrecognized income", Value: inc.Amount}
		}
		rep.CollectedReconciled = rep.CollectedReconciled.Add(inc.Amount)
	}

	for _, exp := range a.Expenses {
		if exp.Period != p {
			continue
		}
		if exp.Amount.IsNegative() {
			return nil, &ArithmeticInvariantError{Context: "expense " + exp.FieldID, Value: exp.Amount}
		}
		if exp.BankReconciled {
			rep.ExpenseReconciled = rep.ExpenseReconciled.Add(exp.Amount)
		} else {
			rep.ExpensePending = rep.ExpensePending.Add(exp.Amount)
		}
	}

	rep.NetBalance = rep.CollectedReconciled.Add(rep.CollectedPending).
		Sub(rep.ExpenseReconciled).Sub(rep.ExpensePending)
	return rep, nil
}

// ReconcileRange produces one report per period in [from, to], ascending.
func (a *Aggregator) ReconcileRange(from, to Period) ([]*ReconciliationReport, error) {
	periods, err := Range(from, to)
	if err != nil {
		return nil, err
	}
	reports := make([]*ReconciliationReport, 0, len(periods))
	for _, p := range periods {
		rep, err := a.Reconcile(p)
		if err != nil {
			return nil, err
		}
		reports = append(reports, rep)
	}
	return reports, nil
}
