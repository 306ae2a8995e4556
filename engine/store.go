/*
store.go - Persistence interface and the engine input snapshot

PURPOSE:
  Defines the boundary between the pure engine and whatever persists
  records. The engine is handed a causally-consistent Snapshot and
  computes over it; the store owns write serialization.

SNAPSHOT CONTRACT:
  A Snapshot is an immutable, tenant-scoped view of every record the
  engine needs. Statements for different units (or different tenants)
  share no mutable state and may be computed fully in parallel.

WRITE CONTRACT:
  SavePayment replaces the whole field-payment set of (unit, period)
  atomically; at most one record exists per key. Captures must be
  validated with Resolver.ResolveCapture BEFORE saving - the store does
  not re-run engine validation. Lock transitions go through UpdateLock,
  which the store applies under a per-(tenant, period) mutual-exclusion
  section so "request reopen" cannot race "approve/reject".

IMPLEMENTATIONS:
  - store/sqlite:     Production SQLite store
  - engine/store:     In-memory store for tests and dev

SEE ALSO:
  - statement.go, reconcile.go: Consume Snapshots
  - lock.go: The transition functions passed to UpdateLock
*/
package engine

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SNAPSHOT - Immutable engine input
// =============================================================================

// Snapshot is everything the engine needs for one tenant.
type Snapshot struct {
	Tenant       string
	Catalog      Catalog
	Units        []Unit
	Records      []PaymentRecord
	Expenses     []ExpenseRecord
	Unrecognized []UnrecognizedIncome
	Locks        LockTable
}

// Unit returns the unit with the given id.
func (s *Snapshot) Unit(id string) (Unit, bool) {
	for _, u := range s.Units {
		if u.ID == id {
			return u, true
		}
	}
	return Unit{}, false
}

// Resolver returns a resolver over the snapshot's catalog and locks.
func (s *Snapshot) Resolver() Resolver {
	return Resolver{Catalog: s.Catalog, Locks: s.Locks}
}

// Calculator returns a statement calculator over the snapshot.
func (s *Snapshot) Calculator() *Calculator {
	return &Calculator{Catalog: s.Catalog, Records: s.Records}
}

// Aggregator returns a reconciliation aggregator over the snapshot.
func (s *Snapshot) Aggregator() *Aggregator {
	return &Aggregator{
		Catalog:      s.Catalog,
		Units:        s.Units,
		Records:      s.Records,
		Expenses:     s.Expenses,
		Unrecognized: s.Unrecognized,
	}
}

// =============================================================================
// RECORD STORE
// =============================================================================

// RecordStore persists the tenant's records and serves snapshots.
type RecordStore interface {
	// Snapshot returns a causally-consistent view of the tenant.
	Snapshot(ctx context.Context, tenant string) (*Snapshot, error)

	// SaveUnit creates or updates a unit.
	SaveUnit(ctx context.Context, tenant string, u Unit) error

	// SaveChargeField creates or updates a charge field.
	SaveChargeField(ctx context.Context, tenant string, f ChargeField) error

	// SetBaseFee sets the tenant's base maintenance fee.
	SetBaseFee(ctx context.Context, tenant string, fee decimal.Decimal) error

	// SavePayment replaces the record for (rec.UnitID, rec.Period)
	// atomically. The caller must have validated the capture first.
	SavePayment(ctx context.Context, tenant string, rec PaymentRecord) error

	// SaveExpense appends an expense record.
	SaveExpense(ctx context.Context, tenant string, exp ExpenseRecord) error

	// SaveUnrecognized appends an unrecognized income record.
	SaveUnrecognized(ctx context.Context, tenant string, inc UnrecognizedIncome) error

	// UpdateLock loads the lock for (tenant, p), applies fn, and persists
	// the result, all under a per-(tenant, period) exclusive section.
	UpdateLock(ctx context.Context, tenant string, p Period, fn func(PeriodLock) (PeriodLock, error)) (PeriodLock, error)
}
