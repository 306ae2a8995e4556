/*
Package engine is the condominium ledger & reconciliation engine.

PURPOSE:
  Turns a snapshot of raw payment/expense/debt records into an accurate,
  auditable running balance per unit, and into tenant-wide treasury
  reports. Handles partial payments, advances that pre-pay future months,
  retroactive payments that settle old debt (or pre-system debt), and
  payments redirected to a different unit than the one that captured them.

KEY CONCEPTS IN THIS FILE (types.go):
  - Unit: A condominium unit with pre-ledger debt/credit
  - ChargeField: A configurable collection or expense concept
  - PaymentRecord / FieldPayment: One capture per (unit, period)
  - AdeudoAllocation: Funds earmarked to retire older debt
  - ExpenseRecord / UnrecognizedIncome: Tenant-wide cash movements

DESIGN PRINCIPLES:
  1. Purity: Every computation is a pure function over an immutable
     snapshot. The engine performs no I/O and holds no state.
  2. Precision: Uses decimal.Decimal to avoid floating-point drift.
  3. Determinism: A statement is always recomputed from its seed, never
     incrementally patched, so it is always consistent with the records.
  4. Atomicity: An operation fully succeeds or fails with one error.

USAGE:
  snap := store.Snapshot(ctx, tenant)
  calc := snap.Calculator()
  st, err := calc.Statement(unit, from, to)

SEE ALSO:
  - catalog.go:    Obligatory charge resolution
  - allocation.go: Payment normalization
  - statement.go:  Per-unit running balance
  - reconcile.go:  Treasury cash view
  - lock.go:       Period lock state machine
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// UNIT
// =============================================================================

// Occupancy says who answers for a unit's fees.
type Occupancy string

const (
	OccupancyOwner  Occupancy = "owner"
	OccupancyTenant Occupancy = "tenant"
)

// Unit is one condominium unit. PreviousDebt and CreditBalance seed the
// ledger: they carry the balance the unit had before the system tracked it.
type Unit struct {
	ID          string
	Code        string
	Name        string
	Occupancy   Occupancy
	Responsible string

	// AdminExempt drops the obligatory charge to zero while the unit
	// holds an active administrative role (see Catalog.Roles).
	AdminExempt bool

	PreviousDebt  decimal.Decimal // pre-ledger debt, >= 0
	CreditBalance decimal.Decimal // pre-ledger credit, >= 0
}

// =============================================================================
// CHARGE FIELD
// =============================================================================

// FieldKind discriminates collection concepts from expense concepts.
type FieldKind string

const (
	FieldCollection FieldKind = "collection"
	FieldExpense    FieldKind = "expense"
)

// FieldMaintenance is the literal field key for the base maintenance fee.
// It is not a ChargeField: every tenant has it implicitly, at Catalog.BaseFee.
const FieldMaintenance = "maintenance"

// ChargeField is a tenant-configured charge concept. Required, enabled
// collection fields whose activity window covers a period contribute
// their DefaultAmount to that period's obligatory charge.
type ChargeField struct {
	ID    string
	Label string
	Kind  FieldKind

	// Collection-only attributes.
	Required         bool
	DefaultAmount    decimal.Decimal
	CrossUnitAllowed bool

	// Activity window: the field is active for DurationPeriods months
	// starting at ActiveFrom. DurationPeriods 0 means unbounded; a zero
	// ActiveFrom means active since always.
	ActiveFrom      Period
	DurationPeriods int

	Enabled bool
}

// ActiveAt reports whether the field's activity window covers p.
func (f ChargeField) ActiveAt(p Period) bool {
	if !f.Enabled {
		return false
	}
	if f.ActiveFrom.IsPreLedger() {
		return true
	}
	if p.Before(f.ActiveFrom) {
		return false
	}
	if f.DurationPeriods == 0 {
		return true
	}
	end := f.ActiveFrom
	for i := 1; i < f.DurationPeriods; i++ {
		end = end.Next()
	}
	return !p.After(end)
}

// =============================================================================
// PAYMENT RECORD
// =============================================================================

// FieldPayment is the captured amount against one charge field.
// ReceivedAmount is the GROSS captured figure: amounts pushed into
// AdvanceTargets and into the record's AdeudoAllocation are carved out of
// it, and the remainder stays on the record's own period. It is never
// clamped in storage, only at consumption time by the ledger calculator.
type FieldPayment struct {
	FieldKey       string
	ReceivedAmount decimal.Decimal

	// TargetUnit redirects this payment to another unit's ledger. Legal
	// only when the field allows it and the target differs from the
	// capturing unit. Redirected funds never count toward the capturing
	// unit's ledger.
	TargetUnit string

	// AdvanceTargets earmarks part of ReceivedAmount for future periods.
	// Every key must be strictly after the record's own period.
	AdvanceTargets map[Period]decimal.Decimal
}

// AdeudoAllocation earmarks funds from a payment to retire older debt:
// target period (strictly past, or PreLedger) -> field key -> amount.
// Each amount is carved out of the field payment with the same field key.
type AdeudoAllocation map[Period]map[string]decimal.Decimal

// PaymentRecord is one capture. At most one exists per (unit, period);
// an edit replaces the whole field-payment set atomically.
type PaymentRecord struct {
	UnitID         string
	Period         Period
	PaymentType    string
	Date           time.Time
	Notes          string
	BankReconciled bool
	Fields         []FieldPayment
	Adeudos        AdeudoAllocation
}

// Touches reports whether any part of the record flows to unitID, either
// because the record was captured there or via a redirect into it.
func (r PaymentRecord) Touches(unitID string) bool {
	if r.UnitID == unitID {
		return true
	}
	for _, fp := range r.Fields {
		if fp.TargetUnit == unitID {
			return true
		}
	}
	return false
}

// =============================================================================
// TENANT-WIDE RECORDS
// =============================================================================

// ExpenseRecord is a tenant expense for a period, independent of units.
type ExpenseRecord struct {
	Period         Period
	FieldID        string
	Amount         decimal.Decimal
	PaymentType    string
	BankReconciled bool
	ProviderName   string
	ProviderRef    string
}

// UnrecognizedIncome is income not attributable to any unit.
type UnrecognizedIncome struct {
	Period         Period
	Amount         decimal.Decimal
	Concept        string
	BankReconciled bool
}
