/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All engine error types in one place. Every public operation either
  fully succeeds or fails with exactly one of these; the engine never
  returns a partial result and holds no state that could be corrupted.

ERROR CATEGORIES:
  1. Range errors       - Malformed period ranges
  2. Allocation errors  - Malformed advance/retro/redirect targets
  3. Lock errors        - Writes against closed periods
  4. Catalog errors     - Unknown charge fields
  5. Invariant errors   - Negative amounts (upstream data corruption)

USAGE:
  The calling layer classifies with errors.Is:

    if errors.Is(err, engine.ErrPeriodLocked) {
        // 409 Conflict
    }

SEE ALSO:
  - allocation.go: Produces allocation and lock errors
  - api/handlers.go: Maps these to HTTP status codes
*/
package engine

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidRange is returned when a period range has from after to.
	ErrInvalidRange = errors.New("invalid period range")

	// ErrInvalidAllocation is returned when a payment's advance, retro or
	// redirect targets are malformed.
	ErrInvalidAllocation = errors.New("invalid allocation")

	// ErrPeriodLocked is returned when a capture targets a period that is
	// closed or has a pending reopen request.
	ErrPeriodLocked = errors.New("period locked")

	// ErrUnknownField is returned when a field payment references a charge
	// field that is not in the supplied catalog.
	ErrUnknownField = errors.New("unknown charge field")

	// ErrArithmeticInvariant indicates a negative charge or payment amount.
	// This means upstream data corruption and is always fatal to the call.
	ErrArithmeticInvariant = errors.New("arithmetic invariant violated")

	// ErrInvalidTransition is returned for an illegal period-lock transition.
	ErrInvalidTransition = errors.New("invalid lock transition")

	// ErrUnitNotFound is returned when a referenced unit is not in the snapshot.
	ErrUnitNotFound = errors.New("unit not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidRangeError reports a range whose start is after its end.
type InvalidRangeError struct {
	From Period
	To   Period
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid period range: %s > %s", e.From, e.To)
}

func (e *InvalidRangeError) Unwrap() error { return ErrInvalidRange }

// InvalidAllocationError reports a malformed advance/retro/redirect on a
// payment record.
type InvalidAllocationError struct {
	UnitID string
	Period Period
	Reason string
}

func (e *InvalidAllocationError) Error() string {
	return fmt.Sprintf("invalid allocation on %s/%s: %s", e.UnitID, e.Period, e.Reason)
}

func (e *InvalidAllocationError) Unwrap() error { return ErrInvalidAllocation }

// PeriodLockedError reports a write attempted against a locked period.
type PeriodLockedError struct {
	Period Period
	State  LockState
}

func (e *PeriodLockedError) Error() string {
	return fmt.Sprintf("period %s is %s: captures rejected", e.Period, e.State)
}

func (e *PeriodLockedError) Unwrap() error { return ErrPeriodLocked }

// UnknownFieldError reports a field payment against a field missing from
// the catalog snapshot.
type UnknownFieldError struct {
	FieldKey string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown charge field %q", e.FieldKey)
}

func (e *UnknownFieldError) Unwrap() error { return ErrUnknownField }

// ArithmeticInvariantError reports a negative amount where only
// non-negative decimals are legal.
type ArithmeticInvariantError struct {
	Context string
	Value   decimal.Decimal
}

func (e *ArithmeticInvariantError) Error() string {
	return fmt.Sprintf("arithmetic invariant violated: %s = %s", e.Context, e.Value)
}

func (e *ArithmeticInvariantError) Unwrap() error { return ErrArithmeticInvariant }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrInvalidAllocation) ||
		errors.Is(err, ErrUnknownField) ||
		errors.Is(err, ErrInvalidTransition)
}

// IsConflict returns true if the error indicates a write rejected by the
// period lock.
func IsConflict(err error) bool {
	return errors.Is(err, ErrPeriodLocked)
}

// IsNotFound returns true if the error indicates a missing unit.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUnitNotFound)
}
