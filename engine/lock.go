/*
lock.go - Period lock state machine

PURPOSE:
  Gates whether a period accepts new or edited payment captures.

STATES:
  open -> closed                (administrative action)
  closed -> reopenRequested     (user action)
  reopenRequested -> open       (request approved)
  reopenRequested -> closed     (request rejected)

  A request cycle is terminal: approval returns the period to open and
  rejection returns it to closed, after which a new cycle may start.
  Captures fail while the period is closed OR reopen-pending.

CONCURRENCY:
  Transitions must be applied under the store's per-(tenant, period)
  write section; the state machine itself is a pure value type.

SEE ALSO:
  - allocation.go: ResolveCapture calls LockTable.Gate
*/
package engine

import "fmt"

// =============================================================================
// STATE
// =============================================================================

// LockState is the effective gate state of a period.
type LockState string

const (
	LockOpen            LockState = "open"
	LockClosed          LockState = "closed"
	LockReopenRequested LockState = "reopenRequested"
)

// ReopenState records where the current reopen request cycle stands.
type ReopenState string

const (
	ReopenNone      ReopenState = "none"
	ReopenRequested ReopenState = "requested"
	ReopenApproved  ReopenState = "approved"
	ReopenRejected  ReopenState = "rejected"
)

// PeriodLock is the lock record for one (tenant, period).
type PeriodLock struct {
	Period Period
	Closed bool
	Reopen ReopenState
}

// State derives the effective gate state.
func (l PeriodLock) State() LockState {
	switch {
	case l.Closed && l.Reopen == ReopenRequested:
		return LockReopenRequested
	case l.Closed:
		return LockClosed
	default:
		return LockOpen
	}
}

// AcceptsCapture reports whether new or edited payments are allowed.
func (l PeriodLock) AcceptsCapture() bool { return l.State() == LockOpen }

// =============================================================================
// TRANSITIONS
// =============================================================================

// Close locks the period. Legal only from open.
func (l PeriodLock) Close() (PeriodLock, error) {
	if l.State() != LockOpen {
		return l, transitionErr(l, "close")
	}
	l.Closed = true
	l.Reopen = ReopenNone
	return l, nil
}

// RequestReopen starts a reopen cycle. Legal only from closed; a period
// whose previous request was rejected may request again.
func (l PeriodLock) RequestReopen() (PeriodLock, error) {
	if l.State() != LockClosed {
		return l, transitionErr(l, "request reopen")
	}
	l.Reopen = ReopenRequested
	return l, nil
}

// ApproveReopen grants a pending request and returns the period to open.
func (l PeriodLock) ApproveReopen() (PeriodLock, error) {
	if l.State() != LockReopenRequested {
		return l, transitionErr(l, "approve reopen")
	}
	l.Closed = false
	l.Reopen = ReopenApproved
	return l, nil
}

// RejectReopen denies a pending request and returns the period to closed.
func (l PeriodLock) RejectReopen() (PeriodLock, error) {
	if l.State() != LockReopenRequested {
		return l, transitionErr(l, "reject reopen")
	}
	l.Reopen = ReopenRejected
	return l, nil
}

func transitionErr(l PeriodLock, action string) error {
	return fmt.Errorf("%w: cannot %s period %s while %s", ErrInvalidTransition, action, l.Period, l.State())
}

// =============================================================================
// LOCK TABLE
// =============================================================================

// LockTable is the lock snapshot for a tenant. Periods without an entry
// are open.
type LockTable map[Period]PeriodLock

// Gate returns a PeriodLockedError when p does not accept captures.
func (t LockTable) Gate(p Period) error {
	if t == nil {
		return nil
	}
	lock, ok := t[p]
	if !ok || lock.AcceptsCapture() {
		return nil
	}
	return &PeriodLockedError{Period: p, State: lock.State()}
}
