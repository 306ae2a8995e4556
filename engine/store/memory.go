// Package store provides RecordStore implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/vecindario/condo-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	tenants map[string]*tenantData
}

type tenantData struct {
	catalog      engine.Catalog
	units        map[string]engine.Unit
	payments     map[paymentKey]engine.PaymentRecord
	expenses     []engine.ExpenseRecord
	unrecognized []engine.UnrecognizedIncome
	locks        map[engine.Period]engine.PeriodLock
}

type paymentKey struct {
	UnitID string
	Period engine.Period
}

func NewMemory() *Memory {
	return &Memory{tenants: make(map[string]*tenantData)}
}

func (m *Memory) tenant(name string) *tenantData {
	t, ok := m.tenants[name]
	if !ok {
		t = &tenantData{
			catalog:  engine.Catalog{BaseFee: decimal.Zero},
			units:    make(map[string]engine.Unit),
			payments: make(map[paymentKey]engine.PaymentRecord),
			locks:    make(map[engine.Period]engine.PeriodLock),
		}
		m.tenants[name] = t
	}
	return t
}

// Snapshot returns a deep-enough copy: slices are fresh, records are
// value types, so later writes never show through.
func (m *Memory) Snapshot(_ context.Context, tenant string) (*engine.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tenants[tenant]
	if !ok {
		return &engine.Snapshot{Tenant: tenant, Locks: engine.LockTable{}}, nil
	}
	snap := &engine.Snapshot{
		Tenant:       tenant,
		Catalog:      t.catalog,
		Units:        make([]engine.Unit, 0, len(t.units)),
		Records:      make([]engine.PaymentRecord, 0, len(t.payments)),
		Expenses:     append([]engine.ExpenseRecord(nil), t.expenses...),
		Unrecognized: append([]engine.UnrecognizedIncome(nil), t.unrecognized...),
		Locks:        make(engine.LockTable, len(t.locks)),
	}
	snap.Catalog.Fields = append([]engine.ChargeField(nil), t.catalog.Fields...)
	for _, u := range t.units {
		snap.Units = append(snap.Units, u)
	}
	sort.Slice(snap.Units, func(i, j int) bool { return snap.Units[i].ID < snap.Units[j].ID })
	for _, rec := range t.payments {
		snap.Records = append(snap.Records, rec)
	}
	sort.Slice(snap.Records, func(i, j int) bool {
		a, b := snap.Records[i], snap.Records[j]
		if a.UnitID != b.UnitID {
			return a.UnitID < b.UnitID
		}
		return a.Period.Before(b.Period)
	})
	for p, l := range t.locks {
		snap.Locks[p] = l
	}
	return snap, nil
}

func (m *Memory) SaveUnit(_ context.Context, tenant string, u engine.Unit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenant(tenant).units[u.ID] = u
	return nil
}

func (m *Memory) SaveChargeField(_ context.Context, tenant string, f engine.ChargeField) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tenant(tenant)
	for i, existing := range t.catalog.Fields {
		if existing.ID == f.ID {
			t.catalog.Fields[i] = f
			return nil
		}
	}
	t.catalog.Fields = append(t.catalog.Fields, f)
	return nil
}

func (m *Memory) SetBaseFee(_ context.Context, tenant string, fee decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenant(tenant).catalog.BaseFee = fee
	return nil
}

// SavePayment replaces the whole record for (unit, period) atomically.
func (m *Memory) SavePayment(_ context.Context, tenant string, rec engine.PaymentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenant(tenant).payments[paymentKey{UnitID: rec.UnitID, Period: rec.Period}] = rec
	return nil
}

func (m *Memory) SaveExpense(_ context.Context, tenant string, exp engine.ExpenseRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tenant(tenant)
	t.expenses = append(t.expenses, exp)
	return nil
}

func (m *Memory) SaveUnrecognized(_ context.Context, tenant string, inc engine.UnrecognizedIncome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tenant(tenant)
	t.unrecognized = append(t.unrecognized, inc)
	return nil
}

// UpdateLock applies fn under the store's write lock, which serializes
// request-reopen against approve/reject for the same period.
func (m *Memory) UpdateLock(_ context.Context, tenant string, p engine.Period, fn func(engine.PeriodLock) (engine.PeriodLock, error)) (engine.PeriodLock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.tenant(tenant)
	lock, ok := t.locks[p]
	if !ok {
		lock = engine.PeriodLock{Period: p, Reopen: engine.ReopenNone}
	}
	updated, err := fn(lock)
	if err != nil {
		return lock, err
	}
	t.locks[p] = updated
	return updated, nil
}

var _ engine.RecordStore = (*Memory)(nil)
