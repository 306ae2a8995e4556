package sqlite_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vecindario/condo-engine/engine"
	"github.com/vecindario/condo-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func seedTenant(t *testing.T, store *sqlite.Store, tenant string) {
	ctx := context.Background()
	require.NoError(t, store.SetBaseFee(ctx, tenant, d("1000")))
	require.NoError(t, store.SaveUnit(ctx, tenant, engine.Unit{
		ID: "u-1", Code: "A-101", Name: "Depto 101",
		Occupancy: engine.OccupancyOwner, Responsible: "María López",
		PreviousDebt: d("500"), CreditBalance: decimal.Zero,
	}))
	require.NoError(t, store.SaveChargeField(ctx, tenant, engine.ChargeField{
		ID: "fondo", Label: "Fondo de reserva", Kind: engine.FieldCollection,
		Required: true, DefaultAmount: d("200"), Enabled: true,
	}))
}

// =============================================================================
// ROUND TRIPS
// =============================================================================

func TestSnapshot_CatalogAndUnitsRoundTrip(t *testing.T) {
	store := newTestStore(t)
	seedTenant(t, store, "los-arcos")

	snap, err := store.Snapshot(context.Background(), "los-arcos")
	require.NoError(t, err)

	assert.True(t, snap.Catalog.BaseFee.Equal(d("1000")))
	require.Len(t, snap.Units, 1)
	assert.Equal(t, "A-101", snap.Units[0].Code)
	assert.True(t, snap.Units[0].PreviousDebt.Equal(d("500")))
	require.Len(t, snap.Catalog.Fields, 1)
	assert.True(t, snap.Catalog.Fields[0].Required)
	assert.True(t, snap.Catalog.Fields[0].DefaultAmount.Equal(d("200")))
}

func TestSavePayment_ReplacesWholeFieldSet(t *testing.T) {
	// An edit replaces the record's field-payment set atomically; the
	// old set never bleeds into the new one.
	store := newTestStore(t)
	seedTenant(t, store, "los-arcos")
	ctx := context.Background()

	first := engine.PaymentRecord{
		UnitID: "u-1", Period: engine.MustParsePeriod("2024-02"),
		PaymentType: "transferencia",
		Fields: []engine.FieldPayment{
			{FieldKey: engine.FieldMaintenance, ReceivedAmount: d("1000")},
			{FieldKey: "fondo", ReceivedAmount: d("200")},
		},
	}
	require.NoError(t, store.SavePayment(ctx, "los-arcos", first))

	edited := engine.PaymentRecord{
		UnitID: "u-1", Period: engine.MustParsePeriod("2024-02"),
		PaymentType:    "efectivo",
		BankReconciled: true,
		Fields: []engine.FieldPayment{
			{FieldKey: engine.FieldMaintenance, ReceivedAmount: d("1200")},
		},
	}
	require.NoError(t, store.SavePayment(ctx, "los-arcos", edited))

	snap, err := store.Snapshot(ctx, "los-arcos")
	require.NoError(t, err)
	require.Len(t, snap.Records, 1, "at most one record per (unit, period)")
	rec := snap.Records[0]
	assert.Equal(t, "efectivo", rec.PaymentType)
	assert.True(t, rec.BankReconciled)
	require.Len(t, rec.Fields, 1)
	assert.True(t, rec.Fields[0].ReceivedAmount.Equal(d("1200")))
}

func TestSavePayment_AdvancesAndAdeudosRoundTrip(t *testing.T) {
	store := newTestStore(t)
	seedTenant(t, store, "los-arcos")
	ctx := context.Background()

	rec := engine.PaymentRecord{
		UnitID: "u-1", Period: engine.MustParsePeriod("2024-04"),
		Fields: []engine.FieldPayment{
			{
				FieldKey:       engine.FieldMaintenance,
				ReceivedAmount: d("2200"),
				AdvanceTargets: map[engine.Period]decimal.Decimal{
					engine.MustParsePeriod("2024-05"): d("500"),
				},
			},
		},
		Adeudos: engine.AdeudoAllocation{
			engine.PreLedger:                  {engine.FieldMaintenance: d("500")},
			engine.MustParsePeriod("2024-01"): {engine.FieldMaintenance: d("200")},
		},
	}
	require.NoError(t, store.SavePayment(ctx, "los-arcos", rec))

	snap, err := store.Snapshot(ctx, "los-arcos")
	require.NoError(t, err)
	require.Len(t, snap.Records, 1)
	got := snap.Records[0]

	require.Len(t, got.Fields, 1)
	adv := got.Fields[0].AdvanceTargets[engine.MustParsePeriod("2024-05")]
	assert.True(t, adv.Equal(d("500")))
	assert.True(t, got.Adeudos[engine.PreLedger][engine.FieldMaintenance].Equal(d("500")))
	assert.True(t, got.Adeudos[engine.MustParsePeriod("2024-01")][engine.FieldMaintenance].Equal(d("200")))

	// The round-tripped record must produce the exact same allocation.
	resolver := snap.Resolver()
	alloc, err := resolver.Resolve(got, "u-1")
	require.NoError(t, err)
	assert.True(t, alloc.OwnPeriodByField[engine.FieldMaintenance].Equal(d("1000")))
}

func TestExpensesAndUnrecognizedIncomeRoundTrip(t *testing.T) {
	store := newTestStore(t)
	seedTenant(t, store, "los-arcos")
	ctx := context.Background()

	require.NoError(t, store.SaveExpense(ctx, "los-arcos", engine.ExpenseRecord{
		Period: engine.MustParsePeriod("2024-01"), FieldID: "jardineria",
		Amount: d("350.50"), PaymentType: "transferencia",
		BankReconciled: true, ProviderName: "Jardines SA",
	}))
	require.NoError(t, store.SaveUnrecognized(ctx, "los-arcos", engine.UnrecognizedIncome{
		Period: engine.MustParsePeriod("2024-01"), Amount: d("432"),
		Concept: "depósito sin referencia", BankReconciled: true,
	}))

	snap, err := store.Snapshot(ctx, "los-arcos")
	require.NoError(t, err)
	require.Len(t, snap.Expenses, 1)
	assert.True(t, snap.Expenses[0].Amount.Equal(d("350.50")))
	assert.Equal(t, "Jardines SA", snap.Expenses[0].ProviderName)
	require.Len(t, snap.Unrecognized, 1)
	assert.True(t, snap.Unrecognized[0].Amount.Equal(d("432")))
}

func TestTenantsAreIsolated(t *testing.T) {
	store := newTestStore(t)
	seedTenant(t, store, "los-arcos")

	snap, err := store.Snapshot(context.Background(), "otro-condominio")
	require.NoError(t, err)
	assert.Empty(t, snap.Units)
	assert.Empty(t, snap.Catalog.Fields)
	assert.True(t, snap.Catalog.BaseFee.IsZero())
}

// =============================================================================
// PERIOD LOCKS
// =============================================================================

func TestUpdateLock_PersistsTransitions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := engine.MustParsePeriod("2024-01")

	_, err := store.UpdateLock(ctx, "los-arcos", p, engine.PeriodLock.Close)
	require.NoError(t, err)

	snap, err := store.Snapshot(ctx, "los-arcos")
	require.NoError(t, err)
	lock, ok := snap.Locks[p]
	require.True(t, ok)
	assert.Equal(t, engine.LockClosed, lock.State())

	// The snapshot's lock table must gate captures for the period.
	resolver := snap.Resolver()
	_, err = resolver.ResolveCapture(engine.PaymentRecord{
		UnitID: "u-1", Period: p,
		Fields: []engine.FieldPayment{{FieldKey: engine.FieldMaintenance, ReceivedAmount: d("100")}},
	})
	assert.ErrorIs(t, err, engine.ErrPeriodLocked)
}

func TestUpdateLock_TransitionErrorLeavesStateUntouched(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := engine.MustParsePeriod("2024-01")

	// Approving without a request is illegal and must not persist.
	_, err := store.UpdateLock(ctx, "los-arcos", p, engine.PeriodLock.ApproveReopen)
	assert.ErrorIs(t, err, engine.ErrInvalidTransition)

	snap, err := store.Snapshot(ctx, "los-arcos")
	require.NoError(t, err)
	_, exists := snap.Locks[p]
	assert.False(t, exists, "failed transition must not create a lock row")
}
