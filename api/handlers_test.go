/*
handlers_test.go - Unit tests for API handlers

Tests for:
- Payment capture flow (validation, lock gating, persistence)
- Statement and reconciliation endpoints
- Period lock transition endpoints
- Error status mapping
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vecindario/condo-engine/engine"
	memstore "github.com/vecindario/condo-engine/engine/store"
)

const testTenant = "condo-1"

// newTestServer builds a router over a fresh memory store seeded with one
// tenant: base fee 1000, a required fund field of 200, and two units.
func newTestServer(t *testing.T) (*httptest.Server, *memstore.Memory) {
	t.Helper()

	store := memstore.NewMemory()
	ctx := context.Background()

	require.NoError(t, store.SetBaseFee(ctx, testTenant, decimal.RequireFromString("1000")))
	require.NoError(t, store.SaveChargeField(ctx, testTenant, engine.ChargeField{
		ID:            "fondo",
		Label:         "Reserve fund",
		Kind:          engine.FieldCollection,
		Required:      true,
		DefaultAmount: decimal.RequireFromString("200"),
		Enabled:       true,
	}))
	require.NoError(t, store.SaveUnit(ctx, testTenant, engine.Unit{
		ID: "u-101", Code: "101", Name: "Depto 101", Occupancy: engine.OccupancyOwner,
	}))
	require.NoError(t, store.SaveUnit(ctx, testTenant, engine.Unit{
		ID: "u-102", Code: "102", Name: "Depto 102", Occupancy: engine.OccupancyTenant,
	}))

	srv := httptest.NewServer(NewRouter(NewHandler(store)))
	t.Cleanup(srv.Close)
	return srv, store
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestCapturePayment_Success(t *testing.T) {
	srv, store := newTestServer(t)

	req := CapturePaymentRequest{
		UnitID: "u-101",
		Period: "2024-03",
		Fields: []FieldPaymentDTO{
			{FieldKey: engine.FieldMaintenance, ReceivedAmount: "1000"},
			{FieldKey: "fondo", ReceivedAmount: "200"},
		},
	}
	resp := postJSON(t, srv.URL+"/api/tenants/"+testTenant+"/payments", req)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "1200", body["captured_total"])

	snap, err := store.Snapshot(context.Background(), testTenant)
	require.NoError(t, err)
	require.Len(t, snap.Records, 1)
	assert.Equal(t, "u-101", snap.Records[0].UnitID)
}

func TestCapturePayment_UnknownUnit(t *testing.T) {
	srv, _ := newTestServer(t)

	req := CapturePaymentRequest{
		UnitID: "u-999",
		Period: "2024-03",
		Fields: []FieldPaymentDTO{{FieldKey: engine.FieldMaintenance, ReceivedAmount: "1000"}},
	}
	resp := postJSON(t, srv.URL+"/api/tenants/"+testTenant+"/payments", req)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCapturePayment_UnknownFieldRejected(t *testing.T) {
	srv, _ := newTestServer(t)

	req := CapturePaymentRequest{
		UnitID: "u-101",
		Period: "2024-03",
		Fields: []FieldPaymentDTO{{FieldKey: "no-such-field", ReceivedAmount: "100"}},
	}
	resp := postJSON(t, srv.URL+"/api/tenants/"+testTenant+"/payments", req)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestCapturePayment_OverEarmarkRejected(t *testing.T) {
	srv, _ := newTestServer(t)

	// Advance earmarks exceed the gross received amount.
	req := CapturePaymentRequest{
		UnitID: "u-101",
		Period: "2024-03",
		Fields: []FieldPaymentDTO{{
			FieldKey:       engine.FieldMaintenance,
			ReceivedAmount: "1000",
			AdvanceTargets: map[string]string{"2024-04": "800", "2024-05": "800"},
		}},
	}
	resp := postJSON(t, srv.URL+"/api/tenants/"+testTenant+"/payments", req)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestCapturePayment_ClosedPeriodConflicts(t *testing.T) {
	srv, store := newTestServer(t)

	_, err := store.UpdateLock(context.Background(), testTenant, engine.MustParsePeriod("2024-03"), engine.PeriodLock.Close)
	require.NoError(t, err)

	req := CapturePaymentRequest{
		UnitID: "u-101",
		Period: "2024-03",
		Fields: []FieldPaymentDTO{{FieldKey: engine.FieldMaintenance, ReceivedAmount: "1000"}},
	}
	resp := postJSON(t, srv.URL+"/api/tenants/"+testTenant+"/payments", req)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestGetStatement_FullAndPartial(t *testing.T) {
	srv, _ := newTestServer(t)
	base := srv.URL + "/api/tenants/" + testTenant

	// Full payment for March, partial for April.
	resp := postJSON(t, base+"/payments", CapturePaymentRequest{
		UnitID: "u-101", Period: "2024-03",
		Fields: []FieldPaymentDTO{
			{FieldKey: engine.FieldMaintenance, ReceivedAmount: "1000"},
			{FieldKey: "fondo", ReceivedAmount: "200"},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = postJSON(t, base+"/payments", CapturePaymentRequest{
		UnitID: "u-101", Period: "2024-04",
		Fields: []FieldPaymentDTO{{FieldKey: engine.FieldMaintenance, ReceivedAmount: "600"}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var st StatementDTO
	getResp := getJSON(t, base+"/units/u-101/statement?from=2024-03&to=2024-04", &st)
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	require.Len(t, st.Rows, 2)
	assert.Equal(t, string(engine.StatusPagado), st.Rows[0].Status)
	assert.Equal(t, string(engine.StatusParcial), st.Rows[1].Status)
	assert.Equal(t, "600", st.Rows[1].Balance)
	assert.Equal(t, "600", st.FinalBalance)
}

func TestGetStatement_InvalidRange(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := getJSON(t, srv.URL+"/api/tenants/"+testTenant+"/units/u-101/statement?from=2024-05&to=2024-03", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBatchStatements_AllUnits(t *testing.T) {
	srv, _ := newTestServer(t)

	var dtos []StatementDTO
	resp := getJSON(t, srv.URL+"/api/tenants/"+testTenant+"/statements?from=2024-03&to=2024-03", &dtos)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, dtos, 2)
	// Neither unit paid anything, both owe the full obligatory charge.
	for _, st := range dtos {
		require.Len(t, st.Rows, 1)
		assert.Equal(t, string(engine.StatusPendiente), st.Rows[0].Status)
		assert.Equal(t, "1200", st.FinalBalance)
	}
}

func TestGetReconciliation_SinglePeriod(t *testing.T) {
	srv, _ := newTestServer(t)
	base := srv.URL + "/api/tenants/" + testTenant

	resp := postJSON(t, base+"/payments", CapturePaymentRequest{
		UnitID: "u-101", Period: "2024-03", BankReconciled: true,
		Fields: []FieldPaymentDTO{{FieldKey: engine.FieldMaintenance, ReceivedAmount: "1000"}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = postJSON(t, base+"/expenses", ExpenseRequest{
		Period: "2024-03", FieldID: "fondo", Amount: "300",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = postJSON(t, base+"/incomes", UnrecognizedIncomeRequest{
		Period: "2024-03", Amount: "50", Concept: "unmatched deposit",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var rep ReconciliationDTO
	getResp := getJSON(t, base+"/reconciliation?period=2024-03", &rep)
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	// Two units at 1200 each.
	assert.Equal(t, "2400", rep.ObligatoryTotal)
	assert.Equal(t, "1050", rep.CollectedReconciled)
	assert.Equal(t, "0", rep.CollectedPending)
	assert.Equal(t, "300", rep.ExpensePending)
	assert.Equal(t, "750", rep.NetBalance)
}

func TestLockLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)
	base := srv.URL + "/api/tenants/" + testTenant + "/periods/2024-03"

	var lock PeriodLockDTO
	resp := getJSON(t, base+"/lock", &lock)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, string(engine.LockOpen), lock.State)

	resp = postJSON(t, base+"/close", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, base+"/request-reopen", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&lock))
	assert.Equal(t, string(engine.LockReopenRequested), lock.State)

	resp = postJSON(t, base+"/approve-reopen", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&lock))
	assert.Equal(t, string(engine.LockOpen), lock.State)
}

func TestLockTransition_InvalidIsBadRequest(t *testing.T) {
	srv, _ := newTestServer(t)

	// Approving a reopen that was never requested.
	resp := postJSON(t, srv.URL+"/api/tenants/"+testTenant+"/periods/2024-03/approve-reopen", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSaveField_MaintenanceReserved(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/tenants/"+testTenant+"/fields", ChargeFieldDTO{
		ID: engine.FieldMaintenance, Label: "Maintenance", Kind: "collection",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSetBaseFee_RejectsNegative(t *testing.T) {
	srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/tenants/"+testTenant+"/base-fee",
		bytes.NewReader([]byte(`{"base_fee":"-100"}`)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
