/*
handlers.go - HTTP API handlers for the condominium ledger engine

PURPOSE:
  Exposes the ledger & reconciliation engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS (all under /api/tenants/{tenant}):
  Units:
    GET    /units                       List units
    POST   /units                       Create/update unit
    GET    /units/{unitID}/statement    Statement over ?from&to

  Charge catalog:
    GET    /fields                      List charge fields
    POST   /fields                      Create/update charge field
    PUT    /base-fee                    Set base maintenance fee

  Capture:
    POST   /payments                    Capture payment (validated, gated)
    POST   /expenses                    Record expense
    POST   /incomes                     Record unrecognized income

  Reporting:
    GET    /statements                  Statements for all units (?from&to)
    GET    /reconciliation              One period or a range

  Period locks:
    GET    /periods/{period}/lock
    POST   /periods/{period}/close
    POST   /periods/{period}/request-reopen
    POST   /periods/{period}/approve-reopen
    POST   /periods/{period}/reject-reopen

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (resolver, calculator, aggregator, lock table)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed input, invalid ranges, invalid lock transitions
  - 404: Unknown unit
  - 409: Period locked
  - 422: Allocation rejected by the engine
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/vecindario/condo-engine/engine"
)

// statementWorkers bounds the per-unit goroutines of a batch statement run.
const statementWorkers = 8

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store engine.RecordStore
}

// NewHandler creates a new handler with the given store.
func NewHandler(store engine.RecordStore) *Handler {
	return &Handler{Store: store}
}

func tenantOf(r *http.Request) string {
	return chi.URLParam(r, "tenant")
}

// =============================================================================
// UNIT HANDLERS
// =============================================================================

// ListUnits returns all units of the tenant.
// GET /api/tenants/{tenant}/units
func (h *Handler) ListUnits(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Store.Snapshot(r.Context(), tenantOf(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load tenant", err)
		return
	}

	dtos := make([]UnitDTO, len(snap.Units))
	for i, u := range snap.Units {
		dtos[i] = toUnitDTO(u)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveUnit creates or updates a unit.
// POST /api/tenants/{tenant}/units
func (h *Handler) SaveUnit(w http.ResponseWriter, r *http.Request) {
	var dto UnitDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if dto.ID == "" {
		writeError(w, http.StatusBadRequest, "Unit id is required", nil)
		return
	}

	unit, err := dto.toUnit()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid unit", err)
		return
	}
	if unit.PreviousDebt.IsNegative() || unit.CreditBalance.IsNegative() {
		writeError(w, http.StatusBadRequest, "Debt and credit seeds must be non-negative", nil)
		return
	}

	if err := h.Store.SaveUnit(r.Context(), tenantOf(r), unit); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save unit", err)
		return
	}
	writeJSON(w, http.StatusOK, toUnitDTO(unit))
}

// =============================================================================
// CHARGE CATALOG HANDLERS
// =============================================================================

// ListFields returns the tenant's charge catalog.
// GET /api/tenants/{tenant}/fields
func (h *Handler) ListFields(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Store.Snapshot(r.Context(), tenantOf(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load tenant", err)
		return
	}

	dtos := make([]ChargeFieldDTO, len(snap.Catalog.Fields))
	for i, f := range snap.Catalog.Fields {
		dtos[i] = toChargeFieldDTO(f)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveField creates or updates a charge field.
// POST /api/tenants/{tenant}/fields
func (h *Handler) SaveField(w http.ResponseWriter, r *http.Request) {
	var dto ChargeFieldDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if dto.ID == "" {
		writeError(w, http.StatusBadRequest, "Field id is required", nil)
		return
	}
	if dto.ID == engine.FieldMaintenance {
		writeError(w, http.StatusBadRequest, "The maintenance field is implicit; set the base fee instead", nil)
		return
	}

	field, err := dto.toChargeField()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid charge field", err)
		return
	}
	if field.DefaultAmount.IsNegative() {
		writeError(w, http.StatusBadRequest, "Default amount must be non-negative", nil)
		return
	}

	if err := h.Store.SaveChargeField(r.Context(), tenantOf(r), field); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save charge field", err)
		return
	}
	writeJSON(w, http.StatusOK, toChargeFieldDTO(field))
}

// SetBaseFee sets the tenant's base maintenance fee.
// PUT /api/tenants/{tenant}/base-fee
func (h *Handler) SetBaseFee(w http.ResponseWriter, r *http.Request) {
	var req SetBaseFeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	fee, err := parseAmount(req.BaseFee, "base_fee")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid base fee", err)
		return
	}
	if fee.IsNegative() {
		writeError(w, http.StatusBadRequest, "Base fee must be non-negative", nil)
		return
	}

	if err := h.Store.SetBaseFee(r.Context(), tenantOf(r), fee); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to set base fee", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"base_fee": fee.String()})
}

// =============================================================================
// CAPTURE HANDLERS
// =============================================================================

// CapturePayment validates and persists one payment record. The whole
// field-payment set for (unit, period) is replaced atomically.
// POST /api/tenants/{tenant}/payments
func (h *Handler) CapturePayment(w http.ResponseWriter, r *http.Request) {
	var req CapturePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rec, err := req.toRecord()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payment record", err)
		return
	}

	tenant := tenantOf(r)
	snap, err := h.Store.Snapshot(r.Context(), tenant)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load tenant", err)
		return
	}
	if _, ok := snap.Unit(rec.UnitID); !ok {
		writeError(w, http.StatusNotFound, "Unknown unit", engine.ErrUnitNotFound)
		return
	}

	resolver := snap.Resolver()
	alloc, err := resolver.ResolveCapture(rec)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	if err := h.Store.SavePayment(r.Context(), tenant, rec); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"unit_id":        rec.UnitID,
		"period":         rec.Period.String(),
		"captured_total": alloc.CapturedTotal.String(),
	})
}

// CaptureExpense records a tenant expense.
// POST /api/tenants/{tenant}/expenses
func (h *Handler) CaptureExpense(w http.ResponseWriter, r *http.Request) {
	var req ExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	period, err := engine.ParsePeriod(req.Period)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}
	amount, err := parseAmount(req.Amount, "amount")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	if amount.IsNegative() {
		writeError(w, http.StatusBadRequest, "Amount must be non-negative", nil)
		return
	}

	exp := engine.ExpenseRecord{
		Period:         period,
		FieldID:        req.FieldID,
		Amount:         amount,
		PaymentType:    req.PaymentType,
		BankReconciled: req.BankReconciled,
		ProviderName:   req.ProviderName,
		ProviderRef:    req.ProviderRef,
	}
	if err := h.Store.SaveExpense(r.Context(), tenantOf(r), exp); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save expense", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"period": period.String(),
		"amount": amount.String(),
	})
}

// CaptureIncome records unrecognized income.
// POST /api/tenants/{tenant}/incomes
func (h *Handler) CaptureIncome(w http.ResponseWriter, r *http.Request) {
	var req UnrecognizedIncomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	period, err := engine.ParsePeriod(req.Period)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}
	amount, err := parseAmount(req.Amount, "amount")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	if amount.IsNegative() {
		writeError(w, http.StatusBadRequest, "Amount must be non-negative", nil)
		return
	}

	inc := engine.UnrecognizedIncome{
		Period:         period,
		Amount:         amount,
		Concept:        req.Concept,
		BankReconciled: req.BankReconciled,
	}
	if err := h.Store.SaveUnrecognized(r.Context(), tenantOf(r), inc); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save income", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"period": period.String(),
		"amount": amount.String(),
	})
}

// =============================================================================
// STATEMENT HANDLERS
// =============================================================================

// GetStatement returns one unit's statement over ?from&to.
// GET /api/tenants/{tenant}/units/{unitID}/statement
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	from, to, err := rangeParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid range", err)
		return
	}

	snap, err := h.Store.Snapshot(r.Context(), tenantOf(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load tenant", err)
		return
	}

	unit, ok := snap.Unit(chi.URLParam(r, "unitID"))
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown unit", engine.ErrUnitNotFound)
		return
	}

	st, err := snap.Calculator().Statement(unit, from, to)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatementDTO(st))
}

// BatchStatements returns statements for every unit over ?from&to.
// Statements are pure functions over the shared snapshot, so the per-unit
// computations run in parallel.
// GET /api/tenants/{tenant}/statements
func (h *Handler) BatchStatements(w http.ResponseWriter, r *http.Request) {
	from, to, err := rangeParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid range", err)
		return
	}

	snap, err := h.Store.Snapshot(r.Context(), tenantOf(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load tenant", err)
		return
	}

	calc := snap.Calculator()
	dtos := make([]StatementDTO, len(snap.Units))

	g, _ := errgroup.WithContext(r.Context())
	g.SetLimit(statementWorkers)
	for i, unit := range snap.Units {
		i, unit := i, unit
		g.Go(func() error {
			st, err := calc.Statement(unit, from, to)
			if err != nil {
				return err
			}
			dtos[i] = toStatementDTO(st)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// RECONCILIATION HANDLERS
// =============================================================================

// GetReconciliation returns the treasury view for ?period, or for a
// ?from&to range.
// GET /api/tenants/{tenant}/reconciliation
func (h *Handler) GetReconciliation(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Store.Snapshot(r.Context(), tenantOf(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load tenant", err)
		return
	}
	agg := snap.Aggregator()

	if raw := r.URL.Query().Get("period"); raw != "" {
		period, err := engine.ParsePeriod(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid period", err)
			return
		}
		rep, err := agg.Reconcile(period)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toReconciliationDTO(rep))
		return
	}

	from, to, err := rangeParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid range", err)
		return
	}
	reports, err := agg.ReconcileRange(from, to)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	dtos := make([]ReconciliationDTO, len(reports))
	for i, rep := range reports {
		dtos[i] = toReconciliationDTO(rep)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// PERIOD LOCK HANDLERS
// =============================================================================

// GetLock reports the lock state of one period.
// GET /api/tenants/{tenant}/periods/{period}/lock
func (h *Handler) GetLock(w http.ResponseWriter, r *http.Request) {
	period, err := realPeriodParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}

	snap, err := h.Store.Snapshot(r.Context(), tenantOf(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load tenant", err)
		return
	}

	lock, ok := snap.Locks[period]
	if !ok {
		lock = engine.PeriodLock{Period: period}
	}
	writeJSON(w, http.StatusOK, toPeriodLockDTO(lock))
}

// ClosePeriod transitions a period from open to closed.
// POST /api/tenants/{tenant}/periods/{period}/close
func (h *Handler) ClosePeriod(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, engine.PeriodLock.Close)
}

// RequestReopen records a reopen request against a closed period.
// POST /api/tenants/{tenant}/periods/{period}/request-reopen
func (h *Handler) RequestReopen(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, engine.PeriodLock.RequestReopen)
}

// ApproveReopen approves a pending reopen request; the period is open again.
// POST /api/tenants/{tenant}/periods/{period}/approve-reopen
func (h *Handler) ApproveReopen(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, engine.PeriodLock.ApproveReopen)
}

// RejectReopen rejects a pending reopen request; the period stays closed.
// POST /api/tenants/{tenant}/periods/{period}/reject-reopen
func (h *Handler) RejectReopen(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, engine.PeriodLock.RejectReopen)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(engine.PeriodLock) (engine.PeriodLock, error)) {
	period, err := realPeriodParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}

	lock, err := h.Store.UpdateLock(r.Context(), tenantOf(r), period, fn)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodLockDTO(lock))
}

// =============================================================================
// REQUEST PARSING
// =============================================================================

func (req CapturePaymentRequest) toRecord() (engine.PaymentRecord, error) {
	period, err := engine.ParsePeriod(req.Period)
	if err != nil {
		return engine.PaymentRecord{}, err
	}

	var date time.Time
	if req.Date != "" {
		if date, err = time.Parse(time.RFC3339, req.Date); err != nil {
			return engine.PaymentRecord{}, err
		}
	}

	fields := make([]engine.FieldPayment, len(req.Fields))
	for i, fd := range req.Fields {
		amount, err := parseAmount(fd.ReceivedAmount, "received_amount")
		if err != nil {
			return engine.PaymentRecord{}, err
		}
		fp := engine.FieldPayment{
			FieldKey:       fd.FieldKey,
			ReceivedAmount: amount,
			TargetUnit:     fd.TargetUnit,
		}
		if len(fd.AdvanceTargets) > 0 {
			fp.AdvanceTargets = make(map[engine.Period]decimal.Decimal, len(fd.AdvanceTargets))
			for rawPeriod, rawAmount := range fd.AdvanceTargets {
				target, err := engine.ParsePeriod(rawPeriod)
				if err != nil {
					return engine.PaymentRecord{}, err
				}
				earmark, err := parseAmount(rawAmount, "advance amount")
				if err != nil {
					return engine.PaymentRecord{}, err
				}
				fp.AdvanceTargets[target] = earmark
			}
		}
		fields[i] = fp
	}

	var adeudos engine.AdeudoAllocation
	if len(req.Adeudos) > 0 {
		adeudos = make(engine.AdeudoAllocation, len(req.Adeudos))
		for rawPeriod, byField := range req.Adeudos {
			target, err := engine.ParsePeriod(rawPeriod)
			if err != nil {
				return engine.PaymentRecord{}, err
			}
			adeudos[target] = make(map[string]decimal.Decimal, len(byField))
			for fieldKey, rawAmount := range byField {
				earmark, err := parseAmount(rawAmount, "adeudo amount")
				if err != nil {
					return engine.PaymentRecord{}, err
				}
				adeudos[target][fieldKey] = earmark
			}
		}
	}

	return engine.PaymentRecord{
		UnitID:         req.UnitID,
		Period:         period,
		PaymentType:    req.PaymentType,
		Date:           date,
		Notes:          req.Notes,
		BankReconciled: req.BankReconciled,
		Fields:         fields,
		Adeudos:        adeudos,
	}, nil
}

func rangeParams(r *http.Request) (engine.Period, engine.Period, error) {
	from, err := engine.ParsePeriod(r.URL.Query().Get("from"))
	if err != nil {
		return engine.Period{}, engine.Period{}, err
	}
	to, err := engine.ParsePeriod(r.URL.Query().Get("to"))
	if err != nil {
		return engine.Period{}, engine.Period{}, err
	}
	if _, err := engine.Range(from, to); err != nil {
		return engine.Period{}, engine.Period{}, err
	}
	return from, to, nil
}

func realPeriodParam(r *http.Request) (engine.Period, error) {
	period, err := engine.ParsePeriod(chi.URLParam(r, "period"))
	if err != nil {
		return engine.Period{}, err
	}
	if period.IsPreLedger() {
		return engine.Period{}, errors.New("the pre-ledger sentinel has no lock")
	}
	return period, nil
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeEngineError maps the engine's error taxonomy onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case engine.IsConflict(err):
		writeError(w, http.StatusConflict, "Period is locked", err)
	case errors.Is(err, engine.ErrInvalidAllocation),
		errors.Is(err, engine.ErrUnknownField),
		errors.Is(err, engine.ErrArithmeticInvariant):
		writeError(w, http.StatusUnprocessableEntity, "Capture rejected", err)
	case errors.Is(err, engine.ErrInvalidRange),
		errors.Is(err, engine.ErrInvalidTransition):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
