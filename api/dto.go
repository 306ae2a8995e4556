/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's domain model from the external API contract.

CONVENTIONS:
  - Decimals travel as strings ("1200.00"), never as JSON numbers, so
    no client can introduce binary-floating-point drift.
  - Periods travel in their canonical "YYYY-MM" form; the PreLedger
    sentinel travels as its reserved token.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vecindario/condo-engine/engine"
)

// =============================================================================
// UNITS & CATALOG
// =============================================================================

// UnitDTO represents a unit in API requests and responses.
type UnitDTO struct {
	ID            string `json:"id"`
	Code          string `json:"code"`
	Name          string `json:"name"`
	Occupancy     string `json:"occupancy"`
	Responsible   string `json:"responsible,omitempty"`
	AdminExempt   bool   `json:"admin_exempt"`
	PreviousDebt  string `json:"previous_debt"`
	CreditBalance string `json:"credit_balance"`
}

func toUnitDTO(u engine.Unit) UnitDTO {
	return UnitDTO{
		ID:            u.ID,
		Code:          u.Code,
		Name:          u.Name,
		Occupancy:     string(u.Occupancy),
		Responsible:   u.Responsible,
		AdminExempt:   u.AdminExempt,
		PreviousDebt:  u.PreviousDebt.String(),
		CreditBalance: u.CreditBalance.String(),
	}
}

func (d UnitDTO) toUnit() (engine.Unit, error) {
	prevDebt, err := parseAmount(d.PreviousDebt, "previous_debt")
	if err != nil {
		return engine.Unit{}, err
	}
	credit, err := parseAmount(d.CreditBalance, "credit_balance")
	if err != nil {
		return engine.Unit{}, err
	}
	return engine.Unit{
		ID:            d.ID,
		Code:          d.Code,
		Name:          d.Name,
		Occupancy:     engine.Occupancy(d.Occupancy),
		Responsible:   d.Responsible,
		AdminExempt:   d.AdminExempt,
		PreviousDebt:  prevDebt,
		CreditBalance: credit,
	}, nil
}

// ChargeFieldDTO represents a charge field in API requests and responses.
type ChargeFieldDTO struct {
	ID               string `json:"id"`
	Label            string `json:"label"`
	Kind             string `json:"kind"`
	Required         bool   `json:"required"`
	DefaultAmount    string `json:"default_amount"`
	CrossUnitAllowed bool   `json:"cross_unit_allowed"`
	ActiveFrom       string `json:"active_from,omitempty"`
	DurationPeriods  int    `json:"duration_periods"`
	Enabled          bool   `json:"enabled"`
}

func toChargeFieldDTO(f engine.ChargeField) ChargeFieldDTO {
	activeFrom := ""
	if !f.ActiveFrom.IsPreLedger() {
		activeFrom = f.ActiveFrom.String()
	}
	return ChargeFieldDTO{
		ID:               f.ID,
		Label:            f.Label,
		Kind:             string(f.Kind),
		Required:         f.Required,
		DefaultAmount:    f.DefaultAmount.String(),
		CrossUnitAllowed: f.CrossUnitAllowed,
		ActiveFrom:       activeFrom,
		DurationPeriods:  f.DurationPeriods,
		Enabled:          f.Enabled,
	}
}

func (d ChargeFieldDTO) toChargeField() (engine.ChargeField, error) {
	amount, err := parseAmount(d.DefaultAmount, "default_amount")
	if err != nil {
		return engine.ChargeField{}, err
	}
	f := engine.ChargeField{
		ID:               d.ID,
		Label:            d.Label,
		Kind:             engine.FieldKind(d.Kind),
		Required:         d.Required,
		DefaultAmount:    amount,
		CrossUnitAllowed: d.CrossUnitAllowed,
		DurationPeriods:  d.DurationPeriods,
		Enabled:          d.Enabled,
	}
	if d.ActiveFrom != "" {
		if f.ActiveFrom, err = engine.ParsePeriod(d.ActiveFrom); err != nil {
			return engine.ChargeField{}, err
		}
	}
	return f, nil
}

// SetBaseFeeRequest sets the tenant's base maintenance fee.
type SetBaseFeeRequest struct {
	BaseFee string `json:"base_fee"`
}

// =============================================================================
// PAYMENT CAPTURE
// =============================================================================

// FieldPaymentDTO is one captured field amount.
type FieldPaymentDTO struct {
	FieldKey       string            `json:"field_key"`
	ReceivedAmount string            `json:"received_amount"`
	TargetUnit     string            `json:"target_unit,omitempty"`
	AdvanceTargets map[string]string `json:"advance_targets,omitempty"`
}

// CapturePaymentRequest creates or replaces the capture for (unit, period).
type CapturePaymentRequest struct {
	UnitID         string                       `json:"unit_id"`
	Period         string                       `json:"period"`
	PaymentType    string                       `json:"payment_type,omitempty"`
	Date           string                       `json:"date,omitempty"` // RFC 3339
	Notes          string                       `json:"notes,omitempty"`
	BankReconciled bool                         `json:"bank_reconciled"`
	Fields         []FieldPaymentDTO            `json:"fields"`
	Adeudos        map[string]map[string]string `json:"adeudos,omitempty"` // period -> field -> amount
}

// ExpenseRequest records a tenant expense.
type ExpenseRequest struct {
	Period         string `json:"period"`
	FieldID        string `json:"field_id"`
	Amount         string `json:"amount"`
	PaymentType    string `json:"payment_type,omitempty"`
	BankReconciled bool   `json:"bank_reconciled"`
	ProviderName   string `json:"provider_name,omitempty"`
	ProviderRef    string `json:"provider_ref,omitempty"`
}

// UnrecognizedIncomeRequest records income with no owning unit.
type UnrecognizedIncomeRequest struct {
	Period         string `json:"period"`
	Amount         string `json:"amount"`
	Concept        string `json:"concept,omitempty"`
	BankReconciled bool   `json:"bank_reconciled"`
}

// =============================================================================
// STATEMENTS & RECONCILIATION
// =============================================================================

// StatementRowDTO is one period of a unit's statement.
type StatementRowDTO struct {
	Period    string `json:"period"`
	Charge    string `json:"charge"`
	Paid      string `json:"paid"`
	Collected string `json:"collected"`
	Status    string `json:"status"`
	Balance   string `json:"balance"`
}

// StatementDTO is the accrual view for one unit over a range.
type StatementDTO struct {
	UnitID          string            `json:"unit_id"`
	From            string            `json:"from"`
	To              string            `json:"to"`
	NetPreviousDebt string            `json:"net_previous_debt"`
	CreditBalance   string            `json:"credit_balance"`
	Rows            []StatementRowDTO `json:"rows"`
	FinalBalance    string            `json:"final_balance"`
}

func toStatementDTO(st *engine.Statement) StatementDTO {
	dto := StatementDTO{
		UnitID:          st.UnitID,
		From:            st.From.String(),
		To:              st.To.String(),
		NetPreviousDebt: st.NetPreviousDebt.String(),
		CreditBalance:   st.CreditBalance.String(),
		Rows:            make([]StatementRowDTO, len(st.Rows)),
		FinalBalance:    st.FinalBalance.String(),
	}
	for i, row := range st.Rows {
		dto.Rows[i] = StatementRowDTO{
			Period:    row.Period.String(),
			Charge:    row.Charge.String(),
			Paid:      row.Paid.String(),
			Collected: row.Collected.String(),
			Status:    string(row.Status),
			Balance:   row.Balance.String(),
		}
	}
	return dto
}

// ReconciliationDTO is the treasury view of one period.
type ReconciliationDTO struct {
	Period              string `json:"period"`
	ObligatoryTotal     string `json:"obligatory_total"`
	CollectedReconciled string `json:"collected_reconciled"`
	CollectedPending    string `json:"collected_pending"`
	ExpenseReconciled   string `json:"expense_reconciled"`
	ExpensePending      string `json:"expense_pending"`
	NetBalance          string `json:"net_balance"`
}

func toReconciliationDTO(rep *engine.ReconciliationReport) ReconciliationDTO {
	return ReconciliationDTO{
		Period:              rep.Period.String(),
		ObligatoryTotal:     rep.ObligatoryTotal.String(),
		CollectedReconciled: rep.CollectedReconciled.String(),
		CollectedPending:    rep.CollectedPending.String(),
		ExpenseReconciled:   rep.ExpenseReconciled.String(),
		ExpensePending:      rep.ExpensePending.String(),
		NetBalance:          rep.NetBalance.String(),
	}
}

// PeriodLockDTO reports a period's gate state.
type PeriodLockDTO struct {
	Period      string `json:"period"`
	State       string `json:"state"`
	Closed      bool   `json:"closed"`
	ReopenState string `json:"reopen_state"`
}

func toPeriodLockDTO(l engine.PeriodLock) PeriodLockDTO {
	return PeriodLockDTO{
		Period:      l.Period.String(),
		State:       string(l.State()),
		Closed:      l.Closed,
		ReopenState: string(l.Reopen),
	}
}

// ErrorResponse is the error envelope for all failure responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// PARSE HELPERS
// =============================================================================

func parseAmount(s, field string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	return d, nil
}
