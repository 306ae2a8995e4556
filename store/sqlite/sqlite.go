/*
Package sqlite provides a SQLite-backed implementation of engine.RecordStore.

PURPOSE:
  Persists the tenant's condo records - units, charge catalog, payment
  captures, expenses, unrecognized income and period locks - and serves
  the causally-consistent snapshots the engine computes over. The same
  patterns apply to PostgreSQL; only minor SQL dialect differences.

KEY TABLES:
  tenant_settings:     Base maintenance fee per tenant
  units:               Unit snapshots incl. pre-ledger debt/credit
  charge_fields:       Charge catalog
  payment_records:     One row per (tenant, unit, period); the nested
                       field-payment set and adeudo allocation are
                       serialized as JSON so an edit replaces the whole
                       set atomically in a single row write
  expense_records:     Tenant expenses
  unrecognized_income: Income with no owning unit
  period_locks:        Lock state machine records

CONCURRENCY:
  A sync.RWMutex serializes writes; UpdateLock runs its read-modify-write
  under the write lock, which is the per-(tenant, period) exclusive
  section the lock state machine requires. SQLite is opened in WAL mode
  so snapshot reads do not block the single writer.

DECIMALS:
  Amounts are stored as their exact decimal string form, never as REAL.

USAGE:
  store, err := sqlite.New("./data/condo.db")
  defer store.Close()
  snap, err := store.Snapshot(ctx, "los-arcos")

SEE ALSO:
  - engine/store.go: Interface definition and snapshot contract
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/vecindario/condo-engine/engine"
)

// Store implements engine.RecordStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tenant_settings (
		tenant TEXT PRIMARY KEY,
		base_fee TEXT NOT NULL DEFAULT '0'
	);

	CREATE TABLE IF NOT EXISTS units (
		tenant TEXT NOT NULL,
		id TEXT NOT NULL,
		code TEXT NOT NULL,
		name TEXT NOT NULL,
		occupancy TEXT NOT NULL,
		responsible TEXT,
		admin_exempt BOOLEAN NOT NULL DEFAULT FALSE,
		previous_debt TEXT NOT NULL DEFAULT '0',
		credit_balance TEXT NOT NULL DEFAULT '0',
		PRIMARY KEY (tenant, id)
	);

	CREATE TABLE IF NOT EXISTS charge_fields (
		tenant TEXT NOT NULL,
		id TEXT NOT NULL,
		label TEXT NOT NULL,
		kind TEXT NOT NULL,
		required BOOLEAN NOT NULL DEFAULT FALSE,
		default_amount TEXT NOT NULL DEFAULT '0',
		cross_unit_allowed BOOLEAN NOT NULL DEFAULT FALSE,
		active_from TEXT NOT NULL DEFAULT '',
		duration_periods INTEGER NOT NULL DEFAULT 0,
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		PRIMARY KEY (tenant, id)
	);

	-- At most one capture per (tenant, unit, period); an edit replaces
	-- the whole field-payment set in one row write.
	CREATE TABLE IF NOT EXISTS payment_records (
		tenant TEXT NOT NULL,
		unit_id TEXT NOT NULL,
		period TEXT NOT NULL,
		payment_type TEXT,
		date TEXT,
		notes TEXT,
		bank_reconciled BOOLEAN NOT NULL DEFAULT FALSE,
		fields_json TEXT NOT NULL,
		adeudos_json TEXT,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (tenant, unit_id, period)
	);

	CREATE INDEX IF NOT EXISTS idx_payment_records_period
		ON payment_records(tenant, period);

	CREATE TABLE IF NOT EXISTS expense_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant TEXT NOT NULL,
		period TEXT NOT NULL,
		field_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		payment_type TEXT,
		bank_reconciled BOOLEAN NOT NULL DEFAULT FALSE,
		provider_name TEXT,
		provider_ref TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_expense_records_period
		ON expense_records(tenant, period);

	CREATE TABLE IF NOT EXISTS unrecognized_income (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant TEXT NOT NULL,
		period TEXT NOT NULL,
		amount TEXT NOT NULL,
		concept TEXT,
		bank_reconciled BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_unrecognized_income_period
		ON unrecognized_income(tenant, period);

	CREATE TABLE IF NOT EXISTS period_locks (
		tenant TEXT NOT NULL,
		period TEXT NOT NULL,
		closed BOOLEAN NOT NULL DEFAULT FALSE,
		reopen_state TEXT NOT NULL DEFAULT 'none',
		updated_at TEXT NOT NULL,
		PRIMARY KEY (tenant, period)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot loads the tenant's full record set in one read transaction.
func (s *Store) Snapshot(ctx context.Context, tenant string) (*engine.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to begin snapshot read: %w", err)
	}
	defer tx.Rollback()

	snap := &engine.Snapshot{Tenant: tenant, Locks: engine.LockTable{}}

	snap.Catalog.BaseFee = decimal.Zero
	var baseFee string
	err = tx.QueryRowContext(ctx, `SELECT base_fee FROM tenant_settings WHERE tenant = ?`, tenant).Scan(&baseFee)
	switch {
	case err == sql.ErrNoRows:
		// New tenant, zero base fee.
	case err != nil:
		return nil, fmt.Errorf("failed to load tenant settings: %w", err)
	default:
		if snap.Catalog.BaseFee, err = decimal.NewFromString(baseFee); err != nil {
			return nil, fmt.Errorf("corrupt base fee %q: %w", baseFee, err)
		}
	}

	if snap.Units, err = s.loadUnits(ctx, tx, tenant); err != nil {
		return nil, err
	}
	if snap.Catalog.Fields, err = s.loadFields(ctx, tx, tenant); err != nil {
		return nil, err
	}
	if snap.Records, err = s.loadPayments(ctx, tx, tenant); err != nil {
		return nil, err
	}
	if snap.Expenses, err = s.loadExpenses(ctx, tx, tenant); err != nil {
		return nil, err
	}
	if snap.Unrecognized, err = s.loadUnrecognized(ctx, tx, tenant); err != nil {
		return nil, err
	}
	if snap.Locks, err = s.loadLocks(ctx, tx, tenant); err != nil {
		return nil, err
	}

	return snap, tx.Commit()
}

func (s *Store) loadUnits(ctx context.Context, tx *sql.Tx, tenant string) ([]engine.Unit, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, code, name, occupancy, COALESCE(responsible, ''),
		       admin_exempt, previous_debt, credit_balance
		FROM units WHERE tenant = ? ORDER BY id`, tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to load units: %w", err)
	}
	defer rows.Close()

	var units []engine.Unit
	for rows.Next() {
		var u engine.Unit
		var occupancy, prevDebt, credit string
		if err := rows.Scan(&u.ID, &u.Code, &u.Name, &occupancy, &u.Responsible,
			&u.AdminExempt, &prevDebt, &credit); err != nil {
			return nil, fmt.Errorf("failed to scan unit: %w", err)
		}
		u.Occupancy = engine.Occupancy(occupancy)
		if u.PreviousDebt, err = decimal.NewFromString(prevDebt); err != nil {
			return nil, fmt.Errorf("corrupt previous debt for unit %s: %w", u.ID, err)
		}
		if u.CreditBalance, err = decimal.NewFromString(credit); err != nil {
			return nil, fmt.Errorf("corrupt credit balance for unit %s: %w", u.ID, err)
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

func (s *Store) loadFields(ctx context.Context, tx *sql.Tx, tenant string) ([]engine.ChargeField, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, label, kind, required, default_amount, cross_unit_allowed,
		       active_from, duration_periods, enabled
		FROM charge_fields WHERE tenant = ? ORDER BY id`, tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to load charge fields: %w", err)
	}
	defer rows.Close()

	var fields []engine.ChargeField
	for rows.Next() {
		var f engine.ChargeField
		var kind, amount, activeFrom string
		if err := rows.Scan(&f.ID, &f.Label, &kind, &f.Required, &amount,
			&f.CrossUnitAllowed, &activeFrom, &f.DurationPeriods, &f.Enabled); err != nil {
			return nil, fmt.Errorf("failed to scan charge field: %w", err)
		}
		f.Kind = engine.FieldKind(kind)
		if f.DefaultAmount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("corrupt default amount for field %s: %w", f.ID, err)
		}
		if activeFrom != "" {
			if f.ActiveFrom, err = engine.ParsePeriod(activeFrom); err != nil {
				return nil, fmt.Errorf("corrupt active_from for field %s: %w", f.ID, err)
			}
		}
		fields = append(fields, f)
	}
	return fields, rows.Err()
}

func (s *Store) loadPayments(ctx context.Context, tx *sql.Tx, tenant string) ([]engine.PaymentRecord, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT unit_id, period, COALESCE(payment_type, ''), COALESCE(date, ''),
		       COALESCE(notes, ''), bank_reconciled, fields_json, COALESCE(adeudos_json, '')
		FROM payment_records WHERE tenant = ? ORDER BY unit_id, period`, tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment records: %w", err)
	}
	defer rows.Close()

	var records []engine.PaymentRecord
	for rows.Next() {
		var rec engine.PaymentRecord
		var period, date, fieldsJSON, adeudosJSON string
		if err := rows.Scan(&rec.UnitID, &period, &rec.PaymentType, &date,
			&rec.Notes, &rec.BankReconciled, &fieldsJSON, &adeudosJSON); err != nil {
			return nil, fmt.Errorf("failed to scan payment record: %w", err)
		}
		if rec.Period, err = engine.ParsePeriod(period); err != nil {
			return nil, fmt.Errorf("corrupt period %q: %w", period, err)
		}
		if date != "" {
			if rec.Date, err = time.Parse(time.RFC3339, date); err != nil {
				return nil, fmt.Errorf("corrupt date for %s/%s: %w", rec.UnitID, period, err)
			}
		}
		if err := json.Unmarshal([]byte(fieldsJSON), &rec.Fields); err != nil {
			return nil, fmt.Errorf("corrupt field payments for %s/%s: %w", rec.UnitID, period, err)
		}
		if adeudosJSON != "" {
			if err := json.Unmarshal([]byte(adeudosJSON), &rec.Adeudos); err != nil {
				return nil, fmt.Errorf("corrupt adeudos for %s/%s: %w", rec.UnitID, period, err)
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) loadExpenses(ctx context.Context, tx *sql.Tx, tenant string) ([]engine.ExpenseRecord, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT period, field_id, amount, COALESCE(payment_type, ''), bank_reconciled,
		       COALESCE(provider_name, ''), COALESCE(provider_ref, '')
		FROM expense_records WHERE tenant = ? ORDER BY id`, tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to load expenses: %w", err)
	}
	defer rows.Close()

	var expenses []engine.ExpenseRecord
	for rows.Next() {
		var exp engine.ExpenseRecord
		var period, amount string
		if err := rows.Scan(&period, &exp.FieldID, &amount, &exp.PaymentType,
			&exp.BankReconciled, &exp.ProviderName, &exp.ProviderRef); err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		if exp.Period, err = engine.ParsePeriod(period); err != nil {
			return nil, fmt.Errorf("corrupt expense period %q: %w", period, err)
		}
		if exp.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("corrupt expense amount %q: %w", amount, err)
		}
		expenses = append(expenses, exp)
	}
	return expenses, rows.Err()
}

func (s *Store) loadUnrecognized(ctx context.Context, tx *sql.Tx, tenant string) ([]engine.UnrecognizedIncome, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT period, amount, COALESCE(concept, ''), bank_reconciled
		FROM unrecognized_income WHERE tenant = ? ORDER BY id`, tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to load unrecognized income: %w", err)
	}
	defer rows.Close()

	var incomes []engine.UnrecognizedIncome
	for rows.Next() {
		var inc engine.UnrecognizedIncome
		var period, amount string
		if err := rows.Scan(&period, &amount, &inc.Concept, &inc.BankReconciled); err != nil {
			return nil, fmt.Errorf("failed to scan unrecognized income: %w", err)
		}
		if inc.Period, err = engine.ParsePeriod(period); err != nil {
			return nil, fmt.Errorf("corrupt income period %q: %w", period, err)
		}
		if inc.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("corrupt income amount %q: %w", amount, err)
		}
		incomes = append(incomes, inc)
	}
	return incomes, rows.Err()
}

func (s *Store) loadLocks(ctx context.Context, tx *sql.Tx, tenant string) (engine.LockTable, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT period, closed, reopen_state
		FROM period_locks WHERE tenant = ?`, tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to load period locks: %w", err)
	}
	defer rows.Close()

	locks := engine.LockTable{}
	for rows.Next() {
		var lock engine.PeriodLock
		var period, reopen string
		if err := rows.Scan(&period, &lock.Closed, &reopen); err != nil {
			return nil, fmt.Errorf("failed to scan period lock: %w", err)
		}
		if lock.Period, err = engine.ParsePeriod(period); err != nil {
			return nil, fmt.Errorf("corrupt lock period %q: %w", period, err)
		}
		lock.Reopen = engine.ReopenState(reopen)
		locks[lock.Period] = lock
	}
	return locks, rows.Err()
}

// =============================================================================
// WRITES
// =============================================================================

func (s *Store) SaveUnit(ctx context.Context, tenant string, u engine.Unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO units (tenant, id, code, name, occupancy, responsible,
		                   admin_exempt, previous_debt, credit_balance)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant, id) DO UPDATE SET
			code = excluded.code,
			name = excluded.name,
			occupancy = excluded.occupancy,
			responsible = excluded.responsible,
			admin_exempt = excluded.admin_exempt,
			previous_debt = excluded.previous_debt,
			credit_balance = excluded.credit_balance`,
		tenant, u.ID, u.Code, u.Name, string(u.Occupancy), u.Responsible,
		u.AdminExempt, u.PreviousDebt.String(), u.CreditBalance.String())
	if err != nil {
		return fmt.Errorf("failed to save unit %s: %w", u.ID, err)
	}
	return nil
}

func (s *Store) SaveChargeField(ctx context.Context, tenant string, f engine.ChargeField) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	activeFrom := ""
	if !f.ActiveFrom.IsPreLedger() {
		activeFrom = f.ActiveFrom.String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO charge_fields (tenant, id, label, kind, required, default_amount,
		                           cross_unit_allowed, active_from, duration_periods, enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant, id) DO UPDATE SET
			label = excluded.label,
			kind = excluded.kind,
			required = excluded.required,
			default_amount = excluded.default_amount,
			cross_unit_allowed = excluded.cross_unit_allowed,
			active_from = excluded.active_from,
			duration_periods = excluded.duration_periods,
			enabled = excluded.enabled`,
		tenant, f.ID, f.Label, string(f.Kind), f.Required, f.DefaultAmount.String(),
		f.CrossUnitAllowed, activeFrom, f.DurationPeriods, f.Enabled)
	if err != nil {
		return fmt.Errorf("failed to save charge field %s: %w", f.ID, err)
	}
	return nil
}

func (s *Store) SetBaseFee(ctx context.Context, tenant string, fee decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenant_settings (tenant, base_fee) VALUES (?, ?)
		ON CONFLICT (tenant) DO UPDATE SET base_fee = excluded.base_fee`,
		tenant, fee.String())
	if err != nil {
		return fmt.Errorf("failed to set base fee: %w", err)
	}
	return nil
}

// SavePayment replaces the whole record for (unit, period) in one row
// write; the nested field-payment set never survives partially.
func (s *Store) SavePayment(ctx context.Context, tenant string, rec engine.PaymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fieldsJSON, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("failed to encode field payments: %w", err)
	}
	adeudosJSON := ""
	if len(rec.Adeudos) > 0 {
		b, err := json.Marshal(rec.Adeudos)
		if err != nil {
			return fmt.Errorf("failed to encode adeudos: %w", err)
		}
		adeudosJSON = string(b)
	}
	date := ""
	if !rec.Date.IsZero() {
		date = rec.Date.UTC().Format(time.RFC3339)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO payment_records
		(tenant, unit_id, period, payment_type, date, notes, bank_reconciled,
		 fields_json, adeudos_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tenant, rec.UnitID, rec.Period.String(), rec.PaymentType, date, rec.Notes,
		rec.BankReconciled, string(fieldsJSON), adeudosJSON,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save payment %s/%s: %w", rec.UnitID, rec.Period, err)
	}
	return nil
}

func (s *Store) SaveExpense(ctx context.Context, tenant string, exp engine.ExpenseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expense_records
		(tenant, period, field_id, amount, payment_type, bank_reconciled,
		 provider_name, provider_ref, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tenant, exp.Period.String(), exp.FieldID, exp.Amount.String(), exp.PaymentType,
		exp.BankReconciled, exp.ProviderName, exp.ProviderRef,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save expense: %w", err)
	}
	return nil
}

func (s *Store) SaveUnrecognized(ctx context.Context, tenant string, inc engine.UnrecognizedIncome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO unrecognized_income (tenant, period, amount, concept, bank_reconciled, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		tenant, inc.Period.String(), inc.Amount.String(), inc.Concept, inc.BankReconciled,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save unrecognized income: %w", err)
	}
	return nil
}

// UpdateLock runs fn under the store's write lock, the exclusive section
// that keeps "request reopen" from racing "approve/reject".
func (s *Store) UpdateLock(ctx context.Context, tenant string, p engine.Period, fn func(engine.PeriodLock) (engine.PeriodLock, error)) (engine.PeriodLock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock := engine.PeriodLock{Period: p, Reopen: engine.ReopenNone}
	var reopen string
	err := s.db.QueryRowContext(ctx,
		`SELECT closed, reopen_state FROM period_locks WHERE tenant = ? AND period = ?`,
		tenant, p.String()).Scan(&lock.Closed, &reopen)
	switch {
	case err == sql.ErrNoRows:
		// Never locked before: open.
	case err != nil:
		return lock, fmt.Errorf("failed to load lock %s: %w", p, err)
	default:
		lock.Reopen = engine.ReopenState(reopen)
	}

	updated, err := fn(lock)
	if err != nil {
		return lock, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO period_locks (tenant, period, closed, reopen_state, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		tenant, p.String(), updated.Closed, string(updated.Reopen),
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return lock, fmt.Errorf("failed to save lock %s: %w", p, err)
	}
	return updated, nil
}

var _ engine.RecordStore = (*Store)(nil)
