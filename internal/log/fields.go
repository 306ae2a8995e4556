package log

// Common field names for structured logging
const (
	FieldComponent = "component"
	FieldTenant    = "tenant"
	FieldUnit      = "unit_id"
	FieldPeriod    = "period"
	FieldOperation = "operation"
	FieldError     = "error"
	FieldDuration  = "duration_ms"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentHTTP    = "http"
	ComponentLedger  = "ledger"
	ComponentStorage = "storage"
	ComponentLocks   = "locks"
)

// Operations defines standard operation names
const (
	OpCapture   = "capture"
	OpStatement = "statement"
	OpReconcile = "reconcile"
	OpClose     = "close"
	OpReopen    = "reopen"
	OpStartup   = "startup"
	OpShutdown  = "shutdown"
)
