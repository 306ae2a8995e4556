/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS (all under /api/tenants/{tenant}):
  /units/*           Unit management and per-unit statements
  /fields/*          Charge catalog management
  /payments          Payment capture
  /expenses          Expense capture
  /incomes           Unrecognized income capture
  /statements        Batch statements for all units
  /reconciliation    Treasury reconciliation report(s)
  /periods/*         Period lock state machine

SECURITY NOTE:
  No authentication middleware currently. Tenant scoping comes from the
  URL path; all endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api/tenants/{tenant}", func(r chi.Router) {
		// Unit routes
		r.Route("/units", func(r chi.Router) {
			r.Get("/", h.ListUnits)
			r.Post("/", h.SaveUnit)
			r.Get("/{unitID}/statement", h.GetStatement)
		})

		// Charge catalog routes
		r.Route("/fields", func(r chi.Router) {
			r.Get("/", h.ListFields)
			r.Post("/", h.SaveField)
		})
		r.Put("/base-fee", h.SetBaseFee)

		// Capture routes
		r.Post("/payments", h.CapturePayment)
		r.Post("/expenses", h.CaptureExpense)
		r.Post("/incomes", h.CaptureIncome)

		// Reporting routes
		r.Get("/statements", h.BatchStatements)
		r.Get("/reconciliation", h.GetReconciliation)

		// Period lock routes
		r.Route("/periods/{period}", func(r chi.Router) {
			r.Get("/lock", h.GetLock)
			r.Post("/close", h.ClosePeriod)
			r.Post("/request-reopen", h.RequestReopen)
			r.Post("/approve-reopen", h.ApproveReopen)
			r.Post("/reject-reopen", h.RejectReopen)
		})
	})

	return r
}
