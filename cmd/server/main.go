/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the condominium ledger engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and environment configuration
  2. Initialize the record store (SQLite or in-memory)
  3. Create API handler with dependencies
  4. Configure HTTP router
  5. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (configurable timeout)
  3. Close database connection
  4. Exit

ENVIRONMENT:
  PORT               HTTP server port (default: 8080)
  DATA_BACKEND       "sqlite" or "memory" (default: sqlite)
  SQLITE_DB_PATH     SQLite database path (default: ./data/condo.db)
                     Use ":memory:" for an in-memory database
  LOG_LEVEL          debug|info|warn|error (default: info)
  SHUTDOWN_TIMEOUT   Graceful shutdown window (default: 10s)

EXAMPLES:
  # Run with file database
  SQLITE_DB_PATH=./data/condo.db ./server

  # Run with the in-memory backend
  DATA_BACKEND=memory ./server

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
  - internal/config/config.go: Environment configuration
*/
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/vecindario/condo-engine/api"
	"github.com/vecindario/condo-engine/engine"
	memstore "github.com/vecindario/condo-engine/engine/store"
	"github.com/vecindario/condo-engine/internal/config"
	"github.com/vecindario/condo-engine/internal/log"
	"github.com/vecindario/condo-engine/store/sqlite"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()
	logger := log.New(log.Config{
		Level:     log.ParseLevel(cfg.LogLevel),
		Component: log.ComponentApp,
	})
	log.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", log.FieldError, err)
		os.Exit(1)
	}

	store, closeStore, err := buildStore(cfg)
	if err != nil {
		logger.Error("Failed to initialize store", log.FieldError, err)
		os.Exit(1)
	}
	defer closeStore()

	handler := api.NewHandler(store)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Info("Server starting",
			"addr", server.Addr,
			"backend", cfg.DataBackend,
			log.FieldOperation, log.OpStartup)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", log.FieldError, err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server", log.FieldOperation, log.OpShutdown)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", log.FieldError, err)
		os.Exit(1)
	}

	logger.Info("Server stopped")
}

func buildStore(cfg *config.Config) (engine.RecordStore, func(), error) {
	switch cfg.DataBackend {
	case "memory":
		return memstore.NewMemory(), func() {}, nil
	default:
		store, err := sqlite.New(cfg.SQLiteDBPath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	}
}
