package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		wantErr     bool
		errorString string
	}{
		{
			name: "valid sqlite backend config",
			config: Config{
				Port:         "8080",
				DataBackend:  "sqlite",
				SQLiteDBPath: "./test.db",
				LogLevel:     "info",
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 30 * time.Second,
			},
			wantErr: false,
		},
		{
			name: "valid memory backend config",
			config: Config{
				Port:         "8080",
				DataBackend:  "memory",
				LogLevel:     "debug",
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 30 * time.Second,
			},
			wantErr: false,
		},
		{
			name: "invalid port - non-numeric",
			config: Config{
				Port:         "abc",
				DataBackend:  "memory",
				LogLevel:     "info",
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 30 * time.Second,
			},
			wantErr:     true,
			errorString: "invalid port 'abc': must be a number",
		},
		{
			name: "invalid port - out of range",
			config: Config{
				Port:         "70000",
				DataBackend:  "memory",
				LogLevel:     "info",
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 30 * time.Second,
			},
			wantErr:     true,
			errorString: "invalid port 70000: must be between 1 and 65535",
		},
		{
			name: "invalid data backend",
			config: Config{
				Port:         "8080",
				DataBackend:  "postgres",
				LogLevel:     "info",
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 30 * time.Second,
			},
			wantErr:     true,
			errorString: "invalid data backend 'postgres': must be one of [memory sqlite]",
		},
		{
			name: "sqlite backend missing database path",
			config: Config{
				Port:         "8080",
				DataBackend:  "sqlite",
				SQLiteDBPath: "",
				LogLevel:     "info",
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 30 * time.Second,
			},
			wantErr:     true,
			errorString: "SQLite database path cannot be empty",
		},
		{
			name: "invalid log level",
			config: Config{
				Port:         "8080",
				DataBackend:  "memory",
				LogLevel:     "verbose",
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 30 * time.Second,
			},
			wantErr:     true,
			errorString: "invalid log level 'verbose'",
		},
		{
			name: "read timeout too small",
			config: Config{
				Port:         "8080",
				DataBackend:  "memory",
				LogLevel:     "info",
				ReadTimeout:  time.Millisecond,
				WriteTimeout: 30 * time.Second,
			},
			wantErr:     true,
			errorString: "invalid read timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Validate() expected error, got nil")
				}
				if tt.errorString != "" && !strings.Contains(err.Error(), tt.errorString) {
					t.Errorf("Validate() error = %q, want substring %q", err.Error(), tt.errorString)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "SQLITE_DB_PATH", "DATA_BACKEND", "LOG_LEVEL"} {
		os.Unsetenv(key)
	}

	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.DataBackend != "sqlite" {
		t.Errorf("DataBackend = %q, want sqlite", cfg.DataBackend)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATA_BACKEND", "memory")
	t.Setenv("SHUTDOWN_TIMEOUT", "5s")

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Port)
	}
	if cfg.DataBackend != "memory" {
		t.Errorf("DataBackend = %q, want memory", cfg.DataBackend)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 5s", cfg.ShutdownTimeout)
	}
}
