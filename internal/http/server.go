// Package http exposes the expense and settings operations as a JSON
// API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"pocketledger/internal/core"
	"pocketledger/internal/log"
	"pocketledger/internal/services"
)

// SettingsStore is the slice of the settings layer the API needs. PIN
// verification stays out of the HTTP surface; embedding callers use the
// settings package directly for that.
type SettingsStore interface {
	GetSettings(ctx context.Context) core.Settings
	UpdateSettings(ctx context.Context, patch core.SettingsPatch) (core.Settings, error)
	SetBiometricEnabled(ctx context.Context, enabled bool) (core.Settings, error)
	ClearAll(ctx context.Context) error
}

type Server struct {
	http.Server

	expenses *services.ExpenseService
	settings SettingsStore
	logger   *log.Logger

	rateLimiter  *rateLimiter
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a
// ready-to-run http.Server.
func NewServer(addr string, expenses *services.ExpenseService, settingsStore SettingsStore, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentHTTP)
	}

	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		expenses:    expenses,
		settings:    settingsStore,
		logger:      logger,
		rateLimiter: newRateLimiter(),
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("POST /api/expenses", s.withMiddleware(s.handleCreateExpense))
	mux.HandleFunc("GET /api/expenses", s.withMiddleware(s.handleListExpenses))
	mux.HandleFunc("DELETE /api/expenses", s.withMiddleware(s.handleClearExpenses))
	mux.HandleFunc("GET /api/expenses/{id}", s.withMiddleware(s.handleGetExpense))
	mux.HandleFunc("PUT /api/expenses/{id}", s.withMiddleware(s.handleUpdateExpense))
	mux.HandleFunc("DELETE /api/expenses/{id}", s.withMiddleware(s.handleDeleteExpense))
	mux.HandleFunc("GET /api/stats", s.withMiddleware(s.handleStats))

	mux.HandleFunc("GET /api/settings", s.withMiddleware(s.handleGetSettings))
	mux.HandleFunc("PATCH /api/settings", s.withMiddleware(s.handleUpdateSettings))
	mux.HandleFunc("PUT /api/settings/biometric", s.withMiddleware(s.handleSetBiometric))
	mux.HandleFunc("DELETE /api/settings", s.withMiddleware(s.handleClearSettings))

	return s
}

// Shutdown stops the rate limiter cleanup goroutine and drains in-flight
// requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
