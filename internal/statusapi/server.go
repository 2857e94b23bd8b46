// Package statusapi implements the Orchestrator's embedded HTTP surface
// implementing the CLI's status surface: `GET /health` returning
// {status, phase, running, uptime_s, metrics}, with `/` and `/api/health`
// as aliases, via a go-chi router,
// Recoverer/RequestID middleware, graceful Start/Shutdown) but stripped
// down to the read-only, templateless surface this agent's Non-goals call
// for — no auth, no HTML dashboard, just machine-readable status.
package statusapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/orb-agent/internal/models"
)

// StatusProvider supplies the live snapshot the status endpoint reports.
// The Orchestrator implements this directly against its PhaseMachine and
// PositionBook.
type StatusProvider interface {
	Phase() models.Phase
	Running() bool
	OpenPositionCount() int
	TradesToday() int
	AccountSnapshot() models.Account
}

// Metrics is the status endpoint's "metrics" sub-object: plain runtime
// counters rather than a Prometheus registry, since metrics export is out of scope
// excluding a /metrics scrape surface.
type Metrics struct {
	OpenPositions   int     `json:"open_positions"`
	TradesToday     int     `json:"trades_today"`
	CashBalance     float64 `json:"cash_balance"`
	StartingBalance float64 `json:"starting_balance"`
}

// Server is the embedded health/status HTTP surface (C1's scheduling
// surface made observable from outside the process).
type Server struct {
	router    *chi.Mux
	server    *http.Server
	status    StatusProvider
	logger    *logrus.Logger
	port      int
	startedAt time.Time
}

// New builds a Server backed by status, listening on port once Start is called.
func New(port int, status StatusProvider, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{router: chi.NewRouter(), status: status, logger: logger, port: port, startedAt: time.Now()}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(5 * time.Second))

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/", s.handleHealth)
	s.router.Get("/api/health", s.handleHealth)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	acct := s.status.AccountSnapshot()
	body := map[string]any{
		"status":   "ok",
		"phase":    s.status.Phase(),
		"running":  s.status.Running(),
		"uptime_s": int(time.Since(s.startedAt).Seconds()),
		"metrics": Metrics{
			OpenPositions:   s.status.OpenPositionCount(),
			TradesToday:     s.status.TradesToday(),
			CashBalance:     acct.CashBalance,
			StartingBalance: acct.StartingBalance,
		},
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.WithError(err).Error("statusapi: failed to encode status response")
	}
}

// Start runs the HTTP server until it is shut down; it returns
// http.ErrServerClosed on a graceful Shutdown, which callers should treat
// as success.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server, nil-safe if Start was never called.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
