// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	service "github.com/okian/usagedash/internal/app"
	"github.com/okian/usagedash/internal/domain/types"
	"github.com/okian/usagedash/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	GetUsage(ctx context.Context, q service.UsageQuery) (types.UsageResponse, error)
	GetChart(ctx context.Context, q service.UsageQuery) ([]types.ChartPoint, error)
	GetOrganizations(ctx context.Context, q service.UsageQuery) ([]types.OrganizationRow, error)
	InvalidateCache(ctx context.Context)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	usageHandler  *UsageHandler

	auth           *Authenticator
	requestTimeout time.Duration
	logger         logger.Logger
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithAuth verifies bearer tokens signed with secret. An empty secret
// disables verification; a non-empty role must match the token's role claim.
func WithAuth(secret, role string) Option {
	return func(s *Server) {
		if secret != "" {
			s.auth = NewAuthenticator([]byte(secret), role)
		}
	}
}

// WithRequestTimeout bounds every API request.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.requestTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the clock used to resolve relative windows.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.usageHandler.now = now
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(statsProvider),
		usageHandler:   NewUsageHandler(deps),
		requestTimeout: 110 * time.Second,
		logger:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.usageHandler.logger = s.logger
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("/api/usage", s.protected(s.usageHandler.HandleUsage, "usage"))
	mux.HandleFunc("/api/usage/chart", s.protected(s.usageHandler.HandleChart, "usage_chart"))
	mux.HandleFunc("/api/usage/organizations", s.protected(s.usageHandler.HandleOrganizations, "usage_organizations"))
	mux.HandleFunc("/api/cache/invalidate", s.protected(s.usageHandler.HandleInvalidate, "cache_invalidate"))
}

// protected applies the API middleware chain, outermost first: metrics,
// request id, auth, timeout.
func (s *Server) protected(h http.HandlerFunc, endpoint string) http.HandlerFunc {
	h = TimeoutMiddleware(h, s.requestTimeout)
	if s.auth != nil {
		h = s.auth.Middleware(h)
	}
	h = RequestIDMiddleware(h)
	return MetricsMiddleware(h, endpoint)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	msg := http.StatusText(status)
	if err != nil && status < http.StatusInternalServerError {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Error: msg})
}
