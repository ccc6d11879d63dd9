package api

import (
	"net/http"
	"time"

	"github.com/okian/usagedash/pkg/logger"
)

// UsageHandler serves the dashboard usage endpoints.
type UsageHandler struct {
	deps   Dependencies
	now    func() time.Time
	logger logger.Logger
}

// NewUsageHandler creates a new usage handler.
func NewUsageHandler(deps Dependencies) *UsageHandler {
	return &UsageHandler{deps: deps, now: time.Now, logger: logger.Nop()}
}

func (h *UsageHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(r.Context(), "usage request failed",
			logger.String("op", op),
			logger.String("query", r.URL.RawQuery),
			logger.Error(err))
	}
	writeError(w, status, err)
}

// HandleUsage handles GET /api/usage.
func (h *UsageHandler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_usage"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	q, err := parseUsageQuery(r.URL.Query(), h.now())
	if err != nil {
		h.fail(w, r, op, err)
		return
	}
	resp, err := h.deps.GetUsage(r.Context(), q)
	if err != nil {
		h.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleChart handles GET /api/usage/chart.
func (h *UsageHandler) HandleChart(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_chart"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	q, err := parseUsageQuery(r.URL.Query(), h.now())
	if err != nil {
		h.fail(w, r, op, err)
		return
	}
	points, err := h.deps.GetChart(r.Context(), q)
	if err != nil {
		h.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

// HandleOrganizations handles GET /api/usage/organizations.
func (h *UsageHandler) HandleOrganizations(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_organizations"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	q, err := parseUsageQuery(r.URL.Query(), h.now())
	if err != nil {
		h.fail(w, r, op, err)
		return
	}
	orgs, err := h.deps.GetOrganizations(r.Context(), q)
	if err != nil {
		h.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, orgs)
}

// HandleInvalidate handles POST /api/cache/invalidate.
func (h *UsageHandler) HandleInvalidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	h.deps.InvalidateCache(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}
