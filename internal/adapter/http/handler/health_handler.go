package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/osparrot/swiftpayme-platform-sub005/internal/adapter/http/dto"
)

// Check pings one dependency.
type Check func(ctx context.Context) error

// HealthHandler handles health check requests.
type HealthHandler struct {
	checks  map[string]Check
	timeout time.Duration
}

// NewHealthHandler creates a HealthHandler running checks on readiness.
func NewHealthHandler(checks map[string]Check) *HealthHandler {
	return &HealthHandler{checks: checks, timeout: 5 * time.Second}
}

// Liveness returns 200 if the service is alive.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness returns 200 if every dependency answers.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := map[string]string{"status": "ready"}
	ready := true
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			status[name] = "unhealthy"
			ready = false
			continue
		}
		status[name] = "ok"
	}

	if !ready {
		status["status"] = "not_ready"
		writeEnvelope(w, http.StatusServiceUnavailable, dto.Envelope{
			Data:  status,
			Error: &dto.ErrorBody{Code: "unavailable", Message: "dependency check failed"},
		})
		return
	}
	writeJSON(w, http.StatusOK, status)
}
