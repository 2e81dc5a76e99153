package handlers

import (
	"context"
	"net/http"
	"time"

	domain "github.com/savora/api/internal/domain"
	"github.com/savora/api/internal/platform/httpx"
)

const readinessTimeout = 5 * time.Second

// HealthHandlersDeps configures the liveness and readiness probes.
type HealthHandlersDeps struct {
	// Checker verifies backend connectivity for /readyz. Nil means the
	// process reports ready whenever it is serving.
	Checker func(ctx context.Context) error
	Clock   func() time.Time
}

// HealthHandlers serves the liveness and readiness endpoints.
type HealthHandlers struct {
	checker func(ctx context.Context) error
	now     func() time.Time
}

// NewHealthHandlers constructs the probe handlers.
func NewHealthHandlers(deps HealthHandlersDeps) *HealthHandlers {
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	return &HealthHandlers{
		checker: deps.Checker,
		now:     func() time.Time { return now().UTC() },
	}
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status": domain.HealthStatusOK,
		"time":   h.now().Format(time.RFC3339Nano),
	})
}

// Readyz reports whether backing dependencies are reachable.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.checker != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()
		if err := h.checker(ctx); err != nil {
			httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": domain.HealthStatusError,
				"time":   h.now().Format(time.RFC3339Nano),
			})
			return
		}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status": domain.HealthStatusOK,
		"time":   h.now().Format(time.RFC3339Nano),
	})
}
