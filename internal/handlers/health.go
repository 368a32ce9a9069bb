package handlers

import (
	"net/http"
	"time"

	"github.com/servihogar/api/internal/platform/httpx"
	"github.com/servihogar/api/internal/services"
)

// HealthHandlers serves liveness and readiness probes. Liveness never touches
// downstream dependencies; readiness runs the dependency checks.
type HealthHandlers struct {
	system services.SystemService
	clock  func() time.Time
}

// HealthOption customises the health handlers.
type HealthOption func(*HealthHandlers)

// WithHealthClock injects a custom clock.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewHealthHandlers constructs the probe handlers. A nil system service keeps
// liveness working and reports readiness as unavailable.
func NewHealthHandlers(system services.SystemService, opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{system: system, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Healthz answers liveness probes.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"status":    "ok",
		"timestamp": h.clock().UTC().Format(time.RFC3339),
	}
	if h.system != nil {
		build := h.system.Build()
		payload["version"] = build.Version
		payload["environment"] = build.Environment
		payload["uptime"] = h.clock().Sub(build.StartedAt).String()
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

// Readyz answers readiness probes by collecting dependency checks.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.system == nil {
		httpx.WriteError(ctx, w, httpx.NewError("not_ready", "system service unavailable", http.StatusServiceUnavailable))
		return
	}

	report, err := h.system.Health(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("not_ready", "health collection failed", http.StatusServiceUnavailable))
		return
	}

	checks := make([]map[string]any, 0, len(report.Checks))
	for _, check := range report.Checks {
		checks = append(checks, map[string]any{
			"name":        check.Name,
			"healthy":     check.Healthy,
			"detail":      check.Detail,
			"duration_ms": check.DurationMS,
		})
	}
	payload := map[string]any{
		"healthy":      report.Healthy,
		"generated_at": report.GeneratedAt.UTC().Format(time.RFC3339),
		"checks":       checks,
	}

	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, payload)
}
