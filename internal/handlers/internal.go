package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/servihogar/api/internal/platform/httpx"
	"github.com/servihogar/api/internal/services"
)

// InternalHandlers exposes the scheduler-invoked endpoints: the maintenance
// tick, the outbox drain, and the cancelled-order purge. Authentication is the
// router's concern (OIDC middleware on the /internal group); these handlers run
// as the system actor.
type InternalHandlers struct {
	maintenance services.MaintenanceService
	sync        services.SyncService
	orders      services.ServiceOrderService
	clock       func() time.Time
}

// InternalOption customises InternalHandlers construction.
type InternalOption func(*InternalHandlers)

// WithInternalClock overrides the wall clock, for tests.
func WithInternalClock(clock func() time.Time) InternalOption {
	return func(h *InternalHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

func NewInternalHandlers(maintenance services.MaintenanceService, sync services.SyncService, orders services.ServiceOrderService, opts ...InternalOption) *InternalHandlers {
	h := &InternalHandlers{
		maintenance: maintenance,
		sync:        sync,
		orders:      orders,
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers the /internal endpoints.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/maintenance:run", h.runMaintenance)
	r.Post("/outbox:drain", h.drainOutbox)
	r.Post("/purge:run", h.runPurge)
	r.Get("/calendars/{calendarID}/events", h.listCalendarEvents)
}

func (h *InternalHandlers) runMaintenance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.maintenance == nil {
		httpx.WriteError(ctx, w, httpx.NewError("not_ready", "maintenance engine is not configured", http.StatusServiceUnavailable))
		return
	}

	result, err := h.maintenance.Tick(ctx, h.clock())
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"evaluated": result.Evaluated,
		"fired":     result.Fired,
		"skipped":   result.Skipped,
	})
}

func (h *InternalHandlers) drainOutbox(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sync == nil {
		httpx.WriteError(ctx, w, httpx.NewError("not_ready", "calendar sync is not configured", http.StatusServiceUnavailable))
		return
	}

	result, err := h.sync.Drain(ctx, h.clock())
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"processed": result.Processed,
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
	})
}

// listCalendarEvents surfaces what the external calendar currently holds for
// one technician, so an operator can compare it against the orders here.
func (h *InternalHandlers) listCalendarEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sync == nil {
		httpx.WriteError(ctx, w, httpx.NewError("not_ready", "calendar sync is not configured", http.StatusServiceUnavailable))
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid", "limit must be a positive integer", http.StatusBadRequest))
			return
		}
		limit = parsed
	}

	events, err := h.sync.UpcomingEvents(ctx, chi.URLParam(r, "calendarID"), h.clock(), limit)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	if events == nil {
		events = []services.UpcomingEvent{}
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"events": events})
}

func (h *InternalHandlers) runPurge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("not_ready", "order service is not configured", http.StatusServiceUnavailable))
		return
	}

	purged, err := h.orders.PurgeCancelled(ctx, services.PurgeCommand{
		Actor: services.SystemActor(),
		Now:   h.clock(),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"purged": purged})
}
