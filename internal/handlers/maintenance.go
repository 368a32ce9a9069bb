package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/servihogar/api/internal/platform/auth"
	"github.com/servihogar/api/internal/platform/httpx"
	"github.com/servihogar/api/internal/services"
)

// MaintenanceHandlers exposes recurring-maintenance schedule management.
type MaintenanceHandlers struct {
	authn     *auth.Authenticator
	schedules services.MaintenanceService
}

func NewMaintenanceHandlers(authn *auth.Authenticator, schedules services.MaintenanceService) *MaintenanceHandlers {
	return &MaintenanceHandlers{
		authn:     authn,
		schedules: schedules,
	}
}

// Routes registers the /maintenance endpoints.
func (h *MaintenanceHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.listSchedules)
	r.Post("/", h.createSchedule)
	r.Patch("/{scheduleID}", h.updateSchedule)
	r.Delete("/{scheduleID}", h.deleteSchedule)
}

type createScheduleRequest struct {
	CustomerID      string `json:"customerId"`
	Description     string `json:"description"`
	StartDate       string `json:"startDate"`
	FrequencyMonths int    `json:"frequencyMonths"`
}

type updateScheduleRequest struct {
	Description     *string `json:"description"`
	FrequencyMonths *int    `json:"frequencyMonths"`
	NextDueDate     *string `json:"nextDueDate"`
}

func (h *MaintenanceHandlers) listSchedules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	schedules, err := h.schedules.List(ctx, actor)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	items := make([]schedulePayload, 0, len(schedules))
	for _, schedule := range schedules {
		items = append(items, buildSchedulePayload(schedule))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

func (h *MaintenanceHandlers) createSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req createScheduleRequest
	if err := decodeBody(r, defaultBodyLimit, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	schedule, err := h.schedules.Create(ctx, services.CreateScheduleCommand{
		Actor:           actor,
		CustomerID:      req.CustomerID,
		Description:     req.Description,
		StartDate:       req.StartDate,
		FrequencyMonths: req.FrequencyMonths,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildSchedulePayload(schedule))
}

func (h *MaintenanceHandlers) updateSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	scheduleID := strings.TrimSpace(chi.URLParam(r, "scheduleID"))
	if scheduleID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "schedule id is required", http.StatusBadRequest))
		return
	}

	var req updateScheduleRequest
	if err := decodeBody(r, defaultBodyLimit, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	schedule, err := h.schedules.Update(ctx, services.UpdateScheduleCommand{
		Actor:           actor,
		ScheduleID:      scheduleID,
		Description:     req.Description,
		FrequencyMonths: req.FrequencyMonths,
		NextDueDate:     req.NextDueDate,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildSchedulePayload(schedule))
}

func (h *MaintenanceHandlers) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	scheduleID := strings.TrimSpace(chi.URLParam(r, "scheduleID"))
	if scheduleID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "schedule id is required", http.StatusBadRequest))
		return
	}

	if err := h.schedules.Delete(ctx, services.DeleteScheduleCommand{Actor: actor, ScheduleID: scheduleID}); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type schedulePayload struct {
	ID              string `json:"id"`
	CustomerID      string `json:"customerId"`
	Description     string `json:"description"`
	StartDate       string `json:"startDate"`
	FrequencyMonths int    `json:"frequencyMonths"`
	NextDueDate     string `json:"nextDueDate"`
	CreatedAt       string `json:"createdAt"`
	UpdatedAt       string `json:"updatedAt"`
}

func buildSchedulePayload(schedule services.MaintenanceSchedule) schedulePayload {
	return schedulePayload{
		ID:              schedule.ID,
		CustomerID:      schedule.CustomerID,
		Description:     schedule.Description,
		StartDate:       schedule.StartDate,
		FrequencyMonths: schedule.FrequencyMonths,
		NextDueDate:     schedule.NextDueDate,
		CreatedAt:       formatTimestamp(schedule.CreatedAt),
		UpdatedAt:       formatTimestamp(schedule.UpdatedAt),
	}
}
