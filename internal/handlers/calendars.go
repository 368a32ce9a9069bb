package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/servihogar/api/internal/domain"
	"github.com/servihogar/api/internal/platform/auth"
	"github.com/servihogar/api/internal/platform/httpx"
	"github.com/servihogar/api/internal/services"
)

// CalendarHandlers exposes technician calendars and their weekly availability.
type CalendarHandlers struct {
	authn     *auth.Authenticator
	calendars services.CalendarService
}

func NewCalendarHandlers(authn *auth.Authenticator, calendars services.CalendarService) *CalendarHandlers {
	return &CalendarHandlers{
		authn:     authn,
		calendars: calendars,
	}
}

// Routes registers the /calendars endpoints.
func (h *CalendarHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.listCalendars)
	r.Post("/", h.createCalendar)
	r.Get("/{calendarID}", h.getCalendar)
	r.Patch("/{calendarID}", h.updateCalendar)
	r.Delete("/{calendarID}", h.deleteCalendar)
}

type availabilityDayRequest struct {
	Weekday int      `json:"weekday"`
	Slots   []string `json:"slots"`
}

type createCalendarRequest struct {
	Name         string                   `json:"name"`
	StaffID      string                   `json:"staffId"`
	Color        string                   `json:"color"`
	Availability []availabilityDayRequest `json:"availability"`
}

type updateCalendarRequest struct {
	Name         *string                  `json:"name"`
	Color        *string                  `json:"color"`
	Active       *bool                    `json:"active"`
	Availability []availabilityDayRequest `json:"availability"`
	StaffID      *string                  `json:"staffId"`
	ClearStaff   bool                     `json:"clearStaff"`
}

func availabilityFromRequest(days []availabilityDayRequest) []domain.DailyAvailability {
	if days == nil {
		return nil
	}
	availability := make([]domain.DailyAvailability, 0, len(days))
	for _, day := range days {
		slots := make([]domain.TimeSlot, 0, len(day.Slots))
		for _, start := range day.Slots {
			slots = append(slots, domain.TimeSlot{StartTime: strings.TrimSpace(start)})
		}
		availability = append(availability, domain.DailyAvailability{
			Weekday: day.Weekday,
			Slots:   slots,
		})
	}
	return availability
}

func (h *CalendarHandlers) listCalendars(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	activeOnly := r.URL.Query().Get("active_only") == "true"
	calendars, err := h.calendars.List(ctx, actor, activeOnly)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	items := make([]calendarPayload, 0, len(calendars))
	for _, calendar := range calendars {
		items = append(items, buildCalendarPayload(calendar))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

func (h *CalendarHandlers) createCalendar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req createCalendarRequest
	if err := decodeBody(r, defaultBodyLimit, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	calendar, err := h.calendars.Create(ctx, services.CreateCalendarCommand{
		Actor:        actor,
		Name:         req.Name,
		StaffID:      req.StaffID,
		Color:        req.Color,
		Availability: availabilityFromRequest(req.Availability),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildCalendarPayload(calendar))
}

func (h *CalendarHandlers) getCalendar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	calendarID := strings.TrimSpace(chi.URLParam(r, "calendarID"))
	if calendarID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "calendar id is required", http.StatusBadRequest))
		return
	}

	calendar, err := h.calendars.Get(ctx, actor, calendarID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCalendarPayload(calendar))
}

func (h *CalendarHandlers) updateCalendar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	calendarID := strings.TrimSpace(chi.URLParam(r, "calendarID"))
	if calendarID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "calendar id is required", http.StatusBadRequest))
		return
	}

	var req updateCalendarRequest
	if err := decodeBody(r, defaultBodyLimit, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	calendar, err := h.calendars.Update(ctx, services.UpdateCalendarCommand{
		Actor:        actor,
		CalendarID:   calendarID,
		Name:         req.Name,
		Color:        req.Color,
		Active:       req.Active,
		Availability: availabilityFromRequest(req.Availability),
		StaffID:      req.StaffID,
		ClearStaff:   req.ClearStaff,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCalendarPayload(calendar))
}

func (h *CalendarHandlers) deleteCalendar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	calendarID := strings.TrimSpace(chi.URLParam(r, "calendarID"))
	if calendarID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "calendar id is required", http.StatusBadRequest))
		return
	}

	if err := h.calendars.Delete(ctx, services.DeleteCalendarCommand{Actor: actor, CalendarID: calendarID}); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type availabilityDayPayload struct {
	Weekday int          `json:"weekday"`
	Slots   []slotWindow `json:"slots"`
}

type slotWindow struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

type calendarPayload struct {
	ID           string                   `json:"id"`
	Name         string                   `json:"name"`
	StaffID      string                   `json:"staffId,omitempty"`
	Color        string                   `json:"color,omitempty"`
	Availability []availabilityDayPayload `json:"availability"`
	Active       bool                     `json:"active"`
	CreatedAt    string                   `json:"createdAt"`
	UpdatedAt    string                   `json:"updatedAt"`
}

func buildCalendarPayload(calendar services.Calendar) calendarPayload {
	availability := make([]availabilityDayPayload, 0, len(calendar.Availability))
	for _, day := range calendar.Availability {
		slots := make([]slotWindow, 0, len(day.Slots))
		for _, slot := range day.Slots {
			slots = append(slots, slotWindow{StartTime: slot.StartTime, EndTime: slot.EndTime})
		}
		availability = append(availability, availabilityDayPayload{Weekday: day.Weekday, Slots: slots})
	}
	return calendarPayload{
		ID:           calendar.ID,
		Name:         calendar.Name,
		StaffID:      stringValue(calendar.StaffID),
		Color:        calendar.Color,
		Availability: availability,
		Active:       calendar.Active,
		CreatedAt:    formatTimestamp(calendar.CreatedAt),
		UpdatedAt:    formatTimestamp(calendar.UpdatedAt),
	}
}
