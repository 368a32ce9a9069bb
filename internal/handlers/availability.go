package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/servihogar/api/internal/platform/auth"
	"github.com/servihogar/api/internal/platform/httpx"
	"github.com/servihogar/api/internal/services"
)

// AvailabilityHandlers answers slot-occupancy queries for the booking UI.
type AvailabilityHandlers struct {
	authn        *auth.Authenticator
	availability services.AvailabilityService
}

func NewAvailabilityHandlers(authn *auth.Authenticator, availability services.AvailabilityService) *AvailabilityHandlers {
	return &AvailabilityHandlers{
		authn:        authn,
		availability: availability,
	}
}

// Routes registers the /availability endpoints.
func (h *AvailabilityHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.daySchedule)
}

func (h *AvailabilityHandlers) daySchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireActor(w, r); !ok {
		return
	}

	query := services.AvailabilityQuery{
		CalendarID:     strings.TrimSpace(r.URL.Query().Get("calendar_id")),
		Date:           strings.TrimSpace(r.URL.Query().Get("date")),
		ExcludeOrderID: strings.TrimSpace(r.URL.Query().Get("exclude_order_id")),
	}
	if query.CalendarID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "calendar_id is required", http.StatusBadRequest))
		return
	}
	if query.Date == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "date is required", http.StatusBadRequest))
		return
	}

	schedule, err := h.availability.DaySchedule(ctx, query)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	slots := make([]slotPayload, 0, len(schedule.Slots))
	for _, slot := range schedule.Slots {
		slots = append(slots, slotPayload{
			StartTime: slot.StartTime,
			EndTime:   slot.EndTime,
			Occupied:  slot.Occupied,
		})
	}
	writeJSONResponse(w, http.StatusOK, daySchedulePayload{
		CalendarID: schedule.CalendarID,
		Date:       schedule.Date,
		Slots:      slots,
	})
}

type slotPayload struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Occupied  bool   `json:"occupied"`
}

type daySchedulePayload struct {
	CalendarID string        `json:"calendarId"`
	Date       string        `json:"date"`
	Slots      []slotPayload `json:"slots"`
}
