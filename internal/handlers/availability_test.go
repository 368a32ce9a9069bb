package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/servihogar/api/internal/services"
)

type stubAvailabilityService struct {
	dayFn func(context.Context, services.AvailabilityQuery) (services.DaySchedule, error)
}

func (s *stubAvailabilityService) DaySchedule(ctx context.Context, query services.AvailabilityQuery) (services.DaySchedule, error) {
	if s.dayFn != nil {
		return s.dayFn(ctx, query)
	}
	return services.DaySchedule{}, nil
}

func newAvailabilityRouter(service services.AvailabilityService) chi.Router {
	handler := NewAvailabilityHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/availability", handler.Routes)
	return router
}

func TestAvailabilityDaySchedule(t *testing.T) {
	var captured services.AvailabilityQuery
	service := &stubAvailabilityService{
		dayFn: func(_ context.Context, query services.AvailabilityQuery) (services.DaySchedule, error) {
			captured = query
			return services.DaySchedule{
				CalendarID: query.CalendarID,
				Date:       query.Date,
				Slots: []services.SlotStatus{
					{StartTime: "09:00", EndTime: "10:00", Occupied: false},
					{StartTime: "10:00", EndTime: "11:00", Occupied: true},
				},
			}, nil
		},
	}

	router := newAvailabilityRouter(service)
	req := httptest.NewRequest(http.MethodGet, "/availability?calendar_id=cal_norte&date=2026-07-06&exclude_order_id=so_9", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, secretaryRequest(req))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.CalendarID != "cal_norte" || captured.Date != "2026-07-06" || captured.ExcludeOrderID != "so_9" {
		t.Fatalf("unexpected query %+v", captured)
	}

	var resp daySchedulePayload
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Slots) != 2 || !resp.Slots[1].Occupied {
		t.Fatalf("unexpected slots %#v", resp.Slots)
	}
}

func TestAvailabilityRequiresParams(t *testing.T) {
	router := newAvailabilityRouter(&stubAvailabilityService{})

	for _, target := range []string{
		"/availability?date=2026-07-06",
		"/availability?calendar_id=cal_norte",
	} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, secretaryRequest(req))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected status 400, got %d", target, rr.Code)
		}
	}
}

func TestAvailabilityUnknownCalendarMapsTo404(t *testing.T) {
	service := &stubAvailabilityService{
		dayFn: func(context.Context, services.AvailabilityQuery) (services.DaySchedule, error) {
			return services.DaySchedule{}, services.ErrCalendarNotFound
		},
	}

	router := newAvailabilityRouter(service)
	req := httptest.NewRequest(http.MethodGet, "/availability?calendar_id=cal_missing&date=2026-07-06", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, secretaryRequest(req))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}
