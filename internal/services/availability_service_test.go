package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/servihogar/api/internal/domain"
)

func mondayCalendar() domain.Calendar {
	return domain.Calendar{
		ID:   "cal_norte",
		Name: "Norte",
		Availability: []domain.DailyAvailability{
			{Weekday: 1, Slots: []domain.TimeSlot{
				{StartTime: "11:00"},
				{StartTime: "09:00"},
			}},
		},
		Active: true,
	}
}

func newAvailabilityFixture(t *testing.T) (AvailabilityService, *stubOrderRepository, *stubCalendarRepository) {
	t.Helper()
	orders := newStubOrderRepository()
	calendars := newStubCalendarRepository()
	svc, err := NewAvailabilityService(AvailabilityServiceDeps{
		Calendars: calendars,
		Orders:    orders,
		Timezone:  mexicoCity(t),
	})
	if err != nil {
		t.Fatalf("NewAvailabilityService: %v", err)
	}
	return svc, orders, calendars
}

// localStart builds a UTC instant for a business-local wall-clock time.
func localStart(t *testing.T, date, clock string) time.Time {
	t.Helper()
	parsed, err := time.ParseInLocation("2006-01-02 15:04", date+" "+clock, mexicoCity(t))
	if err != nil {
		t.Fatalf("parse %s %s: %v", date, clock, err)
	}
	return parsed.UTC()
}

func seedOrder(orders *stubOrderRepository, id string, calendarID string, start time.Time, status domain.OrderStatus) {
	end := start.Add(time.Hour)
	orders.orders[id] = domain.ServiceOrder{
		ID:         id,
		Status:     status,
		CalendarID: &calendarID,
		Start:      &start,
		End:        &end,
		Version:    1,
	}
}

func TestDayScheduleMarksOccupiedSlots(t *testing.T) {
	svc, orders, calendars := newAvailabilityFixture(t)
	ctx := context.Background()

	if err := calendars.Insert(ctx, mondayCalendar()); err != nil {
		t.Fatalf("Insert calendar: %v", err)
	}

	// 2026-07-06 is a Monday in Mexico City.
	seedOrder(orders, "so_a", "cal_norte", localStart(t, "2026-07-06", "09:00"), domain.StatusPending)
	seedOrder(orders, "so_b", "cal_norte", localStart(t, "2026-07-06", "11:00"), domain.StatusCancelled)

	schedule, err := svc.DaySchedule(ctx, AvailabilityQuery{CalendarID: "cal_norte", Date: "2026-07-06"})
	if err != nil {
		t.Fatalf("DaySchedule: %v", err)
	}

	if len(schedule.Slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(schedule.Slots))
	}
	if schedule.Slots[0].StartTime != "09:00" || schedule.Slots[1].StartTime != "11:00" {
		t.Fatalf("expected slots sorted ascending, got %+v", schedule.Slots)
	}
	if !schedule.Slots[0].Occupied {
		t.Fatal("09:00 must be occupied by the pending order")
	}
	// A cancelled order never occupies its slot.
	if schedule.Slots[1].Occupied {
		t.Fatal("11:00 must stay open; the order there is cancelled")
	}
	if schedule.Slots[0].EndTime != "10:00" {
		t.Fatalf("expected derived 60-minute end, got %s", schedule.Slots[0].EndTime)
	}
}

func TestDayScheduleUsesBusinessLocalWeekday(t *testing.T) {
	svc, _, calendars := newAvailabilityFixture(t)
	ctx := context.Background()

	if err := calendars.Insert(ctx, mondayCalendar()); err != nil {
		t.Fatalf("Insert calendar: %v", err)
	}

	// Tuesday has no template entry even though late Monday slots land on
	// Tuesday in UTC.
	schedule, err := svc.DaySchedule(ctx, AvailabilityQuery{CalendarID: "cal_norte", Date: "2026-07-07"})
	if err != nil {
		t.Fatalf("DaySchedule: %v", err)
	}
	if len(schedule.Slots) != 0 {
		t.Fatalf("expected no slots on Tuesday, got %+v", schedule.Slots)
	}
}

func TestDayScheduleExcludesOrderBeingEdited(t *testing.T) {
	svc, orders, calendars := newAvailabilityFixture(t)
	ctx := context.Background()

	if err := calendars.Insert(ctx, mondayCalendar()); err != nil {
		t.Fatalf("Insert calendar: %v", err)
	}
	seedOrder(orders, "so_edit", "cal_norte", localStart(t, "2026-07-06", "09:00"), domain.StatusPending)

	schedule, err := svc.DaySchedule(ctx, AvailabilityQuery{
		CalendarID:     "cal_norte",
		Date:           "2026-07-06",
		ExcludeOrderID: "so_edit",
	})
	if err != nil {
		t.Fatalf("DaySchedule: %v", err)
	}
	if schedule.Slots[0].Occupied {
		t.Fatal("the order being edited must not occupy its own slot")
	}
}

func TestDayScheduleValidation(t *testing.T) {
	svc, _, _ := newAvailabilityFixture(t)
	ctx := context.Background()

	if _, err := svc.DaySchedule(ctx, AvailabilityQuery{Date: "2026-07-06"}); !errors.Is(err, ErrAvailabilityInvalidInput) {
		t.Fatalf("expected invalid input for missing calendar, got %v", err)
	}
	if _, err := svc.DaySchedule(ctx, AvailabilityQuery{CalendarID: "cal_norte", Date: "06/07/2026"}); !errors.Is(err, ErrAvailabilityInvalidInput) {
		t.Fatalf("expected invalid input for bad date, got %v", err)
	}
	if _, err := svc.DaySchedule(ctx, AvailabilityQuery{CalendarID: "cal_missing", Date: "2026-07-06"}); !errors.Is(err, ErrAvailabilityNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
