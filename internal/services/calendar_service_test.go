package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/servihogar/api/internal/domain"
)

type calendarFixture struct {
	calendars *stubCalendarRepository
	staff     *stubStaffRepository
	service   CalendarService
}

func newCalendarFixture(t *testing.T) calendarFixture {
	t.Helper()
	calendars := newStubCalendarRepository()
	staff := newStubStaffRepository()
	service, err := NewCalendarService(CalendarServiceDeps{
		Calendars:   calendars,
		Staff:       staff,
		Clock:       fixedClock(time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)),
		IDGenerator: sequentialIDs("c"),
	})
	if err != nil {
		t.Fatalf("NewCalendarService: %v", err)
	}
	return calendarFixture{calendars: calendars, staff: staff, service: service}
}

func TestCalendarCreateNormalizesAvailability(t *testing.T) {
	fx := newCalendarFixture(t)

	calendar, err := fx.service.Create(context.Background(), CreateCalendarCommand{
		Actor: admin(),
		Name:  "Taller Norte",
		Availability: []DailyAvailability{
			{Weekday: 1, Slots: []TimeSlot{{StartTime: "11:00"}, {StartTime: "09:00"}}},
		},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	slots := calendar.Availability[0].Slots
	if slots[0].StartTime != "09:00" || slots[1].StartTime != "11:00" {
		t.Fatalf("slots not sorted: %+v", slots)
	}
	if slots[0].EndTime != "10:00" {
		t.Fatalf("end time not derived: %+v", slots[0])
	}
	if !calendar.Active {
		t.Fatalf("new calendar should start active")
	}
}

func TestCalendarCreateRejectsOverlappingSlots(t *testing.T) {
	fx := newCalendarFixture(t)

	_, err := fx.service.Create(context.Background(), CreateCalendarCommand{
		Actor: admin(),
		Name:  "Taller Norte",
		Availability: []DailyAvailability{
			{Weekday: 2, Slots: []TimeSlot{{StartTime: "09:00"}, {StartTime: "09:30"}}},
		},
	})
	if !errors.Is(err, ErrCalendarInvalidInput) {
		t.Fatalf("expected invalid input for overlapping slots, got %v", err)
	}

	_, err = fx.service.Create(context.Background(), CreateCalendarCommand{
		Actor: admin(),
		Name:  "Taller Norte",
		Availability: []DailyAvailability{
			{Weekday: 7, Slots: []TimeSlot{{StartTime: "09:00"}}},
		},
	})
	if !errors.Is(err, ErrCalendarInvalidInput) {
		t.Fatalf("expected invalid input for weekday 7, got %v", err)
	}
}

func TestCalendarCreateValidatesStaff(t *testing.T) {
	fx := newCalendarFixture(t)

	_, err := fx.service.Create(context.Background(), CreateCalendarCommand{
		Actor:   admin(),
		Name:    "Taller Sur",
		StaffID: "stf_missing",
	})
	if !errors.Is(err, ErrCalendarNotFound) {
		t.Fatalf("expected not found for unknown staff, got %v", err)
	}
}

func TestCalendarUpdateClearsStaff(t *testing.T) {
	fx := newCalendarFixture(t)
	staffID := "stf_0001"
	fx.staff.staff[staffID] = domain.Staff{ID: staffID, Name: "Luis", Role: domain.RoleTechnician, Active: true}

	created, err := fx.service.Create(context.Background(), CreateCalendarCommand{
		Actor:   admin(),
		Name:    "Taller Sur",
		StaffID: staffID,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.StaffID == nil || *created.StaffID != staffID {
		t.Fatalf("staff not assigned: %+v", created)
	}

	updated, err := fx.service.Update(context.Background(), UpdateCalendarCommand{
		Actor:      admin(),
		CalendarID: created.ID,
		ClearStaff: true,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.StaffID != nil {
		t.Fatalf("staff should be cleared, got %v", *updated.StaffID)
	}
}

func TestCalendarDeleteRefusesPrimary(t *testing.T) {
	fx := newCalendarFixture(t)

	created, err := fx.service.Create(context.Background(), CreateCalendarCommand{
		Actor: admin(),
		Name:  "Taller Norte",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	primary := created.ID
	fx.staff.staff["stf_0001"] = domain.Staff{
		ID: "stf_0001", Name: "Luis", Role: domain.RoleTechnician,
		PrimaryCalendarID: &primary, Active: true,
	}

	err = fx.service.Delete(context.Background(), DeleteCalendarCommand{Actor: admin(), CalendarID: created.ID})
	if !errors.Is(err, ErrCalendarPrimary) {
		t.Fatalf("expected primary refusal, got %v", err)
	}

	fx.staff.staff["stf_0001"] = domain.Staff{ID: "stf_0001", Name: "Luis", Role: domain.RoleTechnician, Active: true}
	if err := fx.service.Delete(context.Background(), DeleteCalendarCommand{Actor: admin(), CalendarID: created.ID}); err != nil {
		t.Fatalf("Delete after primary released: %v", err)
	}
	if _, ok := fx.calendars.calendars[created.ID]; ok {
		t.Fatalf("calendar not removed")
	}
}

func TestCalendarWritesRequireCapability(t *testing.T) {
	fx := newCalendarFixture(t)

	_, err := fx.service.Create(context.Background(), CreateCalendarCommand{Actor: technician(), Name: "Taller"})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("technician should not create calendars, got %v", err)
	}
	_, err = fx.service.Create(context.Background(), CreateCalendarCommand{Actor: secretary(), Name: "Taller"})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("secretary should not create calendars, got %v", err)
	}
	if err := fx.service.Delete(context.Background(), DeleteCalendarCommand{Actor: technician(), CalendarID: "cal_x"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("technician should not delete calendars, got %v", err)
	}
}
