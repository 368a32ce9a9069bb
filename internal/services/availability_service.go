package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	domain "github.com/servihogar/api/internal/domain"
	"github.com/servihogar/api/internal/repositories"
)

const (
	// SlotDuration is the fixed appointment length; EndTime is always derived.
	SlotDuration = time.Hour

	isoDateLayout = "2006-01-02"
	slotLayout    = "15:04"
)

var (
	// ErrAvailabilityInvalidInput signals the caller provided invalid query data.
	ErrAvailabilityInvalidInput = errors.New("availability: invalid input")
	// ErrAvailabilityNotFound indicates the calendar could not be located.
	ErrAvailabilityNotFound = errors.New("availability: not found")
)

// AvailabilityServiceDeps bundles collaborators for the availability service.
type AvailabilityServiceDeps struct {
	Calendars repositories.CalendarRepository
	Orders    repositories.ServiceOrderRepository
	// Timezone is the single business timezone; all weekday lookups and
	// wall-clock comparisons happen in it, never in UTC or server-local time.
	Timezone *time.Location
}

type availabilityService struct {
	calendars repositories.CalendarRepository
	orders    repositories.ServiceOrderRepository
	timezone  *time.Location
}

var _ AvailabilityService = (*availabilityService)(nil)

// NewAvailabilityService wires dependencies into a concrete AvailabilityService.
func NewAvailabilityService(deps AvailabilityServiceDeps) (AvailabilityService, error) {
	if deps.Calendars == nil {
		return nil, errors.New("availability service: calendar repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("availability service: order repository is required")
	}
	if deps.Timezone == nil {
		return nil, errors.New("availability service: timezone is required")
	}
	return &availabilityService{
		calendars: deps.Calendars,
		orders:    deps.Orders,
		timezone:  deps.Timezone,
	}, nil
}

func (s *availabilityService) DaySchedule(ctx context.Context, query AvailabilityQuery) (DaySchedule, error) {
	calendarID := strings.TrimSpace(query.CalendarID)
	if calendarID == "" {
		return DaySchedule{}, fmt.Errorf("%w: calendar id is required", ErrAvailabilityInvalidInput)
	}

	day, err := time.ParseInLocation(isoDateLayout, strings.TrimSpace(query.Date), s.timezone)
	if err != nil {
		return DaySchedule{}, fmt.Errorf("%w: date must be YYYY-MM-DD: %v", ErrAvailabilityInvalidInput, err)
	}

	calendar, err := s.calendars.FindByID(ctx, calendarID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return DaySchedule{}, fmt.Errorf("%w: calendar %s", ErrAvailabilityNotFound, calendarID)
		}
		return DaySchedule{}, err
	}

	schedule := DaySchedule{CalendarID: calendarID, Date: day.Format(isoDateLayout)}

	slots := openSlots(calendar, int(day.Weekday()))
	if len(slots) == 0 {
		return schedule, nil
	}

	occupied, err := s.occupiedStarts(ctx, calendarID, day, strings.TrimSpace(query.ExcludeOrderID))
	if err != nil {
		return DaySchedule{}, err
	}

	for _, start := range slots {
		end := start
		if parsed, perr := time.Parse(slotLayout, start); perr == nil {
			end = parsed.Add(SlotDuration).Format(slotLayout)
		}
		schedule.Slots = append(schedule.Slots, SlotStatus{
			StartTime: start,
			EndTime:   end,
			Occupied:  occupied[start],
		})
	}
	return schedule, nil
}

// openSlots returns the template's start times for the weekday, sorted ascending.
func openSlots(calendar domain.Calendar, weekday int) []string {
	var starts []string
	for _, daily := range calendar.Availability {
		if daily.Weekday != weekday {
			continue
		}
		for _, slot := range daily.Slots {
			if s := strings.TrimSpace(slot.StartTime); s != "" {
				starts = append(starts, s)
			}
		}
	}
	sort.Strings(starts)
	return starts
}

// occupiedStarts scans the calendar's orders inside the business-local day and
// collects the wall-clock start times already taken. Cancelled orders do not
// occupy slots, and the order being edited is excluded.
func (s *availabilityService) occupiedStarts(ctx context.Context, calendarID string, day time.Time, excludeOrderID string) (map[string]bool, error) {
	from := day
	to := day.AddDate(0, 0, 1)

	orders, err := s.orders.ListByCalendarRange(ctx, calendarID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}

	occupied := make(map[string]bool, len(orders))
	for _, order := range orders {
		if order.Start == nil {
			continue
		}
		if order.Status == domain.StatusCancelled {
			continue
		}
		if excludeOrderID != "" && order.ID == excludeOrderID {
			continue
		}
		occupied[order.Start.In(s.timezone).Format(slotLayout)] = true
	}
	return occupied, nil
}
