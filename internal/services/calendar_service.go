package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/servihogar/api/internal/domain"
	"github.com/servihogar/api/internal/repositories"
)

const calendarIDPrefix = "cal_"

var (
	// ErrCalendarInvalidInput signals the caller provided invalid data.
	ErrCalendarInvalidInput = errors.New("calendar: invalid input")
	// ErrCalendarNotFound indicates the calendar could not be located.
	ErrCalendarNotFound = errors.New("calendar: not found")
	// ErrCalendarPrimary indicates the calendar is referenced as a staff
	// member's primary calendar and cannot be deleted.
	ErrCalendarPrimary = errors.New("calendar: referenced as primary")
)

// CalendarServiceDeps bundles collaborators for the calendar service.
type CalendarServiceDeps struct {
	Calendars   repositories.CalendarRepository
	Staff       repositories.StaffRepository
	Clock       func() time.Time
	IDGenerator func() string
}

type calendarService struct {
	calendars repositories.CalendarRepository
	staff     repositories.StaffRepository
	clock     func() time.Time
	newID     func() string
}

var _ CalendarService = (*calendarService)(nil)

// NewCalendarService wires dependencies into a concrete CalendarService.
func NewCalendarService(deps CalendarServiceDeps) (CalendarService, error) {
	if deps.Calendars == nil {
		return nil, errors.New("calendar service: calendar repository is required")
	}
	if deps.Staff == nil {
		return nil, errors.New("calendar service: staff repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &calendarService{
		calendars: deps.Calendars,
		staff:     deps.Staff,
		clock:     clock,
		newID:     idGen,
	}, nil
}

func (s *calendarService) Create(ctx context.Context, cmd CreateCalendarCommand) (Calendar, error) {
	if err := Authorize(cmd.Actor, CapCalendarWrite); err != nil {
		return Calendar{}, err
	}
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return Calendar{}, fmt.Errorf("%w: name is required", ErrCalendarInvalidInput)
	}
	availability, err := normalizeAvailability(cmd.Availability)
	if err != nil {
		return Calendar{}, err
	}

	now := s.clock().UTC()
	calendar := domain.Calendar{
		ID:           calendarIDPrefix + s.newID(),
		Name:         name,
		Color:        strings.TrimSpace(cmd.Color),
		Availability: availability,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if staffID := strings.TrimSpace(cmd.StaffID); staffID != "" {
		if _, err := s.staff.FindByID(ctx, staffID); err != nil {
			return Calendar{}, s.mapRepositoryError(err)
		}
		calendar.StaffID = &staffID
	}

	if err := s.calendars.Insert(ctx, calendar); err != nil {
		return Calendar{}, s.mapRepositoryError(err)
	}
	return calendar, nil
}

func (s *calendarService) Get(ctx context.Context, actor Actor, calendarID string) (Calendar, error) {
	if err := Authorize(actor, CapCalendarRead); err != nil {
		return Calendar{}, err
	}
	calendarID = strings.TrimSpace(calendarID)
	if calendarID == "" {
		return Calendar{}, fmt.Errorf("%w: calendar id is required", ErrCalendarInvalidInput)
	}
	calendar, err := s.calendars.FindByID(ctx, calendarID)
	if err != nil {
		return Calendar{}, s.mapRepositoryError(err)
	}
	return calendar, nil
}

func (s *calendarService) List(ctx context.Context, actor Actor, activeOnly bool) ([]Calendar, error) {
	if err := Authorize(actor, CapCalendarRead); err != nil {
		return nil, err
	}
	calendars, err := s.calendars.List(ctx, activeOnly)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return calendars, nil
}

func (s *calendarService) Update(ctx context.Context, cmd UpdateCalendarCommand) (Calendar, error) {
	if err := Authorize(cmd.Actor, CapCalendarWrite); err != nil {
		return Calendar{}, err
	}
	calendarID := strings.TrimSpace(cmd.CalendarID)
	if calendarID == "" {
		return Calendar{}, fmt.Errorf("%w: calendar id is required", ErrCalendarInvalidInput)
	}

	calendar, err := s.calendars.FindByID(ctx, calendarID)
	if err != nil {
		return Calendar{}, s.mapRepositoryError(err)
	}

	if cmd.Name != nil {
		if name := strings.TrimSpace(*cmd.Name); name != "" {
			calendar.Name = name
		}
	}
	if cmd.Color != nil {
		calendar.Color = strings.TrimSpace(*cmd.Color)
	}
	if cmd.Active != nil {
		calendar.Active = *cmd.Active
	}
	if cmd.Availability != nil {
		availability, err := normalizeAvailability(cmd.Availability)
		if err != nil {
			return Calendar{}, err
		}
		calendar.Availability = availability
	}
	if cmd.ClearStaff {
		calendar.StaffID = nil
	} else if cmd.StaffID != nil {
		staffID := strings.TrimSpace(*cmd.StaffID)
		if staffID == "" {
			calendar.StaffID = nil
		} else {
			if _, err := s.staff.FindByID(ctx, staffID); err != nil {
				return Calendar{}, s.mapRepositoryError(err)
			}
			calendar.StaffID = &staffID
		}
	}
	calendar.UpdatedAt = s.clock().UTC()

	if err := s.calendars.Update(ctx, calendar); err != nil {
		return Calendar{}, s.mapRepositoryError(err)
	}
	return calendar, nil
}

// Delete removes a calendar unless some staff member holds it as primary.
func (s *calendarService) Delete(ctx context.Context, cmd DeleteCalendarCommand) error {
	if err := Authorize(cmd.Actor, CapCalendarWrite); err != nil {
		return err
	}
	calendarID := strings.TrimSpace(cmd.CalendarID)
	if calendarID == "" {
		return fmt.Errorf("%w: calendar id is required", ErrCalendarInvalidInput)
	}

	members, err := s.staff.List(ctx)
	if err != nil {
		return s.mapRepositoryError(err)
	}
	for _, member := range members {
		if member.PrimaryCalendarID != nil && *member.PrimaryCalendarID == calendarID {
			return fmt.Errorf("%w: staff %s", ErrCalendarPrimary, member.ID)
		}
	}

	if err := s.calendars.Delete(ctx, calendarID); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

// normalizeAvailability validates weekday numbers, slot format, and rejects
// overlapping slots within one weekday. Appointments are 60 minutes, so two
// starts closer than one hour overlap.
func normalizeAvailability(availability []DailyAvailability) ([]domain.DailyAvailability, error) {
	seenWeekday := map[int]bool{}
	normalized := make([]domain.DailyAvailability, 0, len(availability))

	for _, daily := range availability {
		if daily.Weekday < 0 || daily.Weekday > 6 {
			return nil, fmt.Errorf("%w: weekday %d out of range", ErrCalendarInvalidInput, daily.Weekday)
		}
		if seenWeekday[daily.Weekday] {
			return nil, fmt.Errorf("%w: duplicate weekday %d", ErrCalendarInvalidInput, daily.Weekday)
		}
		seenWeekday[daily.Weekday] = true

		starts := make([]time.Time, 0, len(daily.Slots))
		for _, slot := range daily.Slots {
			start, err := time.Parse(slotLayout, strings.TrimSpace(slot.StartTime))
			if err != nil {
				return nil, fmt.Errorf("%w: slot %q must be HH:MM", ErrCalendarInvalidInput, slot.StartTime)
			}
			starts = append(starts, start)
		}
		sort.Slice(starts, func(a, b int) bool { return starts[a].Before(starts[b]) })

		slots := make([]domain.TimeSlot, 0, len(starts))
		for i, start := range starts {
			if i > 0 && start.Sub(starts[i-1]) < SlotDuration {
				return nil, fmt.Errorf("%w: slots %s and %s overlap on weekday %d",
					ErrCalendarInvalidInput, starts[i-1].Format(slotLayout), start.Format(slotLayout), daily.Weekday)
			}
			slots = append(slots, domain.TimeSlot{
				StartTime: start.Format(slotLayout),
				EndTime:   start.Add(SlotDuration).Format(slotLayout),
			})
		}
		normalized = append(normalized, domain.DailyAvailability{Weekday: daily.Weekday, Slots: slots})
	}

	sort.Slice(normalized, func(a, b int) bool { return normalized[a].Weekday < normalized[b].Weekday })
	return normalized, nil
}

func (s *calendarService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %v", ErrCalendarNotFound, err)
	}
	return err
}
