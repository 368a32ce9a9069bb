package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/servihogar/api/internal/domain"
	"github.com/servihogar/api/internal/repositories"
)

const staffIDPrefix = "stf_"

var (
	// ErrStaffInvalidInput signals the caller provided invalid data.
	ErrStaffInvalidInput = errors.New("staff: invalid input")
	// ErrStaffNotFound indicates the staff member could not be located.
	ErrStaffNotFound = errors.New("staff: not found")
	// ErrStaffDuplicateEmail indicates another member already uses the email.
	ErrStaffDuplicateEmail = errors.New("staff: email already registered")
)

// orderUnassigner is the slice of the order service the deletion cascade
// needs: clear a calendar from every order and reset them to Por Confirmar.
type orderUnassigner interface {
	UnassignCalendar(ctx context.Context, actor Actor, calendarID string) (int, error)
}

// StaffServiceDeps bundles collaborators for the staff service.
type StaffServiceDeps struct {
	Staff       repositories.StaffRepository
	Calendars   repositories.CalendarRepository
	Orders      orderUnassigner
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type staffService struct {
	staff     repositories.StaffRepository
	calendars repositories.CalendarRepository
	orders    orderUnassigner
	clock     func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

var _ StaffService = (*staffService)(nil)

// NewStaffService wires dependencies into a concrete StaffService.
func NewStaffService(deps StaffServiceDeps) (StaffService, error) {
	if deps.Staff == nil {
		return nil, errors.New("staff service: staff repository is required")
	}
	if deps.Calendars == nil {
		return nil, errors.New("staff service: calendar repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("staff service: order unassigner is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &staffService{
		staff:     deps.Staff,
		calendars: deps.Calendars,
		orders:    deps.Orders,
		clock:     clock,
		newID:     idGen,
		logger:    logger,
	}, nil
}

func (s *staffService) Create(ctx context.Context, cmd CreateStaffCommand) (Staff, error) {
	if err := Authorize(cmd.Actor, CapStaffWrite); err != nil {
		return Staff{}, err
	}
	name := strings.TrimSpace(cmd.Name)
	email := strings.ToLower(strings.TrimSpace(cmd.Email))
	if name == "" || email == "" {
		return Staff{}, fmt.Errorf("%w: name and email are required", ErrStaffInvalidInput)
	}
	if !cmd.Role.Valid() {
		return Staff{}, fmt.Errorf("%w: unknown role %q", ErrStaffInvalidInput, cmd.Role)
	}
	if _, err := s.staff.FindByEmail(ctx, email); err == nil {
		return Staff{}, fmt.Errorf("%w: %s", ErrStaffDuplicateEmail, email)
	} else if !isNotFound(err) {
		return Staff{}, err
	}

	now := s.clock().UTC()
	member := domain.Staff{
		ID:        staffIDPrefix + s.newID(),
		Name:      name,
		Email:     email,
		Phone:     strings.TrimSpace(cmd.Phone),
		Role:      cmd.Role,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.staff.Insert(ctx, member); err != nil {
		return Staff{}, s.mapRepositoryError(err)
	}
	return member, nil
}

func (s *staffService) Get(ctx context.Context, actor Actor, staffID string) (Staff, error) {
	if err := Authorize(actor, CapStaffRead); err != nil {
		return Staff{}, err
	}
	staffID = strings.TrimSpace(staffID)
	if staffID == "" {
		return Staff{}, fmt.Errorf("%w: staff id is required", ErrStaffInvalidInput)
	}
	member, err := s.staff.FindByID(ctx, staffID)
	if err != nil {
		return Staff{}, s.mapRepositoryError(err)
	}
	return member, nil
}

func (s *staffService) List(ctx context.Context, actor Actor) ([]Staff, error) {
	if err := Authorize(actor, CapStaffRead); err != nil {
		return nil, err
	}
	members, err := s.staff.List(ctx)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return members, nil
}

func (s *staffService) Update(ctx context.Context, cmd UpdateStaffCommand) (Staff, error) {
	if err := Authorize(cmd.Actor, CapStaffWrite); err != nil {
		return Staff{}, err
	}
	staffID := strings.TrimSpace(cmd.StaffID)
	if staffID == "" {
		return Staff{}, fmt.Errorf("%w: staff id is required", ErrStaffInvalidInput)
	}
	member, err := s.staff.FindByID(ctx, staffID)
	if err != nil {
		return Staff{}, s.mapRepositoryError(err)
	}

	if cmd.Name != nil {
		if name := strings.TrimSpace(*cmd.Name); name != "" {
			member.Name = name
		}
	}
	if cmd.Phone != nil {
		member.Phone = strings.TrimSpace(*cmd.Phone)
	}
	if cmd.Role != nil {
		if !cmd.Role.Valid() {
			return Staff{}, fmt.Errorf("%w: unknown role %q", ErrStaffInvalidInput, *cmd.Role)
		}
		member.Role = *cmd.Role
	}
	if cmd.Active != nil {
		member.Active = *cmd.Active
	}
	if cmd.ClearPrimary {
		member.PrimaryCalendarID = nil
	} else if cmd.PrimaryCalendarID != nil {
		calendarID := strings.TrimSpace(*cmd.PrimaryCalendarID)
		if calendarID == "" {
			member.PrimaryCalendarID = nil
		} else {
			if _, err := s.calendars.FindByID(ctx, calendarID); err != nil {
				return Staff{}, s.mapRepositoryError(err)
			}
			member.PrimaryCalendarID = &calendarID
		}
	}
	member.UpdatedAt = s.clock().UTC()

	if err := s.staff.Update(ctx, member); err != nil {
		return Staff{}, s.mapRepositoryError(err)
	}
	return member, nil
}

// Delete removes a staff member. Every calendar assigned to them is detached
// and its orders are reset to Por Confirmar so the office re-triages the work.
func (s *staffService) Delete(ctx context.Context, cmd DeleteStaffCommand) error {
	if err := Authorize(cmd.Actor, CapStaffWrite); err != nil {
		return err
	}
	staffID := strings.TrimSpace(cmd.StaffID)
	if staffID == "" {
		return fmt.Errorf("%w: staff id is required", ErrStaffInvalidInput)
	}
	member, err := s.staff.FindByID(ctx, staffID)
	if err != nil {
		return s.mapRepositoryError(err)
	}

	calendars, err := s.calendars.List(ctx, false)
	if err != nil {
		return s.mapRepositoryError(err)
	}
	for _, calendar := range calendars {
		if calendar.StaffID == nil || *calendar.StaffID != member.ID {
			continue
		}
		reset, err := s.orders.UnassignCalendar(ctx, cmd.Actor, calendar.ID)
		if err != nil {
			return fmt.Errorf("unassign calendar %s: %w", calendar.ID, err)
		}
		calendar.StaffID = nil
		calendar.UpdatedAt = s.clock().UTC()
		if err := s.calendars.Update(ctx, calendar); err != nil {
			return s.mapRepositoryError(err)
		}
		s.logger(ctx, "staff.delete.cascade", map[string]any{
			"staff_id":     member.ID,
			"calendar_id":  calendar.ID,
			"orders_reset": reset,
		})
	}

	if err := s.staff.Delete(ctx, member.ID); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

func (s *staffService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return fmt.Errorf("%w: %v", ErrStaffNotFound, err)
	}
	return err
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
