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

const (
	scheduleIDPrefix = "ms_"

	// maintenanceTitlePrefix is the human-readable issue text on generated
	// orders. De-duplication uses GeneratedByScheduleID, never this string.
	maintenanceTitlePrefix = "Mantenimiento programado: "
)

var (
	// ErrScheduleInvalidInput signals the caller provided invalid data.
	ErrScheduleInvalidInput = errors.New("maintenance: invalid input")
	// ErrScheduleNotFound indicates the schedule could not be located.
	ErrScheduleNotFound = errors.New("maintenance: schedule not found")
)

// MaintenanceServiceDeps bundles collaborators for the maintenance engine.
type MaintenanceServiceDeps struct {
	Schedules   repositories.MaintenanceScheduleRepository
	Orders      repositories.ServiceOrderRepository
	Customers   repositories.CustomerRepository
	Counters    repositories.CounterRepository
	UnitOfWork  repositories.UnitOfWork
	Timezone    *time.Location
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type maintenanceService struct {
	schedules  repositories.MaintenanceScheduleRepository
	orders     repositories.ServiceOrderRepository
	customers  repositories.CustomerRepository
	counters   repositories.CounterRepository
	unitOfWork repositories.UnitOfWork
	timezone   *time.Location
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

var _ MaintenanceService = (*maintenanceService)(nil)

// NewMaintenanceService wires dependencies into a concrete MaintenanceService.
func NewMaintenanceService(deps MaintenanceServiceDeps) (MaintenanceService, error) {
	if deps.Schedules == nil {
		return nil, errors.New("maintenance service: schedule repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("maintenance service: order repository is required")
	}
	if deps.Customers == nil {
		return nil, errors.New("maintenance service: customer repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("maintenance service: counter repository is required")
	}
	if deps.Timezone == nil {
		return nil, errors.New("maintenance service: timezone is required")
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
	unitOfWork := deps.UnitOfWork
	if unitOfWork == nil {
		unitOfWork = noopUnitOfWork{}
	}
	return &maintenanceService{
		schedules:  deps.Schedules,
		orders:     deps.Orders,
		customers:  deps.Customers,
		counters:   deps.Counters,
		unitOfWork: unitOfWork,
		timezone:   deps.Timezone,
		clock:      clock,
		newID:      idGen,
		logger:     logger,
	}, nil
}

func (s *maintenanceService) Create(ctx context.Context, cmd CreateScheduleCommand) (MaintenanceSchedule, error) {
	if err := Authorize(cmd.Actor, CapMaintenanceRW); err != nil {
		return MaintenanceSchedule{}, err
	}
	customerID := strings.TrimSpace(cmd.CustomerID)
	description := strings.TrimSpace(cmd.Description)
	if customerID == "" || description == "" {
		return MaintenanceSchedule{}, fmt.Errorf("%w: customer id and description are required", ErrScheduleInvalidInput)
	}
	if cmd.FrequencyMonths < 1 {
		return MaintenanceSchedule{}, fmt.Errorf("%w: frequency must be at least one month", ErrScheduleInvalidInput)
	}
	startDate := strings.TrimSpace(cmd.StartDate)
	if _, err := time.ParseInLocation(isoDateLayout, startDate, s.timezone); err != nil {
		return MaintenanceSchedule{}, fmt.Errorf("%w: start date %q must be YYYY-MM-DD", ErrScheduleInvalidInput, cmd.StartDate)
	}
	if _, err := s.customers.FindByID(ctx, customerID); err != nil {
		return MaintenanceSchedule{}, s.mapRepositoryError(err)
	}

	now := s.clock().UTC()
	actorID := cmd.Actor.ID
	schedule := domain.MaintenanceSchedule{
		ID:              scheduleIDPrefix + s.newID(),
		CustomerID:      customerID,
		Description:     description,
		StartDate:       startDate,
		FrequencyMonths: cmd.FrequencyMonths,
		NextDueDate:     startDate,
		CreatedByID:     &actorID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.schedules.Insert(ctx, schedule); err != nil {
		return MaintenanceSchedule{}, s.mapRepositoryError(err)
	}
	return schedule, nil
}

func (s *maintenanceService) List(ctx context.Context, actor Actor) ([]MaintenanceSchedule, error) {
	if err := Authorize(actor, CapMaintenanceRW); err != nil {
		return nil, err
	}
	schedules, err := s.schedules.List(ctx)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return schedules, nil
}

func (s *maintenanceService) Update(ctx context.Context, cmd UpdateScheduleCommand) (MaintenanceSchedule, error) {
	if err := Authorize(cmd.Actor, CapMaintenanceRW); err != nil {
		return MaintenanceSchedule{}, err
	}
	scheduleID := strings.TrimSpace(cmd.ScheduleID)
	if scheduleID == "" {
		return MaintenanceSchedule{}, fmt.Errorf("%w: schedule id is required", ErrScheduleInvalidInput)
	}
	schedule, err := s.schedules.FindByID(ctx, scheduleID)
	if err != nil {
		return MaintenanceSchedule{}, s.mapRepositoryError(err)
	}

	if cmd.Description != nil {
		if description := strings.TrimSpace(*cmd.Description); description != "" {
			schedule.Description = description
		}
	}
	if cmd.FrequencyMonths != nil {
		if *cmd.FrequencyMonths < 1 {
			return MaintenanceSchedule{}, fmt.Errorf("%w: frequency must be at least one month", ErrScheduleInvalidInput)
		}
		schedule.FrequencyMonths = *cmd.FrequencyMonths
	}
	if cmd.NextDueDate != nil {
		nextDue := strings.TrimSpace(*cmd.NextDueDate)
		if _, err := time.ParseInLocation(isoDateLayout, nextDue, s.timezone); err != nil {
			return MaintenanceSchedule{}, fmt.Errorf("%w: next due date %q must be YYYY-MM-DD", ErrScheduleInvalidInput, *cmd.NextDueDate)
		}
		schedule.NextDueDate = nextDue
	}
	schedule.UpdatedAt = s.clock().UTC()

	if err := s.schedules.Update(ctx, schedule); err != nil {
		return MaintenanceSchedule{}, s.mapRepositoryError(err)
	}
	return schedule, nil
}

func (s *maintenanceService) Delete(ctx context.Context, cmd DeleteScheduleCommand) error {
	if err := Authorize(cmd.Actor, CapMaintenanceRW); err != nil {
		return err
	}
	scheduleID := strings.TrimSpace(cmd.ScheduleID)
	if scheduleID == "" {
		return fmt.Errorf("%w: schedule id is required", ErrScheduleInvalidInput)
	}
	if err := s.schedules.Delete(ctx, scheduleID); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

// Tick fires a Por Confirmar order for every schedule due on or before today
// (business timezone). A schedule whose previous generated order is still open
// is skipped without advancing, so re-running the tick never duplicates work.
func (s *maintenanceService) Tick(ctx context.Context, today time.Time) (TickResult, error) {
	if today.IsZero() {
		today = s.clock()
	}
	localToday := today.In(s.timezone)
	todayISO := localToday.Format(isoDateLayout)

	due, err := s.schedules.ListDue(ctx, todayISO)
	if err != nil {
		return TickResult{}, s.mapRepositoryError(err)
	}

	result := TickResult{Evaluated: len(due)}
	for _, schedule := range due {
		fired, orderID, err := s.fire(ctx, schedule, localToday)
		if err != nil {
			s.logger(ctx, "maintenance.tick.failed", map[string]any{
				"schedule_id": schedule.ID,
				"error":       err.Error(),
			})
			result.Skipped++
			continue
		}
		if !fired {
			result.Skipped++
			continue
		}
		result.Fired = append(result.Fired, orderID)
		s.logger(ctx, "maintenance.tick.fired", map[string]any{
			"schedule_id": schedule.ID,
			"order_id":    orderID,
		})
	}
	return result, nil
}

func (s *maintenanceService) fire(ctx context.Context, schedule domain.MaintenanceSchedule, localToday time.Time) (bool, string, error) {
	_, open, err := s.orders.FindOpenBySchedule(ctx, schedule.ID)
	if err != nil {
		return false, "", s.mapRepositoryError(err)
	}
	if open {
		return false, "", nil
	}

	now := s.clock().UTC()
	scheduleID := schedule.ID
	actorID := domain.SystemActorID
	order := domain.ServiceOrder{
		ID:                    orderIDPrefix + s.newID(),
		Title:                 maintenanceTitlePrefix + schedule.Description,
		IssueDetail:           maintenanceTitlePrefix + schedule.Description,
		Status:                domain.StatusUnconfirmed,
		CreatedByID:           &actorID,
		GeneratedByScheduleID: &scheduleID,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	appendHistory(&order, domain.ActionCreated, actorID, "mantenimiento", now)

	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		customer, err := s.customers.FindByID(txCtx, schedule.CustomerID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		seq, err := s.counters.Next(txCtx, orderNumberCounter, 1)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		order.OrderNumber = fmt.Sprintf(orderNumberFormat, seq)
		order.CustomerID = customer.ID
		order.CustomerName = customer.Name
		order.CustomerPhone = customer.Phone
		order.CustomerAddress = customer.Address
		order.CustomerEmail = customer.Email

		advanced := schedule
		advanced.NextDueDate = advanceDueDate(schedule.NextDueDate, schedule.FrequencyMonths, localToday, s.timezone)
		advanced.UpdatedAt = now

		if err := s.orders.Insert(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		if err := s.schedules.Update(txCtx, advanced); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return false, "", err
	}
	return true, order.ID, nil
}

// advanceDueDate steps the due date forward by whole frequency periods until it
// lands after today. A schedule overdue by several periods catches up in one
// tick instead of firing once per missed period.
func advanceDueDate(dueISO string, frequencyMonths int, localToday time.Time, tz *time.Location) string {
	due, err := time.ParseInLocation(isoDateLayout, dueISO, tz)
	if err != nil {
		due = localToday
	}
	today := time.Date(localToday.Year(), localToday.Month(), localToday.Day(), 0, 0, 0, 0, tz)
	for !due.After(today) {
		due = due.AddDate(0, frequencyMonths, 0)
	}
	return due.Format(isoDateLayout)
}

func (s *maintenanceService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return fmt.Errorf("%w: %v", ErrScheduleNotFound, err)
	}
	return err
}
