package repositories

import (
	"context"
	"time"

	domain "github.com/servihogar/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() ServiceOrderRepository
	Customers() CustomerRepository
	Calendars() CalendarRepository
	Staff() StaffRepository
	Maintenance() MaintenanceScheduleRepository
	Outbox() SyncOutboxRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations in a transactional boundary. Every order
// mutation runs inside it so the read-modify-write cycle is atomic per entity,
// replacing the whole-document last-write-wins model the business previously ran on.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ServiceOrderRepository persists service orders. Update must enforce a
// compare-and-swap precondition on the order's Version field and surface a
// conflict RepositoryError when the stored revision moved.
type ServiceOrderRepository interface {
	Insert(ctx context.Context, order domain.ServiceOrder) error
	Update(ctx context.Context, order domain.ServiceOrder) error
	Delete(ctx context.Context, orderID string) error
	FindByID(ctx context.Context, orderID string) (domain.ServiceOrder, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.ServiceOrder], error)
	// ListByCalendarRange returns orders assigned to the calendar whose start falls
	// inside [from, to). Cancelled orders are included; callers filter by status.
	ListByCalendarRange(ctx context.Context, calendarID string, from, to time.Time) ([]domain.ServiceOrder, error)
	ListByCalendar(ctx context.Context, calendarID string) ([]domain.ServiceOrder, error)
	ListCancelledBefore(ctx context.Context, cutoff time.Time) ([]domain.ServiceOrder, error)
	// FindOpenBySchedule locates an order generated by the given maintenance schedule
	// still in an open status (Por Confirmar or Pendiente).
	FindOpenBySchedule(ctx context.Context, scheduleID string) (domain.ServiceOrder, bool, error)
}

// CustomerRepository stores the customer registry. Phone lookups return every
// candidate for the number; the case-insensitive name comparison that completes
// deduplication happens in the service layer because Firestore cannot fold case.
type CustomerRepository interface {
	Insert(ctx context.Context, customer domain.Customer) error
	Update(ctx context.Context, customer domain.Customer) error
	FindByID(ctx context.Context, customerID string) (domain.Customer, error)
	FindByPhone(ctx context.Context, phone string) ([]domain.Customer, error)
	List(ctx context.Context, filter CustomerListFilter) (domain.CursorPage[domain.Customer], error)
}

// CalendarRepository stores technician calendars and their weekly availability templates.
type CalendarRepository interface {
	Insert(ctx context.Context, calendar domain.Calendar) error
	Update(ctx context.Context, calendar domain.Calendar) error
	Delete(ctx context.Context, calendarID string) error
	FindByID(ctx context.Context, calendarID string) (domain.Calendar, error)
	List(ctx context.Context, activeOnly bool) ([]domain.Calendar, error)
}

// StaffRepository stores staff members.
type StaffRepository interface {
	Insert(ctx context.Context, staff domain.Staff) error
	Update(ctx context.Context, staff domain.Staff) error
	Delete(ctx context.Context, staffID string) error
	FindByID(ctx context.Context, staffID string) (domain.Staff, error)
	FindByEmail(ctx context.Context, email string) (domain.Staff, error)
	List(ctx context.Context) ([]domain.Staff, error)
}

// MaintenanceScheduleRepository stores recurring maintenance schedules.
type MaintenanceScheduleRepository interface {
	Insert(ctx context.Context, schedule domain.MaintenanceSchedule) error
	Update(ctx context.Context, schedule domain.MaintenanceSchedule) error
	Delete(ctx context.Context, scheduleID string) error
	FindByID(ctx context.Context, scheduleID string) (domain.MaintenanceSchedule, error)
	List(ctx context.Context) ([]domain.MaintenanceSchedule, error)
	// ListDue returns schedules whose nextDueDate is on or before the given
	// ISO date (date-only, business timezone).
	ListDue(ctx context.Context, todayISO string) ([]domain.MaintenanceSchedule, error)
}

// SyncOutboxRepository stores durable calendar-mirror intents drained by the
// background worker. Marking a failure schedules the next attempt.
type SyncOutboxRepository interface {
	Enqueue(ctx context.Context, record domain.SyncOutboxRecord) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.SyncOutboxRecord, error)
	MarkSucceeded(ctx context.Context, recordID string, now time.Time) error
	MarkFailed(ctx context.Context, recordID string, attemptErr string, nextAttempt time.Time, terminal bool) error
	UpdateEventID(ctx context.Context, orderID string, eventID string) error
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

type OrderListFilter struct {
	CalendarID string
	CustomerID string
	Status     []string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

type CustomerListFilter struct {
	Search     string
	Pagination domain.Pagination
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}
