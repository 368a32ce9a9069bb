package services

import (
	"context"
	"time"

	domain "github.com/servihogar/api/internal/domain"
	"github.com/servihogar/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination          = domain.Pagination
	Staff               = domain.Staff
	StaffRole           = domain.StaffRole
	TimeSlot            = domain.TimeSlot
	DailyAvailability   = domain.DailyAvailability
	Calendar            = domain.Calendar
	Customer            = domain.Customer
	ServiceOrder        = domain.ServiceOrder
	OrderStatus         = domain.OrderStatus
	ActionLog           = domain.ActionLog
	GeoPoint            = domain.GeoPoint
	CompletionProof     = domain.CompletionProof
	MaintenanceSchedule = domain.MaintenanceSchedule
	SyncOutboxRecord    = domain.SyncOutboxRecord
	SystemHealthReport  = domain.SystemHealthReport
)

// AvailabilityService computes bookable slots for a technician calendar and day.
type AvailabilityService interface {
	DaySchedule(ctx context.Context, query AvailabilityQuery) (DaySchedule, error)
}

// ServiceOrderService drives the order lifecycle: creation, confirmation, edits,
// status transitions, completion, cancellation, archiving, and the admin purge.
type ServiceOrderService interface {
	Create(ctx context.Context, cmd CreateOrderCommand) (ServiceOrder, error)
	AddUnconfirmed(ctx context.Context, cmd PublicBookingCommand) (ServiceOrder, error)
	Get(ctx context.Context, actor Actor, orderID string) (ServiceOrder, error)
	List(ctx context.Context, actor Actor, filter OrderListFilter) (domain.CursorPage[ServiceOrder], error)
	Confirm(ctx context.Context, cmd ConfirmOrderCommand) (ServiceOrder, error)
	Update(ctx context.Context, cmd UpdateOrderCommand) (ServiceOrder, error)
	UpdateStatus(ctx context.Context, cmd OrderStatusCommand) (ServiceOrder, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (ServiceOrder, error)
	Archive(ctx context.Context, cmd ArchiveOrderCommand) (ServiceOrder, error)
	Complete(ctx context.Context, cmd CompleteOrderCommand) (ServiceOrder, error)
	UpdateReminders(ctx context.Context, cmd UpdateRemindersCommand) (ServiceOrder, error)
	// UnassignCalendar re-triages every order on the calendar back to Por Confirmar.
	// Invoked by the staff-deletion cascade.
	UnassignCalendar(ctx context.Context, actor Actor, calendarID string) (int, error)
	PurgeCancelled(ctx context.Context, cmd PurgeCommand) (int, error)
}

// CustomerService owns the customer registry including the (phone, name) dedup rule.
type CustomerService interface {
	Create(ctx context.Context, cmd CreateCustomerCommand) (Customer, error)
	Get(ctx context.Context, actor Actor, customerID string) (Customer, error)
	List(ctx context.Context, actor Actor, filter CustomerListFilter) (domain.CursorPage[Customer], error)
	Update(ctx context.Context, cmd UpdateCustomerCommand) (Customer, error)
}

// CalendarService manages technician calendars and their weekly availability templates.
type CalendarService interface {
	Create(ctx context.Context, cmd CreateCalendarCommand) (Calendar, error)
	Get(ctx context.Context, actor Actor, calendarID string) (Calendar, error)
	List(ctx context.Context, actor Actor, activeOnly bool) ([]Calendar, error)
	Update(ctx context.Context, cmd UpdateCalendarCommand) (Calendar, error)
	Delete(ctx context.Context, cmd DeleteCalendarCommand) error
}

// StaffService manages staff members, including the deletion cascade that
// re-triages every order on the departing technician's calendar.
type StaffService interface {
	Create(ctx context.Context, cmd CreateStaffCommand) (Staff, error)
	Get(ctx context.Context, actor Actor, staffID string) (Staff, error)
	List(ctx context.Context, actor Actor) ([]Staff, error)
	Update(ctx context.Context, cmd UpdateStaffCommand) (Staff, error)
	Delete(ctx context.Context, cmd DeleteStaffCommand) error
}

// MaintenanceService manages recurring schedules and materializes due orders.
type MaintenanceService interface {
	Create(ctx context.Context, cmd CreateScheduleCommand) (MaintenanceSchedule, error)
	List(ctx context.Context, actor Actor) ([]MaintenanceSchedule, error)
	Update(ctx context.Context, cmd UpdateScheduleCommand) (MaintenanceSchedule, error)
	Delete(ctx context.Context, cmd DeleteScheduleCommand) error
	// Tick fires a Por Confirmar order for every due schedule and advances its
	// next due date. Safe to run repeatedly; open generated orders suppress refiring.
	Tick(ctx context.Context, today time.Time) (TickResult, error)
}

// SyncService drains the calendar-mirror outbox against the external calendar
// and exposes a read-only view of what the mirror currently holds.
type SyncService interface {
	Drain(ctx context.Context, now time.Time) (DrainResult, error)
	UpcomingEvents(ctx context.Context, calendarID string, from time.Time, limit int) ([]UpcomingEvent, error)
}

// SystemService provides health reports and build metadata.
type SystemService interface {
	Health(ctx context.Context) (SystemHealthReport, error)
	Build() BuildInfo
}

// CalendarGateway is the external calendar surface the outbox drainer calls.
// A nil gateway disables mirroring entirely.
type CalendarGateway interface {
	CreateEvent(ctx context.Context, calendarID string, fields map[string]any) (string, error)
	PatchEvent(ctx context.Context, calendarID, eventID string, fields map[string]any) error
	MoveEvent(ctx context.Context, calendarID, eventID, destinationID string) (string, error)
	ListUpcomingEvents(ctx context.Context, calendarID string, from time.Time, limit int) ([]UpcomingEvent, error)
}

// UpcomingEvent is a snapshot of a mirrored calendar event, as the external
// calendar holds it right now. Orders remain the source of truth; this view
// exists so an operator can spot drift between the two.
type UpcomingEvent struct {
	EventID  string    `json:"eventId"`
	Summary  string    `json:"summary"`
	Location string    `json:"location,omitempty"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

// NotificationPublisher fans out new-order notifications. Publishing is
// fire-and-forget: failures are logged, never propagated to the caller.
type NotificationPublisher interface {
	PublishOrderNotification(ctx context.Context, message OrderNotificationMessage) (string, error)
}

// OrderNotificationMessage is the payload delivered to notification consumers.
type OrderNotificationMessage struct {
	OrderID        string    `json:"orderId"`
	OrderNumber    string    `json:"orderNumber"`
	Event          string    `json:"event"`
	CalendarID     string    `json:"calendarId,omitempty"`
	CustomerName   string    `json:"customerName"`
	CustomerPhone  string    `json:"customerPhone"`
	StartTime      string    `json:"startTime,omitempty"`
	Date           string    `json:"date,omitempty"`
	WhatsAppURL    string    `json:"whatsappUrl,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
	IdempotencyKey string    `json:"idempotencyKey,omitempty"`
}

// BuildInfo captures runtime metadata exposed via health endpoints.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// Filters shared with the repository layer.
type (
	OrderListFilter    = repositories.OrderListFilter
	CustomerListFilter = repositories.CustomerListFilter
)

// AvailabilityQuery selects the calendar and business-local day to inspect.
// ExcludeOrderID omits the order being edited from the occupancy scan.
type AvailabilityQuery struct {
	CalendarID     string
	Date           string
	ExcludeOrderID string
}

// SlotStatus is one bookable start time and whether an order already holds it.
type SlotStatus struct {
	StartTime string
	EndTime   string
	Occupied  bool
}

// DaySchedule is the availability answer for one calendar and date.
type DaySchedule struct {
	CalendarID string
	Date       string
	Slots      []SlotStatus
}

// OrderDraft carries the customer and appointment fields shared by the staff
// creation path and the public booking form.
type OrderDraft struct {
	Title           string
	CustomerName    string
	CustomerPhone   string
	CustomerAddress string
	CustomerEmail   string
	ApplianceType   string
	IssueDetail     string
	CheckupOnly     bool
	Location        *GeoPoint
	CalendarID      string
	Start           *time.Time
}

type CreateOrderCommand struct {
	Actor Actor
	Draft OrderDraft
}

// PublicBookingCommand is the unauthenticated booking-form entry point. The
// order always lands in Por Confirmar attributed to the public_form actor.
type PublicBookingCommand struct {
	Draft OrderDraft
}

type ConfirmOrderCommand struct {
	Actor   Actor
	OrderID string
}

// UpdateOrderCommand patches order fields. Changing Start or CalendarID is a
// reschedule; anything else is an edit.
type UpdateOrderCommand struct {
	Actor   Actor
	OrderID string

	Title         *string
	ApplianceType *string
	IssueDetail   *string
	CheckupOnly   *bool
	ServiceNotes  *string
	Start         *time.Time
	ClearStart    bool
	CalendarID    *string
	ClearCalendar bool
}

type OrderStatusCommand struct {
	Actor   Actor
	OrderID string
	Target  OrderStatus
}

type CancelOrderCommand struct {
	Actor   Actor
	OrderID string
	Reason  string
}

type ArchiveOrderCommand struct {
	Actor   Actor
	OrderID string
	Reason  string
}

type CompleteOrderCommand struct {
	Actor        Actor
	OrderID      string
	ServiceNotes string
	PhotoDataURI string
	Location     *GeoPoint
}

type UpdateRemindersCommand struct {
	Actor     Actor
	OrderID   string
	Reminders []string
}

type PurgeCommand struct {
	Actor Actor
	Now   time.Time
}

type CreateCustomerCommand struct {
	Actor    Actor
	Name     string
	Phone    string
	Address  string
	Email    string
	TaxID    string
	Location *GeoPoint
}

type UpdateCustomerCommand struct {
	Actor      Actor
	CustomerID string
	Name       *string
	Phone      *string
	Address    *string
	Email      *string
	TaxID      *string
	Location   *GeoPoint
}

type CreateCalendarCommand struct {
	Actor        Actor
	Name         string
	StaffID      string
	Color        string
	Availability []DailyAvailability
}

type UpdateCalendarCommand struct {
	Actor        Actor
	CalendarID   string
	Name         *string
	Color        *string
	Active       *bool
	Availability []DailyAvailability
	StaffID      *string
	ClearStaff   bool
}

type DeleteCalendarCommand struct {
	Actor      Actor
	CalendarID string
}

type CreateStaffCommand struct {
	Actor Actor
	Name  string
	Email string
	Phone string
	Role  StaffRole
}

type UpdateStaffCommand struct {
	Actor             Actor
	StaffID           string
	Name              *string
	Phone             *string
	Role              *StaffRole
	Active            *bool
	PrimaryCalendarID *string
	ClearPrimary      bool
}

type DeleteStaffCommand struct {
	Actor   Actor
	StaffID string
}

type CreateScheduleCommand struct {
	Actor           Actor
	CustomerID      string
	Description     string
	StartDate       string
	FrequencyMonths int
}

type UpdateScheduleCommand struct {
	Actor           Actor
	ScheduleID      string
	Description     *string
	FrequencyMonths *int
	NextDueDate     *string
}

type DeleteScheduleCommand struct {
	Actor      Actor
	ScheduleID string
}

// TickResult summarises one maintenance pass.
type TickResult struct {
	Evaluated int
	Fired     []string
	Skipped   int
}

// DrainResult summarises one outbox pass.
type DrainResult struct {
	Processed int
	Succeeded int
	Failed    int
}
