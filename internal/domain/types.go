// Package domain declares the entities shared across services, repositories, and handlers.
package domain

import (
	"time"
)

// Pagination carries cursor-based paging parameters.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder controls result ordering for list queries.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// RangeQuery bounds a field between optional from/to values.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// CursorPage wraps a page of results together with the next page token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// StaffRole enumerates the roles recognised by the authorization guard.
type StaffRole string

const (
	// RoleAdmin may perform every operation including purges and staff management.
	RoleAdmin StaffRole = "admin"
	// RoleSecretary confirms, schedules, and edits service orders.
	RoleSecretary StaffRole = "secretary"
	// RoleTechnician attends appointments and completes service orders.
	RoleTechnician StaffRole = "technician"
)

// Valid reports whether the role is one the guard recognises.
func (r StaffRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleSecretary, RoleTechnician:
		return true
	}
	return false
}

// Staff is a member of the business able to authenticate against the API.
type Staff struct {
	ID                string
	Name              string
	Email             string
	Phone             string
	Role              StaffRole
	PrimaryCalendarID *string
	Active            bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// SystemActorID attributes mutations performed by background engines rather than a person.
const SystemActorID = "system"

// PublicFormActorID attributes orders submitted through the unauthenticated booking form.
const PublicFormActorID = "public_form"

// TimeSlot is a bookable window expressed as wall-clock "HH:MM" strings in the
// business timezone. Appointments are a fixed 60 minutes, so EndTime is derived.
type TimeSlot struct {
	StartTime string
	EndTime   string
}

// DailyAvailability lists the bookable slots for one weekday (0=Sunday .. 6=Saturday).
type DailyAvailability struct {
	Weekday int
	Slots   []TimeSlot
}

// Calendar is a technician's schedule identity plus its weekly availability template.
type Calendar struct {
	ID           string
	Name         string
	StaffID      *string
	Color        string
	Availability []DailyAvailability
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Customer is the registry entry service orders denormalize from. Customers are
// deduplicated on exact phone plus case-insensitive name match.
type Customer struct {
	ID             string
	Name           string
	Phone          string
	Address        string
	Email          *string
	TaxID          *string
	Latitude       *float64
	Longitude      *float64
	ServiceHistory []string
	CreatedByID    *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// OrderStatus enumerates the service-order lifecycle states. The values are the
// business's Spanish labels and are stored verbatim.
type OrderStatus string

const (
	// StatusUnconfirmed is the initial state: unscheduled or awaiting secretary confirmation.
	StatusUnconfirmed OrderStatus = "Por Confirmar"
	// StatusPending is a confirmed, scheduled appointment.
	StatusPending OrderStatus = "Pendiente"
	// StatusInProgress marks an appointment the technician is attending.
	StatusInProgress OrderStatus = "En Proceso"
	// StatusCompleted is the successful terminal state; requires notes, photo, and geolocation.
	StatusCompleted OrderStatus = "Completado"
	// StatusWarranty flags a completed job re-opened under warranty.
	StatusWarranty OrderStatus = "Garantía"
	// StatusCancelled is the soft-cancel terminal state; orders here are purged after three days.
	StatusCancelled OrderStatus = "Cancelado"
	// StatusArchived is the unscheduled terminal state reached through an explicit archive action.
	StatusArchived OrderStatus = "No Agendado"
)

// ActionLog is one append-only audit entry on a service order's history.
type ActionLog struct {
	Action    string
	Timestamp time.Time
	ActorID   string
	Detail    string
}

// History action names recorded by the lifecycle engine.
const (
	ActionCreated       = "Creado"
	ActionConfirmed     = "Confirmado"
	ActionEdited        = "Editado"
	ActionRescheduled   = "Reagendado"
	ActionCancelled     = "Cancelado"
	ActionArchived      = "Archivado"
	ActionStatusChanged = "Estado Cambiado"
	ActionCompleted     = "Completado"
)

// GeoPoint is a captured device location.
type GeoPoint struct {
	Latitude  float64
	Longitude float64
}

// CompletionProof bundles the mandatory evidence for the Completado transition.
type CompletionProof struct {
	PhotoURL  string
	Latitude  float64
	Longitude float64
}

// ServiceOrder is the central entity: one repair job tying a customer, an optional
// technician calendar, a time window, and a lifecycle status.
type ServiceOrder struct {
	ID          string
	OrderNumber string
	Title       string

	// Customer identity snapshot, duplicated at creation time.
	CustomerID      string
	CustomerName    string
	CustomerPhone   string
	CustomerAddress string
	CustomerEmail   *string
	Location        *GeoPoint

	ApplianceType string
	IssueDetail   string

	Status     OrderStatus
	Start      *time.Time
	End        *time.Time
	CalendarID *string

	GoogleSynced  bool
	GoogleEventID *string

	CheckupOnly  bool
	ServiceNotes string
	Proof        *CompletionProof
	Reminders    []string

	CreatedByID   *string
	ConfirmedByID *string
	AttendedByID  *string
	CancelledByID *string

	CancellationReason *string
	ArchiveReason      *string

	// GeneratedByScheduleID tags orders materialized by the maintenance engine so the
	// engine can de-duplicate on a real reference rather than issue-text matching.
	GeneratedByScheduleID *string

	RescheduledCount int
	History          []ActionLog

	// Version increments on every persisted mutation and backs the transactional
	// compare-and-swap precondition.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Scheduled reports whether the order holds both a calendar and a start time.
func (o ServiceOrder) Scheduled() bool {
	return o.CalendarID != nil && o.Start != nil
}

// Active reports whether the order is still in a mutable lifecycle state.
func (o ServiceOrder) Active() bool {
	switch o.Status {
	case StatusCancelled, StatusArchived:
		return false
	}
	return true
}

// MaintenanceSchedule fires a new unconfirmed order every FrequencyMonths.
type MaintenanceSchedule struct {
	ID              string
	CustomerID      string
	Description     string
	StartDate       string
	FrequencyMonths int
	NextDueDate     string
	CreatedByID     *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OutboxStatus tracks the lifecycle of a pending external mirror operation.
type OutboxStatus string

const (
	OutboxPending   OutboxStatus = "pending"
	OutboxSucceeded OutboxStatus = "succeeded"
	OutboxFailed    OutboxStatus = "failed"
)

// OutboxOp names the calendar mirror operation an outbox record carries.
type OutboxOp string

const (
	OutboxOpCreate OutboxOp = "create"
	OutboxOpPatch  OutboxOp = "patch"
	OutboxOpMove   OutboxOp = "move"
)

// SyncOutboxRecord is a durable intent to mirror an order mutation to the external
// calendar. Records are drained by a background worker with exponential backoff;
// the local mutation they mirror is never rolled back.
type SyncOutboxRecord struct {
	ID             string
	Op             OutboxOp
	OrderID        string
	CalendarID     string
	PrevCalendarID string
	EventID        string
	Fields         map[string]any
	Status         OutboxStatus
	Attempts       int
	LastError      string
	NextAttemptAt  time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SystemHealthCheck reports one downstream dependency's status.
type SystemHealthCheck struct {
	Name       string
	Healthy    bool
	Detail     string
	DurationMS int64
}

// SystemHealthReport aggregates dependency checks for the readiness endpoint.
type SystemHealthReport struct {
	Healthy     bool
	GeneratedAt time.Time
	Checks      []SystemHealthCheck
}
