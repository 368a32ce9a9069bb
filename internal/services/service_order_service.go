package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/servihogar/api/internal/domain"
	"github.com/servihogar/api/internal/platform/textutil"
	"github.com/servihogar/api/internal/repositories"
)

const (
	orderEventCreated = "order.created"

	orderIDPrefix    = "so_"
	customerIDPrefix = "cus_"
	outboxIDPrefix   = "ob_"

	orderNumberCounter = "serviceOrders"
	orderNumberFormat  = "OS-%04d"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an illegal status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates the stored revision moved underneath the caller.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderMissingProof indicates the Completado preconditions were not met.
	ErrOrderMissingProof = errors.New("order: completion proof incomplete")
	// ErrProofStoreUnset indicates no proof storage is configured, so orders
	// cannot be completed.
	ErrProofStoreUnset = errors.New("order: proof storage not configured")
)

// orderStateTransitions is the lifecycle table. Cancelado and No Agendado are
// terminal; the staff-deletion cascade bypasses this table deliberately.
var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.StatusUnconfirmed: {domain.StatusPending, domain.StatusCancelled, domain.StatusArchived},
	domain.StatusPending:     {domain.StatusInProgress, domain.StatusCompleted, domain.StatusCancelled, domain.StatusArchived},
	domain.StatusInProgress:  {domain.StatusCompleted, domain.StatusWarranty, domain.StatusCancelled, domain.StatusArchived},
	domain.StatusWarranty:    {domain.StatusCompleted, domain.StatusCancelled, domain.StatusArchived},
	domain.StatusCompleted:   {domain.StatusWarranty, domain.StatusArchived},
}

// completableStatuses may transition to Completado through the dedicated flow.
var completableStatuses = []domain.OrderStatus{
	domain.StatusPending,
	domain.StatusInProgress,
	domain.StatusWarranty,
}

// ProofStore persists the mandatory completion photo and returns its URL.
type ProofStore interface {
	SavePhoto(ctx context.Context, orderID, orderNumber, dataURI string) (string, error)
}

// ServiceOrderServiceDeps bundles collaborators required to construct the order service.
type ServiceOrderServiceDeps struct {
	Orders      repositories.ServiceOrderRepository
	Customers   repositories.CustomerRepository
	Outbox      repositories.SyncOutboxRepository
	Counters    repositories.CounterRepository
	UnitOfWork  repositories.UnitOfWork
	Proofs      ProofStore
	Notifier    NotificationPublisher
	Timezone    *time.Location
	SyncEnabled bool
	// PurgeRetention is how long cancelled orders survive before the purge
	// removes them, measured from creation.
	PurgeRetention time.Duration
	Clock          func() time.Time
	IDGenerator    func() string
	Logger         func(ctx context.Context, event string, fields map[string]any)
}

type serviceOrderService struct {
	orders      repositories.ServiceOrderRepository
	customers   repositories.CustomerRepository
	outbox      repositories.SyncOutboxRepository
	counters    repositories.CounterRepository
	unitOfWork  repositories.UnitOfWork
	proofs      ProofStore
	notifier    NotificationPublisher
	timezone    *time.Location
	syncEnabled bool
	retention   time.Duration
	clock       func() time.Time
	newID       func() string
	logger      func(context.Context, string, map[string]any)
}

var _ ServiceOrderService = (*serviceOrderService)(nil)

// NewServiceOrderService wires dependencies into a concrete ServiceOrderService.
func NewServiceOrderService(deps ServiceOrderServiceDeps) (ServiceOrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Customers == nil {
		return nil, errors.New("order service: customer repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
	}
	if deps.Timezone == nil {
		return nil, errors.New("order service: timezone is required")
	}
	if deps.SyncEnabled && deps.Outbox == nil {
		return nil, errors.New("order service: outbox repository is required when sync is enabled")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
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
	retention := deps.PurgeRetention
	if retention <= 0 {
		retention = 72 * time.Hour
	}

	return &serviceOrderService{
		orders:      deps.Orders,
		customers:   deps.Customers,
		outbox:      deps.Outbox,
		counters:    deps.Counters,
		unitOfWork:  unit,
		proofs:      deps.Proofs,
		notifier:    deps.Notifier,
		timezone:    deps.Timezone,
		syncEnabled: deps.SyncEnabled,
		retention:   retention,
		clock:       clock,
		newID:       idGen,
		logger:      logger,
	}, nil
}

func (s *serviceOrderService) Create(ctx context.Context, cmd CreateOrderCommand) (ServiceOrder, error) {
	if err := Authorize(cmd.Actor, CapOrderCreate); err != nil {
		return ServiceOrder{}, err
	}
	return s.createOrder(ctx, cmd.Draft, cmd.Actor.ID)
}

// AddUnconfirmed is the unauthenticated booking-form entry point. It shares the
// transactional creation path and attributes history to the public_form actor.
func (s *serviceOrderService) AddUnconfirmed(ctx context.Context, cmd PublicBookingCommand) (ServiceOrder, error) {
	return s.createOrder(ctx, cmd.Draft, domain.PublicFormActorID)
}

func (s *serviceOrderService) createOrder(ctx context.Context, draft OrderDraft, actorID string) (ServiceOrder, error) {
	if err := validateDraft(draft); err != nil {
		return ServiceOrder{}, err
	}

	now := s.now()
	order := s.buildOrder(draft, actorID, now)

	err := s.runInTx(ctx, func(txCtx context.Context) error {
		// Reads first: Firestore transactions require every read to precede
		// the first write.
		if order.Scheduled() {
			if err := s.assertSlotFree(txCtx, *order.CalendarID, *order.Start, ""); err != nil {
				return err
			}
		}

		customer, found, err := s.resolveCustomer(txCtx, draft.CustomerName, draft.CustomerPhone)
		if err != nil {
			return s.mapRepositoryError(err)
		}

		number, err := s.generateOrderNumber(txCtx)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		order.OrderNumber = number

		if found {
			order.CustomerID = customer.ID
			customer.ServiceHistory = append(customer.ServiceHistory, order.ID)
			customer.UpdatedAt = now
			if err := s.customers.Update(txCtx, customer); err != nil {
				return s.mapRepositoryError(err)
			}
		} else {
			customer = s.buildCustomer(draft, actorID, order.ID, now)
			order.CustomerID = customer.ID
			if err := s.customers.Insert(txCtx, customer); err != nil {
				return s.mapRepositoryError(err)
			}
		}

		if err := s.orders.Insert(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return ServiceOrder{}, err
	}

	s.notifyCreated(ctx, order)
	return order, nil
}

func (s *serviceOrderService) Get(ctx context.Context, actor Actor, orderID string) (ServiceOrder, error) {
	if err := Authorize(actor, CapOrderRead); err != nil {
		return ServiceOrder{}, err
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return ServiceOrder{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return ServiceOrder{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *serviceOrderService) List(ctx context.Context, actor Actor, filter OrderListFilter) (domain.CursorPage[ServiceOrder], error) {
	if err := Authorize(actor, CapOrderRead); err != nil {
		return domain.CursorPage[ServiceOrder]{}, err
	}
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[ServiceOrder]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *serviceOrderService) Confirm(ctx context.Context, cmd ConfirmOrderCommand) (ServiceOrder, error) {
	if err := Authorize(cmd.Actor, CapOrderConfirm); err != nil {
		return ServiceOrder{}, err
	}

	order, err := s.mustFind(ctx, cmd.OrderID)
	if err != nil {
		return ServiceOrder{}, err
	}
	if order.Status != domain.StatusUnconfirmed {
		return ServiceOrder{}, fmt.Errorf("%w: only %s orders can be confirmed, got %s",
			ErrOrderInvalidState, domain.StatusUnconfirmed, order.Status)
	}
	if !order.Scheduled() {
		return ServiceOrder{}, fmt.Errorf("%w: order must be scheduled before confirmation", ErrOrderInvalidInput)
	}

	now := s.now()
	actorID := cmd.Actor.ID

	order.Status = domain.StatusPending
	order.ConfirmedByID = &actorID
	if order.CreatedByID == nil {
		order.CreatedByID = &actorID
	}
	appendHistory(&order, domain.ActionConfirmed, actorID, "", now)
	order.UpdatedAt = now

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		var customer domain.Customer
		backfillCustomer := false
		if order.CustomerID != "" {
			found, err := s.customers.FindByID(txCtx, order.CustomerID)
			if err == nil && found.CreatedByID == nil {
				customer = found
				customer.CreatedByID = &actorID
				customer.UpdatedAt = now
				backfillCustomer = true
			}
		}

		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		if backfillCustomer {
			if err := s.customers.Update(txCtx, customer); err != nil {
				return s.mapRepositoryError(err)
			}
		}
		return s.enqueueMirrorUpsert(txCtx, order, now)
	})
	if err != nil {
		return ServiceOrder{}, err
	}
	order.Version++
	return order, nil
}

func (s *serviceOrderService) Update(ctx context.Context, cmd UpdateOrderCommand) (ServiceOrder, error) {
	if err := Authorize(cmd.Actor, CapOrderEdit); err != nil {
		return ServiceOrder{}, err
	}

	order, err := s.mustFind(ctx, cmd.OrderID)
	if err != nil {
		return ServiceOrder{}, err
	}
	if !order.Active() {
		return ServiceOrder{}, fmt.Errorf("%w: %s orders cannot be edited", ErrOrderInvalidState, order.Status)
	}

	now := s.now()
	prevStart := cloneTimePtr(order.Start)
	prevCalendar := cloneStringPtr(order.CalendarID)

	applyOrderPatch(&order, cmd)

	rescheduled := !equalTimePtr(prevStart, order.Start) || !equalStringPtr(prevCalendar, order.CalendarID)
	if rescheduled {
		order.RescheduledCount++
		appendHistory(&order, domain.ActionRescheduled, cmd.Actor.ID, rescheduleDetail(order, s.timezone), now)
	} else {
		appendHistory(&order, domain.ActionEdited, cmd.Actor.ID, "", now)
	}
	order.UpdatedAt = now

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if rescheduled && order.Scheduled() {
			if err := s.assertSlotFree(txCtx, *order.CalendarID, *order.Start, order.ID); err != nil {
				return err
			}
		}
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		if !s.mirrored(order) {
			return nil
		}
		calendarMoved := rescheduled && prevCalendar != nil && order.CalendarID != nil && *prevCalendar != *order.CalendarID
		if calendarMoved {
			if err := s.enqueueMirror(txCtx, domain.SyncOutboxRecord{
				Op:             domain.OutboxOpMove,
				OrderID:        order.ID,
				CalendarID:     *order.CalendarID,
				PrevCalendarID: *prevCalendar,
				EventID:        stringValue(order.GoogleEventID),
			}, now); err != nil {
				return err
			}
		}
		return s.enqueueMirror(txCtx, domain.SyncOutboxRecord{
			Op:         domain.OutboxOpPatch,
			OrderID:    order.ID,
			CalendarID: stringValue(order.CalendarID),
			EventID:    stringValue(order.GoogleEventID),
			Fields:     mirrorFields(order),
		}, now)
	})
	if err != nil {
		return ServiceOrder{}, err
	}
	order.Version++
	return order, nil
}

func (s *serviceOrderService) UpdateStatus(ctx context.Context, cmd OrderStatusCommand) (ServiceOrder, error) {
	if err := Authorize(cmd.Actor, CapOrderStatus); err != nil {
		return ServiceOrder{}, err
	}

	switch cmd.Target {
	case domain.StatusCompleted:
		return ServiceOrder{}, fmt.Errorf("%w: %s requires the completion flow", ErrOrderInvalidState, domain.StatusCompleted)
	case domain.StatusCancelled:
		return ServiceOrder{}, fmt.Errorf("%w: %s requires the cancellation flow", ErrOrderInvalidState, domain.StatusCancelled)
	case domain.StatusArchived:
		return ServiceOrder{}, fmt.Errorf("%w: %s requires the archive flow", ErrOrderInvalidState, domain.StatusArchived)
	}

	order, err := s.mustFind(ctx, cmd.OrderID)
	if err != nil {
		return ServiceOrder{}, err
	}
	if !canTransition(order.Status, cmd.Target) {
		return ServiceOrder{}, fmt.Errorf("%w: %s -> %s", ErrOrderInvalidState, order.Status, cmd.Target)
	}

	now := s.now()
	prev := order.Status
	order.Status = cmd.Target
	appendHistory(&order, domain.ActionStatusChanged, cmd.Actor.ID,
		fmt.Sprintf("%s -> %s", prev, cmd.Target), now)
	order.UpdatedAt = now

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		if !s.mirrored(order) {
			return nil
		}
		return s.enqueueMirror(txCtx, domain.SyncOutboxRecord{
			Op:         domain.OutboxOpPatch,
			OrderID:    order.ID,
			CalendarID: stringValue(order.CalendarID),
			EventID:    stringValue(order.GoogleEventID),
			Fields:     mirrorFields(order),
		}, now)
	})
	if err != nil {
		return ServiceOrder{}, err
	}
	order.Version++
	return order, nil
}

// Cancel soft-cancels the order. The reason is mandatory and recorded in history;
// the hard delete only happens later through the purge.
func (s *serviceOrderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (ServiceOrder, error) {
	if err := Authorize(cmd.Actor, CapOrderCancel); err != nil {
		return ServiceOrder{}, err
	}
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		return ServiceOrder{}, fmt.Errorf("%w: cancellation reason is required", ErrOrderInvalidInput)
	}

	order, err := s.mustFind(ctx, cmd.OrderID)
	if err != nil {
		return ServiceOrder{}, err
	}
	if !order.Active() {
		return ServiceOrder{}, fmt.Errorf("%w: %s orders cannot be cancelled", ErrOrderInvalidState, order.Status)
	}

	now := s.now()
	actorID := cmd.Actor.ID
	order.Status = domain.StatusCancelled
	order.CancelledByID = &actorID
	order.CancellationReason = &reason
	appendHistory(&order, domain.ActionCancelled, actorID, reason, now)
	order.UpdatedAt = now

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		if !s.mirrored(order) {
			return nil
		}
		return s.enqueueMirror(txCtx, domain.SyncOutboxRecord{
			Op:         domain.OutboxOpPatch,
			OrderID:    order.ID,
			CalendarID: stringValue(order.CalendarID),
			EventID:    stringValue(order.GoogleEventID),
			Fields: map[string]any{
				"summary": "[CANCELADO] " + mirrorSummary(order),
			},
		}, now)
	})
	if err != nil {
		return ServiceOrder{}, err
	}
	order.Version++
	return order, nil
}

// Archive moves the order to No Agendado. The calendar assignment is kept;
// only the staff-deletion cascade clears it.
func (s *serviceOrderService) Archive(ctx context.Context, cmd ArchiveOrderCommand) (ServiceOrder, error) {
	if err := Authorize(cmd.Actor, CapOrderArchive); err != nil {
		return ServiceOrder{}, err
	}

	order, err := s.mustFind(ctx, cmd.OrderID)
	if err != nil {
		return ServiceOrder{}, err
	}
	if !order.Active() {
		return ServiceOrder{}, fmt.Errorf("%w: %s orders cannot be archived", ErrOrderInvalidState, order.Status)
	}

	now := s.now()
	actorID := cmd.Actor.ID
	reason := strings.TrimSpace(cmd.Reason)

	order.Status = domain.StatusArchived
	order.AttendedByID = &actorID
	if reason != "" {
		order.ArchiveReason = &reason
	}
	appendHistory(&order, domain.ActionArchived, actorID, reason, now)
	order.UpdatedAt = now

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		return s.mapRepositoryError(s.orders.Update(txCtx, order))
	})
	if err != nil {
		return ServiceOrder{}, err
	}
	order.Version++
	return order, nil
}

// Complete transitions to Completado. Service notes, the photo, and a captured
// geolocation are all mandatory preconditions checked before anything persists.
func (s *serviceOrderService) Complete(ctx context.Context, cmd CompleteOrderCommand) (ServiceOrder, error) {
	if err := Authorize(cmd.Actor, CapOrderComplete); err != nil {
		return ServiceOrder{}, err
	}

	notes := strings.TrimSpace(cmd.ServiceNotes)
	if notes == "" {
		return ServiceOrder{}, fmt.Errorf("%w: service notes are required", ErrOrderMissingProof)
	}
	if strings.TrimSpace(cmd.PhotoDataURI) == "" {
		return ServiceOrder{}, fmt.Errorf("%w: completion photo is required", ErrOrderMissingProof)
	}
	if cmd.Location == nil {
		return ServiceOrder{}, fmt.Errorf("%w: captured geolocation is required", ErrOrderMissingProof)
	}

	order, err := s.mustFind(ctx, cmd.OrderID)
	if err != nil {
		return ServiceOrder{}, err
	}
	if !statusIn(order.Status, completableStatuses) {
		return ServiceOrder{}, fmt.Errorf("%w: %s orders cannot be completed", ErrOrderInvalidState, order.Status)
	}

	// Completado requires a stored photo; without a proof store the invariant
	// cannot hold, so completion is refused rather than degraded.
	if s.proofs == nil {
		return ServiceOrder{}, ErrProofStoreUnset
	}
	photoURL, err := s.proofs.SavePhoto(ctx, order.ID, order.OrderNumber, cmd.PhotoDataURI)
	if err != nil {
		return ServiceOrder{}, fmt.Errorf("order: store completion photo: %w", err)
	}

	now := s.now()
	actorID := cmd.Actor.ID
	order.Status = domain.StatusCompleted
	order.ServiceNotes = notes
	order.AttendedByID = &actorID
	order.Proof = &domain.CompletionProof{
		PhotoURL:  photoURL,
		Latitude:  cmd.Location.Latitude,
		Longitude: cmd.Location.Longitude,
	}
	appendHistory(&order, domain.ActionCompleted, actorID, "", now)
	order.UpdatedAt = now

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		if !s.mirrored(order) {
			return nil
		}
		return s.enqueueMirror(txCtx, domain.SyncOutboxRecord{
			Op:         domain.OutboxOpPatch,
			OrderID:    order.ID,
			CalendarID: stringValue(order.CalendarID),
			EventID:    stringValue(order.GoogleEventID),
			Fields: map[string]any{
				"summary": "[COMPLETADO] " + mirrorSummary(order),
			},
		}, now)
	})
	if err != nil {
		return ServiceOrder{}, err
	}
	order.Version++
	return order, nil
}

func (s *serviceOrderService) UpdateReminders(ctx context.Context, cmd UpdateRemindersCommand) (ServiceOrder, error) {
	if err := Authorize(cmd.Actor, CapOrderEdit); err != nil {
		return ServiceOrder{}, err
	}

	order, err := s.mustFind(ctx, cmd.OrderID)
	if err != nil {
		return ServiceOrder{}, err
	}

	now := s.now()
	order.Reminders = append([]string(nil), cmd.Reminders...)
	order.UpdatedAt = now

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		return s.mapRepositoryError(s.orders.Update(txCtx, order))
	})
	if err != nil {
		return ServiceOrder{}, err
	}
	order.Version++
	return order, nil
}

// UnassignCalendar clears the calendar from every order assigned to it and
// resets each to Por Confirmar, whatever its prior status. This is the
// documented re-triage policy behind staff deletion, not a bug; Completado
// orders are reset like any other.
func (s *serviceOrderService) UnassignCalendar(ctx context.Context, actor Actor, calendarID string) (int, error) {
	if err := Authorize(actor, CapStaffWrite); err != nil {
		return 0, err
	}
	calendarID = strings.TrimSpace(calendarID)
	if calendarID == "" {
		return 0, fmt.Errorf("%w: calendar id is required", ErrOrderInvalidInput)
	}

	orders, err := s.orders.ListByCalendar(ctx, calendarID)
	if err != nil {
		return 0, s.mapRepositoryError(err)
	}

	now := s.now()
	updated := 0
	for _, order := range orders {
		order := order
		prev := order.Status
		order.CalendarID = nil
		order.Status = domain.StatusUnconfirmed
		appendHistory(&order, domain.ActionStatusChanged, actor.ID,
			fmt.Sprintf("%s -> %s (baja de técnico)", prev, domain.StatusUnconfirmed), now)
		order.UpdatedAt = now

		err := s.runInTx(ctx, func(txCtx context.Context) error {
			return s.mapRepositoryError(s.orders.Update(txCtx, order))
		})
		if err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}

// PurgeCancelled hard-deletes cancelled orders older than the retention window,
// measured from creation. Admin only; irreversible.
func (s *serviceOrderService) PurgeCancelled(ctx context.Context, cmd PurgeCommand) (int, error) {
	if err := Authorize(cmd.Actor, CapOrderPurge); err != nil {
		return 0, err
	}

	now := cmd.Now
	if now.IsZero() {
		now = s.now()
	}
	cutoff := now.Add(-s.retention)

	expired, err := s.orders.ListCancelledBefore(ctx, cutoff)
	if err != nil {
		return 0, s.mapRepositoryError(err)
	}

	purged := 0
	for _, order := range expired {
		if err := s.orders.Delete(ctx, order.ID); err != nil {
			return purged, s.mapRepositoryError(err)
		}
		purged++
	}

	if purged > 0 {
		s.logger(ctx, "order.purge", map[string]any{"purged": purged, "cutoff": cutoff})
	}
	return purged, nil
}

// --- helpers ---------------------------------------------------------------

func validateDraft(draft OrderDraft) error {
	if strings.TrimSpace(draft.CustomerName) == "" {
		return fmt.Errorf("%w: customer name is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(draft.CustomerPhone) == "" {
		return fmt.Errorf("%w: customer phone is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(draft.Title) == "" && strings.TrimSpace(draft.ApplianceType) == "" {
		return fmt.Errorf("%w: title or appliance type is required", ErrOrderInvalidInput)
	}
	if draft.Start != nil && strings.TrimSpace(draft.CalendarID) == "" {
		return fmt.Errorf("%w: scheduled orders need a calendar", ErrOrderInvalidInput)
	}
	return nil
}

func (s *serviceOrderService) buildOrder(draft OrderDraft, actorID string, now time.Time) domain.ServiceOrder {
	title := strings.TrimSpace(draft.Title)
	if title == "" {
		title = strings.TrimSpace(draft.ApplianceType)
	}

	order := domain.ServiceOrder{
		ID:              orderIDPrefix + s.newID(),
		Title:           title,
		CustomerName:    strings.TrimSpace(draft.CustomerName),
		CustomerPhone:   strings.TrimSpace(draft.CustomerPhone),
		CustomerAddress: strings.TrimSpace(draft.CustomerAddress),
		ApplianceType:   strings.TrimSpace(draft.ApplianceType),
		IssueDetail:     strings.TrimSpace(draft.IssueDetail),
		CheckupOnly:     draft.CheckupOnly,
		Status:          domain.StatusUnconfirmed,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if email := strings.TrimSpace(draft.CustomerEmail); email != "" {
		order.CustomerEmail = &email
	}
	if draft.Location != nil {
		loc := *draft.Location
		order.Location = &loc
	}
	if calendarID := strings.TrimSpace(draft.CalendarID); calendarID != "" {
		order.CalendarID = &calendarID
	}
	if draft.Start != nil {
		start := draft.Start.UTC()
		end := start.Add(SlotDuration)
		order.Start = &start
		order.End = &end
	}
	if actorID != domain.PublicFormActorID {
		id := actorID
		order.CreatedByID = &id
	}
	appendHistory(&order, domain.ActionCreated, actorID, "", now)
	return order
}

func (s *serviceOrderService) buildCustomer(draft OrderDraft, actorID, orderID string, now time.Time) domain.Customer {
	customer := domain.Customer{
		ID:             customerIDPrefix + s.newID(),
		Name:           strings.TrimSpace(draft.CustomerName),
		Phone:          strings.TrimSpace(draft.CustomerPhone),
		Address:        strings.TrimSpace(draft.CustomerAddress),
		ServiceHistory: []string{orderID},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if email := strings.TrimSpace(draft.CustomerEmail); email != "" {
		customer.Email = &email
	}
	if draft.Location != nil {
		lat, lng := draft.Location.Latitude, draft.Location.Longitude
		customer.Latitude = &lat
		customer.Longitude = &lng
	}
	if actorID != domain.PublicFormActorID {
		id := actorID
		customer.CreatedByID = &id
	}
	return customer
}

// resolveCustomer finds an existing customer matching on exact phone AND
// case-insensitive name. Phone alone never matches.
func (s *serviceOrderService) resolveCustomer(ctx context.Context, name, phone string) (domain.Customer, bool, error) {
	candidates, err := s.customers.FindByPhone(ctx, strings.TrimSpace(phone))
	if err != nil {
		return domain.Customer{}, false, err
	}
	folded := textutil.FoldCase(name)
	for _, candidate := range candidates {
		if textutil.FoldCase(candidate.Name) == folded {
			return candidate, true, nil
		}
	}
	return domain.Customer{}, false, nil
}

func (s *serviceOrderService) generateOrderNumber(ctx context.Context) (string, error) {
	seq, err := s.counters.Next(ctx, orderNumberCounter, 1)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(orderNumberFormat, seq), nil
}

func (s *serviceOrderService) mustFind(ctx context.Context, orderID string) (domain.ServiceOrder, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.ServiceOrder{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.ServiceOrder{}, s.mapRepositoryError(err)
	}
	return order, nil
}

// mirrored reports whether the order has an external event worth patching.
// assertSlotFree rejects scheduling into a slot another live order already
// holds on the same calendar. The availability endpoint is advisory; this
// check is the authoritative one.
func (s *serviceOrderService) assertSlotFree(ctx context.Context, calendarID string, start time.Time, excludeOrderID string) error {
	others, err := s.orders.ListByCalendarRange(ctx, calendarID, start.UTC(), start.UTC().Add(SlotDuration))
	if err != nil {
		return s.mapRepositoryError(err)
	}
	for _, other := range others {
		if other.ID == excludeOrderID || other.Start == nil {
			continue
		}
		if other.Status == domain.StatusCancelled {
			continue
		}
		if other.Start.Equal(start) {
			return fmt.Errorf("%w: slot %s on calendar %s is taken by %s",
				ErrOrderConflict, start.In(s.timezone).Format(slotLayout), calendarID, other.OrderNumber)
		}
	}
	return nil
}

func (s *serviceOrderService) mirrored(order domain.ServiceOrder) bool {
	return s.syncEnabled && order.GoogleSynced && order.GoogleEventID != nil
}

// enqueueMirrorUpsert records a create or patch intent depending on whether the
// order already has a mirror event.
func (s *serviceOrderService) enqueueMirrorUpsert(ctx context.Context, order domain.ServiceOrder, now time.Time) error {
	if !s.syncEnabled || order.CalendarID == nil || order.Start == nil {
		return nil
	}
	record := domain.SyncOutboxRecord{
		OrderID:    order.ID,
		CalendarID: *order.CalendarID,
		Fields:     mirrorFields(order),
	}
	if order.GoogleSynced && order.GoogleEventID != nil {
		record.Op = domain.OutboxOpPatch
		record.EventID = *order.GoogleEventID
	} else {
		record.Op = domain.OutboxOpCreate
	}
	return s.enqueueMirror(ctx, record, now)
}

func (s *serviceOrderService) enqueueMirror(ctx context.Context, record domain.SyncOutboxRecord, now time.Time) error {
	if !s.syncEnabled || s.outbox == nil {
		return nil
	}
	if record.Op != domain.OutboxOpCreate && record.EventID == "" {
		// Nothing mirrored yet; a later confirm will create the event.
		return nil
	}
	record.ID = outboxIDPrefix + s.newID()
	record.Status = domain.OutboxPending
	record.NextAttemptAt = now
	record.CreatedAt = now
	record.UpdatedAt = now
	if err := s.outbox.Enqueue(ctx, record); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

// notifyCreated fans out the new-order notification. Fire-and-forget: failures
// are logged, never surfaced to the caller.
func (s *serviceOrderService) notifyCreated(ctx context.Context, order domain.ServiceOrder) {
	if s.notifier == nil {
		return
	}
	message := OrderNotificationMessage{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		Event:          orderEventCreated,
		CalendarID:     stringValue(order.CalendarID),
		CustomerName:   order.CustomerName,
		CustomerPhone:  order.CustomerPhone,
		OccurredAt:     order.CreatedAt,
		IdempotencyKey: order.ID,
	}
	if order.Start != nil {
		local := order.Start.In(s.timezone)
		message.StartTime = local.Format(slotLayout)
		message.Date = local.Format(isoDateLayout)
	}
	if link, err := WhatsAppLink(order.CustomerPhone, ""); err == nil {
		message.WhatsAppURL = link
	}
	if _, err := s.notifier.PublishOrderNotification(ctx, message); err != nil {
		s.logger(ctx, "order.notify.failed", map[string]any{
			"order": order.ID,
			"error": err.Error(),
		})
	}
}

func (s *serviceOrderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}
	return err
}

func (s *serviceOrderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *serviceOrderService) now() time.Time {
	return s.clock().UTC()
}

func applyOrderPatch(order *domain.ServiceOrder, cmd UpdateOrderCommand) {
	if cmd.Title != nil {
		order.Title = strings.TrimSpace(*cmd.Title)
	}
	if cmd.ApplianceType != nil {
		order.ApplianceType = strings.TrimSpace(*cmd.ApplianceType)
	}
	if cmd.IssueDetail != nil {
		order.IssueDetail = strings.TrimSpace(*cmd.IssueDetail)
	}
	if cmd.CheckupOnly != nil {
		order.CheckupOnly = *cmd.CheckupOnly
	}
	if cmd.ServiceNotes != nil {
		order.ServiceNotes = strings.TrimSpace(*cmd.ServiceNotes)
	}
	if cmd.ClearStart {
		order.Start = nil
		order.End = nil
	} else if cmd.Start != nil {
		start := cmd.Start.UTC()
		end := start.Add(SlotDuration)
		order.Start = &start
		order.End = &end
	}
	if cmd.ClearCalendar {
		order.CalendarID = nil
	} else if cmd.CalendarID != nil {
		calendarID := strings.TrimSpace(*cmd.CalendarID)
		if calendarID == "" {
			order.CalendarID = nil
		} else {
			order.CalendarID = &calendarID
		}
	}
}

func appendHistory(order *domain.ServiceOrder, action, actorID, detail string, now time.Time) {
	order.History = append(order.History, domain.ActionLog{
		Action:    action,
		Timestamp: now,
		ActorID:   actorID,
		Detail:    detail,
	})
}

func rescheduleDetail(order domain.ServiceOrder, tz *time.Location) string {
	if order.Start == nil {
		return "sin horario"
	}
	return order.Start.In(tz).Format("2006-01-02 15:04")
}

func mirrorSummary(order domain.ServiceOrder) string {
	return order.OrderNumber + " - " + order.Title
}

func mirrorFields(order domain.ServiceOrder) map[string]any {
	fields := map[string]any{
		"summary":     mirrorSummary(order),
		"description": mirrorDescription(order),
		"location":    order.CustomerAddress,
	}
	if order.Start != nil && order.End != nil {
		fields["start"] = *order.Start
		fields["end"] = *order.End
	}
	return fields
}

func mirrorDescription(order domain.ServiceOrder) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Cliente: %s (%s)", order.CustomerName, order.CustomerPhone)
	if order.ApplianceType != "" {
		fmt.Fprintf(&b, "\nEquipo: %s", order.ApplianceType)
	}
	if order.IssueDetail != "" {
		fmt.Fprintf(&b, "\nFalla: %s", order.IssueDetail)
	}
	return b.String()
}

func canTransition(current, target domain.OrderStatus) bool {
	if current == target {
		return true
	}
	for _, next := range orderStateTransitions[current] {
		if next == target {
			return true
		}
	}
	return false
}

func statusIn(status domain.OrderStatus, set []domain.OrderStatus) bool {
	for _, candidate := range set {
		if status == candidate {
			return true
		}
	}
	return false
}

func cloneTimePtr(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	ref := *v
	return &ref
}

func cloneStringPtr(v *string) *string {
	if v == nil {
		return nil
	}
	ref := *v
	return &ref
}

func stringValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}
