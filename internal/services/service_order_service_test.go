package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	domain "github.com/servihogar/api/internal/domain"
)

type orderFixture struct {
	svc       ServiceOrderService
	orders    *stubOrderRepository
	customers *stubCustomerRepository
	outbox    *stubOutboxRepository
	counters  *stubCounterRepository
	notifier  *stubNotifier
	now       time.Time
}

func newOrderFixture(t *testing.T, mutate ...func(*ServiceOrderServiceDeps)) *orderFixture {
	t.Helper()
	f := &orderFixture{
		orders:    newStubOrderRepository(),
		customers: newStubCustomerRepository(),
		outbox:    newStubOutboxRepository(),
		counters:  newStubCounterRepository(),
		notifier:  &stubNotifier{},
		now:       time.Date(2026, time.July, 6, 16, 0, 0, 0, time.UTC),
	}
	deps := ServiceOrderServiceDeps{
		Orders:      f.orders,
		Customers:   f.customers,
		Outbox:      f.outbox,
		Counters:    f.counters,
		Proofs:      proofStoreFunc(func(_ context.Context, orderID, _, _ string) (string, error) {
			return "https://storage.test/orders/" + orderID + "/proof.jpg", nil
		}),
		Notifier:    f.notifier,
		Timezone:    mexicoCity(t),
		SyncEnabled: true,
		Clock:       fixedClock(f.now),
		IDGenerator: sequentialIDs("u"),
	}
	for _, fn := range mutate {
		fn(&deps)
	}
	svc, err := NewServiceOrderService(deps)
	if err != nil {
		t.Fatalf("NewServiceOrderService: %v", err)
	}
	f.svc = svc
	return f
}

type proofStoreFunc func(ctx context.Context, orderID, orderNumber, dataURI string) (string, error)

func (f proofStoreFunc) SavePhoto(ctx context.Context, orderID, orderNumber, dataURI string) (string, error) {
	return f(ctx, orderID, orderNumber, dataURI)
}

func secretary() Actor  { return Actor{ID: "stf_sec", Role: domain.RoleSecretary} }
func technician() Actor { return Actor{ID: "stf_tec", Role: domain.RoleTechnician} }
func admin() Actor      { return Actor{ID: "stf_adm", Role: domain.RoleAdmin} }

func draft(name, phone string) OrderDraft {
	return OrderDraft{
		Title:         "Refrigerador no enfría",
		CustomerName:  name,
		CustomerPhone: phone,
		ApplianceType: "Refrigerador",
		IssueDetail:   "No enfría el congelador",
	}
}

func TestCreateAssignsSequentialOrderNumbers(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()

	seen := map[string]bool{}
	for i := 1; i <= 5; i++ {
		order, err := f.svc.Create(ctx, CreateOrderCommand{
			Actor: secretary(),
			Draft: draft(fmt.Sprintf("Cliente %d", i), fmt.Sprintf("+5255000000%02d", i)),
		})
		if err != nil {
			t.Fatalf("Create #%d: %v", i, err)
		}
		expected := fmt.Sprintf("OS-%04d", i)
		if order.OrderNumber != expected {
			t.Fatalf("expected order number %s, got %s", expected, order.OrderNumber)
		}
		if seen[order.OrderNumber] {
			t.Fatalf("duplicate order number %s", order.OrderNumber)
		}
		seen[order.OrderNumber] = true
		if order.Status != domain.StatusUnconfirmed {
			t.Fatalf("expected new order in %s, got %s", domain.StatusUnconfirmed, order.Status)
		}
	}
}

func TestCreateDeduplicatesCustomerOnPhoneAndFoldedName(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, CreateOrderCommand{Actor: secretary(), Draft: draft("Laura Mendoza", "+525512345678")})
	if err != nil {
		t.Fatalf("Create first: %v", err)
	}

	// Same phone, case-insensitively same name: reuse the customer.
	second, err := f.svc.Create(ctx, CreateOrderCommand{Actor: secretary(), Draft: draft("LAURA MENDOZA", "+525512345678")})
	if err != nil {
		t.Fatalf("Create second: %v", err)
	}
	if second.CustomerID != first.CustomerID {
		t.Fatalf("expected customer reuse, got %s vs %s", second.CustomerID, first.CustomerID)
	}

	customer, err := f.customers.FindByID(ctx, first.CustomerID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if len(customer.ServiceHistory) != 2 {
		t.Fatalf("expected 2 history entries on customer, got %d", len(customer.ServiceHistory))
	}

	// Same phone, different name: a new customer.
	third, err := f.svc.Create(ctx, CreateOrderCommand{Actor: secretary(), Draft: draft("Laura Mendez", "+525512345678")})
	if err != nil {
		t.Fatalf("Create third: %v", err)
	}
	if third.CustomerID == first.CustomerID {
		t.Fatal("different name must create a new customer")
	}

	// Same name, different phone: a new customer.
	fourth, err := f.svc.Create(ctx, CreateOrderCommand{Actor: secretary(), Draft: draft("Laura Mendoza", "+525587654321")})
	if err != nil {
		t.Fatalf("Create fourth: %v", err)
	}
	if fourth.CustomerID == first.CustomerID {
		t.Fatal("different phone must create a new customer")
	}
}

func TestAddUnconfirmedAttributesPublicFormActor(t *testing.T) {
	f := newOrderFixture(t)

	order, err := f.svc.AddUnconfirmed(context.Background(), PublicBookingCommand{
		Draft: draft("Pedro Ruiz", "+525511112222"),
	})
	if err != nil {
		t.Fatalf("AddUnconfirmed: %v", err)
	}
	if order.Status != domain.StatusUnconfirmed {
		t.Fatalf("public bookings must start %s, got %s", domain.StatusUnconfirmed, order.Status)
	}
	if order.CreatedByID != nil {
		t.Fatalf("public bookings carry no staff creator, got %v", *order.CreatedByID)
	}
	if len(order.History) != 1 || order.History[0].ActorID != domain.PublicFormActorID {
		t.Fatalf("expected Creado history by %s, got %+v", domain.PublicFormActorID, order.History)
	}
	if len(f.notifier.messages) != 1 || f.notifier.messages[0].Event != "order.created" {
		t.Fatalf("expected one order.created notification, got %+v", f.notifier.messages)
	}
}

func TestHistoryIsAppendOnlyAcrossTransitions(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()

	start := time.Date(2026, time.July, 6, 15, 0, 0, 0, time.UTC)
	d := draft("Laura Mendoza", "+525512345678")
	d.CalendarID = "cal_norte"
	d.Start = &start

	order, err := f.svc.Create(ctx, CreateOrderCommand{Actor: secretary(), Draft: d})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := f.svc.Confirm(ctx, ConfirmOrderCommand{Actor: secretary(), OrderID: order.ID}); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if _, err := f.svc.UpdateStatus(ctx, OrderStatusCommand{Actor: technician(), OrderID: order.ID, Target: domain.StatusInProgress}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	newTitle := "Refrigerador con fuga"
	if _, err := f.svc.Update(ctx, UpdateOrderCommand{Actor: secretary(), OrderID: order.ID, Title: &newTitle}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	stored := f.orders.get(t, order.ID)
	actions := make([]string, len(stored.History))
	for i, entry := range stored.History {
		actions[i] = entry.Action
	}
	expected := []string{domain.ActionCreated, domain.ActionConfirmed, domain.ActionStatusChanged, domain.ActionEdited}
	if len(actions) != len(expected) {
		t.Fatalf("expected %d history entries, got %d (%v)", len(expected), len(actions), actions)
	}
	for i := range expected {
		if actions[i] != expected[i] {
			t.Fatalf("history[%d]: expected %s, got %s", i, expected[i], actions[i])
		}
	}
}

func TestUpdateCountsReschedulesOnly(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()

	order, err := f.svc.Create(ctx, CreateOrderCommand{Actor: secretary(), Draft: draft("Laura Mendoza", "+525512345678")})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Editing a plain field logs Editado and does not count.
	issue := "Hace ruido al arrancar"
	updated, err := f.svc.Update(ctx, UpdateOrderCommand{Actor: secretary(), OrderID: order.ID, IssueDetail: &issue})
	if err != nil {
		t.Fatalf("Update issue: %v", err)
	}
	if updated.RescheduledCount != 0 {
		t.Fatalf("expected rescheduledCount 0, got %d", updated.RescheduledCount)
	}
	if last := updated.History[len(updated.History)-1]; last.Action != domain.ActionEdited {
		t.Fatalf("expected Editado, got %s", last.Action)
	}

	// Changing start (and calendar) logs Reagendado and increments by exactly 1.
	start := time.Date(2026, time.July, 7, 17, 0, 0, 0, time.UTC)
	calendarID := "cal_norte"
	updated, err = f.svc.Update(ctx, UpdateOrderCommand{Actor: secretary(), OrderID: order.ID, Start: &start, CalendarID: &calendarID})
	if err != nil {
		t.Fatalf("Update schedule: %v", err)
	}
	if updated.RescheduledCount != 1 {
		t.Fatalf("expected rescheduledCount 1, got %d", updated.RescheduledCount)
	}
	if last := updated.History[len(updated.History)-1]; last.Action != domain.ActionRescheduled {
		t.Fatalf("expected Reagendado, got %s", last.Action)
	}
	if updated.End == nil || !updated.End.Equal(start.Add(time.Hour)) {
		t.Fatalf("expected derived end %s, got %v", start.Add(time.Hour), updated.End)
	}

	// Moving to another calendar counts again.
	other := "cal_sur"
	updated, err = f.svc.Update(ctx, UpdateOrderCommand{Actor: secretary(), OrderID: order.ID, CalendarID: &other})
	if err != nil {
		t.Fatalf("Update calendar: %v", err)
	}
	if updated.RescheduledCount != 2 {
		t.Fatalf("expected rescheduledCount 2, got %d", updated.RescheduledCount)
	}
}

func TestCompleteRequiresNotesPhotoAndLocation(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()

	start := time.Date(2026, time.July, 6, 15, 0, 0, 0, time.UTC)
	d := draft("Laura Mendoza", "+525512345678")
	d.CalendarID = "cal_norte"
	d.Start = &start
	order, err := f.svc.Create(ctx, CreateOrderCommand{Actor: secretary(), Draft: d})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.svc.Confirm(ctx, ConfirmOrderCommand{Actor: secretary(), OrderID: order.ID}); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	location := &domain.GeoPoint{Latitude: 19.43, Longitude: -99.13}
	attempts := []CompleteOrderCommand{
		{Actor: technician(), OrderID: order.ID, PhotoDataURI: "data:image/jpeg;base64,xxx", Location: location},
		{Actor: technician(), OrderID: order.ID, ServiceNotes: "Compresor reemplazado", Location: location},
		{Actor: technician(), OrderID: order.ID, ServiceNotes: "Compresor reemplazado", PhotoDataURI: "data:image/jpeg;base64,xxx"},
	}
	for i, cmd := range attempts {
		if _, err := f.svc.Complete(ctx, cmd); !errors.Is(err, ErrOrderMissingProof) {
			t.Fatalf("attempt %d: expected ErrOrderMissingProof, got %v", i, err)
		}
		if stored := f.orders.get(t, order.ID); stored.Status != domain.StatusPending {
			t.Fatalf("attempt %d: status must remain %s, got %s", i, domain.StatusPending, stored.Status)
		}
	}

	completed, err := f.svc.Complete(ctx, CompleteOrderCommand{
		Actor:        technician(),
		OrderID:      order.ID,
		ServiceNotes: "Compresor reemplazado",
		PhotoDataURI: "data:image/jpeg;base64,xxx",
		Location:     location,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if completed.Status != domain.StatusCompleted {
		t.Fatalf("expected %s, got %s", domain.StatusCompleted, completed.Status)
	}
	if completed.Proof == nil || completed.Proof.PhotoURL == "" {
		t.Fatalf("expected stored proof, got %+v", completed.Proof)
	}
	if completed.Proof.Latitude != location.Latitude || completed.Proof.Longitude != location.Longitude {
		t.Fatalf("expected captured geolocation, got %+v", completed.Proof)
	}
}

func TestUnassignCalendarResetsEveryStatus(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	calendarID := "cal_norte"

	statuses := []domain.OrderStatus{domain.StatusPending, domain.StatusInProgress, domain.StatusCompleted}
	ids := make([]string, 0, len(statuses))
	for i, status := range statuses {
		order, err := f.svc.Create(ctx, CreateOrderCommand{
			Actor: secretary(),
			Draft: draft(fmt.Sprintf("Cliente %d", i), fmt.Sprintf("+5255999000%02d", i)),
		})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		stored := f.orders.get(t, order.ID)
		stored.CalendarID = &calendarID
		stored.Status = status
		f.orders.orders[order.ID] = stored
		ids = append(ids, order.ID)
	}

	count, err := f.svc.UnassignCalendar(ctx, admin(), calendarID)
	if err != nil {
		t.Fatalf("UnassignCalendar: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 re-triaged orders, got %d", count)
	}
	for _, id := range ids {
		stored := f.orders.get(t, id)
		if stored.CalendarID != nil {
			t.Fatalf("order %s must lose its calendar", id)
		}
		// The Completado order is re-triaged too; that is the documented policy.
		if stored.Status != domain.StatusUnconfirmed {
			t.Fatalf("order %s must become %s, got %s", id, domain.StatusUnconfirmed, stored.Status)
		}
	}
}

func TestPurgeRemovesOnlyStaleCancelledOrders(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()

	mkCancelled := func(name, phone string, createdAt time.Time) string {
		order, err := f.svc.Create(ctx, CreateOrderCommand{Actor: secretary(), Draft: draft(name, phone)})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		stored := f.orders.get(t, order.ID)
		stored.Status = domain.StatusCancelled
		stored.CreatedAt = createdAt
		f.orders.orders[order.ID] = stored
		return order.ID
	}

	staleID := mkCancelled("Cliente Uno", "+525511110001", f.now.AddDate(0, 0, -4))
	freshID := mkCancelled("Cliente Dos", "+525511110002", f.now.AddDate(0, 0, -2))

	purged, err := f.svc.PurgeCancelled(ctx, PurgeCommand{Actor: admin(), Now: f.now})
	if err != nil {
		t.Fatalf("PurgeCancelled: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 purged order, got %d", purged)
	}
	if _, err := f.orders.FindByID(ctx, staleID); err == nil {
		t.Fatal("stale cancelled order must be removed")
	}
	if _, err := f.orders.FindByID(ctx, freshID); err != nil {
		t.Fatalf("fresh cancelled order must survive: %v", err)
	}

	if _, err := f.svc.PurgeCancelled(ctx, PurgeCommand{Actor: secretary(), Now: f.now}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("purge must be admin only, got %v", err)
	}
}

func TestCancelRequiresReasonAndRecordsIt(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()

	order, err := f.svc.Create(ctx, CreateOrderCommand{Actor: secretary(), Draft: draft("Laura Mendoza", "+525512345678")})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := f.svc.Cancel(ctx, CancelOrderCommand{Actor: secretary(), OrderID: order.ID}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected reason requirement, got %v", err)
	}

	cancelled, err := f.svc.Cancel(ctx, CancelOrderCommand{Actor: secretary(), OrderID: order.ID, Reason: "Cliente canceló"})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != domain.StatusCancelled {
		t.Fatalf("expected %s, got %s", domain.StatusCancelled, cancelled.Status)
	}
	if cancelled.CancellationReason == nil || *cancelled.CancellationReason != "Cliente canceló" {
		t.Fatalf("expected stored reason, got %v", cancelled.CancellationReason)
	}
	if last := cancelled.History[len(cancelled.History)-1]; last.Action != domain.ActionCancelled || last.Detail != "Cliente canceló" {
		t.Fatalf("expected Cancelado history with reason, got %+v", last)
	}

	// Terminal state: further cancels are rejected.
	if _, err := f.svc.Cancel(ctx, CancelOrderCommand{Actor: secretary(), OrderID: order.ID, Reason: "otra vez"}); !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestArchiveKeepsCalendarAssignment(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()

	start := time.Date(2026, time.July, 6, 15, 0, 0, 0, time.UTC)
	d := draft("Laura Mendoza", "+525512345678")
	d.CalendarID = "cal_norte"
	d.Start = &start
	order, err := f.svc.Create(ctx, CreateOrderCommand{Actor: secretary(), Draft: d})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	archived, err := f.svc.Archive(ctx, ArchiveOrderCommand{Actor: secretary(), OrderID: order.ID, Reason: "Cliente no localizable"})
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if archived.Status != domain.StatusArchived {
		t.Fatalf("expected %s, got %s", domain.StatusArchived, archived.Status)
	}
	if archived.CalendarID == nil || *archived.CalendarID != "cal_norte" {
		t.Fatal("archiving must not clear the calendar assignment")
	}
	if archived.ArchiveReason == nil || *archived.ArchiveReason != "Cliente no localizable" {
		t.Fatalf("expected archive reason, got %v", archived.ArchiveReason)
	}
}

func TestConfirmEnqueuesMirrorCreateAndBackfillsCreator(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()

	start := time.Date(2026, time.July, 6, 15, 0, 0, 0, time.UTC)
	d := draft("Pedro Ruiz", "+525511112222")
	d.CalendarID = "cal_norte"
	d.Start = &start

	order, err := f.svc.AddUnconfirmed(ctx, PublicBookingCommand{Draft: d})
	if err != nil {
		t.Fatalf("AddUnconfirmed: %v", err)
	}

	confirmed, err := f.svc.Confirm(ctx, ConfirmOrderCommand{Actor: secretary(), OrderID: order.ID})
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if confirmed.Status != domain.StatusPending {
		t.Fatalf("expected %s, got %s", domain.StatusPending, confirmed.Status)
	}
	if confirmed.ConfirmedByID == nil || *confirmed.ConfirmedByID != "stf_sec" {
		t.Fatalf("expected confirming secretary recorded, got %v", confirmed.ConfirmedByID)
	}
	// The public-form order had no creator; confirmation backfills it.
	if confirmed.CreatedByID == nil || *confirmed.CreatedByID != "stf_sec" {
		t.Fatalf("expected creator backfill, got %v", confirmed.CreatedByID)
	}

	pending := f.outbox.pending()
	if len(pending) != 1 {
		t.Fatalf("expected one mirror intent, got %d", len(pending))
	}
	if pending[0].Op != domain.OutboxOpCreate || pending[0].CalendarID != "cal_norte" {
		t.Fatalf("expected create intent on cal_norte, got %+v", pending[0])
	}
	if pending[0].Fields["summary"] == "" {
		t.Fatalf("expected mirror fields, got %+v", pending[0].Fields)
	}
}

func TestConfirmRejectsUnscheduledOrder(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()

	order, err := f.svc.Create(ctx, CreateOrderCommand{Actor: secretary(), Draft: draft("Laura Mendoza", "+525512345678")})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.svc.Confirm(ctx, ConfirmOrderCommand{Actor: secretary(), OrderID: order.ID}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected scheduling requirement, got %v", err)
	}
}

func TestUpdateStatusRejectsShortcutIntoGuardedStates(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()

	order, err := f.svc.Create(ctx, CreateOrderCommand{Actor: secretary(), Draft: draft("Laura Mendoza", "+525512345678")})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for _, target := range []domain.OrderStatus{domain.StatusCompleted, domain.StatusCancelled, domain.StatusArchived} {
		if _, err := f.svc.UpdateStatus(ctx, OrderStatusCommand{Actor: secretary(), OrderID: order.ID, Target: target}); !errors.Is(err, ErrOrderInvalidState) {
			t.Fatalf("expected %s shortcut rejection, got %v", target, err)
		}
	}
	// Skipping Pendiente is not a legal transition either.
	if _, err := f.svc.UpdateStatus(ctx, OrderStatusCommand{Actor: secretary(), OrderID: order.ID, Target: domain.StatusInProgress}); !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected transition rejection, got %v", err)
	}
}

func TestOrderMutationsAreGuarded(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Create(ctx, CreateOrderCommand{Actor: technician(), Draft: draft("Laura", "+5255")}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("technician must not create orders, got %v", err)
	}
	if _, err := f.svc.Cancel(ctx, CancelOrderCommand{Actor: technician(), OrderID: "so_x", Reason: "r"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("technician must not cancel orders, got %v", err)
	}
	if _, err := f.svc.UnassignCalendar(ctx, secretary(), "cal_norte"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("cascade is admin only, got %v", err)
	}
}

func TestCreateRejectsOccupiedSlot(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()

	start := time.Date(2026, time.July, 6, 15, 0, 0, 0, time.UTC)
	first := draft("Laura Mendoza", "+525511110001")
	first.CalendarID = "cal_norte"
	first.Start = &start
	if _, err := f.svc.Create(ctx, CreateOrderCommand{Actor: secretary(), Draft: first}); err != nil {
		t.Fatalf("Create first: %v", err)
	}

	second := draft("Pedro Soto", "+525511110002")
	second.CalendarID = "cal_norte"
	second.Start = &start
	if _, err := f.svc.Create(ctx, CreateOrderCommand{Actor: secretary(), Draft: second}); !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected slot conflict, got %v", err)
	}

	// The same wall-clock slot on another calendar is free.
	second.CalendarID = "cal_sur"
	if _, err := f.svc.Create(ctx, CreateOrderCommand{Actor: secretary(), Draft: second}); err != nil {
		t.Fatalf("Create on other calendar: %v", err)
	}
}

func TestRescheduleRespectsOccupiedSlots(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()

	taken := time.Date(2026, time.July, 6, 15, 0, 0, 0, time.UTC)
	holder := draft("Laura Mendoza", "+525511110001")
	holder.CalendarID = "cal_norte"
	holder.Start = &taken
	if _, err := f.svc.Create(ctx, CreateOrderCommand{Actor: secretary(), Draft: holder}); err != nil {
		t.Fatalf("Create holder: %v", err)
	}

	later := taken.Add(2 * time.Hour)
	mover := draft("Pedro Soto", "+525511110002")
	mover.CalendarID = "cal_norte"
	mover.Start = &later
	moving, err := f.svc.Create(ctx, CreateOrderCommand{Actor: secretary(), Draft: mover})
	if err != nil {
		t.Fatalf("Create mover: %v", err)
	}

	if _, err := f.svc.Update(ctx, UpdateOrderCommand{Actor: secretary(), OrderID: moving.ID, Start: &taken}); !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected reschedule conflict, got %v", err)
	}

	free := taken.Add(time.Hour)
	moved, err := f.svc.Update(ctx, UpdateOrderCommand{Actor: secretary(), OrderID: moving.ID, Start: &free})
	if err != nil {
		t.Fatalf("Update to free slot: %v", err)
	}
	if moved.Start == nil || !moved.Start.Equal(free) {
		t.Fatalf("expected start %s, got %v", free, moved.Start)
	}
}

func TestCancelledOrderFreesItsSlot(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()

	start := time.Date(2026, time.July, 6, 15, 0, 0, 0, time.UTC)
	first := draft("Laura Mendoza", "+525511110001")
	first.CalendarID = "cal_norte"
	first.Start = &start
	created, err := f.svc.Create(ctx, CreateOrderCommand{Actor: secretary(), Draft: first})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.svc.Cancel(ctx, CancelOrderCommand{Actor: secretary(), OrderID: created.ID, Reason: "Cliente canceló"}); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	second := draft("Pedro Soto", "+525511110002")
	second.CalendarID = "cal_norte"
	second.Start = &start
	if _, err := f.svc.Create(ctx, CreateOrderCommand{Actor: secretary(), Draft: second}); err != nil {
		t.Fatalf("expected cancelled order to free the slot, got %v", err)
	}
}

func TestCompleteWithoutProofStoreIsRefused(t *testing.T) {
	f := newOrderFixture(t, func(deps *ServiceOrderServiceDeps) {
		deps.Proofs = nil
	})
	ctx := context.Background()

	start := time.Date(2026, time.July, 6, 15, 0, 0, 0, time.UTC)
	d := draft("Laura Mendoza", "+525511110001")
	d.CalendarID = "cal_norte"
	d.Start = &start
	order, err := f.svc.Create(ctx, CreateOrderCommand{Actor: secretary(), Draft: d})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.svc.Confirm(ctx, ConfirmOrderCommand{Actor: secretary(), OrderID: order.ID}); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	_, err = f.svc.Complete(ctx, CompleteOrderCommand{
		Actor:        technician(),
		OrderID:      order.ID,
		ServiceNotes: "Se cambió el compresor",
		PhotoDataURI: "data:image/jpeg;base64,aGVsbG8=",
		Location:     &domain.GeoPoint{Latitude: 19.43, Longitude: -99.13},
	})
	if !errors.Is(err, ErrProofStoreUnset) {
		t.Fatalf("expected proof store refusal, got %v", err)
	}

	stored, err := f.orders.FindByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if stored.Status == domain.StatusCompleted || stored.Proof != nil {
		t.Fatalf("order must stay untouched, got status %s proof %+v", stored.Status, stored.Proof)
	}
}
