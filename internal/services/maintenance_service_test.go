package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/servihogar/api/internal/domain"
)

type maintenanceFixture struct {
	schedules *stubMaintenanceRepository
	orders    *stubOrderRepository
	customers *stubCustomerRepository
	counters  *stubCounterRepository
	service   MaintenanceService
	now       time.Time
}

func newMaintenanceFixture(t *testing.T) *maintenanceFixture {
	t.Helper()
	fx := &maintenanceFixture{
		schedules: newStubMaintenanceRepository(),
		orders:    newStubOrderRepository(),
		customers: newStubCustomerRepository(),
		counters:  newStubCounterRepository(),
		now:       time.Date(2026, time.July, 6, 16, 0, 0, 0, time.UTC),
	}
	service, err := NewMaintenanceService(MaintenanceServiceDeps{
		Schedules:   fx.schedules,
		Orders:      fx.orders,
		Customers:   fx.customers,
		Counters:    fx.counters,
		Timezone:    mexicoCity(t),
		Clock:       fixedClock(fx.now),
		IDGenerator: sequentialIDs("m"),
	})
	if err != nil {
		t.Fatalf("NewMaintenanceService: %v", err)
	}
	fx.service = service
	return fx
}

func (fx *maintenanceFixture) seedCustomer() domain.Customer {
	customer := domain.Customer{
		ID:      "cus_1",
		Name:    "José Pérez",
		Phone:   "+525511111111",
		Address: "Av. Insurgentes 100",
	}
	fx.customers.customers[customer.ID] = customer
	return customer
}

func (fx *maintenanceFixture) seedSchedule(nextDue string) domain.MaintenanceSchedule {
	schedule := domain.MaintenanceSchedule{
		ID:              "ms_1",
		CustomerID:      "cus_1",
		Description:     "Limpieza de minisplit",
		StartDate:       "2026-01-06",
		FrequencyMonths: 6,
		NextDueDate:     nextDue,
	}
	fx.schedules.schedules[schedule.ID] = schedule
	return schedule
}

func TestMaintenanceTickFiresDueSchedule(t *testing.T) {
	fx := newMaintenanceFixture(t)
	ctx := context.Background()
	customer := fx.seedCustomer()
	fx.seedSchedule("2026-07-06")

	result, err := fx.service.Tick(ctx, fx.now)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if result.Evaluated != 1 || len(result.Fired) != 1 || result.Skipped != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}

	order := fx.orders.orders[result.Fired[0]]
	if order.Status != domain.StatusUnconfirmed {
		t.Fatalf("generated order should be Por Confirmar, got %s", order.Status)
	}
	if order.Title != "Mantenimiento programado: Limpieza de minisplit" {
		t.Fatalf("unexpected title: %q", order.Title)
	}
	if order.GeneratedByScheduleID == nil || *order.GeneratedByScheduleID != "ms_1" {
		t.Fatalf("schedule tag missing: %+v", order.GeneratedByScheduleID)
	}
	if order.CreatedByID == nil || *order.CreatedByID != domain.SystemActorID {
		t.Fatalf("order not attributed to system actor: %+v", order.CreatedByID)
	}
	if order.CustomerName != customer.Name || order.CustomerPhone != customer.Phone {
		t.Fatalf("customer snapshot missing: %+v", order)
	}
	if order.OrderNumber != "OS-0001" {
		t.Fatalf("order number not sequenced: %q", order.OrderNumber)
	}
	if due := fx.schedules.schedules["ms_1"].NextDueDate; due != "2027-01-06" {
		t.Fatalf("next due not advanced: %s", due)
	}
}

// Refiring the same tick while the generated order is still open must not
// create a second order.
func TestMaintenanceTickDeduplicatesOpenOrders(t *testing.T) {
	fx := newMaintenanceFixture(t)
	ctx := context.Background()
	fx.seedCustomer()
	fx.seedSchedule("2026-07-06")

	first, err := fx.service.Tick(ctx, fx.now)
	if err != nil {
		t.Fatalf("first Tick: %v", err)
	}
	if len(first.Fired) != 1 {
		t.Fatalf("first tick should fire: %+v", first)
	}

	// Wind the due date back as if the advance had not happened yet.
	schedule := fx.schedules.schedules["ms_1"]
	schedule.NextDueDate = "2026-07-06"
	fx.schedules.schedules["ms_1"] = schedule

	second, err := fx.service.Tick(ctx, fx.now)
	if err != nil {
		t.Fatalf("second Tick: %v", err)
	}
	if len(second.Fired) != 0 || second.Skipped != 1 {
		t.Fatalf("open order should suppress refiring: %+v", second)
	}
	if len(fx.orders.orders) != 1 {
		t.Fatalf("expected a single generated order, got %d", len(fx.orders.orders))
	}

	// Once the open order resolves, the due schedule fires again.
	order := fx.orders.orders[first.Fired[0]]
	order.Status = domain.StatusCompleted
	fx.orders.orders[order.ID] = order

	third, err := fx.service.Tick(ctx, fx.now)
	if err != nil {
		t.Fatalf("third Tick: %v", err)
	}
	if len(third.Fired) != 1 {
		t.Fatalf("resolved order should allow refiring: %+v", third)
	}
}

// A schedule overdue by several periods catches up in one advance instead of
// firing once per missed period.
func TestMaintenanceTickCatchesUpOverdueSchedules(t *testing.T) {
	fx := newMaintenanceFixture(t)
	ctx := context.Background()
	fx.seedCustomer()
	fx.seedSchedule("2025-01-06")

	result, err := fx.service.Tick(ctx, fx.now)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(result.Fired) != 1 {
		t.Fatalf("overdue schedule should fire once: %+v", result)
	}
	if due := fx.schedules.schedules["ms_1"].NextDueDate; due != "2027-01-06" {
		t.Fatalf("due date should land after today: %s", due)
	}
}

func TestMaintenanceTickSkipsMissingCustomer(t *testing.T) {
	fx := newMaintenanceFixture(t)
	ctx := context.Background()
	fx.seedSchedule("2026-07-06")

	result, err := fx.service.Tick(ctx, fx.now)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if result.Skipped != 1 || len(result.Fired) != 0 {
		t.Fatalf("missing customer should skip, got %+v", result)
	}
	if len(fx.orders.orders) != 0 {
		t.Fatalf("no order should be created")
	}
}

func TestMaintenanceCreateValidates(t *testing.T) {
	fx := newMaintenanceFixture(t)
	ctx := context.Background()
	fx.seedCustomer()

	created, err := fx.service.Create(ctx, CreateScheduleCommand{
		Actor:           secretary(),
		CustomerID:      "cus_1",
		Description:     "Limpieza de minisplit",
		StartDate:       "2026-08-01",
		FrequencyMonths: 6,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.NextDueDate != "2026-08-01" {
		t.Fatalf("next due should start at the start date: %s", created.NextDueDate)
	}

	_, err = fx.service.Create(ctx, CreateScheduleCommand{
		Actor: secretary(), CustomerID: "cus_1", Description: "x", StartDate: "01/08/2026", FrequencyMonths: 6,
	})
	if !errors.Is(err, ErrScheduleInvalidInput) {
		t.Fatalf("expected invalid date, got %v", err)
	}
	_, err = fx.service.Create(ctx, CreateScheduleCommand{
		Actor: secretary(), CustomerID: "cus_1", Description: "x", StartDate: "2026-08-01", FrequencyMonths: 0,
	})
	if !errors.Is(err, ErrScheduleInvalidInput) {
		t.Fatalf("expected invalid frequency, got %v", err)
	}
	_, err = fx.service.Create(ctx, CreateScheduleCommand{
		Actor: secretary(), CustomerID: "cus_missing", Description: "x", StartDate: "2026-08-01", FrequencyMonths: 6,
	})
	if !errors.Is(err, ErrScheduleNotFound) {
		t.Fatalf("expected not found for unknown customer, got %v", err)
	}
	_, err = fx.service.Create(ctx, CreateScheduleCommand{
		Actor: technician(), CustomerID: "cus_1", Description: "x", StartDate: "2026-08-01", FrequencyMonths: 6,
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("technician should not manage schedules, got %v", err)
	}
}
