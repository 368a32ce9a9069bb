package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	domain "github.com/servihogar/api/internal/domain"
	"github.com/servihogar/api/internal/platform/textutil"
	"github.com/servihogar/api/internal/repositories"
)

// stubRepoError implements repositories.RepositoryError for the in-memory stubs.
type stubRepoError struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *stubRepoError) Error() string       { return e.msg }
func (e *stubRepoError) IsNotFound() bool    { return e.notFound }
func (e *stubRepoError) IsConflict() bool    { return e.conflict }
func (e *stubRepoError) IsUnavailable() bool { return e.unavailable }

func notFoundErr(kind, id string) error {
	return &stubRepoError{msg: fmt.Sprintf("%s %s not found", kind, id), notFound: true}
}

func conflictErr(kind, id string) error {
	return &stubRepoError{msg: fmt.Sprintf("%s %s conflict", kind, id), conflict: true}
}

// stubOrderRepository keeps service orders in memory with the same CAS
// semantics as the Firestore implementation.
type stubOrderRepository struct {
	mu     sync.Mutex
	orders map[string]domain.ServiceOrder

	failUpdate error
}

func newStubOrderRepository() *stubOrderRepository {
	return &stubOrderRepository{orders: map[string]domain.ServiceOrder{}}
}

func (s *stubOrderRepository) Insert(_ context.Context, order domain.ServiceOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[order.ID]; ok {
		return conflictErr("order", order.ID)
	}
	s.orders[order.ID] = order
	return nil
}

func (s *stubOrderRepository) Update(_ context.Context, order domain.ServiceOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdate != nil {
		return s.failUpdate
	}
	stored, ok := s.orders[order.ID]
	if !ok {
		return notFoundErr("order", order.ID)
	}
	if stored.Version != order.Version {
		return conflictErr("order", order.ID)
	}
	order.Version++
	s.orders[order.ID] = order
	return nil
}

func (s *stubOrderRepository) Delete(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[orderID]; !ok {
		return notFoundErr("order", orderID)
	}
	delete(s.orders, orderID)
	return nil
}

func (s *stubOrderRepository) FindByID(_ context.Context, orderID string) (domain.ServiceOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return domain.ServiceOrder{}, notFoundErr("order", orderID)
	}
	return order, nil
}

func (s *stubOrderRepository) List(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.ServiceOrder], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []domain.ServiceOrder
	for _, order := range s.orders {
		if filter.CalendarID != "" && (order.CalendarID == nil || *order.CalendarID != filter.CalendarID) {
			continue
		}
		if filter.CustomerID != "" && order.CustomerID != filter.CustomerID {
			continue
		}
		items = append(items, order)
	}
	sort.Slice(items, func(a, b int) bool { return items[a].CreatedAt.After(items[b].CreatedAt) })
	return domain.CursorPage[domain.ServiceOrder]{Items: items}, nil
}

func (s *stubOrderRepository) ListByCalendarRange(_ context.Context, calendarID string, from, to time.Time) ([]domain.ServiceOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []domain.ServiceOrder
	for _, order := range s.orders {
		if order.CalendarID == nil || *order.CalendarID != calendarID || order.Start == nil {
			continue
		}
		if order.Start.Before(from) || !order.Start.Before(to) {
			continue
		}
		items = append(items, order)
	}
	return items, nil
}

func (s *stubOrderRepository) ListByCalendar(_ context.Context, calendarID string) ([]domain.ServiceOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []domain.ServiceOrder
	for _, order := range s.orders {
		if order.CalendarID != nil && *order.CalendarID == calendarID {
			items = append(items, order)
		}
	}
	sort.Slice(items, func(a, b int) bool { return items[a].ID < items[b].ID })
	return items, nil
}

func (s *stubOrderRepository) ListCancelledBefore(_ context.Context, cutoff time.Time) ([]domain.ServiceOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []domain.ServiceOrder
	for _, order := range s.orders {
		if order.Status == domain.StatusCancelled && !order.CreatedAt.After(cutoff) {
			items = append(items, order)
		}
	}
	return items, nil
}

func (s *stubOrderRepository) FindOpenBySchedule(_ context.Context, scheduleID string) (domain.ServiceOrder, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, order := range s.orders {
		if order.GeneratedByScheduleID == nil || *order.GeneratedByScheduleID != scheduleID {
			continue
		}
		if order.Status == domain.StatusUnconfirmed || order.Status == domain.StatusPending {
			return order, true, nil
		}
	}
	return domain.ServiceOrder{}, false, nil
}

func (s *stubOrderRepository) get(t interface{ Fatalf(string, ...any) }, id string) domain.ServiceOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		t.Fatalf("order %s not stored", id)
	}
	return order
}

// stubCustomerRepository keeps customers in memory.
type stubCustomerRepository struct {
	mu        sync.Mutex
	customers map[string]domain.Customer
}

func newStubCustomerRepository() *stubCustomerRepository {
	return &stubCustomerRepository{customers: map[string]domain.Customer{}}
}

func (s *stubCustomerRepository) Insert(_ context.Context, customer domain.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.customers[customer.ID]; ok {
		return conflictErr("customer", customer.ID)
	}
	s.customers[customer.ID] = customer
	return nil
}

func (s *stubCustomerRepository) Update(_ context.Context, customer domain.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.customers[customer.ID]; !ok {
		return notFoundErr("customer", customer.ID)
	}
	s.customers[customer.ID] = customer
	return nil
}

func (s *stubCustomerRepository) FindByID(_ context.Context, customerID string) (domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	customer, ok := s.customers[customerID]
	if !ok {
		return domain.Customer{}, notFoundErr("customer", customerID)
	}
	return customer, nil
}

func (s *stubCustomerRepository) FindByPhone(_ context.Context, phone string) ([]domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matches []domain.Customer
	for _, customer := range s.customers {
		if customer.Phone == phone {
			matches = append(matches, customer)
		}
	}
	return matches, nil
}

func (s *stubCustomerRepository) List(_ context.Context, filter repositories.CustomerListFilter) (domain.CursorPage[domain.Customer], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []domain.Customer
	for _, customer := range s.customers {
		if filter.Search != "" && !strings.HasPrefix(textutil.FoldCase(customer.Name), textutil.FoldCase(filter.Search)) {
			continue
		}
		items = append(items, customer)
	}
	sort.Slice(items, func(a, b int) bool { return items[a].Name < items[b].Name })
	return domain.CursorPage[domain.Customer]{Items: items}, nil
}

// stubCalendarRepository keeps calendars in memory.
type stubCalendarRepository struct {
	mu        sync.Mutex
	calendars map[string]domain.Calendar
}

func newStubCalendarRepository() *stubCalendarRepository {
	return &stubCalendarRepository{calendars: map[string]domain.Calendar{}}
}

func (s *stubCalendarRepository) Insert(_ context.Context, calendar domain.Calendar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.calendars[calendar.ID]; ok {
		return conflictErr("calendar", calendar.ID)
	}
	s.calendars[calendar.ID] = calendar
	return nil
}

func (s *stubCalendarRepository) Update(_ context.Context, calendar domain.Calendar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.calendars[calendar.ID]; !ok {
		return notFoundErr("calendar", calendar.ID)
	}
	s.calendars[calendar.ID] = calendar
	return nil
}

func (s *stubCalendarRepository) Delete(_ context.Context, calendarID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.calendars[calendarID]; !ok {
		return notFoundErr("calendar", calendarID)
	}
	delete(s.calendars, calendarID)
	return nil
}

func (s *stubCalendarRepository) FindByID(_ context.Context, calendarID string) (domain.Calendar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	calendar, ok := s.calendars[calendarID]
	if !ok {
		return domain.Calendar{}, notFoundErr("calendar", calendarID)
	}
	return calendar, nil
}

func (s *stubCalendarRepository) List(_ context.Context, activeOnly bool) ([]domain.Calendar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []domain.Calendar
	for _, calendar := range s.calendars {
		if activeOnly && !calendar.Active {
			continue
		}
		items = append(items, calendar)
	}
	sort.Slice(items, func(a, b int) bool { return items[a].Name < items[b].Name })
	return items, nil
}

// stubStaffRepository keeps staff in memory.
type stubStaffRepository struct {
	mu    sync.Mutex
	staff map[string]domain.Staff
}

func newStubStaffRepository() *stubStaffRepository {
	return &stubStaffRepository{staff: map[string]domain.Staff{}}
}

func (s *stubStaffRepository) Insert(_ context.Context, member domain.Staff) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.staff[member.ID]; ok {
		return conflictErr("staff", member.ID)
	}
	s.staff[member.ID] = member
	return nil
}

func (s *stubStaffRepository) Update(_ context.Context, member domain.Staff) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.staff[member.ID]; !ok {
		return notFoundErr("staff", member.ID)
	}
	s.staff[member.ID] = member
	return nil
}

func (s *stubStaffRepository) Delete(_ context.Context, staffID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.staff[staffID]; !ok {
		return notFoundErr("staff", staffID)
	}
	delete(s.staff, staffID)
	return nil
}

func (s *stubStaffRepository) FindByID(_ context.Context, staffID string) (domain.Staff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	member, ok := s.staff[staffID]
	if !ok {
		return domain.Staff{}, notFoundErr("staff", staffID)
	}
	return member, nil
}

func (s *stubStaffRepository) FindByEmail(_ context.Context, email string) (domain.Staff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, member := range s.staff {
		if strings.EqualFold(member.Email, email) {
			return member, nil
		}
	}
	return domain.Staff{}, notFoundErr("staff", email)
}

func (s *stubStaffRepository) List(_ context.Context) ([]domain.Staff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []domain.Staff
	for _, member := range s.staff {
		items = append(items, member)
	}
	sort.Slice(items, func(a, b int) bool { return items[a].Name < items[b].Name })
	return items, nil
}

// stubMaintenanceRepository keeps schedules in memory.
type stubMaintenanceRepository struct {
	mu        sync.Mutex
	schedules map[string]domain.MaintenanceSchedule
}

func newStubMaintenanceRepository() *stubMaintenanceRepository {
	return &stubMaintenanceRepository{schedules: map[string]domain.MaintenanceSchedule{}}
}

func (s *stubMaintenanceRepository) Insert(_ context.Context, schedule domain.MaintenanceSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[schedule.ID]; ok {
		return conflictErr("schedule", schedule.ID)
	}
	s.schedules[schedule.ID] = schedule
	return nil
}

func (s *stubMaintenanceRepository) Update(_ context.Context, schedule domain.MaintenanceSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[schedule.ID]; !ok {
		return notFoundErr("schedule", schedule.ID)
	}
	s.schedules[schedule.ID] = schedule
	return nil
}

func (s *stubMaintenanceRepository) Delete(_ context.Context, scheduleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[scheduleID]; !ok {
		return notFoundErr("schedule", scheduleID)
	}
	delete(s.schedules, scheduleID)
	return nil
}

func (s *stubMaintenanceRepository) FindByID(_ context.Context, scheduleID string) (domain.MaintenanceSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	schedule, ok := s.schedules[scheduleID]
	if !ok {
		return domain.MaintenanceSchedule{}, notFoundErr("schedule", scheduleID)
	}
	return schedule, nil
}

func (s *stubMaintenanceRepository) List(_ context.Context) ([]domain.MaintenanceSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []domain.MaintenanceSchedule
	for _, schedule := range s.schedules {
		items = append(items, schedule)
	}
	sort.Slice(items, func(a, b int) bool { return items[a].ID < items[b].ID })
	return items, nil
}

func (s *stubMaintenanceRepository) ListDue(_ context.Context, todayISO string) ([]domain.MaintenanceSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []domain.MaintenanceSchedule
	for _, schedule := range s.schedules {
		if schedule.NextDueDate <= todayISO {
			items = append(items, schedule)
		}
	}
	sort.Slice(items, func(a, b int) bool { return items[a].ID < items[b].ID })
	return items, nil
}

// stubOutboxRepository records enqueued mirror intents.
type stubOutboxRepository struct {
	mu      sync.Mutex
	records map[string]domain.SyncOutboxRecord
	order   []string
}

func newStubOutboxRepository() *stubOutboxRepository {
	return &stubOutboxRepository{records: map[string]domain.SyncOutboxRecord{}}
}

func (s *stubOutboxRepository) Enqueue(_ context.Context, record domain.SyncOutboxRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.Status == "" {
		record.Status = domain.OutboxPending
	}
	s.records[record.ID] = record
	s.order = append(s.order, record.ID)
	return nil
}

func (s *stubOutboxRepository) ListDue(_ context.Context, now time.Time, limit int) ([]domain.SyncOutboxRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []domain.SyncOutboxRecord
	for _, id := range s.order {
		record := s.records[id]
		if record.Status != domain.OutboxPending || record.NextAttemptAt.After(now) {
			continue
		}
		due = append(due, record)
		if limit > 0 && len(due) >= limit {
			break
		}
	}
	return due, nil
}

func (s *stubOutboxRepository) MarkSucceeded(_ context.Context, recordID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[recordID]
	if !ok {
		return notFoundErr("outbox", recordID)
	}
	record.Status = domain.OutboxSucceeded
	record.UpdatedAt = now
	s.records[recordID] = record
	return nil
}

func (s *stubOutboxRepository) MarkFailed(_ context.Context, recordID string, attemptErr string, nextAttempt time.Time, terminal bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[recordID]
	if !ok {
		return notFoundErr("outbox", recordID)
	}
	record.Attempts++
	record.LastError = attemptErr
	record.NextAttemptAt = nextAttempt
	if terminal {
		record.Status = domain.OutboxFailed
	}
	s.records[recordID] = record
	return nil
}

func (s *stubOutboxRepository) UpdateEventID(_ context.Context, orderID string, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, record := range s.records {
		if record.OrderID == orderID && record.Status == domain.OutboxPending {
			record.EventID = eventID
			s.records[id] = record
		}
	}
	return nil
}

func (s *stubOutboxRepository) pending() []domain.SyncOutboxRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pending []domain.SyncOutboxRecord
	for _, id := range s.order {
		if record := s.records[id]; record.Status == domain.OutboxPending {
			pending = append(pending, record)
		}
	}
	return pending
}

// stubCounterRepository allocates sequence numbers in memory.
type stubCounterRepository struct {
	mu     sync.Mutex
	values map[string]int64
	nextFn func(context.Context, string, int64) (int64, error)
}

func newStubCounterRepository() *stubCounterRepository {
	return &stubCounterRepository{values: map[string]int64{}}
}

func (s *stubCounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if s.nextFn != nil {
		return s.nextFn(ctx, counterID, step)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if step <= 0 {
		step = 1
	}
	s.values[counterID] += step
	return s.values[counterID], nil
}

func (s *stubCounterRepository) Configure(context.Context, string, repositories.CounterConfig) error {
	return nil
}

// stubNotifier records published notifications.
type stubNotifier struct {
	mu       sync.Mutex
	messages []OrderNotificationMessage
	err      error
}

func (s *stubNotifier) PublishOrderNotification(_ context.Context, message OrderNotificationMessage) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.messages = append(s.messages, message)
	return fmt.Sprintf("msg-%d", len(s.messages)), nil
}

// stubGateway records external calendar calls.
type stubGateway struct {
	mu       sync.Mutex
	created  []string
	patched  []string
	moved    []string
	upcoming map[string][]UpcomingEvent
	listFrom time.Time
	err      error
	nextID   int
}

func (s *stubGateway) CreateEvent(_ context.Context, calendarID string, _ map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.nextID++
	s.created = append(s.created, calendarID)
	return fmt.Sprintf("evt-%d", s.nextID), nil
}

func (s *stubGateway) PatchEvent(_ context.Context, calendarID, eventID string, _ map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.patched = append(s.patched, calendarID+"/"+eventID)
	return nil
}

func (s *stubGateway) MoveEvent(_ context.Context, _, eventID, destinationID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.moved = append(s.moved, destinationID)
	return eventID, nil
}

func (s *stubGateway) ListUpcomingEvents(_ context.Context, calendarID string, from time.Time, _ int) ([]UpcomingEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.listFrom = from
	return s.upcoming[calendarID], nil
}

func mexicoCity(t interface{ Fatalf(string, ...any) }) *time.Location {
	loc, err := time.LoadLocation("America/Mexico_City")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func sequentialIDs(prefix string) func() string {
	var n int
	var mu sync.Mutex
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s%04d", prefix, n)
	}
}
