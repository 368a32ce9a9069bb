package firestore

import (
	"context"
	"fmt"

	pfirestore "github.com/servihogar/api/internal/platform/firestore"
	"github.com/servihogar/api/internal/repositories"
)

// Registry wires every Firestore-backed repository behind the repositories.Registry
// contract. Transactions started through RunInTx are carried in the context, so any
// repository call made inside the callback joins the same Firestore transaction.
type Registry struct {
	provider *pfirestore.Provider

	orders      *ServiceOrderRepository
	customers   *CustomerRepository
	calendars   *CalendarRepository
	staff       *StaffRepository
	maintenance *MaintenanceScheduleRepository
	outbox      *SyncOutboxRepository
	counters    *CounterRepository
	health      repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds all repositories against the shared provider.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, fmt.Errorf("firestore registry: provider is required")
	}
	if health == nil {
		return nil, fmt.Errorf("firestore registry: health repository is required")
	}

	orders, err := NewServiceOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	customers, err := NewCustomerRepository(provider)
	if err != nil {
		return nil, err
	}
	calendars, err := NewCalendarRepository(provider)
	if err != nil {
		return nil, err
	}
	staff, err := NewStaffRepository(provider)
	if err != nil {
		return nil, err
	}
	maintenance, err := NewMaintenanceScheduleRepository(provider)
	if err != nil {
		return nil, err
	}
	outbox, err := NewSyncOutboxRepository(provider)
	if err != nil {
		return nil, err
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:    provider,
		orders:      orders,
		customers:   customers,
		calendars:   calendars,
		staff:       staff,
		maintenance: maintenance,
		outbox:      outbox,
		counters:    counters,
		health:      health,
	}, nil
}

func (r *Registry) Close(ctx context.Context) error { return r.provider.Close(ctx) }

func (r *Registry) Orders() repositories.ServiceOrderRepository       { return r.orders }
func (r *Registry) Customers() repositories.CustomerRepository        { return r.customers }
func (r *Registry) Calendars() repositories.CalendarRepository        { return r.calendars }
func (r *Registry) Staff() repositories.StaffRepository               { return r.staff }
func (r *Registry) Maintenance() repositories.MaintenanceScheduleRepository {
	return r.maintenance
}
func (r *Registry) Outbox() repositories.SyncOutboxRepository { return r.outbox }
func (r *Registry) Counters() repositories.CounterRepository  { return r.counters }
func (r *Registry) Health() repositories.HealthRepository     { return r.health }

// RunInTx executes fn inside a single Firestore transaction shared by every
// repository call made through the callback context.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.provider.RunInTx(ctx, fn)
}
