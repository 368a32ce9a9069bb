package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/servihogar/api/internal/platform/config"
	"github.com/servihogar/api/internal/repositories"
	"github.com/servihogar/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Orders       services.ServiceOrderService
	Customers    services.CustomerService
	Calendars    services.CalendarService
	Staff        services.StaffService
	Availability services.AvailabilityService
	Maintenance  services.MaintenanceService
	Sync         services.SyncService
	System       services.SystemService
}

// Externals carries the side-effecting collaborators built in main: the proof
// photo store, the notification publisher, and the Google Calendar gateway.
// Any of them may be nil; the affected feature degrades to a no-op.
type Externals struct {
	Proofs   services.ProofStore
	Notifier services.NotificationPublisher
	Gateway  services.CalendarGateway
	Logger   *zap.Logger
	Build    services.BuildInfo
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Timezone     *time.Location
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides real
// implementations, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, ext Externals) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	timezone, err := businessTimezone(cfg.Business)
	if err != nil {
		return nil, err
	}

	svc, err := buildServices(cfg, reg, ext, timezone)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Timezone:     timezone,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func businessTimezone(cfg config.BusinessConfig) (*time.Location, error) {
	name := cfg.Timezone
	if name == "" {
		name = "America/Mexico_City"
	}
	timezone, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load business timezone %q: %w", name, err)
	}
	return timezone, nil
}

// eventLogger adapts the zap root logger onto the event-style logging hook the
// services accept.
func eventLogger(base *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	if base == nil {
		return nil
	}
	return func(_ context.Context, event string, fields map[string]any) {
		zapFields := make([]zap.Field, 0, len(fields))
		for key, value := range fields {
			zapFields = append(zapFields, zap.Any(key, value))
		}
		base.Info(event, zapFields...)
	}
}

func buildServices(cfg config.Config, reg repositories.Registry, ext Externals, timezone *time.Location) (Services, error) {
	var svc Services
	logger := eventLogger(ext.Logger)

	orders, err := services.NewServiceOrderService(services.ServiceOrderServiceDeps{
		Orders:         reg.Orders(),
		Customers:      reg.Customers(),
		Outbox:         reg.Outbox(),
		Counters:       reg.Counters(),
		UnitOfWork:     reg,
		Proofs:         ext.Proofs,
		Notifier:       ext.Notifier,
		Timezone:       timezone,
		SyncEnabled:    ext.Gateway != nil,
		PurgeRetention: cfg.Purge.Retention,
		Logger:         logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orders

	customers, err := services.NewCustomerService(services.CustomerServiceDeps{
		Customers: reg.Customers(),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build customer service: %w", err)
	}
	svc.Customers = customers

	calendars, err := services.NewCalendarService(services.CalendarServiceDeps{
		Calendars: reg.Calendars(),
		Staff:     reg.Staff(),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build calendar service: %w", err)
	}
	svc.Calendars = calendars

	staff, err := services.NewStaffService(services.StaffServiceDeps{
		Staff:     reg.Staff(),
		Calendars: reg.Calendars(),
		Orders:    orders,
		Logger:    logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build staff service: %w", err)
	}
	svc.Staff = staff

	availability, err := services.NewAvailabilityService(services.AvailabilityServiceDeps{
		Calendars: reg.Calendars(),
		Orders:    reg.Orders(),
		Timezone:  timezone,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build availability service: %w", err)
	}
	svc.Availability = availability

	maintenance, err := services.NewMaintenanceService(services.MaintenanceServiceDeps{
		Schedules:  reg.Maintenance(),
		Orders:     reg.Orders(),
		Customers:  reg.Customers(),
		Counters:   reg.Counters(),
		UnitOfWork: reg,
		Timezone:   timezone,
		Logger:     logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build maintenance service: %w", err)
	}
	svc.Maintenance = maintenance

	sync, err := services.NewSyncService(services.SyncServiceDeps{
		Outbox:      reg.Outbox(),
		Orders:      reg.Orders(),
		Gateway:     ext.Gateway,
		MaxAttempts: cfg.Outbox.MaxAttempts,
		BatchSize:   cfg.Outbox.BatchSize,
		Logger:      logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build sync service: %w", err)
	}
	svc.Sync = sync

	build := ext.Build
	if build.Environment == "" {
		build.Environment = cfg.Security.Environment
	}
	system, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: reg.Health(),
		Build:            build,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}
	svc.System = system

	return svc, nil
}
