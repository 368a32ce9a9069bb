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

var (
	// ErrCustomerInvalidInput signals the caller provided invalid data.
	ErrCustomerInvalidInput = errors.New("customer: invalid input")
	// ErrCustomerNotFound indicates the customer could not be located.
	ErrCustomerNotFound = errors.New("customer: not found")
	// ErrCustomerDuplicate indicates a customer with the same phone and name exists.
	ErrCustomerDuplicate = errors.New("customer: duplicate")
)

// CustomerServiceDeps bundles collaborators for the customer service.
type CustomerServiceDeps struct {
	Customers   repositories.CustomerRepository
	Clock       func() time.Time
	IDGenerator func() string
}

type customerService struct {
	customers repositories.CustomerRepository
	clock     func() time.Time
	newID     func() string
}

var _ CustomerService = (*customerService)(nil)

// NewCustomerService wires dependencies into a concrete CustomerService.
func NewCustomerService(deps CustomerServiceDeps) (CustomerService, error) {
	if deps.Customers == nil {
		return nil, errors.New("customer service: customer repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &customerService{customers: deps.Customers, clock: clock, newID: idGen}, nil
}

// Create registers a customer, applying the same (phone, folded name) dedup rule
// the order path uses: an exact duplicate is a conflict rather than a new record.
func (s *customerService) Create(ctx context.Context, cmd CreateCustomerCommand) (Customer, error) {
	if err := Authorize(cmd.Actor, CapCustomerWrite); err != nil {
		return Customer{}, err
	}
	name := strings.TrimSpace(cmd.Name)
	phone := strings.TrimSpace(cmd.Phone)
	if name == "" {
		return Customer{}, fmt.Errorf("%w: name is required", ErrCustomerInvalidInput)
	}
	if phone == "" {
		return Customer{}, fmt.Errorf("%w: phone is required", ErrCustomerInvalidInput)
	}

	candidates, err := s.customers.FindByPhone(ctx, phone)
	if err != nil {
		return Customer{}, s.mapRepositoryError(err)
	}
	folded := textutil.FoldCase(name)
	for _, candidate := range candidates {
		if textutil.FoldCase(candidate.Name) == folded {
			return Customer{}, fmt.Errorf("%w: %s / %s", ErrCustomerDuplicate, phone, candidate.Name)
		}
	}

	now := s.clock().UTC()
	customer := domain.Customer{
		ID:        customerIDPrefix + s.newID(),
		Name:      name,
		Phone:     phone,
		Address:   strings.TrimSpace(cmd.Address),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if email := strings.TrimSpace(cmd.Email); email != "" {
		customer.Email = &email
	}
	if taxID := strings.TrimSpace(cmd.TaxID); taxID != "" {
		customer.TaxID = &taxID
	}
	if cmd.Location != nil {
		lat, lng := cmd.Location.Latitude, cmd.Location.Longitude
		customer.Latitude = &lat
		customer.Longitude = &lng
	}
	if cmd.Actor.ID != "" {
		actorID := cmd.Actor.ID
		customer.CreatedByID = &actorID
	}

	if err := s.customers.Insert(ctx, customer); err != nil {
		return Customer{}, s.mapRepositoryError(err)
	}
	return customer, nil
}

func (s *customerService) Get(ctx context.Context, actor Actor, customerID string) (Customer, error) {
	if err := Authorize(actor, CapCustomerRead); err != nil {
		return Customer{}, err
	}
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return Customer{}, fmt.Errorf("%w: customer id is required", ErrCustomerInvalidInput)
	}
	customer, err := s.customers.FindByID(ctx, customerID)
	if err != nil {
		return Customer{}, s.mapRepositoryError(err)
	}
	return customer, nil
}

func (s *customerService) List(ctx context.Context, actor Actor, filter CustomerListFilter) (domain.CursorPage[Customer], error) {
	if err := Authorize(actor, CapCustomerRead); err != nil {
		return domain.CursorPage[Customer]{}, err
	}
	page, err := s.customers.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Customer]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *customerService) Update(ctx context.Context, cmd UpdateCustomerCommand) (Customer, error) {
	if err := Authorize(cmd.Actor, CapCustomerWrite); err != nil {
		return Customer{}, err
	}
	customerID := strings.TrimSpace(cmd.CustomerID)
	if customerID == "" {
		return Customer{}, fmt.Errorf("%w: customer id is required", ErrCustomerInvalidInput)
	}

	customer, err := s.customers.FindByID(ctx, customerID)
	if err != nil {
		return Customer{}, s.mapRepositoryError(err)
	}

	if cmd.Name != nil {
		if name := strings.TrimSpace(*cmd.Name); name != "" {
			customer.Name = name
		}
	}
	if cmd.Phone != nil {
		if phone := strings.TrimSpace(*cmd.Phone); phone != "" {
			customer.Phone = phone
		}
	}
	if cmd.Address != nil {
		customer.Address = strings.TrimSpace(*cmd.Address)
	}
	if cmd.Email != nil {
		if email := strings.TrimSpace(*cmd.Email); email != "" {
			customer.Email = &email
		} else {
			customer.Email = nil
		}
	}
	if cmd.TaxID != nil {
		if taxID := strings.TrimSpace(*cmd.TaxID); taxID != "" {
			customer.TaxID = &taxID
		} else {
			customer.TaxID = nil
		}
	}
	if cmd.Location != nil {
		lat, lng := cmd.Location.Latitude, cmd.Location.Longitude
		customer.Latitude = &lat
		customer.Longitude = &lng
	}
	customer.UpdatedAt = s.clock().UTC()

	if err := s.customers.Update(ctx, customer); err != nil {
		return Customer{}, s.mapRepositoryError(err)
	}
	return customer, nil
}

func (s *customerService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCustomerNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCustomerDuplicate, err)
		}
	}
	return err
}
