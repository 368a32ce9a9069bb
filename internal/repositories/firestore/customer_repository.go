package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/servihogar/api/internal/domain"
	pfirestore "github.com/servihogar/api/internal/platform/firestore"
	"github.com/servihogar/api/internal/platform/pagination"
	"github.com/servihogar/api/internal/repositories"
)

const customersCollection = "customers"

// CustomerRepository persists the customer registry in Firestore.
type CustomerRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[customerDocument]
}

// NewCustomerRepository constructs a Firestore-backed customer repository.
func NewCustomerRepository(provider *pfirestore.Provider) (*CustomerRepository, error) {
	if provider == nil {
		return nil, errors.New("customer repository requires firestore provider")
	}
	return &CustomerRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[customerDocument](provider, customersCollection, nil, nil),
	}, nil
}

// Insert creates the customer document, failing when the ID is already taken.
func (r *CustomerRepository) Insert(ctx context.Context, customer domain.Customer) error {
	id := strings.TrimSpace(customer.ID)
	if id == "" {
		return errors.New("customer repository: customer id is required")
	}
	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	doc := encodeCustomer(customer)

	if tx, ok := pfirestore.TransactionFrom(ctx); ok {
		if err := tx.Create(ref, doc); err != nil {
			return pfirestore.WrapError("customers.insert", err)
		}
		return nil
	}
	if _, err := ref.Create(ctx, doc); err != nil {
		return pfirestore.WrapError("customers.insert", err)
	}
	return nil
}

// Update overwrites the customer document.
func (r *CustomerRepository) Update(ctx context.Context, customer domain.Customer) error {
	id := strings.TrimSpace(customer.ID)
	if id == "" {
		return errors.New("customer repository: customer id is required")
	}
	_, err := r.base.Set(ctx, id, encodeCustomer(customer))
	return err
}

// FindByID loads a single customer.
func (r *CustomerRepository) FindByID(ctx context.Context, customerID string) (domain.Customer, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(customerID))
	if err != nil {
		return domain.Customer{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByPhone returns every customer registered under the exact phone number.
// Name folding for deduplication happens in the service layer.
func (r *CustomerRepository) FindByPhone(ctx context.Context, phone string) ([]domain.Customer, error) {
	trimmed := strings.TrimSpace(phone)
	if trimmed == "" {
		return nil, nil
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("phone", "==", trimmed)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Customer, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	return out, nil
}

// List returns a cursor-paginated page of customers ordered by creation time descending.
func (r *CustomerRepository) List(ctx context.Context, filter repositories.CustomerListFilter) (domain.CursorPage[domain.Customer], error) {
	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}

	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Customer]{}, err
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		// Prefix search over the name; Firestore has no substring queries.
		if search := strings.TrimSpace(filter.Search); search != "" {
			q = q.Where("name", ">=", search).Where("name", "<", search+"\uf8ff").OrderBy("name", firestore.Asc)
		} else {
			q = q.OrderBy("createdAt", firestore.Desc)
		}
		if len(cursor.StartAfter) > 0 {
			q = q.StartAfter(cursor.StartAfter...)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Customer]{}, err
	}

	page := domain.CursorPage[domain.Customer]{}
	for i, doc := range docs {
		if i >= pageSize {
			var startAfter []any
			if strings.TrimSpace(filter.Search) != "" {
				startAfter = []any{docs[pageSize-1].Data.Name}
			} else {
				startAfter = []any{docs[pageSize-1].Data.CreatedAt}
			}
			token, err := pagination.EncodeToken(pagination.Cursor{StartAfter: startAfter})
			if err != nil {
				return domain.CursorPage[domain.Customer]{}, err
			}
			page.NextPageToken = token
			break
		}
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}
	return page, nil
}

type customerDocument struct {
	Name           string    `firestore:"name"`
	Phone          string    `firestore:"phone"`
	Address        string    `firestore:"address,omitempty"`
	Email          *string   `firestore:"email,omitempty"`
	TaxID          *string   `firestore:"taxId,omitempty"`
	Latitude       *float64  `firestore:"latitude,omitempty"`
	Longitude      *float64  `firestore:"longitude,omitempty"`
	ServiceHistory []string  `firestore:"serviceHistory,omitempty"`
	CreatedByID    *string   `firestore:"createdById,omitempty"`
	CreatedAt      time.Time `firestore:"createdAt"`
	UpdatedAt      time.Time `firestore:"updatedAt"`
}

func encodeCustomer(customer domain.Customer) customerDocument {
	return customerDocument{
		Name:           customer.Name,
		Phone:          customer.Phone,
		Address:        customer.Address,
		Email:          customer.Email,
		TaxID:          customer.TaxID,
		Latitude:       customer.Latitude,
		Longitude:      customer.Longitude,
		ServiceHistory: customer.ServiceHistory,
		CreatedByID:    customer.CreatedByID,
		CreatedAt:      customer.CreatedAt.UTC(),
		UpdatedAt:      customer.UpdatedAt.UTC(),
	}
}

func (d customerDocument) toDomain(id string) domain.Customer {
	return domain.Customer{
		ID:             id,
		Name:           d.Name,
		Phone:          d.Phone,
		Address:        d.Address,
		Email:          d.Email,
		TaxID:          d.TaxID,
		Latitude:       d.Latitude,
		Longitude:      d.Longitude,
		ServiceHistory: d.ServiceHistory,
		CreatedByID:    d.CreatedByID,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

var _ repositories.CustomerRepository = (*CustomerRepository)(nil)
