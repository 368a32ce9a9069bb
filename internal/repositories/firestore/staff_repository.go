package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/servihogar/api/internal/domain"
	pfirestore "github.com/servihogar/api/internal/platform/firestore"
	"github.com/servihogar/api/internal/repositories"
)

const staffCollection = "staff"

// StaffRepository persists staff members in Firestore.
type StaffRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[staffDocument]
}

// NewStaffRepository constructs a Firestore-backed staff repository.
func NewStaffRepository(provider *pfirestore.Provider) (*StaffRepository, error) {
	if provider == nil {
		return nil, errors.New("staff repository requires firestore provider")
	}
	return &StaffRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[staffDocument](provider, staffCollection, nil, nil),
	}, nil
}

// Insert creates the staff document, failing when the ID is already taken.
func (r *StaffRepository) Insert(ctx context.Context, staff domain.Staff) error {
	id := strings.TrimSpace(staff.ID)
	if id == "" {
		return errors.New("staff repository: staff id is required")
	}
	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	doc := encodeStaff(staff)

	if tx, ok := pfirestore.TransactionFrom(ctx); ok {
		if err := tx.Create(ref, doc); err != nil {
			return pfirestore.WrapError("staff.insert", err)
		}
		return nil
	}
	if _, err := ref.Create(ctx, doc); err != nil {
		return pfirestore.WrapError("staff.insert", err)
	}
	return nil
}

// Update overwrites the staff document.
func (r *StaffRepository) Update(ctx context.Context, staff domain.Staff) error {
	id := strings.TrimSpace(staff.ID)
	if id == "" {
		return errors.New("staff repository: staff id is required")
	}
	_, err := r.base.Set(ctx, id, encodeStaff(staff))
	return err
}

// Delete removes the staff document.
func (r *StaffRepository) Delete(ctx context.Context, staffID string) error {
	return r.base.Delete(ctx, strings.TrimSpace(staffID))
}

// FindByID loads a single staff member.
func (r *StaffRepository) FindByID(ctx context.Context, staffID string) (domain.Staff, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(staffID))
	if err != nil {
		return domain.Staff{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByEmail locates a staff member by their normalized email address.
func (r *StaffRepository) FindByEmail(ctx context.Context, email string) (domain.Staff, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return domain.Staff{}, errors.New("staff repository: email is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Staff{}, err
	}

	iter := client.Collection(staffCollection).Where("email", "==", normalized).Limit(1).Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) || status.Code(err) == codes.NotFound {
		return domain.Staff{}, pfirestore.WrapError("staff.findByEmail",
			status.Errorf(codes.NotFound, "staff with email %s not found", normalized))
	}
	if err != nil {
		return domain.Staff{}, pfirestore.WrapError("staff.findByEmail", err)
	}

	var doc staffDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Staff{}, fmt.Errorf("decode staff %s: %w", snap.Ref.ID, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// List returns every staff member ordered by name.
func (r *StaffRepository) List(ctx context.Context) ([]domain.Staff, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("name", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Staff, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	return out, nil
}

type staffDocument struct {
	Name              string    `firestore:"name"`
	Email             string    `firestore:"email"`
	Phone             string    `firestore:"phone,omitempty"`
	Role              string    `firestore:"role"`
	PrimaryCalendarID *string   `firestore:"primaryCalendarId,omitempty"`
	Active            bool      `firestore:"active"`
	CreatedAt         time.Time `firestore:"createdAt"`
	UpdatedAt         time.Time `firestore:"updatedAt"`
}

func encodeStaff(staff domain.Staff) staffDocument {
	return staffDocument{
		Name:              staff.Name,
		Email:             strings.ToLower(strings.TrimSpace(staff.Email)),
		Phone:             staff.Phone,
		Role:              string(staff.Role),
		PrimaryCalendarID: staff.PrimaryCalendarID,
		Active:            staff.Active,
		CreatedAt:         staff.CreatedAt.UTC(),
		UpdatedAt:         staff.UpdatedAt.UTC(),
	}
}

func (d staffDocument) toDomain(id string) domain.Staff {
	return domain.Staff{
		ID:                id,
		Name:              d.Name,
		Email:             d.Email,
		Phone:             d.Phone,
		Role:              domain.StaffRole(d.Role),
		PrimaryCalendarID: d.PrimaryCalendarID,
		Active:            d.Active,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

var _ repositories.StaffRepository = (*StaffRepository)(nil)
