package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/servihogar/api/internal/domain"
	pfirestore "github.com/servihogar/api/internal/platform/firestore"
	"github.com/servihogar/api/internal/repositories"
)

const maintenanceSchedulesCollection = "maintenanceSchedules"

// MaintenanceScheduleRepository persists recurring maintenance schedules.
// Due dates are stored as ISO date strings so the due query is a plain
// lexicographic comparison in the business timezone.
type MaintenanceScheduleRepository struct {
	base *pfirestore.BaseRepository[maintenanceScheduleDocument]
}

// NewMaintenanceScheduleRepository constructs a Firestore-backed schedule repository.
func NewMaintenanceScheduleRepository(provider *pfirestore.Provider) (*MaintenanceScheduleRepository, error) {
	if provider == nil {
		return nil, errors.New("maintenance schedule repository requires firestore provider")
	}
	return &MaintenanceScheduleRepository{
		base: pfirestore.NewBaseRepository[maintenanceScheduleDocument](provider, maintenanceSchedulesCollection, nil, nil),
	}, nil
}

// Insert creates the schedule document, failing when the ID is already taken.
func (r *MaintenanceScheduleRepository) Insert(ctx context.Context, schedule domain.MaintenanceSchedule) error {
	id := strings.TrimSpace(schedule.ID)
	if id == "" {
		return errors.New("maintenance schedule repository: schedule id is required")
	}
	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	doc := encodeMaintenanceSchedule(schedule)

	if tx, ok := pfirestore.TransactionFrom(ctx); ok {
		if err := tx.Create(ref, doc); err != nil {
			return pfirestore.WrapError("maintenanceSchedules.insert", err)
		}
		return nil
	}
	if _, err := ref.Create(ctx, doc); err != nil {
		return pfirestore.WrapError("maintenanceSchedules.insert", err)
	}
	return nil
}

// Update overwrites the schedule document.
func (r *MaintenanceScheduleRepository) Update(ctx context.Context, schedule domain.MaintenanceSchedule) error {
	id := strings.TrimSpace(schedule.ID)
	if id == "" {
		return errors.New("maintenance schedule repository: schedule id is required")
	}
	_, err := r.base.Set(ctx, id, encodeMaintenanceSchedule(schedule))
	return err
}

// Delete removes the schedule document.
func (r *MaintenanceScheduleRepository) Delete(ctx context.Context, scheduleID string) error {
	return r.base.Delete(ctx, strings.TrimSpace(scheduleID))
}

// FindByID loads a single schedule.
func (r *MaintenanceScheduleRepository) FindByID(ctx context.Context, scheduleID string) (domain.MaintenanceSchedule, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(scheduleID))
	if err != nil {
		return domain.MaintenanceSchedule{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List returns every schedule ordered by next due date.
func (r *MaintenanceScheduleRepository) List(ctx context.Context) ([]domain.MaintenanceSchedule, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("nextDueDate", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	return decodeMaintenanceScheduleDocs(docs), nil
}

// ListDue returns schedules whose next due date is on or before the given ISO date.
func (r *MaintenanceScheduleRepository) ListDue(ctx context.Context, todayISO string) ([]domain.MaintenanceSchedule, error) {
	cutoff := strings.TrimSpace(todayISO)
	if cutoff == "" {
		return nil, errors.New("maintenance schedule repository: cutoff date is required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("nextDueDate", "<=", cutoff).OrderBy("nextDueDate", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	return decodeMaintenanceScheduleDocs(docs), nil
}

func decodeMaintenanceScheduleDocs(docs []pfirestore.Document[maintenanceScheduleDocument]) []domain.MaintenanceSchedule {
	out := make([]domain.MaintenanceSchedule, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	return out
}

type maintenanceScheduleDocument struct {
	CustomerID      string    `firestore:"customerId"`
	Description     string    `firestore:"description"`
	StartDate       string    `firestore:"startDate"`
	FrequencyMonths int       `firestore:"frequencyMonths"`
	NextDueDate     string    `firestore:"nextDueDate"`
	CreatedByID     *string   `firestore:"createdById,omitempty"`
	CreatedAt       time.Time `firestore:"createdAt"`
	UpdatedAt       time.Time `firestore:"updatedAt"`
}

func encodeMaintenanceSchedule(schedule domain.MaintenanceSchedule) maintenanceScheduleDocument {
	return maintenanceScheduleDocument{
		CustomerID:      schedule.CustomerID,
		Description:     schedule.Description,
		StartDate:       schedule.StartDate,
		FrequencyMonths: schedule.FrequencyMonths,
		NextDueDate:     schedule.NextDueDate,
		CreatedByID:     schedule.CreatedByID,
		CreatedAt:       schedule.CreatedAt.UTC(),
		UpdatedAt:       schedule.UpdatedAt.UTC(),
	}
}

func (d maintenanceScheduleDocument) toDomain(id string) domain.MaintenanceSchedule {
	return domain.MaintenanceSchedule{
		ID:              id,
		CustomerID:      d.CustomerID,
		Description:     d.Description,
		StartDate:       d.StartDate,
		FrequencyMonths: d.FrequencyMonths,
		NextDueDate:     d.NextDueDate,
		CreatedByID:     d.CreatedByID,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

var _ repositories.MaintenanceScheduleRepository = (*MaintenanceScheduleRepository)(nil)
