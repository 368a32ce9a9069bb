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

const calendarsCollection = "calendars"

// CalendarRepository persists technician calendars and their weekly availability templates.
type CalendarRepository struct {
	base *pfirestore.BaseRepository[calendarDocument]
}

// NewCalendarRepository constructs a Firestore-backed calendar repository.
func NewCalendarRepository(provider *pfirestore.Provider) (*CalendarRepository, error) {
	if provider == nil {
		return nil, errors.New("calendar repository requires firestore provider")
	}
	return &CalendarRepository{
		base: pfirestore.NewBaseRepository[calendarDocument](provider, calendarsCollection, nil, nil),
	}, nil
}

// Insert creates the calendar document, failing when the ID is already taken.
func (r *CalendarRepository) Insert(ctx context.Context, calendar domain.Calendar) error {
	id := strings.TrimSpace(calendar.ID)
	if id == "" {
		return errors.New("calendar repository: calendar id is required")
	}
	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	doc := encodeCalendar(calendar)

	if tx, ok := pfirestore.TransactionFrom(ctx); ok {
		if err := tx.Create(ref, doc); err != nil {
			return pfirestore.WrapError("calendars.insert", err)
		}
		return nil
	}
	if _, err := ref.Create(ctx, doc); err != nil {
		return pfirestore.WrapError("calendars.insert", err)
	}
	return nil
}

// Update overwrites the calendar document.
func (r *CalendarRepository) Update(ctx context.Context, calendar domain.Calendar) error {
	id := strings.TrimSpace(calendar.ID)
	if id == "" {
		return errors.New("calendar repository: calendar id is required")
	}
	_, err := r.base.Set(ctx, id, encodeCalendar(calendar))
	return err
}

// Delete removes the calendar document.
func (r *CalendarRepository) Delete(ctx context.Context, calendarID string) error {
	return r.base.Delete(ctx, strings.TrimSpace(calendarID))
}

// FindByID loads a single calendar.
func (r *CalendarRepository) FindByID(ctx context.Context, calendarID string) (domain.Calendar, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(calendarID))
	if err != nil {
		return domain.Calendar{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List returns every calendar, optionally limited to active ones.
func (r *CalendarRepository) List(ctx context.Context, activeOnly bool) ([]domain.Calendar, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if activeOnly {
			q = q.Where("active", "==", true)
		}
		return q.OrderBy("name", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Calendar, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	return out, nil
}

type timeSlotDocument struct {
	StartTime string `firestore:"startTime"`
	EndTime   string `firestore:"endTime"`
}

type dailyAvailabilityDocument struct {
	Weekday int                `firestore:"weekday"`
	Slots   []timeSlotDocument `firestore:"slots"`
}

type calendarDocument struct {
	Name         string                      `firestore:"name"`
	StaffID      *string                     `firestore:"staffId,omitempty"`
	Color        string                      `firestore:"color,omitempty"`
	Availability []dailyAvailabilityDocument `firestore:"availability,omitempty"`
	Active       bool                        `firestore:"active"`
	CreatedAt    time.Time                   `firestore:"createdAt"`
	UpdatedAt    time.Time                   `firestore:"updatedAt"`
}

func encodeCalendar(calendar domain.Calendar) calendarDocument {
	doc := calendarDocument{
		Name:      calendar.Name,
		StaffID:   calendar.StaffID,
		Color:     calendar.Color,
		Active:    calendar.Active,
		CreatedAt: calendar.CreatedAt.UTC(),
		UpdatedAt: calendar.UpdatedAt.UTC(),
	}
	for _, day := range calendar.Availability {
		encoded := dailyAvailabilityDocument{Weekday: day.Weekday}
		for _, slot := range day.Slots {
			encoded.Slots = append(encoded.Slots, timeSlotDocument{StartTime: slot.StartTime, EndTime: slot.EndTime})
		}
		doc.Availability = append(doc.Availability, encoded)
	}
	return doc
}

func (d calendarDocument) toDomain(id string) domain.Calendar {
	calendar := domain.Calendar{
		ID:        id,
		Name:      d.Name,
		StaffID:   d.StaffID,
		Color:     d.Color,
		Active:    d.Active,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	for _, day := range d.Availability {
		decoded := domain.DailyAvailability{Weekday: day.Weekday}
		for _, slot := range day.Slots {
			decoded.Slots = append(decoded.Slots, domain.TimeSlot{StartTime: slot.StartTime, EndTime: slot.EndTime})
		}
		calendar.Availability = append(calendar.Availability, decoded)
	}
	return calendar
}

var _ repositories.CalendarRepository = (*CalendarRepository)(nil)
