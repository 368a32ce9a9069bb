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

const syncOutboxCollection = "syncOutbox"

// SyncOutboxRepository stores durable calendar-mirror intents. Records are
// enqueued inside the same transaction as the order mutation they mirror and
// drained later by a background worker.
type SyncOutboxRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[syncOutboxDocument]
}

// NewSyncOutboxRepository constructs a Firestore-backed sync outbox repository.
func NewSyncOutboxRepository(provider *pfirestore.Provider) (*SyncOutboxRepository, error) {
	if provider == nil {
		return nil, errors.New("sync outbox repository requires firestore provider")
	}
	return &SyncOutboxRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[syncOutboxDocument](provider, syncOutboxCollection, nil, nil),
	}, nil
}

// Enqueue persists a new pending record.
func (r *SyncOutboxRepository) Enqueue(ctx context.Context, record domain.SyncOutboxRecord) error {
	id := strings.TrimSpace(record.ID)
	if id == "" {
		return errors.New("sync outbox repository: record id is required")
	}
	if record.Status == "" {
		record.Status = domain.OutboxPending
	}
	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	doc := encodeSyncOutbox(record)

	if tx, ok := pfirestore.TransactionFrom(ctx); ok {
		if err := tx.Create(ref, doc); err != nil {
			return pfirestore.WrapError("syncOutbox.enqueue", err)
		}
		return nil
	}
	if _, err := ref.Create(ctx, doc); err != nil {
		return pfirestore.WrapError("syncOutbox.enqueue", err)
	}
	return nil
}

// ListDue returns pending records whose next attempt time has passed, oldest first.
func (r *SyncOutboxRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.SyncOutboxRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.
			Where("status", "==", string(domain.OutboxPending)).
			Where("nextAttemptAt", "<=", now.UTC()).
			OrderBy("nextAttemptAt", firestore.Asc).
			Limit(limit)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.SyncOutboxRecord, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	return out, nil
}

// MarkSucceeded finalises a delivered record.
func (r *SyncOutboxRepository) MarkSucceeded(ctx context.Context, recordID string, now time.Time) error {
	_, err := r.base.Update(ctx, strings.TrimSpace(recordID), []firestore.Update{
		{Path: "status", Value: string(domain.OutboxSucceeded)},
		{Path: "lastError", Value: ""},
		{Path: "updatedAt", Value: now.UTC()},
	})
	return err
}

// MarkFailed records a failed attempt; terminal failures stop retrying.
func (r *SyncOutboxRepository) MarkFailed(ctx context.Context, recordID string, attemptErr string, nextAttempt time.Time, terminal bool) error {
	nextStatus := string(domain.OutboxPending)
	if terminal {
		nextStatus = string(domain.OutboxFailed)
	}
	_, err := r.base.Update(ctx, strings.TrimSpace(recordID), []firestore.Update{
		{Path: "status", Value: nextStatus},
		{Path: "attempts", Value: firestore.Increment(1)},
		{Path: "lastError", Value: attemptErr},
		{Path: "nextAttemptAt", Value: nextAttempt.UTC()},
		{Path: "updatedAt", Value: time.Now().UTC()},
	})
	return err
}

// UpdateEventID rewrites the calendar event ID on pending records for the order.
// Used after a create succeeds so queued patches target the freshly minted event.
func (r *SyncOutboxRepository) UpdateEventID(ctx context.Context, orderID string, eventID string) error {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return errors.New("sync outbox repository: order id is required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.
			Where("orderId", "==", id).
			Where("status", "==", string(domain.OutboxPending))
	})
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if _, err := r.base.Update(ctx, doc.ID, []firestore.Update{
			{Path: "eventId", Value: eventID},
			{Path: "updatedAt", Value: time.Now().UTC()},
		}); err != nil {
			return err
		}
	}
	return nil
}

type syncOutboxDocument struct {
	Op             string         `firestore:"op"`
	OrderID        string         `firestore:"orderId"`
	CalendarID     string         `firestore:"calendarId,omitempty"`
	PrevCalendarID string         `firestore:"prevCalendarId,omitempty"`
	EventID        string         `firestore:"eventId,omitempty"`
	Fields         map[string]any `firestore:"fields,omitempty"`
	Status         string         `firestore:"status"`
	Attempts       int            `firestore:"attempts"`
	LastError      string         `firestore:"lastError,omitempty"`
	NextAttemptAt  time.Time      `firestore:"nextAttemptAt"`
	CreatedAt      time.Time      `firestore:"createdAt"`
	UpdatedAt      time.Time      `firestore:"updatedAt"`
}

func encodeSyncOutbox(record domain.SyncOutboxRecord) syncOutboxDocument {
	return syncOutboxDocument{
		Op:             string(record.Op),
		OrderID:        record.OrderID,
		CalendarID:     record.CalendarID,
		PrevCalendarID: record.PrevCalendarID,
		EventID:        record.EventID,
		Fields:         record.Fields,
		Status:         string(record.Status),
		Attempts:       record.Attempts,
		LastError:      record.LastError,
		NextAttemptAt:  record.NextAttemptAt.UTC(),
		CreatedAt:      record.CreatedAt.UTC(),
		UpdatedAt:      record.UpdatedAt.UTC(),
	}
}

func (d syncOutboxDocument) toDomain(id string) domain.SyncOutboxRecord {
	return domain.SyncOutboxRecord{
		ID:             id,
		Op:             domain.OutboxOp(d.Op),
		OrderID:        d.OrderID,
		CalendarID:     d.CalendarID,
		PrevCalendarID: d.PrevCalendarID,
		EventID:        d.EventID,
		Fields:         d.Fields,
		Status:         domain.OutboxStatus(d.Status),
		Attempts:       d.Attempts,
		LastError:      d.LastError,
		NextAttemptAt:  d.NextAttemptAt,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

var _ repositories.SyncOutboxRepository = (*SyncOutboxRepository)(nil)
