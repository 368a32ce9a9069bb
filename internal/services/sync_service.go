package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/googleapis/gax-go/v2"

	domain "github.com/servihogar/api/internal/domain"
	"github.com/servihogar/api/internal/repositories"
)

const (
	defaultDrainBatch  = 25
	defaultMaxAttempts = 8
)

// ErrSyncGatewayUnset is returned when Drain runs without a configured gateway.
var ErrSyncGatewayUnset = errors.New("sync: calendar gateway not configured")

// SyncServiceDeps bundles collaborators for the outbox drainer.
type SyncServiceDeps struct {
	Outbox  repositories.SyncOutboxRepository
	Orders  repositories.ServiceOrderRepository
	Gateway CalendarGateway
	// Backoff shapes the retry schedule between failed attempts. Zero values
	// fall back to 30s initial, 1h cap, doubling.
	Backoff gax.Backoff
	// MaxAttempts bounds retries per record; the final failure is terminal.
	MaxAttempts int
	// IsTerminal short-circuits retries for errors that will never succeed,
	// such as the mirror event having been deleted remotely.
	IsTerminal func(error) bool
	BatchSize  int
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type syncService struct {
	outbox      repositories.SyncOutboxRepository
	orders      repositories.ServiceOrderRepository
	gateway     CalendarGateway
	backoff     gax.Backoff
	maxAttempts int
	isTerminal  func(error) bool
	batchSize   int
	clock       func() time.Time
	logger      func(context.Context, string, map[string]any)
}

var _ SyncService = (*syncService)(nil)

// NewSyncService wires dependencies into a concrete SyncService.
func NewSyncService(deps SyncServiceDeps) (SyncService, error) {
	if deps.Outbox == nil {
		return nil, errors.New("sync service: outbox repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("sync service: order repository is required")
	}
	backoff := deps.Backoff
	if backoff.Initial == 0 {
		backoff.Initial = 30 * time.Second
	}
	if backoff.Max == 0 {
		backoff.Max = time.Hour
	}
	if backoff.Multiplier == 0 {
		backoff.Multiplier = 2
	}
	maxAttempts := deps.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	batchSize := deps.BatchSize
	if batchSize <= 0 {
		batchSize = defaultDrainBatch
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	isTerminal := deps.IsTerminal
	if isTerminal == nil {
		isTerminal = func(error) bool { return false }
	}
	return &syncService{
		outbox:      deps.Outbox,
		orders:      deps.Orders,
		gateway:     deps.Gateway,
		backoff:     backoff,
		maxAttempts: maxAttempts,
		isTerminal:  isTerminal,
		batchSize:   batchSize,
		clock:       clock,
		logger:      logger,
	}, nil
}

// Drain processes due outbox records against the external calendar. Each record
// succeeds, reschedules with backoff, or fails terminally; the orders they
// mirror are never touched beyond recording the event id.
func (s *syncService) Drain(ctx context.Context, now time.Time) (DrainResult, error) {
	if s.gateway == nil {
		return DrainResult{}, ErrSyncGatewayUnset
	}
	if now.IsZero() {
		now = s.clock()
	}
	now = now.UTC()

	due, err := s.outbox.ListDue(ctx, now, s.batchSize)
	if err != nil {
		return DrainResult{}, err
	}

	result := DrainResult{}
	for _, record := range due {
		result.Processed++
		if err := s.dispatch(ctx, record); err != nil {
			result.Failed++
			s.recordFailure(ctx, record, err, now)
			continue
		}
		if err := s.outbox.MarkSucceeded(ctx, record.ID, now); err != nil {
			return result, err
		}
		result.Succeeded++
	}
	return result, nil
}

// UpcomingEvents reads the mirror calendar directly, bypassing the outbox.
// A zero from defaults to now.
func (s *syncService) UpcomingEvents(ctx context.Context, calendarID string, from time.Time, limit int) ([]UpcomingEvent, error) {
	if s.gateway == nil {
		return nil, ErrSyncGatewayUnset
	}
	if calendarID == "" {
		return nil, fmt.Errorf("sync: calendar id is required")
	}
	if from.IsZero() {
		from = s.clock()
	}
	if limit <= 0 {
		limit = s.batchSize
	}
	return s.gateway.ListUpcomingEvents(ctx, calendarID, from.UTC(), limit)
}

func (s *syncService) dispatch(ctx context.Context, record domain.SyncOutboxRecord) error {
	switch record.Op {
	case domain.OutboxOpCreate:
		eventID, err := s.gateway.CreateEvent(ctx, record.CalendarID, record.Fields)
		if err != nil {
			return err
		}
		return s.recordEventID(ctx, record.OrderID, eventID)
	case domain.OutboxOpPatch:
		return s.gateway.PatchEvent(ctx, record.CalendarID, record.EventID, record.Fields)
	case domain.OutboxOpMove:
		eventID, err := s.gateway.MoveEvent(ctx, record.PrevCalendarID, record.EventID, record.CalendarID)
		if err != nil {
			return err
		}
		if eventID != "" && eventID != record.EventID {
			return s.recordEventID(ctx, record.OrderID, eventID)
		}
		return nil
	default:
		return fmt.Errorf("unknown outbox op %q", record.Op)
	}
}

// recordEventID marks the order synced and propagates the event id to any
// still-pending records for the same order so queued patches hit the right event.
func (s *syncService) recordEventID(ctx context.Context, orderID, eventID string) error {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			// Order purged since the record was enqueued; nothing to update.
			return nil
		}
		return err
	}
	order.GoogleSynced = true
	order.GoogleEventID = &eventID
	order.UpdatedAt = s.clock().UTC()
	if err := s.orders.Update(ctx, order); err != nil {
		return err
	}
	return s.outbox.UpdateEventID(ctx, orderID, eventID)
}

func (s *syncService) recordFailure(ctx context.Context, record domain.SyncOutboxRecord, attemptErr error, now time.Time) {
	attempts := record.Attempts + 1
	terminal := attempts >= s.maxAttempts || s.isTerminal(attemptErr)
	nextAttempt := now.Add(s.retryDelay(attempts))

	if err := s.outbox.MarkFailed(ctx, record.ID, attemptErr.Error(), nextAttempt, terminal); err != nil {
		s.logger(ctx, "sync.outbox.mark_failed", map[string]any{
			"record_id": record.ID,
			"error":     err.Error(),
		})
		return
	}
	s.logger(ctx, "sync.outbox.retry", map[string]any{
		"record_id": record.ID,
		"op":        string(record.Op),
		"attempts":  attempts,
		"terminal":  terminal,
		"error":     attemptErr.Error(),
	})
}

// retryDelay replays the backoff schedule up to the given attempt and returns
// that attempt's pause. The copy starts cold each call, so a record's delay
// depends only on its own attempt count, not on drain ordering. Pause applies
// jitter, which keeps a batch of records that failed together from hammering
// the calendar API in lockstep on the next drain.
func (s *syncService) retryDelay(attempts int) time.Duration {
	bo := s.backoff
	var delay time.Duration
	for i := 0; i < attempts; i++ {
		delay = bo.Pause()
	}
	return delay
}
