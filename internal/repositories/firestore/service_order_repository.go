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
	"github.com/servihogar/api/internal/platform/pagination"
	"github.com/servihogar/api/internal/repositories"
)

const serviceOrdersCollection = "serviceOrders"

// ServiceOrderRepository persists service orders in Firestore. Updates carry a
// version precondition so concurrent edits surface as conflicts instead of
// silently overwriting each other.
type ServiceOrderRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[serviceOrderDocument]
}

// NewServiceOrderRepository constructs a Firestore-backed service order repository.
func NewServiceOrderRepository(provider *pfirestore.Provider) (*ServiceOrderRepository, error) {
	if provider == nil {
		return nil, errors.New("service order repository requires firestore provider")
	}
	return &ServiceOrderRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[serviceOrderDocument](provider, serviceOrdersCollection, nil, nil),
	}, nil
}

// Insert creates the order document, failing when the ID is already taken.
func (r *ServiceOrderRepository) Insert(ctx context.Context, order domain.ServiceOrder) error {
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("service order repository: order id is required")
	}
	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	doc := encodeServiceOrder(order)

	if tx, ok := pfirestore.TransactionFrom(ctx); ok {
		if err := tx.Create(ref, doc); err != nil {
			return pfirestore.WrapError("serviceOrders.insert", err)
		}
		return nil
	}
	if _, err := ref.Create(ctx, doc); err != nil {
		return pfirestore.WrapError("serviceOrders.insert", err)
	}
	return nil
}

// Update persists the order if the stored version still matches order.Version,
// and bumps the version by one. A moved version is reported as a conflict.
func (r *ServiceOrderRepository) Update(ctx context.Context, order domain.ServiceOrder) error {
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("service order repository: order id is required")
	}

	write := func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var stored serviceOrderDocument
		if err := snap.DataTo(&stored); err != nil {
			return fmt.Errorf("decode service order %s: %w", id, err)
		}
		if stored.Version != order.Version {
			return pfirestore.NewConflictError("serviceOrders.update",
				fmt.Errorf("order %s version moved from %d to %d", id, order.Version, stored.Version))
		}
		next := order
		next.Version = order.Version + 1
		return tx.Set(ref, encodeServiceOrder(next))
	}

	var err error
	if tx, ok := pfirestore.TransactionFrom(ctx); ok {
		err = write(ctx, tx)
	} else {
		err = r.provider.RunTransaction(ctx, write)
	}
	if err != nil {
		return pfirestore.WrapError("serviceOrders.update", err)
	}
	return nil
}

// Delete removes the order document permanently.
func (r *ServiceOrderRepository) Delete(ctx context.Context, orderID string) error {
	return r.base.Delete(ctx, strings.TrimSpace(orderID))
}

// FindByID loads a single order.
func (r *ServiceOrderRepository) FindByID(ctx context.Context, orderID string) (domain.ServiceOrder, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.ServiceOrder{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List returns a filtered, cursor-paginated page ordered by creation time descending.
func (r *ServiceOrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.ServiceOrder], error) {
	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}

	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.ServiceOrder]{}, err
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if calendarID := strings.TrimSpace(filter.CalendarID); calendarID != "" {
			q = q.Where("calendarId", "==", calendarID)
		}
		if customerID := strings.TrimSpace(filter.CustomerID); customerID != "" {
			q = q.Where("customerId", "==", customerID)
		}
		if len(filter.Status) == 1 {
			q = q.Where("status", "==", filter.Status[0])
		} else if len(filter.Status) > 1 {
			q = q.Where("status", "in", filter.Status)
		}
		if filter.DateRange.From != nil {
			q = q.Where("start", ">=", filter.DateRange.From.UTC())
		}
		if filter.DateRange.To != nil {
			q = q.Where("start", "<", filter.DateRange.To.UTC())
		}
		q = q.OrderBy("createdAt", firestore.Desc)
		if len(cursor.StartAfter) > 0 {
			q = q.StartAfter(cursor.StartAfter...)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.ServiceOrder]{}, err
	}

	page := domain.CursorPage[domain.ServiceOrder]{}
	for i, doc := range docs {
		if i >= pageSize {
			token, err := pagination.EncodeToken(pagination.Cursor{
				StartAfter: []any{docs[pageSize-1].Data.CreatedAt},
			})
			if err != nil {
				return domain.CursorPage[domain.ServiceOrder]{}, err
			}
			page.NextPageToken = token
			break
		}
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}
	return page, nil
}

// ListByCalendarRange returns orders on the calendar starting inside [from, to).
func (r *ServiceOrderRepository) ListByCalendarRange(ctx context.Context, calendarID string, from, to time.Time) ([]domain.ServiceOrder, error) {
	id := strings.TrimSpace(calendarID)
	if id == "" {
		return nil, errors.New("service order repository: calendar id is required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.
			Where("calendarId", "==", id).
			Where("start", ">=", from.UTC()).
			Where("start", "<", to.UTC()).
			OrderBy("start", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	return decodeServiceOrderDocs(docs), nil
}

// ListByCalendar returns every order assigned to the calendar.
func (r *ServiceOrderRepository) ListByCalendar(ctx context.Context, calendarID string) ([]domain.ServiceOrder, error) {
	id := strings.TrimSpace(calendarID)
	if id == "" {
		return nil, errors.New("service order repository: calendar id is required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("calendarId", "==", id)
	})
	if err != nil {
		return nil, err
	}
	return decodeServiceOrderDocs(docs), nil
}

// ListCancelledBefore returns cancelled orders created before the cutoff.
func (r *ServiceOrderRepository) ListCancelledBefore(ctx context.Context, cutoff time.Time) ([]domain.ServiceOrder, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.
			Where("status", "==", string(domain.StatusCancelled)).
			Where("createdAt", "<=", cutoff.UTC())
	})
	if err != nil {
		return nil, err
	}
	return decodeServiceOrderDocs(docs), nil
}

// FindOpenBySchedule looks for an order generated by the maintenance schedule
// that is still awaiting confirmation or attendance.
func (r *ServiceOrderRepository) FindOpenBySchedule(ctx context.Context, scheduleID string) (domain.ServiceOrder, bool, error) {
	id := strings.TrimSpace(scheduleID)
	if id == "" {
		return domain.ServiceOrder{}, false, errors.New("service order repository: schedule id is required")
	}
	coll, err := r.collection(ctx)
	if err != nil {
		return domain.ServiceOrder{}, false, err
	}

	openStatuses := []string{string(domain.StatusUnconfirmed), string(domain.StatusPending)}
	iter := coll.
		Where("generatedByScheduleId", "==", id).
		Where("status", "in", openStatuses).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return domain.ServiceOrder{}, false, nil
	}
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return domain.ServiceOrder{}, false, nil
		}
		return domain.ServiceOrder{}, false, pfirestore.WrapError("serviceOrders.findOpenBySchedule", err)
	}

	var doc serviceOrderDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.ServiceOrder{}, false, fmt.Errorf("decode service order %s: %w", snap.Ref.ID, err)
	}
	return doc.toDomain(snap.Ref.ID), true, nil
}

func (r *ServiceOrderRepository) collection(ctx context.Context) (*firestore.CollectionRef, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(serviceOrdersCollection), nil
}

func decodeServiceOrderDocs(docs []pfirestore.Document[serviceOrderDocument]) []domain.ServiceOrder {
	out := make([]domain.ServiceOrder, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	return out
}

type actionLogDocument struct {
	Action    string    `firestore:"action"`
	Timestamp time.Time `firestore:"timestamp"`
	ActorID   string    `firestore:"actorId"`
	Detail    string    `firestore:"detail,omitempty"`
}

type geoPointDocument struct {
	Latitude  float64 `firestore:"latitude"`
	Longitude float64 `firestore:"longitude"`
}

type completionProofDocument struct {
	PhotoURL  string  `firestore:"photoUrl"`
	Latitude  float64 `firestore:"latitude"`
	Longitude float64 `firestore:"longitude"`
}

type serviceOrderDocument struct {
	OrderNumber string `firestore:"orderNumber"`
	Title       string `firestore:"title"`

	CustomerID      string            `firestore:"customerId"`
	CustomerName    string            `firestore:"customerName"`
	CustomerPhone   string            `firestore:"customerPhone"`
	CustomerAddress string            `firestore:"customerAddress"`
	CustomerEmail   *string           `firestore:"customerEmail,omitempty"`
	Location        *geoPointDocument `firestore:"location,omitempty"`

	ApplianceType string `firestore:"applianceType,omitempty"`
	IssueDetail   string `firestore:"issueDetail,omitempty"`

	Status     string     `firestore:"status"`
	Start      *time.Time `firestore:"start,omitempty"`
	End        *time.Time `firestore:"end,omitempty"`
	CalendarID *string    `firestore:"calendarId,omitempty"`

	GoogleSynced  bool    `firestore:"googleSynced"`
	GoogleEventID *string `firestore:"googleEventId,omitempty"`

	CheckupOnly  bool                     `firestore:"checkupOnly"`
	ServiceNotes string                   `firestore:"serviceNotes,omitempty"`
	Proof        *completionProofDocument `firestore:"proof,omitempty"`
	Reminders    []string                 `firestore:"reminders,omitempty"`

	CreatedByID   *string `firestore:"createdById,omitempty"`
	ConfirmedByID *string `firestore:"confirmedById,omitempty"`
	AttendedByID  *string `firestore:"attendedById,omitempty"`
	CancelledByID *string `firestore:"cancelledById,omitempty"`

	CancellationReason *string `firestore:"cancellationReason,omitempty"`
	ArchiveReason      *string `firestore:"archiveReason,omitempty"`

	GeneratedByScheduleID *string `firestore:"generatedByScheduleId,omitempty"`

	RescheduledCount int                 `firestore:"rescheduledCount"`
	History          []actionLogDocument `firestore:"history,omitempty"`

	Version   int64     `firestore:"version"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func encodeServiceOrder(order domain.ServiceOrder) serviceOrderDocument {
	doc := serviceOrderDocument{
		OrderNumber:           order.OrderNumber,
		Title:                 order.Title,
		CustomerID:            order.CustomerID,
		CustomerName:          order.CustomerName,
		CustomerPhone:         order.CustomerPhone,
		CustomerAddress:       order.CustomerAddress,
		CustomerEmail:         order.CustomerEmail,
		ApplianceType:         order.ApplianceType,
		IssueDetail:           order.IssueDetail,
		Status:                string(order.Status),
		Start:                 cloneOptionalTime(order.Start),
		End:                   cloneOptionalTime(order.End),
		CalendarID:            order.CalendarID,
		GoogleSynced:          order.GoogleSynced,
		GoogleEventID:         order.GoogleEventID,
		CheckupOnly:           order.CheckupOnly,
		ServiceNotes:          order.ServiceNotes,
		Reminders:             order.Reminders,
		CreatedByID:           order.CreatedByID,
		ConfirmedByID:         order.ConfirmedByID,
		AttendedByID:          order.AttendedByID,
		CancelledByID:         order.CancelledByID,
		CancellationReason:    order.CancellationReason,
		ArchiveReason:         order.ArchiveReason,
		GeneratedByScheduleID: order.GeneratedByScheduleID,
		RescheduledCount:      order.RescheduledCount,
		Version:               order.Version,
		CreatedAt:             order.CreatedAt.UTC(),
		UpdatedAt:             order.UpdatedAt.UTC(),
	}
	if order.Location != nil {
		doc.Location = &geoPointDocument{Latitude: order.Location.Latitude, Longitude: order.Location.Longitude}
	}
	if order.Proof != nil {
		doc.Proof = &completionProofDocument{
			PhotoURL:  order.Proof.PhotoURL,
			Latitude:  order.Proof.Latitude,
			Longitude: order.Proof.Longitude,
		}
	}
	for _, entry := range order.History {
		doc.History = append(doc.History, actionLogDocument{
			Action:    entry.Action,
			Timestamp: entry.Timestamp.UTC(),
			ActorID:   entry.ActorID,
			Detail:    entry.Detail,
		})
	}
	return doc
}

func (d serviceOrderDocument) toDomain(id string) domain.ServiceOrder {
	order := domain.ServiceOrder{
		ID:                    id,
		OrderNumber:           d.OrderNumber,
		Title:                 d.Title,
		CustomerID:            d.CustomerID,
		CustomerName:          d.CustomerName,
		CustomerPhone:         d.CustomerPhone,
		CustomerAddress:       d.CustomerAddress,
		CustomerEmail:         d.CustomerEmail,
		ApplianceType:         d.ApplianceType,
		IssueDetail:           d.IssueDetail,
		Status:                domain.OrderStatus(d.Status),
		Start:                 cloneOptionalTime(d.Start),
		End:                   cloneOptionalTime(d.End),
		CalendarID:            d.CalendarID,
		GoogleSynced:          d.GoogleSynced,
		GoogleEventID:         d.GoogleEventID,
		CheckupOnly:           d.CheckupOnly,
		ServiceNotes:          d.ServiceNotes,
		Reminders:             d.Reminders,
		CreatedByID:           d.CreatedByID,
		ConfirmedByID:         d.ConfirmedByID,
		AttendedByID:          d.AttendedByID,
		CancelledByID:         d.CancelledByID,
		CancellationReason:    d.CancellationReason,
		ArchiveReason:         d.ArchiveReason,
		GeneratedByScheduleID: d.GeneratedByScheduleID,
		RescheduledCount:      d.RescheduledCount,
		Version:               d.Version,
		CreatedAt:             d.CreatedAt,
		UpdatedAt:             d.UpdatedAt,
	}
	if d.Location != nil {
		order.Location = &domain.GeoPoint{Latitude: d.Location.Latitude, Longitude: d.Location.Longitude}
	}
	if d.Proof != nil {
		order.Proof = &domain.CompletionProof{
			PhotoURL:  d.Proof.PhotoURL,
			Latitude:  d.Proof.Latitude,
			Longitude: d.Proof.Longitude,
		}
	}
	for _, entry := range d.History {
		order.History = append(order.History, domain.ActionLog{
			Action:    entry.Action,
			Timestamp: entry.Timestamp,
			ActorID:   entry.ActorID,
			Detail:    entry.Detail,
		})
	}
	return order
}

func cloneOptionalTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	cloned := value.UTC()
	return &cloned
}

var _ repositories.ServiceOrderRepository = (*ServiceOrderRepository)(nil)
