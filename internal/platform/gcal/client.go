// Package gcal mirrors appointment mutations into Google Calendar. The business
// calendar remains a read model: Firestore stays the source of truth and failed
// mirror calls are retried from the sync outbox, never rolled back locally.
package gcal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/servihogar/api/internal/platform/config"
	"github.com/servihogar/api/internal/services"
)

// ErrSyncDisabled is returned when the client is constructed without credentials.
var ErrSyncDisabled = errors.New("gcal: calendar sync is disabled")

// Client wraps the Calendar API for the event mirror operations the outbox drains.
type Client struct {
	events   eventsAPI
	timezone *time.Location
}

// eventsAPI narrows the generated service surface so tests can stub it.
type eventsAPI interface {
	Insert(ctx context.Context, calendarID string, event *calendar.Event) (*calendar.Event, error)
	Patch(ctx context.Context, calendarID, eventID string, event *calendar.Event) (*calendar.Event, error)
	Move(ctx context.Context, calendarID, eventID, destinationID string) (*calendar.Event, error)
	List(ctx context.Context, calendarID string, from time.Time, max int64) ([]*calendar.Event, error)
}

type googleEventsAPI struct {
	svc *calendar.Service
}

func (g googleEventsAPI) Insert(ctx context.Context, calendarID string, event *calendar.Event) (*calendar.Event, error) {
	return g.svc.Events.Insert(calendarID, event).Context(ctx).Do()
}

func (g googleEventsAPI) Patch(ctx context.Context, calendarID, eventID string, event *calendar.Event) (*calendar.Event, error) {
	return g.svc.Events.Patch(calendarID, eventID, event).Context(ctx).Do()
}

func (g googleEventsAPI) Move(ctx context.Context, calendarID, eventID, destinationID string) (*calendar.Event, error) {
	return g.svc.Events.Move(calendarID, eventID, destinationID).Context(ctx).Do()
}

func (g googleEventsAPI) List(ctx context.Context, calendarID string, from time.Time, max int64) ([]*calendar.Event, error) {
	resp, err := g.svc.Events.List(calendarID).
		TimeMin(from.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(max).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// NewClient authenticates with the service-account key in cfg and impersonates the
// business calendar owner. Returns ErrSyncDisabled when no credentials are configured.
func NewClient(ctx context.Context, cfg config.CalendarSyncConfig, timezone *time.Location) (*Client, error) {
	if strings.TrimSpace(cfg.CredentialsFile) == "" {
		return nil, ErrSyncDisabled
	}
	if timezone == nil {
		return nil, errors.New("gcal: timezone is required")
	}

	key, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("gcal: read credentials: %w", err)
	}

	jwtCfg, err := google.JWTConfigFromJSON(key, calendar.CalendarEventsScope)
	if err != nil {
		return nil, fmt.Errorf("gcal: parse credentials: %w", err)
	}
	if subject := strings.TrimSpace(cfg.ImpersonateUser); subject != "" {
		jwtCfg.Subject = subject
	}

	svc, err := calendar.NewService(ctx, option.WithTokenSource(jwtCfg.TokenSource(ctx)))
	if err != nil {
		return nil, fmt.Errorf("gcal: build calendar service: %w", err)
	}

	return &Client{events: googleEventsAPI{svc: svc}, timezone: timezone}, nil
}

// CreateEvent inserts a mirror event and returns its Calendar event id.
func (c *Client) CreateEvent(ctx context.Context, calendarID string, fields map[string]any) (string, error) {
	event, err := c.eventFromFields(fields)
	if err != nil {
		return "", err
	}
	created, err := c.events.Insert(ctx, calendarID, event)
	if err != nil {
		return "", fmt.Errorf("gcal: insert event: %w", err)
	}
	return created.Id, nil
}

// PatchEvent applies only the provided fields to an existing mirror event.
func (c *Client) PatchEvent(ctx context.Context, calendarID, eventID string, fields map[string]any) error {
	event, err := c.eventFromFields(fields)
	if err != nil {
		return err
	}
	if _, err := c.events.Patch(ctx, calendarID, eventID, event); err != nil {
		return fmt.Errorf("gcal: patch event: %w", err)
	}
	return nil
}

// MoveEvent relocates a mirror event to another technician's calendar and returns
// the event id under the destination calendar.
func (c *Client) MoveEvent(ctx context.Context, calendarID, eventID, destinationID string) (string, error) {
	moved, err := c.events.Move(ctx, calendarID, eventID, destinationID)
	if err != nil {
		return "", fmt.Errorf("gcal: move event: %w", err)
	}
	return moved.Id, nil
}

// ListUpcomingEvents returns at most limit events starting at or after from,
// ordered by start time. All-day entries carry no DateTime and are skipped;
// the mirror only ever writes timed events.
func (c *Client) ListUpcomingEvents(ctx context.Context, calendarID string, from time.Time, limit int) ([]services.UpcomingEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	items, err := c.events.List(ctx, calendarID, from.In(c.timezone), int64(limit))
	if err != nil {
		return nil, fmt.Errorf("gcal: list events: %w", err)
	}

	events := make([]services.UpcomingEvent, 0, len(items))
	for _, item := range items {
		if item == nil || item.Start == nil || item.Start.DateTime == "" {
			continue
		}
		start, err := time.Parse(time.RFC3339, item.Start.DateTime)
		if err != nil {
			return nil, fmt.Errorf("gcal: event %s start: %w", item.Id, err)
		}
		event := services.UpcomingEvent{
			EventID:  item.Id,
			Summary:  item.Summary,
			Location: item.Location,
			Start:    start,
		}
		if item.End != nil && item.End.DateTime != "" {
			end, err := time.Parse(time.RFC3339, item.End.DateTime)
			if err != nil {
				return nil, fmt.Errorf("gcal: event %s end: %w", item.Id, err)
			}
			event.End = end
		}
		events = append(events, event)
	}
	return events, nil
}

// IsNotFound reports whether the mirror call failed because the remote event or
// calendar no longer exists. The drainer treats these as terminal.
func IsNotFound(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 404 || apiErr.Code == 410
	}
	return false
}

func (c *Client) eventFromFields(fields map[string]any) (*calendar.Event, error) {
	event := &calendar.Event{}

	if v, ok := fields["summary"]; ok {
		event.Summary, _ = v.(string)
	}
	if v, ok := fields["description"]; ok {
		event.Description, _ = v.(string)
	}
	if v, ok := fields["location"]; ok {
		event.Location, _ = v.(string)
	}

	start, hasStart, err := fieldTime(fields, "start")
	if err != nil {
		return nil, err
	}
	end, hasEnd, err := fieldTime(fields, "end")
	if err != nil {
		return nil, err
	}
	if hasStart != hasEnd {
		return nil, errors.New("gcal: start and end must be set together")
	}
	if hasStart {
		event.Start = &calendar.EventDateTime{
			DateTime: start.In(c.timezone).Format(time.RFC3339),
			TimeZone: c.timezone.String(),
		}
		event.End = &calendar.EventDateTime{
			DateTime: end.In(c.timezone).Format(time.RFC3339),
			TimeZone: c.timezone.String(),
		}
	}

	return event, nil
}

func fieldTime(fields map[string]any, key string) (time.Time, bool, error) {
	raw, ok := fields[key]
	if !ok || raw == nil {
		return time.Time{}, false, nil
	}
	switch v := raw.(type) {
	case time.Time:
		return v, true, nil
	case string:
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("gcal: field %s: %w", key, err)
		}
		return parsed, true, nil
	default:
		return time.Time{}, false, fmt.Errorf("gcal: field %s has unsupported type %T", key, raw)
	}
}
