package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"encoding/json"

	domain "github.com/servihogar/api/internal/domain"
	"github.com/servihogar/api/internal/platform/auth"
	"github.com/servihogar/api/internal/platform/httpx"
	"github.com/servihogar/api/internal/services"
)

const defaultBodyLimit = 64 * 1024

var (
	errEmptyBody    = errors.New("request body is empty")
	errBodyTooLarge = errors.New("request body too large")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultBodyLimit
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func decodeBody(r *http.Request, limit int64, target any) error {
	data, err := readLimitedBody(r, limit)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is not valid JSON", http.StatusBadRequest))
	}
}

// actorFromContext maps the authenticated identity onto a service actor. The
// strongest role wins when the token carries several.
func actorFromContext(ctx context.Context) (services.Actor, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		return services.Actor{}, false
	}
	role := domain.RoleTechnician
	if identity.HasRole(auth.RoleSecretary) {
		role = domain.RoleSecretary
	}
	if identity.HasRole(auth.RoleAdmin) {
		role = domain.RoleAdmin
	}
	return services.Actor{ID: strings.TrimSpace(identity.UID), Role: role}, true
}

func requireActor(w http.ResponseWriter, r *http.Request) (services.Actor, bool) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
	}
	return actor, ok
}

// writeServiceError translates typed service errors into the canonical error
// envelope. Unknown errors come back as a 500 without internal detail.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "operation not permitted for this role", http.StatusForbidden))
	case errors.Is(err, services.ErrOrderNotFound),
		errors.Is(err, services.ErrCustomerNotFound),
		errors.Is(err, services.ErrCalendarNotFound),
		errors.Is(err, services.ErrStaffNotFound),
		errors.Is(err, services.ErrScheduleNotFound),
		errors.Is(err, services.ErrAvailabilityNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidInput),
		errors.Is(err, services.ErrCustomerInvalidInput),
		errors.Is(err, services.ErrCalendarInvalidInput),
		errors.Is(err, services.ErrStaffInvalidInput),
		errors.Is(err, services.ErrScheduleInvalidInput),
		errors.Is(err, services.ErrAvailabilityInvalidInput),
		errors.Is(err, services.ErrOrderMissingProof):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidState),
		errors.Is(err, services.ErrOrderConflict),
		errors.Is(err, services.ErrCustomerDuplicate),
		errors.Is(err, services.ErrStaffDuplicateEmail),
		errors.Is(err, services.ErrCalendarPrimary):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrSyncGatewayUnset):
		httpx.WriteError(ctx, w, httpx.NewError("not_ready", "calendar sync is not configured", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrProofStoreUnset):
		httpx.WriteError(ctx, w, httpx.NewError("not_ready", "completion photo storage is not configured", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "internal error", http.StatusInternalServerError))
	}
}

func parseTimeParam(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("timestamp is empty")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts.UTC(), nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts.UTC(), nil
	}
	return time.Time{}, errors.New("must be RFC3339 timestamp")
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimestampPtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTimestamp(*t)
}

func stringValue(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
