package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/microcosm-cc/bluemonday"

	domain "github.com/servihogar/api/internal/domain"
	"github.com/servihogar/api/internal/platform/httpx"
	"github.com/servihogar/api/internal/services"
)

const (
	defaultBookingRateLimit  = 10
	defaultBookingRateWindow = time.Minute
)

// PublicBookingHandlers serves the unauthenticated booking form. Submitted text
// is sanitized and the resulting order always lands in Por Confirmar.
type PublicBookingHandlers struct {
	orders    services.ServiceOrderService
	sanitizer *bluemonday.Policy
	limiter   rateLimiter
}

// PublicBookingOption customises PublicBookingHandlers construction.
type PublicBookingOption func(*PublicBookingHandlers)

// WithBookingRateLimiter overrides the default per-IP submission limiter.
func WithBookingRateLimiter(limiter rateLimiter) PublicBookingOption {
	return func(h *PublicBookingHandlers) {
		h.limiter = limiter
	}
}

func NewPublicBookingHandlers(orders services.ServiceOrderService, opts ...PublicBookingOption) *PublicBookingHandlers {
	h := &PublicBookingHandlers{
		orders:    orders,
		sanitizer: bluemonday.StrictPolicy(),
		limiter:   newSimpleRateLimiter(defaultBookingRateLimit, defaultBookingRateWindow, nil),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers the /public endpoints.
func (h *PublicBookingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/booking", h.submitBooking)
}

type publicBookingRequest struct {
	Title           string `json:"title"`
	CustomerName    string `json:"customerName"`
	CustomerPhone   string `json:"customerPhone"`
	CustomerAddress string `json:"customerAddress"`
	CustomerEmail   string `json:"customerEmail"`
	ApplianceType   string `json:"applianceType"`
	IssueDetail     string `json:"issueDetail"`
	CheckupOnly     bool   `json:"checkupOnly"`
	CalendarID      string `json:"calendarId"`
	Start           string `json:"start"`
}

func (h *PublicBookingHandlers) submitBooking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.limiter != nil && !h.limiter.Allow(clientAddress(r)) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many booking attempts, try again later", http.StatusTooManyRequests))
		return
	}

	var req publicBookingRequest
	if err := decodeBody(r, defaultBodyLimit, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	draft := services.OrderDraft{
		Title:           h.clean(req.Title),
		CustomerName:    h.clean(req.CustomerName),
		CustomerPhone:   h.clean(req.CustomerPhone),
		CustomerAddress: h.clean(req.CustomerAddress),
		CustomerEmail:   h.clean(req.CustomerEmail),
		ApplianceType:   h.clean(req.ApplianceType),
		IssueDetail:     h.clean(req.IssueDetail),
		CheckupOnly:     req.CheckupOnly,
		CalendarID:      strings.TrimSpace(req.CalendarID),
	}
	if raw := strings.TrimSpace(req.Start); raw != "" {
		start, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "start must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		draft.Start = &start
	}

	order, err := h.orders.AddUnconfirmed(ctx, services.PublicBookingCommand{Draft: draft})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	// The public form only ever learns the folio, never internal state.
	writeJSONResponse(w, http.StatusCreated, publicBookingPayload{
		OrderNumber: order.OrderNumber,
		Status:      string(domain.StatusUnconfirmed),
	})
}

func (h *PublicBookingHandlers) clean(value string) string {
	return strings.TrimSpace(h.sanitizer.Sanitize(value))
}

func clientAddress(r *http.Request) string {
	if r == nil {
		return ""
	}
	// chi's RealIP middleware rewrites RemoteAddr from the forwarding headers.
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx > 0 {
		addr = addr[:idx]
	}
	return addr
}

type publicBookingPayload struct {
	OrderNumber string `json:"orderNumber"`
	Status      string `json:"status"`
}
