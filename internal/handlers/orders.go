package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/servihogar/api/internal/domain"
	"github.com/servihogar/api/internal/platform/auth"
	"github.com/servihogar/api/internal/platform/httpx"
	"github.com/servihogar/api/internal/services"
)

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
	maxOrderBodySize     = 64 * 1024
	// Completion photos travel as base64 data URIs; allow a few megabytes.
	maxCompleteBodySize = 8 * 1024 * 1024
)

// OrderHandlers exposes the service-order lifecycle endpoints for staff.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.ServiceOrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.ServiceOrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.listOrders)
	r.Post("/", h.createOrder)
	r.Get("/{orderID}", h.getOrder)
	r.Patch("/{orderID}", h.updateOrder)
	r.Post("/{orderID}:confirm", h.confirmOrder)
	r.Post("/{orderID}:status", h.updateStatus)
	r.Post("/{orderID}:cancel", h.cancelOrder)
	r.Post("/{orderID}:archive", h.archiveOrder)
	r.Post("/{orderID}:complete", h.completeOrder)
	r.Put("/{orderID}:reminders", h.updateReminders)
}

type orderDraftRequest struct {
	Title           string   `json:"title"`
	CustomerName    string   `json:"customerName"`
	CustomerPhone   string   `json:"customerPhone"`
	CustomerAddress string   `json:"customerAddress"`
	CustomerEmail   string   `json:"customerEmail"`
	ApplianceType   string   `json:"applianceType"`
	IssueDetail     string   `json:"issueDetail"`
	CheckupOnly     bool     `json:"checkupOnly"`
	CalendarID      string   `json:"calendarId"`
	Start           string   `json:"start"`
	Latitude        *float64 `json:"latitude"`
	Longitude       *float64 `json:"longitude"`
}

func (req orderDraftRequest) draft() (services.OrderDraft, error) {
	draft := services.OrderDraft{
		Title:           req.Title,
		CustomerName:    req.CustomerName,
		CustomerPhone:   req.CustomerPhone,
		CustomerAddress: req.CustomerAddress,
		CustomerEmail:   req.CustomerEmail,
		ApplianceType:   req.ApplianceType,
		IssueDetail:     req.IssueDetail,
		CheckupOnly:     req.CheckupOnly,
		CalendarID:      req.CalendarID,
	}
	if raw := strings.TrimSpace(req.Start); raw != "" {
		start, err := parseTimeParam(raw)
		if err != nil {
			return services.OrderDraft{}, err
		}
		draft.Start = &start
	}
	if req.Latitude != nil && req.Longitude != nil {
		draft.Location = &domain.GeoPoint{Latitude: *req.Latitude, Longitude: *req.Longitude}
	}
	return draft, nil
}

type updateOrderRequest struct {
	Title         *string `json:"title"`
	ApplianceType *string `json:"applianceType"`
	IssueDetail   *string `json:"issueDetail"`
	CheckupOnly   *bool   `json:"checkupOnly"`
	ServiceNotes  *string `json:"serviceNotes"`
	Start         *string `json:"start"`
	ClearStart    bool    `json:"clearStart"`
	CalendarID    *string `json:"calendarId"`
	ClearCalendar bool    `json:"clearCalendar"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type completeOrderRequest struct {
	ServiceNotes string   `json:"serviceNotes"`
	PhotoDataURI string   `json:"photoDataUri"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
}

type remindersRequest struct {
	Reminders []string `json:"reminders"`
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	filter := services.OrderListFilter{
		CalendarID: strings.TrimSpace(query.Get("calendar_id")),
		CustomerID: strings.TrimSpace(query.Get("customer_id")),
	}
	for _, status := range query["status"] {
		if status = strings.TrimSpace(status); status != "" {
			filter.Status = append(filter.Status, status)
		}
	}
	if raw := strings.TrimSpace(query.Get("from")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "from must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		filter.DateRange.From = &ts
	}
	if raw := strings.TrimSpace(query.Get("to")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "to must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		filter.DateRange.To = &ts
	}

	pageSize := defaultOrderPageSize
	if sizeRaw := strings.TrimSpace(query.Get("page_size")); sizeRaw != "" {
		size, err := strconv.Atoi(sizeRaw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be an integer", http.StatusBadRequest))
			return
		}
		switch {
		case size <= 0:
			pageSize = defaultOrderPageSize
		case size > maxOrderPageSize:
			pageSize = maxOrderPageSize
		default:
			pageSize = size
		}
	}
	filter.Pagination = domain.Pagination{
		PageSize:  pageSize,
		PageToken: strings.TrimSpace(query.Get("page_token")),
	}

	page, err := h.orders.List(ctx, actor, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"items":           items,
		"next_page_token": page.NextPageToken,
	})
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req orderDraftRequest
	if err := decodeBody(r, maxOrderBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	draft, err := req.draft()
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "start must be a valid RFC3339 timestamp", http.StatusBadRequest))
		return
	}

	order, err := h.orders.Create(ctx, services.CreateOrderCommand{Actor: actor, Draft: draft})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildOrderPayload(order))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.Get(ctx, actor, orderID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) updateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req updateOrderRequest
	if err := decodeBody(r, maxOrderBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cmd := services.UpdateOrderCommand{
		Actor:         actor,
		OrderID:       orderID,
		Title:         req.Title,
		ApplianceType: req.ApplianceType,
		IssueDetail:   req.IssueDetail,
		CheckupOnly:   req.CheckupOnly,
		ServiceNotes:  req.ServiceNotes,
		ClearStart:    req.ClearStart,
		CalendarID:    req.CalendarID,
		ClearCalendar: req.ClearCalendar,
	}
	if req.Start != nil {
		start, err := parseTimeParam(strings.TrimSpace(*req.Start))
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "start must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		cmd.Start = &start
	}

	order, err := h.orders.Update(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) confirmOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))

	order, err := h.orders.Confirm(ctx, services.ConfirmOrderCommand{Actor: actor, OrderID: orderID})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))

	var req statusRequest
	if err := decodeBody(r, maxOrderBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	order, err := h.orders.UpdateStatus(ctx, services.OrderStatusCommand{
		Actor:   actor,
		OrderID: orderID,
		Target:  domain.OrderStatus(strings.TrimSpace(req.Status)),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))

	var req reasonRequest
	if err := decodeBody(r, maxOrderBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	order, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		Actor:   actor,
		OrderID: orderID,
		Reason:  req.Reason,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) archiveOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))

	// Archiving without a reason is allowed; an absent body means no reason.
	var req reasonRequest
	if err := decodeBody(r, maxOrderBodySize, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeBodyError(ctx, w, err)
		return
	}

	order, err := h.orders.Archive(ctx, services.ArchiveOrderCommand{
		Actor:   actor,
		OrderID: orderID,
		Reason:  req.Reason,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) completeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))

	var req completeOrderRequest
	if err := decodeBody(r, maxCompleteBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cmd := services.CompleteOrderCommand{
		Actor:        actor,
		OrderID:      orderID,
		ServiceNotes: req.ServiceNotes,
		PhotoDataURI: req.PhotoDataURI,
	}
	if req.Latitude != nil && req.Longitude != nil {
		cmd.Location = &domain.GeoPoint{Latitude: *req.Latitude, Longitude: *req.Longitude}
	}

	order, err := h.orders.Complete(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	payload := completedOrderPayload{orderPayload: buildOrderPayload(order)}
	if order.Proof != nil {
		if link, err := services.WhatsAppLink(order.CustomerPhone, services.OrderDocumentMessage(order.OrderNumber, order.Proof.PhotoURL)); err == nil {
			payload.WhatsAppShareURL = link
		}
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

// completedOrderPayload adds the wa.me share link the technician forwards to
// the customer right after closing the visit.
type completedOrderPayload struct {
	orderPayload
	WhatsAppShareURL string `json:"whatsappShareUrl,omitempty"`
}

func (h *OrderHandlers) updateReminders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))

	var req remindersRequest
	if err := decodeBody(r, maxOrderBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	order, err := h.orders.UpdateReminders(ctx, services.UpdateRemindersCommand{
		Actor:     actor,
		OrderID:   orderID,
		Reminders: req.Reminders,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

type orderPayload struct {
	ID              string           `json:"id"`
	OrderNumber     string           `json:"orderNumber"`
	Title           string           `json:"title"`
	Status          string           `json:"status"`
	CustomerID      string           `json:"customerId"`
	CustomerName    string           `json:"customerName"`
	CustomerPhone   string           `json:"customerPhone"`
	CustomerAddress string           `json:"customerAddress,omitempty"`
	CustomerEmail   string           `json:"customerEmail,omitempty"`
	ApplianceType   string           `json:"applianceType,omitempty"`
	IssueDetail     string           `json:"issueDetail,omitempty"`
	CheckupOnly     bool             `json:"checkupOnly"`
	CalendarID      string           `json:"calendarId,omitempty"`
	Start           string           `json:"start,omitempty"`
	End             string           `json:"end,omitempty"`
	GoogleSynced    bool             `json:"googleSynced"`
	ServiceNotes    string           `json:"serviceNotes,omitempty"`
	Reminders       []string         `json:"reminders,omitempty"`
	Proof           *proofPayload    `json:"proof,omitempty"`
	Cancellation    string           `json:"cancellationReason,omitempty"`
	ArchiveReason   string           `json:"archiveReason,omitempty"`
	Rescheduled     int              `json:"rescheduledCount"`
	Version         int64            `json:"version"`
	History         []historyPayload `json:"history"`
	CreatedAt       string           `json:"createdAt"`
	UpdatedAt       string           `json:"updatedAt"`
}

type proofPayload struct {
	PhotoURL  string  `json:"photoUrl"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type historyPayload struct {
	Action    string `json:"action"`
	Timestamp string `json:"timestamp"`
	ActorID   string `json:"actorId"`
	Detail    string `json:"detail,omitempty"`
}

func buildOrderPayload(order services.ServiceOrder) orderPayload {
	payload := orderPayload{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		Title:           order.Title,
		Status:          string(order.Status),
		CustomerID:      order.CustomerID,
		CustomerName:    order.CustomerName,
		CustomerPhone:   order.CustomerPhone,
		CustomerAddress: order.CustomerAddress,
		CustomerEmail:   stringValue(order.CustomerEmail),
		ApplianceType:   order.ApplianceType,
		IssueDetail:     order.IssueDetail,
		CheckupOnly:     order.CheckupOnly,
		CalendarID:      stringValue(order.CalendarID),
		Start:           formatTimestampPtr(order.Start),
		End:             formatTimestampPtr(order.End),
		GoogleSynced:    order.GoogleSynced,
		ServiceNotes:    order.ServiceNotes,
		Reminders:       order.Reminders,
		Cancellation:    stringValue(order.CancellationReason),
		ArchiveReason:   stringValue(order.ArchiveReason),
		Rescheduled:     order.RescheduledCount,
		Version:         order.Version,
		CreatedAt:       formatTimestamp(order.CreatedAt),
		UpdatedAt:       formatTimestamp(order.UpdatedAt),
	}
	if order.Proof != nil {
		payload.Proof = &proofPayload{
			PhotoURL:  order.Proof.PhotoURL,
			Latitude:  order.Proof.Latitude,
			Longitude: order.Proof.Longitude,
		}
	}
	payload.History = make([]historyPayload, 0, len(order.History))
	for _, entry := range order.History {
		payload.History = append(payload.History, historyPayload{
			Action:    entry.Action,
			Timestamp: formatTimestamp(entry.Timestamp),
			ActorID:   entry.ActorID,
			Detail:    entry.Detail,
		})
	}
	return payload
}
