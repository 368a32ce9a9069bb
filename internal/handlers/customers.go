package handlers

import (
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
	defaultCustomerPageSize = 20
	maxCustomerPageSize     = 100
)

// CustomerHandlers exposes the customer registry.
type CustomerHandlers struct {
	authn     *auth.Authenticator
	customers services.CustomerService
}

func NewCustomerHandlers(authn *auth.Authenticator, customers services.CustomerService) *CustomerHandlers {
	return &CustomerHandlers{
		authn:     authn,
		customers: customers,
	}
}

// Routes registers the /customers endpoints.
func (h *CustomerHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.listCustomers)
	r.Post("/", h.createCustomer)
	r.Get("/{customerID}", h.getCustomer)
	r.Patch("/{customerID}", h.updateCustomer)
}

type customerRequest struct {
	Name      string   `json:"name"`
	Phone     string   `json:"phone"`
	Address   string   `json:"address"`
	Email     string   `json:"email"`
	TaxID     string   `json:"taxId"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type updateCustomerRequest struct {
	Name      *string  `json:"name"`
	Phone     *string  `json:"phone"`
	Address   *string  `json:"address"`
	Email     *string  `json:"email"`
	TaxID     *string  `json:"taxId"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (h *CustomerHandlers) listCustomers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	pageSize := defaultCustomerPageSize
	if sizeRaw := strings.TrimSpace(query.Get("page_size")); sizeRaw != "" {
		size, err := strconv.Atoi(sizeRaw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be an integer", http.StatusBadRequest))
			return
		}
		switch {
		case size <= 0:
			pageSize = defaultCustomerPageSize
		case size > maxCustomerPageSize:
			pageSize = maxCustomerPageSize
		default:
			pageSize = size
		}
	}

	page, err := h.customers.List(ctx, actor, services.CustomerListFilter{
		Search: strings.TrimSpace(query.Get("search")),
		Pagination: domain.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	items := make([]customerPayload, 0, len(page.Items))
	for _, customer := range page.Items {
		items = append(items, buildCustomerPayload(customer))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"items":           items,
		"next_page_token": page.NextPageToken,
	})
}

func (h *CustomerHandlers) createCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req customerRequest
	if err := decodeBody(r, defaultBodyLimit, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cmd := services.CreateCustomerCommand{
		Actor:   actor,
		Name:    req.Name,
		Phone:   req.Phone,
		Address: req.Address,
		Email:   req.Email,
		TaxID:   req.TaxID,
	}
	if req.Latitude != nil && req.Longitude != nil {
		cmd.Location = &domain.GeoPoint{Latitude: *req.Latitude, Longitude: *req.Longitude}
	}

	customer, err := h.customers.Create(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildCustomerPayload(customer))
}

func (h *CustomerHandlers) getCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	customerID := strings.TrimSpace(chi.URLParam(r, "customerID"))
	if customerID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "customer id is required", http.StatusBadRequest))
		return
	}

	customer, err := h.customers.Get(ctx, actor, customerID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCustomerPayload(customer))
}

func (h *CustomerHandlers) updateCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	customerID := strings.TrimSpace(chi.URLParam(r, "customerID"))
	if customerID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "customer id is required", http.StatusBadRequest))
		return
	}

	var req updateCustomerRequest
	if err := decodeBody(r, defaultBodyLimit, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cmd := services.UpdateCustomerCommand{
		Actor:      actor,
		CustomerID: customerID,
		Name:       req.Name,
		Phone:      req.Phone,
		Address:    req.Address,
		Email:      req.Email,
		TaxID:      req.TaxID,
	}
	if req.Latitude != nil && req.Longitude != nil {
		cmd.Location = &domain.GeoPoint{Latitude: *req.Latitude, Longitude: *req.Longitude}
	}

	customer, err := h.customers.Update(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCustomerPayload(customer))
}

type customerPayload struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Phone          string   `json:"phone"`
	Address        string   `json:"address,omitempty"`
	Email          string   `json:"email,omitempty"`
	TaxID          string   `json:"taxId,omitempty"`
	Latitude       *float64 `json:"latitude,omitempty"`
	Longitude      *float64 `json:"longitude,omitempty"`
	ServiceHistory []string `json:"serviceHistory,omitempty"`
	CreatedAt      string   `json:"createdAt"`
	UpdatedAt      string   `json:"updatedAt"`
}

func buildCustomerPayload(customer services.Customer) customerPayload {
	return customerPayload{
		ID:             customer.ID,
		Name:           customer.Name,
		Phone:          customer.Phone,
		Address:        customer.Address,
		Email:          stringValue(customer.Email),
		TaxID:          stringValue(customer.TaxID),
		Latitude:       customer.Latitude,
		Longitude:      customer.Longitude,
		ServiceHistory: customer.ServiceHistory,
		CreatedAt:      formatTimestamp(customer.CreatedAt),
		UpdatedAt:      formatTimestamp(customer.UpdatedAt),
	}
}
