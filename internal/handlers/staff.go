package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/servihogar/api/internal/domain"
	"github.com/servihogar/api/internal/platform/auth"
	"github.com/servihogar/api/internal/platform/httpx"
	"github.com/servihogar/api/internal/services"
)

// StaffHandlers exposes staff-member management. Writes are admin-only and the
// delete endpoint triggers the calendar/order cascade inside the service.
type StaffHandlers struct {
	authn *auth.Authenticator
	staff services.StaffService
}

func NewStaffHandlers(authn *auth.Authenticator, staff services.StaffService) *StaffHandlers {
	return &StaffHandlers{
		authn: authn,
		staff: staff,
	}
}

// Routes registers the /staff endpoints.
func (h *StaffHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.listStaff)
	r.Post("/", h.createStaff)
	r.Get("/{staffID}", h.getStaff)
	r.Patch("/{staffID}", h.updateStaff)
	r.Delete("/{staffID}", h.deleteStaff)
}

type createStaffRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	Role  string `json:"role"`
}

type updateStaffRequest struct {
	Name              *string `json:"name"`
	Phone             *string `json:"phone"`
	Role              *string `json:"role"`
	Active            *bool   `json:"active"`
	PrimaryCalendarID *string `json:"primaryCalendarId"`
	ClearPrimary      bool    `json:"clearPrimary"`
}

func (h *StaffHandlers) listStaff(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	members, err := h.staff.List(ctx, actor)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	items := make([]staffPayload, 0, len(members))
	for _, member := range members {
		items = append(items, buildStaffPayload(member))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

func (h *StaffHandlers) createStaff(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req createStaffRequest
	if err := decodeBody(r, defaultBodyLimit, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	member, err := h.staff.Create(ctx, services.CreateStaffCommand{
		Actor: actor,
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
		Role:  domain.StaffRole(strings.TrimSpace(req.Role)),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildStaffPayload(member))
}

func (h *StaffHandlers) getStaff(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	staffID := strings.TrimSpace(chi.URLParam(r, "staffID"))
	if staffID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "staff id is required", http.StatusBadRequest))
		return
	}

	member, err := h.staff.Get(ctx, actor, staffID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildStaffPayload(member))
}

func (h *StaffHandlers) updateStaff(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	staffID := strings.TrimSpace(chi.URLParam(r, "staffID"))
	if staffID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "staff id is required", http.StatusBadRequest))
		return
	}

	var req updateStaffRequest
	if err := decodeBody(r, defaultBodyLimit, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cmd := services.UpdateStaffCommand{
		Actor:             actor,
		StaffID:           staffID,
		Name:              req.Name,
		Phone:             req.Phone,
		Active:            req.Active,
		PrimaryCalendarID: req.PrimaryCalendarID,
		ClearPrimary:      req.ClearPrimary,
	}
	if req.Role != nil {
		role := domain.StaffRole(strings.TrimSpace(*req.Role))
		cmd.Role = &role
	}

	member, err := h.staff.Update(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildStaffPayload(member))
}

func (h *StaffHandlers) deleteStaff(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	staffID := strings.TrimSpace(chi.URLParam(r, "staffID"))
	if staffID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "staff id is required", http.StatusBadRequest))
		return
	}

	if err := h.staff.Delete(ctx, services.DeleteStaffCommand{Actor: actor, StaffID: staffID}); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type staffPayload struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Email             string `json:"email"`
	Phone             string `json:"phone,omitempty"`
	Role              string `json:"role"`
	PrimaryCalendarID string `json:"primaryCalendarId,omitempty"`
	Active            bool   `json:"active"`
	CreatedAt         string `json:"createdAt"`
	UpdatedAt         string `json:"updatedAt"`
}

func buildStaffPayload(member services.Staff) staffPayload {
	return staffPayload{
		ID:                member.ID,
		Name:              member.Name,
		Email:             member.Email,
		Phone:             member.Phone,
		Role:              string(member.Role),
		PrimaryCalendarID: stringValue(member.PrimaryCalendarID),
		Active:            member.Active,
		CreatedAt:         formatTimestamp(member.CreatedAt),
		UpdatedAt:         formatTimestamp(member.UpdatedAt),
	}
}
