package services

import (
	"errors"
	"fmt"
	"strings"

	domain "github.com/servihogar/api/internal/domain"
)

// ErrForbidden is returned whenever an actor lacks the capability a mutation
// requires. Every service checks capabilities through Authorize before touching
// the repositories, so authorization failures are uniform and typed.
var ErrForbidden = errors.New("authorization: forbidden")

// Actor identifies who is performing an operation.
type Actor struct {
	ID   string
	Role domain.StaffRole
}

// SystemActor attributes mutations performed by background engines.
func SystemActor() Actor {
	return Actor{ID: domain.SystemActorID, Role: domain.RoleAdmin}
}

// PublicFormActor attributes orders submitted through the public booking form.
func PublicFormActor() Actor {
	return Actor{ID: domain.PublicFormActorID, Role: domain.RoleTechnician}
}

// Capability names one guarded operation class.
type Capability string

const (
	CapOrderRead      Capability = "order.read"
	CapOrderCreate    Capability = "order.create"
	CapOrderConfirm   Capability = "order.confirm"
	CapOrderEdit      Capability = "order.edit"
	CapOrderStatus    Capability = "order.status"
	CapOrderCancel    Capability = "order.cancel"
	CapOrderArchive   Capability = "order.archive"
	CapOrderComplete  Capability = "order.complete"
	CapOrderPurge     Capability = "order.purge"
	CapCustomerRead   Capability = "customer.read"
	CapCustomerWrite  Capability = "customer.write"
	CapCalendarRead   Capability = "calendar.read"
	CapCalendarWrite  Capability = "calendar.write"
	CapStaffRead      Capability = "staff.read"
	CapStaffWrite     Capability = "staff.write"
	CapMaintenanceRW  Capability = "maintenance.write"
	CapMaintenanceRun Capability = "maintenance.run"
)

// capabilityRoles lists the minimum role set per capability. Admin implicitly
// holds every capability.
var capabilityRoles = map[Capability][]domain.StaffRole{
	CapOrderRead:      {domain.RoleTechnician, domain.RoleSecretary},
	CapOrderCreate:    {domain.RoleSecretary},
	CapOrderConfirm:   {domain.RoleSecretary},
	CapOrderEdit:      {domain.RoleSecretary},
	CapOrderStatus:    {domain.RoleTechnician, domain.RoleSecretary},
	CapOrderCancel:    {domain.RoleSecretary},
	CapOrderArchive:   {domain.RoleSecretary},
	CapOrderComplete:  {domain.RoleTechnician, domain.RoleSecretary},
	CapOrderPurge:     {},
	CapCustomerRead:   {domain.RoleTechnician, domain.RoleSecretary},
	CapCustomerWrite:  {domain.RoleSecretary},
	CapCalendarRead:   {domain.RoleTechnician, domain.RoleSecretary},
	CapCalendarWrite:  {},
	CapStaffRead:      {domain.RoleSecretary},
	CapStaffWrite:     {},
	CapMaintenanceRW:  {domain.RoleSecretary},
	CapMaintenanceRun: {},
}

// Authorize checks that the actor holds the capability, returning a typed
// ErrForbidden wrap when it does not.
func Authorize(actor Actor, capability Capability) error {
	if strings.TrimSpace(actor.ID) == "" {
		return fmt.Errorf("%w: anonymous actor", ErrForbidden)
	}
	if actor.Role == domain.RoleAdmin {
		return nil
	}
	roles, ok := capabilityRoles[capability]
	if !ok {
		return fmt.Errorf("%w: unknown capability %s", ErrForbidden, capability)
	}
	for _, role := range roles {
		if actor.Role == role {
			return nil
		}
	}
	return fmt.Errorf("%w: role %s lacks %s", ErrForbidden, actor.Role, capability)
}
