// Package authz decides what an authenticated caller may do.  Routes ask
// Actor.Can for the action they perform instead of checking roles.
package authz

import "strings"

// Action is a capability a route requires.
type Action string

const (
	ActionBook           Action = "reservation.create"
	ActionReadAny        Action = "reservation.read_any"
	ActionCancelAny      Action = "reservation.cancel_any"
	ActionConfirmPayment Action = "reservation.confirm"
	ActionManageSlots    Action = "slot.manage"
	ActionApproveHolds   Action = "hold.approve"
)

// Role is the role claim carried by an access token.
type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleManager  Role = "MANAGER"
	// RoleSystem is used by collaborators such as the checkout service.
	RoleSystem Role = "SYSTEM"
)

var grants = map[Role][]Action{
	RoleCustomer: {ActionBook},
	RoleManager: {
		ActionBook, ActionReadAny, ActionCancelAny,
		ActionManageSlots, ActionApproveHolds,
	},
	RoleSystem: {ActionReadAny, ActionCancelAny, ActionConfirmPayment},
}

// ParseRole normalizes a role claim.  Unknown roles come back with ok false.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	_, ok := grants[r]
	return r, ok
}

// Actor is whoever performs a request.
type Actor interface {
	// ID identifies the actor for ownership checks and rate limit keys.
	ID() string
	Can(a Action) bool
}

// Principal is an Actor backed by a token subject and role.
type Principal struct {
	id   string
	role Role
}

// NewPrincipal returns the actor for subject id acting with role.
func NewPrincipal(id string, role Role) Principal {
	return Principal{id: id, role: role}
}

func (p Principal) ID() string { return p.id }
func (p Principal) Role() Role { return p.role }

func (p Principal) Can(a Action) bool {
	for _, g := range grants[p.role] {
		if g == a {
			return true
		}
	}
	return false
}

// Anonymous is the actor of unauthenticated requests.  It has an empty ID
// and can do nothing that requires a capability.
type Anonymous struct{}

func (Anonymous) ID() string      { return "" }
func (Anonymous) Can(Action) bool { return false }

// Owns reports whether actor may act on a resource belonging to ownerRef,
// either as its owner or through the capability any.
func Owns(actor Actor, ownerRef string, any Action) bool {
	if actor.Can(any) {
		return true
	}
	id := actor.ID()
	return id != "" && id == ownerRef
}
