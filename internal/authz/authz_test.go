package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleGrants(t *testing.T) {
	cases := []struct {
		role   Role
		action Action
		want   bool
	}{
		{RoleCustomer, ActionBook, true},
		{RoleCustomer, ActionManageSlots, false},
		{RoleCustomer, ActionApproveHolds, false},
		{RoleManager, ActionManageSlots, true},
		{RoleManager, ActionApproveHolds, true},
		{RoleManager, ActionConfirmPayment, false},
		{RoleSystem, ActionConfirmPayment, true},
		{RoleSystem, ActionBook, false},
		{Role("GUEST"), ActionBook, false},
	}
	for _, tc := range cases {
		p := NewPrincipal("u1", tc.role)
		assert.Equal(t, tc.want, p.Can(tc.action), "%s %s", tc.role, tc.action)
	}
}

func TestParseRole(t *testing.T) {
	r, ok := ParseRole(" manager ")
	assert.True(t, ok)
	assert.Equal(t, RoleManager, r)

	_, ok = ParseRole("OWNER")
	assert.False(t, ok)
}

func TestOwns(t *testing.T) {
	customer := NewPrincipal("cus_1", RoleCustomer)
	assert.True(t, Owns(customer, "cus_1", ActionCancelAny))
	assert.False(t, Owns(customer, "cus_2", ActionCancelAny))
	assert.False(t, Owns(customer, "", ActionCancelAny))
	assert.True(t, Owns(NewPrincipal("m", RoleManager), "cus_2", ActionCancelAny))
	assert.False(t, Owns(Anonymous{}, "", ActionCancelAny))
}
