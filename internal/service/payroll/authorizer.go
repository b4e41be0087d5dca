package payroll

import (
	"strings"

	"github.com/cmlabs-hris/studio-payroll/internal/domain/payroll"
	"github.com/cmlabs-hris/studio-payroll/internal/domain/user"
)

// Authorizer decides who holds elevated payroll privilege: any configured role,
// or any configured position regardless of role.
type Authorizer struct {
	roles     map[string]struct{}
	positions map[string]struct{}
}

func NewAuthorizer(roles, positions []string) *Authorizer {
	a := &Authorizer{
		roles:     make(map[string]struct{}, len(roles)),
		positions: make(map[string]struct{}, len(positions)),
	}
	for _, r := range roles {
		if key := normalizeKey(r); key != "" {
			a.roles[key] = struct{}{}
		}
	}
	for _, p := range positions {
		if key := normalizeKey(p); key != "" {
			a.positions[key] = struct{}{}
		}
	}
	return a
}

func (a *Authorizer) IsPrivileged(actor user.Actor) bool {
	return a.isPrivileged(string(actor.Role), actor.Position)
}

// IsPrivilegedEmployee applies the same rule to a directory profile.
func (a *Authorizer) IsPrivilegedEmployee(emp payroll.EmployeeProfile) bool {
	return a.isPrivileged(emp.Role, emp.Position)
}

// Require returns a ForbiddenError naming the actor and action when the actor lacks privilege.
func (a *Authorizer) Require(actor user.Actor, action string) error {
	if a.IsPrivileged(actor) {
		return nil
	}
	return &payroll.ForbiddenError{UserID: actor.UserID, Role: string(actor.Role), Action: action}
}

func (a *Authorizer) isPrivileged(role, position string) bool {
	if _, ok := a.roles[normalizeKey(role)]; ok {
		return true
	}
	if position == "" {
		return false
	}
	_, ok := a.positions[normalizeKey(position)]
	return ok
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
