// Package permissions holds the static role/action matrix that gates every
// tool invocation. The matrix is per-action, not hierarchical: a role is
// either in an action's allowed set or it is not. A severity ranking exists
// only to name the minimum required role in denial messages.
package permissions

import (
	"github.com/lifelink/copilot/internal/fault"
)

// Role is a recognized user role.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleManager   Role = "manager"
	RoleOperator  Role = "operator"
	RoleClinician Role = "clinician"
)

// rank orders roles for denial messages only. Permission decisions never
// compare ranks.
var rank = map[Role]int{
	RoleAdmin:     4,
	RoleManager:   3,
	RoleOperator:  2,
	RoleClinician: 1,
}

// Valid reports whether r is a recognized role.
func (r Role) Valid() bool {
	_, ok := rank[r]
	return ok
}

type roleSet map[Role]bool

func roles(rs ...Role) roleSet {
	set := make(roleSet, len(rs))
	for _, r := range rs {
		set[r] = true
	}
	return set
}

// matrix maps action name to its allowed roles. Every action the registry
// exposes must have an entry here; a missing entry is treated as admin-only,
// never as open.
var matrix = map[string]roleSet{
	"list_occurrences":         roles(RoleAdmin, RoleManager, RoleOperator, RoleClinician),
	"get_occurrence_details":   roles(RoleAdmin, RoleManager, RoleOperator, RoleClinician),
	"search_documentation":     roles(RoleAdmin, RoleManager, RoleOperator, RoleClinician),
	"update_occurrence_status": roles(RoleAdmin, RoleManager, RoleOperator),
	"send_team_notification":   roles(RoleAdmin, RoleManager),
	"generate_report":          roles(RoleAdmin, RoleManager),
}

// adminOnly is the fallback for unknown action names.
var adminOnly = roles(RoleAdmin)

// MinimumRequiredRole returns the lowest-ranked role allowed to run action,
// for use in denial messages. Unknown actions report admin.
func MinimumRequiredRole(action string) Role {
	allowed, ok := matrix[action]
	if !ok || len(allowed) == 0 {
		return RoleAdmin
	}

	min := RoleAdmin
	minRank := rank[RoleAdmin] + 1
	for r := range allowed {
		if rank[r] < minRank {
			minRank = rank[r]
			min = r
		}
	}
	return min
}

// Check verifies that role may execute action. It returns a
// fault.KindPermission error on denial; unrecognized roles are always
// denied, even for actions with broad access.
func Check(role Role, action string) error {
	if !role.Valid() {
		return fault.Newf(fault.KindPermission, "unknown role %q", role).WithDetails(map[string]any{
			"user_role": string(role),
			"tool_name": action,
		})
	}

	allowed, ok := matrix[action]
	if !ok {
		allowed = adminOnly
	}

	if !allowed[role] {
		required := MinimumRequiredRole(action)
		return fault.Newf(fault.KindPermission, "insufficient permissions to execute %s", action).WithDetails(map[string]any{
			"required_role": string(required),
			"user_role":     string(role),
			"tool_name":     action,
		})
	}
	return nil
}

// HasPermission is the non-erroring form of Check.
func HasPermission(role Role, action string) bool {
	return Check(role, action) == nil
}

// Allowed returns the set of action names role may execute. The agent uses
// this to decide which tools are offered to the model at all, instead of
// relying only on post-hoc rejection.
func Allowed(role Role) map[string]bool {
	out := make(map[string]bool)
	if !role.Valid() {
		return out
	}
	for action, set := range matrix {
		if set[role] {
			out[action] = true
		}
	}
	return out
}

// Registered reports whether action has a matrix entry. The tool registry
// refuses to register actions without one.
func Registered(action string) bool {
	_, ok := matrix[action]
	return ok
}
