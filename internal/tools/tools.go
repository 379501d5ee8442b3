// Package tools defines the actions the assistant can take on behalf of a
// user, and the runner that gates each invocation behind the permission
// matrix and, for state-changing tools, a human confirmation step.
package tools

import (
	"context"

	"github.com/lifelink/copilot/internal/audit"
	"github.com/lifelink/copilot/internal/permissions"
)

// Params is a tool's decoded input. The model produces loosely typed
// arguments; tools pull values out through the accessors and validate.
type Params map[string]any

// String returns the string value of key, or empty.
func (p Params) String(key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

// Int returns the integer value of key, or def. JSON decoding yields
// float64 for numbers, so both forms are accepted.
func (p Params) Int(key string, def int) int {
	switch v := p[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}

// StringSlice returns the string values of key.
func (p Params) StringSlice(key string) []string {
	raw, ok := p[key].([]any)
	if !ok {
		if ss, ok := p[key].([]string); ok {
			return ss
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Invocation is the identity and conversation context a tool runs under.
// Confirmed marks an invocation re-entering after human approval; the
// confirmation gate is skipped for it.
type Invocation struct {
	TenantID       string
	UserID         string
	Role           permissions.Role
	ConversationID string
	Confirmed      bool
}

// ConfirmationPrompt is what the user sees before approving a gated action.
type ConfirmationPrompt struct {
	Message string         `json:"message"`
	Action  string         `json:"action"`
	Warning string         `json:"warning,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Result is a successful tool outcome or a pending confirmation request.
// Failures travel as errors, not results.
type Result struct {
	Data                 map[string]any      `json:"data,omitempty"`
	Message              string              `json:"message,omitempty"`
	ConfirmationRequired bool                `json:"confirmation_required,omitempty"`
	ActionID             string              `json:"confirmation_action_id,omitempty"`
	Confirmation         *ConfirmationPrompt `json:"confirmation_details,omitempty"`
	ExecutionTimeMS      int64               `json:"execution_time_ms,omitempty"`
}

// Tool is one action. Execute is only ever reached through the Runner, which
// has already checked the permission matrix and the confirmation gate.
type Tool interface {
	Name() string
	Description() string
	RequiresConfirmation() bool
	Severity() audit.Severity
	Execute(ctx context.Context, inv Invocation, params Params) (*Result, error)
	Prompt(inv Invocation, params Params) ConfirmationPrompt
}
