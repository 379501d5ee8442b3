// Package audit persists the compliance trail: one record per action
// attempt, created pending and moved to exactly one terminal status. Pending
// tool-execution records double as the confirmation queue.
package audit

import "time"

// ActionType describes what kind of action a record captures.
type ActionType string

const (
	ActionQuery         ActionType = "query"
	ActionToolExecution ActionType = "tool_execution"
	ActionConfirmation  ActionType = "confirmation"
)

// Status is the lifecycle state of a record. Confirmed is the transient
// claim between approval and execution outcome; success, failed and
// cancelled are terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether s is a resolved state.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Severity grades a record for review. Critical is reserved for background
// failures after retry exhaustion.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarn     Severity = "warn"
	SeverityCritical Severity = "critical"
)

// Record is a single audit trail entry.
type Record struct {
	ID              string         `json:"id"`
	TenantID        string         `json:"tenant_id"`
	UserID          string         `json:"user_id"`
	ConversationID  string         `json:"conversation_id,omitempty"`
	ActionType      ActionType     `json:"action_type"`
	ToolName        string         `json:"tool_name,omitempty"`
	InputParams     map[string]any `json:"input_params,omitempty"`
	OutputResult    map[string]any `json:"output_result,omitempty"`
	Status          Status         `json:"status"`
	ExecutionTimeMS int64          `json:"execution_time_ms,omitempty"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	Severity        Severity       `json:"severity"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}
