// Package conversation stores chat transcripts per tenant and session.
// Messages carry a per-session sequence number assigned at append time, so
// later turns always see earlier turns in order regardless of clock skew
// between concurrent requests.
package conversation

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one transcript entry.
type Message struct {
	ID        string         `json:"id"`
	TenantID  string         `json:"tenant_id"`
	UserID    string         `json:"user_id"`
	SessionID string         `json:"session_id"`
	Seq       int64          `json:"seq"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	ToolCalls map[string]any `json:"tool_calls,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// SessionSummary describes one conversation session for listing.
type SessionSummary struct {
	SessionID     string    `json:"session_id"`
	MessageCount  int       `json:"message_count"`
	LastMessageAt time.Time `json:"last_message_at"`
}
