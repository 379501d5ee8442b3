package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lifelink/copilot/internal/db"
	"github.com/lifelink/copilot/internal/fault"
)

// Store persists conversation messages. All operations require a tenant ID.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Append inserts a message and assigns it the next sequence number for its
// session. The sequence is computed inside the insert transaction, so two
// concurrent appends to the same session serialize at the database instead
// of racing on timestamps.
func (s *Store) Append(ctx context.Context, msg Message) (*Message, error) {
	if msg.TenantID == "" {
		return nil, fault.New(fault.KindValidation, "message requires tenant_id")
	}
	if msg.SessionID == "" {
		return nil, fault.New(fault.KindValidation, "message requires session_id")
	}
	if msg.Content == "" {
		return nil, fault.New(fault.KindValidation, "message requires content")
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}

	var toolCalls sql.NullString
	if msg.ToolCalls != nil {
		b, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return nil, fmt.Errorf("marshalling tool calls: %w", err)
		}
		toolCalls = sql.NullString{String: string(b), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) + 1
		FROM conversation_messages
		WHERE tenant_id = ? AND session_id = ?`,
		msg.TenantID, msg.SessionID,
	).Scan(&seq)
	if err != nil {
		return nil, fmt.Errorf("assigning sequence: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversation_messages (
			id, tenant_id, user_id, session_id, seq, role, content, tool_calls
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.TenantID, msg.UserID, msg.SessionID, seq,
		string(msg.Role), msg.Content, toolCalls,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing message: %w", err)
	}

	msg.Seq = seq
	return &msg, nil
}

// Recent returns the last limit messages of a session in ascending sequence
// order, ready to replay as model context.
func (s *Store) Recent(ctx context.Context, tenantID, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, user_id, session_id, seq, role, content, tool_calls, created_at
		FROM (
			SELECT * FROM conversation_messages
			WHERE tenant_id = ? AND session_id = ?
			ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC`,
		tenantID, sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// Sessions lists a user's conversation sessions, most recent first.
func (s *Store) Sessions(ctx context.Context, tenantID, userID string, limit, offset int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, COUNT(*), MAX(created_at)
		FROM conversation_messages
		WHERE tenant_id = ? AND user_id = ?
		GROUP BY session_id
		ORDER BY MAX(created_at) DESC
		LIMIT ? OFFSET ?`,
		tenantID, userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionSummary
	for rows.Next() {
		var (
			summary SessionSummary
			last    string
		)
		if err := rows.Scan(&summary.SessionID, &summary.MessageCount, &last); err != nil {
			return nil, err
		}
		summary.LastMessageAt = parseTime(last)
		sessions = append(sessions, summary)
	}
	return sessions, rows.Err()
}

// Clear removes a session's transcript within a tenant. Returns the number
// of deleted messages.
func (s *Store) Clear(ctx context.Context, tenantID, sessionID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM conversation_messages WHERE tenant_id = ? AND session_id = ?",
		tenantID, sessionID,
	)
	if err != nil {
		return 0, fmt.Errorf("clearing session: %w", err)
	}
	return res.RowsAffected()
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	var messages []Message
	for rows.Next() {
		var (
			msg       Message
			role      string
			toolCalls sql.NullString
			createdAt string
		)
		err := rows.Scan(
			&msg.ID, &msg.TenantID, &msg.UserID, &msg.SessionID, &msg.Seq,
			&role, &msg.Content, &toolCalls, &createdAt,
		)
		if err != nil {
			return nil, err
		}
		msg.Role = Role(role)
		msg.CreatedAt = parseTime(createdAt)
		if toolCalls.Valid {
			if err := json.Unmarshal([]byte(toolCalls.String), &msg.ToolCalls); err != nil {
				msg.ToolCalls = nil
			}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(time.DateTime, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}
