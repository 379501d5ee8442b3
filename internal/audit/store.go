package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lifelink/copilot/internal/db"
	"github.com/lifelink/copilot/internal/fault"
)

// Store provides append/update access to audit records. Every read is
// scoped by tenant ID; there is no delete.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Create inserts a new record. Empty IDs get a UUID; empty status defaults
// to pending and empty severity to info. Returns the record ID.
func (s *Store) Create(ctx context.Context, rec Record) (string, error) {
	if rec.TenantID == "" {
		return "", fault.New(fault.KindValidation, "audit record requires tenant_id")
	}
	if rec.UserID == "" {
		return "", fault.New(fault.KindValidation, "audit record requires user_id")
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Status == "" {
		rec.Status = StatusPending
	}
	if rec.Severity == "" {
		rec.Severity = SeverityInfo
	}

	input, err := marshalParams(rec.InputParams)
	if err != nil {
		return "", fmt.Errorf("marshalling input params: %w", err)
	}
	output, err := marshalNullable(rec.OutputResult)
	if err != nil {
		return "", fmt.Errorf("marshalling output result: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, tenant_id, user_id, conversation_id, action_type, tool_name,
			input_params, output_result, status, execution_time_ms,
			error_message, severity
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.TenantID,
		rec.UserID,
		nullString(rec.ConversationID),
		string(rec.ActionType),
		nullString(rec.ToolName),
		input,
		output,
		string(rec.Status),
		nullInt(rec.ExecutionTimeMS),
		nullString(rec.ErrorMessage),
		string(rec.Severity),
	)
	if err != nil {
		return "", fmt.Errorf("inserting audit record: %w", err)
	}
	return rec.ID, nil
}

// Outcome carries the terminal fields written by UpdateStatus.
type Outcome struct {
	Status          Status
	OutputResult    map[string]any
	ErrorMessage    string
	ExecutionTimeMS int64
	Severity        Severity
}

// UpdateStatus moves a record to the given status, writing the outcome
// fields alongside. It never deletes and never rewrites input params.
func (s *Store) UpdateStatus(ctx context.Context, tenantID, id string, out Outcome) error {
	output, err := marshalNullable(out.OutputResult)
	if err != nil {
		return fmt.Errorf("marshalling output result: %w", err)
	}

	sets := []string{"status = ?", "updated_at = datetime('now')"}
	args := []any{string(out.Status)}

	if output.Valid {
		sets = append(sets, "output_result = ?")
		args = append(args, output)
	}
	if out.ErrorMessage != "" {
		sets = append(sets, "error_message = ?")
		args = append(args, out.ErrorMessage)
	}
	if out.ExecutionTimeMS > 0 {
		sets = append(sets, "execution_time_ms = ?")
		args = append(args, out.ExecutionTimeMS)
	}
	if out.Severity != "" {
		sets = append(sets, "severity = ?")
		args = append(args, string(out.Severity))
	}

	args = append(args, id, tenantID)
	res, err := s.db.ExecContext(ctx,
		"UPDATE audit_logs SET "+strings.Join(sets, ", ")+" WHERE id = ? AND tenant_id = ?",
		args...,
	)
	if err != nil {
		return fmt.Errorf("updating audit record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fault.Newf(fault.KindNotFound, "audit record %s not found", id)
	}
	return nil
}

// ClaimPending atomically transitions a pending record to confirmed. Under
// concurrent confirm attempts exactly one caller wins; the loser gets a
// conflict. The caller must already have verified existence and ownership.
func (s *Store) ClaimPending(ctx context.Context, tenantID, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE audit_logs
		SET status = ?, updated_at = datetime('now')
		WHERE id = ? AND tenant_id = ? AND status = ?`,
		string(StatusConfirmed), id, tenantID, string(StatusPending),
	)
	if err != nil {
		return fmt.Errorf("claiming pending record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fault.Newf(fault.KindConflict, "action %s already resolved", id)
	}
	return nil
}

// GetByID retrieves one record within a tenant.
func (s *Store) GetByID(ctx context.Context, tenantID, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		selectColumns+" FROM audit_logs WHERE id = ? AND tenant_id = ?",
		id, tenantID,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.Newf(fault.KindNotFound, "audit record %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying audit record: %w", err)
	}
	return rec, nil
}

// ListFilter narrows ListByUser results.
type ListFilter struct {
	ActionType ActionType
	Status     Status
	Limit      int
	Offset     int
}

// ListByUser returns a user's records within a tenant, newest first.
func (s *Store) ListByUser(ctx context.Context, tenantID, userID string, filter ListFilter) ([]Record, error) {
	clauses := []string{"tenant_id = ?", "user_id = ?"}
	args := []any{tenantID, userID}

	if filter.ActionType != "" {
		clauses = append(clauses, "action_type = ?")
		args = append(args, string(filter.ActionType))
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := selectColumns + " FROM audit_logs WHERE " + strings.Join(clauses, " AND ") +
		" ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	return s.list(ctx, query, args...)
}

// ListByConversation returns all records referencing one conversation
// message, oldest first.
func (s *Store) ListByConversation(ctx context.Context, tenantID, conversationID string) ([]Record, error) {
	return s.list(ctx,
		selectColumns+" FROM audit_logs WHERE tenant_id = ? AND conversation_id = ? ORDER BY created_at ASC, id ASC",
		tenantID, conversationID,
	)
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

const selectColumns = `SELECT id, tenant_id, user_id, conversation_id, action_type, tool_name,
	input_params, output_result, status, execution_time_ms, error_message,
	severity, created_at, updated_at`

// scanner is implemented by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*Record, error) {
	var (
		rec                              Record
		conversationID, toolName, errMsg sql.NullString
		outputJSON                       sql.NullString
		execTime                         sql.NullInt64
		actionType, status, severity     string
		inputJSON, createdAt, updatedAt  string
	)

	err := sc.Scan(
		&rec.ID, &rec.TenantID, &rec.UserID, &conversationID, &actionType,
		&toolName, &inputJSON, &outputJSON, &status, &execTime, &errMsg,
		&severity, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.ActionType = ActionType(actionType)
	rec.Status = Status(status)
	rec.Severity = Severity(severity)
	rec.ConversationID = conversationID.String
	rec.ToolName = toolName.String
	rec.ErrorMessage = errMsg.String
	rec.ExecutionTimeMS = execTime.Int64
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)

	if err := json.Unmarshal([]byte(inputJSON), &rec.InputParams); err != nil {
		rec.InputParams = nil
	}
	if outputJSON.Valid {
		if err := json.Unmarshal([]byte(outputJSON.String), &rec.OutputResult); err != nil {
			rec.OutputResult = nil
		}
	}

	return &rec, nil
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

func marshalParams(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func marshalNullable(m map[string]any) (sql.NullString, error) {
	if m == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n > 0}
}
