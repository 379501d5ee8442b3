package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lifelink/copilot/internal/audit"
	"github.com/lifelink/copilot/internal/backend"
	"github.com/lifelink/copilot/internal/fault"
)

// ListOccurrencesTool queries donation occurrences with optional filters.
// Open to every authenticated role.
type ListOccurrencesTool struct {
	backend *backend.Client
}

// NewListOccurrencesTool creates the tool.
func NewListOccurrencesTool(client *backend.Client) *ListOccurrencesTool {
	return &ListOccurrencesTool{backend: client}
}

func (t *ListOccurrencesTool) Name() string { return "list_occurrences" }

func (t *ListOccurrencesTool) Description() string {
	return `Lists donation occurrences with optional filters.

Parameters:
- status: filter by status (open, in_progress, completed, cancelled)
- hospital_id: filter by hospital ID
- start_date: start date (ISO format: YYYY-MM-DD)
- end_date: end date (ISO format: YYYY-MM-DD)
- limit: maximum number of results (default: 20)

Returns a list of occurrences with summary information.`
}

func (t *ListOccurrencesTool) RequiresConfirmation() bool { return false }
func (t *ListOccurrencesTool) Severity() audit.Severity   { return audit.SeverityInfo }

func (t *ListOccurrencesTool) Prompt(Invocation, Params) ConfirmationPrompt {
	return ConfirmationPrompt{}
}

func (t *ListOccurrencesTool) Execute(ctx context.Context, inv Invocation, params Params) (*Result, error) {
	status := params.String("status")
	if status != "" && !validStatus(status) {
		return nil, fault.Newf(fault.KindValidation, "invalid status %q, valid statuses: %s",
			status, strings.Join(backend.ValidStatuses, ", "))
	}

	list, err := t.backend.ListOccurrences(ctx, identity(inv), backend.OccurrenceQuery{
		Status:     status,
		HospitalID: params.String("hospital_id"),
		StartDate:  params.String("start_date"),
		EndDate:    params.String("end_date"),
		Limit:      params.Int("limit", 20),
	})
	if err != nil {
		return nil, err
	}

	summaries := make([]map[string]any, 0, len(list.Occurrences))
	for _, occ := range list.Occurrences {
		organs := make([]string, 0, len(occ.Organs))
		for _, o := range occ.Organs {
			organs = append(organs, o.Type)
		}
		summaries = append(summaries, map[string]any{
			"id":             occ.ID,
			"hospital_name":  occ.HospitalName,
			"status":         occ.Status,
			"opened_at":      occ.OpenedAt,
			"remaining_time": remainingTime(occ.Deadline, time.Now()),
			"organs":         organs,
		})
	}

	return &Result{
		Data: map[string]any{
			"occurrences": summaries,
			"total":       list.Total,
		},
		Message: fmt.Sprintf("Found %d occurrences.", len(summaries)),
	}, nil
}

// GetOccurrenceDetailsTool retrieves one occurrence including protected
// patient data. It is audited at warn severity because of that access; the
// patient name is masked before display.
type GetOccurrenceDetailsTool struct {
	backend *backend.Client
}

// NewGetOccurrenceDetailsTool creates the tool.
func NewGetOccurrenceDetailsTool(client *backend.Client) *GetOccurrenceDetailsTool {
	return &GetOccurrenceDetailsTool{backend: client}
}

func (t *GetOccurrenceDetailsTool) Name() string { return "get_occurrence_details" }

func (t *GetOccurrenceDetailsTool) Description() string {
	return `Gets full details of a specific occurrence.

Parameters:
- occurrence_id: occurrence ID (required)

Returns detailed information including patient data (access is audited),
current status and history, organs, teams involved and the event timeline.`
}

func (t *GetOccurrenceDetailsTool) RequiresConfirmation() bool { return false }
func (t *GetOccurrenceDetailsTool) Severity() audit.Severity   { return audit.SeverityWarn }

func (t *GetOccurrenceDetailsTool) Prompt(Invocation, Params) ConfirmationPrompt {
	return ConfirmationPrompt{}
}

func (t *GetOccurrenceDetailsTool) Execute(ctx context.Context, inv Invocation, params Params) (*Result, error) {
	occurrenceID := params.String("occurrence_id")
	if occurrenceID == "" {
		return nil, fault.New(fault.KindValidation, "occurrence_id is required")
	}

	occ, err := t.backend.GetOccurrence(ctx, identity(inv), occurrenceID)
	if err != nil {
		return nil, err
	}

	detail := map[string]any{
		"id":         occ.ID,
		"status":     occ.Status,
		"hospital":   map[string]any{"id": occ.HospitalID, "name": occ.HospitalName},
		"organs":     occ.Organs,
		"teams":      occ.Teams,
		"timeline":   occ.Timeline,
		"opened_at":  occ.OpenedAt,
		"updated_at": occ.UpdatedAt,
		"deadline":   occ.Deadline,
		"notes":      occ.Notes,
	}
	if occ.Patient != nil {
		detail["patient"] = map[string]any{
			"name_initial": maskName(occ.Patient.Name),
			"age":          occ.Patient.Age,
			"sex":          occ.Patient.Sex,
			"blood_type":   occ.Patient.BloodType,
		}
	}

	return &Result{
		Data:    map[string]any{"occurrence": detail},
		Message: fmt.Sprintf("Loaded details for occurrence %s.", occurrenceID),
	}, nil
}

// UpdateOccurrenceStatusTool moves an occurrence to a new status. The change
// is gated behind human confirmation.
type UpdateOccurrenceStatusTool struct {
	backend *backend.Client
}

// NewUpdateOccurrenceStatusTool creates the tool.
func NewUpdateOccurrenceStatusTool(client *backend.Client) *UpdateOccurrenceStatusTool {
	return &UpdateOccurrenceStatusTool{backend: client}
}

func (t *UpdateOccurrenceStatusTool) Name() string { return "update_occurrence_status" }

func (t *UpdateOccurrenceStatusTool) Description() string {
	return `Updates the status of an occurrence.

Parameters:
- occurrence_id: occurrence ID (required)
- new_status: new status (open, in_progress, completed, cancelled)
- note: note about the status change (optional)

IMPORTANT: this action requires user confirmation before it is executed.`
}

func (t *UpdateOccurrenceStatusTool) RequiresConfirmation() bool { return true }
func (t *UpdateOccurrenceStatusTool) Severity() audit.Severity   { return audit.SeverityWarn }

func (t *UpdateOccurrenceStatusTool) Prompt(_ Invocation, params Params) ConfirmationPrompt {
	occurrenceID := params.String("occurrence_id")
	newStatus := params.String("new_status")
	return ConfirmationPrompt{
		Message: fmt.Sprintf("Change the status of occurrence %s to %q?", occurrenceID, newStatus),
		Action:  "Update Status",
		Warning: "This change will be recorded in the occurrence history.",
		Details: map[string]any{
			"occurrence_id": occurrenceID,
			"new_status":    newStatus,
			"note":          params.String("note"),
		},
	}
}

func (t *UpdateOccurrenceStatusTool) Execute(ctx context.Context, inv Invocation, params Params) (*Result, error) {
	occurrenceID := params.String("occurrence_id")
	if occurrenceID == "" {
		return nil, fault.New(fault.KindValidation, "occurrence_id is required")
	}
	newStatus := params.String("new_status")
	if !validStatus(newStatus) {
		return nil, fault.Newf(fault.KindValidation, "invalid status %q, valid statuses: %s",
			newStatus, strings.Join(backend.ValidStatuses, ", "))
	}

	change, err := t.backend.UpdateOccurrenceStatus(ctx, identity(inv), occurrenceID, backend.StatusUpdate{
		Status:    newStatus,
		UpdatedBy: inv.UserID,
		Note:      params.String("note"),
	})
	if err != nil {
		return nil, err
	}

	return &Result{
		Data: map[string]any{
			"occurrence_id":   occurrenceID,
			"previous_status": change.PreviousStatus,
			"new_status":      newStatus,
		},
		Message: fmt.Sprintf("Occurrence %s status updated to %q.", occurrenceID, newStatus),
	}, nil
}

func identity(inv Invocation) backend.Identity {
	return backend.Identity{TenantID: inv.TenantID, UserID: inv.UserID}
}

func validStatus(s string) bool {
	for _, v := range backend.ValidStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// remainingTime renders the time left until deadline as "3h 20min",
// "15min", or "Expired". Nil deadlines render empty.
func remainingTime(deadline *time.Time, now time.Time) string {
	if deadline == nil {
		return ""
	}
	delta := deadline.Sub(now)
	if delta < 0 {
		return "Expired"
	}
	hours := int(delta.Hours())
	minutes := int(delta.Minutes()) % 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dmin", hours, minutes)
	}
	return fmt.Sprintf("%dmin", minutes)
}

// maskName reduces a patient name to first name plus last initial so logs
// and chat transcripts never carry the full identity.
func maskName(name string) string {
	if name == "" {
		return "N/A"
	}
	parts := strings.Fields(name)
	if len(parts) == 1 {
		return string([]rune(parts[0])[0]) + "."
	}
	last := []rune(parts[len(parts)-1])
	return fmt.Sprintf("%s %s.", parts[0], string(last[0]))
}
