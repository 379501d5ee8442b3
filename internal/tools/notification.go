package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/lifelink/copilot/internal/audit"
	"github.com/lifelink/copilot/internal/backend"
	"github.com/lifelink/copilot/internal/fault"
)

// Notification types, target roles and priorities accepted by
// send_team_notification.
var (
	validNotificationTypes = []string{"push", "sms", "both"}
	validTeamRoles         = []string{"clinician", "nurse", "coordinator", "all"}
	validPriorities        = []string{"normal", "high", "urgent"}
)

// SendTeamNotificationTool sends push/SMS notifications to the current shift
// roster. Gated behind confirmation: a wrong message reaches a lot of
// phones.
type SendTeamNotificationTool struct {
	backend *backend.Client
}

// NewSendTeamNotificationTool creates the tool.
func NewSendTeamNotificationTool(client *backend.Client) *SendTeamNotificationTool {
	return &SendTeamNotificationTool{backend: client}
}

func (t *SendTeamNotificationTool) Name() string { return "send_team_notification" }

func (t *SendTeamNotificationTool) Description() string {
	return `Sends notifications to on-shift team members.

Parameters:
- message: message to send (required)
- notification_type: notification type (push, sms, both) - default: push
- team_role: filter by team role (clinician, nurse, coordinator, all) - default: all
- hospital_id: hospital ID to filter the team (optional)
- priority: message priority (normal, high, urgent) - default: normal
- occurrence_id: related occurrence ID (optional)

The team is resolved automatically from the current shift schedule. Urgent
messages are sent via both SMS and push.`
}

func (t *SendTeamNotificationTool) RequiresConfirmation() bool { return true }
func (t *SendTeamNotificationTool) Severity() audit.Severity   { return audit.SeverityWarn }

func (t *SendTeamNotificationTool) Prompt(_ Invocation, params Params) ConfirmationPrompt {
	message := params.String("message")
	preview := message
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}

	notificationType := defaulted(params.String("notification_type"), "push")
	teamRole := defaulted(params.String("team_role"), "all")

	typeDisplay := map[string]string{
		"push": "a push notification",
		"sms":  "an SMS",
		"both": "a push notification and SMS",
	}
	roleDisplay := map[string]string{
		"all":         "the whole team",
		"clinician":   "clinicians",
		"nurse":       "nurses",
		"coordinator": "coordinators",
	}

	return ConfirmationPrompt{
		Message: fmt.Sprintf("Send %s to %s?",
			display(typeDisplay, notificationType), display(roleDisplay, teamRole)),
		Action:  "Send Notification",
		Warning: "The message will be delivered to every member of the current shift.",
		Details: map[string]any{
			"preview_message":   preview,
			"notification_type": notificationType,
			"target_team":       teamRole,
			"priority":          defaulted(params.String("priority"), "normal"),
		},
	}
}

func (t *SendTeamNotificationTool) Execute(ctx context.Context, inv Invocation, params Params) (*Result, error) {
	message := strings.TrimSpace(params.String("message"))
	if message == "" {
		return nil, fault.New(fault.KindValidation, "message must not be empty")
	}

	notificationType := defaulted(params.String("notification_type"), "push")
	if !contains(validNotificationTypes, notificationType) {
		return nil, fault.Newf(fault.KindValidation, "invalid notification type %q, valid types: %s",
			notificationType, strings.Join(validNotificationTypes, ", "))
	}
	teamRole := defaulted(params.String("team_role"), "all")
	if !contains(validTeamRoles, teamRole) {
		return nil, fault.Newf(fault.KindValidation, "invalid team role %q, valid roles: %s",
			teamRole, strings.Join(validTeamRoles, ", "))
	}
	priority := defaulted(params.String("priority"), "normal")
	if !contains(validPriorities, priority) {
		return nil, fault.Newf(fault.KindValidation, "invalid priority %q, valid priorities: %s",
			priority, strings.Join(validPriorities, ", "))
	}

	// Urgent messages always go out over every channel.
	if priority == "urgent" {
		notificationType = "both"
	}

	shiftQuery := backend.ShiftQuery{HospitalID: params.String("hospital_id")}
	if teamRole != "all" {
		shiftQuery.Role = teamRole
	}

	members, err := t.backend.CurrentShift(ctx, identity(inv), shiftQuery)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return &Result{
			Data:    map[string]any{"recipients": []any{}, "message_sent": false},
			Message: "No team members found on the current shift.",
		}, nil
	}

	recipients := make([]string, len(members))
	for i, m := range members {
		recipients[i] = m.UserID
	}

	occurrenceID := params.String("occurrence_id")
	receipt, err := t.backend.SendNotifications(ctx, identity(inv), backend.NotificationRequest{
		Title:      notificationTitle(priority, occurrenceID),
		Message:    message,
		Type:       notificationType,
		Priority:   priority,
		Recipients: recipients,
		SenderID:   inv.UserID,
		Metadata: map[string]string{
			"sent_via":      "ai_assistant",
			"occurrence_id": occurrenceID,
		},
	})
	if err != nil {
		return nil, err
	}

	roster := make([]map[string]any, len(members))
	for i, m := range members {
		roster[i] = map[string]any{"name": m.Name, "role": m.Role}
	}

	return &Result{
		Data: map[string]any{
			"recipients_count":  receipt.SentCount,
			"failed_count":      receipt.FailedCount,
			"notification_type": notificationType,
			"priority":          priority,
			"recipients":        roster,
		},
		Message: fmt.Sprintf("Notification sent to %d team members.", receipt.SentCount),
	}, nil
}

func notificationTitle(priority, occurrenceID string) string {
	prefix := ""
	switch priority {
	case "urgent":
		prefix = "[URGENT] "
	case "high":
		prefix = "[IMPORTANT] "
	}
	if occurrenceID != "" {
		short := occurrenceID
		if len(short) > 8 {
			short = short[:8]
		}
		return fmt.Sprintf("%sLifeLink - Occurrence #%s", prefix, short)
	}
	return prefix + "LifeLink - Team Message"
}

func defaulted(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func display(m map[string]string, key string) string {
	if v, ok := m[key]; ok {
		return v
	}
	return key
}
