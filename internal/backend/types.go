package backend

import "time"

// Occurrence statuses used by the operational backend.
const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// ValidStatuses lists the statuses an occurrence may be moved to.
var ValidStatuses = []string{StatusOpen, StatusInProgress, StatusCompleted, StatusCancelled}

// Patient carries protected patient data. Access to it is audited; display
// surfaces mask the name before rendering.
type Patient struct {
	Name      string `json:"name"`
	Age       int    `json:"age"`
	Sex       string `json:"sex"`
	BloodType string `json:"blood_type"`
}

// Organ is one organ attached to an occurrence.
type Organ struct {
	Type     string     `json:"type"`
	Deadline *time.Time `json:"deadline,omitempty"`
}

// TimelineEvent is one entry in an occurrence's history.
type TimelineEvent struct {
	At          time.Time `json:"at"`
	Description string    `json:"description"`
	UserID      string    `json:"user_id,omitempty"`
}

// Occurrence is a donation event as the backend reports it.
type Occurrence struct {
	ID           string          `json:"id"`
	HospitalID   string          `json:"hospital_id"`
	HospitalName string          `json:"hospital_name"`
	Status       string          `json:"status"`
	Patient      *Patient        `json:"patient,omitempty"`
	Organs       []Organ         `json:"organs,omitempty"`
	Teams        []string        `json:"teams,omitempty"`
	Timeline     []TimelineEvent `json:"timeline,omitempty"`
	OpenedAt     time.Time       `json:"opened_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Deadline     *time.Time      `json:"deadline,omitempty"`
	Notes        string          `json:"notes,omitempty"`
}

// OccurrenceQuery filters a listing.
type OccurrenceQuery struct {
	Status     string
	HospitalID string
	StartDate  string
	EndDate    string
	Limit      int
}

// OccurrenceList is a page of occurrences plus the unpaged total.
type OccurrenceList struct {
	Occurrences []Occurrence `json:"data"`
	Total       int          `json:"total"`
}

// StatusUpdate is the payload for an occurrence status change.
type StatusUpdate struct {
	Status    string `json:"status"`
	UpdatedBy string `json:"updated_by"`
	Note      string `json:"note,omitempty"`
}

// StatusChange is the backend's report of a completed status change.
type StatusChange struct {
	OccurrenceID   string `json:"occurrence_id"`
	PreviousStatus string `json:"previous_status"`
	NewStatus      string `json:"new_status"`
}

// TeamMember is one person on the current shift roster.
type TeamMember struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
}

// ShiftQuery filters the current shift roster.
type ShiftQuery struct {
	HospitalID string
	Role       string
}

// NotificationRequest is the payload for a team notification.
type NotificationRequest struct {
	Title      string            `json:"title"`
	Message    string            `json:"message"`
	Type       string            `json:"type"`
	Priority   string            `json:"priority"`
	Recipients []string          `json:"recipients"`
	SenderID   string            `json:"sender_id"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// NotificationReceipt reports delivery counts.
type NotificationReceipt struct {
	SentCount   int `json:"sent_count"`
	FailedCount int `json:"failed_count"`
}

// ReportRequest asks the backend to generate an operational report.
type ReportRequest struct {
	ReportType  string   `json:"report_type"`
	StartDate   string   `json:"start_date"`
	EndDate     string   `json:"end_date"`
	Sections    []string `json:"sections"`
	Format      string   `json:"format"`
	RequestedBy string   `json:"requested_by"`
	HospitalID  string   `json:"hospital_id,omitempty"`
}

// ReportJob is the backend's answer to a report request. Status is either
// "completed" with a download URL or "processing".
type ReportJob struct {
	ReportID    string `json:"report_id"`
	Status      string `json:"status"`
	DownloadURL string `json:"download_url,omitempty"`
}
