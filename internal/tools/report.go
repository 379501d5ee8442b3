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

var (
	validReportTypes = []string{"daily", "weekly", "monthly", "custom"}
	validSections    = []string{"summary", "occurrences", "teams", "metrics"}
)

// GenerateReportTool triggers report generation on the backend and returns
// either a download URL or a processing handle.
type GenerateReportTool struct {
	backend *backend.Client
	now     func() time.Time
}

// NewGenerateReportTool creates the tool.
func NewGenerateReportTool(client *backend.Client) *GenerateReportTool {
	return &GenerateReportTool{backend: client, now: time.Now}
}

func (t *GenerateReportTool) Name() string { return "generate_report" }

func (t *GenerateReportTool) Description() string {
	return `Generates operational reports in PDF format.

Parameters:
- report_type: report type (daily, weekly, monthly, custom) - default: daily
- start_date: start date (ISO format: YYYY-MM-DD) - required for custom
- end_date: end date (ISO format: YYYY-MM-DD) - required for custom
- hospital_id: filter by hospital (optional)
- include_sections: sections to include (summary, occurrences, teams, metrics)

Report types: daily covers the last 24 hours, weekly the last 7 days,
monthly the last 30 days, custom the given period.

Returns a download URL for the generated PDF.`
}

func (t *GenerateReportTool) RequiresConfirmation() bool { return false }
func (t *GenerateReportTool) Severity() audit.Severity   { return audit.SeverityInfo }

func (t *GenerateReportTool) Prompt(Invocation, Params) ConfirmationPrompt {
	return ConfirmationPrompt{}
}

func (t *GenerateReportTool) Execute(ctx context.Context, inv Invocation, params Params) (*Result, error) {
	reportType := defaulted(params.String("report_type"), "daily")
	if !contains(validReportTypes, reportType) {
		return nil, fault.Newf(fault.KindValidation, "invalid report type %q, valid types: %s",
			reportType, strings.Join(validReportTypes, ", "))
	}

	start, end, err := t.reportPeriod(reportType, params.String("start_date"), params.String("end_date"))
	if err != nil {
		return nil, err
	}

	sections := params.StringSlice("include_sections")
	if len(sections) == 0 {
		sections = validSections
	}
	for _, s := range sections {
		if !contains(validSections, s) {
			return nil, fault.Newf(fault.KindValidation, "invalid section %q, valid sections: %s",
				s, strings.Join(validSections, ", "))
		}
	}

	job, err := t.backend.GenerateReport(ctx, identity(inv), backend.ReportRequest{
		ReportType:  reportType,
		StartDate:   start,
		EndDate:     end,
		Sections:    sections,
		Format:      "pdf",
		RequestedBy: inv.UserID,
		HospitalID:  params.String("hospital_id"),
	})
	if err != nil {
		return nil, err
	}

	data := map[string]any{
		"report_id":   job.ReportID,
		"status":      job.Status,
		"report_type": reportType,
		"period":      map[string]any{"start": start, "end": end},
		"sections":    sections,
	}

	if job.Status == "completed" && job.DownloadURL != "" {
		data["download_url"] = job.DownloadURL
		return &Result{
			Data:    data,
			Message: fmt.Sprintf("The %s report was generated. Click to download.", reportType),
		}, nil
	}

	data["estimated_time"] = "1-2 minutes"
	return &Result{
		Data:    data,
		Message: fmt.Sprintf("The %s report is being generated. You will be notified when it is ready.", reportType),
	}, nil
}

func (t *GenerateReportTool) reportPeriod(reportType, startDate, endDate string) (string, string, error) {
	now := t.now()
	const day = 24 * time.Hour
	switch reportType {
	case "daily":
		return now.Add(-day).Format(time.DateOnly), now.Format(time.DateOnly), nil
	case "weekly":
		return now.Add(-7 * day).Format(time.DateOnly), now.Format(time.DateOnly), nil
	case "monthly":
		return now.Add(-30 * day).Format(time.DateOnly), now.Format(time.DateOnly), nil
	default: // custom
		if startDate == "" || endDate == "" {
			return "", "", fault.New(fault.KindValidation, "custom reports require start_date and end_date")
		}
		return startDate, endDate, nil
	}
}
