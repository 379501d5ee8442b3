// Package backend is the HTTP client for the operational backend that owns
// occurrences, shift rosters, notifications and report generation. The
// copilot never touches that data directly; every tool action goes through
// this client with the caller's tenant and user identity attached.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/lifelink/copilot/internal/fault"
)

const defaultTimeout = 15 * time.Second

// Identity is the caller on whose behalf a backend request is made. The
// backend applies its own row-level tenancy from these headers.
type Identity struct {
	TenantID string
	UserID   string
}

// Client talks to the operational backend API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client for the backend at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ListOccurrences queries occurrences with optional filters. Limit is capped
// at 100.
func (c *Client) ListOccurrences(ctx context.Context, id Identity, q OccurrenceQuery) (*OccurrenceList, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	params := url.Values{"limit": {strconv.Itoa(limit)}}
	if q.Status != "" {
		params.Set("status", q.Status)
	}
	if q.HospitalID != "" {
		params.Set("hospital_id", q.HospitalID)
	}
	if q.StartDate != "" {
		params.Set("start_date", q.StartDate)
	}
	if q.EndDate != "" {
		params.Set("end_date", q.EndDate)
	}

	var list OccurrenceList
	if err := c.do(ctx, id, http.MethodGet, "/api/v1/occurrences?"+params.Encode(), nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// GetOccurrence retrieves one occurrence with full details, including
// protected patient data.
func (c *Client) GetOccurrence(ctx context.Context, id Identity, occurrenceID string) (*Occurrence, error) {
	var occ Occurrence
	if err := c.do(ctx, id, http.MethodGet, "/api/v1/occurrences/"+url.PathEscape(occurrenceID), nil, &occ); err != nil {
		return nil, err
	}
	return &occ, nil
}

// UpdateOccurrenceStatus moves an occurrence to a new status.
func (c *Client) UpdateOccurrenceStatus(ctx context.Context, id Identity, occurrenceID string, upd StatusUpdate) (*StatusChange, error) {
	var change StatusChange
	path := "/api/v1/occurrences/" + url.PathEscape(occurrenceID) + "/status"
	if err := c.do(ctx, id, http.MethodPut, path, upd, &change); err != nil {
		return nil, err
	}
	return &change, nil
}

// CurrentShift returns the team members on the current shift.
func (c *Client) CurrentShift(ctx context.Context, id Identity, q ShiftQuery) ([]TeamMember, error) {
	params := url.Values{}
	if q.HospitalID != "" {
		params.Set("hospital_id", q.HospitalID)
	}
	if q.Role != "" {
		params.Set("role", q.Role)
	}
	path := "/api/v1/shifts/current"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var resp struct {
		Members []TeamMember `json:"data"`
	}
	if err := c.do(ctx, id, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Members, nil
}

// SendNotifications delivers a notification to the given recipients via the
// backend's notification service.
func (c *Client) SendNotifications(ctx context.Context, id Identity, req NotificationRequest) (*NotificationReceipt, error) {
	var receipt NotificationReceipt
	if err := c.do(ctx, id, http.MethodPost, "/api/v1/notifications/send", req, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// GenerateReport asks the backend to produce an operational report.
func (c *Client) GenerateReport(ctx context.Context, id Identity, req ReportRequest) (*ReportJob, error) {
	var job ReportJob
	if err := c.do(ctx, id, http.MethodPost, "/api/v1/reports/generate", req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) do(ctx context.Context, id Identity, method, path string, body, out any) error {
	if id.TenantID == "" || id.UserID == "" {
		return fault.New(fault.KindValidation, "backend requests require tenant and user identity")
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal backend request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create backend request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Tenant-ID", id.TenantID)
	req.Header.Set("X-User-ID", id.UserID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fault.Wrap(fault.KindUnavailable, "backend request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return classifyStatus(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fault.Wrap(fault.KindUnavailable, "decode backend response", err)
		}
	}
	return nil
}

// classifyStatus maps backend HTTP failures onto fault kinds so tool and
// worker code can decide on retries without knowing about HTTP.
func classifyStatus(resp *http.Response) error {
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := fmt.Sprintf("backend returned status %d: %s", resp.StatusCode, string(respBody))

	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return fault.New(fault.KindValidation, msg)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fault.New(fault.KindPermission, msg)
	case resp.StatusCode == http.StatusNotFound:
		return fault.New(fault.KindNotFound, msg)
	case resp.StatusCode == http.StatusConflict:
		return fault.New(fault.KindConflict, msg)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fault.New(fault.KindUnavailable, msg)
	default:
		return fault.New(fault.KindInternal, msg)
	}
}
