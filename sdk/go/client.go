package nlqsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal NLQ Agent HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  60 * time.Second,
	}
}

// CurrentWeather is the temperature at a location.
type CurrentWeather struct {
	Location     string  `json:"location"`
	City         string  `json:"city,omitempty"`
	TemperatureC float64 `json:"temperature_c"`
}

// PlanRequest selects the range and threshold of a leave plan. Empty fields use server defaults.
type PlanRequest struct {
	Location  string   `json:"location,omitempty"`
	StartDate string   `json:"start_date,omitempty"`
	EndDate   string   `json:"end_date,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
}

// DeclareRequest records weather leave for an employee.
type DeclareRequest struct {
	EmployeeID int64    `json:"employee_id"`
	ManagerID  *int64   `json:"manager_id,omitempty"`
	Location   string   `json:"location,omitempty"`
	StartDate  string   `json:"start_date,omitempty"`
	EndDate    string   `json:"end_date,omitempty"`
	Threshold  *float64 `json:"threshold,omitempty"`
}

type QualifyingDay struct {
	Date            string  `json:"date"`
	MaxTemperatureC float64 `json:"max_temperature_c"`
}

type Plan struct {
	Location  string          `json:"location"`
	Start     string          `json:"start"`
	End       string          `json:"end"`
	Threshold float64         `json:"threshold"`
	Days      []QualifyingDay `json:"days"`
	Summary   string          `json:"summary"`
}

type Declaration struct {
	EmployeeID int64  `json:"employee_id"`
	Created    int    `json:"created"`
	Skipped    int    `json:"skipped"`
	Plan       Plan   `json:"plan"`
	Summary    string `json:"summary"`
}

type Employee struct {
	ID           int64   `json:"employee_id"`
	ManagerID    *int64  `json:"manager_id,omitempty"`
	Name         string  `json:"name"`
	Email        string  `json:"email,omitempty"`
	Role         string  `json:"role,omitempty"`
	LeaveBalance float64 `json:"leave_balance"`
}

type LeaveRequest struct {
	ID         int64  `json:"id"`
	EmployeeID int64  `json:"employee_id"`
	ManagerID  int64  `json:"manager_id"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	Type       string `json:"type"`
	Status     string `json:"status"`
}

type ActivityRow struct {
	Date     string  `json:"date"`
	ReportID string  `json:"report_id"`
	Hours    float64 `json:"hours"`
	Status   string  `json:"status"`
}

type ActivityReport struct {
	EmployeeID int64         `json:"employee_id"`
	From       string        `json:"from,omitempty"`
	To         string        `json:"to,omitempty"`
	Rows       []ActivityRow `json:"rows"`
	TotalHours float64       `json:"total_hours"`
	Text       string        `json:"text"`
}

type ChatReply struct {
	SessionID string `json:"session_id"`
	Answer    string `json:"answer"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Health reports whether the server is up.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "health", nil, nil)
}

// CurrentWeather returns the current temperature; empty location uses the server default.
func (c *Client) CurrentWeather(ctx context.Context, location string) (CurrentWeather, error) {
	endpoint := "weather/current"
	if location != "" {
		endpoint += "?" + url.Values{"location": {location}}.Encode()
	}
	var resp CurrentWeather
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// PlanLeave returns the qualifying days without recording anything.
func (c *Client) PlanLeave(ctx context.Context, req PlanRequest) (Plan, error) {
	var resp Plan
	err := c.do(ctx, http.MethodPost, "leave/plan", req, &resp)
	return resp, err
}

// DeclareLeave records pending weather leave for each qualifying day.
func (c *Client) DeclareLeave(ctx context.Context, req DeclareRequest) (Declaration, error) {
	var resp Declaration
	err := c.do(ctx, http.MethodPost, "leave/declare", req, &resp)
	return resp, err
}

// Employees lists all employees.
func (c *Client) Employees(ctx context.Context) ([]Employee, error) {
	var resp struct {
		Items []Employee `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "employees", nil, &resp)
	return resp.Items, err
}

// LeaveRequests lists an employee's leave requests, optionally filtered by status.
func (c *Client) LeaveRequests(ctx context.Context, employeeID int64, status string) ([]LeaveRequest, error) {
	endpoint := fmt.Sprintf("employees/%d/leave-requests", employeeID)
	if status != "" {
		endpoint += "?" + url.Values{"status": {status}}.Encode()
	}
	var resp struct {
		Items []LeaveRequest `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// ActivityReport returns the formatted activity of an employee between from and to (both optional).
func (c *Client) ActivityReport(ctx context.Context, employeeID int64, from, to string) (ActivityReport, error) {
	endpoint := fmt.Sprintf("employees/%d/activity-report", employeeID)
	q := url.Values{}
	if from != "" {
		q.Set("from", from)
	}
	if to != "" {
		q.Set("to", to)
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp ActivityReport
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Chat asks the assistant a question. Pass the returned session id to continue the conversation.
func (c *Client) Chat(ctx context.Context, sessionID, message string) (ChatReply, error) {
	body := map[string]any{"message": message}
	if sessionID != "" {
		body["session_id"] = sessionID
	}
	var resp ChatReply
	err := c.do(ctx, http.MethodPost, "chat", body, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
