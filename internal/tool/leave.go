package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/Jules02/NLQ-Agent/internal/engine"
)

type currentWeather struct{ engine engine.Engine }
type planLeave struct{ engine engine.Engine }
type declareLeave struct{ engine engine.Engine }
type activityReport struct{ engine engine.Engine }
type listLeave struct{ engine engine.Engine }

var _ Tool = (*currentWeather)(nil)
var _ Tool = (*planLeave)(nil)
var _ Tool = (*declareLeave)(nil)
var _ Tool = (*activityReport)(nil)
var _ Tool = (*listLeave)(nil)

type CurrentWeatherRequest struct {
	Location string `json:"location,omitempty" jsonschema:"City and ISO country code, e.g. Paris,FR. Defaults to the configured office location."`
}

type PlanLeaveRequest struct {
	Location  string   `json:"location,omitempty" jsonschema:"City and ISO country code, e.g. Seville,ES. Defaults to the configured office location."`
	StartDate string   `json:"start_date,omitempty" jsonschema:"First day to consider, YYYY-MM-DD. Defaults to today."`
	EndDate   string   `json:"end_date,omitempty" jsonschema:"Last day to consider, YYYY-MM-DD. Defaults to four days after start_date."`
	Threshold *float64 `json:"threshold,omitempty" jsonschema:"Minimum daily maximum temperature in Celsius for a day to qualify."`
}

type DeclareLeaveRequest struct {
	EmployeeID int64    `json:"employee_id" jsonschema:"Employee declaring the leave."`
	ManagerID  *int64   `json:"manager_id,omitempty" jsonschema:"Approver; defaults to the employee's manager."`
	Location   string   `json:"location,omitempty" jsonschema:"City and ISO country code, e.g. Seville,ES. Defaults to the configured office location."`
	StartDate  string   `json:"start_date,omitempty" jsonschema:"First day to consider, YYYY-MM-DD. Defaults to today."`
	EndDate    string   `json:"end_date,omitempty" jsonschema:"Last day to consider, YYYY-MM-DD. Defaults to four days after start_date."`
	Threshold  *float64 `json:"threshold,omitempty" jsonschema:"Minimum daily maximum temperature in Celsius for a day to qualify."`
}

type ActivityReportRequest struct {
	EmployeeID int64  `json:"employee_id" jsonschema:"Employee whose activity to report."`
	From       string `json:"from,omitempty" jsonschema:"Earliest date, YYYY-MM-DD."`
	To         string `json:"to,omitempty" jsonschema:"Latest date, YYYY-MM-DD."`
}

type ListLeaveRequest struct {
	EmployeeID int64  `json:"employee_id" jsonschema:"Employee whose leave requests to list."`
	Status     string `json:"status,omitempty" jsonschema:"Only requests with this status, e.g. Pending."`
}

// WeatherTools returns the weather and leave planning tools.
func WeatherTools(e engine.Engine) []Tool {
	return []Tool{
		&currentWeather{engine: e},
		&planLeave{engine: e},
		&declareLeave{engine: e},
	}
}

// ReportTools returns the activity and leave listing tools.
func ReportTools(e engine.Engine) []Tool {
	return []Tool{
		&activityReport{engine: e},
		&listLeave{engine: e},
	}
}

///////////////////////////////////////////////////////////////////////////////
// current_weather

func (*currentWeather) Name() string { return "current_weather" }

func (*currentWeather) Description() string {
	return "Get the current temperature in Celsius for a location."
}

func (*currentWeather) Schema() (*jsonschema.Schema, error) {
	return jsonschema.For[CurrentWeatherRequest](nil)
}

func (t *currentWeather) Run(ctx context.Context, input json.RawMessage) (string, error) {
	req, err := decode[CurrentWeatherRequest](input)
	if err != nil {
		return "", err
	}
	cur, err := t.engine.CurrentWeather(ctx, req.Location)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Current temperature in %s: %.1f°C", cur.Location, cur.TemperatureC), nil
}

///////////////////////////////////////////////////////////////////////////////
// plan_weather_leave

func (*planLeave) Name() string { return "plan_weather_leave" }

func (*planLeave) Description() string {
	return "List the days in a date range whose forecast maximum temperature reaches a threshold. " +
		"Use this to suggest weather leave days without recording anything."
}

func (*planLeave) Schema() (*jsonschema.Schema, error) {
	return jsonschema.For[PlanLeaveRequest](nil)
}

func (t *planLeave) Run(ctx context.Context, input json.RawMessage) (string, error) {
	req, err := decode[PlanLeaveRequest](input)
	if err != nil {
		return "", err
	}
	plan, err := t.engine.PlanLeave(ctx, req.options())
	if err != nil {
		return "", err
	}
	return plan.Summary(), nil
}

func (r PlanLeaveRequest) options() engine.PlanOptions {
	return engine.PlanOptions{Location: r.Location, Start: r.StartDate, End: r.EndDate, Threshold: r.Threshold}
}

///////////////////////////////////////////////////////////////////////////////
// declare_weather_leave

func (*declareLeave) Name() string { return "declare_weather_leave" }

func (*declareLeave) Description() string {
	return "Record a pending one-day weather leave request for an employee on every day in the range " +
		"whose forecast maximum reaches the threshold. Days already requested are skipped."
}

func (*declareLeave) Schema() (*jsonschema.Schema, error) {
	return jsonschema.For[DeclareLeaveRequest](nil)
}

func (t *declareLeave) Run(ctx context.Context, input json.RawMessage) (string, error) {
	req, err := decode[DeclareLeaveRequest](input)
	if err != nil {
		return "", err
	}
	res, err := t.engine.DeclareWeatherLeave(ctx, engine.DeclareOptions{
		PlanOptions: PlanLeaveRequest{Location: req.Location, StartDate: req.StartDate, EndDate: req.EndDate, Threshold: req.Threshold}.options(),
		EmployeeID:  req.EmployeeID,
		ManagerID:   req.ManagerID,
	})
	if err != nil {
		return "", err
	}
	return res.Summary(), nil
}

///////////////////////////////////////////////////////////////////////////////
// activity_report

func (*activityReport) Name() string { return "activity_report" }

func (*activityReport) Description() string {
	return "Produce a formatted activity report (dates, report ids, hours, status) for an employee."
}

func (*activityReport) Schema() (*jsonschema.Schema, error) {
	return jsonschema.For[ActivityReportRequest](nil)
}

func (t *activityReport) Run(ctx context.Context, input json.RawMessage) (string, error) {
	req, err := decode[ActivityReportRequest](input)
	if err != nil {
		return "", err
	}
	rep, err := t.engine.ActivityReport(ctx, req.EmployeeID, req.From, req.To)
	if err != nil {
		return "", err
	}
	return rep.Text, nil
}

///////////////////////////////////////////////////////////////////////////////
// list_leave_requests

func (*listLeave) Name() string { return "list_leave_requests" }

func (*listLeave) Description() string {
	return "List an employee's leave requests with dates, type, status and approver."
}

func (*listLeave) Schema() (*jsonschema.Schema, error) {
	return jsonschema.For[ListLeaveRequest](nil)
}

func (t *listLeave) Run(ctx context.Context, input json.RawMessage) (string, error) {
	req, err := decode[ListLeaveRequest](input)
	if err != nil {
		return "", err
	}
	list, err := t.engine.ListLeaveRequests(ctx, req.EmployeeID, "", req.Status)
	if err != nil {
		return "", err
	}
	if len(list) == 0 {
		return fmt.Sprintf("No leave requests found for employee %d.", req.EmployeeID), nil
	}
	lines := make([]string, 0, len(list)+1)
	lines = append(lines, fmt.Sprintf("Leave requests for employee %d:", req.EmployeeID))
	for _, lr := range list {
		lines = append(lines, fmt.Sprintf("- %s to %s | %s | %s | approver %d", lr.StartDate, lr.EndDate, lr.Type, lr.Status, lr.ManagerID))
	}
	return strings.Join(lines, "\n"), nil
}
