package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/Jules02/NLQ-Agent/internal/domain"
	"github.com/Jules02/NLQ-Agent/internal/forecast"
)

// forecastHorizonDays is how far past the start an open-ended plan looks.
const forecastHorizonDays = 4

// PlanOptions selects the range and threshold for weather leave planning.
// Empty fields fall back to configuration, today, and today plus the forecast horizon.
type PlanOptions struct {
	Location  string
	Start     string
	End       string
	Threshold *float64
}

type PlanResult struct {
	Location  string                 `json:"location"`
	Start     string                 `json:"start"`
	End       string                 `json:"end"`
	Threshold float64                `json:"threshold"`
	Days      []domain.QualifyingDay `json:"days"`
}

// Dates returns the qualifying dates in order.
func (p PlanResult) Dates() []string {
	out := make([]string, 0, len(p.Days))
	for _, d := range p.Days {
		out = append(out, d.Date)
	}
	return out
}

// Summary renders the plan as text for chat and CLI output.
func (p PlanResult) Summary() string {
	if len(p.Days) == 0 {
		return NoQualifyingDaysMessage
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Qualifying days for %s between %s and %s (max >= %.1f°C):", p.Location, p.Start, p.End, p.Threshold)
	for _, d := range p.Days {
		fmt.Fprintf(&b, "\n- %s: %.1f°C", d.Date, d.MaxTemperatureC)
	}
	return b.String()
}

// PlanLeave fetches the forecast for the location and returns the days in
// range whose daily maximum reaches the threshold. Nothing is written.
func (e Engine) PlanLeave(ctx context.Context, opts PlanOptions) (PlanResult, error) {
	if e.Weather == nil {
		return PlanResult{}, ErrWeatherUnavailable
	}
	loc, err := e.location(opts.Location)
	if err != nil {
		return PlanResult{}, err
	}
	start := strings.TrimSpace(opts.Start)
	if start == "" {
		start = e.now().Format(domain.DateLayout)
	}
	end := strings.TrimSpace(opts.End)
	if end == "" {
		s, err := forecast.ParseDate(start)
		if err != nil {
			return PlanResult{}, ValidationError{Field: "start", Err: err}
		}
		end = s.AddDate(0, 0, forecastHorizonDays).Format(domain.DateLayout)
	}
	from, to, err := forecast.ParseRange(start, end)
	if err != nil {
		return PlanResult{}, ValidationError{Err: err}
	}
	threshold := e.defaultThreshold()
	if opts.Threshold != nil {
		threshold = *opts.Threshold
	}

	samples, err := e.Weather.Forecast(ctx, loc)
	if err != nil {
		return PlanResult{}, err
	}
	days, err := forecast.QualifyingDays(forecast.AggregateDailyMax(samples), from, to, threshold)
	if err != nil {
		return PlanResult{}, ValidationError{Err: err}
	}
	return PlanResult{
		Location:  loc,
		Start:     from.Format(domain.DateLayout),
		End:       to.Format(domain.DateLayout),
		Threshold: threshold,
		Days:      days,
	}, nil
}

type DeclareOptions struct {
	PlanOptions
	EmployeeID int64
	ManagerID  *int64
}

type DeclareResult struct {
	Plan       PlanResult `json:"plan"`
	EmployeeID int64      `json:"employee_id"`
	Created    int        `json:"created"`
	Skipped    int        `json:"skipped"`
}

// Summary renders the declaration outcome as text.
func (d DeclareResult) Summary() string {
	if len(d.Plan.Days) == 0 {
		return NoQualifyingDaysMessage
	}
	msg := fmt.Sprintf("Declared %d weather leave day(s) for employee %d in %s (%s).",
		d.Created, d.EmployeeID, d.Plan.Location, strings.Join(d.Plan.Dates(), ", "))
	if d.Skipped > 0 {
		msg += fmt.Sprintf(" %d day(s) were already requested.", d.Skipped)
	}
	return msg
}

// DeclareWeatherLeave plans leave and records a pending request for every
// qualifying day not already requested.
func (e Engine) DeclareWeatherLeave(ctx context.Context, opts DeclareOptions) (DeclareResult, error) {
	if opts.EmployeeID <= 0 {
		return DeclareResult{}, invalid("employee_id", "must be a positive id")
	}
	plan, err := e.PlanLeave(ctx, opts.PlanOptions)
	if err != nil {
		return DeclareResult{}, err
	}
	res := DeclareResult{Plan: plan, EmployeeID: opts.EmployeeID}
	if len(plan.Days) == 0 {
		return res, nil
	}
	created, err := e.CreateLeaveRequests(ctx, opts.EmployeeID, plan.Dates(), opts.ManagerID)
	if err != nil {
		return DeclareResult{}, err
	}
	res.Created = created
	res.Skipped = len(plan.Days) - created
	return res, nil
}
