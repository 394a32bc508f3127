package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Jules02/NLQ-Agent/internal/config"
	"github.com/Jules02/NLQ-Agent/internal/domain"
	"github.com/Jules02/NLQ-Agent/internal/forecast"
	"github.com/Jules02/NLQ-Agent/internal/report"
	"github.com/Jules02/NLQ-Agent/internal/repo"
	"github.com/Jules02/NLQ-Agent/internal/weather"
)

// NoQualifyingDaysMessage is returned when no forecast day reaches the threshold.
const NoQualifyingDaysMessage = "No days in the requested range reach the temperature threshold."

// ErrWeatherUnavailable is returned by weather operations when no provider is configured.
var ErrWeatherUnavailable = errors.New("weather provider not configured")

// ValidationError reports bad caller input. Nothing is written when it is returned.
type ValidationError struct {
	Field string
	Err   error
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e ValidationError) Unwrap() error { return e.Err }

func invalid(field, format string, args ...any) error {
	return ValidationError{Field: field, Err: fmt.Errorf(format, args...)}
}

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Weather weather.Provider
	Config  *config.Config
	Now     func() time.Time
}

func New(db *sql.DB, driver string, cfg *config.Config, wp weather.Provider) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:      db,
		Repo:    repo.Repo{DB: db, Driver: driver},
		Weather: wp,
		Config:  cfg,
		Now:     time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) defaultApprover() int64 {
	if e.Config != nil && e.Config.Leave.DefaultApproverID > 0 {
		return e.Config.Leave.DefaultApproverID
	}
	return config.DefaultApproverID
}

func (e Engine) defaultThreshold() float64 {
	if e.Config != nil {
		return e.Config.Leave.Threshold
	}
	return config.DefaultThreshold
}

// CreateLeaveRequests stores one pending weather leave per day for employeeID
// and returns how many were created. Days already requested are skipped.
// The approver is managerID when given, else the employee's manager, else the
// configured default approver. Lookups and inserts share one transaction.
func (e Engine) CreateLeaveRequests(ctx context.Context, employeeID int64, days []string, managerID *int64) (int, error) {
	if employeeID <= 0 {
		return 0, invalid("employee_id", "must be a positive id")
	}
	for _, d := range days {
		if _, err := forecast.ParseDate(d); err != nil {
			return 0, ValidationError{Field: "days", Err: err}
		}
	}
	if len(days) == 0 {
		return 0, nil
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	approver := managerID
	if approver == nil {
		approver, err = e.Repo.ManagerOf(ctx, tx, employeeID)
		if err != nil {
			return 0, fmt.Errorf("resolve approver: %w", err)
		}
		if approver == nil {
			fallback := e.defaultApprover()
			approver = &fallback
		}
	}

	created := 0
	for _, raw := range days {
		day := strings.TrimSpace(raw)
		exists, err := e.Repo.LeaveRequestExists(ctx, tx, employeeID, day, day, domain.LeaveTypeWeather)
		if err != nil {
			return 0, fmt.Errorf("check leave %s: %w", day, err)
		}
		if exists {
			continue
		}
		if _, err := e.Repo.InsertLeaveRequest(ctx, tx, domain.LeaveRequest{
			EmployeeID: employeeID,
			ManagerID:  *approver,
			StartDate:  day,
			EndDate:    day,
			Type:       domain.LeaveTypeWeather,
			Status:     domain.LeaveStatusPending,
		}); err != nil {
			return 0, fmt.Errorf("insert leave %s: %w", day, err)
		}
		created++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return created, nil
}

// CurrentWeather returns the current temperature for location, or the
// configured default location when empty.
func (e Engine) CurrentWeather(ctx context.Context, location string) (*domain.CurrentWeather, error) {
	if e.Weather == nil {
		return nil, ErrWeatherUnavailable
	}
	loc, err := e.location(location)
	if err != nil {
		return nil, err
	}
	return e.Weather.Current(ctx, loc)
}

// ListLeaveRequests returns the stored leave requests of an employee.
func (e Engine) ListLeaveRequests(ctx context.Context, employeeID int64, leaveType, status string) ([]domain.LeaveRequest, error) {
	if employeeID <= 0 {
		return nil, invalid("employee_id", "must be a positive id")
	}
	return e.Repo.ListLeaveRequests(ctx, repo.LeaveFilters{EmployeeID: employeeID, Type: leaveType, Status: status})
}

// ActivityReport is the normalised activity of one employee with its text rendering.
type ActivityReport struct {
	EmployeeID int64                `json:"employee_id"`
	From       string               `json:"from,omitempty"`
	To         string               `json:"to,omitempty"`
	Rows       []report.ActivityRow `json:"rows"`
	TotalHours float64              `json:"total_hours"`
	Text       string               `json:"text"`
}

// ActivityReport loads activity for employeeID within the optional [from, to]
// range and formats it.
func (e Engine) ActivityReport(ctx context.Context, employeeID int64, from, to string) (ActivityReport, error) {
	if employeeID <= 0 {
		return ActivityReport{}, invalid("employee_id", "must be a positive id")
	}
	for field, v := range map[string]string{"from": from, "to": to} {
		if v == "" {
			continue
		}
		if _, err := forecast.ParseDate(v); err != nil {
			return ActivityReport{}, ValidationError{Field: field, Err: err}
		}
	}
	if from != "" && to != "" {
		if _, _, err := forecast.ParseRange(from, to); err != nil {
			return ActivityReport{}, ValidationError{Err: err}
		}
	}
	raw, err := e.Repo.ActivityRows(ctx, repo.ActivityFilters{EmployeeID: employeeID, From: strings.TrimSpace(from), To: strings.TrimSpace(to)})
	if err != nil {
		return ActivityReport{}, fmt.Errorf("load activity: %w", err)
	}
	rows, err := report.FormatActivityData(raw)
	if err != nil {
		return ActivityReport{}, err
	}
	return ActivityReport{
		EmployeeID: employeeID,
		From:       from,
		To:         to,
		Rows:       rows,
		TotalHours: report.TotalHours(rows),
		Text:       report.FormatActivityReport(rows),
	}, nil
}

func (e Engine) location(location string) (string, error) {
	loc := strings.TrimSpace(location)
	if loc == "" && e.Config != nil {
		loc = strings.TrimSpace(e.Config.Leave.Location)
	}
	if loc == "" {
		return "", invalid("location", "is required (City,CountryCode)")
	}
	return loc, nil
}
