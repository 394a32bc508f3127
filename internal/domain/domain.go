package domain

import "time"

// Leave request tags written by the weather planner.
const (
	LeaveTypeWeather   = "Weather"
	LeaveStatusPending = "Pending"
)

// DateLayout is the canonical calendar date format used across the store and reports.
const DateLayout = "2006-01-02"

type Employee struct {
	ID           int64   `json:"employee_id" yaml:"employee_id"`
	ManagerID    *int64  `json:"manager_id,omitempty" yaml:"manager_id"`
	Name         string  `json:"name" yaml:"name"`
	Email        string  `json:"email,omitempty" yaml:"email"`
	Role         string  `json:"role,omitempty" yaml:"role"`
	LeaveBalance float64 `json:"leave_balance" yaml:"leave_balance"`
}

type ActivityEntry struct {
	ReportID   string  `json:"report_id" yaml:"report_id"`
	EmployeeID int64   `json:"employee_id" yaml:"employee_id"`
	Date       string  `json:"date" format:"date" yaml:"date"`
	Hours      float64 `json:"hours" yaml:"hours"`
	Status     string  `json:"status" yaml:"status"`
}

type LeaveRequest struct {
	ID         int64  `json:"id"`
	EmployeeID int64  `json:"employee_id"`
	ManagerID  int64  `json:"manager_id"`
	StartDate  string `json:"start_date" format:"date"`
	EndDate    string `json:"end_date" format:"date"`
	Type       string `json:"type"`
	Status     string `json:"status" enum:"Pending,Approved,Rejected"`
}

// ForecastSample is a single provider reading, typically 3 hours apart.
type ForecastSample struct {
	Timestamp    time.Time `json:"timestamp"`
	TemperatureC float64   `json:"temperature_c"`
}

// DailyMaxForecast maps an ISO date to the highest temperature forecast for it.
type DailyMaxForecast map[string]float64

type QualifyingDay struct {
	Date            string  `json:"date" format:"date"`
	MaxTemperatureC float64 `json:"max_temperature_c"`
}

type CurrentWeather struct {
	Location     string  `json:"location"`
	City         string  `json:"city,omitempty"`
	TemperatureC float64 `json:"temperature_c"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
