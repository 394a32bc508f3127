package server

import (
	"github.com/Jules02/NLQ-Agent/internal/domain"
	"github.com/Jules02/NLQ-Agent/internal/engine"
	"github.com/Jules02/NLQ-Agent/internal/report"
)

// Request payloads

type PlanLeaveRequest struct {
	Location  string   `json:"location,omitempty" doc:"City and ISO country code; defaults to the configured office location" example:"Seville,ES"`
	StartDate string   `json:"start_date,omitempty" format:"date" doc:"Defaults to today"`
	EndDate   string   `json:"end_date,omitempty" format:"date" doc:"Defaults to four days after start_date"`
	Threshold *float64 `json:"threshold,omitempty" doc:"Minimum daily maximum in Celsius"`
}

func (r PlanLeaveRequest) options() engine.PlanOptions {
	return engine.PlanOptions{Location: r.Location, Start: r.StartDate, End: r.EndDate, Threshold: r.Threshold}
}

type DeclareLeaveRequest struct {
	EmployeeID int64    `json:"employee_id" minimum:"1"`
	ManagerID  *int64   `json:"manager_id,omitempty" doc:"Approver; defaults to the employee's manager"`
	Location   string   `json:"location,omitempty" example:"Seville,ES"`
	StartDate  string   `json:"start_date,omitempty" format:"date"`
	EndDate    string   `json:"end_date,omitempty" format:"date"`
	Threshold  *float64 `json:"threshold,omitempty"`
}

type ChatRequest struct {
	Message   string `json:"message" minLength:"1"`
	SessionID string `json:"session_id,omitempty" doc:"Continue an earlier conversation"`
}

// Response payloads

type PlanResponse struct {
	Location  string                 `json:"location"`
	Start     string                 `json:"start" format:"date"`
	End       string                 `json:"end" format:"date"`
	Threshold float64                `json:"threshold"`
	Days      []domain.QualifyingDay `json:"days"`
	Summary   string                 `json:"summary"`
}

type DeclareResponse struct {
	EmployeeID int64        `json:"employee_id"`
	Created    int          `json:"created"`
	Skipped    int          `json:"skipped"`
	Plan       PlanResponse `json:"plan"`
	Summary    string       `json:"summary"`
}

type EmployeeListResponse struct {
	Items []domain.Employee `json:"items"`
}

type LeaveListResponse struct {
	Items []domain.LeaveRequest `json:"items"`
}

type ActivityReportResponse struct {
	EmployeeID int64                `json:"employee_id"`
	From       string               `json:"from,omitempty"`
	To         string               `json:"to,omitempty"`
	Rows       []report.ActivityRow `json:"rows"`
	TotalHours float64              `json:"total_hours"`
	Text       string               `json:"text"`
}

type ChatResponse struct {
	SessionID string `json:"session_id"`
	Answer    string `json:"answer"`
}

type WhoAmIResponse struct {
	ActorID string `json:"actor_id"`
	Source  string `json:"source"`
}

func planResponse(p engine.PlanResult) PlanResponse {
	days := p.Days
	if days == nil {
		days = []domain.QualifyingDay{}
	}
	return PlanResponse{
		Location:  p.Location,
		Start:     p.Start,
		End:       p.End,
		Threshold: p.Threshold,
		Days:      days,
		Summary:   p.Summary(),
	}
}

func declareResponse(d engine.DeclareResult) DeclareResponse {
	return DeclareResponse{
		EmployeeID: d.EmployeeID,
		Created:    d.Created,
		Skipped:    d.Skipped,
		Plan:       planResponse(d.Plan),
		Summary:    d.Summary(),
	}
}

func activityReportResponse(r engine.ActivityReport) ActivityReportResponse {
	rows := r.Rows
	if rows == nil {
		rows = []report.ActivityRow{}
	}
	return ActivityReportResponse{
		EmployeeID: r.EmployeeID,
		From:       r.From,
		To:         r.To,
		Rows:       rows,
		TotalHours: r.TotalHours,
		Text:       r.Text,
	}
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
