package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Jules02/NLQ-Agent/internal/config"
	"github.com/Jules02/NLQ-Agent/internal/db"
	"github.com/Jules02/NLQ-Agent/internal/domain"
	"github.com/Jules02/NLQ-Agent/internal/engine"
	"github.com/Jules02/NLQ-Agent/internal/forecast"
	"github.com/Jules02/NLQ-Agent/internal/migrate"
	"github.com/Jules02/NLQ-Agent/internal/report"
	"github.com/Jules02/NLQ-Agent/internal/repo"
)

type fakeWeather struct {
	samples []domain.ForecastSample
	current float64
	err     error
	calls   int
}

func (f *fakeWeather) Current(ctx context.Context, location string) (*domain.CurrentWeather, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &domain.CurrentWeather{Location: location, TemperatureC: f.current}, nil
}

func (f *fakeWeather) Forecast(ctx context.Context, location string) ([]domain.ForecastSample, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.samples, nil
}

type testEnv struct {
	Engine  engine.Engine
	Weather *fakeWeather
	Ctx     context.Context
}

func ts(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := time.Parse("2006-01-02 15:04", s)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	if err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	wx := &fakeWeather{samples: []domain.ForecastSample{
		{Timestamp: ts(t, "2025-08-08 09:00"), TemperatureC: 30.0},
		{Timestamp: ts(t, "2025-08-08 15:00"), TemperatureC: 36.5},
		{Timestamp: ts(t, "2025-08-09 12:00"), TemperatureC: 34.0},
		{Timestamp: ts(t, "2025-08-10 12:00"), TemperatureC: 38.0},
	}}
	cfg := config.Default()
	cfg.Leave.Location = "Seville,ES"
	eng := engine.New(conn, db.DriverSQLite, cfg, wx)
	eng.Now = func() time.Time { return time.Date(2025, 8, 8, 7, 0, 0, 0, time.UTC) }

	boss := int64(1)
	lead := int64(2)
	seed := engine.Seed{
		Employees: []domain.Employee{
			{ID: 3, ManagerID: &lead, Name: "Linus", Role: "engineer"},
			{ID: 2, ManagerID: &boss, Name: "Grace", Role: "lead"},
			{ID: 1, Name: "Ada", Role: "director"},
			{ID: 4, Name: "Alan", Role: "contractor"},
		},
		Activity: []domain.ActivityEntry{
			{ReportID: "R1", EmployeeID: 3, Date: "2024-01-05", Hours: 4, Status: "approved"},
			{ReportID: "R2", EmployeeID: 3, Date: "2024-01-07", Hours: 7.5, Status: "PENDING"},
		},
	}
	if _, err := eng.ImportSeed(ctx, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return testEnv{Engine: eng, Weather: wx, Ctx: ctx}
}

func countLeave(t *testing.T, env testEnv, employeeID int64) []domain.LeaveRequest {
	t.Helper()
	list, err := env.Engine.ListLeaveRequests(env.Ctx, employeeID, domain.LeaveTypeWeather, "")
	if err != nil {
		t.Fatal(err)
	}
	return list
}

func TestCreateLeaveRequestsIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	days := []string{"2025-08-08", "2025-08-10", "2025-08-12"}
	n, err := env.Engine.CreateLeaveRequests(env.Ctx, 3, days, nil)
	if err != nil || n != 3 {
		t.Fatalf("first run: %d %v", n, err)
	}
	n, err = env.Engine.CreateLeaveRequests(env.Ctx, 3, days, nil)
	if err != nil || n != 0 {
		t.Fatalf("second run should create nothing: %d %v", n, err)
	}
	list := countLeave(t, env, 3)
	if len(list) != 3 {
		t.Fatalf("expected exactly 3 records, got %d", len(list))
	}
	for i, lr := range list {
		if lr.StartDate != days[i] || lr.EndDate != days[i] {
			t.Fatalf("record %d spans %s..%s", i, lr.StartDate, lr.EndDate)
		}
		if lr.Type != domain.LeaveTypeWeather || lr.Status != domain.LeaveStatusPending {
			t.Fatalf("record %d has type %s status %s", i, lr.Type, lr.Status)
		}
		if lr.ManagerID != 2 {
			t.Fatalf("expected recorded manager 2, got %d", lr.ManagerID)
		}
	}
}

func TestCreateLeaveRequestsSkipsRepeatedDayInBatch(t *testing.T) {
	env := newTestEnv(t)
	n, err := env.Engine.CreateLeaveRequests(env.Ctx, 3, []string{"2025-08-08", "2025-08-08"}, nil)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 created, got %d %v", n, err)
	}
}

func TestCreateLeaveRequestsApproverResolution(t *testing.T) {
	env := newTestEnv(t)
	// no recorded manager falls back to the default approver
	if n, err := env.Engine.CreateLeaveRequests(env.Ctx, 4, []string{"2025-08-08"}, nil); err != nil || n != 1 {
		t.Fatalf("fallback: %d %v", n, err)
	}
	if got := countLeave(t, env, 4)[0].ManagerID; got != config.DefaultApproverID {
		t.Fatalf("expected default approver %d, got %d", config.DefaultApproverID, got)
	}

	explicit := int64(1)
	if n, err := env.Engine.CreateLeaveRequests(env.Ctx, 3, []string{"2025-08-09"}, &explicit); err != nil || n != 1 {
		t.Fatalf("explicit: %d %v", n, err)
	}
	if got := countLeave(t, env, 3)[0].ManagerID; got != 1 {
		t.Fatalf("explicit manager ignored, got %d", got)
	}
}

func TestCreateLeaveRequestsConfiguredApprover(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Config.Leave.DefaultApproverID = 2
	if _, err := env.Engine.CreateLeaveRequests(env.Ctx, 4, []string{"2025-08-08"}, nil); err != nil {
		t.Fatal(err)
	}
	if got := countLeave(t, env, 4)[0].ManagerID; got != 2 {
		t.Fatalf("expected configured approver 2, got %d", got)
	}
}

func TestCreateLeaveRequestsUnknownEmployee(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateLeaveRequests(env.Ctx, 99, []string{"2025-08-08"}, nil)
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if list := countLeave(t, env, 99); len(list) != 0 {
		t.Fatalf("nothing should be written, got %d", len(list))
	}
}

func TestCreateLeaveRequestsRejectsBadDay(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateLeaveRequests(env.Ctx, 3, []string{"2025-08-08", "next friday"}, nil)
	var verr engine.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if list := countLeave(t, env, 3); len(list) != 0 {
		t.Fatalf("nothing should be written, got %d", len(list))
	}
}

func TestPlanLeave(t *testing.T) {
	env := newTestEnv(t)
	threshold := 35.0
	plan, err := env.Engine.PlanLeave(env.Ctx, engine.PlanOptions{Start: "2025-08-08", End: "2025-08-09", Threshold: &threshold})
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Days) != 1 || plan.Days[0].Date != "2025-08-08" || plan.Days[0].MaxTemperatureC != 36.5 {
		t.Fatalf("unexpected plan %+v", plan.Days)
	}
	if plan.Location != "Seville,ES" {
		t.Fatalf("expected configured location, got %s", plan.Location)
	}
	if !strings.Contains(plan.Summary(), "2025-08-08: 36.5°C") {
		t.Fatalf("summary: %s", plan.Summary())
	}

	// open-ended range starts today
	plan, err = env.Engine.PlanLeave(env.Ctx, engine.PlanOptions{Threshold: &threshold})
	if err != nil {
		t.Fatal(err)
	}
	if plan.Start != "2025-08-08" || plan.End != "2025-08-12" || len(plan.Days) != 2 {
		t.Fatalf("unexpected default range %+v", plan)
	}

	high := 50.0
	plan, err = env.Engine.PlanLeave(env.Ctx, engine.PlanOptions{Start: "2025-08-08", End: "2025-08-10", Threshold: &high})
	if err != nil || len(plan.Days) != 0 || plan.Summary() != engine.NoQualifyingDaysMessage {
		t.Fatalf("expected no qualifying days: %+v %v", plan, err)
	}
}

func TestPlanLeaveInvalidRange(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.PlanLeave(env.Ctx, engine.PlanOptions{Start: "2025-08-10", End: "2025-08-08"})
	if !errors.Is(err, forecast.ErrInvalidDateRange) {
		t.Fatalf("expected invalid range, got %v", err)
	}
	var verr engine.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error type, got %T", err)
	}
	if env.Weather.calls != 0 {
		t.Fatalf("weather should not be called for an invalid range")
	}
}

func TestPlanLeaveWithoutConfigUsesDefaultThreshold(t *testing.T) {
	env := newTestEnv(t)
	bare := engine.Engine{DB: env.Engine.DB, Repo: env.Engine.Repo, Weather: env.Weather}
	plan, err := bare.PlanLeave(env.Ctx, engine.PlanOptions{Location: "Seville,ES", Start: "2025-08-08", End: "2025-08-10"})
	if err != nil {
		t.Fatal(err)
	}
	if plan.Threshold != config.DefaultThreshold {
		t.Fatalf("expected default threshold %.1f, got %.1f", config.DefaultThreshold, plan.Threshold)
	}
	if len(plan.Days) != 3 {
		t.Fatalf("expected 3 qualifying days, got %+v", plan.Days)
	}
}

func TestDeclareWeatherLeave(t *testing.T) {
	env := newTestEnv(t)
	threshold := 35.0
	opts := engine.DeclareOptions{
		PlanOptions: engine.PlanOptions{Start: "2025-08-08", End: "2025-08-10", Threshold: &threshold},
		EmployeeID:  3,
	}
	res, err := env.Engine.DeclareWeatherLeave(env.Ctx, opts)
	if err != nil {
		t.Fatal(err)
	}
	if res.Created != 2 || res.Skipped != 0 {
		t.Fatalf("first declare: %+v", res)
	}
	res, err = env.Engine.DeclareWeatherLeave(env.Ctx, opts)
	if err != nil {
		t.Fatal(err)
	}
	if res.Created != 0 || res.Skipped != 2 {
		t.Fatalf("second declare: %+v", res)
	}
	if !strings.Contains(res.Summary(), "Declared 0 weather leave day(s)") || !strings.Contains(res.Summary(), "2 day(s) were already requested") {
		t.Fatalf("summary: %s", res.Summary())
	}
}

func TestWeatherErrorsPropagate(t *testing.T) {
	env := newTestEnv(t)
	env.Weather.err = errors.New("city not found")
	if _, err := env.Engine.CurrentWeather(env.Ctx, "Nowhere,XX"); err == nil || !strings.Contains(err.Error(), "city not found") {
		t.Fatalf("expected provider error, got %v", err)
	}
	if _, err := env.Engine.DeclareWeatherLeave(env.Ctx, engine.DeclareOptions{EmployeeID: 3}); err == nil {
		t.Fatalf("expected provider error")
	}
	if list := countLeave(t, env, 3); len(list) != 0 {
		t.Fatalf("nothing should be written, got %d", len(list))
	}
}

func TestCurrentWeatherNeedsLocation(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Config.Leave.Location = ""
	_, err := env.Engine.CurrentWeather(env.Ctx, " ")
	var verr engine.ValidationError
	if !errors.As(err, &verr) || verr.Field != "location" {
		t.Fatalf("expected location validation error, got %v", err)
	}
}

func TestActivityReport(t *testing.T) {
	env := newTestEnv(t)
	rep, err := env.Engine.ActivityReport(env.Ctx, 3, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Rows) != 2 || rep.Rows[0].Date != "2024-01-07" || rep.Rows[0].Status != "Pending" {
		t.Fatalf("unexpected rows %+v", rep.Rows)
	}
	if !strings.Contains(rep.Text, "Period: 2024-01-05 to 2024-01-07") || !strings.Contains(rep.Text, "Total Hours: 11.5") {
		t.Fatalf("unexpected text:\n%s", rep.Text)
	}

	rep, err = env.Engine.ActivityReport(env.Ctx, 1, "", "")
	if err != nil || rep.Text != report.NoActivityMessage {
		t.Fatalf("expected empty report, got %q %v", rep.Text, err)
	}

	if _, err := env.Engine.ActivityReport(env.Ctx, 3, "2024-02-01", "2024-01-01"); !errors.Is(err, forecast.ErrInvalidDateRange) {
		t.Fatalf("expected invalid range, got %v", err)
	}
}

func TestImportSeedDetectsCycle(t *testing.T) {
	env := newTestEnv(t)
	a, b := int64(10), int64(11)
	_, err := env.Engine.ImportSeed(env.Ctx, engine.Seed{Employees: []domain.Employee{
		{ID: 10, ManagerID: &b, Name: "x"},
		{ID: 11, ManagerID: &a, Name: "y"},
	}})
	var verr engine.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected cycle validation error, got %v", err)
	}
}

func TestParseSeed(t *testing.T) {
	s, err := engine.ParseSeed([]byte(`
employees:
  - employee_id: 1
    name: Ada
  - employee_id: 2
    manager_id: 1
    name: Grace
activity:
  - report_id: R9
    employee_id: 2
    date: "2024-03-01"
    hours: 3.5
    status: approved
`))
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Employees) != 2 || s.Employees[1].ManagerID == nil || *s.Employees[1].ManagerID != 1 {
		t.Fatalf("unexpected employees %+v", s.Employees)
	}
	if len(s.Activity) != 1 || s.Activity[0].Hours != 3.5 {
		t.Fatalf("unexpected activity %+v", s.Activity)
	}
}
