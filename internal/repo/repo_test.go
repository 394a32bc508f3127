package repo_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Jules02/NLQ-Agent/internal/db"
	"github.com/Jules02/NLQ-Agent/internal/domain"
	"github.com/Jules02/NLQ-Agent/internal/migrate"
	"github.com/Jules02/NLQ-Agent/internal/repo"
)

func newTestRepo(t *testing.T) (repo.Repo, context.Context) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	if err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.Repo{DB: conn, Driver: db.DriverSQLite}
	boss := int64(1)
	for _, e := range []domain.Employee{
		{ID: 1, Name: "Ada", Role: "director", LeaveBalance: 30},
		{ID: 2, ManagerID: &boss, Name: "Grace", Email: "grace@example.com", Role: "engineer", LeaveBalance: 12.5},
	} {
		if err := r.InsertEmployee(ctx, nil, e); err != nil {
			t.Fatalf("insert employee: %v", err)
		}
	}
	return r, ctx
}

func TestManagerOf(t *testing.T) {
	r, ctx := newTestRepo(t)
	m, err := r.ManagerOf(ctx, nil, 2)
	if err != nil || m == nil || *m != 1 {
		t.Fatalf("manager of 2: %v %v", m, err)
	}
	m, err = r.ManagerOf(ctx, nil, 1)
	if err != nil || m != nil {
		t.Fatalf("top-level employee should have no manager: %v %v", m, err)
	}
	if _, err := r.ManagerOf(ctx, nil, 99); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestEmployees(t *testing.T) {
	r, ctx := newTestRepo(t)
	list, err := r.ListEmployees(ctx)
	if err != nil || len(list) != 2 {
		t.Fatalf("list employees: %v %v", list, err)
	}
	e, err := r.GetEmployee(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if e.Email != "grace@example.com" || e.LeaveBalance != 12.5 || e.ManagerID == nil {
		t.Fatalf("unexpected employee %+v", e)
	}
	if _, err := r.GetEmployee(ctx, 42); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLeaveRequests(t *testing.T) {
	r, ctx := newTestRepo(t)
	lr := domain.LeaveRequest{EmployeeID: 2, ManagerID: 1, StartDate: "2025-08-08", EndDate: "2025-08-08", Type: domain.LeaveTypeWeather, Status: domain.LeaveStatusPending}
	exists, err := r.LeaveRequestExists(ctx, nil, 2, "2025-08-08", "2025-08-08", domain.LeaveTypeWeather)
	if err != nil || exists {
		t.Fatalf("exists before insert: %v %v", exists, err)
	}
	id, err := r.InsertLeaveRequest(ctx, nil, lr)
	if err != nil || id == 0 {
		t.Fatalf("insert: %d %v", id, err)
	}
	exists, err = r.LeaveRequestExists(ctx, nil, 2, "2025-08-08", "2025-08-08", domain.LeaveTypeWeather)
	if err != nil || !exists {
		t.Fatalf("exists after insert: %v %v", exists, err)
	}
	if _, err := r.InsertLeaveRequest(ctx, nil, lr); err == nil {
		t.Fatalf("unique index should reject duplicate tuple")
	}
	list, err := r.ListLeaveRequests(ctx, repo.LeaveFilters{EmployeeID: 2})
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v %v", list, err)
	}
	if list[0].StartDate != "2025-08-08" || list[0].Status != domain.LeaveStatusPending {
		t.Fatalf("unexpected row %+v", list[0])
	}
}

func TestActivityRows(t *testing.T) {
	r, ctx := newTestRepo(t)
	for _, a := range []domain.ActivityEntry{
		{ReportID: "R1", EmployeeID: 2, Date: "2024-01-05", Hours: 4, Status: "approved"},
		{ReportID: "R2", EmployeeID: 2, Date: "2024-01-09", Hours: 6.5, Status: "pending"},
		{ReportID: "R3", EmployeeID: 1, Date: "2024-01-06", Hours: 8, Status: "approved"},
	} {
		if err := r.InsertActivity(ctx, nil, a); err != nil {
			t.Fatal(err)
		}
	}
	rows, err := r.ActivityRows(ctx, repo.ActivityFilters{EmployeeID: 2, From: "2024-01-01", To: "2024-01-06"})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0]["report_id"] != "R1" {
		t.Fatalf("unexpected rows %v", rows)
	}
}

func TestSQLTools(t *testing.T) {
	r, ctx := newTestRepo(t)
	tables, err := r.ListTables(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]bool{"employees": false, "activity_records": false, "leave_requests": false}
	for _, name := range tables {
		if _, ok := want[name]; ok {
			want[name] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Fatalf("table %s missing from %v", name, tables)
		}
	}

	schema, err := r.DescribeTable(ctx, "employees", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(schema.Columns) != 6 || schema.Columns[0].Name != "employee_id" || !schema.Columns[0].PrimaryKey {
		t.Fatalf("unexpected columns %+v", schema.Columns)
	}
	if len(schema.Sample) != 2 {
		t.Fatalf("expected 2 sample rows, got %d", len(schema.Sample))
	}
	if _, err := r.DescribeTable(ctx, "employees; DROP TABLE employees", 0); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected unknown table, got %v", err)
	}

	res, err := r.QueryReadOnly(ctx, "SELECT name FROM employees ORDER BY employee_id;", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Rows) != 1 || !res.Truncated || res.Rows[0]["name"] != "Ada" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestCheckReadOnly(t *testing.T) {
	ok := []string{
		"SELECT * FROM employees",
		"  with x as (select 1 as n) select n from x ;",
		"SELECT created_at FROM api_keys",
		"SELECT * FROM leave_requests WHERE status = 'update'",
		"SELECT name FROM employees WHERE name LIKE '%;%'",
		"SELECT 'it''s; drop' AS s",
	}
	for _, q := range ok {
		if _, err := repo.CheckReadOnly(q); err != nil {
			t.Fatalf("%q rejected: %v", q, err)
		}
	}
	bad := []string{
		"",
		"DELETE FROM employees",
		"SELECT 1; DROP TABLE employees",
		"WITH x AS (SELECT 1) DELETE FROM employees",
		"PRAGMA table_info(employees)",
		"UPDATE employees SET name='x'",
		"SELECT 'a'; DELETE FROM employees",
		"SELECT 'x' AS s; DROP TABLE employees; SELECT 'y'",
	}
	for _, q := range bad {
		if _, err := repo.CheckReadOnly(q); !errors.Is(err, repo.ErrUnsafeQuery) {
			t.Fatalf("%q should be rejected, got %v", q, err)
		}
	}
}

func TestAPIKeys(t *testing.T) {
	r, ctx := newTestRepo(t)
	secret, key, err := r.CreateAPIKey(ctx, "grace", "laptop")
	if err != nil {
		t.Fatal(err)
	}
	got, err := r.GetAPIKeyByHash(ctx, repo.HashAPIKey(secret))
	if err != nil || got.ID != key.ID || got.ActorID != "grace" || got.Name != "laptop" {
		t.Fatalf("lookup by hash: %+v %v", got, err)
	}
	keys, err := r.ListAPIKeys(ctx, "grace")
	if err != nil || len(keys) != 1 {
		t.Fatalf("list: %v %v", keys, err)
	}
	if err := r.DeleteAPIKey(ctx, key.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := r.GetAPIKeyByHash(ctx, repo.HashAPIKey(secret)); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}
