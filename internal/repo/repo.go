package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Jules02/NLQ-Agent/internal/db"
	"github.com/Jules02/NLQ-Agent/internal/domain"
)

type Repo struct {
	DB     *sql.DB
	Driver string
}

var ErrNotFound = errors.New("not found")

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r Repo) q(tx *sql.Tx) queryer {
	if tx != nil {
		return tx
	}
	return r.DB
}

func (r Repo) dialect() string {
	if r.Driver == "" {
		return db.DriverSQLite
	}
	return r.Driver
}

func scanEmployee(scan func(...any) error) (domain.Employee, error) {
	var (
		e       domain.Employee
		manager sql.NullInt64
		email   sql.NullString
		role    sql.NullString
		balance sql.NullFloat64
	)
	if err := scan(&e.ID, &manager, &e.Name, &email, &role, &balance); err != nil {
		return e, err
	}
	if manager.Valid {
		m := manager.Int64
		e.ManagerID = &m
	}
	e.Email = email.String
	e.Role = role.String
	e.LeaveBalance = balance.Float64
	return e, nil
}

const employeeColumns = `employee_id, manager_id, name, email, role, leave_balance`

func (r Repo) InsertEmployee(ctx context.Context, tx *sql.Tx, e domain.Employee) error {
	if strings.TrimSpace(e.Name) == "" {
		return errors.New("employee name required")
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO employees(`+employeeColumns+`) VALUES (?,?,?,?,?,?)`,
		e.ID, nullableInt64Ptr(e.ManagerID), e.Name, nullable(e.Email), nullable(e.Role), e.LeaveBalance)
	return err
}

func (r Repo) GetEmployee(ctx context.Context, id int64) (domain.Employee, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE employee_id=?`, id)
	e, err := scanEmployee(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return e, fmt.Errorf("employee %d: %w", id, ErrNotFound)
	}
	return e, err
}

func (r Repo) ListEmployees(ctx context.Context) ([]domain.Employee, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+employeeColumns+` FROM employees ORDER BY employee_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Employee
	for rows.Next() {
		e, err := scanEmployee(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// ManagerOf returns the recorded manager of an employee, nil when the employee
// has none, or ErrNotFound when the employee does not exist.
func (r Repo) ManagerOf(ctx context.Context, tx *sql.Tx, employeeID int64) (*int64, error) {
	var manager sql.NullInt64
	err := r.q(tx).QueryRowContext(ctx, `SELECT manager_id FROM employees WHERE employee_id=?`, employeeID).Scan(&manager)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("employee %d: %w", employeeID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if !manager.Valid {
		return nil, nil
	}
	m := manager.Int64
	return &m, nil
}

func (r Repo) InsertActivity(ctx context.Context, tx *sql.Tx, a domain.ActivityEntry) error {
	if a.ReportID == "" {
		return errors.New("report_id required")
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO activity_records(report_id, employee_id, date, hours, status) VALUES (?,?,?,?,?)`,
		a.ReportID, a.EmployeeID, a.Date, a.Hours, nullable(a.Status))
	return err
}

type ActivityFilters struct {
	EmployeeID int64
	From       string
	To         string
}

// ActivityRows returns raw activity rows keyed by column name, as the driver
// produced them, so callers can normalise driver-specific value types.
func (r Repo) ActivityRows(ctx context.Context, f ActivityFilters) ([]map[string]any, error) {
	query := `SELECT report_id, date, hours, status FROM activity_records WHERE employee_id=?`
	args := []any{f.EmployeeID}
	if f.From != "" {
		query += ` AND date >= ?`
		args = append(args, f.From)
	}
	if f.To != "" {
		query += ` AND date <= ?`
		args = append(args, f.To)
	}
	query += ` ORDER BY date DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res, _, err := scanMaps(rows, 0)
	return res, err
}

// LeaveRequestExists reports whether a request with the exact tuple is stored.
func (r Repo) LeaveRequestExists(ctx context.Context, tx *sql.Tx, employeeID int64, start, end, leaveType string) (bool, error) {
	var n int
	err := r.q(tx).QueryRowContext(ctx,
		`SELECT COUNT(1) FROM leave_requests WHERE employee_id=? AND start_date=? AND end_date=? AND type=?`,
		employeeID, start, end, leaveType).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r Repo) InsertLeaveRequest(ctx context.Context, tx *sql.Tx, lr domain.LeaveRequest) (int64, error) {
	res, err := r.q(tx).ExecContext(ctx,
		`INSERT INTO leave_requests(employee_id, manager_id, start_date, end_date, type, status) VALUES (?,?,?,?,?,?)`,
		lr.EmployeeID, lr.ManagerID, lr.StartDate, lr.EndDate, lr.Type, lr.Status)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

type LeaveFilters struct {
	EmployeeID int64
	Type       string
	Status     string
}

func (r Repo) ListLeaveRequests(ctx context.Context, f LeaveFilters) ([]domain.LeaveRequest, error) {
	query := `SELECT id, employee_id, manager_id, start_date, end_date, type, status FROM leave_requests WHERE employee_id=?`
	args := []any{f.EmployeeID}
	if f.Type != "" {
		query += ` AND type=?`
		args = append(args, f.Type)
	}
	if f.Status != "" {
		query += ` AND status=?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY start_date, id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.LeaveRequest{}
	for rows.Next() {
		var lr domain.LeaveRequest
		var start, end any
		if err := rows.Scan(&lr.ID, &lr.EmployeeID, &lr.ManagerID, &start, &end, &lr.Type, &lr.Status); err != nil {
			return nil, err
		}
		lr.StartDate = dateString(start)
		lr.EndDate = dateString(end)
		res = append(res, lr)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableInt64Ptr(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
