package engine

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Jules02/NLQ-Agent/internal/domain"
	"github.com/Jules02/NLQ-Agent/internal/forecast"
)

// Seed is the YAML document accepted by `nlq db import`.
type Seed struct {
	Employees []domain.Employee      `yaml:"employees"`
	Activity  []domain.ActivityEntry `yaml:"activity"`
}

type ImportResult struct {
	Employees int `json:"employees"`
	Activity  int `json:"activity"`
}

func ParseSeed(data []byte) (Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Seed{}, fmt.Errorf("invalid seed yaml: %w", err)
	}
	return s, nil
}

func LoadSeedFile(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, err
	}
	return ParseSeed(data)
}

// ImportSeed inserts employees (managers before their reports) and activity
// records in a single transaction.
func (e Engine) ImportSeed(ctx context.Context, s Seed) (ImportResult, error) {
	for i, emp := range s.Employees {
		if emp.ID <= 0 {
			return ImportResult{}, invalid(fmt.Sprintf("employees[%d].employee_id", i), "must be a positive id")
		}
	}
	for i, a := range s.Activity {
		if _, err := forecast.ParseDate(a.Date); err != nil {
			return ImportResult{}, ValidationError{Field: fmt.Sprintf("activity[%d].date", i), Err: err}
		}
	}
	ordered, err := managersFirst(s.Employees)
	if err != nil {
		return ImportResult{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ImportResult{}, err
	}
	defer tx.Rollback()

	for _, emp := range ordered {
		if err := e.Repo.InsertEmployee(ctx, tx, emp); err != nil {
			return ImportResult{}, fmt.Errorf("insert employee %d: %w", emp.ID, err)
		}
	}
	for _, a := range s.Activity {
		if err := e.Repo.InsertActivity(ctx, tx, a); err != nil {
			return ImportResult{}, fmt.Errorf("insert activity %s: %w", a.ReportID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return ImportResult{}, err
	}
	return ImportResult{Employees: len(ordered), Activity: len(s.Activity)}, nil
}

// managersFirst orders employees so that each manager in the batch precedes
// the people reporting to them. Managers outside the batch must already exist.
func managersFirst(emps []domain.Employee) ([]domain.Employee, error) {
	inBatch := make(map[int64]bool, len(emps))
	for _, e := range emps {
		inBatch[e.ID] = true
	}
	placed := make(map[int64]bool, len(emps))
	out := make([]domain.Employee, 0, len(emps))
	remaining := emps
	for len(remaining) > 0 {
		var next []domain.Employee
		for _, e := range remaining {
			if e.ManagerID == nil || !inBatch[*e.ManagerID] || placed[*e.ManagerID] || *e.ManagerID == e.ID {
				out = append(out, e)
				placed[e.ID] = true
				continue
			}
			next = append(next, e)
		}
		if len(next) == len(remaining) {
			return nil, invalid("employees", "manager cycle involving employee %d", next[0].ID)
		}
		remaining = next
	}
	return out, nil
}
