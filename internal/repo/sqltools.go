package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/Jules02/NLQ-Agent/internal/db"
	"github.com/Jules02/NLQ-Agent/internal/domain"
)

// DefaultRowLimit caps rows returned by QueryReadOnly when no limit is given.
const DefaultRowLimit = 50

var ErrUnsafeQuery = errors.New("only a single read-only SELECT statement is allowed")

type Column struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Nullable   bool   `json:"nullable"`
	PrimaryKey bool   `json:"primary_key"`
}

type TableSchema struct {
	Name    string           `json:"name"`
	Columns []Column         `json:"columns"`
	Sample  []map[string]any `json:"sample_rows,omitempty"`
}

type QueryResult struct {
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	Truncated bool             `json:"truncated,omitempty"`
}

// ListTables returns the user tables of the connected schema, sorted by name.
func (r Repo) ListTables(ctx context.Context) ([]string, error) {
	query := `SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	if r.dialect() == db.DriverMySQL {
		query = `SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() ORDER BY table_name`
	}
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// DescribeTable returns the columns of table and up to sampleRows example rows.
// The table must be one reported by ListTables.
func (r Repo) DescribeTable(ctx context.Context, table string, sampleRows int) (TableSchema, error) {
	tables, err := r.ListTables(ctx)
	if err != nil {
		return TableSchema{}, err
	}
	if !slices.Contains(tables, table) {
		return TableSchema{}, fmt.Errorf("table %q: %w", table, ErrNotFound)
	}
	schema := TableSchema{Name: table}
	if r.dialect() == db.DriverMySQL {
		schema.Columns, err = r.mysqlColumns(ctx, table)
	} else {
		schema.Columns, err = r.sqliteColumns(ctx, table)
	}
	if err != nil {
		return TableSchema{}, err
	}
	if sampleRows > 0 {
		rows, err := r.DB.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM %s LIMIT %d`, r.quoteIdent(table), sampleRows))
		if err != nil {
			return TableSchema{}, err
		}
		defer rows.Close()
		if schema.Sample, _, err = scanMaps(rows, 0); err != nil {
			return TableSchema{}, err
		}
	}
	return schema, nil
}

func (r Repo) sqliteColumns(ctx context.Context, table string) ([]Column, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT name, type, "notnull", pk FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cols []Column
	for rows.Next() {
		var (
			c       Column
			notNull int
			pk      int
		)
		if err := rows.Scan(&c.Name, &c.Type, &notNull, &pk); err != nil {
			return nil, err
		}
		c.Nullable = notNull == 0 && pk == 0
		c.PrimaryKey = pk > 0
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func (r Repo) mysqlColumns(ctx context.Context, table string) ([]Column, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT column_name, column_type, is_nullable, column_key
		FROM information_schema.columns WHERE table_schema = DATABASE() AND table_name = ? ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cols []Column
	for rows.Next() {
		var (
			c                  Column
			isNullable, colKey string
		)
		if err := rows.Scan(&c.Name, &c.Type, &isNullable, &colKey); err != nil {
			return nil, err
		}
		c.Nullable = strings.EqualFold(isNullable, "YES")
		c.PrimaryKey = colKey == "PRI"
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func (r Repo) quoteIdent(name string) string {
	if r.dialect() == db.DriverMySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

var (
	leadingKeyword = regexp.MustCompile(`(?i)^\s*(select|with)\b`)
	stringLiteral  = regexp.MustCompile(`'(?:[^']|'')*'`)
	writeKeyword   = regexp.MustCompile(`(?i)\b(insert|update|delete|replace|merge|drop|alter|create|truncate|attach|detach|pragma|grant|revoke|vacuum|reindex|lock|call|load_file|outfile|dumpfile)\b`)
)

// CheckReadOnly rejects anything other than one SELECT (or WITH ... SELECT)
// statement. The contents of single-quoted string literals are not inspected.
func CheckReadOnly(query string) (string, error) {
	q := strings.TrimSpace(query)
	q = strings.TrimSpace(strings.TrimRight(q, "; \t\n"))
	if q == "" {
		return "", fmt.Errorf("%w: empty query", ErrUnsafeQuery)
	}
	bare := stringLiteral.ReplaceAllString(q, "''")
	if strings.Contains(bare, ";") {
		return "", fmt.Errorf("%w: multiple statements", ErrUnsafeQuery)
	}
	if !leadingKeyword.MatchString(bare) {
		return "", ErrUnsafeQuery
	}
	if m := writeKeyword.FindString(bare); m != "" {
		return "", fmt.Errorf("%w: %s is not permitted", ErrUnsafeQuery, strings.ToUpper(m))
	}
	return q, nil
}

// QueryReadOnly runs a checked SELECT inside a transaction that is always
// rolled back, returning at most limit rows.
func (r Repo) QueryReadOnly(ctx context.Context, query string, limit int) (QueryResult, error) {
	q, err := CheckReadOnly(query)
	if err != nil {
		return QueryResult{}, err
	}
	if limit <= 0 {
		limit = DefaultRowLimit
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return QueryResult{}, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, q)
	if err != nil {
		return QueryResult{}, err
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return QueryResult{}, err
	}
	data, truncated, err := scanMaps(rows, limit)
	if err != nil {
		return QueryResult{}, err
	}
	return QueryResult{Columns: cols, Rows: data, Truncated: truncated}, nil
}

// scanMaps reads rows into column-keyed maps. A positive limit stops reading
// after limit rows and reports whether more were available.
func scanMaps(rows *sql.Rows, limit int) ([]map[string]any, bool, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, false, err
	}
	res := []map[string]any{}
	for rows.Next() {
		if limit > 0 && len(res) == limit {
			return res, true, rows.Err()
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, false, err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = jsonValue(values[i])
		}
		res = append(res, row)
	}
	return res, false, rows.Err()
}

func jsonValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return t.Format(domain.DateLayout)
		}
		return t.Format(time.RFC3339)
	default:
		return v
	}
}

func dateString(v any) string {
	switch t := jsonValue(v).(type) {
	case nil:
		return ""
	case string:
		if len(t) > len(domain.DateLayout) {
			if _, err := time.Parse(domain.DateLayout, t[:len(domain.DateLayout)]); err == nil {
				return t[:len(domain.DateLayout)]
			}
		}
		return t
	default:
		return fmt.Sprint(t)
	}
}
