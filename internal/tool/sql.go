package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/Jules02/NLQ-Agent/internal/repo"
)

type listTables struct{ repo repo.Repo }
type tableSchema struct {
	repo       repo.Repo
	sampleRows int
}
type queryDB struct {
	repo  repo.Repo
	limit int
}

var _ Tool = (*listTables)(nil)
var _ Tool = (*tableSchema)(nil)
var _ Tool = (*queryDB)(nil)

type ListTablesRequest struct{}

type TableSchemaRequest struct {
	Tables string `json:"tables" jsonschema:"Comma-separated list of table names, e.g. employees, activity_records."`
}

type QueryRequest struct {
	Query string `json:"query" jsonschema:"A single read-only SQL SELECT statement."`
}

// SQLTools returns tools that let the model explore and query the database.
func SQLTools(r repo.Repo, sampleRows, rowLimit int) []Tool {
	return []Tool{
		&listTables{repo: r},
		&tableSchema{repo: r, sampleRows: sampleRows},
		&queryDB{repo: r, limit: rowLimit},
	}
}

///////////////////////////////////////////////////////////////////////////////
// sql_db_list_tables

func (*listTables) Name() string { return "sql_db_list_tables" }

func (*listTables) Description() string {
	return "List the tables in the database. Call this first to learn what can be queried."
}

func (*listTables) Schema() (*jsonschema.Schema, error) {
	return jsonschema.For[ListTablesRequest](nil)
}

func (t *listTables) Run(ctx context.Context, _ json.RawMessage) (string, error) {
	tables, err := t.repo.ListTables(ctx)
	if err != nil {
		return "", err
	}
	return strings.Join(tables, ", "), nil
}

///////////////////////////////////////////////////////////////////////////////
// sql_db_schema

func (*tableSchema) Name() string { return "sql_db_schema" }

func (*tableSchema) Description() string {
	return "Show the columns and a few sample rows of the given tables. " +
		"Check table names with sql_db_list_tables first."
}

func (*tableSchema) Schema() (*jsonschema.Schema, error) {
	return jsonschema.For[TableSchemaRequest](nil)
}

func (t *tableSchema) Run(ctx context.Context, input json.RawMessage) (string, error) {
	req, err := decode[TableSchemaRequest](input)
	if err != nil {
		return "", err
	}
	var blocks []string
	for _, name := range strings.Split(req.Tables, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		schema, err := t.repo.DescribeTable(ctx, name, t.sampleRows)
		if err != nil {
			return "", err
		}
		blocks = append(blocks, formatSchema(schema))
	}
	if len(blocks) == 0 {
		return "", fmt.Errorf("%w: no table names given", ErrInvalidInput)
	}
	return strings.Join(blocks, "\n\n"), nil
}

func formatSchema(s repo.TableSchema) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Table: %s\nColumns:", s.Name)
	for _, c := range s.Columns {
		fmt.Fprintf(&b, "\n- %s %s", c.Name, c.Type)
		if c.PrimaryKey {
			b.WriteString(" PRIMARY KEY")
		} else if !c.Nullable {
			b.WriteString(" NOT NULL")
		}
	}
	if len(s.Sample) > 0 {
		data, err := json.Marshal(s.Sample)
		if err == nil {
			fmt.Fprintf(&b, "\nSample rows: %s", data)
		}
	}
	return b.String()
}

///////////////////////////////////////////////////////////////////////////////
// sql_db_query

func (*queryDB) Name() string { return "sql_db_query" }

func (*queryDB) Description() string {
	return "Run a single read-only SQL SELECT statement and return the rows as JSON. " +
		"If the query fails, read the error, fix the query and try again."
}

func (*queryDB) Schema() (*jsonschema.Schema, error) {
	return jsonschema.For[QueryRequest](nil)
}

func (t *queryDB) Run(ctx context.Context, input json.RawMessage) (string, error) {
	req, err := decode[QueryRequest](input)
	if err != nil {
		return "", err
	}
	res, err := t.repo.QueryReadOnly(ctx, req.Query, t.limit)
	if err != nil {
		return "", err
	}
	if len(res.Rows) == 0 {
		return "The query returned no rows.", nil
	}
	data, err := json.Marshal(res.Rows)
	if err != nil {
		return "", err
	}
	out := string(data)
	if res.Truncated {
		out += fmt.Sprintf("\n(results truncated to %d rows)", len(res.Rows))
	}
	return out, nil
}
