package reasoning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"querybot/internal/common/database"
	"querybot/internal/common/metrics"
)

var ErrTableNotInScope = errors.New("table not in scope")

// Tool names offered to the engine.
const (
	ToolListTables = "list_tables"
	ToolGetSchema  = "get_schema"
	ToolRunQuery   = "run_query"
	ToolCheckQuery = "check_query"
)

// Tool is a capability the engine may invoke. Errors are reported to the
// engine as observations, so Call only fails on cancellation.
type Tool interface {
	Name() string
	Description() string
	Call(ctx context.Context, input string) (string, error)
}

// Database is what the tools need from the SQL client.
type Database interface {
	ListTables(ctx context.Context) ([]string, error)
	Execute(ctx context.Context, query string) (*database.Rows, error)
	TableInfo(ctx context.Context, table string) (string, error)
	Explain(ctx context.Context, query string) error
}

// Invocation is one run_query call and what it returned.
type Invocation struct {
	Statement   string
	Observation string
}

type recorder struct {
	mu    sync.Mutex
	calls []Invocation
}

func (r *recorder) record(inv Invocation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, inv)
}

func (r *recorder) invocations() []Invocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Invocation, len(r.calls))
	copy(out, r.calls)
	return out
}

type toolkit struct {
	db     Database
	tables []string
	rec    *recorder
}

func (k *toolkit) tools() []Tool {
	return []Tool{
		&funcTool{
			name:        ToolListTables,
			description: "Input is an empty string, output is a comma-separated list of the tables you may use.",
			fn:          k.listTables,
		},
		&funcTool{
			name:        ToolGetSchema,
			description: "Input is a comma-separated list of tables, output is the schema and sample rows for those tables. Call list_tables first to be sure the tables exist.",
			fn:          k.getSchema,
		},
		&funcTool{
			name:        ToolCheckQuery,
			description: "Use this to double check a SQL query before running it. Input is a SQL query, output says whether the database accepts it.",
			fn:          k.checkQuery,
		},
		&funcTool{
			name:        ToolRunQuery,
			description: "Input is a detailed and correct SQL query, output is the result from the database. If the query is wrong you will get an error message; rewrite the query and try again.",
			fn:          k.runQuery,
		},
	}
}

// available returns the scoped tables, or every table in the database when
// the scope is empty.
func (k *toolkit) available(ctx context.Context) ([]string, error) {
	if len(k.tables) > 0 {
		return k.tables, nil
	}
	return k.db.ListTables(ctx)
}

func (k *toolkit) listTables(ctx context.Context, _ string) (string, error) {
	tables, err := k.available(ctx)
	if err != nil {
		return "Error: " + err.Error(), ctx.Err()
	}
	return strings.Join(tables, ", "), nil
}

// inScope reports whether table may be described. An empty scope allows any table.
func (k *toolkit) inScope(table string) bool {
	if len(k.tables) == 0 {
		return true
	}
	for _, t := range k.tables {
		if strings.EqualFold(t, table) {
			return true
		}
	}
	return false
}

func (k *toolkit) getSchema(ctx context.Context, input string) (string, error) {
	var infos []string
	for _, name := range strings.Split(cleanInput(input), ",") {
		name = strings.Trim(strings.TrimSpace(name), "`\"'")
		if name == "" {
			continue
		}
		if !k.inScope(name) {
			return fmt.Sprintf("Error: %v: %s. Available tables: %s", ErrTableNotInScope, name, strings.Join(k.tables, ", ")), nil
		}
		info, err := k.db.TableInfo(ctx, name)
		if err != nil {
			return "Error: " + err.Error(), ctx.Err()
		}
		infos = append(infos, info)
	}
	if len(infos) == 0 {
		tables, _ := k.listTables(ctx, "")
		return "Error: no table names given. Available tables: " + tables, nil
	}
	return strings.Join(infos, "\n\n"), nil
}

func (k *toolkit) checkQuery(ctx context.Context, input string) (string, error) {
	if err := k.db.Explain(ctx, cleanInput(input)); err != nil {
		return "Error: " + err.Error(), ctx.Err()
	}
	return "The query is valid.", nil
}

func (k *toolkit) runQuery(ctx context.Context, input string) (string, error) {
	statement := cleanInput(input)
	metrics.SQLStatementsCaptured.Inc()

	var observation string
	rows, err := k.db.Execute(ctx, statement)
	if err != nil {
		observation = "Error: " + err.Error()
	} else {
		observation = rows.String()
	}
	k.rec.record(Invocation{Statement: statement, Observation: observation})
	return observation, ctx.Err()
}

// cleanInput strips the code fences and quotes models like to wrap tool input in.
func cleanInput(input string) string {
	s := strings.TrimSpace(input)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimPrefix(s, "sql")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return strings.TrimSpace(s)
}

type funcTool struct {
	name        string
	description string
	fn          func(ctx context.Context, input string) (string, error)
}

func (t *funcTool) Name() string        { return t.name }
func (t *funcTool) Description() string { return t.description }

func (t *funcTool) Call(ctx context.Context, input string) (string, error) {
	return t.fn(ctx, input)
}
