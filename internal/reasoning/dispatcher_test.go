package reasoning

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"querybot/internal/common/config"
	"querybot/internal/common/database"
	"querybot/internal/common/logger"
	"querybot/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSQLite(t *testing.T) *database.SQLClient {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE students (id INTEGER PRIMARY KEY, name TEXT NOT NULL, class_id INTEGER);
		INSERT INTO students (id, name, class_id) VALUES (1, 'Alice', 7), (2, 'Bob', 7), (3, 'Cara', 8);
		CREATE TABLE fees (student_id INTEGER, balance REAL);
	`)
	require.NoError(t, err)
	return database.NewSQLFromDB(db, config.DriverSQLite, nil)
}

// scriptedEngine calls tools in order and then answers, or fails.
type scriptedEngine struct {
	calls  [][2]string
	answer string
	err    error
	panic  bool
	seen   Context
}

func (e *scriptedEngine) Run(ctx context.Context, c Context, tools []Tool, maxIterations int) (*EngineResult, error) {
	e.seen = c
	byName := map[string]Tool{}
	for _, t := range tools {
		byName[t.Name()] = t
	}
	for _, call := range e.calls {
		if _, err := byName[call[0]].Call(ctx, call[1]); err != nil {
			return nil, err
		}
	}
	if e.panic {
		panic("model returned garbage")
	}
	if e.err != nil {
		return nil, e.err
	}
	return &EngineResult{Answer: e.answer}, nil
}

func newState(t *testing.T) *session.State {
	t.Helper()
	return session.NewStore(3, 5*time.Minute, nil).GetOrCreate("s1")
}

func TestDispatch_Success(t *testing.T) {
	engine := &scriptedEngine{
		calls: [][2]string{
			{ToolCheckQuery, "SELECT COUNT(*) AS n FROM students"},
			{ToolRunQuery, "```sql\nSELECT COUNT(*) AS n FROM students;\n```"},
		},
		answer: " There are 3 students. ",
	}
	d := NewDispatcher(engine, setupSQLite(t), 5, logger.NewTestLogger(t))
	state := newState(t)

	res, err := d.Dispatch(context.Background(), state, Request{
		Question:          "How many students are there?",
		FormatInstruction: "one sentence",
		Tables:            []string{"students"},
		Background:        "Learned Knowledge (from previous interactions):\n- none",
	})
	require.NoError(t, err)
	assert.Equal(t, "There are 3 students.", res.Answer)
	assert.Equal(t, []string{"SELECT COUNT(*) AS n FROM students;"}, res.SQLQueries)
	assert.Equal(t, []string{"n\n3"}, res.Observations)

	assert.Equal(t, []string{"students"}, engine.seen.ScopedTables)
	require.Equal(t, 1, state.Window.Len())
	assert.Equal(t, "How many students are there?", state.Window.Turns()[0].Question)
}

func TestDispatch_HistoryPassedToEngine(t *testing.T) {
	engine := &scriptedEngine{answer: "ok"}
	d := NewDispatcher(engine, setupSQLite(t), 0, nil)
	state := newState(t)
	state.AppendTurn("first question", "first answer")

	_, err := d.Dispatch(context.Background(), state, Request{Question: "second"})
	require.NoError(t, err)
	require.Len(t, engine.seen.History, 1)
	assert.Equal(t, "first answer", engine.seen.History[0].Answer)
	assert.Equal(t, 2, state.Window.Len())
}

func TestDispatch_FailureKeepsCapturedStatements(t *testing.T) {
	tests := []struct {
		name   string
		engine *scriptedEngine
		cause  error
	}{
		{
			name: "iteration limit",
			engine: &scriptedEngine{
				calls: [][2]string{{ToolRunQuery, "SELECT name FROM students WHERE class_id = 7"}},
				err:   ErrIterationLimit,
			},
			cause: ErrIterationLimit,
		},
		{
			name: "empty answer",
			engine: &scriptedEngine{
				calls:  [][2]string{{ToolRunQuery, "SELECT name FROM students WHERE class_id = 7"}},
				answer: "  ",
			},
			cause: ErrEmptyAnswer,
		},
		{
			name: "panic",
			engine: &scriptedEngine{
				calls: [][2]string{{ToolRunQuery, "SELECT name FROM students WHERE class_id = 7"}},
				panic: true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDispatcher(tt.engine, setupSQLite(t), 5, nil)
			state := newState(t)

			res, err := d.Dispatch(context.Background(), state, Request{Question: "who is in class 7", Tables: []string{"students"}})
			assert.Nil(t, res)

			var failure *Failure
			require.True(t, errors.As(err, &failure))
			if tt.cause != nil {
				assert.ErrorIs(t, err, tt.cause)
			}
			assert.Equal(t, []string{"SELECT name FROM students WHERE class_id = 7"}, failure.SQLQueries())

			last, ok := failure.Last()
			require.True(t, ok)
			assert.Equal(t, "name\nAlice\nBob", last.Observation)
			assert.Zero(t, state.Window.Len())
		})
	}
}

func TestFailure_NoStatements(t *testing.T) {
	f := &Failure{Cause: errors.New("boom")}
	assert.Equal(t, []string{}, f.SQLQueries())
	_, ok := f.Last()
	assert.False(t, ok)
	assert.Contains(t, f.Error(), "boom")
}

func TestTools(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	kit := &toolkit{db: setupSQLite(t), tables: []string{"students"}, rec: rec}
	byName := map[string]Tool{}
	for _, tool := range kit.tools() {
		byName[tool.Name()] = tool
	}

	out, err := byName[ToolListTables].Call(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "students", out)

	out, err = byName[ToolGetSchema].Call(ctx, "students")
	require.NoError(t, err)
	assert.Contains(t, out, "CREATE TABLE students")
	assert.Contains(t, out, "Alice")

	out, err = byName[ToolGetSchema].Call(ctx, "students, fees")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Error: table not in scope: fees"))

	out, err = byName[ToolCheckQuery].Call(ctx, `"SELECT * FROM nowhere"`)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Error:"))

	out, err = byName[ToolCheckQuery].Call(ctx, "SELECT name FROM students")
	require.NoError(t, err)
	assert.Equal(t, "The query is valid.", out)

	out, err = byName[ToolRunQuery].Call(ctx, "SELECT * FROM nowhere")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Error:"))
	assert.Len(t, rec.invocations(), 1)
}

type unlistableDB struct {
	*database.SQLClient
}

func (unlistableDB) ListTables(context.Context) ([]string, error) {
	return nil, errors.New("information_schema unavailable")
}

func TestTools_EmptyScopeIsUnrestricted(t *testing.T) {
	ctx := context.Background()
	kit := &toolkit{db: setupSQLite(t), rec: &recorder{}}
	byName := map[string]Tool{}
	for _, tool := range kit.tools() {
		byName[tool.Name()] = tool
	}

	out, err := byName[ToolListTables].Call(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "fees, students", out)

	out, err = byName[ToolGetSchema].Call(ctx, "students, fees")
	require.NoError(t, err)
	assert.Contains(t, out, "CREATE TABLE students")
	assert.Contains(t, out, "CREATE TABLE fees")

	out, err = byName[ToolGetSchema].Call(ctx, " ")
	require.NoError(t, err)
	assert.Equal(t, "Error: no table names given. Available tables: fees, students", out)
}

func TestTools_EmptyScopeListFailure(t *testing.T) {
	ctx := context.Background()
	kit := &toolkit{db: unlistableDB{setupSQLite(t)}, rec: &recorder{}}
	byName := map[string]Tool{}
	for _, tool := range kit.tools() {
		byName[tool.Name()] = tool
	}

	out, err := byName[ToolListTables].Call(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "Error: information_schema unavailable", out)

	out, err = byName[ToolGetSchema].Call(ctx, "students")
	require.NoError(t, err)
	assert.Contains(t, out, "CREATE TABLE students")
}

func TestDispatch_EmptyScope(t *testing.T) {
	engine := &scriptedEngine{
		calls: [][2]string{
			{ToolGetSchema, "fees"},
			{ToolRunQuery, "SELECT COUNT(*) AS n FROM fees"},
		},
		answer: "No fees recorded.",
	}
	d := NewDispatcher(engine, setupSQLite(t), 5, nil)

	res, err := d.Dispatch(context.Background(), newState(t), Request{Question: "How many fee rows?"})
	require.NoError(t, err)
	assert.Equal(t, []string{"n\n0"}, res.Observations)
	assert.Empty(t, engine.seen.ScopedTables)
}

func TestBuildInput(t *testing.T) {
	in := BuildInput(Context{
		Question:          "How many students?",
		FormatInstruction: "a table",
		ScopedTables:      []string{"students", "fees"},
		Background:        "Learned Knowledge (from previous interactions):\nQ: x\nA: y",
	})

	assert.True(t, strings.HasPrefix(in, generalKnowledgeInstruction))
	assert.Contains(t, in, "Only use these tables: students, fees.")
	assert.Contains(t, in, "Learned Knowledge (from previous interactions):")
	assert.True(t, strings.HasSuffix(in, "Question: How many students?\n\nPlease format the output as follows: a table"))
	assert.NotContains(t, in, "Conversation so far")
}

func TestWithFormat(t *testing.T) {
	assert.Equal(t, "q", WithFormat("q", "  "))
	assert.Equal(t, "q\n\nPlease format the output as follows: bullets", WithFormat("q", "bullets"))
}
