// Package reasoning scopes a question to a set of tables and hands it to a
// tool-using reasoning engine, capturing every statement the engine runs.
package reasoning

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"querybot/internal/common/logger"
	"querybot/internal/session"
)

var (
	// ErrIterationLimit is returned by engines that ran out of steps.
	ErrIterationLimit = errors.New("iteration limit reached")
	ErrEmptyAnswer    = errors.New("engine returned no final answer")
)

const defaultMaxIterations = 10

// EngineResult is the engine's final answer.
type EngineResult struct {
	Answer string
}

// Engine runs a bounded tool-use loop over c.
type Engine interface {
	Run(ctx context.Context, c Context, tools []Tool, maxIterations int) (*EngineResult, error)
}

type Request struct {
	Question          string
	FormatInstruction string
	Tables            []string
	Background        string
}

type Result struct {
	Answer       string
	SQLQueries   []string
	Observations []string
}

// Failure means the engine produced no usable answer. It carries whatever
// statements ran before it gave up.
type Failure struct {
	Cause       error
	Invocations []Invocation
}

func (f *Failure) Error() string {
	return fmt.Sprintf("reasoning failed after %d statement(s): %v", len(f.Invocations), f.Cause)
}

func (f *Failure) Unwrap() error {
	return f.Cause
}

// SQLQueries lists captured statements in call order. Never nil.
func (f *Failure) SQLQueries() []string {
	return statements(f.Invocations)
}

// Last returns the most recent captured statement.
func (f *Failure) Last() (Invocation, bool) {
	if len(f.Invocations) == 0 {
		return Invocation{}, false
	}
	return f.Invocations[len(f.Invocations)-1], true
}

func statements(invs []Invocation) []string {
	out := make([]string, 0, len(invs))
	for _, inv := range invs {
		out = append(out, inv.Statement)
	}
	return out
}

type Dispatcher struct {
	engine        Engine
	db            Database
	maxIterations int
	log           logger.Logger
}

func NewDispatcher(engine Engine, db Database, maxIterations int, log logger.Logger) *Dispatcher {
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Dispatcher{engine: engine, db: db, maxIterations: maxIterations, log: log}
}

// Dispatch runs the engine for one question. The caller must hold state
// exclusively. Any engine problem, including a panic, comes back as *Failure.
func (d *Dispatcher) Dispatch(ctx context.Context, state *session.State, req Request) (res *Result, err error) {
	rec := &recorder{}
	kit := &toolkit{db: d.db, tables: req.Tables, rec: rec}

	c := Context{
		Question:          req.Question,
		FormatInstruction: req.FormatInstruction,
		History:           state.Window.Turns(),
		ScopedTables:      req.Tables,
		Background:        req.Background,
	}

	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = &Failure{Cause: fmt.Errorf("engine panic: %v", r), Invocations: rec.invocations()}
		}
		if err != nil {
			d.log.Warn("Reasoning failed", map[string]interface{}{
				"session":    state.ID,
				"statements": len(rec.invocations()),
				"error":      err.Error(),
			})
		}
	}()

	out, runErr := d.engine.Run(ctx, c, kit.tools(), d.maxIterations)
	if runErr != nil {
		return nil, &Failure{Cause: runErr, Invocations: rec.invocations()}
	}
	if out == nil || strings.TrimSpace(out.Answer) == "" {
		return nil, &Failure{Cause: ErrEmptyAnswer, Invocations: rec.invocations()}
	}

	invs := rec.invocations()
	observations := make([]string, 0, len(invs))
	for _, inv := range invs {
		observations = append(observations, inv.Observation)
	}

	answer := strings.TrimSpace(out.Answer)
	state.AppendTurn(req.Question, answer)

	d.log.Info("Reasoning completed", map[string]interface{}{
		"session":    state.ID,
		"tables":     req.Tables,
		"statements": len(invs),
	})
	return &Result{Answer: answer, SQLQueries: statements(invs), Observations: observations}, nil
}
