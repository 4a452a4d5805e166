// Package agent runs the reasoning loop with a langchaingo zero-shot ReAct agent.
package agent

import (
	"context"
	"errors"
	"fmt"

	"querybot/internal/reasoning"

	"github.com/tmc/langchaingo/agents"
	"github.com/tmc/langchaingo/chains"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools"
)

const promptPrefix = `You are an agent designed to interact with a SQL database.
Given an input question, create a syntactically correct SQL query to run, then look at the results of the query and return the answer.
Unless the user specifies a specific number of examples they wish to obtain, limit your query to at most 10 results.
Never query for all the columns from a specific table, only ask for the relevant columns given the question.
You MUST double check your query before executing it. If you get an error while executing a query, rewrite the query and try again.
DO NOT make any DML statements (INSERT, UPDATE, DELETE, DROP etc.) to the database.

You have access to the following tools:

{{.tool_descriptions}}`

const parseRetryObservation = "Could not parse your last reply. Reply with either an Action and Action Input, or a Final Answer."

type Engine struct {
	model llms.Model
}

var _ reasoning.Engine = (*Engine)(nil)

func New(model llms.Model) *Engine {
	return &Engine{model: model}
}

func (e *Engine) Run(ctx context.Context, c reasoning.Context, capabilities []reasoning.Tool, maxIterations int) (*reasoning.EngineResult, error) {
	toolset := make([]tools.Tool, 0, len(capabilities))
	for _, t := range capabilities {
		toolset = append(toolset, t)
	}

	agent := agents.NewOneShotAgent(e.model, toolset, agents.WithPromptPrefix(promptPrefix))
	executor := agents.NewExecutor(agent,
		agents.WithMaxIterations(maxIterations),
		agents.WithParserErrorHandler(agents.NewParserErrorHandler(func(string) string {
			return parseRetryObservation
		})),
	)

	out, err := chains.Call(ctx, executor, map[string]any{"input": reasoning.BuildInput(c)})
	if err != nil {
		if errors.Is(err, agents.ErrNotFinished) {
			return nil, fmt.Errorf("%w after %d steps: %w", reasoning.ErrIterationLimit, maxIterations, err)
		}
		return nil, err
	}

	answer, ok := out["output"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: output of type %T", reasoning.ErrEmptyAnswer, out["output"])
	}
	return &reasoning.EngineResult{Answer: answer}, nil
}
