// Package orchestrator answers questions by walking the recovery chain:
// cache, deterministic report, reasoning, salvage.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"querybot/internal/common/database"
	apperrors "querybot/internal/common/errors"
	"querybot/internal/common/logger"
	"querybot/internal/common/metrics"
	"querybot/internal/common/observability"
	"querybot/internal/knowledge"
	"querybot/internal/llm"
	"querybot/internal/models"
	"querybot/internal/reasoning"
	"querybot/internal/reports"
	"querybot/internal/schema"
	"querybot/internal/session"

	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultSessionID = "default"
	NoRecordsAnswer  = "No records found for the requested criteria."
)

// Database is the SQL surface the pipeline uses directly.
type Database interface {
	Execute(ctx context.Context, query string) (*database.Rows, error)
	ListTables(ctx context.Context) ([]string, error)
}

// Deps are the collaborators of a Bot. Knowledge and Observability are optional.
type Deps struct {
	Matcher       *reports.Matcher
	Selector      *schema.Selector
	Sessions      *session.Store
	Dispatcher    *reasoning.Dispatcher
	Completer     llm.Completer
	DB            Database
	Knowledge     *knowledge.Store
	Observability *observability.Observability
	Logger        logger.Logger
}

type Options struct {
	TopKTables    int
	KnowledgeTopK int
	Learn         bool
}

type Bot struct {
	Deps
	opts Options
}

func New(deps Deps, opts Options) *Bot {
	if deps.Logger == nil {
		deps.Logger = logger.NewNoOpLogger()
	}
	if deps.Observability == nil {
		deps.Observability = observability.NewNoop()
	}
	if opts.TopKTables <= 0 {
		opts.TopKTables = 3
	}
	if opts.KnowledgeTopK <= 0 {
		opts.KnowledgeTopK = opts.TopKTables
	}
	return &Bot{Deps: deps, opts: opts}
}

// Reports lists the registered report templates.
func (b *Bot) Reports() []models.ReportSummary {
	all := b.Matcher.Registry().All()
	out := make([]models.ReportSummary, 0, len(all))
	for _, t := range all {
		out = append(out, t.Summary())
	}
	return out
}

// Report returns the template registered under id.
func (b *Bot) Report(id string) (*models.ReportTemplate, bool) {
	return b.Matcher.Template(id)
}

// GenerateReport asks for a free-form report in the given output format.
func (b *Bot) GenerateReport(ctx context.Context, description, formatType, sessionID string) *models.QueryResult {
	if formatType == "" {
		formatType = "table"
	}
	prompt := fmt.Sprintf("Generate a detailed report for: %s. Output format: %s.", description, formatType)
	return b.Ask(ctx, prompt, "", sessionID)
}

// Ask answers one question. It never fails: every problem is folded into the
// returned result.
func (b *Bot) Ask(ctx context.Context, question, formatInstruction, sessionID string) *models.QueryResult {
	start := time.Now()
	if sessionID == "" {
		sessionID = DefaultSessionID
	}

	ctx, span := b.Observability.StartSpan(ctx, "querybot.ask", attribute.String("session.id", sessionID))
	defer span.End()

	res := b.ask(ctx, question, formatInstruction, sessionID)

	outcome := string(res.Outcome)
	span.SetAttributes(attribute.String("outcome", outcome))
	metrics.QuestionsAnswered.WithLabelValues(outcome).Inc()
	metrics.QuestionDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	b.Observability.RecordQuestion(ctx, outcome, time.Since(start))

	b.Logger.Info("Question answered", map[string]interface{}{
		"session":    sessionID,
		"outcome":    outcome,
		"reportId":   res.ReportID,
		"statements": len(res.SQLQueries),
		"durationMs": time.Since(start).Milliseconds(),
	})
	return res
}

func (b *Bot) ask(ctx context.Context, question, formatInstruction, sessionID string) *models.QueryResult {
	state, release, err := b.Sessions.Acquire(ctx, sessionID)
	if err != nil {
		return b.fail(apperrors.NewSessionUnavailableError(sessionID, err), "I'm sorry, your session is busy. Please try again.")
	}
	defer release()

	key := session.CacheKey(question, formatInstruction)
	if res, ok := b.fromCache(ctx, state, key); ok {
		return res
	}

	res := b.pipeline(ctx, state, question, formatInstruction)
	if res.Outcome != models.OutcomeFailed {
		entry := models.CacheEntry{
			Answer:     res.Answer,
			SQLQueries: res.SQLQueries,
			ReportID:   res.ReportID,
			Error:      res.Error,
		}
		if err := state.Remember(ctx, key, entry); err != nil {
			b.Logger.Warn("Failed to cache result", map[string]interface{}{"session": sessionID, "error": err.Error()})
		}
	}
	return res
}

func (b *Bot) fromCache(ctx context.Context, state *session.State, key string) (*models.QueryResult, bool) {
	entry, err := state.Lookup(ctx, key)
	if err != nil {
		if !errors.Is(err, session.ErrCacheMiss) {
			b.Logger.Warn("Cache lookup failed", map[string]interface{}{"session": state.ID, "error": err.Error()})
		}
		return nil, false
	}

	res := models.NewQueryResult(entry.Answer, entry.SQLQueries)
	res.ReportID = entry.ReportID
	res.Error = entry.Error
	res.Cached = true
	res.Outcome = models.OutcomeCached
	return res, true
}

// pipeline runs everything after the cache check. Each stage either returns a
// terminal result or records why it fell through.
func (b *Bot) pipeline(ctx context.Context, state *session.State, question, formatInstruction string) *models.QueryResult {
	var fallbacks []error

	if id := b.Matcher.FindReportID(question); id != "" {
		res, err := b.runReport(ctx, state, id, question, formatInstruction)
		if res != nil {
			return res
		}
		fallbacks = append(fallbacks, err)
		b.fallback(err)
	}

	res, failure := b.reason(ctx, state, question, formatInstruction)
	if failure == nil {
		res.Error = joinErrors(fallbacks)
		return res
	}
	fallbacks = append(fallbacks, apperrors.NewReasoningFailedError(failure))
	b.fallback(fallbacks[len(fallbacks)-1])

	res, err := b.salvage(ctx, state, question, formatInstruction, failure)
	if err == nil {
		res.Error = joinErrors(fallbacks)
		return res
	}
	b.fallback(err)

	terminal := apperrors.NewTerminalFailureError(failure, err)
	out := b.fail(terminal, fmt.Sprintf(
		"I'm sorry, I could not answer your question. The database assistant failed (%v) and the fallback answer also failed (%v).",
		failure.Cause, errors.Unwrap(err),
	))
	out.SQLQueries = failure.SQLQueries()
	if len(fallbacks) > 1 {
		out.Error = joinErrors(append(fallbacks[:len(fallbacks)-1], terminal))
	}
	return out
}

func (b *Bot) runReport(ctx context.Context, state *session.State, id, question, formatInstruction string) (*models.QueryResult, error) {
	ctx, span := b.Observability.StartSpan(ctx, "querybot.report", attribute.String("report.id", id))
	defer span.End()

	tpl, _ := b.Matcher.Template(id)
	if missing := b.Matcher.MissingVariables(id, question); len(missing) > 0 {
		res := models.NewQueryResult(reports.MissingVariablesMessage(tpl, missing), nil)
		res.ReportID = id
		res.Outcome = models.OutcomeNeedsInput
		return res, nil
	}

	query, _ := b.Matcher.FormatQuery(id, question)
	rows, err := b.DB.Execute(ctx, query)
	if err != nil {
		metrics.ReportExecutions.WithLabelValues(id, "failed").Inc()
		return nil, apperrors.NewReportExecutionFailedError(id, err)
	}
	metrics.ReportExecutions.WithLabelValues(id, "succeeded").Inc()
	b.Matcher.LogExecution(id, query)

	res := models.NewQueryResult(NoRecordsAnswer, []string{query})
	res.ReportID = id
	res.Outcome = models.OutcomeDeterministic

	if !rows.Empty() {
		answer, err := b.Completer.Complete(ctx, reportPrompt(tpl, question, formatInstruction, query, rows.String()))
		if err != nil {
			ferr := apperrors.NewResultFormattingFailedError(err)
			b.fallback(ferr)
			answer = rows.String()
			res.Error = ferr.Error()
		}
		res.Answer = answer
	}

	state.AppendTurn(question, res.Answer)
	return res, nil
}

func (b *Bot) reason(ctx context.Context, state *session.State, question, formatInstruction string) (*models.QueryResult, *reasoning.Failure) {
	ctx, span := b.Observability.StartSpan(ctx, "querybot.reasoning")
	defer span.End()

	tables := b.scopeTables(ctx, question)
	span.SetAttributes(attribute.StringSlice("tables", tables))

	var background string
	if b.opts.Learn && b.Knowledge != nil {
		bg, err := b.Knowledge.Recall(ctx, question, b.opts.KnowledgeTopK)
		if err != nil {
			b.Logger.Warn("Knowledge recall failed", map[string]interface{}{"error": err.Error()})
		}
		background = bg
	}

	out, err := b.Dispatcher.Dispatch(ctx, state, reasoning.Request{
		Question:          question,
		FormatInstruction: formatInstruction,
		Tables:            tables,
		Background:        background,
	})
	if err != nil {
		var failure *reasoning.Failure
		if !errors.As(err, &failure) {
			failure = &reasoning.Failure{Cause: err}
		}
		return nil, failure
	}

	if b.opts.Learn && b.Knowledge != nil {
		b.Knowledge.Record(question, out.Answer)
	}

	res := models.NewQueryResult(out.Answer, out.SQLQueries)
	res.Outcome = models.OutcomeReasoned
	return res, nil
}

// scopeTables proposes tables for the question and keeps only those that
// exist. When none survive, every live table is in scope. A nil result means
// the live schema is unknown and the tools are left unrestricted.
func (b *Bot) scopeTables(ctx context.Context, question string) []string {
	live, err := b.DB.ListTables(ctx)
	if err != nil {
		b.Logger.Warn("Listing live tables failed", map[string]interface{}{"error": err.Error()})
		return nil
	}

	candidates, err := b.Selector.RelevantTables(ctx, question, b.opts.TopKTables)
	if err != nil {
		b.Logger.Warn("Table selection failed", map[string]interface{}{"error": err.Error()})
	}

	scoped := schema.FilterLive(candidates, live)
	if dropped := len(candidates) - len(scoped); dropped > 0 {
		b.Logger.Debug("Dropped tables missing from live schema", map[string]interface{}{"dropped": dropped})
	}
	if len(scoped) == 0 {
		return live
	}
	return scoped
}

func (b *Bot) salvage(ctx context.Context, state *session.State, question, formatInstruction string, failure *reasoning.Failure) (*models.QueryResult, error) {
	ctx, span := b.Observability.StartSpan(ctx, "querybot.salvage")
	defer span.End()

	prompt := reasoning.WithFormat(question, formatInstruction)
	if last, ok := failure.Last(); ok {
		prompt = salvagePrompt(question, formatInstruction, last)
	}

	answer, err := b.Completer.Complete(ctx, prompt)
	if err == nil && strings.TrimSpace(answer) == "" {
		err = errors.New("empty completion")
	}
	if err != nil {
		return nil, apperrors.NewSalvageFailedError(err)
	}

	state.AppendTurn(question, answer)
	res := models.NewQueryResult(answer, failure.SQLQueries())
	res.Outcome = models.OutcomeSalvaged
	return res, nil
}

func (b *Bot) fail(err *apperrors.StandardError, answer string) *models.QueryResult {
	b.fallback(err)
	res := models.NewQueryResult(answer, nil)
	res.Error = err.Error()
	res.Outcome = models.OutcomeFailed
	return res
}

func (b *Bot) fallback(err error) {
	code := apperrors.CodeOf(err)
	if code == "" {
		code = "UNKNOWN"
	}
	metrics.FallbacksFired.WithLabelValues(string(code)).Inc()
	b.Logger.Warn("Fallback fired", map[string]interface{}{
		"code":      string(code),
		"category":  apperrors.GetErrorCategory(code),
		"retryable": apperrors.IsRetryableErrorCode(code),
		"error":     err.Error(),
	})
}

func joinErrors(errs []error) string {
	parts := make([]string, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			parts = append(parts, err.Error())
		}
	}
	return strings.Join(parts, "; ")
}
