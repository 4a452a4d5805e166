// Package errors provides the structured error taxonomy shared by the answering pipeline.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Pipeline failures surfaced in QueryResult.Error.
const (
	ErrCodeParameterMissing         ErrorCode = "PARAMETER_MISSING"
	ErrCodeReportExecutionFailed    ErrorCode = "REPORT_EXECUTION_FAILED"
	ErrCodeResultFormattingFailed   ErrorCode = "RESULT_FORMATTING_FAILED"
	ErrCodeReasoningFailed          ErrorCode = "REASONING_FAILED"
	ErrCodeSalvageFailed            ErrorCode = "SALVAGE_FAILED"
	ErrCodeTerminalFailure          ErrorCode = "TERMINAL_FAILURE"
	ErrCodeSessionUnavailable       ErrorCode = "SESSION_UNAVAILABLE"
	ErrCodeTemplateNotFound         ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrCodeTemplateValidationFailed ErrorCode = "TEMPLATE_VALIDATION_FAILED"

	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeQueryTimeout             ErrorCode = "QUERY_TIMEOUT"

	ErrCodeElasticsearchConnectionFailed ErrorCode = "ELASTICSEARCH_CONNECTION_FAILED"
	ErrCodeSearchQueryFailed             ErrorCode = "SEARCH_QUERY_FAILED"
	ErrCodeIndexNotFound                 ErrorCode = "INDEX_NOT_FOUND"

	ErrCodeCacheUnavailable ErrorCode = "CACHE_UNAVAILABLE"

	ErrCodeLLMTimeout         ErrorCode = "LLM_TIMEOUT"
	ErrCodeLLMSynthesisFailed ErrorCode = "LLM_SYNTHESIS_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata attaches a key to the error and returns it for chaining.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message string, cause error, retryable bool) *StandardError {
	details := ""
	if cause != nil {
		details = cause.Error()
	}
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// NewParameterMissingError reports placeholders the question did not supply.
func NewParameterMissingError(reportID string, missing []string) *StandardError {
	return &StandardError{
		Code:      ErrCodeParameterMissing,
		Message:   fmt.Sprintf("report %s requires additional information", reportID),
		Details:   strings.Join(missing, ", "),
		Retryable: false,
		Metadata:  map[string]interface{}{"reportId": reportID, "missing": missing},
		Timestamp: time.Now().UTC(),
	}
}

// NewReportExecutionFailedError wraps a failed deterministic report query.
func NewReportExecutionFailedError(reportID string, err error) *StandardError {
	return newError(ErrCodeReportExecutionFailed, fmt.Sprintf("report %s failed to execute", reportID), err, true).
		WithMetadata("reportId", reportID)
}

// NewResultFormattingFailedError wraps a failed formatting completion.
func NewResultFormattingFailedError(err error) *StandardError {
	return newError(ErrCodeResultFormattingFailed, "report rows could not be formatted", err, true)
}

// NewReasoningFailedError wraps an engine failure.
func NewReasoningFailedError(err error) *StandardError {
	return newError(ErrCodeReasoningFailed, "reasoning engine did not produce an answer", err, true)
}

// NewSalvageFailedError wraps a failed degraded completion.
func NewSalvageFailedError(err error) *StandardError {
	return newError(ErrCodeSalvageFailed, "fallback answer could not be produced", err, true)
}

// NewTerminalFailureError combines the reasoning and salvage failures.
func NewTerminalFailureError(reasoning, salvage error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTerminalFailure,
		Message:   "no answer could be produced",
		Details:   fmt.Sprintf("reasoning: %v; fallback: %v", reasoning, salvage),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     reasoning,
	}
}

// NewSessionUnavailableError is returned when a session lock could not be taken.
func NewSessionUnavailableError(sessionID string, err error) *StandardError {
	return newError(ErrCodeSessionUnavailable, fmt.Sprintf("session %s is unavailable", sessionID), err, true)
}

// NewTemplateNotFoundError creates a non-retryable template error.
func NewTemplateNotFoundError(reportID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTemplateNotFound,
		Message:   "Report template not found",
		Details:   fmt.Sprintf("reportId: %s", reportID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTemplateValidationFailedError creates a non-retryable template validation error.
func NewTemplateValidationFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTemplateValidationFailed,
		Message:   "Report template store is invalid",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseConnectionFailed, "Database connection error", err, true)
}

// NewQueryExecutionFailedError creates a retryable query execution error.
func NewQueryExecutionFailedError(err error) *StandardError {
	return newError(ErrCodeQueryExecutionFailed, "Database query execution error", err, true)
}

// NewQueryTimeoutError creates a retryable query timeout error.
func NewQueryTimeoutError(err error) *StandardError {
	return newError(ErrCodeQueryTimeout, "Database query timeout", err, true)
}

// NewElasticsearchConnectionFailedError creates a retryable Elasticsearch connection error.
func NewElasticsearchConnectionFailedError(err error) *StandardError {
	return newError(ErrCodeElasticsearchConnectionFailed, "Elasticsearch connection error", err, true)
}

// NewSearchQueryFailedError creates a retryable search query error.
func NewSearchQueryFailedError(index string, err error) *StandardError {
	return newError(ErrCodeSearchQueryFailed, fmt.Sprintf("search on %s failed", index), err, true)
}

// NewIndexNotFoundError creates a non-retryable index not found error.
func NewIndexNotFoundError(indexName string) *StandardError {
	return &StandardError{
		Code:      ErrCodeIndexNotFound,
		Message:   "Search index not found",
		Details:   fmt.Sprintf("indexName: %s", indexName),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCacheUnavailableError wraps a cache backend failure.
func NewCacheUnavailableError(err error) *StandardError {
	return newError(ErrCodeCacheUnavailable, "Response cache unavailable", err, true)
}

// NewLLMTimeoutError creates a retryable LLM timeout error.
func NewLLMTimeoutError(err error) *StandardError {
	return newError(ErrCodeLLMTimeout, "LLM call timed out", err, true)
}

// NewLLMSynthesisFailedError creates a retryable LLM synthesis error.
func NewLLMSynthesisFailedError(err error) *StandardError {
	return newError(ErrCodeLLMSynthesisFailed, "LLM completion error", err, true)
}

// GetRetryCount returns the recommended retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseConnectionFailed,
		ErrCodeQueryExecutionFailed,
		ErrCodeElasticsearchConnectionFailed,
		ErrCodeSearchQueryFailed,
		ErrCodeLLMSynthesisFailed,
		ErrCodeCacheUnavailable:
		return 3

	case ErrCodeQueryTimeout,
		ErrCodeReportExecutionFailed:
		return 2

	case ErrCodeLLMTimeout,
		ErrCodeReasoningFailed,
		ErrCodeResultFormattingFailed,
		ErrCodeSalvageFailed,
		ErrCodeTerminalFailure,
		ErrCodeSessionUnavailable:
		return 1

	default:
		return 0
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "PARAMETER") || strings.Contains(codeStr, "TEMPLATE") || strings.Contains(codeStr, "REPORT"):
		return "REPORT"
	case strings.Contains(codeStr, "ELASTICSEARCH") || strings.Contains(codeStr, "SEARCH") || strings.Contains(codeStr, "INDEX"):
		return "SEARCH"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "QUERY"):
		return "DATABASE"
	case strings.Contains(codeStr, "LLM") || strings.Contains(codeStr, "REASONING") || strings.Contains(codeStr, "SALVAGE") || strings.Contains(codeStr, "FORMATTING"):
		return "AI"
	case strings.Contains(codeStr, "CACHE") || strings.Contains(codeStr, "SESSION"):
		return "SESSION"
	default:
		return "OTHER"
	}
}

// CodeOf returns the code of the first StandardError in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var se *StandardError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ""
}
