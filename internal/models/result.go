// internal/models/result.go
package models

// Outcome tags which path of the answering pipeline produced a result.
type Outcome string

const (
	OutcomeCached        Outcome = "cached"
	OutcomeDeterministic Outcome = "deterministic"
	OutcomeNeedsInput    Outcome = "needs_input"
	OutcomeReasoned      Outcome = "reasoned"
	OutcomeSalvaged      Outcome = "salvaged"
	OutcomeFailed        Outcome = "failed"
)

// QueryResult is returned by every terminal path of Ask.
type QueryResult struct {
	Answer     string   `json:"answer"`
	SQLQueries []string `json:"sql_queries"`
	ReportID   string   `json:"report_id,omitempty"`
	Error      string   `json:"error,omitempty"`
	Cached     bool     `json:"cached,omitempty"`
	Outcome    Outcome  `json:"-"`
}

// NewQueryResult returns a result whose SQLQueries is never nil.
func NewQueryResult(answer string, queries []string) *QueryResult {
	if queries == nil {
		queries = []string{}
	}
	return &QueryResult{Answer: answer, SQLQueries: queries}
}
