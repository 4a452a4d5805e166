// internal/models/report.go
package models

// SlotKind names the semantic role a report placeholder plays.
type SlotKind string

const (
	SlotDate      SlotKind = "date"
	SlotStartDate SlotKind = "start_date"
	SlotEndDate   SlotKind = "end_date"
	SlotNumber    SlotKind = "number"
	SlotMinNumber SlotKind = "min_number"
	SlotMaxNumber SlotKind = "max_number"
	SlotText      SlotKind = "text"
)

// ReportTemplate is a named, parameterized SQL query answerable without the reasoning engine.
type ReportTemplate struct {
	ID          string              `json:"id" yaml:"-"`
	Name        string              `json:"name" yaml:"name"`
	Description string              `json:"description,omitempty" yaml:"description"`
	Query       string              `json:"query" yaml:"query"`
	Parameters  map[string]SlotKind `json:"parameters,omitempty" yaml:"parameters"`
}

// ReportSummary is the public listing view of a template.
type ReportSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Summary strips the query from the template.
func (r *ReportTemplate) Summary() ReportSummary {
	return ReportSummary{ID: r.ID, Name: r.Name, Description: r.Description}
}
