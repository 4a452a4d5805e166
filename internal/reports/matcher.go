// Package reports recognizes known report ids in questions and resolves their query templates.
package reports

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"querybot/internal/models"
	"querybot/pkg/registry"

	"go.uber.org/zap"
)

type idPattern struct {
	id string
	re *regexp.Regexp
}

// Matcher finds report ids in free text and fills their templates from it.
type Matcher struct {
	registry *registry.Registry
	patterns []idPattern
	audit    *zap.Logger
}

// NewMatcher precompiles one whole-word pattern per registered id. audit may be nil.
func NewMatcher(reg *registry.Registry, audit *zap.Logger) *Matcher {
	if audit == nil {
		audit = zap.NewNop()
	}
	m := &Matcher{registry: reg, audit: audit}
	for _, id := range reg.IDs() {
		m.patterns = append(m.patterns, idPattern{
			id: id,
			re: regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(id) + `\b`),
		})
	}
	return m
}

// Registry exposes the underlying template store.
func (m *Matcher) Registry() *registry.Registry {
	return m.registry
}

// FindReportID returns the first registered id, in store order, that appears
// in text as a case-insensitive whole word, or "".
func (m *Matcher) FindReportID(text string) string {
	for _, p := range m.patterns {
		if p.re.MatchString(text) {
			return p.id
		}
	}
	return ""
}

// Template returns the template registered under id.
func (m *Matcher) Template(id string) (*models.ReportTemplate, bool) {
	return m.registry.Get(id)
}

func (m *Matcher) stripID(id, text string) string {
	for _, p := range m.patterns {
		if p.id == id {
			return p.re.ReplaceAllString(text, "")
		}
	}
	return text
}

// resolve returns the value of every placeholder in the template that the text can satisfy.
func (m *Matcher) resolve(tpl *models.ReportTemplate, text string) map[string]string {
	clean := m.stripID(tpl.ID, text)
	fanout := ExtractParameters(clean)

	values := make(map[string]string)
	for _, name := range Placeholders(tpl.Query) {
		if kind, declared := tpl.Parameters[name]; declared {
			if v, ok := resolveSlot(kind, clean); ok {
				values[name] = v
			}
			continue
		}
		if v, ok := fanout[name]; ok {
			values[name] = v
		}
	}
	return values
}

// FormatQuery fills the template of reportID from userText. Placeholders that
// cannot be resolved are left in {name} form. ok is false for unknown ids.
func (m *Matcher) FormatQuery(reportID, userText string) (query string, ok bool) {
	tpl, found := m.registry.Get(reportID)
	if !found {
		return "", false
	}
	return substitute(NormalizePlaceholders(tpl.Query), m.resolve(tpl, userText)), true
}

// MissingVariables lists, sorted, the placeholders userText cannot satisfy.
func (m *Matcher) MissingVariables(reportID, userText string) []string {
	tpl, found := m.registry.Get(reportID)
	if !found {
		return nil
	}

	values := m.resolve(tpl, userText)
	var missing []string
	for _, name := range Placeholders(tpl.Query) {
		if _, ok := values[name]; !ok {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

// LogExecution appends an audit record for a report run.
func (m *Matcher) LogExecution(reportID, query string) {
	name := "Unknown"
	if tpl, ok := m.registry.Get(reportID); ok {
		name = tpl.Name
	}
	m.audit.Info("report executed",
		zap.String("reportId", reportID),
		zap.String("reportName", name),
		zap.String("query", query),
	)
}

// MissingVariablesMessage is the answer shown when a report cannot run yet.
func MissingVariablesMessage(tpl *models.ReportTemplate, missing []string) string {
	return fmt.Sprintf(
		"Report %s (%s) requires additional information: %s. Please include them in your question.",
		tpl.ID, tpl.Name, strings.Join(missing, ", "),
	)
}
