package orchestrator

import (
	"fmt"
	"strings"

	"querybot/internal/models"
	"querybot/internal/reasoning"
)

func reportPrompt(tpl *models.ReportTemplate, question, formatInstruction, query, rows string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are presenting the result of report %s (%s).\n", tpl.ID, tpl.Name)
	if tpl.Description != "" {
		fmt.Fprintf(&b, "Report description: %s\n", tpl.Description)
	}
	fmt.Fprintf(&b, "The user asked: %s\n\n", reasoning.WithFormat(question, formatInstruction))
	fmt.Fprintf(&b, "SQL executed:\n%s\n\nResult:\n%s\n\n", query, rows)
	b.WriteString("Answer the user's question using only this result. Do not invent rows or values.")
	return b.String()
}

// salvagePrompt asks for a best effort answer from the last statement the
// reasoning engine ran before it gave up.
func salvagePrompt(question, formatInstruction string, last reasoning.Invocation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The user asked: %s\n\n", reasoning.WithFormat(question, formatInstruction))
	fmt.Fprintf(&b, "The last SQL query run to answer it was:\n%s\n\n", last.Statement)
	fmt.Fprintf(&b, "It returned:\n%s\n\n", last.Observation)
	b.WriteString("Answer the question as well as possible from this result. " +
		"If the result does not contain the answer, say what it does show.")
	return b.String()
}
