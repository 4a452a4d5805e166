package reasoning

import (
	"strings"

	"querybot/internal/models"
)

const generalKnowledgeInstruction = "You are a helpful assistant that can query a database to answer questions. " +
	"If the question is about the data in the database, use the provided tools to query it. " +
	"If the question is NOT about the database or you can answer it with your general knowledge, just answer it directly. " +
	"Do not try to query the database for general knowledge questions like 'Who are you?' or 'What is 2+2?'."

// Context is everything the engine sees about one question.
type Context struct {
	Question          string
	FormatInstruction string
	History           []models.Turn
	ScopedTables      []string
	Background        string
}

// WithFormat appends the caller's formatting request to a question.
func WithFormat(question, formatInstruction string) string {
	if strings.TrimSpace(formatInstruction) == "" {
		return question
	}
	return question + "\n\nPlease format the output as follows: " + formatInstruction
}

// BuildInput renders c as the single input string handed to the engine.
func BuildInput(c Context) string {
	var b strings.Builder
	b.WriteString(generalKnowledgeInstruction)

	if len(c.ScopedTables) > 0 {
		b.WriteString("\nOnly use these tables: ")
		b.WriteString(strings.Join(c.ScopedTables, ", "))
		b.WriteString(".")
	}

	if bg := strings.TrimSpace(c.Background); bg != "" {
		b.WriteString("\n\n")
		b.WriteString(bg)
	}

	if len(c.History) > 0 {
		b.WriteString("\n\nConversation so far:")
		for _, t := range c.History {
			b.WriteString("\nUser: ")
			b.WriteString(t.Question)
			b.WriteString("\nAssistant: ")
			b.WriteString(t.Answer)
		}
	}

	b.WriteString("\nQuestion: ")
	b.WriteString(WithFormat(c.Question, c.FormatInstruction))
	return b.String()
}
