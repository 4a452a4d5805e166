// Package index provides the keyword retrieval used to rank schema descriptions
// and recall learned knowledge.
package index

import (
	"context"
	"regexp"
	"strings"
)

// Document is one retrievable unit of text.
type Document struct {
	ID      string `json:"id"`
	Table   string `json:"table,omitempty"`
	Content string `json:"content"`
}

// Hit is a scored search result.
type Hit struct {
	Document
	Score float64 `json:"score"`
}

// Index stores documents and ranks them against free text.
type Index interface {
	// Add inserts documents, replacing any with the same ID.
	Add(ctx context.Context, docs ...Document) error
	// Search returns at most k hits with a positive score, best first.
	Search(ctx context.Context, text string, k int) ([]Hit, error)
	// Reset drops every document.
	Reset(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// Tokenize lowercases text and splits it into alphanumeric terms. Identifiers
// such as class_id yield both parts.
func Tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}
