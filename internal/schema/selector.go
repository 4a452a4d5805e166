// Package schema ranks database tables by relevance to a question and keeps
// the schema index in step with the live database.
package schema

import (
	"context"

	"querybot/internal/index"
)

// Selector proposes tables for a question from the schema index.
type Selector struct {
	index index.Index
}

func NewSelector(idx index.Index) *Selector {
	return &Selector{index: idx}
}

// RelevantTables returns the tables of the k nearest schema documents, best
// first. The index may be stale, so callers must pass the result through
// FilterLive before using it.
func (s *Selector) RelevantTables(ctx context.Context, question string, k int) ([]string, error) {
	hits, err := s.index.Search(ctx, question, k)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(hits))
	tables := make([]string, 0, len(hits))
	for _, h := range hits {
		name := h.Table
		if name == "" {
			name = h.ID
		}
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		tables = append(tables, name)
	}
	return tables, nil
}

// FilterLive keeps the candidates present in live, preserving candidate order.
func FilterLive(candidates, live []string) []string {
	liveSet := make(map[string]bool, len(live))
	for _, t := range live {
		liveSet[t] = true
	}

	out := make([]string, 0, len(candidates))
	for _, t := range candidates {
		if liveSet[t] {
			out = append(out, t)
		}
	}
	return out
}
