package index

import (
	"context"
	"math"
	"sort"
	"sync"
)

const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

type entry struct {
	doc    Document
	terms  map[string]int
	length int
}

// Memory is an in-process BM25 index.
type Memory struct {
	mu      sync.RWMutex
	entries []*entry
	byID    map[string]int
	df      map[string]int
	total   int
}

func NewMemory() *Memory {
	return &Memory{byID: map[string]int{}, df: map[string]int{}}
}

func (m *Memory) Add(_ context.Context, docs ...Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, doc := range docs {
		e := &entry{doc: doc, terms: map[string]int{}}
		for _, t := range Tokenize(doc.Content) {
			e.terms[t]++
			e.length++
		}

		if i, ok := m.byID[doc.ID]; ok {
			m.forget(m.entries[i])
			m.entries[i] = e
		} else {
			m.byID[doc.ID] = len(m.entries)
			m.entries = append(m.entries, e)
		}
		for t := range e.terms {
			m.df[t]++
		}
		m.total += e.length
	}
	return nil
}

func (m *Memory) forget(e *entry) {
	for t := range e.terms {
		if m.df[t]--; m.df[t] == 0 {
			delete(m.df, t)
		}
	}
	m.total -= e.length
}

func (m *Memory) Search(_ context.Context, text string, k int) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if k <= 0 || len(m.entries) == 0 {
		return nil, nil
	}
	query := Tokenize(text)
	if len(query) == 0 {
		return nil, nil
	}

	n := float64(len(m.entries))
	avg := float64(m.total) / n
	if avg == 0 {
		avg = 1
	}

	hits := make([]Hit, 0, len(m.entries))
	for _, e := range m.entries {
		var score float64
		for _, t := range query {
			tf := float64(e.terms[t])
			if tf == 0 {
				continue
			}
			idf := math.Log((n+1)/(float64(m.df[t])+1)) + 1
			score += idf * tf * (bm25K1 + 1) / (tf + bm25K1*(1-bm25B+bm25B*float64(e.length)/avg))
		}
		if score > 0 {
			hits = append(hits, Hit{Document: e.doc, Score: score})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	m.byID = map[string]int{}
	m.df = map[string]int{}
	m.total = 0
	return nil
}

func (m *Memory) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}
