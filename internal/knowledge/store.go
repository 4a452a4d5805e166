// Package knowledge remembers answered questions and recalls the relevant ones
// as background for later questions.
package knowledge

import (
	"context"
	"strings"
	"sync"
	"time"

	"querybot/internal/common/logger"
	"querybot/internal/index"

	"github.com/google/uuid"
)

const recallHeader = "Learned Knowledge (from previous interactions):"

const recordTimeout = 30 * time.Second

// Store writes interactions to an index in the background.
type Store struct {
	index index.Index
	log   logger.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewStore(idx index.Index, log logger.Logger) *Store {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Store{index: idx, log: log}
}

// Document renders one interaction the way it is indexed and recalled.
func Document(question, answer string) index.Document {
	return index.Document{
		ID:      uuid.NewString(),
		Content: "Question: " + question + "\nAnswer: " + answer,
	}
}

// Record indexes the interaction asynchronously. It is a no-op after Close.
func (s *Store) Record(question, answer string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	doc := Document(question, answer)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()

		if err := s.index.Add(ctx, doc); err != nil {
			s.log.Warn("Failed to record interaction", map[string]interface{}{
				"id":    doc.ID,
				"error": err.Error(),
			})
		}
	}()
}

// Recall returns the k most relevant past interactions as a background block,
// or "" when nothing relevant is known.
func (s *Store) Recall(ctx context.Context, question string, k int) (string, error) {
	hits, err := s.index.Search(ctx, question, k)
	if err != nil {
		return "", err
	}
	if len(hits) == 0 {
		return "", nil
	}

	parts := make([]string, 0, len(hits)+1)
	parts = append(parts, recallHeader)
	for _, h := range hits {
		parts = append(parts, h.Content)
	}
	return strings.Join(parts, "\n\n"), nil
}

// Wait blocks until every pending Record has finished.
func (s *Store) Wait() {
	s.wg.Wait()
}

// Close stops accepting records and waits for pending ones.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
}
