package knowledge

import (
	"context"
	"errors"
	"testing"

	"querybot/internal/common/logger"
	"querybot/internal/index"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingIndex struct{ index.Index }

func (failingIndex) Add(context.Context, ...index.Document) error {
	return errors.New("index offline")
}

func TestStore_RecordAndRecall(t *testing.T) {
	ctx := context.Background()
	s := NewStore(index.NewMemory(), logger.NewTestLogger(t))

	s.Record("What is the secret code?", "The secret code is 12345.")
	s.Record("How many classes are there?", "There are 2 classes.")
	s.Wait()

	bg, err := s.Recall(ctx, "Tell me the secret code again.", 1)
	require.NoError(t, err)
	assert.Contains(t, bg, "Learned Knowledge")
	assert.Contains(t, bg, "The secret code is 12345.")
	assert.NotContains(t, bg, "classes")
}

func TestStore_RecallNothingKnown(t *testing.T) {
	s := NewStore(index.NewMemory(), nil)
	bg, err := s.Recall(context.Background(), "anything", 3)
	require.NoError(t, err)
	assert.Empty(t, bg)
}

func TestStore_RecordFailureIsLogged(t *testing.T) {
	s := NewStore(failingIndex{}, logger.NewTestLogger(t))
	s.Record("q", "a")
	s.Close()
}

func TestStore_RecordAfterClose(t *testing.T) {
	idx := index.NewMemory()
	s := NewStore(idx, nil)
	s.Close()
	s.Record("q", "a")
	s.Wait()

	n, _ := idx.Count(context.Background())
	assert.Zero(t, n)
}

func TestDocument(t *testing.T) {
	a := Document("q", "a")
	b := Document("q", "a")
	assert.Equal(t, "Question: q\nAnswer: a", a.Content)
	assert.NotEqual(t, a.ID, b.ID)
}
