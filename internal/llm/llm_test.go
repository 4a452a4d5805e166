package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"querybot/internal/common/config"
	apperrors "querybot/internal/common/errors"
	"querybot/internal/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func newGenAI(t *testing.T, handler http.HandlerFunc, retries int) *GenAI {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewGenAI(config.LLMConfig{
		BaseURL:     server.URL + "/",
		APIKey:      "secret",
		Model:       "gateway-default",
		Timeout:     2000,
		MaxRetries:  retries,
		MaxTokens:   256,
		Temperature: 0,
	}, logger.NewTestLogger(t))
}

func TestGenAI_Complete(t *testing.T) {
	var got generateRequest
	g := newGenAI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, generatePath, r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":" There are 3 students. "}`))
	}, 0)

	out, err := NewLangChain(g, 128, 0.2).Complete(context.Background(), "How many students?")
	require.NoError(t, err)
	assert.Equal(t, "There are 3 students.", out)
	assert.Equal(t, "How many students?", got.Prompt)
	assert.Equal(t, 128, got.MaxTokens)
	assert.Equal(t, 0.2, got.Temperature)
	assert.Equal(t, "gateway-default", got.Model)
}

func TestGenAI_RetriesWithFreshBody(t *testing.T) {
	var calls atomic.Int32
	g := newGenAI(t, func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Prompt == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"text":"ok"}`))
	}, 3)

	out, err := g.Call(context.Background(), "ping")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.EqualValues(t, 3, calls.Load())
}

func TestGenAI_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		code    apperrors.ErrorCode
	}{
		{
			name:    "server error",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) },
			code:    apperrors.ErrCodeLLMSynthesisFailed,
		},
		{
			name:    "empty text",
			handler: func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{"text":"  "}`)) },
			code:    apperrors.ErrCodeLLMSynthesisFailed,
		},
		{
			name:    "bad json",
			handler: func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`not json`)) },
			code:    apperrors.ErrCodeLLMSynthesisFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGenAI(t, tt.handler, 1)
			_, err := NewLangChain(g, 0, 0).Complete(context.Background(), "q")
			require.Error(t, err)
			assert.Equal(t, tt.code, apperrors.CodeOf(err))
		})
	}
}

func TestGenAI_ContextCancelled(t *testing.T) {
	g := newGenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}, 5)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := g.Call(ctx, "q")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeLLMTimeout, apperrors.CodeOf(err))
}

func TestGenAI_StopWords(t *testing.T) {
	g := newGenAI(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"text":"Action: run_query\nAction Input: SELECT 1\nObservation: 1"}`))
	}, 0)

	out, err := g.Call(context.Background(), "q", llms.WithStopWords([]string{"\nObservation:"}))
	require.NoError(t, err)
	assert.Equal(t, "Action: run_query\nAction Input: SELECT 1", out)
}

func TestFlatten(t *testing.T) {
	msgs := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, "be brief"),
		llms.TextParts(llms.ChatMessageTypeHuman, "hi"),
	}
	assert.Equal(t, "system: be brief\n\nhi", flatten(msgs))
}

type countingCompleter struct{ calls atomic.Int32 }

func (c *countingCompleter) Complete(context.Context, string) (string, error) {
	c.calls.Add(1)
	return "x", nil
}

func TestRateLimited(t *testing.T) {
	next := &countingCompleter{}
	rl := NewRateLimited(next, 1, 1)

	_, err := rl.Complete(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = rl.Complete(ctx, "b")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeLLMTimeout, apperrors.CodeOf(err))
	assert.EqualValues(t, 1, next.calls.Load())
}

func TestNewModel(t *testing.T) {
	m, err := NewModel(config.LLMConfig{Provider: ProviderGenAI, BaseURL: "http://gateway"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &GenAI{}, m)

	_, err = NewModel(config.LLMConfig{Provider: "carrier-pigeon"}, nil)
	assert.Error(t, err)
}
