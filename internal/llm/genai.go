package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"querybot/internal/common/config"
	apperrors "querybot/internal/common/errors"
	commonhttp "querybot/internal/common/http"
	"querybot/internal/common/logger"

	"github.com/tmc/langchaingo/llms"
)

const generatePath = "/api/ai/generate"

var errEmptyCompletion = errors.New("empty completion")

// GenAI talks to the internal generation gateway. It satisfies llms.Model so
// it can drive the reasoning agent as well as direct completions.
type GenAI struct {
	baseURL     string
	model       string
	maxRetries  int
	maxTokens   int
	temperature float64
	client      *commonhttp.Client
	log         logger.Logger
}

var _ llms.Model = (*GenAI)(nil)

func NewGenAI(cfg config.LLMConfig, log logger.Logger) *GenAI {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &GenAI{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		maxRetries:  cfg.MaxRetries,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		client:      commonhttp.NewClient(timeoutOf(cfg), cfg.APIKey),
		log:         log,
	}
}

type generateRequest struct {
	Prompt      string   `json:"prompt"`
	Model       string   `json:"model,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature float64  `json:"temperature"`
	Stop        []string `json:"stop,omitempty"`
}

type generateResponse struct {
	Text string `json:"text"`
}

// Call implements llms.Model.
func (g *GenAI) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, g, prompt, options...)
}

// GenerateContent flattens the text parts of messages into one prompt.
func (g *GenAI) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{MaxTokens: g.maxTokens, Temperature: g.temperature}
	for _, opt := range options {
		opt(&opts)
	}

	text, err := g.generate(ctx, generateRequest{
		Prompt:      flatten(messages),
		Model:       g.model,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Stop:        opts.StopWords,
	})
	if err != nil {
		return nil, err
	}

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: truncateAtStop(text, opts.StopWords)}},
	}, nil
}

func flatten(messages []llms.MessageContent) string {
	var parts []string
	for _, m := range messages {
		for _, p := range m.Parts {
			if t, ok := p.(llms.TextContent); ok {
				if len(messages) > 1 && m.Role != llms.ChatMessageTypeHuman {
					parts = append(parts, string(m.Role)+": "+t.Text)
					continue
				}
				parts = append(parts, t.Text)
			}
		}
	}
	return strings.Join(parts, "\n\n")
}

func truncateAtStop(text string, stop []string) string {
	for _, s := range stop {
		if i := strings.Index(text, s); i >= 0 {
			text = text[:i]
		}
	}
	return text
}

func (g *GenAI) generate(ctx context.Context, payload generateRequest) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", apperrors.NewLLMSynthesisFailedError(err)
	}

	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", apperrors.NewLLMTimeoutError(ctx.Err())
			}
		}

		resp, lastErr = g.client.PostJSON(ctx, g.baseURL+generatePath, body)
		if lastErr == nil {
			if resp.StatusCode == http.StatusOK {
				break
			}
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			resp = nil
		}

		if ctx.Err() != nil {
			return "", apperrors.NewLLMTimeoutError(ctx.Err())
		}
		g.log.Warn("Generation request failed", map[string]interface{}{
			"attempt": attempt + 1,
			"error":   lastErr.Error(),
		})
	}

	if lastErr != nil {
		return "", apperrors.NewLLMSynthesisFailedError(lastErr)
	}
	defer resp.Body.Close()

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", apperrors.NewLLMSynthesisFailedError(fmt.Errorf("decode error: %w", err))
	}
	if strings.TrimSpace(out.Text) == "" {
		return "", apperrors.NewLLMSynthesisFailedError(errEmptyCompletion)
	}

	g.log.Debug("Generation completed", map[string]interface{}{
		"promptLength":   len(payload.Prompt),
		"responseLength": len(out.Text),
	})
	return out.Text, nil
}
