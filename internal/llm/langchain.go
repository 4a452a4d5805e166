package llm

import (
	"context"
	"errors"
	"strings"

	"querybot/internal/common/config"
	apperrors "querybot/internal/common/errors"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// NewOpenAI builds an OpenAI compatible chat model.
func NewOpenAI(cfg config.LLMConfig) (llms.Model, error) {
	opts := []openai.Option{openai.WithToken(cfg.APIKey)}
	if cfg.Model != "" {
		opts = append(opts, openai.WithModel(cfg.Model))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}
	return model, nil
}

// LangChain completes prompts with any langchaingo model.
type LangChain struct {
	model       llms.Model
	maxTokens   int
	temperature float64
}

func NewLangChain(model llms.Model, maxTokens int, temperature float64) *LangChain {
	return &LangChain{model: model, maxTokens: maxTokens, temperature: temperature}
}

func (l *LangChain) Complete(ctx context.Context, prompt string) (string, error) {
	opts := []llms.CallOption{llms.WithTemperature(l.temperature)}
	if l.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(l.maxTokens))
	}

	text, err := llms.GenerateFromSinglePrompt(ctx, l.model, prompt, opts...)
	if err != nil {
		var se *apperrors.StandardError
		if errors.As(err, &se) {
			return "", err
		}
		if ctx.Err() != nil {
			return "", apperrors.NewLLMTimeoutError(err)
		}
		return "", apperrors.NewLLMSynthesisFailedError(err)
	}
	if strings.TrimSpace(text) == "" {
		return "", apperrors.NewLLMSynthesisFailedError(errEmptyCompletion)
	}
	return strings.TrimSpace(text), nil
}
