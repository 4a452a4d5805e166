// Package llm provides single-shot text completion backends.
package llm

import (
	"context"
	"fmt"
	"time"

	"querybot/internal/common/config"
	"querybot/internal/common/logger"

	"github.com/tmc/langchaingo/llms"
)

// Completer turns one prompt into one completion.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Provider names accepted in llm.provider.
const (
	ProviderGenAI  = "genai"
	ProviderOpenAI = "openai"
)

// NewModel builds the chat model selected by cfg. The same model backs both
// direct completions and the reasoning agent.
func NewModel(cfg config.LLMConfig, log logger.Logger) (llms.Model, error) {
	switch cfg.Provider {
	case ProviderGenAI, "":
		return NewGenAI(cfg, log), nil
	case ProviderOpenAI:
		return NewOpenAI(cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// New returns a rate limited Completer over the model selected by cfg.
func New(cfg config.LLMConfig, log logger.Logger) (Completer, llms.Model, error) {
	model, err := NewModel(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	var c Completer = NewLangChain(model, cfg.MaxTokens, cfg.Temperature)
	if cfg.RequestsPerSecond > 0 {
		c = NewRateLimited(c, cfg.RequestsPerSecond, cfg.Burst)
	}
	return c, model, nil
}

func timeoutOf(cfg config.LLMConfig) time.Duration {
	if cfg.Timeout <= 0 {
		return 60 * time.Second
	}
	return config.GetDuration(cfg.Timeout)
}
