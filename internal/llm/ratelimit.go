package llm

import (
	"context"

	apperrors "querybot/internal/common/errors"

	"golang.org/x/time/rate"
)

// RateLimited caps the request rate of the wrapped Completer.
type RateLimited struct {
	next    Completer
	limiter *rate.Limiter
}

func NewRateLimited(next Completer, rps float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (r *RateLimited) Complete(ctx context.Context, prompt string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", apperrors.NewLLMTimeoutError(err)
	}
	return r.next.Complete(ctx, prompt)
}
