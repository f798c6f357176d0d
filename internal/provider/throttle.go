package provider

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/tjfontaine/polyglot-intent-router/internal/core/domain"
	"github.com/tjfontaine/polyglot-intent-router/internal/core/ports"
)

var _ ports.Provider = (*Throttled)(nil)

// Throttled rejects calls above a token-bucket rate instead of queueing
// them, so the orchestrator moves on to the next provider right away.
type Throttled struct {
	next    ports.Provider
	limiter *rate.Limiter
}

// NewThrottled limits next to perSecond calls with the given burst (at least 1).
func NewThrottled(next ports.Provider, perSecond float64, burst int) *Throttled {
	if burst < 1 {
		burst = 1
	}
	return &Throttled{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (t *Throttled) Name() string  { return t.next.Name() }
func (t *Throttled) Model() string { return t.next.Model() }

func (t *Throttled) Complete(ctx context.Context, prompt string) (string, error) {
	if !t.limiter.Allow() {
		return "", domain.ErrProvider(t.next.Name(), domain.ErrRateLimited)
	}
	return t.next.Complete(ctx, prompt)
}

// Unwrap returns the throttled provider.
func (t *Throttled) Unwrap() ports.Provider {
	return t.next
}
