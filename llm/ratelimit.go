package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedProvider throttles calls to an underlying provider. Wait blocks
// until a token is available or ctx is cancelled, so upstream quota errors
// surface as local backpressure instead.
type RateLimitedProvider struct {
	inner   Provider
	limiter *rate.Limiter
}

// NewRateLimitedProvider wraps p with a limiter of rps requests per second
// and the given burst.
func NewRateLimitedProvider(p Provider, rps float64, burst int) *RateLimitedProvider {
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedProvider{
		inner:   p,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Completion implements Provider.
func (p *RateLimitedProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return p.inner.Completion(ctx, req)
}

// Name implements Provider.
func (p *RateLimitedProvider) Name() string { return p.inner.Name() }
