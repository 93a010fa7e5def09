package llm

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Limited bounds the request rate and the number of in-flight calls to a backend.
// It is shared by every agent that uses the same backend.
type Limited struct {
	Backend
	limiter *rate.Limiter
	sem     *semaphore.Weighted
}

// NewLimited wraps b. A non-positive rps disables rate limiting and a
// non-positive maxInFlight disables the concurrency cap.
func NewLimited(b Backend, rps float64, burst int, maxInFlight int64) *Limited {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst < 1 {
		burst = 1
	}
	l := &Limited{
		Backend: b,
		limiter: rate.NewLimiter(limit, burst),
	}
	if maxInFlight > 0 {
		l.sem = semaphore.NewWeighted(maxInFlight)
	}
	return l
}

// Complete waits for a rate token and a free slot, then delegates.
func (l *Limited) Complete(ctx context.Context, req Request) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}
	if l.sem != nil {
		if err := l.sem.Acquire(ctx, 1); err != nil {
			return "", fmt.Errorf("acquire backend slot: %w", err)
		}
		defer l.sem.Release(1)
	}
	return l.Backend.Complete(ctx, req)
}

// Pinger is implemented by backends that can check their endpoint without a completion.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping delegates to the wrapped backend when it supports it.
func (l *Limited) Ping(ctx context.Context) error {
	if p, ok := l.Backend.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
