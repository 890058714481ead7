package ai

import (
	"context"
	"fmt"
	"image"
	"time"

	"golang.org/x/sync/semaphore"
)

// Guarded serialises access to a backend that owns a single accelerator.
// Waiting callers hold their own context; nothing is queued on their behalf.
type Guarded struct {
	next    Generator
	sem     *semaphore.Weighted
	timeout time.Duration
}

// NewGuarded allows at most maxInFlight concurrent generations, each bounded by timeout
// (zero disables the timeout).
func NewGuarded(next Generator, maxInFlight int64, timeout time.Duration) *Guarded {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	return &Guarded{
		next:    next,
		sem:     semaphore.NewWeighted(maxInFlight),
		timeout: timeout,
	}
}

func (g *Guarded) Generate(ctx context.Context, req GenerateRequest) (image.Image, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for generator slot: %w", err)
	}
	defer g.sem.Release(1)

	return g.next.Generate(ctx, req)
}
