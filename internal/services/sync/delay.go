package sync

import (
	"context"
	"math/rand"
	"time"
)

// DelayRange is a randomized wait window. The spacing between upstream
// requests is load-bearing: the upstream throttles bursty traffic from a
// single credential.
type DelayRange struct {
	Min time.Duration
	Max time.Duration
}

// Delayer spaces upstream requests. Implementations must honor ctx
// cancellation.
type Delayer interface {
	Wait(ctx context.Context, r DelayRange) error
}

// RandomDelayer sleeps a uniformly random duration within the range.
type RandomDelayer struct{}

func (RandomDelayer) Wait(ctx context.Context, r DelayRange) error {
	d := r.Min
	if r.Max > r.Min {
		d += time.Duration(rand.Int63n(int64(r.Max - r.Min)))
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NopDelayer waits for nothing. Tests use it to run deterministically.
type NopDelayer struct{}

func (NopDelayer) Wait(ctx context.Context, _ DelayRange) error {
	return ctx.Err()
}
