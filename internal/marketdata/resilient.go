package marketdata

import (
	"context"
	"errors"
	"time"

	bterrors "backsim/internal/errors"
	"backsim/internal/resilience"
	"backsim/internal/series"
)

// ResilientFetcher guards a remote fetcher with a circuit breaker. When
// the provider itself keeps failing, remaining symbols fast-fail with a
// recorded reason instead of each waiting out the timeout. An answer of
// "no bars for this symbol" is a valid response and never trips the
// breaker, so a universe full of bad symbols behaves exactly as it
// would without the wrapper.
type ResilientFetcher struct {
	inner   Fetcher
	breaker *resilience.Breaker
}

// NewResilientFetcher wraps a remote fetcher. The name labels the
// guarded provider in errors and stats.
func NewResilientFetcher(name string, inner Fetcher) *ResilientFetcher {
	return &ResilientFetcher{
		inner:   inner,
		breaker: resilience.NewBreaker(name, resilience.DefaultConfig()),
	}
}

var _ Fetcher = (*ResilientFetcher)(nil)

func (f *ResilientFetcher) Fetch(ctx context.Context, symbol string, from, to time.Time) (*series.Table, error) {
	if err := f.breaker.Allow(); err != nil {
		return nil, bterrors.NewDataError(symbol, "fetch", f.breaker.Name()+" unavailable", err)
	}

	table, err := f.inner.Fetch(ctx, symbol, from, to)
	switch {
	case err == nil:
		f.breaker.RecordSuccess()
	case bterrors.Is(err, bterrors.ErrDataNotFound):
		// The provider answered; the symbol just has nothing.
		f.breaker.RecordSuccess()
	case errors.Is(err, context.Canceled):
		// Caller cancellation says nothing about the provider.
	default:
		f.breaker.RecordFailure()
	}
	return table, err
}

// BreakerStats exposes the guarded provider's counters.
func (f *ResilientFetcher) BreakerStats() resilience.Stats {
	return f.breaker.Stats()
}
