package marketdata

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bterrors "backsim/internal/errors"
	"backsim/internal/resilience"
	"backsim/internal/series"
)

// brokenFetcher simulates a provider that is down at the transport
// level.
type brokenFetcher struct {
	calls int
}

func (f *brokenFetcher) Fetch(ctx context.Context, symbol string, from, to time.Time) (*series.Table, error) {
	f.calls++
	return nil, fmt.Errorf("dial tcp: connection refused")
}

// emptyFetcher simulates a healthy provider that has no bars for any
// requested symbol.
type emptyFetcher struct {
	calls int
}

func (f *emptyFetcher) Fetch(ctx context.Context, symbol string, from, to time.Time) (*series.Table, error) {
	f.calls++
	return nil, bterrors.NewDataError(symbol, "fetch", "no bars", bterrors.ErrDataNotFound)
}

func TestResilientFetcherPassesThrough(t *testing.T) {
	inner := NewMemFetcher(makeTable(t, "ACME", 5))
	f := NewResilientFetcher("mem", inner)

	table, err := f.Fetch(context.Background(), "ACME", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 5, table.Len())

	stats := f.BreakerStats()
	assert.Equal(t, resilience.StateClosed, stats.State)
	assert.Equal(t, int64(1), stats.Successes)
}

func TestResilientFetcherFastFailsWhenProviderIsDown(t *testing.T) {
	inner := &brokenFetcher{}
	f := NewResilientFetcher("alpaca", inner)

	// Default threshold is five consecutive failures.
	for i := 0; i < 5; i++ {
		_, err := f.Fetch(context.Background(), fmt.Sprintf("SYM%d", i), time.Time{}, time.Time{})
		require.Error(t, err)
	}
	assert.Equal(t, 5, inner.calls)

	// The sixth symbol fails fast without reaching the provider, and
	// the error still carries the symbol like any other data error.
	_, err := f.Fetch(context.Background(), "LATE", time.Time{}, time.Time{})
	require.Error(t, err)
	assert.True(t, bterrors.Is(err, resilience.ErrOpen))
	assert.Contains(t, err.Error(), "LATE")
	assert.Contains(t, err.Error(), "alpaca")
	assert.Equal(t, 5, inner.calls)
}

func TestResilientFetcherTreatsMissingSymbolsAsAnswers(t *testing.T) {
	inner := &emptyFetcher{}
	f := NewResilientFetcher("postgres", inner)

	// A universe full of unknown symbols must behave exactly as it
	// would without the wrapper: every fetch reaches the provider.
	for i := 0; i < 20; i++ {
		_, err := f.Fetch(context.Background(), fmt.Sprintf("SYM%d", i), time.Time{}, time.Time{})
		require.Error(t, err)
		assert.True(t, bterrors.Is(err, bterrors.ErrDataNotFound))
	}
	assert.Equal(t, 20, inner.calls)
	assert.Equal(t, resilience.StateClosed, f.BreakerStats().State)
}

func TestResilientFetcherIgnoresCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inner := NewMemFetcher(makeTable(t, "ACME", 5))
	f := NewResilientFetcher("mem", inner)

	for i := 0; i < 10; i++ {
		_, err := f.Fetch(ctx, "ACME", time.Time{}, time.Time{})
		require.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, resilience.StateClosed, f.BreakerStats().State)
}
