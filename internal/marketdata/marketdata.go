// Package marketdata fetches daily bar histories from pluggable
// sources: in-memory fixtures, CSV directories, the local bar store,
// Postgres, or the Alpaca data API. Every fetcher returns a validated
// series table; a fetch failure is fatal for that symbol only.
package marketdata

import (
	"context"
	"time"

	bterrors "backsim/internal/errors"
	"backsim/internal/models"
	"backsim/internal/series"
)

// Fetcher loads one symbol's daily history. A zero from or to leaves
// that side of the range unbounded.
type Fetcher interface {
	Fetch(ctx context.Context, symbol string, from, to time.Time) (*series.Table, error)
}

// clipRange returns the bars inside [from, to].
func clipRange(bars []models.Bar, from, to time.Time) []models.Bar {
	out := make([]models.Bar, 0, len(bars))
	for _, b := range bars {
		if !from.IsZero() && b.Date.Before(from) {
			continue
		}
		if !to.IsZero() && b.Date.After(to) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// ===========================================================================
// In-memory fetcher
// ===========================================================================

// MemFetcher serves preloaded tables. Fixtures and dry runs use it in
// place of a real source.
type MemFetcher struct {
	tables map[string]*series.Table
}

// NewMemFetcher creates a fetcher over the given tables.
func NewMemFetcher(tables ...*series.Table) *MemFetcher {
	m := &MemFetcher{tables: make(map[string]*series.Table, len(tables))}
	for _, t := range tables {
		m.tables[t.Symbol()] = t
	}
	return m
}

// Add registers another table.
func (m *MemFetcher) Add(table *series.Table) {
	m.tables[table.Symbol()] = table
}

func (m *MemFetcher) Fetch(ctx context.Context, symbol string, from, to time.Time) (*series.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	table, ok := m.tables[symbol]
	if !ok {
		return nil, bterrors.NewDataError(symbol, "fetch", "symbol not loaded", bterrors.ErrDataNotFound)
	}
	clipped := clipRange(table.Bars(), from, to)
	if len(clipped) == 0 {
		return nil, bterrors.NewDataError(symbol, "fetch", "no bars in requested range", bterrors.ErrDataNotFound)
	}
	return series.New(symbol, clipped)
}

// ===========================================================================
// Store-backed fetcher
// ===========================================================================

// BarSource reads raw bars from a persistence layer.
type BarSource interface {
	GetBars(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error)
}

// SourceFetcher adapts a BarSource into a Fetcher.
type SourceFetcher struct {
	src BarSource
}

// NewSourceFetcher wraps a bar store as a fetcher.
func NewSourceFetcher(src BarSource) *SourceFetcher {
	return &SourceFetcher{src: src}
}

func (f *SourceFetcher) Fetch(ctx context.Context, symbol string, from, to time.Time) (*series.Table, error) {
	bars, err := f.src.GetBars(ctx, symbol, from, to)
	if err != nil {
		return nil, bterrors.NewDataError(symbol, "store", "reading bars failed", err)
	}
	if len(bars) == 0 {
		return nil, bterrors.NewDataError(symbol, "store", "no bars stored", bterrors.ErrDataNotFound)
	}
	return series.New(symbol, bars)
}
