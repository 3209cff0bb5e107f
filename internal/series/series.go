// Package series provides immutable daily price tables. A Table is built
// once, validated, and then shared across goroutines without copying;
// immutability is the concurrency contract.
package series

import (
	"fmt"
	"time"

	bterrors "backsim/internal/errors"
	"backsim/internal/models"
)

// Table is a validated, strictly date-ascending sequence of daily bars
// for one symbol. It is immutable after construction.
type Table struct {
	symbol string
	bars   []models.Bar
}

// New validates and copies bars into an immutable Table. It rejects an
// empty input, out-of-order or duplicate dates, non-positive prices, and
// bars whose high is below their low. Missing calendar days are fine;
// gaps are never interpolated.
func New(symbol string, bars []models.Bar) (*Table, error) {
	if symbol == "" {
		return nil, bterrors.NewDataError(symbol, "validate", "symbol is required", nil)
	}
	if len(bars) == 0 {
		return nil, bterrors.NewDataError(symbol, "validate", "no bars", bterrors.ErrDataNotFound)
	}

	copied := make([]models.Bar, len(bars))
	copy(copied, bars)

	var prev time.Time
	for i, b := range copied {
		if b.Date.IsZero() {
			return nil, bterrors.NewDataError(symbol, "validate",
				fmt.Sprintf("bar %d has no date", i), nil)
		}
		if i > 0 && !b.Date.After(prev) {
			return nil, bterrors.NewDataError(symbol, "validate",
				fmt.Sprintf("bar dates must be strictly ascending at index %d (%s)", i, b.Date.Format("2006-01-02")), nil)
		}
		if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
			return nil, bterrors.NewDataError(symbol, "validate",
				fmt.Sprintf("non-positive price at %s", b.Date.Format("2006-01-02")), nil)
		}
		if b.High < b.Low {
			return nil, bterrors.NewDataError(symbol, "validate",
				fmt.Sprintf("high below low at %s", b.Date.Format("2006-01-02")), nil)
		}
		prev = b.Date
	}

	return &Table{symbol: symbol, bars: copied}, nil
}

// Symbol returns the symbol this table belongs to.
func (t *Table) Symbol() string { return t.symbol }

// Len returns the number of bars.
func (t *Table) Len() int { return len(t.bars) }

// Bar returns the bar at index i.
func (t *Table) Bar(i int) models.Bar { return t.bars[i] }

// First returns the earliest bar.
func (t *Table) First() models.Bar { return t.bars[0] }

// Last returns the latest bar.
func (t *Table) Last() models.Bar { return t.bars[len(t.bars)-1] }

// UpTo returns bars [0..i] as a read-only view. This is the truncated
// slice the driver hands a strategy so it can never see past index i.
// Callers must not modify the returned slice.
func (t *Table) UpTo(i int) []models.Bar {
	if i < 0 {
		return nil
	}
	if i >= len(t.bars) {
		i = len(t.bars) - 1
	}
	return t.bars[: i+1 : i+1]
}

// Bars returns the full read-only view.
func (t *Table) Bars() []models.Bar {
	return t.bars[:len(t.bars):len(t.bars)]
}

// Dates returns the dates of all bars in order.
func (t *Table) Dates() []time.Time {
	dates := make([]time.Time, len(t.bars))
	for i, b := range t.bars {
		dates[i] = b.Date
	}
	return dates
}

// IndexOf returns the index of the bar on the given date, or -1 when the
// symbol has no bar that day.
func (t *Table) IndexOf(date time.Time) int {
	lo, hi := 0, len(t.bars)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		switch {
		case t.bars[mid].Date.Equal(date):
			return mid
		case t.bars[mid].Date.Before(date):
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}
	return -1
}
