// Package ledger provides the per-symbol instrument ledger: the book of
// open positions a simulation holds, keyed by symbol and aware of asset
// types. All position mutation flows through the settlement engine; the
// ledger enforces its own invariants as a second line of defense.
package ledger

import (
	"fmt"
	"sort"
	"sync"

	bterrors "backsim/internal/errors"
	"backsim/internal/models"
)

// Ledger is a mutex-guarded book of open positions. A symbol never maps
// to a zero-quantity position: closing the final unit removes the entry.
type Ledger struct {
	mu        sync.RWMutex
	positions map[string]*models.Position
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		positions: make(map[string]*models.Position),
	}
}

// Open inserts a new position. It rejects duplicates and positions that
// fail validation.
func (l *Ledger) Open(pos *models.Position) error {
	if pos == nil {
		return bterrors.ErrInvalidInput
	}
	if err := pos.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.positions[pos.Symbol]; exists {
		return fmt.Errorf("%w: %s", bterrors.ErrPositionExists, pos.Symbol)
	}
	l.positions[pos.Symbol] = pos
	return nil
}

// Add blends qty units at price into an existing long position, moving
// the entry price to the volume-weighted average.
func (l *Ledger) Add(symbol string, qty, price float64) error {
	if qty <= 0 || price <= 0 {
		return bterrors.ErrInvalidInput
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[symbol]
	if !ok {
		return fmt.Errorf("%w: %s", bterrors.ErrNoPosition, symbol)
	}

	totalValue := pos.EntryPrice*pos.Quantity + price*qty
	pos.Quantity += qty
	pos.EntryPrice = totalValue / pos.Quantity
	return nil
}

// Reduce removes qty units from an open position. Posted margin and
// premium paid scale down proportionally so the per-unit basis is
// unchanged. Reducing to exactly zero deletes the entry; reducing past
// zero is an error and changes nothing.
func (l *Ledger) Reduce(symbol string, qty float64) error {
	if qty <= 0 {
		return bterrors.ErrInvalidInput
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[symbol]
	if !ok {
		return fmt.Errorf("%w: %s", bterrors.ErrNoPosition, symbol)
	}
	if qty > pos.Quantity {
		return fmt.Errorf("%w: reduce %v exceeds open %v for %s",
			bterrors.ErrInvalidInput, qty, pos.Quantity, symbol)
	}

	remaining := (pos.Quantity - qty) / pos.Quantity
	pos.Quantity -= qty
	pos.MarginPosted *= remaining
	pos.PremiumPaid *= remaining
	if pos.Quantity == 0 {
		delete(l.positions, symbol)
	}
	return nil
}

// Close removes the position entirely and returns it.
func (l *Ledger) Close(symbol string) (*models.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", bterrors.ErrNoPosition, symbol)
	}
	delete(l.positions, symbol)
	return pos, nil
}

// Get returns the open position for symbol, or nil.
func (l *Ledger) Get(symbol string) *models.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.positions[symbol]
}

// Has reports whether a position is open for symbol.
func (l *Ledger) Has(symbol string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.positions[symbol]
	return ok
}

// Len returns the number of open positions.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.positions)
}

// Symbols returns the open symbols in sorted order.
func (l *Ledger) Symbols() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	symbols := make([]string, 0, len(l.positions))
	for s := range l.positions {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// Each calls fn for every open position in sorted symbol order. The
// sorted walk keeps anything derived from iteration deterministic.
func (l *Ledger) Each(fn func(pos *models.Position)) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	symbols := make([]string, 0, len(l.positions))
	for s := range l.positions {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	for _, s := range symbols {
		fn(l.positions[s])
	}
}

// CostBasis sums the cash committed to open positions: stock notional at
// entry plus option premium paid. Futures margin is accounted in the
// portfolio's margin pool, not here.
func (l *Ledger) CostBasis() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var total float64
	for _, pos := range l.positions {
		total += pos.CostBasis()
	}
	return total
}
