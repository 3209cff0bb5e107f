// Package portfolio tracks the cash balance, futures margin pool,
// realized results and the full trade and equity history of one
// simulation. It owns the accounting identity the engine is checked
// against after every settled day.
package portfolio

import (
	"fmt"
	"math"
	"sync"

	bterrors "backsim/internal/errors"
	"backsim/internal/ledger"
	"backsim/internal/models"
)

// invariantTolerance absorbs float64 rounding across long runs.
const invariantTolerance = 1e-6

// Portfolio is the account state of a single simulation run. Margin is
// posted out of cash into the pool and released back on close, so
// cash + marginUsed moves only by realized results and fees.
type Portfolio struct {
	mu sync.RWMutex

	initialCapital float64
	cash           float64
	marginUsed     float64
	realized       float64
	fees           float64

	book   *ledger.Ledger
	trades []models.Trade
	curve  []models.EquityPoint
}

// New creates a portfolio funded with the given initial capital.
func New(initialCapital float64) (*Portfolio, error) {
	if initialCapital <= 0 {
		return nil, fmt.Errorf("%w: initial capital must be positive, got %v",
			bterrors.ErrInvalidInput, initialCapital)
	}
	return &Portfolio{
		initialCapital: initialCapital,
		cash:           initialCapital,
		book:           ledger.New(),
	}, nil
}

// Ledger returns the position book.
func (p *Portfolio) Ledger() *ledger.Ledger { return p.book }

// InitialCapital returns the configured starting capital.
func (p *Portfolio) InitialCapital() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.initialCapital
}

// Cash returns the free cash balance.
func (p *Portfolio) Cash() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cash
}

// MarginUsed returns the futures margin currently posted.
func (p *Portfolio) MarginUsed() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.marginUsed
}

// MarginAvailable is the cash a new futures position could post.
func (p *Portfolio) MarginAvailable() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cash
}

// Realized returns cumulative realized profit and loss, gross of fees.
func (p *Portfolio) Realized() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.realized
}

// Fees returns cumulative commission and slippage charged.
func (p *Portfolio) Fees() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fees
}

// DebitCash removes amount from free cash. It fails when the balance
// cannot cover it; balances never go negative.
func (p *Portfolio) DebitCash(amount float64) error {
	if amount < 0 {
		return bterrors.ErrInvalidInput
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if amount > p.cash+invariantTolerance {
		return fmt.Errorf("%w: need %.2f, have %.2f", bterrors.ErrInsufficientFunds, amount, p.cash)
	}
	p.cash -= amount
	return nil
}

// CreditCash adds amount to free cash.
func (p *Portfolio) CreditCash(amount float64) error {
	if amount < 0 {
		return bterrors.ErrInvalidInput
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cash += amount
	return nil
}

// SettleCash applies a signed cash adjustment. Futures settlement uses
// it to realize losses that may overdraw free cash: the balance can go
// negative there, and margin admission checks keep the account from
// opening anything new until it recovers.
func (p *Portfolio) SettleCash(delta float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cash += delta
}

// PostMargin moves amount from cash into the margin pool.
func (p *Portfolio) PostMargin(amount float64) error {
	if amount < 0 {
		return bterrors.ErrInvalidInput
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if amount > p.cash+invariantTolerance {
		return fmt.Errorf("%w: need %.2f, have %.2f", bterrors.ErrInsufficientMargin, amount, p.cash)
	}
	p.cash -= amount
	p.marginUsed += amount
	return nil
}

// ReleaseMargin moves amount from the margin pool back into cash.
func (p *Portfolio) ReleaseMargin(amount float64) error {
	if amount < 0 {
		return bterrors.ErrInvalidInput
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if amount > p.marginUsed+invariantTolerance {
		return fmt.Errorf("%w: release %.2f exceeds posted %.2f",
			bterrors.ErrInvalidInput, amount, p.marginUsed)
	}
	p.marginUsed -= amount
	p.cash += amount
	return nil
}

// AddRealized records realized profit or loss, gross of fees.
func (p *Portfolio) AddRealized(amount float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.realized += amount
}

// AddFees records commission and slippage charged.
func (p *Portfolio) AddFees(amount float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fees += amount
}

// AppendTrade appends a settlement record to the trade log.
func (p *Portfolio) AppendTrade(t models.Trade) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.trades = append(p.trades, t)
}

// AppendEquity appends one day's equity point.
func (p *Portfolio) AppendEquity(pt models.EquityPoint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.curve = append(p.curve, pt)
}

// Trades returns a copy of the trade log.
func (p *Portfolio) Trades() []models.Trade {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]models.Trade, len(p.trades))
	copy(out, p.trades)
	return out
}

// EquityCurve returns a copy of the equity curve.
func (p *Portfolio) EquityCurve() []models.EquityPoint {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]models.EquityPoint, len(p.curve))
	copy(out, p.curve)
	return out
}

// TotalValue is the account equity given the current total unrealized:
// cash, posted margin, committed cost basis and open profit together.
func (p *Portfolio) TotalValue(unrealized float64) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cash + p.marginUsed + p.book.CostBasis() + unrealized
}

// CheckInvariant verifies the accounting identity
//
//	cash + marginUsed + openCostBasis == initialCapital + realized - fees
//
// where openCostBasis covers stock notional and option premium sitting
// in open positions. With no open positions it reduces to the flat-book
// form cash + marginUsed == initialCapital + realized - fees. A drift
// beyond tolerance means settlement double-counted or dropped money.
func (p *Portfolio) CheckInvariant() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	lhs := p.cash + p.marginUsed + p.book.CostBasis()
	rhs := p.initialCapital + p.realized - p.fees
	if diff := math.Abs(lhs - rhs); diff > invariantTolerance {
		return fmt.Errorf("accounting identity violated: cash %.6f + margin %.6f + basis %.6f = %.6f, expected %.6f (drift %.9f)",
			p.cash, p.marginUsed, p.book.CostBasis(), lhs, rhs, diff)
	}
	return nil
}
