package strategy

import (
	"context"
	"fmt"

	"backsim/internal/models"
)

// ===========================================================================
// SMA crossover
// ===========================================================================

// SMACross signals when a fast moving average crosses a slow one. A
// golden cross (fast rising through slow) buys, a death cross sells.
type SMACross struct {
	fast  int
	slow  int
	asset models.AssetType
}

// NewSMACross creates an SMA crossover provider.
func NewSMACross(fast, slow int, asset models.AssetType) *SMACross {
	if fast >= slow {
		fast, slow = slow, fast
	}
	return &SMACross{fast: fast, slow: slow, asset: asset}
}

func (s *SMACross) Name() string {
	return fmt.Sprintf("sma-cross-%d-%d", s.fast, s.slow)
}

func (s *SMACross) WarmUp() int { return s.slow + 1 }

func (s *SMACross) Evaluate(ctx context.Context, view []models.Bar) (models.Signal, error) {
	i := len(view) - 1
	if i < s.slow {
		return models.Hold("insufficient history"), nil
	}

	fastNow := sma(view, i, s.fast)
	slowNow := sma(view, i, s.slow)
	fastPrev := sma(view, i-1, s.fast)
	slowPrev := sma(view, i-1, s.slow)

	switch {
	case fastPrev <= slowPrev && fastNow > slowNow:
		return models.Signal{
			Kind:   models.SignalBuy,
			Asset:  s.asset,
			Reason: fmt.Sprintf("golden cross: SMA%d %.2f above SMA%d %.2f", s.fast, fastNow, s.slow, slowNow),
		}, nil
	case fastPrev >= slowPrev && fastNow < slowNow:
		return models.Signal{
			Kind:   models.SignalSell,
			Asset:  s.asset,
			Reason: fmt.Sprintf("death cross: SMA%d %.2f below SMA%d %.2f", s.fast, fastNow, s.slow, slowNow),
		}, nil
	}
	return models.Hold("no crossover"), nil
}

// ===========================================================================
// RSI mean reversion
// ===========================================================================

// RSIReversion buys when the RSI drops out of the oversold band and
// sells when it leaves the overbought band.
type RSIReversion struct {
	period     int
	oversold   float64
	overbought float64
	asset      models.AssetType
}

// NewRSIReversion creates an RSI mean-reversion provider.
func NewRSIReversion(period int, oversold, overbought float64, asset models.AssetType) *RSIReversion {
	return &RSIReversion{period: period, oversold: oversold, overbought: overbought, asset: asset}
}

func (r *RSIReversion) Name() string {
	return fmt.Sprintf("rsi-reversion-%d", r.period)
}

func (r *RSIReversion) WarmUp() int { return r.period + 1 }

func (r *RSIReversion) Evaluate(ctx context.Context, view []models.Bar) (models.Signal, error) {
	i := len(view) - 1
	if i < r.period {
		return models.Hold("insufficient history"), nil
	}

	value := rsi(view, i, r.period)
	switch {
	case value < r.oversold:
		kind := models.SignalBuy
		if value < r.oversold/2 {
			kind = models.SignalStrongBuy
		}
		return models.Signal{
			Kind:   kind,
			Asset:  r.asset,
			Reason: fmt.Sprintf("RSI %.1f below oversold %.1f", value, r.oversold),
		}, nil
	case value > r.overbought:
		kind := models.SignalSell
		if value > r.overbought+(100-r.overbought)/2 {
			kind = models.SignalStrongSell
		}
		return models.Signal{
			Kind:   kind,
			Asset:  r.asset,
			Reason: fmt.Sprintf("RSI %.1f above overbought %.1f", value, r.overbought),
		}, nil
	}
	return models.Hold("RSI in neutral band"), nil
}

// ===========================================================================
// Momentum
// ===========================================================================

// Momentum signals on the rate of change crossing a threshold. A large
// move upgrades the signal to its strong variant.
type Momentum struct {
	period  int
	entry   float64
	strong  float64
	asset   models.AssetType
	prevROC float64
	primed  bool
}

// NewMomentum creates a momentum provider. entry and strong are
// fractional rate-of-change thresholds, e.g. 0.05 for five percent.
func NewMomentum(period int, entry, strong float64, asset models.AssetType) *Momentum {
	return &Momentum{period: period, entry: entry, strong: strong, asset: asset}
}

func (m *Momentum) Name() string {
	return fmt.Sprintf("momentum-%d", m.period)
}

func (m *Momentum) WarmUp() int { return m.period + 1 }

func (m *Momentum) Evaluate(ctx context.Context, view []models.Bar) (models.Signal, error) {
	i := len(view) - 1
	if i < m.period {
		return models.Hold("insufficient history"), nil
	}

	value := roc(view, i, m.period)
	prev := m.prevROC
	primed := m.primed
	m.prevROC = value
	m.primed = true
	if !primed {
		return models.Hold("priming"), nil
	}

	switch {
	case prev < m.entry && value >= m.entry:
		kind := models.SignalBuy
		if value >= m.strong {
			kind = models.SignalStrongBuy
		}
		return models.Signal{
			Kind:   kind,
			Asset:  m.asset,
			Reason: fmt.Sprintf("momentum %.1f%% crossed above %.1f%%", value*100, m.entry*100),
		}, nil
	case prev > -m.entry && value <= -m.entry:
		kind := models.SignalSell
		if value <= -m.strong {
			kind = models.SignalStrongSell
		}
		return models.Signal{
			Kind:   kind,
			Asset:  m.asset,
			Reason: fmt.Sprintf("momentum %.1f%% crossed below -%.1f%%", value*100, m.entry*100),
		}, nil
	}
	return models.Hold("momentum inside band"), nil
}

// ===========================================================================
// Buy and hold
// ===========================================================================

// BuyHold buys once on the first evaluated day and holds. The driver's
// end-of-backtest close realizes the position.
type BuyHold struct {
	asset  models.AssetType
	bought bool
}

// NewBuyHold creates a buy-and-hold provider.
func NewBuyHold(asset models.AssetType) *BuyHold {
	return &BuyHold{asset: asset}
}

func (b *BuyHold) Name() string { return "buy-hold" }

func (b *BuyHold) WarmUp() int { return 1 }

func (b *BuyHold) Evaluate(ctx context.Context, view []models.Bar) (models.Signal, error) {
	if b.bought {
		return models.Hold("holding"), nil
	}
	b.bought = true
	return models.Signal{
		Kind:   models.SignalBuy,
		Asset:  b.asset,
		Reason: "initial entry",
	}, nil
}
