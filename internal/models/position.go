package models

import (
	"fmt"
	"time"
)

// Position is one open holding, tagged by asset type. Quantity is always
// positive; direction lives in Side. Futures carry margin attributes,
// options carry contract attributes, and a stock carries neither.
type Position struct {
	Symbol     string
	AssetType  AssetType
	Side       Side
	Quantity   float64
	EntryPrice float64
	EntryDate  time.Time

	// Futures.
	MarginRate   float64
	Multiplier   float64
	MarginPosted float64

	// Options. Multiplier is shared with futures above.
	Strike      float64
	Expiry      time.Time
	OptionKind  OptionKind
	PremiumPaid float64
}

// Validate rejects positions whose attributes do not match their asset
// type, and any non-positive quantity or entry price.
func (p *Position) Validate() error {
	if p.Symbol == "" {
		return fmt.Errorf("position: symbol is required")
	}
	if !p.AssetType.Valid() {
		return fmt.Errorf("position %s: unknown asset type %q", p.Symbol, p.AssetType)
	}
	if p.Quantity <= 0 {
		return fmt.Errorf("position %s: quantity must be positive, got %v", p.Symbol, p.Quantity)
	}
	if p.EntryPrice < 0 {
		return fmt.Errorf("position %s: entry price must be non-negative, got %v", p.Symbol, p.EntryPrice)
	}
	if p.Side != SideLong && p.Side != SideShort {
		return fmt.Errorf("position %s: unknown side %q", p.Symbol, p.Side)
	}

	switch p.AssetType {
	case AssetStock:
		if p.Side != SideLong {
			return fmt.Errorf("position %s: stocks are long-only", p.Symbol)
		}
		if p.MarginRate != 0 || p.Strike != 0 || !p.Expiry.IsZero() {
			return fmt.Errorf("position %s: stock carries futures or option attributes", p.Symbol)
		}
	case AssetFutures:
		if p.MarginRate <= 0 || p.MarginRate >= 1 {
			return fmt.Errorf("position %s: futures margin rate must be in (0,1), got %v", p.Symbol, p.MarginRate)
		}
		if p.Multiplier <= 0 {
			return fmt.Errorf("position %s: futures multiplier must be positive", p.Symbol)
		}
		if p.Strike != 0 || !p.Expiry.IsZero() {
			return fmt.Errorf("position %s: futures carries option attributes", p.Symbol)
		}
	case AssetOption:
		if p.Side != SideLong {
			return fmt.Errorf("position %s: options are long-only", p.Symbol)
		}
		if p.Multiplier <= 0 {
			return fmt.Errorf("position %s: option multiplier must be positive", p.Symbol)
		}
		if p.Strike <= 0 {
			return fmt.Errorf("position %s: option strike must be positive", p.Symbol)
		}
		if p.Expiry.IsZero() {
			return fmt.Errorf("position %s: option expiry is required", p.Symbol)
		}
		if p.OptionKind != OptionCall && p.OptionKind != OptionPut {
			return fmt.Errorf("position %s: unknown option kind %q", p.Symbol, p.OptionKind)
		}
		if p.MarginRate != 0 {
			return fmt.Errorf("position %s: options are never margined", p.Symbol)
		}
	}

	return nil
}

// Intrinsic returns the option's intrinsic value per unit against the
// given underlying price. Zero for non-options.
func (p *Position) Intrinsic(underlying float64) float64 {
	if p.AssetType != AssetOption {
		return 0
	}
	switch p.OptionKind {
	case OptionCall:
		if underlying > p.Strike {
			return underlying - p.Strike
		}
	case OptionPut:
		if p.Strike > underlying {
			return p.Strike - underlying
		}
	}
	return 0
}

// IsExpired reports whether the option has reached its expiry on the
// given date. False for non-options.
func (p *Position) IsExpired(date time.Time) bool {
	if p.AssetType != AssetOption {
		return false
	}
	return !date.Before(p.Expiry)
}

// Unrealized returns the open profit or loss marked at the given price.
// For options the mark is intrinsic value against premium paid.
func (p *Position) Unrealized(price float64) float64 {
	switch p.AssetType {
	case AssetStock:
		return (price - p.EntryPrice) * p.Quantity
	case AssetFutures:
		if p.Side == SideShort {
			return (p.EntryPrice - price) * p.Quantity * p.Multiplier
		}
		return (price - p.EntryPrice) * p.Quantity * p.Multiplier
	case AssetOption:
		return p.Intrinsic(price)*p.Quantity*p.Multiplier - p.PremiumPaid
	}
	return 0
}

// CostBasis is the cash already committed to the position: stock notional
// at entry, option premium paid. Futures commit nothing beyond margin,
// which is accounted in the portfolio's margin pool.
func (p *Position) CostBasis() float64 {
	switch p.AssetType {
	case AssetStock:
		return p.EntryPrice * p.Quantity
	case AssetOption:
		return p.PremiumPaid
	}
	return 0
}
