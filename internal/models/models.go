// Package models provides domain models for the backtesting engine.
package models

import (
	"time"
)

// AssetType classifies an instrument for settlement purposes.
type AssetType string

const (
	AssetStock   AssetType = "stock"
	AssetFutures AssetType = "futures"
	AssetOption  AssetType = "option"
)

// Valid reports whether the asset type is one of the known kinds.
func (a AssetType) Valid() bool {
	switch a {
	case AssetStock, AssetFutures, AssetOption:
		return true
	}
	return false
}

// Action identifies what a settlement did.
type Action string

const (
	ActionBuy               Action = "BUY"
	ActionSell              Action = "SELL"
	ActionExercise          Action = "EXERCISE"
	ActionExpire            Action = "EXPIRE"
	ActionForcedLiquidation Action = "FORCED_LIQUIDATION"
)

// Side is the direction of an open position. Stocks and options are
// long-only; futures may be short.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// OptionKind distinguishes calls from puts.
type OptionKind string

const (
	OptionCall OptionKind = "call"
	OptionPut  OptionKind = "put"
)

// SignalKind is what a strategy asks for on a given day. HOLD is the
// explicit no-op; strong variants request a larger allocation.
type SignalKind string

const (
	SignalBuy        SignalKind = "BUY"
	SignalSell       SignalKind = "SELL"
	SignalStrongBuy  SignalKind = "STRONG_BUY"
	SignalStrongSell SignalKind = "STRONG_SELL"
	SignalHold       SignalKind = "HOLD"
)

// IsBuy reports whether the signal opens or adds exposure.
func (s SignalKind) IsBuy() bool {
	return s == SignalBuy || s == SignalStrongBuy
}

// IsSell reports whether the signal reduces or reverses exposure.
func (s SignalKind) IsSell() bool {
	return s == SignalSell || s == SignalStrongSell
}

// IsStrong reports whether the signal carries the larger sizing hint.
func (s SignalKind) IsStrong() bool {
	return s == SignalStrongBuy || s == SignalStrongSell
}

// Bar is one day of OHLCV data. Dates are day-resolution, UTC midnight.
type Bar struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// OptionSpec describes the contract an option signal opens. Premium is the
// per-unit price the strategy pays; when zero the driver prices the entry
// at intrinsic value against the day's close.
type OptionSpec struct {
	Kind       OptionKind
	Strike     float64
	Expiry     time.Time
	Multiplier float64
	Premium    float64
}

// Intrinsic returns the contract's per-unit intrinsic value against the
// underlying price.
func (o *OptionSpec) Intrinsic(underlying float64) float64 {
	switch o.Kind {
	case OptionPut:
		if o.Strike > underlying {
			return o.Strike - underlying
		}
	default:
		if underlying > o.Strike {
			return underlying - o.Strike
		}
	}
	return 0
}

// Signal is a strategy's request for a single day. Quantity zero lets the
// driver's sizing rules decide. Option must be set when Asset is
// AssetOption and a buy is requested.
type Signal struct {
	Kind     SignalKind
	Asset    AssetType
	Quantity float64
	Option   *OptionSpec
	Reason   string
}

// Hold is the canonical no-op signal.
func Hold(reason string) Signal {
	return Signal{Kind: SignalHold, Reason: reason}
}
