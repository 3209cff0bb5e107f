package models

import (
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// Trade is one settlement record in a simulation's trade log.
type Trade struct {
	ID           string    `json:"id"`
	Date         time.Time `json:"date"`
	Symbol       string    `json:"symbol"`
	AssetType    AssetType `json:"asset_type"`
	Action       Action    `json:"action"`
	Side         Side      `json:"side"`
	Price        float64   `json:"price"`
	Quantity     float64   `json:"quantity"`
	Commission   float64   `json:"commission"`
	Slippage     float64   `json:"slippage"`
	NetCashDelta float64   `json:"net_cash_delta"`
	RealizedPnL  float64   `json:"realized_pnl"`
	IsForced     bool      `json:"is_forced"`
	Reason       string    `json:"reason,omitempty"`
}

// Fees is the total friction charged on the trade.
func (t *Trade) Fees() float64 {
	return t.Commission + t.Slippage
}

// TradeIDs mints ULIDs for trade records. The entropy stream is seeded
// from the symbol so that identical simulations produce identical IDs,
// and the timestamp component comes from the trade date rather than the
// wall clock.
type TradeIDs struct {
	entropy *ulid.MonotonicEntropy
}

// NewTradeIDs creates a deterministic ID source for one simulation.
func NewTradeIDs(symbol string) *TradeIDs {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	src := rand.New(rand.NewSource(int64(h.Sum64())))
	return &TradeIDs{entropy: ulid.Monotonic(src, 0)}
}

// Next returns the next trade ID for the given trade date.
func (t *TradeIDs) Next(date time.Time) string {
	return ulid.MustNew(ulid.Timestamp(date), t.entropy).String()
}
