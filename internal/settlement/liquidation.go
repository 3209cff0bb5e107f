package settlement

import (
	"fmt"
	"time"

	"backsim/internal/models"
)

// LiquidationPrice returns the price at which the futures position is
// force-closed. The buffer between the margin rate and the force-close
// rate is how far the price may move against the entry before the
// posted margin is considered consumed:
//
//	long:  entry * (1 - (marginRate - forceCloseRate))
//	short: entry * (1 + (marginRate - forceCloseRate))
//
// Zero for non-futures.
func (e *Engine) LiquidationPrice(pos *models.Position) float64 {
	if pos == nil || pos.AssetType != models.AssetFutures {
		return 0
	}
	buffer := pos.MarginRate - e.costs.ForceCloseRate
	if pos.Side == models.SideShort {
		return pos.EntryPrice * (1 + buffer)
	}
	return pos.EntryPrice * (1 - buffer)
}

// CheckForcedLiquidation force-closes the symbol's futures position when
// the day's close breaches the liquidation price: at or below it for a
// long, at or above it for a short. The entire position is sold at the
// liquidation price and the trade is marked forced. The driver runs this
// before reading any new signal for the day, and a liquidation
// suppresses that day's signal.
func (e *Engine) CheckForcedLiquidation(date time.Time, symbol string, close float64) (*models.Trade, bool) {
	pos := e.pf.Ledger().Get(symbol)
	if pos == nil || pos.AssetType != models.AssetFutures {
		return nil, false
	}

	liq := e.LiquidationPrice(pos)
	breached := false
	if pos.Side == models.SideShort {
		breached = close >= liq
	} else {
		breached = close <= liq
	}
	if !breached {
		return nil, false
	}

	reason := fmt.Sprintf("close %.2f breached liquidation price %.2f (entry %.2f, margin rate %.2f, force close rate %.2f)",
		close, liq, pos.EntryPrice, pos.MarginRate, e.costs.ForceCloseRate)

	trade, err := e.closePosition(date, pos, liq, pos.Quantity, models.ActionForcedLiquidation, reason, true)
	if err != nil {
		// A breached position that cannot settle is an accounting bug,
		// not a market condition.
		e.log.Error().Err(err).Str("symbol", symbol).Msg("Forced liquidation failed to settle")
		return nil, false
	}

	e.log.Warn().
		Str("event", "forced_liquidation").
		Str("symbol", symbol).
		Str("side", string(pos.Side)).
		Float64("close", close).
		Float64("liquidation_price", liq).
		Float64("entry", pos.EntryPrice).
		Time("date", date).
		Msg("Forced liquidation")
	return trade, true
}
