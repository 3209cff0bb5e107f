package settlement

import (
	"fmt"
	"time"

	bterrors "backsim/internal/errors"
	"backsim/internal/models"
)

// SettleExpiry settles the symbol's option position once the date
// reaches its expiry. In-the-money contracts exercise for cash at
// intrinsic value against the underlying close, with no fees; worthless
// contracts are removed with no cash movement. Both outcomes produce a
// trade record. The driver runs this before reading any new signal for
// the day.
func (e *Engine) SettleExpiry(date time.Time, symbol string, underlyingClose float64) (*models.Trade, bool) {
	pos := e.pf.Ledger().Get(symbol)
	if pos == nil || pos.AssetType != models.AssetOption || !pos.IsExpired(date) {
		return nil, false
	}

	intrinsic := pos.Intrinsic(underlyingClose)
	premiumPaid := pos.PremiumPaid
	qty := pos.Quantity

	if _, err := e.pf.Ledger().Close(symbol); err != nil {
		e.log.Error().Err(err).Str("symbol", symbol).Msg("Option expiry failed to settle")
		return nil, false
	}

	var trade *models.Trade
	if intrinsic > 0 {
		credit := intrinsic * qty * pos.Multiplier
		if err := e.pf.CreditCash(credit); err != nil {
			e.log.Error().Err(err).Str("symbol", symbol).Msg("Option exercise credit failed")
			return nil, false
		}
		e.pf.AddRealized(credit - premiumPaid)

		trade = e.record(models.Trade{
			Date:         date,
			Symbol:       symbol,
			AssetType:    models.AssetOption,
			Action:       models.ActionExercise,
			Side:         models.SideLong,
			Price:        underlyingClose,
			Quantity:     qty,
			NetCashDelta: credit,
			RealizedPnL:  credit - premiumPaid,
			Reason: fmt.Sprintf("%s %.2f exercised at %.2f, intrinsic %.2f",
				pos.OptionKind, pos.Strike, underlyingClose, intrinsic),
		})
	} else {
		e.pf.AddRealized(-premiumPaid)

		trade = e.record(models.Trade{
			Date:         date,
			Symbol:       symbol,
			AssetType:    models.AssetOption,
			Action:       models.ActionExpire,
			Side:         models.SideLong,
			Price:        underlyingClose,
			Quantity:     qty,
			NetCashDelta: 0,
			RealizedPnL:  -premiumPaid,
			Reason: fmt.Sprintf("%s %.2f expired worthless at %.2f",
				pos.OptionKind, pos.Strike, underlyingClose),
		})
	}

	e.log.Info().
		Str("event", "option_expiry").
		Str("symbol", symbol).
		Str("outcome", string(trade.Action)).
		Float64("underlying", underlyingClose).
		Float64("strike", pos.Strike).
		Float64("intrinsic", intrinsic).
		Time("date", date).
		Msg("Option expiry settled")
	return trade, true
}

// Abandon writes off an open option with no intrinsic value before its
// expiry. The premium is a realized loss and no cash moves; a contract
// worth nothing cannot be sold. The driver uses this when a simulation
// ends with a worthless option still open.
func (e *Engine) Abandon(date time.Time, symbol, reason string) (*models.Trade, error) {
	pos := e.pf.Ledger().Get(symbol)
	if pos == nil || pos.AssetType != models.AssetOption {
		return nil, bterrors.NewRejectionError(symbol, string(models.ActionExpire),
			"no open option to abandon", bterrors.ErrNoPosition)
	}

	premiumPaid := pos.PremiumPaid
	qty := pos.Quantity
	if _, err := e.pf.Ledger().Close(symbol); err != nil {
		return nil, err
	}
	e.pf.AddRealized(-premiumPaid)

	trade := e.record(models.Trade{
		Date:         date,
		Symbol:       symbol,
		AssetType:    models.AssetOption,
		Action:       models.ActionExpire,
		Side:         models.SideLong,
		Price:        0,
		Quantity:     qty,
		NetCashDelta: 0,
		RealizedPnL:  -premiumPaid,
		Reason:       reason,
	})
	return trade, nil
}
