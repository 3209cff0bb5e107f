// Package settlement provides the asset-aware settlement engine. Every
// position mutation in a simulation flows through it: buys and sells per
// asset class, daily mark-to-market, forced liquidation of breached
// futures and option expiry. A rejected settlement changes nothing.
package settlement

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	bterrors "backsim/internal/errors"
	"backsim/internal/models"
	"backsim/internal/portfolio"
)

// Costs is the friction model. Commission and slippage are fractional
// rates charged on traded notional; ForceCloseRate is the maintenance
// buffer inside the liquidation price.
type Costs struct {
	CommissionRate float64
	SlippageRate   float64
	ForceCloseRate float64
}

// DefaultCosts returns the standard friction model: 0.03% commission,
// 0.03% slippage, 3% maintenance buffer.
func DefaultCosts() Costs {
	return Costs{
		CommissionRate: 0.0003,
		SlippageRate:   0.0003,
		ForceCloseRate: 0.03,
	}
}

// friction is the combined fee rate on notional.
func (c Costs) friction() float64 {
	return c.CommissionRate + c.SlippageRate
}

// Attrs carries the instrument attributes a buy or short needs, resolved
// by the caller: margin terms for futures, the contract for options.
type Attrs struct {
	MarginRate float64
	Multiplier float64
	Option     *models.OptionSpec
}

// Engine settles trades against one portfolio. It is not safe for
// concurrent use; each simulation owns its engine.
type Engine struct {
	pf     *portfolio.Portfolio
	costs  Costs
	log    zerolog.Logger
	ids    map[string]*models.TradeIDs
	marked map[string]float64 // last close seen per symbol
}

// NewEngine creates a settlement engine for the given portfolio.
func NewEngine(pf *portfolio.Portfolio, costs Costs, log zerolog.Logger) *Engine {
	return &Engine{
		pf:     pf,
		costs:  costs,
		log:    log,
		ids:    make(map[string]*models.TradeIDs),
		marked: make(map[string]float64),
	}
}

// Portfolio returns the portfolio this engine settles against.
func (e *Engine) Portfolio() *portfolio.Portfolio { return e.pf }

// Costs returns the engine's friction model.
func (e *Engine) Costs() Costs { return e.costs }

// Buy opens or adds exposure: a long stock position (with a
// volume-weighted entry when adding), a margined long future, a premium
// option, or the cover of an open futures short. Insufficient cash or
// margin rejects the settlement with no state change.
func (e *Engine) Buy(date time.Time, symbol string, asset models.AssetType, price, qty float64, attrs Attrs) (*models.Trade, error) {
	if price <= 0 || qty <= 0 {
		return nil, bterrors.NewRejectionError(symbol, string(models.ActionBuy),
			fmt.Sprintf("price %v and quantity %v must be positive", price, qty), bterrors.ErrInvalidInput)
	}

	if pos := e.pf.Ledger().Get(symbol); pos != nil {
		if pos.Side == models.SideShort {
			// Buy against an open short is a cover.
			return e.closePosition(date, pos, price, qty, models.ActionBuy, "cover short", false)
		}
		if pos.AssetType != asset {
			return nil, bterrors.NewRejectionError(symbol, string(models.ActionBuy),
				fmt.Sprintf("open %s position conflicts with %s buy", pos.AssetType, asset), nil)
		}
		if asset != models.AssetStock {
			return nil, bterrors.NewRejectionError(symbol, string(models.ActionBuy),
				"adding to an open position is stock-only", nil)
		}
	}

	switch asset {
	case models.AssetStock:
		return e.buyStock(date, symbol, price, qty)
	case models.AssetFutures:
		return e.openFutures(date, symbol, price, qty, attrs, models.SideLong)
	case models.AssetOption:
		return e.buyOption(date, symbol, price, qty, attrs.Option)
	}
	return nil, bterrors.NewRejectionError(symbol, string(models.ActionBuy),
		fmt.Sprintf("unknown asset type %q", asset), bterrors.ErrInvalidInput)
}

// Sell reduces or reverses exposure. Against an open long it closes up
// to the open quantity, releasing futures margin at the original entry
// price. With no open position it opens a futures short when the asset
// allows it, and rejects otherwise.
func (e *Engine) Sell(date time.Time, symbol string, asset models.AssetType, price, qty float64, attrs Attrs, reason string) (*models.Trade, error) {
	if price <= 0 || qty <= 0 {
		return nil, bterrors.NewRejectionError(symbol, string(models.ActionSell),
			fmt.Sprintf("price %v and quantity %v must be positive", price, qty), bterrors.ErrInvalidInput)
	}

	pos := e.pf.Ledger().Get(symbol)
	if pos == nil {
		if asset == models.AssetFutures {
			return e.openFutures(date, symbol, price, qty, attrs, models.SideShort)
		}
		return nil, bterrors.NewRejectionError(symbol, string(models.ActionSell),
			"nothing to sell", bterrors.ErrNoPosition)
	}
	if pos.Side == models.SideShort {
		return nil, bterrors.NewRejectionError(symbol, string(models.ActionSell),
			"short position already open", nil)
	}
	return e.closePosition(date, pos, price, qty, models.ActionSell, reason, false)
}

// ===========================================================================
// Per-asset entries
// ===========================================================================

func (e *Engine) buyStock(date time.Time, symbol string, price, qty float64) (*models.Trade, error) {
	notional := price * qty
	commission := notional * e.costs.CommissionRate
	slippage := notional * e.costs.SlippageRate
	total := notional + commission + slippage

	if e.pf.Cash() < total {
		return nil, bterrors.NewRejectionError(symbol, string(models.ActionBuy),
			fmt.Sprintf("need %.2f, have %.2f", total, e.pf.Cash()), bterrors.ErrInsufficientFunds)
	}

	if pos := e.pf.Ledger().Get(symbol); pos != nil {
		if err := e.pf.DebitCash(total); err != nil {
			return nil, bterrors.NewRejectionError(symbol, string(models.ActionBuy), "debit failed", err)
		}
		if err := e.pf.Ledger().Add(symbol, qty, price); err != nil {
			return nil, err
		}
	} else {
		if err := e.pf.DebitCash(total); err != nil {
			return nil, bterrors.NewRejectionError(symbol, string(models.ActionBuy), "debit failed", err)
		}
		err := e.pf.Ledger().Open(&models.Position{
			Symbol:     symbol,
			AssetType:  models.AssetStock,
			Side:       models.SideLong,
			Quantity:   qty,
			EntryPrice: price,
			EntryDate:  date,
		})
		if err != nil {
			return nil, err
		}
	}
	e.pf.AddFees(commission + slippage)

	trade := e.record(models.Trade{
		Date:         date,
		Symbol:       symbol,
		AssetType:    models.AssetStock,
		Action:       models.ActionBuy,
		Side:         models.SideLong,
		Price:        price,
		Quantity:     qty,
		Commission:   commission,
		Slippage:     slippage,
		NetCashDelta: -total,
	})
	return trade, nil
}

func (e *Engine) openFutures(date time.Time, symbol string, price, qty float64, attrs Attrs, side models.Side) (*models.Trade, error) {
	action := models.ActionBuy
	if side == models.SideShort {
		action = models.ActionSell
	}
	if attrs.MarginRate <= 0 || attrs.MarginRate >= 1 || attrs.Multiplier <= 0 {
		return nil, bterrors.NewRejectionError(symbol, string(action),
			fmt.Sprintf("futures need margin rate in (0,1) and positive multiplier, got %v / %v",
				attrs.MarginRate, attrs.Multiplier), bterrors.ErrInvalidInput)
	}

	notional := price * qty * attrs.Multiplier
	marginRequired := notional * attrs.MarginRate
	commission := notional * e.costs.CommissionRate
	slippage := notional * e.costs.SlippageRate
	fees := commission + slippage

	if e.pf.MarginAvailable() < marginRequired {
		return nil, bterrors.NewRejectionError(symbol, string(action),
			fmt.Sprintf("margin required %.2f, available %.2f", marginRequired, e.pf.MarginAvailable()),
			bterrors.ErrInsufficientMargin)
	}
	// Fees come out of cash only; the notional itself is never debited.
	if e.pf.Cash()-marginRequired < fees {
		return nil, bterrors.NewRejectionError(symbol, string(action),
			fmt.Sprintf("cash %.2f cannot cover margin %.2f plus fees %.2f",
				e.pf.Cash(), marginRequired, fees), bterrors.ErrInsufficientFunds)
	}

	if err := e.pf.PostMargin(marginRequired); err != nil {
		return nil, bterrors.NewRejectionError(symbol, string(action), "posting margin failed", err)
	}
	if err := e.pf.DebitCash(fees); err != nil {
		return nil, err
	}
	e.pf.AddFees(fees)

	err := e.pf.Ledger().Open(&models.Position{
		Symbol:       symbol,
		AssetType:    models.AssetFutures,
		Side:         side,
		Quantity:     qty,
		EntryPrice:   price,
		EntryDate:    date,
		MarginRate:   attrs.MarginRate,
		Multiplier:   attrs.Multiplier,
		MarginPosted: marginRequired,
	})
	if err != nil {
		return nil, err
	}

	trade := e.record(models.Trade{
		Date:         date,
		Symbol:       symbol,
		AssetType:    models.AssetFutures,
		Action:       action,
		Side:         side,
		Price:        price,
		Quantity:     qty,
		Commission:   commission,
		Slippage:     slippage,
		NetCashDelta: -(marginRequired + fees),
	})
	return trade, nil
}

func (e *Engine) buyOption(date time.Time, symbol string, price, qty float64, spec *models.OptionSpec) (*models.Trade, error) {
	if spec == nil {
		return nil, bterrors.NewRejectionError(symbol, string(models.ActionBuy),
			"option buy needs a contract spec", bterrors.ErrInvalidInput)
	}
	if spec.Multiplier <= 0 || spec.Strike <= 0 || spec.Expiry.IsZero() {
		return nil, bterrors.NewRejectionError(symbol, string(models.ActionBuy),
			"option spec needs positive multiplier and strike and an expiry", bterrors.ErrInvalidInput)
	}

	premium := price * qty * spec.Multiplier
	commission := premium * e.costs.CommissionRate
	slippage := premium * e.costs.SlippageRate
	total := premium + commission + slippage

	// Options are bought with cash and never margined.
	if e.pf.Cash() < total {
		return nil, bterrors.NewRejectionError(symbol, string(models.ActionBuy),
			fmt.Sprintf("premium plus fees %.2f, have %.2f", total, e.pf.Cash()), bterrors.ErrInsufficientFunds)
	}

	if err := e.pf.DebitCash(total); err != nil {
		return nil, bterrors.NewRejectionError(symbol, string(models.ActionBuy), "debit failed", err)
	}
	e.pf.AddFees(commission + slippage)

	err := e.pf.Ledger().Open(&models.Position{
		Symbol:      symbol,
		AssetType:   models.AssetOption,
		Side:        models.SideLong,
		Quantity:    qty,
		EntryPrice:  price,
		EntryDate:   date,
		Multiplier:  spec.Multiplier,
		Strike:      spec.Strike,
		Expiry:      spec.Expiry,
		OptionKind:  spec.Kind,
		PremiumPaid: premium,
	})
	if err != nil {
		return nil, err
	}

	trade := e.record(models.Trade{
		Date:         date,
		Symbol:       symbol,
		AssetType:    models.AssetOption,
		Action:       models.ActionBuy,
		Side:         models.SideLong,
		Price:        price,
		Quantity:     qty,
		Commission:   commission,
		Slippage:     slippage,
		NetCashDelta: -total,
	})
	return trade, nil
}

// ===========================================================================
// Closes
// ===========================================================================

// closePosition settles qty units of an open position at price. Futures
// margin is released at the ORIGINAL entry price, not the close price.
func (e *Engine) closePosition(date time.Time, pos *models.Position, price, qty float64, action models.Action, reason string, forced bool) (*models.Trade, error) {
	if qty > pos.Quantity {
		return nil, bterrors.NewRejectionError(pos.Symbol, string(action),
			fmt.Sprintf("close %v exceeds open %v", qty, pos.Quantity), bterrors.ErrInvalidInput)
	}

	var (
		commission, slippage float64
		netCash              float64
		realizedGross        float64
		tradeRealized        float64
	)

	switch pos.AssetType {
	case models.AssetStock:
		gross := price * qty
		commission = gross * e.costs.CommissionRate
		slippage = gross * e.costs.SlippageRate
		credit := gross - commission - slippage
		realizedGross = (price - pos.EntryPrice) * qty
		tradeRealized = realizedGross - commission - slippage

		if err := e.pf.Ledger().Reduce(pos.Symbol, qty); err != nil {
			return nil, err
		}
		if err := e.pf.CreditCash(credit); err != nil {
			return nil, err
		}
		netCash = credit

	case models.AssetFutures:
		notional := price * qty * pos.Multiplier
		commission = notional * e.costs.CommissionRate
		slippage = notional * e.costs.SlippageRate
		fees := commission + slippage
		marginRelease := pos.EntryPrice * qty * pos.Multiplier * pos.MarginRate
		if qty == pos.Quantity {
			marginRelease = pos.MarginPosted
		}
		if pos.Side == models.SideShort {
			realizedGross = (pos.EntryPrice - price) * qty * pos.Multiplier
		} else {
			realizedGross = (price - pos.EntryPrice) * qty * pos.Multiplier
		}
		tradeRealized = realizedGross - fees

		if err := e.pf.Ledger().Reduce(pos.Symbol, qty); err != nil {
			return nil, err
		}
		if err := e.pf.ReleaseMargin(marginRelease); err != nil {
			return nil, err
		}
		e.pf.SettleCash(realizedGross - fees)
		netCash = marginRelease + realizedGross - fees

	case models.AssetOption:
		gross := price * qty * pos.Multiplier
		commission = gross * e.costs.CommissionRate
		slippage = gross * e.costs.SlippageRate
		credit := gross - commission - slippage
		premiumShare := pos.PremiumPaid * (qty / pos.Quantity)
		realizedGross = gross - premiumShare
		tradeRealized = realizedGross - commission - slippage

		if err := e.pf.Ledger().Reduce(pos.Symbol, qty); err != nil {
			return nil, err
		}
		if err := e.pf.CreditCash(credit); err != nil {
			return nil, err
		}
		netCash = credit

	default:
		return nil, bterrors.NewRejectionError(pos.Symbol, string(action),
			fmt.Sprintf("unknown asset type %q", pos.AssetType), bterrors.ErrInvalidInput)
	}

	e.pf.AddRealized(realizedGross)
	e.pf.AddFees(commission + slippage)

	trade := e.record(models.Trade{
		Date:         date,
		Symbol:       pos.Symbol,
		AssetType:    pos.AssetType,
		Action:       action,
		Side:         pos.Side,
		Price:        price,
		Quantity:     qty,
		Commission:   commission,
		Slippage:     slippage,
		NetCashDelta: netCash,
		RealizedPnL:  tradeRealized,
		IsForced:     forced,
		Reason:       reason,
	})
	return trade, nil
}

// ===========================================================================
// Mark to market
// ===========================================================================

// MarkToMarket records one equity point for the day, pricing every open
// position at the day's close (or the last close seen when the symbol
// has no quote today). Exactly one call per simulated day.
func (e *Engine) MarkToMarket(date time.Time, closes map[string]float64) models.EquityPoint {
	for sym, px := range closes {
		e.marked[sym] = px
	}

	var total float64
	byAsset := make(map[models.AssetType]float64)
	e.pf.Ledger().Each(func(pos *models.Position) {
		price, ok := e.marked[pos.Symbol]
		if !ok {
			price = pos.EntryPrice
		}
		u := pos.Unrealized(price)
		byAsset[pos.AssetType] += u
		total += u
	})

	point := models.EquityPoint{
		Date:       date,
		TotalValue: e.pf.TotalValue(total),
		Cash:       e.pf.Cash(),
		MarginUsed: e.pf.MarginUsed(),
	}
	if len(byAsset) > 0 {
		point.UnrealizedByAsset = byAsset
	}
	e.pf.AppendEquity(point)
	return point
}

// record assigns the deterministic trade ID, appends the trade to the
// portfolio log and emits the settlement event.
func (e *Engine) record(t models.Trade) *models.Trade {
	ids, ok := e.ids[t.Symbol]
	if !ok {
		ids = models.NewTradeIDs(t.Symbol)
		e.ids[t.Symbol] = ids
	}
	t.ID = ids.Next(t.Date)
	e.pf.AppendTrade(t)

	evt := e.log.Debug()
	if t.IsForced || t.Action == models.ActionExercise || t.Action == models.ActionExpire {
		evt = e.log.Info()
	}
	evt.Str("event", "settlement").
		Str("symbol", t.Symbol).
		Str("action", string(t.Action)).
		Str("asset", string(t.AssetType)).
		Float64("price", t.Price).
		Float64("quantity", t.Quantity).
		Float64("net_cash", t.NetCashDelta).
		Bool("forced", t.IsForced).
		Time("date", t.Date).
		Msg("Trade settled")
	return &t
}
