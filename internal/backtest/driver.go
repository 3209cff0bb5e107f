// Package backtest walks one symbol's daily history through a strategy
// and a settlement engine. The driver owns the day loop ordering: risk
// checks settle before the strategy sees the day, the strategy only ever
// sees bars up to today, and equity is marked once per day.
package backtest

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	bterrors "backsim/internal/errors"
	"backsim/internal/models"
	"backsim/internal/portfolio"
	"backsim/internal/report"
	"backsim/internal/series"
	"backsim/internal/settlement"
	"backsim/internal/strategy"
)

// Config holds the per-run simulation parameters.
type Config struct {
	InitialCapital       float64
	WarmUp               int
	SizingFraction       float64
	StrongSizingFraction float64
	Costs                settlement.Costs
	FuturesMarginRate    float64
	FuturesMultiplier    float64
	OptionMultiplier     float64
}

// DefaultConfig returns the standard simulation parameters: 100k
// capital, 120 warm-up days, 30% sizing (60% on strong signals).
func DefaultConfig() Config {
	return Config{
		InitialCapital:       100000,
		WarmUp:               120,
		SizingFraction:       0.30,
		StrongSizingFraction: 0.60,
		Costs:                settlement.DefaultCosts(),
		FuturesMarginRate:    0.15,
		FuturesMultiplier:    10,
		OptionMultiplier:     100,
	}
}

// Validate checks the configuration ranges.
func (c Config) Validate() error {
	if c.InitialCapital <= 0 {
		return bterrors.NewValidationError("initial_capital", c.InitialCapital, "must be positive")
	}
	if c.WarmUp < 0 {
		return bterrors.NewValidationError("warm_up", c.WarmUp, "cannot be negative")
	}
	if c.SizingFraction <= 0 || c.SizingFraction > 1 {
		return bterrors.NewValidationError("sizing_fraction", c.SizingFraction, "must be in (0, 1]")
	}
	if c.StrongSizingFraction <= 0 || c.StrongSizingFraction > 1 {
		return bterrors.NewValidationError("strong_sizing_fraction", c.StrongSizingFraction, "must be in (0, 1]")
	}
	if c.FuturesMarginRate <= 0 || c.FuturesMarginRate >= 1 {
		return bterrors.NewValidationError("futures_margin_rate", c.FuturesMarginRate, "must be in (0, 1)")
	}
	if c.FuturesMultiplier <= 0 {
		return bterrors.NewValidationError("futures_multiplier", c.FuturesMultiplier, "must be positive")
	}
	if c.OptionMultiplier <= 0 {
		return bterrors.NewValidationError("option_multiplier", c.OptionMultiplier, "must be positive")
	}
	return nil
}

// Driver runs a single simulation. Each driver owns a fresh portfolio
// and settlement engine, so it is single-use: construct one per run.
type Driver struct {
	cfg      Config
	provider strategy.Provider
	pf       *portfolio.Portfolio
	engine   *settlement.Engine
	log      zerolog.Logger
	ran      bool
}

// NewDriver creates a driver for one run of the given strategy.
func NewDriver(cfg Config, provider strategy.Provider, log zerolog.Logger) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, bterrors.NewValidationError("provider", nil, "strategy provider is required")
	}
	pf, err := portfolio.New(cfg.InitialCapital)
	if err != nil {
		return nil, err
	}
	return &Driver{
		cfg:      cfg,
		provider: provider,
		pf:       pf,
		engine:   settlement.NewEngine(pf, cfg.Costs, log),
		log:      log,
	}, nil
}

// Run simulates the strategy over the table, day by day. Every day gets
// an equity point, including warm-up days. Positions still open on the
// last bar are flattened so the result compares on realized terms.
func (d *Driver) Run(ctx context.Context, table *series.Table) (*models.SimulationResult, error) {
	if d.ran {
		return nil, bterrors.NewValidationError("driver", nil, "driver already ran; create a new one per run")
	}
	d.ran = true
	if table == nil || table.Len() == 0 {
		return nil, bterrors.NewDataError("", "run", "cannot run on an empty series", bterrors.ErrDataNotFound)
	}

	start := time.Now()
	symbol := table.Symbol()
	bars := table.Bars()
	last := len(bars) - 1

	warm := d.cfg.WarmUp
	if w := d.provider.WarmUp(); w > warm {
		warm = w
	}

	log := d.log.With().Str("symbol", symbol).Str("strategy", d.provider.Name()).Logger()
	log.Info().
		Int("bars", len(bars)).
		Int("warm_up", warm).
		Time("from", bars[0].Date).
		Time("to", bars[last].Date).
		Msg("Backtest started")

	for i, bar := range bars {
		select {
		case <-ctx.Done():
			return nil, bterrors.Wrapf(ctx.Err(), "backtest for %s stopped on %s",
				symbol, bar.Date.Format("2006-01-02"))
		default:
		}

		// Mandatory risk checks run before the strategy sees the day.
		// A forced liquidation consumes the day's signal.
		_, liquidated := d.engine.CheckForcedLiquidation(bar.Date, symbol, bar.Close)
		d.engine.SettleExpiry(bar.Date, symbol, bar.Close)

		if i >= warm && !liquidated {
			if err := d.step(ctx, log, symbol, table, i); err != nil {
				return nil, err
			}
		}
		if i == last {
			if err := d.closeOut(bar); err != nil {
				return nil, err
			}
		}

		d.engine.MarkToMarket(bar.Date, map[string]float64{symbol: bar.Close})
		if err := d.pf.CheckInvariant(); err != nil {
			return nil, bterrors.Wrapf(err, "accounting identity broken on %s",
				bar.Date.Format("2006-01-02"))
		}
	}

	trades := d.pf.Trades()
	curve := d.pf.EquityCurve()
	result := &models.SimulationResult{
		Symbol:      symbol,
		Strategy:    d.provider.Name(),
		Trades:      trades,
		EquityCurve: curve,
		Summary:     report.Summarize(d.cfg.InitialCapital, trades, curve),
		Elapsed:     time.Since(start),
	}
	log.Info().
		Float64("final_value", result.Summary.FinalValue).
		Float64("return_pct", result.Summary.TotalReturn).
		Int("trades", len(trades)).
		Dur("elapsed", result.Elapsed).
		Msg("Backtest complete")
	return result, nil
}

// step evaluates the strategy on the visible history and settles its
// signal. Strategy failures skip the day; settlement rejections are
// logged no-ops. Only engine-internal failures abort the run.
func (d *Driver) step(ctx context.Context, log zerolog.Logger, symbol string, table *series.Table, i int) error {
	bar := table.Bar(i)
	sig, err := d.evaluate(ctx, table.UpTo(i))
	if err != nil {
		serr := bterrors.NewStrategyError(symbol, bar.Date, err)
		log.Warn().Err(serr).Time("date", bar.Date).Msg("Strategy failed, day skipped")
		return nil
	}

	switch {
	case sig.Kind == "" || sig.Kind == models.SignalHold:
		return nil
	case sig.Kind.IsBuy():
		return d.applyBuy(log, symbol, bar, sig)
	case sig.Kind.IsSell():
		return d.applySell(log, symbol, bar, sig)
	}
	log.Warn().Str("kind", string(sig.Kind)).Time("date", bar.Date).Msg("Unknown signal kind ignored")
	return nil
}

// evaluate calls the provider with panic containment. A panicking
// strategy loses its day, not the whole run.
func (d *Driver) evaluate(ctx context.Context, view []models.Bar) (sig models.Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy panicked: %v", r)
		}
	}()
	return d.provider.Evaluate(ctx, view)
}

func (d *Driver) applyBuy(log zerolog.Logger, symbol string, bar models.Bar, sig models.Signal) error {
	asset := sig.Asset
	if asset == "" {
		asset = models.AssetStock
	}

	price := bar.Close
	var attrs settlement.Attrs
	switch asset {
	case models.AssetFutures:
		attrs.MarginRate = d.cfg.FuturesMarginRate
		attrs.Multiplier = d.cfg.FuturesMultiplier
	case models.AssetOption:
		if sig.Option == nil {
			log.Debug().Time("date", bar.Date).Msg("Option buy without contract spec ignored")
			return nil
		}
		spec := *sig.Option
		if spec.Multiplier <= 0 {
			spec.Multiplier = d.cfg.OptionMultiplier
		}
		price = spec.Premium
		if price <= 0 {
			price = spec.Intrinsic(bar.Close)
		}
		if price <= 0 {
			log.Debug().
				Float64("strike", spec.Strike).
				Float64("close", bar.Close).
				Msg("Option has no premium and no intrinsic value, buy ignored")
			return nil
		}
		attrs.Option = &spec
	}

	qty := sig.Quantity
	if qty <= 0 {
		qty = d.size(asset, price, attrs, sig.Kind.IsStrong())
	}
	if qty <= 0 {
		log.Debug().Str("asset", string(asset)).Float64("price", price).Msg("Buy sized to zero, ignored")
		return nil
	}

	if _, err := d.engine.Buy(bar.Date, symbol, asset, price, qty, attrs); err != nil {
		if bterrors.IsRejection(err) {
			log.Debug().Err(err).Time("date", bar.Date).Msg("Buy rejected")
			return nil
		}
		return err
	}
	return nil
}

func (d *Driver) applySell(log zerolog.Logger, symbol string, bar models.Bar, sig models.Signal) error {
	pos := d.pf.Ledger().Get(symbol)

	if pos == nil {
		// Selling flat opens a futures short; any other asset has
		// nothing to sell.
		if sig.Asset != models.AssetFutures {
			log.Debug().Time("date", bar.Date).Msg("Sell with no open position ignored")
			return nil
		}
		attrs := settlement.Attrs{
			MarginRate: d.cfg.FuturesMarginRate,
			Multiplier: d.cfg.FuturesMultiplier,
		}
		qty := sig.Quantity
		if qty <= 0 {
			qty = d.size(models.AssetFutures, bar.Close, attrs, sig.Kind.IsStrong())
		}
		if qty <= 0 {
			log.Debug().Time("date", bar.Date).Msg("Short sized to zero, ignored")
			return nil
		}
		if _, err := d.engine.Sell(bar.Date, symbol, models.AssetFutures, bar.Close, qty, attrs, sellReason(sig)); err != nil {
			if bterrors.IsRejection(err) {
				log.Debug().Err(err).Time("date", bar.Date).Msg("Short rejected")
				return nil
			}
			return err
		}
		return nil
	}

	// Shorts are covered by buys, not sells.
	if pos.Side == models.SideShort {
		log.Debug().Time("date", bar.Date).Msg("Sell against open short ignored")
		return nil
	}

	qty := pos.Quantity
	if sig.Quantity > 0 && sig.Quantity < qty {
		qty = sig.Quantity
	}
	price := bar.Close
	if pos.AssetType == models.AssetOption {
		price = pos.Intrinsic(bar.Close)
		if price <= 0 {
			log.Debug().Time("date", bar.Date).Msg("Option has no intrinsic value to sell, holding to expiry")
			return nil
		}
	}
	if _, err := d.engine.Sell(bar.Date, symbol, pos.AssetType, price, qty, settlement.Attrs{}, sellReason(sig)); err != nil {
		if bterrors.IsRejection(err) {
			log.Debug().Err(err).Time("date", bar.Date).Msg("Sell rejected")
			return nil
		}
		return err
	}
	return nil
}

// size converts a fraction of free cash into a whole-unit quantity.
// Stock and options consume the full per-unit cost; futures consume the
// margin plus fees.
func (d *Driver) size(asset models.AssetType, price float64, attrs settlement.Attrs, strong bool) float64 {
	fraction := d.cfg.SizingFraction
	if strong {
		fraction = d.cfg.StrongSizingFraction
	}
	budget := d.pf.Cash() * fraction
	friction := d.cfg.Costs.CommissionRate + d.cfg.Costs.SlippageRate

	var perUnit float64
	switch asset {
	case models.AssetStock:
		perUnit = price * (1 + friction)
	case models.AssetFutures:
		perUnit = price * attrs.Multiplier * (attrs.MarginRate + friction)
	case models.AssetOption:
		perUnit = price * attrs.Option.Multiplier * (1 + friction)
	}
	if perUnit <= 0 {
		return 0
	}
	return math.Floor(budget / perUnit)
}

// closeOut flattens every remaining position at the final bar. Stock and
// futures close at the last close, options at intrinsic value; worthless
// options are written off.
func (d *Driver) closeOut(bar models.Bar) error {
	const reason = "end of backtest"
	for _, sym := range d.pf.Ledger().Symbols() {
		pos := d.pf.Ledger().Get(sym)
		if pos == nil {
			continue
		}
		var err error
		switch {
		case pos.AssetType == models.AssetOption:
			if intrinsic := pos.Intrinsic(bar.Close); intrinsic > 0 {
				_, err = d.engine.Sell(bar.Date, sym, pos.AssetType, intrinsic, pos.Quantity, settlement.Attrs{}, reason)
			} else {
				_, err = d.engine.Abandon(bar.Date, sym, reason)
			}
		case pos.Side == models.SideShort:
			_, err = d.engine.Buy(bar.Date, sym, pos.AssetType, bar.Close, pos.Quantity, settlement.Attrs{})
		default:
			_, err = d.engine.Sell(bar.Date, sym, pos.AssetType, bar.Close, pos.Quantity, settlement.Attrs{}, reason)
		}
		if err != nil && !bterrors.IsRejection(err) {
			return err
		}
	}
	return nil
}

func sellReason(sig models.Signal) string {
	if sig.Reason != "" {
		return sig.Reason
	}
	return "strategy exit"
}
