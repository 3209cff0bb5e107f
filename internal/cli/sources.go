// Package cli provides the command-line interface for the backtesting application.
package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"backsim/internal/backtest"
	"backsim/internal/config"
	"backsim/internal/marketdata"
	"backsim/internal/models"
	"backsim/internal/orchestrator"
	"backsim/internal/settlement"
	"backsim/internal/store"
)

// newFetcher builds the market data fetcher for the given source name,
// falling back to the configured default when source is empty. Remote
// sources are guarded by a circuit breaker. The returned cleanup func
// releases whatever connection the fetcher holds.
func newFetcher(app *App, source string) (marketdata.Fetcher, func(), error) {
	if source == "" {
		source = app.Config.Data.Source
	}
	noop := func() {}

	switch source {
	case "store":
		if app.Store == nil {
			return nil, noop, fmt.Errorf("local store is not available")
		}
		return marketdata.NewSourceFetcher(app.Store), noop, nil

	case "parquet":
		return marketdata.NewSourceFetcher(store.NewParquetStore(app.Config.Data.ParquetDir)), noop, nil

	case "csv":
		return marketdata.NewCSVFetcher(app.Config.Data.CSVDir), noop, nil

	case "alpaca":
		creds := app.Config.Credentials.Alpaca
		if creds.APIKey == "" {
			return nil, noop, fmt.Errorf("alpaca credentials are not configured, edit credentials.toml in %s", config.DefaultConfigDir())
		}
		fetcher := marketdata.NewAlpacaFetcher(creds.APIKey, creds.APISecret, creds.BaseURL)
		return marketdata.NewResilientFetcher("alpaca", fetcher), noop, nil

	case "postgres":
		url := app.Config.Credentials.Postgres.URL
		if url == "" {
			return nil, noop, fmt.Errorf("postgres url is not configured, edit credentials.toml in %s", config.DefaultConfigDir())
		}
		pool, err := marketdata.NewPostgresPool(context.Background(), url)
		if err != nil {
			return nil, noop, err
		}
		return marketdata.NewResilientFetcher("postgres", marketdata.NewPostgresFetcher(pool)), pool.Close, nil

	default:
		return nil, noop, fmt.Errorf("unknown data source %q (want store, csv, parquet, alpaca, or postgres)", source)
	}
}

// parseAsset maps a flag value onto an asset class.
func parseAsset(s string) (models.AssetType, error) {
	asset := models.AssetType(strings.ToLower(s))
	if !asset.Valid() {
		return "", fmt.Errorf("unknown asset type %q (want stock, futures, or option)", s)
	}
	return asset, nil
}

// parseDate parses a YYYY-MM-DD flag value. Empty means unbounded.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}

// backtestConfig maps the file configuration onto per-run simulation
// parameters.
func backtestConfig(cfg *config.Config) backtest.Config {
	return backtest.Config{
		InitialCapital:       cfg.Backtest.InitialCapital,
		WarmUp:               cfg.Backtest.WarmUpDays,
		SizingFraction:       cfg.Backtest.SizingFraction,
		StrongSizingFraction: cfg.Backtest.StrongSizingFraction,
		Costs: settlement.Costs{
			CommissionRate: cfg.Backtest.CommissionRate,
			SlippageRate:   cfg.Backtest.SlippageRate,
			ForceCloseRate: cfg.Futures.ForceCloseRate,
		},
		FuturesMarginRate: cfg.Futures.MarginRate,
		FuturesMultiplier: cfg.Futures.Multiplier,
		OptionMultiplier:  cfg.Options.Multiplier,
	}
}

// orchestratorConfig maps the file configuration onto batch parameters.
func orchestratorConfig(cfg *config.Config, from, to time.Time) orchestrator.Config {
	return orchestrator.Config{
		Workers:        cfg.Orchestrator.Workers,
		TasksPerWorker: cfg.Orchestrator.TasksPerWorker,
		SymbolTimeout:  cfg.Orchestrator.SymbolTimeout,
		MemoryBudgetMB: cfg.Orchestrator.MemoryBudgetMB,
		From:           from,
		To:             to,
		Backtest:       backtestConfig(cfg),
	}
}
