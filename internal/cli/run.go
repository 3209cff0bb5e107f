// Package cli provides the command-line interface for the backtesting application.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"backsim/internal/backtest"
	"backsim/internal/logging"
	"backsim/internal/models"
	"backsim/internal/report"
	"backsim/internal/strategy"
)

// addRunCommands adds single-symbol simulation commands.
func addRunCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newRunCmd(app))
}

func newRunCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <symbol>",
		Short: "Run a backtest for a single symbol",
		Long: `Simulate one strategy against one symbol's daily history.

Bars come from the configured data source; use --source to override it
for a single run. Every fill is settled with commission and slippage,
futures positions are margined and force-closed when the margin buffer
is breached, and options are exercised or expire at the contract date.`,
		Example: `  backsim run AAPL
  backsim run AAPL --strategy momentum --from 2020-01-01 --to 2023-12-31
  backsim run ES --asset futures --save
  backsim run SPY --export-trades trades.csv --chart`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), app.Config.Orchestrator.SymbolTimeout)
			defer cancel()

			symbol := strings.ToUpper(args[0])
			strategyName, _ := cmd.Flags().GetString("strategy")
			assetFlag, _ := cmd.Flags().GetString("asset")
			fromFlag, _ := cmd.Flags().GetString("from")
			toFlag, _ := cmd.Flags().GetString("to")
			sourceFlag, _ := cmd.Flags().GetString("source")
			capital, _ := cmd.Flags().GetFloat64("capital")
			warmUp, _ := cmd.Flags().GetInt("warm-up")
			save, _ := cmd.Flags().GetBool("save")
			chart, _ := cmd.Flags().GetBool("chart")
			tradesPath, _ := cmd.Flags().GetString("export-trades")
			equityPath, _ := cmd.Flags().GetString("export-equity")

			asset, err := parseAsset(assetFlag)
			if err != nil {
				output.Error("%v", err)
				return err
			}
			from, err := parseDate(fromFlag)
			if err != nil {
				output.Error("%v", err)
				return err
			}
			to, err := parseDate(toFlag)
			if err != nil {
				output.Error("%v", err)
				return err
			}

			provider, err := strategy.CatalogFor(asset).New(strategyName)
			if err != nil {
				output.Error("Unknown strategy %q. Run 'backsim strategies' to list them.", strategyName)
				return err
			}

			fetcher, cleanup, err := newFetcher(app, sourceFlag)
			if err != nil {
				output.Error("%v", err)
				return err
			}
			defer cleanup()

			btCfg := backtestConfig(app.Config)
			if capital > 0 {
				btCfg.InitialCapital = capital
			}
			if warmUp >= 0 {
				btCfg.WarmUp = warmUp
			}

			log := logging.WithSymbol(app.Logger, symbol)
			driver, err := backtest.NewDriver(btCfg, provider, log)
			if err != nil {
				output.Error("Invalid simulation parameters: %v", err)
				return err
			}

			table, err := fetcher.Fetch(ctx, symbol, from, to)
			if err != nil {
				output.Error("Failed to fetch %s: %v", symbol, err)
				return err
			}

			res, err := driver.Run(ctx, table)
			if err != nil {
				output.Error("Simulation failed: %v", err)
				return err
			}

			if save {
				if app.Store == nil {
					output.Warning("Store unavailable, run not saved")
				} else if id, saveErr := app.Store.SaveRun(ctx, res); saveErr != nil {
					output.Warning("Failed to save run: %v", saveErr)
				} else {
					logging.WithRun(log, id).Info().Msg("Run saved")
					if !output.IsJSON() {
						output.Success("Saved as run %s", id)
					}
				}
			}

			if tradesPath != "" {
				if err := writeToFile(tradesPath, func(w io.Writer) error {
					return report.WriteTradesCSV(w, res.Trades)
				}); err != nil {
					output.Error("Failed to export trades: %v", err)
					return err
				}
				if !output.IsJSON() {
					output.Info("Trades written to %s", tradesPath)
				}
			}
			if equityPath != "" {
				if err := writeToFile(equityPath, func(w io.Writer) error {
					return report.WriteEquityCSV(w, res.EquityCurve)
				}); err != nil {
					output.Error("Failed to export equity curve: %v", err)
					return err
				}
				if !output.IsJSON() {
					output.Info("Equity curve written to %s", equityPath)
				}
			}

			if output.IsJSON() {
				return output.JSON(res)
			}
			return displayResult(output, res, chart)
		},
	}

	cmd.Flags().StringP("strategy", "s", "sma-cross", "Strategy name (see 'backsim strategies')")
	cmd.Flags().StringP("asset", "a", "stock", "Asset class (stock, futures, option)")
	cmd.Flags().String("from", "", "Start date (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "End date (YYYY-MM-DD)")
	cmd.Flags().String("source", "", "Data source override (store, csv, parquet, alpaca, postgres)")
	cmd.Flags().Float64("capital", 0, "Initial capital override")
	cmd.Flags().Int("warm-up", -1, "Warm-up days override")
	cmd.Flags().Bool("save", false, "Save the run to the local store")
	cmd.Flags().Bool("chart", false, "Render an ASCII equity chart")
	cmd.Flags().String("export-trades", "", "Write the trade log CSV to this path")
	cmd.Flags().String("export-equity", "", "Write the equity curve CSV to this path")

	return cmd
}

func writeToFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return write(f)
}

func displayResult(output *Output, res *models.SimulationResult, showChart bool) error {
	s := res.Summary

	output.Bold("%s - %s", res.Symbol, res.Strategy)
	output.Printf("  %d trading days, %d trades, simulated in %s\n\n",
		s.TradingDays, s.TotalTrades, FormatDuration(res.Elapsed))

	// Box content stays uncolored: padding counts runes, not ANSI codes.
	headline := []string{
		PadRight("Initial Capital", 18) + PadLeft(FormatCurrency(s.InitialCapital), 16),
		PadRight("Final Value", 18) + PadLeft(FormatCurrency(s.FinalValue), 16),
		PadRight("Total Return", 18) + PadLeft(FormatPercent(s.TotalReturn), 16),
		PadRight("Annualized", 18) + PadLeft(FormatPercent(s.AnnualizedReturn), 16),
		PadRight("Max Drawdown", 18) + PadLeft(fmt.Sprintf("%.2f%%", s.MaxDrawdown), 16),
		PadRight("Sharpe Ratio", 18) + PadLeft(fmt.Sprintf("%.2f", s.SharpeRatio), 16),
	}
	output.Box("Performance", headline)
	output.Println()

	output.Bold("Trades")
	output.Printf("  Win Rate:      %.1f%% (%d won, %d lost)\n", s.WinRate, s.WinningTrades, s.LosingTrades)
	output.Printf("  Profit Factor: %.2f\n", s.ProfitFactor)
	output.Printf("  Avg Win:       %s   Avg Loss: %s\n", output.FormatPnL(s.AvgWin), output.FormatPnL(s.AvgLoss))
	output.Printf("  Fees Paid:     %s\n", FormatCurrency(s.TotalFees))
	if s.ForcedLiquidation > 0 {
		output.Warning("  Forced liquidations: %d", s.ForcedLiquidation)
	}
	if s.ExercisedOptions > 0 || s.ExpiredOptions > 0 {
		output.Printf("  Options:       %d exercised, %d expired worthless\n", s.ExercisedOptions, s.ExpiredOptions)
	}
	output.Println()

	trades := res.Trades
	const maxRows = 30
	if len(trades) > maxRows {
		output.Dim("  showing last %d of %d trades", maxRows, len(trades))
		trades = trades[len(trades)-maxRows:]
	}

	table := NewTable(output, "Date", "Action", "Side", "Qty", "Price", "Fees", "Realized", "Reason")
	for i := range trades {
		tr := &trades[i]
		action := string(tr.Action)
		if tr.IsForced {
			action = output.Red(action)
		}
		realized := ""
		if tr.Action != models.ActionBuy {
			realized = output.FormatPnL(tr.RealizedPnL)
		}
		table.AddRow(
			FormatDate(tr.Date),
			action,
			string(tr.Side),
			FormatQuantity(tr.Quantity),
			FormatPrice(tr.Price),
			fmt.Sprintf("%.2f", tr.Fees()),
			realized,
			TruncateString(tr.Reason, 28),
		)
	}
	table.Render()

	if showChart {
		output.Println()
		output.Bold("Equity Curve")
		output.Println(report.EquityChart(res.EquityCurve, 72, 14))
	}

	return nil
}
