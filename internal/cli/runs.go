// Package cli provides the command-line interface for the backtesting application.
package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"backsim/internal/report"
	"backsim/internal/store"
)

// addRunsCommands adds saved-run management commands.
func addRunsCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newRunsCmd(app))
}

func newRunsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Manage saved simulation runs",
		Long: `List, inspect, export, and delete simulations saved with --save.
Each saved run keeps its full trade log and equity curve.`,
	}

	cmd.AddCommand(newRunsListCmd(app))
	cmd.AddCommand(newRunsShowCmd(app))
	cmd.AddCommand(newRunsExportCmd(app))
	cmd.AddCommand(newRunsDeleteCmd(app))

	return cmd
}

func newRunsListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved runs, newest first",
		Example: `  backsim runs list
  backsim runs list --symbol AAPL
  backsim runs list --strategy buy-hold --limit 5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			if app.Store == nil {
				output.Error("Store not available")
				return fmt.Errorf("store not available")
			}

			symbol, _ := cmd.Flags().GetString("symbol")
			strategyName, _ := cmd.Flags().GetString("strategy")
			limit, _ := cmd.Flags().GetInt("limit")

			records, err := app.Store.ListRuns(cmd.Context(), store.RunFilter{
				Symbol:   strings.ToUpper(symbol),
				Strategy: strategyName,
				Limit:    limit,
			})
			if err != nil {
				output.Error("Failed to list runs: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(runsJSON(records))
			}

			if len(records) == 0 {
				output.Info("No saved runs. Run 'backsim run <symbol> --save' to create one.")
				return nil
			}

			table := NewTable(output, "ID", "Symbol", "Strategy", "Final Value", "Return", "Trades", "Created")
			for _, r := range records {
				table.AddRow(
					output.DimText(r.ID),
					r.Symbol,
					r.Strategy,
					FormatCompact(r.FinalValue),
					output.FormatPercent(r.TotalReturn),
					strconv.Itoa(r.TotalTrades),
					r.CreatedAt.Local().Format("02-Jan-2006 15:04"),
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringP("symbol", "s", "", "Filter by symbol")
	cmd.Flags().String("strategy", "", "Filter by strategy name")
	cmd.Flags().IntP("limit", "l", 20, "Maximum rows (0 for all)")

	return cmd
}

func runsJSON(records []store.RunRecord) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(records))
	for _, r := range records {
		out = append(out, map[string]interface{}{
			"id":           r.ID,
			"symbol":       r.Symbol,
			"strategy":     r.Strategy,
			"final_value":  r.FinalValue,
			"total_return": r.TotalReturn,
			"total_trades": r.TotalTrades,
			"created_at":   r.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return out
}

func newRunsShowCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a saved run in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			if app.Store == nil {
				output.Error("Store not available")
				return fmt.Errorf("store not available")
			}

			res, err := app.Store.GetRun(cmd.Context(), args[0])
			if err != nil {
				output.Error("Failed to load run: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(res)
			}

			showChart, _ := cmd.Flags().GetBool("chart")
			return displayResult(output, res, showChart)
		},
	}

	cmd.Flags().Bool("chart", false, "Render the equity curve as an ASCII chart")

	return cmd
}

func newRunsExportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export a saved run's trades or equity curve to CSV",
		Example: `  backsim runs export 01JF3V9G2M --trades trades.csv
  backsim runs export 01JF3V9G2M --equity equity.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			if app.Store == nil {
				output.Error("Store not available")
				return fmt.Errorf("store not available")
			}

			tradesPath, _ := cmd.Flags().GetString("trades")
			equityPath, _ := cmd.Flags().GetString("equity")
			if tradesPath == "" && equityPath == "" {
				output.Error("Nothing to export. Pass --trades and/or --equity.")
				return fmt.Errorf("no export target given")
			}

			res, err := app.Store.GetRun(cmd.Context(), args[0])
			if err != nil {
				output.Error("Failed to load run: %v", err)
				return err
			}

			if tradesPath != "" {
				if err := writeToFile(tradesPath, func(w io.Writer) error {
					return report.WriteTradesCSV(w, res.Trades)
				}); err != nil {
					output.Error("Failed to export trades: %v", err)
					return err
				}
				output.Success("Trades written to %s", tradesPath)
			}
			if equityPath != "" {
				if err := writeToFile(equityPath, func(w io.Writer) error {
					return report.WriteEquityCSV(w, res.EquityCurve)
				}); err != nil {
					output.Error("Failed to export equity curve: %v", err)
					return err
				}
				output.Success("Equity curve written to %s", equityPath)
			}
			return nil
		},
	}

	cmd.Flags().String("trades", "", "Write the trade log to this CSV file")
	cmd.Flags().String("equity", "", "Write the equity curve to this CSV file")

	return cmd
}

func newRunsDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			if app.Store == nil {
				output.Error("Store not available")
				return fmt.Errorf("store not available")
			}

			if err := app.Store.DeleteRun(cmd.Context(), args[0]); err != nil {
				output.Error("Failed to delete run: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]string{"deleted": args[0]})
			}
			output.Success("Deleted run %s", args[0])
			return nil
		},
	}
}
