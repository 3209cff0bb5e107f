// Package cli provides the command-line interface for the backtesting application.
package cli

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"backsim/internal/marketdata"
	"backsim/internal/models"
	"backsim/internal/store"
)

// addDataCommands adds bar history management commands.
func addDataCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newDataCmd(app))
}

func newDataCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Manage local bar history",
		Long: `Fetch, import, export, and inspect the daily bar history that
simulations run against. Bars live in the local SQLite store; CSV and
parquet files serve as interchange formats.`,
	}

	cmd.AddCommand(newDataFetchCmd(app))
	cmd.AddCommand(newDataImportCmd(app))
	cmd.AddCommand(newDataExportCmd(app))
	cmd.AddCommand(newDataListCmd(app))
	cmd.AddCommand(newDataShowCmd(app))
	cmd.AddCommand(newDataValidateCmd(app))
	cmd.AddCommand(newDataDeleteCmd(app))

	return cmd
}

func newDataFetchCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch <symbols...>",
		Short: "Fetch bars from a remote source into the store",
		Long: `Download daily bars from a remote data provider and persist them in
the local store. Existing days are overwritten, so re-fetching a range
is safe.`,
		Example: `  backsim data fetch AAPL
  backsim data fetch AAPL MSFT GOOG --days 730
  backsim data fetch SPY --source postgres --from 2015-01-01`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			sourceFlag, _ := cmd.Flags().GetString("source")
			fromFlag, _ := cmd.Flags().GetString("from")
			toFlag, _ := cmd.Flags().GetString("to")
			days, _ := cmd.Flags().GetInt("days")

			if app.Store == nil {
				output.Error("Store not available")
				return fmt.Errorf("store not available")
			}
			if sourceFlag != "alpaca" && sourceFlag != "postgres" {
				output.Error("Remote source must be alpaca or postgres, got %q", sourceFlag)
				return fmt.Errorf("invalid remote source %q", sourceFlag)
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
			if from.IsZero() {
				from = time.Now().UTC().AddDate(0, 0, -days)
			}

			fetcher, cleanup, err := newFetcher(app, sourceFlag)
			if err != nil {
				output.Error("%v", err)
				return err
			}
			defer cleanup()

			ctx := cmd.Context()
			fetched := 0
			for i, arg := range args {
				symbol := strings.ToUpper(arg)
				if err := fetchIntoStore(ctx, app, fetcher, symbol, from, to); err != nil {
					output.Warning("%s: %v", symbol, err)
				} else {
					fetched++
				}
				if !output.IsJSON() {
					output.Progress(i+1, len(args), "Fetching")
				}
			}

			if output.IsJSON() {
				return output.JSON(map[string]int{
					"requested": len(args),
					"fetched":   fetched,
				})
			}
			output.Success("Fetched %d/%d symbols", fetched, len(args))
			return nil
		},
	}

	cmd.Flags().String("source", "alpaca", "Remote source (alpaca, postgres)")
	cmd.Flags().String("from", "", "Start date (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "End date (YYYY-MM-DD)")
	cmd.Flags().IntP("days", "d", 365, "Days of history when --from is not given")

	return cmd
}

func fetchIntoStore(ctx context.Context, app *App, fetcher marketdata.Fetcher, symbol string, from, to time.Time) error {
	table, err := fetcher.Fetch(ctx, symbol, from, to)
	if err != nil {
		return err
	}
	return app.Store.SaveBars(ctx, symbol, table.Bars())
}

func newDataImportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <symbols...>",
		Short: "Import bars from CSV or parquet files into the store",
		Example: `  backsim data import AAPL
  backsim data import AAPL MSFT --format parquet
  backsim data import SPY --format csv --dir ./bars`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			format, _ := cmd.Flags().GetString("format")
			dir, _ := cmd.Flags().GetString("dir")

			if app.Store == nil {
				output.Error("Store not available")
				return fmt.Errorf("store not available")
			}
			dir = defaultDataDir(app, format, dir)

			ctx := cmd.Context()
			imported := 0
			for _, arg := range args {
				symbol := strings.ToUpper(arg)
				bars, err := readBarsFile(ctx, format, dir, symbol)
				if err != nil {
					output.Warning("%s: %v", symbol, err)
					continue
				}
				if len(bars) == 0 {
					output.Warning("%s: no bars found", symbol)
					continue
				}
				if err := app.Store.SaveBars(ctx, symbol, bars); err != nil {
					output.Warning("%s: saving failed: %v", symbol, err)
					continue
				}
				imported++
				if !output.IsJSON() {
					output.Printf("  %s: %d bars\n", symbol, len(bars))
				}
			}

			if output.IsJSON() {
				return output.JSON(map[string]int{
					"requested": len(args),
					"imported":  imported,
				})
			}
			output.Success("Imported %d/%d symbols", imported, len(args))
			return nil
		},
	}

	cmd.Flags().StringP("format", "f", "csv", "File format (csv, parquet)")
	cmd.Flags().String("dir", "", "Directory to read from (default: configured data dir)")

	return cmd
}

func newDataExportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [symbols...]",
		Short: "Export stored bars to CSV or parquet files",
		Example: `  backsim data export AAPL
  backsim data export --all --format parquet
  backsim data export AAPL MSFT --dir ./bars`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			format, _ := cmd.Flags().GetString("format")
			dir, _ := cmd.Flags().GetString("dir")
			all, _ := cmd.Flags().GetBool("all")

			if app.Store == nil {
				output.Error("Store not available")
				return fmt.Errorf("store not available")
			}
			dir = defaultDataDir(app, format, dir)

			ctx := cmd.Context()
			symbols := make([]string, 0, len(args))
			for _, arg := range args {
				symbols = append(symbols, strings.ToUpper(arg))
			}
			if all {
				stored, err := app.Store.Symbols(ctx)
				if err != nil {
					output.Error("Failed to list symbols: %v", err)
					return err
				}
				symbols = stored
			}
			if len(symbols) == 0 {
				output.Error("No symbols given. Pass them as arguments or use --all.")
				return fmt.Errorf("no symbols to export")
			}

			exported := 0
			for _, symbol := range symbols {
				bars, err := app.Store.GetBars(ctx, symbol, time.Time{}, time.Time{})
				if err != nil {
					output.Warning("%s: %v", symbol, err)
					continue
				}
				if len(bars) == 0 {
					output.Warning("%s: nothing stored", symbol)
					continue
				}
				if err := writeBarsFile(format, dir, symbol, bars); err != nil {
					output.Warning("%s: %v", symbol, err)
					continue
				}
				exported++
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"requested": len(symbols),
					"exported":  exported,
					"dir":       dir,
				})
			}
			output.Success("Exported %d/%d symbols to %s", exported, len(symbols), dir)
			return nil
		},
	}

	cmd.Flags().StringP("format", "f", "csv", "File format (csv, parquet)")
	cmd.Flags().String("dir", "", "Directory to write to (default: configured data dir)")
	cmd.Flags().Bool("all", false, "Export every stored symbol")

	return cmd
}

// defaultDataDir resolves the interchange directory for a format when
// no explicit --dir was given.
func defaultDataDir(app *App, format, dir string) string {
	if dir != "" {
		return dir
	}
	if format == "parquet" {
		return app.Config.Data.ParquetDir
	}
	return app.Config.Data.CSVDir
}

func readBarsFile(ctx context.Context, format, dir, symbol string) ([]models.Bar, error) {
	switch format {
	case "csv":
		table, err := marketdata.NewCSVFetcher(dir).Fetch(ctx, symbol, time.Time{}, time.Time{})
		if err != nil {
			return nil, err
		}
		return table.Bars(), nil
	case "parquet":
		return store.NewParquetStore(dir).ReadBars(symbol)
	default:
		return nil, fmt.Errorf("unknown format %q (want csv or parquet)", format)
	}
}

func writeBarsFile(format, dir, symbol string, bars []models.Bar) error {
	switch format {
	case "csv":
		return writeBarsCSV(filepath.Join(dir, strings.ToUpper(symbol)+".csv"), bars)
	case "parquet":
		return store.NewParquetStore(dir).WriteBars(symbol, bars)
	default:
		return fmt.Errorf("unknown format %q (want csv or parquet)", format)
	}
}

// writeBarsCSV writes bars in the layout the CSV fetcher reads back:
// date,open,high,low,close,volume with ISO dates.
func writeBarsCSV(path string, bars []models.Bar) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"date", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	for i := range bars {
		b := &bars[i]
		rec := []string{
			b.Date.UTC().Format("2006-01-02"),
			strconv.FormatFloat(b.Open, 'f', -1, 64),
			strconv.FormatFloat(b.High, 'f', -1, 64),
			strconv.FormatFloat(b.Low, 'f', -1, 64),
			strconv.FormatFloat(b.Close, 'f', -1, 64),
			strconv.FormatInt(b.Volume, 10),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func newDataListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored symbols and their freshness",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			if app.Store == nil {
				output.Error("Store not available")
				return fmt.Errorf("store not available")
			}

			ctx := cmd.Context()
			symbols, err := app.Store.Symbols(ctx)
			if err != nil {
				output.Error("Failed to list symbols: %v", err)
				return err
			}

			if output.IsJSON() {
				latest := make(map[string]string, len(symbols))
				for _, s := range symbols {
					fresh, err := app.Store.BarFreshness(ctx, s)
					if err != nil || fresh.IsZero() {
						latest[s] = ""
						continue
					}
					latest[s] = fresh.UTC().Format("2006-01-02")
				}
				return output.JSON(latest)
			}

			if len(symbols) == 0 {
				output.Info("No bars stored yet. Run 'backsim data fetch <symbol>' first.")
				return nil
			}

			table := NewTable(output, "Symbol", "Latest Bar")
			for _, s := range symbols {
				fresh, err := app.Store.BarFreshness(ctx, s)
				latest := "-"
				if err == nil && !fresh.IsZero() {
					latest = FormatDate(fresh)
				}
				table.AddRow(s, latest)
			}
			table.Render()
			return nil
		},
	}
}

func newDataShowCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <symbol>",
		Short: "Show recent bars for a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			if app.Store == nil {
				output.Error("Store not available")
				return fmt.Errorf("store not available")
			}

			symbol := strings.ToUpper(args[0])
			limit, _ := cmd.Flags().GetInt("limit")

			bars, err := app.Store.GetBars(cmd.Context(), symbol, time.Time{}, time.Time{})
			if err != nil {
				output.Error("Failed to load bars: %v", err)
				return err
			}
			if len(bars) == 0 {
				output.Warning("No bars stored for %s. Run 'backsim data fetch %s' first.", symbol, symbol)
				return nil
			}

			total := len(bars)
			if limit > 0 && len(bars) > limit {
				bars = bars[len(bars)-limit:]
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"symbol": symbol,
					"total":  total,
					"bars":   bars,
				})
			}
			return displayBars(output, symbol, total, bars)
		},
	}

	cmd.Flags().IntP("limit", "l", 10, "Number of most recent bars to display (0 for all)")

	return cmd
}

func displayBars(output *Output, symbol string, total int, bars []models.Bar) error {
	output.Bold("%s", symbol)
	output.Printf("  showing %d of %d bars\n\n", len(bars), total)

	table := NewTable(output, "Date", "Open", "High", "Low", "Close", "Volume", "Change")
	for i := range bars {
		b := &bars[i]
		change := "-"
		if i > 0 && bars[i-1].Close != 0 {
			pct := (b.Close - bars[i-1].Close) / bars[i-1].Close * 100
			change = output.FormatPercent(pct)
		}
		table.AddRow(
			FormatDate(b.Date),
			FormatPrice(b.Open),
			output.Green(FormatPrice(b.High)),
			output.Red(FormatPrice(b.Low)),
			FormatPrice(b.Close),
			FormatVolume(b.Volume),
			change,
		)
	}
	table.Render()
	return nil
}

func newDataValidateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <symbols...>",
		Short: "Check that stored histories are usable for simulation",
		Long: `Load each symbol through the configured data source and run the same
validation a simulation would: bars present, dates strictly ascending,
prices positive, high covering low. Problems are reported per symbol.`,
		Example: `  backsim data validate AAPL
  backsim data validate AAPL MSFT GOOG --source csv`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			sourceFlag, _ := cmd.Flags().GetString("source")
			fetcher, cleanup, err := newFetcher(app, sourceFlag)
			if err != nil {
				output.Error("%v", err)
				return err
			}
			defer cleanup()

			type check struct {
				Symbol string `json:"symbol"`
				OK     bool   `json:"ok"`
				Bars   int    `json:"bars,omitempty"`
				From   string `json:"from,omitempty"`
				To     string `json:"to,omitempty"`
				Error  string `json:"error,omitempty"`
			}

			ctx := cmd.Context()
			checks := make([]check, 0, len(args))
			valid := 0
			for _, arg := range args {
				symbol := strings.ToUpper(arg)
				table, err := fetcher.Fetch(ctx, symbol, time.Time{}, time.Time{})
				if err != nil {
					checks = append(checks, check{Symbol: symbol, Error: err.Error()})
					continue
				}
				valid++
				checks = append(checks, check{
					Symbol: symbol,
					OK:     true,
					Bars:   table.Len(),
					From:   table.First().Date.UTC().Format("2006-01-02"),
					To:     table.Last().Date.UTC().Format("2006-01-02"),
				})
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"requested": len(args),
					"valid":     valid,
					"checks":    checks,
				})
			}

			table := NewTable(output, "Symbol", "Bars", "From", "To", "Status")
			for _, c := range checks {
				if c.OK {
					table.AddRow(c.Symbol, strconv.Itoa(c.Bars), c.From, c.To, output.Green("ok"))
				} else {
					table.AddRow(c.Symbol, "-", "-", "-", output.Red(c.Error))
				}
			}
			table.Render()

			if valid == 0 {
				output.Error("No usable symbols")
				return fmt.Errorf("none of the %d symbols validated", len(args))
			}
			if valid < len(args) {
				output.Warning("%d/%d symbols are usable", valid, len(args))
			} else {
				output.Success("All %d symbols are usable", valid)
			}
			return nil
		},
	}

	cmd.Flags().String("source", "", "Data source to validate against (default: configured)")

	return cmd
}

func newDataDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <symbol>",
		Short: "Delete all stored bars for a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			if app.Store == nil {
				output.Error("Store not available")
				return fmt.Errorf("store not available")
			}

			symbol := strings.ToUpper(args[0])
			n, err := app.Store.DeleteBars(cmd.Context(), symbol)
			if err != nil {
				output.Error("Failed to delete bars: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"symbol": symbol, "deleted": n})
			}
			output.Success("Deleted %d bars for %s", n, symbol)
			return nil
		},
	}
}
