// Package cli provides the command-line interface for the backtesting application.
package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"backsim/internal/models"
	"backsim/internal/orchestrator"
	"backsim/internal/strategy"
)

// addBatchCommands adds multi-symbol simulation commands.
func addBatchCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newBatchCmd(app))
}

// universeFile is the YAML shape accepted by --universe.
type universeFile struct {
	Name    string   `yaml:"name"`
	Symbols []string `yaml:"symbols"`
}

func newBatchCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch [symbols...]",
		Short: "Run a backtest over many symbols in parallel",
		Long: `Simulate one strategy against a whole universe of symbols.

Symbols come from the command line, a --universe YAML file, or both.
History for every symbol is fetched and validated up front; symbols with
missing or unusable data are skipped with a recorded reason and the rest
run concurrently on a bounded worker pool. Per-symbol results are
identical to what 'backsim run' produces for the same inputs.`,
		Example: `  backsim batch AAPL MSFT GOOG
  backsim batch --universe sp100.yaml --strategy momentum --save
  backsim batch AAPL MSFT --workers 4 --timeout 60s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			universePath, _ := cmd.Flags().GetString("universe")
			strategyName, _ := cmd.Flags().GetString("strategy")
			assetFlag, _ := cmd.Flags().GetString("asset")
			fromFlag, _ := cmd.Flags().GetString("from")
			toFlag, _ := cmd.Flags().GetString("to")
			sourceFlag, _ := cmd.Flags().GetString("source")
			workers, _ := cmd.Flags().GetInt("workers")
			timeout, _ := cmd.Flags().GetDuration("timeout")
			save, _ := cmd.Flags().GetBool("save")

			symbols := make([]string, 0, len(args))
			for _, s := range args {
				symbols = append(symbols, strings.ToUpper(s))
			}
			if universePath != "" {
				fromFile, err := readUniverse(universePath)
				if err != nil {
					output.Error("Failed to read universe file: %v", err)
					return err
				}
				symbols = append(symbols, fromFile...)
			}
			if len(symbols) == 0 {
				output.Error("No symbols given. Pass them as arguments or with --universe.")
				return fmt.Errorf("no symbols to simulate")
			}

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

			factory, err := strategy.CatalogFor(asset).Factory(strategyName)
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

			cfg := orchestratorConfig(app.Config, from, to)
			if workers > 0 {
				cfg.Workers = workers
			}
			if timeout > 0 {
				cfg.SymbolTimeout = timeout
			}

			orch, err := orchestrator.New(cfg, fetcher, factory, app.Logger)
			if err != nil {
				output.Error("Invalid batch parameters: %v", err)
				return err
			}

			var bar *progressbar.ProgressBar
			if !output.IsJSON() {
				bar = newBatchProgressBar(len(symbols))
				orch.OnResult = func(*models.SimulationResult) {
					bar.Add(1)
				}
			}

			res, runErr := orch.RunBatch(cmd.Context(), symbols)
			if bar != nil {
				bar.Finish()
				fmt.Fprintln(os.Stderr)
			}
			if runErr != nil {
				displaySkipped(output, res.Skipped)
				output.Error("Batch failed: %v", runErr)
				return runErr
			}

			saved := 0
			if save {
				if app.Store == nil {
					output.Warning("Store unavailable, runs not saved")
				} else {
					for _, r := range res.Results {
						if r.Failed() {
							continue
						}
						if _, saveErr := app.Store.SaveRun(cmd.Context(), r); saveErr != nil {
							output.Warning("Failed to save run for %s: %v", r.Symbol, saveErr)
							continue
						}
						saved++
					}
				}
			}

			if output.IsJSON() {
				return output.JSON(batchJSON(res))
			}

			displayBatch(output, res)
			if save {
				output.Info("%d runs saved to the store", saved)
			}
			return nil
		},
	}

	cmd.Flags().StringP("universe", "u", "", "YAML file listing symbols to simulate")
	cmd.Flags().StringP("strategy", "s", "sma-cross", "Strategy name (see 'backsim strategies')")
	cmd.Flags().StringP("asset", "a", "stock", "Asset class (stock, futures, option)")
	cmd.Flags().String("from", "", "Start date (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "End date (YYYY-MM-DD)")
	cmd.Flags().String("source", "", "Data source override (store, csv, parquet, alpaca, postgres)")
	cmd.Flags().IntP("workers", "w", 0, "Worker pool size override (0 uses config)")
	cmd.Flags().Duration("timeout", 0, "Per-symbol timeout override")
	cmd.Flags().Bool("save", false, "Save every completed run to the local store")

	return cmd
}

func readUniverse(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var u universeFile
	if err := yaml.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("parsing %s failed: %w", path, err)
	}

	symbols := make([]string, 0, len(u.Symbols))
	for _, s := range u.Symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			symbols = append(symbols, s)
		}
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%s lists no symbols", path)
	}
	return symbols, nil
}

func newBatchProgressBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("Simulating..."),
		progressbar.OptionShowCount(),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}

// batchRunJSON attaches the failure message that SimulationResult
// deliberately keeps out of its own JSON shape.
type batchRunJSON struct {
	*models.SimulationResult
	Error string `json:"error,omitempty"`
}

func batchJSON(res *orchestrator.BatchResult) map[string]interface{} {
	runs := make([]batchRunJSON, 0, len(res.Results))
	for _, r := range res.Results {
		entry := batchRunJSON{SimulationResult: r}
		if r.Err != nil {
			entry.Error = r.Err.Error()
		}
		runs = append(runs, entry)
	}
	return map[string]interface{}{
		"requested":       res.Requested,
		"completed":       res.Completed,
		"failed":          res.Failed,
		"workers_spawned": res.WorkersSpawned,
		"elapsed":         res.Elapsed.String(),
		"skipped":         res.Skipped,
		"results":         runs,
	}
}

func displayBatch(output *Output, res *orchestrator.BatchResult) {
	// Sort a copy for display; the result slice itself stays in
	// completion order.
	results := make([]*models.SimulationResult, len(res.Results))
	copy(results, res.Results)
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Failed() != results[j].Failed() {
			return !results[i].Failed()
		}
		return results[i].Summary.TotalReturn > results[j].Summary.TotalReturn
	})

	table := NewTable(output, "Symbol", "Final Value", "Return", "Max DD", "Sharpe", "Trades", "Forced", "Status")
	for _, r := range results {
		if r.Failed() {
			table.AddRow(r.Symbol, "-", "-", "-", "-", "-", "-",
				output.Red(TruncateString(r.Err.Error(), 40)))
			continue
		}
		s := r.Summary
		forced := ""
		if s.ForcedLiquidation > 0 {
			forced = output.Yellow(fmt.Sprintf("%d", s.ForcedLiquidation))
		}
		table.AddRow(
			r.Symbol,
			FormatCompact(s.FinalValue),
			output.FormatPercent(s.TotalReturn),
			fmt.Sprintf("%.2f%%", s.MaxDrawdown),
			fmt.Sprintf("%.2f", s.SharpeRatio),
			fmt.Sprintf("%d", s.TotalTrades),
			forced,
			output.Green("ok"),
		)
	}
	table.Render()
	output.Println()

	displaySkipped(output, res.Skipped)
	if res.Failed > 0 {
		output.Warning("%d simulations failed", res.Failed)
	}
	output.Success("%d/%d symbols completed in %s (%d workers spawned)",
		res.Completed, res.Requested, FormatDuration(res.Elapsed), res.WorkersSpawned)
}

func displaySkipped(output *Output, skipped map[string]string) {
	if len(skipped) == 0 {
		return
	}
	symbols := make([]string, 0, len(skipped))
	for s := range skipped {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	output.Warning("%d symbols skipped:", len(skipped))
	for _, s := range symbols {
		output.Dim("  %s: %s", s, skipped[s])
	}
}
