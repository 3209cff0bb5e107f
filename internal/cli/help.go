// Package cli provides the command-line interface for the backtesting application.
package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

// addHelpCommands adds help and documentation commands.
func addHelpCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newCommandsCmd(app))
	rootCmd.AddCommand(newExamplesCmd(app))
	rootCmd.AddCommand(newQuickstartCmd(app))
}

func newCommandsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List all commands by category",
		Long:  "Display all available commands organized by category.",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			output.Bold("Backsim Commands")
			output.Println()

			categories := []struct {
				name     string
				commands []struct {
					cmd  string
					desc string
				}
			}{
				{
					name: "Simulation",
					commands: []struct {
						cmd  string
						desc string
					}{
						{"run <symbol>", "Simulate one symbol"},
						{"batch [symbols...]", "Simulate many symbols in parallel"},
						{"batch -u universe.yaml", "Simulate a universe file"},
						{"strategies", "List builtin strategies"},
					},
				},
				{
					name: "Market Data",
					commands: []struct {
						cmd  string
						desc string
					}{
						{"data fetch <symbols...>", "Download bars into the store"},
						{"data import <symbols...>", "Import bars from CSV/parquet"},
						{"data export [symbols...]", "Export stored bars to CSV/parquet"},
						{"data list", "List stored symbols"},
						{"data show <symbol>", "Show recent bars"},
						{"data validate <symbols...>", "Check histories are usable"},
						{"data delete <symbol>", "Delete stored bars"},
					},
				},
				{
					name: "Saved Runs",
					commands: []struct {
						cmd  string
						desc string
					}{
						{"runs list", "List saved runs"},
						{"runs show <id>", "Show a saved run in full"},
						{"runs export <id>", "Export trades or equity to CSV"},
						{"runs delete <id>", "Delete a saved run"},
					},
				},
				{
					name: "Configuration",
					commands: []struct {
						cmd  string
						desc string
					}{
						{"config show", "Show current configuration"},
						{"config path", "Show config file location"},
						{"config validate", "Validate configuration"},
						{"config edit", "Open config in $EDITOR"},
					},
				},
				{
					name: "Help",
					commands: []struct {
						cmd  string
						desc string
					}{
						{"help <command>", "Detailed help"},
						{"commands", "List all commands"},
						{"examples", "Common workflows"},
						{"quickstart", "New user guide"},
						{"version", "Version information"},
					},
				},
			}

			for _, cat := range categories {
				output.Bold(cat.name)
				for _, c := range cat.commands {
					output.Printf("  %-30s %s\n", output.Cyan(c.cmd), c.desc)
				}
				output.Println()
			}

			output.Dim("Use 'backsim help <command>' for detailed help on any command")

			return nil
		},
	}
}

func newExamplesCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "examples",
		Short: "Show common workflow examples",
		Long:  "Display examples of common backtesting workflows.",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			output.Bold("Common Workflow Examples")
			output.Println()

			examples := []struct {
				title    string
				commands []string
			}{
				{
					title: "First Simulation",
					commands: []string{
						"backsim data fetch AAPL --days 730   # Pull two years of bars",
						"backsim strategies                   # Pick a strategy",
						"backsim run AAPL                     # Simulate with defaults",
						"backsim run AAPL --chart             # Add the equity chart",
					},
				},
				{
					title: "Compare Strategies on One Symbol",
					commands: []string{
						"backsim run AAPL -s sma-cross --save",
						"backsim run AAPL -s rsi-reversion --save",
						"backsim run AAPL -s momentum --save",
						"backsim runs list --symbol AAPL      # Side by side",
					},
				},
				{
					title: "Batch a Universe",
					commands: []string{
						"backsim batch AAPL MSFT GOOG AMZN    # Inline symbol list",
						"backsim batch -u universe.yaml       # Or from a file",
						"backsim batch -u universe.yaml -w 8  # Cap the worker pool",
						"backsim batch -u universe.yaml --save --json > results.json",
					},
				},
				{
					title: "Futures and Options",
					commands: []string{
						"backsim run CLX5 --asset futures     # Margined, can force-liquidate",
						"backsim run SPYC450 --asset option   # Exercise or expire at the end",
						"backsim batch -u futs.yaml -a futures -s momentum",
					},
				},
				{
					title: "Work Offline from Files",
					commands: []string{
						"backsim data import AAPL --format csv --dir ./bars",
						"backsim run AAPL --source csv        # Bypass the store entirely",
						"backsim data export --all --format parquet",
					},
				},
				{
					title: "Export Results",
					commands: []string{
						"backsim run AAPL --export-trades trades.csv",
						"backsim run AAPL --export-equity equity.csv",
						"backsim runs export 01JF3V9G2M --trades trades.csv",
						"backsim run AAPL --json | jq .summary",
					},
				},
			}

			for _, ex := range examples {
				output.Bold(ex.title)
				for _, c := range ex.commands {
					parts := strings.SplitN(c, "#", 2)
					if len(parts) == 2 {
						output.Printf("  %s %s\n", output.Cyan(strings.TrimSpace(parts[0])), output.DimText(strings.TrimSpace(parts[1])))
					} else {
						output.Printf("  %s\n", output.Cyan(c))
					}
				}
				output.Println()
			}

			return nil
		},
	}
}

func newQuickstartCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "quickstart",
		Short: "New user guide",
		Long:  "Step-by-step guide for new users.",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			output.Bold("Backsim - Quick Start Guide")
			output.Println()

			steps := []struct {
				step  int
				title string
				desc  string
				cmd   string
			}{
				{
					step:  1,
					title: "Create the Configuration",
					desc:  "The first invocation writes a config template you can edit.",
					cmd:   "backsim config path  # Shows config directory",
				},
				{
					step:  2,
					title: "Load Market Data",
					desc:  "Fetch bars from a provider, or import CSV files you already have.",
					cmd:   "backsim data fetch AAPL --days 730",
				},
				{
					step:  3,
					title: "Pick a Strategy",
					desc:  "List the builtins and their warm-up requirements.",
					cmd:   "backsim strategies",
				},
				{
					step:  4,
					title: "Run Your First Simulation",
					desc:  "Simulate one symbol against the stored bars.",
					cmd:   "backsim run AAPL --strategy sma-cross",
				},
				{
					step:  5,
					title: "Save and Review",
					desc:  "Saved runs keep the full trade log and equity curve.",
					cmd:   "backsim run AAPL --save && backsim runs list",
				},
				{
					step:  6,
					title: "Scale Up to a Universe",
					desc:  "Batch mode simulates every symbol in parallel.",
					cmd:   "backsim batch AAPL MSFT GOOG --save",
				},
				{
					step:  7,
					title: "Tune the Assumptions",
					desc:  "Capital, fees, margin, and warm-up all live in config.toml.",
					cmd:   "backsim config edit",
				},
			}

			for _, s := range steps {
				output.Printf("%s Step %d: %s\n", output.Cyan("→"), s.step, output.BoldText(s.title))
				output.Printf("  %s\n", s.desc)
				output.Printf("  %s\n\n", output.DimText(s.cmd))
			}

			output.Bold("Configuration Files")
			output.Println()
			output.Printf("  %s - Capital, costs, margin, worker pool, data paths\n", output.Cyan("config.toml"))
			output.Printf("  %s - Data provider API credentials\n", output.Cyan("credentials.toml"))
			output.Println()

			output.Bold("Getting Help")
			output.Println()
			output.Printf("  %s - List all commands\n", output.Cyan("backsim commands"))
			output.Printf("  %s - Common workflows\n", output.Cyan("backsim examples"))
			output.Printf("  %s - Help for any command\n", output.Cyan("backsim help <command>"))
			output.Println()

			output.Bold("Important Notes")
			output.Println()
			output.Printf("  %s Simulations trade at the close with slippage and commission applied\n", output.Yellow("⚠"))
			output.Printf("  %s The warm-up window consumes the first days of every range\n", output.Yellow("⚠"))
			output.Printf("  %s Futures positions can be force-liquidated on margin exhaustion\n", output.Yellow("⚠"))
			output.Printf("  %s Past performance in a simulation guarantees nothing\n", output.Yellow("⚠"))

			return nil
		},
	}
}
