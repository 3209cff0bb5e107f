// Package cli provides the command-line interface for the backtesting application.
package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"backsim/internal/strategy"
)

// strategyBlurbs maps builtin strategy names to one-line summaries for
// the listing. New builtins without a blurb still show up, just with a
// blank description.
var strategyBlurbs = map[string]string{
	"sma-cross":     "Buy when the fast SMA crosses above the slow SMA, sell on the cross back down",
	"rsi-reversion": "Buy oversold (RSI below 30), sell overbought (RSI above 70)",
	"momentum":      "Buy on strong rate of change, strong-size the conviction entries",
	"buy-hold":      "Buy on the first eligible day and hold to the end",
}

// addStrategyCommands adds strategy listing commands.
func addStrategyCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newStrategiesCmd(app))
}

func newStrategiesCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "strategies",
		Short: "List available strategies",
		Long: `List the builtin strategies together with the number of warm-up bars
each one needs before it starts producing signals. Pass any listed name
to 'backsim run --strategy' or 'backsim batch --strategy'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			catalog := strategy.DefaultCatalog()

			type entry struct {
				Name        string `json:"name"`
				WarmUp      int    `json:"warm_up_bars"`
				Description string `json:"description"`
			}

			entries := make([]entry, 0, len(catalog.Names()))
			for _, name := range catalog.Names() {
				p, err := catalog.New(name)
				if err != nil {
					continue
				}
				entries = append(entries, entry{
					Name:        name,
					WarmUp:      p.WarmUp(),
					Description: strategyBlurbs[name],
				})
			}

			if output.IsJSON() {
				return output.JSON(entries)
			}

			output.Bold("Available strategies")
			output.Println()
			table := NewTable(output, "Name", "Warm-up", "Description")
			for _, e := range entries {
				table.AddRow(output.Cyan(e.Name), strconv.Itoa(e.WarmUp), e.Description)
			}
			table.Render()
			output.Println()
			output.Dim("The driver adds its own warm-up window on top; see 'backsim config show'.")
			return nil
		},
	}
}
