// Package cli provides the command-line interface for the backtesting application.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"backsim/internal/config"
	"backsim/internal/logging"
	"backsim/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2025-01-01"
)

// App holds the application dependencies.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Store  store.DataStore
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Initialize SQLite store
	dataStore, err := store.NewSQLiteStore(cfg.Data.DatabasePath)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize store, some features may be unavailable")
	} else {
		app.Store = dataStore
		logger.Debug().Str("path", cfg.Data.DatabasePath).Msg("SQLite store initialized")
	}

	rootCmd := &cobra.Command{
		Use:   "backsim",
		Short: "Backsim - multi-asset backtesting CLI",
		Long: `Backsim is a day-resolution backtesting engine for stocks, futures, and options.

It replays strategies against daily OHLCV history with realistic settlement:
commission and slippage on every fill, margined futures with forced
liquidation, and option exercise or expiry at the contract date.

Use 'backsim help <command>' for more information about a command.
Use 'backsim examples' to see common workflows.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Handle debug flag
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/backsim)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	// Add all command groups
	addCoreCommands(rootCmd, app)
	addRunCommands(rootCmd, app)
	addBatchCommands(rootCmd, app)
	addDataCommands(rootCmd, app)
	addStrategyCommands(rootCmd, app)
	addRunsCommands(rootCmd, app)
	addHelpCommands(rootCmd, app)

	return rootCmd
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("Backsim v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and manage application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			return showConfig(output, app.Config)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": config.DefaultConfigDir()})
			} else {
				output.Println(config.DefaultConfigDir())
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("✓ Configuration is valid")
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "edit",
		Short: "Open configuration file in editor",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			configPath := config.DefaultConfigDir() + "/config.toml"
			output.Info("Configuration file: %s", configPath)
			output.Println("Edit this file to change settings.")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) error {
	output.Bold("Backtest Configuration")
	output.Printf("  Initial Capital:  %s\n", FormatCurrency(cfg.Backtest.InitialCapital))
	output.Printf("  Warm-up Days:     %d\n", cfg.Backtest.WarmUpDays)
	output.Printf("  Sizing Fraction:  %.0f%% (strong: %.0f%%)\n",
		cfg.Backtest.SizingFraction*100, cfg.Backtest.StrongSizingFraction*100)
	output.Printf("  Commission:       %.4f%%\n", cfg.Backtest.CommissionRate*100)
	output.Printf("  Slippage:         %.4f%%\n", cfg.Backtest.SlippageRate*100)
	output.Println()

	output.Bold("Futures Configuration")
	output.Printf("  Margin Rate:      %.0f%%\n", cfg.Futures.MarginRate*100)
	output.Printf("  Force-close Rate: %.0f%%\n", cfg.Futures.ForceCloseRate*100)
	output.Printf("  Multiplier:       %.0f\n", cfg.Futures.Multiplier)
	output.Println()

	output.Bold("Options Configuration")
	output.Printf("  Multiplier:       %.0f\n", cfg.Options.Multiplier)
	output.Println()

	output.Bold("Orchestrator Configuration")
	workers := "one per CPU"
	if cfg.Orchestrator.Workers > 0 {
		workers = FormatQuantity(float64(cfg.Orchestrator.Workers))
	}
	output.Printf("  Workers:          %s\n", workers)
	output.Printf("  Tasks per Worker: %d\n", cfg.Orchestrator.TasksPerWorker)
	output.Printf("  Symbol Timeout:   %s\n", cfg.Orchestrator.SymbolTimeout)
	output.Printf("  Memory Budget:    %d MB\n", cfg.Orchestrator.MemoryBudgetMB)
	output.Println()

	output.Bold("Data Configuration")
	output.Printf("  Source:           %s\n", cfg.Data.Source)
	output.Printf("  Database:         %s\n", cfg.Data.DatabasePath)
	output.Printf("  Parquet Dir:      %s\n", cfg.Data.ParquetDir)
	output.Printf("  CSV Dir:          %s\n", cfg.Data.CSVDir)
	output.Println()

	output.Bold("Logging")
	output.Printf("  Level:            %s\n", cfg.Logging.Level)
	output.Printf("  Console:          %v\n", cfg.Logging.Console)
	output.Printf("  File:             %v\n", cfg.Logging.File)

	return nil
}
