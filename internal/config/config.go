// Package config provides configuration management for the backtesting
// application.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Backtest     BacktestConfig     `mapstructure:"backtest"`
	Futures      FuturesConfig      `mapstructure:"futures"`
	Options      OptionsConfig      `mapstructure:"options"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Data         DataConfig         `mapstructure:"data"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Profiling    ProfilingConfig    `mapstructure:"profiling"`
	Credentials  Credentials        `mapstructure:"-"` // Loaded separately
}

// BacktestConfig holds per-simulation parameters.
type BacktestConfig struct {
	InitialCapital       float64 `mapstructure:"initial_capital"`
	WarmUpDays           int     `mapstructure:"warm_up_days"`
	SizingFraction       float64 `mapstructure:"sizing_fraction"`
	StrongSizingFraction float64 `mapstructure:"strong_sizing_fraction"`
	CommissionRate       float64 `mapstructure:"commission_rate"`
	SlippageRate         float64 `mapstructure:"slippage_rate"`
}

// FuturesConfig holds futures contract parameters.
type FuturesConfig struct {
	MarginRate     float64 `mapstructure:"margin_rate"`
	ForceCloseRate float64 `mapstructure:"force_close_rate"`
	Multiplier     float64 `mapstructure:"multiplier"`
}

// OptionsConfig holds option contract parameters.
type OptionsConfig struct {
	Multiplier float64 `mapstructure:"multiplier"`
}

// OrchestratorConfig holds batch execution parameters.
type OrchestratorConfig struct {
	Workers        int           `mapstructure:"workers"` // 0 = one per CPU
	TasksPerWorker int           `mapstructure:"tasks_per_worker"`
	SymbolTimeout  time.Duration `mapstructure:"symbol_timeout"`
	MemoryBudgetMB int           `mapstructure:"memory_budget_mb"`
}

// DataConfig holds data source and storage configuration.
type DataConfig struct {
	Source       string `mapstructure:"source"` // "store", "csv", "parquet", "alpaca", "postgres"
	DatabasePath string `mapstructure:"database_path"`
	ParquetDir   string `mapstructure:"parquet_dir"`
	CSVDir       string `mapstructure:"csv_dir"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// ProfilingConfig holds continuous profiling configuration.
type ProfilingConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	ServerAddress string `mapstructure:"server_address"`
	AppName       string `mapstructure:"application_name"`
}

// Credentials holds external data provider credentials.
type Credentials struct {
	Alpaca   AlpacaCredentials   `mapstructure:"alpaca"`
	Postgres PostgresCredentials `mapstructure:"postgres"`
}

// AlpacaCredentials holds Alpaca market data API credentials.
type AlpacaCredentials struct {
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	BaseURL   string `mapstructure:"base_url"`
}

// PostgresCredentials holds the bar warehouse connection string.
type PostgresCredentials struct {
	URL string `mapstructure:"url"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/backsim"
	}
	return filepath.Join(home, ".config", "backsim")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}

	// Load main config
	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	// Load credentials
	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir, name string, target interface{}) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	setDefaults(v, configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found, create template
			return createTemplateConfig(configDir, name)
		}
		return err
	}

	return v.Unmarshal(target)
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("backtest.initial_capital", 100000.0)
	v.SetDefault("backtest.warm_up_days", 120)
	v.SetDefault("backtest.sizing_fraction", 0.30)
	v.SetDefault("backtest.strong_sizing_fraction", 0.60)
	v.SetDefault("backtest.commission_rate", 0.0003)
	v.SetDefault("backtest.slippage_rate", 0.0003)

	v.SetDefault("futures.margin_rate", 0.15)
	v.SetDefault("futures.force_close_rate", 0.03)
	v.SetDefault("futures.multiplier", 10.0)

	v.SetDefault("options.multiplier", 100.0)

	v.SetDefault("orchestrator.workers", 0)
	v.SetDefault("orchestrator.tasks_per_worker", 16)
	v.SetDefault("orchestrator.symbol_timeout", "120s")
	v.SetDefault("orchestrator.memory_budget_mb", 0)

	v.SetDefault("data.source", "store")
	v.SetDefault("data.database_path", filepath.Join(configDir, "backsim.db"))
	v.SetDefault("data.parquet_dir", filepath.Join(configDir, "parquet"))
	v.SetDefault("data.csv_dir", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", true)
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 7)
	v.SetDefault("logging.max_age_days", 30)

	v.SetDefault("profiling.enabled", false)
	v.SetDefault("profiling.server_address", "http://localhost:4040")
	v.SetDefault("profiling.application_name", "backsim")
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Credentials are only needed for remote data sources;
			// create the template and carry on without them.
			return createTemplateCredentials(configDir)
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	// Alpaca credentials
	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Credentials.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Credentials.Alpaca.APISecret = v
	}

	// Postgres bar warehouse
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Credentials.Postgres.URL = v
	}

	// Data source
	if v := os.Getenv("BACKSIM_DATA_SOURCE"); v != "" {
		cfg.Data.Source = v
	}

	// Log level
	if v := os.Getenv("BACKSIM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Backtest.InitialCapital <= 0 {
		return fmt.Errorf("initial_capital must be positive")
	}
	if c.Backtest.WarmUpDays < 0 {
		return fmt.Errorf("warm_up_days must be non-negative")
	}
	if c.Backtest.SizingFraction <= 0 || c.Backtest.SizingFraction > 1 {
		return fmt.Errorf("sizing_fraction must be in (0, 1]")
	}
	if c.Backtest.StrongSizingFraction <= 0 || c.Backtest.StrongSizingFraction > 1 {
		return fmt.Errorf("strong_sizing_fraction must be in (0, 1]")
	}
	if c.Backtest.CommissionRate < 0 || c.Backtest.CommissionRate >= 1 {
		return fmt.Errorf("commission_rate must be in [0, 1)")
	}
	if c.Backtest.SlippageRate < 0 || c.Backtest.SlippageRate >= 1 {
		return fmt.Errorf("slippage_rate must be in [0, 1)")
	}

	if c.Futures.MarginRate <= 0 || c.Futures.MarginRate >= 1 {
		return fmt.Errorf("futures margin_rate must be in (0, 1)")
	}
	if c.Futures.ForceCloseRate < 0 || c.Futures.ForceCloseRate >= c.Futures.MarginRate {
		return fmt.Errorf("futures force_close_rate must be in [0, margin_rate)")
	}
	if c.Futures.Multiplier <= 0 {
		return fmt.Errorf("futures multiplier must be positive")
	}
	if c.Options.Multiplier <= 0 {
		return fmt.Errorf("options multiplier must be positive")
	}

	if c.Orchestrator.Workers < 0 {
		return fmt.Errorf("workers must be non-negative")
	}
	if c.Orchestrator.TasksPerWorker < 0 {
		return fmt.Errorf("tasks_per_worker must be non-negative")
	}
	if c.Orchestrator.MemoryBudgetMB < 0 {
		return fmt.Errorf("memory_budget_mb must be non-negative")
	}

	switch c.Data.Source {
	case "store", "csv", "parquet", "alpaca", "postgres":
	default:
		return fmt.Errorf("invalid data source: %s (must be store, csv, parquet, alpaca or postgres)", c.Data.Source)
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn or error)", c.Logging.Level)
	}

	if c.Profiling.Enabled && c.Profiling.ServerAddress == "" {
		return fmt.Errorf("profiling server_address is required when profiling is enabled")
	}

	return nil
}
