package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Backsim Configuration

[backtest]
# Starting cash for every simulation
initial_capital = 100000.0
# Days of history a strategy sees before its first order may fill
warm_up_days = 120
# Fraction of available cash committed per plain signal
sizing_fraction = 0.30
# Fraction of available cash committed per strong signal
strong_sizing_fraction = 0.60
# Commission charged on traded notional
commission_rate = 0.0003
# Slippage charged on traded notional
slippage_rate = 0.0003

[futures]
# Initial margin as a fraction of contract notional
margin_rate = 0.15
# Maintenance buffer consumed before a forced close triggers
force_close_rate = 0.03
# Contract multiplier
multiplier = 10.0

[options]
# Contract multiplier
multiplier = 100.0

[orchestrator]
# Concurrent simulations; 0 means one per CPU
workers = 0
# Simulations a worker runs before being recycled; 0 disables recycling
tasks_per_worker = 16
# Per-symbol wall clock budget (e.g. "120s", "5m")
symbol_timeout = "120s"
# Shrink the worker pool while the heap exceeds this budget; 0 disables
memory_budget_mb = 0

[data]
# Bar source: store, csv, parquet, alpaca, postgres
source = "store"
# Paths default to the config directory when left commented out
# database_path = "~/.config/backsim/backsim.db"
# parquet_dir = "~/.config/backsim/parquet"
# csv_dir = ""

[logging]
# Log level: debug, info, warn, error
level = "info"
# Log to the terminal
console = true
# Log to a rotated file under the config directory
file = true
max_size_mb = 100
max_backups = 7
max_age_days = 30

[profiling]
# Ship continuous profiles to a Pyroscope server
enabled = false
server_address = "http://localhost:4040"
application_name = "backsim"
`

const credentialsTemplate = `# Backsim Credentials
# WARNING: Keep this file secure! Do not commit to version control.

[alpaca]
api_key = ""
api_secret = ""
base_url = ""

[postgres]
url = ""
`

func createTemplateConfig(configDir, name string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return fmt.Errorf("config file not found, created template at %s", path)
}

func createTemplateCredentials(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "credentials.toml")
	// Use restricted permissions for credentials file
	if err := os.WriteFile(path, []byte(credentialsTemplate), 0600); err != nil {
		return fmt.Errorf("writing credentials template: %w", err)
	}

	return nil
}
