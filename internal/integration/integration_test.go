// Package integration exercises the simulation pipeline end to end the
// way the CLI wires it: bar files on disk, a real SQLite store, and the
// batch orchestrator running the same drivers the single-run path uses.
package integration

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"backsim/internal/backtest"
	"backsim/internal/marketdata"
	"backsim/internal/models"
	"backsim/internal/orchestrator"
	"backsim/internal/series"
	"backsim/internal/store"
	"backsim/internal/strategy"
)

// writeWaveCSV writes a deterministic sine-wave history to
// <dir>/<SYMBOL>.csv in the layout every file fetcher reads.
func writeWaveCSV(t *testing.T, dir, symbol string, n int, amp float64) {
	t.Helper()

	var b strings.Builder
	b.WriteString("date,open,high,low,close,volume\n")
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		c := 100 + amp*math.Sin(float64(i)/3)
		fmt.Fprintf(&b, "%s,%.4f,%.4f,%.4f,%.4f,%d\n",
			start.AddDate(0, 0, i).Format("2006-01-02"), c, c+1, c-1, c, 1000+i)
	}

	path := filepath.Join(dir, strings.ToUpper(symbol)+".csv")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func testBacktestConfig() backtest.Config {
	cfg := backtest.DefaultConfig()
	cfg.WarmUp = 6
	return cfg
}

func smaFactory() strategy.Provider {
	return strategy.NewSMACross(3, 5, models.AssetStock)
}

// TestFileToStorePipeline runs one symbol from a CSV file through a
// driver, then round-trips the finished run through the store.
func TestFileToStorePipeline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Setup data directory and store
	dataDir := t.TempDir()
	writeWaveCSV(t, dataDir, "ACME", 60, 8)

	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "backsim.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer db.Close()

	// Test 1: Fetch the history from disk
	table, err := marketdata.NewCSVFetcher(dataDir).Fetch(ctx, "ACME", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Failed to fetch bars: %v", err)
	}
	if table.Len() != 60 {
		t.Fatalf("Expected 60 bars, got %d", table.Len())
	}

	// Test 2: Simulate the strategy over the table
	driver, err := backtest.NewDriver(testBacktestConfig(), smaFactory(), zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create driver: %v", err)
	}
	res, err := driver.Run(ctx, table)
	if err != nil {
		t.Fatalf("Simulation failed: %v", err)
	}

	if res.Summary.TradingDays != 60 {
		t.Errorf("Expected 60 trading days, got %d", res.Summary.TradingDays)
	}
	if len(res.EquityCurve) != 60 {
		t.Errorf("Expected an equity point per day, got %d", len(res.EquityCurve))
	}
	if len(res.Trades) == 0 {
		t.Error("Expected the crossover strategy to trade on wave data")
	}
	last := res.EquityCurve[len(res.EquityCurve)-1]
	if last.TotalValue != res.Summary.FinalValue {
		t.Errorf("Final equity point %.4f does not match summary %.4f", last.TotalValue, res.Summary.FinalValue)
	}

	// Test 3: Persist the run and read it back
	id, err := db.SaveRun(ctx, res)
	if err != nil {
		t.Fatalf("Failed to save run: %v", err)
	}
	if id == "" {
		t.Fatal("Run ID should not be empty")
	}

	loaded, err := db.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("Failed to load run: %v", err)
	}

	if loaded.Symbol != res.Symbol || loaded.Strategy != res.Strategy {
		t.Errorf("Loaded run is %s/%s, want %s/%s", loaded.Symbol, loaded.Strategy, res.Symbol, res.Strategy)
	}
	if loaded.Summary != res.Summary {
		t.Errorf("Loaded summary differs:\n got %+v\nwant %+v", loaded.Summary, res.Summary)
	}
	if len(loaded.Trades) != len(res.Trades) {
		t.Fatalf("Loaded %d trades, want %d", len(loaded.Trades), len(res.Trades))
	}
	for i, tr := range res.Trades {
		got := loaded.Trades[i]
		if got.ID != tr.ID || !got.Date.Equal(tr.Date) || got.Action != tr.Action ||
			got.Price != tr.Price || got.Quantity != tr.Quantity || got.RealizedPnL != tr.RealizedPnL {
			t.Errorf("Trade %d round-tripped as %+v, want %+v", i, got, tr)
		}
	}
	if len(loaded.EquityCurve) != len(res.EquityCurve) {
		t.Fatalf("Loaded %d equity points, want %d", len(loaded.EquityCurve), len(res.EquityCurve))
	}
	for i, p := range res.EquityCurve {
		got := loaded.EquityCurve[i]
		if !got.Date.Equal(p.Date) || got.TotalValue != p.TotalValue ||
			got.Cash != p.Cash || got.MarginUsed != p.MarginUsed {
			t.Errorf("Equity point %d round-tripped as %+v, want %+v", i, got, p)
		}
	}

	t.Logf("Pipeline test passed: %d trades, final value %.2f, run %s", len(res.Trades), res.Summary.FinalValue, id)
}

// TestStoreSourceMatchesFileSource verifies that where the bars come
// from does not change the simulation: a history imported into SQLite
// produces the same run as the file it came from.
func TestStoreSourceMatchesFileSource(t *testing.T) {
	ctx := context.Background()

	dataDir := t.TempDir()
	writeWaveCSV(t, dataDir, "ACME", 50, 6)

	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "backsim.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer db.Close()

	// Import the file into the store, as 'backsim data import' would.
	fileTable, err := marketdata.NewCSVFetcher(dataDir).Fetch(ctx, "ACME", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Failed to fetch bars from file: %v", err)
	}
	if err := db.SaveBars(ctx, "ACME", fileTable.Bars()); err != nil {
		t.Fatalf("Failed to import bars: %v", err)
	}

	storeTable, err := marketdata.NewSourceFetcher(db).Fetch(ctx, "ACME", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Failed to fetch bars from store: %v", err)
	}
	if storeTable.Len() != fileTable.Len() {
		t.Fatalf("Store has %d bars, file has %d", storeTable.Len(), fileTable.Len())
	}

	fromFile := runSim(t, ctx, fileTable)
	fromStore := runSim(t, ctx, storeTable)

	if fromFile.Summary != fromStore.Summary {
		t.Errorf("Summaries differ between sources:\n file %+v\nstore %+v", fromFile.Summary, fromStore.Summary)
	}
	if len(fromFile.Trades) != len(fromStore.Trades) {
		t.Fatalf("File source made %d trades, store source %d", len(fromFile.Trades), len(fromStore.Trades))
	}
	for i := range fromFile.Trades {
		if fromFile.Trades[i].ID != fromStore.Trades[i].ID {
			t.Errorf("Trade %d IDs differ: %s vs %s", i, fromFile.Trades[i].ID, fromStore.Trades[i].ID)
		}
	}

	t.Logf("Source equivalence test passed: %d trades from both sources", len(fromFile.Trades))
}

// TestBatchPipelineMatchesIndividualRuns runs a file-backed batch and
// checks every symbol against a standalone run over the same file.
func TestBatchPipelineMatchesIndividualRuns(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	dataDir := t.TempDir()
	symbols := []string{"AAA", "BBB", "CCC", "DDD"}
	for i, symbol := range symbols {
		writeWaveCSV(t, dataDir, symbol, 50, 4+3*float64(i))
	}
	fetcher := marketdata.NewCSVFetcher(dataDir)

	cfg := orchestrator.Config{
		Workers:        2,
		TasksPerWorker: 2, // force at least one worker recycle
		SymbolTimeout:  30 * time.Second,
		Backtest:       testBacktestConfig(),
	}
	o, err := orchestrator.New(cfg, fetcher, smaFactory, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create orchestrator: %v", err)
	}

	var streamed []string
	o.OnResult = func(res *models.SimulationResult) {
		streamed = append(streamed, res.Symbol)
	}

	batch, err := o.RunBatch(ctx, symbols)
	if err != nil {
		t.Fatalf("Batch failed: %v", err)
	}

	// Test 1: Everything completed
	if batch.Completed != len(symbols) || batch.Failed != 0 {
		t.Fatalf("Batch completed %d and failed %d of %d", batch.Completed, batch.Failed, len(symbols))
	}
	if len(batch.Skipped) != 0 {
		t.Errorf("Nothing should be skipped, got %v", batch.Skipped)
	}
	if len(streamed) != len(symbols) {
		t.Errorf("OnResult saw %d results, want %d", len(streamed), len(symbols))
	}

	// Test 2: Each batched run equals its standalone counterpart
	bySymbol := make(map[string]*models.SimulationResult, len(batch.Results))
	for _, res := range batch.Results {
		bySymbol[res.Symbol] = res
	}
	for _, symbol := range symbols {
		got := bySymbol[symbol]
		if got == nil {
			t.Fatalf("Batch produced no result for %s", symbol)
		}

		table, err := fetcher.Fetch(ctx, symbol, time.Time{}, time.Time{})
		if err != nil {
			t.Fatalf("Failed to refetch %s: %v", symbol, err)
		}
		solo := runSim(t, ctx, table)

		if got.Summary != solo.Summary {
			t.Errorf("%s batch summary differs from solo:\nbatch %+v\n solo %+v", symbol, got.Summary, solo.Summary)
		}
		if len(got.Trades) != len(solo.Trades) {
			t.Fatalf("%s batch made %d trades, solo %d", symbol, len(got.Trades), len(solo.Trades))
		}
		for i := range solo.Trades {
			if got.Trades[i].ID != solo.Trades[i].ID ||
				got.Trades[i].NetCashDelta != solo.Trades[i].NetCashDelta {
				t.Errorf("%s trade %d differs: %+v vs %+v", symbol, got.Trades[i], solo.Trades[i])
			}
		}
	}

	t.Logf("Batch equivalence test passed: %d symbols, %d workers spawned, %.0fms",
		batch.Completed, batch.WorkersSpawned, float64(batch.Elapsed.Milliseconds()))
}

// TestBatchSkipsBrokenFiles verifies that unreadable histories are
// recorded per symbol without sinking the batch.
func TestBatchSkipsBrokenFiles(t *testing.T) {
	ctx := context.Background()

	dataDir := t.TempDir()
	writeWaveCSV(t, dataDir, "GOOD", 40, 5)

	// A malformed file and a missing one fail at different stages.
	bad := filepath.Join(dataDir, "BAD.csv")
	if err := os.WriteFile(bad, []byte("2024-01-02,10,11,9,not-a-price,100\n"), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", bad, err)
	}

	cfg := orchestrator.Config{
		Workers:       2,
		SymbolTimeout: 30 * time.Second,
		Backtest:      testBacktestConfig(),
	}
	o, err := orchestrator.New(cfg, marketdata.NewCSVFetcher(dataDir), smaFactory, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create orchestrator: %v", err)
	}

	batch, err := o.RunBatch(ctx, []string{"GOOD", "BAD", "GONE"})
	if err != nil {
		t.Fatalf("Batch failed: %v", err)
	}

	if batch.Completed != 1 || len(batch.Results) != 1 || batch.Results[0].Symbol != "GOOD" {
		t.Fatalf("Expected only GOOD to complete, got %+v", batch.Results)
	}
	for _, symbol := range []string{"BAD", "GONE"} {
		reason, ok := batch.Skipped[symbol]
		if !ok || reason == "" {
			t.Errorf("Expected a recorded skip reason for %s, got %q", symbol, reason)
		}
	}

	t.Logf("Skip handling test passed: skipped=%v", batch.Skipped)
}

// runSim runs the crossover strategy over the table with a fresh driver.
func runSim(t *testing.T, ctx context.Context, table *series.Table) *models.SimulationResult {
	t.Helper()
	driver, err := backtest.NewDriver(testBacktestConfig(), smaFactory(), zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create driver: %v", err)
	}
	res, err := driver.Run(ctx, table)
	if err != nil {
		t.Fatalf("Simulation failed: %v", err)
	}
	return res
}
