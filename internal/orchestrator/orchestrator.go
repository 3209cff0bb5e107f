// Package orchestrator fans a batch of symbols out over a bounded pool
// of simulation workers. Histories are fetched and validated up front,
// published once to a shared cache, and each task runs an isolated
// driver with its own portfolio. One symbol failing never stops the
// batch; only a batch with zero usable symbols aborts.
package orchestrator

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"backsim/internal/backtest"
	"backsim/internal/datacache"
	bterrors "backsim/internal/errors"
	"backsim/internal/marketdata"
	"backsim/internal/models"
	"backsim/internal/performance"
	"backsim/internal/strategy"
)

// Config holds the batch execution parameters.
type Config struct {
	// Workers caps concurrent simulations. Zero means runtime.NumCPU().
	Workers int

	// TasksPerWorker retires a worker after this many simulations and
	// spawns a fresh one in its place, bounding per-goroutine memory
	// growth. Zero disables recycling.
	TasksPerWorker int

	// SymbolTimeout bounds a single simulation.
	SymbolTimeout time.Duration

	// MemoryBudgetMB shrinks the active worker count while the heap
	// stays above budget. Zero disables the governor.
	MemoryBudgetMB int

	// From and To bound the fetched history. Zero values are unbounded.
	From time.Time
	To   time.Time

	Backtest backtest.Config
}

// DefaultConfig returns the standard batch parameters.
func DefaultConfig() Config {
	return Config{
		Workers:        runtime.NumCPU(),
		TasksPerWorker: 16,
		SymbolTimeout:  120 * time.Second,
		Backtest:       backtest.DefaultConfig(),
	}
}

// BatchResult is everything one batch produced. Results arrive in
// completion order, not submission order.
type BatchResult struct {
	Results        []*models.SimulationResult
	Skipped        map[string]string
	Requested      int
	Completed      int
	Failed         int
	WorkersSpawned int
	Elapsed        time.Duration
}

// Orchestrator runs symbol batches. OnResult, when set, is invoked from
// the aggregation goroutine as each simulation finishes.
type Orchestrator struct {
	cfg     Config
	fetcher marketdata.Fetcher
	factory strategy.Factory
	cache   *datacache.Cache
	log     zerolog.Logger

	OnResult func(*models.SimulationResult)

	allowed atomic.Int64
	active  atomic.Int64
	nextID  atomic.Int64
}

// New creates an orchestrator. Zero config fields fall back to
// defaults; the backtest config is validated eagerly so a bad batch
// fails before any fetch.
func New(cfg Config, fetcher marketdata.Fetcher, factory strategy.Factory, log zerolog.Logger) (*Orchestrator, error) {
	if fetcher == nil {
		return nil, bterrors.NewValidationError("fetcher", nil, "data fetcher is required")
	}
	if factory == nil {
		return nil, bterrors.NewValidationError("factory", nil, "strategy factory is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.SymbolTimeout <= 0 {
		cfg.SymbolTimeout = 120 * time.Second
	}
	if err := cfg.Backtest.Validate(); err != nil {
		return nil, err
	}
	return &Orchestrator{
		cfg:     cfg,
		fetcher: fetcher,
		factory: factory,
		cache:   datacache.New(),
		log:     log,
	}, nil
}

// RunBatch fetches every symbol, then simulates the usable ones
// concurrently. Unusable symbols are recorded in Skipped with the
// reason; a batch where nothing is usable returns ErrNoValidSymbols.
func (o *Orchestrator) RunBatch(ctx context.Context, symbols []string) (*BatchResult, error) {
	start := time.Now()
	result := &BatchResult{
		Skipped:   make(map[string]string),
		Requested: len(symbols),
	}

	valid := o.prepare(ctx, symbols, result)
	defer o.cache.ReleaseAll()

	if err := ctx.Err(); err != nil {
		result.Elapsed = time.Since(start)
		return result, err
	}
	if len(valid) == 0 {
		result.Elapsed = time.Since(start)
		return result, bterrors.Wrapf(bterrors.ErrNoValidSymbols,
			"all %d requested symbols were skipped", len(symbols))
	}

	o.log.Info().
		Int("requested", len(symbols)).
		Int("valid", len(valid)).
		Int("skipped", len(result.Skipped)).
		Int("workers", o.cfg.Workers).
		Msg("Batch started")

	workers := o.cfg.Workers
	if workers > len(valid) {
		workers = len(valid)
	}
	o.allowed.Store(int64(workers))
	o.active.Store(0)
	o.nextID.Store(0)

	governorCtx, stopGovernor := context.WithCancel(ctx)
	defer stopGovernor()
	if o.cfg.MemoryBudgetMB > 0 {
		go o.govern(governorCtx)
	}

	tasks := make(chan datacache.Handle, len(valid))
	for _, h := range valid {
		tasks <- h
	}
	close(tasks)

	results := make(chan *models.SimulationResult, len(valid))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go o.worker(ctx, int(o.nextID.Add(1)), tasks, results, &wg)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		result.Results = append(result.Results, res)
		if res.Failed() {
			result.Failed++
		} else {
			result.Completed++
		}
		if o.OnResult != nil {
			o.OnResult(res)
		}
	}

	result.WorkersSpawned = int(o.nextID.Load())
	result.Elapsed = time.Since(start)
	o.log.Info().
		Int("completed", result.Completed).
		Int("failed", result.Failed).
		Int("workers_spawned", result.WorkersSpawned).
		Dur("elapsed", result.Elapsed).
		Msg("Batch finished")

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// prepare fetches and validates every requested symbol, publishing the
// usable tables to the shared cache. It returns the attach handles for
// the usable symbols; skips are recorded with reasons.
func (o *Orchestrator) prepare(ctx context.Context, symbols []string, result *BatchResult) []datacache.Handle {
	valid := make([]datacache.Handle, 0, len(symbols))
	seen := make(map[string]bool, len(symbols))

	for _, symbol := range symbols {
		if seen[symbol] {
			result.Skipped[symbol] = "duplicate of an earlier entry"
			continue
		}
		seen[symbol] = true

		if err := ctx.Err(); err != nil {
			result.Skipped[symbol] = err.Error()
			continue
		}

		table, err := o.fetcher.Fetch(ctx, symbol, o.cfg.From, o.cfg.To)
		if err != nil {
			result.Skipped[symbol] = err.Error()
			o.log.Warn().Err(err).Str("symbol", symbol).Msg("Symbol skipped")
			continue
		}
		h, err := o.cache.Publish(table)
		if err != nil {
			result.Skipped[symbol] = err.Error()
			continue
		}
		valid = append(valid, h)
	}
	return valid
}

// worker drains the task queue. After TasksPerWorker simulations it
// retires and hands the queue to a fresh goroutine.
func (o *Orchestrator) worker(ctx context.Context, id int, tasks <-chan datacache.Handle, results chan<- *models.SimulationResult, wg *sync.WaitGroup) {
	defer wg.Done()

	done := 0
	for h := range tasks {
		if err := o.acquire(ctx); err != nil {
			results <- o.failure(h.Symbol(), id, err)
			continue
		}
		results <- o.runOne(ctx, id, h)
		o.release()

		done++
		if o.cfg.TasksPerWorker > 0 && done >= o.cfg.TasksPerWorker {
			wg.Add(1)
			go o.worker(ctx, int(o.nextID.Add(1)), tasks, results, wg)
			return
		}
	}
}

// runOne executes a single simulation with its own timeout, portfolio
// and strategy instance. Panics become a failed result, never a dead
// worker.
func (o *Orchestrator) runOne(parent context.Context, workerID int, h datacache.Handle) (res *models.SimulationResult) {
	symbol := h.Symbol()
	defer func() {
		if r := recover(); r != nil {
			o.log.Error().Str("symbol", symbol).Int("worker", workerID).
				Interface("panic", r).Msg("Simulation panicked")
			res = o.failure(symbol, workerID, fmt.Errorf("panic: %v", r))
		}
	}()

	ctx, cancel := context.WithTimeout(parent, o.cfg.SymbolTimeout)
	defer cancel()

	table, err := o.cache.Attach(h)
	if err != nil {
		return o.failure(symbol, workerID, err)
	}
	driver, err := backtest.NewDriver(o.cfg.Backtest, o.factory(), o.log)
	if err != nil {
		return o.failure(symbol, workerID, err)
	}

	result, err := driver.Run(ctx, table)
	if err != nil {
		if bterrors.Is(err, context.DeadlineExceeded) {
			err = bterrors.Wrapf(bterrors.ErrTimeout, "simulation exceeded %s", o.cfg.SymbolTimeout)
		}
		return o.failure(symbol, workerID, err)
	}
	return result
}

func (o *Orchestrator) failure(symbol string, workerID int, err error) *models.SimulationResult {
	return &models.SimulationResult{
		Symbol: symbol,
		Err:    bterrors.NewWorkerError(symbol, workerID, err),
	}
}

// acquire waits for an execution slot under the governor's current
// limit.
func (o *Orchestrator) acquire(ctx context.Context) error {
	for {
		cur := o.active.Load()
		if cur < o.allowed.Load() && o.active.CompareAndSwap(cur, cur+1) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (o *Orchestrator) release() {
	o.active.Add(-1)
}

// govern samples the heap and halves the allowed workers while usage
// stays above budget, growing back one at a time once it eases. The
// floor is always one worker.
func (o *Orchestrator) govern(ctx context.Context) {
	budget := uint64(o.cfg.MemoryBudgetMB) * 1024 * 1024
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			heap := performance.ReadHeap()
			allowed := o.allowed.Load()
			switch {
			case heap.HeapInuse > budget && allowed > 1:
				next := allowed / 2
				if next < 1 {
					next = 1
				}
				o.allowed.Store(next)
				o.log.Warn().
					Str("heap_inuse", performance.FormatBytes(heap.HeapInuse)).
					Str("budget", performance.FormatBytes(budget)).
					Int64("workers", next).
					Msg("Memory budget exceeded, shrinking workers")
			case heap.HeapInuse < budget/2 && allowed < int64(o.cfg.Workers):
				o.allowed.Store(allowed + 1)
				o.log.Debug().
					Int64("workers", allowed+1).
					Msg("Memory pressure eased, growing workers")
			}
		}
	}
}
