package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"

	bterrors "backsim/internal/errors"
	"backsim/internal/models"
)

// Compile-time interface check.
var _ DataStore = (*SQLiteStore)(nil)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Daily bars for historical OHLCV data
	CREATE TABLE IF NOT EXISTS bars (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		day DATE NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(symbol, day)
	);

	-- Finished simulation runs with their summary metrics
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		strategy TEXT NOT NULL,
		initial_capital REAL NOT NULL,
		final_value REAL NOT NULL,
		total_return_pct REAL NOT NULL,
		annualized_return_pct REAL NOT NULL,
		max_drawdown_pct REAL NOT NULL,
		sharpe_ratio REAL NOT NULL,
		win_rate_pct REAL NOT NULL,
		profit_factor REAL NOT NULL,
		avg_win REAL NOT NULL,
		avg_loss REAL NOT NULL,
		total_trades INTEGER NOT NULL,
		winning_trades INTEGER NOT NULL,
		losing_trades INTEGER NOT NULL,
		forced_liquidations INTEGER NOT NULL,
		exercised_options INTEGER NOT NULL,
		expired_options INTEGER NOT NULL,
		total_fees REAL NOT NULL,
		trading_days INTEGER NOT NULL,
		elapsed_ms INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Trade log rows belonging to a run, in settlement order
	CREATE TABLE IF NOT EXISTS run_trades (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		trade_id TEXT NOT NULL,
		day DATE NOT NULL,
		symbol TEXT NOT NULL,
		asset TEXT NOT NULL,
		action TEXT NOT NULL,
		side TEXT NOT NULL,
		price REAL NOT NULL,
		quantity REAL NOT NULL,
		commission REAL NOT NULL,
		slippage REAL NOT NULL,
		net_cash_delta REAL NOT NULL,
		realized_pnl REAL NOT NULL,
		is_forced INTEGER NOT NULL DEFAULT 0,
		reason TEXT,
		UNIQUE(run_id, trade_id),
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	-- Equity curve points belonging to a run, one per trading day
	CREATE TABLE IF NOT EXISTS run_equity (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		day DATE NOT NULL,
		total_value REAL NOT NULL,
		cash REAL NOT NULL,
		margin_used REAL NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	-- Create indexes for performance
	CREATE INDEX IF NOT EXISTS idx_bars_symbol ON bars(symbol);
	CREATE INDEX IF NOT EXISTS idx_bars_day ON bars(day);
	CREATE INDEX IF NOT EXISTS idx_runs_symbol ON runs(symbol);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	CREATE INDEX IF NOT EXISTS idx_run_trades_run ON run_trades(run_id);
	CREATE INDEX IF NOT EXISTS idx_run_equity_run ON run_equity(run_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// day-resolution dates are stored as ISO strings so range predicates
// compare lexicographically.
func formatDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// ============================================================================
// Bars Methods
// ============================================================================

// SaveBars saves daily bars to the database, replacing any existing
// rows for the same symbol and day.
func (s *SQLiteStore) SaveBars(ctx context.Context, symbol string, bars []models.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars (symbol, day, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		_, err := stmt.ExecContext(ctx, symbol, formatDay(b.Date), b.Open, b.High, b.Low, b.Close, b.Volume)
		if err != nil {
			return fmt.Errorf("failed to insert bar: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetBars retrieves daily bars ordered by day. Zero from/to bounds are
// unbounded.
func (s *SQLiteStore) GetBars(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error) {
	query := "SELECT day, open, high, low, close, volume FROM bars WHERE symbol = ?"
	args := []interface{}{symbol}

	if !from.IsZero() {
		query += " AND day >= ?"
		args = append(args, formatDay(from))
	}
	if !to.IsZero() {
		query += " AND day <= ?"
		args = append(args, formatDay(to))
	}
	query += " ORDER BY day ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}
	defer rows.Close()

	var bars []models.Bar
	for rows.Next() {
		var b models.Bar
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		b.Date = b.Date.UTC()
		bars = append(bars, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bars: %w", err)
	}

	return bars, nil
}

// BarFreshness returns the day of the most recent stored bar, or the
// zero time when the symbol has no bars.
func (s *SQLiteStore) BarFreshness(ctx context.Context, symbol string) (time.Time, error) {
	var day time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT day FROM bars WHERE symbol = ? ORDER BY day DESC LIMIT 1
	`, symbol).Scan(&day)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get bar freshness: %w", err)
	}
	return day.UTC(), nil
}

// Symbols lists every symbol with stored bars.
func (s *SQLiteStore) Symbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT symbol FROM bars ORDER BY symbol ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, symbol)
	}

	return symbols, rows.Err()
}

// DeleteBars removes all stored bars for a symbol and reports how many
// rows were deleted.
func (s *SQLiteStore) DeleteBars(ctx context.Context, symbol string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bars WHERE symbol = ?`, symbol)
	if err != nil {
		return 0, fmt.Errorf("failed to delete bars: %w", err)
	}
	return res.RowsAffected()
}

// ============================================================================
// Runs Methods
// ============================================================================

// SaveRun persists a finished simulation: the summary row, the full
// trade log and the equity curve, all in one transaction. It returns
// the generated run ID.
func (s *SQLiteStore) SaveRun(ctx context.Context, res *models.SimulationResult) (string, error) {
	if res == nil {
		return "", fmt.Errorf("failed to save run: nil result")
	}
	if res.Failed() {
		return "", fmt.Errorf("refusing to save failed run for %s: %w", res.Symbol, res.Err)
	}

	id := ulid.Make().String()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sum := res.Summary
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, symbol, strategy, initial_capital, final_value, total_return_pct, annualized_return_pct, max_drawdown_pct, sharpe_ratio, win_rate_pct, profit_factor, avg_win, avg_loss, total_trades, winning_trades, losing_trades, forced_liquidations, exercised_options, expired_options, total_fees, trading_days, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, res.Symbol, res.Strategy, sum.InitialCapital, sum.FinalValue, sum.TotalReturn, sum.AnnualizedReturn, sum.MaxDrawdown, sum.SharpeRatio, sum.WinRate, sum.ProfitFactor, sum.AvgWin, sum.AvgLoss, sum.TotalTrades, sum.WinningTrades, sum.LosingTrades, sum.ForcedLiquidation, sum.ExercisedOptions, sum.ExpiredOptions, sum.TotalFees, sum.TradingDays, res.Elapsed.Milliseconds())
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	tradeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_trades (run_id, trade_id, day, symbol, asset, action, side, price, quantity, commission, slippage, net_cash_delta, realized_pnl, is_forced, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare trade statement: %w", err)
	}
	defer tradeStmt.Close()

	for _, t := range res.Trades {
		isForced := 0
		if t.IsForced {
			isForced = 1
		}
		_, err := tradeStmt.ExecContext(ctx, id, t.ID, formatDay(t.Date), t.Symbol, t.AssetType, t.Action, t.Side, t.Price, t.Quantity, t.Commission, t.Slippage, t.NetCashDelta, t.RealizedPnL, isForced, t.Reason)
		if err != nil {
			return "", fmt.Errorf("failed to insert trade: %w", err)
		}
	}

	equityStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_equity (run_id, day, total_value, cash, margin_used)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare equity statement: %w", err)
	}
	defer equityStmt.Close()

	for _, p := range res.EquityCurve {
		_, err := equityStmt.ExecContext(ctx, id, formatDay(p.Date), p.TotalValue, p.Cash, p.MarginUsed)
		if err != nil {
			return "", fmt.Errorf("failed to insert equity point: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}

	return id, nil
}

// GetRun loads a saved run with its trade log and equity curve. The
// per-asset unrealized split is not persisted, only totals.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*models.SimulationResult, error) {
	res := &models.SimulationResult{}
	var elapsedMS int64

	sum := &res.Summary
	err := s.db.QueryRowContext(ctx, `
		SELECT symbol, strategy, initial_capital, final_value, total_return_pct, annualized_return_pct, max_drawdown_pct, sharpe_ratio, win_rate_pct, profit_factor, avg_win, avg_loss, total_trades, winning_trades, losing_trades, forced_liquidations, exercised_options, expired_options, total_fees, trading_days, elapsed_ms
		FROM runs WHERE id = ?
	`, id).Scan(&res.Symbol, &res.Strategy, &sum.InitialCapital, &sum.FinalValue, &sum.TotalReturn, &sum.AnnualizedReturn, &sum.MaxDrawdown, &sum.SharpeRatio, &sum.WinRate, &sum.ProfitFactor, &sum.AvgWin, &sum.AvgLoss, &sum.TotalTrades, &sum.WinningTrades, &sum.LosingTrades, &sum.ForcedLiquidation, &sum.ExercisedOptions, &sum.ExpiredOptions, &sum.TotalFees, &sum.TradingDays, &elapsedMS)
	if err == sql.ErrNoRows {
		return nil, bterrors.Wrapf(bterrors.ErrDataNotFound, "run %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	res.Elapsed = time.Duration(elapsedMS) * time.Millisecond

	trades, err := s.runTrades(ctx, id)
	if err != nil {
		return nil, err
	}
	res.Trades = trades

	curve, err := s.runEquity(ctx, id)
	if err != nil {
		return nil, err
	}
	res.EquityCurve = curve

	return res, nil
}

func (s *SQLiteStore) runTrades(ctx context.Context, runID string) ([]models.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT trade_id, day, symbol, asset, action, side, price, quantity, commission, slippage, net_cash_delta, realized_pnl, is_forced, reason
		FROM run_trades WHERE run_id = ? ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run trades: %w", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		var t models.Trade
		var isForced int
		if err := rows.Scan(&t.ID, &t.Date, &t.Symbol, &t.AssetType, &t.Action, &t.Side, &t.Price, &t.Quantity, &t.Commission, &t.Slippage, &t.NetCashDelta, &t.RealizedPnL, &isForced, &t.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan run trade: %w", err)
		}
		t.Date = t.Date.UTC()
		t.IsForced = isForced == 1
		trades = append(trades, t)
	}

	return trades, rows.Err()
}

func (s *SQLiteStore) runEquity(ctx context.Context, runID string) ([]models.EquityPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT day, total_value, cash, margin_used
		FROM run_equity WHERE run_id = ? ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run equity: %w", err)
	}
	defer rows.Close()

	var curve []models.EquityPoint
	for rows.Next() {
		var p models.EquityPoint
		if err := rows.Scan(&p.Date, &p.TotalValue, &p.Cash, &p.MarginUsed); err != nil {
			return nil, fmt.Errorf("failed to scan equity point: %w", err)
		}
		p.Date = p.Date.UTC()
		curve = append(curve, p)
	}

	return curve, rows.Err()
}

// ListRuns retrieves saved run summaries, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]RunRecord, error) {
	query := "SELECT id, symbol, strategy, final_value, total_return_pct, total_trades, created_at FROM runs WHERE 1=1"
	args := []interface{}{}

	if filter.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, filter.Symbol)
	}
	if filter.Strategy != "" {
		query += " AND strategy = ?"
		args = append(args, filter.Strategy)
	}

	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.ID, &r.Symbol, &r.Strategy, &r.FinalValue, &r.TotalReturn, &r.TotalTrades, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run record: %w", err)
		}
		r.CreatedAt = r.CreatedAt.UTC()
		records = append(records, r)
	}

	return records, rows.Err()
}

// DeleteRun removes a saved run and its trade log and equity curve.
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_trades WHERE run_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete run trades: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM run_equity WHERE run_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete run equity: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to count deleted runs: %w", err)
	}
	if n == 0 {
		return bterrors.Wrapf(bterrors.ErrDataNotFound, "run %s", id)
	}

	return tx.Commit()
}
