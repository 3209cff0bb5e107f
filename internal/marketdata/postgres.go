package marketdata

import (
	"context"
	"time"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	bterrors "backsim/internal/errors"
	"backsim/internal/models"
	"backsim/internal/series"
	"backsim/pkg/utils"
)

// PostgresFetcher reads daily bars from a Postgres table:
//
//	CREATE TABLE daily_bars (
//	    symbol TEXT NOT NULL,
//	    day    DATE NOT NULL,
//	    open   NUMERIC NOT NULL,
//	    high   NUMERIC NOT NULL,
//	    low    NUMERIC NOT NULL,
//	    close  NUMERIC NOT NULL,
//	    volume BIGINT NOT NULL,
//	    PRIMARY KEY (symbol, day)
//	);
type PostgresFetcher struct {
	pool *pgxpool.Pool
}

// NewPostgresPool connects a pool with shopspring decimal decoding
// registered on every connection, and verifies connectivity.
func NewPostgresPool(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, bterrors.Wrap(err, "parsing database URL")
	}
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, bterrors.Wrap(err, "connecting to database")
	}
	err = utils.Retry(ctx, utils.DefaultRetryConfig(), func() error {
		return pool.Ping(ctx)
	})
	if err != nil {
		pool.Close()
		return nil, bterrors.Wrap(err, "pinging database")
	}
	return pool, nil
}

// NewPostgresFetcher creates a fetcher over an existing pool. The
// caller owns the pool's lifetime.
func NewPostgresFetcher(pool *pgxpool.Pool) *PostgresFetcher {
	return &PostgresFetcher{pool: pool}
}

func (f *PostgresFetcher) Fetch(ctx context.Context, symbol string, from, to time.Time) (*series.Table, error) {
	rows, err := f.pool.Query(ctx,
		`SELECT day, open, high, low, close, volume
		 FROM daily_bars
		 WHERE symbol = $1
		 ORDER BY day`, symbol)
	if err != nil {
		return nil, bterrors.NewDataError(symbol, "query", "reading daily_bars failed", err)
	}
	defer rows.Close()

	var bars []models.Bar
	for rows.Next() {
		var (
			day        time.Time
			o, h, l, c decimal.Decimal
			volume     int64
		)
		if err := rows.Scan(&day, &o, &h, &l, &c, &volume); err != nil {
			return nil, bterrors.NewDataError(symbol, "scan", "decoding daily_bars row failed", err)
		}
		y, m, d := day.UTC().Date()
		bars = append(bars, models.Bar{
			Date:   time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
			Open:   o.InexactFloat64(),
			High:   h.InexactFloat64(),
			Low:    l.InexactFloat64(),
			Close:  c.InexactFloat64(),
			Volume: volume,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, bterrors.NewDataError(symbol, "query", "iterating daily_bars failed", err)
	}

	clipped := clipRange(bars, from, to)
	if len(clipped) == 0 {
		return nil, bterrors.NewDataError(symbol, "fetch", "no bars stored for range", bterrors.ErrDataNotFound)
	}
	return series.New(symbol, clipped)
}
