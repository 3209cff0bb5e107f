// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"backsim/internal/models"
)

// DataStore defines the interface for data persistence: daily bar
// history plus finished simulation runs.
type DataStore interface {
	// Bars
	SaveBars(ctx context.Context, symbol string, bars []models.Bar) error
	GetBars(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error)
	BarFreshness(ctx context.Context, symbol string) (time.Time, error)
	Symbols(ctx context.Context) ([]string, error)
	DeleteBars(ctx context.Context, symbol string) (int64, error)

	// Runs
	SaveRun(ctx context.Context, res *models.SimulationResult) (string, error)
	GetRun(ctx context.Context, id string) (*models.SimulationResult, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]RunRecord, error)
	DeleteRun(ctx context.Context, id string) error

	// Lifecycle
	Close() error
}

// RunFilter represents filters for querying saved runs.
type RunFilter struct {
	Symbol   string
	Strategy string
	Limit    int
}

// RunRecord is one row of the run listing. The full result, trade log
// included, comes from GetRun.
type RunRecord struct {
	ID          string
	Symbol      string
	Strategy    string
	FinalValue  float64
	TotalReturn float64
	TotalTrades int
	CreatedAt   time.Time
}
