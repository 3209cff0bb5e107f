package models

import (
	"time"
)

// EquityPoint is one day of the equity curve.
type EquityPoint struct {
	Date              time.Time             `json:"date"`
	TotalValue        float64               `json:"total_value"`
	Cash              float64               `json:"cash"`
	MarginUsed        float64               `json:"margin_used"`
	UnrealizedByAsset map[AssetType]float64 `json:"unrealized_by_asset,omitempty"`
}

// Summary holds the final performance metrics of one simulation.
type Summary struct {
	InitialCapital    float64 `json:"initial_capital"`
	FinalValue        float64 `json:"final_value"`
	TotalReturn       float64 `json:"total_return_pct"`
	AnnualizedReturn  float64 `json:"annualized_return_pct"`
	MaxDrawdown       float64 `json:"max_drawdown_pct"`
	SharpeRatio       float64 `json:"sharpe_ratio"`
	WinRate           float64 `json:"win_rate_pct"`
	ProfitFactor      float64 `json:"profit_factor"`
	AvgWin            float64 `json:"avg_win"`
	AvgLoss           float64 `json:"avg_loss"`
	TotalTrades       int     `json:"total_trades"`
	WinningTrades     int     `json:"winning_trades"`
	LosingTrades      int     `json:"losing_trades"`
	ForcedLiquidation int     `json:"forced_liquidations"`
	ExercisedOptions  int     `json:"exercised_options"`
	ExpiredOptions    int     `json:"expired_options"`
	TotalFees         float64 `json:"total_fees"`
	TradingDays       int     `json:"trading_days"`
}

// SimulationResult is everything one symbol's run produced. Err is set
// when the run terminated abnormally; the partial trade log and curve up
// to that point are still attached.
type SimulationResult struct {
	Symbol      string        `json:"symbol"`
	Strategy    string        `json:"strategy"`
	Trades      []Trade       `json:"trades"`
	EquityCurve []EquityPoint `json:"equity_curve"`
	Summary     Summary       `json:"summary"`
	Err         error         `json:"-"`
	Elapsed     time.Duration `json:"elapsed"`
}

// Failed reports whether the simulation terminated abnormally.
func (r *SimulationResult) Failed() bool {
	return r.Err != nil
}
