package report

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backsim/internal/models"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func point(date time.Time, value float64) models.EquityPoint {
	return models.EquityPoint{Date: date, TotalValue: value, Cash: value}
}

func TestSummarizeEmptyRun(t *testing.T) {
	s := Summarize(100000, nil, nil)
	assert.Equal(t, 100000.0, s.InitialCapital)
	assert.Equal(t, 100000.0, s.FinalValue)
	assert.Zero(t, s.TotalReturn)
	assert.Zero(t, s.TotalTrades)
	assert.Zero(t, s.WinRate)
}

func TestSummarizeCountsOutcomes(t *testing.T) {
	base := day(2024, 3, 1)
	trades := []models.Trade{
		{Action: models.ActionBuy, Commission: 3, Slippage: 3},
		{Action: models.ActionSell, RealizedPnL: 500, Commission: 2, Slippage: 2},
		{Action: models.ActionForcedLiquidation, RealizedPnL: -300, IsForced: true},
		{Action: models.ActionExercise, RealizedPnL: 200},
		{Action: models.ActionExpire, RealizedPnL: -100},
	}
	curve := []models.EquityPoint{
		point(base, 100000),
		point(base.AddDate(0, 0, 1), 100300),
	}

	s := Summarize(100000, trades, curve)

	assert.Equal(t, 5, s.TotalTrades)
	assert.Equal(t, 2, s.WinningTrades)
	assert.Equal(t, 2, s.LosingTrades)
	assert.InDelta(t, 50.0, s.WinRate, 1e-9)
	assert.Equal(t, 1, s.ForcedLiquidation)
	assert.Equal(t, 1, s.ExercisedOptions)
	assert.Equal(t, 1, s.ExpiredOptions)
	assert.InDelta(t, 350.0, s.AvgWin, 1e-9)
	assert.InDelta(t, -200.0, s.AvgLoss, 1e-9)
	assert.InDelta(t, 1.75, s.ProfitFactor, 1e-9)
	assert.InDelta(t, 10.0, s.TotalFees, 1e-9)
	assert.InDelta(t, 100300.0, s.FinalValue, 1e-9)
	assert.InDelta(t, 0.3, s.TotalReturn, 1e-9)
	assert.Equal(t, 2, s.TradingDays)
}

func TestMaxDrawdownTracksPeak(t *testing.T) {
	base := day(2024, 1, 1)
	curve := []models.EquityPoint{
		point(base, 100),
		point(base.AddDate(0, 0, 1), 120),
		point(base.AddDate(0, 0, 2), 90),
		point(base.AddDate(0, 0, 3), 110),
	}
	s := Summarize(100, nil, curve)
	assert.InDelta(t, 25.0, s.MaxDrawdown, 1e-9)
}

func TestAnnualizedReturnOverOneYear(t *testing.T) {
	curve := []models.EquityPoint{
		point(day(2024, 1, 1), 100000),
		point(day(2024, 12, 31), 110000),
	}
	s := Summarize(100000, nil, curve)
	assert.InDelta(t, 10.0, s.AnnualizedReturn, 1e-6)
}

func TestSharpeZeroOnFlatCurve(t *testing.T) {
	base := day(2024, 1, 1)
	curve := []models.EquityPoint{
		point(base, 100000),
		point(base.AddDate(0, 0, 1), 100000),
		point(base.AddDate(0, 0, 2), 100000),
	}
	s := Summarize(100000, nil, curve)
	assert.Zero(t, s.SharpeRatio)
}

func TestEquityChartRendersGrid(t *testing.T) {
	base := day(2024, 1, 1)
	curve := []models.EquityPoint{
		point(base, 100),
		point(base.AddDate(0, 0, 1), 110),
		point(base.AddDate(0, 0, 2), 105),
	}
	chart := EquityChart(curve, 20, 5)
	assert.Contains(t, chart, "Equity")
	assert.Contains(t, chart, "█")
	assert.Contains(t, chart, "│")

	assert.Equal(t, "No data to display", EquityChart(nil, 20, 5))
}

func TestWriteTradesCSVRoundTrips(t *testing.T) {
	trades := []models.Trade{
		{
			ID:           "01ABC",
			Date:         day(2024, 5, 6),
			Symbol:       "ACME",
			AssetType:    models.AssetStock,
			Action:       models.ActionSell,
			Side:         models.SideLong,
			Price:        12,
			Quantity:     100,
			Commission:   0.36,
			Slippage:     0.36,
			NetCashDelta: 1199.28,
			RealizedPnL:  199.28,
			Reason:       "strategy exit",
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteTradesCSV(&buf, trades))

	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "id", records[0][0])
	assert.Equal(t, "01ABC", records[1][0])
	assert.Equal(t, "2024-05-06", records[1][1])
	assert.Equal(t, "ACME", records[1][2])
	assert.Equal(t, "12", records[1][6])
	assert.Equal(t, "199.28", records[1][11])
}

func TestWriteEquityCSV(t *testing.T) {
	curve := []models.EquityPoint{
		{Date: day(2024, 5, 6), TotalValue: 100500, Cash: 93000, MarginUsed: 7500},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteEquityCSV(&buf, curve))

	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"date", "total_value", "cash", "margin_used"}, records[0])
	assert.Equal(t, []string{"2024-05-06", "100500", "93000", "7500"}, records[1])
}
