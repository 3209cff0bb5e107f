// Package report computes performance metrics from a finished
// simulation and renders them for humans and files.
package report

import (
	"math"

	"backsim/internal/models"
)

// Summarize reduces a trade log and equity curve to the standard
// performance metrics. Return figures are percentages. Win-rate counts
// only settled round trips; entries with nothing realized yet do not
// dilute it.
func Summarize(initialCapital float64, trades []models.Trade, curve []models.EquityPoint) models.Summary {
	s := models.Summary{
		InitialCapital: initialCapital,
		FinalValue:     initialCapital,
		TotalTrades:    len(trades),
		TradingDays:    len(curve),
	}
	if len(curve) > 0 {
		s.FinalValue = curve[len(curve)-1].TotalValue
	}
	if initialCapital > 0 {
		s.TotalReturn = (s.FinalValue - initialCapital) / initialCapital * 100
	}

	// Annualized from the span of the curve.
	if len(curve) > 1 && initialCapital > 0 && s.FinalValue > 0 {
		days := curve[len(curve)-1].Date.Sub(curve[0].Date).Hours() / 24
		if days > 0 {
			years := days / 365
			s.AnnualizedReturn = (math.Pow(s.FinalValue/initialCapital, 1/years) - 1) * 100
		}
	}

	s.MaxDrawdown = maxDrawdown(curve) * 100
	s.SharpeRatio = sharpeRatio(curve)

	var wins, losses []float64
	for i := range trades {
		t := &trades[i]
		s.TotalFees += t.Fees()
		switch t.Action {
		case models.ActionForcedLiquidation:
			s.ForcedLiquidation++
		case models.ActionExercise:
			s.ExercisedOptions++
		case models.ActionExpire:
			s.ExpiredOptions++
		}
		switch {
		case t.RealizedPnL > 0:
			wins = append(wins, t.RealizedPnL)
		case t.RealizedPnL < 0:
			losses = append(losses, t.RealizedPnL)
		}
	}
	s.WinningTrades = len(wins)
	s.LosingTrades = len(losses)

	if decided := len(wins) + len(losses); decided > 0 {
		s.WinRate = float64(len(wins)) / float64(decided) * 100
	}

	var totalWins, totalLosses float64
	for _, w := range wins {
		totalWins += w
	}
	for _, l := range losses {
		totalLosses += l
	}
	if len(wins) > 0 {
		s.AvgWin = totalWins / float64(len(wins))
	}
	if len(losses) > 0 {
		s.AvgLoss = totalLosses / float64(len(losses))
	}
	if totalLosses != 0 {
		s.ProfitFactor = totalWins / math.Abs(totalLosses)
	}
	return s
}

// maxDrawdown is the largest peak-to-trough decline of the curve, as a
// fraction of the peak.
func maxDrawdown(curve []models.EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}
	peak := curve[0].TotalValue
	var worst float64
	for _, point := range curve {
		if point.TotalValue > peak {
			peak = point.TotalValue
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - point.TotalValue) / peak; dd > worst {
			worst = dd
		}
	}
	return worst
}

// sharpeRatio annualizes the mean daily excess return over its standard
// deviation, with a 5% annual risk-free rate over 252 trading days.
func sharpeRatio(curve []models.EquityPoint) float64 {
	if len(curve) < 2 {
		return 0
	}

	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].TotalValue
		if prev == 0 {
			continue
		}
		returns = append(returns, (curve[i].TotalValue-prev)/prev)
	}
	if len(returns) == 0 {
		return 0
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	stdDev := math.Sqrt(variance)
	if stdDev == 0 {
		return 0
	}

	riskFree := 0.05 / 252
	return (mean - riskFree) / stdDev * math.Sqrt(252)
}
