package report

import (
	"encoding/csv"
	"io"
	"strconv"

	"backsim/internal/models"
)

// WriteTradesCSV writes the trade log as CSV with a header row.
func WriteTradesCSV(w io.Writer, trades []models.Trade) error {
	cw := csv.NewWriter(w)
	header := []string{
		"id", "date", "symbol", "asset", "action", "side",
		"price", "quantity", "commission", "slippage",
		"net_cash", "realized_pnl", "forced", "reason",
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for i := range trades {
		t := &trades[i]
		rec := []string{
			t.ID,
			t.Date.Format("2006-01-02"),
			t.Symbol,
			string(t.AssetType),
			string(t.Action),
			string(t.Side),
			formatFloat(t.Price),
			formatFloat(t.Quantity),
			formatFloat(t.Commission),
			formatFloat(t.Slippage),
			formatFloat(t.NetCashDelta),
			formatFloat(t.RealizedPnL),
			strconv.FormatBool(t.IsForced),
			t.Reason,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteEquityCSV writes the equity curve as CSV with a header row.
func WriteEquityCSV(w io.Writer, curve []models.EquityPoint) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", "total_value", "cash", "margin_used"}); err != nil {
		return err
	}
	for _, point := range curve {
		rec := []string{
			point.Date.Format("2006-01-02"),
			formatFloat(point.TotalValue),
			formatFloat(point.Cash),
			formatFloat(point.MarginUsed),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
