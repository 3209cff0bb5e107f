package report

import (
	"fmt"
	"strings"

	"backsim/internal/models"
)

// EquityChart renders the equity curve as a terminal chart of the given
// dimensions.
func EquityChart(curve []models.EquityPoint, width, height int) string {
	if len(curve) == 0 {
		return "No data to display"
	}
	if width <= 0 {
		width = 60
	}
	if height <= 0 {
		height = 12
	}

	low := curve[0].TotalValue
	high := curve[0].TotalValue
	for _, point := range curve {
		if point.TotalValue < low {
			low = point.TotalValue
		}
		if point.TotalValue > high {
			high = point.TotalValue
		}
	}

	span := high - low
	if span == 0 {
		span = 1
	}
	low -= span * 0.05
	high += span * 0.05
	span = high - low

	grid := make([][]rune, height)
	for i := range grid {
		grid[i] = make([]rune, width)
		for j := range grid[i] {
			grid[i][j] = ' '
		}
	}

	step := len(curve) / width
	if step == 0 {
		step = 1
	}
	for x := 0; x < width && x*step < len(curve); x++ {
		point := curve[x*step]
		y := int((point.TotalValue - low) / span * float64(height-1))
		if y >= 0 && y < height {
			grid[height-1-y][x] = '█'
		}
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Equity %.0f - %.0f (%s to %s)\n",
		low, high,
		curve[0].Date.Format("2006-01-02"),
		curve[len(curve)-1].Date.Format("2006-01-02")))
	sb.WriteString(strings.Repeat("─", width+2) + "\n")
	for _, row := range grid {
		sb.WriteRune('│')
		sb.WriteString(string(row))
		sb.WriteRune('│')
		sb.WriteRune('\n')
	}
	sb.WriteString(strings.Repeat("─", width+2) + "\n")
	return sb.String()
}
