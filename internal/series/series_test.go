package series

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bterrors "backsim/internal/errors"
	"backsim/internal/models"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func makeBars(start time.Time, closes ...float64) []models.Bar {
	bars := make([]models.Bar, len(closes))
	d := start
	for i, c := range closes {
		bars[i] = models.Bar{
			Date:   d,
			Open:   c,
			High:   c * 1.01,
			Low:    c * 0.99,
			Close:  c,
			Volume: 1000,
		}
		d = d.AddDate(0, 0, 1)
	}
	return bars
}

func TestNewValidatesAndCopies(t *testing.T) {
	bars := makeBars(day(2024, 1, 1), 10, 11, 12)
	table, err := New("ACME", bars)
	require.NoError(t, err)
	assert.Equal(t, "ACME", table.Symbol())
	assert.Equal(t, 3, table.Len())

	// Mutating the input must not affect the table.
	bars[0].Close = 999
	assert.Equal(t, 10.0, table.Bar(0).Close)
}

func TestNewRejectsBadInput(t *testing.T) {
	start := day(2024, 1, 1)

	tests := []struct {
		name string
		bars []models.Bar
	}{
		{"empty", nil},
		{"out of order", []models.Bar{
			{Date: start.AddDate(0, 0, 1), Open: 10, High: 10, Low: 10, Close: 10, Volume: 1},
			{Date: start, Open: 10, High: 10, Low: 10, Close: 10, Volume: 1},
		}},
		{"duplicate date", []models.Bar{
			{Date: start, Open: 10, High: 10, Low: 10, Close: 10, Volume: 1},
			{Date: start, Open: 10, High: 10, Low: 10, Close: 10, Volume: 1},
		}},
		{"zero price", []models.Bar{
			{Date: start, Open: 0, High: 10, Low: 10, Close: 10, Volume: 1},
		}},
		{"high below low", []models.Bar{
			{Date: start, Open: 10, High: 9, Low: 11, Close: 10, Volume: 1},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("ACME", tt.bars)
			require.Error(t, err)
			var dataErr *bterrors.DataError
			assert.True(t, bterrors.As(err, &dataErr))
		})
	}
}

func TestUpToTruncates(t *testing.T) {
	table, err := New("ACME", makeBars(day(2024, 1, 1), 10, 11, 12, 13, 14))
	require.NoError(t, err)

	view := table.UpTo(2)
	require.Len(t, view, 3)
	assert.Equal(t, 12.0, view[len(view)-1].Close)

	// The view must not allow appending over later bars.
	view = append(view, models.Bar{Date: day(2030, 1, 1), Open: 1, High: 1, Low: 1, Close: 1})
	assert.Equal(t, 13.0, table.Bar(3).Close)

	assert.Nil(t, table.UpTo(-1))
	assert.Len(t, table.UpTo(99), 5)
}

func TestIndexOf(t *testing.T) {
	table, err := New("ACME", makeBars(day(2024, 1, 1), 10, 11, 12, 13))
	require.NoError(t, err)

	assert.Equal(t, 0, table.IndexOf(day(2024, 1, 1)))
	assert.Equal(t, 3, table.IndexOf(day(2024, 1, 4)))
	assert.Equal(t, -1, table.IndexOf(day(2024, 2, 1)))
}

func TestGapsAreAllowed(t *testing.T) {
	bars := []models.Bar{
		{Date: day(2024, 1, 1), Open: 10, High: 10, Low: 10, Close: 10, Volume: 1},
		{Date: day(2024, 1, 5), Open: 11, High: 11, Low: 11, Close: 11, Volume: 1},
	}
	table, err := New("ACME", bars)
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())
	assert.Equal(t, -1, table.IndexOf(day(2024, 1, 3)))
}
