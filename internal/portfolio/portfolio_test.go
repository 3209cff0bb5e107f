package portfolio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bterrors "backsim/internal/errors"
	"backsim/internal/models"
)

func TestNewRequiresPositiveCapital(t *testing.T) {
	_, err := New(0)
	assert.ErrorIs(t, err, bterrors.ErrInvalidInput)

	p, err := New(100000)
	require.NoError(t, err)
	assert.Equal(t, 100000.0, p.Cash())
	assert.NoError(t, p.CheckInvariant())
}

func TestDebitCannotOverdraw(t *testing.T) {
	p, err := New(1000)
	require.NoError(t, err)

	assert.ErrorIs(t, p.DebitCash(1001), bterrors.ErrInsufficientFunds)
	assert.Equal(t, 1000.0, p.Cash())

	require.NoError(t, p.DebitCash(400))
	assert.Equal(t, 600.0, p.Cash())
}

func TestMarginPoolRoundTrip(t *testing.T) {
	p, err := New(10000)
	require.NoError(t, err)

	require.NoError(t, p.PostMargin(7500))
	assert.Equal(t, 2500.0, p.Cash())
	assert.Equal(t, 7500.0, p.MarginUsed())
	assert.Equal(t, 2500.0, p.MarginAvailable())

	assert.ErrorIs(t, p.PostMargin(3000), bterrors.ErrInsufficientMargin)

	require.NoError(t, p.ReleaseMargin(7500))
	assert.Equal(t, 10000.0, p.Cash())
	assert.Equal(t, 0.0, p.MarginUsed())

	assert.ErrorIs(t, p.ReleaseMargin(1), bterrors.ErrInvalidInput)
}

func TestInvariantTracksRealizedAndFees(t *testing.T) {
	p, err := New(100000)
	require.NoError(t, err)

	// Simulate a settled stock round trip: buy 100 at 10 with 0.60 in
	// fees, sell at 12 with 0.72 in fees.
	require.NoError(t, p.DebitCash(1000.60))
	p.AddFees(0.60)
	require.NoError(t, p.Ledger().Open(&models.Position{
		Symbol:     "ACME",
		AssetType:  models.AssetStock,
		Side:       models.SideLong,
		Quantity:   100,
		EntryPrice: 10,
		EntryDate:  time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, p.CheckInvariant(), "open stock position must balance through cost basis")

	_, err = p.Ledger().Close("ACME")
	require.NoError(t, err)
	require.NoError(t, p.CreditCash(1200 - 0.72))
	p.AddRealized(200)
	p.AddFees(0.72)
	require.NoError(t, p.CheckInvariant())

	assert.InDelta(t, 100198.68, p.Cash(), 1e-9)
	assert.InDelta(t, 200.0, p.Realized(), 1e-9)
	assert.InDelta(t, 1.32, p.Fees(), 1e-9)
}

func TestInvariantCatchesDrift(t *testing.T) {
	p, err := New(1000)
	require.NoError(t, err)

	// Credit cash with no matching realized entry: money from nowhere.
	require.NoError(t, p.CreditCash(5))
	assert.Error(t, p.CheckInvariant())
}

func TestTradeAndEquityLogsCopy(t *testing.T) {
	p, err := New(1000)
	require.NoError(t, err)

	p.AppendTrade(models.Trade{ID: "t1", Symbol: "ACME"})
	p.AppendEquity(models.EquityPoint{TotalValue: 1000})

	trades := p.Trades()
	trades[0].Symbol = "MUTATED"
	assert.Equal(t, "ACME", p.Trades()[0].Symbol)

	curve := p.EquityCurve()
	curve[0].TotalValue = 0
	assert.Equal(t, 1000.0, p.EquityCurve()[0].TotalValue)
}

func TestTotalValueIncludesBasisAndUnrealized(t *testing.T) {
	p, err := New(100000)
	require.NoError(t, err)

	require.NoError(t, p.DebitCash(1000))
	require.NoError(t, p.Ledger().Open(&models.Position{
		Symbol:     "ACME",
		AssetType:  models.AssetStock,
		Side:       models.SideLong,
		Quantity:   100,
		EntryPrice: 10,
		EntryDate:  time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}))

	// Marked at 12: unrealized 200 on a 1000 basis.
	assert.InDelta(t, 100200.0, p.TotalValue(200), 1e-9)
}
