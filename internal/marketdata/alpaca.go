package marketdata

import (
	"context"
	"time"

	alpacamd "github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	bterrors "backsim/internal/errors"
	"backsim/internal/models"
	"backsim/internal/series"
	"backsim/pkg/utils"
)

// AlpacaFetcher pulls daily bars from the Alpaca data API, SIP feed.
// Requests retry with backoff; the data API rate-limits bursts.
type AlpacaFetcher struct {
	client *alpacamd.Client
	retry  utils.RetryConfig
}

// NewAlpacaFetcher creates a fetcher with the given API credentials. An
// empty baseURL uses the production endpoint.
func NewAlpacaFetcher(apiKey, apiSecret, baseURL string) *AlpacaFetcher {
	opts := alpacamd.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if baseURL != "" {
		opts.BaseURL = baseURL
	}
	return &AlpacaFetcher{
		client: alpacamd.NewClient(opts),
		retry:  utils.DefaultRetryConfig(),
	}
}

func (f *AlpacaFetcher) Fetch(ctx context.Context, symbol string, from, to time.Time) (*series.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bars, err := utils.RetryWithResult(ctx, f.retry, func() ([]alpacamd.Bar, error) {
		return f.client.GetBars(symbol, alpacamd.GetBarsRequest{
			TimeFrame: alpacamd.OneDay,
			Start:     from,
			End:       to,
			Feed:      "sip",
		})
	})
	if err != nil {
		return nil, bterrors.NewDataError(symbol, "fetch", "alpaca request failed", err)
	}
	if len(bars) == 0 {
		return nil, bterrors.NewDataError(symbol, "fetch", "alpaca returned no bars", bterrors.ErrDataNotFound)
	}

	out := make([]models.Bar, 0, len(bars))
	for _, ab := range bars {
		y, m, d := ab.Timestamp.UTC().Date()
		out = append(out, models.Bar{
			Date:   time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
			Open:   ab.Open,
			High:   ab.High,
			Low:    ab.Low,
			Close:  ab.Close,
			Volume: int64(ab.Volume),
		})
	}
	return series.New(symbol, out)
}
