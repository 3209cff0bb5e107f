package marketdata

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	bterrors "backsim/internal/errors"
	"backsim/internal/models"
	"backsim/internal/series"
)

// CSVFetcher reads <dir>/<SYMBOL>.csv files with the columns
// date,open,high,low,close,volume and dates formatted 2006-01-02. A
// header row is optional.
type CSVFetcher struct {
	dir string
}

// NewCSVFetcher creates a fetcher over a directory of per-symbol files.
func NewCSVFetcher(dir string) *CSVFetcher {
	return &CSVFetcher{dir: dir}
}

func (f *CSVFetcher) Fetch(ctx context.Context, symbol string, from, to time.Time) (*series.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Join(f.dir, strings.ToUpper(symbol)+".csv")
	file, err := os.Open(path)
	if err != nil {
		return nil, bterrors.NewDataError(symbol, "open", fmt.Sprintf("opening %s failed", path), err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, bterrors.NewDataError(symbol, "parse", "malformed CSV", err)
	}
	if len(records) == 0 {
		return nil, bterrors.NewDataError(symbol, "parse", "empty file", bterrors.ErrDataNotFound)
	}
	if strings.EqualFold(records[0][0], "date") {
		records = records[1:]
	}

	bars := make([]models.Bar, 0, len(records))
	for i, rec := range records {
		if len(rec) < 6 {
			return nil, bterrors.NewDataError(symbol, "parse",
				fmt.Sprintf("row %d has %d fields, want 6", i+1, len(rec)), nil)
		}
		bar, err := parseBarRow(rec)
		if err != nil {
			return nil, bterrors.NewDataError(symbol, "parse",
				fmt.Sprintf("row %d is invalid", i+1), err)
		}
		bars = append(bars, bar)
	}

	clipped := clipRange(bars, from, to)
	if len(clipped) == 0 {
		return nil, bterrors.NewDataError(symbol, "fetch", "no bars in requested range", bterrors.ErrDataNotFound)
	}
	return series.New(symbol, clipped)
}

func parseBarRow(rec []string) (models.Bar, error) {
	date, err := time.Parse("2006-01-02", rec[0])
	if err != nil {
		return models.Bar{}, err
	}
	var ohlc [4]float64
	for i := 0; i < 4; i++ {
		v, err := strconv.ParseFloat(rec[i+1], 64)
		if err != nil {
			return models.Bar{}, err
		}
		ohlc[i] = v
	}
	volume, err := strconv.ParseInt(rec[5], 10, 64)
	if err != nil {
		return models.Bar{}, err
	}
	return models.Bar{
		Date:   date.UTC(),
		Open:   ohlc[0],
		High:   ohlc[1],
		Low:    ohlc[2],
		Close:  ohlc[3],
		Volume: volume,
	}, nil
}
