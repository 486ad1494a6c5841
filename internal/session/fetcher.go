package session

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/quantio/quantd/internal/columnar"
	"github.com/quantio/quantd/internal/errors"
	"github.com/quantio/quantd/internal/series"
)

// Fetcher loads a single ticker's series from the upstream price
// source. Implementations must be safe for concurrent use.
type Fetcher interface {
	// FetchSeries returns the full history available for a ticker.
	FetchSeries(ctx context.Context, ticker string) (*series.Series, error)

	// Source names the object the data comes from, for activity logs.
	Source() string
}

// PriceFetcher reads tickers out of the wide price parquet object.
//
// Concurrent fetches of the same ticker are collapsed into one
// upstream read, so a burst of sessions asking for the same symbol
// costs a single parquet scan.
type PriceFetcher struct {
	reader *columnar.Reader
	object string
	group  singleflight.Group
}

// NewPriceFetcher creates a fetcher over the given reader and price
// object key.
func NewPriceFetcher(reader *columnar.Reader, object string) *PriceFetcher {
	return &PriceFetcher{reader: reader, object: object}
}

// Source implements Fetcher.
func (f *PriceFetcher) Source() string {
	return f.object
}

// FetchSeries implements Fetcher.
func (f *PriceFetcher) FetchSeries(ctx context.Context, ticker string) (*series.Series, error) {
	v, err, _ := f.group.Do(ticker, func() (interface{}, error) {
		return f.fetch(ctx, ticker)
	})
	if err != nil {
		return nil, err
	}
	return v.(*series.Series), nil
}

func (f *PriceFetcher) fetch(ctx context.Context, ticker string) (*series.Series, error) {
	records, err := f.reader.Read(ctx, f.object, []string{ticker})
	if err != nil {
		if errors.IsEmptyResult(err) {
			return nil, errors.NewNoDataForTicker(ticker)
		}
		return nil, err
	}

	points := make([]series.Point, 0, len(records))
	for _, rec := range records {
		if v, ok := rec.Values[ticker]; ok {
			points = append(points, series.NewPoint(rec.Date, v))
		}
	}
	sr := series.New(ticker, points)
	if sr.ValidCount() == 0 {
		return nil, errors.NewNoDataForTicker(ticker)
	}
	return sr, nil
}
