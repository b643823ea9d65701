// Package us fetches US equity daily bars from the Alpaca market-data API.
package us

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"barlab/internal/domain"
	"barlab/internal/gather"
)

var _ gather.Fetcher = (*AlpacaFetcher)(nil)

// AlpacaFetcher downloads daily bars through the Alpaca market-data v2 API.
// Each symbol is requested twice, unadjusted and fully adjusted, and the two
// are joined by date so that AdjClose carries the split and dividend
// adjusted close next to the raw OHLC.
type AlpacaFetcher struct {
	client *marketdata.Client
	feed   string
	loc    *time.Location
	log    *slog.Logger
}

// NewAlpacaFetcher creates an AlpacaFetcher. An empty dataURL uses the
// client's default endpoint; an empty feed means "sip". Bar timestamps are
// mapped to calendar dates in loc (nil means America/New_York, falling back
// to UTC when the zone database is missing).
func NewAlpacaFetcher(apiKey, apiSecret, dataURL, feed string, loc *time.Location) *AlpacaFetcher {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	if feed == "" {
		feed = "sip"
	}
	if loc == nil {
		var err error
		if loc, err = time.LoadLocation("America/New_York"); err != nil {
			loc = time.UTC
		}
	}

	return &AlpacaFetcher{
		client: marketdata.NewClient(opts),
		feed:   feed,
		loc:    loc,
		log:    slog.Default().With("fetcher", "alpaca"),
	}
}

// Name returns the fetcher identifier.
func (f *AlpacaFetcher) Name() string { return "alpaca" }

// FetchHistory returns symbol's daily bars within r in ascending order.
func (f *AlpacaFetcher) FetchHistory(ctx context.Context, symbol string, r gather.DateRange) ([]domain.Bar, error) {
	symbol = domain.NormalizeSymbol(symbol)

	raw, err := f.getBars(ctx, symbol, r, marketdata.Raw)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	adj, err := f.getBars(ctx, symbol, r, marketdata.All)
	if err != nil {
		return nil, err
	}

	bars, missing := joinAdjusted(raw, adj, f.loc)
	if missing > 0 {
		f.log.Warn("adjusted bars missing, using raw close", "symbol", symbol, "missing", missing)
	}
	return bars, nil
}

func (f *AlpacaFetcher) getBars(ctx context.Context, symbol string, r gather.DateRange, adj marketdata.Adjustment) ([]marketdata.Bar, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	start := r.Start
	if start.IsZero() {
		// Alpaca's history begins in 2016; anything earlier returns everything.
		start = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	req := marketdata.GetBarsRequest{
		TimeFrame:  marketdata.OneDay,
		Adjustment: adj,
		Start:      start,
		Feed:       f.feed,
	}
	if !r.End.IsZero() {
		// End is inclusive of the whole day.
		req.End = r.End.AddDate(0, 0, 1).Add(-time.Second)
	}

	bars, err := f.client.GetBars(symbol, req)
	if err != nil {
		return nil, fmt.Errorf("GetBars %s (%s): %w", symbol, adj, err)
	}
	return bars, nil
}

// joinAdjusted converts raw bars to domain bars, taking AdjClose from the
// adjusted bar with the same date. Dates without an adjusted counterpart
// fall back to the raw close and are counted in missing.
func joinAdjusted(raw, adj []marketdata.Bar, loc *time.Location) (bars []domain.Bar, missing int) {
	adjClose := make(map[time.Time]float64, len(adj))
	for _, ab := range adj {
		adjClose[barDate(ab.Timestamp, loc)] = ab.Close
	}

	bars = make([]domain.Bar, 0, len(raw))
	for _, ab := range raw {
		d := barDate(ab.Timestamp, loc)
		ac, ok := adjClose[d]
		if !ok {
			ac = ab.Close
			missing++
		}
		bars = append(bars, domain.Bar{
			Date:     d,
			Open:     ab.Open,
			High:     ab.High,
			Low:      ab.Low,
			Close:    ab.Close,
			Volume:   float64(ab.Volume),
			AdjClose: ac,
		})
	}
	return bars, missing
}

// barDate maps an Alpaca daily bar timestamp (midnight exchange time, sent
// in UTC) to its calendar date.
func barDate(ts time.Time, loc *time.Location) time.Time {
	return domain.DateOf(ts.In(loc))
}
