package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"barlab/internal/domain"
	"barlab/internal/util"
)

// PriceStore answers date queries over a SeriesStore. Every date argument
// is snapped to a trading day by the calendar before it is compared with
// stored bars.
type PriceStore struct {
	series SeriesStore
	cal    *util.TradingCalendar
}

// NewPriceStore wraps a SeriesStore with trading-day aware queries.
func NewPriceStore(series SeriesStore, cal *util.TradingCalendar) *PriceStore {
	return &PriceStore{series: series, cal: cal}
}

// Load returns the full stored series for symbol.
func (p *PriceStore) Load(ctx context.Context, symbol string) (domain.Series, error) {
	return p.series.Load(ctx, symbol)
}

// Save canonicalizes series the way Refresh does and replaces the stored
// series with it.
func (p *PriceStore) Save(ctx context.Context, series domain.Series) error {
	canon, err := domain.NewSeries(series.Symbol, series.Bars)
	if err != nil {
		return fmt.Errorf("saving %s: %w", series.Symbol, err)
	}
	return p.series.Save(ctx, canon)
}

// Symbols lists every stored symbol.
func (p *PriceStore) Symbols(ctx context.Context) ([]string, error) {
	return p.series.ListSymbols(ctx)
}

// Refresh canonicalizes bars, which may arrive in any order, and replaces
// the stored series for symbol with them. Nothing is written when the bars
// do not form a valid series.
func (p *PriceStore) Refresh(ctx context.Context, symbol string, bars []domain.Bar) (domain.Series, error) {
	series, err := domain.NewSeries(symbol, bars)
	if err != nil {
		return domain.Series{}, fmt.Errorf("refreshing %s: %w", symbol, err)
	}
	if err := p.series.Save(ctx, series); err != nil {
		return domain.Series{}, err
	}
	return series, nil
}

// Query returns the stored bars for symbol between begin and end inclusive.
//
// When begin and end resolve to the same trading day the bar for that exact
// day is returned, or an error wrapping domain.ErrDateNotAvailable when it is
// not stored. Otherwise the result is the contiguous run of stored bars
// dated within [begin, end]; bounds that fall outside the stored history or
// inside a gap simply narrow the result. begin after end is
// domain.ErrInvalidRange.
func (p *PriceStore) Query(ctx context.Context, symbol string, begin, end time.Time) ([]domain.Bar, error) {
	begin, end = p.cal.Resolve(begin), p.cal.Resolve(end)
	if begin.After(end) {
		return nil, fmt.Errorf("%s %s > %s: %w", symbol,
			begin.Format(domain.DateFormat), end.Format(domain.DateFormat), domain.ErrInvalidRange)
	}

	series, err := p.series.Load(ctx, symbol)
	if err != nil {
		return nil, err
	}

	if begin.Equal(end) {
		i, ok := findDate(series.Bars, begin)
		if !ok {
			return nil, fmt.Errorf("%s %s: %w", series.Symbol, begin.Format(domain.DateFormat), domain.ErrDateNotAvailable)
		}
		return series.Bars[i : i+1], nil
	}

	lo := searchDate(series.Bars, begin)
	hi := searchDate(series.Bars, end)
	if _, ok := findDate(series.Bars, end); ok {
		hi++
	}
	return series.Bars[lo:hi], nil
}

// Close returns the closing price on one trading day.
func (p *PriceStore) Close(ctx context.Context, symbol string, date time.Time) (float64, error) {
	bars, err := p.Query(ctx, symbol, date, date)
	if err != nil {
		return 0, err
	}
	return bars[0].Close, nil
}

// Closes returns the (date, close) pairs for the bars in [begin, end].
func (p *PriceStore) Closes(ctx context.Context, symbol string, begin, end time.Time) ([]domain.DatedClose, error) {
	bars, err := p.Query(ctx, symbol, begin, end)
	if err != nil {
		return nil, err
	}
	out := make([]domain.DatedClose, len(bars))
	for i, b := range bars {
		out[i] = domain.DatedClose{Date: b.Date, Close: b.Close}
	}
	return out, nil
}

// searchDate returns the index of the first bar dated on or after d.
func searchDate(bars []domain.Bar, d time.Time) int {
	return sort.Search(len(bars), func(i int) bool { return !bars[i].Date.Before(d) })
}

// findDate returns the index of the bar dated exactly d.
func findDate(bars []domain.Bar, d time.Time) (int, bool) {
	i := searchDate(bars, d)
	if i < len(bars) && bars[i].Date.Equal(d) {
		return i, true
	}
	return i, false
}
