package gather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"barlab/internal/domain"
	"barlab/internal/store"
	"barlab/internal/util"
)

var _ Gatherer = (*DailyBarGatherer)(nil)

// DailyBarOptions tunes a DailyBarGatherer.
type DailyBarOptions struct {
	// Symbols to refresh. Duplicates and case differences are folded.
	Symbols []string
	// Start is the first day requested from the feed. Zero asks for the
	// whole available history.
	Start time.Time
	// ProgressDir holds the .last-completed and .in-progress markers. Empty
	// disables progress tracking.
	ProgressDir string
	// Force refreshes every symbol even when it was already refreshed for
	// the day.
	Force bool

	MaxWorkers   int
	RateLimitMin int // requests per minute, 0 = unlimited
	Retries      int
	RetryDelay   time.Duration
}

// DailyBarGatherer refreshes the stored daily history of a symbol list from
// a Fetcher. Each symbol is fetched and replaced independently: a symbol
// whose fetch fails keeps its previously stored series.
type DailyBarGatherer struct {
	fetcher Fetcher
	prices  *store.PriceStore
	cal     *util.TradingCalendar
	opts    DailyBarOptions
	limiter *util.RateLimiter
	log     *slog.Logger
}

// NewDailyBarGatherer creates a DailyBarGatherer writing through prices.
func NewDailyBarGatherer(f Fetcher, prices *store.PriceStore, cal *util.TradingCalendar, opts DailyBarOptions) *DailyBarGatherer {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 4
	}
	if opts.Retries <= 0 {
		opts.Retries = 3
	}
	return &DailyBarGatherer{
		fetcher: f,
		prices:  prices,
		cal:     cal,
		opts:    opts,
		limiter: util.NewRateLimiter(opts.RateLimitMin),
		log:     slog.Default().With("gatherer", "daily-"+f.Name()),
	}
}

// Name returns the gatherer identifier.
func (g *DailyBarGatherer) Name() string { return "daily-" + g.fetcher.Name() }

// Run refreshes every configured symbol up to the last finished trading
// day, skipping symbols already refreshed for that day. It returns an error
// naming the symbols that could not be refreshed; the day is only marked
// completed when all of them succeeded.
func (g *DailyBarGatherer) Run(ctx context.Context) error {
	end := g.cal.LastTradingDay()
	endStr := end.Format(domain.DateFormat)

	var tracker *progressTracker
	if g.opts.ProgressDir != "" {
		var err error
		tracker, err = newProgressTracker(g.opts.ProgressDir, endStr)
		if err != nil {
			return fmt.Errorf("creating progress tracker: %w", err)
		}
		defer tracker.Close()
	}

	var remaining []string
	for _, sym := range uniqueSymbols(g.opts.Symbols) {
		if tracker != nil && !g.opts.Force && tracker.IsDone(sym) {
			continue
		}
		remaining = append(remaining, sym)
	}
	if tracker != nil && len(remaining) == 0 && tracker.IsCompleted() {
		g.log.Info("already completed", "endDate", endStr)
		return nil
	}

	g.log.Info("starting",
		"endDate", endStr,
		"total", len(g.opts.Symbols),
		"remaining", len(remaining),
		"workers", g.opts.MaxWorkers,
	)

	var (
		mu       sync.Mutex
		failures []error
		okCount  atomic.Int64
		runStart = time.Now()
	)

	eg := new(errgroup.Group)
	eg.SetLimit(g.opts.MaxWorkers)
	for _, sym := range remaining {
		if ctx.Err() != nil {
			break
		}
		eg.Go(func() error {
			n, err := g.refreshSymbol(ctx, sym, end)
			if err != nil {
				if ctx.Err() == nil {
					g.log.Error("refresh failed", "symbol", sym, "error", err)
				}
				mu.Lock()
				failures = append(failures, fmt.Errorf("%s: %w", sym, err))
				mu.Unlock()
				return nil
			}
			okCount.Add(1)
			g.log.Info("refreshed", "symbol", sym, "bars", n)
			if tracker != nil {
				if err := tracker.MarkDone(sym); err != nil {
					g.log.Warn("recording progress failed", "symbol", sym, "error", err)
				}
			}
			return nil
		})
	}
	eg.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}

	g.log.Info("complete",
		"refreshed", okCount.Load(),
		"failed", len(failures),
		"elapsed", time.Since(runStart).Round(time.Millisecond),
	)

	if len(failures) > 0 {
		return fmt.Errorf("%d of %d symbols failed: %w", len(failures), len(remaining), errors.Join(failures...))
	}
	if tracker != nil {
		if err := tracker.MarkCompleted(); err != nil {
			return fmt.Errorf("marking completed: %w", err)
		}
	}
	return nil
}

// refreshSymbol fetches one symbol's history with retries and replaces the
// stored series. It returns the number of bars stored.
func (g *DailyBarGatherer) refreshSymbol(ctx context.Context, symbol string, end time.Time) (int, error) {
	var bars []domain.Bar
	err := util.Retry(ctx, g.opts.Retries, g.opts.RetryDelay, func() error {
		if err := g.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		var err error
		bars, err = g.fetcher.FetchHistory(ctx, symbol, DateRange{Start: g.opts.Start, End: end})
		if ctx.Err() != nil {
			return util.Permanent(ctx.Err())
		}
		return err
	})
	if err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		return 0, fmt.Errorf("feed returned no bars: %w", domain.ErrNotFound)
	}

	series, err := g.prices.Refresh(ctx, symbol, bars)
	if err != nil {
		return 0, err
	}
	return series.Len(), nil
}

func uniqueSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = domain.NormalizeSymbol(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
