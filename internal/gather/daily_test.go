package gather

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"barlab/internal/domain"
	"barlab/internal/store"
	"barlab/internal/util"
)

type stubFetcher struct {
	mu    sync.Mutex
	bars  map[string][]domain.Bar
	fail  map[string]int // remaining failures per symbol
	calls map[string]int
	last  DateRange
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		bars:  make(map[string][]domain.Bar),
		fail:  make(map[string]int),
		calls: make(map[string]int),
	}
}

func (f *stubFetcher) Name() string { return "stub" }

func (f *stubFetcher) FetchHistory(_ context.Context, symbol string, r DateRange) ([]domain.Bar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[symbol]++
	f.last = r
	if f.fail[symbol] > 0 {
		f.fail[symbol]--
		return nil, errors.New("feed unavailable")
	}
	return f.bars[symbol], nil
}

func (f *stubFetcher) callCount(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[symbol]
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// newestFirst returns bars for 2024-06-10..14 in descending date order.
func newestFirst(base float64) []domain.Bar {
	var bars []domain.Bar
	for d := 14; d >= 10; d-- {
		bars = append(bars, domain.Bar{Date: day(2024, 6, d), Close: base + float64(d)})
	}
	return bars
}

type fixture struct {
	prices *store.PriceStore
	cal    *util.TradingCalendar
	dir    string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	// Monday 2024-06-17 after the close: the last trading day is the 17th.
	cal := util.NewTradingCalendar(time.UTC, util.WithClock(func() time.Time {
		return time.Date(2024, 6, 17, 20, 0, 0, 0, time.UTC)
	}))
	return fixture{
		prices: store.NewPriceStore(store.NewParquetStore(dir), cal),
		cal:    cal,
		dir:    dir,
	}
}

func TestDailyBarGathererRun(t *testing.T) {
	fx := newFixture(t)
	f := newStubFetcher()
	f.bars["AAPL"] = newestFirst(100)
	f.bars["MSFT"] = newestFirst(400)

	g := NewDailyBarGatherer(f, fx.prices, fx.cal, DailyBarOptions{
		Symbols:     []string{"aapl", "MSFT", "AAPL "},
		Start:       day(2024, 1, 1),
		ProgressDir: fx.dir,
		MaxWorkers:  2,
	})
	if got := g.Name(); got != "daily-stub" {
		t.Errorf("Name() = %q, want daily-stub", got)
	}
	if err := g.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if n := f.callCount("AAPL"); n != 1 {
		t.Errorf("AAPL fetched %d times, want 1", n)
	}
	if !f.last.Start.Equal(day(2024, 1, 1)) || !f.last.End.Equal(day(2024, 6, 17)) {
		t.Errorf("requested range = %v..%v", f.last.Start, f.last.End)
	}

	s, err := fx.prices.Load(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Len() != 5 {
		t.Fatalf("stored %d bars, want 5", s.Len())
	}
	if first, _ := s.First(); first.Date.Day() != 10 {
		t.Errorf("first stored bar = %v, want oldest-first order", first.Date)
	}

	if got := lastCompleted(fx.dir); got != "2024-06-17" {
		t.Errorf("last completed = %q, want 2024-06-17", got)
	}

	// A second run on the same day is a no-op.
	if err := g.Run(context.Background()); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if n := f.callCount("AAPL"); n != 1 {
		t.Errorf("AAPL fetched %d times after rerun, want 1", n)
	}
}

func TestDailyBarGathererNewSymbolsSameDay(t *testing.T) {
	fx := newFixture(t)
	f := newStubFetcher()
	f.bars["AAPL"] = newestFirst(100)
	f.bars["MSFT"] = newestFirst(400)
	ctx := context.Background()

	run := func(symbols ...string) {
		t.Helper()
		g := NewDailyBarGatherer(f, fx.prices, fx.cal, DailyBarOptions{
			Symbols:     symbols,
			ProgressDir: fx.dir,
		})
		if err := g.Run(ctx); err != nil {
			t.Fatalf("Run(%v): %v", symbols, err)
		}
	}

	run("AAPL")
	run("MSFT")
	if n := f.callCount("MSFT"); n != 1 {
		t.Errorf("MSFT fetched %d times, want 1", n)
	}
	if _, err := fx.prices.Load(ctx, "MSFT"); err != nil {
		t.Errorf("Load(MSFT): %v", err)
	}

	run("AAPL", "MSFT")
	if a, m := f.callCount("AAPL"), f.callCount("MSFT"); a != 1 || m != 1 {
		t.Errorf("fetch counts after rerun AAPL=%d MSFT=%d, want 1 and 1", a, m)
	}
	if got := lastCompleted(fx.dir); got != "2024-06-17" {
		t.Errorf("last completed = %q, want 2024-06-17", got)
	}
}

func TestDailyBarGathererRetries(t *testing.T) {
	fx := newFixture(t)
	f := newStubFetcher()
	f.bars["SPY"] = newestFirst(500)
	f.fail["SPY"] = 2

	g := NewDailyBarGatherer(f, fx.prices, fx.cal, DailyBarOptions{
		Symbols:    []string{"SPY"},
		Retries:    3,
		RetryDelay: time.Millisecond,
	})
	if err := g.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := f.callCount("SPY"); n != 3 {
		t.Errorf("SPY fetched %d times, want 3", n)
	}
}

func TestDailyBarGathererFailureKeepsStoredSeries(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	old, err := domain.NewSeries("QQQ", []domain.Bar{{Date: day(2024, 6, 3), Close: 1}})
	if err != nil {
		t.Fatal(err)
	}
	if err := fx.prices.Save(ctx, old); err != nil {
		t.Fatal(err)
	}

	f := newStubFetcher()
	f.fail["QQQ"] = 10
	f.bars["IWM"] = newestFirst(200)

	g := NewDailyBarGatherer(f, fx.prices, fx.cal, DailyBarOptions{
		Symbols:     []string{"QQQ", "IWM"},
		ProgressDir: fx.dir,
		Retries:     2,
		RetryDelay:  time.Millisecond,
	})
	if err := g.Run(ctx); err == nil {
		t.Fatal("Run should report the failed symbol")
	}

	got, err := fx.prices.Load(ctx, "QQQ")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !got.Equal(old) {
		t.Errorf("QQQ series changed after a failed fetch: %+v", got)
	}
	if _, err := fx.prices.Load(ctx, "IWM"); err != nil {
		t.Errorf("IWM should be refreshed despite QQQ failing: %v", err)
	}
	if got := lastCompleted(fx.dir); got != "" {
		t.Errorf("day marked completed (%q) with a failed symbol", got)
	}

	// The retry run only fetches what is still missing.
	f.fail["QQQ"] = 0
	f.bars["QQQ"] = newestFirst(300)
	if err := g.Run(ctx); err != nil {
		t.Fatalf("resume Run: %v", err)
	}
	if n := f.callCount("IWM"); n != 1 {
		t.Errorf("IWM fetched %d times, want 1", n)
	}
	if got := lastCompleted(fx.dir); got != "2024-06-17" {
		t.Errorf("last completed = %q, want 2024-06-17", got)
	}
}

func TestDailyBarGathererRejectsBadFeedData(t *testing.T) {
	fx := newFixture(t)
	f := newStubFetcher()
	f.bars["DUP"] = []domain.Bar{
		{Date: day(2024, 6, 10), Close: 1},
		{Date: day(2024, 6, 10), Close: 2},
	}

	g := NewDailyBarGatherer(f, fx.prices, fx.cal, DailyBarOptions{Symbols: []string{"DUP", "NONE"}})
	err := g.Run(context.Background())
	if !errors.Is(err, domain.ErrDuplicateDate) {
		t.Errorf("Run err = %v, want ErrDuplicateDate", err)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Run err = %v, want ErrNotFound for the empty feed", err)
	}
	if _, err := fx.prices.Load(context.Background(), "DUP"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("invalid feed data should not be stored, Load err = %v", err)
	}
}

func TestDailyBarGathererCancelled(t *testing.T) {
	fx := newFixture(t)
	f := newStubFetcher()
	f.bars["AAPL"] = newestFirst(100)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g := NewDailyBarGatherer(f, fx.prices, fx.cal, DailyBarOptions{Symbols: []string{"AAPL"}})
	if err := g.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run err = %v, want context.Canceled", err)
	}
}

func TestParseSymbols(t *testing.T) {
	got := ParseSymbols(" aapl,msft\tspy \n,, qqq ")
	want := []string{"AAPL", "MSFT", "SPY", "QQQ"}
	if len(got) != len(want) {
		t.Fatalf("ParseSymbols = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ParseSymbols[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if got := ParseSymbols(""); len(got) != 0 {
		t.Errorf("ParseSymbols(\"\") = %v, want empty", got)
	}
}
