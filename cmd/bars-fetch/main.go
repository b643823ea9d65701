// bars-fetch refreshes stored daily history for a list of symbols.
//
// Usage:
//
//	bars-fetch [-symbols AAPL,MSFT] [-source alpaca|csv] [-force] [-daemon]
//
// With -daemon the refresh repeats on gather.schedule instead of running
// once.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"barlab/internal/config"
	"barlab/internal/gather"
	"barlab/internal/gather/csvfeed"
	"barlab/internal/gather/us"
	"barlab/internal/store"
	"barlab/internal/util"
)

func main() {
	symbolsFlag := flag.String("symbols", "", "comma separated symbols (default: gather.symbols from config)")
	source := flag.String("source", "", "history source: alpaca or csv (default: feed.source from config)")
	force := flag.Bool("force", false, "refresh even if today's run already completed")
	daemon := flag.Bool("daemon", false, "keep running and refresh on gather.schedule")
	flag.Parse()

	cfg, err := config.LoadDefault()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	util.SetDefault(util.NewLogger(cfg.Logging.Level, cfg.Logging.Format))

	symbols := gather.ParseSymbols(*symbolsFlag)
	if len(symbols) == 0 {
		symbols = cfg.Gather.Symbols
	}
	if len(symbols) == 0 {
		log.Fatal("no symbols: pass -symbols or set gather.symbols")
	}

	src := cfg.Feed.Source
	if *source != "" {
		src = *source
	}
	var fetcher gather.Fetcher
	switch src {
	case config.SourceAlpaca:
		loc, _ := cfg.Location()
		fetcher = us.NewAlpacaFetcher(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, cfg.Alpaca.Feed, loc)
	case config.SourceCSV:
		if cfg.Feed.URL == "" {
			log.Fatal("csv source needs feed.url or FEED_URL")
		}
		fetcher = csvfeed.New(cfg.Feed.URL)
	default:
		log.Fatalf("unknown source %q", src)
	}

	cal, err := cfg.TradingCalendar()
	if err != nil {
		log.Fatalf("calendar: %v", err)
	}
	series, closeStore, err := store.Open(cfg.Storage.Backend, cfg.Storage.DataDir, cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer closeStore()

	g := gather.NewDailyBarGatherer(fetcher, store.NewPriceStore(series, cal), cal, gather.DailyBarOptions{
		Symbols:      symbols,
		Start:        cfg.StartTime(),
		ProgressDir:  filepath.Join(cfg.Storage.DataDir, "daily"),
		Force:        *force,
		MaxWorkers:   cfg.Gather.MaxWorkers,
		RateLimitMin: cfg.Gather.RateLimitPerMin,
		Retries:      cfg.Gather.Retries,
		RetryDelay:   cfg.Gather.RetryDelay,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("starting bars-fetch", "source", fetcher.Name(), "backend", cfg.Storage.Backend, "symbols", len(symbols), "daemon", *daemon)

	if *daemon {
		loc, _ := cfg.Location()
		sched := gather.NewScheduler(ctx, loc)
		if err := sched.Add(cfg.Gather.Schedule, g); err != nil {
			log.Fatalf("schedule: %v", err)
		}
		sched.Run()
		return
	}

	if err := g.Run(ctx); err != nil {
		slog.Error("bars-fetch failed", "error", err)
		closeStore()
		os.Exit(1)
	}
}
