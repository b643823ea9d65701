// labels prints a labelled dataset: each close paired with the min-max
// normalized slope of the window that starts at it.
//
// Usage:
//
//	labels -symbol AAPL -begin 2024-01-01 [-end 2024-06-30] [-window 5] [-smooth 0]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"barlab/internal/config"
	"barlab/internal/dashboard"
	"barlab/internal/domain"
	"barlab/internal/label"
	"barlab/internal/store"
	"barlab/internal/util"
)

func main() {
	symbol := flag.String("symbol", "", "symbol to label")
	begin := flag.String("begin", "", "range start (YYYY-MM-DD)")
	end := flag.String("end", "", "range end (YYYY-MM-DD, default: last trading day)")
	window := flag.Int("window", 0, "slope window in bars (default: labels.window)")
	smooth := flag.Int("smooth", -1, "SMA pre-filter width, 0 disables (default: labels.smooth)")
	flag.Parse()

	if *symbol == "" || *begin == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadDefault()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	util.SetDefault(util.NewLogger(cfg.Logging.Level, cfg.Logging.Format))

	from, err := time.Parse(domain.DateFormat, *begin)
	if err != nil {
		log.Fatalf("-begin: %v", err)
	}
	var to time.Time
	if *end != "" {
		if to, err = time.Parse(domain.DateFormat, *end); err != nil {
			log.Fatalf("-end: %v", err)
		}
	}
	if *window == 0 {
		*window = cfg.Labels.Window
	}
	if *smooth < 0 {
		*smooth = cfg.Labels.Smooth
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

	b, err := label.NewBuilder(store.NewPriceStore(series, cal), *window, *smooth)
	if err != nil {
		log.Fatalf("builder: %v", err)
	}
	ds, err := b.Build(context.Background(), *symbol, from, to)
	switch {
	case errors.Is(err, domain.ErrDegenerateRange):
		slog.Warn("range too short or too flat to label", "symbol", *symbol, "window", *window, "error", err)
		return
	case err != nil:
		log.Fatalf("build: %v", err)
	}

	slog.Debug("dataset built", "symbol", ds.Symbol, "rows", ds.Len(), "window", ds.Window, "smooth", ds.Smooth)
	fmt.Println(dashboard.RenderTable(ds.Headers(), ds.Rows()))
}
