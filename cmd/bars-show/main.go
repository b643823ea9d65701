// bars-show prints stored daily bars for one symbol.
//
// Usage:
//
//	bars-show -symbol AAPL [-date 2024-06-14]
//	bars-show -symbol AAPL -begin 2024-06-01 [-end 2024-06-30]
//	bars-show -symbol AAPL -end 2024-06-14
//
// Dates snap back to the nearest trading day; an omitted date means the
// last finished session. -end without -begin shows that one day.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"barlab/internal/config"
	"barlab/internal/dashboard"
	"barlab/internal/domain"
	"barlab/internal/store"
	"barlab/internal/util"
)

func main() {
	symbol := flag.String("symbol", "", "symbol to show")
	date := flag.String("date", "", "single date (YYYY-MM-DD)")
	begin := flag.String("begin", "", "range start (YYYY-MM-DD)")
	end := flag.String("end", "", "range end (YYYY-MM-DD, default: last trading day)")
	flag.Parse()

	if *symbol == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadDefault()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	util.SetDefault(util.NewLogger(cfg.Logging.Level, cfg.Logging.Format))

	from, to, err := queryRange(*date, *begin, *end)
	if err != nil {
		log.Fatal(err)
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
	prices := store.NewPriceStore(series, cal)

	bars, err := prices.Query(context.Background(), *symbol, from, to)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		log.Fatalf("no stored history for %s; run bars-fetch first", domain.NormalizeSymbol(*symbol))
	case err != nil:
		log.Fatalf("query: %v", err)
	}

	rows := make([][]any, len(bars))
	for i, b := range bars {
		rows[i] = []any{
			b.Date,
			dashboard.FormatPrice(b.Open),
			dashboard.FormatPrice(b.High),
			dashboard.FormatPrice(b.Low),
			dashboard.FormatPrice(b.Close),
			dashboard.FormatVolume(b.Volume),
			dashboard.FormatPrice(b.AdjClose),
		}
	}
	fmt.Println(dashboard.RenderTable(
		[]string{"Date", "Open", "High", "Low", "Close", "Volume", "Adj Close"}, rows))
}

// queryRange turns the date flags into Query bounds. -date wins over
// -begin/-end, and -end alone shows that single day.
func queryRange(date, begin, end string) (from, to time.Time, err error) {
	if date != "" {
		if from, err = parseDate(date); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("-date: %w", err)
		}
		return from, from, nil
	}
	if from, err = parseDate(begin); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("-begin: %w", err)
	}
	if to, err = parseDate(end); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("-end: %w", err)
	}
	if begin == "" && end != "" {
		from = to
	}
	return from, to, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(domain.DateFormat, s)
}
