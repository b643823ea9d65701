package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"barlab/internal/config"
	"barlab/internal/dashboard"
	"barlab/internal/domain"
	"barlab/internal/store"
)

const version = "0.1.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: barlab <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  version           Print the CLI version\n")
		fmt.Fprintf(os.Stderr, "  last-day          Print the last finished trading day\n")
		fmt.Fprintf(os.Stderr, "  symbols           List stored symbols with their date span\n")
		fmt.Fprintf(os.Stderr, "  delete <SYMBOL>   Remove a stored series\n")
		fmt.Fprintf(os.Stderr, "\n")
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("barlab %s\n", version)

	case "last-day":
		cfg := loadConfig()
		cal, err := cfg.TradingCalendar()
		if err != nil {
			log.Fatalf("calendar: %v", err)
		}
		fmt.Println(dashboard.FormatDate(cal.LastTradingDay()))

	case "symbols":
		series, closeStore := openStore(loadConfig())
		defer closeStore()
		listSymbols(context.Background(), series)

	case "delete":
		if len(os.Args) < 3 {
			flag.Usage()
			os.Exit(1)
		}
		series, closeStore := openStore(loadConfig())
		defer closeStore()
		sym := domain.NormalizeSymbol(os.Args[2])
		if err := series.Delete(context.Background(), sym); err != nil {
			log.Fatalf("delete %s: %v", sym, err)
		}
		fmt.Printf("deleted %s\n", sym)

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		flag.Usage()
		os.Exit(1)
	}
}

func loadConfig() *config.Config {
	cfg, err := config.LoadDefault()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func openStore(cfg *config.Config) (store.SeriesStore, func() error) {
	series, closeStore, err := store.Open(cfg.Storage.Backend, cfg.Storage.DataDir, cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	return series, closeStore
}

func listSymbols(ctx context.Context, series store.SeriesStore) {
	symbols, err := series.ListSymbols(ctx)
	if err != nil {
		log.Fatalf("list symbols: %v", err)
	}
	if len(symbols) == 0 {
		fmt.Println("no stored series")
		return
	}

	rows := make([][]any, 0, len(symbols))
	for _, sym := range symbols {
		s, err := series.Load(ctx, sym)
		if err != nil {
			rows = append(rows, []any{sym, "-", "-", err.Error()})
			continue
		}
		first, _ := s.First()
		last, _ := s.Last()
		rows = append(rows, []any{sym, first.Date, last.Date, dashboard.FormatInt(s.Len())})
	}
	fmt.Println(dashboard.RenderTable([]string{"Symbol", "First", "Last", "Bars"}, rows))
}
