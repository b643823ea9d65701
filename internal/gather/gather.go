// Package gather acquires daily bar history from remote feeds and hands it
// to the price store.
package gather

import (
	"context"
	"strings"
	"time"
	"unicode"

	"barlab/internal/domain"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run performs one gathering pass. It returns early if ctx is cancelled.
	Run(ctx context.Context) error
}

// Fetcher downloads the daily history of one symbol from a remote source.
type Fetcher interface {
	// Name identifies the feed in logs.
	Name() string

	// FetchHistory returns the bars for symbol within r. A zero Start asks
	// for the full available history and a zero End for everything up to
	// the latest bar. Bars may come back in any order.
	FetchHistory(ctx context.Context, symbol string, r DateRange) ([]domain.Bar, error)
}

// DateRange represents a time range for data fetching.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// ParseSymbols splits a comma or whitespace separated symbol list into
// normalized symbols.
func ParseSymbols(list string) []string {
	fields := strings.FieldsFunc(list, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if s := domain.NormalizeSymbol(f); s != "" {
			out = append(out, s)
		}
	}
	return out
}
