// Package domain defines the core value types shared across barlab: daily
// price bars, per-symbol series, and the error taxonomy used by the store and
// label packages.
package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DateFormat is the layout used for calendar dates everywhere in barlab.
const DateFormat = "2006-01-02"

// Bar is one daily OHLCV bar. Bars are immutable once stored.
type Bar struct {
	Date     time.Time // calendar date, UTC midnight
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
	AdjClose float64
}

// Series is the full stored history of one symbol, oldest bar first with
// strictly increasing dates.
type Series struct {
	Symbol string
	Bars   []Bar
}

// DatedClose pairs a bar date with its closing price.
type DatedClose struct {
	Date  time.Time
	Close float64
}

// DateOf truncates t to its calendar date, keeping t's own wall-clock
// year/month/day and expressing it as UTC midnight.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NormalizeSymbol upper-cases and trims a ticker.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// NewSeries builds a canonical series from bars supplied in any order. Dates
// are truncated to calendar days and the result is sorted oldest-first. The
// input slice is not modified.
func NewSeries(symbol string, bars []Bar) (Series, error) {
	out := make([]Bar, len(bars))
	for i, b := range bars {
		b.Date = DateOf(b.Date)
		out[i] = b
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })

	for i := 1; i < len(out); i++ {
		if out[i].Date.Equal(out[i-1].Date) {
			return Series{}, fmt.Errorf("%s %s: %w", symbol, out[i].Date.Format(DateFormat), ErrDuplicateDate)
		}
	}
	return Series{Symbol: NormalizeSymbol(symbol), Bars: out}, nil
}

// Validate reports whether the series is canonical: every date a UTC
// midnight, in strictly ascending order.
func (s Series) Validate() error {
	for i, b := range s.Bars {
		if b.Date.Location() != time.UTC || !b.Date.Equal(DateOf(b.Date)) {
			return fmt.Errorf("%s: bar %d (%s): %w", s.Symbol, i, b.Date, ErrBarDate)
		}
	}
	for i := 1; i < len(s.Bars); i++ {
		prev, cur := s.Bars[i-1].Date, s.Bars[i].Date
		if cur.Equal(prev) {
			return fmt.Errorf("%s %s: %w", s.Symbol, cur.Format(DateFormat), ErrDuplicateDate)
		}
		if cur.Before(prev) {
			return fmt.Errorf("%s: bar %d (%s) precedes bar %d (%s)",
				s.Symbol, i, cur.Format(DateFormat), i-1, prev.Format(DateFormat))
		}
	}
	return nil
}

// Len returns the number of bars.
func (s Series) Len() int { return len(s.Bars) }

// Dates returns the bar dates in series order.
func (s Series) Dates() []time.Time {
	dates := make([]time.Time, len(s.Bars))
	for i, b := range s.Bars {
		dates[i] = b.Date
	}
	return dates
}

// Closes returns the closing prices in series order.
func (s Series) Closes() []float64 {
	return Closes(s.Bars)
}

// First returns the oldest bar. ok is false for an empty series.
func (s Series) First() (Bar, bool) {
	if len(s.Bars) == 0 {
		return Bar{}, false
	}
	return s.Bars[0], true
}

// Last returns the newest bar. ok is false for an empty series.
func (s Series) Last() (Bar, bool) {
	if len(s.Bars) == 0 {
		return Bar{}, false
	}
	return s.Bars[len(s.Bars)-1], true
}

// Equal reports bar-for-bar equality.
func (s Series) Equal(o Series) bool {
	if s.Symbol != o.Symbol || len(s.Bars) != len(o.Bars) {
		return false
	}
	for i := range s.Bars {
		a, b := s.Bars[i], o.Bars[i]
		if !a.Date.Equal(b.Date) || a.Open != b.Open || a.High != b.High || a.Low != b.Low ||
			a.Close != b.Close || a.Volume != b.Volume || a.AdjClose != b.AdjClose {
			return false
		}
	}
	return true
}

// Closes projects the close field of bars.
func Closes(bars []Bar) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}
