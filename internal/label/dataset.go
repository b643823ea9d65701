package label

import (
	"context"
	"fmt"
	"time"

	"barlab/internal/domain"
)

// PriceReader is the slice of the price store the builder needs.
type PriceReader interface {
	Closes(ctx context.Context, symbol string, begin, end time.Time) ([]domain.DatedClose, error)
}

// Dataset is a labelled window of one symbol's history. All slices have the
// same length; row i pairs the close on Dates[i] with Labels[i]. Smoothed is
// nil when no pre-filter was applied.
type Dataset struct {
	Symbol   string
	Window   int
	Smooth   int
	Dates    []time.Time
	Closes   []float64
	Smoothed []float64
	Labels   []float64
}

// Len returns the number of labelled rows.
func (d *Dataset) Len() int { return len(d.Labels) }

// Headers returns column names matching Rows.
func (d *Dataset) Headers() []string {
	if d.Smoothed != nil {
		return []string{"Date", "Close", fmt.Sprintf("SMA(%d)", d.Smooth), "Label"}
	}
	return []string{"Date", "Close", "Label"}
}

// Rows returns the dataset as table rows for display.
func (d *Dataset) Rows() [][]any {
	rows := make([][]any, d.Len())
	for i := range rows {
		row := []any{d.Dates[i], d.Closes[i]}
		if d.Smoothed != nil {
			row = append(row, d.Smoothed[i])
		}
		rows[i] = append(row, d.Labels[i])
	}
	return rows
}

// Builder produces datasets from stored closes.
type Builder struct {
	prices PriceReader
	window int
	smooth int
}

// NewBuilder creates a Builder with a slope window and an optional SMA
// pre-filter width; smooth of 0 or 1 disables smoothing.
func NewBuilder(prices PriceReader, window, smooth int) (*Builder, error) {
	if window <= 0 {
		return nil, fmt.Errorf("label window %d: %w", window, domain.ErrInvalidRange)
	}
	if smooth < 0 {
		return nil, fmt.Errorf("smooth window %d: %w", smooth, domain.ErrInvalidRange)
	}
	return &Builder{prices: prices, window: window, smooth: smooth}, nil
}

// Build loads closes for symbol over [begin, end], optionally smooths them,
// and attaches normalized slope labels.
func (b *Builder) Build(ctx context.Context, symbol string, begin, end time.Time) (*Dataset, error) {
	pairs, err := b.prices.Closes(ctx, symbol, begin, end)
	if err != nil {
		return nil, err
	}
	closes := make([]float64, len(pairs))
	for i, p := range pairs {
		closes[i] = p.Close
	}

	base := closes
	var smoothed []float64
	if b.smooth > 1 {
		smoothed, err = SMA(closes, b.smooth)
		if err != nil {
			return nil, err
		}
		base = smoothed
	}

	labels, err := Generate(base, b.window)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", domain.NormalizeSymbol(symbol), err)
	}

	n := len(labels)
	ds := &Dataset{
		Symbol: domain.NormalizeSymbol(symbol),
		Window: b.window,
		Smooth: b.smooth,
		Dates:  make([]time.Time, n),
		Closes: closes[:n],
		Labels: labels,
	}
	for i := range ds.Dates {
		ds.Dates[i] = pairs[i].Date
	}
	if smoothed != nil {
		ds.Smoothed = smoothed[:n]
	}
	return ds, nil
}
