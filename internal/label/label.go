// Package label turns closing-price sequences into forward-slope training
// labels normalized to [0,1], with an optional forward moving-average
// pre-filter.
package label

import (
	"fmt"
	"math"

	"barlab/internal/domain"
)

// Slopes computes the forward slope at every position with a full window of
// lookahead: (closes[i+window-1] - closes[i]) / window. Positions near the
// tail without enough lookahead are skipped, so the result has
// max(0, len(closes)-window+1) elements.
func Slopes(closes []float64, window int) ([]float64, error) {
	if window <= 0 {
		return nil, fmt.Errorf("window %d: %w", window, domain.ErrInvalidRange)
	}
	n := len(closes) - window + 1
	if n <= 0 {
		return []float64{}, nil
	}

	slopes := make([]float64, n)
	w := float64(window)
	for i := range slopes {
		slopes[i] = (closes[i+window-1] - closes[i]) / w
	}
	return slopes, nil
}

// Normalize min-max scales values onto [0,1]. An empty input or one where
// every value is equal has no range to scale over and returns
// domain.ErrDegenerateRange.
func Normalize(values []float64) ([]float64, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("no values: %w", domain.ErrDegenerateRange)
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("non-finite value %v: %w", v, domain.ErrDegenerateRange)
		}
		lo = min(lo, v)
		hi = max(hi, v)
	}
	span := hi - lo
	if span == 0 {
		return nil, fmt.Errorf("min == max == %v: %w", lo, domain.ErrDegenerateRange)
	}

	out := make([]float64, len(values))
	for i, v := range values {
		// Clamp guards the last ulp; (v-lo)/span can round just past 1.
		out[i] = min(max((v-lo)/span, 0), 1)
	}
	return out, nil
}

// Generate returns normalized forward-slope labels for closes. Label i
// describes the move from closes[i] to closes[i+window-1].
func Generate(closes []float64, window int) ([]float64, error) {
	slopes, err := Slopes(closes, window)
	if err != nil {
		return nil, err
	}
	if len(slopes) == 0 {
		return nil, fmt.Errorf("window %d over %d closes: %w", window, len(closes), domain.ErrDegenerateRange)
	}
	return Normalize(slopes)
}
