package label

import (
	"fmt"

	"barlab/internal/domain"
)

// SMA computes the forward simple moving average of values: element i is the
// mean of values[i : i+window]. The result is window-1 elements shorter than
// the input, and empty when window exceeds len(values).
func SMA(values []float64, window int) ([]float64, error) {
	if window <= 0 {
		return nil, fmt.Errorf("sma window %d: %w", window, domain.ErrInvalidRange)
	}
	n := len(values) - window + 1
	if n <= 0 {
		return []float64{}, nil
	}

	out := make([]float64, n)
	w := float64(window)
	var sum float64
	for _, v := range values[:window] {
		sum += v
	}
	out[0] = sum / w
	for i := 1; i < n; i++ {
		sum += values[i+window-1] - values[i-1]
		out[i] = sum / w
	}
	return out, nil
}
