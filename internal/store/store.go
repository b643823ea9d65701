// Package store persists per-symbol daily bar series and answers exact-date
// and date-range queries over them.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"barlab/internal/domain"
)

// SchemaVersion is the on-disk record layout written by every back-end.
// Bump it whenever the persisted column list or types change.
const SchemaVersion = 1

// SeriesStore persists whole series, one per symbol. Saves replace the
// stored series wholesale; individual bars are never mutated.
type SeriesStore interface {
	// Load returns the stored series for symbol, or an error wrapping
	// domain.ErrNotFound when nothing is stored.
	Load(ctx context.Context, symbol string) (domain.Series, error)

	// Save replaces the stored series for series.Symbol.
	Save(ctx context.Context, series domain.Series) error

	// ListSymbols returns every stored symbol in sorted order.
	ListSymbols(ctx context.Context) ([]string, error)

	// Delete removes the stored series for symbol. Deleting an absent
	// symbol returns an error wrapping domain.ErrNotFound.
	Delete(ctx context.Context, symbol string) error
}

// Open returns the SeriesStore named by backend ("parquet" or "sqlite")
// together with a function releasing its resources.
func Open(backend, dataDir, sqlitePath string) (SeriesStore, func() error, error) {
	switch backend {
	case "", "parquet":
		return NewParquetStore(dataDir), func() error { return nil }, nil
	case "sqlite":
		if dir := filepath.Dir(sqlitePath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("creating sqlite dir: %w", err)
			}
		}
		s, err := NewSQLiteStore(sqlitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
