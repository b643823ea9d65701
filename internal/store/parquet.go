package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"

	"barlab/internal/domain"
)

// Compile-time interface check.
var _ SeriesStore = (*ParquetStore)(nil)

const (
	schemaVersionKey = "barlab.schema_version"
	parquetExt       = ".parquet"
)

// ParquetStore implements SeriesStore with one Parquet file per symbol.
type ParquetStore struct {
	DataDir string

	mu sync.Mutex
}

// NewParquetStore creates a ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// BarRecord is the Parquet schema for one daily bar.
type BarRecord struct {
	Date     int64   `parquet:"date,timestamp(millisecond)"` // Unix ms, UTC midnight
	Open     float64 `parquet:"open"`
	High     float64 `parquet:"high"`
	Low      float64 `parquet:"low"`
	Close    float64 `parquet:"close"`
	Volume   float64 `parquet:"volume"`
	AdjClose float64 `parquet:"adj_close"`
}

func toRecord(b domain.Bar) BarRecord {
	return BarRecord{
		Date:     b.Date.UnixMilli(),
		Open:     b.Open,
		High:     b.High,
		Low:      b.Low,
		Close:    b.Close,
		Volume:   b.Volume,
		AdjClose: b.AdjClose,
	}
}

func fromRecord(r BarRecord) domain.Bar {
	return domain.Bar{
		Date:     time.UnixMilli(r.Date).UTC(),
		Open:     r.Open,
		High:     r.High,
		Low:      r.Low,
		Close:    r.Close,
		Volume:   r.Volume,
		AdjClose: r.AdjClose,
	}
}

// Load reads the series for symbol from its Parquet file.
func (s *ParquetStore) Load(_ context.Context, symbol string) (domain.Series, error) {
	path, err := s.seriesPath(symbol)
	if err != nil {
		return domain.Series{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := readSeriesFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.Series{}, fmt.Errorf("loading %s: %w", domain.NormalizeSymbol(symbol), domain.ErrNotFound)
		}
		return domain.Series{}, fmt.Errorf("loading %s: %w", domain.NormalizeSymbol(symbol), err)
	}

	bars := make([]domain.Bar, len(records))
	for i, r := range records {
		bars[i] = fromRecord(r)
	}
	series := domain.Series{Symbol: domain.NormalizeSymbol(symbol), Bars: bars}
	if err := series.Validate(); err != nil {
		return domain.Series{}, fmt.Errorf("loading %s: corrupt series: %w", series.Symbol, err)
	}
	return series, nil
}

// Save replaces the Parquet file for series.Symbol. The file is written to a
// temporary sibling and renamed into place.
func (s *ParquetStore) Save(_ context.Context, series domain.Series) error {
	if err := series.Validate(); err != nil {
		return fmt.Errorf("saving %s: %w", series.Symbol, err)
	}
	path, err := s.seriesPath(series.Symbol)
	if err != nil {
		return err
	}

	records := make([]BarRecord, len(series.Bars))
	for i, b := range series.Bars {
		records[i] = toRecord(b)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeSeriesFile(path, records); err != nil {
		return fmt.Errorf("saving %s: %w", series.Symbol, err)
	}
	return nil
}

// ListSymbols lists every symbol with a series file.
func (s *ParquetStore) ListSymbols(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dailyDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, parquetExt) {
			continue
		}
		symbols = append(symbols, strings.TrimSuffix(name, parquetExt))
	}
	sort.Strings(symbols)
	return symbols, nil
}

// Delete removes the series file for symbol.
func (s *ParquetStore) Delete(_ context.Context, symbol string) error {
	path, err := s.seriesPath(symbol)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("deleting %s: %w", domain.NormalizeSymbol(symbol), domain.ErrNotFound)
		}
		return err
	}
	return nil
}

func (s *ParquetStore) dailyDir() string {
	return filepath.Join(s.DataDir, "daily")
}

// seriesPath returns the file path for a symbol's series.
// Layout: <DataDir>/daily/<SYMBOL>.parquet
func (s *ParquetStore) seriesPath(symbol string) (string, error) {
	sym := domain.NormalizeSymbol(symbol)
	if sym == "" || strings.ContainsAny(sym, `/\`) || sym == "." || sym == ".." {
		return "", fmt.Errorf("invalid symbol %q", symbol)
	}
	return filepath.Join(s.dailyDir(), sym+parquetExt), nil
}

func writeSeriesFile(path string, records []BarRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer os.Remove(tmp) // no-op after a successful rename

	w := parquet.NewGenericWriter[BarRecord](f,
		parquet.KeyValueMetadata(schemaVersionKey, strconv.Itoa(SchemaVersion)),
	)
	if _, err := w.Write(records); err != nil {
		f.Close()
		return fmt.Errorf("writing rows: %w", err)
	}
	if err := w.Close(); err != nil {
		f.Close()
		return fmt.Errorf("closing writer: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readSeriesFile(path string) ([]BarRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("opening parquet: %w", err)
	}
	v, ok := pf.Lookup(schemaVersionKey)
	if !ok || v != strconv.Itoa(SchemaVersion) {
		return nil, fmt.Errorf("%s version %q: %w", filepath.Base(path), v, domain.ErrSchemaVersion)
	}

	rows, err := parquet.Read[BarRecord](f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("reading rows: %w", err)
	}
	return rows, nil
}
