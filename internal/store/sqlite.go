package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"barlab/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ SeriesStore = (*SQLiteStore)(nil)

// SQLiteStore implements SeriesStore backed by a SQLite database. All series
// share one file; each symbol's bars are replaced inside a single
// transaction.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// In-memory databases are per-connection; a single connection also
	// serializes writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	switch {
	case version == SchemaVersion:
		return nil
	case version > SchemaVersion:
		return fmt.Errorf("database version %d: %w", version, domain.ErrSchemaVersion)
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS series (
			symbol     TEXT PRIMARY KEY,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS daily_bars (
			symbol    TEXT NOT NULL REFERENCES series(symbol) ON DELETE CASCADE,
			date      TEXT NOT NULL,
			open      REAL NOT NULL,
			high      REAL NOT NULL,
			low       REAL NOT NULL,
			close     REAL NOT NULL,
			volume    REAL NOT NULL,
			adj_close REAL NOT NULL,
			PRIMARY KEY (symbol, date)
		)`,
		fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion),
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:min(len(stmt), 40)], err)
		}
	}
	return nil
}

// Load returns the stored bars for symbol ordered by date ascending.
func (s *SQLiteStore) Load(ctx context.Context, symbol string) (domain.Series, error) {
	sym := domain.NormalizeSymbol(symbol)

	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM series WHERE symbol = ?`, sym).Scan(&exists)
	if err != nil {
		return domain.Series{}, fmt.Errorf("loading %s: %w", sym, err)
	}
	if exists == 0 {
		return domain.Series{}, fmt.Errorf("loading %s: %w", sym, domain.ErrNotFound)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT date, open, high, low, close, volume, adj_close
		FROM daily_bars WHERE symbol = ? ORDER BY date ASC`, sym)
	if err != nil {
		return domain.Series{}, fmt.Errorf("loading %s: %w", sym, err)
	}
	defer rows.Close()

	series := domain.Series{Symbol: sym}
	for rows.Next() {
		var b domain.Bar
		var dateStr string
		if err := rows.Scan(&dateStr, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.AdjClose); err != nil {
			return domain.Series{}, fmt.Errorf("scan bar: %w", err)
		}
		b.Date, err = time.Parse(domain.DateFormat, dateStr)
		if err != nil {
			return domain.Series{}, fmt.Errorf("parse date %q: %w", dateStr, err)
		}
		series.Bars = append(series.Bars, b)
	}
	if err := rows.Err(); err != nil {
		return domain.Series{}, err
	}
	return series, nil
}

// Save replaces every stored bar for series.Symbol in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, series domain.Series) error {
	if err := series.Validate(); err != nil {
		return fmt.Errorf("saving %s: %w", series.Symbol, err)
	}
	sym := domain.NormalizeSymbol(series.Symbol)

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `INSERT INTO series (symbol, updated_at) VALUES (?, ?)
		ON CONFLICT(symbol) DO UPDATE SET updated_at = excluded.updated_at`,
		sym, time.Now().Unix()); err != nil {
		return fmt.Errorf("saving %s: %w", sym, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM daily_bars WHERE symbol = ?`, sym); err != nil {
		return fmt.Errorf("saving %s: %w", sym, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO daily_bars
		(symbol, date, open, high, low, close, volume, adj_close)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, b := range series.Bars {
		if _, err := stmt.ExecContext(ctx, sym, b.Date.Format(domain.DateFormat),
			b.Open, b.High, b.Low, b.Close, b.Volume, b.AdjClose); err != nil {
			return fmt.Errorf("saving %s %s: %w", sym, b.Date.Format(domain.DateFormat), err)
		}
	}
	return tx.Commit()
}

// ListSymbols returns every stored symbol in sorted order.
func (s *SQLiteStore) ListSymbols(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT symbol FROM series ORDER BY symbol ASC`)
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, err
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

// Delete removes symbol and all of its bars.
func (s *SQLiteStore) Delete(ctx context.Context, symbol string) error {
	sym := domain.NormalizeSymbol(symbol)

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM series WHERE symbol = ?`, sym)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", sym, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("deleting %s: %w", sym, domain.ErrNotFound)
	}
	return nil
}
