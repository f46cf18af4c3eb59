// Package history persists daily OHLC price bars in SQLite and serves
// them back as the price series the analytics consume.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/aristath/riskengine/pkg/stoploss"
)

const schema = `
CREATE TABLE IF NOT EXISTS daily_prices (
	symbol TEXT NOT NULL,
	date   TEXT NOT NULL,
	open   REAL NOT NULL,
	high   REAL NOT NULL,
	low    REAL NOT NULL,
	close  REAL NOT NULL,
	PRIMARY KEY (symbol, date)
);
CREATE INDEX IF NOT EXISTS idx_daily_prices_symbol ON daily_prices(symbol);
`

// Bar is one stored daily observation.
type Bar struct {
	Symbol string
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
}

// Store wraps the SQLite connection holding price history.
type Store struct {
	conn *sql.DB
	path string
	log  zerolog.Logger
}

// Open opens (creating if needed) the history database at path and applies
// the schema. WAL mode keeps readers from blocking the writer.
func Open(path string, log zerolog.Logger) (*Store, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve history path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	connStr := absPath +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=temp_store(MEMORY)" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=cache_size(-64000)"

	conn, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(1 * time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping history database: %w", err)
	}

	if _, err := conn.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply history schema: %w", err)
	}

	return &Store{
		conn: conn,
		path: absPath,
		log:  log.With().Str("component", "history").Logger(),
	}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// SaveBars upserts daily bars in one transaction. Re-saving a
// (symbol, date) pair overwrites the previous row.
func (s *Store) SaveBars(ctx context.Context, bars []Bar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO daily_prices (symbol, date, open, high, low, close)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, date) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, bar := range bars {
		if _, err := stmt.ExecContext(ctx,
			bar.Symbol,
			bar.Date.Format("2006-01-02"),
			bar.Open, bar.High, bar.Low, bar.Close,
		); err != nil {
			return fmt.Errorf("failed to save bar %s %s: %w", bar.Symbol, bar.Date.Format("2006-01-02"), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit bars: %w", err)
	}

	s.log.Debug().Int("bars", len(bars)).Msg("Saved daily bars")
	return nil
}

// Closes returns the closing prices for symbol in ascending date order,
// limited to the most recent limit rows when limit > 0.
func (s *Store) Closes(ctx context.Context, symbol string, limit int) ([]float64, error) {
	query := `SELECT close FROM daily_prices WHERE symbol = ? ORDER BY date ASC`
	args := []interface{}{symbol}
	if limit > 0 {
		query = `SELECT close FROM (
			SELECT date, close FROM daily_prices WHERE symbol = ? ORDER BY date DESC LIMIT ?
		) ORDER BY date ASC`
		args = append(args, limit)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query closes for %s: %w", symbol, err)
	}
	defer rows.Close()

	var closes []float64
	for rows.Next() {
		var c float64
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan close for %s: %w", symbol, err)
		}
		closes = append(closes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate closes for %s: %w", symbol, err)
	}
	return closes, nil
}

// OHLCBars returns the symbol's bars in ascending date order as the OHLC
// form the stop-loss calculators take.
func (s *Store) OHLCBars(ctx context.Context, symbol string, limit int) ([]stoploss.Bar, error) {
	query := `SELECT high, low, close FROM daily_prices WHERE symbol = ? ORDER BY date ASC`
	args := []interface{}{symbol}
	if limit > 0 {
		query = `SELECT high, low, close FROM (
			SELECT date, high, low, close FROM daily_prices WHERE symbol = ? ORDER BY date DESC LIMIT ?
		) ORDER BY date ASC`
		args = append(args, limit)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars for %s: %w", symbol, err)
	}
	defer rows.Close()

	var bars []stoploss.Bar
	for rows.Next() {
		var b stoploss.Bar
		if err := rows.Scan(&b.High, &b.Low, &b.Close); err != nil {
			return nil, fmt.Errorf("failed to scan bar for %s: %w", symbol, err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bars for %s: %w", symbol, err)
	}
	return bars, nil
}

// Symbols lists the distinct symbols with stored history.
func (s *Store) Symbols(ctx context.Context) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT DISTINCT symbol FROM daily_prices ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, sym)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate symbols: %w", err)
	}
	return symbols, nil
}

// BarCount returns the number of stored bars for symbol.
func (s *Store) BarCount(ctx context.Context, symbol string) (int, error) {
	var count int
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM daily_prices WHERE symbol = ?`, symbol,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count bars for %s: %w", symbol, err)
	}
	return count, nil
}
