package feed

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tradelab/types"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

var _ Provider = (*SQLiteStore)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS bars (
	symbol    TEXT    NOT NULL,
	timeframe TEXT    NOT NULL,
	ts        INTEGER NOT NULL,
	open      TEXT    NOT NULL,
	high      TEXT    NOT NULL,
	low       TEXT    NOT NULL,
	close     TEXT    NOT NULL,
	volume    TEXT    NOT NULL,
	PRIMARY KEY (symbol, timeframe, ts)
)`

// SQLiteStore serves bars from a local SQLite file. Timestamps are stored as
// Unix milliseconds and prices as decimal strings.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures
// the bars table exists.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create bars table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// Import
// ---------------------------------------------------------------------------

// WriteBars upserts bars keyed by (symbol, interval, timestamp).
func (s *SQLiteStore) WriteBars(ctx context.Context, bars []types.Candle) error {
	if len(bars) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT OR REPLACE INTO bars (symbol, timeframe, ts, open, high, low, close, volume)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, b := range bars {
		_, err := stmt.ExecContext(ctx,
			normalizeSymbol(b.Ticker), string(normalizeInterval(b.Interval)), b.Timestamp.UnixMilli(),
			b.Open.String(), b.High.String(), b.Low.String(), b.Close.String(), b.Volume.String(),
		)
		if err != nil {
			return fmt.Errorf("insert %s %s: %w", b.Ticker, b.Timestamp.Format(time.DateOnly), err)
		}
	}
	return tx.Commit()
}

// Symbols lists the distinct symbols stored for interval.
func (s *SQLiteStore) Symbols(ctx context.Context, interval types.Interval) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM bars WHERE timeframe = ? ORDER BY symbol`, string(normalizeInterval(interval)))
	if err != nil {
		return nil, err
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

// ---------------------------------------------------------------------------
// Provider
// ---------------------------------------------------------------------------

func (s *SQLiteStore) Fetch(ctx context.Context, symbol string, interval types.Interval, start, end time.Time) ([]types.Candle, error) {
	symbol = normalizeSymbol(symbol)
	interval = normalizeInterval(interval)
	from, to := start, end
	if interval.Daily() {
		from, to = types.DateKey(start), types.DateKey(end).AddDate(0, 0, 1).Add(-time.Millisecond)
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT ts, open, high, low, close, volume
FROM bars
WHERE symbol = ? AND timeframe = ? AND ts >= ? AND ts <= ?
ORDER BY ts`, symbol, string(interval), from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDataUnavailable, symbol, err)
	}
	defer rows.Close()

	var bars []types.Candle
	for rows.Next() {
		var (
			ts                               int64
			open, high, low, closePx, volume string
		)
		if err := rows.Scan(&ts, &open, &high, &low, &closePx, &volume); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrDataUnavailable, symbol, err)
		}
		c := types.Candle{Ticker: symbol, Interval: interval, Timestamp: time.UnixMilli(ts).UTC()}
		for _, f := range []struct {
			dst *decimal.Decimal
			src string
		}{{&c.Open, open}, {&c.High, high}, {&c.Low, low}, {&c.Close, closePx}, {&c.Volume, volume}} {
			if *f.dst, err = decimal.NewFromString(f.src); err != nil {
				return nil, fmt.Errorf("%w: %s bar at %d: %w", ErrDataUnavailable, symbol, ts, err)
			}
		}
		bars = append(bars, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDataUnavailable, symbol, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: no %s bars for %s between %s and %s", ErrDataUnavailable, interval, symbol,
			start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	return bars, nil
}
