package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tradelab/internal/feed"
	"tradelab/types"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Global error declarations.
var (
	ErrIntervalNotSupported = errors.New("timeframe not supported")
	ErrAssetNotFound        = errors.New("not found in datasource")
	ErrNoCandles            = errors.New("no candles found in datasource")
)

var _ feed.Provider = (*Database)(nil)

type assetsRepository interface {
	GetAssetByTicker(ctx context.Context, ticker string) (assetRow, error)
}
type candlesRepository interface {
	GetAggregates(ctx context.Context, arg aggregatesParams) ([]aggregateRow, error)
}

// Database struct that holds the database connection and queries.
type Database struct {
	assets  assetsRepository
	candles candlesRepository
	conn    *pgxpool.Pool
}

// NewDatabase creates a new Database instance and verifies connectivity.
func NewDatabase(ctx context.Context, dbURL string) (*Database, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// Register shopspring decimal
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	conn, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	// Ensure the connection is established.
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	q := &queries{db: conn}
	return &Database{
		assets:  q,
		candles: q,
		conn:    conn}, nil
}

func (db *Database) Close() {
	if db.conn != nil {
		db.conn.Close()
	}
}

// Fetch resolves symbol to an asset and loads its bars bucketed to interval.
// Every failure wraps feed.ErrDataUnavailable.
func (db *Database) Fetch(ctx context.Context, symbol string, interval types.Interval, start, end time.Time) ([]types.Candle, error) {
	ticker := strings.ToUpper(strings.TrimSpace(symbol))
	asset, err := db.GetAssetByTicker(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", feed.ErrDataUnavailable, err)
	}
	candles, err := db.GetAggregates(ctx, asset.Id, asset.Ticker, interval, start, end)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", feed.ErrDataUnavailable, ticker, err)
	}
	return candles, nil
}
