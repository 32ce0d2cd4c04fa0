// Package feed supplies daily price series to the engine. Providers can be
// layered: an in-memory Cache over a parquet DiskCache over a Retrying
// network or database source.
package feed

import (
	"context"
	"errors"
	"strings"
	"time"

	"tradelab/types"
)

// ErrDataUnavailable is returned when a provider cannot produce bars for a
// request: network failure, unknown symbol or an empty range.
var ErrDataUnavailable = errors.New("price data unavailable")

// Provider returns the bars of symbol between start and end inclusive,
// ascending by timestamp.
type Provider interface {
	Fetch(ctx context.Context, symbol string, interval types.Interval, start, end time.Time) ([]types.Candle, error)
}

// fetchObserver receives cache and upstream events. The Prometheus metrics
// in internal/observability implement it.
type fetchObserver interface {
	CacheHit(layer string)
	CacheMiss(layer string)
	FetchFailed(source string)
}

type nopObserver struct{}

func (nopObserver) CacheHit(string)    {}
func (nopObserver) CacheMiss(string)   {}
func (nopObserver) FetchFailed(string) {}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func normalizeInterval(interval types.Interval) types.Interval {
	if interval == "" {
		return types.Day
	}
	return interval
}

// inRange keeps candles inside [start, end]. Daily intervals compare dates.
func inRange(candles []types.Candle, interval types.Interval, start, end time.Time) []types.Candle {
	if interval.Daily() {
		start, end = types.DateKey(start), types.DateKey(end)
	}
	out := candles[:0]
	for _, c := range candles {
		ts := c.Timestamp
		if interval.Daily() {
			ts = types.DateKey(ts)
		}
		if ts.Before(start) || ts.After(end) {
			continue
		}
		out = append(out, c)
	}
	return out
}
