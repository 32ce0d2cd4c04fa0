package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is one OHLCV bar. A series handed to the engine is ordered by
// Timestamp with at most one bar per date.
type Candle struct {
	AssetId   int             `json:"id"`
	Ticker    string          `json:"ticker"`
	Open      decimal.Decimal `json:"open"`
	Close     decimal.Decimal `json:"close"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Volume    decimal.Decimal `json:"volume"`
	Interval  Interval        `json:"interval"`
	Timestamp time.Time       `json:"timestamp"`
}

// DateKey truncates a timestamp to its UTC calendar date. Bars, signals and
// equity points are matched on this key.
func DateKey(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Closes returns the close prices of candles as float64 for indicator math.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close.InexactFloat64()
	}
	return out
}

// Volumes returns the volumes of candles as float64.
func Volumes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume.InexactFloat64()
	}
	return out
}
