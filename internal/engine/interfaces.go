package engine

import (
	"context"
	"time"

	"tradelab/types"
)

// SignalGenerator turns a price series into one signal per bar. Dates the
// generator has no opinion on carry HOLD.
type SignalGenerator interface {
	Name() string
	GenerateSignals(bars []types.Candle, params types.Params) ([]types.Signal, error)
}

// paramValidator is implemented by generators that can reject params before
// any data is fetched.
type paramValidator interface {
	Validate(params types.Params) error
}

type priceSource interface {
	Fetch(ctx context.Context, symbol string, interval types.Interval, start, end time.Time) ([]types.Candle, error)
}

type runObserver interface {
	BacktestCompleted(strategy string, elapsed time.Duration, trades int)
	SymbolFailed(symbol string)
}

type nopObserver struct{}

func (nopObserver) BacktestCompleted(string, time.Duration, int) {}
func (nopObserver) SymbolFailed(string)                          {}
