package feed

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"tradelab/internal/util"
	"tradelab/types"
)

var _ Provider = (*Retrying)(nil)

// Retrying retries a flaky upstream with exponential backoff. Context
// cancellation ends the loop immediately.
type Retrying struct {
	next      Provider
	source    string
	attempts  int
	baseDelay time.Duration
	observer  fetchObserver
	log       *slog.Logger
}

// NewRetrying wraps next. source labels failures in logs and metrics.
// observer may be nil.
func NewRetrying(next Provider, source string, attempts int, baseDelay time.Duration, observer fetchObserver, logger *slog.Logger) *Retrying {
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrying{
		next:      next,
		source:    source,
		attempts:  attempts,
		baseDelay: baseDelay,
		observer:  observer,
		log:       logger.With("component", "retry", "source", source),
	}
}

func (r *Retrying) Fetch(ctx context.Context, symbol string, interval types.Interval, start, end time.Time) ([]types.Candle, error) {
	var bars []types.Candle
	attempt := 0
	err := util.Retry(ctx, r.attempts, r.baseDelay, func() error {
		attempt++
		var err error
		bars, err = r.next.Fetch(ctx, symbol, interval, start, end)
		if err == nil {
			return nil
		}
		r.observer.FetchFailed(r.source)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return util.Permanent(err)
		}
		r.log.Warn("fetch failed", "symbol", symbol, "attempt", attempt, "error", err)
		return err
	})
	if err != nil {
		return nil, err
	}
	return bars, nil
}
