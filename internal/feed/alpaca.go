package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tradelab/types"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
)

var _ Provider = (*AlpacaProvider)(nil)

type barsClient interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

var intervalToTimeFrame = map[types.Interval]marketdata.TimeFrame{
	types.OneMinute:      marketdata.OneMin,
	types.ThreeMinutes:   marketdata.NewTimeFrame(3, marketdata.Min),
	types.FiveMinutes:    marketdata.NewTimeFrame(5, marketdata.Min),
	types.FifteenMinutes: marketdata.NewTimeFrame(15, marketdata.Min),
	types.ThirtyMinutes:  marketdata.NewTimeFrame(30, marketdata.Min),
	types.Hour:           marketdata.OneHour,
	types.TwoHours:       marketdata.NewTimeFrame(2, marketdata.Hour),
	types.FourHours:      marketdata.NewTimeFrame(4, marketdata.Hour),
	types.Day:            marketdata.OneDay,
	types.Week:           marketdata.NewTimeFrame(1, marketdata.Week),
	types.Month:          marketdata.NewTimeFrame(1, marketdata.Month),
}

// AlpacaProvider loads split and dividend adjusted bars from the Alpaca
// market-data API. Daily, weekly and monthly bars are keyed by UTC date.
type AlpacaProvider struct {
	client barsClient
	feed   marketdata.Feed
	log    *slog.Logger
}

// NewAlpacaProvider creates a provider with the given Alpaca credentials.
// An empty dataURL uses the public endpoint and an empty feed uses "sip".
func NewAlpacaProvider(apiKey, apiSecret, dataURL, feed string) *AlpacaProvider {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	if feed == "" {
		feed = "sip"
	}
	return &AlpacaProvider{
		client: marketdata.NewClient(opts),
		feed:   marketdata.Feed(feed),
		log:    slog.Default().With("component", "alpaca"),
	}
}

func (a *AlpacaProvider) Fetch(ctx context.Context, symbol string, interval types.Interval, start, end time.Time) ([]types.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	symbol = normalizeSymbol(symbol)
	interval = normalizeInterval(interval)
	tf, ok := intervalToTimeFrame[interval]
	if !ok {
		return nil, fmt.Errorf("%w: interval %q not supported by alpaca", ErrDataUnavailable, interval)
	}

	// End is widened by one bar so the bar opening at end is returned.
	reqEnd := end.Add(interval.Duration())
	if interval.Daily() {
		reqEnd = types.DateKey(end).AddDate(0, 0, 1)
	}
	started := time.Now()
	alpacaBars, err := a.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame:  tf,
		Start:      start,
		End:        reqEnd,
		Feed:       a.feed,
		Adjustment: marketdata.All,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: GetBars %s: %w", ErrDataUnavailable, symbol, err)
	}

	bars := make([]types.Candle, 0, len(alpacaBars))
	for _, ab := range alpacaBars {
		ts := ab.Timestamp.UTC()
		if interval.Daily() {
			ts = types.DateKey(ts)
		}
		bars = append(bars, types.Candle{
			Ticker:    symbol,
			Open:      decimal.NewFromFloat(ab.Open),
			High:      decimal.NewFromFloat(ab.High),
			Low:       decimal.NewFromFloat(ab.Low),
			Close:     decimal.NewFromFloat(ab.Close),
			Volume:    decimal.NewFromInt(int64(ab.Volume)),
			Interval:  interval,
			Timestamp: ts,
		})
	}
	bars = inRange(bars, interval, start, end)
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: alpaca returned no bars for %s", ErrDataUnavailable, symbol)
	}
	a.log.Debug("fetched bars", "symbol", symbol, "bars", len(bars), "elapsed", time.Since(started).Round(time.Millisecond))
	return bars, nil
}
