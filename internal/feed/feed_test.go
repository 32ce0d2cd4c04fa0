package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tradelab/types"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	day0    = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	discard = slog.New(slog.NewTextHandler(io.Discard, nil))
)

// stubProvider serves fixed bars and counts upstream calls.
type stubProvider struct {
	bars  map[string][]types.Candle
	err   error
	calls atomic.Int32
	delay time.Duration
}

func (s *stubProvider) Fetch(ctx context.Context, symbol string, _ types.Interval, _, _ time.Time) ([]types.Candle, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.delay):
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	bars, ok := s.bars[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDataUnavailable, symbol)
	}
	return bars, nil
}

type countingObserver struct {
	mu     sync.Mutex
	hits   map[string]int
	misses map[string]int
	fails  int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{hits: map[string]int{}, misses: map[string]int{}}
}

func (o *countingObserver) CacheHit(layer string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hits[layer]++
}

func (o *countingObserver) CacheMiss(layer string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.misses[layer]++
}

func (o *countingObserver) FetchFailed(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fails++
}

func candles(symbol string, closes ...string) []types.Candle {
	out := make([]types.Candle, len(closes))
	for i, c := range closes {
		price := decimal.RequireFromString(c)
		out[i] = types.Candle{
			Ticker:    symbol,
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
			Volume:    decimal.NewFromInt(1_000_000),
			Interval:  types.Day,
			Timestamp: day0.AddDate(0, 0, i),
		}
	}
	return out
}

func assertSameBars(t *testing.T, want, got []types.Candle) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Ticker, got[i].Ticker)
		assert.True(t, want[i].Timestamp.Equal(got[i].Timestamp), "bar %d time %v != %v", i, got[i].Timestamp, want[i].Timestamp)
		assert.True(t, want[i].Close.Equal(got[i].Close), "bar %d close %s != %s", i, got[i].Close, want[i].Close)
		assert.True(t, want[i].Volume.Equal(got[i].Volume), "bar %d volume %s != %s", i, got[i].Volume, want[i].Volume)
	}
}

// ---------------------------------------------------------------------------
// Cache
// ---------------------------------------------------------------------------

func TestCache_HitAfterMiss(t *testing.T) {
	upstream := &stubProvider{bars: map[string][]types.Candle{"AAPL": candles("AAPL", "100", "101.5")}}
	obs := newCountingObserver()
	c := NewCache(upstream, obs, discard)
	ctx := context.Background()

	first, err := c.Fetch(ctx, "aapl", types.Day, day0, day0.AddDate(0, 0, 1))
	require.NoError(t, err)
	second, err := c.Fetch(ctx, "AAPL", "", day0, day0.AddDate(0, 0, 1))
	require.NoError(t, err)

	assert.Equal(t, int32(1), upstream.calls.Load())
	assert.Equal(t, 1, obs.misses["memory"])
	assert.Equal(t, 1, obs.hits["memory"])
	assertSameBars(t, first, second)

	first[0].Close = decimal.NewFromInt(-1)
	third, err := c.Fetch(ctx, "AAPL", types.Day, day0, day0.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.True(t, third[0].Close.Equal(decimal.NewFromInt(100)), "callers get their own copy")
}

func TestCache_DistinctKeys(t *testing.T) {
	upstream := &stubProvider{bars: map[string][]types.Candle{"AAPL": candles("AAPL", "1")}}
	c := NewCache(upstream, nil, discard)
	ctx := context.Background()

	_, err := c.Fetch(ctx, "AAPL", types.Day, day0, day0)
	require.NoError(t, err)
	_, err = c.Fetch(ctx, "AAPL", types.Day, day0, day0.AddDate(0, 0, 5))
	require.NoError(t, err)
	_, err = c.Fetch(ctx, "AAPL", types.Week, day0, day0)
	require.NoError(t, err)

	assert.Equal(t, int32(3), upstream.calls.Load())
	assert.Equal(t, 3, c.Len())
}

func TestCache_ConcurrentMissesShareOneFetch(t *testing.T) {
	upstream := &stubProvider{
		bars:  map[string][]types.Candle{"MSFT": candles("MSFT", "300", "301")},
		delay: 50 * time.Millisecond,
	}
	c := NewCache(upstream, nil, discard)

	var wg sync.WaitGroup
	results := make([][]types.Candle, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			bars, err := c.Fetch(context.Background(), "MSFT", types.Day, day0, day0.AddDate(0, 0, 1))
			assert.NoError(t, err)
			results[i] = bars
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), upstream.calls.Load())
	for _, r := range results {
		assert.Len(t, r, 2)
	}
}

func TestCache_ErrorsAreNotCached(t *testing.T) {
	upstream := &stubProvider{err: fmt.Errorf("%w: timeout", ErrDataUnavailable)}
	c := NewCache(upstream, nil, discard)

	_, err := c.Fetch(context.Background(), "AAPL", types.Day, day0, day0)
	require.ErrorIs(t, err, ErrDataUnavailable)

	upstream.err = nil
	upstream.bars = map[string][]types.Candle{"AAPL": candles("AAPL", "5")}
	bars, err := c.Fetch(context.Background(), "AAPL", types.Day, day0, day0)
	require.NoError(t, err)
	assert.Len(t, bars, 1)
	assert.Equal(t, int32(2), upstream.calls.Load())
}

// ---------------------------------------------------------------------------
// DiskCache
// ---------------------------------------------------------------------------

func TestDiskCache_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	want := candles("SPY", "470.12", "471.005", "468.3")
	upstream := &stubProvider{bars: map[string][]types.Candle{"SPY": want}}
	obs := newCountingObserver()
	end := day0.AddDate(0, 0, 2)

	d := NewDiskCache(dir, upstream, obs, discard)
	got, err := d.Fetch(context.Background(), "spy", types.Day, day0, end)
	require.NoError(t, err)
	assertSameBars(t, want, got)

	path := filepath.Join(dir, "SPY", "D_20240102_20240104.parquet")
	_, err = os.Stat(path)
	require.NoError(t, err, "series written under the symbol directory")

	entries, err := os.ReadDir(filepath.Join(dir, "SPY"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")

	// A fresh cache over a failing upstream is served from disk.
	cold := NewDiskCache(dir, &stubProvider{err: errors.New("offline")}, obs, discard)
	again, err := cold.Fetch(context.Background(), "SPY", types.Day, day0, end)
	require.NoError(t, err)
	assertSameBars(t, want, again)
	assert.Equal(t, 1, obs.misses["disk"])
	assert.Equal(t, 1, obs.hits["disk"])
	assert.Equal(t, int32(1), upstream.calls.Load())
}

func TestDiskCache_CorruptFileIsRefetched(t *testing.T) {
	dir := t.TempDir()
	upstream := &stubProvider{bars: map[string][]types.Candle{"QQQ": candles("QQQ", "400")}}
	d := NewDiskCache(dir, upstream, nil, discard)

	path := d.path("QQQ", types.Day, day0, day0)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("not parquet"), 0o644))

	bars, err := d.Fetch(context.Background(), "QQQ", types.Day, day0, day0)
	require.NoError(t, err)
	assert.Len(t, bars, 1)
	assert.Equal(t, int32(1), upstream.calls.Load())
}

func TestDiskCache_UpstreamError(t *testing.T) {
	d := NewDiskCache(t.TempDir(), &stubProvider{}, nil, discard)
	_, err := d.Fetch(context.Background(), "NOPE", types.Day, day0, day0)
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

// ---------------------------------------------------------------------------
// SQLiteStore
// ---------------------------------------------------------------------------

func TestSQLiteStore_WriteAndFetch(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "bars.db"))
	require.NoError(t, err)
	defer store.Close()

	aapl := candles("AAPL", "185.64", "184.25", "181.91", "181.18")
	// Exchange-stamped bars still match whole-day ranges.
	for i := range aapl {
		aapl[i].Timestamp = aapl[i].Timestamp.Add(5 * time.Hour)
	}
	require.NoError(t, store.WriteBars(ctx, aapl))
	require.NoError(t, store.WriteBars(ctx, candles("msft", "370.87")))

	got, err := store.Fetch(ctx, "aapl", types.Day, day0.AddDate(0, 0, 1), day0.AddDate(0, 0, 2))
	require.NoError(t, err)
	assertSameBars(t, aapl[1:3], got)
	assert.Equal(t, types.Day, got[0].Interval)

	// Rewriting a bar replaces it.
	fixed := aapl[1]
	fixed.Close = decimal.RequireFromString("184.30")
	require.NoError(t, store.WriteBars(ctx, []types.Candle{fixed}))
	got, err = store.Fetch(ctx, "AAPL", types.Day, day0.AddDate(0, 0, 1), day0.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Close.Equal(decimal.RequireFromString("184.3")))

	symbols, err := store.Symbols(ctx, types.Day)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, symbols)

	_, err = store.Fetch(ctx, "TSLA", types.Day, day0, day0.AddDate(0, 0, 3))
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

// ---------------------------------------------------------------------------
// Retrying
// ---------------------------------------------------------------------------

type flakyProvider struct {
	failures int
	calls    int
	bars     []types.Candle
}

func (f *flakyProvider) Fetch(context.Context, string, types.Interval, time.Time, time.Time) ([]types.Candle, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, fmt.Errorf("%w: 503", ErrDataUnavailable)
	}
	return f.bars, nil
}

func TestRetrying(t *testing.T) {
	obs := newCountingObserver()
	flaky := &flakyProvider{failures: 2, bars: candles("AAPL", "1")}
	r := NewRetrying(flaky, "alpaca", 3, time.Millisecond, obs, discard)

	bars, err := r.Fetch(context.Background(), "AAPL", types.Day, day0, day0)
	require.NoError(t, err)
	assert.Len(t, bars, 1)
	assert.Equal(t, 3, flaky.calls)
	assert.Equal(t, 2, obs.fails)

	down := &flakyProvider{failures: 10}
	_, err = NewRetrying(down, "alpaca", 2, time.Millisecond, nil, discard).Fetch(context.Background(), "AAPL", types.Day, day0, day0)
	assert.ErrorIs(t, err, ErrDataUnavailable)
	assert.Equal(t, 2, down.calls)
}

func TestRetrying_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	upstream := &stubProvider{delay: time.Second}
	_, err := NewRetrying(upstream, "db", 5, time.Millisecond, nil, discard).Fetch(ctx, "AAPL", types.Day, day0, day0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), upstream.calls.Load())
}

// ---------------------------------------------------------------------------
// AlpacaProvider
// ---------------------------------------------------------------------------

type fakeBarsClient struct {
	bars []marketdata.Bar
	err  error
	req  marketdata.GetBarsRequest
}

func (f *fakeBarsClient) GetBars(_ string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error) {
	f.req = req
	return f.bars, f.err
}

func TestAlpacaProvider_Fetch(t *testing.T) {
	ny := time.FixedZone("EST", -5*3600)
	client := &fakeBarsClient{bars: []marketdata.Bar{
		{Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, ny), Open: 187.15, High: 188.44, Low: 183.89, Close: 185.64, Volume: 82488700},
		{Timestamp: time.Date(2024, 1, 3, 0, 0, 0, 0, ny), Open: 184.22, High: 185.88, Low: 183.43, Close: 184.25, Volume: 58414500},
		{Timestamp: time.Date(2024, 1, 4, 0, 0, 0, 0, ny), Open: 182.15, High: 183.09, Low: 180.88, Close: 181.91, Volume: 71983600},
	}}
	p := &AlpacaProvider{client: client, feed: "iex", log: discard}

	bars, err := p.Fetch(context.Background(), "aapl", types.Day, day0, day0.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, bars, 2, "bars past the end date are dropped")
	assert.Equal(t, day0, bars[0].Timestamp)
	assert.Equal(t, "AAPL", bars[0].Ticker)
	assert.True(t, bars[0].Close.Equal(decimal.RequireFromString("185.64")))
	assert.True(t, bars[1].Volume.Equal(decimal.NewFromInt(58414500)))

	assert.Equal(t, marketdata.OneDay, client.req.TimeFrame)
	assert.Equal(t, marketdata.All, client.req.Adjustment)
	assert.Equal(t, marketdata.Feed("iex"), client.req.Feed)
	assert.Equal(t, day0.AddDate(0, 0, 2), client.req.End)
}

func TestAlpacaProvider_FetchIntraday(t *testing.T) {
	open := day0.Add(14*time.Hour + 30*time.Minute)
	client := &fakeBarsClient{bars: []marketdata.Bar{
		{Timestamp: open, Open: 185, High: 186, Low: 184, Close: 185.5, Volume: 120000},
		{Timestamp: open.Add(15 * time.Minute), Open: 185.5, High: 187, Low: 185, Close: 186.2, Volume: 90000},
	}}
	p := &AlpacaProvider{client: client, feed: "iex", log: discard}

	bars, err := p.Fetch(context.Background(), "AAPL", types.FifteenMinutes, open, open)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, open, bars[0].Timestamp)
	assert.Equal(t, types.FifteenMinutes, bars[0].Interval)
	assert.Equal(t, open.Add(15*time.Minute), client.req.End, "request covers the bar opening at end")
}

func TestAlpacaProvider_Errors(t *testing.T) {
	p := &AlpacaProvider{client: &fakeBarsClient{err: errors.New("403 forbidden")}, feed: "sip", log: discard}
	_, err := p.Fetch(context.Background(), "AAPL", types.Day, day0, day0)
	assert.ErrorIs(t, err, ErrDataUnavailable)

	p = &AlpacaProvider{client: &fakeBarsClient{}, feed: "sip", log: discard}
	_, err = p.Fetch(context.Background(), "AAPL", types.Day, day0, day0)
	assert.ErrorIs(t, err, ErrDataUnavailable, "empty response")

	_, err = p.Fetch(context.Background(), "AAPL", types.Interval("7"), day0, day0)
	assert.ErrorIs(t, err, ErrDataUnavailable)
}
