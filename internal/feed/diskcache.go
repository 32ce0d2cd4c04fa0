package feed

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"tradelab/types"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"
)

var _ Provider = (*DiskCache)(nil)

// DiskCache keeps fetched series as parquet files under one directory:
//
//	<Dir>/<SYMBOL>/<interval>_<start>_<end>.parquet
//
// Files are written to a temp name and renamed into place.
type DiskCache struct {
	Dir      string
	next     Provider
	observer fetchObserver
	log      *slog.Logger
}

// NewDiskCache wraps next with a parquet cache rooted at dir. observer may be nil.
func NewDiskCache(dir string, next Provider, observer fetchObserver, logger *slog.Logger) *DiskCache {
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DiskCache{
		Dir:      dir,
		next:     next,
		observer: observer,
		log:      logger.With("component", "diskcache"),
	}
}

// barRecord is the on-disk schema. Prices are decimal strings so a cached
// series reads back exactly as fetched.
type barRecord struct {
	Symbol    string `parquet:"symbol"`
	Timestamp int64  `parquet:"timestamp,timestamp(millisecond)"`
	Interval  string `parquet:"interval"`
	AssetID   int64  `parquet:"asset_id"`
	Open      string `parquet:"open"`
	High      string `parquet:"high"`
	Low       string `parquet:"low"`
	Close     string `parquet:"close"`
	Volume    string `parquet:"volume"`
}

func (d *DiskCache) path(symbol string, interval types.Interval, start, end time.Time) string {
	name := fmt.Sprintf("%s_%s_%s.parquet", interval, start.UTC().Format("20060102"), end.UTC().Format("20060102"))
	return filepath.Join(d.Dir, symbol, name)
}

func (d *DiskCache) Fetch(ctx context.Context, symbol string, interval types.Interval, start, end time.Time) ([]types.Candle, error) {
	symbol = normalizeSymbol(symbol)
	interval = normalizeInterval(interval)
	path := d.path(symbol, interval, start, end)

	records, err := parquet.ReadFile[barRecord](path)
	switch {
	case err == nil:
		bars, convErr := fromRecords(records)
		if convErr == nil {
			d.observer.CacheHit("disk")
			return bars, nil
		}
		d.log.Warn("discarding unreadable cache file", "path", path, "error", convErr)
	case !errors.Is(err, fs.ErrNotExist):
		d.log.Warn("discarding unreadable cache file", "path", path, "error", err)
	}

	d.observer.CacheMiss("disk")
	bars, err := d.next.Fetch(ctx, symbol, interval, start, end)
	if err != nil {
		return nil, err
	}
	if err := d.write(path, bars); err != nil {
		d.log.Warn("writing cache file", "path", path, "error", err)
	}
	return bars, nil
}

func (d *DiskCache) write(path string, bars []types.Candle) error {
	if len(bars) == 0 {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".*.parquet.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := parquet.Write(tmp, toRecords(bars)); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func toRecords(bars []types.Candle) []barRecord {
	records := make([]barRecord, len(bars))
	for i, b := range bars {
		records[i] = barRecord{
			Symbol:    b.Ticker,
			Timestamp: b.Timestamp.UnixMilli(),
			Interval:  string(b.Interval),
			AssetID:   int64(b.AssetId),
			Open:      b.Open.String(),
			High:      b.High.String(),
			Low:       b.Low.String(),
			Close:     b.Close.String(),
			Volume:    b.Volume.String(),
		}
	}
	return records
}

func fromRecords(records []barRecord) ([]types.Candle, error) {
	bars := make([]types.Candle, len(records))
	for i, r := range records {
		var prices [5]decimal.Decimal
		for j, s := range []string{r.Open, r.High, r.Low, r.Close, r.Volume} {
			v, err := decimal.NewFromString(s)
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", i, err)
			}
			prices[j] = v
		}
		bars[i] = types.Candle{
			AssetId:   int(r.AssetID),
			Ticker:    r.Symbol,
			Open:      prices[0],
			High:      prices[1],
			Low:       prices[2],
			Close:     prices[3],
			Volume:    prices[4],
			Interval:  types.Interval(r.Interval),
			Timestamp: time.UnixMilli(r.Timestamp).UTC(),
		}
	}
	return bars, nil
}
