package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tradelab/types"

	"github.com/shopspring/decimal"
)

// Engine fetches price data and runs strategies over it.
type Engine struct {
	source   priceSource
	config   *PortfolioConfig
	observer runObserver
	log      *slog.Logger

	// OnSymbolDone, when set, is called once per portfolio leg as it
	// finishes. It may be called from several goroutines at once.
	OnSymbolDone func(symbol string, err error)
}

// NewEngine wires a price source and account settings. observer may be nil.
func NewEngine(source priceSource, config *PortfolioConfig, observer runObserver, logger *slog.Logger) *Engine {
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		source:   source,
		config:   config,
		observer: observer,
		log:      logger.With("component", "engine"),
	}
}

// BacktestRequest describes a single-asset run.
type BacktestRequest struct {
	Feed           DataFeed
	Strategy       SignalGenerator
	Params         types.Params
	InitialCapital decimal.Decimal
	FeeRate        decimal.Decimal
}

// NewBacktestRequest fills capital and fees from the engine config.
func (e *Engine) NewBacktestRequest(feed DataFeed, strat SignalGenerator, params types.Params) BacktestRequest {
	return BacktestRequest{
		Feed:           feed,
		Strategy:       strat,
		Params:         params,
		InitialCapital: e.config.InitialCash(),
		FeeRate:        e.config.FeeRate(),
	}
}

// Backtest loads the feed, derives signals and simulates them.
func (e *Engine) Backtest(ctx context.Context, req BacktestRequest) (*Result, error) {
	if req.Strategy == nil {
		return nil, invalidf("no strategy")
	}
	if strings.TrimSpace(req.Feed.Ticker) == "" {
		return nil, invalidf("empty symbol")
	}
	if err := validateAccount(req.InitialCapital, req.FeeRate); err != nil {
		return nil, err
	}
	if err := validateParams(req.Strategy, req.Params); err != nil {
		return nil, err
	}
	return e.backtest(ctx, req)
}

func (e *Engine) backtest(ctx context.Context, req BacktestRequest) (*Result, error) {
	started := time.Now()

	bars, err := e.loadData(ctx, req.Feed)
	if err != nil {
		return nil, err
	}
	signals, err := req.Strategy.GenerateSignals(bars, req.Params)
	if err != nil {
		return nil, fmt.Errorf("%s signals for %s: %w", req.Strategy.Name(), req.Feed.Ticker, err)
	}
	res, err := Run(bars, signals, req.InitialCapital, req.FeeRate)
	if err != nil {
		return nil, fmt.Errorf("backtest %s: %w", req.Feed.Ticker, err)
	}
	res.Strategy = req.Strategy.Name()

	e.observer.BacktestCompleted(res.Strategy, time.Since(started), len(res.Trades))
	e.log.Debug("backtest finished",
		"ticker", req.Feed.Ticker,
		"strategy", res.Strategy,
		"bars", len(bars),
		"trades", len(res.Trades),
		"final_equity", res.FinalEquity().StringFixed(2),
	)
	return res, nil
}

func (e *Engine) loadData(ctx context.Context, feed DataFeed) ([]types.Candle, error) {
	interval := feed.Interval
	if interval == "" {
		interval = types.Day
	}
	candles, err := e.source.Fetch(ctx, feed.Ticker, interval, feed.Start, feed.End)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", feed.Ticker, err)
	}
	return candles, nil
}

func validateParams(strat SignalGenerator, params types.Params) error {
	v, ok := strat.(paramValidator)
	if !ok {
		return nil
	}
	if err := v.Validate(params); err != nil {
		return fmt.Errorf("%s params: %w", strat.Name(), err)
	}
	return nil
}
