package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"tradelab/internal/config"
	"tradelab/internal/engine"
	"tradelab/internal/feed"
	"tradelab/internal/observability"
	"tradelab/internal/repository"
	"tradelab/internal/util"
	"tradelab/strategies"
	"tradelab/types"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/schollz/progressbar/v3"
	"github.com/shopspring/decimal"
)

type flags struct {
	configPath string
	symbols    string
	strategy   string
	start      string
	end        string
	capital    float64
	fee        float64
	source     string
	outDir     string
	trades     bool
	list       bool
	importTo   string
	params     paramFlag
}

// paramFlag collects repeated -param name=value pairs.
type paramFlag types.Params

func (p *paramFlag) String() string { return types.Params(*p).String() }

func (p *paramFlag) Set(s string) error {
	name, raw, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(name) == "" {
		return fmt.Errorf("want name=value, got %q", s)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("param %s: %w", name, err)
	}
	if *p == nil {
		*p = paramFlag{}
	}
	(*p)[strings.TrimSpace(name)] = v
	return nil
}

func main() {
	var f flags
	flag.StringVar(&f.configPath, "config", "", "path to a YAML config file")
	flag.StringVar(&f.symbols, "symbols", "", "comma-separated tickers; more than one runs a portfolio")
	flag.StringVar(&f.strategy, "strategy", "", "strategy name (see -list)")
	flag.StringVar(&f.start, "start", "", "first date, YYYY-MM-DD")
	flag.StringVar(&f.end, "end", "", "last date, YYYY-MM-DD")
	flag.Float64Var(&f.capital, "capital", 0, "initial capital")
	flag.Float64Var(&f.fee, "fee", -1, "proportional fee rate per side, e.g. 0.001")
	flag.StringVar(&f.source, "source", "", "price source: alpaca, postgres or sqlite")
	flag.StringVar(&f.outDir, "out", "", "directory for trade and equity CSV files")
	flag.BoolVar(&f.trades, "trades", false, "print the trade log")
	flag.BoolVar(&f.list, "list", false, "list strategies with their default params and exit")
	flag.StringVar(&f.importTo, "import-to", "", "copy the requested bars into this SQLite file and exit")
	flag.Var(&f.params, "param", "strategy param name=value, repeatable")
	flag.Parse()

	if err := run(f); err != nil {
		log.Fatal(err)
	}
}

func run(f flags) error {
	registry := strategies.Default()
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyFlags(cfg, f)
	if f.list {
		return list(registry, cfg)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config:\n%w", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	metrics := observability.NewMetrics(cfg.Metrics.Namespace, prometheus.NewRegistry())
	if cfg.Metrics.Textfile != "" {
		defer func() {
			if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
				logger.Error("writing metrics textfile", "path", cfg.Metrics.Textfile, "error", err)
			}
		}()
	}

	provider, closeProvider, err := buildProvider(ctx, cfg.Data, metrics, logger)
	if err != nil {
		return err
	}
	defer closeProvider()
	defer func() {
		logger.Debug("price cache", "entries", provider.Len())
	}()

	start, end, err := cfg.Backtest.Dates()
	if err != nil {
		return err
	}
	interval, err := types.ParseInterval(cfg.Backtest.Interval)
	if err != nil {
		return err
	}

	if f.importTo != "" {
		return importBars(ctx, provider, f.importTo, cfg.Backtest.Symbols, interval, start, end, logger)
	}

	strat, err := registry.Get(cfg.Backtest.Strategy.Name)
	if err != nil {
		return err
	}
	params := strategies.Defaults(strat).Merge(cfg.Backtest.Strategy.Params)

	portfolioCfg := engine.NewPortfolioConfig(
		decimal.NewFromFloat(cfg.Backtest.InitialCapital),
		decimal.NewFromFloat(cfg.Backtest.FeeRate),
		cfg.Backtest.Workers,
	)
	eng := engine.NewEngine(provider, portfolioCfg, metrics, logger)
	reporting := engine.NewReportingConfig(cfg.Report.PrintTrades, cfg.Report.Name, cfg.Report.OutputDir)

	logger.Info("starting backtest",
		"strategy", strat.Name(),
		"params", params.String(),
		"symbols", strings.Join(cfg.Backtest.Symbols, ","),
		"start", cfg.Backtest.Start,
		"end", cfg.Backtest.End,
		"capital", portfolioCfg.InitialCash().String(),
		"fee_rate", portfolioCfg.FeeRate().String(),
	)

	if len(cfg.Backtest.Symbols) == 1 {
		return runSingle(ctx, eng, reporting, strat, params, cfg.Backtest.Symbols[0], interval, start, end)
	}
	return runPortfolio(ctx, eng, reporting, strat, params, cfg.Backtest.Symbols, interval, start, end)
}

func runSingle(ctx context.Context, eng *engine.Engine, reporting *engine.ReportingConfig, strat engine.SignalGenerator,
	params types.Params, symbol string, interval types.Interval, start, end time.Time) error {
	req := eng.NewBacktestRequest(engine.NewDataFeed(symbol, interval, start, end), strat, params)
	res, err := eng.Backtest(ctx, req)
	if err != nil {
		return explain(err)
	}
	engine.PrintReport(os.Stdout, res, reporting.PrintTrades())
	return engine.WriteResultFiles(reporting, res.Ticker, res)
}

func runPortfolio(ctx context.Context, eng *engine.Engine, reporting *engine.ReportingConfig, strat engine.SignalGenerator,
	params types.Params, symbols []string, interval types.Interval, start, end time.Time) error {
	bar := initProgressBar(len(symbols))
	eng.OnSymbolDone = func(string, error) {
		_ = bar.Add(1)
	}

	res, err := eng.RunPortfolio(ctx, eng.NewPortfolioRequest(symbols, interval, start, end, strat, params))
	_ = bar.Finish()
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return explain(err)
	}

	if reporting.PrintTrades() {
		for _, leg := range res.Legs {
			engine.PrintReport(os.Stdout, leg.Result, true)
		}
	}
	engine.PrintPortfolioReport(os.Stdout, res)
	return engine.WritePortfolioFiles(reporting, res)
}

func initProgressBar(maxTicks int) *progressbar.ProgressBar {
	return progressbar.NewOptions(maxTicks,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("Backtesting symbols..."),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}

// list prints the registered strategies with their defaults and, for a
// SQLite source, the symbols already stored there.
func list(registry *strategies.Registry, cfg *config.Config) error {
	for _, name := range registry.List() {
		g, _ := registry.Get(name)
		fmt.Printf("%-12s %s\n", name, strategies.Defaults(g))
	}
	if cfg.Data.Source != config.SourceSQLite || cfg.Data.SQLitePath == "" {
		return nil
	}

	ctx := context.Background()
	store, err := feed.NewSQLiteStore(ctx, cfg.Data.SQLitePath)
	if err != nil {
		return err
	}
	defer store.Close()
	interval, err := types.ParseInterval(cfg.Backtest.Interval)
	if err != nil {
		return err
	}
	symbols, err := store.Symbols(ctx, interval)
	if err != nil {
		return fmt.Errorf("list stored symbols: %w", err)
	}
	fmt.Printf("\nstored %s symbols in %s: %s\n", interval, cfg.Data.SQLitePath, strings.Join(symbols, ", "))
	return nil
}

// buildProvider layers the configured source under the disk and memory
// caches. The returned func releases database handles.
func buildProvider(ctx context.Context, data config.Data, metrics *observability.Metrics, logger *slog.Logger) (*feed.Cache, func(), error) {
	var (
		source  feed.Provider
		closeFn = func() {}
	)
	switch data.Source {
	case config.SourceAlpaca:
		alpaca := feed.NewAlpacaProvider(data.Alpaca.APIKey, data.Alpaca.APISecret, data.Alpaca.DataURL, data.Alpaca.Feed)
		source = feed.NewRetrying(alpaca, config.SourceAlpaca, data.Retry.Attempts, data.Retry.BaseDelay, metrics, logger)
	case config.SourcePostgres:
		db, err := repository.NewDatabase(ctx, data.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		source = feed.NewRetrying(db, config.SourcePostgres, data.Retry.Attempts, data.Retry.BaseDelay, metrics, logger)
		closeFn = db.Close
	case config.SourceSQLite:
		store, err := feed.NewSQLiteStore(ctx, data.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		source = store
		closeFn = func() { _ = store.Close() }
	default:
		return nil, nil, fmt.Errorf("unknown data source %q", data.Source)
	}

	if data.CacheDir != "" {
		source = feed.NewDiskCache(data.CacheDir, source, metrics, logger)
	}
	return feed.NewCache(source, metrics, logger), closeFn, nil
}

func importBars(ctx context.Context, provider feed.Provider, path string, symbols []string, interval types.Interval,
	start, end time.Time, logger *slog.Logger) error {
	store, err := feed.NewSQLiteStore(ctx, path)
	if err != nil {
		return err
	}
	defer store.Close()

	bar := initProgressBar(len(symbols))
	defer bar.Finish()
	for _, symbol := range symbols {
		bars, err := provider.Fetch(ctx, symbol, interval, start, end)
		if err != nil {
			logger.Warn("skipping symbol", "symbol", symbol, "error", err)
			_ = bar.Add(1)
			continue
		}
		if err := store.WriteBars(ctx, bars); err != nil {
			return fmt.Errorf("import %s: %w", symbol, err)
		}
		logger.Debug("imported bars", "symbol", symbol, "bars", len(bars))
		_ = bar.Add(1)
	}
	return nil
}

func applyFlags(cfg *config.Config, f flags) {
	if f.symbols != "" {
		var symbols []string
		for _, s := range strings.Split(f.symbols, ",") {
			if s = strings.TrimSpace(s); s != "" {
				symbols = append(symbols, s)
			}
		}
		cfg.Backtest.Symbols = symbols
	}
	if f.strategy != "" {
		cfg.Backtest.Strategy.Name = f.strategy
	}
	if len(f.params) > 0 {
		cfg.Backtest.Strategy.Params = types.Params(cfg.Backtest.Strategy.Params).Merge(types.Params(f.params))
	}
	if f.start != "" {
		cfg.Backtest.Start = f.start
	}
	if f.end != "" {
		cfg.Backtest.End = f.end
	}
	if f.capital > 0 {
		cfg.Backtest.InitialCapital = f.capital
	}
	if f.fee >= 0 {
		cfg.Backtest.FeeRate = f.fee
	}
	if f.source != "" {
		cfg.Data.Source = f.source
	}
	if f.outDir != "" {
		cfg.Report.OutputDir = f.outDir
	}
	if f.trades {
		cfg.Report.PrintTrades = true
	}
}

// explain adds a hint for the failures a user can act on.
func explain(err error) error {
	switch {
	case errors.Is(err, feed.ErrDataUnavailable):
		return fmt.Errorf("%w (check the symbol and date range, or retry later)", err)
	case errors.Is(err, engine.ErrNoValidSymbols):
		return fmt.Errorf("%w (no symbol produced data)", err)
	default:
		return err
	}
}
