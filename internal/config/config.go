// Package config loads the backtester configuration from YAML with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"tradelab/types"

	"gopkg.in/yaml.v3"
)

// Data sources understood by the CLI.
const (
	SourceAlpaca   = "alpaca"
	SourcePostgres = "postgres"
	SourceSQLite   = "sqlite"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration.
type Config struct {
	Logging  Logging  `yaml:"logging"`
	Data     Data     `yaml:"data"`
	Backtest Backtest `yaml:"backtest"`
	Report   Report   `yaml:"report"`
	Metrics  Metrics  `yaml:"metrics"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Data selects where bars come from and how they are cached.
type Data struct {
	Source      string `yaml:"source"`
	PostgresURL string `yaml:"postgres_url"`
	SQLitePath  string `yaml:"sqlite_path"`
	CacheDir    string `yaml:"cache_dir"`
	Alpaca      Alpaca `yaml:"alpaca"`
	Retry       Retry  `yaml:"retry"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
}

type Retry struct {
	Attempts  int           `yaml:"attempts"`
	BaseDelay time.Duration `yaml:"base_delay"`
}

// Backtest describes the run itself. Dates are YYYY-MM-DD.
type Backtest struct {
	Symbols        []string `yaml:"symbols"`
	Start          string   `yaml:"start"`
	End            string   `yaml:"end"`
	Interval       string   `yaml:"interval"`
	InitialCapital float64  `yaml:"initial_capital"`
	FeeRate        float64  `yaml:"fee_rate"`
	Workers        int      `yaml:"workers"`
	Strategy       Strategy `yaml:"strategy"`
}

type Strategy struct {
	Name   string             `yaml:"name"`
	Params map[string]float64 `yaml:"params"`
}

// Report controls console and CSV output. An empty OutputDir disables CSV.
type Report struct {
	Name        string `yaml:"name"`
	OutputDir   string `yaml:"output_dir"`
	PrintTrades bool   `yaml:"print_trades"`
}

// Metrics controls the Prometheus textfile export. An empty Textfile
// disables it.
type Metrics struct {
	Namespace string `yaml:"namespace"`
	Textfile  string `yaml:"textfile"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	end := time.Now().UTC()
	return &Config{
		Logging: Logging{Level: "info", Format: "text"},
		Data: Data{
			Source: SourceAlpaca,
			Alpaca: Alpaca{Feed: "sip"},
			Retry:  Retry{Attempts: 3, BaseDelay: 500 * time.Millisecond},
		},
		Backtest: Backtest{
			Symbols:        []string{"AAPL"},
			Start:          end.AddDate(-1, 0, 0).Format(time.DateOnly),
			End:            end.Format(time.DateOnly),
			Interval:       string(types.Day),
			InitialCapital: 10000,
			FeeRate:        0.001,
			Workers:        4,
			Strategy:       Strategy{Name: "sma_cross"},
		},
		Report:  Report{Name: "backtest"},
		Metrics: Metrics{Namespace: "tradelab"},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at path over the defaults and then
// applies environment variable overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TRADELAB_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	if v := os.Getenv("TRADELAB_DATA_SOURCE"); v != "" {
		cfg.Data.Source = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Data.PostgresURL = v
	}
	if v := os.Getenv("TRADELAB_SQLITE_PATH"); v != "" {
		cfg.Data.SQLitePath = v
	}
	if v := os.Getenv("TRADELAB_CACHE_DIR"); v != "" {
		cfg.Data.CacheDir = v
	}

	// Standard Alpaca env vars, the names used by the SDK.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Data.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Data.Alpaca.APISecret = v
	}
	if v := os.Getenv("APCA_API_DATA_URL"); v != "" {
		cfg.Data.Alpaca.DataURL = v
	}

	if v := os.Getenv("TRADELAB_FEE_RATE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("TRADELAB_FEE_RATE: %w", err)
		}
		cfg.Backtest.FeeRate = f
	}
	if v := os.Getenv("TRADELAB_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TRADELAB_WORKERS: %w", err)
		}
		cfg.Backtest.Workers = n
	}
	if v := os.Getenv("TRADELAB_METRICS_TEXTFILE"); v != "" {
		cfg.Metrics.Textfile = v
	}
	return nil
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Data.Source {
	case SourceAlpaca:
		if c.Data.Alpaca.APIKey == "" || c.Data.Alpaca.APISecret == "" {
			errs = append(errs, errors.New("data.alpaca: api_key and api_secret are required (or APCA_API_KEY_ID / APCA_API_SECRET_KEY)"))
		}
	case SourcePostgres:
		if c.Data.PostgresURL == "" {
			errs = append(errs, errors.New("data.postgres_url is required (or DATABASE_URL)"))
		}
	case SourceSQLite:
		if c.Data.SQLitePath == "" {
			errs = append(errs, errors.New("data.sqlite_path is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("data.source %q must be one of %s, %s, %s", c.Data.Source, SourceAlpaca, SourcePostgres, SourceSQLite))
	}
	if c.Data.Retry.Attempts < 1 {
		errs = append(errs, fmt.Errorf("data.retry.attempts must be at least 1, got %d", c.Data.Retry.Attempts))
	}

	b := c.Backtest
	if len(b.Symbols) == 0 {
		errs = append(errs, errors.New("backtest.symbols is empty"))
	}
	for _, s := range b.Symbols {
		if strings.TrimSpace(s) == "" {
			errs = append(errs, errors.New("backtest.symbols contains a blank entry"))
			break
		}
	}
	start, end, err := b.Dates()
	if err != nil {
		errs = append(errs, err)
	} else if end.Before(start) {
		errs = append(errs, fmt.Errorf("backtest.end %s is before start %s", b.End, b.Start))
	}
	if _, err := types.ParseInterval(b.Interval); err != nil {
		errs = append(errs, fmt.Errorf("backtest.interval: %w", err))
	}
	if !(b.InitialCapital > 0) {
		errs = append(errs, fmt.Errorf("backtest.initial_capital must be positive, got %v", b.InitialCapital))
	}
	if b.FeeRate < 0 || b.FeeRate >= 1 {
		errs = append(errs, fmt.Errorf("backtest.fee_rate must be within [0, 1), got %v", b.FeeRate))
	}
	if b.Workers < 1 {
		errs = append(errs, fmt.Errorf("backtest.workers must be at least 1, got %d", b.Workers))
	}
	if b.Strategy.Name == "" {
		errs = append(errs, errors.New("backtest.strategy.name is required"))
	}

	return errors.Join(errs...)
}

// Dates parses Start and End as UTC calendar dates.
func (b Backtest) Dates() (time.Time, time.Time, error) {
	start, err := time.Parse(time.DateOnly, b.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("backtest.start: %w", err)
	}
	end, err := time.Parse(time.DateOnly, b.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("backtest.end: %w", err)
	}
	return start, end, nil
}
