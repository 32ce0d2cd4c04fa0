package engine

import (
	"time"

	"tradelab/types"

	"github.com/shopspring/decimal"
)

const defaultWorkers = 4

// DataFeed names the price series a run is computed over.
type DataFeed struct {
	Ticker   string
	Interval types.Interval
	Start    time.Time
	End      time.Time
}

func NewDataFeed(ticker string, interval types.Interval, start, end time.Time) DataFeed {
	return DataFeed{
		Ticker:   ticker,
		Interval: interval,
		Start:    start,
		End:      end,
	}
}

type PortfolioConfig struct {
	initialCash decimal.Decimal
	feeRate     decimal.Decimal
	workers     int
}

// NewPortfolioConfig holds the account settings shared by every run. A
// non-positive worker count falls back to the default.
func NewPortfolioConfig(initialCash, feeRate decimal.Decimal, workers int) *PortfolioConfig {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &PortfolioConfig{
		initialCash: initialCash,
		feeRate:     feeRate,
		workers:     workers,
	}
}

func (c *PortfolioConfig) InitialCash() decimal.Decimal { return c.initialCash }
func (c *PortfolioConfig) FeeRate() decimal.Decimal     { return c.feeRate }

type ReportingConfig struct {
	printTrades bool
	reportName  string
	filePath    string
}

// NewReportingConfig controls the text summary and CSV export. An empty
// filePath disables the CSV files.
func NewReportingConfig(printTrades bool, reportName string, filePath string) *ReportingConfig {
	return &ReportingConfig{
		printTrades: printTrades,
		reportName:  reportName,
		filePath:    filePath,
	}
}

func (c *ReportingConfig) PrintTrades() bool { return c.printTrades }
