package engine

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"tradelab/types"

	"github.com/shopspring/decimal"
)

// WriteResultFiles writes the trades and equity curve of res as CSV files
// under the configured directory. It does nothing when no directory is set.
func WriteResultFiles(cfg *ReportingConfig, label string, res *Result) error {
	if cfg == nil || cfg.filePath == "" {
		return nil
	}
	if err := writeCSVFile(cfg.path(label, "trades"), func(w io.Writer) error {
		return WriteTradesCSV(w, res.Trades)
	}); err != nil {
		return err
	}
	return writeCSVFile(cfg.path(label, "equity"), func(w io.Writer) error {
		return WriteEquityCSV(w, res.EquityCurve)
	})
}

// WritePortfolioFiles writes the combined equity curve and every leg's files.
func WritePortfolioFiles(cfg *ReportingConfig, res *PortfolioResult) error {
	if cfg == nil || cfg.filePath == "" {
		return nil
	}
	if err := writeCSVFile(cfg.path("portfolio", "equity"), func(w io.Writer) error {
		return WriteEquityCSV(w, res.EquityCurve)
	}); err != nil {
		return err
	}
	for _, leg := range res.Legs {
		if err := WriteResultFiles(cfg, leg.Symbol, leg.Result); err != nil {
			return err
		}
	}
	return nil
}

func (c *ReportingConfig) path(label, kind string) string {
	parts := []string{}
	if c.reportName != "" {
		parts = append(parts, c.reportName)
	}
	if label != "" {
		parts = append(parts, strings.ToLower(label))
	}
	parts = append(parts, kind)
	return filepath.Join(c.filePath, strings.Join(parts, "_")+".csv")
}

func writeCSVFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	defer f.Close()
	return write(f)
}

// WriteTradesCSV writes closed trades to any io.Writer as CSV.
func WriteTradesCSV(w io.Writer, trades []types.Trade) error {
	cw := csv.NewWriter(w)

	header := []string{
		"trade_id",
		"ticker",
		"entry_time", // RFC3339
		"exit_time",
		"shares",
		"entry_price",
		"exit_price",
		"fee_in",
		"fee_out",
		"pnl",
		"return_pct",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, tr := range trades {
		record := []string{
			strconv.Itoa(i),
			tr.Ticker,
			tr.EntryTime.Format(time.RFC3339),
			tr.ExitTime.Format(time.RFC3339),
			strconv.FormatInt(tr.Shares, 10),
			tr.EntryPrice.String(),
			tr.ExitPrice.String(),
			tr.FeeIn.String(),
			tr.FeeOut.String(),
			tr.PnL.String(),
			tr.ReturnPct().Mul(decimal.NewFromInt(100)).StringFixed(4),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// WriteEquityCSV writes one row per equity point.
func WriteEquityCSV(w io.Writer, curve []types.EquityPoint) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"time", "cash", "shares", "close", "position_value", "equity"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, p := range curve {
		record := []string{
			p.Time.Format(time.RFC3339),
			p.Cash.String(),
			strconv.FormatInt(p.Shares, 10),
			p.Close.String(),
			p.PositionValue.String(),
			p.Equity.String(),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
