package engine

import (
	"bytes"
	"encoding/csv"
	"strings"
	"sync"
	"testing"
	"time"

	"tradelab/types"

	"github.com/shopspring/decimal"
)

func TestCalcNetProfit(t *testing.T) {
	tests := []struct {
		name   string
		trades []types.Trade
		want   decimal.Decimal
	}{
		{"no trades -> zero", nil, decimal.Zero},
		{"single winner", []types.Trade{newTrade(1, "10")}, dec("10")},
		{"winners and losers net out", []types.Trade{newTrade(1, "10"), newTrade(2, "-4.5"), newTrade(3, "2")}, dec("7.5")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var wg sync.WaitGroup
			wg.Add(1)
			if got := calcNetProfit(tc.trades, &wg); !got.Equal(tc.want) {
				t.Errorf("calcNetProfit() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestCalcWinLossPerTrade(t *testing.T) {
	tests := []struct {
		name        string
		trades      []types.Trade
		wantWinRate string
		wantAvgWin  string
		wantAvgLoss string
	}{
		{"no trades", nil, "0", "0", "0"},
		{"only losses", []types.Trade{newTrade(1, "-2"), newTrade(2, "-4")}, "0", "0", "3"},
		{"mixed", []types.Trade{newTrade(1, "10"), newTrade(2, "-5"), newTrade(3, "20"), newTrade(4, "0")}, "0.5", "15", "5"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var wg sync.WaitGroup
			wg.Add(1)
			rate, win, loss := calcWinLossPerTrade(tc.trades, &wg)
			if !rate.Equal(dec(tc.wantWinRate)) {
				t.Errorf("win rate = %s, want %s", rate, tc.wantWinRate)
			}
			if !win.Equal(dec(tc.wantAvgWin)) {
				t.Errorf("avg win = %s, want %s", win, tc.wantAvgWin)
			}
			if !loss.Equal(dec(tc.wantAvgLoss)) {
				t.Errorf("avg loss = %s, want %s", loss, tc.wantAvgLoss)
			}
		})
	}
}

func TestCalcMaxConsecutiveLosses(t *testing.T) {
	tests := []struct {
		name   string
		trades []types.Trade
		want   int
	}{
		{"no trades", nil, 0},
		{"no losses", []types.Trade{newTrade(1, "1"), newTrade(2, "2")}, 0},
		{"streak broken by a win", []types.Trade{
			newTrade(1, "-1"), newTrade(2, "-1"), newTrade(3, "5"),
			newTrade(4, "-1"), newTrade(5, "-1"), newTrade(6, "-1"),
		}, 3},
		{"out of order input is sorted by exit", []types.Trade{
			newTrade(3, "-1"), newTrade(1, "-1"), newTrade(2, "4"),
		}, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var wg sync.WaitGroup
			wg.Add(1)
			if got := calcMaxConsecutiveLosses(tc.trades, &wg); got != tc.want {
				t.Errorf("calcMaxConsecutiveLosses() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestCalcProfitFactorAndFees(t *testing.T) {
	trades := []types.Trade{newTrade(1, "30"), newTrade(2, "-10"), newTrade(3, "-5")}
	var wg sync.WaitGroup
	wg.Add(1)
	pf, fees := calcProfitFactorAndFees(trades, &wg)
	if !pf.Equal(dec("2")) {
		t.Errorf("profit factor = %s, want 2", pf)
	}
	if !fees.Equal(dec("3")) {
		t.Errorf("fees = %s, want 3", fees)
	}
}

func TestCalcDrawdownMetrics(t *testing.T) {
	curve := mockCurve("100", "120", "90", "110", "60", "130")
	var wg sync.WaitGroup
	wg.Add(1)
	dd, ddPct, ddDur := calcDrawdownMetrics(curve, &wg)
	if !dd.Equal(dec("60")) {
		t.Errorf("max drawdown = %s, want 60", dd)
	}
	if !ddPct.Equal(dec("0.5")) {
		t.Errorf("max drawdown pct = %s, want 0.5", ddPct)
	}
	if ddDur != 3*24*time.Hour {
		t.Errorf("max drawdown duration = %v, want 72h", ddDur)
	}
}

func TestCalcCAGR(t *testing.T) {
	start := day0
	curve := []types.EquityPoint{
		types.NewEquityPoint(start, dec("1000"), 0, decimal.Zero),
		types.NewEquityPoint(start.Add(time.Duration(365.25*24)*time.Hour), dec("1100"), 0, decimal.Zero),
	}
	var wg sync.WaitGroup
	wg.Add(1)
	got := calcCAGR(curve, &wg)
	if !got.Round(6).Equal(dec("0.1")) {
		t.Errorf("calcCAGR() = %s, want 0.1", got)
	}

	wg.Add(1)
	if got := calcCAGR(curve[:1], &wg); !got.IsZero() {
		t.Errorf("calcCAGR() on one point = %s, want 0", got)
	}
}

func TestWriteTradesCSV(t *testing.T) {
	var buf bytes.Buffer
	trades := []types.Trade{newTrade(1, "12.5"), newTrade(2, "-3")}
	if err := WriteTradesCSV(&buf, trades); err != nil {
		t.Fatalf("WriteTradesCSV() error = %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "trade_id" || rows[0][9] != "pnl" {
		t.Errorf("unexpected header %v", rows[0])
	}
	if rows[2][9] != "-3" {
		t.Errorf("second trade pnl = %s, want -3", rows[2][9])
	}
	// -3 over 10 committed plus 0.5 entry fee
	if rows[2][10] != "-28.5714" {
		t.Errorf("second trade return_pct = %s, want -28.5714", rows[2][10])
	}
}

func TestWriteEquityCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteEquityCSV(&buf, mockCurve("100", "101")); err != nil {
		t.Fatalf("WriteEquityCSV() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if !strings.HasSuffix(lines[2], ",101") {
		t.Errorf("last line = %q, want equity 101", lines[2])
	}
}

func TestWriteResultFiles(t *testing.T) {
	dir := t.TempDir()
	bars := mockBars("AAPL", day0, "100", "110", "90")
	res, err := Run(bars, mockSignals(bars, types.ActionBuy, types.ActionHold, types.ActionSell), dec("10000"), dec("0.001"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	cfg := NewReportingConfig(false, "run", dir)
	if err := WriteResultFiles(cfg, "AAPL", res); err != nil {
		t.Fatalf("WriteResultFiles() error = %v", err)
	}
	for _, kind := range []string{"trades", "equity"} {
		path := cfg.path("AAPL", kind)
		if !strings.HasSuffix(path, "run_aapl_"+kind+".csv") {
			t.Errorf("unexpected path %s", path)
		}
	}

	if err := WriteResultFiles(NewReportingConfig(false, "", ""), "AAPL", res); err != nil {
		t.Errorf("disabled reporting should be a no-op, got %v", err)
	}
}

func TestPrintReport(t *testing.T) {
	bars := mockBars("AAPL", day0, "100", "110", "90", "95")
	res, err := Run(bars, mockSignals(bars, types.ActionBuy, types.ActionHold, types.ActionSell, types.ActionBuy), dec("10000"), dec("0.001"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	var buf bytes.Buffer
	PrintReport(&buf, res, true)
	out := buf.String()
	for _, want := range []string{"AAPL Backtest", "Total Trades:          1", "Open Position:", "-- Trade Log --", "pnl -1008.81"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func newTrade(exitDay int, pnl string) types.Trade {
	return types.Trade{
		Ticker:     "AAPL",
		EntryTime:  day0,
		ExitTime:   day0.AddDate(0, 0, exitDay),
		EntryPrice: dec("10"),
		ExitPrice:  dec("10"),
		Shares:     1,
		FeeIn:      dec("0.5"),
		FeeOut:     dec("0.5"),
		PnL:        dec(pnl),
	}
}
