package engine

import (
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"

	"tradelab/types"

	"github.com/shopspring/decimal"
)

// Report holds trade-level statistics that complement Metrics.
type Report struct {
	// Meta / period info
	StartDate   time.Time     `json:"startDate"`
	TotalPeriod time.Duration `json:"totalPeriod"`
	TotalTrades int           `json:"totalTrades"`

	// Absolute performance
	NetProfit            decimal.Decimal `json:"netProfit"`
	NetAvgProfitPerTrade decimal.Decimal `json:"netAvgProfitPerTrade"`
	CAGR                 decimal.Decimal `json:"cagr"`

	// Trade-level distribution metrics
	WinRate decimal.Decimal `json:"winRate"`
	AvgWin  decimal.Decimal `json:"avgWin"`
	AvgLoss decimal.Decimal `json:"avgLoss"`

	// Drawdown & loss streak metrics
	MaxDrawdown          decimal.Decimal `json:"maxDrawdown"`
	MaxDrawdownPercent   decimal.Decimal `json:"maxDrawdownPercent"`
	MaxDrawdownDays      time.Duration   `json:"maxDrawdownDays"`
	MaxConsecutiveLosses int             `json:"maxConsecutiveLosses"`

	ProfitFactor decimal.Decimal `json:"profitFactor"`

	// Costs
	TotalFees decimal.Decimal `json:"totalFees"`
}

func generateReport(curve []types.EquityPoint, trades []types.Trade) *Report {
	report := &Report{TotalTrades: len(trades)}
	if len(curve) > 0 {
		report.StartDate = curve[0].Time
		report.TotalPeriod = curve[len(curve)-1].Time.Sub(curve[0].Time).Truncate(time.Hour * 24)
	}

	var wg sync.WaitGroup
	wg.Add(7)
	go func() {
		report.NetProfit = calcNetProfit(trades, &wg)
	}()
	go func() {
		report.NetAvgProfitPerTrade = calcNetAvgProfitPerTrade(trades, &wg)
	}()
	go func() {
		report.WinRate, report.AvgWin, report.AvgLoss = calcWinLossPerTrade(trades, &wg)
	}()
	go func() {
		report.CAGR = calcCAGR(curve, &wg)
	}()
	go func() {
		report.MaxDrawdown, report.MaxDrawdownPercent, report.MaxDrawdownDays = calcDrawdownMetrics(curve, &wg)
	}()
	go func() {
		report.MaxConsecutiveLosses = calcMaxConsecutiveLosses(trades, &wg)
	}()
	go func() {
		report.ProfitFactor, report.TotalFees = calcProfitFactorAndFees(trades, &wg)
	}()
	wg.Wait()

	return report
}

func calcNetProfit(trades []types.Trade, wg *sync.WaitGroup) decimal.Decimal {
	defer wg.Done()
	net := decimal.Zero
	for _, tr := range trades {
		net = net.Add(tr.PnL)
	}
	return net
}

func calcNetAvgProfitPerTrade(trades []types.Trade, wg *sync.WaitGroup) decimal.Decimal {
	defer wg.Done()
	if len(trades) == 0 {
		return decimal.Zero
	}
	net := decimal.Zero
	for _, tr := range trades {
		net = net.Add(tr.PnL)
	}
	return net.Div(decimal.NewFromInt(int64(len(trades))))
}

// calcWinLossPerTrade returns the win rate and the average winning and losing
// trade. AvgLoss is reported as a positive amount.
func calcWinLossPerTrade(trades []types.Trade, wg *sync.WaitGroup) (decimal.Decimal, decimal.Decimal, decimal.Decimal) {
	defer wg.Done()

	sumWins := decimal.Zero
	sumLosses := decimal.Zero
	winCount := 0
	lossCount := 0

	for _, tr := range trades {
		switch {
		case tr.PnL.IsPositive():
			sumWins = sumWins.Add(tr.PnL)
			winCount++
		case tr.PnL.IsNegative():
			sumLosses = sumLosses.Add(tr.PnL.Abs())
			lossCount++
		}
	}

	winRate := decimal.Zero
	avgWin := decimal.Zero
	avgLoss := decimal.Zero
	if len(trades) > 0 {
		winRate = decimal.NewFromInt(int64(winCount)).Div(decimal.NewFromInt(int64(len(trades))))
	}
	if winCount > 0 {
		avgWin = sumWins.Div(decimal.NewFromInt(int64(winCount)))
	}
	if lossCount > 0 {
		avgLoss = sumLosses.Div(decimal.NewFromInt(int64(lossCount)))
	}
	return winRate, avgWin, avgLoss
}

// calcCAGR annualises on calendar time using 365.25 days per year.
func calcCAGR(curve []types.EquityPoint, wg *sync.WaitGroup) decimal.Decimal {
	defer wg.Done()
	if len(curve) < 2 {
		return decimal.Zero
	}

	start := curve[0]
	end := curve[len(curve)-1]
	if !start.Equity.IsPositive() {
		return decimal.Zero
	}

	duration := end.Time.Sub(start.Time)
	if duration <= 0 {
		return decimal.Zero
	}
	years := duration.Hours() / (24.0 * 365.25)

	ratio := end.Equity.Div(start.Equity)
	if !ratio.IsPositive() {
		return decimal.Zero
	}

	cagrFloat := math.Pow(ratio.InexactFloat64(), 1.0/years) - 1.0
	return decimal.NewFromFloat(cagrFloat)
}

// calcDrawdownMetrics returns the largest absolute fall from a peak, the same
// fall relative to that peak and how long after the peak it bottomed.
func calcDrawdownMetrics(curve []types.EquityPoint, wg *sync.WaitGroup) (decimal.Decimal, decimal.Decimal, time.Duration) {
	defer wg.Done()

	if len(curve) == 0 {
		return decimal.Zero, decimal.Zero, 0
	}

	peak := curve[0].Equity
	peakTime := curve[0].Time

	maxDD := decimal.Zero
	maxDDPct := decimal.Zero
	var maxDDDuration time.Duration

	for _, point := range curve {
		if point.Equity.GreaterThan(peak) {
			peak = point.Equity
			peakTime = point.Time
		}
		if !peak.IsPositive() {
			continue
		}
		dd := peak.Sub(point.Equity)
		if dd.GreaterThan(maxDD) {
			maxDD = dd
			maxDDPct = dd.Div(peak)
			maxDDDuration = point.Time.Sub(peakTime)
		}
	}
	return maxDD, maxDDPct, maxDDDuration
}

func calcMaxConsecutiveLosses(trades []types.Trade, wg *sync.WaitGroup) int {
	defer wg.Done()

	ordered := make([]types.Trade, len(trades))
	copy(ordered, trades)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ExitTime.Before(ordered[j].ExitTime)
	})

	maxLossStreak := 0
	currentStreak := 0
	for _, tr := range ordered {
		if tr.PnL.IsNegative() {
			currentStreak++
			if currentStreak > maxLossStreak {
				maxLossStreak = currentStreak
			}
		} else {
			currentStreak = 0
		}
	}
	return maxLossStreak
}

// calcProfitFactorAndFees returns gross profit over gross loss and the total
// commission paid. The profit factor is zero when there are no losing trades.
func calcProfitFactorAndFees(trades []types.Trade, wg *sync.WaitGroup) (decimal.Decimal, decimal.Decimal) {
	defer wg.Done()

	grossProfit := decimal.Zero
	grossLoss := decimal.Zero
	fees := decimal.Zero
	for _, tr := range trades {
		fees = fees.Add(tr.Fees())
		if tr.PnL.IsPositive() {
			grossProfit = grossProfit.Add(tr.PnL)
		} else {
			grossLoss = grossLoss.Add(tr.PnL.Abs())
		}
	}
	if grossLoss.IsZero() {
		return decimal.Zero, fees
	}
	return grossProfit.Div(grossLoss), fees
}

// PrintReport writes a plain-text summary of a single-asset run.
func PrintReport(w io.Writer, res *Result, printTrades bool) {
	fmt.Fprintf(w, "===== %s Backtest =====\n", res.Ticker)
	if res.Strategy != "" {
		fmt.Fprintf(w, "Strategy:              %s\n", res.Strategy)
	}
	printMetrics(w, res.InitialCapital, res.Metrics)
	fmt.Fprintf(w, "Buy & Hold Return:     %s\n", pct(res.BuyAndHoldReturn))
	fmt.Fprintf(w, "Excess Return:         %s\n", pct(res.ExcessReturn))

	if r := res.Report; r != nil {
		fmt.Fprintln(w, "\n-- Trades --")
		fmt.Fprintf(w, "Total Trades:          %d\n", r.TotalTrades)
		fmt.Fprintf(w, "Net Profit:            %s\n", r.NetProfit.StringFixed(2))
		fmt.Fprintf(w, "Avg Profit/Trade:      %s\n", r.NetAvgProfitPerTrade.StringFixed(2))
		fmt.Fprintf(w, "Win Rate:              %s%%\n", r.WinRate.Mul(decimal.NewFromInt(100)).StringFixed(2))
		fmt.Fprintf(w, "Avg Win:               %s\n", r.AvgWin.StringFixed(2))
		fmt.Fprintf(w, "Avg Loss:              %s\n", r.AvgLoss.StringFixed(2))
		fmt.Fprintf(w, "Profit Factor:         %s\n", r.ProfitFactor.StringFixed(2))
		fmt.Fprintf(w, "Max Consecutive Losses:%d\n", r.MaxConsecutiveLosses)
		fmt.Fprintf(w, "Total Fees:            %s\n", r.TotalFees.StringFixed(2))
		fmt.Fprintf(w, "Max Drawdown Days:     %d\n", r.MaxDrawdownDays/(24*time.Hour))
	}

	if pos := res.OpenPosition; pos != nil {
		fmt.Fprintf(w, "\nOpen Position:         %d @ %s since %s, marked %s\n",
			pos.Shares, pos.EntryPrice.StringFixed(2), pos.EntryTime.Format(time.DateOnly), pos.MarketValue().StringFixed(2))
	}

	if printTrades && len(res.Trades) > 0 {
		fmt.Fprintln(w, "\n-- Trade Log --")
		for _, tr := range res.Trades {
			fmt.Fprintf(w, "%s -> %s  %6d sh  %10s -> %10s  pnl %s (%s%%)\n",
				tr.EntryTime.Format(time.DateOnly), tr.ExitTime.Format(time.DateOnly), tr.Shares,
				tr.EntryPrice.StringFixed(2), tr.ExitPrice.StringFixed(2), tr.PnL.StringFixed(2),
				tr.ReturnPct().Mul(decimal.NewFromInt(100)).StringFixed(2))
		}
	}
	fmt.Fprintln(w, "==========================")
}

// PrintPortfolioReport writes a plain-text summary of a portfolio run.
func PrintPortfolioReport(w io.Writer, res *PortfolioResult) {
	fmt.Fprintln(w, "===== Portfolio Backtest =====")
	fmt.Fprintf(w, "Strategy:              %s\n", res.Strategy)
	printMetrics(w, res.InitialCapital, res.Metrics)
	fmt.Fprintf(w, "Total Trades:          %d\n", res.TotalTrades)

	fmt.Fprintln(w, "\n-- Legs --")
	for _, leg := range res.Legs {
		fmt.Fprintf(w, "%-8s alloc %12s  final %12s  return %8s  trades %d\n",
			leg.Symbol, leg.Allocation.StringFixed(2), leg.Result.FinalEquity().StringFixed(2),
			pct(leg.Result.Metrics.TotalReturn), len(leg.Result.Trades))
	}
	if len(res.Warnings) > 0 {
		fmt.Fprintln(w, "\n-- Warnings --")
		for _, warn := range res.Warnings {
			fmt.Fprintf(w, "%-8s %s\n", warn.Symbol, warn.Message)
		}
	}
	fmt.Fprintln(w, "==============================")
}

func printMetrics(w io.Writer, initial decimal.Decimal, m types.Metrics) {
	fmt.Fprintf(w, "Initial Capital:       %s\n", initial.StringFixed(2))
	fmt.Fprintf(w, "Final Equity:          %.2f\n", m.FinalEquity)
	fmt.Fprintf(w, "Trading Days:          %d\n", m.TradingDays)
	fmt.Fprintf(w, "Total Return:          %s\n", pct(m.TotalReturn))
	fmt.Fprintf(w, "Annualized Return:     %s\n", pct(m.AnnualizedReturn))
	fmt.Fprintf(w, "Volatility:            %s\n", pct(m.Volatility))
	fmt.Fprintf(w, "Max Drawdown:          %.2f%%\n", m.MaxDrawdown*100)
	fmt.Fprintf(w, "Sharpe Ratio:          %s\n", m.SharpeRatio)
}

func pct(v types.NullFloat) string {
	if !v.Valid {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%%", v.Float64*100)
}
