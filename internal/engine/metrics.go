package engine

import (
	"math"

	"tradelab/types"
)

// TradingDaysPerYear annualises daily figures.
const TradingDaysPerYear = 252

// Summarize computes the headline metrics of an equity curve. Metrics that
// are undefined for the input, such as a Sharpe ratio over fewer than two
// returns, come back invalid rather than as an error.
func Summarize(points []types.EquityPoint) types.Metrics {
	m := types.Metrics{}
	if len(points) == 0 {
		return m
	}

	equity := make([]float64, len(points))
	for i, p := range points {
		equity[i] = p.Equity.InexactFloat64()
	}
	initial := equity[0]
	final := equity[len(equity)-1]

	m.FinalEquity = final
	m.TradingDays = len(points) - 1
	m.MaxDrawdown = maxDrawdown(equity)

	if initial > 0 {
		total := final/initial - 1
		m.TotalReturn = types.SomeFloat(total)
		if m.TradingDays > 0 && 1+total >= 0 {
			annual := math.Pow(1+total, float64(TradingDaysPerYear)/float64(m.TradingDays)) - 1
			m.AnnualizedReturn = types.SomeFloat(annual)
		}
	}

	returns := dailyReturns(equity)
	if len(returns) < 2 {
		return m
	}
	mean, std := meanStd(returns)
	m.Volatility = types.SomeFloat(std * math.Sqrt(TradingDaysPerYear))
	if std > 0 {
		m.SharpeRatio = types.SomeFloat(mean / std * math.Sqrt(TradingDaysPerYear))
	}
	return m
}

// dailyReturns skips steps whose previous equity is not positive.
func dailyReturns(equity []float64) []float64 {
	if len(equity) < 2 {
		return nil
	}
	out := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1]
		if prev <= 0 {
			continue
		}
		out = append(out, equity[i]/prev-1)
	}
	return out
}

// meanStd returns the mean and the sample standard deviation.
func meanStd(xs []float64) (float64, float64) {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	if len(xs) < 2 {
		return mean, 0
	}
	var varianceSum float64
	for _, x := range xs {
		diff := x - mean
		varianceSum += diff * diff
	}
	return mean, math.Sqrt(varianceSum / float64(len(xs)-1))
}

// maxDrawdown is the deepest fall from a running peak as a fraction. It is
// never positive.
func maxDrawdown(equity []float64) float64 {
	peak := math.Inf(-1)
	worst := 0.0
	for _, e := range equity {
		if e > peak {
			peak = e
		}
		if peak <= 0 {
			continue
		}
		if dd := e/peak - 1; dd < worst {
			worst = dd
		}
	}
	return worst
}
