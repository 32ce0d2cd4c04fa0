package strategies

import "math"

// Indicator series are aligned with their input. Positions without enough
// history hold NaN, and NaN never satisfies a crossover comparison.

// SMA is the simple moving average over window values.
func SMA(values []float64, window int) []float64 {
	out := nanSeries(len(values))
	if window <= 0 {
		return out
	}
	var sum float64
	valid := 0
	for i, v := range values {
		if math.IsNaN(v) {
			sum, valid = 0, 0
			continue
		}
		sum += v
		valid++
		if valid > window {
			sum -= values[i-window]
			valid = window
		}
		if valid == window {
			out[i] = sum / float64(window)
		}
	}
	return out
}

// EMA is the recursive exponential moving average with alpha = 2/(span+1),
// seeded with the first value.
func EMA(values []float64, span int) []float64 {
	out := nanSeries(len(values))
	if span <= 0 || len(values) == 0 {
		return out
	}
	alpha := 2.0 / (float64(span) + 1.0)
	prev := math.NaN()
	for i, v := range values {
		switch {
		case math.IsNaN(v):
			out[i] = prev
			continue
		case math.IsNaN(prev):
			prev = v
		default:
			prev += alpha * (v - prev)
		}
		out[i] = prev
	}
	return out
}

// RSI uses plain rolling means of gains and losses. The first bar has no
// prior close and counts as a zero change, so the first value lands at index
// period-1. A window with no losses reads 100 and a window with no movement
// is NaN.
func RSI(closes []float64, period int) []float64 {
	n := len(closes)
	gains := make([]float64, n)
	losses := make([]float64, n)
	for i := 1; i < n; i++ {
		delta := closes[i] - closes[i-1]
		gains[i] = math.Max(delta, 0)
		losses[i] = math.Max(-delta, 0)
	}
	avgGain := SMA(gains, period)
	avgLoss := SMA(losses, period)

	out := nanSeries(n)
	for i := range out {
		if math.IsNaN(avgGain[i]) || math.IsNaN(avgLoss[i]) {
			continue
		}
		rs := avgGain[i] / avgLoss[i]
		out[i] = 100 - 100/(1+rs)
	}
	return out
}

// MACD returns the MACD line, its signal line and the histogram.
func MACD(closes []float64, fast, slow, signal int) ([]float64, []float64, []float64) {
	fastEMA := EMA(closes, fast)
	slowEMA := EMA(closes, slow)
	line := make([]float64, len(closes))
	for i := range closes {
		line[i] = fastEMA[i] - slowEMA[i]
	}
	signalLine := EMA(line, signal)
	hist := make([]float64, len(closes))
	for i := range closes {
		hist[i] = line[i] - signalLine[i]
	}
	return line, signalLine, hist
}

// crossedAbove reports a move of a from at-or-below b to strictly above it
// between i-1 and i.
func crossedAbove(a, b []float64, i int) bool {
	return i > 0 && a[i-1] <= b[i-1] && a[i] > b[i]
}

func crossedBelow(a, b []float64, i int) bool {
	return i > 0 && a[i-1] >= b[i-1] && a[i] < b[i]
}

func anyNaN(i int, series ...[]float64) bool {
	for _, s := range series {
		if math.IsNaN(s[i]) {
			return true
		}
	}
	return false
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
