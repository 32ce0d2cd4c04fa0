// Package observability provides Prometheus metrics for backtest runs and
// price fetching.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application. It satisfies the
// engine's run observer and the feed's fetch observer.
type Metrics struct {
	// Engine metrics
	BacktestsRun     *prometheus.CounterVec
	BacktestDuration *prometheus.HistogramVec
	TradesSimulated  prometheus.Counter
	SymbolsFailed    prometheus.Counter

	// Feed metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec
	FetchErrors *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetrics registers every metric on reg. A nil reg gets a fresh registry,
// so separate instances never collide.
func NewMetrics(namespace string, reg *prometheus.Registry) *Metrics {
	if namespace == "" {
		namespace = "tradelab"
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		BacktestsRun: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "backtests_total",
			Help:      "Total number of completed single-asset backtests",
		}, []string{"strategy"}),
		BacktestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "backtest_duration_seconds",
			Help:      "Backtest duration in seconds including data load",
			Buckets:   prometheus.DefBuckets,
		}, []string{"strategy"}),
		TradesSimulated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "trades_simulated_total",
			Help:      "Total number of closed round-trip trades",
		}),
		SymbolsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "portfolio_symbols_failed_total",
			Help:      "Total number of portfolio legs dropped with a warning",
		}),

		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "cache_hits_total",
			Help:      "Price series served from cache",
		}, []string{"layer"}),
		CacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "cache_misses_total",
			Help:      "Price series fetched upstream",
		}, []string{"layer"}),
		FetchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "fetch_errors_total",
			Help:      "Failed upstream fetch attempts",
		}, []string{"source"}),

		gatherer: reg,
	}
}

func (m *Metrics) BacktestCompleted(strategy string, elapsed time.Duration, trades int) {
	m.BacktestsRun.WithLabelValues(strategy).Inc()
	m.BacktestDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
	m.TradesSimulated.Add(float64(trades))
}

func (m *Metrics) SymbolFailed(string) {
	m.SymbolsFailed.Inc()
}

func (m *Metrics) CacheHit(layer string) {
	m.CacheHits.WithLabelValues(layer).Inc()
}

func (m *Metrics) CacheMiss(layer string) {
	m.CacheMisses.WithLabelValues(layer).Inc()
}

func (m *Metrics) FetchFailed(source string) {
	m.FetchErrors.WithLabelValues(source).Inc()
}

// WriteTextfile dumps the current values in the node-exporter textfile
// format. The write goes through a temp file and a rename.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.gatherer)
}
