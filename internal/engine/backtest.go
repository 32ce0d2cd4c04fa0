package engine

import (
	"time"

	"tradelab/types"

	"github.com/shopspring/decimal"
)

// Result is the outcome of one single-asset run.
type Result struct {
	Ticker           string              `json:"ticker"`
	Interval         types.Interval      `json:"interval"`
	Strategy         string              `json:"strategy,omitempty"`
	InitialCapital   decimal.Decimal     `json:"initialCapital"`
	FeeRate          decimal.Decimal     `json:"feeRate"`
	EquityCurve      []types.EquityPoint `json:"equityCurve"`
	Trades           []types.Trade       `json:"trades"`
	OpenPosition     *types.Position     `json:"openPosition,omitempty"`
	Metrics          types.Metrics       `json:"metrics"`
	Report           *Report             `json:"report"`
	BuyAndHoldReturn types.NullFloat     `json:"buyAndHoldReturn"`
	ExcessReturn     types.NullFloat     `json:"excessReturn"`
}

// FinalEquity is the marked value of the account on the last bar.
func (r *Result) FinalEquity() decimal.Decimal {
	if len(r.EquityCurve) == 0 {
		return r.InitialCapital
	}
	return r.EquityCurve[len(r.EquityCurve)-1].Equity
}

type backtester struct {
	bars      []types.Candle
	interval  types.Interval
	actions   map[int64]types.Action
	portfolio *portfolio
}

// Run simulates a long-only strategy over bars. Each signal is executed at the
// close of its own bar: a BUY while flat buys as many whole shares as the
// cash covers after fees, a SELL while long liquidates everything. Any
// position still open after the last bar is only marked to market.
//
// bars must be strictly ascending with at most one bar per trading date for
// daily intervals and positive closes, every signal must fall on a bar's date, initialCapital must be positive and feeRate must lie in
// [0, 1). Violations return ErrInvalidInput. Bars without a signal are
// treated as HOLD.
func Run(bars []types.Candle, signals []types.Signal, initialCapital, feeRate decimal.Decimal) (*Result, error) {
	if err := validateAccount(initialCapital, feeRate); err != nil {
		return nil, err
	}
	var interval types.Interval
	if len(bars) > 0 {
		interval = bars[0].Interval
	}
	if err := validateBars(bars, interval); err != nil {
		return nil, err
	}
	actions, err := indexSignals(bars, signals, interval)
	if err != nil {
		return nil, err
	}

	b := &backtester{
		bars:      bars,
		interval:  interval,
		actions:   actions,
		portfolio: newPortfolio(bars[0].Ticker, initialCapital, feeRate),
	}
	curve, err := b.run()
	if err != nil {
		return nil, err
	}

	res := &Result{
		Ticker:         bars[0].Ticker,
		Interval:       interval,
		InitialCapital: initialCapital,
		FeeRate:        feeRate,
		EquityCurve:    curve,
		Trades:         b.portfolio.trades,
		OpenPosition:   b.portfolio.openPosition(),
		Metrics:        Summarize(curve),
	}
	if res.Trades == nil {
		res.Trades = []types.Trade{}
	}
	res.Report = generateReport(curve, res.Trades)
	res.BuyAndHoldReturn = buyAndHoldReturn(bars)
	if res.Metrics.TotalReturn.Valid && res.BuyAndHoldReturn.Valid {
		res.ExcessReturn = types.SomeFloat(res.Metrics.TotalReturn.Float64 - res.BuyAndHoldReturn.Float64)
	}
	return res, nil
}

func (b *backtester) run() ([]types.EquityPoint, error) {
	curve := make([]types.EquityPoint, 0, len(b.bars))
	for _, bar := range b.bars {
		action, ok := b.actions[barKey(bar.Timestamp, b.interval)]
		if !ok {
			action = types.ActionHold
		}

		switch {
		case action == types.ActionBuy && b.portfolio.isFlat():
			b.portfolio.openLong(bar.Timestamp, bar.Close)
		case action == types.ActionSell && !b.portfolio.isFlat():
			if _, err := b.portfolio.closeLong(bar.Timestamp, bar.Close); err != nil {
				return nil, err
			}
		}

		curve = append(curve, b.portfolio.markToMarket(bar.Timestamp, bar.Close))
	}
	return curve, nil
}

func validateAccount(initialCapital, feeRate decimal.Decimal) error {
	if !initialCapital.IsPositive() {
		return invalidf("initial capital must be positive, got %s", initialCapital)
	}
	if feeRate.IsNegative() || feeRate.GreaterThanOrEqual(one) {
		return invalidf("fee rate must be in [0, 1), got %s", feeRate)
	}
	return nil
}

// barKey is the matching key for bars, signals and equity points: the UTC
// date for daily intervals and the exact instant for intraday bars. An unset
// interval counts as daily.
func barKey(t time.Time, interval types.Interval) int64 {
	if interval == "" || interval.Daily() {
		return types.DateKey(t).Unix()
	}
	return t.UnixNano()
}

func validateBars(bars []types.Candle, interval types.Interval) error {
	if len(bars) == 0 {
		return invalidf("empty price series")
	}
	var prev int64
	for i, bar := range bars {
		if !bar.Close.IsPositive() {
			return invalidf("non-positive close %s at %s", bar.Close, bar.Timestamp.Format(time.DateOnly))
		}
		key := barKey(bar.Timestamp, interval)
		if i > 0 && key <= prev {
			return invalidf("price series not strictly ascending at %s", bar.Timestamp.Format(time.RFC3339))
		}
		prev = key
	}
	return nil
}

// indexSignals maps each signal onto its bar. A signal on a date with no bar
// or a second signal on the same date is rejected.
func indexSignals(bars []types.Candle, signals []types.Signal, interval types.Interval) (map[int64]types.Action, error) {
	known := make(map[int64]struct{}, len(bars))
	for _, bar := range bars {
		known[barKey(bar.Timestamp, interval)] = struct{}{}
	}
	actions := make(map[int64]types.Action, len(signals))
	for _, s := range signals {
		key := barKey(s.Time, interval)
		if _, ok := known[key]; !ok {
			return nil, invalidf("signal at %s has no matching bar", s.Time.Format(time.DateOnly))
		}
		if _, dup := actions[key]; dup {
			return nil, invalidf("duplicate signal at %s", s.Time.Format(time.DateOnly))
		}
		switch s.Action {
		case types.ActionBuy, types.ActionSell, types.ActionHold:
		default:
			return nil, invalidf("unknown action %q at %s", s.Action, s.Time.Format(time.DateOnly))
		}
		actions[key] = s.Action
	}
	return actions, nil
}

func buyAndHoldReturn(bars []types.Candle) types.NullFloat {
	if len(bars) == 0 {
		return types.NullFloat{}
	}
	first := bars[0].Close
	if !first.IsPositive() {
		return types.NullFloat{}
	}
	last := bars[len(bars)-1].Close
	return types.SomeFloat(last.Sub(first).Div(first).InexactFloat64())
}
