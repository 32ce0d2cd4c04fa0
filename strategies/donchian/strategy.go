package donchian

import (
	"fmt"

	"tradelab/internal/engine"
	"tradelab/types"

	"github.com/shopspring/decimal"
)

var _ engine.SignalGenerator = (*Strategy)(nil)

// Strategy trades Donchian channel breakouts. It buys when a bar's high breaks
// the highest high of the preceding channel bars and sells when a bar's low
// breaks the lowest low. With atr_stop set it also sells once the close
// falls below entry close minus atr_stop times ATR.
type Strategy struct{}

func NewStrategy() *Strategy { return &Strategy{} }

func (s *Strategy) Name() string { return "donchian" }

func (s *Strategy) Defaults() types.Params {
	return types.Params{"channel": 20, "atr_period": 20, "atr_stop": 0}
}

type params struct {
	channel   int
	atrPeriod int
	atrStop   decimal.Decimal
}

func (s *Strategy) parse(p types.Params) (params, error) {
	channel, err := p.Int("channel", 20)
	if err != nil {
		return params{}, fmt.Errorf("%w: %v", engine.ErrInvalidInput, err)
	}
	if channel < 1 {
		return params{}, fmt.Errorf("%w: channel must be at least 1, got %d", engine.ErrInvalidInput, channel)
	}
	atrPeriod, err := p.Int("atr_period", 20)
	if err != nil {
		return params{}, fmt.Errorf("%w: %v", engine.ErrInvalidInput, err)
	}
	if atrPeriod < 1 {
		return params{}, fmt.Errorf("%w: atr_period must be at least 1, got %d", engine.ErrInvalidInput, atrPeriod)
	}
	stop := p.Float("atr_stop", 0)
	if stop < 0 {
		return params{}, fmt.Errorf("%w: atr_stop must not be negative, got %v", engine.ErrInvalidInput, stop)
	}
	return params{channel: channel, atrPeriod: atrPeriod, atrStop: decimal.NewFromFloat(stop)}, nil
}

func (s *Strategy) Validate(p types.Params) error {
	_, err := s.parse(p)
	return err
}

func (s *Strategy) GenerateSignals(bars []types.Candle, p types.Params) ([]types.Signal, error) {
	cfg, err := s.parse(p)
	if err != nil {
		return nil, err
	}

	signals := types.HoldSignals(bars)
	long := false
	stopLoss := decimal.Zero

	for i := cfg.channel; i < len(bars); i++ {
		candle := bars[i]
		highestHigh, lowestLow := donchianHighLow(bars[i-cfg.channel : i])

		if !long && candle.High.GreaterThan(highestHigh) {
			signals[i].Action = types.ActionBuy
			signals[i].Reason = fmt.Sprintf("break of %d-bar high %s", cfg.channel, highestHigh.StringFixed(2))
			long = true
			stopLoss = decimal.Zero
			if cfg.atrStop.IsPositive() {
				if atr := calcATR(bars[:i+1], cfg.atrPeriod); atr.IsPositive() {
					stopLoss = candle.Close.Sub(atr.Mul(cfg.atrStop))
				}
			}
		}

		if candle.Low.LessThan(lowestLow) {
			signals[i].Action = types.ActionSell
			signals[i].Reason = fmt.Sprintf("break of %d-bar low %s", cfg.channel, lowestLow.StringFixed(2))
			long = false
			continue
		}
		if long && stopLoss.IsPositive() && signals[i].Action != types.ActionBuy && candle.Close.LessThan(stopLoss) {
			signals[i].Action = types.ActionSell
			signals[i].Reason = fmt.Sprintf("ATR stop at %s", stopLoss.StringFixed(2))
			long = false
		}
	}
	return signals, nil
}

func donchianHighLow(candles []types.Candle) (decimal.Decimal, decimal.Decimal) {
	if len(candles) == 0 {
		return decimal.Zero, decimal.Zero
	}

	highest := candles[0].High
	lowest := candles[0].Low

	for _, c := range candles {
		if c.High.GreaterThan(highest) {
			highest = c.High
		}
		if c.Low.LessThan(lowest) {
			lowest = c.Low
		}
	}
	return highest, lowest
}

// calcATR is Wilder's average true range over the whole slice.
func calcATR(candles []types.Candle, period int) decimal.Decimal {
	if len(candles) < period+1 {
		return decimal.Zero // need enough data (prev candle + period)
	}

	trueRanges := make([]decimal.Decimal, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		high := candles[i].High
		low := candles[i].Low
		prevClose := candles[i-1].Close

		maxTrueRange := decimal.Max(high.Sub(low), high.Sub(prevClose).Abs(), low.Sub(prevClose).Abs())
		trueRanges = append(trueRanges, maxTrueRange)
	}

	periodDec := decimal.NewFromInt(int64(period))
	atr := decimal.Zero
	for _, tr := range trueRanges[:period] {
		atr = atr.Add(tr)
	}
	atr = atr.Div(periodDec)

	for i := period; i < len(trueRanges); i++ {
		atr = atr.Mul(decimal.NewFromInt(int64(period - 1))).Add(trueRanges[i]).Div(periodDec)
	}
	return atr
}
