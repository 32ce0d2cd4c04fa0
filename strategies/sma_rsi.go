package strategies

import (
	"fmt"

	"tradelab/internal/engine"
	"tradelab/types"
)

var _ engine.SignalGenerator = (*SMARSI)(nil)

// SMARSI is the moving-average crossover filtered by RSI. A golden cross only
// buys while RSI is below the buy threshold. A death cross or an overbought
// RSI sells, and a sell wins over a buy on the same date.
type SMARSI struct {
	cross SMACross
}

func NewSMARSI() *SMARSI { return &SMARSI{} }

func (s *SMARSI) Name() string { return "sma_rsi" }

func (s *SMARSI) Defaults() types.Params {
	return s.cross.Defaults().Merge(types.Params{
		"rsi_period":     14,
		"rsi_threshold":  50,
		"rsi_overbought": 70,
	})
}

type smaRSIParams struct {
	smaCrossParams
	period     int
	buyBelow   float64
	overbought float64
}

func (s *SMARSI) parse(params types.Params) (smaRSIParams, error) {
	cross, err := s.cross.parse(params)
	if err != nil {
		return smaRSIParams{}, err
	}
	period, err := window(params, "rsi_period", 14)
	if err != nil {
		return smaRSIParams{}, err
	}
	buyBelow := params.Float("rsi_threshold", params.Float("rsi_buy_threshold", 50))
	overbought := params.Float("rsi_overbought", 70)
	if err := percentile("rsi_threshold", buyBelow); err != nil {
		return smaRSIParams{}, err
	}
	if err := percentile("rsi_overbought", overbought); err != nil {
		return smaRSIParams{}, err
	}
	return smaRSIParams{smaCrossParams: cross, period: period, buyBelow: buyBelow, overbought: overbought}, nil
}

func (s *SMARSI) Validate(params types.Params) error {
	_, err := s.parse(params)
	return err
}

func (s *SMARSI) GenerateSignals(bars []types.Candle, params types.Params) ([]types.Signal, error) {
	p, err := s.parse(params)
	if err != nil {
		return nil, err
	}
	closes := types.Closes(bars)
	short := SMA(closes, p.short)
	long := SMA(closes, p.long)
	rsi := RSI(closes, p.period)

	signals := types.HoldSignals(bars)
	for i := 1; i < len(bars); i++ {
		if anyNaN(i, short, long, rsi) {
			continue
		}
		if crossedAbove(short, long, i) && rsi[i] < p.buyBelow {
			signals[i].Action = types.ActionBuy
			signals[i].Reason = fmt.Sprintf("golden cross with RSI %.1f", rsi[i])
		}
		switch {
		case crossedBelow(short, long, i):
			signals[i].Action = types.ActionSell
			signals[i].Reason = "death cross"
		case rsi[i] > p.overbought:
			signals[i].Action = types.ActionSell
			signals[i].Reason = fmt.Sprintf("RSI overbought at %.1f", rsi[i])
		}
	}
	return signals, nil
}
