package strategies

import (
	"tradelab/internal/engine"
	"tradelab/types"
)

var _ engine.SignalGenerator = (*SMACross)(nil)

// SMACross buys when the short moving average crosses above the long one and
// sells on the opposite cross.
type SMACross struct{}

func NewSMACross() *SMACross { return &SMACross{} }

func (s *SMACross) Name() string { return "sma_cross" }

func (s *SMACross) Defaults() types.Params {
	return types.Params{"short_window": 5, "long_window": 30}
}

type smaCrossParams struct {
	short, long int
}

func (s *SMACross) parse(params types.Params) (smaCrossParams, error) {
	short, err := window(params, "short_window", 5)
	if err != nil {
		return smaCrossParams{}, err
	}
	long, err := window(params, "long_window", 30)
	if err != nil {
		return smaCrossParams{}, err
	}
	if err := ordered("short_window", short, "long_window", long); err != nil {
		return smaCrossParams{}, err
	}
	return smaCrossParams{short: short, long: long}, nil
}

func (s *SMACross) Validate(params types.Params) error {
	_, err := s.parse(params)
	return err
}

func (s *SMACross) GenerateSignals(bars []types.Candle, params types.Params) ([]types.Signal, error) {
	p, err := s.parse(params)
	if err != nil {
		return nil, err
	}
	closes := types.Closes(bars)
	short := SMA(closes, p.short)
	long := SMA(closes, p.long)

	signals := types.HoldSignals(bars)
	for i := 1; i < len(bars); i++ {
		if anyNaN(i, short, long) {
			continue
		}
		if crossedAbove(short, long, i) {
			signals[i].Action = types.ActionBuy
			signals[i].Reason = "short SMA crossed above long SMA"
		}
		if crossedBelow(short, long, i) {
			signals[i].Action = types.ActionSell
			signals[i].Reason = "short SMA crossed below long SMA"
		}
	}
	return signals, nil
}
