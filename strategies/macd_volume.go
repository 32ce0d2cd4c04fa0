package strategies

import (
	"fmt"

	"tradelab/internal/engine"
	"tradelab/types"
)

var _ engine.SignalGenerator = (*MACDVolume)(nil)

// MACDVolume buys when the MACD line crosses above its signal line on volume
// above threshold times its moving average. It sells when MACD crosses below
// the signal line or the histogram turns negative.
type MACDVolume struct{}

func NewMACDVolume() *MACDVolume { return &MACDVolume{} }

func (m *MACDVolume) Name() string { return "macd_volume" }

func (m *MACDVolume) Defaults() types.Params {
	return types.Params{
		"macd_fast":        12,
		"macd_slow":        26,
		"macd_signal":      9,
		"volume_ma_period": 20,
		"volume_threshold": 1.2,
	}
}

type macdVolumeParams struct {
	fast, slow, signal int
	volumePeriod       int
	volumeThreshold    float64
}

func (m *MACDVolume) parse(params types.Params) (macdVolumeParams, error) {
	var p macdVolumeParams
	var err error
	if p.fast, err = window(params, "macd_fast", 12); err != nil {
		return p, err
	}
	if p.slow, err = window(params, "macd_slow", 26); err != nil {
		return p, err
	}
	if err = ordered("macd_fast", p.fast, "macd_slow", p.slow); err != nil {
		return p, err
	}
	if p.signal, err = window(params, "macd_signal", 9); err != nil {
		return p, err
	}
	if p.volumePeriod, err = window(params, "volume_ma_period", 20); err != nil {
		return p, err
	}
	if p.volumeThreshold, err = positive(params, "volume_threshold", 1.2); err != nil {
		return p, err
	}
	return p, nil
}

func (m *MACDVolume) Validate(params types.Params) error {
	_, err := m.parse(params)
	return err
}

func (m *MACDVolume) GenerateSignals(bars []types.Candle, params types.Params) ([]types.Signal, error) {
	p, err := m.parse(params)
	if err != nil {
		return nil, err
	}
	closes := types.Closes(bars)
	volumes := types.Volumes(bars)
	line, signalLine, hist := MACD(closes, p.fast, p.slow, p.signal)
	volumeMA := SMA(volumes, p.volumePeriod)

	signals := types.HoldSignals(bars)
	for i := 1; i < len(bars); i++ {
		if anyNaN(i, line, signalLine, hist, volumeMA) {
			continue
		}
		if crossedAbove(line, signalLine, i) && volumes[i] > volumeMA[i]*p.volumeThreshold {
			signals[i].Action = types.ActionBuy
			signals[i].Reason = fmt.Sprintf("MACD cross up on %.2fx volume", volumes[i]/volumeMA[i])
		}
		switch {
		case crossedBelow(line, signalLine, i):
			signals[i].Action = types.ActionSell
			signals[i].Reason = "MACD cross down"
		case hist[i] < 0:
			signals[i].Action = types.ActionSell
			signals[i].Reason = "MACD histogram negative"
		}
	}
	return signals, nil
}
