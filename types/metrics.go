package types

import (
	"encoding/json"
	"strconv"
)

// NullFloat is a metric that may be undefined for the given input, such as a
// Sharpe ratio over fewer than two returns. It encodes to JSON null.
type NullFloat struct {
	Float64 float64
	Valid   bool
}

func SomeFloat(v float64) NullFloat {
	return NullFloat{Float64: v, Valid: true}
}

func (n NullFloat) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Float64)
}

func (n *NullFloat) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*n = NullFloat{}
		return nil
	}
	if err := json.Unmarshal(data, &n.Float64); err != nil {
		return err
	}
	n.Valid = true
	return nil
}

func (n NullFloat) String() string {
	if !n.Valid {
		return "n/a"
	}
	return strconv.FormatFloat(n.Float64, 'f', 4, 64)
}

// Metrics summarises an equity curve.
type Metrics struct {
	TotalReturn      NullFloat `json:"totalReturn"`
	AnnualizedReturn NullFloat `json:"annualizedReturn"`
	MaxDrawdown      float64   `json:"maxDrawdown"`
	SharpeRatio      NullFloat `json:"sharpeRatio"`
	Volatility       NullFloat `json:"volatility"`
	FinalEquity      float64   `json:"finalEquity"`
	TradingDays      int       `json:"tradingDays"`
}
