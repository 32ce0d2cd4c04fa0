package types

import (
	"time"
)

type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Signal is a strategy's instruction for one trading date.
type Signal struct {
	Time   time.Time `json:"time"`
	Action Action    `json:"action"`
	Reason string    `json:"reason,omitempty"`
}

func NewSignal(t time.Time, action Action, reason string) Signal {
	return Signal{
		Time:   t,
		Action: action,
		Reason: reason,
	}
}

// HoldSignals returns one HOLD per candle date.
func HoldSignals(candles []Candle) []Signal {
	out := make([]Signal, len(candles))
	for i, c := range candles {
		out[i] = Signal{Time: c.Timestamp, Action: ActionHold}
	}
	return out
}
