package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is a closed round trip. It is created when a SELL liquidates an open
// position and never changes afterwards.
type Trade struct {
	Ticker     string          `json:"ticker"`
	EntryTime  time.Time       `json:"entryTime"`
	ExitTime   time.Time       `json:"exitTime"`
	EntryPrice decimal.Decimal `json:"entryPrice"`
	ExitPrice  decimal.Decimal `json:"exitPrice"`
	Shares     int64           `json:"shares"`
	FeeIn      decimal.Decimal `json:"feeIn"`
	FeeOut     decimal.Decimal `json:"feeOut"`
	PnL        decimal.Decimal `json:"pnl"`
}

// Fees returns the total commission paid on both legs.
func (t Trade) Fees() decimal.Decimal {
	return t.FeeIn.Add(t.FeeOut)
}

// ReturnPct is pnl relative to the capital committed at entry.
func (t Trade) ReturnPct() decimal.Decimal {
	cost := t.EntryPrice.Mul(decimal.NewFromInt(t.Shares)).Add(t.FeeIn)
	if cost.IsZero() {
		return decimal.Zero
	}
	return t.PnL.Div(cost)
}
