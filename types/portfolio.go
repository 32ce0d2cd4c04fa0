package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is the single open long holding of a single-asset run.
type Position struct {
	Ticker     string          `json:"ticker"`
	Shares     int64           `json:"shares"`
	EntryPrice decimal.Decimal `json:"entryPrice"`
	EntryTime  time.Time       `json:"entryTime"`
	EntryFee   decimal.Decimal `json:"entryFee"`
	LastPrice  decimal.Decimal `json:"lastPrice"`
}

// MarketValue marks the position to its last seen price.
func (p Position) MarketValue() decimal.Decimal {
	return p.LastPrice.Mul(decimal.NewFromInt(p.Shares))
}

// EquityPoint is the account state at the close of one trading date.
// Equity is always Cash + PositionValue.
type EquityPoint struct {
	Time          time.Time       `json:"time"`
	Cash          decimal.Decimal `json:"cash"`
	Shares        int64           `json:"shares"`
	Close         decimal.Decimal `json:"close"`
	PositionValue decimal.Decimal `json:"positionValue"`
	Equity        decimal.Decimal `json:"equity"`
}

func NewEquityPoint(t time.Time, cash decimal.Decimal, shares int64, closePrice decimal.Decimal) EquityPoint {
	posVal := closePrice.Mul(decimal.NewFromInt(shares))
	return EquityPoint{
		Time:          t,
		Cash:          cash,
		Shares:        shares,
		Close:         closePrice,
		PositionValue: posVal,
		Equity:        cash.Add(posVal),
	}
}

// Allocation is the starting capital assigned to one portfolio leg.
type Allocation struct {
	Symbol  string          `json:"symbol"`
	Capital decimal.Decimal `json:"capital"`
}
