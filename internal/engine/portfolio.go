package engine

import (
	"time"

	"tradelab/types"

	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// portfolio is the cash ledger of a single-asset run. It is either flat or
// holds exactly one long position in whole shares.
type portfolio struct {
	ticker   string
	cash     decimal.Decimal
	feeRate  decimal.Decimal
	position *types.Position
	trades   []types.Trade
}

func newPortfolio(ticker string, initialCash, feeRate decimal.Decimal) *portfolio {
	return &portfolio{
		ticker:  ticker,
		cash:    initialCash,
		feeRate: feeRate,
	}
}

func (p *portfolio) isFlat() bool {
	return p.position == nil
}

// sharesForPrice is the largest whole share count whose cost including the
// entry fee fits in the available cash.
func (p *portfolio) sharesForPrice(price decimal.Decimal) int64 {
	unitCost := price.Mul(one.Add(p.feeRate))
	if !unitCost.IsPositive() {
		return 0
	}
	return p.cash.Div(unitCost).Floor().IntPart()
}

// openLong spends as much cash as possible on whole shares at price. It
// reports false and leaves the ledger untouched when not even one share is
// affordable. sharesForPrice sizes on price*(1+fee), so cash never goes
// negative.
func (p *portfolio) openLong(at time.Time, price decimal.Decimal) bool {
	shares := p.sharesForPrice(price)
	if shares < 1 {
		return false
	}
	notional := price.Mul(decimal.NewFromInt(shares))
	fee := notional.Mul(p.feeRate)
	p.cash = p.cash.Sub(notional).Sub(fee)
	p.position = &types.Position{
		Ticker:     p.ticker,
		Shares:     shares,
		EntryPrice: price,
		EntryTime:  at,
		EntryFee:   fee,
		LastPrice:  price,
	}
	return true
}

// closeLong liquidates the open position at price and records the trade.
func (p *portfolio) closeLong(at time.Time, price decimal.Decimal) (types.Trade, error) {
	if p.position == nil {
		return types.Trade{}, NoOpenPositionErr
	}
	pos := p.position
	qty := decimal.NewFromInt(pos.Shares)
	notional := price.Mul(qty)
	fee := notional.Mul(p.feeRate)
	p.cash = p.cash.Add(notional).Sub(fee)

	tr := types.Trade{
		Ticker:     p.ticker,
		EntryTime:  pos.EntryTime,
		ExitTime:   at,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  price,
		Shares:     pos.Shares,
		FeeIn:      pos.EntryFee,
		FeeOut:     fee,
		PnL:        price.Sub(pos.EntryPrice).Mul(qty).Sub(pos.EntryFee).Sub(fee),
	}
	p.trades = append(p.trades, tr)
	p.position = nil
	return tr, nil
}

// markToMarket returns the account state at the close of the given bar.
func (p *portfolio) markToMarket(at time.Time, closePrice decimal.Decimal) types.EquityPoint {
	var shares int64
	if p.position != nil {
		p.position.LastPrice = closePrice
		shares = p.position.Shares
	}
	return types.NewEquityPoint(at, p.cash, shares, closePrice)
}

func (p *portfolio) openPosition() *types.Position {
	if p.position == nil {
		return nil
	}
	pos := *p.position
	return &pos
}
