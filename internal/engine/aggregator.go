package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"tradelab/types"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// allocationPlaces is the precision of an equal-weight share before the
// remainder is assigned to the last symbol.
const allocationPlaces = 8

// PortfolioRequest describes an equal-weight run over several symbols.
type PortfolioRequest struct {
	Symbols        []string
	Interval       types.Interval
	Start          time.Time
	End            time.Time
	Strategy       SignalGenerator
	Params         types.Params
	InitialCapital decimal.Decimal
	FeeRate        decimal.Decimal
}

// NewPortfolioRequest fills capital and fees from the engine config.
func (e *Engine) NewPortfolioRequest(symbols []string, interval types.Interval, start, end time.Time, strat SignalGenerator, params types.Params) PortfolioRequest {
	return PortfolioRequest{
		Symbols:        symbols,
		Interval:       interval,
		Start:          start,
		End:            end,
		Strategy:       strat,
		Params:         params,
		InitialCapital: e.config.InitialCash(),
		FeeRate:        e.config.FeeRate(),
	}
}

// SymbolResult is one successful leg of a portfolio run.
type SymbolResult struct {
	Symbol     string          `json:"symbol"`
	Allocation decimal.Decimal `json:"allocation"`
	Result     *Result         `json:"result"`
}

// Warning records a leg that was left out of the portfolio.
type Warning struct {
	Symbol  string `json:"symbol"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

type PortfolioResult struct {
	Strategy       string              `json:"strategy"`
	InitialCapital decimal.Decimal     `json:"initialCapital"`
	Allocations    []types.Allocation  `json:"allocations"`
	Legs           []SymbolResult      `json:"legs"`
	EquityCurve    []types.EquityPoint `json:"equityCurve"`
	Metrics        types.Metrics       `json:"metrics"`
	TotalTrades    int                 `json:"totalTrades"`
	Warnings       []Warning           `json:"warnings"`
}

type legOutcome struct {
	res *Result
	err error
}

// RunPortfolio splits the initial capital equally across the symbols, runs
// each leg independently and sums the legs into one equity curve. A leg that
// fails is dropped with a warning and its capital leaves the portfolio. When
// every leg fails the error wraps ErrNoValidSymbols.
func (e *Engine) RunPortfolio(ctx context.Context, req PortfolioRequest) (*PortfolioResult, error) {
	symbols, err := normalizeSymbols(req.Symbols)
	if err != nil {
		return nil, err
	}
	if req.Strategy == nil {
		return nil, invalidf("no strategy")
	}
	if err := validateAccount(req.InitialCapital, req.FeeRate); err != nil {
		return nil, err
	}
	if err := validateParams(req.Strategy, req.Params); err != nil {
		return nil, err
	}

	allocations := SplitEqual(req.InitialCapital, symbols)
	outcomes := make([]legOutcome, len(symbols))

	g := new(errgroup.Group)
	g.SetLimit(e.config.workers)
	for i, alloc := range allocations {
		g.Go(func() error {
			res, err := e.backtest(ctx, BacktestRequest{
				Feed:           NewDataFeed(alloc.Symbol, req.Interval, req.Start, req.End),
				Strategy:       req.Strategy,
				Params:         req.Params,
				InitialCapital: alloc.Capital,
				FeeRate:        req.FeeRate,
			})
			outcomes[i] = legOutcome{res: res, err: err}
			if e.OnSymbolDone != nil {
				e.OnSymbolDone(alloc.Symbol, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &PortfolioResult{
		Strategy:    req.Strategy.Name(),
		Allocations: allocations,
		Legs:        []SymbolResult{},
		Warnings:    []Warning{},
	}
	funded := decimal.Zero
	for i, alloc := range allocations {
		o := outcomes[i]
		if o.err != nil {
			e.observer.SymbolFailed(alloc.Symbol)
			e.log.Warn("symbol excluded from portfolio", "symbol", alloc.Symbol, "error", o.err)
			out.Warnings = append(out.Warnings, Warning{Symbol: alloc.Symbol, Message: o.err.Error(), Err: o.err})
			continue
		}
		funded = funded.Add(alloc.Capital)
		out.TotalTrades += len(o.res.Trades)
		out.Legs = append(out.Legs, SymbolResult{Symbol: alloc.Symbol, Allocation: alloc.Capital, Result: o.res})
	}
	if len(out.Legs) == 0 {
		return nil, fmt.Errorf("%w: %d of %d symbols failed", ErrNoValidSymbols, len(out.Warnings), len(symbols))
	}

	out.InitialCapital = funded
	out.EquityCurve = CombineEquity(out.Legs)
	out.Metrics = Summarize(out.EquityCurve)
	return out, nil
}

// SplitEqual gives every symbol the same share of capital truncated to eight
// decimal places. The last symbol also receives the remainder so the shares
// always sum to capital exactly.
func SplitEqual(capital decimal.Decimal, symbols []string) []types.Allocation {
	if len(symbols) == 0 {
		return nil
	}
	share := capital.Div(decimal.NewFromInt(int64(len(symbols)))).Truncate(allocationPlaces)
	out := make([]types.Allocation, len(symbols))
	assigned := decimal.Zero
	for i, sym := range symbols {
		amount := share
		if i == len(symbols)-1 {
			amount = capital.Sub(assigned)
		}
		assigned = assigned.Add(amount)
		out[i] = types.Allocation{Symbol: sym, Capital: amount}
	}
	return out
}

// CombineEquity aligns the legs on the union of their trading dates and sums
// them. A leg missing a date carries its previous point forward, and before
// its first bar it counts as its allocation held in cash.
func CombineEquity(legs []SymbolResult) []types.EquityPoint {
	if len(legs) == 0 {
		return nil
	}
	interval := legs[0].Result.Interval
	daily := interval == "" || interval.Daily()

	seen := make(map[int64]time.Time)
	for _, leg := range legs {
		for _, p := range leg.Result.EquityCurve {
			t := p.Time
			if daily {
				t = types.DateKey(t)
			}
			seen[barKey(t, interval)] = t
		}
	}
	keys := make([]int64, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	cursors := make([]int, len(legs))
	for i := range cursors {
		cursors[i] = -1
	}

	combined := make([]types.EquityPoint, 0, len(keys))
	for _, key := range keys {
		cash := decimal.Zero
		posVal := decimal.Zero
		for i, leg := range legs {
			curve := leg.Result.EquityCurve
			for cursors[i]+1 < len(curve) && barKey(curve[cursors[i]+1].Time, interval) <= key {
				cursors[i]++
			}
			if cursors[i] < 0 {
				cash = cash.Add(leg.Allocation)
				continue
			}
			p := curve[cursors[i]]
			cash = cash.Add(p.Cash)
			posVal = posVal.Add(p.PositionValue)
		}
		combined = append(combined, types.EquityPoint{
			Time:          seen[key],
			Cash:          cash,
			PositionValue: posVal,
			Equity:        cash.Add(posVal),
		})
	}
	return combined
}

func normalizeSymbols(symbols []string) ([]string, error) {
	if len(symbols) == 0 {
		return nil, invalidf("no symbols")
	}
	out := make([]string, 0, len(symbols))
	seen := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		sym := strings.ToUpper(strings.TrimSpace(s))
		if sym == "" {
			return nil, invalidf("empty symbol")
		}
		if _, dup := seen[sym]; dup {
			return nil, invalidf("duplicate symbol %s", sym)
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	return out, nil
}
