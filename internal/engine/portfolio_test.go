package engine

import (
	"errors"
	"testing"

	"tradelab/types"

	"github.com/shopspring/decimal"
)

func TestPortfolio_OpenLong(t *testing.T) {
	tests := []struct {
		name       string
		cash       string
		fee        string
		price      string
		wantOpened bool
		wantShares int64
		wantCash   string
		wantFee    string
	}{
		{"whole shares after fee", "10000", "0.001", "100", true, 99, "90.1", "9.9"},
		{"exact fit without fee", "1000", "0", "100", true, 10, "0", "0"},
		{"fee pushes below one share", "100", "0.01", "100", false, 0, "100", "0"},
		{"fractional price", "500", "0.002", "33.33", true, 14, "32.44676", "0.93324"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := newPortfolio("AAPL", dec(tc.cash), dec(tc.fee))
			opened := p.openLong(day0, dec(tc.price))
			if p.cash.IsNegative() {
				t.Fatalf("cash went negative: %s", p.cash)
			}
			if opened != tc.wantOpened {
				t.Fatalf("opened = %v, want %v", opened, tc.wantOpened)
			}
			if !p.cash.Equal(dec(tc.wantCash)) {
				t.Errorf("cash = %s, want %s", p.cash, tc.wantCash)
			}
			if !tc.wantOpened {
				if !p.isFlat() {
					t.Errorf("expected flat portfolio")
				}
				return
			}
			if p.position.Shares != tc.wantShares {
				t.Errorf("shares = %d, want %d", p.position.Shares, tc.wantShares)
			}
			if !p.position.EntryFee.Equal(dec(tc.wantFee)) {
				t.Errorf("entry fee = %s, want %s", p.position.EntryFee, tc.wantFee)
			}
		})
	}
}

func TestPortfolio_CloseLong(t *testing.T) {
	p := newPortfolio("AAPL", dec("10000"), dec("0.001"))
	if !p.openLong(day0, dec("100")) {
		t.Fatalf("openLong() did not open")
	}
	tr, err := p.closeLong(day0.AddDate(0, 0, 2), dec("90"))
	if err != nil {
		t.Fatalf("closeLong() error = %v", err)
	}
	if !p.isFlat() {
		t.Errorf("expected flat after close")
	}
	if !p.cash.Equal(dec("8991.19")) {
		t.Errorf("cash = %s, want 8991.19", p.cash)
	}
	if !tr.PnL.Equal(dec("-1008.81")) {
		t.Errorf("pnl = %s, want -1008.81", tr.PnL)
	}
	if !tr.Fees().Equal(dec("18.81")) {
		t.Errorf("fees = %s, want 18.81", tr.Fees())
	}
	if len(p.trades) != 1 {
		t.Errorf("expected 1 recorded trade, got %d", len(p.trades))
	}

	if _, err := p.closeLong(day0.AddDate(0, 0, 3), dec("90")); !errors.Is(err, NoOpenPositionErr) {
		t.Errorf("closing a flat portfolio error = %v, want NoOpenPositionErr", err)
	}
}

func TestPortfolio_MarkToMarket(t *testing.T) {
	p := newPortfolio("AAPL", dec("1000"), decimal.Zero)
	flat := p.markToMarket(day0, dec("50"))
	if !flat.Equity.Equal(dec("1000")) || flat.Shares != 0 {
		t.Errorf("flat mark = %+v", flat)
	}

	if !p.openLong(day0, dec("50")) {
		t.Fatalf("openLong() did not open")
	}
	long := p.markToMarket(day0.AddDate(0, 0, 1), dec("60"))
	want := types.EquityPoint{
		Time:          day0.AddDate(0, 0, 1),
		Cash:          decimal.Zero,
		Shares:        20,
		Close:         dec("60"),
		PositionValue: dec("1200"),
		Equity:        dec("1200"),
	}
	if !long.Equity.Equal(want.Equity) || !long.PositionValue.Equal(want.PositionValue) || long.Shares != want.Shares {
		t.Errorf("long mark = %+v, want %+v", long, want)
	}
	if !p.openPosition().LastPrice.Equal(dec("60")) {
		t.Errorf("last price not updated by mark")
	}
}
