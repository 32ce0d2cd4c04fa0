package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"tradelab/types"

	"github.com/jackc/pgx/v5"
)

type mockAssetsRepository struct {
	sqlError error
	rowType  string
}

func TestDatabase_GetAssetByTicker(t *testing.T) {
	type args struct {
		ticker string
	}
	tests := []struct {
		name    string
		args    args
		rowType string
		want    *types.Asset
		sqlErr  error
		wantErr error
	}{
		{"should throw ErrAssetNotFound", args{"AAPL"}, "STOCK", nil, pgx.ErrNoRows, ErrAssetNotFound},
		{"should pass through driver errors", args{"AAPL"}, "STOCK", nil, errors.New("conn reset"), nil},
		{"should return asset", args{"AAPL"}, "STOCK", &types.Asset{Ticker: "AAPL", Id: 1, Type: types.AssetTypeStock}, nil, nil},
		{"should normalise lower-case type", args{"SPY"}, "etf", &types.Asset{Ticker: "SPY", Id: 1, Type: types.AssetTypeEtf}, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &Database{
				assets: mockAssetsRepository{
					sqlError: tt.sqlErr,
					rowType:  tt.rowType,
				},
			}
			got, err := db.GetAssetByTicker(context.Background(), tt.args.ticker)
			if tt.sqlErr != nil {
				if err == nil {
					t.Fatalf("GetAssetByTicker() expected error")
				}
				if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
					t.Errorf("GetAssetByTicker() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetAssetByTicker() unexpected error = %v", err)
			}
			if got.Ticker != tt.want.Ticker {
				t.Errorf("GetAssetByTicker() ticker = %v, want %v", got, tt.want)
			}
			if got.Id != tt.want.Id {
				t.Errorf("GetAssetByTicker() id = %v, want %v", got, tt.want)
			}
			if got.Type != tt.want.Type {
				t.Errorf("GetAssetByTicker() type = %v, want %v", got.Type, tt.want.Type)
			}
		})
	}
}

func (m mockAssetsRepository) GetAssetByTicker(_ context.Context, ticker string) (assetRow, error) {
	if m.sqlError != nil {
		return assetRow{}, m.sqlError
	}
	curTime := time.UnixMilli(1)
	return assetRow{
		ID:         1,
		Ticker:     ticker,
		Name:       "Apple",
		Type:       m.rowType,
		CreatedAt:  &curTime,
		ModifiedAt: &curTime,
	}, nil
}

func TestDatabase_GetAssetByTicker_UnknownType(t *testing.T) {
	db := &Database{assets: mockAssetsRepository{rowType: "BOND"}}
	if _, err := db.GetAssetByTicker(context.Background(), "TLT"); err == nil {
		t.Fatal("GetAssetByTicker() expected error for unknown asset type")
	}
}
