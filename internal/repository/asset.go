package repository

import (
	"context"
	"errors"
	"fmt"

	"tradelab/types"

	"github.com/jackc/pgx/v5"
)

// GetAssetByTicker retrieves a types.Asset by its ticker.
func (db *Database) GetAssetByTicker(ctx context.Context, ticker string) (*types.Asset, error) {
	asset, err := db.assets.GetAssetByTicker(ctx, ticker)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("ticker %s %w", ticker, ErrAssetNotFound)
		}
		return nil, err
	}
	assetType, err := types.ParseAssetType(asset.Type)
	if err != nil {
		return nil, fmt.Errorf("ticker %s: %w", ticker, err)
	}
	out := &types.Asset{
		Id:     int(asset.ID),
		Ticker: asset.Ticker,
		Name:   asset.Name,
		Type:   assetType,
	}
	if asset.CreatedAt != nil {
		out.CreatedAt = *asset.CreatedAt
	}
	if asset.ModifiedAt != nil {
		out.ModifiedAt = *asset.ModifiedAt
	}
	return out, nil
}
