package types

import (
	"fmt"
	"strings"
	"time"
)

type AssetType string

const (
	AssetTypeStock  AssetType = "STOCK"
	AssetTypeCrypto AssetType = "CRYPTO"
	AssetTypeEtf    AssetType = "ETF"
)

// ParseAssetType accepts the stored asset type in any case.
func ParseAssetType(s string) (AssetType, error) {
	switch t := AssetType(strings.ToUpper(strings.TrimSpace(s))); t {
	case AssetTypeStock, AssetTypeCrypto, AssetTypeEtf:
		return t, nil
	default:
		return "", fmt.Errorf("unknown asset type %q", s)
	}
}

// Asset is a tradable instrument known to the price database.
type Asset struct {
	Id         int       `json:"id"`
	Ticker     string    `json:"ticker"`
	Name       string    `json:"name"`
	Type       AssetType `json:"type"`
	CreatedAt  time.Time `json:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
}
