package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/predictd/internal/domain"
)

// PriceFeed implements domain.PriceFeed using Redis hashes. The external
// oracle process writes each asset's latest price as a hash at
// "price:{assetID}" with fields "price" and "ts" (Unix nanosecond timestamp);
// the resolver only ever reads it.
type PriceFeed struct {
	rdb *redis.Client
}

// NewPriceFeed creates a PriceFeed backed by the given Client.
func NewPriceFeed(c *Client) *PriceFeed {
	return &PriceFeed{rdb: c.Underlying()}
}

func priceKey(assetID string) string {
	return "price:" + assetID
}

// GetPrice retrieves the latest price and timestamp for an asset.
// It returns domain.ErrNotFound when the oracle has not published a price.
func (pf *PriceFeed) GetPrice(ctx context.Context, assetID string) (float64, time.Time, error) {
	vals, err := pf.rdb.HGetAll(ctx, priceKey(assetID)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", assetID, err)
	}
	if len(vals) == 0 {
		return 0, time.Time{}, domain.ErrNotFound
	}

	priceStr, ok := vals["price"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse price %s: %w", assetID, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", assetID, err)
	}

	return price, time.Unix(0, tsNano), nil
}

// Compile-time interface check.
var _ domain.PriceFeed = (*PriceFeed)(nil)
