package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/predictd/internal/domain"
)

const roundTTL = 5 * time.Minute

// RoundCache implements domain.RoundCache using JSON-serialized round
// snapshots under key "cache:round:{id}" with a short TTL. Resolution invalidates
// the entry so clients never see a stale ACTIVE status.
type RoundCache struct {
	rdb *redis.Client
}

// NewRoundCache creates a RoundCache backed by the given Client.
func NewRoundCache(c *Client) *RoundCache {
	return &RoundCache{rdb: c.Underlying()}
}

func roundKey(id string) string { return "cache:round:" + id }

// Get retrieves a cached round snapshot. It returns domain.ErrNotFound on a
// cache miss.
func (rc *RoundCache) Get(ctx context.Context, id string) (domain.Round, error) {
	data, err := rc.rdb.Get(ctx, roundKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Round{}, domain.ErrNotFound
		}
		return domain.Round{}, fmt.Errorf("redis: get round %s: %w", id, err)
	}

	var r domain.Round
	if err := json.Unmarshal(data, &r); err != nil {
		return domain.Round{}, fmt.Errorf("redis: unmarshal round %s: %w", id, err)
	}
	return r, nil
}

// Set stores a round snapshot with a 5-minute TTL.
func (rc *RoundCache) Set(ctx context.Context, r domain.Round) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("redis: marshal round %s: %w", r.ID, err)
	}
	if err := rc.rdb.Set(ctx, roundKey(r.ID), data, roundTTL).Err(); err != nil {
		return fmt.Errorf("redis: set round %s: %w", r.ID, err)
	}
	return nil
}

// Invalidate removes a round snapshot from the cache.
func (rc *RoundCache) Invalidate(ctx context.Context, id string) error {
	if err := rc.rdb.Del(ctx, roundKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate round %s: %w", id, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.RoundCache = (*RoundCache)(nil)
