package domain

import (
	"context"
	"time"
)

// SignalBus is a lightweight pub/sub fabric connecting the resolver and the
// realtime gateway. Channels map one-to-one onto websocket rooms.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe returns a channel of raw payloads. Glob patterns ("round:*")
	// are supported. The returned channel closes when ctx is cancelled.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// PriceFeed exposes the latest oracle price for an asset. The oracle process
// writes prices out-of-band; this subsystem only reads them.
type PriceFeed interface {
	GetPrice(ctx context.Context, assetID string) (float64, time.Time, error)
}

// RoundCache caches round snapshots to keep point lookups off the database.
type RoundCache interface {
	Get(ctx context.Context, id string) (Round, error)
	Set(ctx context.Context, round Round) error
	Invalidate(ctx context.Context, id string) error
}

// LockManager provides distributed locks so only one resolver instance
// processes due tasks per cycle.
type LockManager interface {
	// Acquire obtains the lock or returns ErrLockHeld. On success the returned
	// function releases the lock and is safe to call more than once.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// Room channel naming shared by the bus publishers and the websocket hub.
func RoundChannel(roundID string) string { return "round:" + roundID }
func UserChannel(userID string) string   { return "user:" + userID }
