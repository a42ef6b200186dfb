package domain

import (
	"context"
	"time"
)

// PriceCache stages the most recent oracle quote per asset so the keeper and
// the entry path do not hammer the upstream oracle.
type PriceCache interface {
	SetQuote(ctx context.Context, asset AssetIndex, q PriceQuote) error
	// GetQuote returns ErrNotFound when no quote is cached for the asset.
	GetQuote(ctx context.Context, asset AssetIndex) (PriceQuote, error)
}

// LockManager provides distributed mutual exclusion. Entry admission and
// phase transitions for one arena are serialized behind the arena's lock;
// operations on different arenas never contend.
type LockManager interface {
	// Acquire obtains the lock for key with the given TTL, returning an
	// unlock function. It returns ErrLockHeld when another party holds it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// SignalBus publishes arena lifecycle events to interested consumers (the
// websocket hub, the notifier). Delivery is at-most-once; the audit log is
// the durable record.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe returns a channel of payloads for the given channel name. The
	// subscription closes when ctx is cancelled.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// RateLimiter throttles API callers.
type RateLimiter interface {
	// Allow reports whether the caller identified by key may proceed under a
	// limit of n events per window.
	Allow(ctx context.Context, key string, n int, window time.Duration) (bool, error)
}
