package domain

import (
	"context"
	"time"
)

// PriceQuote is one authenticated oracle observation: an unsigned mantissa
// with a signed power-of-ten exponent, the feed that produced it, and its
// publish time.
type PriceQuote struct {
	FeedID      string
	Price       uint64
	Expo        int32
	PublishedAt time.Time
}

// Oracle supplies age-bounded, feed-authenticated prices for whitelisted
// assets. Implementations must return ErrFeedMismatch when the quote's feed
// does not match the asset's configured feed id, and ErrStalePrice when the
// quote is older than maxAge.
type Oracle interface {
	GetPrice(ctx context.Context, asset WhitelistedAsset, maxAge time.Duration) (PriceQuote, error)
}
