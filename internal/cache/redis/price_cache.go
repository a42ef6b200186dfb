package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mlabs-tech/cryptarena-svm/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each asset's
// latest quote is stored at key "arena:quote:{index}" with fields "feed",
// "price", "expo", and "ts" (Unix nanosecond publish time).
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPriceCache creates a PriceCache backed by the given Client. Quotes
// expire after ttl; a non-positive ttl keeps them until overwritten.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{rdb: c.rdb, ttl: ttl}
}

func quoteKey(asset domain.AssetIndex) string {
	return "arena:quote:" + strconv.Itoa(int(asset))
}

// SetQuote stores the latest oracle quote for an asset.
func (pc *PriceCache) SetQuote(ctx context.Context, asset domain.AssetIndex, q domain.PriceQuote) error {
	key := quoteKey(asset)
	fields := map[string]interface{}{
		"feed":  q.FeedID,
		"price": strconv.FormatUint(q.Price, 10),
		"expo":  strconv.FormatInt(int64(q.Expo), 10),
		"ts":    strconv.FormatInt(q.PublishedAt.UnixNano(), 10),
	}

	pipe := pc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	if pc.ttl > 0 {
		pipe.Expire(ctx, key, pc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %d: %w", asset, err)
	}
	return nil
}

// GetQuote retrieves the latest cached quote for an asset. It returns
// domain.ErrNotFound when the key does not exist.
func (pc *PriceCache) GetQuote(ctx context.Context, asset domain.AssetIndex) (domain.PriceQuote, error) {
	vals, err := pc.rdb.HGetAll(ctx, quoteKey(asset)).Result()
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("redis: get quote %d: %w", asset, err)
	}
	if len(vals) == 0 {
		return domain.PriceQuote{}, domain.ErrNotFound
	}

	price, err := strconv.ParseUint(vals["price"], 10, 64)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("redis: parse quote price %d: %w", asset, err)
	}
	expo, err := strconv.ParseInt(vals["expo"], 10, 32)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("redis: parse quote expo %d: %w", asset, err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("redis: parse quote ts %d: %w", asset, err)
	}

	return domain.PriceQuote{
		FeedID:      vals["feed"],
		Price:       price,
		Expo:        int32(expo),
		PublishedAt: time.Unix(0, tsNano),
	}, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
