package pyth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mlabs-tech/cryptarena-svm/internal/domain"
)

// CachedOracle wraps an upstream oracle with a shared quote cache. Cache hits
// that satisfy the freshness bound skip the upstream fetch entirely; misses
// fetch and repopulate the cache for other processes.
type CachedOracle struct {
	upstream domain.Oracle
	cache    domain.PriceCache
}

// NewCachedOracle creates a CachedOracle over the given upstream and cache.
func NewCachedOracle(upstream domain.Oracle, cache domain.PriceCache) *CachedOracle {
	return &CachedOracle{upstream: upstream, cache: cache}
}

// GetPrice implements domain.Oracle.
func (o *CachedOracle) GetPrice(ctx context.Context, asset domain.WhitelistedAsset, maxAge time.Duration) (domain.PriceQuote, error) {
	q, err := o.cache.GetQuote(ctx, asset.Index)
	if err == nil && o.usable(q, asset, maxAge) {
		return q, nil
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.PriceQuote{}, fmt.Errorf("pyth: cached quote %s: %w", asset.Symbol, err)
	}

	q, err = o.upstream.GetPrice(ctx, asset, maxAge)
	if err != nil {
		return domain.PriceQuote{}, err
	}

	// Cache write failures do not invalidate the freshly fetched quote.
	_ = o.cache.SetQuote(ctx, asset.Index, q)
	return q, nil
}

func (o *CachedOracle) usable(q domain.PriceQuote, asset domain.WhitelistedAsset, maxAge time.Duration) bool {
	if !strings.EqualFold(strings.TrimPrefix(q.FeedID, "0x"), strings.TrimPrefix(asset.NormalizedFeedID(), "0x")) {
		return false
	}
	return maxAge <= 0 || time.Since(q.PublishedAt) <= maxAge
}

// Compile-time interface check.
var _ domain.Oracle = (*CachedOracle)(nil)
