package pyth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlabs-tech/cryptarena-svm/internal/domain"
)

const testFeedID = "e62df6c8b4a85fe1a67db44dc12de5db330f7ac66b72dc658afedf0f4a415b43"

func hermesServer(t *testing.T, feedID string, price string, expo int32, publishTime int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/updates/price/latest", r.URL.Path)
		assert.Equal(t, feedID, r.URL.Query()["ids[]"][0])

		fmt.Fprintf(w, `{"parsed":[{"id":%q,"price":{"price":%q,"conf":"100","expo":%d,"publish_time":%d}}]}`,
			feedID, price, expo, publishTime)
	}))
}

func testAsset() domain.WhitelistedAsset {
	return domain.WhitelistedAsset{
		Index:  0,
		Symbol: "BTC",
		FeedID: testFeedID,
		Active: true,
	}
}

func TestGetPriceReturnsQuote(t *testing.T) {
	now := time.Now().Unix()
	srv := hermesServer(t, testFeedID, "6423055000000", -8, now)
	defer srv.Close()

	c := NewClient(srv.URL)
	q, err := c.GetPrice(t.Context(), testAsset(), time.Minute)
	require.NoError(t, err)

	assert.Equal(t, uint64(6423055000000), q.Price)
	assert.Equal(t, int32(-8), q.Expo)
	assert.Equal(t, now, q.PublishedAt.Unix())
}

func TestGetPriceRejectsStaleQuote(t *testing.T) {
	srv := hermesServer(t, testFeedID, "6423055000000", -8, time.Now().Add(-10*time.Minute).Unix())
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.GetPrice(t.Context(), testAsset(), time.Minute)
	assert.ErrorIs(t, err, domain.ErrStalePrice)
}

func TestGetPriceRejectsFeedMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"parsed":[{"id":"deadbeef","price":{"price":"1","conf":"0","expo":-8,"publish_time":%d}}]}`,
			time.Now().Unix())
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.GetPrice(t.Context(), testAsset(), time.Minute)
	assert.ErrorIs(t, err, domain.ErrFeedMismatch)
}

func TestGetPriceEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"parsed":[]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.GetPrice(t.Context(), testAsset(), time.Minute)
	assert.ErrorIs(t, err, domain.ErrMissingPriceData)
}

func TestGetPriceUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.GetPrice(t.Context(), testAsset(), time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

type fakeCache struct {
	quotes map[domain.AssetIndex]domain.PriceQuote
	sets   int
}

func newFakeCache() *fakeCache {
	return &fakeCache{quotes: map[domain.AssetIndex]domain.PriceQuote{}}
}

func (f *fakeCache) SetQuote(_ context.Context, asset domain.AssetIndex, q domain.PriceQuote) error {
	f.sets++
	f.quotes[asset] = q
	return nil
}

func (f *fakeCache) GetQuote(_ context.Context, asset domain.AssetIndex) (domain.PriceQuote, error) {
	q, ok := f.quotes[asset]
	if !ok {
		return domain.PriceQuote{}, domain.ErrNotFound
	}
	return q, nil
}

func TestCachedOracleServesFreshCacheHit(t *testing.T) {
	srv := hermesServer(t, testFeedID, "100", -8, time.Now().Unix())
	defer srv.Close()

	cache := newFakeCache()
	cache.quotes[0] = domain.PriceQuote{
		FeedID:      testFeedID,
		Price:       42,
		Expo:        -8,
		PublishedAt: time.Now(),
	}

	o := NewCachedOracle(NewClient(srv.URL), cache)
	q, err := o.GetPrice(t.Context(), testAsset(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), q.Price)
	assert.Zero(t, cache.sets)
}

func TestCachedOracleFetchesOnStaleCache(t *testing.T) {
	srv := hermesServer(t, testFeedID, "100", -8, time.Now().Unix())
	defer srv.Close()

	cache := newFakeCache()
	cache.quotes[0] = domain.PriceQuote{
		FeedID:      testFeedID,
		Price:       42,
		Expo:        -8,
		PublishedAt: time.Now().Add(-time.Hour),
	}

	o := NewCachedOracle(NewClient(srv.URL), cache)
	q, err := o.GetPrice(t.Context(), testAsset(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), q.Price)
	assert.Equal(t, 1, cache.sets)
}
