// Package pyth fetches oracle prices from a Pyth Hermes endpoint over HTTP
// and WebSocket.
package pyth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mlabs-tech/cryptarena-svm/internal/domain"
)

// Client is the REST client for the Hermes price API.
type Client struct {
	host       string
	httpClient *http.Client
}

// NewClient creates a new Hermes REST client.
//
// host is the API root, e.g. "https://hermes.pyth.network".
func NewClient(host string) *Client {
	return &Client{
		host: strings.TrimRight(host, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// LatestQuote fetches the most recent published quote for a feed.
func (c *Client) LatestQuote(ctx context.Context, feedID string) (domain.PriceQuote, error) {
	params := url.Values{}
	params.Add("ids[]", feedID)
	params.Set("parsed", "true")

	body, err := c.doRequest(ctx, "/v2/updates/price/latest?"+params.Encode())
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("pyth: latest quote %s: %w", feedID, err)
	}

	var resp latestResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.PriceQuote{}, fmt.Errorf("pyth: decode latest quote: %w", err)
	}
	if len(resp.Parsed) == 0 {
		return domain.PriceQuote{}, fmt.Errorf("pyth: latest quote %s: %w", feedID, domain.ErrMissingPriceData)
	}

	q, err := resp.Parsed[0].ToQuote()
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("pyth: parse quote %s: %w", feedID, err)
	}
	return q, nil
}

// GetPrice implements domain.Oracle. The returned quote is checked against
// the asset's configured feed and the freshness bound.
func (c *Client) GetPrice(ctx context.Context, asset domain.WhitelistedAsset, maxAge time.Duration) (domain.PriceQuote, error) {
	feedID := asset.NormalizedFeedID()

	q, err := c.LatestQuote(ctx, feedID)
	if err != nil {
		return domain.PriceQuote{}, err
	}

	if !strings.EqualFold(strings.TrimPrefix(q.FeedID, "0x"), strings.TrimPrefix(feedID, "0x")) {
		return domain.PriceQuote{}, fmt.Errorf("pyth: feed %s returned %s: %w", feedID, q.FeedID, domain.ErrFeedMismatch)
	}
	if maxAge > 0 && time.Since(q.PublishedAt) > maxAge {
		return domain.PriceQuote{}, fmt.Errorf("pyth: quote for %s published %s ago: %w",
			asset.Symbol, time.Since(q.PublishedAt).Round(time.Second), domain.ErrStalePrice)
	}
	return q, nil
}

// doRequest sends a GET against the Hermes API and reads the response.
func (c *Client) doRequest(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkStatus maps non-2xx HTTP status codes to appropriate errors.
func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	msg := strings.TrimSpace(string(body))
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("not found: %s", msg)
	case http.StatusTooManyRequests:
		return fmt.Errorf("rate limited: %s", msg)
	case http.StatusBadRequest:
		return fmt.Errorf("bad request: %s", msg)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, msg)
	}
}

// Compile-time interface check.
var _ domain.Oracle = (*Client)(nil)
