// Package client provides a Go client for the galaxy-oracle HTTP API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Galaxy-KJ/galaxy-oracle/pkg/version"
)

// AggregatedPrice is a consensus price as served by /v1/price and /v1/prices.
type AggregatedPrice struct {
	Symbol           string          `json:"symbol"`
	Price            decimal.Decimal `json:"price"`
	Timestamp        time.Time       `json:"timestamp"`
	Confidence       float64         `json:"confidence"`
	SourcesUsed      []string        `json:"sources_used"`
	OutliersFiltered []string        `json:"outliers_filtered"`
	SourceCount      int             `json:"source_count"`
	Stale            bool            `json:"stale"`
}

// Sample is a single unaggregated source quote as served by /v1/price/raw.
type Sample struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
	Source    string          `json:"source"`
}

// SourceStatus describes one registered source as served by /v1/sources.
type SourceStatus struct {
	Name         string    `json:"name"`
	Weight       float64   `json:"weight"`
	Healthy      bool      `json:"healthy"`
	LastChecked  time.Time `json:"last_checked"`
	FailureCount int       `json:"failure_count"`
	CircuitState string    `json:"circuit_state"`
}

// CacheStats reports cache occupancy as served by /v1/cache/stats.
type CacheStats struct {
	PriceCount      int `json:"price_count"`
	AggregatedCount int `json:"aggregated_count"`
	TotalSize       int `json:"total_size"`
}

// Client talks to a galaxy-oracle server over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the oracle server at baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

// Health checks whether the server is accepting requests.
func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "/health", nil, nil)
}

// GetPrice fetches the aggregated price for a symbol.
func (c *Client) GetPrice(ctx context.Context, symbol string) (AggregatedPrice, error) {
	q := url.Values{"symbol": {symbol}}

	var price AggregatedPrice
	if err := c.get(ctx, "/v1/price", q, &price); err != nil {
		return AggregatedPrice{}, err
	}
	return price, nil
}

// GetPrices fetches aggregated prices for several symbols in one request.
// Symbols the server could not price are absent from the result.
func (c *Client) GetPrices(ctx context.Context, symbols []string) ([]AggregatedPrice, error) {
	q := url.Values{"symbols": {strings.Join(symbols, ",")}}

	var prices []AggregatedPrice
	if err := c.get(ctx, "/v1/prices", q, &prices); err != nil {
		return nil, err
	}
	return prices, nil
}

// GetRawPrice fetches a single source quote, bypassing aggregation and the
// cache. An empty source lets the server pick the first eligible one.
func (c *Client) GetRawPrice(ctx context.Context, symbol, source string) (Sample, error) {
	q := url.Values{"symbol": {symbol}}
	if source != "" {
		q.Set("source", source)
	}

	var sample Sample
	if err := c.get(ctx, "/v1/price/raw", q, &sample); err != nil {
		return Sample{}, err
	}
	return sample, nil
}

// GetSources fetches the status of every registered source.
func (c *Client) GetSources(ctx context.Context) ([]SourceStatus, error) {
	var statuses []SourceStatus
	if err := c.get(ctx, "/v1/sources", nil, &statuses); err != nil {
		return nil, err
	}
	return statuses, nil
}

// GetCacheStats fetches cache occupancy counters.
func (c *Client) GetCacheStats(ctx context.Context) (CacheStats, error) {
	var stats CacheStats
	if err := c.get(ctx, "/v1/cache/stats", nil, &stats); err != nil {
		return CacheStats{}, err
	}
	return stats, nil
}

// InvalidateCache evicts the cached entries for a symbol, or every cached
// entry when symbol is empty.
func (c *Client) InvalidateCache(ctx context.Context, symbol string) error {
	q := url.Values{}
	if symbol != "" {
		q.Set("symbol", symbol)
	}

	req, err := c.newRequest(ctx, http.MethodDelete, "/v1/cache", q)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch /v1/cache: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return statusError(resp)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", version.AgentString())

	return req, nil
}

// get performs a GET request and decodes the JSON response into out when
// out is non-nil.
func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, query)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
