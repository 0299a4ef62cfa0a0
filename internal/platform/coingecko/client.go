// Package coingecko is a minimal client for the CoinGecko simple-price API,
// the bridge's public REST price source.
package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/halcyonlabs/oraclebridge/internal/domain"
)

// DefaultBaseURL is the public CoinGecko API root.
const DefaultBaseURL = "https://api.coingecko.com/api/v3"

// ErrUnknownCurrency reports a 2xx response that does not contain the
// requested currency pair.
var ErrUnknownCurrency = errors.New("currency pair missing from price response")

// Client is the REST client for the price API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a price API client. An empty baseURL selects the public
// endpoint.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Price fetches the spot price of baseID quoted in quoteID (CoinGecko
// identifiers, e.g. "cardano", "usd"). The raw floating value is returned;
// fixed-point scaling is the resolver's business.
func (c *Client) Price(ctx context.Context, baseID, quoteID string) (float64, error) {
	params := url.Values{}
	params.Set("ids", baseID)
	params.Set("vs_currencies", quoteID)

	reqURL := fmt.Sprintf("%s/simple/price?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, fmt.Errorf("coingecko: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("coingecko: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("coingecko: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(body)
		if len(msg) > 1024 {
			msg = msg[:1024]
		}
		return 0, &domain.RequestError{Op: "coingecko simple/price", Status: resp.StatusCode, Body: msg}
	}

	// Response shape: {"cardano": {"usd": 0.4523}}.
	var prices map[string]map[string]float64
	if err := json.Unmarshal(body, &prices); err != nil {
		return 0, fmt.Errorf("coingecko: decode response: %w", err)
	}

	quotes, ok := prices[baseID]
	if !ok {
		return 0, fmt.Errorf("coingecko: base %q: %w", baseID, ErrUnknownCurrency)
	}
	raw, ok := quotes[quoteID]
	if !ok {
		return 0, fmt.Errorf("coingecko: quote %q for base %q: %w", quoteID, baseID, ErrUnknownCurrency)
	}
	return raw, nil
}
