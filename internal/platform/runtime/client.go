// Package runtime is the REST client for the contract runtime: paginated
// contract listing, per-contract applicable actions, and contract details.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ListFilter narrows the contract listing to contracts visible to this
// service: by participating address or by tag.
type ListFilter struct {
	PartyAddresses []string
	Tags           []string
}

// Client is the REST client for the contract runtime API.
type Client struct {
	baseURL    string
	pageSize   int
	httpClient *http.Client
}

// NewClient creates a runtime client. baseURL is the API root, pageSize the
// listing page size.
func NewClient(baseURL string, pageSize int) *Client {
	return &Client{
		baseURL:  baseURL,
		pageSize: pageSize,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ListContracts returns one page of contract headers matching the filter.
// Pass the previous page's NextCursor to continue; an empty NextCursor in the
// response means the listing is exhausted.
func (c *Client) ListContracts(ctx context.Context, filter ListFilter, cursor string) (ContractsPage, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(c.pageSize))
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	for _, a := range filter.PartyAddresses {
		params.Add("partyAddress", a)
	}
	for _, t := range filter.Tags {
		params.Add("tag", t)
	}

	body, err := c.do(ctx, "/contracts?"+params.Encode())
	if err != nil {
		return ContractsPage{}, fmt.Errorf("runtime: list contracts: %w", err)
	}

	var page ContractsPage
	if err := json.Unmarshal(body, &page); err != nil {
		return ContractsPage{}, fmt.Errorf("runtime: decode contracts page: %w", err)
	}
	return page, nil
}

// Next returns the actions applicable to the contract over the given validity
// window.
func (c *Client) Next(ctx context.Context, contractID string, validFrom, validUntil time.Time) (NextResponse, error) {
	params := url.Values{}
	params.Set("validityStart", validFrom.UTC().Format(time.RFC3339))
	params.Set("validityEnd", validUntil.UTC().Format(time.RFC3339))

	path := fmt.Sprintf("/contracts/%s/next?%s", url.PathEscape(contractID), params.Encode())
	body, err := c.do(ctx, path)
	if err != nil {
		return NextResponse{}, fmt.Errorf("runtime: next actions for %s: %w", contractID, err)
	}

	var next NextResponse
	if err := json.Unmarshal(body, &next); err != nil {
		return NextResponse{}, fmt.Errorf("runtime: decode next actions: %w", err)
	}
	return next, nil
}

// GetContract returns the contract's current on-ledger position.
func (c *Client) GetContract(ctx context.Context, contractID string) (ContractDetails, error) {
	path := fmt.Sprintf("/contracts/%s", url.PathEscape(contractID))
	body, err := c.do(ctx, path)
	if err != nil {
		return ContractDetails{}, fmt.Errorf("runtime: get contract %s: %w", contractID, err)
	}

	var details ContractDetails
	if err := json.Unmarshal(body, &details); err != nil {
		return ContractDetails{}, fmt.Errorf("runtime: decode contract details: %w", err)
	}
	return details, nil
}

// do issues a GET against the runtime API and reads the response.
func (c *Client) do(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkStatus("runtime "+path, resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}
