// Package applysvc is the client for the external apply-computation service,
// which computes a contract's next encoded state given its current state and
// an input.
package applysvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/halcyonlabs/oraclebridge/internal/domain"
)

// ApplyParams is the request to the apply-computation service.
type ApplyParams struct {
	ContractID      string    `json:"contractId"`
	CurrentDatumHex string    `json:"currentDatum"`
	ChoiceName      string    `json:"choiceName"`
	ChoiceOwner     string    `json:"choiceOwner"`
	Value           int64     `json:"value"`
	ValidFrom       time.Time `json:"validFrom"`
	ValidUntil      time.Time `json:"validUntil"`
}

// Payment is value the apply result would release to a party. The bridge
// refuses to automate transactions that release payments.
type Payment struct {
	Address  string `json:"address"`
	Lovelace int64  `json:"lovelace"`
}

// ApplyResult is a successful apply computation: the contract's new encoded
// state, the spending proof, and any resulting payments.
type ApplyResult struct {
	NewDatumHex string    `json:"newDatum"`
	RedeemerHex string    `json:"redeemer"`
	Payments    []Payment `json:"payments"`
}

// Client is the REST client for the apply-computation service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates an apply-computation client for the given API root.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Apply submits the contract's current state and the chosen input and returns
// the computed transition.
func (c *Client) Apply(ctx context.Context, params ApplyParams) (ApplyResult, error) {
	payload, err := json.Marshal(params)
	if err != nil {
		return ApplyResult{}, fmt.Errorf("applysvc: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/apply", bytes.NewReader(payload))
	if err != nil {
		return ApplyResult{}, fmt.Errorf("applysvc: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ApplyResult{}, fmt.Errorf("applysvc: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ApplyResult{}, fmt.Errorf("applysvc: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(body)
		if len(msg) > 1024 {
			msg = msg[:1024]
		}
		return ApplyResult{}, &domain.RequestError{Op: "applysvc apply", Status: resp.StatusCode, Body: msg}
	}

	var result ApplyResult
	if err := json.Unmarshal(body, &result); err != nil {
		return ApplyResult{}, fmt.Errorf("applysvc: decode result: %w", err)
	}
	if result.NewDatumHex == "" || result.RedeemerHex == "" {
		return ApplyResult{}, fmt.Errorf("applysvc: incomplete result for %s", params.ContractID)
	}
	return result, nil
}
