// Package blockfrost implements the ledger/wallet provider view on top of the
// Blockfrost API: UTxO lookup by address, asset unit, and reference, plus
// transaction submission.
package blockfrost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/halcyonlabs/oraclebridge/internal/domain"
)

// pageSize is the Blockfrost maximum page size.
const pageSize = 100

// Client is the REST client for the Blockfrost API.
type Client struct {
	baseURL    string
	projectID  string
	httpClient *http.Client
}

// NewClient creates a Blockfrost client for the given API root and project
// key.
func NewClient(baseURL, projectID string) *Client {
	return &Client{
		baseURL:   baseURL,
		projectID: projectID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// UTxOsAt returns every unspent output at the given address. An address the
// chain has never seen yields an empty slice, not an error.
func (c *Client) UTxOsAt(ctx context.Context, address string) ([]domain.UTxO, error) {
	var out []domain.UTxO
	for page := 1; ; page++ {
		path := fmt.Sprintf("/addresses/%s/utxos?count=%d&page=%d", url.PathEscape(address), pageSize, page)
		body, err := c.do(ctx, http.MethodGet, path, nil)
		if err != nil {
			if domain.IsNotFound(err) {
				return nil, nil
			}
			return nil, fmt.Errorf("blockfrost: utxos at %s: %w", address, err)
		}

		var raw []utxoJSON
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("blockfrost: decode utxos: %w", err)
		}
		for _, u := range raw {
			utxo, err := u.toDomain(address)
			if err != nil {
				return nil, err
			}
			out = append(out, utxo)
		}
		if len(raw) < pageSize {
			return out, nil
		}
	}
}

// UTxOByUnit locates the unique unspent output holding the given asset unit
// (policy id + hex asset name). It returns ErrNotFound when no holder exists
// and an error when the asset is not unique on the ledger.
func (c *Client) UTxOByUnit(ctx context.Context, unit string) (domain.UTxO, error) {
	path := fmt.Sprintf("/assets/%s/addresses", url.PathEscape(unit))
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		if domain.IsNotFound(err) {
			return domain.UTxO{}, fmt.Errorf("asset %s: %w", unit, domain.ErrNotFound)
		}
		return domain.UTxO{}, fmt.Errorf("blockfrost: asset addresses for %s: %w", unit, err)
	}

	var holders []assetAddressJSON
	if err := json.Unmarshal(body, &holders); err != nil {
		return domain.UTxO{}, fmt.Errorf("blockfrost: decode asset addresses: %w", err)
	}
	if len(holders) == 0 {
		return domain.UTxO{}, fmt.Errorf("asset %s has no holder: %w", unit, domain.ErrNotFound)
	}
	if len(holders) > 1 {
		return domain.UTxO{}, fmt.Errorf("blockfrost: asset %s held at %d addresses, expected one", unit, len(holders))
	}

	utxos, err := c.UTxOsAt(ctx, holders[0].Address)
	if err != nil {
		return domain.UTxO{}, err
	}
	var matches []domain.UTxO
	for _, u := range utxos {
		if u.Value[unit] > 0 {
			matches = append(matches, u)
		}
	}
	switch len(matches) {
	case 0:
		return domain.UTxO{}, fmt.Errorf("asset %s not in holder's utxos: %w", unit, domain.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return domain.UTxO{}, fmt.Errorf("blockfrost: asset %s in %d utxos, expected one", unit, len(matches))
	}
}

// UTxOsByRef resolves transaction output references to full UTxOs.
func (c *Client) UTxOsByRef(ctx context.Context, refs []domain.UTxORef) ([]domain.UTxO, error) {
	out := make([]domain.UTxO, 0, len(refs))
	for _, ref := range refs {
		path := fmt.Sprintf("/txs/%s/utxos", url.PathEscape(ref.TxID))
		body, err := c.do(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, fmt.Errorf("blockfrost: tx utxos for %s: %w", ref.TxID, err)
		}

		var tx txUTxOsJSON
		if err := json.Unmarshal(body, &tx); err != nil {
			return nil, fmt.Errorf("blockfrost: decode tx utxos: %w", err)
		}

		found := false
		for _, o := range tx.Outputs {
			if o.OutputIndex != ref.Index {
				continue
			}
			utxo, err := o.toDomain(o.Address)
			if err != nil {
				return nil, err
			}
			utxo.Ref = ref
			out = append(out, utxo)
			found = true
			break
		}
		if !found {
			return nil, fmt.Errorf("output %s: %w", ref, domain.ErrNotFound)
		}
	}
	return out, nil
}

// Submit posts a signed transaction (raw CBOR) to the chain and returns its
// id.
func (c *Client) Submit(ctx context.Context, txCBOR []byte) (string, error) {
	body, err := c.do(ctx, http.MethodPost, "/tx/submit", txCBOR)
	if err != nil {
		return "", fmt.Errorf("blockfrost: submit tx: %w", err)
	}

	// The response body is the tx id as a JSON string.
	var txID string
	if err := json.Unmarshal(body, &txID); err != nil {
		return "", fmt.Errorf("blockfrost: decode submit response: %w", err)
	}
	return txID, nil
}

// do issues a request with the project key header and reads the response.
func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("project_id", c.projectID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/cbor")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(body)
		if len(msg) > 1024 {
			msg = msg[:1024]
		}
		return nil, &domain.RequestError{Op: "blockfrost " + path, Status: resp.StatusCode, Body: msg}
	}
	return body, nil
}

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

type amountJSON struct {
	Unit     string `json:"unit"`
	Quantity string `json:"quantity"`
}

type utxoJSON struct {
	Address     string       `json:"address"`
	TxHash      string       `json:"tx_hash"`
	OutputIndex uint32       `json:"output_index"`
	Amount      []amountJSON `json:"amount"`
	InlineDatum *string      `json:"inline_datum"`
}

type assetAddressJSON struct {
	Address  string `json:"address"`
	Quantity string `json:"quantity"`
}

type txUTxOsJSON struct {
	Hash    string     `json:"hash"`
	Outputs []utxoJSON `json:"outputs"`
}

func (u utxoJSON) toDomain(address string) (domain.UTxO, error) {
	if u.Address != "" {
		address = u.Address
	}
	value := make(domain.Value, len(u.Amount))
	for _, a := range u.Amount {
		q, err := strconv.ParseInt(a.Quantity, 10, 64)
		if err != nil {
			return domain.UTxO{}, fmt.Errorf("blockfrost: quantity %q of %s: %w", a.Quantity, a.Unit, err)
		}
		value[a.Unit] = q
	}
	out := domain.UTxO{
		Ref:     domain.UTxORef{TxID: u.TxHash, Index: u.OutputIndex},
		Address: address,
		Value:   value,
	}
	if u.InlineDatum != nil {
		out.DatumHex = *u.InlineDatum
	}
	return out, nil
}
