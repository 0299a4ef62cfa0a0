package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Lovelace is the asset unit of the ledger's native currency.
const Lovelace = "lovelace"

// UTxORef points at one transaction output on the ledger.
type UTxORef struct {
	TxID  string
	Index uint32
}

func (r UTxORef) String() string {
	return fmt.Sprintf("%s#%d", r.TxID, r.Index)
}

// ParseUTxORef parses "txid#index" notation.
func ParseUTxORef(s string) (UTxORef, error) {
	txID, idx, ok := strings.Cut(s, "#")
	if !ok || txID == "" {
		return UTxORef{}, fmt.Errorf("malformed utxo reference %q", s)
	}
	n, err := strconv.ParseUint(idx, 10, 32)
	if err != nil {
		return UTxORef{}, fmt.Errorf("malformed utxo index in %q: %w", s, err)
	}
	return UTxORef{TxID: txID, Index: uint32(n)}, nil
}

// AssetID names a native asset by minting policy and (hex-encoded) asset name.
type AssetID struct {
	PolicyID  string
	AssetName string
}

// Unit returns the concatenated policy+name form used by provider queries.
func (a AssetID) Unit() string { return a.PolicyID + a.AssetName }

// Value is a multi-asset bundle keyed by asset unit, with Lovelace for the
// native currency.
type Value map[string]int64

// Lovelace returns the native-currency component.
func (v Value) Lovelace() int64 { return v[Lovelace] }

// Clone returns an independent copy.
func (v Value) Clone() Value {
	out := make(Value, len(v))
	for k, q := range v {
		out[k] = q
	}
	return out
}

// HasPolicy reports whether the value carries any token under the policy.
func (v Value) HasPolicy(policyID string) bool {
	for unit := range v {
		if unit != Lovelace && strings.HasPrefix(unit, policyID) {
			return true
		}
	}
	return false
}

// UTxO is one unspent output: its reference, owning address, value, and the
// inline datum (hex of the raw CBOR) when one is attached.
type UTxO struct {
	Ref      UTxORef
	Address  string
	Value    Value
	DatumHex string
}

// HasDatum reports whether the output carries an inline datum.
func (u UTxO) HasDatum() bool { return u.DatumHex != "" }
