// Package wallet holds the service's payment credentials: an ed25519 signing
// key and its bech32 address. It signs balanced transaction bodies and hands
// the assembled transaction to the provider for submission.
package wallet

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/blake2b"

	"crypto/ed25519"

	"github.com/halcyonlabs/oraclebridge/internal/domain"
)

// Provider is the slice of the ledger provider the wallet needs: its own
// UTxO set and transaction submission.
type Provider interface {
	UTxOsAt(ctx context.Context, address string) ([]domain.UTxO, error)
	Submit(ctx context.Context, txCBOR []byte) (string, error)
}

// Wallet owns the service's signing key and address.
type Wallet struct {
	address  string
	key      ed25519.PrivateKey
	provider Provider
}

// New creates a Wallet from an inline hex key or a key file. The key is
// either a 32-byte ed25519 seed or a full 64-byte private key.
func New(address, keyHex, keyPath string, provider Provider) (*Wallet, error) {
	if keyHex == "" && keyPath != "" {
		raw, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("wallet: read signing key: %w", err)
		}
		keyHex = strings.TrimSpace(string(raw))
	}

	keyBytes, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("wallet: decode signing key hex: %w", err)
	}

	var key ed25519.PrivateKey
	switch len(keyBytes) {
	case ed25519.SeedSize:
		key = ed25519.NewKeyFromSeed(keyBytes)
	case ed25519.PrivateKeySize:
		key = ed25519.PrivateKey(keyBytes)
	default:
		return nil, fmt.Errorf("wallet: signing key must be %d or %d bytes, got %d",
			ed25519.SeedSize, ed25519.PrivateKeySize, len(keyBytes))
	}

	if _, err := PaymentKeyHash(address); err != nil {
		return nil, fmt.Errorf("wallet: invalid address: %w", err)
	}

	return &Wallet{address: address, key: key, provider: provider}, nil
}

// Address returns the wallet's bech32 address.
func (w *Wallet) Address() string { return w.address }

// KeyHash returns the blake2b-224 hash (hex) of the wallet's public key.
func (w *Wallet) KeyHash() string {
	pub := w.key.Public().(ed25519.PublicKey)
	sum, _ := blake2b.New(28, nil)
	sum.Write(pub)
	return hex.EncodeToString(sum.Sum(nil))
}

// FundingUTxOs returns the wallet's current unspent outputs, the shared
// funding set the balancer draws fee inputs from.
func (w *Wallet) FundingUTxOs(ctx context.Context) ([]domain.UTxO, error) {
	utxos, err := w.provider.UTxOsAt(ctx, w.address)
	if err != nil {
		return nil, fmt.Errorf("wallet: funding utxos: %w", err)
	}
	return utxos, nil
}

// Sign serializes the balanced body, hashes it with blake2b-256 to obtain the
// transaction id, and attaches an ed25519 key witness.
func (w *Wallet) Sign(body domain.TxBody) (domain.SignedTx, error) {
	bodyCBOR, err := encodeBody(body)
	if err != nil {
		return domain.SignedTx{}, fmt.Errorf("wallet: encode tx body: %w", err)
	}

	hash := blake2b.Sum256(bodyCBOR)
	sig := ed25519.Sign(w.key, hash[:])
	pub := w.key.Public().(ed25519.PublicKey)

	witness, err := cbor.Marshal([][]any{{[]byte(pub), sig}})
	if err != nil {
		return domain.SignedTx{}, fmt.Errorf("wallet: encode witness: %w", err)
	}

	return domain.SignedTx{
		ID:         hex.EncodeToString(hash[:]),
		Body:       body,
		WitnessHex: hex.EncodeToString(witness),
	}, nil
}

// Submit assembles the signed transaction envelope and posts it through the
// provider.
func (w *Wallet) Submit(ctx context.Context, tx domain.SignedTx) (string, error) {
	bodyCBOR, err := encodeBody(tx.Body)
	if err != nil {
		return "", fmt.Errorf("wallet: encode tx body: %w", err)
	}
	witness, err := hex.DecodeString(tx.WitnessHex)
	if err != nil {
		return "", fmt.Errorf("wallet: decode witness: %w", err)
	}

	envelope, err := cbor.Marshal([]any{
		cbor.RawMessage(bodyCBOR),
		map[int]any{0: cbor.RawMessage(witness)},
		true, // is-valid flag
	})
	if err != nil {
		return "", fmt.Errorf("wallet: encode tx envelope: %w", err)
	}

	txID, err := w.provider.Submit(ctx, envelope)
	if err != nil {
		return "", err
	}
	return txID, nil
}

// encodeBody produces a deterministic CBOR encoding of the body so the
// transaction id is stable across sign and submit.
func encodeBody(body domain.TxBody) ([]byte, error) {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, err
	}

	inputs := make([][]any, 0, len(body.Inputs))
	for _, in := range body.Inputs {
		txID, err := hex.DecodeString(in.UTxO.Ref.TxID)
		if err != nil {
			return nil, fmt.Errorf("input tx id %q: %w", in.UTxO.Ref.TxID, err)
		}
		inputs = append(inputs, []any{txID, in.UTxO.Ref.Index})
	}

	outputs := make([][]any, 0, len(body.Outputs))
	for _, out := range body.Outputs {
		entry := []any{out.Address, encodeValue(out.Value)}
		if out.DatumHex != "" {
			raw, err := hex.DecodeString(out.DatumHex)
			if err != nil {
				return nil, fmt.Errorf("output datum: %w", err)
			}
			entry = append(entry, raw)
		}
		outputs = append(outputs, entry)
	}

	refs := make([][]any, 0, len(body.ReferenceInputs))
	for _, r := range body.ReferenceInputs {
		txID, err := hex.DecodeString(r.TxID)
		if err != nil {
			return nil, fmt.Errorf("reference input tx id %q: %w", r.TxID, err)
		}
		refs = append(refs, []any{txID, r.Index})
	}

	signers := make([][]byte, 0, len(body.RequiredSigners))
	for _, s := range body.RequiredSigners {
		raw, err := hex.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("required signer %q: %w", s, err)
		}
		signers = append(signers, raw)
	}

	wire := map[int]any{
		0: inputs,
		1: outputs,
		2: body.Fee,
		3: body.ValidUntil.UnixMilli(),
		8: body.ValidFrom.UnixMilli(),
	}
	if len(signers) > 0 {
		wire[14] = signers
	}
	if len(refs) > 0 {
		wire[18] = refs
	}
	return em.Marshal(wire)
}

// encodeValue flattens a Value into deterministic [unit, quantity] pairs.
func encodeValue(v domain.Value) [][]any {
	units := make([]string, 0, len(v))
	for unit := range v {
		units = append(units, unit)
	}
	sort.Strings(units)

	out := make([][]any, 0, len(units))
	for _, unit := range units {
		out = append(out, []any{unit, v[unit]})
	}
	return out
}

// PaymentKeyHash extracts the payment key hash (hex) from a bech32 shelley
// address. The builder uses it to turn choice-owner addresses into required
// signers.
func PaymentKeyHash(address string) (string, error) {
	hrp, data, err := bech32.DecodeNoLimit(address)
	if err != nil {
		return "", fmt.Errorf("decode bech32: %w", err)
	}
	if hrp != "addr" && hrp != "addr_test" {
		return "", fmt.Errorf("unexpected address prefix %q", hrp)
	}

	payload, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", fmt.Errorf("convert address payload: %w", err)
	}
	// 1 header byte + 28-byte payment credential (+ optional staking part).
	if len(payload) < 29 {
		return "", fmt.Errorf("address payload too short: %d bytes", len(payload))
	}
	return hex.EncodeToString(payload[1:29]), nil
}
