package wallet

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/stretchr/testify/require"

	"github.com/halcyonlabs/oraclebridge/internal/domain"
)

type fakeProvider struct {
	utxos     []domain.UTxO
	submitted [][]byte
}

func (f *fakeProvider) UTxOsAt(context.Context, string) ([]domain.UTxO, error) {
	return f.utxos, nil
}

func (f *fakeProvider) Submit(_ context.Context, txCBOR []byte) (string, error) {
	f.submitted = append(f.submitted, txCBOR)
	return "txid", nil
}

// testAddress builds an enterprise address (header byte + 28-byte payment
// credential) so PaymentKeyHash has a known answer.
func testAddress(t *testing.T, keyHash []byte) string {
	t.Helper()
	require.Len(t, keyHash, 28)

	payload := append([]byte{0x60}, keyHash...)
	converted, err := bech32.ConvertBits(payload, 8, 5, true)
	require.NoError(t, err)
	addr, err := bech32.Encode("addr_test", converted)
	require.NoError(t, err)
	return addr
}

func seedHex() string {
	seed := bytes.Repeat([]byte{0x42}, ed25519.SeedSize)
	return hex.EncodeToString(seed)
}

func knownAddress(t *testing.T) (string, string) {
	keyHash := bytes.Repeat([]byte{0xab}, 28)
	return testAddress(t, keyHash), hex.EncodeToString(keyHash)
}

func testBody() domain.TxBody {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return domain.TxBody{
		Inputs: []domain.TxInput{{
			UTxO: domain.UTxO{
				Ref:   domain.UTxORef{TxID: "aa11", Index: 0},
				Value: domain.Value{domain.Lovelace: 5_000_000},
			},
			RedeemerHex: "e0e0",
		}},
		Outputs: []domain.TxOutput{{
			Address:  "addr_test1script",
			Value:    domain.Value{domain.Lovelace: 3_000_000, "policytok": 1},
			DatumHex: "d0d0",
		}},
		Fee:        180_000,
		ValidFrom:  now,
		ValidUntil: now.Add(5 * time.Minute),
	}
}

func TestNewKeyForms(t *testing.T) {
	addr, _ := knownAddress(t)

	_, err := New(addr, seedHex(), "", &fakeProvider{})
	require.NoError(t, err)

	full := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{0x42}, ed25519.SeedSize))
	_, err = New(addr, hex.EncodeToString(full), "", &fakeProvider{})
	require.NoError(t, err)

	_, err = New(addr, "abcd", "", &fakeProvider{})
	require.Error(t, err)

	_, err = New("not-an-address", seedHex(), "", &fakeProvider{})
	require.Error(t, err)
}

func TestNewReadsKeyFile(t *testing.T) {
	addr, _ := knownAddress(t)
	path := filepath.Join(t.TempDir(), "payment.skey")
	require.NoError(t, os.WriteFile(path, []byte(seedHex()+"\n"), 0o600))

	w, err := New(addr, "", path, &fakeProvider{})
	require.NoError(t, err)
	require.Equal(t, addr, w.Address())
}

func TestSignDeterministic(t *testing.T) {
	addr, _ := knownAddress(t)
	w, err := New(addr, seedHex(), "", &fakeProvider{})
	require.NoError(t, err)

	body := testBody()
	tx1, err := w.Sign(body)
	require.NoError(t, err)
	tx2, err := w.Sign(body)
	require.NoError(t, err)

	require.Equal(t, tx1.ID, tx2.ID)
	require.Equal(t, tx1.WitnessHex, tx2.WitnessHex)
	require.Len(t, tx1.ID, 64) // blake2b-256, hex

	other := testBody()
	other.Fee++
	tx3, err := w.Sign(other)
	require.NoError(t, err)
	require.NotEqual(t, tx1.ID, tx3.ID)
}

func TestSubmitPostsEnvelope(t *testing.T) {
	addr, _ := knownAddress(t)
	provider := &fakeProvider{}
	w, err := New(addr, seedHex(), "", provider)
	require.NoError(t, err)

	signed, err := w.Sign(testBody())
	require.NoError(t, err)

	txID, err := w.Submit(context.Background(), signed)
	require.NoError(t, err)
	require.Equal(t, "txid", txID)
	require.Len(t, provider.submitted, 1)
	require.NotEmpty(t, provider.submitted[0])
}

func TestKeyHash(t *testing.T) {
	addr, _ := knownAddress(t)
	w, err := New(addr, seedHex(), "", &fakeProvider{})
	require.NoError(t, err)
	require.Len(t, w.KeyHash(), 56) // blake2b-224, hex
}

func TestPaymentKeyHash(t *testing.T) {
	addr, wantHash := knownAddress(t)

	got, err := PaymentKeyHash(addr)
	require.NoError(t, err)
	require.Equal(t, wantHash, got)
}

func TestPaymentKeyHashRejectsForeignPrefix(t *testing.T) {
	payload := bytes.Repeat([]byte{0x01}, 29)
	converted, err := bech32.ConvertBits(payload, 8, 5, true)
	require.NoError(t, err)
	foreign, err := bech32.Encode("stake", converted)
	require.NoError(t, err)

	_, err = PaymentKeyHash(foreign)
	require.Error(t, err)
}

func TestPaymentKeyHashRejectsShortPayload(t *testing.T) {
	converted, err := bech32.ConvertBits([]byte{0x60, 0x01, 0x02}, 8, 5, true)
	require.NoError(t, err)
	short, err := bech32.Encode("addr_test", converted)
	require.NoError(t, err)

	_, err = PaymentKeyHash(short)
	require.Error(t, err)
}
