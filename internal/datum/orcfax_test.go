package datum

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/halcyonlabs/oraclebridge/internal/domain"
)

func orcfaxDatum(t *testing.T, name string, signif, exp *big.Int, from, through int64) []byte {
	t.Helper()
	raw, err := Encode(Constr{Tag: 0, Fields: []Data{
		Map{Pairs: []Pair{
			{Key: Bytes("name"), Val: Bytes(name)},
			{Key: Bytes("value"), Val: List{Items: []Data{
				Constr{Tag: 3, Fields: []Data{Int{signif}, Int{exp}}},
			}}},
			{Key: Bytes("valueReference"), Val: List{Items: []Data{
				Map{Pairs: []Pair{{Key: Bytes("value"), Val: Int{big.NewInt(from)}}}},
				Map{Pairs: []Pair{{Key: Bytes("value"), Val: Int{big.NewInt(through)}}}},
			}}},
		}},
	}})
	require.NoError(t, err)
	return raw
}

func TestDecodeOrcfax(t *testing.T) {
	from := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	through := from.Add(time.Hour)

	// 123 * 10^(-4+6) = 12300
	raw := orcfaxDatum(t, "ADA-USD", big.NewInt(123), big.NewInt(-4),
		from.UnixMilli(), through.UnixMilli())

	rec, err := DecodeOrcfax(raw, "ADA-USD")
	require.NoError(t, err)
	require.Equal(t, "ADA-USD", rec.Name)
	require.Equal(t, int64(12_300), rec.Price.Int64())
	require.True(t, rec.ValidFrom.Equal(from))
	require.True(t, rec.ValidThrough.Equal(through))
}

func TestDecodeOrcfaxFlooring(t *testing.T) {
	// 123456789 * 10^(-9+6) = 123456.789, floored to 123456.
	raw := orcfaxDatum(t, "ADA-USD", big.NewInt(123_456_789), big.NewInt(-9), 0, 0)
	rec, err := DecodeOrcfax(raw, "ADA-USD")
	require.NoError(t, err)
	require.Equal(t, int64(123_456), rec.Price.Int64())
}

func TestDecodeOrcfaxUnsignedExponentWord(t *testing.T) {
	// Some producers store the exponent as the raw two's-complement bit
	// pattern of an unsigned 64-bit word.
	bits := new(big.Int).SetUint64(^uint64(0) - 3) // -4
	raw := orcfaxDatum(t, "ADA-USD", big.NewInt(123), bits, 0, 0)

	rec, err := DecodeOrcfax(raw, "ADA-USD")
	require.NoError(t, err)
	require.Equal(t, int64(12_300), rec.Price.Int64())
}

func TestDecodeOrcfaxNameMismatch(t *testing.T) {
	raw := orcfaxDatum(t, "BTC-USD", big.NewInt(123), big.NewInt(-4), 0, 0)

	_, err := DecodeOrcfax(raw, "ADA-USD")
	require.ErrorIs(t, err, domain.ErrFeedNameMismatch)
}

func TestDecodeOrcfaxShapeMismatch(t *testing.T) {
	cases := []struct {
		name string
		data Data
	}{
		{"wrong outer tag", Constr{Tag: 1, Fields: []Data{Map{}}}},
		{"missing name", Constr{Tag: 0, Fields: []Data{Map{}}}},
		{"value not a list", Constr{Tag: 0, Fields: []Data{Map{Pairs: []Pair{
			{Key: Bytes("name"), Val: Bytes("ADA-USD")},
			{Key: Bytes("value"), Val: Bytes("nope")},
		}}}}},
		{"wrong value constructor", Constr{Tag: 0, Fields: []Data{Map{Pairs: []Pair{
			{Key: Bytes("name"), Val: Bytes("ADA-USD")},
			{Key: Bytes("value"), Val: List{Items: []Data{
				Constr{Tag: 1, Fields: []Data{Int{big.NewInt(1)}, Int{big.NewInt(0)}}},
			}}},
		}}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := Encode(tc.data)
			require.NoError(t, err)

			_, err = DecodeOrcfax(raw, "ADA-USD")
			var derr *domain.DecodeError
			require.True(t, errors.As(err, &derr))
			require.Equal(t, "orcfax", derr.Shape)
		})
	}
}
