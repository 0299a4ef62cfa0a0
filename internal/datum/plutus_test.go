package datum

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/halcyonlabs/oraclebridge/internal/domain"
)

func TestDecodeConstructorTags(t *testing.T) {
	cases := []struct {
		name string
		tag  uint64
	}{
		{"compact low", 0},
		{"compact high", 6},
		{"extended low", 7},
		{"extended high", 127},
		{"general form", 500},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := Encode(Constr{Tag: tc.tag, Fields: []Data{Int{big.NewInt(42)}}})
			require.NoError(t, err)

			d, err := Decode(raw)
			require.NoError(t, err)

			c, ok := d.(Constr)
			require.True(t, ok)
			require.Equal(t, tc.tag, c.Tag)
			require.Len(t, c.Fields, 1)
			require.Equal(t, int64(42), c.Fields[0].(Int).Int64())
		})
	}
}

func TestDecodeRoundTripNested(t *testing.T) {
	tree := Constr{Tag: 0, Fields: []Data{
		Map{Pairs: []Pair{
			{Key: Bytes("name"), Val: Bytes("ADA-USD")},
			{Key: Int{big.NewInt(0)}, Val: Int{big.NewInt(-7)}},
		}},
		List{Items: []Data{Int{big.NewInt(1)}, Bytes{0xde, 0xad}}},
	}}

	raw, err := Encode(tree)
	require.NoError(t, err)

	d, err := Decode(raw)
	require.NoError(t, err)

	c, ok := d.(Constr)
	require.True(t, ok)
	require.Equal(t, uint64(0), c.Tag)
	require.Len(t, c.Fields, 2)

	m, ok := c.Fields[0].(Map)
	require.True(t, ok)
	name, found := m.LookupBytes("name")
	require.True(t, found)
	require.Equal(t, Bytes("ADA-USD"), name)
	neg, found := m.LookupInt(0)
	require.True(t, found)
	require.Equal(t, int64(-7), neg.(Int).Int64())

	l, ok := c.Fields[1].(List)
	require.True(t, ok)
	require.Len(t, l.Items, 2)
}

func TestDecodeBigIntegers(t *testing.T) {
	huge, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
	require.True(t, ok)

	raw, err := Encode(List{Items: []Data{Int{huge}}})
	require.NoError(t, err)

	d, err := Decode(raw)
	require.NoError(t, err)
	l := d.(List)
	require.Zero(t, huge.Cmp(l.Items[0].(Int).Int))
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte{0xff, 0x00, 0x01})
	var derr *domain.DecodeError
	require.True(t, errors.As(err, &derr))
	require.Equal(t, "plutus", derr.Shape)
}

func TestDecodeRejectsForeignTag(t *testing.T) {
	// Tag 99 is not in any Plutus constructor range.
	raw := []byte{0xd8, 0x63, 0x80}
	_, err := Decode(raw)
	var derr *domain.DecodeError
	require.True(t, errors.As(err, &derr))
}
