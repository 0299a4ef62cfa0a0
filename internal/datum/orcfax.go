package datum

import (
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/halcyonlabs/oraclebridge/internal/domain"
)

// orcfaxExponentShift aligns the Orcfax exponent convention to the bridge's
// fixed-point scale: decoded price = floor(significand * 10^(exponent+6)).
const orcfaxExponentShift = 6

// FeedRecord is the decoded content of an Orcfax feed datum.
type FeedRecord struct {
	Name         string
	Price        *big.Int
	ValidFrom    time.Time
	ValidThrough time.Time
}

// DecodeOrcfax decodes an Orcfax feed datum. The expected shape is
// constructor 0 whose first field is a map with:
//
//   - "name": a byte string naming the feed (e.g. "ADA-USD"); when it
//     differs from wantName the record is a non-match, reported as
//     ErrFeedNameMismatch so callers scanning candidate UTxOs can skip it
//     without surfacing an error;
//   - "value": a one-element list holding constructor 3 with two integer
//     fields (significand, exponent). The exponent is signed even though the
//     producer stores it as the bit pattern of an unsigned word;
//   - "valueReference": a two-element list of maps whose "value" keys give
//     valid-from and valid-through, timestamps in milliseconds.
func DecodeOrcfax(raw []byte, wantName string) (*FeedRecord, error) {
	d, err := Decode(raw)
	if err != nil {
		return nil, err
	}

	outer, ok := d.(Constr)
	if !ok || outer.Tag != 0 || len(outer.Fields) < 1 {
		return nil, &domain.DecodeError{Shape: "orcfax", Field: "outer constructor", Msg: "expected constructor 0 with at least one field"}
	}
	m, ok := outer.Fields[0].(Map)
	if !ok {
		return nil, &domain.DecodeError{Shape: "orcfax", Field: "statement map", Msg: "expected a map"}
	}

	nameData, ok := m.LookupBytes("name")
	if !ok {
		return nil, &domain.DecodeError{Shape: "orcfax", Field: "name", Msg: "missing name key"}
	}
	nameBytes, ok := nameData.(Bytes)
	if !ok {
		return nil, &domain.DecodeError{Shape: "orcfax", Field: "name", Msg: "name is not a byte string"}
	}
	name := string(nameBytes)
	if name != wantName {
		return nil, fmt.Errorf("feed %q, want %q: %w", name, wantName, domain.ErrFeedNameMismatch)
	}

	price, err := orcfaxPrice(m)
	if err != nil {
		return nil, err
	}
	from, through, err := orcfaxValidity(m)
	if err != nil {
		return nil, err
	}

	return &FeedRecord{
		Name:         name,
		Price:        price,
		ValidFrom:    from,
		ValidThrough: through,
	}, nil
}

func orcfaxPrice(m Map) (*big.Int, error) {
	v, ok := m.LookupBytes("value")
	if !ok {
		return nil, &domain.DecodeError{Shape: "orcfax", Field: "value", Msg: "missing value key"}
	}
	list, ok := v.(List)
	if !ok || len(list.Items) != 1 {
		return nil, &domain.DecodeError{Shape: "orcfax", Field: "value", Msg: "expected a one-element list"}
	}
	c, ok := list.Items[0].(Constr)
	if !ok || c.Tag != 3 || len(c.Fields) != 2 {
		return nil, &domain.DecodeError{Shape: "orcfax", Field: "value", Msg: "expected constructor 3 with two fields"}
	}
	signif, ok := c.Fields[0].(Int)
	if !ok {
		return nil, &domain.DecodeError{Shape: "orcfax", Field: "significand", Msg: "not an integer"}
	}
	expInt, ok := c.Fields[1].(Int)
	if !ok {
		return nil, &domain.DecodeError{Shape: "orcfax", Field: "exponent", Msg: "not an integer"}
	}
	exp, err := signedExponent(expInt.Int)
	if err != nil {
		return nil, err
	}

	shifted := exp + orcfaxExponentShift
	if shifted < math.MinInt32 || shifted > math.MaxInt32 {
		return nil, &domain.DecodeError{Shape: "orcfax", Field: "exponent", Msg: fmt.Sprintf("exponent %d out of range", exp)}
	}
	price := decimal.NewFromBigInt(signif.Int, int32(shifted)).Floor()
	return price.BigInt(), nil
}

// signedExponent reinterprets an exponent carried as an unsigned 64-bit word
// as its two's-complement signed value.
func signedExponent(n *big.Int) (int64, error) {
	if n.IsInt64() {
		return n.Int64(), nil
	}
	if n.IsUint64() {
		return int64(n.Uint64()), nil
	}
	return 0, &domain.DecodeError{Shape: "orcfax", Field: "exponent", Msg: "does not fit a 64-bit word"}
}

func orcfaxValidity(m Map) (time.Time, time.Time, error) {
	var zero time.Time
	v, ok := m.LookupBytes("valueReference")
	if !ok {
		return zero, zero, &domain.DecodeError{Shape: "orcfax", Field: "valueReference", Msg: "missing valueReference key"}
	}
	list, ok := v.(List)
	if !ok || len(list.Items) != 2 {
		return zero, zero, &domain.DecodeError{Shape: "orcfax", Field: "valueReference", Msg: "expected a two-element list"}
	}

	from, err := orcfaxRefValue(list.Items[0], "valid-from")
	if err != nil {
		return zero, zero, err
	}
	through, err := orcfaxRefValue(list.Items[1], "valid-through")
	if err != nil {
		return zero, zero, err
	}
	return time.UnixMilli(from).UTC(), time.UnixMilli(through).UTC(), nil
}

func orcfaxRefValue(d Data, field string) (int64, error) {
	m, ok := d.(Map)
	if !ok {
		return 0, &domain.DecodeError{Shape: "orcfax", Field: field, Msg: "reference entry is not a map"}
	}
	v, ok := m.LookupBytes("value")
	if !ok {
		return 0, &domain.DecodeError{Shape: "orcfax", Field: field, Msg: "missing value key"}
	}
	n, ok := v.(Int)
	if !ok {
		return 0, &domain.DecodeError{Shape: "orcfax", Field: field, Msg: "value is not an integer"}
	}
	return n.Int64(), nil
}
