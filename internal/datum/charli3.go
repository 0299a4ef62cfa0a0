package datum

import (
	"fmt"
	"math/big"
	"time"

	"github.com/halcyonlabs/oraclebridge/internal/domain"
)

// Map keys inside the Charli3 shared data record.
const (
	charli3PriceKey        = 0
	charli3ValidFromKey    = 1
	charli3ValidThroughKey = 2
)

// PriceRecord is the decoded content of a Charli3 feed datum: the price as a
// scaled integer and the validity window declared by the oracle network.
type PriceRecord struct {
	Price        *big.Int
	ValidFrom    time.Time
	ValidThrough time.Time
}

// DecodeCharli3 decodes a Charli3 oracle feed datum. The expected shape is
// constructor 0 whose first field is constructor 2 holding a map keyed by the
// small integers 0 (price), 1 (valid-from) and 2 (valid-through), timestamps
// in milliseconds.
//
// A record whose valid-through lies before now yields ErrPriceExpired, which
// is distinct from the DecodeError returned for any shape mismatch.
func DecodeCharli3(raw []byte, now time.Time) (*PriceRecord, error) {
	d, err := Decode(raw)
	if err != nil {
		return nil, err
	}

	outer, ok := d.(Constr)
	if !ok || outer.Tag != 0 || len(outer.Fields) < 1 {
		return nil, &domain.DecodeError{Shape: "charli3", Field: "outer constructor", Msg: "expected constructor 0 with at least one field"}
	}
	inner, ok := outer.Fields[0].(Constr)
	if !ok || inner.Tag != 2 || len(inner.Fields) < 1 {
		return nil, &domain.DecodeError{Shape: "charli3", Field: "shared data constructor", Msg: "expected constructor 2 with at least one field"}
	}
	m, ok := inner.Fields[0].(Map)
	if !ok {
		return nil, &domain.DecodeError{Shape: "charli3", Field: "price map", Msg: "expected a map of integer keys"}
	}

	price, err := charli3Int(m, charli3PriceKey, "price")
	if err != nil {
		return nil, err
	}
	from, err := charli3Int(m, charli3ValidFromKey, "valid-from")
	if err != nil {
		return nil, err
	}
	through, err := charli3Int(m, charli3ValidThroughKey, "valid-through")
	if err != nil {
		return nil, err
	}

	rec := &PriceRecord{
		Price:        price,
		ValidFrom:    time.UnixMilli(from.Int64()).UTC(),
		ValidThrough: time.UnixMilli(through.Int64()).UTC(),
	}
	if rec.ValidThrough.Before(now) {
		return nil, fmt.Errorf("charli3 price valid through %s: %w", rec.ValidThrough.Format(time.RFC3339), domain.ErrPriceExpired)
	}
	return rec, nil
}

func charli3Int(m Map, key int64, field string) (*big.Int, error) {
	v, ok := m.LookupInt(key)
	if !ok {
		return nil, &domain.DecodeError{Shape: "charli3", Field: field, Msg: fmt.Sprintf("missing map key %d", key)}
	}
	n, ok := v.(Int)
	if !ok {
		return nil, &domain.DecodeError{Shape: "charli3", Field: field, Msg: fmt.Sprintf("map key %d is not an integer", key)}
	}
	return n.Int, nil
}
