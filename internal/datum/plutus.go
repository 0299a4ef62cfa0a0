// Package datum decodes the nested binary datum formats of the supported
// decentralized price feeds. Ledger framing (addresses, transactions) is the
// provider's business; the shapes here are feed-specific business logic, so
// the bridge owns them.
//
// Plutus data is CBOR with constructor tags: 121..127 encode constructors
// 0..6, 1280..1400 encode constructors 7..127, and tag 102 is the general
// [tag, fields] form.
package datum

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"

	"github.com/halcyonlabs/oraclebridge/internal/domain"
)

// Data is one node of a decoded Plutus value.
type Data interface{ isData() }

// Constr is a tagged constructor application.
type Constr struct {
	Tag    uint64
	Fields []Data
}

// Map is an association list. Key order is not significant for the feed
// shapes decoded here; lookups scan the pairs.
type Map struct {
	Pairs []Pair
}

// Pair is one Map entry.
type Pair struct {
	Key Data
	Val Data
}

// List is a sequence of values.
type List struct {
	Items []Data
}

// Bytes is a byte string.
type Bytes []byte

// Int is an arbitrary-precision integer.
type Int struct {
	*big.Int
}

func (Constr) isData() {}
func (Map) isData()    {}
func (List) isData()   {}
func (Bytes) isData()  {}
func (Int) isData()    {}

var decMode cbor.DecMode

func init() {
	dm, err := cbor.DecOptions{
		MapKeyByteString: cbor.MapKeyByteStringAllowed,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	decMode = dm
}

// Decode parses raw CBOR bytes into a Data tree. Any input that is not valid
// Plutus data yields a DecodeError, never a partial value.
func Decode(raw []byte) (Data, error) {
	var v any
	if err := decMode.Unmarshal(raw, &v); err != nil {
		return nil, &domain.DecodeError{Shape: "plutus", Field: "cbor", Msg: err.Error()}
	}
	return fromCBOR(v)
}

func fromCBOR(v any) (Data, error) {
	switch t := v.(type) {
	case cbor.Tag:
		return constrFromTag(t)
	case []any:
		items := make([]Data, 0, len(t))
		for _, it := range t {
			d, err := fromCBOR(it)
			if err != nil {
				return nil, err
			}
			items = append(items, d)
		}
		return List{Items: items}, nil
	case map[any]any:
		pairs := make([]Pair, 0, len(t))
		for k, val := range t {
			kd, err := fromCBOR(k)
			if err != nil {
				return nil, err
			}
			vd, err := fromCBOR(val)
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, Pair{Key: kd, Val: vd})
		}
		return Map{Pairs: pairs}, nil
	case uint64:
		return Int{new(big.Int).SetUint64(t)}, nil
	case int64:
		return Int{big.NewInt(t)}, nil
	case big.Int:
		return Int{new(big.Int).Set(&t)}, nil
	case []byte:
		return Bytes(t), nil
	case cbor.ByteString:
		return Bytes([]byte(t)), nil
	default:
		return nil, &domain.DecodeError{
			Shape: "plutus",
			Field: "value",
			Msg:   fmt.Sprintf("unsupported CBOR item of type %T", v),
		}
	}
}

func constrFromTag(t cbor.Tag) (Data, error) {
	var tag uint64
	content := t.Content

	switch {
	case t.Number >= 121 && t.Number <= 127:
		tag = t.Number - 121
	case t.Number >= 1280 && t.Number <= 1400:
		tag = t.Number - 1280 + 7
	case t.Number == 102:
		// General form: content is [tag, [fields...]].
		arr, ok := t.Content.([]any)
		if !ok || len(arr) != 2 {
			return nil, &domain.DecodeError{Shape: "plutus", Field: "constructor", Msg: "malformed general constructor (tag 102)"}
		}
		n, ok := arr[0].(uint64)
		if !ok {
			return nil, &domain.DecodeError{Shape: "plutus", Field: "constructor", Msg: "general constructor tag is not an unsigned integer"}
		}
		tag = n
		content = arr[1]
	default:
		return nil, &domain.DecodeError{
			Shape: "plutus",
			Field: "constructor",
			Msg:   fmt.Sprintf("CBOR tag %d is not a Plutus constructor", t.Number),
		}
	}

	rawFields, ok := content.([]any)
	if !ok {
		return nil, &domain.DecodeError{Shape: "plutus", Field: "constructor", Msg: "constructor fields are not an array"}
	}
	fields := make([]Data, 0, len(rawFields))
	for _, f := range rawFields {
		d, err := fromCBOR(f)
		if err != nil {
			return nil, err
		}
		fields = append(fields, d)
	}
	return Constr{Tag: tag, Fields: fields}, nil
}

// Encode serializes a Data tree back to CBOR. The bridge itself only wraps
// redeemer and datum bytes opaquely; Encode exists for feed-format tests and
// tooling.
func Encode(d Data) ([]byte, error) {
	v, err := toCBOR(d)
	if err != nil {
		return nil, err
	}
	return cbor.Marshal(v)
}

func toCBOR(d Data) (any, error) {
	switch t := d.(type) {
	case Constr:
		fields := make([]any, 0, len(t.Fields))
		for _, f := range t.Fields {
			v, err := toCBOR(f)
			if err != nil {
				return nil, err
			}
			fields = append(fields, v)
		}
		switch {
		case t.Tag <= 6:
			return cbor.Tag{Number: 121 + t.Tag, Content: fields}, nil
		case t.Tag <= 127:
			return cbor.Tag{Number: 1280 + t.Tag - 7, Content: fields}, nil
		default:
			return cbor.Tag{Number: 102, Content: []any{t.Tag, fields}}, nil
		}
	case Map:
		m := make(map[any]any, len(t.Pairs))
		for _, p := range t.Pairs {
			k, err := toCBOR(p.Key)
			if err != nil {
				return nil, err
			}
			if kb, ok := k.([]byte); ok {
				k = cbor.ByteString(kb)
			}
			v, err := toCBOR(p.Val)
			if err != nil {
				return nil, err
			}
			m[k] = v
		}
		return m, nil
	case List:
		items := make([]any, 0, len(t.Items))
		for _, it := range t.Items {
			v, err := toCBOR(it)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return items, nil
	case Bytes:
		return []byte(t), nil
	case Int:
		return t.Int, nil
	default:
		return nil, fmt.Errorf("encode: unsupported data node %T", d)
	}
}

// lookup scans a Map for a key equal to want.
func (m Map) lookup(want Data) (Data, bool) {
	for _, p := range m.Pairs {
		if dataEqual(p.Key, want) {
			return p.Val, true
		}
	}
	return nil, false
}

// LookupInt returns the value stored under an integer key.
func (m Map) LookupInt(key int64) (Data, bool) {
	return m.lookup(Int{big.NewInt(key)})
}

// LookupBytes returns the value stored under a byte-string key.
func (m Map) LookupBytes(key string) (Data, bool) {
	return m.lookup(Bytes(key))
}

func dataEqual(a, b Data) bool {
	switch x := a.(type) {
	case Int:
		y, ok := b.(Int)
		return ok && x.Cmp(y.Int) == 0
	case Bytes:
		y, ok := b.(Bytes)
		return ok && bytes.Equal(x, y)
	default:
		return false
	}
}
