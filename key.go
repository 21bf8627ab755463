package objectstore

import (
	"bytes"
	"math"
	"reflect"
	"time"

	"github.com/jgraettinger/cockroach-encoding/encoding"
	"github.com/pkg/errors"
)

// Key type tags. The tag order defines the order between key types:
// number < date < string < binary < array.
const (
	arrayEnd  byte = 0x00
	tagNumber byte = 0x10
	tagDate   byte = 0x20
	tagString byte = 0x30
	tagBinary byte = 0x40
	tagArray  byte = 0x50
)

// normalizeKey converts a Go value to its canonical key form: float64 for every
// numeric kind, time.Time, string, []byte, or []interface{} of keys.
func normalizeKey(v interface{}) (interface{}, error) {
	switch k := v.(type) {
	case nil:
		return nil, errors.Wrap(ErrInvalidKey, "nil is not a valid key")
	case float64:
		if math.IsNaN(k) {
			return nil, errors.Wrap(ErrInvalidKey, "NaN is not a valid key")
		}
		return k, nil
	case float32:
		return normalizeKey(float64(k))
	case int:
		return float64(k), nil
	case int8:
		return float64(k), nil
	case int16:
		return float64(k), nil
	case int32:
		return float64(k), nil
	case int64:
		return float64(k), nil
	case uint:
		return float64(k), nil
	case uint8:
		return float64(k), nil
	case uint16:
		return float64(k), nil
	case uint32:
		return float64(k), nil
	case uint64:
		return float64(k), nil
	case string:
		return k, nil
	case []byte:
		out := make([]byte, len(k))
		copy(out, k)
		return out, nil
	case time.Time:
		return k, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]interface{}, rv.Len())
		for i := range out {
			elem, err := normalizeKey(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = elem
		}
		return out, nil
	}
	return nil, errors.Wrapf(ErrInvalidKey, "%T is not a valid key type", v)
}

// encodeKey appends the order-preserving encoding of key to b.
func encodeKey(b []byte, key interface{}) ([]byte, error) {
	k, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}
	return appendKey(b, k), nil
}

func appendKey(b []byte, k interface{}) []byte {
	switch v := k.(type) {
	case float64:
		return encoding.EncodeUint64Ascending(append(b, tagNumber), floatBits(v))
	case time.Time:
		b = encoding.EncodeVarintAscending(append(b, tagDate), v.Unix())
		return encoding.EncodeUvarintAscending(b, uint64(v.Nanosecond()))
	case string:
		return encoding.EncodeStringAscending(append(b, tagString), v)
	case []byte:
		return encoding.EncodeBytesAscending(append(b, tagBinary), v)
	case []interface{}:
		b = append(b, tagArray)
		for _, elem := range v {
			b = appendKey(b, elem)
		}
		return append(b, arrayEnd)
	}
	panic("appendKey called with a non-normalized key")
}

// floatBits maps a float64 to a uint64 with the same ordering: positive
// values get the sign bit set, negative values are inverted.
func floatBits(f float64) uint64 {
	if f == 0 {
		f = 0 // -0 sorts as 0
	}
	u := math.Float64bits(f)
	if u&(1<<63) != 0 {
		return ^u
	}
	return u | 1<<63
}

func bitsFloat(u uint64) float64 {
	if u&(1<<63) != 0 {
		return math.Float64frombits(u &^ (1 << 63))
	}
	return math.Float64frombits(^u)
}

// decodeKey decodes a single key from the front of b, returning the remainder.
func decodeKey(b []byte) ([]byte, interface{}, error) {
	if len(b) == 0 {
		return nil, nil, errors.Wrap(ErrInvalidKey, "empty key encoding")
	}
	switch b[0] {
	case tagNumber:
		rest, u, err := encoding.DecodeUint64Ascending(b[1:])
		if err != nil {
			return nil, nil, err
		}
		return rest, bitsFloat(u), nil
	case tagDate:
		rest, sec, err := encoding.DecodeVarintAscending(b[1:])
		if err != nil {
			return nil, nil, err
		}
		rest, nsec, err := encoding.DecodeUvarintAscending(rest)
		if err != nil {
			return nil, nil, err
		}
		return rest, time.Unix(sec, int64(nsec)).UTC(), nil
	case tagString:
		return encoding.DecodeUnsafeStringAscending(b[1:], nil)
	case tagBinary:
		return encoding.DecodeBytesAscending(b[1:], nil)
	case tagArray:
		out := []interface{}{}
		rest := b[1:]
		for len(rest) > 0 && rest[0] != arrayEnd {
			var (
				elem interface{}
				err  error
			)
			if rest, elem, err = decodeKey(rest); err != nil {
				return nil, nil, err
			}
			out = append(out, elem)
		}
		if len(rest) == 0 {
			return nil, nil, errors.Wrap(ErrInvalidKey, "unterminated array key")
		}
		return rest[1:], out, nil
	}
	return nil, nil, errors.Wrapf(ErrInvalidKey, "unknown key tag %#x", b[0])
}

// splitKey returns the encoding of the first key in b and the remainder.
func splitKey(b []byte) ([]byte, []byte, error) {
	rest, _, err := decodeKey(b)
	if err != nil {
		return nil, nil, err
	}
	return b[:len(b)-len(rest)], rest, nil
}

// CompareKeys orders two keys, returning -1, 0 or 1.
func CompareKeys(a, b interface{}) (int, error) {
	ea, err := encodeKey(nil, a)
	if err != nil {
		return 0, err
	}
	eb, err := encodeKey(nil, b)
	if err != nil {
		return 0, err
	}
	return bytes.Compare(ea, eb), nil
}

// KeyRange restricts a query to keys between Lower and Upper. A nil bound is
// unbounded on that side.
type KeyRange struct {
	Lower, Upper         interface{}
	LowerOpen, UpperOpen bool
}

// Only matches exactly one key.
func Only(key interface{}) *KeyRange {
	return &KeyRange{Lower: key, Upper: key}
}

func LowerBound(lower interface{}, open bool) *KeyRange {
	return &KeyRange{Lower: lower, LowerOpen: open}
}

func UpperBound(upper interface{}, open bool) *KeyRange {
	return &KeyRange{Upper: upper, UpperOpen: open}
}

func Bound(lower, upper interface{}, lowerOpen, upperOpen bool) *KeyRange {
	return &KeyRange{Lower: lower, Upper: upper, LowerOpen: lowerOpen, UpperOpen: upperOpen}
}

// Includes reports whether key falls within the range.
func (r *KeyRange) Includes(key interface{}) (bool, error) {
	b, err := compileRange(r)
	if err != nil {
		return false, err
	}
	k, err := encodeKey(nil, key)
	if err != nil {
		return false, err
	}
	return b.includes(k), nil
}

// keyBounds is a query compiled to encoded bounds.
type keyBounds struct {
	lower, upper         []byte
	lowerOpen, upperOpen bool
}

// compileQuery accepts nil (every key), a KeyRange, or a single key.
func compileQuery(query interface{}) (*keyBounds, error) {
	switch q := query.(type) {
	case nil:
		return &keyBounds{}, nil
	case *KeyRange:
		if q == nil {
			return &keyBounds{}, nil
		}
		return compileRange(q)
	case KeyRange:
		return compileRange(&q)
	}
	k, err := encodeKey(nil, query)
	if err != nil {
		return nil, err
	}
	return &keyBounds{lower: k, upper: k}, nil
}

func compileRange(r *KeyRange) (*keyBounds, error) {
	if r.Lower == nil && r.Upper == nil {
		return nil, errors.Wrap(ErrInvalidKey, "key range has no bounds")
	}
	b := &keyBounds{lowerOpen: r.LowerOpen, upperOpen: r.UpperOpen}
	var err error
	if r.Lower != nil {
		if b.lower, err = encodeKey(nil, r.Lower); err != nil {
			return nil, err
		}
	}
	if r.Upper != nil {
		if b.upper, err = encodeKey(nil, r.Upper); err != nil {
			return nil, err
		}
	}
	if b.lower != nil && b.upper != nil {
		c := bytes.Compare(b.lower, b.upper)
		if c > 0 || (c == 0 && (b.lowerOpen || b.upperOpen)) {
			return nil, errors.Wrap(ErrInvalidKey, "key range lower bound exceeds upper bound")
		}
	}
	return b, nil
}

// single reports whether the bounds match exactly one key.
func (b *keyBounds) single() bool {
	return b.lower != nil && !b.lowerOpen && !b.upperOpen && bytes.Equal(b.lower, b.upper)
}

func (b *keyBounds) afterLower(k []byte) bool {
	if b.lower == nil {
		return true
	}
	c := bytes.Compare(k, b.lower)
	return c > 0 || (c == 0 && !b.lowerOpen)
}

// pastUpper reports whether k, and so every key after it, is beyond the range.
func (b *keyBounds) pastUpper(k []byte) bool {
	if b.upper == nil {
		return false
	}
	c := bytes.Compare(k, b.upper)
	return c > 0 || (c == 0 && b.upperOpen)
}

func (b *keyBounds) includes(k []byte) bool {
	return b.afterLower(k) && !b.pastUpper(k)
}
