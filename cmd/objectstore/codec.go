package main

import (
	"time"

	"github.com/openrelayxyz/cardinal-types/hexutil"
	"github.com/pkg/errors"
)

// JSON has no binary or date types, so those are written as single-field
// objects and restored on load. A record map shaped exactly like one of these
// wrappers is read back as the wrapped type.
const (
	bytesField = "$bytes"
	dateField  = "$date"
)

type binaryJSON struct {
	Bytes hexutil.Bytes `json:"$bytes"`
}

type dateJSON struct {
	Date string `json:"$date"`
}

// toJSON rewrites a decoded record or key into a JSON-safe form.
func toJSON(v interface{}) interface{} {
	switch x := v.(type) {
	case []byte:
		return binaryJSON{Bytes: hexutil.Bytes(x)}
	case time.Time:
		return dateJSON{Date: x.UTC().Format(time.RFC3339Nano)}
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, elem := range x {
			out[k] = toJSON(elem)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, elem := range x {
			out[i] = toJSON(elem)
		}
		return out
	}
	return v
}

// fromJSON reverses toJSON on a value produced by encoding/json.
func fromJSON(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case map[string]interface{}:
		if len(x) == 1 {
			if s, ok := x[bytesField].(string); ok {
				var b hexutil.Bytes
				if err := b.UnmarshalText([]byte(s)); err != nil {
					return nil, errors.WithMessagef(err, "decoding %v", bytesField)
				}
				return []byte(b), nil
			}
			if s, ok := x[dateField].(string); ok {
				t, err := time.Parse(time.RFC3339Nano, s)
				if err != nil {
					return nil, errors.WithMessagef(err, "decoding %v", dateField)
				}
				return t, nil
			}
		}
		out := make(map[string]interface{}, len(x))
		for k, elem := range x {
			decoded, err := fromJSON(elem)
			if err != nil {
				return nil, err
			}
			out[k] = decoded
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, elem := range x {
			decoded, err := fromJSON(elem)
			if err != nil {
				return nil, err
			}
			out[i] = decoded
		}
		return out, nil
	}
	return v, nil
}
