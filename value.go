package objectstore

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

var (
	valueEncMode cbor.EncMode
	valueDecMode cbor.DecMode
)

func init() {
	var err error
	if valueEncMode, err = (cbor.EncOptions{
		Sort:    cbor.SortCoreDeterministic,
		Time:    cbor.TimeRFC3339Nano,
		TimeTag: cbor.EncTagRequired,
	}).EncMode(); err != nil {
		panic(err.Error())
	}
	if valueDecMode, err = (cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]interface{}(nil)),
	}).DecMode(); err != nil {
		panic(err.Error())
	}
}

func encodeValue(v interface{}) ([]byte, error) {
	data, err := valueEncMode.Marshal(v)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidValue, "encoding %T: %v", v, err)
	}
	return data, nil
}

func decodeValue(data []byte) (interface{}, error) {
	var v interface{}
	if err := valueDecMode.Unmarshal(data, &v); err != nil {
		return nil, errors.WithMessage(err, "decoding record")
	}
	return v, nil
}

// normalizeValue round trips v through the record codec, yielding the generic
// form key paths are evaluated against. The caller's value is never modified.
func normalizeValue(v interface{}) (interface{}, error) {
	data, err := encodeValue(v)
	if err != nil {
		return nil, err
	}
	return decodeValue(data)
}
