package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openrelayxyz/cardinal-objectstore"
	"github.com/openrelayxyz/cardinal-objectstore/db/mem"
)

var testSchema = []objectstore.StoreSchema{
	{
		Name:          "items",
		KeyPath:       objectstore.Path("id"),
		AutoIncrement: true,
		Indexes:       []objectstore.IndexSchema{{Name: "byColor", KeyPath: objectstore.Path("color")}},
	},
	{Name: "kv"},
}

func openTestDB(t *testing.T) (*objectstore.Factory, *objectstore.Handle) {
	t.Helper()
	f := objectstore.NewFactory(mem.NewMemoryDatabase(16))
	t.Cleanup(f.Close)
	h, err := objectstore.New(f, "shop", 1, testSchema, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.Wait(ctx))
	return f, h
}

func TestDumpLoadRoundTrip(t *testing.T) {
	_, src := openTestDB(t)
	for _, color := range []string{"red", "blue", "green"} {
		_, err := src.Add("items", map[string]interface{}{"color": color})
		require.NoError(t, err)
	}
	when := time.Date(2300, 1, 2, 3, 4, 5, 6, time.UTC)
	for key, value := range map[interface{}]interface{}{
		"text":  "plain",
		"blob":  []byte{1, 2, 3},
		"when":  map[string]interface{}{"at": when, "raw": []byte{}},
		1.5:     []interface{}{"a", 2.0},
		"empty": map[string]interface{}{},
	} {
		_, err := src.Put("kv", value, key)
		require.NoError(t, err)
	}
	_, err := src.Put("kv", "binary key", []byte{0xff, 0x00})
	require.NoError(t, err)

	var dumped bytes.Buffer
	require.NoError(t, dumpStores(src, nil, &dumped))
	require.Contains(t, dumped.String(), `{"$bytes":"0x010203"}`)

	_, dst := openTestDB(t)
	count, err := loadRecords(dst, "", bytes.NewReader(dumped.Bytes()), 2)
	require.NoError(t, err)
	require.Equal(t, 9, count)

	var reloaded bytes.Buffer
	require.NoError(t, dumpStores(dst, nil, &reloaded))
	require.Equal(t, dumped.String(), reloaded.String())

	value, err := dst.Get("kv", "blob")
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, value)
	value, err = dst.Get("kv", []byte{0xff, 0x00})
	require.NoError(t, err)
	require.Equal(t, "binary key", value)
	values, err := dst.GetAll("items", "blue", objectstore.WithIndex("byColor"))
	require.NoError(t, err)
	require.Equal(t, []interface{}{map[string]interface{}{"color": "blue", "id": float64(2)}}, values)

	// The generator continues after the loaded keys.
	key, err := dst.Add("items", map[string]interface{}{"color": "black"})
	require.NoError(t, err)
	require.Equal(t, float64(4), key)
}

func TestLoadInlineKeysComeFromValue(t *testing.T) {
	_, h := openTestDB(t)
	input := strings.Join([]string{
		`{"store":"items","key":5,"value":{"color":"red","id":7}}`,
		`{"value":"default store","key":"k"}`,
	}, "\n")
	count, err := loadRecords(h, "kv", strings.NewReader(input), 0)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	keys, err := h.GetAllKeys("items", nil)
	require.NoError(t, err)
	require.Equal(t, []interface{}{float64(7)}, keys)
	value, err := h.Get("kv", "k")
	require.NoError(t, err)
	require.Equal(t, "default store", value)
}

func TestLoadErrors(t *testing.T) {
	_, h := openTestDB(t)
	input := strings.Join([]string{
		`{"store":"kv","key":"a","value":1}`,
		`{"store":"kv","key":"b","value":2}`,
		`{"store":"missing","key":"c","value":3}`,
	}, "\n")
	count, err := loadRecords(h, "", strings.NewReader(input), 2)
	require.ErrorIs(t, err, objectstore.ErrStoreNotFound)
	require.Contains(t, err.Error(), "line 3")
	require.Equal(t, 2, count)

	_, err = loadRecords(h, "", strings.NewReader(`{"key":"a","value":1}`), 10)
	require.Error(t, err)
	_, err = loadRecords(h, "kv", strings.NewReader(`{"key":{"$bytes":"zz"},"value":1}`), 10)
	require.Error(t, err)
}

func TestOpenExisting(t *testing.T) {
	f, h := openTestDB(t)
	_, err := h.Put("kv", "v", "k")
	require.NoError(t, err)

	existing, err := openExisting(f, "shop")
	require.NoError(t, err)
	defer existing.Close()
	require.Equal(t, uint64(1), existing.Version())
	value, err := existing.Get("kv", "k")
	require.NoError(t, err)
	require.Equal(t, "v", value)

	_, err = openExisting(f, "nope")
	require.Error(t, err)
}

func TestJSONCodec(t *testing.T) {
	when := time.Date(1600, 5, 6, 7, 8, 9, 10, time.UTC)
	in := map[string]interface{}{
		"b":    []byte{0xde, 0xad},
		"t":    when,
		"list": []interface{}{[]byte{1}, "s", 3.0},
	}
	out, err := fromJSON(roundTripJSON(t, toJSON(in)))
	require.NoError(t, err)
	doc := out.(map[string]interface{})
	require.Equal(t, []byte{0xde, 0xad}, doc["b"])
	require.True(t, when.Equal(doc["t"].(time.Time)))
	require.Equal(t, []interface{}{[]byte{1}, "s", 3.0}, doc["list"])

	// Objects with more than the wrapper field are plain maps.
	out, err = fromJSON(map[string]interface{}{"$bytes": "0x01", "other": true})
	require.NoError(t, err)
	require.Equal(t, map[string]interface{}{"$bytes": "0x01", "other": true}, out)
}

func roundTripJSON(t *testing.T, v interface{}) interface{} {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	var out interface{}
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}
