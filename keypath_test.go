package objectstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	doc := map[string]interface{}{
		"id":   uint64(7),
		"name": "widget",
		"dims": map[string]interface{}{"w": 2.5, "h": int64(4)},
		"tags": []interface{}{"a", "b"},
		"ok":   true,
	}

	k, ok := Path("id").extract(doc)
	require.True(t, ok)
	require.Equal(t, float64(7), k)

	k, ok = Path("dims.h").extract(doc)
	require.True(t, ok)
	require.Equal(t, float64(4), k)

	k, ok = CompoundPath("name", "dims.w").extract(doc)
	require.True(t, ok)
	require.Equal(t, []interface{}{"widget", 2.5}, k)

	k, ok = Path("tags").extract(doc)
	require.True(t, ok)
	require.Equal(t, []interface{}{"a", "b"}, k)

	_, ok = Path("missing").extract(doc)
	require.False(t, ok)
	_, ok = Path("name.length").extract(doc)
	require.False(t, ok)
	_, ok = Path("ok").extract(doc)
	require.False(t, ok)
	_, ok = CompoundPath("name", "missing").extract(doc)
	require.False(t, ok)

	k, ok = Path("").extract("bare")
	require.True(t, ok)
	require.Equal(t, "bare", k)
}

func TestInject(t *testing.T) {
	doc := map[string]interface{}{"name": "widget"}
	require.NoError(t, Path("meta.id").inject(doc, 3.0))
	require.Equal(t, map[string]interface{}{
		"name": "widget",
		"meta": map[string]interface{}{"id": 3.0},
	}, doc)

	require.ErrorIs(t, Path("name.id").inject(doc, 1.0), ErrInvalidValue)
	require.ErrorIs(t, Path("id").inject("scalar", 1.0), ErrInvalidValue)
	require.ErrorIs(t, Path("").inject(doc, 1.0), ErrInvalidValue)
}

func TestExtractMulti(t *testing.T) {
	doc := map[string]interface{}{
		"tags": []interface{}{"go", "db", "go", true, uint64(1), 1.0},
		"one":  "solo",
		"flag": false,
	}
	require.Equal(t, []interface{}{"go", "db", float64(1)}, Path("tags").extractMulti(doc))
	require.Equal(t, []interface{}{"solo"}, Path("one").extractMulti(doc))
	require.Empty(t, Path("flag").extractMulti(doc))
	require.Empty(t, Path("missing").extractMulti(doc))
}

func TestKeyPathValidate(t *testing.T) {
	require.NoError(t, KeyPath(nil).validate())
	require.NoError(t, Path("").validate())
	require.NoError(t, Path("a.b.c").validate())
	require.NoError(t, CompoundPath("a", "b.c").validate())
	require.ErrorIs(t, Path("a..b").validate(), ErrInvalidSchema)
	require.ErrorIs(t, Path(".a").validate(), ErrInvalidSchema)
	require.ErrorIs(t, CompoundPath("a", "").validate(), ErrInvalidSchema)

	require.Equal(t, "a.b", Path("a.b").String())
	require.Equal(t, "[a,b]", CompoundPath("a", "b").String())
}
