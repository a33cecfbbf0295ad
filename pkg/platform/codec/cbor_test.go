package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalIsDeterministic(t *testing.T) {
	a := map[string]any{"b": 1, "a": []any{"x", 2}, "c": map[string]any{"z": true, "y": nil}}
	b := map[string]any{"c": map[string]any{"y": nil, "z": true}, "a": []any{"x", 2}, "b": 1}

	ea, err := Marshal(a)
	require.NoError(t, err)
	eb, err := Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, ea, eb)
}

func TestRoundTripDecodesStringMaps(t *testing.T) {
	enc, err := Marshal(map[string]any{"k": map[string]any{"n": "v"}})
	require.NoError(t, err)

	var out any
	require.NoError(t, Unmarshal(enc, &out))
	m, ok := out.(map[string]any)
	require.True(t, ok)
	_, ok = m["k"].(map[string]any)
	assert.True(t, ok)
}

func TestCanonicalJSON(t *testing.T) {
	t.Run("key order and whitespace are irrelevant", func(t *testing.T) {
		a, err := CanonicalJSON([]byte(`{"reaction_ms":[210,180],"pointer":{"x":1,"y":2}}`))
		require.NoError(t, err)
		b, err := CanonicalJSON([]byte("{\n  \"pointer\": {\"y\": 2, \"x\": 1},\n  \"reaction_ms\": [210, 180]\n}"))
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("values matter", func(t *testing.T) {
		a, err := CanonicalJSON([]byte(`{"reaction_ms":[210,180]}`))
		require.NoError(t, err)
		b, err := CanonicalJSON([]byte(`{"reaction_ms":[180,210]}`))
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("large integers keep precision", func(t *testing.T) {
		a, err := CanonicalJSON([]byte(`{"n":9007199254740993}`))
		require.NoError(t, err)
		b, err := CanonicalJSON([]byte(`{"n":9007199254740992}`))
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("empty document encodes as null", func(t *testing.T) {
		a, err := CanonicalJSON(nil)
		require.NoError(t, err)
		b, err := CanonicalJSON([]byte("null"))
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("rejects malformed input", func(t *testing.T) {
		_, err := CanonicalJSON([]byte(`{"a":`))
		assert.Error(t, err)
		_, err = CanonicalJSON([]byte(`{} {}`))
		assert.Error(t, err)
	})
}
