package codec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Name     string           `cbor:"name"`
	Sections map[string]int64 `cbor:"sections"`
}

func TestMarshalIsDeterministic(t *testing.T) {
	r := record{Name: "x", Sections: map[string]int64{"b": 2, "a": 1, "c": 3}}
	first, err := Marshal(r)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Marshal(r)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	var back record
	require.NoError(t, Unmarshal(first, &back))
	assert.Equal(t, r, back)
}

func TestCompressShrinksRepetitiveText(t *testing.T) {
	text := []byte(strings.Repeat("chất phụ gia thực phẩm ", 200))
	packed := Compress(text)
	assert.Less(t, len(packed), len(text))

	unpacked, err := Decompress(packed)
	require.NoError(t, err)
	assert.Equal(t, text, unpacked)
}

func TestDecompressRejectsGarbage(t *testing.T) {
	_, err := Decompress([]byte("not a zstd frame"))
	assert.Error(t, err)
}
