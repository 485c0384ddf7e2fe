package serializer

import (
	"bytes"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type person struct {
	ID     uint64
	Age    int32
	Active bool
	Name   [16]byte
	Score  float64
}

func personFields() *FieldTable {
	return NewFieldTable("person").
		Uint64("id", 0).
		Int32("age", 8).
		Bool("active", 12).
		String("name", 13, 16).
		Float64("score", 29)
}

func TestValueSerializersRoundTrip(t *testing.T) {
	t.Run("Bytes", func(t *testing.T) {
		s := NewBytesSerializer()
		in := []byte("hello")
		b, err := s.Serialize(in)
		require.NoError(t, err)
		in[0] = 'X'
		var out []byte
		require.NoError(t, s.Deserialize(b, &out))
		assert.Equal(t, []byte("hello"), out, "serialize must copy the input")
	})

	t.Run("JSON", func(t *testing.T) {
		s := NewJSONSerializer[map[string]int]()
		b, err := s.Serialize(map[string]int{"a": 1})
		require.NoError(t, err)
		var out map[string]int
		require.NoError(t, s.Deserialize(b, &out))
		assert.Equal(t, 1, out["a"])
	})

	t.Run("GOB", func(t *testing.T) {
		s := NewGOBSerializer[[]string]()
		b, err := s.Serialize([]string{"x", "y"})
		require.NoError(t, err)
		var out []string
		require.NoError(t, s.Deserialize(b, &out))
		assert.Equal(t, []string{"x", "y"}, out)
	})

	t.Run("BinaryRejectsWrongLength", func(t *testing.T) {
		s := NewBinarySerializer[person]()
		var p person
		err := s.Deserialize([]byte{1, 2, 3}, &p)
		assert.ErrorIs(t, err, ErrShortBuffer)
	})
}

func TestIntegerKeysPreserveOrder(t *testing.T) {
	codec := Int64Keys()
	r := rand.New(rand.NewSource(7))
	keys := make([]int64, 200)
	for i := range keys {
		keys[i] = r.Int63() - (1 << 62)
	}
	keys = append(keys, 0, -1, 1)

	encoded := make([][]byte, len(keys))
	for i, k := range keys {
		b, err := codec.Serialize(k)
		require.NoError(t, err)
		encoded[i] = b

		var back int64
		require.NoError(t, codec.Deserialize(b, &back))
		require.Equal(t, k, back)
	}

	sort.Slice(keys, func(i, j int) bool { return codec.Compare(keys[i], keys[j]) < 0 })
	sort.Slice(encoded, func(i, j int) bool { return bytes.Compare(encoded[i], encoded[j]) < 0 })
	for i, k := range keys {
		var back int64
		require.NoError(t, codec.Deserialize(encoded[i], &back))
		assert.Equal(t, k, back)
	}
}

func TestKeyCodecsCompare(t *testing.T) {
	assert.Equal(t, -1, Int32Keys().Compare(-5, 3))
	assert.Equal(t, 1, Uint64Keys().Compare(9, 3))
	assert.Equal(t, 0, StringKeys().Compare("a", "a"))
	assert.Equal(t, -1, BytesKeys().Compare([]byte("a"), []byte("b")))
	assert.Equal(t, 1, Float64Keys().Compare(1.5, -2))

	_, err := Float64Keys().Serialize(nan())
	assert.Error(t, err)
}

func TestFloatKeysSignedZero(t *testing.T) {
	codec := Float64Keys()
	negZero := math.Copysign(0, -1)
	require.Equal(t, 0, codec.Compare(negZero, 0))

	pos, err := codec.Serialize(0)
	require.NoError(t, err)
	neg, err := codec.Serialize(negZero)
	require.NoError(t, err)
	assert.Equal(t, pos, neg, "keys that compare equal must encode equally")

	var v float64
	require.NoError(t, codec.Deserialize(neg, &v))
	assert.False(t, math.Signbit(v))

	// other negative values keep their sign
	b, err := codec.Serialize(-1.5)
	require.NoError(t, err)
	require.NoError(t, codec.Deserialize(b, &v))
	assert.Equal(t, -1.5, v)
}

func TestFieldTablePartialDecode(t *testing.T) {
	p := person{ID: 42, Age: 31, Active: true, Score: 7.25}
	copy(p.Name[:], "ada")

	b, err := NewBinarySerializer[person]().Serialize(p)
	require.NoError(t, err)

	table := personFields()
	cases := map[string]any{
		"id":     uint64(42),
		"age":    int32(31),
		"active": true,
		"name":   "ada",
		"score":  7.25,
	}
	for name, want := range cases {
		f, err := table.Lookup(name)
		require.NoError(t, err)
		got, err := f.Decode(b[f.Offset : f.Offset+f.Size])
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}

	_, err = table.Lookup("missing")
	assert.ErrorIs(t, err, ErrUnknownField)
}

func nan() float64 {
	zero := 0.0
	return zero / zero
}
