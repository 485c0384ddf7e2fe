package serializer

import (
	"bytes"
	"cmp"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Integer keys are stored big endian with the sign bit flipped, so the byte order of
// the encoded keys equals their numeric order.

// Int64Keys returns the key codec for int64 keys.
func Int64Keys() IKeyCodec[int64] { return int64Codec{} }

type int64Codec struct{}

func (int64Codec) Serialize(v int64) ([]byte, error) {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v)^(1<<63))
	return b, nil
}

func (int64Codec) Deserialize(b []byte, v *int64) error {
	if len(b) != 8 {
		return fmt.Errorf("%w: int64 key needs 8 bytes, got %d", ErrShortBuffer, len(b))
	}
	*v = int64(binary.BigEndian.Uint64(b) ^ (1 << 63))
	return nil
}

func (int64Codec) Compare(a, b int64) int { return cmp.Compare(a, b) }

// Int32Keys returns the key codec for int32 keys.
func Int32Keys() IKeyCodec[int32] { return int32Codec{} }

type int32Codec struct{}

func (int32Codec) Serialize(v int32) ([]byte, error) {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(v)^(1<<31))
	return b, nil
}

func (int32Codec) Deserialize(b []byte, v *int32) error {
	if len(b) != 4 {
		return fmt.Errorf("%w: int32 key needs 4 bytes, got %d", ErrShortBuffer, len(b))
	}
	*v = int32(binary.BigEndian.Uint32(b) ^ (1 << 31))
	return nil
}

func (int32Codec) Compare(a, b int32) int { return cmp.Compare(a, b) }

// Uint64Keys returns the key codec for uint64 keys.
func Uint64Keys() IKeyCodec[uint64] { return uint64Codec{} }

type uint64Codec struct{}

func (uint64Codec) Serialize(v uint64) ([]byte, error) {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b, nil
}

func (uint64Codec) Deserialize(b []byte, v *uint64) error {
	if len(b) != 8 {
		return fmt.Errorf("%w: uint64 key needs 8 bytes, got %d", ErrShortBuffer, len(b))
	}
	*v = binary.BigEndian.Uint64(b)
	return nil
}

func (uint64Codec) Compare(a, b uint64) int { return cmp.Compare(a, b) }

// Float64Keys returns the key codec for float64 keys. NaN is rejected because it has
// no place in a total order. -0 and +0 compare equal and are both stored as +0.
func Float64Keys() IKeyCodec[float64] { return float64Codec{} }

type float64Codec struct{}

func (float64Codec) Serialize(v float64) ([]byte, error) {
	if math.IsNaN(v) {
		return nil, fmt.Errorf("serializer: NaN is not a valid key")
	}
	if v == 0 {
		v = 0 // drops the sign of -0
	}
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, math.Float64bits(v))
	return b, nil
}

func (float64Codec) Deserialize(b []byte, v *float64) error {
	if len(b) != 8 {
		return fmt.Errorf("%w: float64 key needs 8 bytes, got %d", ErrShortBuffer, len(b))
	}
	*v = math.Float64frombits(binary.BigEndian.Uint64(b))
	return nil
}

func (float64Codec) Compare(a, b float64) int { return cmp.Compare(a, b) }

// StringKeys returns the key codec for string keys (byte-wise order).
func StringKeys() IKeyCodec[string] { return stringCodec{} }

type stringCodec struct{ stringSerializerImpl }

func (stringCodec) Compare(a, b string) int { return strings.Compare(a, b) }

// BytesKeys returns the key codec for []byte keys (lexicographic order).
func BytesKeys() IKeyCodec[[]byte] { return bytesCodec{} }

type bytesCodec struct{ bytesSerializerImpl }

func (bytesCodec) Compare(a, b []byte) int { return bytes.Compare(a, b) }
