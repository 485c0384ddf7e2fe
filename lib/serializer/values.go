package serializer

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Raw bytes / strings
// --------------------------------------------------------------------------

// NewBytesSerializer stores byte slices as they are.
func NewBytesSerializer() ISerializer[[]byte] {
	return bytesSerializerImpl{}
}

type bytesSerializerImpl struct{}

func (bytesSerializerImpl) Serialize(v []byte) ([]byte, error) {
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (bytesSerializerImpl) Deserialize(b []byte, v *[]byte) error {
	*v = make([]byte, len(b))
	copy(*v, b)
	return nil
}

// NewStringSerializer stores strings as their UTF-8 bytes.
func NewStringSerializer() ISerializer[string] {
	return stringSerializerImpl{}
}

type stringSerializerImpl struct{}

func (stringSerializerImpl) Serialize(v string) ([]byte, error) { return []byte(v), nil }

func (stringSerializerImpl) Deserialize(b []byte, v *string) error {
	*v = string(b)
	return nil
}

// --------------------------------------------------------------------------
// JSON / GOB
// --------------------------------------------------------------------------

// NewJSONSerializer creates a serializer using encoding/json.
func NewJSONSerializer[T any]() ISerializer[T] {
	return jsonSerializerImpl[T]{}
}

type jsonSerializerImpl[T any] struct{}

func (jsonSerializerImpl[T]) Serialize(v T) ([]byte, error) { return json.Marshal(v) }

func (jsonSerializerImpl[T]) Deserialize(b []byte, v *T) error { return json.Unmarshal(b, v) }

// NewGOBSerializer creates a serializer using Go's binary gob format.
func NewGOBSerializer[T any]() ISerializer[T] {
	return gobSerializerImpl[T]{}
}

type gobSerializerImpl[T any] struct{}

func (gobSerializerImpl[T]) Serialize(v T) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gobSerializerImpl[T]) Deserialize(b []byte, v *T) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}

// --------------------------------------------------------------------------
// Fixed binary layout
// --------------------------------------------------------------------------

// NewBinarySerializer creates a serializer for fixed-size values (numbers, arrays and
// structs made only of those) using little endian encoding/binary. The resulting
// layout has constant field offsets, which is what a FieldTable relies on.
func NewBinarySerializer[T any]() ISerializer[T] {
	return binarySerializerImpl[T]{}
}

type binarySerializerImpl[T any] struct{}

func (binarySerializerImpl[T]) Serialize(v T) ([]byte, error) {
	size := binary.Size(v)
	if size < 0 {
		return nil, fmt.Errorf("serializer: %T has no fixed binary size", v)
	}
	buf := bytes.NewBuffer(make([]byte, 0, size))
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (binarySerializerImpl[T]) Deserialize(b []byte, v *T) error {
	size := binary.Size(v)
	if size < 0 {
		return fmt.Errorf("serializer: %T has no fixed binary size", *v)
	}
	if len(b) != size {
		return fmt.Errorf("%w: expected %d bytes for %T, got %d", ErrShortBuffer, size, *v, len(b))
	}
	return binary.Read(bytes.NewReader(b), binary.LittleEndian, v)
}
