package serializer

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Field describes where a single attribute lives inside a serialized record and how
// to decode it without deserializing the whole record.
type Field struct {
	Name   string
	Offset uint32
	Size   uint32
	Decode func(b []byte) (any, error)
}

// FieldTable maps field names to their descriptors for one record type.
// Tables are built once when a type is registered with an index and are read-only
// afterward, so lookups need no synchronization.
type FieldTable struct {
	typeName string
	fields   map[string]Field
}

// NewFieldTable creates an empty table for the named record type.
func NewFieldTable(typeName string) *FieldTable {
	return &FieldTable{
		typeName: typeName,
		fields:   make(map[string]Field),
	}
}

// TypeName returns the record type this table describes.
func (ft *FieldTable) TypeName() string { return ft.typeName }

// Lookup returns the descriptor for name.
func (ft *FieldTable) Lookup(name string) (Field, error) {
	f, ok := ft.fields[name]
	if !ok {
		return Field{}, fmt.Errorf("%w: %s.%s", ErrUnknownField, ft.typeName, name)
	}
	return f, nil
}

// Add registers a custom field descriptor.
func (ft *FieldTable) Add(f Field) *FieldTable {
	ft.fields[f.Name] = f
	return ft
}

// The helpers below describe fields written by the binary serializer (little endian).

func (ft *FieldTable) Uint64(name string, offset uint32) *FieldTable {
	return ft.Add(Field{Name: name, Offset: offset, Size: 8, Decode: func(b []byte) (any, error) {
		return binary.LittleEndian.Uint64(b), nil
	}})
}

func (ft *FieldTable) Int64(name string, offset uint32) *FieldTable {
	return ft.Add(Field{Name: name, Offset: offset, Size: 8, Decode: func(b []byte) (any, error) {
		return int64(binary.LittleEndian.Uint64(b)), nil
	}})
}

func (ft *FieldTable) Uint32(name string, offset uint32) *FieldTable {
	return ft.Add(Field{Name: name, Offset: offset, Size: 4, Decode: func(b []byte) (any, error) {
		return binary.LittleEndian.Uint32(b), nil
	}})
}

func (ft *FieldTable) Int32(name string, offset uint32) *FieldTable {
	return ft.Add(Field{Name: name, Offset: offset, Size: 4, Decode: func(b []byte) (any, error) {
		return int32(binary.LittleEndian.Uint32(b)), nil
	}})
}

func (ft *FieldTable) Float64(name string, offset uint32) *FieldTable {
	return ft.Add(Field{Name: name, Offset: offset, Size: 8, Decode: func(b []byte) (any, error) {
		return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
	}})
}

func (ft *FieldTable) Bool(name string, offset uint32) *FieldTable {
	return ft.Add(Field{Name: name, Offset: offset, Size: 1, Decode: func(b []byte) (any, error) {
		switch b[0] {
		case 0:
			return false, nil
		case 1:
			return true, nil
		default:
			return nil, fmt.Errorf("serializer: invalid bool byte %#x", b[0])
		}
	}})
}

// String describes a fixed-width, zero padded text field.
func (ft *FieldTable) String(name string, offset, size uint32) *FieldTable {
	return ft.Add(Field{Name: name, Offset: offset, Size: size, Decode: func(b []byte) (any, error) {
		return string(bytes.TrimRight(b, "\x00")), nil
	}})
}

// Bytes describes a fixed-width raw field.
func (ft *FieldTable) Bytes(name string, offset, size uint32) *FieldTable {
	return ft.Add(Field{Name: name, Offset: offset, Size: size, Decode: func(b []byte) (any, error) {
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil
	}})
}
