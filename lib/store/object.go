package store

import (
	"fmt"

	"github.com/ValentinKolb/skipstore/lib/serializer"
)

// ReadObject reads size bytes at pos and decodes them with ser. Missing bytes are
// reported through loaded=false; bytes that do not decode produce a *BufferingError.
func ReadObject[T any](s IStore, pos Position, size uint32, ser serializer.ISerializer[T]) (T, bool, error) {
	var v T
	b := []byte{}
	if size > 0 {
		var (
			ok  bool
			err error
		)
		if b, ok, err = s.Read(pos, size); err != nil || !ok {
			return v, false, err
		}
	}
	if err := ser.Deserialize(b, &v); err != nil {
		return v, false, &BufferingError{
			Pos:      pos,
			Expected: fmt.Sprintf("%T", v),
			Err:      err,
		}
	}
	return v, true, nil
}

// WriteObject serializes v into a newly allocated span and returns its position and
// size. Values with an empty encoding occupy no span and are returned as
// (NilPosition, 0); ReadObject decodes them from an empty slice.
func WriteObject[T any](s IStore, v T, ser serializer.ISerializer[T]) (Position, uint32, error) {
	b, err := ser.Serialize(v)
	if err != nil {
		return NilPosition, 0, fmt.Errorf("cannot serialize %T: %w", v, err)
	}
	if len(b) == 0 {
		return NilPosition, 0, nil
	}
	pos, err := s.Allocate(uint32(len(b)))
	if err != nil {
		return NilPosition, 0, err
	}
	if _, err := s.Write(b, pos); err != nil {
		return NilPosition, 0, err
	}
	return pos, uint32(len(b)), nil
}
