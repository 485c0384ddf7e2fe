package serializer

import "errors"

// ISerializer converts values of type T to and from their stored byte form.
// Implementations must be safe for concurrent use.
type ISerializer[T any] interface {
	// Serialize encodes v into a freshly allocated byte slice.
	Serialize(v T) ([]byte, error)
	// Deserialize decodes b into v. The slice must not be retained.
	Deserialize(b []byte, v *T) error
}

// IKeyCodec is a serializer for index keys that additionally imposes a total order.
// An index only accepts key codecs, so every key type has a real order and
// mixed, incomparable keys cannot end up in the same index.
type IKeyCodec[K any] interface {
	ISerializer[K]
	// Compare returns -1, 0 or 1 if a is less than, equal to or greater than b.
	Compare(a, b K) int
}

var (
	// ErrShortBuffer is returned when an encoded value is truncated.
	ErrShortBuffer = errors.New("serializer: buffer too short")
	// ErrUnknownField is returned when a field table has no entry for a field name.
	ErrUnknownField = errors.New("serializer: unknown field")
)
