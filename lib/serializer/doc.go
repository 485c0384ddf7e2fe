// Package serializer converts keys and values to the byte form kept in a store.
//
// It provides:
//   - ISerializer: value serializers (raw bytes, strings, JSON, GOB, fixed binary layout)
//   - IKeyCodec: key serializers that also define a total order (int32, int64, uint64,
//     float64, string, []byte). Integer encodings are order preserving.
//   - FieldTable: a per-type table of field name -> byte offset + decoder, used for
//     partial reads of a single attribute from a stored record.
//
// Field tables are explicit. They are built once when a record type is registered with
// an index, which keeps partial reads free of reflection.
package serializer
