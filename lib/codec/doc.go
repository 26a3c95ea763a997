// Package codec implements a compact, self-describing binary format for
// nested values: scalars, strings, byte arrays, lists, ordered name/value
// lists, maps, documents with child documents and document lists.
//
// Wire Format:
//
//	Every stream starts with the version byte (2) followed by exactly one
//	value. Each value starts with a tag byte. Two tag families exist:
//
//	  - Full-byte tags (0..19) identify a kind; the payload follows.
//	    NULL, BOOL_TRUE and BOOL_FALSE have no payload. BYTE, SHORT, INT,
//	    LONG, FLOAT, DOUBLE and DATE carry fixed-width big-endian values.
//	    MAP, BYTEARR and SOLRINPUTDOC carry a var-int size.
//
//	  - Packed tags use the upper three bits for the kind (STR, SINT, SLONG,
//	    ARR, ORDERED_MAP, NAMED_LST, EXTERN_STRING) and the lower five bits
//	    for a small size or value. A size of 0x1f or more sets all five bits
//	    and the remainder follows as a var-int.
//
//	Var-ints store seven bits per byte, least significant group first, with
//	the high bit marking continuation.
//
// Key Components:
//
//   - Codec: single-use encoder/decoder holding the per-stream string
//     interning tables. Marshal and Unmarshal may each be called once.
//
//   - Encode / Decode: convenience helpers that use a fresh Codec and a
//     pooled scratch buffer.
//
//   - ObjectResolver: hook for types the codec does not know. Unresolved
//     values are written as the string "<type>:<value>" and a warning is
//     logged.
//
//   - StringCache: optional, concurrency safe cache deduplicating decoded
//     strings across codecs.
//
// Interning:
//
//	Map keys, document field names and ExternString values are interned per
//	stream. The first occurrence is written as EXTERN_STRING with index 0
//	followed by the string; later occurrences carry only the 1-based index.
//
// Thread Safety:
//
//	A Codec is not safe for concurrent use. Create one per stream. The
//	package level helpers and StringCache are safe for concurrent use.
//
// Usage:
//
//	data, err := codec.Encode(codec.OrderedMap{{"q", "*:*"}, {"rows", 10}})
//	...
//	v, err := codec.Decode(data)
//	m := v.(codec.OrderedMap)
package codec
