// Package dson implements Dson, a self-describing serialization format with
// one value model and two encodings.
//
// Dson has two equivalent encodings:
//   - Binary: compact, tag/varint framed, for storage and transport
//   - Text: human-readable, for configuration and debugging
//
// Both are read and written through the same Reader and Writer interfaces,
// so a codec written once works against either encoding.
//
// # Data Model
//
// Scalars: int32, int64, float32, float64, bool, string, null
// Tagged scalars: binary, extInt32, extInt64, extString, reference
// Containers: object (ordered keys), array
//
// Objects and arrays may carry a Header: a ClassID in binary documents and
// an alias in text documents, naming the registered type they hold.
//
// # Binary Layout
//
// Every element is a type byte followed by a varint tag
// (fieldNumber<<3 | wireType). String-keyed objects follow the tag with the
// key; number-keyed objects put the key in the tag. Containers end with a
// zero byte.
//
// # Text Syntax
//
// Object:     {@Alias name: wjybxx, age: 28}
// Array:      [1, 2, 3]
// Integers:   28, 0x1C, @L 28 (int64)
// Floats:     1.5, @f 1.5 (float32), NaN, -Infinity
// Strings:    bare words, "quoted\n", or @ss text blocks
// Binary:     [@bin 0, 35DF2E]
// Extended:   [@ei 1, 10010], [@eL 1, 10010], [@es 1, value]
// Reference:  @ref id or {@ref localId: id, namespace: ns}
//
// Elements are separated by commas or line breaks. A text block runs to the
// end of the line; continuation lines start with "->" (append) or "-|"
// (line break, then append):
//
//	{
//	  doc: @ss first line
//	    -| second line
//	    -> continued
//	}
//
// # Codecs and the Registry
//
// Application types are registered once with a class id, an alias and a
// TypedCodec, and the resulting Registry is shared by every reader and
// writer:
//
//	b := dson.NewRegistryBuilder()
//	dson.Register(b, "Person", dson.ClassID{Namespace: 1, LocalID: 1}, personCodec{})
//	reg, err := b.Build()
//
// A value is written without a header when its runtime type equals the
// declared type of the field, with a header when it is a registered
// subtype, and rejected with ErrUnregisteredType otherwise.
//
// # Lazy Decode
//
// ReadValueAsBytes captures an element as a RawValue without decoding it,
// and WriteValueBytes re-emits it. Between binary readers and writers the
// bytes pass through unchanged.
package dson
