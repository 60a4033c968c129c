package dson

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"unicode/utf8"
)

// BinaryReader decodes binary Dson from an in-memory buffer.
type BinaryReader[K Key] struct {
	baseReader[K]
	dec *binaryDecoder[K]
}

// NewBinaryReader returns a reader over data. The reader does not copy data;
// values it returns never alias it.
func NewBinaryReader[K Key](data []byte) *BinaryReader[K] {
	dec := &binaryDecoder[K]{data: data}
	return &BinaryReader[K]{baseReader: newBaseReader[K](dec), dec: dec}
}

// NewBinaryReaderFrom reads all of r and returns a reader over it.
func NewBinaryReaderFrom[K Key](r io.Reader) (*BinaryReader[K], error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("dson: read input: %w", err)
	}
	return NewBinaryReader[K](data), nil
}

// Offset returns the number of bytes consumed so far.
func (r *BinaryReader[K]) Offset() int {
	return r.dec.pos
}

type binaryDecoder[K Key] struct {
	data []byte
	pos  int
}

func (d *binaryDecoder[K]) format() Format {
	return FormatBinary
}

func (d *binaryDecoder[K]) position() Position {
	return Position{Offset: d.pos}
}

func (d *binaryDecoder[K]) fail(format string, args ...any) error {
	return errorAt(KindUnexpectedToken, d.position(), format, args...)
}

func (d *binaryDecoder[K]) uvarint() (uint64, error) {
	v, n := binary.Uvarint(d.data[d.pos:])
	if n == 0 {
		return 0, d.fail("truncated varint")
	}
	if n < 0 {
		return 0, d.fail("varint overflows 64 bits")
	}
	d.pos += n
	return v, nil
}

func (d *binaryDecoder[K]) uvarint32() (uint32, error) {
	v, err := d.uvarint()
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint32 {
		return 0, d.fail("varint overflows 32 bits")
	}
	return uint32(v), nil
}

func (d *binaryDecoder[K]) take(n uint64) ([]byte, error) {
	if n > uint64(len(d.data)-d.pos) {
		return nil, d.fail("truncated input: need %d bytes, have %d", n, len(d.data)-d.pos)
	}
	b := d.data[d.pos : d.pos+int(n)]
	d.pos += int(n)
	return b, nil
}

func (d *binaryDecoder[K]) delimited() ([]byte, error) {
	n, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	return d.take(n)
}

func (d *binaryDecoder[K]) text() (string, error) {
	b, err := d.delimited()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", d.fail("invalid utf-8 in string")
	}
	return string(b), nil
}

// readElementHead decodes a type byte and tag. It returns TypeEnd for the
// container end marker and for end of input at top level.
func (d *binaryDecoder[K]) readElementHead(typ ContextType) (DsonType, FieldNumber, error) {
	if d.pos >= len(d.data) {
		if typ == ContextTopLevel {
			return TypeEnd, 0, nil
		}
		return TypeEnd, 0, errorAt(KindUnterminatedContainer, d.position(), "input ends inside %s", typ)
	}
	dt := DsonType(d.data[d.pos])
	d.pos++
	if dt == TypeEnd {
		if typ == ContextTopLevel {
			return TypeEnd, 0, d.fail("end marker at top level")
		}
		return TypeEnd, 0, nil
	}
	if dt > maxDsonType {
		return TypeEnd, 0, d.fail("invalid type byte %d", uint8(dt))
	}
	tag, err := d.uvarint()
	if err != nil {
		return TypeEnd, 0, err
	}
	number, wire := splitTag(tag)
	if wire != dt.wireType() {
		return TypeEnd, 0, d.fail("%s value framed as %s", dt, wire)
	}
	if number != 0 && typ != ContextObject {
		return TypeEnd, 0, d.fail("field number %d outside an object", number)
	}
	return dt, number, nil
}

func (d *binaryDecoder[K]) readType(ctx *context[K]) (DsonType, K, error) {
	var name K
	dt, number, err := d.readElementHead(ctx.typ)
	if err != nil || dt == TypeEnd || ctx.typ != ContextObject {
		return dt, name, err
	}
	switch p := any(&name).(type) {
	case *FieldNumber:
		*p = number
	case *string:
		if number != 0 {
			return dt, name, errorAt(KindTypeMismatch, d.position(), "number-keyed object read with string keys")
		}
		key, err := d.text()
		if err != nil {
			return dt, name, err
		}
		*p = key
	}
	return dt, name, nil
}

func (d *binaryDecoder[K]) peekType(ctx *context[K]) (DsonType, error) {
	if d.pos >= len(d.data) {
		if ctx.typ == ContextTopLevel {
			return TypeEnd, nil
		}
		return TypeEnd, errorAt(KindUnterminatedContainer, d.position(), "input ends inside %s", ctx.typ)
	}
	dt := DsonType(d.data[d.pos])
	if dt > maxDsonType {
		return TypeEnd, d.fail("invalid type byte %d", uint8(dt))
	}
	return dt, nil
}

func (d *binaryDecoder[K]) readScalar(dt DsonType) (Value, error) {
	return decodeScalar(d.data, &d.pos, dt)
}

func (d *binaryDecoder[K]) readHeader(_ DsonType) (Header, error) {
	flags, err := d.uvarint()
	if err != nil {
		return Header{}, err
	}
	var h Header
	if flags&1 != 0 {
		ns, err := d.uvarint32()
		if err != nil {
			return Header{}, err
		}
		lid, err := d.uvarint32()
		if err != nil {
			return Header{}, err
		}
		h.ClassID = ClassID{Namespace: DecodeZigZag32(ns), LocalID: DecodeZigZag32(lid)}
	}
	if flags&2 != 0 {
		alias, err := d.text()
		if err != nil {
			return Header{}, err
		}
		h.Alias = alias
	}
	return h, nil
}

// skipValue skips the payload of the current element using only its wire
// type, recursing into groups.
func (d *binaryDecoder[K]) skipValue(dt DsonType, budget int) error {
	switch dt.wireType() {
	case WireVarint:
		_, err := d.uvarint()
		return err
	case WireFixed32:
		_, err := d.take(4)
		return err
	case WireFixed64:
		_, err := d.take(8)
		return err
	case WireLengthDelimited:
		_, err := d.delimited()
		return err
	default:
		return d.skipGroup(dt, budget)
	}
}

func (d *binaryDecoder[K]) skipGroup(dt DsonType, budget int) error {
	if budget < 1 {
		return d.fail("nesting too deep")
	}
	if _, err := d.readHeader(dt); err != nil {
		return err
	}
	typ := containerContext(dt)
	for {
		child, number, err := d.readElementHead(typ)
		if err != nil {
			return err
		}
		if child == TypeEnd {
			return nil
		}
		if typ == ContextObject && number == 0 && keyKindOf[K]() == KeyString {
			if _, err := d.delimited(); err != nil {
				return err
			}
		}
		if err := d.skipValue(child, budget-1); err != nil {
			return err
		}
	}
}

func (d *binaryDecoder[K]) readRaw(dt DsonType, budget int) (*RawValue, error) {
	start := d.pos
	if err := d.skipValue(dt, budget); err != nil {
		return nil, err
	}
	return &RawValue{Type: dt, Keys: keyKindOf[K](), Data: bytes.Clone(d.data[start:d.pos])}, nil
}

func (d *binaryDecoder[K]) close() error {
	d.data = nil
	d.pos = 0
	return nil
}

// decodeScalar decodes the payload of a scalar at *pos.
func decodeScalar(data []byte, pos *int, dt DsonType) (Value, error) {
	d := binaryDecoder[string]{data: data, pos: *pos}
	defer func() { *pos = d.pos }()
	switch dt {
	case TypeInt32:
		u, err := d.uvarint32()
		if err != nil {
			return nil, err
		}
		return Int32(DecodeZigZag32(u)), nil
	case TypeInt64:
		u, err := d.uvarint()
		if err != nil {
			return nil, err
		}
		return Int64(DecodeZigZag64(u)), nil
	case TypeFloat32:
		b, err := d.take(4)
		if err != nil {
			return nil, err
		}
		return Float32(math.Float32frombits(binary.LittleEndian.Uint32(b))), nil
	case TypeFloat64:
		b, err := d.take(8)
		if err != nil {
			return nil, err
		}
		return Float64(math.Float64frombits(binary.LittleEndian.Uint64(b))), nil
	case TypeBoolean:
		u, err := d.uvarint()
		if err != nil {
			return nil, err
		}
		if u > 1 {
			return nil, d.fail("invalid bool %d", u)
		}
		return Bool(u == 1), nil
	case TypeString:
		s, err := d.text()
		if err != nil {
			return nil, err
		}
		return String(s), nil
	case TypeNull:
		b, err := d.delimited()
		if err != nil {
			return nil, err
		}
		if len(b) != 0 {
			return nil, d.fail("null with %d payload bytes", len(b))
		}
		return Null{}, nil
	case TypeBinary:
		b, err := d.delimited()
		if err != nil {
			return nil, err
		}
		if len(b) == 0 {
			return nil, d.fail("binary without subtype")
		}
		return Binary{Subtype: b[0], Data: bytes.Clone(b[1:])}, nil
	case TypeExtInt32, TypeExtInt64, TypeExtString, TypeReference:
		b, err := d.delimited()
		if err != nil {
			return nil, err
		}
		inner := binaryDecoder[string]{data: b}
		v, err := inner.decodeExt(dt)
		if err != nil {
			return nil, wrapError(KindUnexpectedToken, d.position(), err, "malformed %s payload", dt)
		}
		if inner.pos != len(b) {
			return nil, d.fail("%d trailing bytes in %s payload", len(b)-inner.pos, dt)
		}
		return v, nil
	default:
		return nil, d.fail("%s is not a scalar", dt)
	}
}

func (d *binaryDecoder[K]) decodeExt(dt DsonType) (Value, error) {
	if dt == TypeReference {
		lid, err := d.text()
		if err != nil {
			return nil, err
		}
		ns, err := d.text()
		if err != nil {
			return nil, err
		}
		return Reference{LocalID: lid, Namespace: ns}, nil
	}
	st, err := d.uvarint32()
	if err != nil {
		return nil, err
	}
	subtype := DecodeZigZag32(st)
	switch dt {
	case TypeExtInt32:
		u, err := d.uvarint32()
		if err != nil {
			return nil, err
		}
		return ExtInt32{Subtype: subtype, Value: DecodeZigZag32(u)}, nil
	case TypeExtInt64:
		u, err := d.uvarint()
		if err != nil {
			return nil, err
		}
		return ExtInt64{Subtype: subtype, Value: DecodeZigZag64(u)}, nil
	default:
		rest := d.data[d.pos:]
		if !utf8.Valid(rest) {
			return nil, d.fail("invalid utf-8 in string")
		}
		d.pos = len(d.data)
		return ExtString{Subtype: subtype, Value: string(rest)}, nil
	}
}
