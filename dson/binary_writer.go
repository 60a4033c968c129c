package dson

import (
	"fmt"
	"io"
)

// BinaryWriter encodes values in the binary Dson format. Output accumulates
// in a pooled buffer; when constructed with a non-nil io.Writer, Flush and
// Close copy it there.
type BinaryWriter[K Key] struct {
	baseWriter[K]
	enc *binaryEncoder[K]
}

// NewBinaryWriter returns a writer that buffers its output. out may be nil,
// in which case the encoded bytes are retrieved with Bytes.
func NewBinaryWriter[K Key](out io.Writer) *BinaryWriter[K] {
	enc := &binaryEncoder[K]{buf: getPooledBuffer(), out: out}
	return &BinaryWriter[K]{baseWriter: newBaseWriter[K](enc), enc: enc}
}

// Bytes returns the bytes encoded and not yet flushed. The slice is only
// valid until the next write or Close.
func (w *BinaryWriter[K]) Bytes() []byte {
	if w.enc.buf == nil {
		return nil
	}
	return *w.enc.buf
}

// binaryEncoder appends the wire form of each element to buf.
type binaryEncoder[K Key] struct {
	buf     *[]byte
	out     io.Writer
	scratch []byte
}

func (e *binaryEncoder[K]) format() Format {
	return FormatBinary
}

// appendPrefix writes the type byte, the tag and, for string-keyed objects,
// the key.
func (e *binaryEncoder[K]) appendPrefix(inObject bool, name K, dt DsonType) {
	b := append(*e.buf, byte(dt))
	var number FieldNumber
	key, hasKey := "", false
	if inObject {
		switch k := any(name).(type) {
		case FieldNumber:
			number = k
		case string:
			key, hasKey = k, true
		}
	}
	b = AppendUvarint(b, makeTag(number, dt.wireType()))
	if hasKey {
		b = AppendUvarint(b, uint64(len(key)))
		b = append(b, key...)
	}
	*e.buf = b
}

func (e *binaryEncoder[K]) appendDelimited(payload []byte) {
	b := AppendUvarint(*e.buf, uint64(len(payload)))
	*e.buf = append(b, payload...)
}

func (e *binaryEncoder[K]) appendHeader(h Header) {
	var flags uint64
	if !h.ClassID.IsZero() {
		flags |= 1
	}
	if h.Alias != "" {
		flags |= 2
	}
	b := AppendUvarint(*e.buf, flags)
	if flags&1 != 0 {
		b = AppendUvarint(b, uint64(EncodeZigZag32(h.ClassID.Namespace)))
		b = AppendUvarint(b, uint64(EncodeZigZag32(h.ClassID.LocalID)))
	}
	if flags&2 != 0 {
		b = AppendUvarint(b, uint64(len(h.Alias)))
		b = append(b, h.Alias...)
	}
	*e.buf = b
}

// appendPayload writes everything after the tag for a scalar value.
func (e *binaryEncoder[K]) appendPayload(v Value) error {
	b := *e.buf
	s := e.scratch[:0]
	switch x := v.(type) {
	case Int32:
		b = AppendUvarint(b, uint64(EncodeZigZag32(int32(x))))
	case Int64:
		b = AppendUvarint(b, EncodeZigZag64(int64(x)))
	case Float32:
		b = appendFixed32(b, float32(x))
	case Float64:
		b = appendFixed64(b, float64(x))
	case Bool:
		if x {
			b = append(b, 1)
		} else {
			b = append(b, 0)
		}
	case String:
		b = AppendUvarint(b, uint64(len(x)))
		b = append(b, x...)
	case Null:
		b = append(b, 0)
	case Binary:
		b = AppendUvarint(b, uint64(len(x.Data)+1))
		b = append(b, x.Subtype)
		b = append(b, x.Data...)
	case ExtInt32:
		s = AppendUvarint(s, uint64(EncodeZigZag32(x.Subtype)))
		s = AppendUvarint(s, uint64(EncodeZigZag32(x.Value)))
	case ExtInt64:
		s = AppendUvarint(s, uint64(EncodeZigZag32(x.Subtype)))
		s = AppendUvarint(s, EncodeZigZag64(x.Value))
	case ExtString:
		s = AppendUvarint(s, uint64(EncodeZigZag32(x.Subtype)))
		s = append(s, x.Value...)
	case Reference:
		s = AppendUvarint(s, uint64(len(x.LocalID)))
		s = append(s, x.LocalID...)
		s = AppendUvarint(s, uint64(len(x.Namespace)))
		s = append(s, x.Namespace...)
	default:
		return newError(KindTypeMismatch, "cannot encode %T as a scalar", v)
	}
	*e.buf = b
	if len(s) > 0 {
		e.appendDelimited(s)
	}
	e.scratch = s
	return nil
}

// appendValue encodes a complete value, containers included, without going
// through the writer state machine.
func (e *binaryEncoder[K]) appendValue(inObject bool, name K, v Value) error {
	var zero K
	switch x := v.(type) {
	case *Object[K]:
		e.appendPrefix(inObject, name, TypeObject)
		e.appendHeader(x.Header)
		for _, k := range x.keys {
			if err := e.appendValue(true, k, x.values[k]); err != nil {
				return err
			}
		}
		*e.buf = append(*e.buf, byte(TypeEnd))
		return nil
	case *Object[string], *Object[FieldNumber]:
		converted, err := rekeyValue[K](v)
		if err != nil {
			return err
		}
		return e.appendValue(inObject, name, converted)
	case *Array:
		e.appendPrefix(inObject, name, TypeArray)
		e.appendHeader(x.Header)
		for _, item := range x.Items {
			if err := e.appendValue(false, zero, item); err != nil {
				return err
			}
		}
		*e.buf = append(*e.buf, byte(TypeEnd))
		return nil
	case *RawValue:
		if x.Type == TypeEnd || x.Type > maxDsonType {
			return newError(KindUnknownType, "raw value of type %s", x.Type)
		}
		if x.Type.IsContainer() && x.Keys != keyKindOf[K]() {
			decoded, err := x.Value()
			if err != nil {
				return err
			}
			return e.appendValue(inObject, name, decoded)
		}
		e.appendPrefix(inObject, name, x.Type)
		*e.buf = append(*e.buf, x.Data...)
		return nil
	case nil:
		e.appendPrefix(inObject, name, TypeNull)
		return e.appendPayload(Null{})
	default:
		e.appendPrefix(inObject, name, v.DsonType())
		return e.appendPayload(v)
	}
}

func (e *binaryEncoder[K]) writeScalar(ctx *context[K], name K, v Value, _ StringStyle) error {
	return e.appendValue(ctx.typ == ContextObject, name, v)
}

func (e *binaryEncoder[K]) writeStart(ctx *context[K], name K, dt DsonType, h Header) error {
	e.appendPrefix(ctx.typ == ContextObject, name, dt)
	e.appendHeader(h)
	return nil
}

func (e *binaryEncoder[K]) writeEnd(_ *context[K], _ DsonType) error {
	*e.buf = append(*e.buf, byte(TypeEnd))
	return nil
}

func (e *binaryEncoder[K]) writeRaw(ctx *context[K], name K, raw *RawValue) error {
	return e.appendValue(ctx.typ == ContextObject, name, raw)
}

func (e *binaryEncoder[K]) flush() error {
	if e.out == nil || e.buf == nil || len(*e.buf) == 0 {
		return nil
	}
	if _, err := e.out.Write(*e.buf); err != nil {
		return fmt.Errorf("dson: flush: %w", err)
	}
	*e.buf = (*e.buf)[:0]
	return nil
}

func (e *binaryEncoder[K]) close() error {
	if e.buf != nil {
		putPooledBuffer(e.buf)
		e.buf = nil
	}
	return nil
}

// rekeyValue converts a container to use K keys.
func rekeyValue[K Key](v Value) (Value, error) {
	var err error
	out := convertKeysErr[K](v, &err)
	return out, err
}
