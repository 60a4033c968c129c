package dson

import (
	"bytes"
	"fmt"
)

// RawValue is an encoded value kept in binary form so that it can be passed
// through without being decoded. Data holds the payload that follows the
// type byte, tag and key of the element; Keys records the key kind of any
// objects inside it.
//
// Readers produce RawValues with ReadValueAsBytes and writers emit them with
// WriteValueBytes. Between binary readers and writers of the same key kind
// the bytes are copied unchanged.
type RawValue struct {
	Type DsonType
	Keys KeyKind
	Data []byte
}

// NewRawValue encodes v into a RawValue with K keys.
func NewRawValue[K Key](v Value) (*RawValue, error) {
	if v == nil {
		v = Null{}
	}
	enc := &binaryEncoder[K]{buf: getPooledBuffer()}
	defer enc.close()
	var zero K
	if err := enc.appendValue(false, zero, v); err != nil {
		return nil, err
	}
	payload, err := stripElementHead(*enc.buf)
	if err != nil {
		return nil, err
	}
	return &RawValue{Type: v.DsonType(), Keys: keyKindOf[K](), Data: bytes.Clone(payload)}, nil
}

// stripElementHead removes the type byte and top-level tag of an encoded
// element.
func stripElementHead(b []byte) ([]byte, error) {
	if len(b) < 2 {
		return nil, fmt.Errorf("dson: encoded element too short")
	}
	_, n := Uvarint(b[1:])
	if n <= 0 {
		return nil, fmt.Errorf("dson: malformed element tag")
	}
	return b[1+n:], nil
}

// DsonType returns the type of the wrapped value.
func (r *RawValue) DsonType() DsonType {
	return r.Type
}

// Element returns the raw value as a complete top-level binary element.
func (r *RawValue) Element() []byte {
	b := make([]byte, 0, len(r.Data)+2)
	b = append(b, byte(r.Type))
	b = AppendUvarint(b, makeTag(0, r.Type.wireType()))
	return append(b, r.Data...)
}

// Value decodes the raw bytes into the value model. Objects come back keyed
// the way they were captured.
func (r *RawValue) Value() (Value, error) {
	if r.Type == TypeEnd || r.Type > maxDsonType {
		return nil, newError(KindUnknownType, "raw value of type %s", r.Type)
	}
	if r.Keys == KeyNumber {
		return DecodeBinary[FieldNumber](r.Element())
	}
	return DecodeBinary[string](r.Element())
}

// Equal reports whether two raw values hold the same bytes.
func (r *RawValue) Equal(o *RawValue) bool {
	if r == nil || o == nil {
		return r == o
	}
	return r.Type == o.Type && r.Keys == o.Keys && bytes.Equal(r.Data, o.Data)
}
