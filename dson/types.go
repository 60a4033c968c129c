package dson

import (
	"fmt"
	"strconv"
	"strings"
)

// DsonType identifies the variant of a value on the wire and in memory.
type DsonType uint8

const (
	TypeEnd DsonType = iota // container end marker (binary) / end of input
	TypeInt32
	TypeInt64
	TypeFloat32
	TypeFloat64
	TypeBoolean
	TypeString
	TypeNull
	TypeBinary
	TypeExtInt32
	TypeExtInt64
	TypeExtString
	TypeReference
	TypeObject
	TypeArray

	maxDsonType = TypeArray
)

// String returns the type name.
func (t DsonType) String() string {
	switch t {
	case TypeEnd:
		return "end"
	case TypeInt32:
		return "int32"
	case TypeInt64:
		return "int64"
	case TypeFloat32:
		return "float32"
	case TypeFloat64:
		return "float64"
	case TypeBoolean:
		return "bool"
	case TypeString:
		return "string"
	case TypeNull:
		return "null"
	case TypeBinary:
		return "binary"
	case TypeExtInt32:
		return "extInt32"
	case TypeExtInt64:
		return "extInt64"
	case TypeExtString:
		return "extString"
	case TypeReference:
		return "reference"
	case TypeObject:
		return "object"
	case TypeArray:
		return "array"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// IsContainer reports whether the type is Object or Array.
func (t DsonType) IsContainer() bool {
	return t == TypeObject || t == TypeArray
}

// IsNumber reports whether the type is one of the four plain numeric types.
func (t DsonType) IsNumber() bool {
	return t >= TypeInt32 && t <= TypeFloat64
}

// wireType returns the framing used for the type in binary documents.
func (t DsonType) wireType() WireType {
	switch t {
	case TypeInt32, TypeInt64, TypeBoolean:
		return WireVarint
	case TypeFloat32:
		return WireFixed32
	case TypeFloat64:
		return WireFixed64
	case TypeObject, TypeArray:
		return WireStartGroup
	default:
		return WireLengthDelimited
	}
}

// WireType describes how the bytes following a binary tag are framed.
type WireType uint8

const (
	WireVarint          WireType = 0
	WireFixed64         WireType = 1
	WireLengthDelimited WireType = 2
	WireStartGroup      WireType = 3
	WireFixed32         WireType = 5
)

// String returns the wire type name.
func (w WireType) String() string {
	switch w {
	case WireVarint:
		return "VARINT"
	case WireFixed64:
		return "FIXED64"
	case WireLengthDelimited:
		return "LENGTH_DELIMITED"
	case WireStartGroup:
		return "START_GROUP"
	case WireFixed32:
		return "FIXED32"
	default:
		return fmt.Sprintf("WIRE(%d)", uint8(w))
	}
}

// IsValid reports whether w is a known wire type.
func (w WireType) IsValid() bool {
	switch w {
	case WireVarint, WireFixed64, WireLengthDelimited, WireStartGroup, WireFixed32:
		return true
	default:
		return false
	}
}

// FieldNumber is the numeric key used by number-keyed binary documents. It
// packs a class part (0-7, the depth of the declaring class in a type
// hierarchy) with a local number.
type FieldNumber uint32

// MaxLocalNumber is the largest local part a FieldNumber can carry.
const MaxLocalNumber = 1<<29 - 1

// MakeFullNumber combines a class part and a local number.
func MakeFullNumber(classPart uint8, localPart uint32) FieldNumber {
	if classPart > 7 {
		panic("dson: class part out of range: " + strconv.Itoa(int(classPart)))
	}
	if localPart > MaxLocalNumber {
		panic("dson: local number out of range: " + strconv.FormatUint(uint64(localPart), 10))
	}
	return FieldNumber(localPart<<3 | uint32(classPart))
}

// ClassPart returns the class component.
func (n FieldNumber) ClassPart() uint8 {
	return uint8(n & 7)
}

// LocalPart returns the local number component.
func (n FieldNumber) LocalPart() uint32 {
	return uint32(n >> 3)
}

// String returns the full number in decimal.
func (n FieldNumber) String() string {
	return strconv.FormatUint(uint64(n), 10)
}

// Key is the constraint satisfied by object keys: string keys for documents,
// FieldNumber keys for compact binary records.
type Key interface {
	string | FieldNumber
}

// KeyKind tells which key representation a document uses.
type KeyKind uint8

const (
	KeyString KeyKind = iota
	KeyNumber
)

// String returns "string" or "number".
func (k KeyKind) String() string {
	if k == KeyNumber {
		return "number"
	}
	return "string"
}

func keyKindOf[K Key]() KeyKind {
	var k K
	if _, ok := any(k).(FieldNumber); ok {
		return KeyNumber
	}
	return KeyString
}

// keyString renders any key as text.
func keyString[K Key](k K) string {
	switch v := any(k).(type) {
	case string:
		return v
	case FieldNumber:
		return v.String()
	}
	return ""
}

// positionalKey returns the synthetic key for the i-th array element.
func positionalKey[K Key](i int) K {
	var k K
	switch p := any(&k).(type) {
	case *string:
		*p = strconv.Itoa(i)
	case *FieldNumber:
		*p = FieldNumber(i)
	}
	return k
}

// ClassID is the compact numeric type identifier written into binary
// documents. The zero value means "no class id".
type ClassID struct {
	Namespace int32
	LocalID   int32
}

// IsZero reports whether the id is unset.
func (c ClassID) IsZero() bool {
	return c.Namespace == 0 && c.LocalID == 0
}

// String returns "ns.lid".
func (c ClassID) String() string {
	return strconv.FormatInt(int64(c.Namespace), 10) + "." + strconv.FormatInt(int64(c.LocalID), 10)
}

// ParseClassID parses the "ns.lid" form produced by String.
func ParseClassID(s string) (ClassID, error) {
	nsText, lidText, ok := strings.Cut(s, ".")
	if !ok {
		return ClassID{}, fmt.Errorf("dson: invalid class id %q", s)
	}
	ns, err := strconv.ParseInt(nsText, 10, 32)
	if err != nil {
		return ClassID{}, fmt.Errorf("dson: invalid class id namespace %q: %w", s, err)
	}
	lid, err := strconv.ParseInt(lidText, 10, 32)
	if err != nil {
		return ClassID{}, fmt.Errorf("dson: invalid class id local id %q: %w", s, err)
	}
	return ClassID{Namespace: int32(ns), LocalID: int32(lid)}, nil
}

// Header is the optional type metadata attached to objects and arrays:
// a class id (binary) and/or a text alias.
type Header struct {
	Alias   string
	ClassID ClassID
}

// IsZero reports whether the header carries no metadata.
func (h Header) IsZero() bool {
	return h.Alias == "" && h.ClassID.IsZero()
}

// String returns the text form used after '@' in Dson text.
func (h Header) String() string {
	switch {
	case h.IsZero():
		return ""
	case h.ClassID.IsZero():
		return h.Alias
	default:
		return h.Alias + "#" + h.ClassID.String()
	}
}

// parseHeader parses the text after '@' in a container header.
func parseHeader(s string) (Header, error) {
	alias, idText, hasID := strings.Cut(s, "#")
	h := Header{Alias: alias}
	if hasID {
		id, err := ParseClassID(idText)
		if err != nil {
			return Header{}, err
		}
		h.ClassID = id
	}
	if h.IsZero() {
		return Header{}, fmt.Errorf("dson: empty header")
	}
	return h, nil
}

// Format identifies the encoding a reader or writer operates on.
type Format uint8

const (
	FormatBinary Format = iota
	FormatText
)

// String returns "binary" or "text".
func (f Format) String() string {
	if f == FormatText {
		return "text"
	}
	return "binary"
}

// ContextType is the kind of container a reader or writer is positioned in.
type ContextType uint8

const (
	ContextTopLevel ContextType = iota
	ContextObject
	ContextArray
)

// String returns the context name.
func (c ContextType) String() string {
	switch c {
	case ContextTopLevel:
		return "top-level"
	case ContextObject:
		return "object"
	case ContextArray:
		return "array"
	default:
		return "unknown"
	}
}
