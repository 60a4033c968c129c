package dson

import (
	"bytes"
	"math"
	"strings"
)

// ============================================================
// Value model
// ============================================================

// Value is one Dson value. The concrete types are Int32, Int64, Float32,
// Float64, Bool, String, Null, Binary, ExtInt32, ExtInt64, ExtString,
// Reference, *Object[string], *Object[FieldNumber] and *Array.
type Value interface {
	DsonType() DsonType
}

type (
	Int32   int32
	Int64   int64
	Float32 float32
	Float64 float64
	Bool    bool
	String  string
	Null    struct{}
)

func (Int32) DsonType() DsonType   { return TypeInt32 }
func (Int64) DsonType() DsonType   { return TypeInt64 }
func (Float32) DsonType() DsonType { return TypeFloat32 }
func (Float64) DsonType() DsonType { return TypeFloat64 }
func (Bool) DsonType() DsonType    { return TypeBoolean }
func (String) DsonType() DsonType  { return TypeString }
func (Null) DsonType() DsonType    { return TypeNull }

// Binary is a byte payload tagged with an application subtype.
type Binary struct {
	Subtype uint8
	Data    []byte
}

func (Binary) DsonType() DsonType { return TypeBinary }

// ExtInt32 is an int32 tagged with an application subtype.
type ExtInt32 struct {
	Subtype int32
	Value   int32
}

func (ExtInt32) DsonType() DsonType { return TypeExtInt32 }

// ExtInt64 is an int64 tagged with an application subtype.
type ExtInt64 struct {
	Subtype int32
	Value   int64
}

func (ExtInt64) DsonType() DsonType { return TypeExtInt64 }

// ExtString is a string tagged with an application subtype.
type ExtString struct {
	Subtype int32
	Value   string
}

func (ExtString) DsonType() DsonType { return TypeExtString }

// Reference points at another object by local id. An empty Namespace means
// the reference has no namespace.
type Reference struct {
	LocalID   string
	Namespace string
}

func (Reference) DsonType() DsonType { return TypeReference }

// ============================================================
// Containers
// ============================================================

// Object is an ordered mapping from keys to values.
type Object[K Key] struct {
	Header Header
	keys   []K
	values map[K]Value
}

// NewObject returns an empty object with the given header.
func NewObject[K Key](h Header) *Object[K] {
	return &Object[K]{Header: h, values: make(map[K]Value)}
}

func (*Object[K]) DsonType() DsonType { return TypeObject }

// Put appends a key. A key that is already present is rejected with
// ErrDuplicateKey and the object is left unchanged.
func (o *Object[K]) Put(k K, v Value) error {
	if o.values == nil {
		o.values = make(map[K]Value)
	}
	if _, dup := o.values[k]; dup {
		return newError(KindDuplicateKey, "duplicate key %q", keyString(k))
	}
	if v == nil {
		v = Null{}
	}
	o.keys = append(o.keys, k)
	o.values[k] = v
	return nil
}

// Set replaces the value of an existing key or appends a new one.
func (o *Object[K]) Set(k K, v Value) {
	if _, ok := o.values[k]; ok {
		if v == nil {
			v = Null{}
		}
		o.values[k] = v
		return
	}
	_ = o.Put(k, v)
}

// Get returns the value for k.
func (o *Object[K]) Get(k K) (Value, bool) {
	v, ok := o.values[k]
	return v, ok
}

// Len returns the number of entries.
func (o *Object[K]) Len() int {
	return len(o.keys)
}

// Keys returns the keys in insertion order. The slice must not be modified.
func (o *Object[K]) Keys() []K {
	return o.keys
}

// Range calls fn for each entry in insertion order until fn returns false.
func (o *Object[K]) Range(fn func(k K, v Value) bool) {
	for _, k := range o.keys {
		if !fn(k, o.values[k]) {
			return
		}
	}
}

// Array is an ordered sequence of values.
type Array struct {
	Header Header
	Items  []Value
}

// NewArray returns an array holding items.
func NewArray(h Header, items ...Value) *Array {
	return &Array{Header: h, Items: items}
}

func (*Array) DsonType() DsonType { return TypeArray }

// Append adds values to the end of the array.
func (a *Array) Append(vs ...Value) {
	for _, v := range vs {
		if v == nil {
			v = Null{}
		}
		a.Items = append(a.Items, v)
	}
}

// Index returns the i-th value.
func (a *Array) Index(i int) Value {
	return a.Items[i]
}

// Len returns the number of items.
func (a *Array) Len() int {
	return len(a.Items)
}

// ============================================================
// Equality
// ============================================================

// Equal reports whether a and b are structurally equal. Floats compare by
// value except that NaN equals NaN; binary payloads compare by content;
// container headers are part of the comparison.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.DsonType() != b.DsonType() {
		return false
	}
	if ra, ok := a.(*RawValue); ok {
		if rb, ok := b.(*RawValue); ok && ra.Equal(rb) {
			return true
		}
	}
	var ok bool
	if a, ok = resolveRaw(a); !ok {
		return false
	}
	if b, ok = resolveRaw(b); !ok {
		return false
	}
	switch x := a.(type) {
	case Float32:
		y, ok := b.(Float32)
		return ok && (x == y || (isNaN32(float32(x)) && isNaN32(float32(y))))
	case Float64:
		y, ok := b.(Float64)
		return ok && (x == y || (math.IsNaN(float64(x)) && math.IsNaN(float64(y))))
	case Binary:
		y, ok := b.(Binary)
		return ok && x.Subtype == y.Subtype && bytes.Equal(x.Data, y.Data)
	case *Object[string]:
		y, ok := b.(*Object[string])
		return ok && objectsEqual(x, y)
	case *Object[FieldNumber]:
		y, ok := b.(*Object[FieldNumber])
		return ok && objectsEqual(x, y)
	case *Array:
		y, ok := b.(*Array)
		if !ok || x.Header != y.Header || len(x.Items) != len(y.Items) {
			return false
		}
		for i := range x.Items {
			if !Equal(x.Items[i], y.Items[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// resolveRaw decodes a lazily held value. Undecodable bytes equal nothing.
func resolveRaw(v Value) (Value, bool) {
	raw, ok := v.(*RawValue)
	if !ok {
		return v, true
	}
	dv, err := raw.Value()
	return dv, err == nil
}

func objectsEqual[K Key](x, y *Object[K]) bool {
	if x.Header != y.Header || len(x.keys) != len(y.keys) {
		return false
	}
	for i, k := range x.keys {
		if y.keys[i] != k {
			return false
		}
		if !Equal(x.values[k], y.values[k]) {
			return false
		}
	}
	return true
}

func isNaN32(f float32) bool {
	return f != f
}

// ============================================================
// Key conversion
// ============================================================

// StringKeys returns v with every number-keyed object rewritten to use the
// decimal form of its field numbers as string keys.
func StringKeys(v Value) Value {
	return convertKeys[string](v)
}

// NumberKeys returns v with every string-keyed object rewritten to use field
// numbers. Keys that are not decimal field numbers produce a TypeMismatch.
func NumberKeys(v Value) (Value, error) {
	var err error
	out := convertKeysErr[FieldNumber](v, &err)
	return out, err
}

func convertKeys[K Key](v Value) Value {
	var err error
	return convertKeysErr[K](v, &err)
}

func convertKeysErr[K Key](v Value, errp *error) Value {
	switch x := v.(type) {
	case *Object[string]:
		return rekey[string, K](x, errp)
	case *Object[FieldNumber]:
		return rekey[FieldNumber, K](x, errp)
	case *Array:
		out := &Array{Header: x.Header, Items: make([]Value, len(x.Items))}
		for i, item := range x.Items {
			out.Items[i] = convertKeysErr[K](item, errp)
		}
		return out
	default:
		return v
	}
}

func rekey[From, To Key](o *Object[From], errp *error) *Object[To] {
	out := NewObject[To](o.Header)
	for _, k := range o.keys {
		nk, err := convertKey[To](keyString(k))
		if err != nil {
			if *errp == nil {
				*errp = err
			}
			continue
		}
		if err := out.Put(nk, convertKeysErr[To](o.values[k], errp)); err != nil && *errp == nil {
			*errp = err
		}
	}
	return out
}

func convertKey[K Key](s string) (K, error) {
	var k K
	switch p := any(&k).(type) {
	case *string:
		*p = s
	case *FieldNumber:
		n, ok := parseFieldNumber(s)
		if !ok {
			return k, newError(KindTypeMismatch, "key %q is not a field number", s)
		}
		*p = n
	}
	return k, nil
}

func parseFieldNumber(s string) (FieldNumber, bool) {
	if s == "" || len(s) > 10 || strings.TrimLeft(s, "0123456789") != "" {
		return 0, false
	}
	var n uint64
	for i := 0; i < len(s); i++ {
		n = n*10 + uint64(s[i]-'0')
	}
	if n > math.MaxUint32 {
		return 0, false
	}
	return FieldNumber(n), true
}
