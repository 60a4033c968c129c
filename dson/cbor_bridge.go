package dson

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/fxamacker/cbor/v2"
)

// ============================================================
// CBOR Bridge
// ============================================================
//
// Maps the value model onto CBOR. Plain scalars, strings, byte strings,
// arrays and maps use the native CBOR major types; the Dson-only variants
// are wrapped in tags from the first-come-first-served range. Output uses
// Core Deterministic Encoding, so map keys come out sorted and object key
// order is not preserved.

const (
	cborTagBinary    = 0x44534f01 // [subtype, bytes]
	cborTagExtInt32  = 0x44534f02 // [subtype, value]
	cborTagExtInt64  = 0x44534f03 // [subtype, value]
	cborTagExtString = 0x44534f04 // [subtype, value]
	cborTagReference = 0x44534f05 // [localId, namespace]
	cborTagHeader    = 0x44534f06 // [alias, ns, lid, container]
	cborTagInt64     = 0x44534f07 // value that fits in 32 bits
	cborTagFloat32   = 0x44534f08
)

var (
	cborEncMode cbor.EncMode
	cborDecMode cbor.DecMode
)

func init() {
	var err error
	cborEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("dson: CBOR encoder initialization failed: " + err.Error())
	}
	// The default map type (map[any]any) keeps integer keys, which
	// number-keyed objects need.
	cborDecMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("dson: CBOR decoder initialization failed: " + err.Error())
	}
}

// ToCBOR encodes v as deterministic CBOR.
func ToCBOR(v Value) ([]byte, error) {
	item, err := toCBORItem(v)
	if err != nil {
		return nil, err
	}
	data, err := cborEncMode.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("encoding CBOR: %w", err)
	}
	return data, nil
}

func toCBORItem(v Value) (any, error) {
	switch x := v.(type) {
	case nil, Null:
		return nil, nil
	case Bool:
		return bool(x), nil
	case Int32:
		return int64(x), nil
	case Int64:
		if int64(x) >= math.MinInt32 && int64(x) <= math.MaxInt32 {
			return cbor.Tag{Number: cborTagInt64, Content: int64(x)}, nil
		}
		return int64(x), nil
	case Float32:
		return cbor.Tag{Number: cborTagFloat32, Content: float32(x)}, nil
	case Float64:
		return float64(x), nil
	case String:
		return string(x), nil
	case Binary:
		// a nil slice would encode as CBOR null
		data := x.Data
		if data == nil {
			data = []byte{}
		}
		if x.Subtype == 0 {
			return data, nil
		}
		return cbor.Tag{Number: cborTagBinary, Content: []any{x.Subtype, data}}, nil
	case ExtInt32:
		return cbor.Tag{Number: cborTagExtInt32, Content: []any{x.Subtype, x.Value}}, nil
	case ExtInt64:
		return cbor.Tag{Number: cborTagExtInt64, Content: []any{x.Subtype, x.Value}}, nil
	case ExtString:
		return cbor.Tag{Number: cborTagExtString, Content: []any{x.Subtype, x.Value}}, nil
	case Reference:
		return cbor.Tag{Number: cborTagReference, Content: []any{x.LocalID, x.Namespace}}, nil
	case *Object[string]:
		m := make(map[string]any, x.Len())
		for _, k := range x.keys {
			item, err := toCBORItem(x.values[k])
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			m[k] = item
		}
		return withCBORHeader(x.Header, m), nil
	case *Object[FieldNumber]:
		m := make(map[uint64]any, x.Len())
		for _, k := range x.keys {
			item, err := toCBORItem(x.values[k])
			if err != nil {
				return nil, fmt.Errorf("object[%d]: %w", k, err)
			}
			m[uint64(k)] = item
		}
		return withCBORHeader(x.Header, m), nil
	case *Array:
		items := make([]any, len(x.Items))
		for i, item := range x.Items {
			ci, err := toCBORItem(item)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			items[i] = ci
		}
		return withCBORHeader(x.Header, items), nil
	case *RawValue:
		inner, err := x.Value()
		if err != nil {
			return nil, err
		}
		return toCBORItem(inner)
	default:
		return nil, fmt.Errorf("unsupported value type: %T", v)
	}
}

func withCBORHeader(h Header, content any) any {
	if h.IsZero() {
		return content
	}
	return cbor.Tag{
		Number:  cborTagHeader,
		Content: []any{h.Alias, h.ClassID.Namespace, h.ClassID.LocalID, content},
	}
}

// FromCBOR decodes one CBOR item. Maps with text keys become string-keyed
// objects ordered by key; maps with integer keys become number-keyed
// objects.
func FromCBOR(data []byte) (Value, error) {
	var item any
	if err := cborDecMode.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("decoding CBOR: %w", err)
	}
	return fromCBORItem(item)
}

func cborInt(item any) (int64, bool) {
	switch n := item.(type) {
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}

func cborParts(t cbor.Tag, n int) ([]any, error) {
	parts, ok := t.Content.([]any)
	if !ok || len(parts) != n {
		return nil, fmt.Errorf("CBOR tag %d: want %d-element array", t.Number, n)
	}
	return parts, nil
}

func fromCBORItem(item any) (Value, error) {
	switch x := item.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool(x), nil
	case uint64, int64:
		n, ok := cborInt(x)
		if !ok {
			return nil, fmt.Errorf("CBOR integer %v overflows int64", x)
		}
		if n >= math.MinInt32 && n <= math.MaxInt32 {
			return Int32(n), nil
		}
		return Int64(n), nil
	case float32:
		return Float64(x), nil
	case float64:
		return Float64(x), nil
	case string:
		return String(x), nil
	case []byte:
		return Binary{Data: x}, nil
	case []any:
		arr := NewArray(Header{})
		for i, e := range x {
			v, err := fromCBORItem(e)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr.Items = append(arr.Items, v)
		}
		return arr, nil
	case map[any]any:
		return fromCBORMap(x)
	case cbor.Tag:
		return fromCBORTag(x)
	default:
		return nil, fmt.Errorf("unsupported CBOR item %T", item)
	}
}

func fromCBORMap(m map[any]any) (Value, error) {
	var (
		names   []string
		numbers []FieldNumber
	)
	for k := range m {
		switch key := k.(type) {
		case string:
			names = append(names, key)
		case uint64:
			if key > math.MaxUint32 {
				return nil, fmt.Errorf("CBOR map key %d out of range", key)
			}
			numbers = append(numbers, FieldNumber(key))
		default:
			return nil, fmt.Errorf("unsupported CBOR map key %T", k)
		}
	}
	if len(names) > 0 && len(numbers) > 0 {
		return nil, fmt.Errorf("CBOR map mixes text and integer keys")
	}
	if len(numbers) > 0 {
		slices.SortFunc(numbers, cmp.Compare[FieldNumber])
		obj := NewObject[FieldNumber](Header{})
		for _, k := range numbers {
			v, err := fromCBORItem(m[uint64(k)])
			if err != nil {
				return nil, fmt.Errorf("object[%d]: %w", k, err)
			}
			obj.Set(k, v)
		}
		return obj, nil
	}
	slices.Sort(names)
	obj := NewObject[string](Header{})
	for _, k := range names {
		v, err := fromCBORItem(m[k])
		if err != nil {
			return nil, fmt.Errorf("object[%q]: %w", k, err)
		}
		obj.Set(k, v)
	}
	return obj, nil
}

func fromCBORTag(t cbor.Tag) (Value, error) {
	switch t.Number {
	case cborTagInt64:
		n, ok := cborInt(t.Content)
		if !ok {
			return nil, fmt.Errorf("CBOR int64 tag: want an integer")
		}
		return Int64(n), nil
	case cborTagFloat32:
		switch f := t.Content.(type) {
		case float32:
			return Float32(f), nil
		case float64:
			return Float32(f), nil
		}
		return nil, fmt.Errorf("CBOR float32 tag: want a float")
	case cborTagBinary:
		parts, err := cborParts(t, 2)
		if err != nil {
			return nil, err
		}
		st, ok := cborInt(parts[0])
		data, isBytes := parts[1].([]byte)
		if !ok || !isBytes || st < 0 || st > math.MaxUint8 {
			return nil, fmt.Errorf("CBOR binary tag: malformed content")
		}
		return Binary{Subtype: uint8(st), Data: data}, nil
	case cborTagExtInt32, cborTagExtInt64:
		parts, err := cborParts(t, 2)
		if err != nil {
			return nil, err
		}
		st, ok1 := cborInt(parts[0])
		n, ok2 := cborInt(parts[1])
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("CBOR extended integer tag: malformed content")
		}
		if t.Number == cborTagExtInt32 {
			return ExtInt32{Subtype: int32(st), Value: int32(n)}, nil
		}
		return ExtInt64{Subtype: int32(st), Value: n}, nil
	case cborTagExtString:
		parts, err := cborParts(t, 2)
		if err != nil {
			return nil, err
		}
		st, ok := cborInt(parts[0])
		s, isString := parts[1].(string)
		if !ok || !isString {
			return nil, fmt.Errorf("CBOR extended string tag: malformed content")
		}
		return ExtString{Subtype: int32(st), Value: s}, nil
	case cborTagReference:
		parts, err := cborParts(t, 2)
		if err != nil {
			return nil, err
		}
		lid, ok1 := parts[0].(string)
		ns, ok2 := parts[1].(string)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("CBOR reference tag: malformed content")
		}
		return Reference{LocalID: lid, Namespace: ns}, nil
	case cborTagHeader:
		parts, err := cborParts(t, 4)
		if err != nil {
			return nil, err
		}
		alias, ok1 := parts[0].(string)
		ns, ok2 := cborInt(parts[1])
		lid, ok3 := cborInt(parts[2])
		if !ok1 || !ok2 || !ok3 {
			return nil, fmt.Errorf("CBOR header tag: malformed content")
		}
		h := Header{Alias: alias, ClassID: ClassID{Namespace: int32(ns), LocalID: int32(lid)}}
		inner, err := fromCBORItem(parts[3])
		if err != nil {
			return nil, err
		}
		switch c := inner.(type) {
		case *Object[string]:
			c.Header = h
		case *Object[FieldNumber]:
			c.Header = h
		case *Array:
			c.Header = h
		default:
			return nil, fmt.Errorf("CBOR header tag on %s", inner.DsonType())
		}
		return inner, nil
	default:
		return nil, fmt.Errorf("unsupported CBOR tag %d", t.Number)
	}
}
