package dson

import (
	"encoding/hex"
	"slices"

	"github.com/zeebo/blake3"
)

// ============================================================
// Canonical form
// ============================================================

// Canonical returns v with string keys, object members sorted by key and
// raw values decoded. Two values that differ only in member order or key
// representation have the same canonical form.
func Canonical(v Value) (Value, error) {
	switch x := v.(type) {
	case *Object[string]:
		keys := slices.Clone(x.keys)
		slices.Sort(keys)
		out := NewObject[string](x.Header)
		for _, k := range keys {
			cv, err := Canonical(x.values[k])
			if err != nil {
				return nil, err
			}
			out.Set(k, cv)
		}
		return out, nil
	case *Object[FieldNumber]:
		return Canonical(StringKeys(x))
	case *Array:
		out := NewArray(x.Header)
		out.Items = make([]Value, 0, len(x.Items))
		for _, item := range x.Items {
			cv, err := Canonical(item)
			if err != nil {
				return nil, err
			}
			out.Items = append(out.Items, cv)
		}
		return out, nil
	case *RawValue:
		inner, err := x.Value()
		if err != nil {
			return nil, err
		}
		return Canonical(inner)
	case nil:
		return Null{}, nil
	default:
		return v, nil
	}
}

// CanonicalBytes returns the string-keyed binary encoding of the canonical
// form of v.
func CanonicalBytes(v Value) ([]byte, error) {
	c, err := Canonical(v)
	if err != nil {
		return nil, err
	}
	return EncodeBinary[string](c)
}

// CanonicalHash returns the BLAKE3-256 digest of CanonicalBytes(v).
func CanonicalHash(v Value) ([32]byte, error) {
	data, err := CanonicalBytes(v)
	if err != nil {
		return [32]byte{}, err
	}
	return blake3.Sum256(data), nil
}

// Fingerprint returns CanonicalHash as lowercase hex.
func Fingerprint(v Value) (string, error) {
	h, err := CanonicalHash(v)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(h[:]), nil
}

// EqualCanonical reports whether a and b have the same canonical form.
func EqualCanonical(a, b Value) bool {
	ca, err := Canonical(a)
	if err != nil {
		return false
	}
	cb, err := Canonical(b)
	if err != nil {
		return false
	}
	return Equal(ca, cb)
}
