package dson

import (
	"bytes"
	"errors"
	"io"
	"strings"
)

// ReadValue reads the next element of the reader's current container, or
// the next top-level value, into the value model. It returns io.EOF when the
// container or the input has no more elements.
func ReadValue[K Key](r Reader[K]) (Value, error) {
	name, ok, err := r.NextElementName()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, io.EOF
	}
	return readCurrent(r, name)
}

func readCurrent[K Key](r Reader[K], name K) (Value, error) {
	switch r.CurrentDsonType() {
	case TypeInt32:
		v, err := r.ReadInt32(name)
		return Int32(v), err
	case TypeInt64:
		v, err := r.ReadInt64(name)
		return Int64(v), err
	case TypeFloat32:
		v, err := r.ReadFloat32(name)
		return Float32(v), err
	case TypeFloat64:
		v, err := r.ReadFloat64(name)
		return Float64(v), err
	case TypeBoolean:
		v, err := r.ReadBool(name)
		return Bool(v), err
	case TypeString:
		v, err := r.ReadString(name)
		return String(v), err
	case TypeNull:
		return Null{}, r.ReadNull(name)
	case TypeBinary:
		return r.ReadBinary(name)
	case TypeExtInt32:
		return r.ReadExtInt32(name)
	case TypeExtInt64:
		return r.ReadExtInt64(name)
	case TypeExtString:
		return r.ReadExtString(name)
	case TypeReference:
		return r.ReadReference(name)
	case TypeObject:
		h, err := r.ReadStartObject(name)
		if err != nil {
			return nil, err
		}
		return readObjectRest(r, h)
	case TypeArray:
		h, err := r.ReadStartArray(name)
		if err != nil {
			return nil, err
		}
		return readArrayRest(r, h)
	default:
		return nil, newError(KindUnknownType, "cannot read %s", r.CurrentDsonType())
	}
}

// readObjectRest reads the elements of an object whose start has been
// consumed, and its end.
func readObjectRest[K Key](r Reader[K], h Header) (*Object[K], error) {
	obj := NewObject[K](h)
	for {
		k, ok, err := r.NextElementName()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		v, err := readCurrent(r, k)
		if err != nil {
			return nil, err
		}
		if err := obj.Put(k, v); err != nil {
			return nil, err
		}
	}
	return obj, r.ReadEndObject()
}

func readArrayRest[K Key](r Reader[K], h Header) (*Array, error) {
	arr := NewArray(h)
	for {
		k, ok, err := r.NextElementName()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		v, err := readCurrent(r, k)
		if err != nil {
			return nil, err
		}
		arr.Items = append(arr.Items, v)
	}
	return arr, r.ReadEndArray()
}

// WriteValue writes v under name. Objects keyed differently from the writer
// are converted first.
func WriteValue[K Key](w Writer[K], name K, v Value) error {
	var zero K
	switch x := v.(type) {
	case nil:
		return w.WriteNull(name)
	case Int32:
		return w.WriteInt32(name, int32(x))
	case Int64:
		return w.WriteInt64(name, int64(x))
	case Float32:
		return w.WriteFloat32(name, float32(x))
	case Float64:
		return w.WriteFloat64(name, float64(x))
	case Bool:
		return w.WriteBool(name, bool(x))
	case String:
		return w.WriteString(name, string(x))
	case Null:
		return w.WriteNull(name)
	case Binary:
		return w.WriteBinary(name, x)
	case ExtInt32:
		return w.WriteExtInt32(name, x)
	case ExtInt64:
		return w.WriteExtInt64(name, x)
	case ExtString:
		return w.WriteExtString(name, x)
	case Reference:
		return w.WriteReference(name, x)
	case *RawValue:
		return w.WriteValueBytes(name, x)
	case *Object[K]:
		if err := w.WriteStartObject(name, x.Header); err != nil {
			return err
		}
		for _, k := range x.keys {
			if err := WriteValue(w, k, x.values[k]); err != nil {
				return err
			}
		}
		return w.WriteEndObject()
	case *Object[string], *Object[FieldNumber]:
		converted, err := rekeyValue[K](v)
		if err != nil {
			return err
		}
		return WriteValue(w, name, converted)
	case *Array:
		if err := w.WriteStartArray(name, x.Header); err != nil {
			return err
		}
		for _, item := range x.Items {
			if err := WriteValue(w, zero, item); err != nil {
				return err
			}
		}
		return w.WriteEndArray()
	default:
		return newError(KindUnknownType, "cannot write %T", v)
	}
}

// EncodeBinary encodes one top-level value.
func EncodeBinary[K Key](v Value) ([]byte, error) {
	w := NewBinaryWriter[K](nil)
	defer w.Close()
	var zero K
	if err := WriteValue[K](w, zero, v); err != nil {
		return nil, err
	}
	return bytes.Clone(w.Bytes()), nil
}

// DecodeBinary decodes exactly one top-level value.
func DecodeBinary[K Key](data []byte) (Value, error) {
	r := NewBinaryReader[K](data)
	defer r.Close()
	return readSingle[K](r)
}

// DecodeBinaryAll decodes every top-level value in data.
func DecodeBinaryAll[K Key](data []byte) ([]Value, error) {
	r := NewBinaryReader[K](data)
	defer r.Close()
	return readAll[K](r)
}

// EncodeText renders one top-level value as Dson text.
func EncodeText(v Value, settings TextSettings) (string, error) {
	var sb strings.Builder
	w := NewTextWriter(&sb, settings)
	if err := WriteValue[string](w, "", v); err != nil {
		w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// DecodeText parses exactly one top-level value from Dson text.
func DecodeText(text string) (Value, error) {
	r := NewTextReader(NewScanner(NewStringSource(text)))
	defer r.Close()
	return readSingle[string](r)
}

// DecodeTextAll parses every top-level value from Dson text.
func DecodeTextAll(text string) ([]Value, error) {
	r := NewTextReader(NewScanner(NewStringSource(text)))
	defer r.Close()
	return readAll[string](r)
}

func readSingle[K Key](r Reader[K]) (Value, error) {
	v, err := ReadValue(r)
	if errors.Is(err, io.EOF) {
		return nil, newError(KindUnexpectedToken, "empty input")
	}
	if err != nil {
		return nil, err
	}
	dt, err := r.ReadDsonType()
	if err != nil {
		return nil, err
	}
	if dt != TypeEnd {
		return nil, newError(KindUnexpectedToken, "trailing %s after top-level value", dt)
	}
	return v, nil
}

func readAll[K Key](r Reader[K]) ([]Value, error) {
	var out []Value
	for {
		v, err := ReadValue(r)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
}
