package dson

import (
	"log/slog"
	"reflect"
)

// ============================================================
// Fields
// ============================================================

// Field names an object member for both key representations: Name is used
// by string-keyed documents, Number by number-keyed binary records. Array
// elements and top-level values use the zero Field.
type Field struct {
	Name   string
	Number FieldNumber

	byNumber bool
}

// NewField returns a field with class part 0.
func NewField(name string, local uint32) Field {
	return Field{Name: name, Number: MakeFullNumber(0, local)}
}

// Is reports whether a field observed by a reader matches the declared
// field d. Only the half of the key the reader saw is compared.
func (f Field) Is(d Field) bool {
	if f.byNumber {
		return f.Number == d.Number
	}
	return f.Name == d.Name
}

// String returns the name, or the number for fields read from
// number-keyed records.
func (f Field) String() string {
	if f.byNumber || f.Name == "" && f.Number != 0 {
		return f.Number.String()
	}
	return f.Name
}

func fieldKey[K Key](f Field) K {
	var k K
	switch p := any(&k).(type) {
	case *string:
		*p = f.Name
	case *FieldNumber:
		*p = f.Number
	}
	return k
}

func fieldOf[K Key](k K) Field {
	switch v := any(k).(type) {
	case FieldNumber:
		return Field{Number: v, byNumber: true}
	case string:
		return Field{Name: v}
	}
	return Field{}
}

// ============================================================
// Key-erased writer
// ============================================================

type valueWriter interface {
	format() Format
	keys() KeyKind
	contextType() ContextType
	value(f Field, v Value) error
	stringStyle(f Field, s string, style StringStyle) error
	start(f Field, dt DsonType, h Header) error
	end(dt DsonType) error
	raw(f Field, raw *RawValue) error
	flush() error
	close() error
}

type keyedWriter[K Key] struct {
	w Writer[K]
}

func (k keyedWriter[K]) format() Format           { return k.w.Format() }
func (k keyedWriter[K]) keys() KeyKind            { return keyKindOf[K]() }
func (k keyedWriter[K]) contextType() ContextType { return k.w.ContextType() }
func (k keyedWriter[K]) flush() error             { return k.w.Flush() }
func (k keyedWriter[K]) close() error             { return k.w.Close() }

func (k keyedWriter[K]) value(f Field, v Value) error {
	return WriteValue(k.w, fieldKey[K](f), v)
}

func (k keyedWriter[K]) stringStyle(f Field, s string, style StringStyle) error {
	return k.w.WriteStringStyle(fieldKey[K](f), s, style)
}

func (k keyedWriter[K]) start(f Field, dt DsonType, h Header) error {
	if dt == TypeArray {
		return k.w.WriteStartArray(fieldKey[K](f), h)
	}
	return k.w.WriteStartObject(fieldKey[K](f), h)
}

func (k keyedWriter[K]) end(dt DsonType) error {
	if dt == TypeArray {
		return k.w.WriteEndArray()
	}
	return k.w.WriteEndObject()
}

func (k keyedWriter[K]) raw(f Field, raw *RawValue) error {
	return k.w.WriteValueBytes(fieldKey[K](f), raw)
}

// ============================================================
// ObjectWriter
// ============================================================

// ObjectWriter is the format-independent writer handed to codecs. Values
// that are not part of the value model go through the registry.
type ObjectWriter struct {
	w        valueWriter
	reg      *Registry
	settings Settings
	log      *slog.Logger
}

// NewObjectWriter wraps w. A nil registry only allows built-in types.
func NewObjectWriter[K Key](w Writer[K], reg *Registry) *ObjectWriter {
	reg = reg.orEmpty()
	return &ObjectWriter{
		w:        keyedWriter[K]{w: w},
		reg:      reg,
		settings: reg.settings,
		log:      reg.settings.logger(),
	}
}

// Format returns the underlying encoding.
func (w *ObjectWriter) Format() Format { return w.w.format() }

// Keys returns the key representation of the underlying writer.
func (w *ObjectWriter) Keys() KeyKind { return w.w.keys() }

// Registry returns the registry used for dispatch.
func (w *ObjectWriter) Registry() *Registry { return w.reg }

func (w *ObjectWriter) WriteInt32(f Field, v int32) error     { return w.w.value(f, Int32(v)) }
func (w *ObjectWriter) WriteInt64(f Field, v int64) error     { return w.w.value(f, Int64(v)) }
func (w *ObjectWriter) WriteFloat32(f Field, v float32) error { return w.w.value(f, Float32(v)) }
func (w *ObjectWriter) WriteFloat64(f Field, v float64) error { return w.w.value(f, Float64(v)) }
func (w *ObjectWriter) WriteBool(f Field, v bool) error       { return w.w.value(f, Bool(v)) }
func (w *ObjectWriter) WriteString(f Field, v string) error   { return w.w.value(f, String(v)) }
func (w *ObjectWriter) WriteNull(f Field) error               { return w.w.value(f, Null{}) }

// WriteStringStyle writes a string with a text style hint.
func (w *ObjectWriter) WriteStringStyle(f Field, v string, style StringStyle) error {
	return w.w.stringStyle(f, v, style)
}

func (w *ObjectWriter) WriteBinary(f Field, v Binary) error       { return w.w.value(f, v) }
func (w *ObjectWriter) WriteExtInt32(f Field, v ExtInt32) error   { return w.w.value(f, v) }
func (w *ObjectWriter) WriteExtInt64(f Field, v ExtInt64) error   { return w.w.value(f, v) }
func (w *ObjectWriter) WriteExtString(f Field, v ExtString) error { return w.w.value(f, v) }
func (w *ObjectWriter) WriteReference(f Field, v Reference) error { return w.w.value(f, v) }

// WriteBytes writes data as Binary with subtype 0.
func (w *ObjectWriter) WriteBytes(f Field, data []byte) error {
	return w.w.value(f, Binary{Data: data})
}

func (w *ObjectWriter) WriteStartObject(f Field, h Header) error {
	return w.w.start(f, TypeObject, h)
}

func (w *ObjectWriter) WriteEndObject() error {
	return w.w.end(TypeObject)
}

func (w *ObjectWriter) WriteStartArray(f Field, h Header) error {
	return w.w.start(f, TypeArray, h)
}

func (w *ObjectWriter) WriteEndArray() error {
	return w.w.end(TypeArray)
}

// WriteValue writes a value-model value unchanged.
func (w *ObjectWriter) WriteValue(f Field, v Value) error {
	return w.w.value(f, v)
}

// WriteValueBytes re-emits a captured value without consulting the
// registry.
func (w *ObjectWriter) WriteValueBytes(f Field, raw *RawValue) error {
	return w.w.raw(f, raw)
}

// WriteObject writes v, whose static type is declared (nil for any). A
// registered runtime type that differs from declared is written with a
// header: its class id in binary, its alias in text.
func (w *ObjectWriter) WriteObject(f Field, v any, declared reflect.Type) error {
	return w.writeReflect(f, reflect.ValueOf(v), declared)
}

func (w *ObjectWriter) Flush() error {
	return w.w.flush()
}

// Close closes the underlying writer.
func (w *ObjectWriter) Close() error {
	return w.w.close()
}

// WriteField writes v with T as its declared type.
func WriteField[T any](w *ObjectWriter, f Field, v T) error {
	return w.writeReflect(f, reflect.ValueOf(&v).Elem(), reflect.TypeFor[T]())
}

// ============================================================
// Key-erased reader
// ============================================================

type valueReader interface {
	format() Format
	keys() KeyKind
	contextType() ContextType
	next() (Field, DsonType, bool, error)
	peek() (DsonType, error)
	scalar(f Field, want DsonType) (Value, error)
	value(f Field) (Value, error)
	rest(dt DsonType, h Header) (Value, error)
	start(f Field, dt DsonType) (Header, error)
	end(dt DsonType) error
	skip() error
	skipToEnd() error
	raw(f Field) (*RawValue, error)
	pending() bool
	close() error
}

type keyedReader[K Key] struct {
	r Reader[K]
}

func (k keyedReader[K]) format() Format           { return k.r.Format() }
func (k keyedReader[K]) keys() KeyKind            { return keyKindOf[K]() }
func (k keyedReader[K]) contextType() ContextType { return k.r.ContextType() }
func (k keyedReader[K]) peek() (DsonType, error)  { return k.r.PeekDsonType() }
func (k keyedReader[K]) skip() error              { return k.r.SkipValue() }
func (k keyedReader[K]) skipToEnd() error         { return k.r.SkipToEndOfObject() }
func (k keyedReader[K]) close() error             { return k.r.Close() }

func (k keyedReader[K]) next() (Field, DsonType, bool, error) {
	name, ok, err := k.r.NextElementName()
	if err != nil || !ok {
		return Field{}, TypeEnd, false, err
	}
	f := Field{}
	if k.r.ContextType() == ContextObject {
		f = fieldOf(name)
	}
	return f, k.r.CurrentDsonType(), true, nil
}

func (k keyedReader[K]) scalar(f Field, want DsonType) (Value, error) {
	name := fieldKey[K](f)
	switch want {
	case TypeInt32:
		v, err := k.r.ReadInt32(name)
		return Int32(v), err
	case TypeInt64:
		v, err := k.r.ReadInt64(name)
		return Int64(v), err
	case TypeFloat32:
		v, err := k.r.ReadFloat32(name)
		return Float32(v), err
	case TypeFloat64:
		v, err := k.r.ReadFloat64(name)
		return Float64(v), err
	case TypeBoolean:
		v, err := k.r.ReadBool(name)
		return Bool(v), err
	case TypeString:
		v, err := k.r.ReadString(name)
		return String(v), err
	case TypeNull:
		return Null{}, k.r.ReadNull(name)
	case TypeBinary:
		return k.r.ReadBinary(name)
	case TypeExtInt32:
		return k.r.ReadExtInt32(name)
	case TypeExtInt64:
		return k.r.ReadExtInt64(name)
	case TypeExtString:
		return k.r.ReadExtString(name)
	case TypeReference:
		return k.r.ReadReference(name)
	default:
		return nil, newError(KindTypeMismatch, "%s is not a scalar type", want)
	}
}

func (k keyedReader[K]) value(f Field) (Value, error) {
	_, ok, err := k.r.NextElementName()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newError(KindContextError, "no more elements in %s", k.r.ContextType())
	}
	return readCurrent(k.r, fieldKey[K](f))
}

func (k keyedReader[K]) rest(dt DsonType, h Header) (Value, error) {
	if dt == TypeArray {
		return readArrayRest(k.r, h)
	}
	return readObjectRest(k.r, h)
}

func (k keyedReader[K]) start(f Field, dt DsonType) (Header, error) {
	if dt == TypeArray {
		return k.r.ReadStartArray(fieldKey[K](f))
	}
	return k.r.ReadStartObject(fieldKey[K](f))
}

func (k keyedReader[K]) end(dt DsonType) error {
	if dt == TypeArray {
		return k.r.ReadEndArray()
	}
	return k.r.ReadEndObject()
}

func (k keyedReader[K]) raw(f Field) (*RawValue, error) {
	return k.r.ReadValueAsBytes(fieldKey[K](f))
}

// pending reports whether the current element has been announced but its
// value not consumed.
func (k keyedReader[K]) pending() bool {
	if p, ok := k.r.(interface{ elementPending() bool }); ok {
		return p.elementPending()
	}
	return false
}

// ============================================================
// ObjectReader
// ============================================================

// ObjectReader is the format-independent reader handed to codecs.
type ObjectReader struct {
	r        valueReader
	reg      *Registry
	settings Settings
	log      *slog.Logger
}

// NewObjectReader wraps r. A nil registry only resolves built-in types.
func NewObjectReader[K Key](r Reader[K], reg *Registry) *ObjectReader {
	reg = reg.orEmpty()
	return &ObjectReader{
		r:        keyedReader[K]{r: r},
		reg:      reg,
		settings: reg.settings,
		log:      reg.settings.logger(),
	}
}

// Format returns the underlying encoding.
func (r *ObjectReader) Format() Format { return r.r.format() }

// Keys returns the key representation of the underlying reader.
func (r *ObjectReader) Keys() KeyKind { return r.r.keys() }

// ContextType returns the container the reader is positioned in.
func (r *ObjectReader) ContextType() ContextType { return r.r.contextType() }

// Registry returns the registry used for dispatch.
func (r *ObjectReader) Registry() *Registry { return r.reg }

// Next announces the next element of the current container. ok is false at
// the end of the container.
func (r *ObjectReader) Next() (f Field, dt DsonType, ok bool, err error) {
	return r.r.next()
}

// PeekDsonType returns the type of the next or current element.
func (r *ObjectReader) PeekDsonType() (DsonType, error) {
	return r.r.peek()
}

func (r *ObjectReader) ReadInt32(f Field) (int32, error) {
	v, err := r.r.scalar(f, TypeInt32)
	if err != nil {
		return 0, err
	}
	return int32(v.(Int32)), nil
}

func (r *ObjectReader) ReadInt64(f Field) (int64, error) {
	v, err := r.r.scalar(f, TypeInt64)
	if err != nil {
		return 0, err
	}
	return int64(v.(Int64)), nil
}

func (r *ObjectReader) ReadFloat32(f Field) (float32, error) {
	v, err := r.r.scalar(f, TypeFloat32)
	if err != nil {
		return 0, err
	}
	return float32(v.(Float32)), nil
}

func (r *ObjectReader) ReadFloat64(f Field) (float64, error) {
	v, err := r.r.scalar(f, TypeFloat64)
	if err != nil {
		return 0, err
	}
	return float64(v.(Float64)), nil
}

func (r *ObjectReader) ReadBool(f Field) (bool, error) {
	v, err := r.r.scalar(f, TypeBoolean)
	if err != nil {
		return false, err
	}
	return bool(v.(Bool)), nil
}

func (r *ObjectReader) ReadString(f Field) (string, error) {
	v, err := r.r.scalar(f, TypeString)
	if err != nil {
		return "", err
	}
	return string(v.(String)), nil
}

func (r *ObjectReader) ReadNull(f Field) error {
	_, err := r.r.scalar(f, TypeNull)
	return err
}

func (r *ObjectReader) ReadBinary(f Field) (Binary, error) {
	v, err := r.r.scalar(f, TypeBinary)
	if err != nil {
		return Binary{}, err
	}
	return v.(Binary), nil
}

// ReadBytes reads a Binary value and returns its data.
func (r *ObjectReader) ReadBytes(f Field) ([]byte, error) {
	b, err := r.ReadBinary(f)
	return b.Data, err
}

func (r *ObjectReader) ReadExtInt32(f Field) (ExtInt32, error) {
	v, err := r.r.scalar(f, TypeExtInt32)
	if err != nil {
		return ExtInt32{}, err
	}
	return v.(ExtInt32), nil
}

func (r *ObjectReader) ReadExtInt64(f Field) (ExtInt64, error) {
	v, err := r.r.scalar(f, TypeExtInt64)
	if err != nil {
		return ExtInt64{}, err
	}
	return v.(ExtInt64), nil
}

func (r *ObjectReader) ReadExtString(f Field) (ExtString, error) {
	v, err := r.r.scalar(f, TypeExtString)
	if err != nil {
		return ExtString{}, err
	}
	return v.(ExtString), nil
}

func (r *ObjectReader) ReadReference(f Field) (Reference, error) {
	v, err := r.r.scalar(f, TypeReference)
	if err != nil {
		return Reference{}, err
	}
	return v.(Reference), nil
}

func (r *ObjectReader) ReadStartObject(f Field) (Header, error) {
	return r.r.start(f, TypeObject)
}

func (r *ObjectReader) ReadEndObject() error {
	return r.r.end(TypeObject)
}

func (r *ObjectReader) ReadStartArray(f Field) (Header, error) {
	return r.r.start(f, TypeArray)
}

func (r *ObjectReader) ReadEndArray() error {
	return r.r.end(TypeArray)
}

// ReadValue reads the element into the value model.
func (r *ObjectReader) ReadValue(f Field) (Value, error) {
	return r.r.value(f)
}

// ReadValueAsBytes captures the element without decoding it.
func (r *ObjectReader) ReadValueAsBytes(f Field) (*RawValue, error) {
	return r.r.raw(f)
}

func (r *ObjectReader) SkipValue() error {
	return r.r.skip()
}

func (r *ObjectReader) SkipToEndOfObject() error {
	return r.r.skipToEnd()
}

// ReadObject reads the element as a Go value of type declared (nil for
// any). A header selects the registered type to build.
func (r *ObjectReader) ReadObject(f Field, declared reflect.Type) (any, error) {
	if declared == nil {
		declared = anyType
	}
	dst := reflect.New(declared).Elem()
	if err := r.readInto(f, dst); err != nil {
		return nil, err
	}
	return dst.Interface(), nil
}

// ReadFields calls fn for each remaining element of the current object.
// fn reads the value through r; elements fn leaves unread are skipped and
// logged at debug level.
func (r *ObjectReader) ReadFields(fn func(f Field) error) error {
	for {
		f, dt, ok, err := r.r.next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := fn(f); err != nil {
			return err
		}
		if r.r.pending() {
			r.log.Debug("skipping unknown field", "field", f.String(), "type", dt.String())
			if err := r.r.skip(); err != nil {
				return err
			}
		}
	}
}

// Close closes the underlying reader.
func (r *ObjectReader) Close() error {
	return r.r.close()
}

// ReadField reads the element as a T.
func ReadField[T any](r *ObjectReader, f Field) (T, error) {
	var v T
	if err := r.readInto(f, reflect.ValueOf(&v).Elem()); err != nil {
		return v, err
	}
	return v, nil
}
