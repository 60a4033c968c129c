package dson

import (
	"cmp"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"
)

// Built-in dispatch for values that need no registration: Go scalars,
// []byte, the value model, *RawValue, slices, arrays, sets
// (map[T]struct{}) and maps.

var (
	anyType      = reflect.TypeFor[any]()
	valueType    = reflect.TypeFor[Value]()
	rawValueType = reflect.TypeFor[*RawValue]()
	emptyStruct  = reflect.TypeFor[struct{}]()
)

// ============================================================
// Encoding
// ============================================================

func (w *ObjectWriter) writeReflect(f Field, rv reflect.Value, declared reflect.Type) error {
	if !rv.IsValid() {
		return w.w.value(f, Null{})
	}
	if rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return w.w.value(f, Null{})
		}
		rv = rv.Elem()
	}
	t := rv.Type()
	if nilable(t.Kind()) && rv.IsNil() {
		return w.w.value(f, Null{})
	}
	if t.Implements(valueType) {
		return w.w.value(f, rv.Interface().(Value))
	}
	if e, ok := w.reg.byType[t]; ok {
		return w.writeRegistered(f, e, rv.Interface(), w.headerFor(e, t, declared))
	}
	if t.Kind() == reflect.Pointer {
		if e, ok := w.reg.byType[t.Elem()]; ok {
			return w.writeRegistered(f, e, rv.Elem().Interface(), w.headerFor(e, t, declared))
		}
		var elemDeclared reflect.Type
		if declared != nil && declared.Kind() == reflect.Pointer {
			elemDeclared = declared.Elem()
		}
		return w.writeReflect(f, rv.Elem(), elemDeclared)
	}
	if !builtinAllowed(t, declared) {
		return newError(KindUnregisteredType, "%s is not registered", t)
	}
	switch t.Kind() {
	case reflect.Bool:
		return w.w.value(f, Bool(rv.Bool()))
	case reflect.Int8, reflect.Int16, reflect.Int32:
		return w.w.value(f, Int32(rv.Int()))
	case reflect.Int, reflect.Int64:
		if t.Kind() == reflect.Int && rv.Int() >= math.MinInt32 && rv.Int() <= math.MaxInt32 {
			return w.w.value(f, Int32(rv.Int()))
		}
		return w.w.value(f, Int64(rv.Int()))
	case reflect.Uint8, reflect.Uint16:
		return w.w.value(f, Int32(rv.Uint()))
	case reflect.Uint, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		switch {
		case u > math.MaxInt64:
			return newError(KindTypeMismatch, "%s value %d overflows int64", t, u)
		case u <= math.MaxInt32 && t.Kind() != reflect.Uint64:
			return w.w.value(f, Int32(u))
		}
		return w.w.value(f, Int64(u))
	case reflect.Float32:
		return w.w.value(f, Float32(rv.Float()))
	case reflect.Float64:
		return w.w.value(f, Float64(rv.Float()))
	case reflect.String:
		return w.w.value(f, String(rv.String()))
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return w.w.value(f, Binary{Data: rv.Bytes()})
		}
		return w.writeSequence(f, rv)
	case reflect.Array:
		return w.writeSequence(f, rv)
	case reflect.Map:
		return w.writeMap(f, rv)
	default:
		return newError(KindUnregisteredType, "%s is not registered", t)
	}
}

func nilable(k reflect.Kind) bool {
	switch k {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return true
	}
	return false
}

// builtinAllowed reports whether an unregistered t may be written for a
// field declared as declared. Named types must match the declaration.
func builtinAllowed(t, declared reflect.Type) bool {
	if t.Name() == "" || t.PkgPath() == "" {
		return true
	}
	return t == declared || declared != nil && declared.Kind() == reflect.Pointer && declared.Elem() == t
}

// headerFor returns the header announcing e, or the zero header when the
// declared type already names it.
func (w *ObjectWriter) headerFor(e *Entry, t, declared reflect.Type) Header {
	if declared != nil {
		if declared == t ||
			declared.Kind() == reflect.Pointer && declared.Elem() == t ||
			t.Kind() == reflect.Pointer && t.Elem() == declared {
			return Header{}
		}
	}
	if w.w.format() == FormatText {
		return Header{Alias: e.Alias}
	}
	return Header{ClassID: e.ClassID}
}

func (w *ObjectWriter) writeRegistered(f Field, e *Entry, v any, h Header) error {
	if err := w.w.start(f, TypeObject, h); err != nil {
		return err
	}
	if err := e.Codec.EncodeBody(w, v); err != nil {
		return fmt.Errorf("encoding %s: %w", e.Type, err)
	}
	return w.w.end(TypeObject)
}

func (w *ObjectWriter) writeSequence(f Field, rv reflect.Value) error {
	if err := w.w.start(f, TypeArray, Header{}); err != nil {
		return err
	}
	elem := rv.Type().Elem()
	for i := 0; i < rv.Len(); i++ {
		if err := w.writeReflect(Field{}, rv.Index(i), elem); err != nil {
			return err
		}
	}
	return w.w.end(TypeArray)
}

// writeMap writes sets as arrays of their members and other maps as arrays
// of alternating keys and values, or as objects when MapAsObject is set and
// the keys have a string form.
func (w *ObjectWriter) writeMap(f Field, rv reflect.Value) error {
	t := rv.Type()
	keys := sortedKeys(rv)
	if t.Elem() == emptyStruct {
		if err := w.w.start(f, TypeArray, Header{}); err != nil {
			return err
		}
		for _, k := range keys {
			if err := w.writeReflect(Field{}, k, t.Key()); err != nil {
				return err
			}
		}
		return w.w.end(TypeArray)
	}
	if w.settings.MapAsObject && w.w.keys() == KeyString && stringKeyable(t.Key()) {
		if err := w.w.start(f, TypeObject, Header{}); err != nil {
			return err
		}
		for _, k := range keys {
			if err := w.writeReflect(Field{Name: mapKeyString(k)}, rv.MapIndex(k), t.Elem()); err != nil {
				return err
			}
		}
		return w.w.end(TypeObject)
	}
	if err := w.w.start(f, TypeArray, Header{}); err != nil {
		return err
	}
	for _, k := range keys {
		if err := w.writeReflect(Field{}, k, t.Key()); err != nil {
			return err
		}
		if err := w.writeReflect(Field{}, rv.MapIndex(k), t.Elem()); err != nil {
			return err
		}
	}
	return w.w.end(TypeArray)
}

func stringKeyable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func mapKeyString(k reflect.Value) string {
	switch k.Kind() {
	case reflect.String:
		return k.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10)
	default:
		return strconv.FormatUint(k.Uint(), 10)
	}
}

func parseMapKey(s string, t reflect.Type) (reflect.Value, error) {
	k := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.String:
		k.SetString(s)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, t.Bits())
		if err != nil {
			return k, wrapError(KindTypeMismatch, noPos, err, "map key %q", s)
		}
		k.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, t.Bits())
		if err != nil {
			return k, wrapError(KindTypeMismatch, noPos, err, "map key %q", s)
		}
		k.SetUint(n)
	default:
		return k, newError(KindTypeMismatch, "%s map keys cannot be read from object keys", t)
	}
	return k, nil
}

// sortedKeys orders map keys so that output is deterministic.
func sortedKeys(m reflect.Value) []reflect.Value {
	keys := m.MapKeys()
	slices.SortFunc(keys, func(a, b reflect.Value) int {
		switch a.Kind() {
		case reflect.String:
			return cmp.Compare(a.String(), b.String())
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return cmp.Compare(a.Int(), b.Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
			return cmp.Compare(a.Uint(), b.Uint())
		case reflect.Float32, reflect.Float64:
			return cmp.Compare(a.Float(), b.Float())
		case reflect.Bool:
			return cmp.Compare(boolRank(a.Bool()), boolRank(b.Bool()))
		default:
			return cmp.Compare(fmt.Sprint(a.Interface()), fmt.Sprint(b.Interface()))
		}
	})
	return keys
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ============================================================
// Decoding
// ============================================================

// readInto reads the element named f into dst, whose type is the declared
// type.
func (r *ObjectReader) readInto(f Field, dst reflect.Value) error {
	t := dst.Type()
	if t == rawValueType {
		raw, err := r.r.raw(f)
		if err != nil {
			return err
		}
		dst.Set(reflect.ValueOf(raw))
		return nil
	}
	if isValueModelType(t) {
		return r.readValueModel(f, dst)
	}
	dt, err := r.r.peek()
	if err != nil {
		return err
	}
	if dt == TypeEnd {
		return newError(KindContextError, "no more elements in %s", r.r.contextType())
	}
	if dt == TypeNull {
		if !nilable(t.Kind()) {
			return newError(KindTypeMismatch, "cannot read null into %s", t)
		}
		if err := r.ReadNull(f); err != nil {
			return err
		}
		dst.SetZero()
		return nil
	}
	if t.Kind() == reflect.Pointer {
		if _, ok := r.reg.byType[t]; !ok {
			p := reflect.New(t.Elem())
			if err := r.readInto(f, p.Elem()); err != nil {
				return err
			}
			dst.Set(p)
			return nil
		}
	}
	if dt.IsContainer() {
		return r.readContainer(f, dt, dst)
	}
	return r.readScalar(f, dt, dst)
}

// isValueModelType reports types read through the value model directly.
// The named numeric, bool and string types go through readScalar instead
// so that widening applies.
func isValueModelType(t reflect.Type) bool {
	if t == valueType {
		return true
	}
	if !t.Implements(valueType) {
		return false
	}
	switch t.Kind() {
	case reflect.Struct, reflect.Pointer:
		return true
	}
	return false
}

func (r *ObjectReader) readValueModel(f Field, dst reflect.Value) error {
	v, err := r.r.value(f)
	if err != nil {
		return err
	}
	t := dst.Type()
	if t == reflect.TypeFor[*Object[string]]() {
		v = StringKeys(v)
	} else if t == reflect.TypeFor[*Object[FieldNumber]]() {
		if v, err = NumberKeys(v); err != nil {
			return err
		}
	}
	rv := reflect.ValueOf(v)
	if !rv.Type().AssignableTo(t) {
		return newError(KindTypeMismatch, "cannot read %s into %s", v.DsonType(), t)
	}
	dst.Set(rv)
	return nil
}

func (r *ObjectReader) readScalar(f Field, dt DsonType, dst reflect.Value) error {
	t := dst.Type()
	switch t.Kind() {
	case reflect.Interface:
		v, err := r.r.value(f)
		if err != nil {
			return err
		}
		return setInterface(dst, nativeScalar(v))
	case reflect.Bool:
		b, err := r.ReadBool(f)
		if err != nil {
			return err
		}
		dst.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := r.ReadInt64(f)
		if err != nil {
			return err
		}
		if dst.OverflowInt(n) {
			return newError(KindTypeMismatch, "%d overflows %s", n, t)
		}
		dst.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n, err := r.ReadInt64(f)
		if err != nil {
			return err
		}
		if n < 0 || dst.OverflowUint(uint64(n)) {
			return newError(KindTypeMismatch, "%d overflows %s", n, t)
		}
		dst.SetUint(uint64(n))
	case reflect.Float32:
		var x float64
		var err error
		if dt == TypeFloat32 {
			var x32 float32
			x32, err = r.ReadFloat32(f)
			x = float64(x32)
		} else {
			x, err = r.ReadFloat64(f)
		}
		if err != nil {
			return err
		}
		dst.SetFloat(x)
	case reflect.Float64:
		x, err := r.ReadFloat64(f)
		if err != nil {
			return err
		}
		dst.SetFloat(x)
	case reflect.String:
		s, err := r.ReadString(f)
		if err != nil {
			return err
		}
		dst.SetString(s)
	case reflect.Slice:
		if t.Elem().Kind() != reflect.Uint8 {
			return newError(KindTypeMismatch, "cannot read %s into %s", dt, t)
		}
		b, err := r.ReadBytes(f)
		if err != nil {
			return err
		}
		dst.SetBytes(b)
	default:
		return newError(KindTypeMismatch, "cannot read %s into %s", dt, t)
	}
	return nil
}

// nativeScalar maps plain scalars to Go values; other values stay in the
// value model.
func nativeScalar(v Value) any {
	switch x := v.(type) {
	case Int32:
		return int32(x)
	case Int64:
		return int64(x)
	case Float32:
		return float32(x)
	case Float64:
		return float64(x)
	case Bool:
		return bool(x)
	case String:
		return string(x)
	case Null:
		return nil
	default:
		return v
	}
}

func setInterface(dst reflect.Value, v any) error {
	if v == nil {
		dst.SetZero()
		return nil
	}
	rv := reflect.ValueOf(v)
	if !rv.Type().AssignableTo(dst.Type()) {
		return newError(KindTypeMismatch, "%T does not implement %s", v, dst.Type())
	}
	dst.Set(rv)
	return nil
}

func (r *ObjectReader) readContainer(f Field, dt DsonType, dst reflect.Value) error {
	t := dst.Type()
	h, err := r.r.start(f, dt)
	if err != nil {
		return err
	}
	var e *Entry
	if !h.IsZero() {
		if e, err = r.reg.resolveHeader(h); err != nil {
			return err
		}
	} else if entry, ok := r.reg.byType[t]; ok {
		e = entry
	}
	if e != nil {
		if dt != TypeObject {
			return newError(KindTypeMismatch, "%s is registered as an object, found %s", e.Type, dt)
		}
		return r.readRegistered(e, dst)
	}
	switch {
	case t.Kind() == reflect.Interface:
		v, err := r.r.rest(dt, h)
		if err != nil {
			return err
		}
		return setInterface(dst, v)
	case dt == TypeArray && t.Kind() == reflect.Slice:
		return r.readSlice(dst)
	case dt == TypeArray && t.Kind() == reflect.Array:
		return r.readArray(dst)
	case dt == TypeArray && t.Kind() == reflect.Map:
		return r.readMapArray(dst)
	case dt == TypeObject && t.Kind() == reflect.Map:
		return r.readMapObject(dst)
	default:
		return newError(KindUnknownType, "no codec reads %s into %s", dt, t)
	}
}

func (r *ObjectReader) readRegistered(e *Entry, dst reflect.Value) error {
	t := dst.Type()
	v, err := e.Codec.DecodeBody(r)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", e.Type, err)
	}
	if err := r.r.skipToEnd(); err != nil {
		return err
	}
	if err := r.r.end(TypeObject); err != nil {
		return err
	}
	rv := reflect.ValueOf(v)
	switch {
	case !rv.IsValid():
		dst.SetZero()
	case rv.Type().AssignableTo(t):
		dst.Set(rv)
	case t.Kind() == reflect.Pointer && rv.Type() == t.Elem():
		p := reflect.New(t.Elem())
		p.Elem().Set(rv)
		dst.Set(p)
	case rv.Kind() == reflect.Pointer && rv.Type().Elem() == t:
		dst.Set(rv.Elem())
	default:
		return newError(KindTypeMismatch, "cannot assign %s to %s", e.Type, t)
	}
	return nil
}

func (r *ObjectReader) readSlice(dst reflect.Value) error {
	elem := dst.Type().Elem()
	out := reflect.MakeSlice(dst.Type(), 0, 0)
	for {
		_, _, ok, err := r.r.next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		v := reflect.New(elem).Elem()
		if err := r.readInto(Field{}, v); err != nil {
			return err
		}
		out = reflect.Append(out, v)
	}
	dst.Set(out)
	return r.r.end(TypeArray)
}

func (r *ObjectReader) readArray(dst reflect.Value) error {
	i := 0
	for {
		_, _, ok, err := r.r.next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if i >= dst.Len() {
			return newError(KindTypeMismatch, "more than %d elements for %s", dst.Len(), dst.Type())
		}
		if err := r.readInto(Field{}, dst.Index(i)); err != nil {
			return err
		}
		i++
	}
	for ; i < dst.Len(); i++ {
		dst.Index(i).SetZero()
	}
	return r.r.end(TypeArray)
}

// readMapArray reads a set, or a map written as alternating keys and
// values.
func (r *ObjectReader) readMapArray(dst reflect.Value) error {
	t := dst.Type()
	m := reflect.MakeMap(t)
	set := t.Elem() == emptyStruct
	for {
		_, _, ok, err := r.r.next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		k := reflect.New(t.Key()).Elem()
		if err := r.readInto(Field{}, k); err != nil {
			return err
		}
		v := reflect.New(t.Elem()).Elem()
		if !set {
			if _, _, ok, err = r.r.next(); err != nil {
				return err
			}
			if !ok {
				return newError(KindTypeMismatch, "map entry without a value")
			}
			if err := r.readInto(Field{}, v); err != nil {
				return err
			}
		}
		m.SetMapIndex(k, v)
	}
	dst.Set(m)
	return r.r.end(TypeArray)
}

func (r *ObjectReader) readMapObject(dst reflect.Value) error {
	t := dst.Type()
	m := reflect.MakeMap(t)
	for {
		f, _, ok, err := r.r.next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		keyText := f.Name
		if f.byNumber {
			keyText = f.Number.String()
		}
		k, err := parseMapKey(keyText, t.Key())
		if err != nil {
			return err
		}
		v := reflect.New(t.Elem()).Elem()
		if err := r.readInto(f, v); err != nil {
			return err
		}
		m.SetMapIndex(k, v)
	}
	dst.Set(m)
	return r.r.end(TypeObject)
}
