package dson

// Writer emits a Dson value stream. Inside an object every value is preceded
// by a key, given either through WriteName or as the name argument of the
// value method. In arrays and at top level the name must be the zero key.
type Writer[K Key] interface {
	Format() Format
	ContextType() ContextType

	WriteName(name K) error

	WriteInt32(name K, v int32) error
	WriteInt64(name K, v int64) error
	WriteFloat32(name K, v float32) error
	WriteFloat64(name K, v float64) error
	WriteBool(name K, v bool) error
	WriteString(name K, v string) error
	WriteStringStyle(name K, v string, style StringStyle) error
	WriteNull(name K) error
	WriteBinary(name K, v Binary) error
	WriteExtInt32(name K, v ExtInt32) error
	WriteExtInt64(name K, v ExtInt64) error
	WriteExtString(name K, v ExtString) error
	WriteReference(name K, v Reference) error

	WriteStartObject(name K, h Header) error
	WriteEndObject() error
	WriteStartArray(name K, h Header) error
	WriteEndArray() error

	WriteValueBytes(name K, raw *RawValue) error

	Flush() error
	Close() error
}

// writeSink is the encoding-specific half of a writer. name is only
// meaningful when ctx is an object context.
type writeSink[K Key] interface {
	format() Format
	writeScalar(ctx *context[K], name K, v Value, style StringStyle) error
	writeStart(ctx *context[K], name K, dt DsonType, h Header) error
	writeEnd(ctx *context[K], dt DsonType) error
	writeRaw(ctx *context[K], name K, raw *RawValue) error
	flush() error
	close() error
}

// baseWriter implements Writer on top of a writeSink.
type baseWriter[K Key] struct {
	sink     writeSink[K]
	ctx      *context[K]
	maxDepth int
	closed   bool
}

func newBaseWriter[K Key](sink writeSink[K]) baseWriter[K] {
	return baseWriter[K]{
		sink:     sink,
		ctx:      newContext[K](nil, ContextTopLevel, stateValue, Header{}),
		maxDepth: DefaultMaxDepth,
	}
}

// SetMaxDepth limits container nesting; opening a deeper container is a
// context error. n <= 0 restores DefaultMaxDepth.
func (w *baseWriter[K]) SetMaxDepth(n int) {
	if n <= 0 {
		n = DefaultMaxDepth
	}
	w.maxDepth = n
}

func (w *baseWriter[K]) Format() Format {
	return w.sink.format()
}

func (w *baseWriter[K]) ContextType() ContextType {
	return w.ctx.typ
}

func (w *baseWriter[K]) misuse(format string, args ...any) error {
	return newError(KindContextError, format, args...)
}

func (w *baseWriter[K]) WriteName(name K) error {
	if w.closed {
		return w.misuse("writer is closed")
	}
	if w.ctx.typ != ContextObject {
		return w.misuse("key %q written in %s context", keyString(name), w.ctx.typ)
	}
	if w.ctx.state != stateName {
		return w.misuse("WriteName called in state %s", w.ctx.state)
	}
	if !w.ctx.markSeen(name) {
		return newError(KindDuplicateKey, "duplicate key %q", keyString(name))
	}
	w.ctx.name = name
	w.ctx.state = stateValue
	return nil
}

// advance checks the key for the next value and returns the one to emit.
func (w *baseWriter[K]) advance(name K) (K, error) {
	var zero K
	if w.closed {
		return zero, w.misuse("writer is closed")
	}
	switch w.ctx.typ {
	case ContextObject:
		if w.ctx.state == stateName {
			if err := w.WriteName(name); err != nil {
				return zero, err
			}
		} else if name != zero && name != w.ctx.name {
			return zero, w.misuse("value for %q written after key %q", keyString(name), keyString(w.ctx.name))
		}
		return w.ctx.name, nil
	default:
		if name != zero {
			return zero, w.misuse("key %q written in %s context", keyString(name), w.ctx.typ)
		}
		return zero, nil
	}
}

func (w *baseWriter[K]) valueDone() {
	w.ctx.count++
	if w.ctx.typ == ContextObject {
		w.ctx.state = stateName
	}
}

func (w *baseWriter[K]) scalar(name K, v Value, style StringStyle) error {
	key, err := w.advance(name)
	if err != nil {
		return err
	}
	if err := w.sink.writeScalar(w.ctx, key, v, style); err != nil {
		return err
	}
	w.valueDone()
	return nil
}

func (w *baseWriter[K]) WriteInt32(name K, v int32) error {
	return w.scalar(name, Int32(v), StyleAuto)
}

func (w *baseWriter[K]) WriteInt64(name K, v int64) error {
	return w.scalar(name, Int64(v), StyleAuto)
}

func (w *baseWriter[K]) WriteFloat32(name K, v float32) error {
	return w.scalar(name, Float32(v), StyleAuto)
}

func (w *baseWriter[K]) WriteFloat64(name K, v float64) error {
	return w.scalar(name, Float64(v), StyleAuto)
}

func (w *baseWriter[K]) WriteBool(name K, v bool) error {
	return w.scalar(name, Bool(v), StyleAuto)
}

func (w *baseWriter[K]) WriteString(name K, v string) error {
	return w.scalar(name, String(v), StyleAuto)
}

func (w *baseWriter[K]) WriteStringStyle(name K, v string, style StringStyle) error {
	return w.scalar(name, String(v), style)
}

func (w *baseWriter[K]) WriteNull(name K) error {
	return w.scalar(name, Null{}, StyleAuto)
}

func (w *baseWriter[K]) WriteBinary(name K, v Binary) error {
	return w.scalar(name, v, StyleAuto)
}

func (w *baseWriter[K]) WriteExtInt32(name K, v ExtInt32) error {
	return w.scalar(name, v, StyleAuto)
}

func (w *baseWriter[K]) WriteExtInt64(name K, v ExtInt64) error {
	return w.scalar(name, v, StyleAuto)
}

func (w *baseWriter[K]) WriteExtString(name K, v ExtString) error {
	return w.scalar(name, v, StyleAuto)
}

func (w *baseWriter[K]) WriteReference(name K, v Reference) error {
	return w.scalar(name, v, StyleAuto)
}

func (w *baseWriter[K]) writeStart(name K, dt DsonType, h Header) error {
	if w.ctx.depth >= w.maxDepth {
		return w.misuse("nesting exceeds max depth %d", w.maxDepth)
	}
	key, err := w.advance(name)
	if err != nil {
		return err
	}
	if err := w.sink.writeStart(w.ctx, key, dt, h); err != nil {
		return err
	}
	state := stateValue
	if dt == TypeObject {
		state = stateName
	}
	w.ctx = newContext(w.ctx, containerContext(dt), state, h)
	return nil
}

func (w *baseWriter[K]) writeEnd(dt DsonType) error {
	if w.closed {
		return w.misuse("writer is closed")
	}
	typ := containerContext(dt)
	if w.ctx.typ != typ {
		return w.misuse("end of %s written in %s context", typ, w.ctx.typ)
	}
	if typ == ContextObject && w.ctx.state != stateName {
		return w.misuse("end of object written after key %q without a value", keyString(w.ctx.name))
	}
	if err := w.sink.writeEnd(w.ctx, dt); err != nil {
		return err
	}
	w.ctx = w.ctx.parent
	w.valueDone()
	return nil
}

func (w *baseWriter[K]) WriteStartObject(name K, h Header) error {
	return w.writeStart(name, TypeObject, h)
}

func (w *baseWriter[K]) WriteEndObject() error {
	return w.writeEnd(TypeObject)
}

func (w *baseWriter[K]) WriteStartArray(name K, h Header) error {
	return w.writeStart(name, TypeArray, h)
}

func (w *baseWriter[K]) WriteEndArray() error {
	return w.writeEnd(TypeArray)
}

func (w *baseWriter[K]) WriteValueBytes(name K, raw *RawValue) error {
	if raw == nil {
		return w.WriteNull(name)
	}
	key, err := w.advance(name)
	if err != nil {
		return err
	}
	if err := w.sink.writeRaw(w.ctx, key, raw); err != nil {
		return err
	}
	w.valueDone()
	return nil
}

func (w *baseWriter[K]) Flush() error {
	if w.closed {
		return nil
	}
	return w.sink.flush()
}

// Close flushes pending output and releases the writer's buffer. Closing a
// writer with open containers reports a context error.
func (w *baseWriter[K]) Close() error {
	if w.closed {
		return nil
	}
	var err error
	if w.ctx.typ != ContextTopLevel {
		err = w.misuse("writer closed with an open %s", w.ctx.typ)
	} else {
		err = w.sink.flush()
	}
	w.closed = true
	if cerr := w.sink.close(); err == nil {
		err = cerr
	}
	return err
}
