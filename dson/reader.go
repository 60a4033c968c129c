package dson

// Reader pulls a Dson value stream one element at a time. The same
// interface serves the binary and the text encoding; K selects the key type.
//
// Within a container the protocol is ReadDsonType, then ReadName (objects
// only), then one ReadXxx / ReadStart* / SkipValue / ReadValueAsBytes call.
// The ReadXxx methods perform the first two steps themselves when they have
// not been done yet, checking that the element key equals name. ReadDsonType
// returns TypeEnd at the end of the current container and at the end of the
// input.
type Reader[K Key] interface {
	Format() Format
	ContextType() ContextType

	ReadDsonType() (DsonType, error)
	PeekDsonType() (DsonType, error)
	CurrentDsonType() DsonType
	ReadName() (K, error)
	NextElementName() (K, bool, error)

	ReadInt32(name K) (int32, error)
	ReadInt64(name K) (int64, error)
	ReadFloat32(name K) (float32, error)
	ReadFloat64(name K) (float64, error)
	ReadBool(name K) (bool, error)
	ReadString(name K) (string, error)
	ReadNull(name K) error
	ReadBinary(name K) (Binary, error)
	ReadExtInt32(name K) (ExtInt32, error)
	ReadExtInt64(name K) (ExtInt64, error)
	ReadExtString(name K) (ExtString, error)
	ReadReference(name K) (Reference, error)

	ReadStartObject(name K) (Header, error)
	ReadEndObject() error
	ReadStartArray(name K) (Header, error)
	ReadEndArray() error

	SkipValue() error
	SkipToEndOfObject() error
	ReadValueAsBytes(name K) (*RawValue, error)

	Close() error
}

// readSource is the encoding-specific half of a reader. The state machine in
// baseReader decides when each method may be called.
type readSource[K Key] interface {
	format() Format
	position() Position
	// readType positions at the next element and returns its type and key.
	// The key is only meaningful in object context.
	readType(ctx *context[K]) (DsonType, K, error)
	peekType(ctx *context[K]) (DsonType, error)
	readScalar(dt DsonType) (Value, error)
	readHeader(dt DsonType) (Header, error)
	// budget is the number of container levels the value may still open.
	skipValue(dt DsonType, budget int) error
	readRaw(dt DsonType, budget int) (*RawValue, error)
	close() error
}

// baseReader implements Reader on top of a readSource.
type baseReader[K Key] struct {
	src      readSource[K]
	ctx      *context[K]
	curType  DsonType
	curName  K
	pending  K
	maxDepth int
	closed   bool
}

func newBaseReader[K Key](src readSource[K]) baseReader[K] {
	return baseReader[K]{
		src:      src,
		ctx:      newContext[K](nil, ContextTopLevel, stateType, Header{}),
		maxDepth: DefaultMaxDepth,
	}
}

// SetMaxDepth limits container nesting; deeper input fails with
// UnexpectedToken. n <= 0 restores DefaultMaxDepth.
func (r *baseReader[K]) SetMaxDepth(n int) {
	if n <= 0 {
		n = DefaultMaxDepth
	}
	r.maxDepth = n
}

func (r *baseReader[K]) budget() int {
	return r.maxDepth - r.ctx.depth
}

func (r *baseReader[K]) Format() Format {
	return r.src.format()
}

func (r *baseReader[K]) ContextType() ContextType {
	return r.ctx.typ
}

func (r *baseReader[K]) CurrentDsonType() DsonType {
	return r.curType
}

// Depth returns the number of open containers.
func (r *baseReader[K]) Depth() int {
	return r.ctx.depth
}

// elementPending reports whether an element has been announced and its
// value not yet consumed.
func (r *baseReader[K]) elementPending() bool {
	return r.ctx.state == stateName || r.ctx.state == stateValue
}

func (r *baseReader[K]) misuse(format string, args ...any) error {
	return errorAt(KindContextError, r.src.position(), format, args...)
}

func (r *baseReader[K]) ReadDsonType() (DsonType, error) {
	if r.closed {
		return TypeEnd, r.misuse("reader is closed")
	}
	switch r.ctx.state {
	case stateDone:
		return TypeEnd, nil
	case stateType:
	default:
		return TypeEnd, r.misuse("ReadDsonType called in state %s", r.ctx.state)
	}
	dt, name, err := r.src.readType(r.ctx)
	if err != nil {
		return TypeEnd, err
	}
	r.curType = dt
	if dt == TypeEnd {
		if r.ctx.typ == ContextTopLevel {
			r.ctx.state = stateDone
		} else {
			r.ctx.state = stateWaitEnd
		}
		return dt, nil
	}
	switch r.ctx.typ {
	case ContextObject:
		r.pending = name
		r.ctx.state = stateName
	case ContextArray:
		r.curName = positionalKey[K](r.ctx.count)
		r.ctx.state = stateValue
	default:
		var zero K
		r.curName = zero
		r.ctx.state = stateValue
	}
	return dt, nil
}

func (r *baseReader[K]) PeekDsonType() (DsonType, error) {
	if r.closed {
		return TypeEnd, r.misuse("reader is closed")
	}
	switch r.ctx.state {
	case stateDone, stateWaitEnd:
		return TypeEnd, nil
	case stateType:
		return r.src.peekType(r.ctx)
	default:
		return r.curType, nil
	}
}

func (r *baseReader[K]) ReadName() (K, error) {
	var zero K
	if r.ctx.state == stateType {
		dt, err := r.ReadDsonType()
		if err != nil {
			return zero, err
		}
		if dt == TypeEnd {
			return zero, r.misuse("no more elements in %s", r.ctx.typ)
		}
	}
	if r.ctx.typ != ContextObject {
		return zero, r.misuse("ReadName called in %s context", r.ctx.typ)
	}
	if r.ctx.state != stateName {
		return zero, r.misuse("ReadName called in state %s", r.ctx.state)
	}
	name := r.pending
	if !r.ctx.markSeen(name) {
		return zero, errorAt(KindDuplicateKey, r.src.position(), "duplicate key %q", keyString(name))
	}
	r.curName = name
	r.ctx.name = name
	r.ctx.state = stateValue
	return name, nil
}

func (r *baseReader[K]) NextElementName() (K, bool, error) {
	var zero K
	if r.ctx.state == stateType {
		dt, err := r.ReadDsonType()
		if err != nil || dt == TypeEnd {
			return zero, false, err
		}
	}
	switch r.ctx.state {
	case stateName:
		name, err := r.ReadName()
		return name, err == nil, err
	case stateValue:
		return r.curName, true, nil
	default:
		return zero, false, nil
	}
}

// advance moves to the value state of the next element and checks its key.
func (r *baseReader[K]) advance(name K) error {
	if r.closed {
		return r.misuse("reader is closed")
	}
	if r.ctx.state == stateType {
		dt, err := r.ReadDsonType()
		if err != nil {
			return err
		}
		if dt == TypeEnd {
			return r.misuse("no more elements in %s", r.ctx.typ)
		}
	}
	if r.ctx.state == stateName {
		if _, err := r.ReadName(); err != nil {
			return err
		}
	}
	if r.ctx.state != stateValue {
		return r.misuse("no value to read in state %s", r.ctx.state)
	}
	if r.ctx.typ == ContextObject && r.curName != name {
		return r.misuse("expected key %q, found %q", keyString(name), keyString(r.curName))
	}
	return nil
}

func (r *baseReader[K]) valueDone() {
	r.ctx.count++
	r.ctx.state = stateType
}

func (r *baseReader[K]) scalar(name K, accept ...DsonType) (Value, error) {
	if err := r.advance(name); err != nil {
		return nil, err
	}
	ok := false
	for _, t := range accept {
		if r.curType == t {
			ok = true
			break
		}
	}
	if !ok {
		return nil, errorAt(KindTypeMismatch, r.src.position(), "cannot read %s as %s", r.curType, accept[0])
	}
	v, err := r.src.readScalar(r.curType)
	if err != nil {
		return nil, err
	}
	r.valueDone()
	return v, nil
}

func (r *baseReader[K]) ReadInt32(name K) (int32, error) {
	v, err := r.scalar(name, TypeInt32)
	if err != nil {
		return 0, err
	}
	return int32(v.(Int32)), nil
}

func (r *baseReader[K]) ReadInt64(name K) (int64, error) {
	v, err := r.scalar(name, TypeInt64, TypeInt32)
	if err != nil {
		return 0, err
	}
	switch x := v.(type) {
	case Int32:
		return int64(x), nil
	default:
		return int64(x.(Int64)), nil
	}
}

func (r *baseReader[K]) ReadFloat32(name K) (float32, error) {
	v, err := r.scalar(name, TypeFloat32)
	if err != nil {
		return 0, err
	}
	return float32(v.(Float32)), nil
}

func (r *baseReader[K]) ReadFloat64(name K) (float64, error) {
	v, err := r.scalar(name, TypeFloat64, TypeFloat32, TypeInt32, TypeInt64)
	if err != nil {
		return 0, err
	}
	switch x := v.(type) {
	case Int32:
		return float64(x), nil
	case Int64:
		return float64(x), nil
	case Float32:
		return float64(x), nil
	default:
		return float64(x.(Float64)), nil
	}
}

func (r *baseReader[K]) ReadBool(name K) (bool, error) {
	v, err := r.scalar(name, TypeBoolean)
	if err != nil {
		return false, err
	}
	return bool(v.(Bool)), nil
}

func (r *baseReader[K]) ReadString(name K) (string, error) {
	v, err := r.scalar(name, TypeString)
	if err != nil {
		return "", err
	}
	return string(v.(String)), nil
}

func (r *baseReader[K]) ReadNull(name K) error {
	_, err := r.scalar(name, TypeNull)
	return err
}

func (r *baseReader[K]) ReadBinary(name K) (Binary, error) {
	v, err := r.scalar(name, TypeBinary)
	if err != nil {
		return Binary{}, err
	}
	return v.(Binary), nil
}

func (r *baseReader[K]) ReadExtInt32(name K) (ExtInt32, error) {
	v, err := r.scalar(name, TypeExtInt32)
	if err != nil {
		return ExtInt32{}, err
	}
	return v.(ExtInt32), nil
}

func (r *baseReader[K]) ReadExtInt64(name K) (ExtInt64, error) {
	v, err := r.scalar(name, TypeExtInt64)
	if err != nil {
		return ExtInt64{}, err
	}
	return v.(ExtInt64), nil
}

func (r *baseReader[K]) ReadExtString(name K) (ExtString, error) {
	v, err := r.scalar(name, TypeExtString)
	if err != nil {
		return ExtString{}, err
	}
	return v.(ExtString), nil
}

func (r *baseReader[K]) ReadReference(name K) (Reference, error) {
	v, err := r.scalar(name, TypeReference)
	if err != nil {
		return Reference{}, err
	}
	return v.(Reference), nil
}

func (r *baseReader[K]) readStart(name K, dt DsonType) (Header, error) {
	if err := r.advance(name); err != nil {
		return Header{}, err
	}
	if r.curType != dt {
		return Header{}, errorAt(KindTypeMismatch, r.src.position(), "cannot read %s as %s", r.curType, dt)
	}
	if r.budget() < 1 {
		return Header{}, errorAt(KindUnexpectedToken, r.src.position(), "nesting exceeds max depth %d", r.maxDepth)
	}
	h, err := r.src.readHeader(dt)
	if err != nil {
		return Header{}, err
	}
	r.ctx = newContext(r.ctx, containerContext(dt), stateType, h)
	return h, nil
}

func (r *baseReader[K]) readEnd(typ ContextType) error {
	if r.closed {
		return r.misuse("reader is closed")
	}
	if r.ctx.typ != typ {
		return r.misuse("end of %s requested in %s context", typ, r.ctx.typ)
	}
	if r.ctx.state == stateType {
		dt, err := r.ReadDsonType()
		if err != nil {
			return err
		}
		if dt != TypeEnd {
			return r.misuse("%s has unread elements", typ)
		}
	}
	if r.ctx.state != stateWaitEnd {
		return r.misuse("%s has unread elements", typ)
	}
	r.ctx = r.ctx.parent
	r.valueDone()
	return nil
}

func (r *baseReader[K]) ReadStartObject(name K) (Header, error) {
	return r.readStart(name, TypeObject)
}

func (r *baseReader[K]) ReadEndObject() error {
	return r.readEnd(ContextObject)
}

func (r *baseReader[K]) ReadStartArray(name K) (Header, error) {
	return r.readStart(name, TypeArray)
}

func (r *baseReader[K]) ReadEndArray() error {
	return r.readEnd(ContextArray)
}

func (r *baseReader[K]) SkipValue() error {
	if r.closed {
		return r.misuse("reader is closed")
	}
	if r.ctx.state == stateName {
		if _, err := r.ReadName(); err != nil {
			return err
		}
	}
	if r.ctx.state != stateValue {
		return r.misuse("SkipValue called in state %s", r.ctx.state)
	}
	if err := r.src.skipValue(r.curType, r.budget()); err != nil {
		return err
	}
	r.valueDone()
	return nil
}

// SkipToEndOfObject discards the remaining elements of the current
// container. ReadEndObject or ReadEndArray must still be called.
func (r *baseReader[K]) SkipToEndOfObject() error {
	if r.ctx.typ == ContextTopLevel {
		return r.misuse("SkipToEndOfObject called at top level")
	}
	for r.ctx.state != stateWaitEnd {
		var err error
		switch r.ctx.state {
		case stateType:
			_, err = r.ReadDsonType()
		case stateName, stateValue:
			err = r.SkipValue()
		default:
			err = r.misuse("SkipToEndOfObject called in state %s", r.ctx.state)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *baseReader[K]) ReadValueAsBytes(name K) (*RawValue, error) {
	if err := r.advance(name); err != nil {
		return nil, err
	}
	raw, err := r.src.readRaw(r.curType, r.budget())
	if err != nil {
		return nil, err
	}
	r.valueDone()
	return raw, nil
}

func (r *baseReader[K]) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.src.close()
}
