package dson

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// ============================================================
// Codecs
// ============================================================

// Codec encodes and decodes the body of a registered type. The surrounding
// object start, header and end are handled by the caller.
type Codec interface {
	EncodeBody(w *ObjectWriter, v any) error
	DecodeBody(r *ObjectReader) (any, error)
}

// TypedCodec is the type-safe form of Codec used with Register.
type TypedCodec[T any] interface {
	Encode(w *ObjectWriter, v T) error
	Decode(r *ObjectReader) (T, error)
}

// CodecFuncs adapts a pair of functions to TypedCodec.
type CodecFuncs[T any] struct {
	EncodeFunc func(w *ObjectWriter, v T) error
	DecodeFunc func(r *ObjectReader) (T, error)
}

func (c CodecFuncs[T]) Encode(w *ObjectWriter, v T) error  { return c.EncodeFunc(w, v) }
func (c CodecFuncs[T]) Decode(r *ObjectReader) (T, error) { return c.DecodeFunc(r) }

type typedCodec[T any] struct {
	c TypedCodec[T]
}

func (t typedCodec[T]) EncodeBody(w *ObjectWriter, v any) error {
	tv, ok := v.(T)
	if !ok {
		return newError(KindTypeMismatch, "codec for %s given %T", reflect.TypeFor[T](), v)
	}
	return t.c.Encode(w, tv)
}

func (t typedCodec[T]) DecodeBody(r *ObjectReader) (any, error) {
	return t.c.Decode(r)
}

// ============================================================
// Registry
// ============================================================

// Entry is one registered type.
type Entry struct {
	Type    reflect.Type
	Alias   string
	ClassID ClassID
	Codec   Codec
}

// Registry maps Go types to class ids, aliases and codecs. It is immutable
// once built and safe for concurrent use.
type Registry struct {
	byType   map[reflect.Type]*Entry
	byID     map[ClassID]*Entry
	byAlias  map[string]*Entry
	settings Settings
}

var emptyRegistry = &Registry{settings: DefaultSettings()}

func (r *Registry) orEmpty() *Registry {
	if r == nil {
		return emptyRegistry
	}
	return r
}

// Settings returns the settings the registry was built with.
func (r *Registry) Settings() Settings {
	return r.orEmpty().settings
}

// Lookup returns the entry registered for t.
func (r *Registry) Lookup(t reflect.Type) (*Entry, bool) {
	e, ok := r.orEmpty().byType[t]
	return e, ok
}

// LookupClassID returns the entry registered under id.
func (r *Registry) LookupClassID(id ClassID) (*Entry, bool) {
	e, ok := r.orEmpty().byID[id]
	return e, ok
}

// LookupAlias returns the entry registered under alias.
func (r *Registry) LookupAlias(alias string) (*Entry, bool) {
	e, ok := r.orEmpty().byAlias[alias]
	return e, ok
}

// Entries returns all entries ordered by class id.
func (r *Registry) Entries() []*Entry {
	r = r.orEmpty()
	out := make([]*Entry, 0, len(r.byID))
	for _, e := range r.byID {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].ClassID, out[j].ClassID
		if a.Namespace != b.Namespace {
			return a.Namespace < b.Namespace
		}
		return a.LocalID < b.LocalID
	})
	return out
}

// resolveHeader finds the entry a header names. The class id wins when both
// are present.
func (r *Registry) resolveHeader(h Header) (*Entry, error) {
	if !h.ClassID.IsZero() {
		if e, ok := r.byID[h.ClassID]; ok {
			return e, nil
		}
		return nil, newError(KindUnknownType, "class id %s is not registered", h.ClassID)
	}
	if e, ok := r.byAlias[h.Alias]; ok {
		return e, nil
	}
	return nil, newError(KindUnknownType, "alias %q is not registered", h.Alias)
}

// ============================================================
// Builder
// ============================================================

// ErrInvalidRegistry is wrapped by every error returned from Build.
var ErrInvalidRegistry = errors.New("dson: invalid registry")

// RegistryBuilder collects registrations. Build validates them all at once.
type RegistryBuilder struct {
	entries  []*Entry
	settings Settings
}

// NewRegistryBuilder returns a builder using DefaultSettings.
func NewRegistryBuilder() *RegistryBuilder {
	return &RegistryBuilder{settings: DefaultSettings()}
}

// WithSettings sets the settings carried by the registry.
func (b *RegistryBuilder) WithSettings(s Settings) *RegistryBuilder {
	b.settings = s
	return b
}

// Register adds T with its alias, class id and codec.
func Register[T any](b *RegistryBuilder, alias string, id ClassID, c TypedCodec[T]) *RegistryBuilder {
	var codec Codec
	if c != nil {
		codec = typedCodec[T]{c: c}
	}
	return b.RegisterCodec(reflect.TypeFor[T](), alias, id, codec)
}

// RegisterCodec adds t with an untyped codec.
func (b *RegistryBuilder) RegisterCodec(t reflect.Type, alias string, id ClassID, c Codec) *RegistryBuilder {
	b.entries = append(b.entries, &Entry{Type: t, Alias: alias, ClassID: id, Codec: c})
	return b
}

// Build validates the registrations and returns the registry. Every problem
// found is reported.
func (b *RegistryBuilder) Build() (*Registry, error) {
	r := &Registry{
		byType:   make(map[reflect.Type]*Entry, len(b.entries)),
		byID:     make(map[ClassID]*Entry, len(b.entries)),
		byAlias:  make(map[string]*Entry, len(b.entries)),
		settings: b.settings,
	}
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidRegistry, fmt.Sprintf(format, args...)))
	}
	if err := b.settings.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrInvalidRegistry, err))
	}
	for _, e := range b.entries {
		switch {
		case e.Type == nil:
			fail("nil type for alias %q", e.Alias)
			continue
		case e.Type.Kind() == reflect.Interface:
			fail("%s is an interface type", e.Type)
		case e.Type.Implements(valueType):
			fail("%s is a value model type", e.Type)
		}
		if e.Codec == nil {
			fail("%s has no codec", e.Type)
		}
		if err := checkAlias(e.Alias); err != nil {
			fail("%s: %v", e.Type, err)
		}
		if e.ClassID.IsZero() {
			fail("%s has a zero class id", e.Type)
		}
		if prev, dup := r.byType[e.Type]; dup {
			fail("%s registered twice (aliases %q and %q)", e.Type, prev.Alias, e.Alias)
		} else {
			r.byType[e.Type] = e
		}
		if prev, dup := r.byAlias[e.Alias]; dup && e.Alias != "" {
			fail("alias %q used by %s and %s", e.Alias, prev.Type, e.Type)
		} else {
			r.byAlias[e.Alias] = e
		}
		if prev, dup := r.byID[e.ClassID]; dup && !e.ClassID.IsZero() {
			fail("class id %s used by %s and %s", e.ClassID, prev.Type, e.Type)
		} else {
			r.byID[e.ClassID] = e
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return r, nil
}

// MustBuild is like Build but panics on error.
func (b *RegistryBuilder) MustBuild() *Registry {
	r, err := b.Build()
	if err != nil {
		panic(err)
	}
	return r
}

func checkAlias(alias string) error {
	switch {
	case alias == "":
		return fmt.Errorf("empty alias")
	case IsReservedTag(alias):
		return fmt.Errorf("alias %q is a reserved tag", alias)
	case !isBareSafe(alias) || strings.ContainsAny(alias, "#@"):
		return fmt.Errorf("alias %q is not a valid identifier", alias)
	}
	return nil
}

// ============================================================
// Whole-document helpers
// ============================================================

// EncodeBinary encodes v as one binary document using the key kind from
// the registry settings. Registered types carry their class id.
func (r *Registry) EncodeBinary(v any) ([]byte, error) {
	if r.Settings().Keys == KeyNumber {
		return encodeBinaryAny[FieldNumber](r, v)
	}
	return encodeBinaryAny[string](r, v)
}

func encodeBinaryAny[K Key](r *Registry, v any) ([]byte, error) {
	w := NewBinaryWriter[K](nil)
	defer w.Close()
	w.SetMaxDepth(r.Settings().MaxDepth)
	if err := NewObjectWriter[K](w, r).WriteObject(Field{}, v, nil); err != nil {
		return nil, err
	}
	return append([]byte(nil), w.Bytes()...), nil
}

// DecodeBinary decodes one binary document into out, which must be a
// non-nil pointer.
func (r *Registry) DecodeBinary(data []byte, out any) error {
	depth := r.Settings().MaxDepth
	if r.Settings().Keys == KeyNumber {
		rd := NewBinaryReader[FieldNumber](data)
		rd.SetMaxDepth(depth)
		return decodeInto[FieldNumber](rd, r, out)
	}
	rd := NewBinaryReader[string](data)
	rd.SetMaxDepth(depth)
	return decodeInto[string](rd, r, out)
}

// EncodeText renders v as one text document. Registered types carry their
// alias.
func (r *Registry) EncodeText(v any) (string, error) {
	var sb strings.Builder
	w := NewTextWriter(&sb, r.Settings().Text)
	w.SetMaxDepth(r.Settings().MaxDepth)
	if err := NewObjectWriter[string](w, r).WriteObject(Field{}, v, nil); err != nil {
		w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// DecodeText parses one text document into out, which must be a non-nil
// pointer.
func (r *Registry) DecodeText(text string, out any) error {
	rd := NewTextReader(NewScanner(NewStringSource(text)))
	rd.SetMaxDepth(r.Settings().MaxDepth)
	return decodeInto[string](rd, r, out)
}

func decodeInto[K Key](rd Reader[K], reg *Registry, out any) error {
	defer rd.Close()
	dst := reflect.ValueOf(out)
	if dst.Kind() != reflect.Pointer || dst.IsNil() {
		return newError(KindTypeMismatch, "decode target must be a non-nil pointer, got %T", out)
	}
	if err := NewObjectReader[K](rd, reg).readInto(Field{}, dst.Elem()); err != nil {
		return err
	}
	dt, err := rd.ReadDsonType()
	if err != nil {
		return err
	}
	if dt != TypeEnd {
		return newError(KindUnexpectedToken, "trailing %s after top-level value", dt)
	}
	return nil
}
