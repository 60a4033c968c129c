package dson

import (
	"bytes"
	"errors"
	"log/slog"
	"math"
	"reflect"
	"strings"
	"testing"
)

// ============================================================
// Test types
// ============================================================

var (
	fieldX = NewField("x", 1)
	fieldY = NewField("y", 2)
)

type point struct{ X, Y int32 }

var pointCodec = CodecFuncs[point]{
	EncodeFunc: func(w *ObjectWriter, p point) error {
		if err := w.WriteInt32(fieldX, p.X); err != nil {
			return err
		}
		return w.WriteInt32(fieldY, p.Y)
	},
	DecodeFunc: func(r *ObjectReader) (point, error) {
		var p point
		err := r.ReadFields(func(f Field) error {
			var err error
			switch {
			case f.Is(fieldX):
				p.X, err = r.ReadInt32(f)
			case f.Is(fieldY):
				p.Y, err = r.ReadInt32(f)
			}
			return err
		})
		return p, err
	},
}

type shape interface{ area() float64 }

type circle struct{ R float64 }
type square struct{ S float64 }

func (c circle) area() float64 { return math.Pi * c.R * c.R }
func (s square) area() float64 { return s.S * s.S }

func floatCodec[T any](f Field, get func(T) float64, set func(float64) T) CodecFuncs[T] {
	return CodecFuncs[T]{
		EncodeFunc: func(w *ObjectWriter, v T) error {
			return w.WriteFloat64(f, get(v))
		},
		DecodeFunc: func(r *ObjectReader) (T, error) {
			x, err := r.ReadFloat64(f)
			return set(x), err
		},
	}
}

var (
	circleCodec = floatCodec(NewField("r", 1),
		func(c circle) float64 { return c.R },
		func(x float64) circle { return circle{R: x} })
	squareCodec = floatCodec(NewField("s", 1),
		func(s square) float64 { return s.S },
		func(x float64) square { return square{S: x} })
)

var (
	fieldName  = NewField("name", 1)
	fieldAge   = NewField("age", 2)
	fieldTags  = NewField("tags", 3)
	fieldHome  = NewField("home", 4)
	fieldExtra = NewField("extra", 5)
)

// person keeps Extra encoded until a caller asks for it.
type person struct {
	Name  string
	Age   int32
	Tags  []string
	Home  *point
	Extra *RawValue
}

var personCodec = CodecFuncs[person]{
	EncodeFunc: func(w *ObjectWriter, p person) error {
		if err := WriteField(w, fieldName, p.Name); err != nil {
			return err
		}
		if err := WriteField(w, fieldAge, p.Age); err != nil {
			return err
		}
		if err := WriteField(w, fieldTags, p.Tags); err != nil {
			return err
		}
		if err := WriteField(w, fieldHome, p.Home); err != nil {
			return err
		}
		if p.Extra == nil {
			return nil
		}
		return WriteField(w, fieldExtra, p.Extra)
	},
	DecodeFunc: func(r *ObjectReader) (person, error) {
		var p person
		err := r.ReadFields(func(f Field) error {
			var err error
			switch {
			case f.Is(fieldName):
				p.Name, err = ReadField[string](r, f)
			case f.Is(fieldAge):
				p.Age, err = ReadField[int32](r, f)
			case f.Is(fieldTags):
				p.Tags, err = ReadField[[]string](r, f)
			case f.Is(fieldHome):
				p.Home, err = ReadField[*point](r, f)
			case f.Is(fieldExtra):
				p.Extra, err = ReadField[*RawValue](r, f)
			}
			return err
		})
		return p, err
	},
}

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	b := NewRegistryBuilder()
	Register(b, "Point", ClassID{Namespace: 0, LocalID: 1}, TypedCodec[point](pointCodec))
	Register(b, "Circle", ClassID{Namespace: 1, LocalID: 1}, TypedCodec[circle](circleCodec))
	Register(b, "Square", ClassID{Namespace: 1, LocalID: 2}, TypedCodec[square](squareCodec))
	Register(b, "Person", ClassID{Namespace: 2, LocalID: 1}, TypedCodec[person](personCodec))
	reg, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return reg
}

// ============================================================
// Builder
// ============================================================

func TestRegistryBuildErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *RegistryBuilder)
		want  string
	}{
		{"duplicate alias", func(b *RegistryBuilder) {
			Register(b, "P", ClassID{LocalID: 1}, TypedCodec[point](pointCodec))
			Register(b, "P", ClassID{LocalID: 2}, TypedCodec[circle](circleCodec))
		}, `alias "P"`},
		{"duplicate class id", func(b *RegistryBuilder) {
			Register(b, "P", ClassID{LocalID: 1}, TypedCodec[point](pointCodec))
			Register(b, "C", ClassID{LocalID: 1}, TypedCodec[circle](circleCodec))
		}, "class id"},
		{"duplicate type", func(b *RegistryBuilder) {
			Register(b, "P", ClassID{LocalID: 1}, TypedCodec[point](pointCodec))
			Register(b, "Q", ClassID{LocalID: 2}, TypedCodec[point](pointCodec))
		}, "registered twice"},
		{"empty alias", func(b *RegistryBuilder) {
			Register(b, "", ClassID{LocalID: 1}, TypedCodec[point](pointCodec))
		}, "empty alias"},
		{"reserved alias", func(b *RegistryBuilder) {
			Register(b, "ref", ClassID{LocalID: 1}, TypedCodec[point](pointCodec))
		}, "reserved tag"},
		{"alias with space", func(b *RegistryBuilder) {
			Register(b, "a b", ClassID{LocalID: 1}, TypedCodec[point](pointCodec))
		}, "not a valid identifier"},
		{"zero class id", func(b *RegistryBuilder) {
			Register(b, "P", ClassID{}, TypedCodec[point](pointCodec))
		}, "zero class id"},
		{"nil codec", func(b *RegistryBuilder) {
			Register[point](b, "P", ClassID{LocalID: 1}, nil)
		}, "no codec"},
		{"value model type", func(b *RegistryBuilder) {
			Register(b, "I", ClassID{LocalID: 1}, TypedCodec[Int32](CodecFuncs[Int32]{}))
		}, "value model"},
		{"interface", func(b *RegistryBuilder) {
			Register(b, "Shape", ClassID{LocalID: 1}, TypedCodec[shape](CodecFuncs[shape]{}))
		}, "interface"},
		{"nil type", func(b *RegistryBuilder) {
			b.RegisterCodec(nil, "X", ClassID{LocalID: 1}, typedCodec[point]{c: pointCodec})
		}, "nil type"},
		{"bad settings", func(b *RegistryBuilder) {
			s := DefaultSettings()
			s.Text.Indent = -1
			b.WithSettings(s)
		}, "indent"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewRegistryBuilder()
			tt.build(b)
			reg, err := b.Build()
			if err == nil {
				t.Fatalf("Build succeeded with %d entries", len(reg.Entries()))
			}
			if !errors.Is(err, ErrInvalidRegistry) {
				t.Errorf("err = %v, want ErrInvalidRegistry", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestRegistryBuildReportsEveryProblem(t *testing.T) {
	b := NewRegistryBuilder()
	Register(b, "", ClassID{}, TypedCodec[point](pointCodec))
	Register[circle](b, "Circle", ClassID{LocalID: 1}, nil)
	_, err := b.Build()
	for _, want := range []string{"empty alias", "zero class id", "no codec"} {
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Errorf("err = %v, want it to mention %q", err, want)
		}
	}
}

func TestMustBuildPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustBuild did not panic")
		}
	}()
	b := NewRegistryBuilder()
	Register(b, "", ClassID{}, TypedCodec[point](pointCodec))
	b.MustBuild()
}

func TestRegistryLookup(t *testing.T) {
	reg := testRegistry(t)
	e, ok := reg.Lookup(reflect.TypeFor[circle]())
	if !ok || e.Alias != "Circle" {
		t.Fatalf("Lookup(circle) = %+v, %v", e, ok)
	}
	if e, ok := reg.LookupClassID(ClassID{Namespace: 1, LocalID: 2}); !ok || e.Type != reflect.TypeFor[square]() {
		t.Errorf("LookupClassID(1.2) = %+v, %v", e, ok)
	}
	if e, ok := reg.LookupAlias("Person"); !ok || e.ClassID != (ClassID{Namespace: 2, LocalID: 1}) {
		t.Errorf("LookupAlias(Person) = %+v, %v", e, ok)
	}
	if _, ok := reg.LookupAlias("Nope"); ok {
		t.Error("LookupAlias(Nope) found an entry")
	}

	var order []string
	for _, e := range reg.Entries() {
		order = append(order, e.Alias)
	}
	if got := strings.Join(order, ","); got != "Point,Circle,Square,Person" {
		t.Errorf("Entries order = %s", got)
	}

	var nilReg *Registry
	if _, ok := nilReg.Lookup(reflect.TypeFor[circle]()); ok {
		t.Error("nil registry found an entry")
	}
	if len(nilReg.Entries()) != 0 {
		t.Error("nil registry has entries")
	}
}

// ============================================================
// Dispatch
// ============================================================

func TestRegistryHeaderDispatch(t *testing.T) {
	reg := testRegistry(t)
	shapes := []shape{circle{R: 1}, square{S: 2}}

	text, err := reg.EncodeText(shapes)
	if err != nil {
		t.Fatalf("EncodeText: %v", err)
	}
	if want := "[{@Circle r: 1.0}, {@Square s: 2.0}]"; text != want {
		t.Errorf("text = %q, want %q", text, want)
	}
	var fromText []shape
	if err := reg.DecodeText(text, &fromText); err != nil {
		t.Fatalf("DecodeText: %v", err)
	}
	if !reflect.DeepEqual(fromText, shapes) {
		t.Errorf("text round trip = %#v", fromText)
	}

	data, err := reg.EncodeBinary(shapes)
	if err != nil {
		t.Fatalf("EncodeBinary: %v", err)
	}
	v, err := DecodeBinary[string](data)
	if err != nil {
		t.Fatalf("DecodeBinary: %v", err)
	}
	first := v.(*Array).Items[0].(*Object[string])
	if first.Header != (Header{ClassID: ClassID{Namespace: 1, LocalID: 1}}) {
		t.Errorf("binary header = %+v, want class id only", first.Header)
	}
	var fromBinary []shape
	if err := reg.DecodeBinary(data, &fromBinary); err != nil {
		t.Fatalf("registry DecodeBinary: %v", err)
	}
	if !reflect.DeepEqual(fromBinary, shapes) {
		t.Errorf("binary round trip = %#v", fromBinary)
	}
}

func TestRegistryDeclaredTypeOmitsHeader(t *testing.T) {
	reg := testRegistry(t)
	text, err := reg.EncodeText([]circle{{R: 0.5}})
	if err != nil {
		t.Fatalf("EncodeText: %v", err)
	}
	if want := "[{r: 0.5}]"; text != want {
		t.Errorf("text = %q, want %q", text, want)
	}
	var out []circle
	if err := reg.DecodeText(text, &out); err != nil {
		t.Fatalf("DecodeText: %v", err)
	}
	if len(out) != 1 || out[0].R != 0.5 {
		t.Errorf("out = %#v", out)
	}

	// a header naming the declared type is accepted too
	if err := reg.DecodeText("[{@Circle r: 3.0}]", &out); err != nil || out[0].R != 3 {
		t.Errorf("DecodeText with header = %#v, %v", out, err)
	}
}

func TestRegistryTopLevelAny(t *testing.T) {
	reg := testRegistry(t)
	var v any
	if err := reg.DecodeText("{@Circle r: 2.0}", &v); err != nil {
		t.Fatalf("DecodeText: %v", err)
	}
	if c, ok := v.(circle); !ok || c.R != 2 {
		t.Errorf("v = %#v, want circle{R: 2}", v)
	}

	text, err := reg.EncodeText(point{X: 1, Y: -2})
	if err != nil {
		t.Fatalf("EncodeText: %v", err)
	}
	if want := "{@Point x: 1, y: -2}"; text != want {
		t.Errorf("text = %q, want %q", text, want)
	}
}

func TestRegistryErrors(t *testing.T) {
	reg := testRegistry(t)
	type unregistered struct{ A int }

	if _, err := reg.EncodeText(unregistered{A: 1}); !errors.Is(err, ErrUnregisteredType) {
		t.Errorf("EncodeText(unregistered) err = %v, want ErrUnregisteredType", err)
	}
	var nilReg *Registry
	if _, err := nilReg.EncodeBinary(circle{}); !errors.Is(err, ErrUnregisteredType) {
		t.Errorf("nil registry EncodeBinary err = %v, want ErrUnregisteredType", err)
	}

	var v any
	if err := reg.DecodeText("{@Nope a: 1}", &v); !errors.Is(err, ErrUnknownType) {
		t.Errorf("unknown alias err = %v, want ErrUnknownType", err)
	}
	if err := reg.DecodeText("{@#9.9 a: 1}", &v); !errors.Is(err, ErrUnknownType) {
		t.Errorf("unknown class id err = %v, want ErrUnknownType", err)
	}
	if err := reg.DecodeText("[@Circle 1]", &v); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("registered header on array err = %v, want ErrTypeMismatch", err)
	}
	if err := reg.DecodeText("1", v); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("non-pointer target err = %v, want ErrTypeMismatch", err)
	}
	var c circle
	if err := reg.DecodeText("{@Circle r: 1.0} 2", &c); !errors.Is(err, ErrUnexpectedToken) {
		t.Errorf("trailing value err = %v, want ErrUnexpectedToken", err)
	}

	onlyCircles := NewRegistryBuilder()
	Register(onlyCircles, "Circle", ClassID{Namespace: 1, LocalID: 1}, TypedCodec[circle](circleCodec))
	data, err := reg.EncodeBinary([]shape{square{S: 1}})
	if err != nil {
		t.Fatalf("EncodeBinary: %v", err)
	}
	var shapes []shape
	if err := onlyCircles.MustBuild().DecodeBinary(data, &shapes); !errors.Is(err, ErrUnknownType) {
		t.Errorf("unregistered class id err = %v, want ErrUnknownType", err)
	}
}

func TestRegistryNestedAndLazy(t *testing.T) {
	reg := testRegistry(t)
	extraValue := NewObject[string](Header{Alias: "Note"})
	extraValue.Set("text", String("kept as bytes"))
	extraValue.Set("n", NewArray(Header{}, Int64(1), Float32(2)))
	extra, err := NewRawValue[string](extraValue)
	if err != nil {
		t.Fatalf("NewRawValue: %v", err)
	}
	p := person{
		Name:  "Ann",
		Age:   41,
		Tags:  []string{"a", "b c"},
		Home:  &point{X: 3, Y: 4},
		Extra: extra,
	}

	data, err := reg.EncodeBinary(p)
	if err != nil {
		t.Fatalf("EncodeBinary: %v", err)
	}
	var fromBinary person
	if err := reg.DecodeBinary(data, &fromBinary); err != nil {
		t.Fatalf("DecodeBinary: %v", err)
	}
	if !fromBinary.Extra.Equal(extra) {
		t.Errorf("binary round trip changed the raw bytes")
	}
	fromBinary.Extra = extra
	if !reflect.DeepEqual(fromBinary, p) {
		t.Errorf("binary round trip = %#v", fromBinary)
	}

	text, err := reg.EncodeText(fromBinary)
	if err != nil {
		t.Fatalf("EncodeText: %v", err)
	}
	if !strings.HasPrefix(text, "{@Person name: Ann, age: 41, tags: [a, \"b c\"], home: {x: 3, y: 4}, extra: {@Note ") {
		t.Errorf("text = %q", text)
	}
	var fromText person
	if err := reg.DecodeText(text, &fromText); err != nil {
		t.Fatalf("DecodeText: %v", err)
	}
	got, err := fromText.Extra.Value()
	if err != nil {
		t.Fatalf("Extra.Value: %v", err)
	}
	if !Equal(got, extraValue) {
		t.Errorf("lazy field after text round trip = %#v", got)
	}

	noHome := person{Name: "Bo"}
	text, err = reg.EncodeText(noHome)
	if err != nil {
		t.Fatalf("EncodeText: %v", err)
	}
	if want := "{@Person name: Bo, age: 0, tags: null, home: null}"; text != want {
		t.Errorf("text = %q, want %q", text, want)
	}
	var back person
	if err := reg.DecodeText(text, &back); err != nil {
		t.Fatalf("DecodeText: %v", err)
	}
	if !reflect.DeepEqual(back, noHome) {
		t.Errorf("back = %#v", back)
	}
}

func TestReadFieldsSkipsUnknown(t *testing.T) {
	var logs bytes.Buffer
	s := DefaultSettings()
	s.Logger = slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	b := NewRegistryBuilder().WithSettings(s)
	Register(b, "Point", ClassID{LocalID: 1}, TypedCodec[point](pointCodec))
	reg := b.MustBuild()

	var p point
	if err := reg.DecodeText("{@Point x: 1, z: [1, {q: 2}], y: 2, w: @ss trailing\n}", &p); err != nil {
		t.Fatalf("DecodeText: %v", err)
	}
	if p != (point{X: 1, Y: 2}) {
		t.Errorf("p = %+v", p)
	}
	for _, want := range []string{"skipping unknown field", "field=z", "field=w"} {
		if !strings.Contains(logs.String(), want) {
			t.Errorf("log %q does not mention %q", logs.String(), want)
		}
	}
}

func TestRegistryNumberKeys(t *testing.T) {
	s := DefaultSettings()
	s.Keys = KeyNumber
	b := NewRegistryBuilder().WithSettings(s)
	Register(b, "Point", ClassID{Namespace: 3, LocalID: 7}, TypedCodec[point](pointCodec))
	reg := b.MustBuild()

	data, err := reg.EncodeBinary(point{X: 5, Y: 6})
	if err != nil {
		t.Fatalf("EncodeBinary: %v", err)
	}
	v, err := DecodeBinary[FieldNumber](data)
	if err != nil {
		t.Fatalf("DecodeBinary: %v", err)
	}
	obj := v.(*Object[FieldNumber])
	if obj.Header != (Header{ClassID: ClassID{Namespace: 3, LocalID: 7}}) {
		t.Errorf("header = %+v", obj.Header)
	}
	if x, ok := obj.Get(MakeFullNumber(0, 1)); !ok || !Equal(x, Int32(5)) {
		t.Errorf("field 1 = %v, %v", x, ok)
	}
	if _, err := DecodeBinary[string](data); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("string-keyed read of a number-keyed record: err = %v, want ErrTypeMismatch", err)
	}

	var p point
	if err := reg.DecodeBinary(data, &p); err != nil {
		t.Fatalf("registry DecodeBinary: %v", err)
	}
	if p != (point{X: 5, Y: 6}) {
		t.Errorf("p = %+v", p)
	}

	// text keys are always names
	text, err := reg.EncodeText(point{X: 5, Y: 6})
	if err != nil || text != "{@Point x: 5, y: 6}" {
		t.Errorf("EncodeText = %q, %v", text, err)
	}
}

// ============================================================
// Built-in types
// ============================================================

func TestBuiltinEncodeText(t *testing.T) {
	objectMaps := DefaultSettings()
	objectMaps.MapAsObject = true
	tests := []struct {
		name     string
		settings Settings
		in       any
		want     string
	}{
		{"int", DefaultSettings(), 7, "7"},
		{"big int", DefaultSettings(), 1 << 40, "@L 1099511627776"},
		{"int64", DefaultSettings(), int64(1), "@L 1"},
		{"uint8", DefaultSettings(), uint8(200), "200"},
		{"float32", DefaultSettings(), float32(1.5), "@f 1.5"},
		{"bytes", DefaultSettings(), []byte{0xab}, "[@bin 0, AB]"},
		{"nil slice", DefaultSettings(), []int32(nil), "null"},
		{"array", DefaultSettings(), [2]bool{true, false}, "[true, false]"},
		{"map as pairs", DefaultSettings(), map[string]int32{"b": 2, "a": 1}, "[a, 1, b, 2]"},
		{"map as object", objectMaps, map[string]int32{"b": 2, "a": 1}, "{a: 1, b: 2}"},
		{"set", DefaultSettings(), map[string]struct{}{"y": {}, "x": {}}, "[x, y]"},
		{"value model", DefaultSettings(), Reference{LocalID: "1"}, "@ref 1"},
		{"pointer", DefaultSettings(), ptr(int32(3)), "3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistryBuilder().WithSettings(tt.settings).MustBuild()
			got, err := reg.EncodeText(tt.in)
			if err != nil {
				t.Fatalf("EncodeText: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func ptr[T any](v T) *T { return &v }

func TestBuiltinRoundTrip(t *testing.T) {
	objectMaps := DefaultSettings()
	objectMaps.MapAsObject = true
	registries := map[string]*Registry{
		"default":       nil,
		"map as object": NewRegistryBuilder().WithSettings(objectMaps).MustBuild(),
	}
	values := map[string]any{
		"slice":     []int64{1, -2, math.MaxInt64},
		"nested":    [][]string{{"a"}, {}, {"b", "c"}},
		"int map":   map[int]string{1: "one", 20: "twenty"},
		"uint map":  map[uint16]bool{3: true},
		"set":       map[int32]struct{}{5: {}, 6: {}},
		"map slice": map[string][]float64{"xs": {0.5, 1}},
		"array":     [3]uint32{1, 2, 3},
		"pointer":   ptr("s"),
	}
	for rname, reg := range registries {
		for vname, in := range values {
			t.Run(rname+"/"+vname, func(t *testing.T) {
				out := reflect.New(reflect.TypeOf(in))

				text, err := reg.EncodeText(in)
				if err != nil {
					t.Fatalf("EncodeText: %v", err)
				}
				if err := reg.DecodeText(text, out.Interface()); err != nil {
					t.Fatalf("DecodeText(%q): %v", text, err)
				}
				if !reflect.DeepEqual(out.Elem().Interface(), in) {
					t.Errorf("text %q decoded to %#v", text, out.Elem().Interface())
				}

				data, err := reg.EncodeBinary(in)
				if err != nil {
					t.Fatalf("EncodeBinary: %v", err)
				}
				out = reflect.New(reflect.TypeOf(in))
				if err := reg.DecodeBinary(data, out.Interface()); err != nil {
					t.Fatalf("DecodeBinary: %v", err)
				}
				if !reflect.DeepEqual(out.Elem().Interface(), in) {
					t.Errorf("binary decoded to %#v", out.Elem().Interface())
				}
			})
		}
	}
}

func TestBuiltinDecode(t *testing.T) {
	var reg *Registry

	var n int32
	if err := reg.DecodeText("null", &n); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("null into int32: err = %v, want ErrTypeMismatch", err)
	}
	if err := reg.DecodeText("@L 5000000000", &n); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("overflow into int32: err = %v, want ErrTypeMismatch", err)
	}
	var u uint
	if err := reg.DecodeText("-1", &u); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("negative into uint: err = %v, want ErrTypeMismatch", err)
	}
	p := ptr(int32(1))
	if err := reg.DecodeText("null", &p); err != nil || p != nil {
		t.Errorf("null into *int32 = %v, %v", p, err)
	}
	var f float64
	if err := reg.DecodeText("@L 3", &f); err != nil || f != 3 {
		t.Errorf("int64 widened to float64 = %v, %v", f, err)
	}

	arr := [3]int32{9, 9, 9}
	if err := reg.DecodeText("[1]", &arr); err != nil || arr != [3]int32{1, 0, 0} {
		t.Errorf("short array = %v, %v", arr, err)
	}
	if err := reg.DecodeText("[1, 2, 3, 4]", &arr); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("long array err = %v, want ErrTypeMismatch", err)
	}
	var m map[int]int32
	if err := reg.DecodeText("[1, 2, 3]", &m); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("odd map pairs err = %v, want ErrTypeMismatch", err)
	}
	if err := reg.DecodeText("{x: 1}", &m); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("non-numeric map key err = %v, want ErrTypeMismatch", err)
	}
}

func TestBuiltinDecodeAny(t *testing.T) {
	var reg *Registry
	tests := []struct {
		text string
		want any
	}{
		{"5", int32(5)},
		{"@L 5", int64(5)},
		{"2.5", float64(2.5)},
		{"@f 2.5", float32(2.5)},
		{"true", true},
		{"hi", "hi"},
		{"null", nil},
		{"@ref 7", Reference{LocalID: "7"}},
		{"{@ref localId: 7, namespace: n}", Reference{LocalID: "7", Namespace: "n"}},
		{"[@bin 1, 00]", Binary{Subtype: 1, Data: []byte{0}}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			var v any = "previous"
			if err := reg.DecodeText(tt.text, &v); err != nil {
				t.Fatalf("DecodeText: %v", err)
			}
			if !reflect.DeepEqual(v, tt.want) {
				t.Errorf("got %#v, want %#v", v, tt.want)
			}
		})
	}

	var v any
	if err := reg.DecodeText("{a: 1, b: [x, @L 2]}", &v); err != nil {
		t.Fatalf("DecodeText: %v", err)
	}
	want := NewObject[string](Header{})
	want.Set("a", Int32(1))
	want.Set("b", NewArray(Header{}, String("x"), Int64(2)))
	if got, ok := v.(Value); !ok || !Equal(got, want) {
		t.Errorf("container into any = %#v", v)
	}

	var obj *Object[string]
	if err := reg.DecodeText("{a: 1}", &obj); err != nil || obj.Len() != 1 {
		t.Errorf("into *Object[string] = %v, %v", obj, err)
	}
	var arr *Array
	if err := reg.DecodeText("{a: 1}", &arr); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("object into *Array err = %v, want ErrTypeMismatch", err)
	}
}
