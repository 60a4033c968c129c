package dson

import (
	"errors"
	"math"
	"strings"
	"testing"
)

// ============================================================
// JSON
// ============================================================

func TestToJSONStrict(t *testing.T) {
	tests := []struct {
		name string
		in   Value
		want string
	}{
		{"sample", sampleObject(), `{"name":"wjybxx","age":28,"ref1":"10001","bin":"Nd8u"}`},
		{"scalars", NewArray(Header{}, Int32(1), Int64(2), Float32(0.5), Float64(3), Bool(true), Null{}),
			`[1,2,0.5,3,true,null]`},
		{"extended scalars", NewArray(Header{}, ExtInt32{Subtype: 1, Value: 5}, ExtString{Subtype: 2, Value: "x"}),
			`[5,"x"]`},
		{"headers dropped", NewArray(Header{Alias: "List"}, NewObject[string](Header{ClassID: ClassID{Namespace: 1, LocalID: 1}})),
			`[{}]`},
		{"escapes", String("a\"b\n"), `"a\"b\n"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToJSON(tt.in)
			if err != nil {
				t.Fatalf("ToJSON: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestToJSONRejectsNonFinite(t *testing.T) {
	for _, v := range []Value{Float64(math.NaN()), Float64(math.Inf(1)), Float32(float32(math.Inf(-1)))} {
		if _, err := ToJSON(v); !errors.Is(err, ErrTypeMismatch) {
			t.Errorf("ToJSON(%v) err = %v, want ErrTypeMismatch", v, err)
		}
	}
}

func TestToJSONIndent(t *testing.T) {
	obj := NewObject[string](Header{})
	obj.Set("a", NewArray(Header{}, Int32(1)))
	got, err := ToJSONWithOpts(obj, BridgeOpts{Indent: "  "})
	if err != nil {
		t.Fatalf("ToJSONWithOpts: %v", err)
	}
	if want := "{\n  \"a\": [\n    1\n  ]\n}"; string(got) != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestJSONExtendedRoundTrip(t *testing.T) {
	values := map[string]Value{
		"variants": allVariants(),
		"sample":   sampleObject(),
		"numbers":  numberRecord(),
		"nan":      NewArray(Header{}, Float64(math.NaN()), Float32(float32(math.Inf(1)))),
		"header":   NewObject[string](Header{Alias: "T", ClassID: ClassID{Namespace: 1, LocalID: 2}}),
	}
	opts := BridgeOpts{Extended: true}
	for name, v := range values {
		t.Run(name, func(t *testing.T) {
			data, err := ToJSONWithOpts(v, opts)
			if err != nil {
				t.Fatalf("ToJSONWithOpts: %v", err)
			}
			back, err := FromJSONWithOpts(data, opts)
			if err != nil {
				t.Fatalf("FromJSONWithOpts(%s): %v", data, err)
			}
			if !Equal(back, StringKeys(v)) {
				t.Errorf("round trip through %s = %#v", data, back)
			}
		})
	}
}

func TestFromJSON(t *testing.T) {
	v, err := FromJSON([]byte(`{"a": 1, "b": 4294967296, "c": 1.5, "d": "1", "e": [true, null], /* c */ "f": {},}`))
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	want := NewObject[string](Header{})
	want.Set("a", Int32(1))
	want.Set("b", Int64(4294967296))
	want.Set("c", Float64(1.5))
	want.Set("d", String("1"))
	want.Set("e", NewArray(Header{}, Bool(true), Null{}))
	want.Set("f", NewObject[string](Header{}))
	if !Equal(v, want) {
		t.Errorf("got %#v", v)
	}

	// markers are plain objects in strict mode
	v, err = FromJSON([]byte(`{"$dson": "int64", "value": 1}`))
	if err != nil {
		t.Fatalf("FromJSON marker: %v", err)
	}
	if _, ok := v.(*Object[string]); !ok {
		t.Errorf("strict marker = %#v, want an object", v)
	}
}

func TestFromJSONErrors(t *testing.T) {
	extended := BridgeOpts{Extended: true}
	tests := []struct {
		name string
		in   string
		opts BridgeOpts
		want string
	}{
		{"empty", ``, BridgeOpts{}, "empty input"},
		{"trailing", `1 2`, BridgeOpts{}, "trailing"},
		{"unterminated", `[1`, BridgeOpts{}, "unterminated"},
		{"unknown marker", `{"$dson": "nope"}`, extended, "unknown $dson marker"},
		{"marker kind type", `{"$dson": 1}`, extended, "must be a string"},
		{"missing field", `{"$dson": "binary", "subtype": 0}`, extended, "missing base64"},
		{"bad base64", `{"$dson": "binary", "subtype": 0, "base64": "!!"}`, extended, "invalid base64"},
		{"bad header", `{"$header": "#x.y"}`, extended, "class id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromJSONWithOpts([]byte(tt.in), tt.opts)
			if err == nil {
				t.Fatal("no error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

// ============================================================
// CBOR
// ============================================================

func TestCBORRoundTrip(t *testing.T) {
	values := map[string]Value{
		"variants": allVariants(),
		"sample":   sampleObject(),
		"numbers":  numberRecord(),
		"scalar":   Int64(math.MinInt64),
		"nan":      Float64(math.NaN()),
		"empty":    NewArray(Header{}),
	}
	for name, v := range values {
		t.Run(name, func(t *testing.T) {
			data, err := ToCBOR(v)
			if err != nil {
				t.Fatalf("ToCBOR: %v", err)
			}
			back, err := FromCBOR(data)
			if err != nil {
				t.Fatalf("FromCBOR: %v", err)
			}
			if !EqualCanonical(back, v) {
				t.Errorf("round trip = %#v", back)
			}
		})
	}
}

func TestCBORKeepsWidths(t *testing.T) {
	in := NewArray(Header{}, Int32(1), Int64(1), Float32(0.5), Float64(0.5), Binary{Data: []byte{1}}, Binary{Subtype: 4})
	data, err := ToCBOR(in)
	if err != nil {
		t.Fatalf("ToCBOR: %v", err)
	}
	back, err := FromCBOR(data)
	if err != nil {
		t.Fatalf("FromCBOR: %v", err)
	}
	if !Equal(back, in) {
		t.Errorf("got %#v", back)
	}
}

func TestCBORDeterministic(t *testing.T) {
	a := NewObject[string](Header{})
	a.Set("zz", Int32(1))
	a.Set("a", Int32(2))
	b := NewObject[string](Header{})
	b.Set("a", Int32(2))
	b.Set("zz", Int32(1))
	da, err := ToCBOR(a)
	if err != nil {
		t.Fatal(err)
	}
	db, err := ToCBOR(b)
	if err != nil {
		t.Fatal(err)
	}
	if string(da) != string(db) {
		t.Errorf("member order changed the encoding: %x vs %x", da, db)
	}
}

func TestFromCBORErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"truncated", []byte{0x82, 0x01}},
		{"mixed keys", []byte{0xa2, 0x01, 0x01, 0x61, 'a', 0x02}},
		{"unknown tag", []byte{0xd9, 0x01, 0x00, 0x01}},
		{"negative key", []byte{0xa1, 0x20, 0x01}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if v, err := FromCBOR(tt.data); err == nil {
				t.Errorf("FromCBOR(%x) = %#v, want an error", tt.data, v)
			}
		})
	}
}

// ============================================================
// Canonical form
// ============================================================

func TestCanonicalOrderIndependent(t *testing.T) {
	a := NewObject[string](Header{Alias: "T"})
	a.Set("b", NewArray(Header{}, Int32(1), Int32(2)))
	a.Set("a", String("x"))
	b := NewObject[string](Header{Alias: "T"})
	b.Set("a", String("x"))
	b.Set("b", NewArray(Header{}, Int32(1), Int32(2)))

	fa, err := Fingerprint(a)
	if err != nil {
		t.Fatal(err)
	}
	fb, err := Fingerprint(b)
	if err != nil {
		t.Fatal(err)
	}
	if fa != fb {
		t.Errorf("fingerprints differ: %s vs %s", fa, fb)
	}
	if len(fa) != 64 {
		t.Errorf("fingerprint %q is not 32 bytes of hex", fa)
	}

	c, err := Canonical(a)
	if err != nil {
		t.Fatal(err)
	}
	if keys := c.(*Object[string]).Keys(); keys[0] != "a" || keys[1] != "b" {
		t.Errorf("canonical keys = %v", keys)
	}
}

func TestCanonicalDistinguishes(t *testing.T) {
	base := sampleObject()
	tests := []struct {
		name string
		v    Value
	}{
		{"array order", NewArray(Header{}, Int32(2), Int32(1))},
		{"int width", Int64(28)},
		{"header", NewObject[string](Header{Alias: "Other"})},
		{"value", func() Value {
			o := sampleObject()
			o.Set("age", Int32(29))
			return o
		}()},
	}
	baseHash, err := CanonicalHash(base)
	if err != nil {
		t.Fatal(err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := CanonicalHash(tt.v)
			if err != nil {
				t.Fatal(err)
			}
			if h == baseHash {
				t.Error("hash collides with the sample object")
			}
		})
	}
}

func TestCanonicalKeyKindsAndRaw(t *testing.T) {
	rec := numberRecord()
	h1, err := CanonicalHash(rec)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := CanonicalHash(StringKeys(rec))
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Error("number and string keys hash differently")
	}

	raw, err := NewRawValue[FieldNumber](rec)
	if err != nil {
		t.Fatal(err)
	}
	h3, err := CanonicalHash(raw)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h3 {
		t.Error("raw value hashes differently from its decoded form")
	}

	data, err := CanonicalBytes(rec)
	if err != nil {
		t.Fatal(err)
	}
	back, err := DecodeBinary[string](data)
	if err != nil {
		t.Fatalf("canonical bytes do not decode: %v", err)
	}
	if !EqualCanonical(back, rec) {
		t.Errorf("decoded canonical bytes = %#v", back)
	}
}
