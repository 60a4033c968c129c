package stream

import (
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/Neumenon/dson/dson"
)

func sampleDoc() *dson.Object[string] {
	obj := dson.NewObject[string](dson.Header{Alias: "Job"})
	obj.Set("name", dson.String("build"))
	obj.Set("steps", dson.NewArray(dson.Header{}, dson.Int32(1), dson.Int32(2)))
	obj.Set("done", dson.Bool(false))
	return obj
}

// ============================================================
// Text envelope
// ============================================================

func TestWriter_MinimalFrame(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.WriteFrame(&Frame{Kind: KindDoc, Format: dson.FormatText, Payload: []byte("{}")}); err != nil {
		t.Fatal(err)
	}
	want := "@frame{v=1 sid=0 seq=0 kind=doc fmt=text len=2}\n{}\n"
	if got := buf.String(); got != want {
		t.Errorf("got:\n%q\nwant:\n%q", got, want)
	}
}

func TestWriter_AllOptions(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriterWithCRC(&buf)
	base := [32]byte{0xab}
	err := w.WriteFrame(&Frame{SID: 3, Seq: 9, Kind: KindPatch, Format: dson.FormatText, Payload: []byte("hello"), Base: &base, Final: true})
	if err != nil {
		t.Fatal(err)
	}
	want := "@frame{v=1 sid=3 seq=9 kind=patch fmt=text len=5 crc=3610a686 base=blake3:ab" +
		strings.Repeat("0", 62) + " final=true}\nhello\n"
	if got := buf.String(); got != want {
		t.Errorf("got:\n%q\nwant:\n%q", got, want)
	}
}

func TestReader_MinimalFrame(t *testing.T) {
	r := NewReader(strings.NewReader("@frame{v=1 sid=0 seq=0 kind=doc fmt=text len=2}\n{}\n"))
	frame, err := r.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if frame.Version != 1 || frame.SID != 0 || frame.Seq != 0 || frame.Kind != KindDoc {
		t.Errorf("frame = %+v", frame)
	}
	if frame.Format != dson.FormatText {
		t.Errorf("Format = %s, want text", frame.Format)
	}
	if string(frame.Payload) != "{}" {
		t.Errorf("Payload = %q, want {}", frame.Payload)
	}
	if _, err := r.Next(); err != io.EOF {
		t.Errorf("second Next = %v, want io.EOF", err)
	}
}

func TestReader_CRCMismatch(t *testing.T) {
	input := "@frame{v=1 sid=1 seq=5 kind=doc len=5 crc=deadbeef}\nhello\n"
	_, err := NewReader(strings.NewReader(input)).Next()
	var crcErr *CRCMismatchError
	if !errors.As(err, &crcErr) {
		t.Fatalf("expected CRCMismatchError, got %T: %v", err, err)
	}

	frame, err := NewReader(strings.NewReader(input), WithoutCRCVerification()).Next()
	if err != nil {
		t.Fatalf("unverified read: %v", err)
	}
	if *frame.CRC != 0xdeadbeef {
		t.Errorf("CRC = %08x", *frame.CRC)
	}
}

func TestReader_PayloadWithDelimiters(t *testing.T) {
	payloads := []string{
		"{\n  a: 1\n  b: 2\n}",
		"{a: {b: {c: 1}}}",
		"@frame{v=1 sid=0 seq=0 kind=doc len=1}",
	}
	for _, payload := range payloads {
		input := "@frame{v=1 sid=1 seq=1 kind=doc fmt=text len=" + strconv.Itoa(len(payload)) + "}\n" + payload + "\n"
		frame, err := NewReader(strings.NewReader(input)).Next()
		if err != nil {
			t.Fatalf("Next(%q): %v", payload, err)
		}
		if string(frame.Payload) != payload {
			t.Errorf("Payload = %q, want %q", frame.Payload, payload)
		}
	}
}

func TestReader_AllKinds(t *testing.T) {
	for _, k := range kindNames {
		input := "@frame{v=1 sid=0 seq=0 kind=" + k + " len=1}\nx\n"
		frame, err := NewReader(strings.NewReader(input)).Next()
		if err != nil {
			t.Errorf("kind=%s: %v", k, err)
			continue
		}
		if frame.Kind.String() != k {
			t.Errorf("kind=%s: got %s", k, frame.Kind)
		}
	}

	frame, err := NewReader(strings.NewReader("@frame{v=1 sid=0 seq=0 kind=99 len=0}\n")).Next()
	if err != nil {
		t.Fatal(err)
	}
	if frame.Kind != FrameKind(99) || frame.Kind.String() != "unknown(99)" {
		t.Errorf("Kind = %s", frame.Kind)
	}
}

func TestReader_HeaderVariations(t *testing.T) {
	for _, input := range []string{
		"@frame{v=1,sid=1,seq=0,kind=doc,len=1}\nx\n",
		"@frame{  v=1   sid=1  seq=0  kind=doc   len=1  }\nx\n",
		"@frame{v=1 sid=1 seq=0 kind=doc len=1}\nx",
	} {
		if _, err := NewReader(strings.NewReader(input)).Next(); err != nil {
			t.Errorf("%q: %v", input, err)
		}
	}
}

func TestReader_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		opts  []ReaderOption
		want  string
	}{
		{"no prefix", "frame{len=1}\nx\n", nil, "expected @frame{"},
		{"no len", "@frame{v=1 sid=0}\n", nil, "missing len"},
		{"bad kind", "@frame{kind=nope len=0}\n", nil, "invalid kind"},
		{"bad fmt", "@frame{fmt=xml len=0}\n", nil, "invalid fmt"},
		{"bad base", "@frame{base=blake3:zz len=0}\n", nil, "invalid base"},
		{"too large", "@frame{v=1 len=999999}\n", []ReaderOption{WithMaxPayload(1024)}, "too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReader(strings.NewReader(tt.input), tt.opts...).Next()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

// ============================================================
// Both envelopes
// ============================================================

type envelope struct {
	name      string
	newWriter func(w io.Writer, crc bool) FrameWriter
	newReader func(r io.Reader, opts ...ReaderOption) FrameReader
}

var envelopes = []envelope{
	{"text",
		func(w io.Writer, crc bool) FrameWriter {
			if crc {
				return NewWriterWithCRC(w)
			}
			return NewWriter(w)
		},
		func(r io.Reader, opts ...ReaderOption) FrameReader { return NewReader(r, opts...) }},
	{"binary",
		func(w io.Writer, crc bool) FrameWriter {
			if crc {
				return NewBinaryWriterWithCRC(w)
			}
			return NewBinaryWriter(w)
		},
		func(r io.Reader, opts ...ReaderOption) FrameReader { return NewBinaryReader(r, opts...) }},
}

func TestRoundtrip_AllFrameTypes(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
	}{
		{"minimal doc", Frame{Version: 1, Kind: KindDoc, Payload: []byte{0x01}}},
		{"text doc", Frame{Version: 1, SID: 4, Seq: 1, Kind: KindDoc, Format: dson.FormatText, Payload: []byte("{a: 1}")}},
		{"patch with base", Frame{Version: 1, SID: 1, Seq: 5, Kind: KindPatch, Payload: []byte("x\ny"), Base: &[32]byte{0x01, 0x02}}},
		{"row", Frame{Version: 1, SID: 2, Seq: 100, Kind: KindRow, Payload: []byte("[1, 2]")}},
		{"event", Frame{Version: 1, SID: 1, Seq: 50, Kind: KindEvent, Payload: []byte("{@Progress pct: 0.5}")}},
		{"ack", Frame{Version: 1, SID: 1, Seq: 10, Kind: KindAck}},
		{"ping", Frame{Version: 1, Kind: KindPing}},
		{"final", Frame{Version: 1, SID: 1, Seq: 999, Kind: KindDoc, Payload: []byte("done"), Final: true}},
		{"large ids", Frame{Version: 1, SID: 1<<64 - 1, Seq: 1<<64 - 1, Kind: KindDoc, Payload: []byte("x")}},
	}
	for _, env := range envelopes {
		for _, tt := range tests {
			t.Run(env.name+"/"+tt.name, func(t *testing.T) {
				var buf bytes.Buffer
				if err := env.newWriter(&buf, true).WriteFrame(&tt.frame); err != nil {
					t.Fatalf("WriteFrame: %v", err)
				}
				got, err := env.newReader(&buf).Next()
				if err != nil {
					t.Fatalf("Next: %v", err)
				}
				if got.Version != tt.frame.Version || got.SID != tt.frame.SID || got.Seq != tt.frame.Seq || got.Kind != tt.frame.Kind {
					t.Errorf("envelope = v%d sid=%d seq=%d %s, want v%d sid=%d seq=%d %s",
						got.Version, got.SID, got.Seq, got.Kind,
						tt.frame.Version, tt.frame.SID, tt.frame.Seq, tt.frame.Kind)
				}
				if got.Format != tt.frame.Format {
					t.Errorf("Format = %s, want %s", got.Format, tt.frame.Format)
				}
				if !bytes.Equal(got.Payload, tt.frame.Payload) {
					t.Errorf("Payload = %q, want %q", got.Payload, tt.frame.Payload)
				}
				if got.IsFinal() != tt.frame.Final {
					t.Errorf("Final = %v, want %v", got.IsFinal(), tt.frame.Final)
				}
				if (got.CRC != nil) != (len(tt.frame.Payload) > 0) {
					t.Errorf("CRC present = %v with %d payload bytes", got.CRC != nil, len(tt.frame.Payload))
				}
				if tt.frame.Base != nil && (got.Base == nil || *got.Base != *tt.frame.Base) {
					t.Errorf("Base = %v, want %x", got.Base, *tt.frame.Base)
				}
			})
		}
	}
}

func TestRoundtrip_DsonPayloads(t *testing.T) {
	for _, env := range envelopes {
		for _, format := range []dson.Format{dson.FormatBinary, dson.FormatText} {
			t.Run(env.name+"/"+format.String(), func(t *testing.T) {
				var buf bytes.Buffer
				enc := NewEncoder(env.newWriter(&buf, false), format)
				if err := enc.WriteDoc(7, sampleDoc()); err != nil {
					t.Fatal(err)
				}
				if err := enc.WriteEvent(7, Progress(0.5, "half")); err != nil {
					t.Fatal(err)
				}
				if err := enc.WriteFinal(7, KindRow, dson.Int32(3)); err != nil {
					t.Fatal(err)
				}

				frames, err := readAll(env.newReader(&buf))
				if err != nil {
					t.Fatalf("ReadAll: %v", err)
				}
				if len(frames) != 3 {
					t.Fatalf("got %d frames, want 3", len(frames))
				}
				for i, f := range frames {
					if f.Seq != uint64(i+1) || f.Format != format {
						t.Errorf("frame %d: seq=%d fmt=%s", i, f.Seq, f.Format)
					}
				}
				doc, err := frames[0].Value()
				if err != nil {
					t.Fatal(err)
				}
				if !dson.Equal(doc, sampleDoc()) {
					t.Errorf("doc = %#v", doc)
				}
				if !frames[2].IsFinal() {
					t.Error("last frame not final")
				}
			})
		}
	}
}

func TestBinaryReader_Errors(t *testing.T) {
	good := AppendFrame(nil, &Frame{SID: 1, Seq: 1, Payload: []byte("abc")}, true)
	corrupt := bytes.Clone(good)
	corrupt[len(corrupt)-1] ^= 0xff

	tests := []struct {
		name string
		data []byte
		opts []ReaderOption
		want string
	}{
		{"bad magic", []byte("XX\x01\x00\x00"), nil, "bad magic"},
		{"short header", []byte("DF\x01"), nil, "truncated header"},
		{"missing varint", []byte("DF\x01\x00\x00"), nil, "invalid sid"},
		{"truncated payload", good[:len(good)-1], nil, "truncated payload"},
		{"crc", corrupt, nil, "CRC mismatch"},
		{"too large", good, []ReaderOption{WithMaxPayload(2)}, "too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBinaryReader(bytes.NewReader(tt.data), tt.opts...).Next()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestNewFrameReaderSniffs(t *testing.T) {
	f := &Frame{SID: 2, Seq: 1, Kind: KindRow, Payload: []byte("x")}
	var text bytes.Buffer
	if err := NewWriter(&text).WriteFrame(f); err != nil {
		t.Fatal(err)
	}
	inputs := map[string][]byte{
		"text":   text.Bytes(),
		"binary": AppendFrame(nil, f, false),
	}
	for name, data := range inputs {
		r, err := NewFrameReader(bytes.NewReader(data))
		if err != nil {
			t.Fatal(err)
		}
		got, err := r.Next()
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if got.SID != 2 || got.Kind != KindRow || string(got.Payload) != "x" {
			t.Errorf("%s: got %+v", name, got)
		}
	}
}

// ============================================================
// CRC and hash
// ============================================================

func TestCRC_KnownValues(t *testing.T) {
	tests := []struct {
		input string
		crc   uint32
	}{
		{"", 0x00000000},
		{"a", 0xe8b7be43},
		{"abc", 0x352441c2},
		{"hello", 0x3610a686},
	}
	for _, tt := range tests {
		if got := ComputeCRC([]byte(tt.input)); got != tt.crc {
			t.Errorf("CRC(%q) = %08x, want %08x", tt.input, got, tt.crc)
		}
		if !VerifyCRC([]byte(tt.input), tt.crc) {
			t.Errorf("VerifyCRC(%q) = false", tt.input)
		}
	}
}

func TestHash_RoundTrip(t *testing.T) {
	h, err := StateHash(sampleDoc())
	if err != nil {
		t.Fatal(err)
	}
	s := HashToHex(h)
	if len(s) != 64 {
		t.Errorf("hex length = %d, want 64", len(s))
	}
	for _, in := range []string{s, "blake3:" + s, strings.ToUpper(s)} {
		parsed, ok := HexToHash(in)
		if !ok || parsed != h {
			t.Errorf("HexToHash(%q) = %x, %v", in, parsed, ok)
		}
	}
	if _, ok := HexToHash(s[:63]); ok {
		t.Error("HexToHash accepted 63 digits")
	}

	canonical, err := dson.CanonicalBytes(sampleDoc())
	if err != nil {
		t.Fatal(err)
	}
	if StateHashBytes(canonical) != h {
		t.Error("StateHashBytes of canonical bytes differs from StateHash")
	}
}
