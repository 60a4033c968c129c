package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(args, strings.NewReader(stdin), &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func TestCommands(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		stdin string
		want  string
	}{
		{"fmt", []string{"fmt"}, "{b: 1,\n a: [x, y]}", "{b: 1, a: [x, y]}\n"},
		{"fmt many", []string{"fmt", "-"}, "1 2", "1\n2\n"},
		{"from-json", []string{"from-json"}, `{"a": 1, "b": [true, null]}`, "{a: 1, b: [true, null]}\n"},
		{"to-json", []string{"to-json"}, "{a: 1, b: @L 2}", "{\"a\":1,\"b\":2}\n"},
		{"to-json extended", []string{"--extended", "to-json"}, "@L 2", "{\"$dson\":\"int64\",\"value\":2}\n"},
		{"version", []string{"version"}, "", "dson 0.1.0 (frame protocol v1)\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, stderr, err := runCLI(t, tt.stdin, tt.args...)
			if err != nil {
				t.Fatalf("run: %v\n%s", err, stderr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEncodeDecode(t *testing.T) {
	in := "{@Job name: build, steps: [1, 2], ok: true}"
	for _, keys := range []string{"string", "number"} {
		input := in
		if keys == "number" {
			input = "{1: build, 2: [1, 2]}"
		}
		encoded, stderr, err := runCLI(t, input, "--hex", "--keys", keys, "encode")
		if err != nil {
			t.Fatalf("encode: %v\n%s", err, stderr)
		}
		decoded, stderr, err := runCLI(t, encoded, "--hex", "--keys", keys, "decode")
		if err != nil {
			t.Fatalf("decode: %v\n%s", err, stderr)
		}
		again, _, err := runCLI(t, input, "fmt")
		if err != nil {
			t.Fatal(err)
		}
		if decoded != again {
			t.Errorf("%s keys: decode(encode(x)) = %q, want %q", keys, decoded, again)
		}
	}
}

func TestCBORRoundTrip(t *testing.T) {
	encoded, _, err := runCLI(t, "{a: [1, @L 2, @f 1.5]}", "--hex", "to-cbor")
	if err != nil {
		t.Fatal(err)
	}
	got, _, err := runCLI(t, encoded, "--hex", "from-cbor")
	if err != nil {
		t.Fatal(err)
	}
	if want := "{a: [1, @L 2, @f 1.5]}\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestHash(t *testing.T) {
	a, _, err := runCLI(t, "{a: 1, b: 2}", "hash")
	if err != nil {
		t.Fatal(err)
	}
	b, _, err := runCLI(t, "{b: 2, a: 1}", "hash")
	if err != nil {
		t.Fatal(err)
	}
	if a != b || !strings.HasPrefix(a, "blake3:") || len(a) != len("blake3:")+64+1 {
		t.Errorf("hashes %q and %q", a, b)
	}
}

func TestTokens(t *testing.T) {
	for _, args := range [][]string{{"tokens"}, {"--json", "tokens"}} {
		out, _, err := runCLI(t, `{"a": 1}`, args...)
		if err != nil {
			t.Fatalf("%v: %v", args, err)
		}
		if lines := strings.Count(out, "\n"); lines != 6 {
			t.Errorf("%v: %d tokens:\n%s", args, lines, out)
		}
	}
}

func TestFramesDemoDecodes(t *testing.T) {
	for _, format := range []string{"text", "binary"} {
		stream, stderr, err := runCLI(t, "", "--format", format, "frames", "demo")
		if err != nil {
			t.Fatalf("demo: %v\n%s", err, stderr)
		}
		out, stderr, err := runCLI(t, stream, "frames")
		if err != nil {
			t.Fatalf("frames: %v\n%s", err, stderr)
		}
		if n := strings.Count(out, "--- Frame "); n != 16 {
			t.Errorf("%s: decoded %d frames, want 16", format, n)
		}
		if strings.Contains(stderr, "rejected") {
			t.Errorf("%s: %s", format, stderr)
		}
		if !strings.Contains(stderr, "count=16") || !strings.Contains(stderr, "final=true") {
			t.Errorf("%s: stderr = %s", format, stderr)
		}
	}
}

func TestConfig(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("colour: red\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := runCLI(t, "1", "--config", bad, "fmt"); err == nil || !strings.Contains(err.Error(), "colour") {
		t.Errorf("err = %v, want it to mention the unknown field", err)
	}

	good := filepath.Join(dir, "good.yaml")
	if err := os.WriteFile(good, []byte("text:\n  string_style: quote\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, _, err := runCLI(t, "[a]", "--config", good, "fmt")
	if err != nil {
		t.Fatal(err)
	}
	if out != "[\"a\"]\n" {
		t.Errorf("got %q", out)
	}
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		stdin string
		want  string
	}{
		{"no command", nil, "", "usage"},
		{"unknown command", []string{"nope"}, "", "unknown command"},
		{"bad keys", []string{"--keys", "both", "encode"}, "1", "both"},
		{"bad text", []string{"fmt"}, "{a: ", ""},
		{"two files", []string{"fmt", "a", "b"}, "", "at most one file"},
		{"missing file", []string{"fmt", "/nonexistent/x.dson"}, "", "read input"},
		{"bad demo format", []string{"--format", "xml", "frames", "demo"}, "", "unknown format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := runCLI(t, tt.stdin, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}
