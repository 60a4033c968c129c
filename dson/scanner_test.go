package dson

import (
	"errors"
	"strings"
	"testing"
)

var scannerInputs = map[string]string{
	"sample":     sampleText,
	"multi-line": "{\n  a: 1\n  b: [x, \"y z\"]\n}\n",
	"text block": "{\n  doc: @ss first\n    -| second\n    -> third\n  n: @L 5\n}",
	"escapes":    `["é😀", "tab\there", "q\"uote"]`,
	"unicode":    "[héllo, ☃, 日本語]",
	"crlf":       "{a: 1\r\n b: 2}",
	"empty":      "",
}

func tokenizeString(t *testing.T, src CharSource) []Token {
	t.Helper()
	toks, err := Tokenize(NewScanner(src))
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	return toks
}

func sameTokens(a, b []Token) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) || a[i].NewlineBefore != b[i].NewlineBefore {
			return false
		}
	}
	return true
}

func TestScannerSourcesAgree(t *testing.T) {
	for name, text := range scannerInputs {
		t.Run(name, func(t *testing.T) {
			fromString := tokenizeString(t, NewStringSource(text))
			fromLines := tokenizeString(t, NewLinesSource(strings.Split(text, "\n")))
			fromReader := tokenizeString(t, NewReaderSource(strings.NewReader(text)))
			if !sameTokens(fromString, fromLines) {
				t.Errorf("lines source differs:\n %v\n %v", fromString, fromLines)
			}
			if !sameTokens(fromString, fromReader) {
				t.Errorf("reader source differs:\n %v\n %v", fromString, fromReader)
			}
		})
	}
}

func TestScannerTokens(t *testing.T) {
	toks := tokenizeString(t, NewStringSource("{@T a: \"b\"\n c: @ss d e\n}"))
	want := []Token{
		{Type: TokenBeginObject, Value: "{"},
		{Type: TokenTag, Value: "T"},
		{Type: TokenUnquoted, Value: "a"},
		{Type: TokenColon, Value: ":"},
		{Type: TokenString, Value: "b"},
		{Type: TokenUnquoted, Value: "c", NewlineBefore: true},
		{Type: TokenColon, Value: ":"},
		{Type: TokenString, Value: "d e"},
		{Type: TokenEndObject, Value: "}", NewlineBefore: true},
		{Type: TokenEOF},
	}
	if !sameTokens(toks, want) {
		t.Fatalf("tokens:\n got  %v\n want %v", toks, want)
	}
	if toks[2].Pos.Line != 1 || toks[2].Pos.Column != 5 {
		t.Errorf("position of 'a' = %s, want 1:5", toks[2].Pos)
	}
	if toks[5].Pos.Line != 2 || toks[5].Pos.Column != 2 {
		t.Errorf("position of 'c' = %s, want 2:2", toks[5].Pos)
	}
}

func TestScannerErrorIsSticky(t *testing.T) {
	s := NewScanner(NewStringSource(`"open`))
	_, err := s.NextToken()
	if !errors.Is(err, ErrUnexpectedToken) {
		t.Fatalf("err = %v, want ErrUnexpectedToken", err)
	}
	if _, err2 := s.NextToken(); err2 != err {
		t.Errorf("second call returned %v, want the same error", err2)
	}
}

func TestJSONTokenSourceMatchesScanner(t *testing.T) {
	inputs := []string{
		`{"a": [1, 2.5, "x", true, null], "b": {"c": "d"}}`,
		`[[1], [2], {}, []]`,
		`"top"`,
		`{"k": {"n": {"m": [{"z": -1e5}]}}, "last": false}`,
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			native := tokenizeString(t, NewStringSource(in))
			fromJSON, err := Tokenize(NewJSONTokenSource([]byte(in)))
			if err != nil {
				t.Fatalf("Tokenize JSON: %v", err)
			}
			if len(native) != len(fromJSON) {
				t.Fatalf("token counts differ:\n %v\n %v", native, fromJSON)
			}
			for i := range native {
				if !native[i].Equal(fromJSON[i]) {
					t.Fatalf("token %d: native %v, json %v", i, native[i], fromJSON[i])
				}
			}
		})
	}
}

func TestJSONTokenSourceRelaxed(t *testing.T) {
	in := "{\n  // comment\n  \"a\": [1, 2,],\n  /* block */ \"b\": \"x\",\n}"
	r := NewJSONReader([]byte(in))
	defer r.Close()
	v, err := ReadValue[string](r)
	if err != nil {
		t.Fatalf("ReadValue: %v", err)
	}
	want := NewObject[string](Header{})
	want.Set("a", NewArray(Header{}, Int32(1), Int32(2)))
	want.Set("b", String("x"))
	if !Equal(v, want) {
		t.Errorf("got %#v", v)
	}
}

func TestJSONTokenSourceErrors(t *testing.T) {
	tests := []struct {
		in   string
		want error
	}{
		{`{"a": 1`, ErrUnterminatedContainer},
		{`[1, @]`, ErrUnexpectedToken},
		{`{"a": 1, "a": 2}`, ErrDuplicateKey},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			r := NewJSONReader([]byte(tt.in))
			defer r.Close()
			_, err := ReadValue[string](r)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}
