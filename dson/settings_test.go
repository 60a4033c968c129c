package dson

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseSettings(t *testing.T) {
	s, err := ParseSettings([]byte(`
text:
  string_style: quote
  indent: 4
  pretty: true
map_as_object: true
keys: number
max_depth: 64
`))
	if err != nil {
		t.Fatalf("ParseSettings: %v", err)
	}
	want := DefaultSettings()
	want.Text.StringStyle = StyleQuote
	want.Text.Indent = 4
	want.Text.Pretty = true
	want.MapAsObject = true
	want.Keys = KeyNumber
	want.MaxDepth = 64
	if s != want {
		t.Errorf("got %+v, want %+v", s, want)
	}
}

func TestParseSettingsDefaults(t *testing.T) {
	for _, in := range []string{"", "# nothing\n", "text: {}\n"} {
		s, err := ParseSettings([]byte(in))
		if err != nil {
			t.Fatalf("ParseSettings(%q): %v", in, err)
		}
		if s != DefaultSettings() {
			t.Errorf("ParseSettings(%q) = %+v, want defaults", in, s)
		}
	}
}

func TestParseSettingsErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"unknown field", "colour: red\n", "colour"},
		{"unknown nested field", "text:\n  width: 3\n", "width"},
		{"bad style", "text:\n  string_style: fancy\n", "fancy"},
		{"bad keys", "keys: both\n", "both"},
		{"negative indent", "text:\n  indent: -1\n", "indent"},
		{"huge indent", "text:\n  indent: 40\n", "indent"},
		{"negative line length", "text:\n  soft_line_length: -5\n", "soft_line_length"},
		{"zero max depth", "max_depth: 0\n", "max_depth"},
		{"not yaml", "text: [\n", "parsing settings"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSettings([]byte(tt.in))
			if err == nil {
				t.Fatal("no error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestValidateReportsEveryField(t *testing.T) {
	s := DefaultSettings()
	s.Text.Indent = 99
	s.Text.SoftLineLength = -1
	s.Keys = 7
	err := s.Validate()
	if err == nil {
		t.Fatal("Validate accepted invalid settings")
	}
	for _, want := range []string{"indent", "soft_line_length", "keys"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("err = %v, want it to mention %q", err, want)
		}
	}
	if err := DefaultSettings().Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
}

func TestLoadSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dson.yaml")
	if err := os.WriteFile(path, []byte("text:\n  unicode_escape: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if !s.Text.UnicodeEscape || s.Text.Indent != 2 {
		t.Errorf("got %+v", s)
	}
	if _, err := LoadSettings(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadSettings of a missing file succeeded")
	}
}

func TestEnumText(t *testing.T) {
	for _, style := range []StringStyle{StyleAuto, StyleQuote, StyleText} {
		b, err := style.MarshalText()
		if err != nil {
			t.Fatal(err)
		}
		var back StringStyle
		if err := back.UnmarshalText(b); err != nil || back != style {
			t.Errorf("%s: UnmarshalText(%q) = %v, %v", style, b, back, err)
		}
	}
	for _, k := range []KeyKind{KeyString, KeyNumber} {
		b, err := k.MarshalText()
		if err != nil {
			t.Fatal(err)
		}
		var back KeyKind
		if err := back.UnmarshalText(b); err != nil || back != k {
			t.Errorf("%s: UnmarshalText(%q) = %v, %v", k, b, back, err)
		}
	}
}
