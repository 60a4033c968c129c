package dson

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// StringStyle selects how a text writer renders strings. Styles are
// cosmetic: every style reads back as the same string.
type StringStyle uint8

const (
	// StyleAuto writes strings unquoted when unambiguous, as text blocks
	// when longer than the soft line length, and quoted otherwise.
	StyleAuto StringStyle = iota
	// StyleQuote always quotes.
	StyleQuote
	// StyleText writes @ss text blocks, falling back to quotes for strings
	// containing carriage returns.
	StyleText
)

// String returns "auto", "quote" or "text".
func (s StringStyle) String() string {
	switch s {
	case StyleQuote:
		return "quote"
	case StyleText:
		return "text"
	default:
		return "auto"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s StringStyle) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *StringStyle) UnmarshalText(b []byte) error {
	switch string(b) {
	case "auto", "":
		*s = StyleAuto
	case "quote":
		*s = StyleQuote
	case "text":
		*s = StyleText
	default:
		return fmt.Errorf("dson: unknown string style %q", b)
	}
	return nil
}

// TextSettings configures a TextWriter.
type TextSettings struct {
	// StringStyle is the default style for strings.
	StringStyle StringStyle `yaml:"string_style"`

	// SoftLineLength is the column after which long containers wrap at
	// separators and long strings become text blocks. Zero disables wrapping.
	SoftLineLength int `yaml:"soft_line_length"`

	// Indent is the number of spaces per nesting level.
	Indent int `yaml:"indent"`

	// Pretty puts every container element on its own line.
	Pretty bool `yaml:"pretty"`

	// UnicodeEscape writes non-ASCII characters as \u escapes.
	UnicodeEscape bool `yaml:"unicode_escape"`
}

// DefaultTextSettings returns the settings used when none are given.
func DefaultTextSettings() TextSettings {
	return TextSettings{
		StringStyle:    StyleAuto,
		SoftLineLength: 120,
		Indent:         2,
	}
}

// Settings is the complete, file-loadable configuration of the codec layer.
type Settings struct {
	// Text configures text output.
	Text TextSettings `yaml:"text"`

	// MapAsObject encodes string-keyable maps as objects instead of arrays
	// of alternating keys and values. Only text and string-keyed binary
	// writers honor it.
	MapAsObject bool `yaml:"map_as_object"`

	// Keys selects string or number keys for binary output.
	Keys KeyKind `yaml:"keys"`

	// MaxDepth bounds container nesting when reading and writing.
	MaxDepth int `yaml:"max_depth"`

	// Logger receives debug events such as skipped unknown fields. Nil
	// discards them.
	Logger *slog.Logger `yaml:"-"`
}

// DefaultSettings returns the built-in configuration.
func DefaultSettings() Settings {
	return Settings{Text: DefaultTextSettings(), Keys: KeyString, MaxDepth: DefaultMaxDepth}
}

// logger returns the configured logger or a discarding one.
func (s Settings) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// Validate reports every invalid field.
func (s Settings) Validate() error {
	var errs []error
	if s.Text.SoftLineLength < 0 {
		errs = append(errs, fmt.Errorf("text.soft_line_length must not be negative"))
	}
	if s.Text.Indent < 0 || s.Text.Indent > 16 {
		errs = append(errs, fmt.Errorf("text.indent must be between 0 and 16"))
	}
	if s.Text.StringStyle > StyleText {
		errs = append(errs, fmt.Errorf("text.string_style is invalid"))
	}
	if s.Keys > KeyNumber {
		errs = append(errs, fmt.Errorf("keys is invalid"))
	}
	if s.MaxDepth < 1 || s.MaxDepth > 10000 {
		errs = append(errs, fmt.Errorf("max_depth must be between 1 and 10000"))
	}
	return errors.Join(errs...)
}

// LoadSettings reads YAML settings from path on top of DefaultSettings.
// Unknown fields are rejected.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("reading settings: %w", err)
	}
	return ParseSettings(data)
}

// ParseSettings decodes YAML settings on top of DefaultSettings.
func ParseSettings(data []byte) (Settings, error) {
	s := DefaultSettings()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return Settings{}, fmt.Errorf("parsing settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}

// MarshalText implements encoding.TextMarshaler.
func (k KeyKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *KeyKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "string", "":
		*k = KeyString
	case "number":
		*k = KeyNumber
	default:
		return fmt.Errorf("dson: unknown key kind %q", b)
	}
	return nil
}
