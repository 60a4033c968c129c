package dson

import (
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"
)

// TextWriter renders values as Dson text.
type TextWriter struct {
	baseWriter[string]
	enc *textEncoder
}

// NewTextWriter returns a writer emitting to out. out may be nil, in which
// case the text is retrieved with String.
func NewTextWriter(out io.Writer, settings TextSettings) *TextWriter {
	enc := &textEncoder{out: out, buf: getPooledBuffer(), settings: settings}
	return &TextWriter{baseWriter: newBaseWriter[string](enc), enc: enc}
}

// String returns the text written and not yet flushed.
func (w *TextWriter) String() string {
	if w.enc.buf == nil {
		return ""
	}
	return string(*w.enc.buf)
}

type textEncoder struct {
	out      io.Writer
	buf      *[]byte
	settings TextSettings
	col      int // runes since the last line break
	sb       strings.Builder
}

func (e *textEncoder) format() Format {
	return FormatText
}

func (e *textEncoder) write(s string) {
	*e.buf = append(*e.buf, s...)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		e.col = utf8.RuneCountInString(s[i+1:])
	} else {
		e.col += utf8.RuneCountInString(s)
	}
}

func (e *textEncoder) newline(depth int) {
	e.write("\n")
	e.indent(depth)
}

func (e *textEncoder) indent(depth int) {
	if n := depth * e.settings.Indent; n > 0 {
		e.write(strings.Repeat(" ", n))
	}
}

// beforeElement writes the separator and line layout preceding an element
// of ctx, then the key for object elements.
func (e *textEncoder) beforeElement(ctx *context[string], name string) {
	afterText := ctx.afterText
	ctx.afterText = false
	switch {
	case ctx.typ == ContextTopLevel:
		if ctx.count > 0 && !afterText {
			e.write("\n")
		}
	case e.settings.Pretty:
		if afterText {
			e.indent(ctx.depth)
		} else {
			if ctx.count > 0 {
				e.write(",")
			}
			e.newline(ctx.depth)
		}
	case afterText:
		e.indent(ctx.depth)
	case ctx.count > 0:
		e.write(",")
		if soft := e.settings.SoftLineLength; soft > 0 && e.col >= soft {
			e.newline(ctx.depth)
		} else {
			e.write(" ")
		}
	case !ctx.header.IsZero():
		e.write(" ")
	}
	if ctx.typ == ContextObject {
		e.writeKey(name)
		e.write(": ")
	}
}

func (e *textEncoder) writeKey(key string) {
	if isBareSafe(key) && (!e.settings.UnicodeEscape || isASCII(key)) {
		e.write(key)
		return
	}
	e.writeQuoted(key)
}

func (e *textEncoder) writeQuoted(s string) {
	e.sb.Reset()
	quote(&e.sb, s, e.settings.UnicodeEscape)
	e.write(e.sb.String())
}

// writeBare writes s unquoted when it scans back as one token, quoted
// otherwise. Used where the reader takes the token text verbatim.
func (e *textEncoder) writeBare(s string) {
	e.writeKey(s)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func (e *textEncoder) writeScalar(ctx *context[string], name string, v Value, style StringStyle) error {
	e.beforeElement(ctx, name)
	switch x := v.(type) {
	case Int32:
		e.write(strconv.FormatInt(int64(x), 10))
	case Int64:
		e.write("@L " + strconv.FormatInt(int64(x), 10))
	case Float32:
		e.write("@f " + formatFloat(float64(x), 32))
	case Float64:
		e.write(formatFloat(float64(x), 64))
	case Bool:
		e.write(strconv.FormatBool(bool(x)))
	case Null:
		e.write("null")
	case String:
		if style == StyleAuto {
			style = e.settings.StringStyle
		}
		ctx.afterText = e.writeString(string(x), style, ctx.depth)
	case Binary:
		data := strings.ToUpper(hex.EncodeToString(x.Data))
		if data == "" {
			data = `""`
		}
		e.write(fmt.Sprintf("[@bin %d, %s]", x.Subtype, data))
	case ExtInt32:
		e.write(fmt.Sprintf("[@ei %d, %d]", x.Subtype, x.Value))
	case ExtInt64:
		e.write(fmt.Sprintf("[@eL %d, %d]", x.Subtype, x.Value))
	case ExtString:
		e.write(fmt.Sprintf("[@es %d, ", x.Subtype))
		e.writeBare(x.Value)
		e.write("]")
	case Reference:
		if x.Namespace == "" && isBareSafe(x.LocalID) && (!e.settings.UnicodeEscape || isASCII(x.LocalID)) {
			e.write("@ref " + x.LocalID)
			break
		}
		e.write("{@ref localId: ")
		e.writeBare(x.LocalID)
		if x.Namespace != "" {
			e.write(", namespace: ")
			e.writeBare(x.Namespace)
		}
		e.write("}")
	default:
		return newError(KindTypeMismatch, "cannot write %T as a scalar", v)
	}
	return nil
}

// writeString renders s in the given style and reports whether it ended
// with a text block, which leaves the output at the start of a new line.
func (e *textEncoder) writeString(s string, style StringStyle, depth int) bool {
	asciiOK := !e.settings.UnicodeEscape || isASCII(s)
	switch style {
	case StyleQuote:
	case StyleText:
		if asciiOK && !strings.ContainsRune(s, '\r') {
			e.writeTextBlock(s, depth)
			return true
		}
	default:
		if canUnquote(s) && asciiOK {
			e.write(s)
			return false
		}
		soft := e.settings.SoftLineLength
		if soft > 0 && utf8.RuneCountInString(s) > soft && asciiOK && !strings.ContainsRune(s, '\r') {
			e.writeTextBlock(s, depth)
			return true
		}
	}
	e.writeQuoted(s)
	return false
}

// writeTextBlock writes s as "@ss" followed by "-|" lines for embedded line
// breaks and "->" lines for wrapped chunks of long lines.
func (e *textEncoder) writeTextBlock(s string, depth int) {
	width := e.settings.SoftLineLength - depth*e.settings.Indent - 3
	if width < 16 {
		width = 16
	}
	if e.settings.SoftLineLength <= 0 {
		width = 0
	}
	e.write("@ss ")
	for i, line := range strings.Split(s, "\n") {
		if i > 0 {
			e.newline(depth + 1)
			e.write("-| ")
		}
		for j, chunk := range chunkRunes(line, width) {
			if j > 0 {
				e.newline(depth + 1)
				e.write("-> ")
			}
			e.write(chunk)
		}
	}
	e.write("\n")
}

// chunkRunes splits s into pieces of at most width runes. width 0 means no
// splitting; an empty s yields one empty chunk.
func chunkRunes(s string, width int) []string {
	if width <= 0 || utf8.RuneCountInString(s) <= width {
		return []string{s}
	}
	var chunks []string
	for len(s) > 0 {
		n, i := 0, 0
		for i < len(s) && n < width {
			_, size := utf8.DecodeRuneInString(s[i:])
			i += size
			n++
		}
		chunks = append(chunks, s[:i])
		s = s[i:]
	}
	return chunks
}

func validTextHeader(h Header) error {
	if h.Alias != "" && (!isBareSafe(h.Alias) || IsReservedTag(h.Alias) || strings.ContainsRune(h.Alias, '#')) {
		return newError(KindContextError, "alias %q cannot be written as a text header", h.Alias)
	}
	return nil
}

func (e *textEncoder) writeStart(ctx *context[string], name string, dt DsonType, h Header) error {
	if err := validTextHeader(h); err != nil {
		return err
	}
	e.beforeElement(ctx, name)
	if dt == TypeArray {
		e.write("[")
	} else {
		e.write("{")
	}
	if !h.IsZero() {
		e.write("@" + h.String())
	}
	return nil
}

func (e *textEncoder) writeEnd(ctx *context[string], dt DsonType) error {
	switch {
	case ctx.afterText:
		e.indent(ctx.depth - 1)
	case e.settings.Pretty && ctx.count > 0:
		e.newline(ctx.depth - 1)
	}
	if dt == TypeArray {
		e.write("]")
	} else {
		e.write("}")
	}
	return nil
}

func (e *textEncoder) writeRaw(ctx *context[string], name string, raw *RawValue) error {
	v, err := raw.Value()
	if err != nil {
		return err
	}
	return e.writeValue(ctx, name, StringKeys(v))
}

// writeValue renders a complete value without the writer state machine.
// The caller accounts for the element in ctx.count.
func (e *textEncoder) writeValue(ctx *context[string], name string, v Value) error {
	switch x := v.(type) {
	case *Object[string]:
		if err := e.writeStart(ctx, name, TypeObject, x.Header); err != nil {
			return err
		}
		child := newContext(ctx, ContextObject, stateName, x.Header)
		for _, k := range x.keys {
			if err := e.writeValue(child, k, x.values[k]); err != nil {
				return err
			}
			child.count++
		}
		return e.writeEnd(child, TypeObject)
	case *Object[FieldNumber]:
		return e.writeValue(ctx, name, StringKeys(x))
	case *Array:
		if err := e.writeStart(ctx, name, TypeArray, x.Header); err != nil {
			return err
		}
		child := newContext(ctx, ContextArray, stateValue, x.Header)
		for _, item := range x.Items {
			if err := e.writeValue(child, "", item); err != nil {
				return err
			}
			child.count++
		}
		return e.writeEnd(child, TypeArray)
	case *RawValue:
		return e.writeRaw(ctx, name, x)
	case nil:
		return e.writeScalar(ctx, name, Null{}, StyleAuto)
	default:
		return e.writeScalar(ctx, name, v, StyleAuto)
	}
}

func (e *textEncoder) flush() error {
	if e.out == nil || e.buf == nil || len(*e.buf) == 0 {
		return nil
	}
	if _, err := e.out.Write(*e.buf); err != nil {
		return fmt.Errorf("dson: flush: %w", err)
	}
	*e.buf = (*e.buf)[:0]
	return nil
}

func (e *textEncoder) close() error {
	if e.buf != nil {
		putPooledBuffer(e.buf)
		e.buf = nil
	}
	return nil
}
