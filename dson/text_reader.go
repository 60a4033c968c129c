package dson

import (
	"encoding/hex"
	"io"
)

// TextReader reads Dson text. Keys are always strings.
type TextReader struct {
	baseReader[string]
	dec *textDecoder
}

// NewTextReader returns a reader consuming tokens from src, which is usually
// a *Scanner or a *JSONTokenSource.
func NewTextReader(src TokenSource) *TextReader {
	dec := &textDecoder{src: src}
	return &TextReader{baseReader: newBaseReader[string](dec), dec: dec}
}

// NewTextReaderFrom is shorthand for a reader over a Scanner over r.
func NewTextReaderFrom(r io.Reader) *TextReader {
	return NewTextReader(NewScanner(NewReaderSource(r)))
}

// textDecoder parses the token stream. Scalars, including the bracketed
// special forms, are decoded completely when their type is read; containers
// are entered by consuming the opening bracket and optional header.
type textDecoder struct {
	src    TokenSource
	ahead  []Token
	mark   []Token
	marked bool
	last   Token
	cur    Value
	header Header
}

func (d *textDecoder) format() Format {
	return FormatText
}

func (d *textDecoder) position() Position {
	return d.last.Pos
}

func (d *textDecoder) next() (Token, error) {
	var tok Token
	if len(d.ahead) > 0 {
		tok = d.ahead[0]
		d.ahead = d.ahead[1:]
	} else {
		var err error
		if tok, err = d.src.NextToken(); err != nil {
			return Token{}, err
		}
	}
	if d.marked {
		d.mark = append(d.mark, tok)
	}
	d.last = tok
	return tok, nil
}

func (d *textDecoder) peek() (Token, error) {
	if len(d.ahead) == 0 {
		tok, err := d.src.NextToken()
		if err != nil {
			return Token{}, err
		}
		d.ahead = append(d.ahead, tok)
	}
	return d.ahead[0], nil
}

func (d *textDecoder) unexpected(tok Token, want string) error {
	if tok.Type == TokenEOF {
		return errorAt(KindUnterminatedContainer, tok.Pos, "input ends where %s was expected", want)
	}
	return errorAt(KindUnexpectedToken, tok.Pos, "expected %s, found %s", want, tok)
}

// elementStart consumes the separator before an element of a container and
// returns the element's first token. end is true when the container closes.
func (d *textDecoder) elementStart(count int, closing TokenType) (Token, bool, error) {
	tok, err := d.next()
	if err != nil {
		return Token{}, false, err
	}
	if tok.Type == closing {
		return tok, true, nil
	}
	if count > 0 {
		switch {
		case tok.Type == TokenComma:
			if tok, err = d.next(); err != nil {
				return Token{}, false, err
			}
			if tok.Type == closing || tok.Type == TokenComma {
				return Token{}, false, errorAt(KindUnexpectedToken, tok.Pos, "trailing comma before %s", tok)
			}
		case !tok.NewlineBefore:
			return Token{}, false, d.unexpected(tok, "',' or line break")
		}
	}
	switch tok.Type {
	case TokenEOF:
		return Token{}, false, d.unexpected(tok, closing.String())
	case TokenComma:
		return Token{}, false, errorAt(KindUnexpectedToken, tok.Pos, "unexpected ','")
	case TokenEndObject, TokenEndArray:
		return Token{}, false, d.unexpected(tok, closing.String())
	}
	return tok, false, nil
}

// readKey reads "key :" with tok as the key token.
func (d *textDecoder) readKey(tok Token) (string, error) {
	if tok.Type != TokenString && tok.Type != TokenUnquoted {
		return "", d.unexpected(tok, "key")
	}
	colon, err := d.next()
	if err != nil {
		return "", err
	}
	if colon.Type != TokenColon {
		return "", d.unexpected(colon, "':'")
	}
	return tok.Value, nil
}

func (d *textDecoder) readType(ctx *context[string]) (DsonType, string, error) {
	switch ctx.typ {
	case ContextTopLevel:
		tok, err := d.next()
		if err != nil {
			return TypeEnd, "", err
		}
		if tok.Type == TokenEOF {
			return TypeEnd, "", nil
		}
		dt, err := d.valueHead(tok)
		return dt, "", err
	case ContextObject:
		tok, end, err := d.elementStart(ctx.count, TokenEndObject)
		if err != nil || end {
			return TypeEnd, "", err
		}
		key, err := d.readKey(tok)
		if err != nil {
			return TypeEnd, "", err
		}
		vt, err := d.next()
		if err != nil {
			return TypeEnd, "", err
		}
		dt, err := d.valueHead(vt)
		return dt, key, err
	default:
		tok, end, err := d.elementStart(ctx.count, TokenEndArray)
		if err != nil || end {
			return TypeEnd, "", err
		}
		dt, err := d.valueHead(tok)
		return dt, "", err
	}
}

func (d *textDecoder) peekType(ctx *context[string]) (DsonType, error) {
	cur, header := d.cur, d.header
	d.marked, d.mark = true, d.mark[:0]
	dt, _, err := d.readType(ctx)
	d.ahead = append(append([]Token(nil), d.mark...), d.ahead...)
	d.marked = false
	d.cur, d.header = cur, header
	return dt, err
}

// valueHead classifies the value starting at tok. Scalars are decoded into
// d.cur; for containers the header, if any, is consumed into d.header.
func (d *textDecoder) valueHead(tok Token) (DsonType, error) {
	d.cur, d.header = nil, Header{}
	switch tok.Type {
	case TokenString:
		d.cur = String(tok.Value)
		return TypeString, nil
	case TokenUnquoted:
		v, err := inferUnquoted(tok.Value)
		if err != nil {
			return TypeEnd, positioned(err, tok.Pos)
		}
		d.cur = v
		return v.DsonType(), nil
	case TokenTag:
		return d.prefixed(tok)
	case TokenBeginObject:
		return d.objectHead()
	case TokenBeginArray:
		return d.arrayHead()
	default:
		return TypeEnd, d.unexpected(tok, "value")
	}
}

// positioned attaches pos to a Dson error that lacks one.
func positioned(err error, pos Position) error {
	if e, ok := err.(*Error); ok && e.Pos.Offset < 0 && e.Pos.Line == 0 {
		c := *e
		c.Pos = pos
		return &c
	}
	return err
}

// operand reads the token following a type prefix or inside a special form.
func (d *textDecoder) operand(what string) (Token, error) {
	tok, err := d.next()
	if err != nil {
		return Token{}, err
	}
	if tok.Type != TokenUnquoted && tok.Type != TokenString {
		return Token{}, d.unexpected(tok, what)
	}
	return tok, nil
}

// prefixed decodes "@i 1", "@s text", "@ref id" and the like.
func (d *textDecoder) prefixed(tag Token) (DsonType, error) {
	if !IsReservedTag(tag.Value) || tag.Value == tagBinary || tag.Value == tagExtInt32 ||
		tag.Value == tagExtInt64 || tag.Value == tagExtString {
		return TypeEnd, errorAt(KindUnexpectedToken, tag.Pos, "@%s is not a value prefix", tag.Value)
	}
	tok, err := d.operand("operand of @" + tag.Value)
	if err != nil {
		return TypeEnd, err
	}
	text := tok.Value
	switch tag.Value {
	case tagInt32:
		n, err := parseIntLiteral(text, 32)
		if err != nil {
			return TypeEnd, positioned(err, tok.Pos)
		}
		d.cur = Int32(n)
	case tagInt64:
		n, err := parseIntLiteral(text, 64)
		if err != nil {
			return TypeEnd, positioned(err, tok.Pos)
		}
		d.cur = Int64(n)
	case tagFloat32:
		f, err := parseFloatLiteral(text, 32)
		if err != nil {
			return TypeEnd, positioned(err, tok.Pos)
		}
		d.cur = Float32(f)
	case tagFloat64:
		f, err := parseFloatLiteral(text, 64)
		if err != nil {
			return TypeEnd, positioned(err, tok.Pos)
		}
		d.cur = Float64(f)
	case tagBool:
		switch text {
		case "true":
			d.cur = Bool(true)
		case "false":
			d.cur = Bool(false)
		default:
			return TypeEnd, errorAt(KindUnexpectedToken, tok.Pos, "invalid bool %q", text)
		}
	case tagString:
		d.cur = String(text)
	case tagNull:
		if text != "null" {
			return TypeEnd, errorAt(KindUnexpectedToken, tok.Pos, "invalid null %q", text)
		}
		d.cur = Null{}
	case tagReference:
		d.cur = Reference{LocalID: text}
	default:
		return TypeEnd, errorAt(KindUnexpectedToken, tag.Pos, "@%s is not a value prefix", tag.Value)
	}
	return d.cur.DsonType(), nil
}

// containerHeader consumes "@Alias", "@Alias#ns.lid" or "@#ns.lid" after an opening
// bracket when present. Tags rejected by accept are left for the first element.
func (d *textDecoder) containerHeader(accept func(tag string) bool) (Token, bool, error) {
	tok, err := d.peek()
	if err != nil {
		return Token{}, false, err
	}
	if tok.Type != TokenTag || !accept(tok.Value) {
		return tok, false, nil
	}
	if _, err := d.next(); err != nil {
		return Token{}, false, err
	}
	return tok, true, nil
}

func anyTag(string) bool { return true }

// arrayTag reports whether tag opens an array: a header or one of the
// bracketed special forms. Scalar prefixes such as @L belong to the first
// element.
func arrayTag(tag string) bool {
	switch tag {
	case tagBinary, tagExtInt32, tagExtInt64, tagExtString:
		return true
	}
	return !IsReservedTag(tag)
}

func (d *textDecoder) objectHead() (DsonType, error) {
	tag, ok, err := d.containerHeader(anyTag)
	if err != nil || !ok {
		return TypeObject, err
	}
	if tag.Value == tagReference {
		ref, err := d.referenceBody()
		if err != nil {
			return TypeEnd, err
		}
		d.cur = ref
		return TypeReference, nil
	}
	if IsReservedTag(tag.Value) {
		return TypeEnd, errorAt(KindUnexpectedToken, tag.Pos, "@%s cannot start an object", tag.Value)
	}
	h, err := parseHeader(tag.Value)
	if err != nil {
		return TypeEnd, wrapError(KindUnexpectedToken, tag.Pos, err, "invalid header @%s", tag.Value)
	}
	d.header = h
	return TypeObject, nil
}

func (d *textDecoder) arrayHead() (DsonType, error) {
	tag, ok, err := d.containerHeader(arrayTag)
	if err != nil || !ok {
		return TypeArray, err
	}
	switch tag.Value {
	case tagBinary, tagExtInt32, tagExtInt64, tagExtString:
		v, err := d.extendedBody(tag)
		if err != nil {
			return TypeEnd, err
		}
		d.cur = v
		return v.DsonType(), nil
	}
	h, err := parseHeader(tag.Value)
	if err != nil {
		return TypeEnd, wrapError(KindUnexpectedToken, tag.Pos, err, "invalid header @%s", tag.Value)
	}
	d.header = h
	return TypeArray, nil
}

// referenceBody parses "localId: x, namespace: y}" after "{@ref".
func (d *textDecoder) referenceBody() (Reference, error) {
	var ref Reference
	seen := map[string]bool{}
	for count := 0; ; count++ {
		tok, end, err := d.elementStart(count, TokenEndObject)
		if err != nil {
			return Reference{}, err
		}
		if end {
			break
		}
		key, err := d.readKey(tok)
		if err != nil {
			return Reference{}, err
		}
		if seen[key] {
			return Reference{}, errorAt(KindDuplicateKey, tok.Pos, "duplicate key %q", key)
		}
		seen[key] = true
		val, err := d.operand("reference field value")
		if err != nil {
			return Reference{}, err
		}
		switch key {
		case "localId":
			ref.LocalID = val.Value
		case "namespace":
			ref.Namespace = val.Value
		default:
			return Reference{}, errorAt(KindUnexpectedToken, tok.Pos, "unknown reference field %q", key)
		}
	}
	if !seen["localId"] {
		return Reference{}, errorAt(KindUnexpectedToken, d.last.Pos, "reference without localId")
	}
	return ref, nil
}

// extendedBody parses "subtype, value]" after "[@bin", "[@ei", "[@eL" or
// "[@es".
func (d *textDecoder) extendedBody(tag Token) (Value, error) {
	st, err := d.operand("subtype")
	if err != nil {
		return nil, err
	}
	bits := 32
	if tag.Value == tagBinary {
		bits = 16
	}
	subtype, err := parseIntLiteral(st.Value, bits)
	if err != nil {
		return nil, positioned(err, st.Pos)
	}
	if tag.Value == tagBinary && (subtype < 0 || subtype > 255) {
		return nil, errorAt(KindUnexpectedToken, st.Pos, "binary subtype %d out of range", subtype)
	}
	tok, _, err := d.elementStart(1, TokenEndArray)
	if err != nil {
		return nil, err
	}
	if tok.Type == TokenEndArray {
		return nil, d.unexpected(tok, "value")
	}
	if tok.Type != TokenUnquoted && tok.Type != TokenString {
		return nil, d.unexpected(tok, "value")
	}
	var v Value
	switch tag.Value {
	case tagBinary:
		data, err := hex.DecodeString(tok.Value)
		if err != nil {
			return nil, wrapError(KindUnexpectedToken, tok.Pos, err, "invalid hex")
		}
		v = Binary{Subtype: uint8(subtype), Data: data}
	case tagExtInt32:
		n, err := parseIntLiteral(tok.Value, 32)
		if err != nil {
			return nil, positioned(err, tok.Pos)
		}
		v = ExtInt32{Subtype: int32(subtype), Value: int32(n)}
	case tagExtInt64:
		n, err := parseIntLiteral(tok.Value, 64)
		if err != nil {
			return nil, positioned(err, tok.Pos)
		}
		v = ExtInt64{Subtype: int32(subtype), Value: n}
	default:
		v = ExtString{Subtype: int32(subtype), Value: tok.Value}
	}
	closing, err := d.next()
	if err != nil {
		return nil, err
	}
	if closing.Type != TokenEndArray {
		return nil, d.unexpected(closing, "']'")
	}
	return v, nil
}

func (d *textDecoder) readScalar(_ DsonType) (Value, error) {
	return d.cur, nil
}

func (d *textDecoder) readHeader(_ DsonType) (Header, error) {
	return d.header, nil
}

// body parses the rest of a container whose head has been consumed. budget
// counts the container levels still allowed, this one included.
func (d *textDecoder) body(dt DsonType, h Header, budget int) (Value, error) {
	if budget < 1 {
		return nil, errorAt(KindUnexpectedToken, d.last.Pos, "nesting too deep")
	}
	if dt == TypeArray {
		arr := NewArray(h)
		for {
			tok, end, err := d.elementStart(len(arr.Items), TokenEndArray)
			if err != nil {
				return nil, err
			}
			if end {
				return arr, nil
			}
			v, err := d.value(tok, budget-1)
			if err != nil {
				return nil, err
			}
			arr.Items = append(arr.Items, v)
		}
	}
	obj := NewObject[string](h)
	for {
		tok, end, err := d.elementStart(obj.Len(), TokenEndObject)
		if err != nil {
			return nil, err
		}
		if end {
			return obj, nil
		}
		key, err := d.readKey(tok)
		if err != nil {
			return nil, err
		}
		vt, err := d.next()
		if err != nil {
			return nil, err
		}
		v, err := d.value(vt, budget-1)
		if err != nil {
			return nil, err
		}
		if err := obj.Put(key, v); err != nil {
			return nil, positioned(err, tok.Pos)
		}
	}
}

// value parses one complete value starting at tok.
func (d *textDecoder) value(tok Token, budget int) (Value, error) {
	dt, err := d.valueHead(tok)
	if err != nil {
		return nil, err
	}
	if dt == TypeObject || dt == TypeArray {
		return d.body(dt, d.header, budget)
	}
	return d.cur, nil
}

func (d *textDecoder) skipValue(dt DsonType, budget int) error {
	if !dt.IsContainer() {
		return nil
	}
	_, err := d.body(dt, d.header, budget)
	return err
}

func (d *textDecoder) readRaw(dt DsonType, budget int) (*RawValue, error) {
	v := d.cur
	if dt.IsContainer() {
		var err error
		if v, err = d.body(dt, d.header, budget); err != nil {
			return nil, err
		}
	}
	return NewRawValue[string](v)
}

func (d *textDecoder) close() error {
	d.ahead, d.mark, d.cur = nil, nil, nil
	if c, ok := d.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

