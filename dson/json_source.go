package dson

import (
	"bytes"
	"errors"
	"io"

	j "github.com/goccy/go-json"
	"github.com/tidwall/jsonc"
)

// JSONTokenSource maps relaxed JSON (comments and trailing commas allowed)
// onto the native Dson token stream: keys and strings become TokenString,
// numbers, booleans and null become TokenUnquoted, and the separators the
// JSON decoder swallows are re-synthesized.
type JSONTokenSource struct {
	dec     *j.Decoder
	stack   []jsonFrame
	pending []Token
	done    bool
}

type jsonFrame struct {
	object       bool
	count        int
	expectingKey bool
}

// NewJSONTokenSource returns a token source over relaxed JSON data.
func NewJSONTokenSource(data []byte) *JSONTokenSource {
	dec := j.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	dec.UseNumber()
	return &JSONTokenSource{dec: dec}
}

// NewJSONReader returns a TextReader over relaxed JSON data.
func NewJSONReader(data []byte) *TextReader {
	return NewTextReader(NewJSONTokenSource(data))
}

func (s *JSONTokenSource) NextToken() (Token, error) {
	if len(s.pending) > 0 {
		tok := s.pending[0]
		s.pending = s.pending[1:]
		return tok, nil
	}
	if s.done {
		return Token{Type: TokenEOF, Pos: noPos}, nil
	}
	raw, err := s.dec.Token()
	if errors.Is(err, io.EOF) {
		s.done = true
		if len(s.stack) > 0 {
			return Token{}, errorAt(KindUnterminatedContainer, noPos, "JSON input ends inside a container")
		}
		return Token{Type: TokenEOF, Pos: noPos}, nil
	}
	if err != nil {
		s.done = true
		return Token{}, wrapError(KindUnexpectedToken, noPos, err, "invalid JSON")
	}
	switch v := raw.(type) {
	case j.Delim:
		switch v {
		case '{', '[':
			s.beginElement()
			s.stack = append(s.stack, jsonFrame{object: v == '{', expectingKey: v == '{'})
			if v == '{' {
				s.emit(Token{Type: TokenBeginObject, Value: "{"})
			} else {
				s.emit(Token{Type: TokenBeginArray, Value: "["})
			}
		case '}', ']':
			if n := len(s.stack); n > 0 {
				s.stack = s.stack[:n-1]
			}
			if v == '}' {
				s.emit(Token{Type: TokenEndObject, Value: "}"})
			} else {
				s.emit(Token{Type: TokenEndArray, Value: "]"})
			}
			s.endElement()
		}
	case string:
		if n := len(s.stack); n > 0 && s.stack[n-1].object && s.stack[n-1].expectingKey {
			s.beginElement()
			s.stack[n-1].expectingKey = false
			s.emit(Token{Type: TokenString, Value: v}, Token{Type: TokenColon, Value: ":"})
			break
		}
		s.scalar(Token{Type: TokenString, Value: v})
	case j.Number:
		s.scalar(Token{Type: TokenUnquoted, Value: string(v)})
	case bool:
		if v {
			s.scalar(Token{Type: TokenUnquoted, Value: "true"})
		} else {
			s.scalar(Token{Type: TokenUnquoted, Value: "false"})
		}
	case nil:
		s.scalar(Token{Type: TokenUnquoted, Value: "null"})
	default:
		return Token{}, errorAt(KindUnexpectedToken, noPos, "unsupported JSON token %T", raw)
	}
	return s.NextToken()
}

func (s *JSONTokenSource) emit(toks ...Token) {
	for _, t := range toks {
		t.Pos = noPos
		s.pending = append(s.pending, t)
	}
}

// beginElement emits the comma separating a new element from the previous
// one. Object values are not elements of their own; their key was.
func (s *JSONTokenSource) beginElement() {
	n := len(s.stack)
	if n == 0 {
		return
	}
	top := &s.stack[n-1]
	if top.object && !top.expectingKey {
		return
	}
	if top.count > 0 {
		s.emit(Token{Type: TokenComma, Value: ","})
	}
}

// endElement records that a value finished inside the enclosing container.
func (s *JSONTokenSource) endElement() {
	n := len(s.stack)
	if n == 0 {
		return
	}
	top := &s.stack[n-1]
	top.count++
	if top.object {
		top.expectingKey = true
	}
}

func (s *JSONTokenSource) scalar(tok Token) {
	s.beginElement()
	s.emit(tok)
	s.endElement()
}
