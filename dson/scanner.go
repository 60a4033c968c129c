package dson

import (
	"errors"
	"io"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"
)

// Scanner tokenizes Dson text read from a CharSource.
type Scanner struct {
	src     CharSource
	back    []scannedRune // pushback stack
	pos     Position      // position of the next rune
	newline bool          // line break seen since the last token
	err     error
}

type scannedRune struct {
	r   rune
	pos Position
}

const eof = rune(-1)

// NewScanner returns a scanner reading from src.
func NewScanner(src CharSource) *Scanner {
	return &Scanner{src: src, pos: Position{Line: 1, Column: 1}}
}

func (s *Scanner) read() (rune, error) {
	if n := len(s.back); n > 0 {
		c := s.back[n-1]
		s.back = s.back[:n-1]
		s.pos = advancePos(c.pos, c.r)
		return c.r, nil
	}
	r, _, err := s.src.ReadRune()
	if errors.Is(err, io.EOF) {
		return eof, nil
	}
	if err != nil {
		return eof, wrapError(KindUnexpectedToken, s.pos, err, "read input")
	}
	s.pos = advancePos(s.pos, r)
	return r, nil
}

// unread pushes r back; at is the position r was read from.
func (s *Scanner) unread(r rune, at Position) {
	if r == eof {
		return
	}
	s.back = append(s.back, scannedRune{r: r, pos: at})
	s.pos = at
}

func advancePos(p Position, r rune) Position {
	p.Offset += utf8.RuneLen(r)
	if r == '\n' {
		p.Line++
		p.Column = 1
	} else {
		p.Column++
	}
	return p
}

// isDelimiter reports runes that end an unquoted token.
func isDelimiter(r rune) bool {
	switch r {
	case '{', '}', '[', ']', ',', ':', '"':
		return true
	}
	return unicode.IsSpace(r)
}

// NextToken returns the next token. After an error every call returns the
// same error.
func (s *Scanner) NextToken() (Token, error) {
	if s.err != nil {
		return Token{}, s.err
	}
	var r rune
	var start Position
	for {
		start = s.pos
		var err error
		if r, err = s.read(); err != nil {
			s.err = err
			return Token{}, err
		}
		if r == '\n' {
			s.newline = true
			continue
		}
		if r == eof || !unicode.IsSpace(r) {
			break
		}
	}
	newline := s.newline
	s.newline = false
	tok, err := s.scan(r, start)
	if err != nil {
		s.err = err
		return Token{}, err
	}
	tok.NewlineBefore = newline
	return tok, nil
}

// scan produces the token starting with r.
func (s *Scanner) scan(r rune, start Position) (Token, error) {
	switch r {
	case eof:
		return Token{Type: TokenEOF, Pos: start}, nil
	case '{':
		return Token{Type: TokenBeginObject, Value: "{", Pos: start}, nil
	case '}':
		return Token{Type: TokenEndObject, Value: "}", Pos: start}, nil
	case '[':
		return Token{Type: TokenBeginArray, Value: "[", Pos: start}, nil
	case ']':
		return Token{Type: TokenEndArray, Value: "]", Pos: start}, nil
	case ':':
		return Token{Type: TokenColon, Value: ":", Pos: start}, nil
	case ',':
		return Token{Type: TokenComma, Value: ",", Pos: start}, nil
	case '"':
		return s.scanQuoted(start)
	case '@':
		return s.scanTag(start)
	}
	s.unread(r, start)
	text, err := s.scanBare()
	if err != nil {
		return Token{}, err
	}
	return Token{Type: TokenUnquoted, Value: text, Pos: start}, nil
}

// scanBare reads runes up to the next delimiter.
func (s *Scanner) scanBare() (string, error) {
	var sb strings.Builder
	for {
		at := s.pos
		r, err := s.read()
		if err != nil {
			return "", err
		}
		if r == eof || isDelimiter(r) {
			s.unread(r, at)
			return sb.String(), nil
		}
		sb.WriteRune(r)
	}
}

func (s *Scanner) scanTag(start Position) (Token, error) {
	name, err := s.scanBare()
	if err != nil {
		return Token{}, err
	}
	if name == "" {
		return Token{}, errorAt(KindUnexpectedToken, start, "'@' without a name")
	}
	if name == tagTextBlock {
		return s.scanTextBlock(start)
	}
	return Token{Type: TokenTag, Value: name, Pos: start}, nil
}

// scanQuoted scans a quoted string; the opening quote is consumed.
func (s *Scanner) scanQuoted(start Position) (Token, error) {
	var sb strings.Builder
	for {
		r, err := s.read()
		if err != nil {
			return Token{}, err
		}
		switch r {
		case eof:
			return Token{}, errorAt(KindUnexpectedToken, start, "unterminated string")
		case '"':
			return Token{Type: TokenString, Value: sb.String(), Pos: start}, nil
		case '\\':
			if err := s.scanEscape(&sb); err != nil {
				return Token{}, err
			}
		default:
			sb.WriteRune(r)
		}
	}
}

func (s *Scanner) scanEscape(sb *strings.Builder) error {
	at := s.pos
	r, err := s.read()
	if err != nil {
		return err
	}
	switch r {
	case 'n':
		sb.WriteByte('\n')
	case 'r':
		sb.WriteByte('\r')
	case 't':
		sb.WriteByte('\t')
	case 'b':
		sb.WriteByte('\b')
	case 'f':
		sb.WriteByte('\f')
	case '\\', '"', '/':
		sb.WriteRune(r)
	case 'u':
		cp, err := s.scanHex4(at)
		if err != nil {
			return err
		}
		if utf16.IsSurrogate(cp) {
			if low, ok := s.scanLowSurrogate(); ok {
				cp = utf16.DecodeRune(cp, low)
			} else {
				cp = unicode.ReplacementChar
			}
		}
		sb.WriteRune(cp)
	case eof:
		return errorAt(KindUnexpectedToken, at, "unterminated escape")
	default:
		return errorAt(KindUnexpectedToken, at, "invalid escape '\\%c'", r)
	}
	return nil
}

func (s *Scanner) scanHex4(at Position) (rune, error) {
	var buf [4]rune
	for i := range buf {
		r, err := s.read()
		if err != nil {
			return 0, err
		}
		buf[i] = r
	}
	v, err := strconv.ParseUint(string(buf[:]), 16, 32)
	if err != nil {
		return 0, wrapError(KindUnexpectedToken, at, err, "invalid \\u escape")
	}
	return rune(v), nil
}

// scanLowSurrogate consumes a following \uXXXX low surrogate if present.
func (s *Scanner) scanLowSurrogate() (rune, bool) {
	var seen []scannedRune
	restore := func() {
		for i := len(seen) - 1; i >= 0; i-- {
			s.unread(seen[i].r, seen[i].pos)
		}
	}
	for _, want := range []rune{'\\', 'u'} {
		p := s.pos
		r, err := s.read()
		seen = append(seen, scannedRune{r: r, pos: p})
		if err != nil || r != want {
			restore()
			return 0, false
		}
	}
	var hex [4]rune
	for i := range hex {
		p := s.pos
		r, err := s.read()
		seen = append(seen, scannedRune{r: r, pos: p})
		if err != nil {
			restore()
			return 0, false
		}
		hex[i] = r
	}
	v, err := strconv.ParseUint(string(hex[:]), 16, 32)
	if err != nil || v < 0xDC00 || v > 0xDFFF {
		restore()
		return 0, false
	}
	return rune(v), true
}

// readLine reads to the end of the line, reporting whether a line break
// (consumed) ended it.
func (s *Scanner) readLine() (string, bool, error) {
	var sb strings.Builder
	for {
		r, err := s.read()
		if err != nil {
			return "", false, err
		}
		switch r {
		case eof:
			return sb.String(), false, nil
		case '\n':
			return strings.TrimSuffix(sb.String(), "\r"), true, nil
		}
		sb.WriteRune(r)
	}
}

// scanTextBlock scans "@ss content" plus any "-> " / "-| " continuation
// lines. One space after each marker is part of the syntax.
func (s *Scanner) scanTextBlock(start Position) (Token, error) {
	at := s.pos
	r, err := s.read()
	if err != nil {
		return Token{}, err
	}
	switch r {
	case ' ':
	case '\n', eof:
		s.unread(r, at)
	default:
		return Token{}, errorAt(KindUnexpectedToken, start, "text block must be followed by a space or line break")
	}
	var sb strings.Builder
	line, more, err := s.readLine()
	if err != nil {
		return Token{}, err
	}
	sb.WriteString(line)
	for more {
		s.newline = true
		cont, err := s.continuation()
		if err != nil {
			return Token{}, err
		}
		if cont == 0 {
			break
		}
		if line, more, err = s.readLine(); err != nil {
			return Token{}, err
		}
		if cont == '|' {
			sb.WriteByte('\n')
		}
		sb.WriteString(line)
	}
	return Token{Type: TokenString, Value: sb.String(), Pos: start}, nil
}

// continuation consumes leading blanks and a "->" or "-|" marker with its
// optional space. It returns the marker's second rune, or 0 (consuming only
// blanks) when the line does not continue the block.
func (s *Scanner) continuation() (rune, error) {
	for {
		at := s.pos
		r, err := s.read()
		if err != nil {
			return 0, err
		}
		if r == ' ' || r == '\t' {
			continue
		}
		if r != '-' {
			s.unread(r, at)
			return 0, nil
		}
		at2 := s.pos
		r2, err := s.read()
		if err != nil {
			return 0, err
		}
		if r2 != '>' && r2 != '|' {
			s.unread(r2, at2)
			s.unread(r, at)
			return 0, nil
		}
		at3 := s.pos
		sp, err := s.read()
		if err != nil {
			return 0, err
		}
		if sp != ' ' {
			s.unread(sp, at3)
		}
		return r2, nil
	}
}
