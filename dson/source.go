package dson

import (
	"bufio"
	"io"
	"strings"
	"unicode/utf8"
)

// CharSource supplies runes to a Scanner. ReadRune returns io.EOF at the end
// of input.
type CharSource interface {
	io.RuneReader
}

// StringSource reads runes from one string.
type StringSource struct {
	r *strings.Reader
}

// NewStringSource returns a source over s.
func NewStringSource(s string) *StringSource {
	return &StringSource{r: strings.NewReader(s)}
}

func (s *StringSource) ReadRune() (rune, int, error) {
	return s.r.ReadRune()
}

// LinesSource reads pre-split lines as if they had been joined with '\n'.
type LinesSource struct {
	lines []string
	line  int
	off   int
}

// NewLinesSource returns a source over lines. The lines must not contain
// line breaks themselves.
func NewLinesSource(lines []string) *LinesSource {
	return &LinesSource{lines: lines}
}

func (s *LinesSource) ReadRune() (rune, int, error) {
	for s.line < len(s.lines) {
		cur := s.lines[s.line]
		if s.off < len(cur) {
			r, size := utf8.DecodeRuneInString(cur[s.off:])
			s.off += size
			return r, size, nil
		}
		if s.line+1 >= len(s.lines) {
			break
		}
		s.line++
		s.off = 0
		return '\n', 1, nil
	}
	return 0, 0, io.EOF
}

// ReaderSource reads runes from a buffered io.Reader.
type ReaderSource struct {
	r *bufio.Reader
}

// NewReaderSource returns a source over r.
func NewReaderSource(r io.Reader) *ReaderSource {
	if br, ok := r.(*bufio.Reader); ok {
		return &ReaderSource{r: br}
	}
	return &ReaderSource{r: bufio.NewReader(r)}
}

func (s *ReaderSource) ReadRune() (rune, int, error) {
	return s.r.ReadRune()
}
