package dson

import (
	"fmt"
)

// Kind classifies a Dson error.
type Kind uint8

const (
	KindUnexpectedToken Kind = iota + 1
	KindUnterminatedContainer
	KindTypeMismatch
	KindUnknownType
	KindDuplicateKey
	KindUnregisteredType
	KindContextError
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindUnexpectedToken:
		return "unexpected token"
	case KindUnterminatedContainer:
		return "unterminated container"
	case KindTypeMismatch:
		return "type mismatch"
	case KindUnknownType:
		return "unknown type"
	case KindDuplicateKey:
		return "duplicate key"
	case KindUnregisteredType:
		return "unregistered type"
	case KindContextError:
		return "context error"
	default:
		return "error"
	}
}

// Position is a location in the input. Text positions carry a 1-based line
// and column; binary positions only carry the byte offset. Offset is -1 when
// unknown.
type Position struct {
	Line   int
	Column int
	Offset int
}

var noPos = Position{Offset: -1}

// String returns "line:column" for text positions and "offset N" otherwise.
func (p Position) String() string {
	if p.Line > 0 {
		return fmt.Sprintf("%d:%d", p.Line, p.Column)
	}
	return fmt.Sprintf("offset %d", p.Offset)
}

// Error is returned by every reader, writer and registry operation that
// fails on malformed input or misuse.
type Error struct {
	Kind    Kind
	Message string
	Pos     Position
	Err     error
}

func (e *Error) Error() string {
	msg := "dson: " + e.Kind.String()
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Pos.Offset >= 0 || e.Pos.Line > 0 {
		msg += " at " + e.Pos.String()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinel errors of the same kind, so
// errors.Is(err, ErrDuplicateKey) works for any duplicate-key failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// Sentinels for errors.Is.
var (
	ErrUnexpectedToken       = &Error{Kind: KindUnexpectedToken, Pos: noPos}
	ErrUnterminatedContainer = &Error{Kind: KindUnterminatedContainer, Pos: noPos}
	ErrTypeMismatch          = &Error{Kind: KindTypeMismatch, Pos: noPos}
	ErrUnknownType           = &Error{Kind: KindUnknownType, Pos: noPos}
	ErrDuplicateKey          = &Error{Kind: KindDuplicateKey, Pos: noPos}
	ErrUnregisteredType      = &Error{Kind: KindUnregisteredType, Pos: noPos}
	ErrContextError          = &Error{Kind: KindContextError, Pos: noPos}
)

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Pos: noPos}
}

func errorAt(kind Kind, pos Position, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Pos: pos}
}

func wrapError(kind Kind, pos Position, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Pos: pos, Err: err}
}
