package dson

import (
	"fmt"
)

// TokenType represents the type of a scanner token.
type TokenType uint8

const (
	TokenEOF TokenType = iota

	// Structural
	TokenBeginObject // {
	TokenEndObject   // }
	TokenBeginArray  // [
	TokenEndArray    // ]
	TokenColon       // :
	TokenComma       // ,

	// Scalars
	TokenString   // "quoted" or @ss text block; never type-inferred
	TokenUnquoted // bare text, typed by inference
	TokenTag      // @name: type prefix, special form or header
)

// String returns the token type name.
func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "EOF"
	case TokenBeginObject:
		return "{"
	case TokenEndObject:
		return "}"
	case TokenBeginArray:
		return "["
	case TokenEndArray:
		return "]"
	case TokenColon:
		return ":"
	case TokenComma:
		return ","
	case TokenString:
		return "STRING"
	case TokenUnquoted:
		return "UNQUOTED"
	case TokenTag:
		return "TAG"
	default:
		return "UNKNOWN"
	}
}

// Token represents a scanner token. NewlineBefore records whether a line
// break separated it from the previous token; a line break is a valid
// element separator.
type Token struct {
	Type          TokenType
	Value         string
	Pos           Position
	NewlineBefore bool
}

// String returns a debug representation of the token.
func (t Token) String() string {
	if t.Value == "" {
		return t.Type.String()
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Value)
}

// Equal compares type and value only.
func (t Token) Equal(o Token) bool {
	return t.Type == o.Type && t.Value == o.Value
}

// TokenSource produces tokens until TokenEOF.
type TokenSource interface {
	NextToken() (Token, error)
}

// Tokenize drains a token source, including the final EOF token.
func Tokenize(src TokenSource) ([]Token, error) {
	var tokens []Token
	for {
		tok, err := src.NextToken()
		if err != nil {
			return tokens, err
		}
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens, nil
		}
	}
}

// Reserved tag names. Container headers may not use them as aliases.
const (
	tagInt32     = "i"
	tagInt64     = "L"
	tagFloat32   = "f"
	tagFloat64   = "d"
	tagBool      = "b"
	tagString    = "s"
	tagNull      = "N"
	tagTextBlock = "ss"
	tagBinary    = "bin"
	tagExtInt32  = "ei"
	tagExtInt64  = "eL"
	tagExtString = "es"
	tagReference = "ref"
)

// IsReservedTag reports whether name has a built-in meaning after '@'.
func IsReservedTag(name string) bool {
	switch name {
	case tagInt32, tagInt64, tagFloat32, tagFloat64, tagBool, tagString, tagNull,
		tagTextBlock, tagBinary, tagExtInt32, tagExtInt64, tagExtString, tagReference:
		return true
	default:
		return false
	}
}
