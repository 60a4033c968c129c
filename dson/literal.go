package dson

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// inferUnquoted types an unquoted scalar. Text that starts like a number must
// parse as one.
func inferUnquoted(s string) (Value, error) {
	switch s {
	case "true":
		return Bool(true), nil
	case "false":
		return Bool(false), nil
	case "null":
		return Null{}, nil
	case "NaN":
		return Float64(math.NaN()), nil
	case "Infinity", "+Infinity":
		return Float64(math.Inf(1)), nil
	case "-Infinity":
		return Float64(math.Inf(-1)), nil
	}
	if !looksNumeric(s) {
		return String(s), nil
	}
	if isIntegerLiteral(s) {
		n, err := parseIntLiteral(s, 64)
		if err != nil {
			return nil, err
		}
		if n >= math.MinInt32 && n <= math.MaxInt32 {
			return Int32(n), nil
		}
		return Int64(n), nil
	}
	f, err := parseFloatLiteral(s, 64)
	if err != nil {
		return nil, err
	}
	return Float64(f), nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// looksNumeric reports text starting with an optional sign followed by a
// digit or by '.' and a digit.
func looksNumeric(s string) bool {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	if i >= len(s) {
		return false
	}
	if isDigit(s[i]) {
		return true
	}
	return s[i] == '.' && i+1 < len(s) && isDigit(s[i+1])
}

func isHexLiteral(s string) bool {
	s = strings.TrimLeft(s, "+-")
	return len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

func isIntegerLiteral(s string) bool {
	return isHexLiteral(s) || !strings.ContainsAny(s, ".eE")
}

// parseIntLiteral parses decimal or 0x-prefixed hex integers with an
// optional sign.
func parseIntLiteral(s string, bits int) (int64, error) {
	if !isHexLiteral(s) {
		n, err := strconv.ParseInt(s, 10, bits)
		if err != nil {
			return 0, wrapError(KindUnexpectedToken, noPos, err, "invalid integer %q", s)
		}
		return n, nil
	}
	neg := s[0] == '-'
	digits := strings.TrimLeft(s, "+-")[2:]
	u, err := strconv.ParseUint(digits, 16, bits)
	if err != nil {
		return 0, wrapError(KindUnexpectedToken, noPos, err, "invalid integer %q", s)
	}
	limit := uint64(1) << (bits - 1)
	if neg {
		if u > limit {
			return 0, newError(KindUnexpectedToken, "integer %q out of range", s)
		}
		return -int64(u), nil
	}
	if u >= limit {
		return 0, newError(KindUnexpectedToken, "integer %q out of range", s)
	}
	return int64(u), nil
}

func parseFloatLiteral(s string, bits int) (float64, error) {
	switch s {
	case "NaN":
		return math.NaN(), nil
	case "Infinity", "+Infinity":
		return math.Inf(1), nil
	case "-Infinity":
		return math.Inf(-1), nil
	}
	if !looksNumeric(s) || strings.ContainsAny(s, "_xXpP") {
		return 0, newError(KindUnexpectedToken, "invalid number %q", s)
	}
	f, err := strconv.ParseFloat(s, bits)
	if err != nil {
		return 0, wrapError(KindUnexpectedToken, noPos, err, "invalid number %q", s)
	}
	return f, nil
}

// formatFloat renders a float so that it reads back as a float: integral
// values get a ".0" suffix and infinities use the Infinity spelling.
func formatFloat(f float64, bits int) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	s := strconv.FormatFloat(f, 'g', -1, bits)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// isBareSafe reports whether s scans back as exactly one unquoted token.
func isBareSafe(s string) bool {
	if s == "" || s[0] == '@' || strings.HasPrefix(s, "->") || strings.HasPrefix(s, "-|") {
		return false
	}
	for _, r := range s {
		if isDelimiter(r) || r == '\\' || !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

// canUnquote reports whether s can be written unquoted and still be inferred
// as a string.
func canUnquote(s string) bool {
	if !isBareSafe(s) || looksNumeric(s) {
		return false
	}
	switch s {
	case "true", "false", "null", "NaN", "Infinity", "+Infinity", "-Infinity":
		return false
	}
	return true
}

// quote renders s as a quoted string.
func quote(sb *strings.Builder, s string, asciiOnly bool) {
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		case '\b':
			sb.WriteString(`\b`)
		case '\f':
			sb.WriteString(`\f`)
		default:
			if r < 0x20 || r == 0x7f || (asciiOnly && r > 0x7e) || !unicode.IsPrint(r) && r != ' ' {
				writeUnicodeEscape(sb, r)
			} else {
				sb.WriteRune(r)
			}
		}
	}
	sb.WriteByte('"')
}

func writeUnicodeEscape(sb *strings.Builder, r rune) {
	const hex = "0123456789abcdef"
	write := func(u rune) {
		sb.WriteString(`\u`)
		for shift := 12; shift >= 0; shift -= 4 {
			sb.WriteByte(hex[(u>>shift)&0xf])
		}
	}
	if r > 0xffff {
		r -= 0x10000
		write(0xd800 + (r>>10)&0x3ff)
		write(0xdc00 + r&0x3ff)
		return
	}
	write(r)
}
