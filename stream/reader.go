package stream

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Neumenon/dson/dson"
)

// FrameReader reads frames in one of the two envelope encodings. Next
// returns io.EOF once the input ends cleanly between frames.
type FrameReader interface {
	Next() (*Frame, error)
}

type readerConfig struct {
	maxPayload int
	verifyCRC  bool
}

// ReaderOption configures a frame reader.
type ReaderOption func(*readerConfig)

// WithMaxPayload sets the maximum payload size (default: 64 MiB).
func WithMaxPayload(max int) ReaderOption {
	return func(c *readerConfig) {
		c.maxPayload = max
	}
}

// WithCRCVerification enables CRC verification. This is the default.
func WithCRCVerification() ReaderOption {
	return func(c *readerConfig) {
		c.verifyCRC = true
	}
}

// WithoutCRCVerification accepts frames whose CRC does not match.
func WithoutCRCVerification() ReaderOption {
	return func(c *readerConfig) {
		c.verifyCRC = false
	}
}

func newReaderConfig(opts []ReaderOption) readerConfig {
	c := readerConfig{maxPayload: MaxPayloadSize, verifyCRC: true}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (c readerConfig) check(f *Frame) error {
	if c.verifyCRC && f.CRC != nil {
		if computed := ComputeCRC(f.Payload); computed != *f.CRC {
			return &CRCMismatchError{Expected: *f.CRC, Got: computed}
		}
	}
	return nil
}

// Reader reads text framed payloads.
type Reader struct {
	r      *bufio.Reader
	cfg    readerConfig
	offset int
}

// NewReader creates a text frame reader.
func NewReader(r io.Reader, opts ...ReaderOption) *Reader {
	return &Reader{r: bufio.NewReader(r), cfg: newReaderConfig(opts)}
}

// Next reads and returns the next frame.
func (r *Reader) Next() (*Frame, error) {
	headerLine, err := r.r.ReadString('\n')
	if err != nil {
		if err == io.EOF && strings.TrimSpace(headerLine) == "" {
			return nil, io.EOF
		}
		if err != io.EOF {
			return nil, fmt.Errorf("read header: %w", err)
		}
	}
	start := r.offset
	r.offset += len(headerLine)

	frame, payloadLen, err := parseHeader(headerLine, start)
	if err != nil {
		return nil, err
	}
	if payloadLen > r.cfg.maxPayload {
		return nil, &ParseError{Reason: fmt.Sprintf("payload too large: %d > %d", payloadLen, r.cfg.maxPayload), Offset: start}
	}
	if payloadLen > 0 {
		frame.Payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(r.r, frame.Payload); err != nil {
			return nil, fmt.Errorf("read payload: %w", err)
		}
		r.offset += payloadLen
	}

	// the newline after the payload is optional at EOF
	if b, err := r.r.ReadByte(); err == nil {
		if b == '\n' {
			r.offset++
		} else {
			_ = r.r.UnreadByte()
		}
	}

	if err := r.cfg.check(frame); err != nil {
		return nil, err
	}
	return frame, nil
}

// ReadAll reads all frames until EOF.
func (r *Reader) ReadAll() ([]*Frame, error) {
	return readAll(r)
}

func readAll(r FrameReader) ([]*Frame, error) {
	var frames []*Frame
	for {
		frame, err := r.Next()
		if err == io.EOF {
			return frames, nil
		}
		if err != nil {
			return frames, err
		}
		frames = append(frames, frame)
	}
}

// parseHeader parses the @frame{...} header line and returns the frame
// with its declared payload length.
func parseHeader(line string, offset int) (*Frame, int, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "@frame{") {
		return nil, 0, &ParseError{Reason: "expected @frame{", Offset: offset}
	}
	end := strings.LastIndexByte(line, '}')
	if end < 0 {
		return nil, 0, &ParseError{Reason: "missing closing }", Offset: offset + len(line)}
	}

	frame := &Frame{Version: Version}
	payloadLen := 0
	seen := map[string]bool{}
	bad := func(what, val string) error {
		return &ParseError{Reason: fmt.Sprintf("invalid %s: %q", what, val), Offset: offset}
	}

	for _, pair := range splitPairs(line[len("@frame{"):end]) {
		key, val, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		seen[key] = true
		switch key {
		case "v":
			v, err := strconv.ParseUint(val, 10, 8)
			if err != nil {
				return nil, 0, bad("version", val)
			}
			frame.Version = uint8(v)
		case "sid":
			sid, err := strconv.ParseUint(val, 10, 64)
			if err != nil {
				return nil, 0, bad("sid", val)
			}
			frame.SID = sid
		case "seq":
			seq, err := strconv.ParseUint(val, 10, 64)
			if err != nil {
				return nil, 0, bad("seq", val)
			}
			frame.Seq = seq
		case "kind":
			kind, ok := ParseKind(val)
			if !ok {
				return nil, 0, bad("kind", val)
			}
			frame.Kind = kind
		case "fmt":
			format, ok := ParseFormat(val)
			if !ok {
				return nil, 0, bad("fmt", val)
			}
			frame.Format = format
		case "len":
			l, err := strconv.ParseUint(val, 10, 32)
			if err != nil {
				return nil, 0, bad("len", val)
			}
			payloadLen = int(l)
		case "crc":
			crc, err := strconv.ParseUint(strings.TrimPrefix(val, "crc32:"), 16, 32)
			if err != nil {
				return nil, 0, bad("crc", val)
			}
			c := uint32(crc)
			frame.CRC = &c
		case "base":
			base, ok := HexToHash(val)
			if !ok {
				return nil, 0, bad("base", val)
			}
			frame.Base = &base
		case "final":
			frame.Final = val == "true" || val == "1"
		case "flags":
			if flags, err := strconv.ParseUint(val, 16, 8); err == nil {
				frame.Flags = Flags(flags)
			}
		}
	}
	if !seen["len"] {
		return nil, 0, &ParseError{Reason: "missing len", Offset: offset}
	}
	if !seen["fmt"] && frame.Flags&FlagText != 0 {
		frame.Format = dson.FormatText
	}
	return frame, payloadLen, nil
}

// splitPairs splits key=value pairs separated by spaces, tabs or commas.
func splitPairs(s string) []string {
	return strings.FieldsFunc(s, func(c rune) bool {
		return c == ' ' || c == ',' || c == '\t'
	})
}
