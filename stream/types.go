// Package stream frames Dson documents for transport.
//
// A frame carries one Dson payload, either binary or text encoded, along
// with the envelope needed to move it over a byte stream:
//   - Message boundaries via an explicit payload length
//   - Multiplexing via stream IDs (sid)
//   - Ordering via sequence numbers (seq)
//   - Integrity via optional CRC-32
//   - Patch safety via an optional BLAKE3 digest of the state a patch
//     applies to (base)
//
// Frames come in two encodings: a line oriented text envelope
// (NewWriter/NewReader) and a compact binary envelope
// (NewBinaryWriter/NewBinaryReader). Both carry the same Frame.
package stream

import (
	"fmt"
	"strconv"

	"github.com/Neumenon/dson/dson"
)

// Version is the frame protocol version.
const Version uint8 = 1

// FrameKind indicates the semantic category of a frame's payload.
type FrameKind uint8

const (
	KindDoc   FrameKind = 0 // Snapshot of the stream state
	KindPatch FrameKind = 1 // Members to merge into the state
	KindRow   FrameKind = 2 // Single row value (streaming tabular)
	KindEvent FrameKind = 3 // Progress, log, metric or artifact event
	KindAck   FrameKind = 4 // Acknowledgement
	KindErr   FrameKind = 5 // Error event
	KindPing  FrameKind = 6 // Keepalive
	KindPong  FrameKind = 7 // Ping response
)

var kindNames = [...]string{"doc", "patch", "row", "event", "ack", "err", "ping", "pong"}

// String returns the kind name.
func (k FrameKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("unknown(%d)", k)
}

// ParseKind parses a kind name or its numeric value.
func ParseKind(s string) (FrameKind, bool) {
	for i, name := range kindNames {
		if s == name {
			return FrameKind(i), true
		}
	}
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, false
	}
	return FrameKind(n), true
}

// ParseFormat parses "binary" or "text".
func ParseFormat(s string) (dson.Format, bool) {
	switch s {
	case "binary", "bin":
		return dson.FormatBinary, true
	case "text":
		return dson.FormatText, true
	}
	return 0, false
}

// Flags for frames.
type Flags uint8

const (
	FlagHasCRC  Flags = 0x01 // CRC-32 is present
	FlagHasBase Flags = 0x02 // Base digest is present
	FlagFinal   Flags = 0x04 // End-of-stream for this SID
	FlagText    Flags = 0x08 // Payload is Dson text
)

// Frame is a single framed Dson payload.
type Frame struct {
	Version uint8       // Protocol version (must be 1)
	SID     uint64      // Stream identifier
	Seq     uint64      // Sequence number (per-SID, monotonic)
	Kind    FrameKind   // Frame kind
	Format  dson.Format // Encoding of Payload
	Payload []byte      // Encoded Dson document, empty for ack/ping/pong

	CRC   *uint32   // CRC-32 of payload (nil if not present)
	Base  *[32]byte // State digest a patch applies to (nil if not present)
	Flags Flags
	Final bool // End-of-stream marker
}

// NewFrame encodes v in the given format and wraps it in a frame.
// A nil v produces an empty payload.
func NewFrame(sid, seq uint64, kind FrameKind, format dson.Format, v dson.Value) (*Frame, error) {
	f := &Frame{Version: Version, SID: sid, Seq: seq, Kind: kind, Format: format}
	if v == nil {
		return f, nil
	}
	payload, err := encodePayload(v, format)
	if err != nil {
		return nil, fmt.Errorf("frame %s: %w", kind, err)
	}
	f.Payload = payload
	return f, nil
}

// Value decodes the payload. An empty payload decodes to nil.
func (f *Frame) Value() (dson.Value, error) {
	if len(f.Payload) == 0 {
		return nil, nil
	}
	return decodePayload(f.Payload, f.Format)
}

// HasCRC returns true if CRC is present.
func (f *Frame) HasCRC() bool {
	return f.CRC != nil
}

// HasBase returns true if base digest is present.
func (f *Frame) HasBase() bool {
	return f.Base != nil
}

// IsFinal returns true if this is the final frame for this SID.
func (f *Frame) IsFinal() bool {
	return f.Final || f.Flags&FlagFinal != 0
}

func encodePayload(v dson.Value, format dson.Format) ([]byte, error) {
	if format == dson.FormatText {
		text, err := dson.EncodeText(v, dson.DefaultTextSettings())
		return []byte(text), err
	}
	return dson.EncodeBinary[string](v)
}

func decodePayload(payload []byte, format dson.Format) (dson.Value, error) {
	if format == dson.FormatText {
		return dson.DecodeText(string(payload))
	}
	return dson.DecodeBinary[string](payload)
}

// MaxPayloadSize is the default maximum payload size (64 MiB).
const MaxPayloadSize = 64 * 1024 * 1024

// ParseError reports a malformed frame envelope.
type ParseError struct {
	Reason string
	Offset int
}

func (e *ParseError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("stream: %s at offset %d", e.Reason, e.Offset)
	}
	return fmt.Sprintf("stream: %s", e.Reason)
}

// CRCMismatchError is returned when CRC verification fails.
type CRCMismatchError struct {
	Expected uint32
	Got      uint32
}

func (e *CRCMismatchError) Error() string {
	return fmt.Sprintf("stream: CRC mismatch: expected %08x, got %08x", e.Expected, e.Got)
}

// BaseMismatchError is returned when a patch targets a state other than the
// one the receiver holds.
type BaseMismatchError struct {
	Expected [32]byte
	Got      [32]byte
}

func (e *BaseMismatchError) Error() string {
	return fmt.Sprintf("stream: base mismatch: frame wants %s, state is %s",
		HashToHex(e.Expected)[:16], HashToHex(e.Got)[:16])
}
