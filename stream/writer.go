package stream

import (
	"fmt"
	"io"
	"strconv"

	"github.com/Neumenon/dson/dson"
)

// FrameWriter writes frames in one of the two envelope encodings.
type FrameWriter interface {
	WriteFrame(f *Frame) error
}

// Writer writes text framed payloads to an io.Writer.
type Writer struct {
	w       io.Writer
	withCRC bool
}

// NewWriter creates a text frame writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// NewWriterWithCRC creates a text frame writer that adds a CRC to every
// frame with a payload.
func NewWriterWithCRC(w io.Writer) *Writer {
	return &Writer{w: w, withCRC: true}
}

// WriteFrame writes a single frame.
//
// Format:
//
//	@frame{v=1 sid=N seq=N kind=K fmt=F len=N [crc=X] [base=blake3:X] [final=true]}\n
//	<payload bytes>\n
func (w *Writer) WriteFrame(f *Frame) error {
	var header []byte
	header = append(header, "@frame{v="...)
	version := f.Version
	if version == 0 {
		version = Version
	}
	header = strconv.AppendUint(header, uint64(version), 10)
	header = append(header, " sid="...)
	header = strconv.AppendUint(header, f.SID, 10)
	header = append(header, " seq="...)
	header = strconv.AppendUint(header, f.Seq, 10)
	header = append(header, " kind="...)
	header = append(header, f.Kind.String()...)
	header = append(header, " fmt="...)
	header = append(header, f.Format.String()...)
	header = append(header, " len="...)
	header = strconv.AppendInt(header, int64(len(f.Payload)), 10)

	if crc := frameCRC(f, w.withCRC); crc != nil {
		header = fmt.Appendf(header, " crc=%08x", *crc)
	}
	if f.Base != nil {
		header = append(header, " base=blake3:"...)
		header = append(header, HashToHex(*f.Base)...)
	}
	if f.IsFinal() {
		header = append(header, " final=true"...)
	}
	header = append(header, "}\n"...)

	if _, err := w.w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if len(f.Payload) > 0 {
		if _, err := w.w.Write(f.Payload); err != nil {
			return fmt.Errorf("write payload: %w", err)
		}
	}
	if _, err := io.WriteString(w.w, "\n"); err != nil {
		return fmt.Errorf("write trailing newline: %w", err)
	}
	return nil
}

// ============================================================
// Typed helpers
// ============================================================

// Encoder frames Dson values on top of a FrameWriter. It tracks the next
// sequence number per SID.
type Encoder struct {
	w      FrameWriter
	format dson.Format
	seq    map[uint64]uint64
}

// NewEncoder returns an encoder writing payloads in the given format.
func NewEncoder(w FrameWriter, format dson.Format) *Encoder {
	return &Encoder{w: w, format: format, seq: make(map[uint64]uint64)}
}

func (e *Encoder) next(sid uint64) uint64 {
	e.seq[sid]++
	return e.seq[sid]
}

func (e *Encoder) write(sid uint64, kind FrameKind, v dson.Value, base *[32]byte, final bool) error {
	f, err := NewFrame(sid, e.next(sid), kind, e.format, v)
	if err != nil {
		return err
	}
	f.Base = base
	f.Final = final
	return e.w.WriteFrame(f)
}

// WriteDoc writes a state snapshot.
func (e *Encoder) WriteDoc(sid uint64, v dson.Value) error {
	return e.write(sid, KindDoc, v, nil, false)
}

// WritePatch writes members to merge into the state whose digest is base.
// A nil base sends the patch unverified.
func (e *Encoder) WritePatch(sid uint64, patch *dson.Object[string], base *[32]byte) error {
	return e.write(sid, KindPatch, patch, base, false)
}

// WriteRow writes a row frame.
func (e *Encoder) WriteRow(sid uint64, v dson.Value) error {
	return e.write(sid, KindRow, v, nil, false)
}

// WriteEvent writes an event frame, typically built with Progress, Log or
// Metric.
func (e *Encoder) WriteEvent(sid uint64, v dson.Value) error {
	return e.write(sid, KindEvent, v, nil, false)
}

// WriteErr writes an error frame.
func (e *Encoder) WriteErr(sid uint64, code, msg string) error {
	seq := e.seq[sid]
	return e.write(sid, KindErr, Error(code, msg, sid, seq), nil, false)
}

// WriteAck acknowledges everything up to seq on sid.
func (e *Encoder) WriteAck(sid, seq uint64) error {
	return e.w.WriteFrame(&Frame{Version: Version, SID: sid, Seq: seq, Kind: KindAck, Format: e.format})
}

// WritePing writes a keepalive.
func (e *Encoder) WritePing(sid uint64) error {
	return e.write(sid, KindPing, nil, nil, false)
}

// WritePong answers a ping.
func (e *Encoder) WritePong(sid, seq uint64) error {
	return e.w.WriteFrame(&Frame{Version: Version, SID: sid, Seq: seq, Kind: KindPong, Format: e.format})
}

// WriteFinal writes the last frame of a stream.
func (e *Encoder) WriteFinal(sid uint64, kind FrameKind, v dson.Value) error {
	return e.write(sid, kind, v, nil, true)
}
