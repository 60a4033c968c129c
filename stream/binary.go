package stream

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/Neumenon/dson/dson"
)

// Binary envelope layout:
//
//	'D' 'F' version flags kind sid:uvarint seq:uvarint len:uvarint
//	[crc:4 bytes big-endian] [base:32 bytes] payload
const (
	magic0 = 'D'
	magic1 = 'F'
)

// BinaryWriter writes binary framed payloads.
type BinaryWriter struct {
	w       io.Writer
	withCRC bool
	buf     []byte
}

// NewBinaryWriter creates a binary frame writer.
func NewBinaryWriter(w io.Writer) *BinaryWriter {
	return &BinaryWriter{w: w}
}

// NewBinaryWriterWithCRC creates a binary frame writer that adds a CRC to
// every frame with a payload.
func NewBinaryWriterWithCRC(w io.Writer) *BinaryWriter {
	return &BinaryWriter{w: w, withCRC: true}
}

// AppendFrame appends the binary envelope and payload of f to buf.
func AppendFrame(buf []byte, f *Frame, withCRC bool) []byte {
	version := f.Version
	if version == 0 {
		version = Version
	}
	flags := f.Flags &^ (FlagHasCRC | FlagHasBase | FlagText)
	crc := frameCRC(f, withCRC)
	if crc != nil {
		flags |= FlagHasCRC
	}
	if f.Base != nil {
		flags |= FlagHasBase
	}
	if f.Final {
		flags |= FlagFinal
	}
	if f.Format == dson.FormatText {
		flags |= FlagText
	}

	buf = append(buf, magic0, magic1, version, byte(flags), byte(f.Kind))
	buf = dson.AppendUvarint(buf, f.SID)
	buf = dson.AppendUvarint(buf, f.Seq)
	buf = dson.AppendUvarint(buf, uint64(len(f.Payload)))
	if crc != nil {
		buf = binary.BigEndian.AppendUint32(buf, *crc)
	}
	if f.Base != nil {
		buf = append(buf, f.Base[:]...)
	}
	return append(buf, f.Payload...)
}

// WriteFrame writes a single frame.
func (w *BinaryWriter) WriteFrame(f *Frame) error {
	w.buf = AppendFrame(w.buf[:0], f, w.withCRC)
	if _, err := w.w.Write(w.buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// BinaryReader reads binary framed payloads.
type BinaryReader struct {
	r   *countingReader
	cfg readerConfig
}

// NewBinaryReader creates a binary frame reader.
func NewBinaryReader(r io.Reader, opts ...ReaderOption) *BinaryReader {
	return &BinaryReader{r: &countingReader{r: bufio.NewReader(r)}, cfg: newReaderConfig(opts)}
}

// Next reads and returns the next frame.
func (r *BinaryReader) Next() (*Frame, error) {
	start := r.r.n
	var fixed [5]byte
	n, err := io.ReadFull(r.r, fixed[:])
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, &ParseError{Reason: fmt.Sprintf("truncated header (%d bytes)", n), Offset: start}
	}
	if fixed[0] != magic0 || fixed[1] != magic1 {
		return nil, &ParseError{Reason: fmt.Sprintf("bad magic %02x%02x", fixed[0], fixed[1]), Offset: start}
	}

	flags := Flags(fixed[3])
	frame := &Frame{
		Version: fixed[2],
		Flags:   flags,
		Kind:    FrameKind(fixed[4]),
		Final:   flags&FlagFinal != 0,
	}
	if flags&FlagText != 0 {
		frame.Format = dson.FormatText
	}

	var fields [3]uint64
	for i, name := range [...]string{"sid", "seq", "len"} {
		v, err := binary.ReadUvarint(r.r)
		if err != nil {
			return nil, &ParseError{Reason: "invalid " + name + ": " + eofAsTruncated(err).Error(), Offset: r.r.n}
		}
		fields[i] = v
	}
	frame.SID, frame.Seq = fields[0], fields[1]
	if fields[2] > uint64(r.cfg.maxPayload) {
		return nil, &ParseError{Reason: fmt.Sprintf("payload too large: %d > %d", fields[2], r.cfg.maxPayload), Offset: start}
	}

	if flags&FlagHasCRC != 0 {
		var b [4]byte
		if _, err := io.ReadFull(r.r, b[:]); err != nil {
			return nil, &ParseError{Reason: "truncated crc", Offset: r.r.n}
		}
		crc := binary.BigEndian.Uint32(b[:])
		frame.CRC = &crc
	}
	if flags&FlagHasBase != 0 {
		var base [32]byte
		if _, err := io.ReadFull(r.r, base[:]); err != nil {
			return nil, &ParseError{Reason: "truncated base", Offset: r.r.n}
		}
		frame.Base = &base
	}
	if fields[2] > 0 {
		frame.Payload = make([]byte, fields[2])
		if _, err := io.ReadFull(r.r, frame.Payload); err != nil {
			return nil, &ParseError{Reason: "truncated payload", Offset: r.r.n}
		}
	}

	if err := r.cfg.check(frame); err != nil {
		return nil, err
	}
	return frame, nil
}

// ReadAll reads all frames until EOF.
func (r *BinaryReader) ReadAll() ([]*Frame, error) {
	return readAll(r)
}

func eofAsTruncated(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

type countingReader struct {
	r *bufio.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}

func (c *countingReader) ReadByte() (byte, error) {
	b, err := c.r.ReadByte()
	if err == nil {
		c.n++
	}
	return b, err
}

// NewFrameReader sniffs the first bytes of r and returns a binary or text
// frame reader to match.
func NewFrameReader(r io.Reader, opts ...ReaderOption) (FrameReader, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(2)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if len(head) == 2 && head[0] == magic0 && head[1] == magic1 {
		return NewBinaryReader(br, opts...), nil
	}
	return NewReader(br, opts...), nil
}
