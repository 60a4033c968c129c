package stream

import (
	"hash/crc32"
)

// ComputeCRC computes the IEEE CRC-32 of a payload.
func ComputeCRC(payload []byte) uint32 {
	return crc32.ChecksumIEEE(payload)
}

// VerifyCRC verifies that the CRC matches.
func VerifyCRC(payload []byte, expected uint32) bool {
	return ComputeCRC(payload) == expected
}

// frameCRC returns the CRC to write for f: the frame's own value, or a
// freshly computed one when the writer is configured to add it.
func frameCRC(f *Frame, compute bool) *uint32 {
	if f.CRC != nil {
		return f.CRC
	}
	if compute && len(f.Payload) > 0 {
		c := ComputeCRC(f.Payload)
		return &c
	}
	return nil
}
