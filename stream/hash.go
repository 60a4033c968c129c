package stream

import (
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/Neumenon/dson/dson"
)

// StateHash is the digest carried in a frame's base field: BLAKE3 of the
// canonical binary form of v. Member order and key kind do not affect it.
func StateHash(v dson.Value) ([32]byte, error) {
	return dson.CanonicalHash(v)
}

// StateHashBytes computes the digest of bytes that are already canonical.
func StateHashBytes(data []byte) [32]byte {
	return blake3.Sum256(data)
}

// VerifyBase checks if the current state hash matches the expected base.
func VerifyBase(current, expected [32]byte) bool {
	return current == expected
}

// HashToHex converts a digest to lowercase hex.
func HashToHex(h [32]byte) string {
	return hex.EncodeToString(h[:])
}

// HexToHash parses 64 hex digits, with or without a "blake3:" prefix.
func HexToHash(s string) ([32]byte, bool) {
	var h [32]byte
	s = strings.TrimPrefix(s, "blake3:")
	if len(s) != 64 {
		return h, false
	}
	if _, err := hex.Decode(h[:], []byte(s)); err != nil {
		return h, false
	}
	return h, true
}
