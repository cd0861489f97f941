// Package clencode implements the canonical length-prefixed string encoding
// used when deriving storage addresses.
//
// A string is encoded as its UTF-8 byte length, written as a compact integer,
// followed by the raw bytes. The compact integer picks the smallest of three
// widths and tags it in the two low-order bits of the first byte:
//
//	mode 00: 1 byte,  little-endian (n<<2)     for n < 2^6
//	mode 01: 2 bytes, little-endian (n<<2 | 1) for n < 2^14
//	mode 10: 4 bytes, little-endian (n<<2 | 2) for n < 2^30
//
// Mode 11 (the variable-width big integer form) is never produced and is
// rejected on decode.
package clencode

import (
	"encoding/binary"
	"fmt"
)

const (
	modeSingle = 0b00
	modeTwo    = 0b01
	modeFour   = 0b10
	modeBig    = 0b11

	maxSingle = 1<<6 - 1
	maxTwo    = 1<<14 - 1

	// MaxLength is the largest byte length representable by the prefix.
	MaxLength = 1<<30 - 1
)

// PrefixLen returns the width of the compact prefix for a length n.
// It returns 0 if n cannot be encoded.
func PrefixLen(n int) int {
	switch {
	case n < 0:
		return 0
	case n <= maxSingle:
		return 1
	case n <= maxTwo:
		return 2
	case n <= MaxLength:
		return 4
	default:
		return 0
	}
}

// AppendLength appends the compact encoding of n to dst.
func AppendLength(dst []byte, n int) ([]byte, error) {
	switch PrefixLen(n) {
	case 1:
		return append(dst, byte(n<<2|modeSingle)), nil
	case 2:
		return binary.LittleEndian.AppendUint16(dst, uint16(n<<2|modeTwo)), nil
	case 4:
		return binary.LittleEndian.AppendUint32(dst, uint32(n)<<2|modeFour), nil
	default:
		return dst, &EncodingError{Length: n, Reason: "length out of range"}
	}
}

// EncodeLength returns the compact encoding of n.
func EncodeLength(n int) ([]byte, error) {
	return AppendLength(make([]byte, 0, 4), n)
}

// AppendString appends the canonical encoding of s to dst.
func AppendString(dst []byte, s string) ([]byte, error) {
	out, err := AppendLength(dst, len(s))
	if err != nil {
		return dst, err
	}
	return append(out, s...), nil
}

// Encode returns the canonical encoding of s.
func Encode(s string) ([]byte, error) {
	n := len(s)
	return AppendString(make([]byte, 0, PrefixLen(n)+n), s)
}

// DecodeLength reads a compact length from the start of b.
// It returns the length and the number of prefix bytes consumed.
func DecodeLength(b []byte) (int, int, error) {
	if len(b) == 0 {
		return 0, 0, &EncodingError{Reason: "empty input"}
	}
	switch b[0] & 0b11 {
	case modeSingle:
		return int(b[0] >> 2), 1, nil
	case modeTwo:
		if len(b) < 2 {
			return 0, 0, &EncodingError{Reason: "truncated two-byte prefix"}
		}
		n := int(binary.LittleEndian.Uint16(b) >> 2)
		if n <= maxSingle {
			return 0, 0, &EncodingError{Length: n, Reason: "non-minimal two-byte prefix"}
		}
		return n, 2, nil
	case modeFour:
		if len(b) < 4 {
			return 0, 0, &EncodingError{Reason: "truncated four-byte prefix"}
		}
		n := int(binary.LittleEndian.Uint32(b) >> 2)
		if n <= maxTwo {
			return 0, 0, &EncodingError{Length: n, Reason: "non-minimal four-byte prefix"}
		}
		return n, 4, nil
	default:
		return 0, 0, &EncodingError{Reason: fmt.Sprintf("unsupported prefix mode %02b", modeBig)}
	}
}

// Decode reads one encoded string from the start of b and returns it together
// with the total number of bytes consumed.
func Decode(b []byte) (string, int, error) {
	n, p, err := DecodeLength(b)
	if err != nil {
		return "", 0, err
	}
	if len(b)-p < n {
		return "", 0, &EncodingError{Length: n, Reason: fmt.Sprintf("truncated body: have %d bytes", len(b)-p)}
	}
	return string(b[p : p+n]), p + n, nil
}
