// Package clvalue decodes the serialized values stored under dictionary entries.
//
// A node returns a stored value as a type descriptor plus hex bytes. Values
// written through a generic byte wrapper (type "Any" or List<U8>) carry an
// extra little-endian u32 length prefix around the inner serialization;
// Payload strips it.
package clvalue

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrMalformed is matched by every *DecodeError.
var ErrMalformed = errors.New("clvalue: malformed value")

// DecodeError reports bytes that do not match the expected serialization.
type DecodeError struct {
	Type   string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("clvalue: decode %s: %s", e.Type, e.Reason)
}

func (e *DecodeError) Is(target error) bool { return target == ErrMalformed }

func malformed(typ, format string, args ...any) error {
	return &DecodeError{Type: typ, Reason: fmt.Sprintf(format, args...)}
}

// Value is a stored value as returned by the node.
type Value struct {
	CLType json.RawMessage `json:"cl_type"`
	Bytes  HexBytes        `json:"bytes"`
	Parsed json.RawMessage `json:"parsed,omitempty"`
}

// HexBytes unmarshals from a hex JSON string.
type HexBytes []byte

func (h *HexBytes) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	out, err := hex.DecodeString(s)
	if err != nil {
		return malformed("bytes", "invalid hex: %v", err)
	}
	*h = out
	return nil
}

func (h HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(h))
}

// Wrapped reports whether the value's bytes carry the generic byte wrapper.
func (v *Value) Wrapped() bool {
	t := bytes.TrimSpace(v.CLType)
	if bytes.Equal(t, []byte(`"Any"`)) {
		return true
	}
	var list struct {
		List string `json:"List"`
	}
	if json.Unmarshal(t, &list) == nil && list.List == "U8" {
		return true
	}
	return false
}

// Payload returns the inner serialization of the value.
func (v *Value) Payload() ([]byte, error) {
	if !v.Wrapped() {
		return v.Bytes, nil
	}
	if len(v.Bytes) < 4 {
		return nil, malformed("wrapper", "need 4 bytes, have %d", len(v.Bytes))
	}
	n := binary.LittleEndian.Uint32(v.Bytes)
	if int(n) != len(v.Bytes)-4 {
		return nil, malformed("wrapper", "length prefix %d does not match %d payload bytes", n, len(v.Bytes)-4)
	}
	return v.Bytes[4:], nil
}

func (v *Value) hasBytes() bool { return len(v.Bytes) > 0 }

func (v *Value) parsedInto(typ string, out any) error {
	if len(v.Parsed) == 0 || bytes.Equal(bytes.TrimSpace(v.Parsed), []byte("null")) {
		return malformed(typ, "no bytes and no parsed form")
	}
	if err := json.Unmarshal(v.Parsed, out); err != nil {
		return malformed(typ, "parsed form: %v", err)
	}
	return nil
}

// Bool decodes a one-byte boolean.
func (v *Value) Bool() (bool, error) {
	if !v.hasBytes() {
		var b bool
		return b, v.parsedInto("Bool", &b)
	}
	p, err := v.Payload()
	if err != nil {
		return false, err
	}
	if len(p) != 1 {
		return false, malformed("Bool", "expected 1 byte, have %d", len(p))
	}
	switch p[0] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, malformed("Bool", "invalid byte 0x%02x", p[0])
	}
}

// U8 decodes a single unsigned byte.
func (v *Value) U8() (uint8, error) {
	if !v.hasBytes() {
		var n uint8
		return n, v.parsedInto("U8", &n)
	}
	p, err := v.Payload()
	if err != nil {
		return 0, err
	}
	if len(p) != 1 {
		return 0, malformed("U8", "expected 1 byte, have %d", len(p))
	}
	return p[0], nil
}

// U64 decodes a little-endian unsigned 64-bit integer.
func (v *Value) U64() (uint64, error) {
	if !v.hasBytes() {
		var n uint64
		return n, v.parsedInto("U64", &n)
	}
	p, err := v.Payload()
	if err != nil {
		return 0, err
	}
	if len(p) != 8 {
		return 0, malformed("U64", "expected 8 bytes, have %d", len(p))
	}
	return binary.LittleEndian.Uint64(p), nil
}

// String decodes a u32-length-prefixed UTF-8 string.
func (v *Value) String() (string, error) {
	if !v.hasBytes() {
		var s string
		return s, v.parsedInto("String", &s)
	}
	p, err := v.Payload()
	if err != nil {
		return "", err
	}
	if len(p) < 4 {
		return "", malformed("String", "need 4 length bytes, have %d", len(p))
	}
	n := binary.LittleEndian.Uint32(p)
	if int(n) != len(p)-4 {
		return "", malformed("String", "length %d does not match %d bytes", n, len(p)-4)
	}
	s := p[4:]
	if !utf8.Valid(s) {
		return "", malformed("String", "invalid UTF-8")
	}
	return string(s), nil
}

// Key decodes a tagged 32-byte address.
func (v *Value) Key() (Key, error) {
	if !v.hasBytes() {
		var s string
		if err := v.parsedInto("Key", &s); err != nil {
			return Key{}, err
		}
		return ParseKey(s)
	}
	p, err := v.Payload()
	if err != nil {
		return Key{}, err
	}
	return DecodeKey(p)
}
