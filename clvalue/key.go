package clvalue

import (
	"encoding/hex"
	"strings"
)

// KeyTag distinguishes account and contract addresses.
type KeyTag byte

const (
	TagAccount  KeyTag = 0
	TagContract KeyTag = 1
)

// Key is an account or contract address.
type Key struct {
	Tag  KeyTag
	Hash [32]byte
}

func (k Key) String() string {
	if k.Tag == TagContract {
		return "hash-" + hex.EncodeToString(k.Hash[:])
	}
	return "account-hash-" + hex.EncodeToString(k.Hash[:])
}

func (k Key) IsZero() bool { return k == Key{} }

// DecodeKey decodes tag ∥ 32 bytes.
func DecodeKey(p []byte) (Key, error) {
	if len(p) != 33 {
		return Key{}, malformed("Key", "expected 33 bytes, have %d", len(p))
	}
	tag := KeyTag(p[0])
	if tag != TagAccount && tag != TagContract {
		return Key{}, malformed("Key", "unknown tag %d", p[0])
	}
	k := Key{Tag: tag}
	copy(k.Hash[:], p[1:])
	return k, nil
}

// ParseKey parses "account-hash-<hex>" or "hash-<hex>".
func ParseKey(s string) (Key, error) {
	var k Key
	var body string
	switch {
	case strings.HasPrefix(s, "account-hash-"):
		k.Tag = TagAccount
		body = strings.TrimPrefix(s, "account-hash-")
	case strings.HasPrefix(s, "hash-"):
		k.Tag = TagContract
		body = strings.TrimPrefix(s, "hash-")
	default:
		return Key{}, malformed("Key", "unrecognised key %q", s)
	}
	b, err := hex.DecodeString(body)
	if err != nil || len(b) != 32 {
		return Key{}, malformed("Key", "invalid hash in %q", s)
	}
	copy(k.Hash[:], b)
	return k, nil
}
