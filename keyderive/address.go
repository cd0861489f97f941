package keyderive

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	// SeedSize is the byte length of a namespace seed.
	SeedSize = 32
	// AddressSize is the byte length of a derived storage address.
	AddressSize = 32

	addressPrefix = "dictionary-"
)

// NamespaceSeed identifies the storage region (the dictionary's root locator).
type NamespaceSeed [SeedSize]byte

func (s NamespaceSeed) Bytes() []byte { return append([]byte(nil), s[:]...) }

func (s NamespaceSeed) String() string { return hex.EncodeToString(s[:]) }

// Address is a derived storage address. It is used verbatim as the lookup key
// in the remote store.
type Address [AddressSize]byte

func (a Address) Hex() string { return hex.EncodeToString(a[:]) }

// String renders the address in the store's key notation ("dictionary-<hex>").
func (a Address) String() string { return addressPrefix + a.Hex() }

// ParseSeed decodes a namespace locator into its raw seed bytes.
//
// Accepted forms:
//
//	uref-<64 hex>-<3 digit access rights>
//	hash-<64 hex>
//	<64 hex>
func ParseSeed(locator string) (NamespaceSeed, error) {
	var seed NamespaceSeed
	s := strings.TrimSpace(locator)
	switch {
	case strings.HasPrefix(s, "uref-"):
		body := strings.TrimPrefix(s, "uref-")
		i := strings.LastIndexByte(body, '-')
		if i < 0 {
			return seed, fmt.Errorf("keyderive: uref %q missing access rights suffix", locator)
		}
		rights := body[i+1:]
		if len(rights) != 3 || strings.Trim(rights, "01234567") != "" {
			return seed, fmt.Errorf("keyderive: uref %q has invalid access rights %q", locator, rights)
		}
		s = body[:i]
	case strings.HasPrefix(s, "hash-"):
		s = strings.TrimPrefix(s, "hash-")
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return seed, fmt.Errorf("keyderive: locator %q: %w", locator, err)
	}
	if len(b) != SeedSize {
		return seed, fmt.Errorf("keyderive: locator %q: expected %d bytes, got %d", locator, SeedSize, len(b))
	}
	copy(seed[:], b)
	return seed, nil
}

// MustParseSeed is like ParseSeed but panics on error. Intended for tables and tests.
func MustParseSeed(locator string) NamespaceSeed {
	s, err := ParseSeed(locator)
	if err != nil {
		panic(err)
	}
	return s
}

// ParseAddress accepts "dictionary-<hex>" or bare hex.
func ParseAddress(s string) (Address, error) {
	var a Address
	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), addressPrefix))
	if err != nil {
		return a, fmt.Errorf("keyderive: address %q: %w", s, err)
	}
	if len(b) != AddressSize {
		return a, errors.New("keyderive: address must be 32 bytes")
	}
	copy(a[:], b)
	return a, nil
}
