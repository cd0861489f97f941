package keyderive

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"

	"xdao.co/credledger/clencode"
)

// Hash selects the 256-bit digest applied to the preimage.
type Hash uint8

const (
	HashBlake2b256 Hash = iota
	HashBlake3
	HashSHA3_256
	HashSHA256
)

func (h Hash) String() string {
	switch h {
	case HashBlake2b256:
		return "blake2b-256"
	case HashBlake3:
		return "blake3-256"
	case HashSHA3_256:
		return "sha3-256"
	case HashSHA256:
		return "sha2-256"
	default:
		return fmt.Sprintf("hash(%d)", uint8(h))
	}
}

func (h Hash) sum(b []byte) (Address, error) {
	switch h {
	case HashBlake2b256:
		return blake2b.Sum256(b), nil
	case HashBlake3:
		return blake3.Sum256(b), nil
	case HashSHA3_256:
		return sha3.Sum256(b), nil
	case HashSHA256:
		return sha256.Sum256(b), nil
	default:
		return Address{}, fmt.Errorf("keyderive: unknown hash %d", uint8(h))
	}
}

// Prefix selects how each string's byte length is written ahead of it.
type Prefix uint8

const (
	PrefixCompact Prefix = iota
	PrefixU32LE
	PrefixU32BE
)

func (p Prefix) String() string {
	switch p {
	case PrefixCompact:
		return "compact"
	case PrefixU32LE:
		return "u32-le"
	case PrefixU32BE:
		return "u32-be"
	default:
		return fmt.Sprintf("prefix(%d)", uint8(p))
	}
}

func (p Prefix) appendString(dst []byte, s string) ([]byte, error) {
	switch p {
	case PrefixCompact:
		return clencode.AppendString(dst, s)
	case PrefixU32LE, PrefixU32BE:
		if uint64(len(s)) > math.MaxUint32 {
			return dst, &clencode.EncodingError{Length: len(s), Reason: "string too long for a u32 length prefix"}
		}
		if p == PrefixU32LE {
			return append(binary.LittleEndian.AppendUint32(dst, uint32(len(s))), s...), nil
		}
		return append(binary.BigEndian.AppendUint32(dst, uint32(len(s))), s...), nil
	default:
		return dst, fmt.Errorf("keyderive: unknown prefix %d", uint8(p))
	}
}

// Order selects which string follows the seed first in a flat scheme.
type Order uint8

const (
	FieldFirst Order = iota
	ItemFirst
)

func (o Order) String() string {
	if o == ItemFirst {
		return "item-first"
	}
	return "field-first"
}

// VersionByte is the leading byte used by flat schemes with Versioned set.
const VersionByte = 0x01

// Layout selects how the field takes part in the address.
type Layout uint8

const (
	// Flat hashes seed ∥ enc(field) ∥ enc(item).
	Flat Layout = iota
	// Indexed first hashes the field's storage index with the item into an
	// item key, then hashes seed ∥ item key.
	Indexed
)

func (l Layout) String() string {
	if l == Indexed {
		return "indexed"
	}
	return "flat"
}

// IndexWidth selects how an indexed scheme writes the field index.
type IndexWidth uint8

const (
	IndexU32BE IndexWidth = iota
	IndexU32LE
	IndexU8
)

func (w IndexWidth) String() string {
	switch w {
	case IndexU32BE:
		return "u32-be"
	case IndexU32LE:
		return "u32-le"
	case IndexU8:
		return "u8"
	default:
		return fmt.Sprintf("index(%d)", uint8(w))
	}
}

func (w IndexWidth) append(dst []byte, n uint32) []byte {
	switch w {
	case IndexU32LE:
		return binary.LittleEndian.AppendUint32(dst, n)
	case IndexU8:
		return append(dst, byte(n))
	default:
		return binary.BigEndian.AppendUint32(dst, n)
	}
}

// KeyForm selects how an indexed scheme's item key is handed to the store.
type KeyForm uint8

const (
	// KeyHex passes the lowercase hex text of the item key digest.
	KeyHex KeyForm = iota
	// KeyRaw passes the digest bytes.
	KeyRaw
)

func (k KeyForm) String() string {
	if k == KeyRaw {
		return "raw-key"
	}
	return "hex-key"
}

// ErrUnknownField is returned by indexed schemes for a field that has no
// storage index in ContractFields.
var ErrUnknownField = errors.New("keyderive: field has no storage index")

// ContractFields lists the credential contract's storage slots in declaration
// order. Indexed schemes number them from Scheme.Base.
var ContractFields = []string{
	"owner",
	"cred_holder",
	"cred_issuer",
	"cred_confidence",
	"cred_expires",
	"cred_revoked",
	"cred_ipfs",
	"access_level",
}

// FieldIndex returns the storage index of field counted from base. Credential
// fields may be named with or without the contract's "cred_" prefix.
func FieldIndex(field string, base uint8) (uint32, error) {
	for i, name := range ContractFields {
		if name == field || (strings.HasPrefix(name, "cred_") && name[len("cred_"):] == field) {
			return uint32(base) + uint32(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownField, field)
}

// Scheme is one candidate rule for turning (seed, field, item) into an address.
// Order and Versioned apply to flat schemes; Index, Base and Key to indexed ones.
type Scheme struct {
	Layout    Layout
	Hash      Hash
	Prefix    Prefix
	Order     Order
	Versioned bool
	Index     IndexWidth
	Base      uint8
	Key       KeyForm
}

func (s Scheme) String() string {
	if s.Layout == Indexed {
		return fmt.Sprintf("%s/indexed/%s@%d/%s/%s", s.Hash, s.Index, s.Base, s.Prefix, s.Key)
	}
	v := "unversioned"
	if s.Versioned {
		v = fmt.Sprintf("version=0x%02x", VersionByte)
	}
	return fmt.Sprintf("%s/%s/%s/%s", s.Hash, s.Prefix, s.Order, v)
}

// ItemKey returns the dictionary item key of an indexed scheme: the digest of
// index(field) ∥ enc(item), in the scheme's key form.
func (s Scheme) ItemKey(field, item string) ([]byte, error) {
	if s.Layout != Indexed {
		return nil, fmt.Errorf("keyderive: %s has no item key", s)
	}
	idx, err := FieldIndex(field, s.Base)
	if err != nil {
		return nil, err
	}
	buf := s.Index.append(make([]byte, 0, 8+len(item)), idx)
	if buf, err = s.Prefix.appendString(buf, item); err != nil {
		return nil, err
	}
	d, err := s.Hash.sum(buf)
	if err != nil {
		return nil, err
	}
	if s.Key == KeyRaw {
		return d[:], nil
	}
	return []byte(d.Hex()), nil
}

// Preimage returns the bytes hashed into the address.
func (s Scheme) Preimage(seed NamespaceSeed, field, item string) ([]byte, error) {
	if s.Layout == Indexed {
		key, err := s.ItemKey(field, item)
		if err != nil {
			return nil, err
		}
		return append(seed.Bytes(), key...), nil
	}

	first, second := field, item
	if s.Order == ItemFirst {
		first, second = item, field
	}
	buf := make([]byte, 0, 1+SeedSize+8+len(field)+len(item))
	if s.Versioned {
		buf = append(buf, VersionByte)
	}
	buf = append(buf, seed[:]...)
	buf, err := s.Prefix.appendString(buf, first)
	if err != nil {
		return nil, err
	}
	return s.Prefix.appendString(buf, second)
}

// Derive computes the address for (seed, field, item) under this scheme.
func (s Scheme) Derive(seed NamespaceSeed, field, item string) (Address, error) {
	pre, err := s.Preimage(seed, field, item)
	if err != nil {
		return Address{}, err
	}
	return s.Hash.sum(pre)
}

// Catalogue returns every candidate scheme in search order.
// The production scheme is always first.
func Catalogue() []Scheme {
	hashes := []Hash{HashBlake2b256, HashBlake3, HashSHA3_256, HashSHA256}
	prefixes := []Prefix{PrefixCompact, PrefixU32LE, PrefixU32BE}

	out := []Scheme{Production}
	add := func(s Scheme) {
		if s != Production {
			out = append(out, s)
		}
	}
	for _, h := range hashes {
		for _, p := range prefixes {
			for _, w := range []IndexWidth{IndexU32BE, IndexU32LE, IndexU8} {
				for _, base := range []uint8{0, 1} {
					for _, k := range []KeyForm{KeyHex, KeyRaw} {
						add(Scheme{Layout: Indexed, Hash: h, Prefix: p, Index: w, Base: base, Key: k})
					}
				}
			}
		}
	}
	for _, h := range hashes {
		for _, p := range prefixes {
			for _, o := range []Order{FieldFirst, ItemFirst} {
				for _, v := range []bool{false, true} {
					add(Scheme{Hash: h, Prefix: p, Order: o, Versioned: v})
				}
			}
		}
	}
	return out
}
