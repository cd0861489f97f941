// Package keys identifies the account that signs lifecycle actions.
//
// The signer itself runs out of process and reads the secret key file. This
// package only derives the public key and account hash from the same key
// material, so the controller can warn when the signer is not the issuer of
// the credential it is about to revoke.
package keys

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"

	"xdao.co/credledger/clvalue"
)

// Algorithm is a ledger signature scheme.
type Algorithm string

const (
	Ed25519   Algorithm = "ed25519"
	Secp256k1 Algorithm = "secp256k1"
)

// tag is the leading byte of the hex public key form.
func (a Algorithm) tag() byte {
	if a == Secp256k1 {
		return 0x02
	}
	return 0x01
}

func (a Algorithm) keySize() int {
	if a == Secp256k1 {
		return 33
	}
	return ed25519.PublicKeySize
}

// PublicKey is a tagged account public key.
type PublicKey struct {
	Algorithm Algorithm
	Bytes     []byte
}

// ParsePublicKeyHex parses the tagged hex form: 01 followed by 32 bytes for
// ed25519, 02 followed by 33 compressed bytes for secp256k1.
func ParsePublicKeyHex(s string) (PublicKey, error) {
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return PublicKey{}, fmt.Errorf("keys: public key hex: %w", err)
	}
	if len(b) == 0 {
		return PublicKey{}, fmt.Errorf("keys: empty public key")
	}
	var alg Algorithm
	switch b[0] {
	case 0x01:
		alg = Ed25519
	case 0x02:
		alg = Secp256k1
	default:
		return PublicKey{}, fmt.Errorf("keys: unknown public key tag %#02x", b[0])
	}
	if len(b)-1 != alg.keySize() {
		return PublicKey{}, fmt.Errorf("keys: %s public key must be %d bytes, got %d", alg, alg.keySize(), len(b)-1)
	}
	return PublicKey{Algorithm: alg, Bytes: b[1:]}, nil
}

// Hex renders the tagged hex form.
func (p PublicKey) Hex() string {
	return hex.EncodeToString(append([]byte{p.Algorithm.tag()}, p.Bytes...))
}

// AccountHash is blake2b-256 over the algorithm name, a zero byte and the
// raw public key.
func (p PublicKey) AccountHash() clvalue.Key {
	h, _ := blake2b.New256(nil)
	_, _ = h.Write([]byte(p.Algorithm))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(p.Bytes)
	k := clvalue.Key{Tag: clvalue.TagAccount}
	copy(k.Hash[:], h.Sum(nil))
	return k
}

// FromEd25519 wraps an ed25519 public key.
func FromEd25519(pub ed25519.PublicKey) (PublicKey, error) {
	if len(pub) != ed25519.PublicKeySize {
		return PublicKey{}, fmt.Errorf("keys: ed25519 public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pub))
	}
	return PublicKey{Algorithm: Ed25519, Bytes: append([]byte(nil), pub...)}, nil
}
