package keys

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Standard file names in a key directory written by the ledger's keygen.
const (
	SecretKeyFile    = "secret_key.pem"
	PublicKeyHexFile = "public_key_hex"
)

// ParseSecretKeyPEM reads an ed25519 secret key in PKCS#8 PEM form and
// returns its public key. Other algorithms are reported as unsupported;
// callers can fall back to the public_key_hex file.
func ParseSecretKeyPEM(b []byte) (PublicKey, error) {
	block, _ := pem.Decode(b)
	if block == nil {
		return PublicKey{}, errors.New("keys: no PEM block in secret key")
	}
	switch block.Type {
	case "PRIVATE KEY":
	case "EC PRIVATE KEY":
		return PublicKey{}, fmt.Errorf("keys: %s secret keys are not supported; use %s", Secp256k1, PublicKeyHexFile)
	default:
		return PublicKey{}, fmt.Errorf("keys: unexpected PEM block %q", block.Type)
	}
	k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return PublicKey{}, fmt.Errorf("keys: secret key: %w", err)
	}
	priv, ok := k.(ed25519.PrivateKey)
	if !ok {
		return PublicKey{}, fmt.Errorf("keys: secret key is %T, want ed25519", k)
	}
	return FromEd25519(priv.Public().(ed25519.PublicKey))
}

// LoadSecretKey reads and parses a secret key file.
func LoadSecretKey(path string) (PublicKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return PublicKey{}, err
	}
	return ParseSecretKeyPEM(b)
}

// LoadAccount determines the signer's public key from the secret key at
// secretKeyPath. When the secret key cannot be parsed, public_key_hex next to
// it is used instead.
func LoadAccount(secretKeyPath string) (PublicKey, error) {
	pub, err := LoadSecretKey(secretKeyPath)
	if err == nil {
		return pub, nil
	}
	b, herr := os.ReadFile(filepath.Join(filepath.Dir(secretKeyPath), PublicKeyHexFile))
	if herr != nil {
		return PublicKey{}, err
	}
	return ParsePublicKeyHex(string(b))
}

// WriteEd25519 writes a key directory for priv, as the ledger keygen does.
// Existing files are not overwritten.
func WriteEd25519(dir string, priv ed25519.PrivateKey) (PublicKey, error) {
	pub, err := FromEd25519(priv.Public().(ed25519.PublicKey))
	if err != nil {
		return PublicKey{}, err
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return PublicKey{}, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return PublicKey{}, err
	}
	if err := writeNew(filepath.Join(dir, SecretKeyFile), pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), 0o600); err != nil {
		return PublicKey{}, err
	}
	if err := writeNew(filepath.Join(dir, PublicKeyHexFile), []byte(pub.Hex()), 0o644); err != nil {
		return PublicKey{}, err
	}
	return pub, nil
}

func writeNew(path string, b []byte, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
