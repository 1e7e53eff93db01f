package security

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

// ErrDecrypt is returned when a ciphertext cannot be opened, either because
// it was tampered with or sealed under a different key.
var ErrDecrypt = errors.New("security: decryption failed")

// Keychain seals and opens tenant database credentials. Unlike password
// hashing, these secrets have to round-trip: the resolver needs the
// plaintext back to dial the tenant pool.
type Keychain struct {
	key [keySize]byte
}

// NewKeychain builds a Keychain from a base64-encoded 32-byte key.
func NewKeychain(encodedKey string) (*Keychain, error) {
	raw, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("security: decode key: %w", err)
	}
	if len(raw) != keySize {
		return nil, fmt.Errorf("security: key must be %d bytes, got %d", keySize, len(raw))
	}

	kc := &Keychain{}
	copy(kc.key[:], raw)
	return kc, nil
}

// Seal encrypts plaintext with a random nonce. The nonce is prepended to
// the returned ciphertext.
func (k *Keychain) Seal(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("security: nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &k.key), nil
}

// Open decrypts a ciphertext produced by Seal.
func (k *Keychain) Open(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < nonceSize {
		return nil, ErrDecrypt
	}

	var nonce [nonceSize]byte
	copy(nonce[:], ciphertext[:nonceSize])

	plaintext, ok := secretbox.Open(nil, ciphertext[nonceSize:], &nonce, &k.key)
	if !ok {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

// SealString is Seal for string secrets.
func (k *Keychain) SealString(plaintext string) ([]byte, error) {
	return k.Seal([]byte(plaintext))
}

// OpenString is Open for string secrets.
func (k *Keychain) OpenString(ciphertext []byte) (string, error) {
	raw, err := k.Open(ciphertext)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// GeneratePassword returns a random URL-safe secret suitable for a tenant
// database role.
func GeneratePassword() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("security: generate password: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
