// Package security seals stored school API tokens with NaCl secretbox.
package security

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

var (
	// ErrInvalidKey is returned for keys that are not 32 bytes.
	ErrInvalidKey = errors.New("security: key must be 32 bytes")

	// ErrOpenFailed is returned when a sealed value is truncated, tampered
	// with or sealed under another key.
	ErrOpenFailed = errors.New("security: cannot open sealed value")
)

// SecretBox implements application.Sealer. The sealed form is nonce || box.
type SecretBox struct {
	key  [keySize]byte
	rand io.Reader
}

// NewSecretBox creates a sealer from a 32-byte key.
func NewSecretBox(key []byte) (*SecretBox, error) {
	if len(key) != keySize {
		return nil, ErrInvalidKey
	}
	s := &SecretBox{rand: rand.Reader}
	copy(s.key[:], key)
	return s, nil
}

// Seal encrypts plaintext under a fresh random nonce.
func (s *SecretBox) Seal(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(s.rand, nonce[:]); err != nil {
		return nil, fmt.Errorf("security: read nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &s.key), nil
}

// Open decrypts a value produced by Seal.
func (s *SecretBox) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, ErrOpenFailed
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])

	out, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, ErrOpenFailed
	}
	return out, nil
}
