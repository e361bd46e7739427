// Package secret encrypts integration tokens at rest with AES-256-GCM.
// The key is derived from a configured passphrase with Argon2id.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

var (
	ErrEmptyPassphrase    = errors.New("secret: empty passphrase")
	ErrCiphertextTooShort = errors.New("secret: ciphertext too short")
)

// fixed salt: this is a system-wide key, not a per-user password
var salt = []byte("moodboard-credentials-v1")

type Box struct {
	aead cipher.AEAD
}

// NewBox derives a 32-byte key from passphrase and prepares the AEAD.
func NewBox(passphrase string) (*Box, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	key := argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &Box{aead: aead}, nil
}

// Seal returns base64(nonce || ciphertext). Empty input stays empty.
func (b *Box) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	out := b.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal.
func (b *Box) Open(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decode base64: %w", err)
	}
	ns := b.aead.NonceSize()
	if len(data) < ns {
		return "", ErrCiphertextTooShort
	}
	plain, err := b.aead.Open(nil, data[:ns], data[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plain), nil
}
