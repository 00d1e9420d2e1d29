// Package secrets seals organization-supplied voice provider keys at rest.
// Ciphertexts are AES-256-GCM with the nonce prepended, hex-encoded so the
// stored column stays plain text.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// ErrKeySize is returned when the configured key is not 32 bytes.
var ErrKeySize = errors.New("secrets: key must be 32 bytes")

// Keybox seals and opens credential strings with a fixed key. The AEAD is
// built once at construction, so a bad key fails fast instead of on first use.
type Keybox struct {
	aead cipher.AEAD
}

func NewKeybox(key []byte) (*Keybox, error) {
	if len(key) != 32 {
		return nil, ErrKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &Keybox{aead: aead}, nil
}

// Seal encrypts plaintext and returns the hex-encoded nonce+ciphertext.
func (k *Keybox) Seal(plaintext string) (string, error) {
	nonce := make([]byte, k.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return hex.EncodeToString(k.aead.Seal(nonce, nonce, []byte(plaintext), nil)), nil
}

// Open decrypts a value produced by Seal.
func (k *Keybox) Open(encoded string) (string, error) {
	data, err := hex.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("hex decode: %w", err)
	}
	if len(data) < k.aead.NonceSize() {
		return "", errors.New("ciphertext too short")
	}
	nonce, ciphertext := data[:k.aead.NonceSize()], data[k.aead.NonceSize():]
	plaintext, err := k.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}
