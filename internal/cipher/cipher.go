// Package cipher provides authenticated encryption for credential material
// stored at rest. The key is derived from a configured secret string, so
// rotating the secret invalidates every stored blob at once: decryption of
// old records fails with a CryptoError and the affected accounts must be
// re-linked.
package cipher

import (
	"crypto/aes"
	gocipher "crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// CryptoError indicates a blob that cannot be decrypted: tampered, truncated,
// or encrypted under a different secret. It is fatal for the record that
// produced it and must not be retried.
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cipher: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("cipher: %s", e.Op)
}

// Unwrap returns the underlying error.
func (e *CryptoError) Unwrap() error {
	return e.Err
}

// Cipher performs AES-256-GCM encryption of opaque strings. The key is the
// SHA-256 digest of the configured secret.
type Cipher struct {
	aead gocipher.AEAD
}

// New derives the symmetric key from secret and returns a ready Cipher.
func New(secret string) (*Cipher, error) {
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("cipher: init AES: %w", err)
	}
	aead, err := gocipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher: init GCM: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce and returns a URL-safe
// base64 blob of nonce||ciphertext. Encrypting the same plaintext twice yields
// different blobs. The empty string passes through unchanged: absence of a
// value is not an error.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("cipher: generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Corrupt input, a truncated blob, or a blob sealed
// under a different secret yields a CryptoError. The empty string passes
// through unchanged.
func (c *Cipher) Decrypt(blob string) (string, error) {
	if blob == "" {
		return "", nil
	}
	raw, err := base64.URLEncoding.DecodeString(blob)
	if err != nil {
		return "", &CryptoError{Op: "decode blob", Err: err}
	}
	if len(raw) < c.aead.NonceSize() {
		return "", &CryptoError{Op: "blob too short"}
	}
	nonce, ciphertext := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", &CryptoError{Op: "open", Err: err}
	}
	return string(plaintext), nil
}
