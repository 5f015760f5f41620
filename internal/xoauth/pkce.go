// Package xoauth implements the OAuth 2.0 authorization-code flow against the
// X API: PKCE code generation, authorization URL construction, and the token
// endpoint grants (exchange, refresh, revoke) plus the profile lookup used to
// resolve a linked account after exchange.
package xoauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// PKCECodes holds a verifier/challenge pair for one authorization attempt.
type PKCECodes struct {
	CodeVerifier  string
	CodeChallenge string
}

// GeneratePKCECodes creates a cryptographically random code verifier and its
// S256 code challenge as specified in RFC 7636. Plain PKCE is never used.
func GeneratePKCECodes() (*PKCECodes, error) {
	verifier, err := generateCodeVerifier()
	if err != nil {
		return nil, fmt.Errorf("failed to generate code verifier: %w", err)
	}
	return &PKCECodes{
		CodeVerifier:  verifier,
		CodeChallenge: S256Challenge(verifier),
	}, nil
}

// GenerateState creates a random anti-CSRF state token. It binds the
// authorization request to its callback and carries no other meaning.
func GenerateState() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(bytes), nil
}

// generateCodeVerifier creates a random URL-safe string of 86 characters,
// comfortably above the 43-character minimum required by RFC 7636.
func generateCodeVerifier() (string, error) {
	bytes := make([]byte, 64)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(bytes), nil
}

// S256Challenge returns the SHA256 digest of the verifier encoded as URL-safe
// base64 without padding.
func S256Challenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(hash[:])
}
