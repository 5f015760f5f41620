package cipher

import (
	"errors"
	"testing"
)

func TestCipher_RoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		plaintext string
	}{
		{name: "short token", plaintext: "AT1"},
		{name: "typical access token", plaintext: "ZW5jb2RlZC1hY2Nlc3MtdG9rZW4tdmFsdWU"},
		{name: "unicode", plaintext: "tökén-ревизия-値"},
		{name: "long value", plaintext: string(make([]byte, 4096))},
	}

	c, err := New("unit-test-secret")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob, err := c.Encrypt(tt.plaintext)
			if err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}
			if blob == tt.plaintext {
				t.Error("Encrypt() returned plaintext unchanged")
			}
			got, err := c.Decrypt(blob)
			if err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if got != tt.plaintext {
				t.Errorf("Decrypt() = %q, want %q", got, tt.plaintext)
			}
		})
	}
}

func TestCipher_EncryptNonDeterministic(t *testing.T) {
	c, err := New("unit-test-secret")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	first, err := c.Encrypt("same-plaintext")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	second, err := c.Encrypt("same-plaintext")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if first == second {
		t.Error("two encryptions of the same plaintext produced identical blobs")
	}
}

func TestCipher_EmptyIsIdentity(t *testing.T) {
	c, err := New("unit-test-secret")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	blob, err := c.Encrypt("")
	if err != nil || blob != "" {
		t.Errorf("Encrypt(\"\") = (%q, %v), want (\"\", nil)", blob, err)
	}
	plain, err := c.Decrypt("")
	if err != nil || plain != "" {
		t.Errorf("Decrypt(\"\") = (%q, %v), want (\"\", nil)", plain, err)
	}
}

func TestCipher_DecryptFailures(t *testing.T) {
	c, err := New("unit-test-secret")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	other, err := New("rotated-secret")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	valid, err := c.Encrypt("secret-value")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	tests := []struct {
		name string
		blob string
		c    *Cipher
	}{
		{name: "not base64", blob: "%%%not-base64%%%", c: c},
		{name: "truncated blob", blob: "YWJj", c: c},
		{name: "tampered ciphertext", blob: valid[:len(valid)-4] + "AAAA", c: c},
		{name: "wrong key after rotation", blob: valid, c: other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.c.Decrypt(tt.blob)
			if err == nil {
				t.Fatal("Decrypt() succeeded, want CryptoError")
			}
			var ce *CryptoError
			if !errors.As(err, &ce) {
				t.Errorf("Decrypt() error = %v, want *CryptoError", err)
			}
		})
	}
}
