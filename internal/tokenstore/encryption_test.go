package tokenstore

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"testing"
)

func testKey(t *testing.T) string {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return base64.StdEncoding.EncodeToString(key)
}

func newTestCipher(t *testing.T) *Cipher {
	t.Helper()
	c, err := NewCipher(testKey(t))
	if err != nil {
		t.Fatalf("NewCipher() unexpected error: %v", err)
	}
	return c
}

func TestNewCipherKeyValidation(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		key     string
		wantErr error
	}{
		{name: "missing", key: "", wantErr: ErrEncryptionKeyMissing},
		{name: "whitespace", key: "   ", wantErr: ErrEncryptionKeyMissing},
		{name: "not_base64", key: "not-base64!!", wantErr: ErrEncryptionKeyInvalid},
		{name: "wrong_length", key: base64.StdEncoding.EncodeToString([]byte("short")), wantErr: ErrEncryptionKeyInvalid},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewCipher(tc.key)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("NewCipher(%q) error = %v, want %v", tc.key, err, tc.wantErr)
			}
		})
	}
}

func TestCipherRoundTrip(t *testing.T) {
	t.Parallel()

	c := newTestCipher(t)

	sealed, err := c.Encrypt("glpat-secret")
	if err != nil {
		t.Fatalf("Encrypt() unexpected error: %v", err)
	}
	if sealed == "glpat-secret" {
		t.Fatalf("Encrypt() returned plaintext")
	}

	plain, err := c.Decrypt(sealed)
	if err != nil {
		t.Fatalf("Decrypt() unexpected error: %v", err)
	}
	if plain != "glpat-secret" {
		t.Fatalf("Decrypt() = %q, want glpat-secret", plain)
	}
}

func TestCipherDecryptWithWrongKeyFails(t *testing.T) {
	t.Parallel()

	first := newTestCipher(t)
	second := newTestCipher(t)

	sealed, err := first.Encrypt("glpat-secret")
	if err != nil {
		t.Fatalf("Encrypt() unexpected error: %v", err)
	}

	if _, err := second.Decrypt(sealed); err == nil {
		t.Fatalf("Decrypt() with wrong key expected error, got nil")
	}
}

func TestCipherDecryptMalformedInput(t *testing.T) {
	t.Parallel()

	c := newTestCipher(t)

	for _, stored := range []string{"", "no-separator", ":", "a:", ":b", "!!!:!!!"} {
		if _, err := c.Decrypt(stored); err == nil {
			t.Fatalf("Decrypt(%q) expected error, got nil", stored)
		}
	}
}
