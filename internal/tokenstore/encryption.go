package tokenstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ErrEncryptionKeyMissing marks a deployment without the token
// encryption key. It is surfaced distinctly so operators see a
// configuration problem instead of a generic failure.
var ErrEncryptionKeyMissing = errors.New("token encryption key is not configured")

// ErrEncryptionKeyInvalid marks a key that is not 32 base64-encoded
// bytes.
var ErrEncryptionKeyInvalid = errors.New("token encryption key must be 32 bytes, base64 encoded")

// Cipher encrypts tokens at rest with AES-256-GCM.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from a base64-encoded 32-byte key.
func NewCipher(keyBase64 string) (*Cipher, error) {
	if strings.TrimSpace(keyBase64) == "" {
		return nil, ErrEncryptionKeyMissing
	}

	key, err := base64.StdEncoding.DecodeString(keyBase64)
	if err != nil || len(key) != 32 {
		return nil, ErrEncryptionKeyInvalid
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("build aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("build gcm: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals a token into "nonceB64:cipherB64" form. GCM appends
// the auth tag to the ciphertext.
func (c *Cipher) Encrypt(token string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nil, nonce, []byte(token), nil)
	return base64.StdEncoding.EncodeToString(nonce) + ":" + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a sealed token. Any malformed or tampered input fails.
func (c *Cipher) Decrypt(stored string) (string, error) {
	nonceB64, sealedB64, found := strings.Cut(stored, ":")
	if !found || nonceB64 == "" || sealedB64 == "" {
		return "", fmt.Errorf("invalid encrypted token format")
	}

	nonce, err := base64.StdEncoding.DecodeString(nonceB64)
	if err != nil || len(nonce) != c.aead.NonceSize() {
		return "", fmt.Errorf("invalid encrypted token nonce")
	}
	sealed, err := base64.StdEncoding.DecodeString(sealedB64)
	if err != nil {
		return "", fmt.Errorf("invalid encrypted token payload")
	}

	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt token: %w", err)
	}
	return string(plain), nil
}
