// Package crypto seals tenant endpoint passwords at rest.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/ekaya-inc/datagenie/pkg/apperrors"
)

const sealedPrefix = "v1:"

// ErrInvalidKey is returned when the key is missing or not 32 base64 bytes.
var ErrInvalidKey = errors.New("invalid credentials key: expected base64-encoded 32 bytes")

// SecretCipher encrypts endpoint secrets with AES-256-GCM.
// The endpoint id is bound as additional data, so a sealed password copied
// onto a different endpoint row fails to open.
type SecretCipher struct {
	gcm cipher.AEAD
}

// NewSecretCipher builds a cipher from a base64-encoded 32-byte key
// (openssl rand -base64 32).
func NewSecretCipher(key string) (*SecretCipher, error) {
	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil || len(raw) != 32 {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &SecretCipher{gcm: gcm}, nil
}

// Seal returns "v1:" + base64(nonce || ciphertext || tag). Empty input stays empty.
func (c *SecretCipher) Seal(plaintext, boundTo string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := c.gcm.Seal(nonce, nonce, []byte(plaintext), []byte(boundTo))
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. A wrong key or a mismatched boundTo yields
// apperrors.ErrCredentialsKeyMismatch.
func (c *SecretCipher) Open(sealed, boundTo string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	if !strings.HasPrefix(sealed, sealedPrefix) {
		return "", fmt.Errorf("%w: unknown secret format", apperrors.ErrCredentialsKeyMismatch)
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(sealed, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode failed", apperrors.ErrCredentialsKeyMismatch)
	}

	nonceSize := c.gcm.NonceSize()
	if len(data) < nonceSize+c.gcm.Overhead() {
		return "", fmt.Errorf("%w: ciphertext too short", apperrors.ErrCredentialsKeyMismatch)
	}

	plaintext, err := c.gcm.Open(nil, data[:nonceSize], data[nonceSize:], []byte(boundTo))
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", apperrors.ErrCredentialsKeyMismatch)
	}
	return string(plaintext), nil
}
