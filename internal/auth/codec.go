package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// Codec provides encryption/decryption for tokens at rest.
// Uses AES-256-GCM for authenticated encryption.
//
// Security Properties:
//   - AES-256 provides strong confidentiality
//   - GCM mode provides both encryption and authentication (AEAD)
//   - Random nonce for each encryption (never reused)
//   - Protects against tampering
//
// Key Management:
//   - Key must be 32 bytes (256 bits) for AES-256
//   - Key should come from a secure source (e.g., KMS, vault)
//   - Never hardcode keys in source code
type Codec struct {
	key []byte
}

// NewCodec creates a codec from a raw 32-byte key.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be exactly 32 bytes (256 bits), got %d bytes", len(key))
	}
	return &Codec{key: key}, nil
}

// NewCodecFromBase64 creates a codec from a base64-encoded key, the form
// keys take in environment variables.
func NewCodecFromBase64(encoded string) (*Codec, error) {
	key, err := KeyFromBase64(encoded)
	if err != nil {
		return nil, err
	}
	return NewCodec(key)
}

// Encrypt encrypts plaintext using AES-256-GCM.
// Returns base64-encoded: nonce || ciphertext || tag.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	// Nonce must be unique for each encryption with the same key.
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	// GCM appends the authentication tag to the ciphertext.
	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)

	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt decrypts data encrypted with Encrypt.
// Expects base64-encoded: nonce || ciphertext || tag.
// All failure modes wrap ErrDecryptionFailure; error text never includes the
// ciphertext or key material.
func (c *Codec) Decrypt(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64", ErrDecryptionFailure)
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailure)
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		// Wrong key or tampered data; GCM does not distinguish.
		return "", fmt.Errorf("%w: authentication failed", ErrDecryptionFailure)
	}

	return string(plaintext), nil
}

// GenerateKey generates a secure 32-byte encryption key.
// This should be called once and the key stored securely (e.g., in a vault).
// DO NOT call this on every server start; the key must be persistent.
func GenerateKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate encryption key: %w", err)
	}
	return key, nil
}

// KeyFromBase64 converts a base64-encoded key to bytes.
// Useful for loading keys from environment variables.
func KeyFromBase64(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, fmt.Errorf("encryption key is empty")
	}

	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 key: %w", err)
	}

	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d bytes", len(key))
	}

	return key, nil
}

// KeyToBase64 converts a key to base64 for storage.
func KeyToBase64(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}
