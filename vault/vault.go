// Package vault encrypts stored remote-instance credentials with a single
// process-wide AES-256-GCM key. Encrypted values are self-describing strings
// of the form "enc:v1:" + base64(nonce || ciphertext) so they can live in
// ordinary TEXT columns.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32

	// EncPrefix marks encrypted values. Decrypt rejects anything without it.
	EncPrefix = "enc:v1:"
)

// ErrDecryptFailed is returned when a stored value cannot be decrypted,
// whether because it is malformed or was encrypted under a different key.
var ErrDecryptFailed = errors.New("decryption failed")

// Vault holds the process-wide encryption key.
type Vault struct {
	key []byte
}

// New creates a Vault from raw key material.
func New(key []byte) (*Vault, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("vault: key must be %d bytes, got %d", KeySize, len(key))
	}
	return &Vault{key: key}, nil
}

// Open loads the key from keyPath, generating and writing a new key (0600)
// if the file does not exist yet. A key file of the wrong size is an error,
// never silently regenerated, since that would orphan existing ciphertexts.
func Open(keyPath string) (*Vault, error) {
	data, err := os.ReadFile(keyPath)
	if err == nil {
		return New(data)
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("vault: read key file: %w", err)
	}

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("vault: generate key: %w", err)
	}
	if err := os.WriteFile(keyPath, key, 0o600); err != nil {
		return nil, fmt.Errorf("vault: write key file: %w", err)
	}
	return New(key)
}

// Encrypt seals plaintext and returns a prefixed base64 string.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", fmt.Errorf("vault: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("vault: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("vault: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return EncPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Malformed input, a truncated payload, or a
// value sealed under a different key all return ErrDecryptFailed; garbage is
// never returned as plaintext.
func (v *Vault) Decrypt(stored string) (string, error) {
	if !strings.HasPrefix(stored, EncPrefix) {
		return "", fmt.Errorf("%w: missing %s prefix", ErrDecryptFailed, EncPrefix)
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, EncPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: invalid encoding", ErrDecryptFailed)
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", fmt.Errorf("vault: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("vault: %w", err)
	}

	if len(data) < gcm.NonceSize() {
		return "", fmt.Errorf("%w: value too short", ErrDecryptFailed)
	}

	plaintext, err := gcm.Open(nil, data[:gcm.NonceSize()], data[gcm.NonceSize():], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrDecryptFailed, "authentication failed")
	}
	return string(plaintext), nil
}
