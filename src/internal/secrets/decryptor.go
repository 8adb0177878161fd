package secrets

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// Decryptor turns an encrypted model artifact into its plaintext bytes.
// The engine only consumes this capability; key provisioning and
// distribution policy live with the license subsystem.
type Decryptor interface {
	Decrypt(ciphertext []byte) ([]byte, error)
}

// FileKeyDecryptor decrypts XChaCha20-Poly1305 sealed model files using a
// symmetric key read from a local key file. The wire format is the
// 24-byte nonce followed by the sealed payload.
type FileKeyDecryptor struct {
	key []byte
}

// NewFileKeyDecryptor loads the hex-encoded 32-byte key at keyPath.
func NewFileKeyDecryptor(keyPath string) (*FileKeyDecryptor, error) {
	data, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model key: %w", err)
	}

	key, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode model key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("model key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}

	return &FileKeyDecryptor{key: key}, nil
}

// NewKeyDecryptor wraps an already-provisioned raw key.
func NewKeyDecryptor(key []byte) (*FileKeyDecryptor, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("model key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &FileKeyDecryptor{key: key}, nil
}

// Decrypt opens a sealed artifact.
func (d *FileKeyDecryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(d.key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}

	if len(ciphertext) < aead.NonceSize() {
		return nil, fmt.Errorf("ciphertext shorter than nonce")
	}

	nonce := ciphertext[:aead.NonceSize()]
	sealed := ciphertext[aead.NonceSize():]

	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open sealed artifact: %w", err)
	}
	return plain, nil
}
