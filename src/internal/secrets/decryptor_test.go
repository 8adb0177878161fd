package secrets

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/chacha20poly1305"
)

func seal(t *testing.T, key, plaintext []byte) []byte {
	t.Helper()

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		t.Fatalf("NewX: %v", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		t.Fatalf("rand: %v", err)
	}
	return append(nonce, aead.Seal(nil, nonce, plaintext, nil)...)
}

func testKey(t *testing.T) []byte {
	t.Helper()

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("rand: %v", err)
	}
	return key
}

func TestDecryptRoundTrip(t *testing.T) {
	t.Parallel()

	key := testKey(t)
	plaintext := []byte("acoustic model weights")

	dec, err := NewKeyDecryptor(key)
	if err != nil {
		t.Fatalf("NewKeyDecryptor: %v", err)
	}

	got, err := dec.Decrypt(seal(t, key, plaintext))
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("plaintext mismatch: got %q", got)
	}
}

func TestDecryptFromKeyFile(t *testing.T) {
	t.Parallel()

	key := testKey(t)
	keyPath := filepath.Join(t.TempDir(), "model.key")
	if err := os.WriteFile(keyPath, []byte(hex.EncodeToString(key)+"\n"), 0600); err != nil {
		t.Fatalf("write key: %v", err)
	}

	dec, err := NewFileKeyDecryptor(keyPath)
	if err != nil {
		t.Fatalf("NewFileKeyDecryptor: %v", err)
	}

	plaintext := []byte("vocoder weights")
	got, err := dec.Decrypt(seal(t, key, plaintext))
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("plaintext mismatch")
	}
}

func TestBadKeyRejected(t *testing.T) {
	t.Parallel()

	if _, err := NewKeyDecryptor(make([]byte, 16)); err == nil {
		t.Fatal("expected error for short key")
	}

	keyPath := filepath.Join(t.TempDir(), "model.key")
	if err := os.WriteFile(keyPath, []byte("not hex at all"), 0600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	if _, err := NewFileKeyDecryptor(keyPath); err == nil {
		t.Fatal("expected error for non-hex key file")
	}
}

func TestTamperedCiphertextRejected(t *testing.T) {
	t.Parallel()

	key := testKey(t)
	dec, err := NewKeyDecryptor(key)
	if err != nil {
		t.Fatalf("NewKeyDecryptor: %v", err)
	}

	sealed := seal(t, key, []byte("model payload"))
	sealed[len(sealed)-1] ^= 0x01

	if _, err := dec.Decrypt(sealed); err == nil {
		t.Fatal("expected authentication failure for tampered ciphertext")
	}

	if _, err := dec.Decrypt([]byte("short")); err == nil {
		t.Fatal("expected error for undersized ciphertext")
	}
}
