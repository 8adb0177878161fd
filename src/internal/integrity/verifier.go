package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// Verifier checks downloaded artifacts against their declared checksums.
// Verification always hashes the complete file; a partial download never
// passes even if a prefix would match.
type Verifier struct{}

// NewVerifier creates a new integrity verifier.
func NewVerifier() *Verifier {
	return &Verifier{}
}

// Checksum computes the hex-encoded SHA-256 digest of the file at path.
func (v *Verifier) Checksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open artifact: %w", err)
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("failed to hash artifact: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Verify reports whether the file at path matches the expected checksum.
// A mismatch returns (false, nil); an error is returned only when the
// file cannot be read at all, which callers treat the same as a mismatch.
func (v *Verifier) Verify(path, expected string) (bool, error) {
	actual, err := v.Checksum(path)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(actual, expected), nil
}

// VerifyBytes reports whether data matches the expected checksum. Used for
// artifacts that are transformed in memory after download, e.g. decrypted
// model files.
func (v *Verifier) VerifyBytes(data []byte, expected string) bool {
	sum := sha256.Sum256(data)
	return strings.EqualFold(hex.EncodeToString(sum[:]), expected)
}
