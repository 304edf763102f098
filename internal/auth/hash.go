package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// nonceBytes is the entropy of a challenge token.
const nonceBytes = 16

// GenerateNonce returns a random hex token read from r.
func GenerateNonce(r io.Reader) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	b := make([]byte, nonceBytes)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// ComputeAuditHash computes a hash for audit log chain integrity.
func ComputeAuditHash(prevHash, data string) string {
	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}
