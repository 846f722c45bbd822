package linkpin

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"

	"golang.org/x/crypto/hkdf"
)

// hkdfInfo domain-separates the PIN hashing key from any other key derived
// off the same master secret.
const hkdfInfo = "anonid/linkpin/v1"

// Hasher computes keyed one-way hashes of link PINs. Hashing is keyed (HMAC
// under an HKDF-derived key) so a leaked pin table cannot be brute forced
// offline without the master secret.
type Hasher struct {
	key []byte
}

// NewHasher derives the PIN hashing key from the configured master secret
func NewHasher(masterSecret string) (*Hasher, error) {
	if masterSecret == "" {
		return nil, fmt.Errorf("link master secret is required")
	}

	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, []byte(masterSecret), nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("failed to derive pin hash key: %w", err)
	}
	return &Hasher{key: key}, nil
}

// NewEphemeralHasher generates a random key. PINs hashed with it do not
// survive a process restart; only the inmem demo uses this.
func NewEphemeralHasher() (*Hasher, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral link secret: %w", err)
	}
	return NewHasher(hex.EncodeToString(secret))
}

// Hash returns the hex-encoded keyed hash of a plaintext PIN
func (h *Hasher) Hash(pin string) string {
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(pin))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares a plaintext PIN against a stored hash in constant time
func (h *Hasher) Verify(pin, storedHash string) bool {
	computed := h.Hash(pin)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}

// GeneratePin returns a random numeric PIN of the given length, zero padded.
// The length is a policy knob: combined with the TTL it must keep offline
// brute force infeasible at expected request rates.
func GeneratePin(length int) (string, error) {
	if length < 4 {
		return "", fmt.Errorf("pin length must be at least 4 digits, got %d", length)
	}

	space := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, space)
	if err != nil {
		return "", fmt.Errorf("failed to generate pin: %w", err)
	}
	return fmt.Sprintf("%0*d", length, n), nil
}
