package engine

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Seed is the 256-bit value that drives one simulation run. It is the sole
// source of randomness for a race: the settlement layer publishes it at race
// close and any replayer feeds the same value back in.
type Seed [32]byte

// ParseSeed decodes a 64-character hex string into a Seed.
func ParseSeed(s string) (Seed, error) {
	var seed Seed
	raw, err := hex.DecodeString(s)
	if err != nil {
		return seed, fmt.Errorf("invalid seed hex: %w", err)
	}
	if len(raw) != len(seed) {
		return seed, fmt.Errorf("seed must be 32 bytes, got %d", len(raw))
	}
	copy(seed[:], raw)
	return seed, nil
}

// String returns the lowercase hex encoding of the seed.
func (s Seed) String() string {
	return hex.EncodeToString(s[:])
}

// Hash returns the SHA-256 hex digest of the seed, safe to persist before
// the seed itself is made public.
func Hash(value string) string {
	if value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// DeriveSeed produces a Seed from a keyed message using HMAC-SHA256. The
// probability estimator uses it to mint an independent, reproducible seed per
// trial: key is the table seed, message identifies the tuple and trial.
func DeriveSeed(key, message string) Seed {
	h := hmac.New(sha256.New, []byte(key))
	h.Write([]byte(message))
	var seed Seed
	copy(seed[:], h.Sum(nil))
	return seed
}
