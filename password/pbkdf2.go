package password

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// MinIterations is the lowest PBKDF2 iteration count accepted at
	// construction time. Anything below this is not a credential digest.
	MinIterations = 100_000

	minSaltBytes = 16
	minKeyLength = 16
)

// Config holds the PBKDF2 parameters for a deployment.
type Config struct {
	// Salt is the deployment-wide salt. It must be distinct per
	// deployment and at least 16 bytes.
	Salt string
	// Iterations is the PBKDF2 iteration count (>= MinIterations).
	Iterations int
	// KeyLength is the derived key size in bytes (>= 16).
	KeyLength int
}

// DefaultConfig returns the parameter set used when the caller does not
// override them. The salt has no default; it must be supplied.
func DefaultConfig() Config {
	return Config{
		Iterations: MinIterations,
		KeyLength:  32,
	}
}

// Hasher derives and verifies PBKDF2-SHA256 digests.
type Hasher struct {
	salt       []byte
	iterations int
	keyLength  int
}

// New validates cfg and returns a Hasher.
func New(cfg Config) (*Hasher, error) {
	if len(cfg.Salt) < minSaltBytes {
		return nil, errors.New("password: salt must be at least 16 bytes")
	}
	if cfg.Iterations < MinIterations {
		return nil, errors.New("password: iteration count below minimum")
	}
	if cfg.KeyLength < minKeyLength {
		return nil, errors.New("password: key length below minimum")
	}

	return &Hasher{
		salt:       []byte(cfg.Salt),
		iterations: cfg.Iterations,
		keyLength:  cfg.KeyLength,
	}, nil
}

// Hash returns the base64-encoded digest of secret.
func (h *Hasher) Hash(secret string) string {
	key := pbkdf2.Key([]byte(secret), h.salt, h.iterations, h.keyLength, sha256.New)
	return base64.StdEncoding.EncodeToString(key)
}

// Verify reports whether secret hashes to encodedHash. The comparison is
// constant-time over the derived key; a malformed stored hash verifies
// as false, never as an error, so callers cannot leak which side failed.
func (h *Hasher) Verify(secret, encodedHash string) bool {
	stored, err := base64.StdEncoding.DecodeString(encodedHash)
	if err != nil {
		return false
	}
	computed := pbkdf2.Key([]byte(secret), h.salt, h.iterations, h.keyLength, sha256.New)
	return subtle.ConstantTimeCompare(computed, stored) == 1
}
