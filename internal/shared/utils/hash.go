package utils

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"
)

// HashAlgorithm represents the hashing algorithm to use
type HashAlgorithm string

const (
	SHA256 HashAlgorithm = "sha256"
	SHA512 HashAlgorithm = "sha512"
)

// SupportedAlgorithms lists every algorithm a Hasher can compute
func SupportedAlgorithms() []HashAlgorithm {
	return []HashAlgorithm{SHA256, SHA512}
}

// ParseAlgorithm converts a user-supplied name into a HashAlgorithm
func ParseAlgorithm(name string) (HashAlgorithm, error) {
	switch strings.ToLower(strings.ReplaceAll(name, "-", "")) {
	case "", "sha256":
		return SHA256, nil
	case "sha512":
		return SHA512, nil
	default:
		return "", fmt.Errorf("unsupported hash algorithm: %s", name)
	}
}

// New returns a fresh hash.Hash for the algorithm
func (a HashAlgorithm) New() hash.Hash {
	switch a {
	case SHA512:
		return sha512.New()
	default:
		return sha256.New()
	}
}

// Hasher provides extensible hashing functionality
type Hasher struct {
	algorithm HashAlgorithm
}

// NewHasher creates a new hasher with the specified algorithm
func NewHasher(algorithm HashAlgorithm) *Hasher {
	return &Hasher{
		algorithm: algorithm,
	}
}

// Hash computes a hash of the input data
func (h *Hasher) Hash(data []byte) string {
	hh := h.algorithm.New()
	hh.Write(data)
	return hex.EncodeToString(hh.Sum(nil))
}

// HashString computes a hash of a string
func (h *Hasher) HashString(s string) string {
	return h.Hash([]byte(s))
}

// MultiHash computes several digests over one pass of r
func MultiHash(r io.Reader, algorithms ...HashAlgorithm) (map[HashAlgorithm]string, error) {
	if len(algorithms) == 0 {
		algorithms = SupportedAlgorithms()
	}

	hashes := make(map[HashAlgorithm]hash.Hash, len(algorithms))
	writers := make([]io.Writer, 0, len(algorithms))
	for _, alg := range algorithms {
		hh := alg.New()
		hashes[alg] = hh
		writers = append(writers, hh)
	}

	if _, err := io.Copy(io.MultiWriter(writers...), r); err != nil {
		return nil, fmt.Errorf("failed to hash stream: %w", err)
	}

	out := make(map[HashAlgorithm]string, len(hashes))
	for alg, hh := range hashes {
		out[alg] = hex.EncodeToString(hh.Sum(nil))
	}
	return out, nil
}
