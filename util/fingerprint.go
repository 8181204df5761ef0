// Package util provides fingerprinting, priority derivation and other helpers for the backend.
//
//revive:disable-next-line:var-naming
package util

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Supported fingerprint algorithms.
const (
	AlgorithmFNV1a32  = "fnv1a32"
	AlgorithmXXHash64 = "xxhash64"
)

// FingerprintInput is the semantic content a fingerprint is derived from.
// Document and framework are not hashed; the store lookup scopes them.
type FingerprintInput struct {
	Title       string
	Category    string
	Severity    string
	Description string
}

// Normalize lowercases, trims and collapses every whitespace run to a single space.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// CanonicalContent builds the string that is hashed. Severity is used verbatim.
func CanonicalContent(in FingerprintInput) string {
	return Normalize(in.Title) + "|" + Normalize(in.Category) + "|" + in.Severity + "|" + Normalize(in.Description)
}

// Fingerprint returns the 16-hex-character FNV-1a 32-bit identity of a finding.
// The 32-bit sum is zero padded to 16 characters, so only 32 bits of entropy are used.
func Fingerprint(in FingerprintInput) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(CanonicalContent(in)))
	return fmt.Sprintf("%016x", h.Sum32())
}

// FingerprintWith selects the hash algorithm. xxhash64 uses the full 64-bit
// sum and is not compatible with fingerprints produced by fnv1a32.
func FingerprintWith(algorithm string, in FingerprintInput) (string, error) {
	switch algorithm {
	case "", AlgorithmFNV1a32:
		return Fingerprint(in), nil
	case AlgorithmXXHash64:
		return fmt.Sprintf("%016x", xxhash.Sum64String(CanonicalContent(in))), nil
	}
	return "", fmt.Errorf("unknown fingerprint algorithm %q", algorithm)
}

// ValidAlgorithm reports whether name is a supported fingerprint algorithm.
func ValidAlgorithm(name string) bool {
	return name == AlgorithmFNV1a32 || name == AlgorithmXXHash64
}
