package isp1

import (
	"crypto/sha1"
	"crypto/sha256"
	"fmt"
	"hash"
	"strings"
)

// HashAlgorithm selects the digest used to protect ISP1 credentials.
// SLE versions 1-3 use SHA-1, versions 4-5 use SHA-256.
type HashAlgorithm int

const (
	SHA1 HashAlgorithm = iota
	SHA256
)

// New returns a fresh digest instance for the algorithm.
func (h HashAlgorithm) New() hash.Hash {
	if h == SHA256 {
		return sha256.New()
	}
	return sha1.New()
}

// Size returns the digest length in bytes: 20 for SHA-1, 32 for SHA-256.
func (h HashAlgorithm) Size() int {
	if h == SHA256 {
		return sha256.Size
	}
	return sha1.Size
}

func (h HashAlgorithm) String() string {
	if h == SHA256 {
		return "SHA-256"
	}
	return "SHA-1"
}

// ParseHashAlgorithm maps a configuration string to a HashAlgorithm.
func ParseHashAlgorithm(s string) (HashAlgorithm, error) {
	switch strings.ToUpper(strings.ReplaceAll(s, "-", "")) {
	case "SHA1":
		return SHA1, nil
	case "SHA256":
		return SHA256, nil
	default:
		return SHA1, fmt.Errorf("unknown hash algorithm %q", s)
	}
}
