// Package hashing computes exact-match content digests of raw image bytes.
package hashing

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"imagededup/errortracker"
)

// Algorithm names accepted by New
const (
	MD5    = "md5"
	SHA256 = "sha256"
	XXHash = "xxhash"
)

// ContentHasher returns a fixed-width hex digest of raw bytes. Equal input
// always gives an equal digest.
type ContentHasher interface {
	Hash(data []byte) string
	Name() string
}

// New returns the hasher registered under name; an empty name selects md5
func New(name string) (ContentHasher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", MD5:
		return md5Hasher{}, nil
	case SHA256:
		return sha256Hasher{}, nil
	case XXHash:
		return xxHasher{}, nil
	default:
		return nil, errortracker.Config("unknown content hash %q (want md5, sha256 or xxhash)", name)
	}
}

type md5Hasher struct{}

func (md5Hasher) Hash(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func (md5Hasher) Name() string { return MD5 }

type sha256Hasher struct{}

func (sha256Hasher) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (sha256Hasher) Name() string { return SHA256 }

type xxHasher struct{}

// Hash returns the 64-bit digest zero-padded to 16 hex digits
func (xxHasher) Hash(data []byte) string {
	s := strconv.FormatUint(xxhash.Sum64(data), 16)
	return strings.Repeat("0", 16-len(s)) + s
}

func (xxHasher) Name() string { return XXHash }
