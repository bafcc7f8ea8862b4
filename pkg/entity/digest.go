package entity

import (
	"crypto/sha1"
	"encoding/hex"
	"hash"
	"io"
)

// DigestLen is the length of a hex-encoded digest.
const DigestLen = 2 * sha1.Size

// NewHasher returns the hash accumulator used for entity digests. Content is
// identified by SHA-1; two contents are equal iff their digests are equal.
func NewHasher() hash.Hash {
	return sha1.New()
}

// Digest streams r through the hash accumulator and returns the digest and
// the number of bytes consumed. The result is independent of how the content
// is chunked by the reader.
func Digest(r io.Reader) (string, int64, error) {
	h := NewHasher()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// DigestBytes returns the digest of b.
func DigestBytes(b []byte) string {
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:])
}

func hexSum(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}

// ValidDigest reports whether d is well formed. Backends treat a malformed
// digest as absent rather than an error.
func ValidDigest(d string) bool {
	if len(d) != DigestLen {
		return false
	}
	for i := 0; i < len(d); i++ {
		c := d[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
