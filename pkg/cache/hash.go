package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// idDigest hashes an identifier batch. Each ID is NUL-terminated, so
// ["ab", "c"] and ["a", "bc"] hash differently.
func idDigest(ids []string) string {
	h := sha256.New()
	for _, id := range ids {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Hash returns the hex SHA-256 of data. File cache entries are named by
// the hash of their key.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
