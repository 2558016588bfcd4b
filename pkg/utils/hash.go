package utils

import (
	"crypto/sha256"
	"fmt"
)

// HashKey derives a stable cache key from an arbitrary string, typically a
// tenant/query/context tuple.
func HashKey(input string) string {
	hash := sha256.Sum256([]byte(input))
	return fmt.Sprintf("%x", hash)
}
