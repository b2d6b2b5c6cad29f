package internal

import (
	"crypto/sha256"
	"crypto/subtle"
)

// HashBindingValue hashes a device-binding input (IP, user agent) for
// constant-size storage and comparison.
func HashBindingValue(v string) [32]byte {
	return sha256.Sum256([]byte(v))
}

// ConstantTimeEqual compares two 32-byte hashes without leaking the position
// of the first differing byte.
func ConstantTimeEqual(a, b [32]byte) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
