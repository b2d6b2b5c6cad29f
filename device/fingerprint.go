package device

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint derives the device identity hash from the client-observable
// signals. It is SHA-256 of "ip:userAgent" over the raw inputs: no
// normalization, order- and case-sensitive, and an empty user agent is valid.
// The result is always 64 lowercase hex characters.
func Fingerprint(ip, userAgent string) string {
	sum := sha256.Sum256([]byte(ip + ":" + userAgent))
	return hex.EncodeToString(sum[:])
}
