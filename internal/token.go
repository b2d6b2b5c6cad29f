package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"

	"github.com/google/uuid"
)

const (
	refreshSecretSize   = 32
	refreshTokenRawSize = 16 + refreshSecretSize
)

var errInvalidTokenSize = errors.New("invalid refresh token size")

// NewRefreshSecret returns a fresh random token secret. Only the SHA-256 of
// the secret is ever persisted.
func NewRefreshSecret() ([refreshSecretSize]byte, error) {
	var secret [refreshSecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

func HashRefreshSecret(secret [refreshSecretSize]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

// EncodeRefreshToken packs familyID||secret into the opaque wire form handed
// to clients. The family ID is the canonical UUID string of the family.
func EncodeRefreshToken(familyID string, secret [refreshSecretSize]byte) (string, error) {
	fid, err := uuid.Parse(familyID)
	if err != nil {
		return "", err
	}

	var raw [refreshTokenRawSize]byte
	copy(raw[:16], fid[:])
	copy(raw[16:], secret[:])

	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// DecodeRefreshToken splits an opaque token back into its family ID and
// secret. Malformed input of any kind is rejected before the caller touches
// storage.
func DecodeRefreshToken(token string) (string, [refreshSecretSize]byte, error) {
	var secret [refreshSecretSize]byte

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", secret, err
	}
	if len(raw) != refreshTokenRawSize {
		return "", secret, errInvalidTokenSize
	}

	var fid uuid.UUID
	copy(fid[:], raw[:16])
	copy(secret[:], raw[16:])

	return fid.String(), secret, nil
}
