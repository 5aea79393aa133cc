package token

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
)

// APIKeyPrefix marks generated keys.
const APIKeyPrefix = "sdbk_"

// DefaultLength is the default key length in random bytes.
const DefaultLength = 32

// NewAPIKey returns a fresh key with DefaultLength random bytes.
func NewAPIKey() (string, error) {
	return NewAPIKeyWithLength(DefaultLength)
}

// NewAPIKeyWithLength returns a fresh key with length random bytes.
func NewAPIKeyWithLength(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return APIKeyPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}

// IsGenerated reports whether key has the shape NewAPIKey produces.
func IsGenerated(key string) bool {
	body, ok := strings.CutPrefix(key, APIKeyPrefix)
	if !ok || len(body) != base64.RawURLEncoding.EncodedLen(DefaultLength) {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(body)
	return err == nil
}
