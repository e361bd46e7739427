package util

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	APIKeyPrefix    = "mb_"
	apiKeyRandBytes = 20
	displayLen      = 10
)

// NewAPIKey returns a fresh plaintext key, its storage hash and a short display prefix.
func NewAPIKey() (plain, hash, display string, err error) {
	b := make([]byte, apiKeyRandBytes)
	if _, err = rand.Read(b); err != nil {
		return "", "", "", err
	}
	plain = APIKeyPrefix + hex.EncodeToString(b)
	return plain, HashAPIKey(plain), plain[:displayLen], nil
}

// HashAPIKey is the lookup hash stored in api_keys.key_hash.
func HashAPIKey(plain string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(plain)))
	return hex.EncodeToString(sum[:])
}

// LooksLikeAPIKey is a cheap shape check before hitting the database.
func LooksLikeAPIKey(s string) bool {
	if !strings.HasPrefix(s, APIKeyPrefix) || len(s) != len(APIKeyPrefix)+apiKeyRandBytes*2 {
		return false
	}
	_, err := hex.DecodeString(s[len(APIKeyPrefix):])
	return err == nil
}

// RandomToken returns n random bytes hex encoded.
func RandomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
