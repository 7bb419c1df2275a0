package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// refreshSecretBytes is the entropy of a raw refresh secret.
const refreshSecretBytes = 48

// GenerateRefreshSecret returns a URL-safe random secret. The caller hands it to the
// client once and stores only its hash.
func GenerateRefreshSecret() (string, error) {
	buf := make([]byte, refreshSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// RefreshHasher derives the lookup hash persisted for a raw refresh secret.
type RefreshHasher struct {
	pepper []byte
}

// NewRefreshHasher returns a hasher; an empty pepper selects plain SHA-256.
func NewRefreshHasher(pepper string) RefreshHasher {
	if pepper == "" {
		return RefreshHasher{}
	}
	return RefreshHasher{pepper: []byte(pepper)}
}

// Hash returns the hex digest of raw.
func (h RefreshHasher) Hash(raw string) string {
	if len(h.pepper) == 0 {
		sum := sha256.Sum256([]byte(raw))
		return hex.EncodeToString(sum[:])
	}
	mac := hmac.New(sha256.New, h.pepper)
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}
