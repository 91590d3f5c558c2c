// Package auth guards the administrative kiosk routes with static API keys.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/totem/totem/internal/platform/apierror"
)

const (
	APIKeyHeader = "X-API-Key"
	// apiKeyScheme is accepted in the Authorization header as an alternative.
	apiKeyScheme = "apikey"
)

// KeySet holds the configured admin keys as SHA-256 digests. The raw key
// material is not retained.
type KeySet struct {
	hashes [][sha256.Size]byte
}

// NewKeySet hashes keys, ignoring blanks and duplicates.
func NewKeySet(keys []string) *KeySet {
	ks := &KeySet{}
	seen := make(map[[sha256.Size]byte]bool)
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		h := sha256.Sum256([]byte(k))
		if seen[h] {
			continue
		}
		seen[h] = true
		ks.hashes = append(ks.hashes, h)
	}
	return ks
}

// Enabled reports whether any key is configured.
func (ks *KeySet) Enabled() bool {
	return ks != nil && len(ks.hashes) > 0
}

// Len returns the number of distinct keys.
func (ks *KeySet) Len() int {
	if ks == nil {
		return 0
	}
	return len(ks.hashes)
}

// Validate compares raw against every configured key in constant time and
// returns a short fingerprint identifying the key that matched.
func (ks *KeySet) Validate(raw string) (string, bool) {
	if !ks.Enabled() || raw == "" {
		return "", false
	}
	h := sha256.Sum256([]byte(raw))
	match := -1
	for i := range ks.hashes {
		if subtle.ConstantTimeCompare(h[:], ks.hashes[i][:]) == 1 {
			match = i
		}
	}
	if match < 0 {
		return "", false
	}
	return Fingerprint(raw), true
}

// Fingerprint is the first 8 hex characters of the key's SHA-256, safe to log.
func Fingerprint(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:4])
}

// APIKeyMiddleware rejects requests without a configured key with 401
// INVALID_API_KEY. With no keys configured it lets every request through.
// The matching key's fingerprint is stored under "api_key_id".
func APIKeyMiddleware(keys *KeySet) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !keys.Enabled() {
				return next(c)
			}
			id, ok := keys.Validate(extractAPIKey(c))
			if !ok {
				return apierror.Unauthorized()
			}
			c.Set("api_key_id", id)
			return next(c)
		}
	}
}

// extractAPIKey reads X-API-Key, falling back to "Authorization: ApiKey <key>".
func extractAPIKey(c echo.Context) string {
	if k := c.Request().Header.Get(APIKeyHeader); k != "" {
		return strings.TrimSpace(k)
	}
	authHeader := c.Request().Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], apiKeyScheme) {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
