package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpiryBuffer is how long before expiry a token counts as expiring
const TokenExpiryBuffer = 5 * time.Minute

// TokenExpiry reads the exp claim of a JWT access token. The signature is
// not verified; the result is only used for logging and status output.
func TokenExpiry(token string) (time.Time, bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(bareToken(token), &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// TokenExpired reports whether a JWT is expired or expires within
// TokenExpiryBuffer. Opaque tokens are never considered expired.
func TokenExpired(token string, now time.Time) bool {
	exp, ok := TokenExpiry(token)
	if !ok {
		return false
	}
	return !now.Before(exp.Add(-TokenExpiryBuffer))
}

// bareToken strips a leading "Bearer " to avoid sending it twice
func bareToken(token string) string {
	bare := strings.TrimSpace(token)
	if len(bare) >= 7 && strings.EqualFold(bare[:7], "Bearer ") {
		bare = strings.TrimSpace(bare[7:])
	}
	return bare
}

// TokenPreview returns a sanitized form of token safe for logs
func TokenPreview(token string) string {
	bare := bareToken(token)
	if len(bare) > 12 {
		return bare[:6] + "…" + bare[len(bare)-6:]
	}
	return strings.Repeat("*", len(bare))
}
