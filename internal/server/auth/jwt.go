// Package auth verifies bearer tokens issued by the external auth provider.
// Tokens are HS256 JWTs whose subject is the user id. Verification results
// are memoized in a small LRU so hot clients do not re-verify on every
// request; cached entries still honor token expiry.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/g1mliii/anchored/internal/common"
)

const cacheSize = 1024

type cachedClaim struct {
	userID    string
	expiresAt time.Time
}

type Verifier struct {
	secret []byte
	cache  *lru.Cache[string, cachedClaim]
	now    func() time.Time
}

func NewVerifier(secret []byte) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("jwt secret must not be empty")
	}
	cache, err := lru.New[string, cachedClaim](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Verifier{secret: secret, cache: cache, now: time.Now}, nil
}

// Verify returns the user id carried by the token, or an error matching
// common.ErrUnauthorized.
func (v *Verifier) Verify(token string) (string, error) {
	if claim, ok := v.cache.Get(token); ok {
		if v.now().Before(claim.expiresAt) {
			return claim.userID, nil
		}
		v.cache.Remove(token)
		return "", fmt.Errorf("%w: token expired", common.ErrUnauthorized)
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: invalid token", common.ErrUnauthorized)
	}

	subject, err := parsed.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", fmt.Errorf("%w: token has no subject", common.ErrUnauthorized)
	}

	expiresAt := v.now().Add(time.Minute)
	if exp, err := parsed.Claims.GetExpirationTime(); err == nil && exp != nil {
		expiresAt = exp.Time
	}
	v.cache.Add(token, cachedClaim{userID: subject, expiresAt: expiresAt})

	return subject, nil
}

// NewToken mints an HS256 token for the given user. The production token
// issuer is the external auth provider; this exists for development and
// tests.
func NewToken(secret []byte, userID string, ttl time.Duration) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
