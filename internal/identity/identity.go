// Package identity mints and verifies bearer tokens carrying a uid and role.
// Tokens are standard three-part JWTs, HMAC-SHA256 signed with a configured
// shared secret.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/maypok86/otter/v2"

	"github.com/raskol/raskol/internal/raskol"
)

// Verification failure reasons, appended as a one-word suffix to the 401
// body per spec's "one-word reason suffix" requirement.
var (
	ErrBadFormat     = errors.New("bad-format")
	ErrBadSignature  = errors.New("bad-signature")
	ErrWrongIssuer   = errors.New("wrong-issuer")
	ErrWrongAudience = errors.New("wrong-audience")
	ErrExpired       = errors.New("expired")
)

const (
	cacheTTL    = 30 * time.Second
	cacheMaxLen = 10_000
)

// claims is the JWT payload shape, mapped to raskol.Claims after verification.
type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Service mints and verifies tokens against a single shared secret, issuer,
// and audience. Verified claims are cached briefly keyed by a hash of the
// raw token, so repeated calls on a hot connection skip re-verifying the
// HMAC signature.
type Service struct {
	secret   []byte
	issuer   string
	audience string
	cache    *otter.Cache[string, *raskol.Claims]
}

// New returns a Service. secret must be non-empty.
func New(secret, issuer, audience string) (*Service, error) {
	if secret == "" {
		return nil, errors.New("identity: empty secret")
	}
	c, err := otter.New(&otter.Options[string, *raskol.Claims]{
		MaximumSize:      cacheMaxLen,
		ExpiryCalculator: otter.ExpiryWriting[string, *raskol.Claims](cacheTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("identity: create verify cache: %w", err)
	}
	return &Service{secret: []byte(secret), issuer: issuer, audience: audience, cache: c}, nil
}

// Mint returns a signed token for uid with the given TTL and role.
// uid must be non-empty and ttl must be positive.
func (s *Service) Mint(uid string, ttl time.Duration, role raskol.Role) (string, error) {
	if uid == "" {
		return "", errors.New("identity: empty uid")
	}
	if ttl <= 0 {
		return "", errors.New("identity: non-positive ttl")
	}
	now := time.Now()
	c := claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.secret)
}

// Verify validates raw against the configured secret, issuer, and audience
// at the given instant, returning the extracted claims on success.
func (s *Service) Verify(raw string, now time.Time) (*raskol.Claims, error) {
	key := tokenCacheKey(raw)
	if c, ok := s.cache.GetIfPresent(key); ok {
		if !c.ExpiresAt.After(now) {
			s.cache.Invalidate(key)
			return nil, ErrExpired
		}
		return c, nil
	}

	var parsed claims
	_, err := jwt.ParseWithClaims(raw, &parsed, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrBadSignature
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrBadSignature
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrBadFormat
		default:
			return nil, ErrBadFormat
		}
	}

	if parsed.Issuer != s.issuer {
		return nil, ErrWrongIssuer
	}
	if !containsAudience(parsed.Audience, s.audience) {
		return nil, ErrWrongAudience
	}
	exp := parsed.ExpiresAt.Time
	if !exp.After(now) {
		return nil, ErrExpired
	}

	c := &raskol.Claims{
		Subject:   parsed.Subject,
		Issuer:    parsed.Issuer,
		Audience:  s.audience,
		ExpiresAt: exp,
		Role:      raskol.Role(parsed.Role),
	}
	s.cache.Set(key, c)
	return c, nil
}

func containsAudience(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}

// tokenCacheKey hashes the raw token so the cache never retains it in
// recoverable form.
func tokenCacheKey(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
