// Package auth verifies and issues the bearer tokens that identify chat
// users, and hashes the passwords behind them.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fluxchat/relay/internal/wire"
)

var (
	// ErrMissingToken is returned when no credential was supplied at all.
	ErrMissingToken = errors.New("missing token")
	// ErrInvalidToken is returned for malformed, expired, or tampered tokens.
	ErrInvalidToken = errors.New("invalid token")
)

// Claims is the token payload: the registered subject carries the user id
// and a private claim carries the display name.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Verifier validates bearer tokens and extracts the caller's identity.
// Verification is side-effect free; no room state is touched before it
// succeeds.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier checking HS256 signatures with the given secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates token, returning the identity it asserts.
func (v *Verifier) Verify(token string) (wire.Identity, error) {
	if token == "" {
		return wire.Identity{}, ErrMissingToken
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	})
	if err != nil {
		return wire.Identity{}, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return wire.Identity{}, ErrInvalidToken
	}

	return wire.Identity{ID: claims.Subject, Username: claims.Username}, nil
}

// Signer issues tokens for the HTTP API's register and login routes.
type Signer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewSigner creates a Signer issuing HS256 tokens valid for ttl.
func NewSigner(secret, issuer string, ttl time.Duration) *Signer {
	return &Signer{secret: []byte(secret), issuer: issuer, ttl: ttl}
}

// Sign issues a token asserting the given identity.
func (s *Signer) Sign(identity wire.Identity) (string, error) {
	now := time.Now()
	claims := Claims{
		Username: identity.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}
