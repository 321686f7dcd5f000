package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxchat/relay/internal/auth"
	"github.com/fluxchat/relay/internal/wire"
)

const secret = "test-secret"

func TestSignAndVerifyRoundTrip(t *testing.T) {
	signer := auth.NewSigner(secret, "test-issuer", time.Hour)
	verifier := auth.NewVerifier(secret)

	token, err := signer.Sign(wire.Identity{ID: "u1", Username: "ann"})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	identity, err := verifier.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", identity.ID)
	assert.Equal(t, "ann", identity.Username)
}

func TestVerifyMissingToken(t *testing.T) {
	_, err := auth.NewVerifier(secret).Verify("")
	require.ErrorIs(t, err, auth.ErrMissingToken)
}

func TestVerifyMalformedToken(t *testing.T) {
	_, err := auth.NewVerifier(secret).Verify("garbage.token.value")
	require.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestVerifyExpiredToken(t *testing.T) {
	signer := auth.NewSigner(secret, "test-issuer", -time.Minute)
	token, err := signer.Sign(wire.Identity{ID: "u1", Username: "ann"})
	require.NoError(t, err)

	_, err = auth.NewVerifier(secret).Verify(token)
	require.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestVerifyWrongSecret(t *testing.T) {
	token, err := auth.NewSigner("other-secret", "test-issuer", time.Hour).
		Sign(wire.Identity{ID: "u1", Username: "ann"})
	require.NoError(t, err)

	_, err = auth.NewVerifier(secret).Verify(token)
	require.ErrorIs(t, err, auth.ErrInvalidToken)
}

// TestVerifyRejectsUnexpectedAlgorithm pins the HMAC-only policy: a token
// signed with none must not pass even with a matching payload.
func TestVerifyRejectsUnexpectedAlgorithm(t *testing.T) {
	claims := auth.Claims{
		Username: "ann",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = auth.NewVerifier(secret).Verify(token)
	require.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestVerifyRejectsMissingSubject(t *testing.T) {
	signer := auth.NewSigner(secret, "test-issuer", time.Hour)
	token, err := signer.Sign(wire.Identity{Username: "ann"})
	require.NoError(t, err)

	_, err = auth.NewVerifier(secret).Verify(token)
	require.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestPasswordHashAndCheck(t *testing.T) {
	hash, err := auth.HashPassword("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", hash)

	assert.True(t, auth.CheckPassword("hunter2", hash))
	assert.False(t, auth.CheckPassword("wrong", hash))
	assert.False(t, auth.CheckPassword("hunter2", "not-a-hash"))
}
