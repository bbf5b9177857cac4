package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyRoundtrip(t *testing.T) {
	verifier := NewJWTVerifier("test-secret")

	token, err := verifier.Issue(42, "alice", *jwt.NewNumericDate(time.Now().Add(time.Hour)))
	require.NoError(t, err)

	userID, err := verifier.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)
}

func TestVerifyWrongSecret(t *testing.T) {
	issuer := NewJWTVerifier("secret-a")
	verifier := NewJWTVerifier("secret-b")

	token, err := issuer.Issue(42, "alice", *jwt.NewNumericDate(time.Now().Add(time.Hour)))
	require.NoError(t, err)

	_, err = verifier.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyExpired(t *testing.T) {
	verifier := NewJWTVerifier("test-secret")

	token, err := verifier.Issue(42, "alice", *jwt.NewNumericDate(time.Now().Add(-time.Minute)))
	require.NoError(t, err)

	_, err = verifier.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyGarbage(t *testing.T) {
	verifier := NewJWTVerifier("test-secret")

	_, err := verifier.Verify(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsUnsignedToken(t *testing.T) {
	claims := &Claims{
		UserID: 42,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	verifier := NewJWTVerifier("test-secret")
	_, err = verifier.Verify(context.Background(), signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsZeroUserID(t *testing.T) {
	verifier := NewJWTVerifier("test-secret")

	token, err := verifier.Issue(0, "nobody", *jwt.NewNumericDate(time.Now().Add(time.Hour)))
	require.NoError(t, err)

	_, err = verifier.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
