package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func TestIssueAndParse(t *testing.T) {
	token, err := Issue(secret, "ops@example.com", RoleAdmin, time.Hour)
	require.NoError(t, err)

	claims, err := Parse(secret, token)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", claims.Subject)
	assert.Equal(t, RoleAdmin, claims.Role)
}

func TestParseRejectsWrongSecretAndExpiry(t *testing.T) {
	token, err := Issue(secret, "ops", RoleAdmin, time.Hour)
	require.NoError(t, err)
	_, err = Parse([]byte("other"), token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := Issue(secret, "ops", RoleAdmin, -time.Minute)
	require.NoError(t, err)
	_, err = Parse(secret, expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = Parse(secret, "not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsOtherAlgorithms(t *testing.T) {
	claims := Claims{Role: RoleAdmin, RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "ops",
		Issuer:    "chatpay",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = Parse(secret, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssueRequiresSecret(t *testing.T) {
	_, err := Issue(nil, "ops", RoleAdmin, time.Hour)
	assert.Error(t, err)
}
