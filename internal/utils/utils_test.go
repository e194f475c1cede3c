package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	tok, err := NewAccessToken("secret", "cus_1", "CUSTOMER", time.Minute)
	require.NoError(t, err)

	claims, err := ParseAccessToken("secret", tok.Token)
	require.NoError(t, err)
	assert.Equal(t, "cus_1", claims.Subject)
	assert.Equal(t, "CUSTOMER", claims.Role)

	_, err = ParseAccessToken("other", tok.Token)
	assert.Error(t, err)
}

func TestExpiredAccessToken(t *testing.T) {
	tok, err := NewAccessToken("secret", "cus_1", "CUSTOMER", -time.Minute)
	require.NoError(t, err)
	_, err = ParseAccessToken("secret", tok.Token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestTokenWithoutSubject(t *testing.T) {
	tok, err := NewAccessToken("secret", "", "MANAGER", time.Minute)
	require.NoError(t, err)
	_, err = ParseAccessToken("secret", tok.Token)
	assert.Error(t, err)
}

func TestAPIKey(t *testing.T) {
	hash, err := HashAPIKey("checkout-key", bcrypt.MinCost)
	require.NoError(t, err)
	assert.True(t, VerifyAPIKey(hash, "checkout-key"))
	assert.False(t, VerifyAPIKey(hash, "guess"))
	assert.False(t, VerifyAPIKey("", "checkout-key"))
}
