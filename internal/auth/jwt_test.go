package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	j := NewJWT("test-secret")

	token, err := j.Sign(42)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	uid, err := j.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), uid)
}

func TestJWTRejectsWrongSecret(t *testing.T) {
	token, err := NewJWT("secret-a").Sign(42)
	require.NoError(t, err)

	_, err = NewJWT("secret-b").Verify(token)
	assert.Error(t, err)
}

func TestJWTRejectsGarbage(t *testing.T) {
	_, err := NewJWT("secret").Verify("not-a-token")
	assert.Error(t, err)
}

func TestJWTRejectsExpired(t *testing.T) {
	j := NewJWT("secret")
	j.now = func() time.Time { return time.Now().Add(-2 * tokenTTL) }

	token, err := j.Sign(42)
	require.NoError(t, err)

	_, err = NewJWT("secret").Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTRejectsForeignIssuer(t *testing.T) {
	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": "someone-else",
		"sub": uint64(42),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := foreign.SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewJWT("secret").Verify(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("hunter22")
	require.NoError(t, err)

	assert.True(t, ComparePassword(hash, "hunter22"))
	assert.False(t, ComparePassword(hash, "hunter23"))
}
