package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestValidateTokenAcceptsSubjectClaims(t *testing.T) {
	v := NewJWTValidator("secret")

	id, err := v.ValidateToken(context.Background(), sign(t, "secret", jwt.MapClaims{"sub": "42"}))
	require.NoError(t, err)
	assert.Equal(t, 42, id)

	id, err = v.ValidateToken(context.Background(), sign(t, "secret", jwt.MapClaims{"user_id": 7}))
	require.NoError(t, err)
	assert.Equal(t, 7, id)
}

func TestValidateTokenRejects(t *testing.T) {
	v := NewJWTValidator("secret")

	cases := map[string]string{
		"empty":        "",
		"garbage":      "not-a-token",
		"wrong secret": sign(t, "other", jwt.MapClaims{"sub": "1"}),
		"no subject":   sign(t, "secret", jwt.MapClaims{"name": "x"}),
		"expired":      sign(t, "secret", jwt.MapClaims{"sub": "1", "exp": time.Now().Add(-time.Hour).Unix()}),
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.ValidateToken(context.Background(), token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestBearerToken(t *testing.T) {
	token, ok := BearerToken("Bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", token)

	token, ok = BearerToken("bearer  xyz ")
	assert.True(t, ok)
	assert.Equal(t, "xyz", token)

	_, ok = BearerToken("Basic abc")
	assert.False(t, ok)
	_, ok = BearerToken("Bearer")
	assert.False(t, ok)
}
