package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperatorTokenRoundTrip(t *testing.T) {
	for _, admin := range []bool{false, true} {
		user := &User{ID: 42, Username: "Operator", IsAdmin: admin}

		token, err := GenerateJWT(user)
		if err != nil {
			t.Fatalf("Ошибка генерации JWT: %v", err)
		}
		assert.Equal(t, 2, strings.Count(token, "."), "JWT из трёх частей")

		claims, ok := ValidateJWT(token)
		require.True(t, ok, "свежий токен должен быть валиден")
		assert.Equal(t, user.ID, claims.UserID)
		assert.Equal(t, "Operator", claims.Username)
		assert.Equal(t, admin, claims.IsAdmin)
		assert.Equal(t, "blockverse", claims.Issuer)
		assert.WithinDuration(t, time.Now().Add(TokenTTL), claims.ExpiresAt.Time, time.Minute)
	}
}

func TestRejectedTokens(t *testing.T) {
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		Username: "old",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	expiredToken, err := expired.SignedString(secret())
	require.NoError(t, err)

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{Username: "mallory", IsAdmin: true})
	foreignToken, err := foreign.SignedString([]byte("some-other-secret-some-other-secret"))
	require.NoError(t, err)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Username: "none", IsAdmin: true})
	noneToken, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := map[string]string{
		"empty":     "",
		"garbage":   "not.a.jwt",
		"expired":   expiredToken,
		"foreign":   foreignToken,
		"alg none":  noneToken,
		"truncated": expiredToken[:len(expiredToken)-4],
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			claims, ok := ValidateJWT(token)
			assert.False(t, ok)
			assert.Nil(t, claims)
		})
	}
}

func TestSecretRotationInvalidatesTokens(t *testing.T) {
	token, err := GenerateJWT(&User{ID: 1, Username: "root", IsAdmin: true})
	require.NoError(t, err)

	fresh, err := GenerateSecureSecret()
	require.NoError(t, err)
	require.NoError(t, SetJWTSecret(fresh))

	_, ok := ValidateJWT(token)
	assert.False(t, ok, "токен старого секрета не должен проходить")

	token, err = GenerateJWT(&User{ID: 1, Username: "root"})
	require.NoError(t, err)
	_, ok = ValidateJWT(token)
	assert.True(t, ok)
}

func TestSetJWTSecretValidation(t *testing.T) {
	a, err := GenerateSecureSecret()
	require.NoError(t, err)
	b, err := GenerateSecureSecret()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.GreaterOrEqual(t, len(a), 44, "base64 от 32 байт")

	for _, bad := range []string{"", "too-short", "invalid-base64-@#$%", "c2hvcnQ="} {
		assert.Error(t, SetJWTSecret(bad), "секрет %q должен быть отвергнут", bad)
	}
}
