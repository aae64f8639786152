package jwt

import (
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accounthub/config"
)

func newTestManager() *Manager {
	return NewManager(&config.AuthConfig{
		JWTSecret:       "test-secret-key-for-unit-testing-2026",
		AccessTokenTTL:  5 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})
}

func TestGenerateAndParseAccessToken(t *testing.T) {
	m := newTestManager()

	token, err := m.GenerateAccessToken(7, true)
	require.NoError(t, err)

	claims, err := m.ParseToken(token)
	require.NoError(t, err)

	assert.Equal(t, uint(7), claims.UserID)
	assert.True(t, claims.IsStaff)
	assert.Equal(t, TokenTypeAccess, claims.TokenType)
	assert.Equal(t, "accounthub", claims.Issuer)
	assert.NotEmpty(t, claims.ID, "JTI 不应为空")
	assert.Equal(t, 5*time.Minute, claims.ExpiresAt.Time.Sub(claims.IssuedAt.Time))
}

func TestGenerateRefreshToken(t *testing.T) {
	m := newTestManager()

	token, err := m.GenerateRefreshToken(3, false)
	require.NoError(t, err)

	claims, err := m.ParseTokenOfType(token, TokenTypeRefresh)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeRefresh, claims.TokenType)
	assert.Equal(t, 24*time.Hour, claims.ExpiresAt.Time.Sub(claims.IssuedAt.Time))
}

func TestParseTokenOfType_WrongType(t *testing.T) {
	m := newTestManager()

	token, err := m.GenerateAccessToken(1, false)
	require.NoError(t, err)
	_, err = m.ParseTokenOfType(token, TokenTypeRefresh)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokensHaveUniqueJTI(t *testing.T) {
	m := newTestManager()

	a, err := m.GenerateAccessToken(1, false)
	require.NoError(t, err)
	b, err := m.GenerateAccessToken(1, false)
	require.NoError(t, err)
	require.NotEqual(t, a, b, "两次生成的 Token 不应相同")

	ca, err := m.ParseToken(a)
	require.NoError(t, err)
	cb, err := m.ParseToken(b)
	require.NoError(t, err)
	assert.NotEqual(t, ca.ID, cb.ID, "两次生成的 JTI 不应相同")
}

func TestParseToken_Expired(t *testing.T) {
	m := newTestManager()
	issued := time.Now().Add(-48 * time.Hour)
	m.now = func() time.Time { return issued }

	token, err := m.GenerateRefreshToken(1, false)
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.ParseToken(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestParseToken_WrongSecret(t *testing.T) {
	m := newTestManager()
	token, err := m.GenerateAccessToken(1, false)
	require.NoError(t, err)

	other := NewManager(&config.AuthConfig{
		JWTSecret:      "another-secret-key-for-unit-tests",
		AccessTokenTTL: 5 * time.Minute,
	})
	_, err = other.ParseToken(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestParseToken_Garbage(t *testing.T) {
	_, err := newTestManager().ParseToken("wrong_refresh_token")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestParseToken_RejectsNoneAlgorithm(t *testing.T) {
	m := newTestManager()
	claims := Claims{
		UserID:    1,
		TokenType: TokenTypeAccess,
		RegisteredClaims: jwtv5.RegisteredClaims{
			Issuer:    "accounthub",
			ExpiresAt: jwtv5.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := jwtv5.NewWithClaims(jwtv5.SigningMethodNone, claims)
	s, err := token.SignedString(jwtv5.UnsafeAllowNoneSignatureType)
	require.NoError(t, err, "构造 none Token 失败")

	_, err = m.ParseToken(s)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestRemainingTTL(t *testing.T) {
	m := newTestManager()
	token, err := m.GenerateAccessToken(1, false)
	require.NoError(t, err)
	claims, err := m.ParseToken(token)
	require.NoError(t, err)

	ttl := m.RemainingTTL(claims)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, 5*time.Minute)
	assert.Zero(t, m.RemainingTTL(&Claims{}), "无过期时间的 Claims 剩余有效期应为 0")
}
