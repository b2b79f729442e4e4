package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOpaqueToken(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		tok, err := NewOpaqueToken()
		require.NoError(t, err)
		assert.Len(t, tok, 64)
		assert.True(t, validOpaqueToken(tok))
		assert.False(t, seen[tok])
		seen[tok] = true
	}
	assert.False(t, validOpaqueToken("abc"))
	assert.False(t, validOpaqueToken(string(make([]byte, 64))))
}

func TestCheckExpiry(t *testing.T) {
	now := time.Now()
	past, future := now.Add(-time.Second), now.Add(time.Second)
	assert.ErrorIs(t, checkExpiry(nil, now), ErrTokenExpired)
	assert.ErrorIs(t, checkExpiry(&past, now), ErrTokenExpired)
	assert.ErrorIs(t, checkExpiry(&now, now), ErrTokenExpired)
	assert.NoError(t, checkExpiry(&future, now))
}

func TestSessionTokenRoundTrip(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	issuer := NewTokenIssuer("secret", time.Hour, clock.Now)

	tok, err := issuer.IssueSession("usr-1")
	require.NoError(t, err)

	claims, err := issuer.ParseSession(tok)
	require.NoError(t, err)
	assert.Equal(t, "usr-1", claims.UserID)
	assert.Equal(t, "usr-1", claims.Subject)
	assert.Equal(t, clock.Now().Add(time.Hour).Unix(), claims.ExpiresAt.Unix())

	clock.Advance(time.Hour + time.Second)
	_, err = issuer.ParseSession(tok)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestSessionTokenRejectsTampering(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour, nil)

	other := NewTokenIssuer("other", time.Hour, nil)
	forged, err := other.IssueSession("usr-1")
	require.NoError(t, err)
	_, err = issuer.ParseSession(forged)
	assert.ErrorIs(t, err, ErrTokenMalformed)

	// alg=none
	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		UserID:           "usr-1",
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = issuer.ParseSession(unsigned)
	assert.ErrorIs(t, err, ErrTokenMalformed)

	// 缺少过期时间
	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: "usr-1"})
	s, err := noExp.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = issuer.ParseSession(s)
	assert.True(t, errors.Is(err, ErrTokenMalformed))
}

func TestTokenReason(t *testing.T) {
	assert.Equal(t, "expired", tokenReason(ErrTokenExpired))
	assert.Equal(t, "malformed", tokenReason(ErrTokenMalformed))
	assert.Equal(t, "not_found", tokenReason(ErrTokenNotFound))
}
