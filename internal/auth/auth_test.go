package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHashing(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)

	assert.NoError(t, CheckPassword(hash, "correct horse"))
	assert.True(t, errors.Is(CheckPassword(hash, "wrong"), ErrMismatch))
	assert.True(t, errors.Is(CheckPassword("", "anything"), ErrMismatch))
}

func TestNewTokensValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		secret    string
		algorithm string
		wantErr   bool
	}{
		{name: "hs256", secret: "s", algorithm: "HS256"},
		{name: "lower case hs512", secret: "s", algorithm: "hs512"},
		{name: "empty secret", secret: " ", algorithm: "HS256", wantErr: true},
		{name: "asymmetric", secret: "s", algorithm: "RS256", wantErr: true},
		{name: "unknown", secret: "s", algorithm: "none", wantErr: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewTokens(tc.secret, tc.algorithm, time.Minute)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIssueAndParse(t *testing.T) {
	t.Parallel()

	tokens, err := NewTokens("secret", "HS384", 30*time.Minute)
	require.NoError(t, err)

	raw, err := tokens.Issue("person@example.com", "uuid-1")
	require.NoError(t, err)

	claims, err := tokens.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "person@example.com", claims.Subject)
	assert.Equal(t, "uuid-1", claims.UserUUID)
	require.NotNil(t, claims.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), claims.ExpiresAt.Time, 5*time.Second)
}

func TestParseRejectsBadTokens(t *testing.T) {
	t.Parallel()

	tokens, err := NewTokens("secret", "HS256", time.Minute)
	require.NoError(t, err)

	other, err := NewTokens("other-secret", "HS256", time.Minute)
	require.NoError(t, err)
	foreign, err := other.Issue("a@example.com", "u")
	require.NoError(t, err)

	hs512, err := NewTokens("secret", "HS512", time.Minute)
	require.NoError(t, err)
	wrongAlg, err := hs512.Issue("a@example.com", "u")
	require.NoError(t, err)

	expiredIssuer, err := NewTokens("secret", "HS256", time.Minute)
	require.NoError(t, err)
	expiredIssuer.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, err := expiredIssuer.Issue("a@example.com", "u")
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "a@example.com"},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	for name, raw := range map[string]string{
		"garbage":      "not-a-token",
		"wrong secret": foreign,
		"wrong alg":    wrongAlg,
		"expired":      expired,
		"no subject":   noSubject,
		"no expiry":    noExpiry,
	} {
		_, err := tokens.Parse(raw)
		assert.True(t, errors.Is(err, ErrInvalidToken), "%s: %v", name, err)
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{header: "Bearer abc", want: "abc", ok: true},
		{header: "bearer   abc ", want: "abc", ok: true},
		{header: "Basic abc"},
		{header: "Bearer"},
		{header: "Bearer  "},
		{header: ""},
	}
	for _, tc := range tests {
		got, ok := BearerToken(tc.header)
		assert.Equal(t, tc.ok, ok, tc.header)
		assert.Equal(t, tc.want, got, tc.header)
	}
}
