package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidate(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("secret"))

	token, expiresAt, err := svc.IssueSessionToken("alice")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(12*time.Hour), expiresAt, time.Minute)

	session, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", session.Subject)
	assert.NotEmpty(t, session.SessionID)

	other, _, err := svc.IssueSessionToken("alice")
	require.NoError(t, err)
	again, err := svc.ValidateToken(other)
	require.NoError(t, err)
	assert.NotEqual(t, session.SessionID, again.SessionID, "every token starts a new session")
}

func TestValidateRejects(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("secret"))
	sign := func(method jwt.SigningMethod, key any, claims Claims) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	valid := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "codeart",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		SessionID: "s1",
	}

	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	foreign := valid
	foreign.Issuer = "elsewhere"
	noSession := valid
	noSession.SessionID = ""

	tests := map[string]string{
		"garbage":       "not-a-token",
		"wrong secret":  sign(jwt.SigningMethodHS256, []byte("other"), valid),
		"expired":       sign(jwt.SigningMethodHS256, []byte("secret"), expired),
		"wrong issuer":  sign(jwt.SigningMethodHS256, []byte("secret"), foreign),
		"no session id": sign(jwt.SigningMethodHS256, []byte("secret"), noSession),
		"none alg":      sign(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, valid),
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			assert.Error(t, err)
		})
	}
}
