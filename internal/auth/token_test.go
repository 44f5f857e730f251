package auth

import (
	"testing"
	"time"

	"github.com/fieldops/OpenFieldAgent/internal/types"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims SessionClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("upstream-secret"))
	require.NoError(t, err)
	return token
}

func TestInspect_ReadsClaimsWithoutVerifying(t *testing.T) {
	token := signedToken(t, SessionClaims{
		TechnicianID: "tech-42",
		Role:         "technician",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	claims, err := NewInspector().Inspect(token)
	require.NoError(t, err)
	assert.Equal(t, "tech-42", claims.TechnicianID)
	assert.Equal(t, "technician", claims.Role)
}

func TestInspect_ExpiredToken(t *testing.T) {
	token := signedToken(t, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})

	_, err := NewInspector().Inspect(token)
	require.ErrorIs(t, err, types.ErrSessionExpired)
}

func TestInspect_NoExpiryIsAccepted(t *testing.T) {
	token := signedToken(t, SessionClaims{TechnicianID: "tech-42"})

	_, err := NewInspector().Inspect(token)
	assert.NoError(t, err)
}

func TestValid(t *testing.T) {
	i := NewInspector()

	live := signedToken(t, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	expired := signedToken(t, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})

	assert.True(t, i.Valid(live))
	assert.False(t, i.Valid(expired))
	assert.False(t, i.Valid(""))

	// Opaque tokens are left for the backend to judge.
	assert.True(t, i.Valid("opaque-session-token"))
}
