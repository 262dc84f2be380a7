package server

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/panopticon/internal/config"
)

func testJWTService(expirationHours int) *JWTService {
	return NewJWTService(&config.JWTConfig{Secret: "test-secret", ExpirationHours: expirationHours})
}

func TestJWT_RoundTrip(t *testing.T) {
	svc := testJWTService(1)
	sessionID := uuid.New()

	token, expiresAt, err := svc.GenerateToken(sessionID)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, sessionID, claims.SessionID)
}

func TestJWT_WrongSecret(t *testing.T) {
	token, _, err := testJWTService(1).GenerateToken(uuid.New())
	require.NoError(t, err)

	other := NewJWTService(&config.JWTConfig{Secret: "different", ExpirationHours: 1})
	_, err = other.ValidateToken(token)
	require.Error(t, err)
}

func TestJWT_EmptyToken(t *testing.T) {
	_, err := testJWTService(1).ValidateToken("")
	require.Error(t, err)
}

func TestJWT_Garbage(t *testing.T) {
	_, err := testJWTService(1).ValidateToken("not.a.jwt")
	require.Error(t, err)
}
