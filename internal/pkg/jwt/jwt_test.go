package jwt

import (
	"context"
	"testing"

	"github.com/cmlabs-hris/studio-payroll/internal/domain/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTService_AccessToken_RoundTrip(t *testing.T) {
	svc := NewJWTService("test-secret", "1h")
	actor := user.Actor{UserID: "hr-1", Name: "Hana", Role: user.RoleEmployee, Position: "Senior HR"}

	// Act
	token, expiresAt, err := svc.GenerateAccessToken(actor)
	require.NoError(t, err)
	assert.NotZero(t, expiresAt)

	decoded, err := svc.JWTAuth().Decode(token)
	require.NoError(t, err)
	claims, err := decoded.AsMap(context.Background())
	require.NoError(t, err)

	// Assert
	got, err := ActorFromClaims(claims)
	require.NoError(t, err)
	assert.Equal(t, actor, got)
}

func TestJWTService_GenerateAccessToken_InvalidExpiration(t *testing.T) {
	svc := NewJWTService("test-secret", "forever")

	_, _, err := svc.GenerateAccessToken(user.Actor{UserID: "u1", Role: user.RoleOwner})

	assert.Error(t, err)
}

func TestJWTService_SSEToken(t *testing.T) {
	svc := NewJWTService("test-secret", "1h")

	token, expiresIn, err := svc.GenerateSSEToken("u1")
	require.NoError(t, err)
	assert.Equal(t, 300, expiresIn)

	userID, err := svc.ValidateSSEToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)
}

func TestJWTService_ValidateSSEToken_RejectsAccessToken(t *testing.T) {
	svc := NewJWTService("test-secret", "1h")
	token, _, err := svc.GenerateAccessToken(user.Actor{UserID: "u1", Role: user.RoleOwner})
	require.NoError(t, err)

	_, err = svc.ValidateSSEToken(token)

	assert.Error(t, err)
}

func TestActorFromClaims_MissingFields(t *testing.T) {
	_, err := ActorFromClaims(map[string]interface{}{"type": "access", "user_id": "u1"})
	assert.ErrorIs(t, err, user.ErrInvalidTokenClaims)

	_, err = ActorFromClaims(map[string]interface{}{"type": "sse", "user_id": "u1", "role": "owner"})
	assert.ErrorIs(t, err, user.ErrInvalidTokenClaims)
}
