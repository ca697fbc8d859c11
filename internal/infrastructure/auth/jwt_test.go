package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintrack/backend/internal/infrastructure/config"
)

func newTestJWTService() *JWTService {
	return NewJWTService(config.JWTConfig{
		Secret:                "test-secret-at-least-32-characters!",
		AccessTokenExpiration: 15 * time.Minute,
		Issuer:                "fintrack-test",
	})
}

func TestJWTService_GenerateAndValidate(t *testing.T) {
	svc := newTestJWTService()
	userID := uuid.New()

	token, expiresAt, err := svc.GenerateAccessToken(GenerateTokenInput{
		UserID: userID,
		Email:  "alex@example.com",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiresAt, 5*time.Second)

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.UserID)
	assert.Empty(t, claims.FamilyID)
	assert.Equal(t, "alex@example.com", claims.Email)
	assert.Equal(t, TokenTypeAccess, claims.TokenType)
	assert.Equal(t, "fintrack-test", claims.Issuer)
}

func TestJWTService_FamilyClaim(t *testing.T) {
	svc := newTestJWTService()
	familyID := uuid.New()

	token, _, err := svc.GenerateAccessToken(GenerateTokenInput{
		UserID:   uuid.New(),
		FamilyID: &familyID,
	})
	require.NoError(t, err)

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, familyID.String(), claims.FamilyID)
}

func TestJWTService_WrongSecret(t *testing.T) {
	svc := newTestJWTService()
	token, _, err := svc.GenerateAccessToken(GenerateTokenInput{UserID: uuid.New()})
	require.NoError(t, err)

	other := NewJWTService(config.JWTConfig{
		Secret:                "a-completely-different-secret-value",
		AccessTokenExpiration: 15 * time.Minute,
		Issuer:                "fintrack-test",
	})

	_, err = other.ValidateAccessToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTService_ExpiredToken(t *testing.T) {
	svc := NewJWTService(config.JWTConfig{
		Secret:                "test-secret-at-least-32-characters!",
		AccessTokenExpiration: -time.Minute,
		Issuer:                "fintrack-test",
	})

	token, _, err := svc.GenerateAccessToken(GenerateTokenInput{UserID: uuid.New()})
	require.NoError(t, err)

	_, err = newTestJWTService().ValidateAccessToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTService_GarbageToken(t *testing.T) {
	svc := newTestJWTService()

	_, err := svc.ValidateAccessToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
