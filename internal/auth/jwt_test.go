package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ratewatch/ratewatch/pkg/errors"
)

const testSecret = "test-secret-for-unit-tests-only-0123456789"

func TestJWTManager_GenerateAndValidate(t *testing.T) {
	mgr := NewJWTManager(testSecret, time.Hour)

	token, err := mgr.Generate("user-1", "a@b.com")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := mgr.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "a@b.com", claims.Email)
	assert.Equal(t, "user-1", claims.Subject)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func TestJWTManager_Validate_Expired(t *testing.T) {
	mgr := NewJWTManager(testSecret, -time.Minute)

	token, err := mgr.Generate("user-1", "a@b.com")
	require.NoError(t, err)

	_, err = mgr.Validate(token)
	assert.True(t, errors.Is(err, apperrors.ErrTokenExpired), "expired token must map to TokenExpired, got %v", err)
}

func TestJWTManager_Validate_Malformed(t *testing.T) {
	mgr := NewJWTManager(testSecret, time.Hour)

	_, err := mgr.Validate("not-a-jwt")
	assert.True(t, errors.Is(err, apperrors.ErrTokenMalformed))
}

func TestJWTManager_Validate_WrongSecret(t *testing.T) {
	mgr := NewJWTManager(testSecret, time.Hour)
	other := NewJWTManager("another-secret-that-is-long-enough-000000", time.Hour)

	token, err := other.Generate("user-1", "a@b.com")
	require.NoError(t, err)

	_, err = mgr.Validate(token)
	assert.True(t, errors.Is(err, apperrors.ErrTokenMalformed), "forged signature must map to TokenMalformed, got %v", err)
}
