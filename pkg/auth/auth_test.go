package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/looma/see-practice-api/internal/pkg/errors"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestNewAdminTokenService(t *testing.T) {
	_, err := NewAdminTokenService("short", time.Hour)
	assert.Error(t, err)

	svc, err := NewAdminTokenService(testSecret, 0)
	require.NoError(t, err)
	assert.Equal(t, 12*time.Hour, svc.ttl)
}

func TestAdminToken_RoundTrip(t *testing.T) {
	svc, err := NewAdminTokenService(testSecret, time.Hour)
	require.NoError(t, err)

	token, expiresAt, err := svc.GenerateToken()
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := svc.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, claims.Role)
	assert.NotEmpty(t, claims.ID)
}

func TestAdminToken_Rejects(t *testing.T) {
	svc, err := NewAdminTokenService(testSecret, time.Hour)
	require.NoError(t, err)

	other, err := NewAdminTokenService("ffffffffffffffffffffffffffffffff", time.Hour)
	require.NoError(t, err)
	foreign, _, err := other.GenerateToken()
	require.NoError(t, err)

	_, err = svc.ParseToken(foreign)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	_, err = svc.ParseToken("not.a.token")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _, err := svc.GenerateToken()
	require.NoError(t, err)
	_, err = svc.ParseToken(expired)
	assert.ErrorIs(t, err, apperrors.ErrExpiredToken)

	wrongRole := jwt.NewWithClaims(jwt.SigningMethodHS256, AdminClaims{
		Role: "student",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    adminTokenIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := wrongRole.SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = svc.ParseToken(signed)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, AdminClaims{Role: RoleAdmin})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.ParseToken(unsigned)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)

	assert.True(t, CheckPassword(hash, "s3cret"))
	assert.False(t, CheckPassword(hash, "wrong"))
	assert.False(t, CheckPassword("", "s3cret"))
	assert.False(t, CheckPassword(hash, ""))
}
