package service_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nordicloop-admin/payout-console/internal/domain"
	"github.com/nordicloop-admin/payout-console/internal/service"
)

func TestAdminAuth_Valid(t *testing.T) {
	auth := service.NewAdminAuth("s3cret")
	token, err := auth.Sign("ops@nordicloop.test", service.RoleAdmin, time.Minute)
	require.NoError(t, err)

	claims, err := auth.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "ops@nordicloop.test", claims.Subject)
}

func TestAdminAuth_Rejections(t *testing.T) {
	auth := service.NewAdminAuth("s3cret")

	expired, err := auth.Sign("a", service.RoleAdmin, -time.Minute)
	require.NoError(t, err)
	wrongSecret, err := service.NewAdminAuth("other").Sign("a", service.RoleAdmin, time.Minute)
	require.NoError(t, err)
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, service.AdminClaims{Role: service.RoleAdmin}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":      expired,
		"wrong secret": wrongSecret,
		"no expiry":    noExpiry,
		"garbage":      "not.a.jwt",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := auth.Validate(token)
			var unauth *domain.ErrUnauthorized
			assert.ErrorAs(t, err, &unauth)
		})
	}
}

func TestAdminAuth_NonAdminForbidden(t *testing.T) {
	auth := service.NewAdminAuth("s3cret")
	token, err := auth.Sign("seller@nordicloop.test", "seller", time.Minute)
	require.NoError(t, err)

	_, err = auth.Validate(token)
	var forbidden *domain.ErrForbidden
	assert.ErrorAs(t, err, &forbidden)
}
