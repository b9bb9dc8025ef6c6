package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nordicloop-admin/payout-console/internal/domain"
)

// RoleAdmin is the only role allowed to drive payouts.
const RoleAdmin = "admin"

// AdminClaims are the claims of a console access token. Tokens are issued
// by the marketplace identity service and shared via JWT_SECRET.
type AdminClaims struct {
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// AdminAuth validates HS256 admin access tokens.
type AdminAuth struct {
	secret []byte
	now    func() time.Time
}

// NewAdminAuth creates a validator for tokens signed with secret.
func NewAdminAuth(secret string) *AdminAuth {
	return &AdminAuth{secret: []byte(secret), now: time.Now}
}

// Validate parses tokenString and checks signature, expiry and role.
func (a *AdminAuth) Validate(tokenString string) (*AdminClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AdminClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "invalid or expired token"}
	}

	claims, ok := token.Claims.(*AdminClaims)
	if !ok || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "invalid token"}
	}
	if claims.Role != RoleAdmin {
		return nil, &domain.ErrForbidden{Action: "payout administration requires the admin role"}
	}
	return claims, nil
}

// Sign issues a token for subject. Used by tests and local tooling.
func (a *AdminAuth) Sign(subject, role string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := AdminClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "payout-console",
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}
