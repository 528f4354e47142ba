package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Claims represents the access token claims a chat client cares about.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// EffectiveUserID returns the user id, falling back to the sub claim.
func (c *Claims) EffectiveUserID() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.RegisteredClaims.Subject
}

// ParseUnverified decodes tokenString without checking its signature.
// The backend verifies tokens; clients only read who they are.
func ParseUnverified(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Expired reports whether claims carry an expiry at or before now.
func Expired(c *Claims, now time.Time) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return !now.Before(c.ExpiresAt.Time)
}

// CheckExpiry returns ErrExpiredToken for expired claims.
func CheckExpiry(c *Claims, now time.Time) error {
	if Expired(c, now) {
		return ErrExpiredToken
	}
	return nil
}
