package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims are embedded in every session token
type TokenClaims struct {
	AdminID string   `json:"admin_id"`
	Email   string   `json:"email"`
	Scopes  []string `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}

// HasScope reports whether the token grants scope
func (c *TokenClaims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Identity is the administrator a validated token speaks for
type Identity struct {
	AdminID   string    `json:"admin_id"`
	Email     string    `json:"email"`
	Scopes    []string  `json:"scopes"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IdentityFromClaims extracts the caller identity from validated claims
func IdentityFromClaims(c *TokenClaims) *Identity {
	id := &Identity{
		AdminID: c.AdminID,
		Email:   c.Email,
		Scopes:  c.Scopes,
	}
	if c.ExpiresAt != nil {
		id.ExpiresAt = c.ExpiresAt.Time
	}
	return id
}
