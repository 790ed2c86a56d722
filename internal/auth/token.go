package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/campusgate/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenIssuer = "campusgate"

// TokenManager signs and validates session tokens with a single HMAC key
type TokenManager struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(secret string, expiry time.Duration) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
		expiry: expiry,
		now:    time.Now,
	}
}

// WithClock replaces the time source used for issuing and validating
func (tm *TokenManager) WithClock(now func() time.Time) *TokenManager {
	tm.now = now
	return tm
}

// Expiry returns the configured session lifetime
func (tm *TokenManager) Expiry() time.Duration {
	return tm.expiry
}

// Issue mints a session token for the administrator
func (tm *TokenManager) Issue(adminID, email string, scopes []string) (string, time.Time, error) {
	now := tm.now()
	expiresAt := jwt.NewNumericDate(now.Add(tm.expiry))

	claims := &models.TokenClaims{
		AdminID: adminID,
		Email:   email,
		Scopes:  scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    tokenIssuer,
			Subject:   adminID,
			ExpiresAt: expiresAt,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}

	return tokenString, expiresAt.Time, nil
}

// ValidateToken verifies signature and expiry. It returns models.ErrTokenExpired
// for an otherwise valid token past its expiry and models.ErrTokenInvalid for
// anything else.
func (tm *TokenManager) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	if tokenString == "" {
		return nil, models.ErrTokenInvalid
	}

	claims := &models.TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return tm.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, models.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", models.ErrTokenInvalid, err)
	}

	if !token.Valid || claims.AdminID == "" {
		return nil, models.ErrTokenInvalid
	}

	return claims, nil
}
