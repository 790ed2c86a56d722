package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/BradenHooton/campusgate/internal/models"
	pkghttp "github.com/BradenHooton/campusgate/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	claimsContextKey    contextKey = "claims"
	transportContextKey contextKey = "token_transport"
)

// Transport names where a session token was found
const (
	TransportHeader = "header"
	TransportCookie = "cookie"
)

// TokenValidator is satisfied by TokenManager and by the auth service
type TokenValidator interface {
	ValidateToken(tokenString string) (*models.TokenClaims, error)
}

// TokenExtractor pulls a raw session token out of a request. ok is false
// when this transport carries no token at all.
type TokenExtractor interface {
	Extract(r *http.Request) (token string, ok bool)
	Transport() string
}

// BearerExtractor reads "Authorization: Bearer <token>"
type BearerExtractor struct{}

func (BearerExtractor) Extract(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(authHeader, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		// a malformed header still counts as presented
		return "", true
	}
	return strings.TrimSpace(token), true
}

func (BearerExtractor) Transport() string { return TransportHeader }

// CookieExtractor reads the session cookie
type CookieExtractor struct {
	Name string
}

func (c CookieExtractor) Extract(r *http.Request) (string, bool) {
	name := c.Name
	if name == "" {
		name = SessionCookieName
	}
	cookie, err := r.Cookie(name)
	if err != nil {
		return "", false
	}
	return cookie.Value, true
}

func (CookieExtractor) Transport() string { return TransportCookie }

// DefaultExtractors tries the Authorization header first, then the cookie
func DefaultExtractors() []TokenExtractor {
	return []TokenExtractor{BearerExtractor{}, CookieExtractor{}}
}

// AuthMiddleware validates the session token from the first transport that
// carries one and injects the claims into the request context
func AuthMiddleware(validator TokenValidator, extractors ...TokenExtractor) func(next http.Handler) http.Handler {
	if len(extractors) == 0 {
		extractors = DefaultExtractors()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var token, transport string
			for _, ex := range extractors {
				if t, ok := ex.Extract(r); ok {
					token, transport = t, ex.Transport()
					break
				}
			}

			if transport == "" {
				pkghttp.WriteUnauthorized(w, "missing session token")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				if errors.Is(err, models.ErrTokenExpired) {
					w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="expired"`)
				}
				pkghttp.WriteUnauthorized(w, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims, transport)))
		})
	}
}

// RequireScope rejects callers whose token lacks scope. Must run after AuthMiddleware.
func RequireScope(scope string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaimsFromContext(r)
			if claims == nil {
				pkghttp.WriteUnauthorized(w, "unauthorized")
				return
			}
			if !claims.HasScope(scope) {
				pkghttp.WriteForbidden(w, "insufficient scope")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetClaimsFromContext extracts validated claims from request context
func GetClaimsFromContext(r *http.Request) *models.TokenClaims {
	claims, ok := r.Context().Value(claimsContextKey).(*models.TokenClaims)
	if !ok {
		return nil
	}
	return claims
}

// GetIdentity returns the authenticated administrator, or nil
func GetIdentity(r *http.Request) *models.Identity {
	claims := GetClaimsFromContext(r)
	if claims == nil {
		return nil
	}
	return models.IdentityFromClaims(claims)
}

// TokenTransport reports how the session token arrived
func TokenTransport(r *http.Request) string {
	transport, _ := r.Context().Value(transportContextKey).(string)
	return transport
}

// ContextWithClaims attaches claims the way AuthMiddleware does
func ContextWithClaims(ctx context.Context, claims *models.TokenClaims, transport string) context.Context {
	ctx = context.WithValue(ctx, claimsContextKey, claims)
	return context.WithValue(ctx, transportContextKey, transport)
}
