package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/campusgate/internal/auth"
	pkghttp "github.com/BradenHooton/campusgate/pkg/http"
)

// CSRFProtection validates double-submit tokens on state-changing requests
// that authenticated with the session cookie. Bearer-token callers are not
// exposed to cross-site requests and pass through. Must run after
// auth.AuthMiddleware.
func CSRFProtection(csrfManager *auth.CSRFTokenManager, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isStateChangingMethod(r.Method) || auth.TokenTransport(r) != auth.TransportCookie {
				next.ServeHTTP(w, r)
				return
			}

			claims := auth.GetClaimsFromContext(r)
			if claims == nil {
				pkghttp.WriteUnauthorized(w, "unauthorized")
				return
			}

			headerToken := r.Header.Get(auth.CSRFHeaderName)
			cookie, err := r.Cookie(auth.CSRFCookieName)
			if headerToken == "" || err != nil {
				logger.Warn("csrf token missing",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("admin_id", claims.AdminID))
				pkghttp.WriteForbidden(w, "CSRF token missing")
				return
			}

			if subtle.ConstantTimeCompare([]byte(headerToken), []byte(cookie.Value)) != 1 ||
				!csrfManager.ValidateToken(headerToken, claims.AdminID) {
				logger.Warn("csrf token validation failed",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("admin_id", claims.AdminID))
				pkghttp.WriteForbidden(w, "CSRF token invalid")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isStateChangingMethod checks if the HTTP method modifies state
func isStateChangingMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
		return true
	default:
		return false
	}
}
