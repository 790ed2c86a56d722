package routes

import (
	"log/slog"

	"github.com/BradenHooton/campusgate/internal/auth"
	"github.com/BradenHooton/campusgate/internal/handlers"
	"github.com/BradenHooton/campusgate/internal/middleware"
	pkghttp "github.com/BradenHooton/campusgate/pkg/http"
	"github.com/go-chi/chi/v5"
)

// Dependencies are the pieces the route table is assembled from
type Dependencies struct {
	AuthHandler    *handlers.AuthHandler
	HealthHandler  *handlers.HealthHandler
	TokenValidator auth.TokenValidator
	CSRFManager    *auth.CSRFTokenManager
	IPResolver     *pkghttp.ClientIPResolver
	RateLimit      middleware.RateLimitConfig
	Logger         *slog.Logger

	// Console mounts the content collection routes behind authentication
	// and CSRF protection. May be nil.
	Console func(r chi.Router)
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, deps Dependencies) {
	router.Get("/health", deps.HealthHandler.Health)

	// Public routes - no authentication required
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(deps.RateLimit, deps.IPResolver))

		r.Post("/auth/login", deps.AuthHandler.Login)
		r.Post("/auth/otp/verify", deps.AuthHandler.VerifyOTP)
		r.Post("/auth/password/forgot", deps.AuthHandler.ForgotPassword)
		r.Post("/auth/password/reset", deps.AuthHandler.ResetPassword)
	})

	// Protected routes - a session token in the header or the cookie
	router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(deps.TokenValidator, auth.DefaultExtractors()...))
		r.Use(middleware.CSRFProtection(deps.CSRFManager, deps.Logger))

		r.Get("/auth/session", deps.AuthHandler.Session)
		r.Post("/auth/logout", deps.AuthHandler.Logout)

		if deps.Console != nil {
			r.Route("/console", deps.Console)
		}
	})
}
