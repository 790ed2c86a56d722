package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/campusgate/internal/auth"
	"github.com/BradenHooton/campusgate/internal/models"
	"github.com/BradenHooton/campusgate/internal/services"
	pkghttp "github.com/BradenHooton/campusgate/pkg/http"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Login(ctx context.Context, in services.LoginInput) (*services.LoginResult, error)
	VerifyOTP(ctx context.Context, email, code, ipAddress, userAgent string) (*services.SessionResult, error)
	RequestPasswordReset(ctx context.Context, email, ipAddress string)
	ResetPassword(ctx context.Context, in services.ResetPasswordInput) error
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service    AuthServiceInterface
	csrf       *auth.CSRFTokenManager
	cookies    auth.CookieConfig
	ipResolver *pkghttp.ClientIPResolver
	retryAfter time.Duration
	logger     *slog.Logger
}

// AuthHandlerConfig holds the transport settings for AuthHandler
type AuthHandlerConfig struct {
	Cookies    auth.CookieConfig
	IPResolver *pkghttp.ClientIPResolver
	// RetryAfter is advertised to locked-out clients
	RetryAfter time.Duration
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, csrf *auth.CSRFTokenManager, cfg AuthHandlerConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service:    service,
		csrf:       csrf,
		cookies:    cfg.Cookies,
		ipResolver: cfg.IPResolver,
		retryAfter: cfg.RetryAfter,
		logger:     logger,
	}
}

// Request DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email        string `json:"email" validate:"required,email,max=254"`
	Password     string `json:"password" validate:"required,max=72"`
	SecurityCode string `json:"security_code,omitempty" validate:"omitempty,numeric,len=6"`
}

// VerifyOTPRequest represents the request body for completing a login
type VerifyOTPRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
	Code  string `json:"code" validate:"required,numeric,min=4,max=10"`
}

// ForgotPasswordRequest starts a password reset
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

// ResetPasswordRequest completes a password reset
type ResetPasswordRequest struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	Code        string `json:"code" validate:"required,numeric,min=4,max=10"`
	NewPassword string `json:"new_password" validate:"required,max=72"`
}

// MessageResponse is returned where the outcome must not be revealed
type MessageResponse struct {
	Message string `json:"message"`
}

// Login checks credentials and emails a one-time code
// @Summary Administrator login, step one
// @Accept json
// @Param request body LoginRequest true "Login request"
// @Produce json
// @Success 200 {object} services.LoginResult
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 429 {object} pkghttp.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.Login(r.Context(), services.LoginInput{
		Email:        req.Email,
		Password:     req.Password,
		SecurityCode: req.SecurityCode,
		IPAddress:    h.ipResolver.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, result)
}

// VerifyOTP exchanges the emailed code for a session
// @Summary Administrator login, step two
// @Accept json
// @Param request body VerifyOTPRequest true "Verify request"
// @Produce json
// @Success 200 {object} services.SessionResult
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Router /auth/otp/verify [post]
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyOTPRequest
	if !h.decode(w, r, &req) {
		return
	}

	session, err := h.service.VerifyOTP(r.Context(), req.Email, req.Code, h.ipResolver.ClientIP(r), r.UserAgent())
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	csrfToken, err := h.csrf.GenerateToken(session.Admin.AdminID)
	if err != nil {
		h.logger.Error("failed to generate csrf token", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	auth.SetSessionCookie(w, session.Token, session.ExpiresAt, h.cookies)
	auth.SetCSRFCookie(w, csrfToken, session.ExpiresAt, h.cookies)

	pkghttp.WriteJSON(w, http.StatusOK, session)
}

// ForgotPassword emails a reset code. The response is the same whether or
// not the address belongs to the administrator.
// @Summary Request a password reset code
// @Accept json
// @Param request body ForgotPasswordRequest true "Forgot password request"
// @Produce json
// @Success 202 {object} MessageResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Router /auth/password/forgot [post]
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	h.service.RequestPasswordReset(r.Context(), req.Email, h.ipResolver.ClientIP(r))

	pkghttp.WriteJSON(w, http.StatusAccepted, MessageResponse{
		Message: "If the address belongs to the administrator, a reset code has been sent.",
	})
}

// ResetPassword sets a new password using a reset code
// @Summary Reset the administrator password
// @Accept json
// @Param request body ResetPasswordRequest true "Reset password request"
// @Produce json
// @Success 204
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Router /auth/password/reset [post]
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	err := h.service.ResetPassword(r.Context(), services.ResetPasswordInput{
		Email:       req.Email,
		Code:        req.Code,
		NewPassword: req.NewPassword,
		IPAddress:   h.ipResolver.ClientIP(r),
		UserAgent:   r.UserAgent(),
	})
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Session returns the identity behind the presented session token
// @Summary Current session
// @Security BearerAuth
// @Produce json
// @Success 200 {object} models.Identity
// @Failure 401 {object} pkghttp.ErrorResponse
// @Router /auth/session [get]
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentity(r)
	if identity == nil {
		pkghttp.WriteUnauthorized(w, "invalid or expired token")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, identity)
}

// Logout clears the session cookies. Tokens are not revoked server side;
// a bearer token stays valid until it expires.
// @Summary Logout
// @Security BearerAuth
// @Success 204
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSessionCookies(w, h.cookies)
	w.WriteHeader(http.StatusNoContent)
}

// decode reads and validates a request body, writing a 400 on failure
func (h *AuthHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := pkghttp.DecodeJSON(w, r, dst); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return false
	}
	if err := ValidateRequest(dst); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return false
	}
	return true
}

// writeAuthError maps gateway errors to responses without leaking detail
func (h *AuthHandler) writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidCredentials):
		pkghttp.WriteUnauthorized(w, "Authentication failed")
	case errors.Is(err, models.ErrTooManyAttempts):
		pkghttp.WriteTooManyRequests(w, "Too many failed login attempts. Please try again later.", h.retryAfter)
	case errors.Is(err, models.ErrInvalidOTP):
		pkghttp.WriteError(w, http.StatusUnauthorized, "invalid_otp", "Invalid or expired code")
	case errors.Is(err, models.ErrTokenInvalid), errors.Is(err, models.ErrTokenExpired):
		pkghttp.WriteUnauthorized(w, "invalid or expired token")
	case errors.Is(err, models.ErrWeakPassword):
		pkghttp.WriteBadRequest(w, "Password does not meet requirements")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
