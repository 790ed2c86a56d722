package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/campusgate/internal/auth"
	"github.com/BradenHooton/campusgate/internal/models"
	"github.com/BradenHooton/campusgate/internal/services"
	pkghttp "github.com/BradenHooton/campusgate/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "handler-test-secret-at-least-32-bytes"

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "10.0.0.1:40000"
	return req
}

// WithAdminContext attaches claims the way AuthMiddleware would
func WithAdminContext(req *http.Request, adminID, email, transport string) *http.Request {
	claims := &models.TokenClaims{
		AdminID: adminID,
		Email:   email,
		Scopes:  models.DefaultAdminScopes,
	}
	return req.WithContext(auth.ContextWithClaims(req.Context(), claims, transport))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target any) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	if target != nil {
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), target), "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// findCookie returns the named Set-Cookie from a recorded response
func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc                func(ctx context.Context, in services.LoginInput) (*services.LoginResult, error)
	VerifyOTPFunc            func(ctx context.Context, email, code, ipAddress, userAgent string) (*services.SessionResult, error)
	RequestPasswordResetFunc func(ctx context.Context, email, ipAddress string)
	ResetPasswordFunc        func(ctx context.Context, in services.ResetPasswordInput) error
}

func (m *MockAuthService) Login(ctx context.Context, in services.LoginInput) (*services.LoginResult, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, in)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAuthService) VerifyOTP(ctx context.Context, email, code, ipAddress, userAgent string) (*services.SessionResult, error) {
	if m.VerifyOTPFunc != nil {
		return m.VerifyOTPFunc(ctx, email, code, ipAddress, userAgent)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAuthService) RequestPasswordReset(ctx context.Context, email, ipAddress string) {
	if m.RequestPasswordResetFunc != nil {
		m.RequestPasswordResetFunc(ctx, email, ipAddress)
	}
}

func (m *MockAuthService) ResetPassword(ctx context.Context, in services.ResetPasswordInput) error {
	if m.ResetPasswordFunc != nil {
		return m.ResetPasswordFunc(ctx, in)
	}
	return models.ErrInternalServer
}

func newTestAuthHandler(t *testing.T, service AuthServiceInterface) *AuthHandler {
	t.Helper()
	resolver, err := pkghttp.NewClientIPResolver(nil)
	require.NoError(t, err)

	return NewAuthHandler(service, auth.NewCSRFTokenManager(testSecret), AuthHandlerConfig{
		Cookies:    auth.CookieConfig{Secure: true, SameSite: "strict"},
		IPResolver: resolver,
		RetryAfter: 15 * time.Minute,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}
