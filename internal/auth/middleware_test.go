package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/campusgate/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func protectedHandler(t *testing.T, seen *models.Identity, transport *string) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := GetIdentity(r); id != nil {
			*seen = *id
		}
		*transport = TokenTransport(r)
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestAuthMiddleware_HeaderAndCookieAreInterchangeable(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	tm := newTestTokenManager(clock)
	token, _, err := tm.Issue("admin-1", "admin@campus.edu", models.DefaultAdminScopes)
	require.NoError(t, err)

	tests := []struct {
		name          string
		setup         func(r *http.Request)
		wantTransport string
	}{
		{
			name:          "bearer header",
			setup:         func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) },
			wantTransport: TransportHeader,
		},
		{
			name:          "lower-case scheme",
			setup:         func(r *http.Request) { r.Header.Set("Authorization", "bearer "+token) },
			wantTransport: TransportHeader,
		},
		{
			name:          "session cookie",
			setup:         func(r *http.Request) { r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token}) },
			wantTransport: TransportCookie,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen models.Identity
			var transport string
			handler := AuthMiddleware(tm)(protectedHandler(t, &seen, &transport))

			req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusNoContent, rec.Code)
			assert.Equal(t, "admin-1", seen.AdminID)
			assert.Equal(t, "admin@campus.edu", seen.Email)
			assert.Equal(t, tt.wantTransport, transport)
		})
	}
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	tm := newTestTokenManager(clock)
	token, _, err := tm.Issue("admin-1", "admin@campus.edu", nil)
	require.NoError(t, err)

	tests := []struct {
		name  string
		setup func(r *http.Request)
	}{
		{"no token", func(r *http.Request) {}},
		{"basic scheme", func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") }},
		{"bad token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }},
		{"bad cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "nope"}) }},
		// the header wins, so a broken header is not rescued by a good cookie
		{"bad header good cookie", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer nope")
			r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := AuthMiddleware(tm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.False(t, called)
			assert.Contains(t, rec.Body.String(), `"error":"unauthorized"`)
		})
	}
}

func TestAuthMiddleware_ExpiredTokenSetsChallenge(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	tm := newTestTokenManager(clock)
	token, expiresAt, err := tm.Issue("admin-1", "admin@campus.edu", nil)
	require.NoError(t, err)
	clock.now = expiresAt.Add(time.Minute)

	handler := AuthMiddleware(tm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "expired")
	assert.Contains(t, rec.Body.String(), "invalid or expired token")
}

func TestAuthMiddleware_CookieOnlyExtractor(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	tm := newTestTokenManager(clock)
	token, _, err := tm.Issue("admin-1", "admin@campus.edu", nil)
	require.NoError(t, err)

	handler := AuthMiddleware(tm, CookieExtractor{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireScope(t *testing.T) {
	tests := []struct {
		name     string
		claims   *models.TokenClaims
		wantCode int
	}{
		{"no claims", nil, http.StatusUnauthorized},
		{"missing scope", &models.TokenClaims{AdminID: "admin-1", Scopes: []string{models.ScopeMediaUpload}}, http.StatusForbidden},
		{"has scope", &models.TokenClaims{AdminID: "admin-1", Scopes: []string{models.ScopeContentWrite}}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequireScope(models.ScopeContentWrite)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodPost, "/content", nil)
			if tt.claims != nil {
				req = req.WithContext(ContextWithClaims(req.Context(), tt.claims, TransportHeader))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}
