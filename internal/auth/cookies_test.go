package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestSetSessionCookies(t *testing.T) {
	cfg := CookieConfig{Domain: "campus.edu", Secure: true, SameSite: "strict"}
	expiresAt := time.Now().Add(time.Hour)

	rec := httptest.NewRecorder()
	SetSessionCookie(rec, "token-value", expiresAt, cfg)
	SetCSRFCookie(rec, "csrf-value", expiresAt, cfg)

	cookies := rec.Result().Cookies()

	session := findCookie(cookies, SessionCookieName)
	require.NotNil(t, session)
	assert.Equal(t, "token-value", session.Value)
	assert.True(t, session.HttpOnly)
	assert.True(t, session.Secure)
	assert.Equal(t, http.SameSiteStrictMode, session.SameSite)
	assert.InDelta(t, 3600, session.MaxAge, 5)

	csrf := findCookie(cookies, CSRFCookieName)
	require.NotNil(t, csrf)
	assert.Equal(t, "csrf-value", csrf.Value)
	assert.False(t, csrf.HttpOnly)
}

func TestClearSessionCookies(t *testing.T) {
	rec := httptest.NewRecorder()
	ClearSessionCookies(rec, CookieConfig{SameSite: "lax"})

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 2)
	for _, c := range cookies {
		assert.Empty(t, c.Value)
		assert.Less(t, c.MaxAge, 0)
		assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	}
}

func TestParseSameSite(t *testing.T) {
	assert.Equal(t, http.SameSiteStrictMode, parseSameSite("strict"))
	assert.Equal(t, http.SameSiteLaxMode, parseSameSite("lax"))
	assert.Equal(t, http.SameSiteNoneMode, parseSameSite("none"))
	assert.Equal(t, http.SameSiteDefaultMode, parseSameSite("other"))
}
