package logger

import (
	"strings"
)

// SanitizedEmail masks an email address for logging (e.g., "a****@******.example")
func SanitizedEmail(email string) string {
	username, domain, ok := strings.Cut(email, "@")
	if !ok || username == "" || domain == "" || strings.Contains(domain, "@") {
		return "[invalid-email]"
	}

	// Mask username: keep first char, mask rest
	if len(username) > 1 {
		username = username[:1] + strings.Repeat("*", len(username)-1)
	}

	// Mask domain: keep TLD, mask the rest
	domainParts := strings.Split(domain, ".")
	if len(domainParts) > 1 {
		for i := 0; i < len(domainParts)-1; i++ {
			domainParts[i] = strings.Repeat("*", len(domainParts[i]))
		}
		domain = strings.Join(domainParts, ".")
	}

	return username + "@" + domain
}

// sensitiveQueryParams are substrings that cause a whole query string to be
// dropped from request logs
var sensitiveQueryParams = []string{
	"password",
	"token",
	"secret",
	"code",
	"otp",
	"email",
	"auth",
	"csrf",
}

// SanitizeQueryString reports whether rawQuery may carry a credential, a
// one-time code or an address and should be redacted
func SanitizeQueryString(rawQuery string) bool {
	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveQueryParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}
