package models

import (
	"time"
)

// Scopes granted to a console administrator
const (
	ScopeContentWrite = "content:write"
	ScopeMediaUpload  = "media:upload"
)

// DefaultAdminScopes are granted to seeded administrator accounts
var DefaultAdminScopes = []string{ScopeContentWrite, ScopeMediaUpload}

// AdminAccount is the administrator who signs in to the content console
type AdminAccount struct {
	ID                  string
	Email               string
	PasswordHash        string
	Scopes              []string
	TOTPSecretEncrypted []byte // AES-256-GCM ciphertext, nil when no authenticator is enrolled
	TOTPNonce           []byte
	PasswordChangedAt   *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// HasTOTP reports whether a security code is required at login
func (a *AdminAccount) HasTOTP() bool {
	return len(a.TOTPSecretEncrypted) > 0 && len(a.TOTPNonce) > 0
}
