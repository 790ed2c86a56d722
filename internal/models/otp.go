package models

import (
	"fmt"
	"time"
)

// OTPPurpose distinguishes what a one-time code unlocks
type OTPPurpose string

const (
	OTPPurposeLogin         OTPPurpose = "login"
	OTPPurposePasswordReset OTPPurpose = "password_reset"
)

// Valid reports whether p is a known purpose
func (p OTPPurpose) Valid() bool {
	switch p {
	case OTPPurposeLogin, OTPPurposePasswordReset:
		return true
	}
	return false
}

// ParseOTPPurpose converts a stored purpose back into its typed form
func ParseOTPPurpose(s string) (OTPPurpose, error) {
	p := OTPPurpose(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown otp purpose: %q", s)
	}
	return p, nil
}

// OTP is the single live one-time code for an email address
type OTP struct {
	Email     string     `json:"email"`
	CodeHash  string     `json:"code_hash"` // SHA-256 hex of the zero-padded code
	Purpose   OTPPurpose `json:"purpose"`
	Verified  bool       `json:"verified"`
	Attempts  int        `json:"attempts"` // wrong guesses against this code
	CreatedAt time.Time  `json:"created_at"`
}

// ExpiresAt returns when the code stops being accepted
func (o *OTP) ExpiresAt(ttl time.Duration) time.Time {
	return o.CreatedAt.Add(ttl)
}

// IsExhausted reports whether too many wrong guesses have burned the code
func (o *OTP) IsExhausted(maxAttempts int) bool {
	return maxAttempts > 0 && o.Attempts >= maxAttempts
}

// IsExpiredAt reports whether the code is older than ttl at now
func (o *OTP) IsExpiredAt(now time.Time, ttl time.Duration) bool {
	return now.Sub(o.CreatedAt) > ttl
}
