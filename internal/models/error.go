package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")
)

// Authentication failures surfaced to callers
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTooManyAttempts    = errors.New("too many failed login attempts")
	ErrInvalidOTP         = errors.New("invalid one-time password")
	ErrTokenInvalid       = errors.New("token is invalid")
	ErrTokenExpired       = errors.New("token has expired")
	ErrWeakPassword       = errors.New("password does not meet requirements")
)

// One-time password verification failures. These stay server side and are
// collapsed into ErrInvalidOTP before reaching a client.
var (
	ErrOTPNotFound  = errors.New("otp not found")
	ErrOTPExpired   = errors.New("otp expired")
	ErrOTPMismatch  = errors.New("otp mismatch")
	ErrOTPExhausted = errors.New("otp attempts exhausted")
)
