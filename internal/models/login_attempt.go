package models

import "time"

// LoginAttempt is the failure counter kept per client address
type LoginAttempt struct {
	IPAddress    string     `db:"ip_address"`
	AttemptCount int        `db:"attempt_count"`
	LockedUntil  *time.Time `db:"locked_until"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

// IsLockedAt reports whether the address is locked at the given instant.
// A lock that ends exactly at now is no longer in force.
func (a *LoginAttempt) IsLockedAt(now time.Time) bool {
	return a != nil && a.LockedUntil != nil && a.LockedUntil.After(now)
}

// LockElapsedAt reports whether a lock was set and has run out
func (a *LoginAttempt) LockElapsedAt(now time.Time) bool {
	return a != nil && a.LockedUntil != nil && !a.LockedUntil.After(now)
}
