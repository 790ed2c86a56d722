package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BradenHooton/campusgate/internal/models"
)

// LoginAttemptStore persists per-address failure counters. IncrementFailure
// must be a single atomic read-modify-write so concurrent failures from one
// address are never lost.
type LoginAttemptStore interface {
	Get(ctx context.Context, ipAddress string) (*models.LoginAttempt, error)
	IncrementFailure(ctx context.Context, ipAddress string, threshold int, lockUntil, now time.Time) (*models.LoginAttempt, error)
	Reset(ctx context.Context, ipAddress string) error
	ClearElapsedLock(ctx context.Context, ipAddress string, now time.Time) error
}

// LockoutConfig holds the lockout policy
type LockoutConfig struct {
	Threshold int           // failures before the address is locked
	Duration  time.Duration // how long a lock lasts
}

// LoginAttemptTracker throttles repeated failed logins per client address
type LoginAttemptTracker struct {
	store  LoginAttemptStore
	config LockoutConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewLoginAttemptTracker creates a new LoginAttemptTracker
func NewLoginAttemptTracker(store LoginAttemptStore, config LockoutConfig, logger *slog.Logger) *LoginAttemptTracker {
	return &LoginAttemptTracker{
		store:  store,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// RecordFailure counts a failed login. Reaching the threshold locks the
// address for the configured duration.
func (t *LoginAttemptTracker) RecordFailure(ctx context.Context, ipAddress string) (*models.LoginAttempt, error) {
	now := t.now().UTC()

	attempt, err := t.store.IncrementFailure(ctx, ipAddress, t.config.Threshold, now.Add(t.config.Duration), now)
	if err != nil {
		return nil, err
	}

	if attempt.IsLockedAt(now) && attempt.AttemptCount == t.config.Threshold {
		t.logger.Warn("address locked after repeated login failures",
			slog.String("ip_address", ipAddress),
			slog.Int("failed_attempts", attempt.AttemptCount),
			slog.Time("locked_until", *attempt.LockedUntil))
	}

	return attempt, nil
}

// RecordSuccess zeroes the counter and clears any lock
func (t *LoginAttemptTracker) RecordSuccess(ctx context.Context, ipAddress string) error {
	return t.store.Reset(ctx, ipAddress)
}

// IsLocked reports whether the address is locked right now. A lock that has
// run out is cleared together with its counter.
func (t *LoginAttemptTracker) IsLocked(ctx context.Context, ipAddress string) (bool, error) {
	now := t.now().UTC()

	attempt, err := t.store.Get(ctx, ipAddress)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	if attempt.IsLockedAt(now) {
		return true, nil
	}

	if attempt.LockElapsedAt(now) {
		if err := t.store.ClearElapsedLock(ctx, ipAddress, now); err != nil {
			return false, err
		}
		t.logger.Info("elapsed login lock cleared", slog.String("ip_address", ipAddress))
	}

	return false, nil
}
