package background

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// OTPCleaner deletes one-time codes that can no longer be used
type OTPCleaner interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// AttemptCleaner deletes idle login attempt counters
type AttemptCleaner interface {
	DeleteStale(ctx context.Context, before, now time.Time) (int64, error)
}

// CleanupConfig holds retention settings
type CleanupConfig struct {
	Interval         time.Duration
	OTPTTL           time.Duration // codes older than this are deleted
	AttemptRetention time.Duration // counters idle longer than this are deleted
}

// CleanupManager periodically prunes the Postgres auth tables. The Redis
// backend expires keys on its own and does not need it.
type CleanupManager struct {
	otps     OTPCleaner
	attempts AttemptCleaner
	config   CleanupConfig
	logger   *slog.Logger
	now      func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(otps OTPCleaner, attempts AttemptCleaner, config CleanupConfig, logger *slog.Logger) *CleanupManager {
	return &CleanupManager{
		otps:     otps,
		attempts: attempts,
		config:   config,
		logger:   logger,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start runs cleanup immediately and then on every tick until ctx is done or
// Stop is called
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.config.Interval)
	defer ticker.Stop()

	cm.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			cm.RunOnce(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// RunOnce performs a single cleanup pass
func (cm *CleanupManager) RunOnce(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	now := cm.now().UTC()

	otpRows, err := cm.otps.DeleteExpired(cleanupCtx, now.Add(-cm.config.OTPTTL))
	if err != nil {
		cm.logger.Error("failed to clean up one-time codes", slog.Any("error", err))
	}

	attemptRows, err := cm.attempts.DeleteStale(cleanupCtx, now.Add(-cm.config.AttemptRetention), now)
	if err != nil {
		cm.logger.Error("failed to clean up login attempts", slog.Any("error", err))
	}

	if otpRows > 0 || attemptRows > 0 {
		cm.logger.Info("auth cleanup completed",
			slog.Int64("otps_deleted", otpRows),
			slog.Int64("attempts_deleted", attemptRows))
	}
}

// Stop signals the cleanup manager to stop. Safe to call more than once.
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}
