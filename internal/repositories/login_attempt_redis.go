package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/campusgate/internal/models"
	"github.com/redis/go-redis/v9"
)

const loginAttemptKeyPrefix = "login_attempts:"

// incrementFailureScript bumps the counter and sets the lock in one round trip.
// KEYS[1] attempt hash
// ARGV[1] threshold, ARGV[2] lock-until ms, ARGV[3] now ms, ARGV[4] key ttl ms
var incrementFailureScript = redis.NewScript(`
local count = redis.call('HINCRBY', KEYS[1], 'count', 1)
local locked = tonumber(redis.call('HGET', KEYS[1], 'locked_until') or '0')
if count >= tonumber(ARGV[1]) and locked <= tonumber(ARGV[3]) then
	locked = tonumber(ARGV[2])
	redis.call('HSET', KEYS[1], 'locked_until', ARGV[2])
end
redis.call('HSET', KEYS[1], 'updated_at', ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return {count, locked}
`)

// clearElapsedLockScript drops the record only if its lock has run out.
// KEYS[1] attempt hash, ARGV[1] now ms
var clearElapsedLockScript = redis.NewScript(`
local locked = tonumber(redis.call('HGET', KEYS[1], 'locked_until') or '0')
if locked > 0 and locked <= tonumber(ARGV[1]) then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

type redisLoginAttempt struct {
	Count       int   `redis:"count"`
	LockedUntil int64 `redis:"locked_until"`
	UpdatedAt   int64 `redis:"updated_at"`
}

// LoginAttemptRedisStore keeps per-address failure counters in Redis hashes.
// Keys expire on their own once the retention window passes.
type LoginAttemptRedisStore struct {
	client    redis.UniversalClient
	retention time.Duration
}

func NewLoginAttemptRedisStore(client redis.UniversalClient, retention time.Duration) *LoginAttemptRedisStore {
	return &LoginAttemptRedisStore{client: client, retention: retention}
}

func loginAttemptKey(ipAddress string) string {
	return loginAttemptKeyPrefix + ipAddress
}

func (s *LoginAttemptRedisStore) Get(ctx context.Context, ipAddress string) (*models.LoginAttempt, error) {
	cmd := s.client.HGetAll(ctx, loginAttemptKey(ipAddress))
	if err := cmd.Err(); err != nil {
		return nil, fmt.Errorf("failed to read login attempts: %w", err)
	}
	if len(cmd.Val()) == 0 {
		return nil, models.ErrNotFound
	}

	var raw redisLoginAttempt
	if err := cmd.Scan(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode login attempts: %w", err)
	}

	return toLoginAttempt(ipAddress, raw.Count, raw.LockedUntil, raw.UpdatedAt), nil
}

func (s *LoginAttemptRedisStore) IncrementFailure(ctx context.Context, ipAddress string, threshold int, lockUntil, now time.Time) (*models.LoginAttempt, error) {
	ttl := s.retention
	if d := lockUntil.Sub(now); d > ttl {
		ttl = d
	}

	res, err := incrementFailureScript.Run(ctx, s.client,
		[]string{loginAttemptKey(ipAddress)},
		threshold, lockUntil.UnixMilli(), now.UnixMilli(), ttl.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("failed to record login failure: %w", err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected login failure script reply: %v", res)
	}

	return toLoginAttempt(ipAddress, int(res[0]), res[1], now.UnixMilli()), nil
}

func (s *LoginAttemptRedisStore) Reset(ctx context.Context, ipAddress string) error {
	if err := s.client.Del(ctx, loginAttemptKey(ipAddress)).Err(); err != nil {
		return fmt.Errorf("failed to reset login attempts: %w", err)
	}
	return nil
}

func (s *LoginAttemptRedisStore) ClearElapsedLock(ctx context.Context, ipAddress string, now time.Time) error {
	err := clearElapsedLockScript.Run(ctx, s.client, []string{loginAttemptKey(ipAddress)}, now.UnixMilli()).Err()
	if err != nil {
		return fmt.Errorf("failed to clear elapsed lock: %w", err)
	}
	return nil
}

func toLoginAttempt(ipAddress string, count int, lockedUntilMs, updatedAtMs int64) *models.LoginAttempt {
	attempt := &models.LoginAttempt{
		IPAddress:    ipAddress,
		AttemptCount: count,
		UpdatedAt:    time.UnixMilli(updatedAtMs).UTC(),
	}
	if lockedUntilMs > 0 {
		t := time.UnixMilli(lockedUntilMs).UTC()
		attempt.LockedUntil = &t
	}
	return attempt
}
