package repositories

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/campusgate/internal/models"
	"github.com/redis/go-redis/v9"
)

const otpKeyPrefix = "otp:"

// consumeOTPScript deletes the code only if it is still the one the caller read.
// KEYS[1] otp hash, ARGV[1] code hash, ARGV[2] created-at ns
var consumeOTPScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'code_hash') == ARGV[1]
	and redis.call('HGET', KEYS[1], 'created_at') == ARGV[2]
	and redis.call('HGET', KEYS[1], 'verified') == '0' then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// mismatchOTPScript counts a wrong guess and burns the code at the limit.
// HINCRBY leaves the key's expiry untouched.
// KEYS[1] otp hash, ARGV[1] code hash, ARGV[2] created-at ns, ARGV[3] max attempts
var mismatchOTPScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'code_hash') ~= ARGV[1]
	or redis.call('HGET', KEYS[1], 'created_at') ~= ARGV[2]
	or redis.call('HGET', KEYS[1], 'verified') ~= '0' then
	return -1
end
local attempts = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
if attempts >= tonumber(ARGV[3]) then
	redis.call('HSET', KEYS[1], 'verified', '1')
end
return attempts
`)

type redisOTP struct {
	CodeHash  string `redis:"code_hash"`
	Purpose   string `redis:"purpose"`
	Verified  bool   `redis:"verified"`
	Attempts  int    `redis:"attempts"`
	CreatedAt int64  `redis:"created_at"`
}

// OTPRedisStore keeps the live code per email in a Redis hash. Keys outlive
// the code's TTL so an expired code can still be told apart from a missing one.
type OTPRedisStore struct {
	client    redis.UniversalClient
	retention time.Duration
}

func NewOTPRedisStore(client redis.UniversalClient, retention time.Duration) *OTPRedisStore {
	return &OTPRedisStore{client: client, retention: retention}
}

func otpKey(email string) string {
	return otpKeyPrefix + strings.ToLower(email)
}

func (s *OTPRedisStore) Upsert(ctx context.Context, otp *models.OTP) error {
	key := otpKey(otp.Email)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"code_hash", otp.CodeHash,
			"purpose", string(otp.Purpose),
			"verified", "0",
			"attempts", "0",
			"created_at", strconv.FormatInt(otp.CreatedAt.UnixNano(), 10),
		)
		pipe.PExpire(ctx, key, s.retention)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store otp: %w", err)
	}
	return nil
}

func (s *OTPRedisStore) GetByEmail(ctx context.Context, email string) (*models.OTP, error) {
	cmd := s.client.HGetAll(ctx, otpKey(email))
	if err := cmd.Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read otp: %w", err)
	}
	if len(cmd.Val()) == 0 {
		return nil, models.ErrNotFound
	}

	var raw redisOTP
	if err := cmd.Scan(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode otp: %w", err)
	}

	purpose, err := models.ParseOTPPurpose(raw.Purpose)
	if err != nil {
		return nil, err
	}

	return &models.OTP{
		Email:     strings.ToLower(email),
		CodeHash:  raw.CodeHash,
		Purpose:   purpose,
		Verified:  raw.Verified,
		Attempts:  raw.Attempts,
		CreatedAt: time.Unix(0, raw.CreatedAt).UTC(),
	}, nil
}

// Consume removes the code; a verified code has no further use here
func (s *OTPRedisStore) Consume(ctx context.Context, otp *models.OTP) error {
	deleted, err := consumeOTPScript.Run(ctx, s.client,
		[]string{otpKey(otp.Email)},
		otp.CodeHash, strconv.FormatInt(otp.CreatedAt.UnixNano(), 10),
	).Int()
	if err != nil {
		return fmt.Errorf("failed to consume otp: %w", err)
	}
	if deleted == 0 {
		return models.ErrNotFound
	}
	return nil
}

// RecordMismatch counts a wrong guess against otp; see OTPRepository.RecordMismatch
func (s *OTPRedisStore) RecordMismatch(ctx context.Context, otp *models.OTP, maxAttempts int) (int, error) {
	attempts, err := mismatchOTPScript.Run(ctx, s.client,
		[]string{otpKey(otp.Email)},
		otp.CodeHash, strconv.FormatInt(otp.CreatedAt.UnixNano(), 10), maxAttempts,
	).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to record otp mismatch: %w", err)
	}
	if attempts < 0 {
		return 0, models.ErrNotFound
	}
	return attempts, nil
}
