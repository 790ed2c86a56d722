package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/BradenHooton/campusgate/internal/models"
	pkglogger "github.com/BradenHooton/campusgate/pkg/logger"
)

// OTPStore keeps the single live code per email. Upsert replaces any prior
// code atomically; Consume succeeds at most once per issued code and returns
// models.ErrNotFound when the code was already used or superseded.
// RecordMismatch atomically counts a wrong guess against the issued code and
// burns it at maxAttempts, without moving its creation time.
type OTPStore interface {
	Upsert(ctx context.Context, otp *models.OTP) error
	GetByEmail(ctx context.Context, email string) (*models.OTP, error)
	Consume(ctx context.Context, otp *models.OTP) error
	RecordMismatch(ctx context.Context, otp *models.OTP, maxAttempts int) (int, error)
}

// Mailer delivers one-time codes
type Mailer interface {
	SendOTP(ctx context.Context, to, code string, purpose models.OTPPurpose, expiresAt time.Time) error
}

// OTPConfig holds one-time password settings
type OTPConfig struct {
	TTL         time.Duration
	Length      int
	SendTimeout time.Duration
	MaxAttempts int // wrong guesses before a code is burned
}

// DefaultOTPMaxAttempts applies when OTPConfig.MaxAttempts is unset
const DefaultOTPMaxAttempts = 5

// OTPService issues and verifies emailed one-time codes
type OTPService struct {
	store  OTPStore
	mailer Mailer
	config OTPConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewOTPService creates a new OTPService
func NewOTPService(store OTPStore, mailer Mailer, config OTPConfig, logger *slog.Logger) *OTPService {
	if config.Length <= 0 {
		config.Length = 6
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultOTPMaxAttempts
	}
	return &OTPService{
		store:  store,
		mailer: mailer,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Issue stores a fresh code for email, replacing any earlier one, and hands it
// to the mailer. Delivery problems are logged; the stored code stays valid.
func (s *OTPService) Issue(ctx context.Context, email string, purpose models.OTPPurpose) (time.Time, error) {
	if !purpose.Valid() {
		return time.Time{}, fmt.Errorf("invalid otp purpose %q", purpose)
	}

	code, err := randomCode(s.config.Length)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to generate otp: %w", err)
	}

	otp := &models.OTP{
		Email:     normalizeEmail(email),
		CodeHash:  hashCode(code),
		Purpose:   purpose,
		CreatedAt: s.now().UTC().Truncate(time.Microsecond),
	}

	if err := s.store.Upsert(ctx, otp); err != nil {
		return time.Time{}, fmt.Errorf("failed to store otp: %w", err)
	}

	expiresAt := otp.ExpiresAt(s.config.TTL)
	s.deliver(ctx, otp.Email, code, purpose, expiresAt)

	return expiresAt, nil
}

// deliver bounds the mailer call so a slow provider cannot hold the request
func (s *OTPService) deliver(ctx context.Context, email, code string, purpose models.OTPPurpose, expiresAt time.Time) {
	timeout := s.config.SendTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := s.mailer.SendOTP(sendCtx, email, code, purpose, expiresAt); err != nil {
		s.logger.Error("failed to deliver otp",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.String("purpose", string(purpose)),
			slog.Any("error", err))
		return
	}

	s.logger.Info("otp delivered",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.String("purpose", string(purpose)))
}

// Verify checks code against the live record for email. It returns
// models.ErrOTPNotFound, models.ErrOTPExpired, models.ErrOTPMismatch or
// models.ErrOTPExhausted on failure. A match consumes the record; a mismatch
// is counted and burns the record once MaxAttempts is reached.
func (s *OTPService) Verify(ctx context.Context, email, code string, purpose models.OTPPurpose) error {
	otp, err := s.store.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrOTPNotFound
		}
		return err
	}

	if otp.IsExhausted(s.config.MaxAttempts) {
		return models.ErrOTPExhausted
	}

	if otp.Verified {
		return models.ErrOTPNotFound
	}

	if otp.IsExpiredAt(s.now(), s.config.TTL) {
		return models.ErrOTPExpired
	}

	hashMatch := subtle.ConstantTimeCompare([]byte(hashCode(code)), []byte(otp.CodeHash)) == 1
	if !hashMatch || otp.Purpose != purpose {
		attempts, err := s.store.RecordMismatch(ctx, otp, s.config.MaxAttempts)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("failed to record otp mismatch: %w", err)
		}
		if attempts >= s.config.MaxAttempts {
			s.logger.Warn("otp burned after repeated mismatches",
				slog.String("email", pkglogger.SanitizedEmail(otp.Email)),
				slog.String("purpose", string(otp.Purpose)))
		}
		return models.ErrOTPMismatch
	}

	if err := s.store.Consume(ctx, otp); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrOTPNotFound
		}
		return err
	}

	return nil
}

// Live returns the code for email if it can still be verified, or nil
func (s *OTPService) Live(ctx context.Context, email string) (*models.OTP, error) {
	otp, err := s.store.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if otp.Verified || otp.IsExhausted(s.config.MaxAttempts) || otp.IsExpiredAt(s.now(), s.config.TTL) {
		return nil, nil
	}
	return otp, nil
}

// randomCode returns a zero-padded decimal code of the given length
func randomCode(length int) (string, error) {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", length, n), nil
}

func hashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
