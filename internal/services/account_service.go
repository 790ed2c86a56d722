package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/campusgate/internal/auth"
	"github.com/BradenHooton/campusgate/internal/models"
	pkgauth "github.com/BradenHooton/campusgate/pkg/auth"
	pkglogger "github.com/BradenHooton/campusgate/pkg/logger"
)

// AccountStore is the write side of the admin account repository
type AccountStore interface {
	GetByEmail(ctx context.Context, email string) (*models.AdminAccount, error)
	Create(ctx context.Context, admin *models.AdminAccount) (*models.AdminAccount, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	UpdateTOTP(ctx context.Context, id string, secretEncrypted, nonce []byte) error
}

// AccountService holds operator actions on the administrator account.
// They run from the admin CLI and the API's startup seeding, never over HTTP.
type AccountService struct {
	store       AccountStore
	totp        *auth.TOTPManager
	hashCost    int
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewAccountService creates an account service. totp may be nil when no
// encryption key is configured; enrollment then fails.
func NewAccountService(store AccountStore, totp *auth.TOTPManager, hashCost int, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *AccountService {
	if hashCost == 0 {
		hashCost = pkgauth.BcryptCost
	}
	return &AccountService{
		store:       store,
		totp:        totp,
		hashCost:    hashCost,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// Create adds an administrator with the default scopes
func (s *AccountService) Create(ctx context.Context, email, password string) (*models.AdminAccount, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", models.ErrBadRequest)
	}
	if err := pkgauth.ValidatePassword(password); err != nil {
		return nil, models.ErrWeakPassword
	}

	hash, err := pkgauth.HashPasswordWithCost(password, s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	admin, err := s.store.Create(ctx, &models.AdminAccount{
		Email:        email,
		PasswordHash: hash,
		Scopes:       models.DefaultAdminScopes,
	})
	if err != nil {
		return nil, err
	}

	s.auditLogger.LogAccountAction(pkglogger.EventAdminCreated, admin.ID, map[string]string{
		"email": pkglogger.SanitizedEmail(admin.Email),
	})
	return admin, nil
}

// EnsureAdmin creates the administrator unless the email already exists.
// The boolean reports whether an account was created.
func (s *AccountService) EnsureAdmin(ctx context.Context, email, password string) (bool, error) {
	_, err := s.store.GetByEmail(ctx, normalizeEmail(email))
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return false, fmt.Errorf("failed to check for admin account: %w", err)
	}

	if _, err := s.Create(ctx, email, password); err != nil {
		// lost a race with another instance
		if errors.Is(err, models.ErrConflict) {
			return false, nil
		}
		return false, err
	}
	s.logger.Info("admin account seeded", slog.String("email", pkglogger.SanitizedEmail(email)))
	return true, nil
}

// SetPassword replaces the password without a one-time code
func (s *AccountService) SetPassword(ctx context.Context, email, password string) error {
	admin, err := s.store.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return err
	}
	if err := pkgauth.ValidatePassword(password); err != nil {
		return models.ErrWeakPassword
	}

	hash, err := pkgauth.HashPasswordWithCost(password, s.hashCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.store.UpdatePassword(ctx, admin.ID, hash); err != nil {
		return err
	}

	s.auditLogger.LogAccountAction(pkglogger.EventPasswordSet, admin.ID, map[string]string{"via": "cli"})
	return nil
}

// EnrollTOTP replaces any authenticator secret with a fresh one. The
// returned enrollment carries the plaintext secret and must only be shown
// to the operator.
func (s *AccountService) EnrollTOTP(ctx context.Context, email string) (*auth.TOTPEnrollment, error) {
	if s.totp == nil {
		return nil, errors.New("TOTP_ENCRYPTION_KEY is not configured")
	}

	admin, err := s.store.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}

	enrollment, err := s.totp.Enroll(admin.Email)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateTOTP(ctx, admin.ID, enrollment.Encrypted, enrollment.Nonce); err != nil {
		return nil, err
	}

	s.auditLogger.LogAccountAction(pkglogger.EventTOTPEnrolled, admin.ID, nil)
	return enrollment, nil
}

// DisableTOTP removes the authenticator so login needs only the password
func (s *AccountService) DisableTOTP(ctx context.Context, email string) error {
	admin, err := s.store.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return err
	}
	if !admin.HasTOTP() {
		return nil
	}
	if err := s.store.UpdateTOTP(ctx, admin.ID, nil, nil); err != nil {
		return err
	}

	s.auditLogger.LogAccountAction(pkglogger.EventTOTPDisabled, admin.ID, nil)
	return nil
}
