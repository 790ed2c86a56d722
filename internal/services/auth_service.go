package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/campusgate/internal/auth"
	"github.com/BradenHooton/campusgate/internal/models"
	pkgauth "github.com/BradenHooton/campusgate/pkg/auth"
	pkglogger "github.com/BradenHooton/campusgate/pkg/logger"
)

// AdminRepository defines the credential store operations the gateway needs
type AdminRepository interface {
	GetByEmail(ctx context.Context, email string) (*models.AdminAccount, error)
	GetByID(ctx context.Context, id string) (*models.AdminAccount, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// LoginStatusOTPSent tells the client to continue with the emailed code
const LoginStatusOTPSent = "otp_sent"

// AuthConfig holds gateway settings
type AuthConfig struct {
	// AdminEmail, when set, is the only address allowed to sign in
	AdminEmail       string
	PasswordHashCost int
	// ResetCooldown is the minimum gap between two reset codes for one email
	ResetCooldown time.Duration
}

// DefaultResetCooldown applies when AuthConfig.ResetCooldown is unset
const DefaultResetCooldown = time.Minute

// AuthService is the admin login gateway: credentials, then an emailed
// one-time code, then a session token
type AuthService struct {
	repo        AdminRepository
	tracker     *LoginAttemptTracker
	otp         *OTPService
	tm          *auth.TokenManager
	totp        *auth.TOTPManager // nil when security codes are not configured
	timing      *auth.TimingDelay
	config      AuthConfig
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	now         func() time.Time
}

// NewAuthService creates a new AuthService
func NewAuthService(
	repo AdminRepository,
	tracker *LoginAttemptTracker,
	otp *OTPService,
	tm *auth.TokenManager,
	totp *auth.TOTPManager,
	timing *auth.TimingDelay,
	config AuthConfig,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *AuthService {
	if config.PasswordHashCost == 0 {
		config.PasswordHashCost = pkgauth.BcryptCost
	}
	if config.ResetCooldown <= 0 {
		config.ResetCooldown = DefaultResetCooldown
	}
	config.AdminEmail = normalizeEmail(config.AdminEmail)

	return &AuthService{
		repo:        repo,
		tracker:     tracker,
		otp:         otp,
		tm:          tm,
		totp:        totp,
		timing:      timing,
		config:      config,
		logger:      logger,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// LoginInput is a credential submission from one client address
type LoginInput struct {
	Email        string
	Password     string
	SecurityCode string
	IPAddress    string
	UserAgent    string
}

// LoginResult signals that a code was sent. The code itself is never returned.
type LoginResult struct {
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionResult carries a freshly issued session token
type SessionResult struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
	Admin     *models.Identity `json:"admin"`
}

// Login checks credentials for an address that is not locked. On success the
// address counter is reset and a login code is emailed.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	start := time.Now()
	email := normalizeEmail(in.Email)

	locked, err := s.tracker.IsLocked(ctx, in.IPAddress)
	if err != nil {
		s.logger.Error("failed to check login lock", slog.String("ip_address", in.IPAddress), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if locked {
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     pkglogger.EventLoginLocked,
			Email:         email,
			IPAddress:     in.IPAddress,
			UserAgent:     in.UserAgent,
			FailureReason: "address_locked",
		})
		return nil, models.ErrTooManyAttempts
	}

	admin, reason, err := s.checkCredentials(ctx, email, in.Password, in.SecurityCode)
	if err != nil {
		s.logger.Error("failed to check credentials", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if admin == nil {
		attempt, err := s.tracker.RecordFailure(ctx, in.IPAddress)
		if err != nil {
			s.logger.Error("failed to record login failure", slog.String("ip_address", in.IPAddress), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}

		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     pkglogger.EventLoginFailed,
			Email:         email,
			IPAddress:     in.IPAddress,
			UserAgent:     in.UserAgent,
			FailureReason: reason,
			Metadata:      map[string]string{"attempt_count": fmt.Sprint(attempt.AttemptCount)},
		})
		s.timing.WaitFrom(ctx, start, false)
		return nil, models.ErrInvalidCredentials
	}

	if err := s.tracker.RecordSuccess(ctx, in.IPAddress); err != nil {
		s.logger.Error("failed to reset login attempts", slog.String("ip_address", in.IPAddress), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	expiresAt, err := s.otp.Issue(ctx, admin.Email, models.OTPPurposeLogin)
	if err != nil {
		s.logger.Error("failed to issue login otp", slog.String("admin_id", admin.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: pkglogger.EventOTPSent,
		AdminID:   admin.ID,
		IPAddress: in.IPAddress,
		UserAgent: in.UserAgent,
		Success:   true,
	})
	s.timing.WaitFrom(ctx, start, true)

	return &LoginResult{Status: LoginStatusOTPSent, ExpiresAt: expiresAt}, nil
}

// checkCredentials returns the account when email, password and (if the
// account has an authenticator enrolled) security code all match. A nil
// account with a reason means rejection; err is reserved for store failures.
func (s *AuthService) checkCredentials(ctx context.Context, email, password, securityCode string) (*models.AdminAccount, string, error) {
	if email == "" || (s.config.AdminEmail != "" && email != s.config.AdminEmail) {
		pkgauth.CompareDummy(password)
		return nil, "unknown_email", nil
	}

	admin, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkgauth.CompareDummy(password)
			return nil, "unknown_email", nil
		}
		return nil, "", err
	}

	if err := pkgauth.ComparePassword(admin.PasswordHash, password); err != nil {
		return nil, "invalid_password", nil
	}

	if admin.HasTOTP() {
		if s.totp == nil {
			return nil, "", fmt.Errorf("admin %s has a security code enrolled but TOTP_ENCRYPTION_KEY is not set", admin.ID)
		}
		if securityCode == "" {
			return nil, "missing_security_code", nil
		}
		ok, err := s.totp.Validate(admin.TOTPSecretEncrypted, admin.TOTPNonce, securityCode, s.now())
		if err != nil {
			return nil, "", fmt.Errorf("failed to validate security code: %w", err)
		}
		if !ok {
			return nil, "invalid_security_code", nil
		}
	}

	return admin, "", nil
}

// VerifyOTP exchanges a login code for a session token. Every verifier
// failure surfaces as models.ErrInvalidOTP; the specific kind is only logged.
func (s *AuthService) VerifyOTP(ctx context.Context, email, code, ipAddress, userAgent string) (*SessionResult, error) {
	email = normalizeEmail(email)

	if err := s.otp.Verify(ctx, email, code, models.OTPPurposeLogin); err != nil {
		return nil, s.otpFailure(err, email, ipAddress, userAgent, models.OTPPurposeLogin)
	}

	admin, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		s.logger.Error("failed to load admin after otp verification", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	token, expiresAt, err := s.tm.Issue(admin.ID, admin.Email, admin.Scopes)
	if err != nil {
		s.logger.Error("failed to issue session token", slog.String("admin_id", admin.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: pkglogger.EventLoginSuccess,
		AdminID:   admin.ID,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		Success:   true,
	})

	return &SessionResult{
		Token:     token,
		ExpiresAt: expiresAt,
		Admin: &models.Identity{
			AdminID:   admin.ID,
			Email:     admin.Email,
			Scopes:    admin.Scopes,
			ExpiresAt: expiresAt,
		},
	}, nil
}

// otpFailure logs the specific verifier failure and maps it for the caller
func (s *AuthService) otpFailure(err error, email, ipAddress, userAgent string, purpose models.OTPPurpose) error {
	var reason string
	switch {
	case errors.Is(err, models.ErrOTPNotFound):
		reason = "not_found"
	case errors.Is(err, models.ErrOTPExpired):
		reason = "expired"
	case errors.Is(err, models.ErrOTPMismatch):
		reason = "mismatch"
	case errors.Is(err, models.ErrOTPExhausted):
		reason = "attempts_exhausted"
	default:
		s.logger.Error("failed to verify otp", slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:     pkglogger.EventOTPFailed,
		Email:         email,
		IPAddress:     ipAddress,
		UserAgent:     userAgent,
		FailureReason: reason,
		Metadata:      map[string]string{"purpose": string(purpose)},
	})
	return models.ErrInvalidOTP
}

// ValidateToken returns the identity a session token speaks for
func (s *AuthService) ValidateToken(token string) (*models.TokenClaims, error) {
	claims, err := s.tm.ValidateToken(token)
	if err != nil {
		s.logger.Debug("session token rejected", slog.Any("error", err))
		if errors.Is(err, models.ErrTokenExpired) {
			return nil, models.ErrTokenExpired
		}
		return nil, models.ErrTokenInvalid
	}
	return claims, nil
}

// RequestPasswordReset emails a reset code when email belongs to the
// administrator. The outcome is never revealed to the caller. A pending login
// code is left in place, and a reset code younger than ResetCooldown is not
// replaced.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email, ipAddress string) {
	start := time.Now()
	email = normalizeEmail(email)
	defer s.timing.WaitFrom(ctx, start, false)

	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: pkglogger.EventPasswordResetRequested,
		Email:     email,
		IPAddress: ipAddress,
		Success:   true,
	})

	if email == "" || (s.config.AdminEmail != "" && email != s.config.AdminEmail) {
		return
	}

	admin, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("failed to look up admin for password reset", slog.Any("error", err))
		}
		return
	}

	live, err := s.otp.Live(ctx, admin.Email)
	if err != nil {
		s.logger.Error("failed to check pending otp for password reset", slog.Any("error", err))
		return
	}
	if live != nil {
		if live.Purpose == models.OTPPurposeLogin {
			s.logger.Info("password reset skipped, login code pending", slog.String("admin_id", admin.ID))
			return
		}
		if s.now().Sub(live.CreatedAt) < s.config.ResetCooldown {
			s.logger.Info("password reset skipped, cooldown active", slog.String("admin_id", admin.ID))
			return
		}
	}

	if _, err := s.otp.Issue(ctx, admin.Email, models.OTPPurposePasswordReset); err != nil {
		s.logger.Error("failed to issue password reset otp", slog.String("admin_id", admin.ID), slog.Any("error", err))
	}
}

// ResetPasswordInput is a password change authorized by a reset code
type ResetPasswordInput struct {
	Email       string
	Code        string
	NewPassword string
	IPAddress   string
	UserAgent   string
}

// ResetPassword replaces the administrator's password after a reset code is
// verified. Locked addresses are refused and a reset never lifts a lock.
// Existing session tokens stay valid until they expire.
func (s *AuthService) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	email := normalizeEmail(in.Email)

	locked, err := s.tracker.IsLocked(ctx, in.IPAddress)
	if err != nil {
		s.logger.Error("failed to check login lock", slog.String("ip_address", in.IPAddress), slog.Any("error", err))
		return models.ErrInternalServer
	}
	if locked {
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     pkglogger.EventLoginLocked,
			Email:         email,
			IPAddress:     in.IPAddress,
			UserAgent:     in.UserAgent,
			FailureReason: "address_locked",
			Metadata:      map[string]string{"purpose": string(models.OTPPurposePasswordReset)},
		})
		return models.ErrTooManyAttempts
	}

	// checked first so a weak password does not burn the code
	if err := pkgauth.ValidatePassword(in.NewPassword); err != nil {
		return models.ErrWeakPassword
	}

	if err := s.otp.Verify(ctx, email, in.Code, models.OTPPurposePasswordReset); err != nil {
		return s.otpFailure(err, email, in.IPAddress, in.UserAgent, models.OTPPurposePasswordReset)
	}

	admin, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		s.logger.Error("failed to load admin for password reset", slog.Any("error", err))
		return models.ErrInternalServer
	}

	hash, err := pkgauth.HashPasswordWithCost(in.NewPassword, s.config.PasswordHashCost)
	if err != nil {
		s.logger.Error("failed to hash new password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.repo.UpdatePassword(ctx, admin.ID, hash); err != nil {
		s.auditLogger.LogPasswordChange(admin.ID, in.IPAddress, "reset_code", false)
		s.logger.Error("failed to store new password", slog.String("admin_id", admin.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.auditLogger.LogPasswordChange(admin.ID, in.IPAddress, "reset_code", true)
	return nil
}
