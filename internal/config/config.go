package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrConfiguration marks a fatal startup configuration problem
var ErrConfiguration = errors.New("configuration error")

// Store backends for login attempts and one-time passwords
const (
	StoreBackendPostgres = "postgres"
	StoreBackendRedis    = "redis"
)

// DefaultTOTPIssuer is the label authenticator apps show for enrolled accounts
const DefaultTOTPIssuer = "Campus Console"

// Mail drivers
const (
	MailDriverSES  = "ses"
	MailDriverSMTP = "smtp"
	MailDriverLog  = "log"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Store    StoreConfig
	Auth     AuthConfig
	Email    EmailConfig
	Admin    AdminConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	AutoMigrate       bool
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

type StoreConfig struct {
	Backend  string
	RedisURL string
}

type AuthConfig struct {
	JWTSecret          string
	SessionTokenExpiry time.Duration

	LockoutThreshold int
	LockoutDuration  time.Duration
	AttemptRetention time.Duration

	OTPTTL         time.Duration
	OTPLength      int
	OTPMaxAttempts int

	PasswordResetCooldown time.Duration

	CleanupInterval time.Duration

	TimingDelayBaseMs    int
	TimingDelayRandomMs  int
	TimingDelayOnSuccess bool

	TOTPEncryptionKey []byte
	TOTPIssuer        string

	CookieDomain   string
	CookieSecure   bool
	CookieSameSite string

	RequestsPerMinute int
}

type EmailConfig struct {
	Driver       string
	FromAddress  string
	AWSRegion    string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPUseTLS   bool
	SendTimeout  time.Duration
}

// AdminConfig seeds the administrator account on first start
type AdminConfig struct {
	Email    string
	Password string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("%w: JWT_SECRET is required", ErrConfiguration)
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: loadDatabase(),
		Server:   ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			TrustedProxies: parseList(getEnv("TRUSTED_PROXIES", "")),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Store: StoreConfig{
			Backend:  strings.ToLower(getEnv("STORE_BACKEND", StoreBackendPostgres)),
			RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),
		},
		Auth: AuthConfig{
			JWTSecret:             jwtSecret,
			SessionTokenExpiry:    getEnvAsDuration("SESSION_TOKEN_EXPIRY", 1*time.Hour),
			LockoutThreshold:      getEnvAsInt("LOCKOUT_THRESHOLD", 5),
			LockoutDuration:       getEnvAsDuration("LOCKOUT_DURATION", 15*time.Minute),
			AttemptRetention:      getEnvAsDuration("ATTEMPT_RETENTION", 24*time.Hour),
			OTPTTL:                getEnvAsDuration("OTP_TTL", 5*time.Minute),
			OTPLength:             getEnvAsInt("OTP_LENGTH", 6),
			OTPMaxAttempts:        getEnvAsInt("OTP_MAX_ATTEMPTS", 5),
			PasswordResetCooldown: getEnvAsDuration("PASSWORD_RESET_COOLDOWN", time.Minute),
			CleanupInterval:       getEnvAsDuration("CLEANUP_INTERVAL", 10*time.Minute),
			TimingDelayBaseMs:     getEnvAsInt("TIMING_DELAY_BASE_MS", 250),
			TimingDelayRandomMs:   getEnvAsInt("TIMING_DELAY_RANDOM_MS", 100),
			TimingDelayOnSuccess:  getEnvAsBool("TIMING_DELAY_ON_SUCCESS", false),
			TOTPIssuer:            getEnv("TOTP_ISSUER", DefaultTOTPIssuer),
			CookieDomain:          getEnv("COOKIE_DOMAIN", ""),
			CookieSecure:          getEnvAsBool("COOKIE_SECURE", env == "production"),
			CookieSameSite:        getEnv("COOKIE_SAMESITE", "strict"),
			RequestsPerMinute:     getEnvAsInt("AUTH_REQUESTS_PER_MINUTE", 10),
		},
		Email: EmailConfig{
			Driver:       strings.ToLower(getEnv("MAIL_DRIVER", MailDriverLog)),
			FromAddress:  getEnv("MAIL_FROM", "no-reply@localhost"),
			AWSRegion:    getEnv("AWS_REGION", "us-east-1"),
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			SMTPUseTLS:   getEnvAsBool("SMTP_USE_TLS", true),
			SendTimeout:  getEnvAsDuration("MAIL_SEND_TIMEOUT", 10*time.Second),
		},
		Admin: AdminConfig{
			Email:    strings.ToLower(strings.TrimSpace(getEnv("ADMIN_EMAIL", ""))),
			Password: getEnv("ADMIN_PASSWORD", ""),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("%w: DB_PASSWORD is required", ErrConfiguration)
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if key := getEnv("TOTP_ENCRYPTION_KEY", ""); key != "" {
		decoded, err := DecodeTOTPKey(key)
		if err != nil {
			return nil, err
		}
		cfg.Auth.TOTPEncryptionKey = decoded
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case StoreBackendPostgres, StoreBackendRedis:
	default:
		return fmt.Errorf("%w: unknown STORE_BACKEND %q", ErrConfiguration, c.Store.Backend)
	}

	switch c.Email.Driver {
	case MailDriverSES, MailDriverLog:
	case MailDriverSMTP:
		if c.Email.SMTPHost == "" {
			return fmt.Errorf("%w: SMTP_HOST is required for the smtp mail driver", ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown MAIL_DRIVER %q", ErrConfiguration, c.Email.Driver)
	}

	if c.Auth.LockoutThreshold < 1 {
		return fmt.Errorf("%w: LOCKOUT_THRESHOLD must be at least 1", ErrConfiguration)
	}
	if c.Auth.OTPLength < 4 || c.Auth.OTPLength > 10 {
		return fmt.Errorf("%w: OTP_LENGTH must be between 4 and 10", ErrConfiguration)
	}
	if c.Auth.OTPTTL <= 0 || c.Auth.SessionTokenExpiry <= 0 || c.Auth.LockoutDuration <= 0 {
		return fmt.Errorf("%w: OTP_TTL, SESSION_TOKEN_EXPIRY and LOCKOUT_DURATION must be positive", ErrConfiguration)
	}
	if c.Auth.OTPMaxAttempts < 1 {
		return fmt.Errorf("%w: OTP_MAX_ATTEMPTS must be at least 1", ErrConfiguration)
	}
	if c.Auth.PasswordResetCooldown < 0 {
		return fmt.Errorf("%w: PASSWORD_RESET_COOLDOWN cannot be negative", ErrConfiguration)
	}
	// both feed time.NewTicker or a retention cutoff
	if c.Auth.CleanupInterval <= 0 || c.Auth.AttemptRetention <= 0 {
		return fmt.Errorf("%w: CLEANUP_INTERVAL and ATTEMPT_RETENTION must be positive", ErrConfiguration)
	}

	return nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("%w: JWT_SECRET must be at least %d characters in %s environment (got %d)",
			ErrConfiguration, minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("%w: JWT_SECRET cannot be a common weak value", ErrConfiguration)
		}
	}

	return nil
}

// DecodeTOTPKey decodes the base64 TOTP_ENCRYPTION_KEY into an AES-256 key
func DecodeTOTPKey(encoded string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(decoded) != 32 {
		return nil, fmt.Errorf("%w: TOTP_ENCRYPTION_KEY must be 32 bytes, base64 encoded", ErrConfiguration)
	}
	return decoded, nil
}

// LoadDatabase reads only the database settings, for tools that do not
// serve HTTP
func LoadDatabase() DatabaseConfig {
	_ = godotenv.Load()
	return loadDatabase()
}

func loadDatabase() DatabaseConfig {
	return DatabaseConfig{
		Host:              getEnv("DB_HOST", "localhost"),
		Port:              getEnvAsInt("DB_PORT", 5432),
		User:              getEnv("DB_USER", "postgres"),
		Password:          getEnv("DB_PASSWORD", ""),
		Name:              getEnv("DB_NAME", "campusgate"),
		SSLMode:           getEnv("DB_SSLMODE", "disable"),
		MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
		MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
		MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
		MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
		HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		AutoMigrate:       getEnvAsBool("DB_AUTO_MIGRATE", false),
	}
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		return parseList(getEnv("ALLOWED_ORIGINS", ""))
	}

	// Development: the marketing site and admin console dev servers
	return []string{
		"http://localhost:3000",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
}
