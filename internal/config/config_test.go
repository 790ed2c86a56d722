package config

import (
	"encoding/base64"
	"errors"
	"os"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	os.Clearenv()
	os.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	os.Setenv("DB_PASSWORD", "test")
	t.Cleanup(os.Clearenv)
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	tests := []struct {
		name     string
		actual   interface{}
		expected interface{}
	}{
		{"SessionTokenExpiry", cfg.Auth.SessionTokenExpiry, 1 * time.Hour},
		{"LockoutThreshold", cfg.Auth.LockoutThreshold, 5},
		{"LockoutDuration", cfg.Auth.LockoutDuration, 15 * time.Minute},
		{"OTPTTL", cfg.Auth.OTPTTL, 5 * time.Minute},
		{"OTPLength", cfg.Auth.OTPLength, 6},
		{"OTPMaxAttempts", cfg.Auth.OTPMaxAttempts, 5},
		{"PasswordResetCooldown", cfg.Auth.PasswordResetCooldown, time.Minute},
		{"StoreBackend", cfg.Store.Backend, StoreBackendPostgres},
		{"MailDriver", cfg.Email.Driver, MailDriverLog},
		{"MailSendTimeout", cfg.Email.SendTimeout, 10 * time.Second},
		{"ReadTimeout", cfg.Server.ReadTimeout, 15 * time.Second},
		{"WriteTimeout", cfg.Server.WriteTimeout, 15 * time.Second},
		{"IdleTimeout", cfg.Server.IdleTimeout, 60 * time.Second},
	}

	for _, tt := range tests {
		if tt.actual != tt.expected {
			t.Errorf("%s: got %v, want %v", tt.name, tt.actual, tt.expected)
		}
	}
}

func TestLoad_CustomAuthValues(t *testing.T) {
	setRequiredEnv(t)
	os.Setenv("LOCKOUT_THRESHOLD", "3")
	os.Setenv("LOCKOUT_DURATION", "30m")
	os.Setenv("OTP_TTL", "2m")
	os.Setenv("STORE_BACKEND", "Redis")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if cfg.Auth.LockoutThreshold != 3 {
		t.Errorf("LockoutThreshold: got %d, want 3", cfg.Auth.LockoutThreshold)
	}
	if cfg.Auth.LockoutDuration != 30*time.Minute {
		t.Errorf("LockoutDuration: got %v, want 30m", cfg.Auth.LockoutDuration)
	}
	if cfg.Auth.OTPTTL != 2*time.Minute {
		t.Errorf("OTPTTL: got %v, want 2m", cfg.Auth.OTPTTL)
	}
	if cfg.Store.Backend != StoreBackendRedis {
		t.Errorf("Store.Backend: got %q, want %q", cfg.Store.Backend, StoreBackendRedis)
	}
}

func TestLoad_InvalidDurationFallsBackToDefault(t *testing.T) {
	setRequiredEnv(t)
	os.Setenv("SERVER_READ_TIMEOUT", "not-a-duration")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("ReadTimeout: got %v, want 15s", cfg.Server.ReadTimeout)
	}
}

func TestLoad_MissingJWTSecretIsConfigurationError(t *testing.T) {
	os.Clearenv()
	os.Setenv("DB_PASSWORD", "test")
	t.Cleanup(os.Clearenv)

	_, err := Load()
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("Load() = %v, want ErrConfiguration", err)
	}
}

func TestLoad_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"short secret in production", map[string]string{"ENV": "production", "JWT_SECRET": "only-twenty-chars-xx"}},
		{"weak secret", map[string]string{"JWT_SECRET": "changeme"}},
		{"unknown store backend", map[string]string{"STORE_BACKEND": "memcached"}},
		{"unknown mail driver", map[string]string{"MAIL_DRIVER": "carrier-pigeon"}},
		{"smtp without host", map[string]string{"MAIL_DRIVER": "smtp"}},
		{"zero lockout threshold", map[string]string{"LOCKOUT_THRESHOLD": "0"}},
		{"otp too short", map[string]string{"OTP_LENGTH": "2"}},
		{"zero otp attempts", map[string]string{"OTP_MAX_ATTEMPTS": "0"}},
		{"negative reset cooldown", map[string]string{"PASSWORD_RESET_COOLDOWN": "-1m"}},
		{"zero cleanup interval", map[string]string{"CLEANUP_INTERVAL": "0s"}},
		{"negative cleanup interval", map[string]string{"CLEANUP_INTERVAL": "-5m"}},
		{"zero attempt retention", map[string]string{"ATTEMPT_RETENTION": "0s"}},
		{"negative attempt retention", map[string]string{"ATTEMPT_RETENTION": "-1h"}},
		{"bad totp key", map[string]string{"TOTP_ENCRYPTION_KEY": base64.StdEncoding.EncodeToString([]byte("short"))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range tt.env {
				os.Setenv(k, v)
			}

			_, err := Load()
			if !errors.Is(err, ErrConfiguration) {
				t.Errorf("Load() = %v, want ErrConfiguration", err)
			}
		})
	}
}

func TestLoad_TOTPKeyDecoded(t *testing.T) {
	setRequiredEnv(t)
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	os.Setenv("TOTP_ENCRYPTION_KEY", base64.StdEncoding.EncodeToString(key))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}
	if len(cfg.Auth.TOTPEncryptionKey) != 32 {
		t.Errorf("TOTPEncryptionKey length: got %d, want 32", len(cfg.Auth.TOTPEncryptionKey))
	}
}

func TestParseList(t *testing.T) {
	got := parseList(" 10.0.0.0/8, ,192.168.0.0/16 ")
	if len(got) != 2 || got[0] != "10.0.0.0/8" || got[1] != "192.168.0.0/16" {
		t.Errorf("parseList: got %v", got)
	}
	if len(parseList("")) != 0 {
		t.Errorf("parseList(\"\") should be empty")
	}
}

func TestLoadDatabase_NoJWTSecretNeeded(t *testing.T) {
	os.Clearenv()
	t.Cleanup(os.Clearenv)
	os.Setenv("DB_HOST", "db.internal")
	os.Setenv("DB_NAME", "gate")

	db := LoadDatabase()
	if db.Host != "db.internal" || db.Name != "gate" || db.Port != 5432 {
		t.Errorf("LoadDatabase: got %+v", db)
	}
	want := "host=db.internal port=5432 user=postgres password= dbname=gate sslmode=disable"
	if db.DSN() != want {
		t.Errorf("DSN: got %q, want %q", db.DSN(), want)
	}
}
