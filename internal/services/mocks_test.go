package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/campusgate/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock is a settable time source shared by the components under test
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// MockAdminRepository implements AdminRepository for testing
type MockAdminRepository struct {
	GetByEmailFunc     func(ctx context.Context, email string) (*models.AdminAccount, error)
	GetByIDFunc        func(ctx context.Context, id string) (*models.AdminAccount, error)
	UpdatePasswordFunc func(ctx context.Context, id, passwordHash string) error
}

func (m *MockAdminRepository) GetByEmail(ctx context.Context, email string) (*models.AdminAccount, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockAdminRepository) GetByID(ctx context.Context, id string) (*models.AdminAccount, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockAdminRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(ctx, id, passwordHash)
	}
	return nil
}

// sentOTP is one message captured by MockMailer
type sentOTP struct {
	To        string
	Code      string
	Purpose   models.OTPPurpose
	ExpiresAt time.Time
}

// MockMailer records every code it is asked to send
type MockMailer struct {
	mu         sync.Mutex
	Sent       []sentOTP
	SendOTPErr error
}

func (m *MockMailer) SendOTP(ctx context.Context, to, code string, purpose models.OTPPurpose, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, sentOTP{To: to, Code: code, Purpose: purpose, ExpiresAt: expiresAt})
	return m.SendOTPErr
}

// LastCode returns the most recently sent code, or "" when nothing was sent
func (m *MockMailer) LastCode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sent) == 0 {
		return ""
	}
	return m.Sent[len(m.Sent)-1].Code
}

func (m *MockMailer) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

// memAttemptStore is an in-memory LoginAttemptStore with the same semantics
// as the PostgreSQL upsert
type memAttemptStore struct {
	mu       sync.Mutex
	attempts map[string]models.LoginAttempt
	err      error
}

func newMemAttemptStore() *memAttemptStore {
	return &memAttemptStore{attempts: make(map[string]models.LoginAttempt)}
}

func (s *memAttemptStore) Get(ctx context.Context, ipAddress string) (*models.LoginAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	a, ok := s.attempts[ipAddress]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &a, nil
}

func (s *memAttemptStore) IncrementFailure(ctx context.Context, ipAddress string, threshold int, lockUntil, now time.Time) (*models.LoginAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	a := s.attempts[ipAddress]
	a.IPAddress = ipAddress
	a.AttemptCount++
	if a.AttemptCount >= threshold && !a.IsLockedAt(now) {
		until := lockUntil
		a.LockedUntil = &until
	}
	a.UpdatedAt = now
	s.attempts[ipAddress] = a
	return &a, nil
}

func (s *memAttemptStore) Reset(ctx context.Context, ipAddress string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if a, ok := s.attempts[ipAddress]; ok {
		a.AttemptCount = 0
		a.LockedUntil = nil
		s.attempts[ipAddress] = a
	}
	return nil
}

func (s *memAttemptStore) ClearElapsedLock(ctx context.Context, ipAddress string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if a, ok := s.attempts[ipAddress]; ok && a.LockElapsedAt(now) {
		a.AttemptCount = 0
		a.LockedUntil = nil
		a.UpdatedAt = now
		s.attempts[ipAddress] = a
	}
	return nil
}

func (s *memAttemptStore) count(ipAddress string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[ipAddress].AttemptCount
}

// memOTPStore is an in-memory OTPStore. Consume succeeds once per record.
type memOTPStore struct {
	mu   sync.Mutex
	otps map[string]models.OTP
	err  error
}

func newMemOTPStore() *memOTPStore {
	return &memOTPStore{otps: make(map[string]models.OTP)}
}

func (s *memOTPStore) Upsert(ctx context.Context, otp *models.OTP) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	fresh := *otp
	fresh.Attempts = 0
	fresh.Verified = false
	s.otps[otp.Email] = fresh
	return nil
}

func (s *memOTPStore) GetByEmail(ctx context.Context, email string) (*models.OTP, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	o, ok := s.otps[email]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &o, nil
}

func (s *memOTPStore) Consume(ctx context.Context, otp *models.OTP) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	cur, ok := s.otps[otp.Email]
	if !ok || cur.Verified || cur.CodeHash != otp.CodeHash || !cur.CreatedAt.Equal(otp.CreatedAt) {
		return models.ErrNotFound
	}
	cur.Verified = true
	s.otps[otp.Email] = cur
	return nil
}

func (s *memOTPStore) RecordMismatch(ctx context.Context, otp *models.OTP, maxAttempts int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	cur, ok := s.otps[otp.Email]
	if !ok || cur.Verified || cur.CodeHash != otp.CodeHash || !cur.CreatedAt.Equal(otp.CreatedAt) {
		return 0, models.ErrNotFound
	}
	cur.Attempts++
	if cur.Attempts >= maxAttempts {
		cur.Verified = true
	}
	s.otps[otp.Email] = cur
	return cur.Attempts, nil
}

func (s *memOTPStore) get(email string) (models.OTP, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.otps[email]
	return o, ok
}
