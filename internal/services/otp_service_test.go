package services

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BradenHooton/campusgate/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAdminEmail = "admin@campus.example"

func newTestOTPService(store OTPStore, mailer Mailer, clock *fakeClock) *OTPService {
	svc := NewOTPService(store, mailer, OTPConfig{TTL: 10 * time.Minute, Length: 6, SendTimeout: time.Second}, discardLogger())
	svc.now = clock.Now
	return svc
}

func TestOTPService_IssueSendsSixDigitCode(t *testing.T) {
	clock := newFakeClock()
	store := newMemOTPStore()
	mailer := &MockMailer{}
	svc := newTestOTPService(store, mailer, clock)

	expiresAt, err := svc.Issue(context.Background(), "Admin@Campus.Example ", models.OTPPurposeLogin)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(10*time.Minute), expiresAt)

	require.Equal(t, 1, mailer.Count())
	sent := mailer.Sent[0]
	assert.Equal(t, testAdminEmail, sent.To)
	assert.Regexp(t, regexp.MustCompile(`^\d{6}$`), sent.Code)
	assert.Equal(t, models.OTPPurposeLogin, sent.Purpose)

	stored, ok := store.get(testAdminEmail)
	require.True(t, ok)
	assert.NotEqual(t, sent.Code, stored.CodeHash, "codes are stored hashed")
	assert.Equal(t, hashCode(sent.Code), stored.CodeHash)
	assert.False(t, stored.Verified)
}

func TestOTPService_IssueRejectsUnknownPurpose(t *testing.T) {
	svc := newTestOTPService(newMemOTPStore(), &MockMailer{}, newFakeClock())

	_, err := svc.Issue(context.Background(), testAdminEmail, models.OTPPurpose("signup"))
	assert.Error(t, err)
}

func TestOTPService_IssueSucceedsWhenMailFails(t *testing.T) {
	store := newMemOTPStore()
	mailer := &MockMailer{SendOTPErr: errors.New("smtp down")}
	svc := newTestOTPService(store, mailer, newFakeClock())

	_, err := svc.Issue(context.Background(), testAdminEmail, models.OTPPurposeLogin)
	require.NoError(t, err)

	_, ok := store.get(testAdminEmail)
	assert.True(t, ok, "the code stays valid even if delivery failed")
}

func TestOTPService_IssueStoreError(t *testing.T) {
	store := newMemOTPStore()
	store.err = errors.New("connection refused")
	mailer := &MockMailer{}
	svc := newTestOTPService(store, mailer, newFakeClock())

	_, err := svc.Issue(context.Background(), testAdminEmail, models.OTPPurposeLogin)
	assert.Error(t, err)
	assert.Zero(t, mailer.Count(), "nothing is mailed when the code could not be stored")
}

func TestOTPService_VerifyConsumesCode(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	mailer := &MockMailer{}
	svc := newTestOTPService(newMemOTPStore(), mailer, clock)

	_, err := svc.Issue(ctx, testAdminEmail, models.OTPPurposeLogin)
	require.NoError(t, err)
	code := mailer.LastCode()

	require.NoError(t, svc.Verify(ctx, testAdminEmail, code, models.OTPPurposeLogin))
	assert.ErrorIs(t, svc.Verify(ctx, testAdminEmail, code, models.OTPPurposeLogin), models.ErrOTPNotFound)
}

func TestOTPService_VerifyFailures(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(svc *OTPService, clock *fakeClock) (email, code string)
		want    error
	}{
		{
			name: "no code issued",
			prepare: func(svc *OTPService, clock *fakeClock) (string, string) {
				return testAdminEmail, "123456"
			},
			want: models.ErrOTPNotFound,
		},
		{
			name: "wrong code",
			prepare: func(svc *OTPService, clock *fakeClock) (string, string) {
				mailer := svc.mailer.(*MockMailer)
				_, _ = svc.Issue(context.Background(), testAdminEmail, models.OTPPurposeLogin)
				code := "000000"
				if mailer.LastCode() == code {
					code = "000001"
				}
				return testAdminEmail, code
			},
			want: models.ErrOTPMismatch,
		},
		{
			name: "expired code",
			prepare: func(svc *OTPService, clock *fakeClock) (string, string) {
				mailer := svc.mailer.(*MockMailer)
				_, _ = svc.Issue(context.Background(), testAdminEmail, models.OTPPurposeLogin)
				clock.Advance(10*time.Minute + time.Second)
				return testAdminEmail, mailer.LastCode()
			},
			want: models.ErrOTPExpired,
		},
		{
			name: "wrong purpose",
			prepare: func(svc *OTPService, clock *fakeClock) (string, string) {
				mailer := svc.mailer.(*MockMailer)
				_, _ = svc.Issue(context.Background(), testAdminEmail, models.OTPPurposePasswordReset)
				return testAdminEmail, mailer.LastCode()
			},
			want: models.ErrOTPMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			svc := newTestOTPService(newMemOTPStore(), &MockMailer{}, clock)

			email, code := tt.prepare(svc, clock)
			assert.ErrorIs(t, svc.Verify(context.Background(), email, code, models.OTPPurposeLogin), tt.want)
		})
	}
}

func TestOTPService_VerifyAtExactTTL(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	mailer := &MockMailer{}
	svc := newTestOTPService(newMemOTPStore(), mailer, clock)

	_, err := svc.Issue(ctx, testAdminEmail, models.OTPPurposeLogin)
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	assert.NoError(t, svc.Verify(ctx, testAdminEmail, mailer.LastCode(), models.OTPPurposeLogin))
}

func TestOTPService_MismatchKeepsCodeUsable(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	mailer := &MockMailer{}
	svc := newTestOTPService(newMemOTPStore(), mailer, clock)

	_, err := svc.Issue(ctx, testAdminEmail, models.OTPPurposeLogin)
	require.NoError(t, err)
	code := mailer.LastCode()

	wrong := "999999"
	if code == wrong {
		wrong = "999998"
	}
	assert.ErrorIs(t, svc.Verify(ctx, testAdminEmail, wrong, models.OTPPurposeLogin), models.ErrOTPMismatch)
	assert.NoError(t, svc.Verify(ctx, testAdminEmail, code, models.OTPPurposeLogin))
}

func TestOTPService_ReissueSupersedesEarlierCode(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	mailer := &MockMailer{}
	svc := newTestOTPService(newMemOTPStore(), mailer, clock)

	_, err := svc.Issue(ctx, testAdminEmail, models.OTPPurposeLogin)
	require.NoError(t, err)
	first := mailer.LastCode()

	clock.Advance(time.Second)
	_, err = svc.Issue(ctx, testAdminEmail, models.OTPPurposeLogin)
	require.NoError(t, err)
	second := mailer.LastCode()

	if first != second {
		assert.ErrorIs(t, svc.Verify(ctx, testAdminEmail, first, models.OTPPurposeLogin), models.ErrOTPMismatch)
	}
	assert.NoError(t, svc.Verify(ctx, testAdminEmail, second, models.OTPPurposeLogin))
}

func TestOTPService_ConcurrentVerifySucceedsOnce(t *testing.T) {
	ctx := context.Background()
	mailer := &MockMailer{}
	svc := newTestOTPService(newMemOTPStore(), mailer, newFakeClock())

	_, err := svc.Issue(ctx, testAdminEmail, models.OTPPurposeLogin)
	require.NoError(t, err)
	code := mailer.LastCode()

	var successes atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if svc.Verify(ctx, testAdminEmail, code, models.OTPPurposeLogin) == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
}

func TestRandomCode_ZeroPadded(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := randomCode(6)
		require.NoError(t, err)
		assert.Len(t, code, 6)
	}

	code, err := randomCode(8)
	require.NoError(t, err)
	assert.Len(t, code, 8)
}

func TestOTPService_RepeatedMismatchesBurnCode(t *testing.T) {
	ctx := context.Background()
	mailer := &MockMailer{}
	store := newMemOTPStore()
	svc := newTestOTPService(store, mailer, newFakeClock())

	_, err := svc.Issue(ctx, testAdminEmail, models.OTPPurposePasswordReset)
	require.NoError(t, err)
	code := mailer.LastCode()
	issued, _ := store.get(testAdminEmail)

	for i := 0; i < DefaultOTPMaxAttempts; i++ {
		assert.ErrorIs(t, svc.Verify(ctx, testAdminEmail, wrongCode(code), models.OTPPurposePasswordReset), models.ErrOTPMismatch)
	}

	assert.ErrorIs(t, svc.Verify(ctx, testAdminEmail, code, models.OTPPurposePasswordReset), models.ErrOTPExhausted,
		"the right code is refused once the guesses are used up")

	stored, _ := store.get(testAdminEmail)
	assert.Equal(t, DefaultOTPMaxAttempts, stored.Attempts)
	assert.True(t, stored.CreatedAt.Equal(issued.CreatedAt), "mismatches never move the expiry")
}

func TestOTPService_ManyGuessesNeverAcceptCode(t *testing.T) {
	ctx := context.Background()
	mailer := &MockMailer{}
	svc := newTestOTPService(newMemOTPStore(), mailer, newFakeClock())

	_, err := svc.Issue(ctx, testAdminEmail, models.OTPPurposePasswordReset)
	require.NoError(t, err)
	code := mailer.LastCode()

	for i := 0; i < 1000; i++ {
		_ = svc.Verify(ctx, testAdminEmail, wrongCode(code), models.OTPPurposePasswordReset)
	}
	assert.Error(t, svc.Verify(ctx, testAdminEmail, code, models.OTPPurposePasswordReset))
}

func TestOTPService_ReissueResetsAttempts(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	mailer := &MockMailer{}
	svc := newTestOTPService(newMemOTPStore(), mailer, clock)

	_, err := svc.Issue(ctx, testAdminEmail, models.OTPPurposeLogin)
	require.NoError(t, err)
	for i := 0; i < DefaultOTPMaxAttempts; i++ {
		_ = svc.Verify(ctx, testAdminEmail, wrongCode(mailer.LastCode()), models.OTPPurposeLogin)
	}

	clock.Advance(time.Second)
	_, err = svc.Issue(ctx, testAdminEmail, models.OTPPurposeLogin)
	require.NoError(t, err)
	assert.NoError(t, svc.Verify(ctx, testAdminEmail, mailer.LastCode(), models.OTPPurposeLogin))
}

func TestOTPService_Live(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	mailer := &MockMailer{}
	svc := newTestOTPService(newMemOTPStore(), mailer, clock)

	live, err := svc.Live(ctx, testAdminEmail)
	require.NoError(t, err)
	assert.Nil(t, live)

	_, err = svc.Issue(ctx, testAdminEmail, models.OTPPurposeLogin)
	require.NoError(t, err)

	live, err = svc.Live(ctx, testAdminEmail)
	require.NoError(t, err)
	require.NotNil(t, live)
	assert.Equal(t, models.OTPPurposeLogin, live.Purpose)

	clock.Advance(10*time.Minute + time.Second)
	live, err = svc.Live(ctx, testAdminEmail)
	require.NoError(t, err)
	assert.Nil(t, live)
}

// blockingMailer holds every send until its context is done
type blockingMailer struct {
	MockMailer
}

func (m *blockingMailer) SendOTP(ctx context.Context, to, code string, purpose models.OTPPurpose, expiresAt time.Time) error {
	<-ctx.Done()
	_ = m.MockMailer.SendOTP(ctx, to, code, purpose, expiresAt)
	return ctx.Err()
}

func TestOTPService_IssueBoundsSlowDelivery(t *testing.T) {
	ctx := context.Background()
	store := newMemOTPStore()
	mailer := &blockingMailer{}
	svc := NewOTPService(store, mailer, OTPConfig{TTL: 10 * time.Minute, SendTimeout: 50 * time.Millisecond}, discardLogger())

	start := time.Now()
	_, err := svc.Issue(ctx, testAdminEmail, models.OTPPurposeLogin)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Less(t, elapsed, 2*time.Second)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)

	_, ok := store.get(testAdminEmail)
	require.True(t, ok, "the code is stored before delivery is attempted")

	require.Equal(t, 1, mailer.Count())
	assert.NoError(t, svc.Verify(ctx, testAdminEmail, mailer.LastCode(), models.OTPPurposeLogin))
}
