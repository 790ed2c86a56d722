package repositories

import (
	"context"
	"strings"
	"time"

	"github.com/BradenHooton/campusgate/internal/database"
	"github.com/BradenHooton/campusgate/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OTPRepository stores the single live one-time code per email in PostgreSQL
type OTPRepository struct {
	pool *pgxpool.Pool
}

func NewOTPRepository(db *database.DB) *OTPRepository {
	return &OTPRepository{pool: db.Pool}
}

// Upsert replaces whatever code the email had with otp
func (r *OTPRepository) Upsert(ctx context.Context, otp *models.OTP) error {
	query := `
		INSERT INTO otp_codes (email, code_hash, purpose, verified, attempts, created_at)
		VALUES ($1, $2, $3, FALSE, 0, $4)
		ON CONFLICT (email) DO UPDATE SET
			code_hash = EXCLUDED.code_hash,
			purpose = EXCLUDED.purpose,
			verified = FALSE,
			attempts = 0,
			created_at = EXCLUDED.created_at
	`

	_, err := r.pool.Exec(ctx, query, strings.ToLower(otp.Email), otp.CodeHash, string(otp.Purpose), otp.CreatedAt)
	return database.MapPostgresError(err)
}

// GetByEmail returns the current code, or models.ErrNotFound
func (r *OTPRepository) GetByEmail(ctx context.Context, email string) (*models.OTP, error) {
	query := `
		SELECT email, code_hash, purpose, verified, attempts, created_at
		FROM otp_codes WHERE email = $1
	`

	var otp models.OTP
	var purpose string
	err := r.pool.QueryRow(ctx, query, strings.ToLower(email)).Scan(
		&otp.Email, &otp.CodeHash, &purpose, &otp.Verified, &otp.Attempts, &otp.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if otp.Purpose, err = models.ParseOTPPurpose(purpose); err != nil {
		return nil, err
	}
	return &otp, nil
}

// Consume marks otp verified only if it is still the live, unverified record.
// A concurrent replacement or a second consumer gets models.ErrNotFound.
func (r *OTPRepository) Consume(ctx context.Context, otp *models.OTP) error {
	query := `
		UPDATE otp_codes SET verified = TRUE
		WHERE email = $1 AND code_hash = $2 AND created_at = $3 AND verified = FALSE
	`

	result, err := r.pool.Exec(ctx, query, strings.ToLower(otp.Email), otp.CodeHash, otp.CreatedAt)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// RecordMismatch counts a wrong guess against otp and burns it once the count
// reaches maxAttempts. created_at is left alone so the expiry does not move.
// Returns the new count, or models.ErrNotFound when otp is no longer live.
func (r *OTPRepository) RecordMismatch(ctx context.Context, otp *models.OTP, maxAttempts int) (int, error) {
	query := `
		UPDATE otp_codes SET
			attempts = attempts + 1,
			verified = (attempts + 1 >= $4)
		WHERE email = $1 AND code_hash = $2 AND created_at = $3 AND verified = FALSE
		RETURNING attempts
	`

	var attempts int
	err := r.pool.QueryRow(ctx, query, strings.ToLower(otp.Email), otp.CodeHash, otp.CreatedAt, maxAttempts).Scan(&attempts)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return attempts, nil
}

// DeleteExpired removes verified codes and codes issued before cutoff
func (r *OTPRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM otp_codes WHERE verified OR created_at < $1`

	result, err := r.pool.Exec(ctx, query, before)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
