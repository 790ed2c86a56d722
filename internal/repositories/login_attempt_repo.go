package repositories

import (
	"context"
	"time"

	"github.com/BradenHooton/campusgate/internal/database"
	"github.com/BradenHooton/campusgate/internal/models"
)

// LoginAttemptRepository keeps per-address failure counters in PostgreSQL
type LoginAttemptRepository struct {
	db *database.DB
}

// NewLoginAttemptRepository creates a new LoginAttemptRepository
func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

func scanLoginAttempt(scanner rowScanner) (*models.LoginAttempt, error) {
	var attempt models.LoginAttempt
	err := scanner.Scan(&attempt.IPAddress, &attempt.AttemptCount, &attempt.LockedUntil, &attempt.UpdatedAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &attempt, nil
}

// Get returns the counter for an address, or models.ErrNotFound
func (r *LoginAttemptRepository) Get(ctx context.Context, ipAddress string) (*models.LoginAttempt, error) {
	query := `
		SELECT ip_address, attempt_count, locked_until, updated_at
		FROM login_attempts WHERE ip_address = $1
	`
	return scanLoginAttempt(r.db.Pool.QueryRow(ctx, query, ipAddress))
}

// IncrementFailure adds one failure in a single statement. When the new count
// reaches threshold and no lock is in force, locked_until is set to lockUntil.
func (r *LoginAttemptRepository) IncrementFailure(ctx context.Context, ipAddress string, threshold int, lockUntil, now time.Time) (*models.LoginAttempt, error) {
	query := `
		INSERT INTO login_attempts AS la (ip_address, attempt_count, locked_until, updated_at)
		VALUES ($1, 1, CASE WHEN 1 >= $2::int THEN $3::timestamptz END, $4)
		ON CONFLICT (ip_address) DO UPDATE SET
			attempt_count = la.attempt_count + 1,
			locked_until = CASE
				WHEN la.attempt_count + 1 >= $2::int AND (la.locked_until IS NULL OR la.locked_until <= $4)
					THEN $3::timestamptz
				ELSE la.locked_until
			END,
			updated_at = $4
		RETURNING ip_address, attempt_count, locked_until, updated_at
	`
	return scanLoginAttempt(r.db.Pool.QueryRow(ctx, query, ipAddress, threshold, lockUntil, now))
}

// Reset zeroes the counter and clears any lock
func (r *LoginAttemptRepository) Reset(ctx context.Context, ipAddress string) error {
	query := `
		UPDATE login_attempts SET attempt_count = 0, locked_until = NULL, updated_at = $2
		WHERE ip_address = $1
	`
	_, err := r.db.Pool.Exec(ctx, query, ipAddress, time.Now().UTC())
	return database.MapPostgresError(err)
}

// ClearElapsedLock resets the record only if its lock has run out by now
func (r *LoginAttemptRepository) ClearElapsedLock(ctx context.Context, ipAddress string, now time.Time) error {
	query := `
		UPDATE login_attempts SET attempt_count = 0, locked_until = NULL, updated_at = $2
		WHERE ip_address = $1 AND locked_until IS NOT NULL AND locked_until <= $2
	`
	_, err := r.db.Pool.Exec(ctx, query, ipAddress, now)
	return database.MapPostgresError(err)
}

// DeleteStale removes counters untouched since before whose lock is not in force
func (r *LoginAttemptRepository) DeleteStale(ctx context.Context, before, now time.Time) (int64, error) {
	query := `
		DELETE FROM login_attempts
		WHERE updated_at < $1 AND (locked_until IS NULL OR locked_until <= $2)
	`
	result, err := r.db.Pool.Exec(ctx, query, before, now)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
