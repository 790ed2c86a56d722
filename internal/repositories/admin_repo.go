package repositories

import (
	"context"
	"strings"
	"time"

	"github.com/BradenHooton/campusgate/internal/database"
	"github.com/BradenHooton/campusgate/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

const adminColumns = `id, email, password_hash, scopes, totp_secret_encrypted, totp_nonce, password_changed_at, created_at, updated_at`

type AdminRepository struct {
	pool *pgxpool.Pool
}

func NewAdminRepository(db *database.DB) *AdminRepository {
	return &AdminRepository{pool: db.Pool}
}

// rowScanner covers pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAdminRow(scanner rowScanner) (*models.AdminAccount, error) {
	var admin models.AdminAccount
	var passwordChangedAt *time.Time

	err := scanner.Scan(
		&admin.ID, &admin.Email, &admin.PasswordHash,
		pq.Array(&admin.Scopes),
		&admin.TOTPSecretEncrypted, &admin.TOTPNonce,
		&passwordChangedAt,
		&admin.CreatedAt, &admin.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	admin.PasswordChangedAt = passwordChangedAt
	return &admin, nil
}

func (r *AdminRepository) GetByEmail(ctx context.Context, email string) (*models.AdminAccount, error) {
	query := `SELECT ` + adminColumns + ` FROM admin_accounts WHERE email = $1`
	return scanAdminRow(r.pool.QueryRow(ctx, query, strings.ToLower(email)))
}

func (r *AdminRepository) GetByID(ctx context.Context, id string) (*models.AdminAccount, error) {
	query := `SELECT ` + adminColumns + ` FROM admin_accounts WHERE id = $1`
	return scanAdminRow(r.pool.QueryRow(ctx, query, id))
}

// Create inserts a new administrator. Email is stored lower-cased.
func (r *AdminRepository) Create(ctx context.Context, admin *models.AdminAccount) (*models.AdminAccount, error) {
	now := time.Now().UTC()
	if admin.ID == "" {
		admin.ID = uuid.New().String()
	}
	if len(admin.Scopes) == 0 {
		admin.Scopes = models.DefaultAdminScopes
	}

	query := `
		INSERT INTO admin_accounts (id, email, password_hash, scopes, password_changed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING ` + adminColumns

	return scanAdminRow(r.pool.QueryRow(ctx, query,
		admin.ID, strings.ToLower(admin.Email), admin.PasswordHash,
		pq.Array(admin.Scopes), now, now,
	))
}

func (r *AdminRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	query := `
		UPDATE admin_accounts SET password_hash = $1, password_changed_at = $2, updated_at = $2
		WHERE id = $3
	`

	result, err := r.pool.Exec(ctx, query, passwordHash, time.Now().UTC(), id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// UpdateTOTP stores an encrypted authenticator secret. Nil values disable it.
func (r *AdminRepository) UpdateTOTP(ctx context.Context, id string, secretEncrypted, nonce []byte) error {
	query := `
		UPDATE admin_accounts SET totp_secret_encrypted = $1, totp_nonce = $2, updated_at = $3
		WHERE id = $4
	`

	result, err := r.pool.Exec(ctx, query, secretEncrypted, nonce, time.Now().UTC(), id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
