package principals

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatekeeper-iam/gatekeeper/internal/platform/db"
	"github.com/gatekeeper-iam/gatekeeper/internal/shared"
)

// PGRepository provides PostgreSQL backed persistence.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const principalColumns = `id, email, first_name, last_name, password_hash, COALESCE(phone, ''), is_deleted, created_at, updated_at`

// Create inserts a new principal. A duplicate email maps to shared.ErrDuplicate.
func (r *PGRepository) Create(ctx context.Context, p *Principal) error {
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	_, err := r.pool.Exec(ctx,
		`INSERT INTO principals (id, email, first_name, last_name, password_hash, phone, is_deleted, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), false, $7, $8)`,
		p.ID, p.Email, p.FirstName, p.LastName, p.PasswordHash, p.Phone, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return shared.ErrDuplicate
		}
		return err
	}
	return nil
}

// GetByEmail fetches a principal by normalized email.
func (r *PGRepository) GetByEmail(ctx context.Context, email string) (*Principal, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE email = $1`, email)
	return scanPrincipal(row)
}

// GetByID fetches a principal by id.
func (r *PGRepository) GetByID(ctx context.Context, id string) (*Principal, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE id = $1`, id)
	return scanPrincipal(row)
}

// List returns all principals ordered by creation time.
func (r *PGRepository) List(ctx context.Context) ([]Principal, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+principalColumns+` FROM principals ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Principal
	for rows.Next() {
		var p Principal
		if err := rows.Scan(&p.ID, &p.Email, &p.FirstName, &p.LastName, &p.PasswordHash, &p.Phone, &p.IsDeleted, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdatePassword replaces the stored secret hash.
func (r *PGRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE principals SET password_hash = $2, updated_at = now() WHERE id = $1`,
		id, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SoftDelete flags a principal as deleted and discards any pending reset
// credential in the same transaction. The row is kept.
func (r *PGRepository) SoftDelete(ctx context.Context, id string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE principals SET is_deleted = true, updated_at = now() WHERE id = $1 AND NOT is_deleted`,
			id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		_, err = tx.Exec(ctx,
			`DELETE FROM principal_reset_tokens WHERE principal_id = $1`, id)
		return err
	})
}

// SaveResetToken stores the hash of a reset credential, replacing any prior
// one for the principal.
func (r *PGRepository) SaveResetToken(ctx context.Context, principalID, tokenHash string, expiresAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO principal_reset_tokens (principal_id, token_hash, expires_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (principal_id) DO UPDATE SET token_hash = EXCLUDED.token_hash, expires_at = EXCLUDED.expires_at`,
		principalID, tokenHash, expiresAt.UTC())
	return err
}

// GetResetToken returns the stored reset credential hash and expiry.
func (r *PGRepository) GetResetToken(ctx context.Context, principalID string) (string, time.Time, error) {
	var hash string
	var expiresAt time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT token_hash, expires_at FROM principal_reset_tokens WHERE principal_id = $1`,
		principalID).Scan(&hash, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", time.Time{}, shared.ErrNotFound
		}
		return "", time.Time{}, err
	}
	return hash, expiresAt, nil
}

// DeleteResetToken removes the reset credential for a principal.
func (r *PGRepository) DeleteResetToken(ctx context.Context, principalID string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM principal_reset_tokens WHERE principal_id = $1`, principalID)
	return err
}

func scanPrincipal(row pgx.Row) (*Principal, error) {
	var p Principal
	err := row.Scan(&p.ID, &p.Email, &p.FirstName, &p.LastName, &p.PasswordHash, &p.Phone, &p.IsDeleted, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ Repository = (*PGRepository)(nil)
