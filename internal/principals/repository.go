package principals

import (
	"context"
	"time"
)

// Repository defines persistence operations for principals.
type Repository interface {
	Create(ctx context.Context, p *Principal) error
	GetByEmail(ctx context.Context, email string) (*Principal, error)
	GetByID(ctx context.Context, id string) (*Principal, error)
	List(ctx context.Context) ([]Principal, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	SoftDelete(ctx context.Context, id string) error

	SaveResetToken(ctx context.Context, principalID, tokenHash string, expiresAt time.Time) error
	GetResetToken(ctx context.Context, principalID string) (tokenHash string, expiresAt time.Time, err error)
	DeleteResetToken(ctx context.Context, principalID string) error
}
