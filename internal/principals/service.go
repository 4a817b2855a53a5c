package principals

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/gatekeeper-iam/gatekeeper/internal/notify"
	"github.com/gatekeeper-iam/gatekeeper/internal/shared"
)

// Service handles principal business logic, including the reset-credential
// primitive used by the session password flows.
type Service struct {
	repo     Repository
	notifier notify.Notifier
	logger   *slog.Logger
	resetTTL time.Duration
}

// NewService builds a Service instance.
func NewService(repo Repository, notifier notify.Notifier, logger *slog.Logger, resetTTL time.Duration) *Service {
	if resetTTL <= 0 {
		resetTTL = 24 * time.Hour
	}
	return &Service{repo: repo, notifier: notifier, logger: logger, resetTTL: resetTTL}
}

// RegisterRequest carries the fields needed to create a principal.
type RegisterRequest struct {
	Email     string
	FirstName string
	LastName  string
	Password  string
	Phone     string
}

// Register creates a principal and dispatches a welcome email. The email
// dispatch is best effort; failures are logged, never surfaced.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Principal, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	p := &Principal{
		ID:           uuid.NewString(),
		Email:        NormalizeEmail(req.Email),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PasswordHash: string(hash),
		Phone:        req.Phone,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	if s.notifier != nil {
		msg := notify.Message{
			To:      p.Email,
			Subject: "Welcome",
			Body:    fmt.Sprintf("<p>Dear %s,</p><p>Your account has been created.</p>", p.DisplayName()),
		}
		if err := s.notifier.Send(ctx, msg); err != nil {
			s.logger.Warn("welcome mail dispatch", slog.String("email", p.Email), slog.Any("error", err))
		}
	}
	return p, nil
}

// GetByEmail returns the principal for a normalized email.
func (s *Service) GetByEmail(ctx context.Context, email string) (*Principal, error) {
	return s.repo.GetByEmail(ctx, NormalizeEmail(email))
}

// GetByID returns a principal by id.
func (s *Service) GetByID(ctx context.Context, id string) (*Principal, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns all principals.
func (s *Service) List(ctx context.Context) ([]Principal, error) {
	return s.repo.List(ctx)
}

// SoftDelete marks a principal deleted.
func (s *Service) SoftDelete(ctx context.Context, id string) error {
	return s.repo.SoftDelete(ctx, id)
}

// VerifyPassword checks a plaintext secret against the stored hash.
func (s *Service) VerifyPassword(p *Principal, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(password)) == nil
}

// SetPassword hashes and stores a new secret for the principal.
func (s *Service) SetPassword(ctx context.Context, id, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.repo.UpdatePassword(ctx, id, string(hash))
}

// CreateResetToken mints a single-use reset credential for the principal.
// Only a digest is persisted; the plaintext goes out through the notifier.
func (s *Service) CreateResetToken(ctx context.Context, principalID string) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)
	if err := s.repo.SaveResetToken(ctx, principalID, hashResetToken(token), time.Now().Add(s.resetTTL)); err != nil {
		return "", err
	}
	return token, nil
}

// ConsumeResetToken validates and invalidates a reset credential. A missing,
// mismatched or expired credential returns shared.ErrResetCredentialInvalid.
func (s *Service) ConsumeResetToken(ctx context.Context, principalID, token string) error {
	storedHash, expiresAt, err := s.repo.GetResetToken(ctx, principalID)
	if err != nil {
		if err == shared.ErrNotFound {
			return shared.ErrResetCredentialInvalid
		}
		return err
	}
	if time.Now().After(expiresAt) {
		return shared.ErrResetCredentialInvalid
	}
	if subtle.ConstantTimeCompare([]byte(storedHash), []byte(hashResetToken(token))) != 1 {
		return shared.ErrResetCredentialInvalid
	}
	return s.repo.DeleteResetToken(ctx, principalID)
}

func hashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
