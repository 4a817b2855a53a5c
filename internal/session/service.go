package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/gatekeeper-iam/gatekeeper/internal/notify"
	"github.com/gatekeeper-iam/gatekeeper/internal/principals"
	"github.com/gatekeeper-iam/gatekeeper/internal/shared"
)

// PrincipalDirectory is the slice of the principal service the session
// flows need.
type PrincipalDirectory interface {
	GetByEmail(ctx context.Context, email string) (*principals.Principal, error)
	GetByID(ctx context.Context, id string) (*principals.Principal, error)
	VerifyPassword(p *principals.Principal, password string) bool
	SetPassword(ctx context.Context, id, password string) error
	CreateResetToken(ctx context.Context, principalID string) (string, error)
	ConsumeResetToken(ctx context.Context, principalID, token string) error
}

// RoleDirectory resolves the current role names held by a principal.
type RoleDirectory interface {
	RoleNamesForPrincipal(ctx context.Context, principalID string) ([]string, error)
}

// Service orchestrates login, refresh, logout and the password flows.
type Service struct {
	principals    PrincipalDirectory
	roles         RoleDirectory
	issuer        *Issuer
	ledger        *Ledger
	notifier      notify.Notifier
	logger        *slog.Logger
	resetLinkBase string
}

// NewService constructs a Service.
func NewService(
	principalDir PrincipalDirectory,
	roleDir RoleDirectory,
	issuer *Issuer,
	ledger *Ledger,
	notifier notify.Notifier,
	logger *slog.Logger,
	resetLinkBase string,
) *Service {
	return &Service{
		principals:    principalDir,
		roles:         roleDir,
		issuer:        issuer,
		ledger:        ledger,
		notifier:      notifier,
		logger:        logger,
		resetLinkBase: resetLinkBase,
	}
}

// Login authenticates the credentials and issues a token pair. Unknown
// email, deleted principal and wrong password all collapse into
// shared.ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, error) {
	p, err := s.principals.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return TokenPair{}, shared.ErrInvalidCredentials
		}
		return TokenPair{}, fmt.Errorf("login lookup: %w", err)
	}
	if p.IsDeleted || !s.principals.VerifyPassword(p, password) {
		return TokenPair{}, shared.ErrInvalidCredentials
	}
	return s.issueAndStore(ctx, p)
}

// Refresh validates and rotates a refresh token, re-resolving the
// principal's current roles so role changes take effect mid-session.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	principalID, err := s.ledger.FindPrincipalByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return TokenPair{}, shared.ErrInvalidToken
		}
		return TokenPair{}, err
	}
	p, err := s.principals.GetByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return TokenPair{}, shared.ErrInvalidToken
		}
		return TokenPair{}, fmt.Errorf("refresh lookup: %w", err)
	}
	if p.IsDeleted {
		return TokenPair{}, shared.ErrInvalidToken
	}
	ok, err := s.ledger.Validate(ctx, principalID, refreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	if !ok {
		return TokenPair{}, shared.ErrInvalidToken
	}
	return s.issueAndStore(ctx, p)
}

// Logout invalidates the presented refresh token. Unknown tokens are a
// no-op; logout always succeeds from the caller's perspective.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	principalID, err := s.ledger.FindPrincipalByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		return err
	}
	return s.ledger.Revoke(ctx, principalID)
}

// InitiatePasswordReset generates a reset credential and mails it out. It
// reports success regardless of whether the email exists, to prevent
// account enumeration; notifier failures are logged, never surfaced.
func (s *Service) InitiatePasswordReset(ctx context.Context, email string) error {
	p, err := s.principals.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("reset lookup: %w", err)
	}
	if p.IsDeleted {
		return nil
	}
	token, err := s.principals.CreateResetToken(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("create reset credential: %w", err)
	}
	link := fmt.Sprintf("%s?email=%s&token=%s", s.resetLinkBase, url.QueryEscape(p.Email), url.QueryEscape(token))
	msg := notify.Message{
		To:      p.Email,
		Subject: "Password Reset Request",
		Body: fmt.Sprintf(
			"<p>Dear %s,</p><p>We received a request to reset your password. Please click the link below:</p><p><a href='%s'>Reset Password</a></p><p>This link expires in 24 hours. If you did not request a reset, ignore this email.</p>",
			p.DisplayName(), link),
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("reset mail dispatch", slog.String("email", p.Email), slog.Any("error", err))
	}
	return nil
}

// CompletePasswordReset validates the reset credential and replaces the
// secret. A reused or expired credential fails with
// shared.ErrResetCredentialInvalid, distinct from shared.ErrNotFound.
func (s *Service) CompletePasswordReset(ctx context.Context, email, resetToken, newPassword string) error {
	p, err := s.principals.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err := s.principals.ConsumeResetToken(ctx, p.ID, resetToken); err != nil {
		return err
	}
	if err := s.principals.SetPassword(ctx, p.ID, newPassword); err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	// A password change orphans the session; force a fresh login.
	if err := s.ledger.Revoke(ctx, p.ID); err != nil {
		s.logger.Warn("revoke after reset", slog.String("principal", p.ID), slog.Any("error", err))
	}
	return nil
}

// ChangePassword verifies the current secret before replacing it. A wrong
// current secret fails with shared.ErrPasswordMismatch, distinct from
// shared.ErrNotFound.
func (s *Service) ChangePassword(ctx context.Context, email, currentPassword, newPassword string) error {
	p, err := s.principals.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !s.principals.VerifyPassword(p, currentPassword) {
		return shared.ErrPasswordMismatch
	}
	if err := s.principals.SetPassword(ctx, p.ID, newPassword); err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	return nil
}

func (s *Service) issueAndStore(ctx context.Context, p *principals.Principal) (TokenPair, error) {
	roleNames, err := s.roles.RoleNamesForPrincipal(ctx, p.ID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("resolve roles: %w", err)
	}
	pair, err := s.issuer.IssueTokenPair(p, roleNames)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.ledger.Save(ctx, p.ID, pair.RefreshToken); err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}
