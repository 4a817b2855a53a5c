package session

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gatekeeper-iam/gatekeeper/internal/principals"
)

// IssuerConfig carries the process-wide signing configuration. It is loaded
// once at startup and read-only afterwards.
type IssuerConfig struct {
	Secret    []byte
	Issuer    string
	Audience  string
	AccessTTL time.Duration
}

// AccessClaims is the payload embedded in access tokens. Roles reflect the
// principal's role set at issuance time; the store stays authoritative for
// fine-grained permission checks.
type AccessClaims struct {
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// Issuer mints and verifies access tokens. It has no side effects; the
// Session Service persists refresh tokens through the Ledger.
type Issuer struct {
	cfg IssuerConfig
}

// NewIssuer validates the configuration and constructs an Issuer.
func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("session: signing secret required")
	}
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("session: access ttl must be positive")
	}
	return &Issuer{cfg: cfg}, nil
}

// AccessTTL exposes the configured access token lifetime.
func (i *Issuer) AccessTTL() time.Duration {
	return i.cfg.AccessTTL
}

// IssueTokenPair mints a signed access token for the principal plus a fresh
// opaque refresh token.
func (i *Issuer) IssueTokenPair(p *principals.Principal, roleNames []string) (TokenPair, error) {
	now := time.Now()
	expiresAt := now.Add(i.cfg.AccessTTL)
	if roleNames == nil {
		roleNames = []string{}
	}

	claims := AccessClaims{
		Name:  p.DisplayName(),
		Email: p.Email,
		Roles: roleNames,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			Issuer:    i.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	if i.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{i.cfg.Audience}
	}

	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.cfg.Secret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	refresh, err := NewRefreshToken()
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:     access,
		AccessExpiresAt: expiresAt,
		RefreshToken:    refresh,
	}, nil
}

// ParseAccess verifies signature, expiry, issuer and audience of an access
// token and returns its claims.
func (i *Issuer) ParseAccess(tokenStr string) (*AccessClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if i.cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(i.cfg.Issuer))
	}
	if i.cfg.Audience != "" {
		options = append(options, jwt.WithAudience(i.cfg.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &AccessClaims{}, func(t *jwt.Token) (interface{}, error) {
		return i.cfg.Secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// NewRefreshToken generates an opaque refresh token with 256 bits of
// entropy. It carries no claims; it is a pure lookup key into the Ledger.
func NewRefreshToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
