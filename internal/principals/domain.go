package principals

import (
	"strings"
	"time"
)

// Principal represents an identity record. Principals are never hard
// deleted; IsDeleted marks them unusable while keeping the row for audit.
type Principal struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	Phone        string
	IsDeleted    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DisplayName returns the name embedded in access tokens.
func (p *Principal) DisplayName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// NormalizeEmail canonicalizes an email for lookup and uniqueness.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
