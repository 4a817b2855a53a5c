package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gatekeeper-iam/gatekeeper/internal/shared"
)

const (
	principalKeyPrefix = "refresh:principal:"
	tokenKeyPrefix     = "refresh:token:"
)

// saveScript enforces the at-most-one-live-refresh-token-per-principal
// invariant. Redis executes scripts atomically, so two concurrent saves for
// the same principal cannot both survive: the loser's token is overwritten
// and its reverse index removed.
const saveScript = `
local prev = redis.call('GET', KEYS[1])
if prev then
  redis.call('DEL', ARGV[3] .. prev)
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
redis.call('SET', ARGV[3] .. ARGV[1], ARGV[4], 'PX', ARGV[2])
return 1
`

const revokeScript = `
local cur = redis.call('GET', KEYS[1])
if cur then
  redis.call('DEL', ARGV[1] .. cur)
  redis.call('DEL', KEYS[1])
  return 1
end
return 0
`

var (
	saveLua   = redis.NewScript(saveScript)
	revokeLua = redis.NewScript(revokeScript)
)

// Ledger persists at most one live refresh token per principal. Expiry is
// delegated to Redis key TTLs and checked lazily at validation time; there
// is no background sweep.
type Ledger struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLedger constructs a Ledger with the configured refresh lifetime.
func NewLedger(client *redis.Client, ttl time.Duration) *Ledger {
	return &Ledger{client: client, ttl: ttl}
}

// Save stores the refresh token for a principal, removing any prior one in
// the same atomic step.
func (l *Ledger) Save(ctx context.Context, principalID, token string) error {
	keys := []string{principalKeyPrefix + principalID}
	args := []interface{}{token, l.ttl.Milliseconds(), tokenKeyPrefix, principalID}
	if err := saveLua.Run(ctx, l.client, keys, args...).Err(); err != nil {
		return fmt.Errorf("ledger save: %w", err)
	}
	return nil
}

// Validate reports whether the presented token is the live token for the
// principal. Rotated, revoked and expired tokens all fail.
func (l *Ledger) Validate(ctx context.Context, principalID, token string) (bool, error) {
	stored, err := l.client.Get(ctx, principalKeyPrefix+principalID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("ledger validate: %w", err)
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(token)) == 1, nil
}

// FindPrincipalByToken reverse-looks-up the owning principal. Used by the
// refresh endpoint, which receives only the token.
func (l *Ledger) FindPrincipalByToken(ctx context.Context, token string) (string, error) {
	id, err := l.client.Get(ctx, tokenKeyPrefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", shared.ErrNotFound
		}
		return "", fmt.Errorf("ledger reverse lookup: %w", err)
	}
	return id, nil
}

// Revoke removes the live token for a principal, if any.
func (l *Ledger) Revoke(ctx context.Context, principalID string) error {
	keys := []string{principalKeyPrefix + principalID}
	if err := revokeLua.Run(ctx, l.client, keys, tokenKeyPrefix).Err(); err != nil {
		return fmt.Errorf("ledger revoke: %w", err)
	}
	return nil
}
