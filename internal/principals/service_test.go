package principals

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/gatekeeper-iam/gatekeeper/internal/notify"
	"github.com/gatekeeper-iam/gatekeeper/internal/shared"
	_ "github.com/gatekeeper-iam/gatekeeper/testing"
)

type resetRecord struct {
	hash      string
	expiresAt time.Time
}

type memoryRepo struct {
	byID    map[string]*Principal
	byEmail map[string]*Principal
	resets  map[string]resetRecord
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		byID:    make(map[string]*Principal),
		byEmail: make(map[string]*Principal),
		resets:  make(map[string]resetRecord),
	}
}

func (r *memoryRepo) Create(ctx context.Context, p *Principal) error {
	if _, ok := r.byEmail[p.Email]; ok {
		return shared.ErrDuplicate
	}
	cp := *p
	r.byID[p.ID] = &cp
	r.byEmail[p.Email] = &cp
	return nil
}

func (r *memoryRepo) GetByEmail(ctx context.Context, email string) (*Principal, error) {
	p, ok := r.byEmail[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memoryRepo) GetByID(ctx context.Context, id string) (*Principal, error) {
	p, ok := r.byID[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memoryRepo) List(ctx context.Context) ([]Principal, error) {
	out := make([]Principal, 0, len(r.byID))
	for _, p := range r.byID {
		out = append(out, *p)
	}
	return out, nil
}

func (r *memoryRepo) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	p, ok := r.byID[id]
	if !ok {
		return shared.ErrNotFound
	}
	p.PasswordHash = passwordHash
	return nil
}

func (r *memoryRepo) SoftDelete(ctx context.Context, id string) error {
	p, ok := r.byID[id]
	if !ok {
		return shared.ErrNotFound
	}
	p.IsDeleted = true
	return nil
}

func (r *memoryRepo) SaveResetToken(ctx context.Context, principalID, tokenHash string, expiresAt time.Time) error {
	r.resets[principalID] = resetRecord{hash: tokenHash, expiresAt: expiresAt}
	return nil
}

func (r *memoryRepo) GetResetToken(ctx context.Context, principalID string) (string, time.Time, error) {
	rec, ok := r.resets[principalID]
	if !ok {
		return "", time.Time{}, shared.ErrNotFound
	}
	return rec.hash, rec.expiresAt, nil
}

func (r *memoryRepo) DeleteResetToken(ctx context.Context, principalID string) error {
	delete(r.resets, principalID)
	return nil
}

type recordingNotifier struct {
	sent []notify.Message
}

func (n *recordingNotifier) Send(ctx context.Context, msg notify.Message) error {
	n.sent = append(n.sent, msg)
	return nil
}

func newTestService(t *testing.T) (*Service, *memoryRepo, *recordingNotifier) {
	t.Helper()
	repo := newMemoryRepo()
	notifier := &recordingNotifier{}
	svc := NewService(repo, notifier, slog.Default(), 24*time.Hour)
	return svc, repo, notifier
}

func TestRegisterNormalizesEmailAndHashesPassword(t *testing.T) {
	svc, _, notifier := newTestService(t)

	p, err := svc.Register(context.Background(), RegisterRequest{
		Email:     "  Jane.Doe@Example.COM ",
		FirstName: "Jane",
		LastName:  "Doe",
		Password:  "secret123",
	})
	require.NoError(t, err)
	require.Equal(t, "jane.doe@example.com", p.Email)
	require.NotEqual(t, "secret123", p.PasswordHash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte("secret123")))

	require.Len(t, notifier.sent, 1)
	require.Equal(t, "jane.doe@example.com", notifier.sent[0].To)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterRequest{Email: "jane@example.com", Password: "secret123"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterRequest{Email: "JANE@example.com", Password: "secret123"})
	require.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestGetByEmailNormalizes(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterRequest{Email: "jane@example.com", Password: "secret123"})
	require.NoError(t, err)

	p, err := svc.GetByEmail(ctx, " JANE@EXAMPLE.COM ")
	require.NoError(t, err)
	require.Equal(t, "jane@example.com", p.Email)
}

func TestVerifyPassword(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	p, err := svc.Register(ctx, RegisterRequest{Email: "jane@example.com", Password: "secret123"})
	require.NoError(t, err)

	require.True(t, svc.VerifyPassword(p, "secret123"))
	require.False(t, svc.VerifyPassword(p, "wrong"))
}

func TestResetTokenLifecycle(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	p, err := svc.Register(ctx, RegisterRequest{Email: "jane@example.com", Password: "secret123"})
	require.NoError(t, err)

	token, err := svc.CreateResetToken(ctx, p.ID)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	// Only the digest is stored.
	rec := repo.resets[p.ID]
	require.NotEqual(t, token, rec.hash)

	require.NoError(t, svc.ConsumeResetToken(ctx, p.ID, token))

	// Single use.
	err = svc.ConsumeResetToken(ctx, p.ID, token)
	require.ErrorIs(t, err, shared.ErrResetCredentialInvalid)
}

func TestResetTokenMismatch(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	p, err := svc.Register(ctx, RegisterRequest{Email: "jane@example.com", Password: "secret123"})
	require.NoError(t, err)

	_, err = svc.CreateResetToken(ctx, p.ID)
	require.NoError(t, err)

	err = svc.ConsumeResetToken(ctx, p.ID, "bogus")
	require.ErrorIs(t, err, shared.ErrResetCredentialInvalid)
}

func TestResetTokenExpiry(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, &recordingNotifier{}, slog.Default(), time.Millisecond)
	ctx := context.Background()

	p, err := svc.Register(ctx, RegisterRequest{Email: "jane@example.com", Password: "secret123"})
	require.NoError(t, err)

	token, err := svc.CreateResetToken(ctx, p.ID)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	err = svc.ConsumeResetToken(ctx, p.ID, token)
	require.ErrorIs(t, err, shared.ErrResetCredentialInvalid)
}

func TestNewResetTokenReplacesOld(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	p, err := svc.Register(ctx, RegisterRequest{Email: "jane@example.com", Password: "secret123"})
	require.NoError(t, err)

	first, err := svc.CreateResetToken(ctx, p.ID)
	require.NoError(t, err)
	second, err := svc.CreateResetToken(ctx, p.ID)
	require.NoError(t, err)

	err = svc.ConsumeResetToken(ctx, p.ID, first)
	require.ErrorIs(t, err, shared.ErrResetCredentialInvalid)
	require.NoError(t, svc.ConsumeResetToken(ctx, p.ID, second))
}

func TestSoftDelete(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	p, err := svc.Register(ctx, RegisterRequest{Email: "jane@example.com", Password: "secret123"})
	require.NoError(t, err)

	require.NoError(t, svc.SoftDelete(ctx, p.ID))

	got, err := svc.GetByID(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, got.IsDeleted)
}
