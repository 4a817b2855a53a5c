package rbac

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gatekeeper-iam/gatekeeper/internal/principals"
	"github.com/gatekeeper-iam/gatekeeper/internal/shared"
)

type memoryRepo struct {
	roles          map[int64]Role
	perms          map[int64]Permission
	rolePerms      map[int64]map[int64]struct{}
	principalRoles map[string]map[int64]struct{}
	nextRoleID     int64
	nextPermID     int64
	writes         int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		roles:          make(map[int64]Role),
		perms:          make(map[int64]Permission),
		rolePerms:      make(map[int64]map[int64]struct{}),
		principalRoles: make(map[string]map[int64]struct{}),
	}
}

func (r *memoryRepo) ListRoles(ctx context.Context) ([]Role, error) {
	out := make([]Role, 0, len(r.roles))
	for _, role := range r.roles {
		out = append(out, role)
	}
	return out, nil
}

func (r *memoryRepo) SearchRoles(ctx context.Context, query string) ([]Role, error) {
	var out []Role
	for _, role := range r.roles {
		if containsFold(role.Name, query) {
			out = append(out, role)
		}
	}
	return out, nil
}

func (r *memoryRepo) GetRole(ctx context.Context, id int64) (Role, error) {
	role, ok := r.roles[id]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	return role, nil
}

func (r *memoryRepo) RolesByIDs(ctx context.Context, ids []int64) ([]Role, error) {
	var out []Role
	for _, id := range ids {
		if role, ok := r.roles[id]; ok {
			out = append(out, role)
		}
	}
	return out, nil
}

func (r *memoryRepo) CreateRole(ctx context.Context, name string) (Role, error) {
	for _, role := range r.roles {
		if role.Name == name {
			return Role{}, shared.ErrDuplicate
		}
	}
	r.nextRoleID++
	role := Role{ID: r.nextRoleID, Name: name, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	r.roles[role.ID] = role
	r.writes++
	return role, nil
}

func (r *memoryRepo) UpdateRole(ctx context.Context, id int64, name string) (Role, error) {
	role, ok := r.roles[id]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	for _, other := range r.roles {
		if other.ID != id && other.Name == name {
			return Role{}, shared.ErrDuplicate
		}
	}
	role.Name = name
	role.UpdatedAt = time.Now()
	r.roles[id] = role
	r.writes++
	return role, nil
}

func (r *memoryRepo) DeleteRole(ctx context.Context, id int64) error {
	if _, ok := r.roles[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.roles, id)
	delete(r.rolePerms, id)
	for _, held := range r.principalRoles {
		delete(held, id)
	}
	r.writes++
	return nil
}

func (r *memoryRepo) ListPermissions(ctx context.Context) ([]Permission, error) {
	out := make([]Permission, 0, len(r.perms))
	for _, p := range r.perms {
		out = append(out, p)
	}
	return out, nil
}

func (r *memoryRepo) GetPermission(ctx context.Context, id int64) (Permission, error) {
	p, ok := r.perms[id]
	if !ok {
		return Permission{}, shared.ErrNotFound
	}
	return p, nil
}

func (r *memoryRepo) PermissionsByIDs(ctx context.Context, ids []int64) ([]Permission, error) {
	var out []Permission
	for _, id := range ids {
		if p, ok := r.perms[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryRepo) CreatePermission(ctx context.Context, name, description string) (Permission, error) {
	r.nextPermID++
	p := Permission{ID: r.nextPermID, Name: name, Description: description}
	r.perms[p.ID] = p
	r.writes++
	return p, nil
}

func (r *memoryRepo) UpdatePermission(ctx context.Context, id int64, name, description string) (Permission, error) {
	p, ok := r.perms[id]
	if !ok {
		return Permission{}, shared.ErrNotFound
	}
	p.Name = name
	p.Description = description
	r.perms[id] = p
	r.writes++
	return p, nil
}

func (r *memoryRepo) DeletePermission(ctx context.Context, id int64) error {
	if _, ok := r.perms[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.perms, id)
	for _, attached := range r.rolePerms {
		delete(attached, id)
	}
	r.writes++
	return nil
}

func (r *memoryRepo) AttachPermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	attached, ok := r.rolePerms[roleID]
	if !ok {
		attached = make(map[int64]struct{})
		r.rolePerms[roleID] = attached
	}
	for _, id := range permissionIDs {
		attached[id] = struct{}{}
	}
	r.writes++
	return nil
}

func (r *memoryRepo) DetachPermissions(ctx context.Context, roleID int64, permissionIDs []int64) (int64, error) {
	attached := r.rolePerms[roleID]
	var removed int64
	for _, id := range permissionIDs {
		if _, ok := attached[id]; ok {
			delete(attached, id)
			removed++
		}
	}
	if removed > 0 {
		r.writes++
	}
	return removed, nil
}

func (r *memoryRepo) PermissionsForRole(ctx context.Context, roleID int64) ([]Permission, error) {
	var out []Permission
	for id := range r.rolePerms[roleID] {
		if p, ok := r.perms[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryRepo) AssignRoles(ctx context.Context, principalID string, roleIDs []int64) error {
	held, ok := r.principalRoles[principalID]
	if !ok {
		held = make(map[int64]struct{})
		r.principalRoles[principalID] = held
	}
	for _, id := range roleIDs {
		held[id] = struct{}{}
	}
	r.writes++
	return nil
}

func (r *memoryRepo) RemoveRoles(ctx context.Context, principalID string, roleIDs []int64) error {
	held := r.principalRoles[principalID]
	for _, id := range roleIDs {
		delete(held, id)
	}
	r.writes++
	return nil
}

func (r *memoryRepo) RoleIDsForPrincipal(ctx context.Context, principalID string) ([]int64, error) {
	var out []int64
	for id := range r.principalRoles[principalID] {
		out = append(out, id)
	}
	return out, nil
}

func (r *memoryRepo) RoleNamesForPrincipal(ctx context.Context, principalID string) ([]string, error) {
	var out []string
	for id := range r.principalRoles[principalID] {
		if role, ok := r.roles[id]; ok {
			out = append(out, role.Name)
		}
	}
	return out, nil
}

func (r *memoryRepo) PrincipalHasPermission(ctx context.Context, principalID, permissionName string) (bool, error) {
	for roleID := range r.principalRoles[principalID] {
		for permID := range r.rolePerms[roleID] {
			if p, ok := r.perms[permID]; ok && p.Name == permissionName {
				return true, nil
			}
		}
	}
	return false, nil
}

func containsFold(haystack, needle string) bool {
	h := []rune(haystack)
	n := []rune(needle)
	if len(n) == 0 {
		return true
	}
	for i := 0; i+len(n) <= len(h); i++ {
		match := true
		for j := range n {
			a, b := h[i+j], n[j]
			if 'A' <= a && a <= 'Z' {
				a += 'a' - 'A'
			}
			if 'A' <= b && b <= 'Z' {
				b += 'a' - 'A'
			}
			if a != b {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

type stubResolver struct {
	byEmail map[string]*principals.Principal
}

func (s *stubResolver) GetByEmail(ctx context.Context, email string) (*principals.Principal, error) {
	p, ok := s.byEmail[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return p, nil
}

func newRBACService(t *testing.T) (*Service, *memoryRepo, *stubResolver) {
	t.Helper()
	repo := newMemoryRepo()
	resolver := &stubResolver{byEmail: map[string]*principals.Principal{
		"jane@example.com": {ID: "p-1", Email: "jane@example.com", FirstName: "Jane"},
	}}
	return NewService(repo, resolver, slog.Default()), repo, resolver
}

func TestSeedCatalogIsIdempotent(t *testing.T) {
	svc, repo, _ := newRBACService(t)
	ctx := context.Background()

	require.NoError(t, svc.SeedCatalog(ctx))
	require.Len(t, repo.roles, 3)

	require.NoError(t, svc.SeedCatalog(ctx))
	require.Len(t, repo.roles, 3)
}

func TestCreateRoleDuplicate(t *testing.T) {
	svc, _, _ := newRBACService(t)
	ctx := context.Background()

	_, err := svc.CreateRole(ctx, "Auditor")
	require.NoError(t, err)

	_, err = svc.CreateRole(ctx, "Auditor")
	require.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestCreateRoleBlankName(t *testing.T) {
	svc, _, _ := newRBACService(t)

	_, err := svc.CreateRole(context.Background(), "   ")
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestAssignRolesUnknownPrincipal(t *testing.T) {
	svc, _, _ := newRBACService(t)
	ctx := context.Background()
	require.NoError(t, svc.SeedCatalog(ctx))

	err := svc.AssignRolesToPrincipal(ctx, "nobody@example.com", []int64{1})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAssignRolesIsIdempotent(t *testing.T) {
	svc, repo, _ := newRBACService(t)
	ctx := context.Background()
	role, err := svc.CreateRole(ctx, "Auditor")
	require.NoError(t, err)

	require.NoError(t, svc.AssignRolesToPrincipal(ctx, "jane@example.com", []int64{role.ID}))
	require.NoError(t, svc.AssignRolesToPrincipal(ctx, "jane@example.com", []int64{role.ID}))

	held, err := repo.RoleIDsForPrincipal(ctx, "p-1")
	require.NoError(t, err)
	require.Equal(t, []int64{role.ID}, held)
}

func TestAssignRolesAllOrNothing(t *testing.T) {
	svc, repo, _ := newRBACService(t)
	ctx := context.Background()
	role, err := svc.CreateRole(ctx, "Auditor")
	require.NoError(t, err)
	writesBefore := repo.writes

	err = svc.AssignRolesToPrincipal(ctx, "jane@example.com", []int64{role.ID, 99, 100})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Details, 2)
	require.Contains(t, verr.Details[0], "99")
	require.Contains(t, verr.Details[1], "100")

	// No partial writes.
	require.Equal(t, writesBefore, repo.writes)
	held, err := repo.RoleIDsForPrincipal(ctx, "p-1")
	require.NoError(t, err)
	require.Empty(t, held)
}

func TestRemoveRolesRequiresHeld(t *testing.T) {
	svc, repo, _ := newRBACService(t)
	ctx := context.Background()
	held, err := svc.CreateRole(ctx, "Auditor")
	require.NoError(t, err)
	unheld, err := svc.CreateRole(ctx, "Operator")
	require.NoError(t, err)
	require.NoError(t, svc.AssignRolesToPrincipal(ctx, "jane@example.com", []int64{held.ID}))
	writesBefore := repo.writes

	err = svc.RemoveRolesFromPrincipal(ctx, "jane@example.com", []int64{held.ID, unheld.ID})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, writesBefore, repo.writes)

	// The held role survives the failed removal.
	ids, err := repo.RoleIDsForPrincipal(ctx, "p-1")
	require.NoError(t, err)
	require.Equal(t, []int64{held.ID}, ids)

	require.NoError(t, svc.RemoveRolesFromPrincipal(ctx, "jane@example.com", []int64{held.ID}))
	ids, err = repo.RoleIDsForPrincipal(ctx, "p-1")
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestAssignPermissionsAllOrNothing(t *testing.T) {
	svc, repo, _ := newRBACService(t)
	ctx := context.Background()
	role, err := svc.CreateRole(ctx, "Auditor")
	require.NoError(t, err)
	perm, err := svc.CreatePermission(ctx, "reports.read", "read reports")
	require.NoError(t, err)
	writesBefore := repo.writes

	err = svc.AssignPermissionsToRole(ctx, role.ID, []int64{perm.ID, 42})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, writesBefore, repo.writes)

	require.NoError(t, svc.AssignPermissionsToRole(ctx, role.ID, []int64{perm.ID}))
	perms, err := repo.PermissionsForRole(ctx, role.ID)
	require.NoError(t, err)
	require.Len(t, perms, 1)
}

func TestRemovePermissionsMixedSetRemovesMatches(t *testing.T) {
	svc, repo, _ := newRBACService(t)
	ctx := context.Background()
	role, err := svc.CreateRole(ctx, "Auditor")
	require.NoError(t, err)
	attached, err := svc.CreatePermission(ctx, "reports.read", "")
	require.NoError(t, err)
	unattached, err := svc.CreatePermission(ctx, "reports.write", "")
	require.NoError(t, err)
	require.NoError(t, svc.AssignPermissionsToRole(ctx, role.ID, []int64{attached.ID}))

	// Unknown and unattached ids are skipped; the matching row goes away.
	require.NoError(t, svc.RemovePermissionsFromRole(ctx, role.ID, []int64{attached.ID, unattached.ID, 999}))

	perms, err := repo.PermissionsForRole(ctx, role.ID)
	require.NoError(t, err)
	require.Empty(t, perms)
}

func TestRemovePermissionsNoneAttached(t *testing.T) {
	svc, _, _ := newRBACService(t)
	ctx := context.Background()
	role, err := svc.CreateRole(ctx, "Auditor")
	require.NoError(t, err)
	perm, err := svc.CreatePermission(ctx, "reports.read", "")
	require.NoError(t, err)

	err = svc.RemovePermissionsFromRole(ctx, role.ID, []int64{perm.ID})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDedupeIDsLeavesInputIntact(t *testing.T) {
	in := []int64{3, 3, 1, 2, 2}

	out := dedupeIDs(in)
	require.Equal(t, []int64{3, 1, 2}, out)
	require.Equal(t, []int64{3, 3, 1, 2, 2}, in)
}

func TestHasPermissionThroughRole(t *testing.T) {
	svc, _, _ := newRBACService(t)
	ctx := context.Background()
	role, err := svc.CreateRole(ctx, "Auditor")
	require.NoError(t, err)
	perm, err := svc.CreatePermission(ctx, "reports.read", "")
	require.NoError(t, err)
	require.NoError(t, svc.AssignPermissionsToRole(ctx, role.ID, []int64{perm.ID}))
	require.NoError(t, svc.AssignRolesToPrincipal(ctx, "jane@example.com", []int64{role.ID}))

	ok, err := svc.HasPermission(ctx, "p-1", "reports.read")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.HasPermission(ctx, "p-1", "reports.write")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDeleteRoleRevokesPermissions(t *testing.T) {
	svc, _, _ := newRBACService(t)
	ctx := context.Background()
	role, err := svc.CreateRole(ctx, "Auditor")
	require.NoError(t, err)
	perm, err := svc.CreatePermission(ctx, "reports.read", "")
	require.NoError(t, err)
	require.NoError(t, svc.AssignPermissionsToRole(ctx, role.ID, []int64{perm.ID}))
	require.NoError(t, svc.AssignRolesToPrincipal(ctx, "jane@example.com", []int64{role.ID}))

	require.NoError(t, svc.DeleteRole(ctx, role.ID))

	ok, err := svc.HasPermission(ctx, "p-1", "reports.read")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDeletePermissionDetachesEverywhere(t *testing.T) {
	svc, _, _ := newRBACService(t)
	ctx := context.Background()
	role, err := svc.CreateRole(ctx, "Auditor")
	require.NoError(t, err)
	perm, err := svc.CreatePermission(ctx, "reports.read", "")
	require.NoError(t, err)
	require.NoError(t, svc.AssignPermissionsToRole(ctx, role.ID, []int64{perm.ID}))
	require.NoError(t, svc.AssignRolesToPrincipal(ctx, "jane@example.com", []int64{role.ID}))

	require.NoError(t, svc.DeletePermission(ctx, perm.ID))

	ok, err := svc.HasPermission(ctx, "p-1", "reports.read")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRolesForPrincipal(t *testing.T) {
	svc, _, _ := newRBACService(t)
	ctx := context.Background()
	role, err := svc.CreateRole(ctx, "Auditor")
	require.NoError(t, err)
	require.NoError(t, svc.AssignRolesToPrincipal(ctx, "jane@example.com", []int64{role.ID}))

	pr, err := svc.RolesForPrincipal(ctx, "jane@example.com")
	require.NoError(t, err)
	require.Equal(t, "p-1", pr.PrincipalID)
	require.Equal(t, []string{"Auditor"}, pr.Roles)
}

func TestSearchRoles(t *testing.T) {
	svc, _, _ := newRBACService(t)
	ctx := context.Background()
	require.NoError(t, svc.SeedCatalog(ctx))

	roles, err := svc.SearchRoles(ctx, "adm")
	require.NoError(t, err)
	require.Len(t, roles, 1)
	require.Equal(t, RoleAdmin, roles[0].Name)

	all, err := svc.SearchRoles(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestEffectivePermissionsDeduplicates(t *testing.T) {
	svc, _, _ := newRBACService(t)
	ctx := context.Background()
	roleA, err := svc.CreateRole(ctx, "Auditor")
	require.NoError(t, err)
	roleB, err := svc.CreateRole(ctx, "Operator")
	require.NoError(t, err)
	perm, err := svc.CreatePermission(ctx, "reports.read", "")
	require.NoError(t, err)
	require.NoError(t, svc.AssignPermissionsToRole(ctx, roleA.ID, []int64{perm.ID}))
	require.NoError(t, svc.AssignPermissionsToRole(ctx, roleB.ID, []int64{perm.ID}))
	require.NoError(t, svc.AssignRolesToPrincipal(ctx, "jane@example.com", []int64{roleA.ID, roleB.ID}))

	perms, err := svc.EffectivePermissions(ctx, "p-1")
	require.NoError(t, err)
	require.Len(t, perms, 1)
}
