package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gatekeeper-iam/gatekeeper/internal/principals"
	"github.com/gatekeeper-iam/gatekeeper/internal/shared"
)

// PrincipalResolver looks up principals for role grants. Satisfied by
// principals.Service.
type PrincipalResolver interface {
	GetByEmail(ctx context.Context, email string) (*principals.Principal, error)
}

// Service implements role and permission administration plus the
// authorization checks used by middleware. Checks always hit the store;
// grant changes take effect on the next check without token reissue.
type Service struct {
	repo       Repository
	principals PrincipalResolver
	logger     *slog.Logger
}

// NewService constructs a Service instance.
func NewService(repo Repository, resolver PrincipalResolver, logger *slog.Logger) *Service {
	return &Service{repo: repo, principals: resolver, logger: logger}
}

// ListRoles returns every role.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// SearchRoles returns roles matching the query; an empty query lists all.
func (s *Service) SearchRoles(ctx context.Context, query string) ([]Role, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.repo.ListRoles(ctx)
	}
	return s.repo.SearchRoles(ctx, query)
}

// GetRole fetches a single role.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// CreateRole adds a role with a unique name.
func (s *Service) CreateRole(ctx context.Context, name string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, shared.NewValidationError("role name is required")
	}
	return s.repo.CreateRole(ctx, name)
}

// UpdateRole renames a role.
func (s *Service) UpdateRole(ctx context.Context, id int64, name string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, shared.NewValidationError("role name is required")
	}
	return s.repo.UpdateRole(ctx, id, name)
}

// DeleteRole removes a role. Grants referencing it disappear with it, so
// principals lose the role's permissions on their next check.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	return s.repo.DeleteRole(ctx, id)
}

// ListPermissions returns every permission.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// GetPermission fetches a single permission.
func (s *Service) GetPermission(ctx context.Context, id int64) (Permission, error) {
	return s.repo.GetPermission(ctx, id)
}

// CreatePermission adds a permission.
func (s *Service) CreatePermission(ctx context.Context, name, description string) (Permission, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Permission{}, shared.NewValidationError("permission name is required")
	}
	return s.repo.CreatePermission(ctx, name, description)
}

// UpdatePermission updates a permission's name and description.
func (s *Service) UpdatePermission(ctx context.Context, id int64, name, description string) (Permission, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Permission{}, shared.NewValidationError("permission name is required")
	}
	return s.repo.UpdatePermission(ctx, id, name, description)
}

// DeletePermission removes a permission from every role that carries it.
func (s *Service) DeletePermission(ctx context.Context, id int64) error {
	return s.repo.DeletePermission(ctx, id)
}

// AssignRolesToPrincipal grants roles to the principal identified by email.
// The principal must already exist. Every requested role id must exist or
// nothing is written; already-held roles are skipped silently.
func (s *Service) AssignRolesToPrincipal(ctx context.Context, email string, roleIDs []int64) error {
	p, err := s.principals.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	roleIDs = dedupeIDs(roleIDs)
	if len(roleIDs) == 0 {
		return shared.NewValidationError("at least one role id is required")
	}
	if err := s.validateRoleIDs(ctx, roleIDs); err != nil {
		return err
	}
	return s.repo.AssignRoles(ctx, p.ID, roleIDs)
}

// RemoveRolesFromPrincipal revokes roles from the principal identified by
// email. Every requested role must exist and be currently held or nothing
// is removed.
func (s *Service) RemoveRolesFromPrincipal(ctx context.Context, email string, roleIDs []int64) error {
	p, err := s.principals.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	roleIDs = dedupeIDs(roleIDs)
	if len(roleIDs) == 0 {
		return shared.NewValidationError("at least one role id is required")
	}
	if err := s.validateRoleIDs(ctx, roleIDs); err != nil {
		return err
	}
	held, err := s.repo.RoleIDsForPrincipal(ctx, p.ID)
	if err != nil {
		return err
	}
	heldSet := make(map[int64]struct{}, len(held))
	for _, id := range held {
		heldSet[id] = struct{}{}
	}
	var notHeld []string
	for _, id := range roleIDs {
		if _, ok := heldSet[id]; !ok {
			notHeld = append(notHeld, fmt.Sprintf("role %d is not assigned", id))
		}
	}
	if len(notHeld) > 0 {
		return shared.NewValidationError("some roles are not assigned", notHeld...)
	}
	return s.repo.RemoveRoles(ctx, p.ID, roleIDs)
}

// RolesForPrincipal returns the principal's held role names keyed to its
// identity fields.
func (s *Service) RolesForPrincipal(ctx context.Context, email string) (PrincipalRoles, error) {
	p, err := s.principals.GetByEmail(ctx, email)
	if err != nil {
		return PrincipalRoles{}, err
	}
	names, err := s.repo.RoleNamesForPrincipal(ctx, p.ID)
	if err != nil {
		return PrincipalRoles{}, err
	}
	return PrincipalRoles{
		PrincipalID: p.ID,
		Email:       p.Email,
		Name:        p.DisplayName(),
		Roles:       names,
	}, nil
}

// RoleNamesForPrincipal returns the role names held by a principal id. It
// satisfies the session package's role directory.
func (s *Service) RoleNamesForPrincipal(ctx context.Context, principalID string) ([]string, error) {
	return s.repo.RoleNamesForPrincipal(ctx, principalID)
}

// AssignPermissionsToRole attaches permissions to a role. Every requested
// permission id must exist or nothing is written; already-attached
// permissions are skipped silently.
func (s *Service) AssignPermissionsToRole(ctx context.Context, roleID int64, permissionIDs []int64) error {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return err
	}
	permissionIDs = dedupeIDs(permissionIDs)
	if len(permissionIDs) == 0 {
		return shared.NewValidationError("at least one permission id is required")
	}
	if err := s.validatePermissionIDs(ctx, permissionIDs); err != nil {
		return err
	}
	return s.repo.AttachPermissions(ctx, roleID, permissionIDs)
}

// RemovePermissionsFromRole detaches permissions from a role. Unknown and
// unattached ids are skipped, only matching rows are removed; if nothing
// matched the call fails with not found. Existence validation applies to
// assignment only.
func (s *Service) RemovePermissionsFromRole(ctx context.Context, roleID int64, permissionIDs []int64) error {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return err
	}
	permissionIDs = dedupeIDs(permissionIDs)
	if len(permissionIDs) == 0 {
		return shared.NewValidationError("at least one permission id is required")
	}
	removed, err := s.repo.DetachPermissions(ctx, roleID, permissionIDs)
	if err != nil {
		return err
	}
	if removed == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// RoleWithPermissions returns a role and its attached permissions.
func (s *Service) RoleWithPermissions(ctx context.Context, roleID int64) (RoleWithPermissions, error) {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return RoleWithPermissions{}, err
	}
	perms, err := s.repo.PermissionsForRole(ctx, roleID)
	if err != nil {
		return RoleWithPermissions{}, err
	}
	return RoleWithPermissions{Role: role, Permissions: perms}, nil
}

// HasPermission reports whether the principal holds the named permission
// through any of its roles.
func (s *Service) HasPermission(ctx context.Context, principalID, permissionName string) (bool, error) {
	return s.repo.PrincipalHasPermission(ctx, principalID, permissionName)
}

// EffectivePermissions returns the union of permissions granted to a
// principal through its roles.
func (s *Service) EffectivePermissions(ctx context.Context, principalID string) ([]Permission, error) {
	roleIDs, err := s.repo.RoleIDsForPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]struct{})
	var out []Permission
	for _, roleID := range roleIDs {
		perms, err := s.repo.PermissionsForRole(ctx, roleID)
		if err != nil {
			return nil, err
		}
		for _, p := range perms {
			if _, ok := seen[p.ID]; ok {
				continue
			}
			seen[p.ID] = struct{}{}
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Service) validateRoleIDs(ctx context.Context, ids []int64) error {
	found, err := s.repo.RolesByIDs(ctx, ids)
	if err != nil {
		return err
	}
	if len(found) == len(ids) {
		return nil
	}
	foundSet := make(map[int64]struct{}, len(found))
	for _, role := range found {
		foundSet[role.ID] = struct{}{}
	}
	var missing []string
	for _, id := range ids {
		if _, ok := foundSet[id]; !ok {
			missing = append(missing, fmt.Sprintf("role %d does not exist", id))
		}
	}
	return shared.NewValidationError("some roles do not exist", missing...)
}

func (s *Service) validatePermissionIDs(ctx context.Context, ids []int64) error {
	found, err := s.repo.PermissionsByIDs(ctx, ids)
	if err != nil {
		return err
	}
	if len(found) == len(ids) {
		return nil
	}
	foundSet := make(map[int64]struct{}, len(found))
	for _, p := range found {
		foundSet[p.ID] = struct{}{}
	}
	var missing []string
	for _, id := range ids {
		if _, ok := foundSet[id]; !ok {
			missing = append(missing, fmt.Sprintf("permission %d does not exist", id))
		}
	}
	return shared.NewValidationError("some permissions do not exist", missing...)
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
