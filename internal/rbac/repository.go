package rbac

import "context"

// Repository defines persistence operations for the role/permission store.
type Repository interface {
	ListRoles(ctx context.Context) ([]Role, error)
	SearchRoles(ctx context.Context, query string) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	RolesByIDs(ctx context.Context, ids []int64) ([]Role, error)
	CreateRole(ctx context.Context, name string) (Role, error)
	UpdateRole(ctx context.Context, id int64, name string) (Role, error)
	DeleteRole(ctx context.Context, id int64) error

	ListPermissions(ctx context.Context) ([]Permission, error)
	GetPermission(ctx context.Context, id int64) (Permission, error)
	PermissionsByIDs(ctx context.Context, ids []int64) ([]Permission, error)
	CreatePermission(ctx context.Context, name, description string) (Permission, error)
	UpdatePermission(ctx context.Context, id int64, name, description string) (Permission, error)
	DeletePermission(ctx context.Context, id int64) error

	AttachPermissions(ctx context.Context, roleID int64, permissionIDs []int64) error
	DetachPermissions(ctx context.Context, roleID int64, permissionIDs []int64) (int64, error)
	PermissionsForRole(ctx context.Context, roleID int64) ([]Permission, error)

	AssignRoles(ctx context.Context, principalID string, roleIDs []int64) error
	RemoveRoles(ctx context.Context, principalID string, roleIDs []int64) error
	RoleIDsForPrincipal(ctx context.Context, principalID string) ([]int64, error)
	RoleNamesForPrincipal(ctx context.Context, principalID string) ([]string, error)
	PrincipalHasPermission(ctx context.Context, principalID, permissionName string) (bool, error)
}
