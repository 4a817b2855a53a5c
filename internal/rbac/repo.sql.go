package rbac

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatekeeper-iam/gatekeeper/internal/shared"
)

// PGRepository implements Repository using PostgreSQL. Association tables
// carry ON DELETE CASCADE foreign keys, so deleting a role or permission
// leaves no orphaned rows.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// ListRoles returns all roles ordered by name.
func (r *PGRepository) ListRoles(ctx context.Context) ([]Role, error) {
	return r.queryRoles(ctx, `SELECT id, name, created_at, updated_at FROM roles ORDER BY name`)
}

// SearchRoles returns roles whose name contains the query, case-insensitive.
func (r *PGRepository) SearchRoles(ctx context.Context, query string) ([]Role, error) {
	return r.queryRoles(ctx,
		`SELECT id, name, created_at, updated_at FROM roles WHERE name ILIKE '%' || $1 || '%' ORDER BY name`, query)
}

// GetRole fetches a role by id.
func (r *PGRepository) GetRole(ctx context.Context, id int64) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, created_at, updated_at FROM roles WHERE id = $1`, id).
		Scan(&role.ID, &role.Name, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// RolesByIDs returns the subset of ids that exist as roles.
func (r *PGRepository) RolesByIDs(ctx context.Context, ids []int64) ([]Role, error) {
	return r.queryRoles(ctx,
		`SELECT id, name, created_at, updated_at FROM roles WHERE id = ANY($1) ORDER BY name`, ids)
}

// CreateRole inserts a new role. A duplicate name maps to shared.ErrDuplicate.
func (r *PGRepository) CreateRole(ctx context.Context, name string) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx,
		`INSERT INTO roles (name, created_at, updated_at) VALUES ($1, now(), now())
		 RETURNING id, name, created_at, updated_at`, name).
		Scan(&role.ID, &role.Name, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Role{}, shared.ErrDuplicate
		}
		return Role{}, err
	}
	return role, nil
}

// UpdateRole renames an existing role.
func (r *PGRepository) UpdateRole(ctx context.Context, id int64, name string) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx,
		`UPDATE roles SET name = $2, updated_at = now() WHERE id = $1
		 RETURNING id, name, created_at, updated_at`, id, name).
		Scan(&role.ID, &role.Name, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		if isUniqueViolation(err) {
			return Role{}, shared.ErrDuplicate
		}
		return Role{}, err
	}
	return role, nil
}

// DeleteRole removes a role; association rows cascade.
func (r *PGRepository) DeleteRole(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListPermissions returns all permissions ordered by id.
func (r *PGRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	return r.queryPermissions(ctx,
		`SELECT id, name, description FROM permissions ORDER BY id`)
}

// GetPermission fetches a permission by id.
func (r *PGRepository) GetPermission(ctx context.Context, id int64) (Permission, error) {
	var p Permission
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, description FROM permissions WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Description)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, shared.ErrNotFound
		}
		return Permission{}, err
	}
	return p, nil
}

// PermissionsByIDs returns the subset of ids that exist as permissions.
func (r *PGRepository) PermissionsByIDs(ctx context.Context, ids []int64) ([]Permission, error) {
	return r.queryPermissions(ctx,
		`SELECT id, name, description FROM permissions WHERE id = ANY($1) ORDER BY id`, ids)
}

// CreatePermission inserts a new permission; the id is store-assigned.
func (r *PGRepository) CreatePermission(ctx context.Context, name, description string) (Permission, error) {
	var p Permission
	err := r.pool.QueryRow(ctx,
		`INSERT INTO permissions (name, description) VALUES ($1, $2)
		 RETURNING id, name, description`, name, description).
		Scan(&p.ID, &p.Name, &p.Description)
	if err != nil {
		if isUniqueViolation(err) {
			return Permission{}, shared.ErrDuplicate
		}
		return Permission{}, err
	}
	return p, nil
}

// UpdatePermission updates name and description.
func (r *PGRepository) UpdatePermission(ctx context.Context, id int64, name, description string) (Permission, error) {
	var p Permission
	err := r.pool.QueryRow(ctx,
		`UPDATE permissions SET name = $2, description = $3 WHERE id = $1
		 RETURNING id, name, description`, id, name, description).
		Scan(&p.ID, &p.Name, &p.Description)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, shared.ErrNotFound
		}
		if isUniqueViolation(err) {
			return Permission{}, shared.ErrDuplicate
		}
		return Permission{}, err
	}
	return p, nil
}

// DeletePermission removes a permission; role associations cascade.
func (r *PGRepository) DeletePermission(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// AttachPermissions inserts role-permission rows idempotently.
func (r *PGRepository) AttachPermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO role_permissions (role_id, permission_id)
		 SELECT $1, unnest($2::bigint[])
		 ON CONFLICT (role_id, permission_id) DO NOTHING`,
		roleID, permissionIDs)
	return err
}

// DetachPermissions removes matching role-permission rows and reports how
// many were removed.
func (r *PGRepository) DetachPermissions(ctx context.Context, roleID int64, permissionIDs []int64) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = ANY($2)`,
		roleID, permissionIDs)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// PermissionsForRole returns the permissions attached to a role.
func (r *PGRepository) PermissionsForRole(ctx context.Context, roleID int64) ([]Permission, error) {
	return r.queryPermissions(ctx,
		`SELECT p.id, p.name, p.description
		 FROM role_permissions rp
		 JOIN permissions p ON p.id = rp.permission_id
		 WHERE rp.role_id = $1
		 ORDER BY p.id`, roleID)
}

// AssignRoles inserts principal-role rows idempotently.
func (r *PGRepository) AssignRoles(ctx context.Context, principalID string, roleIDs []int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO principal_roles (principal_id, role_id)
		 SELECT $1, unnest($2::bigint[])
		 ON CONFLICT (principal_id, role_id) DO NOTHING`,
		principalID, roleIDs)
	return err
}

// RemoveRoles deletes principal-role rows.
func (r *PGRepository) RemoveRoles(ctx context.Context, principalID string, roleIDs []int64) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM principal_roles WHERE principal_id = $1 AND role_id = ANY($2)`,
		principalID, roleIDs)
	return err
}

// RoleIDsForPrincipal returns the role ids currently held by a principal.
func (r *PGRepository) RoleIDsForPrincipal(ctx context.Context, principalID string) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT role_id FROM principal_roles WHERE principal_id = $1 ORDER BY role_id`, principalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RoleNamesForPrincipal returns the role names currently held by a principal.
func (r *PGRepository) RoleNamesForPrincipal(ctx context.Context, principalID string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT r.name
		 FROM principal_roles pr
		 JOIN roles r ON r.id = pr.role_id
		 WHERE pr.principal_id = $1
		 ORDER BY r.name`, principalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// PrincipalHasPermission walks principal -> roles -> role_permissions ->
// permissions in a single query.
func (r *PGRepository) PrincipalHasPermission(ctx context.Context, principalID, permissionName string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1
		   FROM principal_roles pr
		   JOIN role_permissions rp ON rp.role_id = pr.role_id
		   JOIN permissions p ON p.id = rp.permission_id
		   WHERE pr.principal_id = $1 AND p.name = $2
		 )`, principalID, permissionName).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PGRepository) queryRoles(ctx context.Context, sql string, args ...any) ([]Role, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

func (r *PGRepository) queryPermissions(ctx context.Context, sql string, args ...any) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ Repository = (*PGRepository)(nil)
