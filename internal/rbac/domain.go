// Package rbac holds the role/permission model, its administration
// operations and the store-backed authorization engine.
package rbac

import "time"

// Role represents a named authorization group.
type Role struct {
	ID        int64
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Permission represents an atomic capability with an independent lifecycle
// from roles. IDs are assigned by the store and never reused.
type Permission struct {
	ID          int64
	Name        string
	Description string
}

// RoleWithPermissions is the read model for a role and its attached
// permissions.
type RoleWithPermissions struct {
	Role        Role
	Permissions []Permission
}

// PrincipalRoles is the read model for a principal and its held role names.
type PrincipalRoles struct {
	PrincipalID string
	Email       string
	Name        string
	Roles       []string
}
