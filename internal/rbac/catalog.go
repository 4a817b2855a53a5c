package rbac

import (
	"context"
	"errors"

	"github.com/gatekeeper-iam/gatekeeper/internal/shared"
)

// Built-in role names. Membership is checked directly against this set;
// there is no runtime introspection of a constants type.
const (
	RoleAdmin   = "Admin"
	RoleManager = "Manager"
	RoleUser    = "User"
)

var builtinRoles = map[string]struct{}{
	RoleAdmin:   {},
	RoleManager: {},
	RoleUser:    {},
}

// IsBuiltinRole reports whether name is part of the built-in role catalog.
func IsBuiltinRole(name string) bool {
	_, ok := builtinRoles[name]
	return ok
}

// BuiltinRoles returns the catalog in a stable order.
func BuiltinRoles() []string {
	return []string{RoleAdmin, RoleManager, RoleUser}
}

// SeedCatalog ensures every built-in role exists in the store. Existing
// roles are left untouched.
func (s *Service) SeedCatalog(ctx context.Context) error {
	for _, name := range BuiltinRoles() {
		_, err := s.repo.CreateRole(ctx, name)
		if err != nil && !errors.Is(err, shared.ErrDuplicate) {
			return err
		}
	}
	return nil
}
