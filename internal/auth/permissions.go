package auth

import (
	"context"
	"errors"
	"fmt"
)

const (
	PermProductCreate     = "product.create"
	PermProductUpdate     = "product.update"
	PermProductDelete     = "product.delete"
	PermReviewCreate      = "review.create"
	PermOrderCreate       = "order.create"
	PermOrderReadOwn      = "order.read_own"
	PermOrderReadAll      = "order.read_all"
	PermOrderUpdateStatus = "order.update_status"
	PermShopManage        = "shop.manage"
)

var BuiltinPermissions = []Permission{
	{Code: PermProductCreate, Description: "Create catalog products"},
	{Code: PermProductUpdate, Description: "Edit own catalog products"},
	{Code: PermProductDelete, Description: "Remove own catalog products"},
	{Code: PermReviewCreate, Description: "Review purchased products"},
	{Code: PermOrderCreate, Description: "Place orders"},
	{Code: PermOrderReadOwn, Description: "Read own orders"},
	{Code: PermOrderReadAll, Description: "Read every order"},
	{Code: PermOrderUpdateStatus, Description: "Move orders through fulfilment"},
	{Code: PermShopManage, Description: "Manage shop settings"},
}

// BuiltinRoles maps role names to the permission codes they are granted.
var BuiltinRoles = map[string][]string{
	"customer": {PermOrderCreate, PermOrderReadOwn, PermReviewCreate},
	"seller":   {PermProductCreate, PermProductUpdate, PermProductDelete, PermOrderReadOwn, PermOrderUpdateStatus, PermShopManage},
	"admin":    {PermProductCreate, PermProductUpdate, PermProductDelete, PermOrderReadAll, PermOrderUpdateStatus, PermShopManage},
}

// EnsureBuiltins ensures predefined permissions and roles exist with their grants.
func EnsureBuiltins(ctx context.Context, admin RBACAdmin) error {
	if err := admin.EnsurePermissions(ctx, BuiltinPermissions); err != nil {
		return fmt.Errorf("ensure permissions: %w", err)
	}
	for name, codes := range BuiltinRoles {
		role, err := admin.FindRoleByName(ctx, name)
		if errors.Is(err, ErrNotFound) {
			role = &Role{Name: name, Description: "builtin " + name + " role"}
			err = admin.CreateRole(ctx, role)
		}
		if err != nil {
			return fmt.Errorf("ensure role %s: %w", name, err)
		}
		for _, code := range codes {
			if err := admin.GrantPermission(ctx, role.ID, code); err != nil {
				return fmt.Errorf("grant %s to %s: %w", code, name, err)
			}
		}
	}
	return nil
}
