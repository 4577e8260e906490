package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/ekaya-inc/datagenie/pkg/database"
)

// TenantContextFunc acquires a tenant-scoped database connection.
// Returns the scoped context, a cleanup function (MUST be called), and any error.
type TenantContextFunc func(ctx context.Context, tenantID uuid.UUID) (context.Context, func(), error)

// DirectoryContextFunc acquires an unscoped connection for lookups that run
// before the tenant is known. The cleanup function MUST be called.
type DirectoryContextFunc func(ctx context.Context) (context.Context, func(), error)

// NewTenantContextFunc creates a TenantContextFunc that uses the given database.
func NewTenantContextFunc(db *database.DB) TenantContextFunc {
	return func(ctx context.Context, tenantID uuid.UUID) (context.Context, func(), error) {
		scope, err := db.WithTenant(ctx, tenantID)
		if err != nil {
			return nil, nil, err
		}
		tenantCtx := database.SetTenantScope(ctx, scope)
		return tenantCtx, func() { scope.Close() }, nil
	}
}

// NewDirectoryContextFunc creates a DirectoryContextFunc that uses the given database.
func NewDirectoryContextFunc(db *database.DB) DirectoryContextFunc {
	return func(ctx context.Context) (context.Context, func(), error) {
		scope, err := db.WithoutTenant(ctx)
		if err != nil {
			return nil, nil, err
		}
		return database.SetTenantScope(ctx, scope), func() { scope.Close() }, nil
	}
}
