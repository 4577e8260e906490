package database

import "context"

type contextKey string

// TenantScopeKey is the context key for the tenant-scoped connection.
const TenantScopeKey contextKey = "tenantScope"

// GetTenantScope returns the tenant-scoped connection stored in ctx.
func GetTenantScope(ctx context.Context) (*TenantScope, bool) {
	scope, ok := ctx.Value(TenantScopeKey).(*TenantScope)
	return scope, ok && scope != nil
}

// SetTenantScope stores scope in ctx.
func SetTenantScope(ctx context.Context, scope *TenantScope) context.Context {
	return context.WithValue(ctx, TenantScopeKey, scope)
}
