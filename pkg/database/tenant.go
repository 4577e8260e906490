package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TenantScope is a pooled connection with app.current_tenant_id set, so
// row-level security on mirror and history tables only exposes one tenant.
type TenantScope struct {
	Conn     *pgxpool.Conn
	TenantID uuid.UUID
}

// Close resets the tenant setting and releases the connection.
// It must run before the connection returns to the pool.
func (s *TenantScope) Close() {
	if s.Conn == nil {
		return
	}
	if s.TenantID != uuid.Nil {
		_, _ = s.Conn.Exec(context.Background(), "RESET app.current_tenant_id")
	}
	s.Conn.Release()
	s.Conn = nil
}

// WithTenant acquires a connection scoped to tenantID.
// The returned TenantScope must be closed.
func (db *DB) WithTenant(ctx context.Context, tenantID uuid.UUID) (*TenantScope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	_, err = conn.Exec(ctx, "SELECT set_config('app.current_tenant_id', $1, false)", tenantID.String())
	if err != nil {
		conn.Release()
		return nil, fmt.Errorf("set tenant scope: %w", err)
	}

	return &TenantScope{Conn: conn, TenantID: tenantID}, nil
}

// WithoutTenant acquires an unscoped connection for directory lookups
// (user to tenant, endpoint by id) that run before a tenant is known.
// The returned TenantScope must be closed.
func (db *DB) WithoutTenant(ctx context.Context) (*TenantScope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &TenantScope{Conn: conn}, nil
}
