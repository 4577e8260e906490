package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/datagenie/pkg/apperrors"
	"github.com/ekaya-inc/datagenie/pkg/database"
	"github.com/ekaya-inc/datagenie/pkg/models"
)

// EndpointRepository provides access to tenant database endpoints.
// dg_endpoints carries no row-level security, so these methods work in either
// a tenant scope or an unscoped directory context.
type EndpointRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Endpoint, error)
	// GetActiveForTenant returns the most recently created active endpoint.
	GetActiveForTenant(ctx context.Context, tenantID uuid.UUID) (*models.Endpoint, error)
	MarkSynced(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkInactive(ctx context.Context, id uuid.UUID) error
}

type endpointRepository struct{}

// NewEndpointRepository creates a new endpoint repository.
func NewEndpointRepository() EndpointRepository {
	return &endpointRepository{}
}

var _ EndpointRepository = (*endpointRepository)(nil)

const endpointColumns = `
	id, tenant_id, endpoint_type, host, port, username, password_encrypted,
	database_name, options, is_active, last_synced_at, created_at, updated_at`

func (r *endpointRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Endpoint, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	row := scope.Conn.QueryRow(ctx, `SELECT `+endpointColumns+` FROM dg_endpoints WHERE id = $1`, id)
	e, err := scanEndpoint(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get endpoint: %w", err)
	}
	return e, nil
}

func (r *endpointRepository) GetActiveForTenant(ctx context.Context, tenantID uuid.UUID) (*models.Endpoint, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	row := scope.Conn.QueryRow(ctx, `
		SELECT `+endpointColumns+`
		FROM dg_endpoints
		WHERE tenant_id = $1 AND is_active
		ORDER BY created_at DESC, id
		LIMIT 1`, tenantID)
	e, err := scanEndpoint(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get active endpoint: %w", err)
	}
	return e, nil
}

func (r *endpointRepository) MarkSynced(ctx context.Context, id uuid.UUID, at time.Time) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	result, err := scope.Conn.Exec(ctx, `
		UPDATE dg_endpoints
		SET is_active = true, last_synced_at = $2
		WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to mark endpoint synced: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *endpointRepository) MarkInactive(ctx context.Context, id uuid.UUID) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	// Skip the write (and the updated_at trigger) when already inactive.
	_, err := scope.Conn.Exec(ctx, `
		UPDATE dg_endpoints
		SET is_active = false
		WHERE id = $1 AND is_active`, id)
	if err != nil {
		return fmt.Errorf("failed to mark endpoint inactive: %w", err)
	}
	return nil
}

func scanEndpoint(row pgx.Row) (*models.Endpoint, error) {
	var e models.Endpoint
	var options []byte
	err := row.Scan(
		&e.ID, &e.TenantID, &e.EndpointType, &e.Host, &e.Port, &e.Username, &e.PasswordEncrypted,
		&e.DatabaseName, &options, &e.IsActive, &e.LastSyncedAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(options) > 0 {
		if err := json.Unmarshal(options, &e.Options); err != nil {
			return nil, fmt.Errorf("failed to decode endpoint options: %w", err)
		}
	}
	return &e, nil
}
