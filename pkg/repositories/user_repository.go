package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/datagenie/pkg/apperrors"
	"github.com/ekaya-inc/datagenie/pkg/database"
	"github.com/ekaya-inc/datagenie/pkg/models"
)

// UserRepository resolves identity-provider users onto tenants.
type UserRepository interface {
	// GetTenantID returns the tenant of an active user, or apperrors.ErrNotFound.
	GetTenantID(ctx context.Context, userID string) (uuid.UUID, error)
	GetByID(ctx context.Context, userID string) (*models.User, error)
}

type userRepository struct{}

// NewUserRepository creates a new user repository.
func NewUserRepository() UserRepository {
	return &userRepository{}
}

var _ UserRepository = (*userRepository)(nil)

func (r *userRepository) GetTenantID(ctx context.Context, userID string) (uuid.UUID, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return uuid.Nil, fmt.Errorf("no tenant scope in context")
	}

	var tenantID uuid.UUID
	err := scope.Conn.QueryRow(ctx, `
		SELECT tenant_id
		FROM dg_users
		WHERE user_id = $1 AND is_active`, userID).Scan(&tenantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, apperrors.ErrNotFound
		}
		return uuid.Nil, fmt.Errorf("failed to get tenant for user: %w", err)
	}

	return tenantID, nil
}

func (r *userRepository) GetByID(ctx context.Context, userID string) (*models.User, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	var user models.User
	err := scope.Conn.QueryRow(ctx, `
		SELECT user_id, tenant_id, is_active, created_at, updated_at
		FROM dg_users
		WHERE user_id = $1`, userID).Scan(
		&user.UserID, &user.TenantID, &user.IsActive, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}
