package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/datagenie/pkg/adapters/datasource"
	"github.com/ekaya-inc/datagenie/pkg/apperrors"
	"github.com/ekaya-inc/datagenie/pkg/crypto"
	"github.com/ekaya-inc/datagenie/pkg/models"
	"github.com/ekaya-inc/datagenie/pkg/repositories"
)

// ConnectionPools hands out leases on one pooled connection per endpoint.
// *datasource.PoolRegistry is the production implementation.
type ConnectionPools interface {
	Get(ctx context.Context, endpoint *models.Endpoint) (datasource.TenantConnection, error)
}

// ConnectionRouter maps users and tenants onto pooled tenant database connections.
// Every connection it returns is a lease on a shared pool: callers Close it
// when done, which releases the lease without closing the pool.
type ConnectionRouter interface {
	// TenantForUser resolves the tenant of an active user.
	TenantForUser(ctx context.Context, userID string) (uuid.UUID, error)
	// ResolveForUser returns the connection for the user's tenant.
	ResolveForUser(ctx context.Context, userID string) (datasource.TenantConnection, error)
	// ActiveEndpoint returns the tenant's most recently created active endpoint.
	ActiveEndpoint(ctx context.Context, tenantID uuid.UUID) (*models.Endpoint, error)
	// ResolveForTenant returns the connection for ActiveEndpoint.
	ResolveForTenant(ctx context.Context, tenantID uuid.UUID) (datasource.TenantConnection, error)
	// Connect returns the connection for a specific endpoint regardless of its
	// active flag. Used by the synchronizer, which decides that flag.
	Connect(ctx context.Context, endpoint *models.Endpoint) (datasource.TenantConnection, error)
}

type connectionRouter struct {
	users     repositories.UserRepository
	endpoints repositories.EndpointRepository
	directory DirectoryContextFunc
	cipher    *crypto.SecretCipher
	pools     ConnectionPools
	logger    *zap.Logger
}

// NewConnectionRouter creates a router. cipher opens sealed endpoint passwords.
func NewConnectionRouter(
	users repositories.UserRepository,
	endpoints repositories.EndpointRepository,
	directory DirectoryContextFunc,
	cipher *crypto.SecretCipher,
	pools ConnectionPools,
	logger *zap.Logger,
) ConnectionRouter {
	return &connectionRouter{
		users:     users,
		endpoints: endpoints,
		directory: directory,
		cipher:    cipher,
		pools:     pools,
		logger:    logger.Named("connection-router"),
	}
}

var _ ConnectionRouter = (*connectionRouter)(nil)

func (r *connectionRouter) TenantForUser(ctx context.Context, userID string) (uuid.UUID, error) {
	if userID == "" {
		return uuid.Nil, fmt.Errorf("%w: user_id is required", apperrors.ErrInvalidRequest)
	}

	dirCtx, cleanup, err := r.directory(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to acquire directory connection: %w", err)
	}
	defer cleanup()

	tenantID, err := r.users.GetTenantID(dirCtx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return uuid.Nil, fmt.Errorf("%w: no active user %q", apperrors.ErrTenantNotFound, userID)
		}
		return uuid.Nil, err
	}
	return tenantID, nil
}

func (r *connectionRouter) ResolveForUser(ctx context.Context, userID string) (datasource.TenantConnection, error) {
	tenantID, err := r.TenantForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return r.ResolveForTenant(ctx, tenantID)
}

func (r *connectionRouter) ActiveEndpoint(ctx context.Context, tenantID uuid.UUID) (*models.Endpoint, error) {
	dirCtx, cleanup, err := r.directory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire directory connection: %w", err)
	}
	defer cleanup()

	endpoint, err := r.endpoints.GetActiveForTenant(dirCtx, tenantID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: tenant %s has no active endpoint", apperrors.ErrTenantNotFound, tenantID)
		}
		return nil, err
	}
	return endpoint, nil
}

func (r *connectionRouter) ResolveForTenant(ctx context.Context, tenantID uuid.UUID) (datasource.TenantConnection, error) {
	endpoint, err := r.ActiveEndpoint(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return r.Connect(ctx, endpoint)
}

func (r *connectionRouter) Connect(ctx context.Context, endpoint *models.Endpoint) (datasource.TenantConnection, error) {
	// The pool fingerprint covers the sealed password, so the decrypted copy
	// lives only for this call.
	params := *endpoint
	if r.cipher != nil {
		password, err := r.cipher.Open(endpoint.PasswordEncrypted, endpoint.ID.String())
		if err != nil {
			r.logger.Error("Failed to open endpoint credentials",
				zap.String("endpoint_id", endpoint.ID.String()),
				zap.Error(err))
			return nil, fmt.Errorf("%w: %w", apperrors.ErrConnection, err)
		}
		params.Password = password
	} else if endpoint.PasswordEncrypted != "" {
		return nil, fmt.Errorf("%w: endpoint %s has a sealed password but no credentials key is configured",
			apperrors.ErrConnection, endpoint.ID)
	}

	conn, err := r.pools.Get(ctx, &params)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
