package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ekaya-inc/datagenie/pkg/adapters/datasource"
)

// Dialect is the SQL dialect name used in generation prompts.
const Dialect = "PostgreSQL"

// Conn is a pooled connection to a tenant PostgreSQL endpoint.
type Conn struct {
	pool *pgxpool.Pool
}

// Open creates a pool for the endpoint in params. The pool connects lazily;
// the registry pings it before caching.
func Open(ctx context.Context, params datasource.ConnectParams) (datasource.TenantConnection, error) {
	cfg, err := FromEndpoint(params.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("postgres endpoint config: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse postgres connection string: %w", err)
	}
	if params.MaxConns > 0 {
		poolConfig.MaxConns = params.MaxConns
	}
	if params.ConnectTimeout > 0 {
		poolConfig.ConnConfig.ConnectTimeout = params.ConnectTimeout
	}
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return NewConn(pool), nil
}

// NewConn wraps an existing pool.
func NewConn(pool *pgxpool.Pool) *Conn {
	return &Conn{pool: pool}
}

func (c *Conn) Dialect() string { return Dialect }

// Ping verifies the server is reachable and the credentials are accepted.
func (c *Conn) Ping(ctx context.Context) error {
	if err := c.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

// Close closes the pool.
func (c *Conn) Close() error {
	c.pool.Close()
	return nil
}

var _ datasource.TenantConnection = (*Conn)(nil)
