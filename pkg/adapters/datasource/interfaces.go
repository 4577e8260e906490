package datasource

import (
	"context"
	"time"

	"github.com/ekaya-inc/datagenie/pkg/models"
)

// CatalogReader lists the live structure of a tenant database.
type CatalogReader interface {
	// ListDatabases returns user schema names, excluding system catalogs.
	ListDatabases(ctx context.Context) ([]string, error)
	// ListTables returns base table and view names in a schema.
	ListTables(ctx context.Context, database string) ([]string, error)
	// ListColumns returns the columns of a table with declared types.
	ListColumns(ctx context.Context, database, table string) ([]models.LiveColumn, error)
}

// Planner validates a query without executing it.
type Planner interface {
	Explain(ctx context.Context, sql string) error
}

// QueryRunner executes a read query and returns at most maxRows rows.
type QueryRunner interface {
	Query(ctx context.Context, sql string, maxRows int) (*models.ExecutionResult, error)
}

// TenantConnection is a pooled connection to one tenant endpoint.
type TenantConnection interface {
	CatalogReader
	Planner
	QueryRunner

	// Dialect names the SQL dialect for prompt construction.
	Dialect() string
	Ping(ctx context.Context) error
	Close() error
}

// ConnectParams carries everything an adapter needs to open a pool.
// Endpoint.Password must already be decrypted.
type ConnectParams struct {
	Endpoint       *models.Endpoint
	MaxConns       int32
	ConnectTimeout time.Duration
}

// Opener creates a TenantConnection for an endpoint.
type Opener func(ctx context.Context, params ConnectParams) (TenantConnection, error)
