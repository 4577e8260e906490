// Package mssql connects to tenant SQL Server and Azure SQL endpoints.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/microsoft/go-mssqldb" // SQL Server driver

	"github.com/ekaya-inc/datagenie/pkg/adapters/datasource"
)

// Dialect is the SQL dialect name used in generation prompts.
const Dialect = "SQL Server"

// Conn is a pooled connection to a tenant SQL Server endpoint.
type Conn struct {
	db *sql.DB
}

// Open creates a database/sql pool for the endpoint in params.
func Open(ctx context.Context, params datasource.ConnectParams) (datasource.TenantConnection, error) {
	cfg, err := FromEndpoint(params.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("sqlserver endpoint config: %w", err)
	}

	db, err := sql.Open(cfg.DriverName(), cfg.ConnectionString(params.ConnectTimeout))
	if err != nil {
		return nil, fmt.Errorf("open sqlserver connection: %w", err)
	}
	if params.MaxConns > 0 {
		db.SetMaxOpenConns(int(params.MaxConns))
		db.SetMaxIdleConns(int(params.MaxConns))
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	return NewConn(db), nil
}

// NewConn wraps an existing *sql.DB.
func NewConn(db *sql.DB) *Conn {
	return &Conn{db: db}
}

func (c *Conn) Dialect() string { return Dialect }

// Ping verifies the server is reachable and the credentials are accepted.
func (c *Conn) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

// Close closes the pool.
func (c *Conn) Close() error {
	return c.db.Close()
}

var _ datasource.TenantConnection = (*Conn)(nil)
