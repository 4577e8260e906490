package postgres

import (
	"context"
	"fmt"

	"github.com/ekaya-inc/datagenie/pkg/models"
)

// ListDatabases returns user schemas. System catalogs and temp/toast
// namespaces are excluded.
func (c *Conn) ListDatabases(ctx context.Context) ([]string, error) {
	const query = `
		SELECT schema_name
		FROM information_schema.schemata
		WHERE schema_name NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
		  AND schema_name NOT LIKE 'pg\_temp\_%'
		  AND schema_name NOT LIKE 'pg\_toast\_temp\_%'
		ORDER BY schema_name
	`
	return c.queryNames(ctx, "schemas", query)
}

// ListTables returns base tables and views in schema.
func (c *Conn) ListTables(ctx context.Context, schema string) ([]string, error) {
	const query = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1
		  AND table_type IN ('BASE TABLE', 'VIEW')
		ORDER BY table_name
	`
	return c.queryNames(ctx, "tables", query, schema)
}

// ListColumns returns the columns of schema.table in ordinal order.
// Array and user-defined types report their underlying type name.
func (c *Conn) ListColumns(ctx context.Context, schema, table string) ([]models.LiveColumn, error) {
	const query = `
		SELECT
			column_name,
			CASE
				WHEN data_type = 'ARRAY' THEN ltrim(udt_name, '_') || '[]'
				WHEN data_type = 'USER-DEFINED' THEN udt_name
				ELSE data_type
			END AS data_type,
			ordinal_position
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position
	`

	rows, err := c.pool.Query(ctx, query, schema, table)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var columns []models.LiveColumn
	for rows.Next() {
		var col models.LiveColumn
		if err := rows.Scan(&col.Name, &col.DataType, &col.OrdinalPosition); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return columns, nil
}

func (c *Conn) queryNames(ctx context.Context, what, query string, args ...any) ([]string, error) {
	rows, err := c.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", what, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan %s: %w", what, err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", what, err)
	}
	return names, nil
}
