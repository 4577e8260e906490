package mssql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ekaya-inc/datagenie/pkg/models"
)

// ListDatabases returns user schemas. Built-in schemas and the fixed
// db_* role schemas are excluded.
func (c *Conn) ListDatabases(ctx context.Context) ([]string, error) {
	const query = `
	SET NOCOUNT ON;
	SELECT s.name
	FROM sys.schemas s
	WHERE s.name NOT IN ('sys', 'INFORMATION_SCHEMA', 'guest')
	  AND s.name NOT LIKE 'db[_]%'
	ORDER BY s.name
	`
	return c.queryNames(ctx, "schemas", query)
}

// ListTables returns user tables and views in schema.
func (c *Conn) ListTables(ctx context.Context, schema string) ([]string, error) {
	const query = `
	SET NOCOUNT ON;
	SELECT o.name
	FROM sys.objects o
	WHERE o.schema_id = SCHEMA_ID(@schema)
	  AND o.type IN ('U', 'V')
	  AND o.is_ms_shipped = 0
	ORDER BY o.name
	`
	return c.queryNames(ctx, "tables", query, sql.Named("schema", schema))
}

// ListColumns returns the columns of schema.table in ordinal order.
func (c *Conn) ListColumns(ctx context.Context, schema, table string) ([]models.LiveColumn, error) {
	const query = `
	SET NOCOUNT ON;
	SELECT
	    c.name AS column_name,
	    tp.name AS data_type,
	    c.column_id AS ordinal_position
	FROM sys.columns c
	INNER JOIN sys.types tp ON c.user_type_id = tp.user_type_id
	WHERE c.object_id = OBJECT_ID(QUOTENAME(@schema) + N'.' + QUOTENAME(@table))
	ORDER BY c.column_id
	`

	rows, err := c.db.QueryContext(ctx, query,
		sql.Named("schema", schema),
		sql.Named("table", table),
	)
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
	rows, err := c.db.QueryContext(ctx, query, args...)
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
