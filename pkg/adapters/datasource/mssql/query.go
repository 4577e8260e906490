package mssql

import (
	"context"
	"database/sql/driver"
	"fmt"
	"strings"

	mssqldb "github.com/microsoft/go-mssqldb"

	"github.com/ekaya-inc/datagenie/pkg/models"
	sqlutil "github.com/ekaya-inc/datagenie/pkg/sql"
)

// Explain compiles sql under SHOWPLAN_TEXT so it is never executed.
// SHOWPLAN must be toggled in its own batch on the same session, so the
// statements run on a pinned connection.
func (c *Conn) Explain(ctx context.Context, sql string) (err error) {
	res := sqlutil.ValidateAndNormalize(sql)
	if res.Error != nil {
		return res.Error
	}
	if res.NormalizedSQL == "" {
		return fmt.Errorf("empty query")
	}

	conn, err := c.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SET SHOWPLAN_TEXT ON"); err != nil {
		return fmt.Errorf("enable showplan: %w", err)
	}
	defer func() {
		// A session left in SHOWPLAN mode would return plans to the next caller,
		// so it is discarded instead of going back to the pool.
		if _, offErr := conn.ExecContext(context.WithoutCancel(ctx), "SET SHOWPLAN_TEXT OFF"); offErr != nil {
			_ = conn.Raw(func(any) error { return driver.ErrBadConn })
			if err == nil {
				err = fmt.Errorf("disable showplan: %w", offErr)
			}
		}
	}()

	rows, err := conn.QueryContext(ctx, res.NormalizedSQL)
	if err != nil {
		return err
	}
	for rows.Next() {
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	return rows.Close()
}

// Query runs sql exactly as given and reads at most maxRows rows.
func (c *Conn) Query(ctx context.Context, sql string, maxRows int) (*models.ExecutionResult, error) {
	res := sqlutil.ValidateAndNormalize(sql)
	if res.Error != nil {
		return nil, res.Error
	}

	rows, err := c.db.QueryContext(ctx, res.NormalizedSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("read column types: %w", err)
	}
	columns := make([]models.ResultColumn, len(colTypes))
	for i, ct := range colTypes {
		columns[i] = models.ResultColumn{Name: ct.Name(), Type: strings.ToUpper(ct.DatabaseTypeName())}
	}

	result := &models.ExecutionResult{
		Columns: columns,
		Rows:    make([]map[string]any, 0),
	}
	for rows.Next() {
		if maxRows > 0 && len(result.Rows) >= maxRows {
			result.Truncated = true
			break
		}
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col.Name] = jsonValue(col.Type, values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if !result.Truncated {
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	result.RowCount = len(result.Rows)
	return result, nil
}

// jsonValue converts driver byte slices into readable values. The driver
// returns uniqueidentifier in SQL Server's mixed-endian byte order.
func jsonValue(dbType string, v any) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	if dbType == "UNIQUEIDENTIFIER" && len(b) == 16 {
		var id mssqldb.UniqueIdentifier
		if err := id.Scan(b); err == nil {
			return id.String()
		}
	}
	return string(b)
}
