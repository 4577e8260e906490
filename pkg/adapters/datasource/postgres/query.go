package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ekaya-inc/datagenie/pkg/models"
	sqlutil "github.com/ekaya-inc/datagenie/pkg/sql"
)

// Explain asks the planner to validate sql without running it.
func (c *Conn) Explain(ctx context.Context, sql string) error {
	res := sqlutil.ValidateAndNormalize(sql)
	if res.Error != nil {
		return res.Error
	}
	if res.NormalizedSQL == "" {
		return fmt.Errorf("empty query")
	}

	rows, err := c.pool.Query(ctx, "EXPLAIN "+res.NormalizedSQL)
	if err != nil {
		return err
	}
	// EXPLAIN errors can surface on the first row read.
	rows.Close()
	return rows.Err()
}

// Query runs sql exactly as given and reads at most maxRows rows.
func (c *Conn) Query(ctx context.Context, sql string, maxRows int) (*models.ExecutionResult, error) {
	res := sqlutil.ValidateAndNormalize(sql)
	if res.Error != nil {
		return nil, res.Error
	}

	rows, err := c.pool.Query(ctx, res.NormalizedSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	typeMap := rows.Conn().TypeMap()
	fields := rows.FieldDescriptions()
	columns := make([]models.ResultColumn, len(fields))
	for i, fd := range fields {
		typeName := "UNKNOWN"
		if t, ok := typeMap.TypeForOID(fd.DataTypeOID); ok {
			typeName = strings.ToUpper(t.Name)
		}
		columns[i] = models.ResultColumn{Name: fd.Name, Type: typeName}
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
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row values: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col.Name] = jsonValue(values[i])
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

// jsonValue converts driver values that would otherwise encode poorly.
func jsonValue(v any) any {
	switch val := v.(type) {
	case [16]byte:
		return uuid.UUID(val).String()
	default:
		return v
	}
}
