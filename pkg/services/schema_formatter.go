package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/datagenie/pkg/models"
	"github.com/ekaya-inc/datagenie/pkg/repositories"
)

// NoDescription stands in for a column without a human description.
const NoDescription = "No description"

// SchemaFormatter renders the active mirror of one tenant endpoint as prompt
// text. Callers pass the endpoint they will plan against, so the prompt never
// names tables another endpoint of the tenant holds.
type SchemaFormatter interface {
	// Format returns one block per active table, or "" when nothing is active.
	Format(ctx context.Context, tenantID, endpointID uuid.UUID) (string, error)
	// ActiveColumns returns the rows Format renders.
	ActiveColumns(ctx context.Context, tenantID, endpointID uuid.UUID) ([]models.ActiveColumn, error)
}

type schemaFormatter struct {
	schema    repositories.SchemaRepository
	tenantCtx TenantContextFunc
	cache     SchemaTextCache
	logger    *zap.Logger
}

// NewSchemaFormatter creates a formatter. cache may be nil.
func NewSchemaFormatter(
	schema repositories.SchemaRepository,
	tenantCtx TenantContextFunc,
	cache SchemaTextCache,
	logger *zap.Logger,
) SchemaFormatter {
	if cache == nil {
		cache = NoopSchemaCache{}
	}
	return &schemaFormatter{
		schema:    schema,
		tenantCtx: tenantCtx,
		cache:     cache,
		logger:    logger.Named("schema-formatter"),
	}
}

var _ SchemaFormatter = (*schemaFormatter)(nil)

func (f *schemaFormatter) Format(ctx context.Context, tenantID, endpointID uuid.UUID) (string, error) {
	if text, ok := f.cache.Get(ctx, tenantID, endpointID); ok {
		return text, nil
	}

	columns, err := f.ActiveColumns(ctx, tenantID, endpointID)
	if err != nil {
		return "", err
	}

	text := FormatSchema(columns)
	f.cache.Set(ctx, tenantID, endpointID, text)

	f.logger.Debug("Formatted tenant schema",
		zap.String("tenant_id", tenantID.String()),
		zap.String("endpoint_id", endpointID.String()),
		zap.Int("columns", len(columns)),
		zap.Int("chars", len(text)))
	return text, nil
}

func (f *schemaFormatter) ActiveColumns(ctx context.Context, tenantID, endpointID uuid.UUID) ([]models.ActiveColumn, error) {
	tenantCtx, cleanup, err := f.tenantCtx(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire tenant connection: %w", err)
	}
	defer cleanup()

	columns, err := f.schema.ListActiveColumns(tenantCtx, tenantID, endpointID)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema mirror: %w", err)
	}
	return columns, nil
}

// FormatSchema renders columns, which must already be ordered by database,
// table, and ordinal:
//
//	Table: sales.orders
//	- id (INTEGER): No description
//	- total (NUMERIC): Order total in cents
func FormatSchema(columns []models.ActiveColumn) string {
	var b strings.Builder
	var current string
	for _, c := range columns {
		table := c.DatabaseName + "." + c.TableName
		if table != current {
			if current != "" {
				b.WriteString("\n")
			}
			b.WriteString("Table: ")
			b.WriteString(table)
			b.WriteString("\n")
			current = table
		}

		description := NoDescription
		if c.ColumnDescription != nil && strings.TrimSpace(*c.ColumnDescription) != "" {
			description = strings.TrimSpace(*c.ColumnDescription)
		}
		fmt.Fprintf(&b, "- %s (%s): %s\n", c.ColumnName, strings.ToUpper(c.DataType), description)
	}
	return strings.TrimSuffix(b.String(), "\n")
}
