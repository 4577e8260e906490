package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/datagenie/pkg/database"
	"github.com/ekaya-inc/datagenie/pkg/models"
)

// SchemaRepository provides data access for the schema mirror.
// All methods require a tenant scope; row-level security limits every
// statement to the scoped tenant.
type SchemaRepository interface {
	// Databases
	// ListDatabases returns every mirrored database of an endpoint, active or not.
	ListDatabases(ctx context.Context, endpointID uuid.UUID) ([]*models.MirrorDatabase, error)
	InsertDatabase(ctx context.Context, db *models.MirrorDatabase) error
	SetDatabaseActive(ctx context.Context, id uuid.UUID, active bool) error

	// Tables
	ListTables(ctx context.Context, databaseID uuid.UUID) ([]*models.MirrorTable, error)
	InsertTable(ctx context.Context, table *models.MirrorTable) error
	SetTableActive(ctx context.Context, id uuid.UUID, active bool) error

	// Columns
	ListColumns(ctx context.Context, tableID uuid.UUID) ([]*models.MirrorColumn, error)
	InsertColumn(ctx context.Context, column *models.MirrorColumn) error
	// UpdateColumn rewrites the declared type and ordinal and marks the column active.
	UpdateColumn(ctx context.Context, column *models.MirrorColumn) error
	SetColumnActive(ctx context.Context, id uuid.UUID, active bool) error

	// ListActiveColumns returns the active projection of one endpoint used for
	// prompt grounding: columns whose table, database, and endpoint are all
	// active, in database, table, ordinal, name order.
	ListActiveColumns(ctx context.Context, tenantID, endpointID uuid.UUID) ([]models.ActiveColumn, error)
	// UpdateDescription sets a table or column description. Returns false when
	// nothing matched.
	UpdateDescription(ctx context.Context, tenantID uuid.UUID, update models.DescriptionUpdate) (bool, error)
}

type schemaRepository struct{}

// NewSchemaRepository creates a new schema mirror repository.
func NewSchemaRepository() SchemaRepository {
	return &schemaRepository{}
}

var _ SchemaRepository = (*schemaRepository)(nil)

// ============================================================================
// Databases
// ============================================================================

func (r *schemaRepository) ListDatabases(ctx context.Context, endpointID uuid.UUID) ([]*models.MirrorDatabase, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT id, tenant_id, endpoint_id, name, description, is_active, created_at, updated_at
		FROM dg_mirror_databases
		WHERE endpoint_id = $1
		ORDER BY name`, endpointID)
	if err != nil {
		return nil, fmt.Errorf("failed to list mirror databases: %w", err)
	}

	dbs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.MirrorDatabase, error) {
		var d models.MirrorDatabase
		err := row.Scan(&d.ID, &d.TenantID, &d.EndpointID, &d.Name, &d.Description, &d.IsActive, &d.CreatedAt, &d.UpdatedAt)
		return &d, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan mirror databases: %w", err)
	}
	return dbs, nil
}

func (r *schemaRepository) InsertDatabase(ctx context.Context, db *models.MirrorDatabase) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	if db.ID == uuid.Nil {
		db.ID = uuid.New()
	}
	db.IsActive = true

	// A concurrent pass may have inserted the same name; reuse that row.
	err := scope.Conn.QueryRow(ctx, `
		INSERT INTO dg_mirror_databases (id, tenant_id, endpoint_id, name, is_active)
		VALUES ($1, $2, $3, $4, true)
		ON CONFLICT (endpoint_id, name) DO UPDATE SET is_active = true
		RETURNING id, created_at, updated_at`,
		db.ID, db.TenantID, db.EndpointID, db.Name,
	).Scan(&db.ID, &db.CreatedAt, &db.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert mirror database: %w", err)
	}
	return nil
}

func (r *schemaRepository) SetDatabaseActive(ctx context.Context, id uuid.UUID, active bool) error {
	return setActive(ctx, "dg_mirror_databases", id, active)
}

// ============================================================================
// Tables
// ============================================================================

func (r *schemaRepository) ListTables(ctx context.Context, databaseID uuid.UUID) ([]*models.MirrorTable, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT id, tenant_id, database_id, name, description, is_active, created_at, updated_at
		FROM dg_mirror_tables
		WHERE database_id = $1
		ORDER BY name`, databaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list mirror tables: %w", err)
	}

	tables, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.MirrorTable, error) {
		var t models.MirrorTable
		err := row.Scan(&t.ID, &t.TenantID, &t.DatabaseID, &t.Name, &t.Description, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
		return &t, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan mirror tables: %w", err)
	}
	return tables, nil
}

func (r *schemaRepository) InsertTable(ctx context.Context, table *models.MirrorTable) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	if table.ID == uuid.Nil {
		table.ID = uuid.New()
	}
	table.IsActive = true

	err := scope.Conn.QueryRow(ctx, `
		INSERT INTO dg_mirror_tables (id, tenant_id, database_id, name, is_active)
		VALUES ($1, $2, $3, $4, true)
		ON CONFLICT (database_id, name) DO UPDATE SET is_active = true
		RETURNING id, created_at, updated_at`,
		table.ID, table.TenantID, table.DatabaseID, table.Name,
	).Scan(&table.ID, &table.CreatedAt, &table.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert mirror table: %w", err)
	}
	return nil
}

func (r *schemaRepository) SetTableActive(ctx context.Context, id uuid.UUID, active bool) error {
	return setActive(ctx, "dg_mirror_tables", id, active)
}

// ============================================================================
// Columns
// ============================================================================

func (r *schemaRepository) ListColumns(ctx context.Context, tableID uuid.UUID) ([]*models.MirrorColumn, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT id, tenant_id, table_id, name, data_type, ordinal_position, description, is_active, created_at, updated_at
		FROM dg_mirror_columns
		WHERE table_id = $1
		ORDER BY ordinal_position, name`, tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to list mirror columns: %w", err)
	}

	columns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.MirrorColumn, error) {
		var c models.MirrorColumn
		err := row.Scan(&c.ID, &c.TenantID, &c.TableID, &c.Name, &c.DataType, &c.OrdinalPosition,
			&c.Description, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
		return &c, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan mirror columns: %w", err)
	}
	return columns, nil
}

func (r *schemaRepository) InsertColumn(ctx context.Context, column *models.MirrorColumn) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	if column.ID == uuid.Nil {
		column.ID = uuid.New()
	}
	column.IsActive = true

	err := scope.Conn.QueryRow(ctx, `
		INSERT INTO dg_mirror_columns (id, tenant_id, table_id, name, data_type, ordinal_position, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, true)
		ON CONFLICT (table_id, name) DO UPDATE
		SET data_type = EXCLUDED.data_type,
		    ordinal_position = EXCLUDED.ordinal_position,
		    is_active = true
		RETURNING id, created_at, updated_at`,
		column.ID, column.TenantID, column.TableID, column.Name, column.DataType, column.OrdinalPosition,
	).Scan(&column.ID, &column.CreatedAt, &column.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert mirror column: %w", err)
	}
	return nil
}

func (r *schemaRepository) UpdateColumn(ctx context.Context, column *models.MirrorColumn) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	_, err := scope.Conn.Exec(ctx, `
		UPDATE dg_mirror_columns
		SET data_type = $2, ordinal_position = $3, is_active = true
		WHERE id = $1`,
		column.ID, column.DataType, column.OrdinalPosition)
	if err != nil {
		return fmt.Errorf("failed to update mirror column: %w", err)
	}
	column.IsActive = true
	return nil
}

func (r *schemaRepository) SetColumnActive(ctx context.Context, id uuid.UUID, active bool) error {
	return setActive(ctx, "dg_mirror_columns", id, active)
}

// setActive flips is_active on one mirror row. table is always a package constant.
func setActive(ctx context.Context, table string, id uuid.UUID, active bool) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	_, err := scope.Conn.Exec(ctx,
		`UPDATE `+table+` SET is_active = $2 WHERE id = $1 AND is_active <> $2`, id, active)
	if err != nil {
		return fmt.Errorf("failed to set %s active=%t: %w", table, active, err)
	}
	return nil
}

// ============================================================================
// Projection and descriptions
// ============================================================================

func (r *schemaRepository) ListActiveColumns(ctx context.Context, tenantID, endpointID uuid.UUID) ([]models.ActiveColumn, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT d.name, t.name, t.description, c.name, c.data_type, c.ordinal_position, c.description
		FROM dg_mirror_columns c
		JOIN dg_mirror_tables t ON t.id = c.table_id
		JOIN dg_mirror_databases d ON d.id = t.database_id
		JOIN dg_endpoints e ON e.id = d.endpoint_id
		WHERE c.tenant_id = $1 AND d.endpoint_id = $2
		  AND c.is_active AND t.is_active AND d.is_active AND e.is_active
		ORDER BY d.name, t.name, c.ordinal_position, c.name`, tenantID, endpointID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active columns: %w", err)
	}

	columns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.ActiveColumn, error) {
		var c models.ActiveColumn
		err := row.Scan(&c.DatabaseName, &c.TableName, &c.TableDescription, &c.ColumnName,
			&c.DataType, &c.OrdinalPosition, &c.ColumnDescription)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan active columns: %w", err)
	}
	return columns, nil
}

func (r *schemaRepository) UpdateDescription(ctx context.Context, tenantID uuid.UUID, update models.DescriptionUpdate) (bool, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return false, fmt.Errorf("no tenant scope in context")
	}

	var query string
	args := []any{tenantID, update.Database, update.Table, update.Description}
	if update.Column == "" {
		query = `
			UPDATE dg_mirror_tables t
			SET description = $4
			FROM dg_mirror_databases d
			WHERE t.database_id = d.id
			  AND t.tenant_id = $1 AND d.name = $2 AND t.name = $3`
	} else {
		query = `
			UPDATE dg_mirror_columns c
			SET description = $4
			FROM dg_mirror_tables t, dg_mirror_databases d
			WHERE c.table_id = t.id AND t.database_id = d.id
			  AND c.tenant_id = $1 AND d.name = $2 AND t.name = $3 AND c.name = $5`
		args = append(args, update.Column)
	}

	result, err := scope.Conn.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update description: %w", err)
	}
	return result.RowsAffected() > 0, nil
}
