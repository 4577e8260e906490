package models

import (
	"time"

	"github.com/google/uuid"
)

// MirrorDatabase is a mirrored schema/namespace inside an endpoint.
type MirrorDatabase struct {
	ID          uuid.UUID `json:"id"`
	TenantID    uuid.UUID `json:"tenant_id"`
	EndpointID  uuid.UUID `json:"endpoint_id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MirrorTable is a mirrored table.
type MirrorTable struct {
	ID          uuid.UUID `json:"id"`
	TenantID    uuid.UUID `json:"tenant_id"`
	DatabaseID  uuid.UUID `json:"database_id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MirrorColumn is a mirrored column with its declared type.
type MirrorColumn struct {
	ID              uuid.UUID `json:"id"`
	TenantID        uuid.UUID `json:"tenant_id"`
	TableID         uuid.UUID `json:"table_id"`
	Name            string    `json:"name"`
	DataType        string    `json:"data_type"`
	OrdinalPosition int       `json:"ordinal_position"`
	Description     *string   `json:"description,omitempty"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// LiveColumn is a column as reported by the tenant database catalog.
type LiveColumn struct {
	Name            string
	DataType        string
	OrdinalPosition int
}

// ActiveColumn is one row of the active mirror projection for a tenant,
// flattened with its table and database names.
type ActiveColumn struct {
	DatabaseName      string  `json:"database"`
	TableName         string  `json:"table"`
	TableDescription  *string `json:"table_description,omitempty"`
	ColumnName        string  `json:"column"`
	DataType          string  `json:"data_type"`
	OrdinalPosition   int     `json:"ordinal_position"`
	ColumnDescription *string `json:"description,omitempty"`
}

// DescriptionUpdate sets a human description on a mirrored table or column.
// An empty Column targets the table itself.
type DescriptionUpdate struct {
	Database    string `json:"database"`
	Table       string `json:"table"`
	Column      string `json:"column,omitempty"`
	Description string `json:"description"`
}

// LevelCounts tallies what one sync pass did at one tree level.
type LevelCounts struct {
	Inserted    int `json:"inserted"`
	Reactivated int `json:"reactivated"`
	Updated     int `json:"updated"`
	Unchanged   int `json:"unchanged"`
	Deactivated int `json:"deactivated"`
}

// Upserted is the number of live entities confirmed in the mirror.
func (c LevelCounts) Upserted() int {
	return c.Inserted + c.Reactivated + c.Updated + c.Unchanged
}

// Add accumulates other into c.
func (c *LevelCounts) Add(other LevelCounts) {
	c.Inserted += other.Inserted
	c.Reactivated += other.Reactivated
	c.Updated += other.Updated
	c.Unchanged += other.Unchanged
	c.Deactivated += other.Deactivated
}

// RefreshResult summarizes a schema sync pass for one endpoint.
type RefreshResult struct {
	EndpointID        uuid.UUID   `json:"endpoint_id"`
	DatabasesUpserted int         `json:"databases_upserted"`
	TablesUpserted    int         `json:"tables_upserted"`
	ColumnsUpserted   int         `json:"columns_upserted"`
	Databases         LevelCounts `json:"databases"`
	Tables            LevelCounts `json:"tables"`
	Columns           LevelCounts `json:"columns"`
	DurationMs        int64       `json:"duration_ms"`
}

// SchemaView is the active mirror of a tenant's current endpoint along with
// its prompt rendering. EndpointID is nil when the tenant has no active endpoint.
type SchemaView struct {
	TenantID   uuid.UUID      `json:"tenant_id"`
	EndpointID *uuid.UUID     `json:"endpoint_id,omitempty"`
	Columns    []ActiveColumn `json:"columns"`
	Text       string         `json:"text"`
}

// DescriptionResult reports how many description updates matched a mirror row.
type DescriptionResult struct {
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}
