package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ekaya-inc/datagenie/pkg/database"
	"github.com/ekaya-inc/datagenie/pkg/models"
)

// QueryHistoryRepository writes the query audit trail. Nothing reads it back.
type QueryHistoryRepository interface {
	Create(ctx context.Context, entry *models.QueryHistoryEntry) error
}

type queryHistoryRepository struct{}

func NewQueryHistoryRepository() QueryHistoryRepository {
	return &queryHistoryRepository{}
}

var _ QueryHistoryRepository = (*queryHistoryRepository)(nil)

func (r *queryHistoryRepository) Create(ctx context.Context, entry *models.QueryHistoryEntry) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	err := scope.Conn.QueryRow(ctx, `
		INSERT INTO dg_query_history (id, tenant_id, user_id, prompt, generated_sql, outcome)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		entry.ID, entry.TenantID, entry.UserID, entry.Prompt, entry.GeneratedSQL, entry.Outcome,
	).Scan(&entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create query history entry: %w", err)
	}

	return nil
}
