package models

import (
	"time"

	"github.com/google/uuid"
)

// History outcomes recorded in the query audit trail.
const (
	HistoryAcceptedSQL     = "accepted_sql"
	HistoryBlocked         = "blocked"
	HistoryRejected        = "rejected"
	HistoryExecuted        = "executed"
	HistoryExecutionFailed = "execution_failed"
)

// QueryHistoryEntry is a write-only audit record of generated or executed SQL.
type QueryHistoryEntry struct {
	ID           uuid.UUID `json:"id"`
	TenantID     uuid.UUID `json:"tenant_id"`
	UserID       string    `json:"user_id"`
	Prompt       string    `json:"prompt"`
	GeneratedSQL string    `json:"generated_sql"`
	Outcome      string    `json:"outcome"`
	CreatedAt    time.Time `json:"created_at"`
}
