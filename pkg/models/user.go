package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is an organization owning one or more endpoints.
type Tenant struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User maps an identity-provider user id onto its tenant.
type User struct {
	UserID    string    `json:"user_id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
