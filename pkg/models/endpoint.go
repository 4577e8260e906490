package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Endpoint types supported by the tenant database adapters.
const (
	EndpointTypePostgres  = "postgres"
	EndpointTypeSQLServer = "sqlserver"
)

// Endpoint is a tenant's reachable database server.
// PasswordEncrypted is sealed at rest; Password is only populated after the
// router decrypts it and is never serialized.
type Endpoint struct {
	ID                uuid.UUID      `json:"id"`
	TenantID          uuid.UUID      `json:"tenant_id"`
	EndpointType      string         `json:"endpoint_type"`
	Host              string         `json:"host"`
	Port              int            `json:"port"`
	Username          string         `json:"username"`
	PasswordEncrypted string         `json:"-"`
	Password          string         `json:"-"`
	DatabaseName      string         `json:"database_name"`
	Options           map[string]any `json:"options,omitempty"`
	IsActive          bool           `json:"is_active"`
	LastSyncedAt      *time.Time     `json:"last_synced_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// Fingerprint identifies the connection parameters of the endpoint.
// A pool built for one fingerprint is stale once the endpoint's address or
// credentials change; sync bookkeeping does not alter it.
func (e *Endpoint) Fingerprint() string {
	h := sha256.New()
	for _, part := range []string{
		e.EndpointType, e.Host, strconv.Itoa(e.Port), e.Username, e.PasswordEncrypted, e.DatabaseName,
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	if len(e.Options) > 0 {
		// json.Marshal sorts map keys.
		opts, _ := json.Marshal(e.Options)
		h.Write(opts)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Option returns a string option or def when it is absent.
func (e *Endpoint) Option(key, def string) string {
	if v, ok := e.Options[key].(string); ok && v != "" {
		return v
	}
	return def
}
