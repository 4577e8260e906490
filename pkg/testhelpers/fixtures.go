package testhelpers

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/datagenie/pkg/crypto"
	"github.com/ekaya-inc/datagenie/pkg/models"
)

// NewCipher returns a SecretCipher with a random key.
func NewCipher(t *testing.T) *crypto.SecretCipher {
	t.Helper()
	raw := make([]byte, 32)
	_, err := rand.Read(raw)
	require.NoError(t, err)
	c, err := crypto.NewSecretCipher(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	return c
}

// Fixture is a seeded tenant with one user and one endpoint pointing at the
// container's tenant database.
type Fixture struct {
	TenantID uuid.UUID
	UserID   string
	Endpoint *models.Endpoint
}

// SeedTenant inserts a tenant, a user, and an endpoint. Rows are removed on cleanup.
func SeedTenant(t *testing.T, engine *EngineDB, testDB *TestDB, cipher *crypto.SecretCipher) *Fixture {
	t.Helper()
	ctx := context.Background()

	f := &Fixture{
		TenantID: uuid.New(),
		UserID:   "user-" + uuid.NewString(),
	}
	endpointID := uuid.New()

	user, password := testDB.TenantCredentials()
	sealed, err := cipher.Seal(password, endpointID.String())
	require.NoError(t, err)

	options := map[string]any{"sslmode": "disable"}
	optionsJSON, err := json.Marshal(options)
	require.NoError(t, err)

	_, err = engine.DB.Exec(ctx, `INSERT INTO dg_tenants (id, name) VALUES ($1, $2)`, f.TenantID, "tenant "+f.TenantID.String()[:8])
	require.NoError(t, err)
	_, err = engine.DB.Exec(ctx, `INSERT INTO dg_users (user_id, tenant_id) VALUES ($1, $2)`, f.UserID, f.TenantID)
	require.NoError(t, err)
	_, err = engine.DB.Exec(ctx, `
		INSERT INTO dg_endpoints (id, tenant_id, endpoint_type, host, port, username, password_encrypted, database_name, options)
		VALUES ($1, $2, 'postgres', $3, $4, $5, $6, $7, $8)`,
		endpointID, f.TenantID, testDB.Host, testDB.Port, user, sealed, TenantDatabase, optionsJSON)
	require.NoError(t, err)

	f.Endpoint = &models.Endpoint{
		ID:                endpointID,
		TenantID:          f.TenantID,
		EndpointType:      models.EndpointTypePostgres,
		Host:              testDB.Host,
		Port:              testDB.Port,
		Username:          user,
		PasswordEncrypted: sealed,
		DatabaseName:      TenantDatabase,
		Options:           options,
		IsActive:          true,
	}

	t.Cleanup(func() {
		// Cascades to users, endpoints, mirror rows, and history.
		_, _ = engine.DB.Exec(context.Background(), `DELETE FROM dg_tenants WHERE id = $1`, f.TenantID)
	})
	return f
}

// TenantSchema creates an isolated schema in the tenant database and drops it on cleanup.
// Returns the schema name.
func TenantSchema(t *testing.T, testDB *TestDB, ddl ...string) string {
	t.Helper()
	ctx := context.Background()

	schema := "t_" + uuid.NewString()[:8]
	_, err := testDB.Tenant.Exec(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = testDB.Tenant.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
	})

	for _, stmt := range ddl {
		_, err := testDB.Tenant.Exec(ctx, "SET search_path TO "+schema+"; "+stmt)
		require.NoError(t, err)
	}
	return schema
}
