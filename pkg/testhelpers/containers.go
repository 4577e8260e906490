// Package testhelpers provides shared PostgreSQL containers for integration tests.
package testhelpers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/ekaya-inc/datagenie/migrations"
	"github.com/ekaya-inc/datagenie/pkg/database"
)

const (
	postgresImage = "postgres:16-alpine"
	superUser     = "postgres"
	superPassword = "test_password"

	// EngineRole owns the engine store. It is not a superuser, so row-level
	// security applies to it.
	EngineRole     = "datagenie"
	enginePassword = "datagenie_password"
	engineDatabase = "datagenie_test"

	// TenantDatabase plays the part of a tenant's own database.
	TenantDatabase = "tenant_data"
)

// TestDB is a shared PostgreSQL container.
type TestDB struct {
	Container testcontainers.Container
	Host      string
	Port      int
	// Tenant is a superuser pool on TenantDatabase.
	Tenant *pgxpool.Pool
}

var (
	sharedTestDB     *TestDB
	sharedTestDBOnce sync.Once
	sharedTestDBErr  error
)

// GetTestDB returns the container shared by every test in the run.
func GetTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedTestDBOnce.Do(func() {
		sharedTestDB, sharedTestDBErr = setupTestDB()
	})
	if sharedTestDBErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedTestDBErr)
	}
	return sharedTestDB
}

func setupTestDB() (*TestDB, error) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        postgresImage,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     superUser,
				"POSTGRES_PASSWORD": superPassword,
				"POSTGRES_DB":       "postgres",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}
	mapped, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	admin, err := pgxpool.New(ctx, superURL(host, mapped.Int(), "postgres"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect as superuser: %w", err)
	}
	defer admin.Close()

	for _, stmt := range []string{
		fmt.Sprintf("CREATE ROLE %s LOGIN PASSWORD '%s' NOSUPERUSER NOBYPASSRLS", EngineRole, enginePassword),
		fmt.Sprintf("CREATE DATABASE %s OWNER %s", engineDatabase, EngineRole),
		fmt.Sprintf("CREATE DATABASE %s", TenantDatabase),
	} {
		if _, err := admin.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("bootstrap %q: %w", stmt, err)
		}
	}

	tenant, err := pgxpool.New(ctx, superURL(host, mapped.Int(), TenantDatabase))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to tenant database: %w", err)
	}

	return &TestDB{
		Container: container,
		Host:      host,
		Port:      mapped.Int(),
		Tenant:    tenant,
	}, nil
}

func superURL(host string, port int, db string) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", superUser, superPassword, host, port, db)
}

// TenantCredentials returns the username and password for TenantDatabase.
func (db *TestDB) TenantCredentials() (string, string) {
	return superUser, superPassword
}

// EngineDB is the engine store with migrations applied.
type EngineDB struct {
	DB      *database.DB
	ConnStr string
}

var (
	sharedEngineDB     *EngineDB
	sharedEngineDBOnce sync.Once
	sharedEngineDBErr  error
)

// GetEngineDB returns the migrated engine store shared by every test in the run.
func GetEngineDB(t *testing.T) *EngineDB {
	t.Helper()

	testDB := GetTestDB(t)

	sharedEngineDBOnce.Do(func() {
		sharedEngineDB, sharedEngineDBErr = setupEngineDB(testDB)
	})
	if sharedEngineDBErr != nil {
		t.Fatalf("Failed to setup engine database: %v", sharedEngineDBErr)
	}
	return sharedEngineDB
}

func setupEngineDB(testDB *TestDB) (*EngineDB, error) {
	ctx := context.Background()

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		EngineRole, enginePassword, testDB.Host, testDB.Port, engineDatabase)

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            connStr,
		MaxConnections: 10,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to engine database: %w", err)
	}

	if err := database.RunMigrations(db, migrations.FS, zap.NewNop()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &EngineDB{DB: db, ConnStr: connStr}, nil
}
