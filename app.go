package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/datagenie/migrations"
	"github.com/ekaya-inc/datagenie/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/datagenie/pkg/adapters/datasource/mssql"
	_ "github.com/ekaya-inc/datagenie/pkg/adapters/datasource/postgres"
	"github.com/ekaya-inc/datagenie/pkg/audit"
	"github.com/ekaya-inc/datagenie/pkg/config"
	"github.com/ekaya-inc/datagenie/pkg/crypto"
	"github.com/ekaya-inc/datagenie/pkg/database"
	"github.com/ekaya-inc/datagenie/pkg/handlers"
	"github.com/ekaya-inc/datagenie/pkg/llm"
	"github.com/ekaya-inc/datagenie/pkg/metrics"
	"github.com/ekaya-inc/datagenie/pkg/middleware"
	"github.com/ekaya-inc/datagenie/pkg/repositories"
	"github.com/ekaya-inc/datagenie/pkg/retry"
	"github.com/ekaya-inc/datagenie/pkg/services"
)

// app holds the long-lived resources shared by the subcommands.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	db    *database.DB
	redis *redis.Client
	pools *datasource.PoolRegistry
	cache services.SchemaTextCache

	sync      services.SchemaSyncService
	schema    services.SchemaService
	generator services.SQLGenerator
	gateway   services.ExecutionGateway
}

// openDatabase connects to the engine store and applies pending migrations.
func openDatabase(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*database.DB, error) {
	db, err := database.NewConnection(ctx, database.ConfigFrom(cfg.Database))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to engine store: %w", err)
	}
	if err := database.RunMigrations(db, migrations.FS, logger); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// newApp wires every service. Close releases what it opened.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if cfg.CredentialsKey == "" {
		return nil, fmt.Errorf("CREDENTIALS_KEY is required to open endpoint credentials")
	}
	cipher, err := crypto.NewSecretCipher(cfg.CredentialsKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials key: %w", err)
	}

	if a.db, err = openDatabase(ctx, cfg, logger); err != nil {
		return nil, err
	}

	if cfg.Cache.Backend == "redis" {
		if a.redis, err = database.NewRedisClient(ctx, cfg.Redis); err != nil {
			return nil, err
		}
	}
	if a.cache, err = services.NewSchemaTextCache(cfg.Cache, a.redis, logger); err != nil {
		return nil, err
	}

	client, err := llm.NewClient(cfg.LLM, logger)
	if err != nil {
		return nil, err
	}

	a.pools = datasource.NewPoolRegistry(datasource.RegistryConfig{
		MaxConns:       cfg.TenantPool.MaxConnections,
		IdleTTL:        cfg.TenantPool.IdleTTL,
		ConnectTimeout: cfg.Timeouts.Connect,
	}, clockwork.NewRealClock(), logger)

	users := repositories.NewUserRepository()
	endpoints := repositories.NewEndpointRepository()
	schemaRepo := repositories.NewSchemaRepository()
	historyRepo := repositories.NewQueryHistoryRepository()

	tenantCtx := services.NewTenantContextFunc(a.db)
	directory := services.NewDirectoryContextFunc(a.db)
	auditor := audit.NewSecurityAuditor(logger)

	router := services.NewConnectionRouter(users, endpoints, directory, cipher, a.pools, logger)
	history := services.NewQueryHistoryService(historyRepo, tenantCtx, cfg.History.Enabled, logger)
	formatter := services.NewSchemaFormatter(schemaRepo, tenantCtx, a.cache, logger)
	settings := services.LLMSettings{Temperature: cfg.LLM.Temperature, Timeout: cfg.Timeouts.LLM}

	a.sync = services.NewSchemaSyncService(endpoints, schemaRepo, router, tenantCtx, directory, a.cache,
		services.SchemaSyncConfig{Timeout: cfg.Timeouts.Sync, Retry: retry.WriteConflictConfig()}, logger)
	a.schema = services.NewSchemaService(schemaRepo, formatter, router, tenantCtx, a.cache, auditor, logger)
	a.generator = services.NewSQLGenerator(router, formatter,
		services.NewIntentClassifier(client, settings, logger),
		client, history, auditor,
		services.SQLGeneratorConfig{LLM: settings, PlannerTimeout: cfg.Timeouts.Planner}, logger)
	a.gateway = services.NewExecutionGateway(router, history, auditor,
		services.ExecutionConfig{QueryTimeout: cfg.Timeouts.Query, MaxRows: cfg.TenantPool.MaxResultRows}, logger)

	return a, nil
}

// handler builds the HTTP surface.
func (a *app) handler() http.Handler {
	mux := http.NewServeMux()

	handlers.NewHealthHandler(a.cfg, a.db, a.pools, a.logger).RegisterRoutes(mux)
	handlers.NewSchemaHandler(a.sync, a.schema, a.logger).RegisterRoutes(mux)
	handlers.NewSQLHandler(a.generator, a.gateway, a.logger).RegisterRoutes(mux)
	mux.Handle("GET /metrics", metrics.Handler())

	return middleware.Chain(mux, middleware.Metrics, middleware.RequestLogger(a.logger))
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	if a.pools != nil {
		if err := a.pools.Close(); err != nil {
			a.logger.Warn("Failed to close tenant pools", zap.Error(err))
		}
	}
	if a.cache != nil {
		a.cache.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("Failed to close Redis client", zap.Error(err))
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}
