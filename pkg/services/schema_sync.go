package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/datagenie/pkg/adapters/datasource"
	"github.com/ekaya-inc/datagenie/pkg/apperrors"
	"github.com/ekaya-inc/datagenie/pkg/logging"
	"github.com/ekaya-inc/datagenie/pkg/metrics"
	"github.com/ekaya-inc/datagenie/pkg/models"
	"github.com/ekaya-inc/datagenie/pkg/repositories"
	"github.com/ekaya-inc/datagenie/pkg/retry"
)

// Mirror levels, used in logs and metric labels.
const (
	levelDatabase = "database"
	levelTable    = "table"
	levelColumn   = "column"
)

// SchemaSyncService reconciles a tenant endpoint's live catalog into the mirror.
type SchemaSyncService interface {
	// Refresh runs one sync pass for the endpoint.
	Refresh(ctx context.Context, endpointID uuid.UUID) (*models.RefreshResult, error)
}

// SchemaSyncConfig tunes a sync pass.
type SchemaSyncConfig struct {
	// Timeout bounds the whole pass. Zero means no extra deadline.
	Timeout time.Duration
	// Retry is the write-conflict budget for each mirror write.
	Retry retry.Config
}

type schemaSyncService struct {
	endpoints repositories.EndpointRepository
	schema    repositories.SchemaRepository
	router    ConnectionRouter
	tenantCtx TenantContextFunc
	directory DirectoryContextFunc
	cache     SchemaTextCache
	cfg       SchemaSyncConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewSchemaSyncService creates the synchronizer. cache may be nil.
func NewSchemaSyncService(
	endpoints repositories.EndpointRepository,
	schema repositories.SchemaRepository,
	router ConnectionRouter,
	tenantCtx TenantContextFunc,
	directory DirectoryContextFunc,
	cache SchemaTextCache,
	cfg SchemaSyncConfig,
	logger *zap.Logger,
) SchemaSyncService {
	if cache == nil {
		cache = NoopSchemaCache{}
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.WriteConflictConfig()
	}
	return &schemaSyncService{
		endpoints: endpoints,
		schema:    schema,
		router:    router,
		tenantCtx: tenantCtx,
		directory: directory,
		cache:     cache,
		cfg:       cfg,
		logger:    logger.Named("schema-sync"),
		now:       time.Now,
	}
}

var _ SchemaSyncService = (*schemaSyncService)(nil)

func (s *schemaSyncService) Refresh(ctx context.Context, endpointID uuid.UUID) (result *models.RefreshResult, err error) {
	start := s.now()
	defer func() {
		metrics.SyncDuration.WithLabelValues(syncResultLabel(err)).Observe(s.now().Sub(start).Seconds())
	}()

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	endpoint, err := s.loadEndpoint(ctx, endpointID)
	if err != nil {
		return nil, err
	}

	conn, err := s.router.Connect(ctx, endpoint)
	if err != nil {
		if errors.Is(err, apperrors.ErrConnection) {
			s.markInactive(ctx, endpoint)
		}
		return nil, err
	}
	defer conn.Close()

	tenantCtx, cleanup, err := s.tenantCtx(ctx, endpoint.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire tenant connection: %w", err)
	}
	defer cleanup()

	pass := &syncPass{
		s:        s,
		conn:     conn,
		endpoint: endpoint,
		result:   &models.RefreshResult{EndpointID: endpoint.ID},
	}
	if err := pass.run(tenantCtx); err != nil {
		s.logger.Error("Schema sync failed",
			zap.String("endpoint_id", endpoint.ID.String()),
			zap.String("tenant_id", endpoint.TenantID.String()),
			zap.String("error", logging.SanitizeError(err)))
		return nil, err
	}

	syncedAt := s.now()
	err = pass.write(tenantCtx, func() error {
		return s.endpoints.MarkSynced(tenantCtx, endpoint.ID, syncedAt)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to mark endpoint synced: %w", err)
	}
	s.cache.Invalidate(ctx, endpoint.TenantID)

	result = pass.result
	result.DatabasesUpserted = result.Databases.Upserted()
	result.TablesUpserted = result.Tables.Upserted()
	result.ColumnsUpserted = result.Columns.Upserted()
	result.DurationMs = s.now().Sub(start).Milliseconds()

	for level, counts := range map[string]models.LevelCounts{
		levelDatabase: result.Databases,
		levelTable:    result.Tables,
		levelColumn:   result.Columns,
	} {
		recordChanges(level, counts)
	}

	s.logger.Info("Schema sync completed",
		zap.String("endpoint_id", endpoint.ID.String()),
		zap.String("tenant_id", endpoint.TenantID.String()),
		zap.Int("databases_upserted", result.DatabasesUpserted),
		zap.Int("tables_upserted", result.TablesUpserted),
		zap.Int("columns_upserted", result.ColumnsUpserted),
		zap.Int("tables_deactivated", result.Tables.Deactivated),
		zap.Int("columns_deactivated", result.Columns.Deactivated),
		zap.Int64("duration_ms", result.DurationMs))

	return result, nil
}

func (s *schemaSyncService) loadEndpoint(ctx context.Context, endpointID uuid.UUID) (*models.Endpoint, error) {
	dirCtx, cleanup, err := s.directory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire directory connection: %w", err)
	}
	defer cleanup()

	endpoint, err := s.endpoints.GetByID(dirCtx, endpointID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown endpoint %s", apperrors.ErrTenantNotFound, endpointID)
		}
		return nil, err
	}
	return endpoint, nil
}

// markInactive records an unreachable endpoint. Failure is logged only; the
// connection error is what the caller needs to see.
func (s *schemaSyncService) markInactive(ctx context.Context, endpoint *models.Endpoint) {
	dirCtx, cleanup, err := s.directory(context.WithoutCancel(ctx))
	if err == nil {
		defer cleanup()
		err = s.endpoints.MarkInactive(dirCtx, endpoint.ID)
	}
	if err != nil {
		s.logger.Warn("Failed to mark unreachable endpoint inactive",
			zap.String("endpoint_id", endpoint.ID.String()),
			zap.Error(err))
		return
	}
	s.logger.Warn("Endpoint unreachable, marked inactive",
		zap.String("endpoint_id", endpoint.ID.String()),
		zap.String("tenant_id", endpoint.TenantID.String()))
}

func syncResultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, apperrors.ErrConnection):
		return "connection_error"
	case errors.Is(err, apperrors.ErrTransientWriteConflict):
		return "write_conflict"
	case errors.Is(err, apperrors.ErrTenantNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func recordChanges(level string, c models.LevelCounts) {
	for change, n := range map[string]int{
		"inserted":    c.Inserted,
		"reactivated": c.Reactivated,
		"updated":     c.Updated,
		"deactivated": c.Deactivated,
	} {
		if n > 0 {
			metrics.SyncChanges.WithLabelValues(level, change).Add(float64(n))
		}
	}
}

// syncPass walks one endpoint top-down. Children are only listed for parents
// that are active after their own level was reconciled.
type syncPass struct {
	s        *schemaSyncService
	conn     datasource.TenantConnection
	endpoint *models.Endpoint
	result   *models.RefreshResult
}

func (p *syncPass) run(ctx context.Context) error {
	databases, err := p.syncDatabases(ctx)
	if err != nil {
		return err
	}

	for _, db := range databases {
		tables, err := p.syncTables(ctx, db)
		if err != nil {
			return err
		}
		for _, table := range tables {
			if err := p.syncColumns(ctx, db.Value, table); err != nil {
				return err
			}
		}
	}
	return nil
}

// write applies one mirror statement under the write-conflict retry budget.
func (p *syncPass) write(ctx context.Context, fn func() error) error {
	attempts := 0
	err := retry.OnWriteConflict(ctx, p.s.cfg.Retry, p.s.logger, func() error {
		attempts++
		return fn()
	})
	if attempts > 1 {
		metrics.SyncWriteConflictRetries.Add(float64(attempts - 1))
	}
	return err
}

func (p *syncPass) syncDatabases(ctx context.Context) ([]Versioned[string], error) {
	live, err := p.conn.ListDatabases(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list live databases: %w", err)
	}
	rows, err := p.s.schema.ListDatabases(ctx, p.endpoint.ID)
	if err != nil {
		return nil, err
	}

	mirror := make([]Versioned[string], len(rows))
	for i, r := range rows {
		mirror[i] = Versioned[string]{ID: r.ID, Value: r.Name, Active: r.IsActive}
	}

	plan := Reconcile(mirror, live, identity, nil)
	active, err := applyPlan(ctx, p, plan, levelWriter[string]{
		insert: func(name string) (uuid.UUID, error) {
			row := &models.MirrorDatabase{TenantID: p.endpoint.TenantID, EndpointID: p.endpoint.ID, Name: name}
			err := p.s.schema.InsertDatabase(ctx, row)
			return row.ID, err
		},
		reactivate: func(v Reactivation[string]) error { return p.s.schema.SetDatabaseActive(ctx, v.ID, true) },
		deactivate: func(id uuid.UUID) error { return p.s.schema.SetDatabaseActive(ctx, id, false) },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sync databases: %w", err)
	}
	p.result.Databases.Add(plan.Counts())
	return active, nil
}

func (p *syncPass) syncTables(ctx context.Context, db Versioned[string]) ([]Versioned[string], error) {
	live, err := p.conn.ListTables(ctx, db.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to list live tables in %s: %w", db.Value, err)
	}
	rows, err := p.s.schema.ListTables(ctx, db.ID)
	if err != nil {
		return nil, err
	}

	mirror := make([]Versioned[string], len(rows))
	for i, r := range rows {
		mirror[i] = Versioned[string]{ID: r.ID, Value: r.Name, Active: r.IsActive}
	}

	plan := Reconcile(mirror, live, identity, nil)
	active, err := applyPlan(ctx, p, plan, levelWriter[string]{
		insert: func(name string) (uuid.UUID, error) {
			row := &models.MirrorTable{TenantID: p.endpoint.TenantID, DatabaseID: db.ID, Name: name}
			err := p.s.schema.InsertTable(ctx, row)
			return row.ID, err
		},
		reactivate: func(v Reactivation[string]) error { return p.s.schema.SetTableActive(ctx, v.ID, true) },
		deactivate: func(id uuid.UUID) error { return p.s.schema.SetTableActive(ctx, id, false) },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sync tables in %s: %w", db.Value, err)
	}
	p.result.Tables.Add(plan.Counts())
	return active, nil
}

func (p *syncPass) syncColumns(ctx context.Context, database string, table Versioned[string]) error {
	live, err := p.conn.ListColumns(ctx, database, table.Value)
	if err != nil {
		return fmt.Errorf("failed to list live columns of %s.%s: %w", database, table.Value, err)
	}
	rows, err := p.s.schema.ListColumns(ctx, table.ID)
	if err != nil {
		return err
	}

	mirror := make([]Versioned[models.LiveColumn], len(rows))
	for i, r := range rows {
		mirror[i] = Versioned[models.LiveColumn]{
			ID:     r.ID,
			Value:  models.LiveColumn{Name: r.Name, DataType: r.DataType, OrdinalPosition: r.OrdinalPosition},
			Active: r.IsActive,
		}
	}

	update := func(v Versioned[models.LiveColumn]) error {
		return p.s.schema.UpdateColumn(ctx, &models.MirrorColumn{
			ID: v.ID, DataType: v.Value.DataType, OrdinalPosition: v.Value.OrdinalPosition,
		})
	}

	plan := Reconcile(mirror, live, columnKey, columnChanged)
	_, err = applyPlan(ctx, p, plan, levelWriter[models.LiveColumn]{
		insert: func(c models.LiveColumn) (uuid.UUID, error) {
			row := &models.MirrorColumn{
				TenantID: p.endpoint.TenantID, TableID: table.ID,
				Name: c.Name, DataType: c.DataType, OrdinalPosition: c.OrdinalPosition,
			}
			err := p.s.schema.InsertColumn(ctx, row)
			return row.ID, err
		},
		reactivate: func(v Reactivation[models.LiveColumn]) error {
			if v.Changed {
				return update(v.Versioned)
			}
			return p.s.schema.SetColumnActive(ctx, v.ID, true)
		},
		update:     update,
		deactivate: func(id uuid.UUID) error { return p.s.schema.SetColumnActive(ctx, id, false) },
	})
	if err != nil {
		return fmt.Errorf("failed to sync columns of %s.%s: %w", database, table.Value, err)
	}
	p.result.Columns.Add(plan.Counts())
	return nil
}

// levelWriter holds the mirror writes for one level. update may be nil when
// the level has no mutable attributes.
type levelWriter[T any] struct {
	insert     func(T) (uuid.UUID, error)
	reactivate func(Reactivation[T]) error
	update     func(Versioned[T]) error
	deactivate func(uuid.UUID) error
}

// applyPlan performs the plan's writes and returns the rows that are active
// afterwards, with ids.
func applyPlan[T any](ctx context.Context, p *syncPass, plan ReconcilePlan[T], w levelWriter[T]) ([]Versioned[T], error) {
	active := make([]Versioned[T], 0, len(plan.Insert)+len(plan.Reactivate)+len(plan.Update)+len(plan.Unchanged))

	for _, v := range plan.Insert {
		var id uuid.UUID
		err := p.write(ctx, func() error {
			var err error
			id, err = w.insert(v)
			return err
		})
		if err != nil {
			return nil, err
		}
		active = append(active, Versioned[T]{ID: id, Value: v, Active: true})
	}
	for _, v := range plan.Reactivate {
		if err := p.write(ctx, func() error { return w.reactivate(v) }); err != nil {
			return nil, err
		}
		active = append(active, v.Versioned)
	}
	for _, v := range plan.Update {
		if w.update != nil {
			if err := p.write(ctx, func() error { return w.update(v) }); err != nil {
				return nil, err
			}
		}
		active = append(active, v)
	}
	active = append(active, plan.Unchanged...)
	for _, v := range plan.Deactivate {
		if err := p.write(ctx, func() error { return w.deactivate(v.ID) }); err != nil {
			return nil, err
		}
	}
	return active, nil
}

func identity(s string) string { return s }

func columnKey(c models.LiveColumn) string { return c.Name }

func columnChanged(old, cur models.LiveColumn) bool {
	return old.DataType != cur.DataType || old.OrdinalPosition != cur.OrdinalPosition
}
