package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ekaya-inc/datagenie/pkg/adapters/datasource"
	"github.com/ekaya-inc/datagenie/pkg/apperrors"
	"github.com/ekaya-inc/datagenie/pkg/models"
)

// passthroughTenantCtx stands in for a tenant-scoped connection.
func passthroughTenantCtx(ctx context.Context, _ uuid.UUID) (context.Context, func(), error) {
	return ctx, func() {}, nil
}

func passthroughDirectory(ctx context.Context) (context.Context, func(), error) {
	return ctx, func() {}, nil
}

// writeConflict is what PostgreSQL reports for a serialization failure.
func writeConflict() error {
	return &pgconn.PgError{Code: "40001", Message: "could not serialize access due to concurrent update"}
}

// ---------------------------------------------------------------------------
// Tenant database
// ---------------------------------------------------------------------------

// fakeTenantConn is an in-memory tenant catalog with scripted planner and
// query behavior.
type fakeTenantConn struct {
	mu      sync.Mutex
	dialect string
	// catalog maps database -> table -> columns.
	catalog map[string]map[string][]models.LiveColumn
	listErr error

	explainFunc func(sql string) error
	queryFunc   func(sql string, maxRows int) (*models.ExecutionResult, error)

	explained []string
	queried   []string
	closes    int
}

var _ datasource.TenantConnection = (*fakeTenantConn)(nil)

func newFakeTenantConn() *fakeTenantConn {
	return &fakeTenantConn{
		dialect: "PostgreSQL",
		catalog: map[string]map[string][]models.LiveColumn{},
	}
}

func (c *fakeTenantConn) setTable(database, table string, columns ...models.LiveColumn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.catalog[database] == nil {
		c.catalog[database] = map[string][]models.LiveColumn{}
	}
	c.catalog[database][table] = columns
}

func (c *fakeTenantConn) dropTable(database, table string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.catalog[database], table)
}

func (c *fakeTenantConn) ListDatabases(context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listErr != nil {
		return nil, c.listErr
	}
	names := make([]string, 0, len(c.catalog))
	for name := range c.catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (c *fakeTenantConn) ListTables(_ context.Context, database string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.catalog[database]))
	for name := range c.catalog[database] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (c *fakeTenantConn) ListColumns(_ context.Context, database, table string) ([]models.LiveColumn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.LiveColumn(nil), c.catalog[database][table]...), nil
}

func (c *fakeTenantConn) Explain(_ context.Context, sql string) error {
	c.mu.Lock()
	c.explained = append(c.explained, sql)
	fn := c.explainFunc
	c.mu.Unlock()
	if fn != nil {
		return fn(sql)
	}
	return nil
}

func (c *fakeTenantConn) Query(_ context.Context, sql string, maxRows int) (*models.ExecutionResult, error) {
	c.mu.Lock()
	c.queried = append(c.queried, sql)
	fn := c.queryFunc
	c.mu.Unlock()
	if fn != nil {
		return fn(sql, maxRows)
	}
	return &models.ExecutionResult{
		Columns:  []models.ResultColumn{{Name: "n", Type: "INT4"}},
		Rows:     []map[string]any{{"n": int32(1)}},
		RowCount: 1,
	}, nil
}

func (c *fakeTenantConn) Dialect() string            { return c.dialect }
func (c *fakeTenantConn) Ping(context.Context) error { return nil }
func (c *fakeTenantConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

// released counts Close calls, i.e. leases handed back by the caller.
func (c *fakeTenantConn) released() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

func (c *fakeTenantConn) explainCalls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.explained...)
}

func (c *fakeTenantConn) queryCalls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.queried...)
}

// ---------------------------------------------------------------------------
// Router
// ---------------------------------------------------------------------------

type mockRouter struct {
	tenantID  uuid.UUID
	tenantErr error
	// endpoint is what ActiveEndpoint returns; nil means a fixed active
	// endpoint of tenantID.
	endpoint    *models.Endpoint
	endpointErr error
	conn        datasource.TenantConnection
	connErr     error

	mu        sync.Mutex
	resolved  int
	connected []uuid.UUID
}

// defaultEndpointID is the endpoint mockRouter reports when none is set.
var defaultEndpointID = uuid.MustParse("00000000-0000-4000-8000-00000000e001")

var _ ConnectionRouter = (*mockRouter)(nil)

func (r *mockRouter) TenantForUser(_ context.Context, userID string) (uuid.UUID, error) {
	if userID == "" {
		return uuid.Nil, apperrors.ErrInvalidRequest
	}
	if r.tenantErr != nil {
		return uuid.Nil, r.tenantErr
	}
	return r.tenantID, nil
}

func (r *mockRouter) ResolveForUser(ctx context.Context, userID string) (datasource.TenantConnection, error) {
	tenantID, err := r.TenantForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return r.ResolveForTenant(ctx, tenantID)
}

func (r *mockRouter) ActiveEndpoint(context.Context, uuid.UUID) (*models.Endpoint, error) {
	if r.endpointErr != nil {
		return nil, r.endpointErr
	}
	if r.endpoint != nil {
		cp := *r.endpoint
		return &cp, nil
	}
	return &models.Endpoint{ID: defaultEndpointID, TenantID: r.tenantID, IsActive: true}, nil
}

func (r *mockRouter) ResolveForTenant(ctx context.Context, tenantID uuid.UUID) (datasource.TenantConnection, error) {
	endpoint, err := r.ActiveEndpoint(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return r.Connect(ctx, endpoint)
}

func (r *mockRouter) Connect(_ context.Context, endpoint *models.Endpoint) (datasource.TenantConnection, error) {
	r.mu.Lock()
	r.resolved++
	r.connected = append(r.connected, endpoint.ID)
	r.mu.Unlock()
	if r.connErr != nil {
		return nil, r.connErr
	}
	return r.conn, nil
}

func (r *mockRouter) resolveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolved
}

// ---------------------------------------------------------------------------
// Repositories
// ---------------------------------------------------------------------------

type mockUserRepository struct {
	tenants map[string]uuid.UUID
	err     error
}

func (m *mockUserRepository) GetTenantID(_ context.Context, userID string) (uuid.UUID, error) {
	if m.err != nil {
		return uuid.Nil, m.err
	}
	id, ok := m.tenants[userID]
	if !ok {
		return uuid.Nil, apperrors.ErrNotFound
	}
	return id, nil
}

func (m *mockUserRepository) GetByID(ctx context.Context, userID string) (*models.User, error) {
	tenantID, err := m.GetTenantID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &models.User{UserID: userID, TenantID: tenantID, IsActive: true}, nil
}

type mockEndpointRepository struct {
	mu        sync.Mutex
	endpoints map[uuid.UUID]*models.Endpoint
	inactive  []uuid.UUID
	synced    []uuid.UUID
}

func newMockEndpointRepository(endpoints ...*models.Endpoint) *mockEndpointRepository {
	m := &mockEndpointRepository{endpoints: map[uuid.UUID]*models.Endpoint{}}
	for _, e := range endpoints {
		m.endpoints[e.ID] = e
	}
	return m
}

func (m *mockEndpointRepository) GetByID(_ context.Context, id uuid.UUID) (*models.Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.endpoints[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *mockEndpointRepository) GetActiveForTenant(_ context.Context, tenantID uuid.UUID) (*models.Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *models.Endpoint
	for _, e := range m.endpoints {
		if e.TenantID != tenantID || !e.IsActive {
			continue
		}
		if best == nil || e.CreatedAt.After(best.CreatedAt) {
			best = e
		}
	}
	if best == nil {
		return nil, apperrors.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (m *mockEndpointRepository) MarkSynced(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.endpoints[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	e.IsActive = true
	e.LastSyncedAt = &at
	m.synced = append(m.synced, id)
	return nil
}

func (m *mockEndpointRepository) MarkInactive(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.endpoints[id]; ok {
		e.IsActive = false
	}
	m.inactive = append(m.inactive, id)
	return nil
}

// memorySchemaRepository is an in-memory mirror. conflicts makes the next N
// writes fail with a serialization failure.
type memorySchemaRepository struct {
	mu        sync.Mutex
	databases map[uuid.UUID]*models.MirrorDatabase
	tables    map[uuid.UUID]*models.MirrorTable
	columns   map[uuid.UUID]*models.MirrorColumn
	conflicts int
	writes    int
	// endpointActive hides the whole tree when false.
	endpointActive bool
}

func newMemorySchemaRepository() *memorySchemaRepository {
	return &memorySchemaRepository{
		databases:      map[uuid.UUID]*models.MirrorDatabase{},
		tables:         map[uuid.UUID]*models.MirrorTable{},
		columns:        map[uuid.UUID]*models.MirrorColumn{},
		endpointActive: true,
	}
}

// write must be called with mu held.
func (m *memorySchemaRepository) write() error {
	m.writes++
	if m.conflicts > 0 {
		m.conflicts--
		return writeConflict()
	}
	return nil
}

func (m *memorySchemaRepository) ListDatabases(_ context.Context, endpointID uuid.UUID) ([]*models.MirrorDatabase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.MirrorDatabase
	for _, d := range m.databases {
		if d.EndpointID == endpointID {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memorySchemaRepository) InsertDatabase(_ context.Context, db *models.MirrorDatabase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write(); err != nil {
		return err
	}
	db.ID = uuid.New()
	db.IsActive = true
	cp := *db
	m.databases[db.ID] = &cp
	return nil
}

func (m *memorySchemaRepository) SetDatabaseActive(_ context.Context, id uuid.UUID, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write(); err != nil {
		return err
	}
	m.databases[id].IsActive = active
	return nil
}

func (m *memorySchemaRepository) ListTables(_ context.Context, databaseID uuid.UUID) ([]*models.MirrorTable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.MirrorTable
	for _, t := range m.tables {
		if t.DatabaseID == databaseID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memorySchemaRepository) InsertTable(_ context.Context, table *models.MirrorTable) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write(); err != nil {
		return err
	}
	table.ID = uuid.New()
	table.IsActive = true
	cp := *table
	m.tables[table.ID] = &cp
	return nil
}

func (m *memorySchemaRepository) SetTableActive(_ context.Context, id uuid.UUID, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write(); err != nil {
		return err
	}
	m.tables[id].IsActive = active
	return nil
}

func (m *memorySchemaRepository) ListColumns(_ context.Context, tableID uuid.UUID) ([]*models.MirrorColumn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.MirrorColumn
	for _, c := range m.columns {
		if c.TableID == tableID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrdinalPosition < out[j].OrdinalPosition })
	return out, nil
}

func (m *memorySchemaRepository) InsertColumn(_ context.Context, column *models.MirrorColumn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write(); err != nil {
		return err
	}
	column.ID = uuid.New()
	column.IsActive = true
	cp := *column
	m.columns[column.ID] = &cp
	return nil
}

func (m *memorySchemaRepository) UpdateColumn(_ context.Context, column *models.MirrorColumn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write(); err != nil {
		return err
	}
	c := m.columns[column.ID]
	c.DataType = column.DataType
	c.OrdinalPosition = column.OrdinalPosition
	c.IsActive = true
	return nil
}

func (m *memorySchemaRepository) SetColumnActive(_ context.Context, id uuid.UUID, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write(); err != nil {
		return err
	}
	m.columns[id].IsActive = active
	return nil
}

func (m *memorySchemaRepository) ListActiveColumns(_ context.Context, tenantID, endpointID uuid.UUID) ([]models.ActiveColumn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.endpointActive {
		return nil, nil
	}
	var out []models.ActiveColumn
	for _, c := range m.columns {
		t := m.tables[c.TableID]
		d := m.databases[t.DatabaseID]
		if c.TenantID != tenantID || d.EndpointID != endpointID || !c.IsActive || !t.IsActive || !d.IsActive {
			continue
		}
		out = append(out, models.ActiveColumn{
			DatabaseName:      d.Name,
			TableName:         t.Name,
			TableDescription:  t.Description,
			ColumnName:        c.Name,
			DataType:          c.DataType,
			OrdinalPosition:   c.OrdinalPosition,
			ColumnDescription: c.Description,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.DatabaseName != b.DatabaseName {
			return a.DatabaseName < b.DatabaseName
		}
		if a.TableName != b.TableName {
			return a.TableName < b.TableName
		}
		if a.OrdinalPosition != b.OrdinalPosition {
			return a.OrdinalPosition < b.OrdinalPosition
		}
		return a.ColumnName < b.ColumnName
	})
	return out, nil
}

func (m *memorySchemaRepository) UpdateDescription(_ context.Context, tenantID uuid.UUID, u models.DescriptionUpdate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	desc := u.Description
	for _, t := range m.tables {
		d := m.databases[t.DatabaseID]
		if t.TenantID != tenantID || d.Name != u.Database || t.Name != u.Table {
			continue
		}
		if u.Column == "" {
			t.Description = &desc
			return true, nil
		}
		for _, c := range m.columns {
			if c.TableID == t.ID && c.Name == u.Column {
				c.Description = &desc
				return true, nil
			}
		}
	}
	return false, nil
}

// snapshot returns the mirror as "db.table.column:TYPE:active" strings for
// comparing whole-tree state across passes.
func (m *memorySchemaRepository) snapshot() map[uuid.UUID]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[uuid.UUID]string{}
	for id, d := range m.databases {
		out[id] = d.Name + ":" + boolString(d.IsActive)
	}
	for id, t := range m.tables {
		out[id] = m.databases[t.DatabaseID].Name + "." + t.Name + ":" + boolString(t.IsActive)
	}
	for id, c := range m.columns {
		t := m.tables[c.TableID]
		out[id] = m.databases[t.DatabaseID].Name + "." + t.Name + "." + c.Name + ":" + c.DataType + ":" + boolString(c.IsActive)
	}
	return out
}

func boolString(b bool) string {
	if b {
		return "active"
	}
	return "inactive"
}

// ---------------------------------------------------------------------------
// History
// ---------------------------------------------------------------------------

type mockQueryHistoryRepository struct {
	mu      sync.Mutex
	entries []*models.QueryHistoryEntry
	err     error
}

func (m *mockQueryHistoryRepository) Create(_ context.Context, entry *models.QueryHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	entry.ID = uuid.New()
	m.entries = append(m.entries, entry)
	return nil
}

// recordingHistory captures entries without a repository.
type recordingHistory struct {
	mu      sync.Mutex
	entries []*models.QueryHistoryEntry
}

func (h *recordingHistory) Record(_ context.Context, entry *models.QueryHistoryEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, entry)
}

func (h *recordingHistory) Enabled() bool { return true }

func (h *recordingHistory) outcomes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.entries))
	for i, e := range h.entries {
		out[i] = e.Outcome
	}
	return out
}

// ---------------------------------------------------------------------------
// Generation collaborators
// ---------------------------------------------------------------------------

type staticFormatter struct {
	text    string
	columns []models.ActiveColumn
	err     error
	// endpoints records the endpoint of every call.
	endpoints []uuid.UUID
}

func (f *staticFormatter) Format(_ context.Context, _, endpointID uuid.UUID) (string, error) {
	f.endpoints = append(f.endpoints, endpointID)
	return f.text, f.err
}

func (f *staticFormatter) ActiveColumns(_ context.Context, _, endpointID uuid.UUID) ([]models.ActiveColumn, error) {
	f.endpoints = append(f.endpoints, endpointID)
	return f.columns, f.err
}

type staticClassifier struct {
	result models.Classification
	// turns records the prior turns the classifier was given.
	turns []models.Turn
}

func (c *staticClassifier) Classify(_ context.Context, _ string, priorTurns []models.Turn, _ string) models.Classification {
	c.turns = priorTurns
	return c.result
}
