package datasource

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ekaya-inc/datagenie/pkg/apperrors"
	"github.com/ekaya-inc/datagenie/pkg/logging"
	"github.com/ekaya-inc/datagenie/pkg/metrics"
	"github.com/ekaya-inc/datagenie/pkg/models"
)

// ErrRegistryClosed is returned by Get after Close.
var ErrRegistryClosed = errors.New("pool registry is closed")

// RegistryConfig configures a PoolRegistry.
type RegistryConfig struct {
	// MaxConns bounds each endpoint pool.
	MaxConns int32
	// IdleTTL closes pools unused for this long. Zero disables eviction.
	IdleTTL time.Duration
	// CleanupInterval is how often idle pools are checked. Defaults to IdleTTL/4.
	CleanupInterval time.Duration
	// ConnectTimeout bounds pool creation and the first ping.
	ConnectTimeout time.Duration
	// Open overrides adapter lookup by endpoint type.
	Open Opener
}

type poolEntry struct {
	conn        TenantConnection
	fingerprint string
	lastUsed    time.Time
	// refs counts leases not yet closed. A retired entry is out of the map
	// and its pool is closed when refs reaches zero.
	refs    int
	retired bool
}

// lease is the handle Get returns. Close releases the caller's hold on the
// shared pool; the pool itself stays open for other callers.
type lease struct {
	TenantConnection
	release func()
	once    sync.Once
}

func (l *lease) Close() error {
	l.once.Do(l.release)
	return nil
}

// PoolStats describes the registry contents.
type PoolStats struct {
	Pools     int             `json:"pools"`
	Endpoints []EndpointStats `json:"endpoints"`
}

// EndpointStats describes one cached pool.
type EndpointStats struct {
	EndpointID uuid.UUID     `json:"endpoint_id"`
	IdleFor    time.Duration `json:"idle_for"`
	InUse      int           `json:"in_use"`
}

// PoolRegistry caches one TenantConnection per endpoint id.
//
// Lookups take the mutex briefly. Pool creation runs outside the lock through
// singleflight, so concurrent first requests for an endpoint share one pool.
// A cached pool is replaced when the endpoint's fingerprint changes.
//
// Every connection handed out is a lease that the caller must Close. A pool
// that is replaced, evicted or dropped by Close while leases are out stays
// open until the last of them is released, and idle cleanup never touches a
// pool in use.
type PoolRegistry struct {
	cfg    RegistryConfig
	clock  clockwork.Clock
	logger *zap.Logger

	mu     sync.Mutex
	pools  map[uuid.UUID]*poolEntry
	closed bool
	group  singleflight.Group

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewPoolRegistry creates a registry and starts its idle cleanup loop.
func NewPoolRegistry(cfg RegistryConfig, clock clockwork.Clock, logger *zap.Logger) *PoolRegistry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 5
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.CleanupInterval <= 0 && cfg.IdleTTL > 0 {
		cfg.CleanupInterval = cfg.IdleTTL / 4
	}

	r := &PoolRegistry{
		cfg:    cfg,
		clock:  clock,
		logger: logger.Named("pool-registry"),
		pools:  make(map[uuid.UUID]*poolEntry),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	if cfg.IdleTTL > 0 {
		go r.cleanupLoop()
	} else {
		close(r.done)
	}
	return r
}

// getAttempts bounds how often Get retries when the pool it just created is
// replaced by a concurrent fingerprint change before it could be leased.
const getAttempts = 3

// Get leases the pool for endpoint, creating it on first use. The caller
// must Close the returned connection when done with it.
// Handshake failures return apperrors.ErrConnection and are not cached.
func (r *PoolRegistry) Get(ctx context.Context, endpoint *models.Endpoint) (TenantConnection, error) {
	fingerprint := endpoint.Fingerprint()

	for attempt := 0; attempt < getAttempts; attempt++ {
		if conn, ok, err := r.acquire(endpoint.ID, fingerprint); err != nil || ok {
			return conn, err
		}

		_, err, shared := r.group.Do(endpoint.ID.String()+"/"+fingerprint, func() (any, error) {
			if r.current(endpoint.ID, fingerprint) {
				return nil, nil
			}
			return nil, r.create(ctx, endpoint, fingerprint)
		})
		if err != nil {
			return nil, err
		}
		if shared {
			r.logger.Debug("Shared in-flight pool creation", zap.String("endpoint_id", endpoint.ID.String()))
		}
	}
	return nil, fmt.Errorf("%w: pool for endpoint %s changed while connecting", apperrors.ErrConnection, endpoint.ID)
}

// acquire leases the cached pool when its fingerprint matches.
func (r *PoolRegistry) acquire(endpointID uuid.UUID, fingerprint string) (TenantConnection, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, false, ErrRegistryClosed
	}
	entry, ok := r.pools[endpointID]
	if !ok || entry.fingerprint != fingerprint {
		return nil, false, nil
	}
	entry.refs++
	entry.lastUsed = r.clock.Now()
	return &lease{
		TenantConnection: entry.conn,
		release:          func() { r.release(endpointID, entry) },
	}, true, nil
}

func (r *PoolRegistry) current(endpointID uuid.UUID, fingerprint string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.pools[endpointID]
	return ok && entry.fingerprint == fingerprint
}

func (r *PoolRegistry) release(endpointID uuid.UUID, entry *poolEntry) {
	r.mu.Lock()
	entry.refs--
	entry.lastUsed = r.clock.Now()
	drained := entry.retired && entry.refs == 0
	r.mu.Unlock()

	if drained {
		r.logger.Debug("Closing retired pool after last lease", zap.String("endpoint_id", endpointID.String()))
		r.closeConn(endpointID, entry.conn)
	}
}

// retire marks entry as no longer served and reports whether its pool can be
// closed now. The caller holds r.mu and has already removed entry from the map.
func (r *PoolRegistry) retire(entry *poolEntry) bool {
	entry.retired = true
	return entry.refs == 0
}

func (r *PoolRegistry) create(ctx context.Context, endpoint *models.Endpoint, fingerprint string) error {
	open := r.cfg.Open
	if open == nil {
		var ok bool
		open, ok = Lookup(endpoint.EndpointType)
		if !ok {
			return fmt.Errorf("%w: unsupported endpoint type %q", apperrors.ErrConnection, endpoint.EndpointType)
		}
	}

	// Creation is shared by every waiter, so one caller's cancellation must not fail the rest.
	connectCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.ConnectTimeout)
	defer cancel()

	conn, err := open(connectCtx, ConnectParams{
		Endpoint:       endpoint,
		MaxConns:       r.cfg.MaxConns,
		ConnectTimeout: r.cfg.ConnectTimeout,
	})
	if err != nil {
		r.logger.Warn("Failed to open endpoint pool",
			zap.String("endpoint_id", endpoint.ID.String()),
			zap.String("endpoint_type", endpoint.EndpointType),
			zap.String("error", logging.SanitizeError(err)))
		return fmt.Errorf("%w: %s", apperrors.ErrConnection, logging.SanitizeError(err))
	}

	if err := conn.Ping(connectCtx); err != nil {
		_ = conn.Close()
		r.logger.Warn("Endpoint handshake failed",
			zap.String("endpoint_id", endpoint.ID.String()),
			zap.String("error", logging.SanitizeError(err)))
		return fmt.Errorf("%w: %s", apperrors.ErrConnection, logging.SanitizeError(err))
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = conn.Close()
		return ErrRegistryClosed
	}
	stale := r.pools[endpoint.ID]
	closeStale := stale != nil && r.retire(stale)
	r.pools[endpoint.ID] = &poolEntry{
		conn:        conn,
		fingerprint: fingerprint,
		lastUsed:    r.clock.Now(),
	}
	count := len(r.pools)
	r.mu.Unlock()
	metrics.TenantPools.Set(float64(count))

	if stale != nil {
		r.logger.Info("Replacing pool after endpoint change",
			zap.String("endpoint_id", endpoint.ID.String()),
			zap.Bool("deferred_close", !closeStale))
		if closeStale {
			r.closeConn(endpoint.ID, stale.conn)
		}
	}

	r.logger.Info("Opened endpoint pool",
		zap.String("endpoint_id", endpoint.ID.String()),
		zap.String("endpoint_type", endpoint.EndpointType),
		zap.Int32("max_conns", r.cfg.MaxConns),
		zap.Int("pools", count))

	return nil
}

// Evict forgets the pool for endpointID, if any. The pool is closed once no
// lease on it remains.
func (r *PoolRegistry) Evict(endpointID uuid.UUID) {
	r.mu.Lock()
	entry, ok := r.pools[endpointID]
	delete(r.pools, endpointID)
	closeNow := ok && r.retire(entry)
	remaining := len(r.pools)
	r.mu.Unlock()
	metrics.TenantPools.Set(float64(remaining))

	if closeNow {
		r.closeConn(endpointID, entry.conn)
	}
}

func (r *PoolRegistry) cleanupLoop() {
	defer close(r.done)

	ticker := r.clock.NewTicker(r.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.Chan():
			r.evictIdle()
		}
	}
}

func (r *PoolRegistry) evictIdle() {
	now := r.clock.Now()

	r.mu.Lock()
	expired := make(map[uuid.UUID]TenantConnection)
	for id, entry := range r.pools {
		if entry.refs == 0 && now.Sub(entry.lastUsed) >= r.cfg.IdleTTL {
			expired[id] = entry.conn
			delete(r.pools, id)
		}
	}
	remaining := len(r.pools)
	r.mu.Unlock()
	metrics.TenantPools.Set(float64(remaining))

	for id, conn := range expired {
		r.closeConn(id, conn)
	}
	if len(expired) > 0 {
		r.logger.Info("Evicted idle endpoint pools",
			zap.Int("evicted", len(expired)),
			zap.Int("remaining", remaining))
	}
}

func (r *PoolRegistry) closeConn(endpointID uuid.UUID, conn TenantConnection) {
	if err := conn.Close(); err != nil {
		r.logger.Warn("Failed to close endpoint pool",
			zap.String("endpoint_id", endpointID.String()),
			zap.String("error", logging.SanitizeError(err)))
	}
}

// Stats returns a snapshot of cached pools.
func (r *PoolRegistry) Stats() PoolStats {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	stats := PoolStats{Pools: len(r.pools)}
	for id, entry := range r.pools {
		stats.Endpoints = append(stats.Endpoints, EndpointStats{
			EndpointID: id,
			IdleFor:    now.Sub(entry.lastUsed),
			InUse:      entry.refs,
		})
	}
	return stats
}

// Close stops the cleanup loop and closes every pool not currently leased.
// Leased pools close when released. Safe to call more than once.
func (r *PoolRegistry) Close() error {
	r.closeOnce.Do(func() {
		close(r.stop)
		<-r.done

		r.mu.Lock()
		r.closed = true
		idle := make(map[uuid.UUID]TenantConnection)
		for id, entry := range r.pools {
			if r.retire(entry) {
				idle[id] = entry.conn
			}
		}
		deferred := len(r.pools) - len(idle)
		r.pools = make(map[uuid.UUID]*poolEntry)
		r.mu.Unlock()
		metrics.TenantPools.Set(0)

		for id, conn := range idle {
			r.closeConn(id, conn)
		}
		r.logger.Info("Pool registry closed",
			zap.Int("closed_pools", len(idle)),
			zap.Int("deferred_pools", deferred))
	})
	return nil
}
