package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/datagenie/pkg/config"
	"github.com/ekaya-inc/datagenie/pkg/metrics"
)

// SchemaTextCache memoizes the formatted schema text of one endpoint's mirror.
// Entries are grouped by tenant so that Invalidate drops every endpoint of the
// tenant at once. Implementations are safe for concurrent use. A cache failure
// is never an error for the caller; it degrades to a miss.
type SchemaTextCache interface {
	Get(ctx context.Context, tenantID, endpointID uuid.UUID) (string, bool)
	Set(ctx context.Context, tenantID, endpointID uuid.UUID, text string)
	Invalidate(ctx context.Context, tenantID uuid.UUID)
	Close()
}

// NewSchemaTextCache builds the backend selected by cfg.Backend.
// rdb is required for the redis backend and ignored otherwise.
func NewSchemaTextCache(cfg config.CacheConfig, rdb *redis.Client, logger *zap.Logger) (SchemaTextCache, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemorySchemaCache(cfg.TTL), nil
	case "redis":
		if rdb == nil {
			return nil, errors.New("schema cache backend is redis but no redis client is configured")
		}
		return NewRedisSchemaCache(rdb, cfg.TTL, logger), nil
	case "none", "":
		return NoopSchemaCache{}, nil
	default:
		return nil, fmt.Errorf("unsupported schema cache backend %q", cfg.Backend)
	}
}

func recordLookup(hit bool) {
	if hit {
		metrics.SchemaCacheLookups.WithLabelValues("hit").Inc()
	} else {
		metrics.SchemaCacheLookups.WithLabelValues("miss").Inc()
	}
}

// ============================================================================
// In-process
// ============================================================================

// schemaText is the cached rendering and the endpoint it was rendered from.
// A tenant generates against one endpoint at a time, so one entry per tenant
// is enough.
type schemaText struct {
	endpointID uuid.UUID
	text       string
}

type memorySchemaCache struct {
	cache   *ttlcache.Cache[uuid.UUID, schemaText]
	janitor chan struct{}
	once    sync.Once
}

// janitorStopPoll is how often Close re-sends the stop signal while the
// janitor goroutine has not yet entered its loop.
const janitorStopPoll = time.Millisecond

// NewMemorySchemaCache returns a per-process cache with entries expiring after ttl.
func NewMemorySchemaCache(ttl time.Duration) SchemaTextCache {
	c := &memorySchemaCache{
		cache: ttlcache.New(
			ttlcache.WithTTL[uuid.UUID, schemaText](ttl),
			ttlcache.WithDisableTouchOnHit[uuid.UUID, schemaText](),
		),
		janitor: make(chan struct{}),
	}
	go func() {
		defer close(c.janitor)
		c.cache.Start()
	}()
	return c
}

func (c *memorySchemaCache) Get(_ context.Context, tenantID, endpointID uuid.UUID) (string, bool) {
	item := c.cache.Get(tenantID)
	hit := item != nil && item.Value().endpointID == endpointID
	recordLookup(hit)
	if !hit {
		return "", false
	}
	return item.Value().text, true
}

func (c *memorySchemaCache) Set(_ context.Context, tenantID, endpointID uuid.UUID, text string) {
	c.cache.Set(tenantID, schemaText{endpointID: endpointID, text: text}, ttlcache.DefaultTTL)
}

func (c *memorySchemaCache) Invalidate(_ context.Context, tenantID uuid.UUID) {
	c.cache.Delete(tenantID)
}

// Close stops the janitor and waits for it to exit. Stop is a no-op until
// Start has run, so it is repeated until the goroutine is gone.
func (c *memorySchemaCache) Close() {
	c.once.Do(func() {
		ticker := time.NewTicker(janitorStopPoll)
		defer ticker.Stop()
		for {
			c.cache.Stop()
			select {
			case <-c.janitor:
				return
			case <-ticker.C:
			}
		}
	})
}

// ============================================================================
// Redis
// ============================================================================

const redisSchemaKeyPrefix = "datagenie:schema-text:"

type redisSchemaCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisSchemaCache returns a cache shared by every replica using rdb.
// The client is owned by the caller.
func NewRedisSchemaCache(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) SchemaTextCache {
	return &redisSchemaCache{
		client: rdb,
		ttl:    ttl,
		logger: logger.Named("schema-cache"),
	}
}

// redisSchemaKey names the per-tenant hash; its fields are endpoint IDs.
func redisSchemaKey(tenantID uuid.UUID) string {
	return redisSchemaKeyPrefix + tenantID.String()
}

func (c *redisSchemaCache) Get(ctx context.Context, tenantID, endpointID uuid.UUID) (string, bool) {
	text, err := c.client.HGet(ctx, redisSchemaKey(tenantID), endpointID.String()).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Schema cache read failed",
				zap.String("tenant_id", tenantID.String()),
				zap.String("endpoint_id", endpointID.String()),
				zap.Error(err))
		}
		recordLookup(false)
		return "", false
	}
	recordLookup(true)
	return text, true
}

func (c *redisSchemaCache) Set(ctx context.Context, tenantID, endpointID uuid.UUID, text string) {
	key := redisSchemaKey(tenantID)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, endpointID.String(), text)
		pipe.Expire(ctx, key, c.ttl)
		return nil
	})
	if err != nil {
		c.logger.Warn("Schema cache write failed",
			zap.String("tenant_id", tenantID.String()),
			zap.String("endpoint_id", endpointID.String()),
			zap.Error(err))
	}
}

func (c *redisSchemaCache) Invalidate(ctx context.Context, tenantID uuid.UUID) {
	if err := c.client.Del(ctx, redisSchemaKey(tenantID)).Err(); err != nil {
		c.logger.Warn("Schema cache invalidation failed", zap.String("tenant_id", tenantID.String()), zap.Error(err))
	}
}

func (c *redisSchemaCache) Close() {}

// ============================================================================
// Disabled
// ============================================================================

// NoopSchemaCache never stores anything.
type NoopSchemaCache struct{}

func (NoopSchemaCache) Get(context.Context, uuid.UUID, uuid.UUID) (string, bool) { return "", false }
func (NoopSchemaCache) Set(context.Context, uuid.UUID, uuid.UUID, string)        {}
func (NoopSchemaCache) Invalidate(context.Context, uuid.UUID)                    {}
func (NoopSchemaCache) Close()                                                   {}
