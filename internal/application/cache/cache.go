// Package cache keeps a read-through copy of each owner's record in Redis.
// The write path never reads it; the store alone decides the ratchet.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"applicant-portal/internal/common/database"
	"applicant-portal/internal/common/errors"
	"applicant-portal/internal/common/logger"
	"applicant-portal/internal/common/metrics"
	"applicant-portal/internal/models"

	"github.com/redis/go-redis/v9"
)

// putIfNewer writes the record only when no newer version is cached. The
// version lives in a sibling key as a zero-padded timestamp so that string
// comparison orders it.
var putIfNewer = redis.NewScript(`
local current = redis.call('GET', KEYS[2])
if current and current > ARGV[1] then
  return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
redis.call('SET', KEYS[2], ARGV[1], 'PX', ARGV[3])
return 1
`)

type Cache struct {
	redis  *database.RedisClient
	ttl    time.Duration
	prefix string
	logger logger.Logger
}

func New(client *database.RedisClient, ttl time.Duration, prefix string, log logger.Logger) *Cache {
	return &Cache{
		redis:  client,
		ttl:    ttl,
		prefix: prefix,
		logger: log.WithFields(map[string]interface{}{"component": "cache"}),
	}
}

func (c *Cache) key(owner string) string {
	return c.prefix + owner
}

func (c *Cache) versionKey(owner string) string {
	return c.prefix + owner + ":version"
}

func version(app *models.Application) string {
	return fmt.Sprintf("%020d", app.UpdatedAt.UnixNano())
}

// Get returns the cached record. Any Redis or decode failure is a miss.
func (c *Cache) Get(ctx context.Context, owner string) (*models.Application, bool) {
	if c == nil {
		return nil, false
	}

	raw, found, err := c.redis.GetBytes(ctx, c.key(owner))
	if err != nil {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		c.logger.Warn("cache read failed, falling back to store", map[string]interface{}{
			"ownerId": owner,
			"error":   errors.NewCacheFailureError("get", err),
		})
		return nil, false
	}
	if !found {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}

	var app models.Application
	if err := json.Unmarshal(raw, &app); err != nil {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		c.logger.Warn("discarding undecodable cache entry", map[string]interface{}{
			"ownerId": owner,
			"error":   err.Error(),
		})
		_ = c.redis.Del(ctx, c.key(owner))
		return nil, false
	}

	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return &app, true
}

// Put stores the record after a successful read or write. A record older
// than the cached one is dropped, so a slow read cannot undo a write.
func (c *Cache) Put(ctx context.Context, app *models.Application) {
	if c == nil || app == nil {
		return
	}

	data, err := json.Marshal(app)
	if err != nil {
		return
	}
	stored, err := c.redis.RunScript(ctx, putIfNewer,
		[]string{c.key(app.OwnerID), c.versionKey(app.OwnerID)},
		version(app), data, c.ttl.Milliseconds())
	if err != nil {
		c.logger.Warn("cache write failed", map[string]interface{}{
			"ownerId": app.OwnerID,
			"error":   errors.NewCacheFailureError("put", err),
		})
		// a stale entry must not outlive a failed refresh
		c.Invalidate(ctx, app.OwnerID)
		return
	}
	if n, _ := stored.(int64); n == 0 {
		c.logger.Debug("older record not cached", map[string]interface{}{
			"ownerId": app.OwnerID,
			"version": version(app),
		})
	}
}

func (c *Cache) Invalidate(ctx context.Context, owner string) {
	if c == nil {
		return
	}
	if err := c.redis.Del(ctx, c.key(owner)); err != nil {
		c.logger.Warn("cache invalidate failed", map[string]interface{}{
			"ownerId": owner,
			"error":   errors.NewCacheFailureError("invalidate", err),
		})
	}
}
