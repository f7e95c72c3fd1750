// Package statuscache coalesces concurrent identical status lookups and
// caches found results in Redis for a short TTL.
package statuscache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/intake"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/redis"
)

const keyPrefix = "intake:status:"

// KV is the subset of the Redis client the cache needs.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// Cache fronts status lookups. With a nil KV or zero TTL it only coalesces.
type Cache struct {
	kv      KV
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a Cache. kv and m may be nil.
func New(kv KV, ttl time.Duration, m *metrics.Metrics) *Cache {
	if m == nil {
		m = metrics.NewUnregistered()
	}
	return &Cache{
		kv:      kv,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "status-cache"),
	}
}

func (c *Cache) enabled() bool {
	return c.kv != nil && c.ttl > 0
}

// Get returns a cached lookup for q.
func (c *Cache) Get(ctx context.Context, q intake.StatusQuery) (intake.Lookup, bool) {
	if !c.enabled() {
		return intake.Lookup{}, false
	}
	key := buildKey(q)
	data, err := c.kv.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.metrics.StatusCacheLookups.WithLabelValues("miss").Inc()
		return intake.Lookup{}, false
	}
	var l intake.Lookup
	if err := json.Unmarshal([]byte(data), &l); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.metrics.StatusCacheLookups.WithLabelValues("miss").Inc()
		return intake.Lookup{}, false
	}
	c.metrics.StatusCacheLookups.WithLabelValues("hit").Inc()
	return l, true
}

// Set stores a found lookup.
func (c *Cache) Set(ctx context.Context, q intake.StatusQuery, l intake.Lookup) {
	if !c.enabled() || !l.Found {
		return
	}
	key := buildKey(q)
	data, err := json.Marshal(l)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.kv.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// Invalidate drops the cached entry for q, so a newly created ticket is
// visible to the next lookup.
func (c *Cache) Invalidate(ctx context.Context, q intake.StatusQuery) {
	if !c.enabled() {
		return
	}
	if err := c.kv.Del(ctx, buildKey(q)); err != nil {
		c.logger.Warn("cache invalidate failed", "error", err)
	}
}

// GetOrCompute returns the cached lookup or runs compute once for all
// concurrent callers with the same query. The shared call is detached from
// any single caller's cancellation. cached reports a cache hit.
func (c *Cache) GetOrCompute(
	ctx context.Context,
	q intake.StatusQuery,
	compute func(ctx context.Context) (intake.Lookup, error),
) (l intake.Lookup, cached bool, err error) {
	if l, ok := c.Get(ctx, q); ok {
		return l, true, nil
	}
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(buildKey(q), func() (interface{}, error) {
		l, err := compute(shared)
		if err != nil {
			return intake.Lookup{}, err
		}
		c.Set(shared, q, l)
		return l, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return intake.Lookup{}, false, res.Err
		}
		return res.Val.(intake.Lookup), false, nil
	case <-ctx.Done():
		return intake.Lookup{}, false, fmt.Errorf("waiting for status lookup: %w", ctx.Err())
	}
}

func buildKey(q intake.StatusQuery) string {
	raw := strings.ToLower(q.FormatType) + "\x00" + q.AccountNumber
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
