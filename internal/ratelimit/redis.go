package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/redis"
)

// KV is the subset of the Redis client used by RedisStore.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// RedisStore shares cooldown state between gateway replicas. Entries expire
// through the Redis TTL.
type RedisStore struct {
	kv     KV
	prefix string
}

// NewRedisStore creates a store whose keys are "<prefix>:<id>".
func NewRedisStore(kv KV, prefix string) *RedisStore {
	return &RedisStore{kv: kv, prefix: prefix}
}

func (s *RedisStore) Last(ctx context.Context, id string) (time.Time, bool, error) {
	val, err := s.kv.Get(ctx, s.key(id))
	if err != nil {
		if redis.IsNilError(err) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("reading rate-limit entry: %w", err)
	}
	nanos, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parsing rate-limit entry %q: %w", val, err)
	}
	return time.Unix(0, nanos), true, nil
}

func (s *RedisStore) Record(ctx context.Context, id string, at time.Time, ttl time.Duration) error {
	if err := s.kv.Set(ctx, s.key(id), strconv.FormatInt(at.UnixNano(), 10), ttl); err != nil {
		return fmt.Errorf("writing rate-limit entry: %w", err)
	}
	return nil
}

func (s *RedisStore) key(id string) string {
	return s.prefix + ":" + id
}
