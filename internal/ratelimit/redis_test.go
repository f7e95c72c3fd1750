package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/config"
	pkgredis "github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/redis"
)

type mapKV struct {
	data map[string]string
	ttl  map[string]time.Duration
	err  error
}

func (m *mapKV) Get(_ context.Context, key string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *mapKV) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.err != nil {
		return m.err
	}
	m.data[key] = value.(string)
	m.ttl[key] = ttl
	return nil
}

func TestRedisStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := &mapKV{data: map[string]string{}, ttl: map[string]time.Duration{}}
	s := NewRedisStore(kv, "intake:ratelimit:submit")

	if _, ok, err := s.Last(ctx, "10.0.0.1"); ok || err != nil {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}
	at := time.Unix(1700000000, 123)
	if err := s.Record(ctx, "10.0.0.1", at, 10*time.Minute); err != nil {
		t.Fatal(err)
	}
	if kv.ttl["intake:ratelimit:submit:10.0.0.1"] != 10*time.Minute {
		t.Errorf("ttl = %v", kv.ttl)
	}
	got, ok, err := s.Last(ctx, "10.0.0.1")
	if err != nil || !ok || !got.Equal(at) {
		t.Fatalf("Last = %v %v %v, want %v", got, ok, err, at)
	}
}

func TestRedisStoreErrors(t *testing.T) {
	ctx := context.Background()
	kv := &mapKV{data: map[string]string{"p:bad": "not-a-number"}, ttl: map[string]time.Duration{}}
	s := NewRedisStore(kv, "p")
	if _, _, err := s.Last(ctx, "bad"); err == nil {
		t.Error("expected parse error")
	}
	kv.err = errors.New("i/o timeout")
	if _, _, err := s.Last(ctx, "x"); err == nil {
		t.Error("expected transport error")
	}
}

func TestRedisStoreLive(t *testing.T) {
	client, err := pkgredis.NewClient(config.RedisConfig{Addr: "localhost:6379", PoolSize: 2})
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	defer client.Close()

	ctx := context.Background()
	s := NewRedisStore(client, "intake:test:ratelimit")
	at := time.Now()
	if err := s.Record(ctx, "live", at, 5*time.Second); err != nil {
		t.Fatal(err)
	}
	defer client.Del(ctx, "intake:test:ratelimit:live")
	got, ok, err := s.Last(ctx, "live")
	if err != nil || !ok || got.UnixNano() != at.UnixNano() {
		t.Fatalf("Last = %v %v %v", got, ok, err)
	}
}
