package statuscache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/intake"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/metrics"
)

type memKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemKV() *memKV { return &memKV{data: map[string]string{}} }

func (m *memKV) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memKV) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = string(value.([]byte))
	return nil
}

func (m *memKV) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

var query = intake.StatusQuery{AccountNumber: "ACCT-1", FormatType: "EDI"}

func TestGetOrComputeCachesFoundResults(t *testing.T) {
	m := metrics.NewUnregistered()
	c := New(newMemKV(), time.Minute, m)
	var calls atomic.Int32
	compute := func(context.Context) (intake.Lookup, error) {
		calls.Add(1)
		return intake.Lookup{Found: true, Status: "In Progress", Reference: "EDI-7"}, nil
	}

	l, cached, err := c.GetOrCompute(context.Background(), query, compute)
	if err != nil || cached || l.Status != "In Progress" {
		t.Fatalf("first = %+v %v %v", l, cached, err)
	}
	l, cached, err = c.GetOrCompute(context.Background(), query, compute)
	if err != nil || !cached || l.Reference != "EDI-7" {
		t.Fatalf("second = %+v %v %v", l, cached, err)
	}
	if calls.Load() != 1 {
		t.Errorf("compute calls = %d", calls.Load())
	}
	if got := metrics.CounterValue(m.StatusCacheLookups.WithLabelValues("hit")); got != 1 {
		t.Errorf("hits = %v", got)
	}

	c.Invalidate(context.Background(), query)
	if _, ok := c.Get(context.Background(), query); ok {
		t.Error("entry survived invalidation")
	}
}

func TestErrorsAreNotCached(t *testing.T) {
	c := New(newMemKV(), time.Minute, nil)
	boom := errors.New("search failed")
	if _, _, err := c.GetOrCompute(context.Background(), query, func(context.Context) (intake.Lookup, error) {
		return intake.Lookup{}, boom
	}); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if _, ok := c.Get(context.Background(), query); ok {
		t.Error("error result was cached")
	}
}

func TestConcurrentLookupsCoalesce(t *testing.T) {
	c := New(nil, 0, nil)
	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(context.Context) (intake.Lookup, error) {
		calls.Add(1)
		<-release
		return intake.Lookup{Found: true, Status: "Done"}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l, _, err := c.GetOrCompute(context.Background(), query, compute); err != nil || l.Status != "Done" {
				t.Errorf("lookup = %+v %v", l, err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	if calls.Load() != 1 {
		t.Errorf("compute calls = %d, want 1", calls.Load())
	}
}

func TestKeyNormalisesFormatCase(t *testing.T) {
	a := buildKey(intake.StatusQuery{AccountNumber: "1", FormatType: "EDI"})
	b := buildKey(intake.StatusQuery{AccountNumber: "1", FormatType: "edi"})
	d := buildKey(intake.StatusQuery{AccountNumber: "2", FormatType: "EDI"})
	if a != b || a == d {
		t.Errorf("keys: %s %s %s", a, b, d)
	}
}
