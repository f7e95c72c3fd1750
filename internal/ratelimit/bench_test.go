package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// BenchmarkLimiterAdmit measures admission checks against a populated
// memory store under parallel load.
func BenchmarkLimiterAdmit(b *testing.B) {
	for _, clients := range []int{100, 10000} {
		b.Run(fmt.Sprintf("clients_%d", clients), func(b *testing.B) {
			store := NewMemoryStore(0)
			defer store.Close()
			l := New("bench", store, time.Minute, nil)
			ctx := context.Background()
			now := time.Now()
			ids := make([]string, clients)
			for i := range ids {
				ids[i] = fmt.Sprintf("10.0.%d.%d", i/256, i%256)
				if i%2 == 0 {
					l.Commit(ctx, ids[i], now)
				}
			}
			b.ReportAllocs()
			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				i := 0
				for pb.Next() {
					if _, err := l.Admit(ctx, ids[i%clients]); err != nil {
						b.Fatal(err)
					}
					i++
				}
			})
		})
	}
}
