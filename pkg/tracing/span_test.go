package tracing

import (
	"context"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/logger"
)

func TestTracerObservesChildStages(t *testing.T) {
	observed := map[string]time.Duration{}
	tracer := NewTracer(false, func(stage string, d time.Duration) { observed[stage] = d })

	ctx := logger.WithRequestID(context.Background(), "req-1")
	ctx, root := tracer.Start(ctx, "submit")
	if root.TraceID != "req-1" {
		t.Fatalf("trace id = %q, want req-1", root.TraceID)
	}
	_, validate := StartChildSpan(ctx, "validate")
	validate.End()
	_, create := StartChildSpan(ctx, "create")
	create.End()
	_, unfinished := StartChildSpan(ctx, "notify")
	_ = unfinished

	tracer.Finish(root)

	if len(observed) != 2 {
		t.Fatalf("observed = %v, want validate and create", observed)
	}
	if _, ok := observed["submit"]; ok {
		t.Error("root span must not be observed as a stage")
	}
	if create.TraceID != "req-1" {
		t.Errorf("child trace id = %q", create.TraceID)
	}
}

func TestSpanEndKeepsFirstMeasurement(t *testing.T) {
	_, s := StartSpan(context.Background(), "x", "t")
	s.End()
	first := s.EndTime
	time.Sleep(2 * time.Millisecond)
	s.End()
	if !s.EndTime.Equal(first) {
		t.Error("second End overwrote the measurement")
	}
}
