package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	tests := map[float64]time.Duration{0: 1, 50: 5, 90: 9, 99: 10, 100: 10}
	for p, want := range tests {
		if got := percentile(sorted, p); got != want {
			t.Errorf("percentile(%v) = %v, want %v", p, got, want)
		}
	}
	if percentile(nil, 50) != 0 {
		t.Error("empty input")
	}
}

func TestWorkerIPsAreDistinct(t *testing.T) {
	seen := map[string]bool{}
	for w := 0; w < 1000; w++ {
		ip := workerIP(w)
		if seen[ip] {
			t.Fatalf("worker %d reuses %s", w, ip)
		}
		seen[ip] = true
	}
}

func TestRunLoadTestAgainstStub(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if r.URL.Path != "/api/v1/tickets/status" || body["formatType"] != "EDI" || r.Header.Get("X-Forwarded-For") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	stats := runLoadTest(Config{
		BaseURL:     srv.URL,
		Concurrency: 2,
		Duration:    50 * time.Millisecond,
		FormatType:  "EDI",
		Accounts:    []string{"A"},
		SpreadIPs:   true,
	})
	if stats.Total() == 0 {
		t.Fatal("no requests recorded")
	}
	if stats.statusCodes[http.StatusBadRequest] != 0 {
		t.Errorf("malformed requests: %v", stats.statusCodes)
	}
	if _, err := newStatusRequest(context.Background(), "://bad", "A", "EDI", "10.0.0.1"); err == nil {
		t.Error("expected error for bad base URL")
	}
}
