// Command loadtest drives concurrent status lookups against a running
// gateway and reports latency percentiles and the status-code mix. With
// -spread-ips each worker presents its own X-Forwarded-For address, so the
// per-IP throttle admits it; without it every worker shares one address and
// most requests should come back 429.
//
// Usage:
//
//	go run ./cmd/loadtest -url http://localhost:8080 -accounts ACCT-1,ACCT-2 -duration 30s
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync"
	"time"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	FormatType  string
	Accounts    []string
	SpreadIPs   bool
}

// Stats collects per-request outcomes from all workers.
type Stats struct {
	mu          sync.Mutex
	latencies   []time.Duration
	statusCodes map[int]int
	transport   int
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]int),
	}
}

func (s *Stats) Record(d time.Duration, statusCode int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.transport++
		return
	}
	s.latencies = append(s.latencies, d)
	s.statusCodes[statusCode]++
}

func (s *Stats) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.latencies) + s.transport
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the gateway")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	formatType := flag.String("format", "EDI", "format type sent with every lookup")
	accounts := flag.String("accounts", "ACCT-1001,ACCT-1002,ACCT-1003", "comma-separated account numbers to rotate through")
	spreadIPs := flag.Bool("spread-ips", true, "give each worker its own X-Forwarded-For address")
	flag.Parse()

	cfg := Config{
		BaseURL:     strings.TrimRight(*baseURL, "/"),
		Concurrency: *concurrency,
		Duration:    *duration,
		FormatType:  *formatType,
		Accounts:    strings.Split(*accounts, ","),
		SpreadIPs:   *spreadIPs,
	}

	fmt.Println("=== Intake Gateway Status Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Accounts:    %d unique\n", len(cfg.Accounts))
	fmt.Printf("Spread IPs:  %v\n", cfg.SpreadIPs)
	fmt.Println()

	stats := runLoadTest(cfg)
	printReport(stats, cfg.Duration)
	if stats.Total() == 0 {
		fmt.Println("WARNING: No requests completed. Is the gateway running?")
		os.Exit(1)
	}
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			ip := workerIP(0)
			if cfg.SpreadIPs {
				ip = workerIP(worker)
			}
			for i := worker; ctx.Err() == nil; i++ {
				account := cfg.Accounts[i%len(cfg.Accounts)]
				req, err := newStatusRequest(ctx, cfg.BaseURL, account, cfg.FormatType, ip)
				if err != nil {
					fmt.Fprintf(os.Stderr, "building request: %v\n", err)
					return
				}
				start := time.Now()
				resp, err := client.Do(req)
				elapsed := time.Since(start)
				if err != nil {
					if ctx.Err() == nil {
						stats.Record(elapsed, 0, err)
					}
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				stats.Record(elapsed, resp.StatusCode, nil)
			}
		}(w)
	}

	wg.Wait()
	return stats
}

func newStatusRequest(ctx context.Context, baseURL, account, formatType, ip string) (*http.Request, error) {
	body, err := json.Marshal(map[string]string{"accountNumber": account, "formatType": formatType})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/v1/tickets/status", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", ip)
	return req, nil
}

// workerIP maps a worker number onto 10.77.0.0/16.
func workerIP(worker int) string {
	return fmt.Sprintf("10.77.%d.%d", (worker/254)%256, worker%254+1)
}

func printReport(stats *Stats, duration time.Duration) {
	stats.mu.Lock()
	latencies := slices.Clone(stats.latencies)
	codes := make(map[int]int, len(stats.statusCodes))
	for k, v := range stats.statusCodes {
		codes[k] = v
	}
	transport := stats.transport
	stats.mu.Unlock()

	total := len(latencies) + transport
	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:   %d\n", total)
	fmt.Printf("Found (200):      %d\n", codes[http.StatusOK])
	fmt.Printf("Not found (404):  %d\n", codes[http.StatusNotFound])
	fmt.Printf("Throttled (429):  %d\n", codes[http.StatusTooManyRequests])
	fmt.Printf("Transport errors: %d\n", transport)
	if total > 0 {
		fmt.Printf("Requests/sec:     %.2f\n", float64(total)/duration.Seconds())
	}

	if len(latencies) > 0 {
		slices.Sort(latencies)
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", sum/time.Duration(len(latencies)))
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P90:    %s\n", percentile(latencies, 90))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	keys := make([]int, 0, len(codes))
	for code := range codes {
		keys = append(keys, code)
	}
	slices.Sort(keys)
	for _, code := range keys {
		fmt.Printf("  %d: %d\n", code, codes[code])
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}
