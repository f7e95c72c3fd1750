package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/resilience"
)

const maxResponseBytes = 1 << 20

// Client talks to the tracker REST API.
type Client struct {
	baseURL    string
	apiVersion string
	auth       Authenticator
	timeout    time.Duration
	http       *http.Client
	breaker    *resilience.CircuitBreaker
	retry      resilience.RetryConfig
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewClient builds a Client. httpClient and m may be nil.
func NewClient(cfg config.TrackerConfig, auth Authenticator, httpClient *http.Client, m *metrics.Metrics) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if m == nil {
		m = metrics.NewUnregistered()
	}
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = "3"
	}
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiVersion: apiVersion,
		auth:       auth,
		timeout:    cfg.Timeout,
		http:       httpClient,
		retry: resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Retryable:    retryableSearchError,
		},
		metrics: m,
		logger:  slog.Default().With("component", "tracker-client"),
	}
	c.breaker = resilience.NewCircuitBreaker("tracker", resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		IsFailure:        countsAsFailure,
		OnStateChange: func(name string, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
	return c
}

// Create posts a new issue. It is never retried: a lost response could
// otherwise produce duplicate tickets.
func (c *Client) Create(ctx context.Context, payload IssuePayload) (TicketRef, error) {
	var out createResponse
	if err := c.call(ctx, OpCreate, "/issue", payload, &out); err != nil {
		return TicketRef{}, err
	}
	if out.Key == "" {
		return TicketRef{}, fmt.Errorf("%w: response carried no issue key", apperrors.ErrTicketCreateFailed)
	}
	return TicketRef{ID: out.ID, Key: out.Key, URL: c.BrowseURL(out.Key)}, nil
}

// Search runs a JQL query. No hits is an empty slice, not an error.
// Transport failures are retried with backoff.
func (c *Client) Search(ctx context.Context, jql string, fields []string, maxResults int) ([]Issue, error) {
	req := searchRequest{JQL: jql, Fields: fields, MaxResults: maxResults}
	var out searchResponse
	err := resilience.Retry(ctx, "tracker.search", c.retry, func() error {
		out = searchResponse{}
		return c.call(ctx, OpSearch, "/search", req, &out)
	})
	if err != nil {
		return nil, err
	}
	if out.Issues == nil {
		return []Issue{}, nil
	}
	return out.Issues, nil
}

// BrowseURL is the human-facing link to an issue.
func (c *Client) BrowseURL(key string) string {
	return c.baseURL + "/browse/" + key
}

func (c *Client) call(ctx context.Context, op, path string, body, out any) error {
	start := time.Now()
	err := c.breaker.Execute(func() error {
		callCtx := ctx
		if c.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
		err := c.do(callCtx, op, path, body, out)
		if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: tracker %s exceeded %v: %w", apperrors.ErrTimeout, op, c.timeout, err)
		}
		return err
	})
	c.metrics.TrackerRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	c.metrics.TrackerRequestsTotal.WithLabelValues(op, resultLabel(err)).Inc()
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return fmt.Errorf("%w: %w", apperrors.ErrTransport, err)
	}
	return err
}

func (c *Client) do(ctx context.Context, op, path string, body, out any) error {
	log := logger.FromContext(ctx).With("component", "tracker-client", "operation", op)

	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: encoding %s request: %w", apperrors.ErrInternal, op, err)
	}
	url := fmt.Sprintf("%s/rest/api/%s%s", c.baseURL, c.apiVersion, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("%w: building %s request: %w", apperrors.ErrInternal, op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if id := logger.RequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}
	if c.auth != nil {
		c.auth.Apply(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		log.Warn("tracker unreachable", "error", err)
		return fmt.Errorf("%w: tracker %s: %w", apperrors.ErrTransport, op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: reading tracker %s response: %w", apperrors.ErrTransport, op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Op: op, StatusCode: resp.StatusCode, Body: logger.Redact(string(raw))}
		log.Error("tracker returned error status",
			"status", resp.StatusCode,
			"body", apiErr.Body,
		)
		return apiErr
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decoding tracker %s response: %w", sentinelFor(op), op, err)
	}
	return nil
}

func sentinelFor(op string) error {
	if op == OpSearch {
		return apperrors.ErrTicketSearchFailed
	}
	return apperrors.ErrTicketCreateFailed
}

// countsAsFailure keeps caller mistakes (4xx) from tripping the breaker.
func countsAsFailure(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.serverSide()
	}
	return errors.Is(err, apperrors.ErrTransport) || errors.Is(err, apperrors.ErrTimeout)
}

func retryableSearchError(err error) bool {
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return false
	}
	return errors.Is(err, apperrors.ErrTransport) || errors.Is(err, apperrors.ErrTimeout)
}

func resultLabel(err error) string {
	var apiErr *APIError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "circuit_open"
	case errors.As(err, &apiErr):
		return "http_error"
	case errors.Is(err, apperrors.ErrTransport), errors.Is(err, apperrors.ErrTimeout):
		return "transport_error"
	default:
		return "error"
	}
}
