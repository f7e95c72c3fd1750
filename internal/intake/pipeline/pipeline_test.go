package pipeline

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/audit"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/intake"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/notify"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/tracker"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/tracker/schema"
	apperrors "github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/tracing"
)

type fakeCaptcha struct {
	ok    bool
	err   error
	calls int
}

func (f *fakeCaptcha) Verify(context.Context, string, string) (bool, error) {
	f.calls++
	return f.ok, f.err
}

type fakeTracker struct {
	mu       sync.Mutex
	err      error
	calls    int
	payloads []tracker.IssuePayload
	issues   []tracker.Issue
	jql      string
	fields   []string
}

func (f *fakeTracker) Create(_ context.Context, p tracker.IssuePayload) (tracker.TicketRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.payloads = append(f.payloads, p)
	if f.err != nil {
		return tracker.TicketRef{}, f.err
	}
	return tracker.TicketRef{ID: "10001", Key: "EDI-42", URL: "https://jira.example/browse/EDI-42"}, nil
}

func (f *fakeTracker) Search(_ context.Context, jql string, fields []string, _ int) ([]tracker.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.jql, f.fields = jql, fields
	if f.err != nil {
		return nil, f.err
	}
	return f.issues, nil
}

type failingNotifier struct{ called chan struct{} }

func (failingNotifier) Name() string { return "email" }

func (f failingNotifier) Notify(context.Context, notify.TicketCreatedEvent) error {
	close(f.called)
	return errors.New("smtp: 421 service not available")
}

type failingAudit struct{}

func (failingAudit) Record(context.Context, audit.Record) error {
	return errors.New("relation does not exist")
}

type slowAudit struct{ gaveUp chan struct{} }

func (a slowAudit) Record(ctx context.Context, _ audit.Record) error {
	<-ctx.Done()
	close(a.gaveUp)
	return ctx.Err()
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	submitter *Submitter
	clock     *testClock
	captcha   *fakeCaptcha
	tracker   *fakeTracker
	metrics   *metrics.Metrics
}

func newFixture(t *testing.T, cooldown time.Duration, dispatcher Dispatcher) *fixture {
	t.Helper()
	m := metrics.NewUnregistered()
	store := ratelimit.NewMemoryStore(0)
	t.Cleanup(func() { store.Close() })
	f := &fixture{
		clock:   &testClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		captcha: &fakeCaptcha{ok: true},
		tracker: &fakeTracker{},
		metrics: m,
	}
	f.submitter = NewSubmitter(SubmitterConfig{
		Limiter:  ratelimit.New("submit", store, cooldown, m).WithClock(f.clock.Now),
		Cooldown: cooldown,
		Captcha:  f.captcha,
		Tickets:  f.tracker,
		Schema:   schema.LOBMap(),
		Target:   schema.Target{ProjectKey: "EDI", IssueType: "LOB_MAP"},
		Notifier: dispatcher,
		Tracer:   tracing.NewTracer(false, nil),
		Metrics:  m,
	})
	return f
}

func validRequest() intake.SubmissionRequest {
	return intake.SubmissionRequest{
		FormatType:     "EDI",
		Messages:       []string{"850", "855"},
		Name:           "A",
		Company:        "B",
		Email:          "a@b.com",
		RecaptchaToken: "tok",
	}
}

func TestSubmitCreatesTicket(t *testing.T) {
	f := newFixture(t, time.Minute, nil)
	receipt, err := f.submitter.Submit(context.Background(), "203.0.113.7", validRequest())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if receipt.TicketKey != "EDI-42" {
		t.Errorf("receipt = %+v", receipt)
	}
	if len(f.tracker.payloads) != 1 || f.tracker.payloads[0].Summary != "New Integration Request - B" {
		t.Errorf("payloads = %+v", f.tracker.payloads)
	}
	if got := metrics.CounterValue(f.metrics.SubmissionsTotal.WithLabelValues("created")); got != 1 {
		t.Errorf("created = %v", got)
	}
}

func TestSubmitValidationMakesNoOutboundCalls(t *testing.T) {
	f := newFixture(t, time.Minute, nil)
	req := validRequest()
	req.Email = ""
	_, err := f.submitter.Submit(context.Background(), "ip", req)
	if !errors.Is(err, apperrors.ErrInvalidInput) || apperrors.HTTPStatusCode(err) != http.StatusBadRequest {
		t.Fatalf("err = %v", err)
	}
	if apperrors.Message(err, "") != "Missing required fields" {
		t.Errorf("message = %q", apperrors.Message(err, ""))
	}
	if f.captcha.calls != 0 || f.tracker.calls != 0 {
		t.Errorf("outbound calls: captcha=%d tracker=%d", f.captcha.calls, f.tracker.calls)
	}
	if _, err := f.submitter.Submit(context.Background(), "ip", validRequest()); err != nil {
		t.Errorf("invalid submission consumed the window: %v", err)
	}
}

func TestSubmitThrottlesWithinWindow(t *testing.T) {
	f := newFixture(t, 10*time.Minute, nil)
	ctx := context.Background()
	if _, err := f.submitter.Submit(ctx, "ip", validRequest()); err != nil {
		t.Fatal(err)
	}
	_, err := f.submitter.Submit(ctx, "ip", validRequest())
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || appErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("err = %v, want 429", err)
	}
	if appErr.RetryAfter != 10*time.Minute {
		t.Errorf("retryAfter = %v, want 10m", appErr.RetryAfter)
	}
	if f.captcha.calls != 1 {
		t.Errorf("throttled request reached captcha")
	}
	if _, err := f.submitter.Submit(ctx, "other-ip", validRequest()); err != nil {
		t.Errorf("other identity throttled: %v", err)
	}

	f.clock.Advance(9 * time.Minute)
	_, err = f.submitter.Submit(ctx, "ip", validRequest())
	if !errors.As(err, &appErr) || appErr.RetryAfter != time.Minute {
		t.Fatalf("err = %v, want 429 with 1m left", err)
	}

	f.clock.Advance(time.Minute)
	if _, err := f.submitter.Submit(ctx, "ip", validRequest()); err != nil {
		t.Errorf("after window: %v", err)
	}
}

func TestSubmitCaptchaRejectedCreatesNothing(t *testing.T) {
	f := newFixture(t, time.Minute, nil)
	f.captcha.ok = false
	_, err := f.submitter.Submit(context.Background(), "ip", validRequest())
	if !errors.Is(err, apperrors.ErrCaptchaRejected) || apperrors.HTTPStatusCode(err) != http.StatusBadRequest {
		t.Fatalf("err = %v", err)
	}
	if f.tracker.calls != 0 {
		t.Error("ticket created after captcha rejection")
	}

	f.captcha.ok = true
	if _, err := f.submitter.Submit(context.Background(), "ip", validRequest()); err != nil {
		t.Errorf("rejected captcha consumed the window: %v", err)
	}
}

func TestSubmitCaptchaUnavailable(t *testing.T) {
	f := newFixture(t, time.Minute, nil)
	f.captcha.err = apperrors.ErrVerificationUnavailable
	_, err := f.submitter.Submit(context.Background(), "ip", validRequest())
	if !errors.Is(err, apperrors.ErrVerificationUnavailable) || apperrors.HTTPStatusCode(err) != http.StatusInternalServerError {
		t.Fatalf("err = %v", err)
	}
	if f.tracker.calls != 0 {
		t.Error("ticket created without verification")
	}
}

func TestSubmitCreateFailureDoesNotCommit(t *testing.T) {
	f := newFixture(t, time.Minute, nil)
	f.tracker.err = &tracker.APIError{Op: tracker.OpCreate, StatusCode: 400, Body: "field required"}
	_, err := f.submitter.Submit(context.Background(), "ip", validRequest())
	if !errors.Is(err, apperrors.ErrTicketCreateFailed) || apperrors.HTTPStatusCode(err) != http.StatusInternalServerError {
		t.Fatalf("err = %v", err)
	}
	if apperrors.Message(err, "") != "Failed to create Jira ticket." {
		t.Errorf("message = %q", apperrors.Message(err, ""))
	}

	f.tracker.err = nil
	if _, err := f.submitter.Submit(context.Background(), "ip", validRequest()); err != nil {
		t.Fatalf("retry after failed create was throttled: %v", err)
	}
}

func TestSubmitNotificationFailureStillSucceeds(t *testing.T) {
	called := make(chan struct{})
	d := notify.NewDispatcher(time.Second, nil, failingNotifier{called: called})
	f := newFixture(t, time.Minute, d)
	f.submitter.cfg.Audit = failingAudit{}

	receipt, err := f.submitter.Submit(context.Background(), "ip", validRequest())
	if err != nil || receipt.TicketKey != "EDI-42" {
		t.Fatalf("receipt = %v err = %v", receipt, err)
	}
	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("notifier never ran")
	}
	if err := d.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	_, err = f.submitter.Submit(context.Background(), "ip", validRequest())
	if !errors.Is(err, apperrors.ErrRateLimited) {
		t.Errorf("successful submission was not committed: %v", err)
	}
}

func TestSubmitAuditTimeoutDoesNotHoldResponse(t *testing.T) {
	f := newFixture(t, time.Minute, nil)
	gaveUp := make(chan struct{})
	f.submitter.cfg.Audit = slowAudit{gaveUp: gaveUp}
	f.submitter.cfg.AuditTimeout = 20 * time.Millisecond

	start := time.Now()
	receipt, err := f.submitter.Submit(context.Background(), "ip", validRequest())
	if err != nil || receipt.TicketKey != "EDI-42" {
		t.Fatalf("receipt = %v err = %v", receipt, err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("submit took %v with a stalled audit store", elapsed)
	}
	select {
	case <-gaveUp:
	default:
		t.Error("audit insert was not cancelled")
	}
}

func TestNewSubmitterDefaultsAuditTimeout(t *testing.T) {
	s := NewSubmitter(SubmitterConfig{})
	if s.cfg.AuditTimeout != defaultAuditTimeout {
		t.Errorf("AuditTimeout = %v, want %v", s.cfg.AuditTimeout, defaultAuditTimeout)
	}
}

type recordingCache struct {
	invalidated []intake.StatusQuery
}

func (r *recordingCache) GetOrCompute(ctx context.Context, _ intake.StatusQuery, compute func(context.Context) (intake.Lookup, error)) (intake.Lookup, bool, error) {
	l, err := compute(ctx)
	return l, false, err
}

func (r *recordingCache) Invalidate(_ context.Context, q intake.StatusQuery) {
	r.invalidated = append(r.invalidated, q)
}

func TestSubmitInvalidatesStatusCache(t *testing.T) {
	f := newFixture(t, time.Minute, nil)
	cache := &recordingCache{}
	f.submitter.cfg.Cache = cache
	req := validRequest()
	req.Extensions = map[string]string{"customfield_10244": "ACCT-1"}
	if _, err := f.submitter.Submit(context.Background(), "ip", req); err != nil {
		t.Fatal(err)
	}
	if len(cache.invalidated) != 1 || cache.invalidated[0] != (intake.StatusQuery{AccountNumber: "ACCT-1", FormatType: "EDI"}) {
		t.Errorf("invalidated = %v", cache.invalidated)
	}
}

func TestWindow(t *testing.T) {
	tests := map[time.Duration]string{
		10 * time.Minute:        "10 minutes",
		time.Minute:             "1 minute",
		30 * time.Second:        "30 seconds",
		time.Hour:               "1 hour",
		90 * time.Second:        "90 seconds",
		1500 * time.Millisecond: "2 seconds",
	}
	for d, want := range tests {
		if got := Window(d); got != want {
			t.Errorf("Window(%v) = %q, want %q", d, got, want)
		}
	}
}
