package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/captcha"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/intake/handler"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/intake/pipeline"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/tracker"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/tracker/schema"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/metrics"
)

type gateway struct {
	handler  http.Handler
	creates  atomic.Int32
	searches atomic.Int32
}

// newGateway assembles the full stack against fake tracker and CAPTCHA
// servers, the same way cmd/gateway does.
func newGateway(t *testing.T) *gateway {
	t.Helper()
	g := &gateway{}

	jira := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rest/api/3/issue":
			g.creates.Add(1)
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id":"10001","key":"EDI-42"}`))
		case "/rest/api/3/search":
			g.searches.Add(1)
			var req struct {
				JQL string `json:"jql"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			if strings.Contains(req.JQL, `"ACCT-1"`) {
				w.Write([]byte(`{"total":1,"issues":[{"id":"10001","key":"EDI-42","fields":{"customfield_10228":{"value":"In Progress"}}}]}`))
				return
			}
			w.Write([]byte(`{"total":0,"issues":[]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(jira.Close)

	recaptcha := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		w.Write([]byte(`{"success":` + map[bool]string{true: "true", false: "false"}[r.PostForm.Get("response") == "good"] + `}`))
	}))
	t.Cleanup(recaptcha.Close)

	m := metrics.NewUnregistered()
	store := ratelimit.NewMemoryStore(0)
	t.Cleanup(func() { store.Close() })

	tc := config.TrackerConfig{BaseURL: jira.URL, APIVersion: "3", ProjectKey: "EDI", IssueType: "LOB_MAP", Timeout: time.Second}
	client := tracker.NewClient(tc, tracker.BearerAuth{Token: "t"}, nil, m)
	verifier := captcha.NewVerifier(config.CaptchaConfig{VerifyURL: recaptcha.URL, Secret: "s", Timeout: time.Second}, nil, m)

	submitter := pipeline.NewSubmitter(pipeline.SubmitterConfig{
		Limiter:  ratelimit.New("submit", store, 10*time.Minute, m),
		Cooldown: 10 * time.Minute,
		Captcha:  verifier,
		Tickets:  client,
		Schema:   schema.LOBMap(),
		Target:   schema.Target{ProjectKey: "EDI", IssueType: "LOB_MAP"},
		Metrics:  m,
	})
	status := pipeline.NewStatusService(pipeline.StatusConfig{
		Tickets:    client,
		Schema:     schema.LOBMap(),
		ProjectKey: "EDI",
		Metrics:    m,
	})

	cors := config.CORSConfig{AllowOrigins: []string{"*"}, AllowMethods: []string{"POST", "OPTIONS"}, AllowHeaders: []string{"Content-Type"}}
	server := config.ServerConfig{RequestTimeout: 5 * time.Second, MaxBodyBytes: 64 << 10, TrustProxyHeaders: true, TrustedProxyHops: 1}
	g.handler = New(handler.New(submitter, status), health.NewChecker("gateway"), m, server, cors)
	return g
}

func (g *gateway) do(method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	g.handler.ServeHTTP(rec, req)
	return rec
}

const submission = `{"formatType":"EDI","messages":["850","855"],"name":"A","company":"B","email":"a@b.com","recaptchaToken":"good"}`

func TestSubmitThenThrottle(t *testing.T) {
	g := newGateway(t)
	ip := map[string]string{"X-Forwarded-For": "203.0.113.7"}

	rec := g.do(http.MethodPost, "/api/v1/tickets", submission, ip)
	if rec.Code != http.StatusOK {
		t.Fatalf("first submit = %d %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"ticketKey":"EDI-42"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing request id")
	}

	rec = g.do(http.MethodPost, "/api/v1/tickets", submission, ip)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second submit = %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	if !strings.Contains(rec.Body.String(), "Only one request per 10 minutes is allowed.") {
		t.Errorf("body = %s", rec.Body.String())
	}
	if n := g.creates.Load(); n != 1 {
		t.Errorf("creates = %d", n)
	}

	rec = g.do(http.MethodPost, "/api/v1/tickets", submission, map[string]string{"X-Forwarded-For": "198.51.100.1"})
	if rec.Code != http.StatusOK {
		t.Errorf("other client = %d", rec.Code)
	}
}

func TestSubmitRejectedCaptcha(t *testing.T) {
	g := newGateway(t)
	rec := g.do(http.MethodPost, "/api/v1/tickets", strings.Replace(submission, `"good"`, `"bad"`, 1), nil)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "Invalid reCAPTCHA. Please try again.") {
		t.Errorf("submit = %d %s", rec.Code, rec.Body.String())
	}
	if g.creates.Load() != 0 {
		t.Error("ticket created")
	}
}

func TestStatusRoute(t *testing.T) {
	g := newGateway(t)

	rec := g.do(http.MethodPost, "/api/v1/tickets/status", `{"accountNumber":"ACCT-1","formatType":"EDI"}`, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"In Progress"`) {
		t.Errorf("found = %d %s", rec.Code, rec.Body.String())
	}

	rec = g.do(http.MethodPost, "/api/v1/tickets/status", `{"accountNumber":"NOPE","formatType":"EDI"}`, nil)
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), `"found":false`) {
		t.Errorf("not found = %d %s", rec.Code, rec.Body.String())
	}

	rec = g.do(http.MethodPost, "/api/v1/tickets/status", `{"formatType":"EDI"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid = %d", rec.Code)
	}
}

func TestRoutingEdges(t *testing.T) {
	g := newGateway(t)
	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/api/v1/tickets", http.StatusMethodNotAllowed},
		{http.MethodPut, "/api/v1/tickets/status", http.StatusMethodNotAllowed},
		{http.MethodOptions, "/api/v1/tickets", http.StatusOK},
		{http.MethodOptions, "/api/v1/tickets/status", http.StatusOK},
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/health/live", http.StatusOK},
		{http.MethodGet, "/health/ready", http.StatusOK},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := g.do(tt.method, tt.path, "", map[string]string{"Origin": "https://portal.example.com"})
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.method == http.MethodOptions && rec.Body.Len() != 0 {
				t.Errorf("preflight body = %q", rec.Body.String())
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
				t.Errorf("allow-origin = %q", got)
			}
		})
	}
	if g.creates.Load() != 0 || g.searches.Load() != 0 {
		t.Error("edge requests reached the tracker")
	}
}
