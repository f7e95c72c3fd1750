// Package router wires up the intake gateway routes and applies the
// middleware chain.
package router

import (
	"net/http"

	gwmw "github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/gateway/middleware"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/intake/handler"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/metrics"
	pkgmw "github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/middleware"
)

// New builds the gateway HTTP handler with all routes and middleware.
//
// Route table:
//
//	POST   /api/v1/tickets          → submit an integration request
//	POST   /api/v1/tickets/status   → look up a request's status
//	*      /api/v1/tickets[/status] → 405
//	GET    /health                  → full health report
//	GET    /health/live             → liveness
//	GET    /health/ready            → readiness
//
// Middleware chain (outermost first):
//
//	RequestID → Metrics → CORS → ClientIP → Timeout → BodyLimit → mux
func New(h *handler.Handler, checker *health.Checker, m *metrics.Metrics, server config.ServerConfig, cors config.CORSConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", checker.Handler())
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	mux.HandleFunc("POST /api/v1/tickets", h.Submit)
	mux.HandleFunc("/api/v1/tickets", h.SubmitMethodNotAllowed)
	mux.HandleFunc("POST /api/v1/tickets/status", h.Status)
	mux.HandleFunc("/api/v1/tickets/status", h.StatusMethodNotAllowed)

	var chain http.Handler = mux
	chain = pkgmw.BodyLimit(server.MaxBodyBytes)(chain)
	chain = pkgmw.Timeout(server.RequestTimeout)(chain)
	chain = gwmw.ClientIPMiddleware(server.TrustProxyHeaders, server.TrustedProxyHops)(chain)
	chain = gwmw.CORS(cors)(chain)
	chain = pkgmw.Metrics(m)(chain)
	chain = pkgmw.RequestID(chain)

	return chain
}
