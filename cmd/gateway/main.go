// Command gateway starts the integration intake gateway.
//
// The gateway accepts integration requests from the public portal, verifies
// the caller's reCAPTCHA token, throttles each client IP, files a ticket in
// the tracker and fans out a ticket-created notification (Kafka and/or
// email). It also answers status lookups by searching the tracker.
//
// Usage:
//
//	go run ./cmd/gateway [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/audit"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/captcha"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/gateway/router"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/intake/handler"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/intake/pipeline"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/intake/statuscache"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/notify"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/tracker"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/tracker/schema"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/tracing"
)

// main loads configuration, connects the optional backing services (Redis,
// PostgreSQL, Kafka), assembles the submission and status pipelines and
// serves HTTP until SIGINT/SIGTERM, then drains in-flight notifications.
func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting intake gateway",
		"port", cfg.Server.Port,
		"tracker", cfg.Tracker.BaseURL,
		"project", cfg.Tracker.ProjectKey,
		"schema", cfg.Tracker.Schema,
		"ratelimit_backend", cfg.RateLimit.Backend,
		"notify_channels", cfg.Notify.Channels,
	)

	m := metrics.New(prometheus.DefaultRegisterer)
	var stopMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		stopMetrics = metrics.StartServer(cfg.Metrics.Port)
	}

	checker := health.NewChecker("intake-gateway")

	// Redis backs the shared rate-limit store and the status cache.
	var rdb *pkgredis.Client
	if cfg.RateLimit.Backend == "redis" || cfg.Tracker.StatusCacheTTL > 0 {
		rdb, err = pkgredis.NewClient(cfg.Redis)
		switch {
		case err != nil && cfg.RateLimit.Backend == "redis":
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		case err != nil:
			slog.Warn("redis unavailable, status cache disabled", "error", err)
			rdb = nil
		default:
			defer rdb.Close()
			checker.Register("redis", health.PingCheck(rdb.Ping, false))
			slog.Info("connected to redis", "addr", cfg.Redis.Addr)
		}
	}

	submitStore, statusStore := newStores(cfg.RateLimit.Backend, rdb)
	defer submitStore.Close()
	defer statusStore.Close()

	// PostgreSQL audit ledger.
	var auditLog pipeline.AuditLog
	if cfg.Audit.Enabled {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		store := audit.NewStore(db)
		migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = store.Migrate(migrateCtx)
		cancel()
		if err != nil {
			slog.Error("failed to migrate audit table", "error", err)
			os.Exit(1)
		}
		auditLog = store
		checker.Register("postgres", health.PingCheck(db.Ping, false))
		slog.Info("audit ledger enabled", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	}

	// Notification channels.
	notifiers, closeNotifiers, err := newNotifiers(cfg)
	if err != nil {
		slog.Error("failed to configure notifications", "error", err)
		os.Exit(1)
	}
	defer closeNotifiers()
	dispatcher := notify.NewDispatcher(cfg.Notify.Timeout, m, notifiers...)

	// Tracker.
	fieldSchema, err := schema.Resolve(cfg.Tracker.Schema, cfg.Tracker.SchemaFile)
	if err != nil {
		slog.Error("failed to load field schema", "error", err)
		os.Exit(1)
	}
	auth, err := tracker.NewAuthenticator(cfg.Tracker.Auth)
	if err != nil {
		slog.Error("invalid tracker auth", "error", err)
		os.Exit(1)
	}
	tickets := tracker.NewClient(cfg.Tracker, auth, nil, m)

	tracer := tracing.NewTracer(cfg.Tracing.Enabled, func(stage string, d time.Duration) {
		m.PipelineStageDuration.WithLabelValues(stage).Observe(d.Seconds())
	})

	var kv statuscache.KV
	if rdb != nil {
		kv = rdb
	}
	cache := statuscache.New(kv, cfg.Tracker.StatusCacheTTL, m)

	submitCfg := pipeline.SubmitterConfig{
		Limiter:      ratelimit.New("submit", submitStore, cfg.RateLimit.SubmitCooldown, m),
		Cooldown:     cfg.RateLimit.SubmitCooldown,
		Captcha:      captcha.NewVerifier(cfg.Captcha, nil, m),
		Tickets:      tickets,
		Schema:       fieldSchema,
		Target:       schema.Target{ProjectKey: cfg.Tracker.ProjectKey, IssueType: cfg.Tracker.IssueType},
		Audit:        auditLog,
		AuditTimeout: cfg.Audit.Timeout,
		Cache:        cache,
		Tracer:       tracer,
		Metrics:      m,
	}
	if dispatcher.Enabled() {
		submitCfg.Notifier = dispatcher
	}
	submitter := pipeline.NewSubmitter(submitCfg)

	var status handler.StatusLooker
	if fieldSchema.SupportsStatusLookup() {
		status = pipeline.NewStatusService(pipeline.StatusConfig{
			Limiter:    ratelimit.New("status", statusStore, cfg.RateLimit.StatusCooldown, m),
			Tickets:    tickets,
			Schema:     fieldSchema,
			ProjectKey: cfg.Tracker.ProjectKey,
			Cache:      cache,
			Metrics:    m,
		})
	} else {
		slog.Warn("field schema has no correlation field, status lookup disabled", "schema", fieldSchema.Name)
	}

	chain := router.New(handler.New(submitter, status), checker, m, cfg.Server, cfg.CORS)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("intake gateway listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := dispatcher.Close(drainCtx); err != nil {
		slog.Warn("notifications still in flight at shutdown", "error", err)
	}
	if stopMetrics != nil {
		if err := stopMetrics(drainCtx); err != nil {
			slog.Error("metrics server shutdown error", "error", err)
		}
	}

	slog.Info("intake gateway stopped")
}

type closableStore interface {
	ratelimit.Store
	Close() error
}

// newStores returns the submit and status rate-limit stores for backend.
func newStores(backend string, rdb *pkgredis.Client) (submit, status closableStore) {
	if backend == "redis" {
		return nopCloser{ratelimit.NewRedisStore(rdb, "intake:ratelimit:submit")},
			nopCloser{ratelimit.NewRedisStore(rdb, "intake:ratelimit:status")}
	}
	return ratelimit.NewMemoryStore(time.Minute), ratelimit.NewMemoryStore(time.Minute)
}

// nopCloser adapts a store whose connection is owned elsewhere.
type nopCloser struct {
	ratelimit.Store
}

func (nopCloser) Close() error { return nil }

// newNotifiers builds one Notifier per configured channel. The returned
// func releases their connections.
func newNotifiers(cfg *config.Config) ([]notify.Notifier, func(), error) {
	var (
		notifiers []notify.Notifier
		closers   []func() error
	)
	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				slog.Error("failed to close notifier", "error", err)
			}
		}
	}
	for _, channel := range cfg.Notify.Channels {
		switch channel {
		case "kafka":
			producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.TicketCreated)
			closers = append(closers, producer.Close)
			notifiers = append(notifiers, notify.NewKafkaNotifier(producer))
			slog.Info("kafka notifications enabled", "topic", cfg.Kafka.Topics.TicketCreated)
		case "email":
			email, err := notify.NewEmailNotifier(cfg.Notify.Email)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			notifiers = append(notifiers, email)
			slog.Info("email notifications enabled", "smtp", cfg.Notify.Email.SMTPAddr)
		default:
			closeAll()
			return nil, nil, fmt.Errorf("unknown notification channel %q", channel)
		}
	}
	return notifiers, closeAll, nil
}
