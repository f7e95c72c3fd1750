// Command notifier consumes ticket-created events from Kafka and emails the
// configured recipients.
//
// Usage:
//
//	go run ./cmd/notifier [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/notify"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting notifier service",
		"topic", cfg.Kafka.Topics.TicketCreated,
		"group", cfg.Kafka.ConsumerGroup,
		"smtp", cfg.Notify.Email.SMTPAddr,
	)

	email, err := notify.NewEmailNotifier(cfg.Notify.Email)
	if err != nil {
		slog.Error("invalid email configuration", "error", err)
		os.Exit(1)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	var stopMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		stopMetrics = metrics.StartServer(cfg.Metrics.Port)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler := notify.Relay(email, cfg.Notify.Timeout, resilience.RetryConfig{
		MaxAttempts:  4,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
	}, m)
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.TicketCreated, handler)

	slog.Info("notifier service ready, consuming from kafka")
	if err := consumer.Start(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}

	if stopMetrics != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := stopMetrics(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown error", "error", err)
		}
	}

	slog.Info("notifier service stopped")
}
