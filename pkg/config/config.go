// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Tracker, Captcha, RateLimit, Notify, Redis, Kafka, etc.).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	CORS      CORSConfig      `yaml:"cors"`
	Tracker   TrackerConfig   `yaml:"tracker"`
	Captcha   CaptchaConfig   `yaml:"captcha"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Notify    NotifyConfig    `yaml:"notify"`
	Audit     AuditConfig     `yaml:"audit"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port              int           `yaml:"port"`
	ReadTimeout       time.Duration `yaml:"readTimeout"`
	WriteTimeout      time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout    time.Duration `yaml:"requestTimeout"`
	MaxBodyBytes      int64         `yaml:"maxBodyBytes"`
	TrustProxyHeaders bool          `yaml:"trustProxyHeaders"`
	TrustedProxyHops  int           `yaml:"trustedProxyHops"`
}

// CORSConfig controls the headers emitted for browser callers.
type CORSConfig struct {
	AllowOrigins []string `yaml:"allowOrigins"`
	AllowMethods []string `yaml:"allowMethods"`
	AllowHeaders []string `yaml:"allowHeaders"`
	MaxAge       int      `yaml:"maxAge"`
}

// TrackerConfig describes the ticket tracker (Jira) the gateway creates
// issues in, the credentials used, and the field schema applied.
type TrackerConfig struct {
	BaseURL        string        `yaml:"baseUrl"`
	APIVersion     string        `yaml:"apiVersion"`
	ProjectKey     string        `yaml:"projectKey"`
	IssueType      string        `yaml:"issueType"`
	Auth           TrackerAuth   `yaml:"auth"`
	Timeout        time.Duration `yaml:"timeout"`
	Schema         string        `yaml:"schema"`
	SchemaFile     string        `yaml:"schemaFile"`
	StatusCacheTTL time.Duration `yaml:"statusCacheTTL"`
}

// TrackerAuth selects the authentication strategy for tracker calls.
// Mode is "basic" (Email + Token) or "bearer" (Token).
type TrackerAuth struct {
	Mode  string `yaml:"mode"`
	Email string `yaml:"email"`
	Token string `yaml:"token"`
}

// CaptchaConfig holds the verification endpoint and shared secret.
type CaptchaConfig struct {
	VerifyURL string        `yaml:"verifyUrl"`
	Secret    string        `yaml:"secret"`
	MinScore  float64       `yaml:"minScore"`
	Timeout   time.Duration `yaml:"timeout"`
}

// RateLimitConfig sets the per-IP cooldown windows. Backend is "memory" or
// "redis". A zero cooldown disables throttling for that route.
type RateLimitConfig struct {
	Backend        string        `yaml:"backend"`
	SubmitCooldown time.Duration `yaml:"submitCooldown"`
	StatusCooldown time.Duration `yaml:"statusCooldown"`
}

// NotifyConfig lists the notification channels ("email", "kafka") fired
// after a ticket is created.
type NotifyConfig struct {
	Channels []string      `yaml:"channels"`
	Timeout  time.Duration `yaml:"timeout"`
	Email    EmailConfig   `yaml:"email"`
}

// EmailConfig holds SMTP relay settings and the sender/recipients.
type EmailConfig struct {
	SMTPAddr string   `yaml:"smtpAddr"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

// AuditConfig toggles the PostgreSQL submission ledger and bounds each
// insert.
type AuditConfig struct {
	Enabled bool          `yaml:"enabled"`
	Timeout time.Duration `yaml:"timeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	TicketCreated string `yaml:"ticketCreated"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls span logging for pipeline stages.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// Validate reports every missing value the gateway cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Tracker.BaseURL == "" {
		errs = append(errs, errors.New("tracker.baseUrl is required"))
	}
	if c.Tracker.ProjectKey == "" {
		errs = append(errs, errors.New("tracker.projectKey is required"))
	}
	switch c.Tracker.Auth.Mode {
	case "basic":
		if c.Tracker.Auth.Email == "" || c.Tracker.Auth.Token == "" {
			errs = append(errs, errors.New("tracker.auth basic mode requires email and token"))
		}
	case "bearer":
		if c.Tracker.Auth.Token == "" {
			errs = append(errs, errors.New("tracker.auth bearer mode requires token"))
		}
	default:
		errs = append(errs, fmt.Errorf("tracker.auth.mode %q is not one of basic, bearer", c.Tracker.Auth.Mode))
	}
	if c.Server.TrustProxyHeaders && c.Server.TrustedProxyHops < 1 {
		errs = append(errs, errors.New("server.trustedProxyHops must be at least 1 when trustProxyHeaders is set"))
	}
	if c.Captcha.Secret == "" {
		errs = append(errs, errors.New("captcha.secret is required"))
	}
	switch c.RateLimit.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("rateLimit.backend %q is not one of memory, redis", c.RateLimit.Backend))
	}
	for _, ch := range c.Notify.Channels {
		switch ch {
		case "email":
			if c.Notify.Email.SMTPAddr == "" || c.Notify.Email.From == "" || len(c.Notify.Email.To) == 0 {
				errs = append(errs, errors.New("notify.email requires smtpAddr, from and to"))
			}
		case "kafka":
			if len(c.Kafka.Brokers) == 0 || c.Kafka.Topics.TicketCreated == "" {
				errs = append(errs, errors.New("notify kafka channel requires kafka.brokers and kafka.topics.ticketCreated"))
			}
		default:
			errs = append(errs, fmt.Errorf("notify channel %q is not one of email, kafka", ch))
		}
	}
	return errors.Join(errs...)
}

// defaultConfig returns a Config with defaults suitable for local
// development. Secrets have no defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              8080,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			ShutdownTimeout:   15 * time.Second,
			RequestTimeout:    25 * time.Second,
			MaxBodyBytes:      64 << 10,
			TrustProxyHeaders: true,
			TrustedProxyHops:  1,
		},
		CORS: CORSConfig{
			AllowOrigins: []string{"*"},
			AllowMethods: []string{"POST", "OPTIONS"},
			AllowHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
			MaxAge:       86400,
		},
		Tracker: TrackerConfig{
			APIVersion: "3",
			IssueType:  "LOB_MAP",
			Auth:       TrackerAuth{Mode: "basic"},
			Timeout:    10 * time.Second,
			Schema:     "lob-map",
		},
		Captcha: CaptchaConfig{
			VerifyURL: "https://www.google.com/recaptcha/api/siteverify",
			Timeout:   5 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Backend:        "memory",
			SubmitCooldown: 10 * time.Minute,
			StatusCooldown: 30 * time.Second,
		},
		Notify: NotifyConfig{
			Timeout: 10 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "intake",
			User:            "intake",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "intake-notifier",
			Topics: KafkaTopics{
				TicketCreated: "ticket-created",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads INTAKE_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("INTAKE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("INTAKE_SERVER_TRUSTED_PROXY_HOPS"); v != "" {
		if hops, err := strconv.Atoi(v); err == nil {
			cfg.Server.TrustedProxyHops = hops
		}
	}
	if v := os.Getenv("INTAKE_CORS_ALLOW_ORIGINS"); v != "" {
		cfg.CORS.AllowOrigins = splitList(v)
	}
	if v := os.Getenv("INTAKE_TRACKER_BASE_URL"); v != "" {
		cfg.Tracker.BaseURL = v
	}
	if v := os.Getenv("INTAKE_TRACKER_PROJECT_KEY"); v != "" {
		cfg.Tracker.ProjectKey = v
	}
	if v := os.Getenv("INTAKE_TRACKER_ISSUE_TYPE"); v != "" {
		cfg.Tracker.IssueType = v
	}
	if v := os.Getenv("INTAKE_TRACKER_AUTH_MODE"); v != "" {
		cfg.Tracker.Auth.Mode = v
	}
	if v := os.Getenv("INTAKE_TRACKER_EMAIL"); v != "" {
		cfg.Tracker.Auth.Email = v
	}
	if v := os.Getenv("INTAKE_TRACKER_TOKEN"); v != "" {
		cfg.Tracker.Auth.Token = v
	}
	if v := os.Getenv("INTAKE_TRACKER_SCHEMA"); v != "" {
		cfg.Tracker.Schema = v
	}
	if v := os.Getenv("INTAKE_TRACKER_SCHEMA_FILE"); v != "" {
		cfg.Tracker.SchemaFile = v
	}
	if v := os.Getenv("INTAKE_CAPTCHA_SECRET"); v != "" {
		cfg.Captcha.Secret = v
	}
	if v := os.Getenv("INTAKE_RATELIMIT_BACKEND"); v != "" {
		cfg.RateLimit.Backend = v
	}
	if v := os.Getenv("INTAKE_RATELIMIT_SUBMIT_COOLDOWN"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RateLimit.SubmitCooldown = d
		}
	}
	if v := os.Getenv("INTAKE_RATELIMIT_STATUS_COOLDOWN"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RateLimit.StatusCooldown = d
		}
	}
	if v := os.Getenv("INTAKE_NOTIFY_CHANNELS"); v != "" {
		cfg.Notify.Channels = splitList(v)
	}
	if v := os.Getenv("INTAKE_SMTP_ADDR"); v != "" {
		cfg.Notify.Email.SMTPAddr = v
	}
	if v := os.Getenv("INTAKE_SMTP_USERNAME"); v != "" {
		cfg.Notify.Email.Username = v
	}
	if v := os.Getenv("INTAKE_SMTP_PASSWORD"); v != "" {
		cfg.Notify.Email.Password = v
	}
	if v := os.Getenv("INTAKE_NOTIFY_FROM"); v != "" {
		cfg.Notify.Email.From = v
	}
	if v := os.Getenv("INTAKE_NOTIFY_TO"); v != "" {
		cfg.Notify.Email.To = splitList(v)
	}
	if v := os.Getenv("INTAKE_AUDIT_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Audit.Enabled = b
		}
	}
	if v := os.Getenv("INTAKE_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("INTAKE_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("INTAKE_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("INTAKE_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("INTAKE_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("INTAKE_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("INTAKE_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
