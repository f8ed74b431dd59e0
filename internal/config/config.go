package config

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config holds the service-level settings shared by the API and worker
// binaries. Database settings live with the storage package.
type Config struct {
	Env            string        `env:"APP_ENV,default=development"`
	HTTPAddr       string        `env:"HTTP_ADDR,default=:8080"`
	AdminAddr      string        `env:"ADMIN_ADDR,default=:9090"`
	Broker         string        `env:"BROKER,default=memory"`
	RedisAddr      string        `env:"REDIS_ADDR,default=localhost:6379"`
	Concurrency    int           `env:"WORKER_CONCURRENCY,default=5"`
	MaxAttempts    int           `env:"JOB_MAX_ATTEMPTS,default=3"`
	BackoffBase    time.Duration `env:"BACKOFF_BASE,default=2s"`
	BackoffMax     time.Duration `env:"BACKOFF_MAX,default=30s"`
	BackoffJitter  float64       `env:"BACKOFF_JITTER,default=0.1"`
	StaleAfter     time.Duration `env:"JOB_STALE_AFTER,default=2m"`
	ReconcileAfter time.Duration `env:"JOB_RECONCILE_AFTER,default=10m"`
	JanitorTick    time.Duration `env:"JANITOR_INTERVAL,default=30s"`
	RequestTimeout time.Duration `env:"HTTP_REQUEST_TIMEOUT,default=10s"`
	WebhookURL     string        `env:"NOTIFY_WEBHOOK_URL"`
}

// to help with testing
var envProcess = envconfig.Process

func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envProcess(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func validateConfig(cfg *Config) error {
	var errors []string

	if !slices.Contains([]string{BrokerMemory, BrokerRedis}, cfg.Broker) {
		errors = append(errors, fmt.Sprintf("BROKER must be %q or %q", BrokerMemory, BrokerRedis))
	}

	if cfg.Broker == BrokerRedis && strings.TrimSpace(cfg.RedisAddr) == "" {
		errors = append(errors, "REDIS_ADDR is required when BROKER=redis")
	}

	if cfg.Concurrency < 1 {
		errors = append(errors, "WORKER_CONCURRENCY must be at least 1")
	}

	if cfg.MaxAttempts < 1 {
		errors = append(errors, "JOB_MAX_ATTEMPTS must be at least 1")
	}

	if cfg.BackoffBase <= 0 {
		errors = append(errors, "BACKOFF_BASE must be positive")
	}

	if cfg.BackoffMax < cfg.BackoffBase {
		errors = append(errors, "BACKOFF_MAX must not be smaller than BACKOFF_BASE")
	}

	if cfg.BackoffJitter < 0 || cfg.BackoffJitter > 1 {
		errors = append(errors, "BACKOFF_JITTER must be between 0 and 1")
	}

	if cfg.StaleAfter <= 0 {
		errors = append(errors, "JOB_STALE_AFTER must be positive")
	}

	if cfg.ReconcileAfter < cfg.StaleAfter {
		errors = append(errors, "JOB_RECONCILE_AFTER must not be smaller than JOB_STALE_AFTER")
	}

	if cfg.JanitorTick <= 0 {
		errors = append(errors, "JANITOR_INTERVAL must be positive")
	}

	if len(errors) > 0 {
		return fmt.Errorf("%s", strings.Join(errors, "; "))
	}

	return nil
}
