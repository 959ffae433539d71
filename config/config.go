// Package config reads the orderflow service configuration.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the runtime parameters of the orderflow service.
type Config struct {
	RunAddress        string        `env:"RUN_ADDRESS"`
	DatabaseURL       string        `env:"DATABASE_URL"`
	JWTSecret         string        `env:"JWT_SECRET"`
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL"`
	OutboxInterval    time.Duration `env:"OUTBOX_INTERVAL"`
}

// Parse reads configuration from command-line flags and environment
// variables; environment values win over flags.
func Parse(args []string) (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURL := cfg.DatabaseURL
	envJWTSecret := cfg.JWTSecret
	envReconcile := cfg.ReconcileInterval
	envOutbox := cfg.OutboxInterval

	fs := flag.NewFlagSet("orderflow", flag.ContinueOnError)
	fs.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for the HTTP server")
	fs.StringVar(&cfg.DatabaseURL, "d", "", "postgres connection string")
	fs.StringVar(&cfg.JWTSecret, "s", "", "JWT signing secret")
	fs.DurationVar(&cfg.ReconcileInterval, "reconcile-interval", time.Minute, "interval between reconciliation sweeps")
	fs.DurationVar(&cfg.OutboxInterval, "outbox-interval", 5*time.Second, "interval between outbox relay passes")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("config: parse flags: %w", err)
	}

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURL != "" {
		cfg.DatabaseURL = envDatabaseURL
	}
	if envJWTSecret != "" {
		cfg.JWTSecret = envJWTSecret
	}
	if envReconcile != 0 {
		cfg.ReconcileInterval = envReconcile
	}
	if envOutbox != 0 {
		cfg.OutboxInterval = envOutbox
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("config: database URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("config: JWT secret is required")
	}

	return cfg, nil
}
