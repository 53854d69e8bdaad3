// Package config loads sneakpeak settings from the environment.
//
// .env.local and .env are read first (missing files are ignored), then the
// process environment is parsed into Config. Variables already set in the
// environment always win over the files.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store drivers accepted by STORE_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverSupabase = "supabase"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// Config holds every runtime setting.
type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Server   ServerConfig
	Store    StoreConfig
	Fetch    FetchConfig
	Diff     DiffConfig
	Pipeline PipelineConfig
	Email    EmailConfig
}

// ServerConfig configures the trigger endpoint and in-process schedule.
type ServerConfig struct {
	Addr       string `env:"HTTP_ADDR" envDefault:":8080"`
	CronSecret string `env:"CRON_SECRET"`
	// Schedule is a 5-field cron spec; empty disables the in-process scheduler.
	Schedule string `env:"SCHEDULE"`
}

// StoreConfig selects and configures the snapshot store backend.
type StoreConfig struct {
	Driver string `env:"STORE_DRIVER" envDefault:"postgres"`

	DatabaseURL string `env:"DATABASE_URL"`

	SupabaseURL      string `env:"SUPABASE_URL"`
	SupabaseKey      string `env:"SUPABASE_KEY"`
	SupabasePassword string `env:"SUPABASE_DB_PASSWORD"`

	SQLitePath string `env:"SQLITE_PATH" envDefault:"sneakpeak.db"`

	MongoURI      string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"sneakpeak"`

	MaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxIdle  time.Duration `env:"DB_CONN_MAX_IDLE" envDefault:"5m"`
	ConnMaxLife  time.Duration `env:"DB_CONN_MAX_LIFE" envDefault:"30m"`
}

// FetchConfig configures the page fetcher.
type FetchConfig struct {
	Timeout  time.Duration `env:"FETCH_TIMEOUT" envDefault:"30s"`
	MaxBytes int64         `env:"FETCH_MAX_BYTES" envDefault:"10485760"`
	// TextMode is "body" or "readability".
	TextMode string `env:"TEXT_MODE" envDefault:"body"`
	// Client is the request identity, "browser" or "cloudflare".
	Client string `env:"FETCH_CLIENT" envDefault:"browser"`
}

// DiffConfig configures the differ.
type DiffConfig struct {
	// Granularity is "words" or "characters".
	Granularity string `env:"DIFF_GRANULARITY" envDefault:"words"`
}

// PipelineConfig configures the detection cycle.
type PipelineConfig struct {
	Workers int `env:"WORKERS" envDefault:"1"`
}

// EmailConfig holds SMTP delivery settings. Delivery is skipped silently
// when Host or Recipient is empty.
type EmailConfig struct {
	Host      string `env:"SMTP_HOST"`
	Port      int    `env:"SMTP_PORT" envDefault:"587"`
	User      string `env:"SMTP_USER"`
	Pass      string `env:"SMTP_PASS"`
	From      string `env:"EMAIL_FROM" envDefault:"Sneakpeak Digest <digest@sneakpeak.local>"`
	Recipient string `env:"NOTIFY_RECIPIENT"`
}

// Enabled reports whether enough settings exist to attempt delivery.
func (c EmailConfig) Enabled() bool {
	return c.Host != "" && c.Recipient != ""
}

// Load reads .env files and parses the environment.
func Load() (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadEnvFiles loads ENV_FILE if set, otherwise .env.local then .env.
// godotenv never overrides variables that are already present.
func loadEnvFiles() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

// Validate checks values env parsing cannot.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	case DriverSupabase:
		hasDirect := c.Store.DatabaseURL != "" || (c.Store.SupabaseURL != "" && c.Store.SupabasePassword != "")
		hasREST := c.Store.SupabaseURL != "" && c.Store.SupabaseKey != ""
		if !hasDirect && !hasREST {
			errs = append(errs, errors.New("supabase driver needs DATABASE_URL, SUPABASE_URL+SUPABASE_DB_PASSWORD or SUPABASE_URL+SUPABASE_KEY"))
		}
	case DriverSQLite, DriverMongo, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver))
	}

	switch strings.ToLower(c.Fetch.TextMode) {
	case "body", "readability":
	default:
		errs = append(errs, fmt.Errorf("unknown TEXT_MODE %q", c.Fetch.TextMode))
	}

	switch c.Fetch.Client {
	case "", "browser", "cloudflare":
	default:
		errs = append(errs, fmt.Errorf("unknown FETCH_CLIENT %q", c.Fetch.Client))
	}

	switch strings.ToLower(c.Diff.Granularity) {
	case "words", "characters":
	default:
		errs = append(errs, fmt.Errorf("unknown DIFF_GRANULARITY %q", c.Diff.Granularity))
	}

	if c.Fetch.Timeout <= 0 {
		errs = append(errs, errors.New("FETCH_TIMEOUT must be positive"))
	}
	if c.Pipeline.Workers < 1 {
		errs = append(errs, errors.New("WORKERS must be at least 1"))
	}

	return errors.Join(errs...)
}
