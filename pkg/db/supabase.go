package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	supabase "github.com/supabase-community/supabase-go"
)

// SupabaseConfig describes how to reach a Supabase project. A direct Postgres
// connection is used when DatabaseURL, or ProjectURL with DBPassword, is set.
// ProjectURL with APIKey enables the REST API, which serves as the fallback.
type SupabaseConfig struct {
	// DatabaseURL is the project's Postgres connection string.
	DatabaseURL string
	// ProjectURL looks like https://<project-ref>.supabase.co.
	ProjectURL string
	// APIKey is the service-role key; the anon key cannot write snapshots
	// under row level security.
	APIKey string
	// DBPassword is the postgres role password, used with ProjectURL when
	// DatabaseURL is empty.
	DBPassword string

	Pool PoolConfig
}

// SupabaseClient connects to a Supabase project over Postgres, REST or both.
type SupabaseClient struct {
	cfg       SupabaseConfig
	db        *sql.DB
	rest      *supabase.Client
	directErr error
}

// NewSupabaseClient constructs an unconnected client.
func NewSupabaseClient(cfg SupabaseConfig) *SupabaseClient {
	return &SupabaseClient{cfg: cfg}
}

// pgxPoolerParams make pgx work behind Supabase's transaction-mode pooler,
// which cannot hold prepared statements across transactions.
var pgxPoolerParams = [][2]string{
	{"statement_cache_capacity", "0"},
	{"default_query_exec_mode", "simple_protocol"},
}

// Connect sets up the REST client when a key is configured and then tries
// the direct connection. A failed direct connection is not an error while
// REST is available; DirectErr reports it.
func (c *SupabaseClient) Connect(ctx context.Context) error {
	if c.cfg.ProjectURL != "" && c.cfg.APIKey != "" {
		rest, err := supabase.NewClient(c.cfg.ProjectURL, c.cfg.APIKey, nil)
		if err != nil {
			return fmt.Errorf("create supabase REST client: %w", err)
		}
		c.rest = rest
	}

	dsn, err := c.directDSN()
	if err == nil && dsn != "" {
		c.db, err = openPool(ctx, DriverPgx, dsn, c.cfg.Pool)
	}
	if err != nil {
		if c.rest == nil {
			return fmt.Errorf("supabase postgres: %w", err)
		}
		c.directErr = err
		return nil
	}

	if c.db == nil && c.rest == nil {
		return errors.New("supabase needs DatabaseURL, ProjectURL with DBPassword, or ProjectURL with APIKey")
	}
	return nil
}

// DirectErr is the reason the direct connection was skipped in favour of REST.
func (c *SupabaseClient) DirectErr() error {
	return c.directErr
}

func (c *SupabaseClient) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// DB returns the direct handle, nil in REST-only mode.
func (c *SupabaseClient) DB() *sql.DB {
	return c.db
}

// Store prefers SQL over the direct handle and falls back to PostgREST.
func (c *SupabaseClient) Store(opts ...SQLStoreOption) (Store, error) {
	if c.db != nil {
		store, err := NewSQLStore(c, DriverPgx, opts...)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	if c.rest == nil {
		return nil, ErrNotConnected
	}
	return NewSupabaseRESTStore(c.rest), nil
}

// directDSN returns "" when no direct connection is configured.
func (c *SupabaseClient) directDSN() (string, error) {
	if c.cfg.DatabaseURL != "" {
		return withPoolerParams(c.cfg.DatabaseURL), nil
	}
	if c.cfg.DBPassword == "" {
		return "", nil
	}

	ref, err := projectRef(c.cfg.ProjectURL)
	if err != nil {
		return "", err
	}
	u := url.URL{
		Scheme:   "postgresql",
		User:     url.UserPassword("postgres", c.cfg.DBPassword),
		Host:     "db." + ref + ".supabase.co:5432",
		Path:     "/postgres",
		RawQuery: "sslmode=require",
	}
	return withPoolerParams(u.String()), nil
}

// projectRef extracts <ref> from https://<ref>.supabase.co.
func projectRef(projectURL string) (string, error) {
	if projectURL == "" {
		return "", errors.New("supabase project URL is required with a database password")
	}
	u, err := url.Parse(projectURL)
	if err != nil {
		return "", fmt.Errorf("parse supabase project URL: %w", err)
	}
	ref, rest, ok := strings.Cut(u.Hostname(), ".")
	if !ok || ref == "" || rest != "supabase.co" {
		return "", fmt.Errorf("supabase project URL %q is not of the form https://<ref>.supabase.co", projectURL)
	}
	return ref, nil
}

// withPoolerParams adds pgxPoolerParams that dsn does not set already. It
// handles both URL and keyword/value DSNs.
func withPoolerParams(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
		for _, kv := range pgxPoolerParams {
			if !strings.Contains(dsn, kv[0]+"=") {
				dsn += " " + kv[0] + "=" + kv[1]
			}
		}
		return dsn
	}

	q := u.Query()
	for _, kv := range pgxPoolerParams {
		if q.Get(kv[0]) == "" {
			q.Set(kv[0], kv[1])
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
