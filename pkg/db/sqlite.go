package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// MemoryDSN opens a private in-memory SQLite database.
const MemoryDSN = ":memory:"

// SQLiteConfig configures a local SQLite database.
type SQLiteConfig struct {
	// Path is a file path or MemoryDSN.
	Path string
}

// SQLiteClient wraps a modernc.org/sqlite handle.
type SQLiteClient struct {
	db  *sql.DB
	cfg SQLiteConfig
}

// NewSQLiteClient constructs an unconnected SQLite client.
func NewSQLiteClient(cfg SQLiteConfig) *SQLiteClient {
	return &SQLiteClient{cfg: cfg}
}

// Connect opens the database. A single connection is used so in-memory
// databases are shared by every query and writers never contend.
func (c *SQLiteClient) Connect(ctx context.Context) error {
	if c.cfg.Path == "" {
		return fmt.Errorf("sqlite path is required")
	}

	handle, err := openPool(ctx, DriverSQLite, c.dsn(), PoolConfig{MaxOpenConns: 1})
	if err != nil {
		return err
	}
	c.db = handle
	return nil
}

func (c *SQLiteClient) dsn() string {
	if c.cfg.Path == MemoryDSN || strings.Contains(c.cfg.Path, "?") {
		return c.cfg.Path
	}
	return c.cfg.Path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// Close closes the database.
func (c *SQLiteClient) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// DB exposes the underlying handle.
func (c *SQLiteClient) DB() *sql.DB {
	return c.db
}

// Store returns a SQLStore over the database.
func (c *SQLiteClient) Store(opts ...SQLStoreOption) (*SQLStore, error) {
	return NewSQLStore(c, DriverSQLite, opts...)
}
