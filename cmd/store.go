package cmd

import (
	"context"
	"fmt"

	"sneakpeak/pkg/config"
	"sneakpeak/pkg/db"
	"sneakpeak/pkg/logger"
)

// openStore connects the backend selected by cfg.Driver. Closing the
// returned store releases its connections.
func openStore(ctx context.Context, cfg config.StoreConfig, log logger.Logger) (db.Store, error) {
	pool := db.PoolConfig{
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
		ConnMaxIdle:  cfg.ConnMaxIdle,
		ConnMaxLife:  cfg.ConnMaxLife,
	}

	switch cfg.Driver {
	case config.DriverPostgres:
		client := db.NewPostgresClient(db.PostgresConfig{DSN: cfg.DatabaseURL, Pool: pool})
		if err := client.Connect(ctx); err != nil {
			return nil, err
		}
		store, err := client.Store()
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return store, nil

	case config.DriverSupabase:
		client := db.NewSupabaseClient(db.SupabaseConfig{
			DatabaseURL: cfg.DatabaseURL,
			ProjectURL:  cfg.SupabaseURL,
			APIKey:      cfg.SupabaseKey,
			DBPassword:  cfg.SupabasePassword,
			Pool:        pool,
		})
		if err := client.Connect(ctx); err != nil {
			return nil, err
		}
		if directErr := client.DirectErr(); directErr != nil {
			log.Warn("Supabase direct connection failed, using the REST API", logger.Error(directErr))
		}
		store, err := client.Store()
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return store, nil

	case config.DriverSQLite:
		client := db.NewSQLiteClient(db.SQLiteConfig{Path: cfg.SQLitePath})
		if err := client.Connect(ctx); err != nil {
			return nil, err
		}
		store, err := client.Store()
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return store, nil

	case config.DriverMongo:
		client := db.NewMongoClient(cfg.MongoURI, cfg.MongoDatabase)
		if err := client.Connect(ctx); err != nil {
			return nil, err
		}
		store, err := client.Store()
		if err != nil {
			_ = client.Close(ctx)
			return nil, err
		}
		return store, nil

	case config.DriverMemory:
		return db.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

// migrate creates the schema when the backend has one.
func migrate(ctx context.Context, store db.Store) (bool, error) {
	m, ok := store.(db.Migrator)
	if !ok {
		return false, nil
	}
	if err := m.Migrate(ctx); err != nil {
		return true, fmt.Errorf("migrate: %w", err)
	}
	return true, nil
}

func asSeeder(store db.Store) (db.Seeder, error) {
	s, ok := store.(db.Seeder)
	if !ok {
		return nil, fmt.Errorf("store %T cannot be seeded", store)
	}
	return s, nil
}
