package bootstrap

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/extra/bundebug"

	"github.com/SessionWarden/go-session-warden/env"
)

// DatabaseOptions configures the SQL connection backing the
// database-flavoured credential store.
type DatabaseOptions struct {
	Provider        string
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogLevel        string
}

// InitDatabase creates a Bun database connection.
func InitDatabase(opts DatabaseOptions) (*bun.DB, error) {
	if opts.Provider == "" {
		return nil, fmt.Errorf("database provider must be specified")
	}

	databaseURL := os.Getenv(env.EnvDatabaseURL)
	if databaseURL == "" {
		if opts.URL == "" {
			return nil, fmt.Errorf("database connection string must be specified via %s or config", env.EnvDatabaseURL)
		}
		databaseURL = opts.URL
	}

	var db *bun.DB

	switch opts.Provider {
	case "sqlite":
		if !filepath.IsAbs(databaseURL) {
			cwd, _ := os.Getwd()
			databaseURL = filepath.Join(cwd, databaseURL)
		}
		if err := os.MkdirAll(filepath.Dir(databaseURL), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}

		sqlDB, err := sql.Open("sqlite3", databaseURL)
		if err != nil {
			return nil, err
		}
		db = bun.NewDB(sqlDB, sqlitedialect.New())

	case "postgres":
		sqlDB, err := sql.Open("postgres", databaseURL)
		if err != nil {
			return nil, err
		}
		db = bun.NewDB(sqlDB, pgdialect.New())

	case "mysql":
		sqlDB, err := sql.Open("mysql", databaseURL)
		if err != nil {
			return nil, err
		}
		db = bun.NewDB(sqlDB, mysqldialect.New())

	default:
		return nil, fmt.Errorf("unsupported database provider: %s", opts.Provider)
	}

	configurePool(db.DB, opts)
	if opts.LogLevel == "debug" {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	return db, nil
}

func configurePool(sqlDB *sql.DB, opts DatabaseOptions) {
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
}
