// Package database opens the statistics database and applies its schema.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/m3rciful/synobot/core/config"
	"github.com/m3rciful/synobot/core/logger"
)

// DriverName maps a configured driver to the database/sql driver name.
func DriverName(driver string) string {
	if driver == config.DriverPostgres {
		return "postgres"
	}
	return "sqlite"
}

// DSN builds the data source name for cfg.
func DSN(cfg config.DatabaseConfig) string {
	if cfg.Driver == config.DriverPostgres {
		return fmt.Sprintf(
			"user=%s password=%s host=%s port=%s dbname=%s sslmode=%s",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name, cfg.SSLMode,
		)
	}
	return cfg.Path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
}

// Connect opens the database connection, configures the pool, and verifies connectivity.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	if err := ensureSQLiteDir(cfg); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	db, err := sqlx.ConnectContext(ctx, DriverName(cfg.Driver), DSN(cfg))
	took := time.Since(start)
	if err != nil {
		logger.DB.LogAttrs(ctx, slog.LevelError, "db.connect",
			append(targetAttrs(cfg),
				slog.String("status", "fail"),
				slog.Duration("duration", logger.RoundMS(took)),
				slog.String("err", err.Error()),
			)...,
		)
		return nil, fmt.Errorf("db connect: %w", err)
	}

	maxConns := cfg.MaxConnections
	if cfg.Driver != config.DriverPostgres {
		// A single writer avoids SQLITE_BUSY between the stats workers.
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	logger.DB.LogAttrs(ctx, slog.LevelInfo, "db.connect",
		append(targetAttrs(cfg),
			slog.String("status", "ok"),
			slog.Int("count", maxConns),
			slog.Duration("duration", logger.RoundMS(took)),
		)...,
	)
	return db, nil
}

func ensureSQLiteDir(cfg config.DatabaseConfig) error {
	if cfg.Driver == config.DriverPostgres {
		return nil
	}
	dir := filepath.Dir(cfg.Path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("db create directory: %w", err)
	}
	return nil
}

func targetAttrs(cfg config.DatabaseConfig) []slog.Attr {
	if cfg.Driver == config.DriverPostgres {
		return []slog.Attr{
			slog.String("driver", "postgres"),
			slog.String("host", cfg.Host),
			slog.String("port", cfg.Port),
			slog.String("db", cfg.Name),
		}
	}
	return []slog.Attr{
		slog.String("driver", "sqlite"),
		slog.String("db", cfg.Path),
	}
}

// WaitForPostgres retries a ping until the server answers or timeout is reached.
func WaitForPostgres(ctx context.Context, dsn string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for {
		db, err := sqlx.Open("postgres", dsn)
		if err == nil {
			err = db.PingContext(ctx)
			_ = db.Close()
			if err == nil {
				return nil
			}
		}
		lastErr = err
		if time.Now().After(deadline) {
			return fmt.Errorf("timeout reached waiting for database: %w", lastErr)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}
