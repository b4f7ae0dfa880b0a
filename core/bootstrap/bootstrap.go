// Package bootstrap brings up the logger and the statistics storage.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/synobot/core/config"
	"github.com/m3rciful/synobot/core/database"
	"github.com/m3rciful/synobot/core/logger"
	"github.com/m3rciful/synobot/core/stats"
)

// Options control the bootstrap pipeline. Nil hooks fall back to the real implementations.
type Options struct {
	Config *config.Config

	LoggerInit func(*config.Config) error
	Connect    func(context.Context, config.DatabaseConfig) (*sqlx.DB, error)
	Migrate    func(context.Context, config.DatabaseConfig) error
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	// DB is nil when statistics are disabled.
	DB    *sqlx.DB
	Stats stats.Store
}

// Close releases the database handle, if any.
func (r *Result) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	return r.DB.Close()
}

// Run initializes the logger, applies migrations and connects to the statistics database.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	if !opts.Config.Stats.Enabled {
		return &Result{Stats: stats.Nop{}}, nil
	}

	migrate := opts.Migrate
	if migrate == nil {
		migrate = database.RunMigrations
	}
	if err := migrate(ctx, opts.Config.Database); err != nil {
		return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
	}

	connect := opts.Connect
	if connect == nil {
		connect = database.Connect
	}
	db, err := connect(ctx, opts.Config.Database)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}

	return &Result{DB: db, Stats: stats.NewSQLStore(db)}, nil
}
