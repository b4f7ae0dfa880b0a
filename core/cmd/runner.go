// Package cmd holds the process entrypoint shared by the bot binaries.
package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/m3rciful/synobot/core/app"
	"github.com/m3rciful/synobot/core/bootstrap"
	"github.com/m3rciful/synobot/core/config"
	"github.com/m3rciful/synobot/core/logger"
)

// Runner is the part of app.App driven by Run.
type Runner interface {
	Run(ctx context.Context) error
}

// Options describe how to load configuration, bootstrap the infrastructure and run the bot.
// Nil hooks use the production implementations.
type Options struct {
	ConfigEnvVar      string
	DefaultConfigPath string

	LoadConfig func(path string) (*config.Config, error)
	Bootstrap  func(ctx context.Context, cfg *config.Config) (*bootstrap.Result, error)
	Build      func(cfg *config.Config, boot *bootstrap.Result) (Runner, error)

	ShutdownLogger func() error
}

// Run loads configuration, bootstraps logging and storage, and serves until SIGINT or SIGTERM.
func Run(opts Options) error {
	env := opts.ConfigEnvVar
	if env == "" {
		env = "CONFIG_PATH"
	}
	cfgPath := os.Getenv(env)
	if cfgPath == "" {
		cfgPath = opts.DefaultConfigPath
	}
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	load := opts.LoadConfig
	if load == nil {
		load = config.Load
	}
	log.Printf("loading config: %s", cfgPath)
	cfg, err := load(cfgPath)
	if err != nil {
		return fmt.Errorf("cmd: failed to load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	boot := opts.Bootstrap
	if boot == nil {
		boot = func(ctx context.Context, cfg *config.Config) (*bootstrap.Result, error) {
			return bootstrap.Run(ctx, bootstrap.Options{Config: cfg})
		}
	}
	res, err := boot(ctx, cfg)
	if err != nil {
		return fmt.Errorf("cmd: bootstrap failed: %w", err)
	}

	shutdownLogger := opts.ShutdownLogger
	if shutdownLogger == nil {
		shutdownLogger = logger.Shutdown
	}
	defer func() {
		if err := shutdownLogger(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()
	defer func() {
		if err := res.Close(); err != nil {
			log.Printf("database close error: %v", err)
		}
	}()

	build := opts.Build
	if build == nil {
		build = func(cfg *config.Config, boot *bootstrap.Result) (Runner, error) {
			return app.New(cfg, boot.Stats, app.Options{})
		}
	}
	runner, err := build(cfg, res)
	if err != nil {
		return fmt.Errorf("cmd: app build failed: %w", err)
	}
	return runner.Run(ctx)
}
