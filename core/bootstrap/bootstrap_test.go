package bootstrap

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/synobot/core/config"
	"github.com/m3rciful/synobot/core/stats"
)

func noLogger(*config.Config) error { return nil }

func TestRunNilConfig(t *testing.T) {
	_, err := Run(context.Background(), Options{})
	require.Error(t, err)
}

func TestRunStatsDisabledSkipsDatabase(t *testing.T) {
	cfg := config.Defaults()
	cfg.Stats.Enabled = false
	called := false
	res, err := Run(context.Background(), Options{
		Config:     &cfg,
		LoggerInit: noLogger,
		Migrate: func(context.Context, config.DatabaseConfig) error {
			called = true
			return nil
		},
	})
	require.NoError(t, err)
	assert.False(t, called)
	assert.Nil(t, res.DB)
	assert.IsType(t, stats.Nop{}, res.Stats)
	assert.NoError(t, res.Close())
}

func TestRunSQLite(t *testing.T) {
	cfg := config.Defaults()
	cfg.Database.Path = filepath.Join(t.TempDir(), "nested", "stats.db")
	res, err := Run(context.Background(), Options{Config: &cfg, LoggerInit: noLogger})
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Close() })

	require.NotNil(t, res.DB)
	ctx := context.Background()
	id, err := res.Stats.RecordRequest(ctx, "7", "bob", "hi", nil)
	require.NoError(t, err)
	require.NoError(t, res.Stats.RecordResponse(ctx, id, "menu", "main_menu", false))

	sum, err := res.Stats.Statistics(ctx, 5)
	require.NoError(t, err)
	assert.EqualValues(t, 1, sum.TotalRequests)
}

func TestRunPropagatesFailures(t *testing.T) {
	cfg := config.Defaults()
	boom := errors.New("boom")

	_, err := Run(context.Background(), Options{
		Config:     &cfg,
		LoggerInit: func(*config.Config) error { return boom },
	})
	assert.ErrorIs(t, err, boom)

	_, err = Run(context.Background(), Options{
		Config:     &cfg,
		LoggerInit: noLogger,
		Migrate:    func(context.Context, config.DatabaseConfig) error { return boom },
	})
	assert.ErrorIs(t, err, boom)

	_, err = Run(context.Background(), Options{
		Config:     &cfg,
		LoggerInit: noLogger,
		Migrate:    func(context.Context, config.DatabaseConfig) error { return nil },
		Connect: func(context.Context, config.DatabaseConfig) (*sqlx.DB, error) {
			return nil, boom
		},
	})
	assert.ErrorIs(t, err, boom)
}
