package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/synobot/core/config"
)

func TestMigrationURL(t *testing.T) {
	pg := config.DatabaseConfig{
		Driver: config.DriverPostgres, Host: "db", Port: "5432",
		User: "bot", Password: "p@ss", Name: "stats", SSLMode: "disable",
	}
	assert.Equal(t, "postgres://bot:p%40ss@db:5432/stats?sslmode=disable", MigrationURL(pg))
	assert.Equal(t, "sqlite://data/stats.db", MigrationURL(config.DatabaseConfig{Driver: config.DriverSQLite, Path: "data/stats.db"}))
}

func TestEmbeddedMigrationsPerDriver(t *testing.T) {
	for _, driver := range []string{config.DriverPostgres, config.DriverSQLite} {
		files := listMigrationFiles(migrationsFS, migrationsDir(driver))
		require.NotEmpty(t, files, driver)
		assert.Equal(t, "000001_stats.up.sql", files[0])
	}
}

func TestSelectApplied(t *testing.T) {
	files := []string{"000001_a.up.sql", "000002_b.up.sql", "000003_c.up.sql"}
	assert.Equal(t, []string{"000002_b.up.sql", "000003_c.up.sql"}, selectApplied(files, 1, 3))
	assert.Empty(t, selectApplied(files, 3, 3))
}

func TestSQLiteConnectAndMigrate(t *testing.T) {
	cfg := config.DatabaseConfig{
		Driver:         config.DriverSQLite,
		Path:           filepath.Join(t.TempDir(), "nested", "stats.db"),
		MaxConnections: 4,
	}
	ctx := context.Background()
	require.NoError(t, RunMigrations(ctx, cfg))
	require.NoError(t, RunMigrations(ctx, cfg), "second run is a no-op")

	db, err := Connect(ctx, cfg)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.GetContext(ctx, &n, `SELECT COUNT(*) FROM user_requests`))
	assert.Zero(t, n)
}
