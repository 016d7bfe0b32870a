package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want logger.LogLevel
	}{
		{"silent", logger.Silent},
		{"error", logger.Error},
		{"warn", logger.Warn},
		{"info", logger.Info},
		{"INFO", logger.Info},
		{"bogus", logger.Warn},
		{"", logger.Warn},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLogLevel(tt.in), "level %q", tt.in)
	}
}

func TestValidateConfig(t *testing.T) {
	base := func() *Config {
		return &Config{
			Driver:     DriverSQLite,
			Path:       "jobs.db",
			User:       "postgres",
			Host:       "localhost",
			Port:       "5432",
			Database:   "jobsdb",
			RetryDelay: 1e9,
		}
	}

	tests := []struct {
		name        string
		mutate      func(cfg *Config)
		errContains string
	}{
		{
			name:   "valid sqlite config",
			mutate: func(cfg *Config) {},
		},
		{
			name: "valid postgres config",
			mutate: func(cfg *Config) {
				cfg.Driver = DriverPostgres
			},
		},
		{
			name: "unknown driver",
			mutate: func(cfg *Config) {
				cfg.Driver = "oracle"
			},
			errContains: "DB_DRIVER",
		},
		{
			name: "sqlite requires path",
			mutate: func(cfg *Config) {
				cfg.Path = "  "
			},
			errContains: "DB_PATH",
		},
		{
			name: "postgres requires user",
			mutate: func(cfg *Config) {
				cfg.Driver = DriverPostgres
				cfg.User = ""
			},
			errContains: "POSTGRES_USER",
		},
		{
			name: "postgres port must be numeric",
			mutate: func(cfg *Config) {
				cfg.Driver = DriverPostgres
				cfg.Port = "abc"
			},
			errContains: "POSTGRES_PORT must be a valid number",
		},
		{
			name: "postgres port out of range",
			mutate: func(cfg *Config) {
				cfg.Driver = DriverPostgres
				cfg.Port = "70000"
			},
			errContains: "POSTGRES_PORT must be between",
		},
		{
			name: "retry delay must be positive",
			mutate: func(cfg *Config) {
				cfg.RetryDelay = 0
			},
			errContains: "DB_RETRY_DELAY must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if tt.errContains == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", "test.db")
	t.Setenv("DB_LOG_LEVEL", "silent")

	cfg, err := LoadConfigFromEnv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.Driver)
	assert.Equal(t, "test.db", cfg.Path)
	assert.Equal(t, logger.Silent, cfg.LogLevel)
}

func TestConnectDB_SQLite(t *testing.T) {
	cfg := &Config{
		Driver:         DriverSQLite,
		Path:           filepath.Join(t.TempDir(), "jobs.db"),
		ConnectRetries: 1,
		RetryDelay:     1e6,
		LogLevel:       logger.Silent,
	}

	db, err := ConnectDB(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, db)

	require.NoError(t, Migrate(db, cfg.Driver))

	var n int
	require.NoError(t, db.Raw("SELECT COUNT(*) FROM jobs").Scan(&n).Error)
	assert.Zero(t, n)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
}
