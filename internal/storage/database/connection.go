package database

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/sethvargo/go-retry"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Driver         string `env:"DB_DRIVER,default=sqlite"`
	Path           string `env:"DB_PATH,default=jobs.db"`
	User           string `env:"POSTGRES_USER,default=postgres"`
	Password       string `env:"POSTGRES_PASSWORD,default=postgres"`
	Host           string `env:"POSTGRES_HOST,default=localhost"`
	Port           string `env:"POSTGRES_PORT,default=5432"`
	Database       string `env:"POSTGRES_DB,default=jobsdb"`
	ConnectRetries uint64 `env:"DB_CONNECT_RETRIES,default=10"`
	RetryDelay     time.Duration `env:"DB_RETRY_DELAY,default=1s"`
	LogLevelString string        `env:"DB_LOG_LEVEL,default=warn"`
	LogLevel       logger.LogLevel
}

// to help with testing
var envProcess = envconfig.Process

func LoadConfigFromEnv(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envProcess(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	cfg.LogLevel = ParseLogLevel(cfg.LogLevelString)
	return &cfg, nil
}

func validateConfig(cfg *Config) error {
	var errors []string

	switch cfg.Driver {
	case DriverSQLite:
		if strings.TrimSpace(cfg.Path) == "" {
			errors = append(errors, "DB_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if strings.TrimSpace(cfg.User) == "" {
			errors = append(errors, "POSTGRES_USER is required")
		}
		if strings.TrimSpace(cfg.Database) == "" {
			errors = append(errors, "POSTGRES_DB is required")
		}
		if strings.TrimSpace(cfg.Host) == "" {
			errors = append(errors, "POSTGRES_HOST is required")
		}
		if cfg.Port == "" {
			errors = append(errors, "POSTGRES_PORT is required")
		} else if port, err := strconv.Atoi(cfg.Port); err != nil {
			errors = append(errors, "POSTGRES_PORT must be a valid number")
		} else if port < 1 || port > 65535 {
			errors = append(errors, "POSTGRES_PORT must be between 1 and 65535")
		}
	default:
		errors = append(errors, fmt.Sprintf("DB_DRIVER must be %q or %q", DriverSQLite, DriverPostgres))
	}

	if cfg.RetryDelay <= 0 {
		errors = append(errors, "DB_RETRY_DELAY must be positive")
	}

	if cfg.RetryDelay > 10*time.Minute {
		errors = append(errors, "DB_RETRY_DELAY must not exceed 10 minutes")
	}

	if len(errors) > 0 {
		return fmt.Errorf("%s", strings.Join(errors, "; "))
	}

	return nil
}

// ConnectDB opens the configured database, retrying with exponential backoff
// until the server is reachable.
func ConnectDB(ctx context.Context, cfg *Config) (*gorm.DB, error) {
	if cfg == nil {
		loadedCfg, err := LoadConfigFromEnv(ctx)
		if err != nil {
			return nil, err
		}
		cfg = loadedCfg
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverPostgres:
		dsn := fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
			cfg.Host, cfg.User, cfg.Password, cfg.Database, cfg.Port,
		)
		log.Printf("[DB] connecting to postgres %s@%s:%s/%s", cfg.User, cfg.Host, cfg.Port, cfg.Database)
		dialector = postgres.Open(dsn)
	default:
		log.Printf("[DB] connecting to sqlite %s", cfg.Path)
		dialector = sqlite.Open(cfg.Path)
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(cfg.LogLevel),
	}

	backoff := retry.WithMaxRetries(cfg.ConnectRetries, retry.NewExponential(cfg.RetryDelay))

	var gdb *gorm.DB
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		db, err := gorm.Open(dialector, gormConfig)
		if err != nil {
			log.Printf("[DB][WARN] %s, retrying", simplifyDBError(err))
			return retry.RetryableError(err)
		}

		sqlDB, err := db.DB()
		if err != nil {
			return err
		}

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := sqlDB.PingContext(pingCtx); err != nil {
			log.Printf("[DB][WARN] %s, retrying", simplifyDBError(err))
			return retry.RetryableError(err)
		}

		gdb = db
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	log.Println("[DB] connected successfully")
	return gdb, nil
}

// simplifyDBError returns a user-friendly error message
func simplifyDBError(err error) string {
	msg := err.Error()

	switch {
	case strings.Contains(msg, "password authentication failed"):
		return "invalid database credentials"
	case strings.Contains(msg, "connect"):
		return "cannot reach database server"
	case strings.Contains(msg, "timeout"):
		return "database connection timed out"
	case strings.Contains(msg, "unable to open database"):
		return "cannot open database file"
	}

	return "database error"
}

// Convert string to logger.LogLevel
func ParseLogLevel(levelStr string) logger.LogLevel {
	switch strings.ToLower(levelStr) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "warn":
		return logger.Warn
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}
