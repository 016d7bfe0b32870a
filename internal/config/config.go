package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusStarted    JobStatus = "started"
	StatusProcessing JobStatus = "processing"
	StatusDone       JobStatus = "done"
	StatusFailed     JobStatus = "failed"
)

var AllowedStatuses = []JobStatus{
	StatusPending,
	StatusStarted,
	StatusProcessing,
	StatusDone,
	StatusFailed,
}

// Valid reports whether s is a recognized job status.
func (s JobStatus) Valid() bool {
	for _, st := range AllowedStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is defined from s.
func (s JobStatus) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Faults holds the fault-injection probabilities used by the
// fault-tolerance tests. Enabled is false in production, which makes the
// worker pipeline carry no fault-simulation branches at all.
type Faults struct {
	Enabled        bool    `env:"FAULTS_ENABLED,default=false"`
	CrashP         float64 `env:"FAULT_CRASH_P,default=0.10"`
	AfterClaimP    float64 `env:"FAULT_AFTER_CLAIM_P,default=0.10"`
	DuringProcessP float64 `env:"FAULT_DURING_PROCESS_P,default=0.15"`
	BeforeDoneP    float64 `env:"FAULT_BEFORE_DONE_P,default=0.05"`
}

type Config struct {
	HTTPAddr         string        `env:"HTTP_ADDR,default=:8080"`
	Workers          int           `env:"WORKERS,default=4"`
	PoolSize         int           `env:"POOL_SIZE,default=5"`
	LeaseTTL         time.Duration `env:"LEASE_TTL,default=15s"`
	ReaperInterval   time.Duration `env:"REAPER_INTERVAL,default=5s"`
	MaxRetries       int           `env:"MAX_RETRIES,default=2"`
	MaxUploadBytes   int64         `env:"MAX_UPLOAD_BYTES,default=1000000"`
	RestartDelay     time.Duration `env:"RESTART_DELAY,default=1s"`
	RetryBackoffBase time.Duration `env:"RETRY_BACKOFF_BASE,default=500ms"`
	ClaimDelay       time.Duration `env:"CLAIM_DELAY,default=500ms"`
	WorkDelay        time.Duration `env:"WORK_DELAY,default=2s"`
	Faults           Faults
}

// to help with testing
var envProcess = envconfig.Process

func LoadFromEnv(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envProcess(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func validateConfig(cfg *Config) error {
	var errors []string

	if cfg.Workers < 1 {
		errors = append(errors, "WORKERS must be at least 1")
	}

	if cfg.PoolSize < 1 {
		errors = append(errors, "POOL_SIZE must be at least 1")
	}

	if cfg.LeaseTTL <= 0 {
		errors = append(errors, "LEASE_TTL must be positive")
	}

	if cfg.ReaperInterval <= 0 {
		errors = append(errors, "REAPER_INTERVAL must be positive")
	}

	if cfg.MaxRetries < 0 {
		errors = append(errors, "MAX_RETRIES must be non-negative")
	}

	if cfg.MaxUploadBytes < 1 {
		errors = append(errors, "MAX_UPLOAD_BYTES must be at least 1")
	}

	if cfg.RestartDelay <= 0 {
		errors = append(errors, "RESTART_DELAY must be positive")
	}

	for _, p := range []struct {
		name  string
		value float64
	}{
		{"FAULT_CRASH_P", cfg.Faults.CrashP},
		{"FAULT_AFTER_CLAIM_P", cfg.Faults.AfterClaimP},
		{"FAULT_DURING_PROCESS_P", cfg.Faults.DuringProcessP},
		{"FAULT_BEFORE_DONE_P", cfg.Faults.BeforeDoneP},
	} {
		if p.value < 0 || p.value > 1 {
			errors = append(errors, p.name+" must be between 0 and 1")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("%s", strings.Join(errors, "; "))
	}

	return nil
}
