package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/jkrishnan-dev/textjobs/internal/config"
	"github.com/jkrishnan-dev/textjobs/internal/job"
	"github.com/jkrishnan-dev/textjobs/internal/models"
	"github.com/jkrishnan-dev/textjobs/internal/pool"
)

const (
	// Error text stored on a retry is capped at retryErrorLimit runes,
	// terminal failures keep a longer tail for diagnosis.
	retryErrorLimit  = 1000
	failedErrorLimit = 2000
)

// JobRepository is the durable record of every job. Each mutation is a single
// atomic UPDATE routed through the storage-handle pool; lease ownership is
// enforced by the lease_epoch fencing column rather than a lock service.
type JobRepository struct {
	pool *pool.Pool
}

func NewJobRepository(p *pool.Pool) *JobRepository {
	return &JobRepository{pool: p}
}

var _ job.JobRepoInterface = (*JobRepository)(nil)

// Create inserts a new pending job with zero attempts and a fresh id.
func (r *JobRepository) Create(ctx context.Context, payload string) (*models.Job, error) {
	j := &models.Job{
		ID:      uuid.New(),
		Status:  string(config.StatusPending),
		Payload: payload,
	}
	err := r.pool.With(ctx, func(db *gorm.DB) error {
		return db.Create(j).Error
	})
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	return j, nil
}

// Get retrieves a single job record by its id. Returns
// gorm.ErrRecordNotFound wrapped when no such job exists.
func (r *JobRepository) Get(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var j models.Job
	err := r.pool.With(ctx, func(db *gorm.DB) error {
		return db.First(&j, "id = ?", id).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("job not found: %w", err)
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

// GetPayload fetches only the immutable text payload.
func (r *JobRepository) GetPayload(ctx context.Context, id uuid.UUID) (string, error) {
	var j models.Job
	err := r.pool.With(ctx, func(db *gorm.DB) error {
		return db.Select("payload").First(&j, "id = ?", id).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("job not found: %w", err)
		}
		return "", fmt.Errorf("get payload: %w", err)
	}
	return j.Payload, nil
}

// ClaimLease moves a pending job to started and grants the caller a lease of
// ttl under a fresh fencing epoch. The pending guard makes a duplicate
// dispatch lose the race instead of silently stealing a live lease.
func (r *JobRepository) ClaimLease(ctx context.Context, id uuid.UUID, owner string, ttl time.Duration) (int64, error) {
	now := time.Now().UTC()
	epoch := now.UnixNano()
	until := now.Add(ttl)

	var affected int64
	err := r.pool.With(ctx, func(db *gorm.DB) error {
		res := db.Model(&models.Job{}).
			Where("id = ? AND status = ?", id, config.StatusPending).
			Updates(map[string]any{
				"status":      string(config.StatusStarted),
				"owner":       owner,
				"lease_until": until,
				"lease_epoch": epoch,
			})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, fmt.Errorf("claim lease: %w", err)
	}
	if affected == 0 {
		return 0, job.ErrNotClaimable
	}
	return epoch, nil
}

// UpdateStatus sets the job status, and the result when one is provided.
// An unrecognized status is rejected before any mutation. When epoch is
// non-zero the write is fenced and fails with ErrLeaseLost if stale.
func (r *JobRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status config.JobStatus, result datatypes.JSON, epoch int64) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", job.ErrInvalidStatus, status)
	}

	updates := map[string]any{"status": string(status)}
	if result != nil {
		updates["result"] = result
	}

	var affected int64
	err := r.pool.With(ctx, func(db *gorm.DB) error {
		q := db.Model(&models.Job{}).Where("id = ?", id)
		if epoch > 0 {
			q = q.Where("lease_epoch = ?", epoch)
		}
		res := q.Updates(updates)
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if affected == 0 && epoch > 0 {
		return job.ErrLeaseLost
	}
	return nil
}

// ExtendLease pushes lease_until out by ttl from now. Heartbeat renewal for
// work that outlives the initial lease.
func (r *JobRepository) ExtendLease(ctx context.Context, id uuid.UUID, ttl time.Duration, epoch int64) error {
	until := time.Now().UTC().Add(ttl)

	var affected int64
	err := r.pool.With(ctx, func(db *gorm.DB) error {
		res := db.Model(&models.Job{}).
			Where("id = ? AND lease_epoch = ?", id, epoch).
			Update("lease_until", until)
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return fmt.Errorf("extend lease: %w", err)
	}
	if affected == 0 {
		return job.ErrLeaseLost
	}
	return nil
}

// ClearLease nulls the owner and expiry, leaving the status untouched.
func (r *JobRepository) ClearLease(ctx context.Context, id uuid.UUID, epoch int64) error {
	var affected int64
	err := r.pool.With(ctx, func(db *gorm.DB) error {
		q := db.Model(&models.Job{}).Where("id = ?", id)
		if epoch > 0 {
			q = q.Where("lease_epoch = ?", epoch)
		}
		res := q.Updates(map[string]any{
			"owner":       nil,
			"lease_until": nil,
			"lease_epoch": 0,
		})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return fmt.Errorf("clear lease: %w", err)
	}
	if affected == 0 && epoch > 0 {
		return job.ErrLeaseLost
	}
	return nil
}

// RecordRetry books one failed attempt and returns the job to pending with
// the lease cleared, ready to be re-enqueued.
func (r *JobRepository) RecordRetry(ctx context.Context, id uuid.UUID, errText string, epoch int64) error {
	var affected int64
	err := r.pool.With(ctx, func(db *gorm.DB) error {
		res := db.Model(&models.Job{}).
			Where("id = ? AND lease_epoch = ?", id, epoch).
			Updates(map[string]any{
				"attempts":    gorm.Expr("attempts + ?", 1),
				"last_error":  truncateError(errText, retryErrorLimit),
				"status":      string(config.StatusPending),
				"owner":       nil,
				"lease_until": nil,
				"lease_epoch": 0,
			})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return fmt.Errorf("record retry: %w", err)
	}
	if affected == 0 {
		return job.ErrLeaseLost
	}
	return nil
}

// RecordFailed books the terminal attempt and marks the job failed with the
// lease cleared. No transition leaves failed.
func (r *JobRepository) RecordFailed(ctx context.Context, id uuid.UUID, errText string, epoch int64) error {
	var affected int64
	err := r.pool.With(ctx, func(db *gorm.DB) error {
		res := db.Model(&models.Job{}).
			Where("id = ? AND lease_epoch = ?", id, epoch).
			Updates(map[string]any{
				"attempts":    gorm.Expr("attempts + ?", 1),
				"last_error":  truncateError(errText, failedErrorLimit),
				"status":      string(config.StatusFailed),
				"owner":       nil,
				"lease_until": nil,
				"lease_epoch": 0,
			})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return fmt.Errorf("record failed: %w", err)
	}
	if affected == 0 {
		return job.ErrLeaseLost
	}
	return nil
}

// ListExpired returns the ids of every leased job whose lease expired before
// now. Served by the (status, lease_until) index.
func (r *JobRepository) ListExpired(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.pool.With(ctx, func(db *gorm.DB) error {
		return db.Model(&models.Job{}).
			Where("status IN ? AND lease_until IS NOT NULL AND lease_until < ?",
				[]string{string(config.StatusStarted), string(config.StatusProcessing)}, now).
			Pluck("id", &ids).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list expired: %w", err)
	}
	return ids, nil
}

// ResetToPending strips an expired lease and returns the job to pending. The
// guard re-checks expiry so a job that finished between the reaper's scan and
// this write is left alone; the return value reports whether the row was
// actually reclaimed.
func (r *JobRepository) ResetToPending(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	var affected int64
	err := r.pool.With(ctx, func(db *gorm.DB) error {
		res := db.Model(&models.Job{}).
			Where("id = ? AND status IN ? AND lease_until IS NOT NULL AND lease_until < ?",
				id, []string{string(config.StatusStarted), string(config.StatusProcessing)}, now).
			Updates(map[string]any{
				"status":      string(config.StatusPending),
				"owner":       nil,
				"lease_until": nil,
				"lease_epoch": 0,
			})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return false, fmt.Errorf("reset to pending: %w", err)
	}
	return affected > 0, nil
}

// GetAttempts returns the attempt counter, 0 when the job does not exist.
func (r *JobRepository) GetAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	var j models.Job
	err := r.pool.With(ctx, func(db *gorm.DB) error {
		return db.Select("attempts").First(&j, "id = ?", id).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("get attempts: %w", err)
	}
	return j.Attempts, nil
}

// List retrieves the most recently created jobs, newest first.
func (r *JobRepository) List(ctx context.Context, limit int) ([]models.Job, error) {
	var jobs []models.Job
	err := r.pool.With(ctx, func(db *gorm.DB) error {
		return db.Order("created_at DESC").Limit(limit).Find(&jobs).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// RecoverAbandoned resets every in-flight job to pending with the lease
// cleared. Run once at startup, before any worker starts: rows left in
// started or processing were abandoned by the previous process incarnation.
func (r *JobRepository) RecoverAbandoned(ctx context.Context) (int64, error) {
	var affected int64
	err := r.pool.With(ctx, func(db *gorm.DB) error {
		res := db.Model(&models.Job{}).
			Where("status IN ?", []string{string(config.StatusStarted), string(config.StatusProcessing)}).
			Updates(map[string]any{
				"status":      string(config.StatusPending),
				"owner":       nil,
				"lease_until": nil,
				"lease_epoch": 0,
			})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, fmt.Errorf("recover abandoned jobs: %w", err)
	}
	return affected, nil
}

// truncateError bounds stored error text without splitting a rune.
func truncateError(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
