package job

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/jkrishnan-dev/textjobs/internal/config"
	"github.com/jkrishnan-dev/textjobs/internal/dto"
	"github.com/jkrishnan-dev/textjobs/internal/models"
)

// JobRepoInterface defines the contract for the durable job store. Every
// mutation is a single atomic statement; writes made under a lease carry the
// epoch granted by ClaimLease and are rejected when it has gone stale.
type JobRepoInterface interface {
	Create(ctx context.Context, payload string) (*models.Job, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Job, error)
	GetPayload(ctx context.Context, id uuid.UUID) (string, error)
	ClaimLease(ctx context.Context, id uuid.UUID, owner string, ttl time.Duration) (int64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status config.JobStatus, result datatypes.JSON, epoch int64) error
	ExtendLease(ctx context.Context, id uuid.UUID, ttl time.Duration, epoch int64) error
	ClearLease(ctx context.Context, id uuid.UUID, epoch int64) error
	RecordRetry(ctx context.Context, id uuid.UUID, errText string, epoch int64) error
	RecordFailed(ctx context.Context, id uuid.UUID, errText string, epoch int64) error
	ListExpired(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	ResetToPending(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	GetAttempts(ctx context.Context, id uuid.UUID) (int, error)
	List(ctx context.Context, limit int) ([]models.Job, error)
	RecoverAbandoned(ctx context.Context) (int64, error)
}

// JobServiceInterface defines the contract for job business logic operations.
type JobServiceInterface interface {
	SubmitJob(ctx context.Context, payload string) (*dto.CreateJobResponse, error)
	GetJobStatus(ctx context.Context, id uuid.UUID) (*dto.JobStatusResponse, error)
	GetJobResult(ctx context.Context, id uuid.UUID) (*dto.JobResultOutcome, error)
	GetJob(ctx context.Context, id uuid.UUID) (*dto.JobView, error)
	ListJobs(ctx context.Context, limit int) ([]dto.JobView, error)
}

// JobHandlerInterface defines the contract for HTTP request handlers.
type JobHandlerInterface interface {
	Create(c *gin.Context)
	Status(c *gin.Context)
	Result(c *gin.Context)
	Get(c *gin.Context)
	List(c *gin.Context)
}
