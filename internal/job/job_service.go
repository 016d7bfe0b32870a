package job

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jkrishnan-dev/textjobs/common"
	"github.com/jkrishnan-dev/textjobs/internal/config"
	"github.com/jkrishnan-dev/textjobs/internal/dto"
	"github.com/jkrishnan-dev/textjobs/internal/models"
	"github.com/jkrishnan-dev/textjobs/internal/queue"
)

// JobService sits between the HTTP handlers and the store. Submission writes
// the durable row first and only then enqueues the id, so a dispatched id
// always has a backing record. All query paths are strictly read-only.
type JobService struct {
	repo  JobRepoInterface
	queue *queue.Queue
}

func NewJobService(repo JobRepoInterface, q *queue.Queue) *JobService {
	return &JobService{repo: repo, queue: q}
}

var _ JobServiceInterface = (*JobService)(nil)

// SubmitJob persists a new pending job and places its id on the dispatch
// queue. Payload validation (size, encoding) happens at the transport layer
// before this is called, so no row exists for a rejected upload.
func (s *JobService) SubmitJob(ctx context.Context, payload string) (*dto.CreateJobResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request canceled or timed out")
	}

	j, err := s.repo.Create(ctx, payload)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			return nil, common.Errf(http.StatusRequestTimeout, "request was canceled")
		case errors.Is(err, context.DeadlineExceeded):
			return nil, common.Errf(http.StatusRequestTimeout, "request timeout")
		default:
			return nil, common.Errf(http.StatusInternalServerError, "failed to add job to database")
		}
	}

	s.queue.Enqueue(j.ID)

	return &dto.CreateJobResponse{
		JobID:  j.ID,
		Status: j.Status,
	}, nil
}

// GetJobStatus retrieves the live status view of a job, including the
// current lease holder and expiry when one is held.
func (s *JobService) GetJobStatus(ctx context.Context, id uuid.UUID) (*dto.JobStatusResponse, error) {
	j, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}

	return &dto.JobStatusResponse{
		JobID:      j.ID,
		Status:     j.Status,
		Owner:      j.Owner,
		LeaseUntil: j.LeaseUntil,
		CreatedAt:  j.CreatedAt,
		UpdatedAt:  j.UpdatedAt,
	}, nil
}

// GetJobResult retrieves the result view: the character count once done, the
// attempt count and stored error once terminally failed, or a bare status
// while the job is still in flight.
func (s *JobService) GetJobResult(ctx context.Context, id uuid.UUID) (*dto.JobResultOutcome, error) {
	j, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}

	out := &dto.JobResultOutcome{
		JobID:  j.ID,
		Status: j.Status,
	}

	switch config.JobStatus(j.Status) {
	case config.StatusFailed:
		out.Attempts = j.Attempts
		out.LastError = j.LastError
		if out.LastError == "" {
			out.LastError = "unknown"
		}
	case config.StatusDone:
		out.Characters = resultChars(j.Result)
	}

	return out, nil
}

// GetJob retrieves the full job view.
func (s *JobService) GetJob(ctx context.Context, id uuid.UUID) (*dto.JobView, error) {
	j, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	v := toView(j)
	return &v, nil
}

// ListJobs retrieves the most recent jobs, newest first.
func (s *JobService) ListJobs(ctx context.Context, limit int) ([]dto.JobView, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request timed out")
	}

	jobs, err := s.repo.List(ctx, limit)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, common.Errf(http.StatusRequestTimeout, "request timed out")
		}
		return nil, common.Errf(http.StatusInternalServerError, "failed to list jobs")
	}

	views := make([]dto.JobView, len(jobs))
	for i := range jobs {
		views[i] = toView(&jobs[i])
	}
	return views, nil
}

func (s *JobService) fetch(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request timed out")
	}

	j, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, common.Errf(http.StatusRequestTimeout, "request timed out")
		}
		if errors.Is(err, gorm.ErrRecordNotFound) || strings.Contains(err.Error(), "job not found") {
			return nil, common.Errf(http.StatusNotFound, "job not found")
		}
		return nil, common.Errf(http.StatusInternalServerError, "failed to get job")
	}
	return j, nil
}

func toView(j *models.Job) dto.JobView {
	return dto.JobView{
		JobID:       j.ID,
		Status:      j.Status,
		Attempts:    j.Attempts,
		ResultChars: resultChars(j.Result),
		Owner:       j.Owner,
		LeaseUntil:  j.LeaseUntil,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
}

// resultChars decodes the stored result; nil when unset or not a number.
func resultChars(raw []byte) *int {
	if len(raw) == 0 {
		return nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil
	}
	return &n
}
