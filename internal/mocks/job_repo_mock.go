package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"gorm.io/datatypes"

	"github.com/jkrishnan-dev/textjobs/internal/config"
	"github.com/jkrishnan-dev/textjobs/internal/models"
)

type JobRepoMock struct {
	mock.Mock
}

func (m *JobRepoMock) Create(ctx context.Context, payload string) (*models.Job, error) {
	args := m.Called(ctx, payload)

	j, _ := args.Get(0).(*models.Job)
	return j, args.Error(1)
}

func (m *JobRepoMock) Get(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	args := m.Called(ctx, id)

	j, _ := args.Get(0).(*models.Job)
	return j, args.Error(1)
}

func (m *JobRepoMock) GetPayload(ctx context.Context, id uuid.UUID) (string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Error(1)
}

func (m *JobRepoMock) ClaimLease(ctx context.Context, id uuid.UUID, owner string, ttl time.Duration) (int64, error) {
	args := m.Called(ctx, id, owner, ttl)
	return args.Get(0).(int64), args.Error(1)
}

func (m *JobRepoMock) UpdateStatus(ctx context.Context, id uuid.UUID, status config.JobStatus, result datatypes.JSON, epoch int64) error {
	args := m.Called(ctx, id, status, result, epoch)
	return args.Error(0)
}

func (m *JobRepoMock) ExtendLease(ctx context.Context, id uuid.UUID, ttl time.Duration, epoch int64) error {
	args := m.Called(ctx, id, ttl, epoch)
	return args.Error(0)
}

func (m *JobRepoMock) ClearLease(ctx context.Context, id uuid.UUID, epoch int64) error {
	args := m.Called(ctx, id, epoch)
	return args.Error(0)
}

func (m *JobRepoMock) RecordRetry(ctx context.Context, id uuid.UUID, errText string, epoch int64) error {
	args := m.Called(ctx, id, errText, epoch)
	return args.Error(0)
}

func (m *JobRepoMock) RecordFailed(ctx context.Context, id uuid.UUID, errText string, epoch int64) error {
	args := m.Called(ctx, id, errText, epoch)
	return args.Error(0)
}

func (m *JobRepoMock) ListExpired(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	args := m.Called(ctx, now)

	ids, _ := args.Get(0).([]uuid.UUID)
	return ids, args.Error(1)
}

func (m *JobRepoMock) ResetToPending(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	args := m.Called(ctx, id, now)
	return args.Bool(0), args.Error(1)
}

func (m *JobRepoMock) GetAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	args := m.Called(ctx, id)
	return args.Int(0), args.Error(1)
}

func (m *JobRepoMock) List(ctx context.Context, limit int) ([]models.Job, error) {
	args := m.Called(ctx, limit)

	jobs, _ := args.Get(0).([]models.Job)
	return jobs, args.Error(1)
}

func (m *JobRepoMock) RecoverAbandoned(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}
