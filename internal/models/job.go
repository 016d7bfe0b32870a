package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Job is the only persisted entity. Owner and LeaseUntil are non-nil exactly
// while the job is leased (status started or processing). LeaseEpoch is the
// fencing token handed to the claiming worker: it is replaced on every claim
// and zeroed whenever the lease is cleared or stripped, so a write carrying a
// stale epoch never lands.
type Job struct {
	ID         uuid.UUID      `gorm:"type:varchar(36);primaryKey"`
	Status     string         `gorm:"type:varchar(20);not null;default:'pending';index:ix_jobs_status;index:ix_jobs_status_lease,priority:1"`
	Payload    string         `gorm:"type:text"`
	Result     datatypes.JSON `gorm:"type:text"`
	Attempts   int            `gorm:"not null;default:0"`
	LastError  string         `gorm:"type:text"`
	Owner      *string        `gorm:"type:varchar(64)"`
	LeaseUntil *time.Time     `gorm:"index:ix_jobs_status_lease,priority:2"`
	LeaseEpoch int64          `gorm:"not null;default:0"`
	CreatedAt  time.Time      `gorm:"autoCreateTime"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime"`
}

func (Job) TableName() string { return "jobs" }
