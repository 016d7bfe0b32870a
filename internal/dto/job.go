package dto

import (
	"time"

	"github.com/google/uuid"
)

// JobCreateRequest is the JSON submission body, the alternative to a
// multipart file upload.
type JobCreateRequest struct {
	Text string `json:"text" validate:"required"`
}

type CreateJobResponse struct {
	JobID  uuid.UUID `json:"job_id"`
	Status string    `json:"status"`
}

type JobStatusResponse struct {
	JobID      uuid.UUID  `json:"job_id"`
	Status     string     `json:"status"`
	Owner      *string    `json:"owner,omitempty"`
	LeaseUntil *time.Time `json:"lease_until,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// JobResultOutcome carries everything the result endpoint may need; the
// handler picks the response shape from Status.
type JobResultOutcome struct {
	JobID      uuid.UUID `json:"job_id"`
	Status     string    `json:"status"`
	Characters *int      `json:"characters,omitempty"`
	Attempts   int       `json:"attempts,omitempty"`
	LastError  string    `json:"error,omitempty"`
}

type JobView struct {
	JobID       uuid.UUID  `json:"job_id"`
	Status      string     `json:"status"`
	Attempts    int        `json:"attempts"`
	ResultChars *int       `json:"result_chars"`
	Owner       *string    `json:"owner,omitempty"`
	LeaseUntil  *time.Time `json:"lease_until,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
