package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusDone      JobStatus = "done"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Job отложенная задача, привязанная к custom date
type Job struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	CustomDateID  uuid.UUID       `json:"customDateId"`
	DedupeKey     string          `json:"dedupeKey"`
	Payload       json.RawMessage `json:"payload"`
	Status        JobStatus       `json:"status"`
	Attempts      int             `json:"attempts"`
	MaxAttempts   int             `json:"maxAttempts"`
	BackoffBaseMS int64           `json:"backoffBaseMs"`
	RunAt         time.Time       `json:"runAt"`
	LastError     string          `json:"lastError,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

func (j *Job) IsPending() bool {
	return j.Status == JobStatusPending
}
