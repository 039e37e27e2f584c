package store

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/chachacholly/kairoi/internal/execution"
)

// Status is the lifecycle state of a stored request.
type Status string

const (
	StatusPending    Status = "pending"
	StatusDispatched Status = "dispatched"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// ReasonInterrupted marks requests that were in flight when a previous
// process died.
const ReasonInterrupted = "interrupted"

var (
	ErrNotFound = errors.New("execution request not found")
	// ErrNotDispatched is returned by Complete for requests that are not
	// currently dispatched, including ones that were already completed.
	ErrNotDispatched = errors.New("execution request not dispatched")
)

// Record is the stored view of a request.
type Record struct {
	ID           uuid.UUID
	JobID        string
	Runner       execution.RunnerSpec
	Status       Status
	Result       *execution.Outcome
	Reason       *string
	CreatedAt    time.Time
	DispatchedAt *time.Time
	CompletedAt  *time.Time
}

// Terminal reports whether the record has reached a final status.
func (r *Record) Terminal() bool {
	return r.Status == StatusSucceeded || r.Status == StatusFailed
}
