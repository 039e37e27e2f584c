package api

import (
	"encoding/json"
	"time"

	"github.com/chachacholly/kairoi/internal/processor"
)

// SubmitRequest is the JSON body for POST /v1/requests
type SubmitRequest struct {
	JobID  string          `json:"job_id"`
	Runner json.RawMessage `json:"runner"`
}

// SubmitResponse is returned once a request is stored
type SubmitResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// RequestStatusResponse is returned by GET /v1/requests/{id}
type RequestStatusResponse struct {
	ID           string          `json:"id"`
	JobID        string          `json:"job_id"`
	Runner       json.RawMessage `json:"runner,omitempty"`
	Status       string          `json:"status"`
	Result       string          `json:"result,omitempty"`
	Reason       string          `json:"reason,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	DispatchedAt *time.Time      `json:"dispatched_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string          `json:"status"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Pending       int             `json:"pending"`
	Dispatch      processor.Stats `json:"dispatch"`
}
