// Package execution defines the values exchanged between the job store and
// the dispatch loop, and the link that carries them.
package execution

import (
	"fmt"

	"github.com/google/uuid"
)

// Request is one unit of work submitted by the job store.
type Request struct {
	ID     uuid.UUID
	JobID  string
	Runner RunnerSpec
}

// NewRequest builds a Request with a fresh identifier.
func NewRequest(jobID string, spec RunnerSpec) Request {
	return Request{ID: uuid.New(), JobID: jobID, Runner: spec}
}

func (r Request) String() string {
	kind := "<nil>"
	if r.Runner != nil {
		kind = r.Runner.Kind()
	}
	return fmt.Sprintf("request %s (job %q, runner %s)", r.ID, r.JobID, kind)
}

// Outcome is the two-valued result of a request.
type Outcome uint8

const (
	Failure Outcome = iota
	Success
)

func (o Outcome) String() string {
	if o == Success {
		return "success"
	}
	return "failure"
}

// MarshalText encodes the outcome as "success" or "failure".
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText accepts "success" or "failure".
func (o *Outcome) UnmarshalText(b []byte) error {
	switch string(b) {
	case "success":
		*o = Success
	case "failure":
		*o = Failure
	default:
		return fmt.Errorf("invalid outcome %q", string(b))
	}
	return nil
}

// Response reports the outcome of exactly one previously accepted Request.
type Response struct {
	ID      uuid.UUID `json:"id"`
	Outcome Outcome   `json:"result"`
}

// Succeeded returns a success response for id.
func Succeeded(id uuid.UUID) Response {
	return Response{ID: id, Outcome: Success}
}

// Failed returns a failure response for id.
func Failed(id uuid.UUID) Response {
	return Response{ID: id, Outcome: Failure}
}

// RunnerSpec selects the runner a request is executed by. The set of variants
// is closed to this package; routing lives in the runner package.
type RunnerSpec interface {
	// Kind is the wire tag of the variant.
	Kind() string
	isRunnerSpec()
}

const (
	KindShell = "shell"
	KindQueue = "queue"
)

// Shell runs Command through the configured interpreter.
type Shell struct {
	Command string `json:"command"`
}

func (Shell) Kind() string  { return KindShell }
func (Shell) isRunnerSpec() {}

// Queue publishes to a message broker. Declared only; every Queue request is
// rejected by the dispatcher.
type Queue struct {
	DSN        string `json:"dsn"`
	Exchange   string `json:"exchange"`
	RoutingKey string `json:"routing_key"`
}

func (Queue) Kind() string  { return KindQueue }
func (Queue) isRunnerSpec() {}

// Unknown carries a runner type this build does not know about. It is kept
// so that the request still reaches the dispatcher and gets its failure response.
type Unknown struct {
	Type string `json:"type"`
}

func (u Unknown) Kind() string { return u.Type }
func (Unknown) isRunnerSpec()  {}
