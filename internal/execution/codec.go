package execution

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
)

type wireRequest struct {
	ID     uuid.UUID       `json:"id"`
	JobID  string          `json:"job_id"`
	Runner json.RawMessage `json:"runner"`
}

type wireRunner struct {
	Type       string `json:"type"`
	Command    string `json:"command,omitempty"`
	DSN        string `json:"dsn,omitempty"`
	Exchange   string `json:"exchange,omitempty"`
	RoutingKey string `json:"routing_key,omitempty"`
}

// MarshalJSON encodes the runner as a tagged object, e.g.
// {"type":"shell","command":"true"}.
func (r Request) MarshalJSON() ([]byte, error) {
	runner, err := MarshalRunnerSpec(r.Runner)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireRequest{ID: r.ID, JobID: r.JobID, Runner: runner})
}

// UnmarshalJSON decodes a tagged request. A request without an identifier is
// rejected because no response could ever be correlated to it.
func (r *Request) UnmarshalJSON(data []byte) error {
	var w wireRequest
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.ID == uuid.Nil {
		return fmt.Errorf("request missing required field: id")
	}
	spec, err := UnmarshalRunnerSpec(w.Runner)
	if err != nil {
		return fmt.Errorf("request %s: %w", w.ID, err)
	}
	*r = Request{ID: w.ID, JobID: w.JobID, Runner: spec}
	return nil
}

// MarshalRunnerSpec encodes spec in its tagged wire form.
func MarshalRunnerSpec(spec RunnerSpec) (json.RawMessage, error) {
	var w wireRunner
	switch s := spec.(type) {
	case Shell:
		w = wireRunner{Type: KindShell, Command: s.Command}
	case Queue:
		w = wireRunner{Type: KindQueue, DSN: s.DSN, Exchange: s.Exchange, RoutingKey: s.RoutingKey}
	case Unknown:
		w = wireRunner{Type: s.Type}
	case nil:
		return nil, fmt.Errorf("runner is nil")
	default:
		return nil, fmt.Errorf("unsupported runner spec %T", spec)
	}
	return json.Marshal(w)
}

// UnmarshalRunnerSpec decodes a tagged runner object. Types this build does
// not know decode to Unknown rather than failing.
func UnmarshalRunnerSpec(data []byte) (RunnerSpec, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("runner missing")
	}
	var w wireRunner
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode runner: %w", err)
	}
	switch w.Type {
	case KindShell:
		return Shell{Command: w.Command}, nil
	case KindQueue:
		return Queue{DSN: w.DSN, Exchange: w.Exchange, RoutingKey: w.RoutingKey}, nil
	case "":
		return nil, fmt.Errorf("runner missing required field: type")
	default:
		return Unknown{Type: w.Type}, nil
	}
}

// EncodeRequest writes req as a single JSON line.
func EncodeRequest(w io.Writer, req Request) error {
	if err := json.NewEncoder(w).Encode(req); err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	return nil
}

// DecodeRequest reads one JSON request from r.
func DecodeRequest(r io.Reader) (Request, error) {
	var req Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return Request{}, fmt.Errorf("failed to decode request: %w", err)
	}
	return req, nil
}

// EncodeResponse writes resp as a single JSON line.
func EncodeResponse(w io.Writer, resp Response) error {
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	return nil
}

// DecodeResponse reads one JSON response from r.
func DecodeResponse(r io.Reader) (Response, error) {
	var resp Response
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.ID == uuid.Nil {
		return Response{}, fmt.Errorf("response missing required field: id")
	}
	return resp, nil
}
