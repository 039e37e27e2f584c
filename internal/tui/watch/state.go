package watch

import (
	"time"

	"github.com/chachacholly/kairoi/internal/events"
	"github.com/chachacholly/kairoi/internal/execution"
)

const (
	stateRunning   = "running"
	stateRejected  = "rejected"
	stateSucceeded = "succeeded"
	stateFailed    = "failed"
)

// maxRequests bounds the request table.
const maxRequests = 200

// requestState is one row of the request table.
type requestState struct {
	ID      string
	JobID   string
	State   string
	Started time.Time
	Updated time.Time
}

// Elapsed is the time from acceptance to the last update.
func (r *requestState) Elapsed() time.Duration {
	if r.Started.IsZero() {
		return 0
	}
	return r.Updated.Sub(r.Started)
}

// tracker folds hub events into per-request state, newest first.
type tracker struct {
	byID  map[string]*requestState
	order []string
}

func newTracker() *tracker {
	return &tracker{byID: make(map[string]*requestState)}
}

// apply updates state for ev. It reports whether anything changed.
func (t *tracker) apply(ev events.Event) bool {
	if ev.RequestID == "" {
		return false
	}

	r, ok := t.byID[ev.RequestID]
	if !ok {
		r = &requestState{ID: ev.RequestID}
		t.byID[ev.RequestID] = r
		t.order = append([]string{ev.RequestID}, t.order...)
		if len(t.order) > maxRequests {
			for _, id := range t.order[maxRequests:] {
				delete(t.byID, id)
			}
			t.order = t.order[:maxRequests]
		}
	}
	if ev.JobID != "" {
		r.JobID = ev.JobID
	}
	r.Updated = ev.At

	switch ev.Kind {
	case events.RequestAccepted:
		r.State = stateRunning
		r.Started = ev.At
	case events.RequestRejected:
		r.State = stateRejected
	case events.ResponseSent:
		// A rejection already explains the failure.
		if r.State == stateRejected {
			break
		}
		if ev.Outcome == execution.Success.String() {
			r.State = stateSucceeded
		} else {
			r.State = stateFailed
		}
	}
	return true
}

// rows returns requests newest first.
func (t *tracker) rows() []*requestState {
	out := make([]*requestState, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.byID[id])
	}
	return out
}
