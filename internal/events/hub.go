// Package events is an in-process publish/subscribe hub for dispatch
// activity, with a bounded backlog for late subscribers.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
)

type Kind string

const (
	RequestAccepted Kind = "request.accepted"
	RequestRejected Kind = "request.rejected"
	ResponseSent    Kind = "response.sent"
	ProcessorFatal  Kind = "processor.fatal"
)

type Event struct {
	Seq       int64     `json:"seq"`
	Kind      Kind      `json:"kind"`
	At        time.Time `json:"at"`
	RequestID string    `json:"request_id,omitempty"`
	JobID     string    `json:"job_id,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Hub fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the event.
type Hub struct {
	seq atomic.Int64

	mu       sync.Mutex
	backlog  *queue.Queue
	capacity int

	subs      map[int]chan Event
	nextSubID int
}

func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 256
	}
	return &Hub{
		backlog:  queue.New(),
		capacity: capacity,
		subs:     make(map[int]chan Event),
	}
}

// Publish stamps ev with a sequence number and time and delivers it.
func (h *Hub) Publish(ev Event) {
	if h == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ev.Seq = h.seq.Add(1)
	h.backlog.Add(ev)
	for h.backlog.Length() > h.capacity {
		h.backlog.Remove()
	}
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe registers a subscriber. The returned func unsubscribes and
// closes the channel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSubID
	h.nextSubID++
	ch := make(chan Event, 128)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Since returns backlog events with Seq > after, oldest first.
func (h *Hub) Since(after int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, h.backlog.Length())
	for i := 0; i < h.backlog.Length(); i++ {
		ev := h.backlog.Get(i).(Event)
		if ev.Seq > after {
			out = append(out, ev)
		}
	}
	return out
}
