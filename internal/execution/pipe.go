package execution

import (
	"context"
	"sync"

	"github.com/eapache/queue"
)

// mailbox is an unbounded FIFO with close semantics matching an unbounded
// channel: items pushed before close are still delivered.
type mailbox struct {
	mu     sync.Mutex
	items  *queue.Queue
	closed bool
	ready  chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{
		items: queue.New(),
		ready: make(chan struct{}, 1),
	}
}

func (m *mailbox) push(v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrDisconnected
	}
	m.items.Add(v)
	m.signal()
	return nil
}

func (m *mailbox) tryPop() (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items.Length() > 0 {
		return m.items.Remove(), nil
	}
	if m.closed {
		return nil, ErrDisconnected
	}
	return nil, ErrEmpty
}

func (m *mailbox) pop(ctx context.Context) (any, error) {
	for {
		v, err := m.tryPop()
		if err != ErrEmpty {
			return v, err
		}
		select {
		case <-m.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.signal()
}

// drain removes and returns everything buffered.
func (m *mailbox) drain() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]any, 0, m.items.Length())
	for m.items.Length() > 0 {
		out = append(out, m.items.Remove())
	}
	return out
}

func (m *mailbox) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items.Length()
}

// signal wakes a blocked pop. Caller holds mu.
func (m *mailbox) signal() {
	select {
	case m.ready <- struct{}{}:
	default:
	}
}

// Pipe is an in-process Link with unbounded buffering in both directions.
// The dispatch loop uses it through the Link methods; the host that owns the
// job store uses Submit, CloseRequests, Receive and Detach.
type Pipe struct {
	requests  *mailbox
	responses *mailbox
}

var _ Link = (*Pipe)(nil)

// NewPipe returns a connected pipe.
func NewPipe() *Pipe {
	return &Pipe{
		requests:  newMailbox(),
		responses: newMailbox(),
	}
}

// TryReceive implements Link.
func (p *Pipe) TryReceive() (Request, error) {
	v, err := p.requests.tryPop()
	if err != nil {
		return Request{}, err
	}
	return v.(Request), nil
}

// Send implements Link.
func (p *Pipe) Send(resp Response) error {
	return p.responses.push(resp)
}

// Submit queues req for the dispatch loop. It fails with ErrDisconnected
// after CloseRequests.
func (p *Pipe) Submit(req Request) error {
	return p.requests.push(req)
}

// CloseRequests closes the inbound side. Requests already submitted are
// still delivered; after that the loop sees ErrDisconnected.
func (p *Pipe) CloseRequests() {
	p.requests.close()
}

// Receive blocks until a response is available, the outbound side is
// detached and empty, or ctx is done.
func (p *Pipe) Receive(ctx context.Context) (Response, error) {
	v, err := p.responses.pop(ctx)
	if err != nil {
		return Response{}, err
	}
	return v.(Response), nil
}

// TryReceiveResponse returns the next response without blocking.
func (p *Pipe) TryReceiveResponse() (Response, error) {
	v, err := p.responses.tryPop()
	if err != nil {
		return Response{}, err
	}
	return v.(Response), nil
}

// Detach disconnects the outbound side. Further Send calls fail with
// ErrDisconnected; responses already sent can still be received.
func (p *Pipe) Detach() {
	p.responses.close()
}

// Unclaimed closes the inbound side and returns the requests the loop never
// received, in submission order. Call it once the loop has stopped; those
// requests were never accepted and get no response.
func (p *Pipe) Unclaimed() []Request {
	p.requests.close()
	items := p.requests.drain()
	out := make([]Request, len(items))
	for i, v := range items {
		out[i] = v.(Request)
	}
	return out
}

// Pending returns the number of submitted requests not yet received.
func (p *Pipe) Pending() int {
	return p.requests.len()
}
