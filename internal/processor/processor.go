package processor

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/chachacholly/kairoi/internal/events"
	"github.com/chachacholly/kairoi/internal/execution"
	"github.com/chachacholly/kairoi/internal/log"
)

const (
	// DefaultTickRate is the maximum number of ticks per second.
	DefaultTickRate = 128

	// DefaultCompletionBuffer is the capacity of the completion channel.
	DefaultCompletionBuffer = 1024
)

// Dispatcher routes a request to a runner. See runner.Dispatcher.
type Dispatcher interface {
	Dispatch(req execution.Request, sink chan<- execution.Response) error
}

// Config tunes the loop. Zero values select the defaults.
type Config struct {
	TickRate         int
	CompletionBuffer int
}

// Stats is a snapshot of the loop's counters.
type Stats struct {
	Ticks     uint64 `json:"ticks"`
	Overruns  uint64 `json:"overruns"`
	Received  uint64 `json:"received"`
	Rejected  uint64 `json:"rejected"`
	Completed uint64 `json:"completed"`
	Sent      uint64 `json:"sent"`
}

// Processor is the dispatch loop. Only one goroutine may call Run.
type Processor struct {
	link        execution.Link
	dispatcher  Dispatcher
	period      time.Duration
	completions chan execution.Response
	hub         *events.Hub
	logger      *slog.Logger

	batch []execution.Request

	ticks     atomic.Uint64
	overruns  atomic.Uint64
	received  atomic.Uint64
	rejected  atomic.Uint64
	completed atomic.Uint64
	sent      atomic.Uint64
}

// New creates a Processor reading from and writing to link. hub may be nil.
func New(link execution.Link, dispatcher Dispatcher, cfg Config, hub *events.Hub) *Processor {
	rate := cfg.TickRate
	if rate <= 0 {
		rate = DefaultTickRate
	}
	buffer := cfg.CompletionBuffer
	if buffer <= 0 {
		buffer = DefaultCompletionBuffer
	}
	return &Processor{
		link:        link,
		dispatcher:  dispatcher,
		period:      time.Second / time.Duration(rate),
		completions: make(chan execution.Response, buffer),
		hub:         hub,
		logger:      log.WithComponent("processor"),
	}
}

// Period returns the minimum duration of a tick.
func (p *Processor) Period() time.Duration {
	return p.period
}

// Stats returns the current counters. Safe to call from any goroutine.
func (p *Processor) Stats() Stats {
	return Stats{
		Ticks:     p.ticks.Load(),
		Overruns:  p.overruns.Load(),
		Received:  p.received.Load(),
		Rejected:  p.rejected.Load(),
		Completed: p.completed.Load(),
		Sent:      p.sent.Load(),
	}
}

// Start runs the loop on a new goroutine. The returned channel receives
// Run's result and is then closed.
func (p *Processor) Start(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- p.Run(ctx)
	}()
	return done
}

// Run drives the loop until a channel breaks or ctx is cancelled. It returns
// a *FatalError in the first case and ctx.Err() in the second.
func (p *Processor) Run(ctx context.Context) error {
	p.logger.Info("dispatch loop started", "tick_period", p.period)
	defer p.logger.Info("dispatch loop stopped")

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		start := time.Now()

		if err := p.tick(); err != nil {
			// A host shutting down closes the link; that is not a failure.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.reportFatal(err)
			return err
		}

		remaining := p.period - time.Since(start)
		if remaining <= 0 {
			// Overran the budget: catch up without sleeping.
			p.overruns.Add(1)
			if err := ctx.Err(); err != nil {
				return err
			}
			continue
		}

		timer.Reset(remaining)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// tick performs one pass: drain inbound, dispatch, drain completions.
func (p *Processor) tick() error {
	p.ticks.Add(1)

	// A broken inbound side is reported only after the requests drained
	// before it have been dispatched and their completions forwarded.
	var inboundErr error
	batch := p.batch[:0]
	for {
		req, err := p.link.TryReceive()
		if errors.Is(err, execution.ErrEmpty) {
			break
		}
		if err != nil {
			inboundErr = &FatalError{Channel: ChannelInbound, Err: err}
			break
		}
		batch = append(batch, req)
	}

	for _, req := range batch {
		p.received.Add(1)
		if err := p.dispatcher.Dispatch(req, p.completions); err != nil {
			p.rejected.Add(1)
			p.logger.Debug("unable to execute request",
				"request_id", req.ID,
				"job_id", req.JobID,
				"error", err,
			)
			p.hub.Publish(events.Event{
				Kind:      events.RequestRejected,
				RequestID: req.ID.String(),
				JobID:     req.JobID,
				Detail:    err.Error(),
			})
			if err := p.send(execution.Failed(req.ID)); err != nil {
				return err
			}
			continue
		}
		p.hub.Publish(events.Event{
			Kind:      events.RequestAccepted,
			RequestID: req.ID.String(),
			JobID:     req.JobID,
		})
	}
	clear(batch)
	p.batch = batch[:0]

	for {
		select {
		case resp, ok := <-p.completions:
			if !ok {
				return &FatalError{Channel: ChannelCompletion, Err: ErrChannelDisconnected}
			}
			p.completed.Add(1)
			if err := p.send(resp); err != nil {
				return err
			}
		default:
			return inboundErr
		}
	}
}

// send forwards resp to the link's outbound side.
func (p *Processor) send(resp execution.Response) error {
	if err := p.link.Send(resp); err != nil {
		return &FatalError{Channel: ChannelOutbound, Err: err}
	}
	p.sent.Add(1)
	p.hub.Publish(events.Event{
		Kind:      events.ResponseSent,
		RequestID: resp.ID.String(),
		Outcome:   resp.Outcome.String(),
	})
	return nil
}

func (p *Processor) reportFatal(err error) {
	var fe *FatalError
	channel := "unknown"
	if errors.As(err, &fe) {
		channel = string(fe.Channel)
	}
	p.logger.Error("unrecoverable channel failure, stopping dispatch loop",
		"channel", channel,
		"error", err,
		"stats", p.Stats(),
	)
	p.hub.Publish(events.Event{Kind: events.ProcessorFatal, Detail: err.Error()})
}
