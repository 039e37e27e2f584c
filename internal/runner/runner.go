// Package runner routes execution requests to the runner implementation for
// their variant.
//
// A runner either accepts a request, in which case it owns emitting exactly
// one response on the completion sink, or rejects it synchronously, in which
// case it must never emit one and the caller reports the failure.
package runner

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/chachacholly/kairoi/internal/execution"
	"github.com/chachacholly/kairoi/internal/log"
)

var (
	// ErrRejected wraps every synchronous rejection.
	ErrRejected = errors.New("request rejected")
	// ErrNotImplemented is returned for declared runner kinds with no implementation.
	ErrNotImplemented = errors.New("runner not implemented")
	// ErrUnsupportedRunner is returned for runner kinds the dispatcher has no route for.
	ErrUnsupportedRunner = errors.New("unsupported runner")
)

//go:generate mockgen -destination=../mocks/mock_runner.go -package=mocks github.com/chachacholly/kairoi/internal/runner Runner

// Runner executes one kind of request.
type Runner interface {
	// Execute starts req. A nil error means the runner accepted the request
	// and will push exactly one response to sink. A non-nil error means the
	// request was rejected and nothing will ever be pushed for it.
	// Execute is called from the dispatch loop, which is also the only reader
	// of sink, so it must not send on sink before returning.
	Execute(req execution.Request, sink chan<- execution.Response) error
}

// Dispatcher is a stateless router from RunnerSpec variant to Runner.
type Dispatcher struct {
	shell  Runner
	queue  Runner
	logger *slog.Logger
}

// NewDispatcher creates a Dispatcher. A nil runner leaves its variant unrouted.
func NewDispatcher(shell, queue Runner) *Dispatcher {
	return &Dispatcher{
		shell:  shell,
		queue:  queue,
		logger: log.WithComponent("runner"),
	}
}

// Dispatch hands req to the runner for its variant. The returned error, when
// non-nil, always matches ErrRejected.
func (d *Dispatcher) Dispatch(req execution.Request, sink chan<- execution.Response) error {
	var r Runner
	switch req.Runner.(type) {
	case execution.Shell:
		r = d.shell
	case execution.Queue:
		r = d.queue
	}

	if r == nil {
		kind := "<nil>"
		if req.Runner != nil {
			kind = req.Runner.Kind()
		}
		return fmt.Errorf("%w: %w %q", ErrRejected, ErrUnsupportedRunner, kind)
	}

	if err := r.Execute(req, sink); err != nil {
		if !errors.Is(err, ErrRejected) {
			err = fmt.Errorf("%w: %w", ErrRejected, err)
		}
		return err
	}
	d.logger.Debug("request accepted", "request_id", req.ID, "runner", req.Runner.Kind())
	return nil
}
