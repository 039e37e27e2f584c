package runner

import (
	"fmt"
	"log/slog"

	"github.com/chachacholly/kairoi/internal/execution"
	"github.com/chachacholly/kairoi/internal/log"
)

// QueuePublisher is the declared runner for execution.Queue requests. It has
// no broker implementation and rejects every request without side effects.
type QueuePublisher struct {
	logger *slog.Logger
}

// NewQueuePublisher creates the stub publisher.
func NewQueuePublisher() *QueuePublisher {
	return &QueuePublisher{logger: log.WithComponent("runner")}
}

// Execute always rejects.
func (q *QueuePublisher) Execute(req execution.Request, _ chan<- execution.Response) error {
	if spec, ok := req.Runner.(execution.Queue); ok {
		q.logger.Debug("queue publisher not implemented",
			"request_id", req.ID,
			"exchange", spec.Exchange,
			"routing_key", spec.RoutingKey,
		)
	}
	return fmt.Errorf("%w: %w: queue publisher", ErrRejected, ErrNotImplemented)
}
