package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chachacholly/kairoi/internal/execution"
	"github.com/chachacholly/kairoi/internal/log"
)

const (
	defaultPollInterval = 250 * time.Millisecond
	defaultBatchSize    = 64
	completeTimeout     = 5 * time.Second
)

// BridgeConfig tunes a Bridge.
type BridgeConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// Bridge moves requests from the store onto a Pipe and records the
// responses that come back.
type Bridge struct {
	store        *Store
	pipe         *execution.Pipe
	pollInterval time.Duration
	batchSize    int
	logger       *slog.Logger
}

func NewBridge(store *Store, pipe *execution.Pipe, cfg BridgeConfig) *Bridge {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	return &Bridge{
		store:        store,
		pipe:         pipe,
		pollInterval: cfg.PollInterval,
		batchSize:    cfg.BatchSize,
		logger:       log.WithComponent("store-bridge"),
	}
}

// Run feeds the pipe until ctx is cancelled, then closes the pipe's inbound
// side. It returns once the loop's outbound side has been detached and every
// response sent before that has been recorded. Requests the loop never
// received go back to pending.
func (b *Bridge) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.collect()
	}()

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	b.logger.Info("store bridge started", "poll_interval", b.pollInterval, "batch_size", b.batchSize)
	for {
		b.feed(ctx)

		select {
		case <-ctx.Done():
			b.pipe.CloseRequests()
			wg.Wait()
			b.requeue(b.pipe.Unclaimed())
			b.logger.Info("store bridge stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// feed claims pending requests while the pipe has room for another batch.
func (b *Bridge) feed(ctx context.Context) {
	for ctx.Err() == nil {
		room := b.batchSize - b.pipe.Pending()
		if room <= 0 {
			return
		}
		reqs, err := b.store.Claim(ctx, room)
		if err != nil {
			if ctx.Err() == nil {
				b.logger.Error("claim failed", "error", err)
			}
			return
		}
		for _, req := range reqs {
			if err := b.pipe.Submit(req); err != nil {
				b.logger.Error("submit to dispatch loop failed", "request_id", req.ID, "error", err)
				b.fail(req)
				continue
			}
			log.WithRequest(req.ID, req.JobID).Debug("request handed to dispatch loop", "component", "store-bridge")
		}
		if len(reqs) < room {
			return
		}
	}
}

// collect records responses until the loop's outbound side is detached and
// empty. It does not stop on cancellation: the loop may still send in its
// last tick.
func (b *Bridge) collect() {
	for {
		resp, err := b.pipe.Receive(context.Background())
		if err != nil {
			if !errors.Is(err, execution.ErrDisconnected) {
				b.logger.Error("receive response failed", "error", err)
			}
			return
		}
		b.record(resp)
	}
}

// requeue returns claimed requests that never reached the loop to pending.
func (b *Bridge) requeue(reqs []execution.Request) {
	if len(reqs) == 0 {
		return
	}
	ids := make([]uuid.UUID, len(reqs))
	for i, req := range reqs {
		ids[i] = req.ID
	}
	ctx, cancel := context.WithTimeout(context.Background(), completeTimeout)
	defer cancel()
	n, err := b.store.Requeue(ctx, ids)
	if err != nil {
		b.logger.Error("requeue undispatched requests failed", "count", len(ids), "error", err)
		return
	}
	b.logger.Info("requeued undispatched requests", "count", n)
}

func (b *Bridge) record(resp execution.Response) {
	ctx, cancel := context.WithTimeout(context.Background(), completeTimeout)
	defer cancel()
	if err := b.store.Complete(ctx, resp); err != nil {
		b.logger.Error("record response failed", "request_id", resp.ID, "outcome", resp.Outcome, "error", err)
		return
	}
	b.logger.Debug("response recorded", "request_id", resp.ID, "outcome", resp.Outcome)
}

// fail completes a claimed request that never reached the loop.
func (b *Bridge) fail(req execution.Request) {
	b.record(execution.Failed(req.ID))
}
