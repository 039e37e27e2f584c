// Package redislink connects the dispatch loop to Redis Streams: requests are
// consumed from one stream through a consumer group and responses are appended
// to another.
package redislink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chachacholly/kairoi/internal/execution"
	"github.com/chachacholly/kairoi/internal/log"
)

const (
	requestField  = "request"
	responseField = "response"

	readBlock   = 2 * time.Second
	readCount   = 64
	readBackoff = time.Second
)

// Config names the streams and consumer group.
type Config struct {
	Addr            string
	Password        string
	DB              int
	RequestsStream  string
	ResponsesStream string
	Group           string
	Consumer        string
}

// NewClient creates a client and checks that the server answers.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

// Bridge is the host side of a Pipe backed by Redis Streams.
type Bridge struct {
	client   redis.UniversalClient
	pipe     *execution.Pipe
	cfg      Config
	consumer string
	logger   *slog.Logger
}

func NewBridge(client redis.UniversalClient, pipe *execution.Pipe, cfg Config) *Bridge {
	consumer := cfg.Consumer
	if consumer == "" {
		host, _ := os.Hostname()
		if host == "" {
			host = "kairoi"
		}
		consumer = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	return &Bridge{
		client:   client,
		pipe:     pipe,
		cfg:      cfg,
		consumer: consumer,
		logger:   log.WithComponent("redislink").With("consumer", consumer),
	}
}

// EnsureGroup creates the consumer group (and the stream) if missing.
func (b *Bridge) EnsureGroup(ctx context.Context) error {
	err := b.client.XGroupCreateMkStream(ctx, b.cfg.RequestsStream, b.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group %q: %w", b.cfg.Group, err)
	}
	return nil
}

// Run consumes requests until ctx is cancelled, then closes the pipe's
// inbound side. It returns once the loop's outbound side has been detached
// and every response sent before that has been published. Requests the loop
// never received are appended to the requests stream again.
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.EnsureGroup(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.forward()
	}()

	b.logger.Info("redis link started",
		"requests_stream", b.cfg.RequestsStream,
		"responses_stream", b.cfg.ResponsesStream,
		"group", b.cfg.Group,
	)

	// Entries delivered to this consumer but never acknowledged come first.
	for ctx.Err() == nil && b.consume(ctx, "0") > 0 {
	}
	for ctx.Err() == nil {
		b.consume(ctx, ">")
	}

	b.pipe.CloseRequests()
	wg.Wait()
	b.republish(b.pipe.Unclaimed())
	b.logger.Info("redis link stopped")
	return nil
}

// consume performs one XREADGROUP starting at id, submits what it gets and
// returns the number of entries read.
func (b *Bridge) consume(ctx context.Context, id string) int {
	streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    b.cfg.Group,
		Consumer: b.consumer,
		Streams:  []string{b.cfg.RequestsStream, id},
		Count:    readCount,
		Block:    readBlock,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || ctx.Err() != nil {
			return 0
		}
		b.logger.Error("redis read failed", "error", err)
		select {
		case <-ctx.Done():
		case <-time.After(readBackoff):
		}
		return 0
	}

	n := 0
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			b.handle(ctx, msg)
			n++
		}
	}
	return n
}

func (b *Bridge) handle(ctx context.Context, msg redis.XMessage) {
	req, err := decodeMessage(msg)
	if err != nil {
		b.logger.Error("dropping malformed request", "msg_id", msg.ID, "error", err)
		b.ack(ctx, msg.ID)
		return
	}
	if err := b.pipe.Submit(req); err != nil {
		// Left unacknowledged; redelivered to this consumer on restart.
		b.logger.Error("submit to dispatch loop failed", "msg_id", msg.ID, "request_id", req.ID, "error", err)
		return
	}
	b.ack(ctx, msg.ID)
	log.WithRequest(req.ID, req.JobID).Debug("request handed to dispatch loop", "component", "redislink", "msg_id", msg.ID)
}

func (b *Bridge) ack(ctx context.Context, msgID string) {
	actx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(context.Background(), time.Second)
		defer cancel()
	}
	if err := b.client.XAck(actx, b.cfg.RequestsStream, b.cfg.Group, msgID).Err(); err != nil {
		b.logger.Error("ack failed", "msg_id", msgID, "error", err)
	}
}

// forward appends every response sent by the loop to the responses stream
// until the outbound side is detached and empty.
func (b *Bridge) forward() {
	for {
		resp, err := b.pipe.Receive(context.Background())
		if err != nil {
			if !errors.Is(err, execution.ErrDisconnected) {
				b.logger.Error("receive response failed", "error", err)
			}
			return
		}
		b.publish(resp)
	}
}

// republish appends requests that were acknowledged but never reached the
// loop back onto the requests stream.
func (b *Bridge) republish(reqs []execution.Request) {
	if len(reqs) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pub := NewPublisher(b.client, b.cfg)
	for _, req := range reqs {
		id, err := pub.Publish(ctx, req)
		if err != nil {
			b.logger.Error("requeue undispatched request failed", "request_id", req.ID, "job_id", req.JobID, "error", err)
			continue
		}
		b.logger.Debug("requeued undispatched request", "request_id", req.ID, "msg_id", id)
	}
	b.logger.Info("requeued undispatched requests", "count", len(reqs))
}

func (b *Bridge) publish(resp execution.Response) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	values, err := encodeResponse(resp)
	if err == nil {
		err = b.client.XAdd(ctx, &redis.XAddArgs{
			Stream: b.cfg.ResponsesStream,
			Values: values,
		}).Err()
	}
	if err != nil {
		b.logger.Error("publish response failed", "request_id", resp.ID, "outcome", resp.Outcome, "error", err)
		return
	}
	b.logger.Debug("response published", "request_id", resp.ID, "outcome", resp.Outcome)
}

func decodeMessage(msg redis.XMessage) (execution.Request, error) {
	raw, ok := msg.Values[requestField].(string)
	if !ok {
		return execution.Request{}, fmt.Errorf("message has no %q field", requestField)
	}
	return execution.DecodeRequest(strings.NewReader(raw))
}

func encodeResponse(resp execution.Response) (map[string]any, error) {
	var buf bytes.Buffer
	if err := execution.EncodeResponse(&buf, resp); err != nil {
		return nil, err
	}
	return map[string]any{responseField: bytes.TrimSpace(buf.Bytes())}, nil
}
