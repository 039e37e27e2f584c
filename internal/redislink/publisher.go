package redislink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chachacholly/kairoi/internal/execution"
)

// Publisher is the producer side of the streams: it appends requests and
// reads back responses.
type Publisher struct {
	client          redis.UniversalClient
	requestsStream  string
	responsesStream string
}

func NewPublisher(client redis.UniversalClient, cfg Config) *Publisher {
	return &Publisher{
		client:          client,
		requestsStream:  cfg.RequestsStream,
		responsesStream: cfg.ResponsesStream,
	}
}

// Publish appends req to the requests stream and returns the entry ID.
func (p *Publisher) Publish(ctx context.Context, req execution.Request) (string, error) {
	var buf bytes.Buffer
	if err := execution.EncodeRequest(&buf, req); err != nil {
		return "", err
	}
	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.requestsStream,
		Values: map[string]any{requestField: bytes.TrimSpace(buf.Bytes())},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("redis publish failed: %w", err)
	}
	return id, nil
}

// Responses reads responses appended after entry ID after, waiting up to
// block for the first one (zero blocks indefinitely, negative not at all).
// It returns the ID to continue from.
func (p *Publisher) Responses(ctx context.Context, after string, block time.Duration) ([]execution.Response, string, error) {
	if after == "" {
		after = "0"
	}
	streams, err := p.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{p.responsesStream, after},
		Count:   readCount,
		Block:   block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, after, nil
	}
	if err != nil {
		return nil, after, fmt.Errorf("redis read failed: %w", err)
	}

	var out []execution.Response
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			after = msg.ID
			raw, ok := msg.Values[responseField].(string)
			if !ok {
				continue
			}
			resp, err := execution.DecodeResponse(strings.NewReader(raw))
			if err != nil {
				return out, after, fmt.Errorf("entry %s: %w", msg.ID, err)
			}
			out = append(out, resp)
		}
	}
	return out, after, nil
}
