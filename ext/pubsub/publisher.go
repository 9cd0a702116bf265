// Package pubsub is the transport adapter. Delivery semantics are
// at-least-once; the pipeline's idempotency guard absorbs the duplicates.
package pubsub

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/odpf/salt/log"

	"github.com/odpf/tablevault/internal/errors"
)

const entityTransport = "transport"

// PublishFailure describes one message that could not be published.
type PublishFailure struct {
	Index int
	Err   error
}

// PublishResult reports per-message outcomes of one publish batch.
type PublishResult struct {
	SuccessIDs []string
	Failures   []PublishFailure
}

type Publisher struct {
	l      log.Logger
	client *pubsub.Client
}

func NewPublisher(ctx context.Context, logger log.Logger, projectID string) (*Publisher, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, errors.InternalError(entityTransport, "failed to create pubsub client", err)
	}
	return &Publisher{
		l:      logger,
		client: client,
	}, nil
}

// Publish sends every payload to the topic and collects per-message
// outcomes. Messages of one fan-out are independent; one failure never
// aborts the rest.
func (p *Publisher) Publish(ctx context.Context, topicName string, payloads [][]byte) PublishResult {
	topic := p.client.Topic(topicName)
	// stage messages are individually meaningful, do not hold them back
	// to batch
	topic.PublishSettings.DelayThreshold = 0
	topic.PublishSettings.CountThreshold = 1
	topic.PublishSettings.NumGoroutines = 1
	defer topic.Stop()

	results := make([]*pubsub.PublishResult, 0, len(payloads))
	for _, payload := range payloads {
		results = append(results, topic.Publish(ctx, &pubsub.Message{Data: payload}))
	}

	var out PublishResult
	for i, result := range results {
		id, err := result.Get(ctx)
		if err != nil {
			p.l.Error(fmt.Sprintf("publishing message %d to %s failed: %s", i, topicName, err.Error()))
			out.Failures = append(out.Failures, PublishFailure{Index: i, Err: err})
			continue
		}
		out.SuccessIDs = append(out.SuccessIDs, id)
	}
	return out
}

func (p *Publisher) Close() error {
	return p.client.Close()
}
