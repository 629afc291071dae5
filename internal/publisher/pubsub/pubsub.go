// Package pubsub publishes context-ready events to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	gpubsub "cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/tropicallease/adcontext/internal/ads"
)

// Publisher sends ads.ContextReadyEvent messages to one topic.
type Publisher struct {
	client *gpubsub.Client
	topic  *gpubsub.Topic
	logger *zap.Logger
}

// New connects to Pub/Sub and verifies the topic exists.
func New(ctx context.Context, projectID, topicName string, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := gpubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	topic := client.Topic(topicName)
	exists, err := topic.Exists(ctx)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("check topic %s: %w", topicName, err)
	}
	if !exists {
		_ = client.Close()
		return nil, fmt.Errorf("pubsub topic %s does not exist", topicName)
	}

	return &Publisher{client: client, topic: topic, logger: logger}, nil
}

// PublishContextReady sends the event as a JSON message. Delivery is
// fire-and-forget: the broker result is only logged, enrichment never
// blocks on it.
func (p *Publisher) PublishContextReady(ctx context.Context, event ads.ContextReadyEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	result := p.topic.Publish(ctx, &gpubsub.Message{
		Data:       data,
		Attributes: map[string]string{"url": event.URL},
	})
	go func() {
		id, err := result.Get(context.WithoutCancel(ctx))
		if err != nil {
			p.logger.Warn("pubsub publish failed",
				zap.String("url", event.URL),
				zap.Error(err),
			)
			return
		}
		p.logger.Debug("context-ready event published",
			zap.String("url", event.URL),
			zap.String("message_id", id),
		)
	}()
	return nil
}

// Close stops the topic's publish goroutines and closes the client.
func (p *Publisher) Close() error {
	p.topic.Stop()
	return p.client.Close()
}
