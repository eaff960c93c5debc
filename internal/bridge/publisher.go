// --- File: internal/bridge/publisher.go ---
package bridge

import (
	"context"

	"cloud.google.com/go/pubsub/v2"
)

// Publisher is the part of a Pub/Sub topic publisher the bridge needs.
type Publisher interface {
	Publish(ctx context.Context, data []byte, attributes map[string]string) (string, error)
	Stop()
}

// TopicPublisher publishes command envelopes to a Pub/Sub topic.
type TopicPublisher struct {
	publisher *pubsub.Publisher
}

// NewTopicPublisher wraps the client's publisher for topicID.
func NewTopicPublisher(client *pubsub.Client, topicID string) *TopicPublisher {
	return &TopicPublisher{publisher: client.Publisher(topicID)}
}

// Publish blocks until the server has acknowledged the message.
func (p *TopicPublisher) Publish(ctx context.Context, data []byte, attributes map[string]string) (string, error) {
	result := p.publisher.Publish(ctx, &pubsub.Message{Data: data, Attributes: attributes})
	return result.Get(ctx)
}

// Stop flushes pending messages.
func (p *TopicPublisher) Stop() {
	p.publisher.Stop()
}
