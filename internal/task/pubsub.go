package task

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// PubSubSink publishes task events as JSON messages to a Pub/Sub topic.
// Each message carries the task id, phase and state as attributes so
// subscribers can filter without decoding.
type PubSubSink struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubSink connects to topicID in project.
func NewPubSubSink(ctx context.Context, project, topicID string, opts ...option.ClientOption) (*PubSubSink, error) {
	client, err := pubsub.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}
	return &PubSubSink{client: client, topic: client.Topic(topicID)}, nil
}

// Publish implements Sink and waits for the server to acknowledge.
func (p *PubSubSink) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode task event: %w", err)
	}
	res := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"taskId": event.TaskID,
			"phase":  event.Phase,
			"state":  string(event.State),
		},
	})
	if _, err := res.Get(ctx); err != nil {
		return fmt.Errorf("failed to publish task event: %w", err)
	}
	return nil
}

// Close flushes pending messages and closes the client.
func (p *PubSubSink) Close() error {
	p.topic.Stop()
	return p.client.Close()
}
