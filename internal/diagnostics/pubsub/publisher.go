// Package pubsub publishes composite-request completion summaries to a
// Google Cloud Pub/Sub topic for cross-service audit trails.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/paleoapi/compositegw/internal/progress"
)

// Sink publishes one message per completed or timed-out composite
// request. It implements progress.Sink so it plugs directly into the
// diagnostics hub alongside the log and Prometheus sinks.
type Sink struct {
	topic *pubsub.Topic
}

// New wraps an already-configured Pub/Sub topic.
func New(topic *pubsub.Topic) *Sink {
	return &Sink{topic: topic}
}

// summary is the wire shape published for each completed request.
type summary struct {
	RequestID  string `json:"request_id"`
	Stage      string `json:"stage"`
	DurationMS int64  `json:"duration_ms"`
	Note       string `json:"note,omitempty"`
}

// Consume publishes one message per REQUEST_DONE/REQUEST_TIMEOUT event in
// the batch; other stages are ignored.
func (s *Sink) Consume(ctx context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		if evt.Stage != progress.StageRequestDone && evt.Stage != progress.StageRequestTimeout {
			continue
		}
		data, err := json.Marshal(summary{
			RequestID:  evt.RequestUUID().String(),
			Stage:      string(evt.Stage),
			DurationMS: evt.Dur.Milliseconds(),
			Note:       evt.Note,
		})
		if err != nil {
			return fmt.Errorf("marshal diagnostics summary: %w", err)
		}
		result := s.topic.Publish(ctx, &pubsub.Message{Data: data})
		if _, err := result.Get(ctx); err != nil {
			return fmt.Errorf("publish diagnostics summary: %w", err)
		}
	}
	return nil
}

// Close stops the underlying topic, flushing any buffered publishes.
func (s *Sink) Close(context.Context) error {
	s.topic.Stop()
	return nil
}
