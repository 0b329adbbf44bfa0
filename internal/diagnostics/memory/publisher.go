// Package memory provides an in-memory diagnostics sink for tests and
// development, standing in for internal/diagnostics/pubsub.
package memory

import (
	"context"
	"sync"

	"github.com/paleoapi/compositegw/internal/progress"
)

// Sink records every completed or timed-out request event for test
// assertions, mirroring the filtering a Pub/Sub-backed sink applies.
type Sink struct {
	mu     sync.RWMutex
	events []progress.Event
}

// New returns an empty Sink.
func New() *Sink {
	return &Sink{}
}

// Consume records REQUEST_DONE/REQUEST_TIMEOUT events from the batch.
func (s *Sink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		if evt.Stage == progress.StageRequestDone || evt.Stage == progress.StageRequestTimeout {
			s.events = append(s.events, evt)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *Sink) Close(context.Context) error {
	return nil
}

// Events returns a copy of every recorded event.
func (s *Sink) Events() []progress.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]progress.Event, len(s.events))
	copy(out, s.events)
	return out
}
