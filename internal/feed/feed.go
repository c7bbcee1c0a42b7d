// Package feed fan-outs activity events to live subscribers (the SSE feed on
// the dashboards). Delivery is best-effort: slow subscribers drop events
// rather than block publishers.
package feed

import (
	"context"
	"sync"
	"time"
)

// Event is one activity item pushed to the live feed.
type Event struct {
	Event         string            `json:"event"`
	Recipient     string            `json:"recipient,omitempty"`
	InstitutionID string            `json:"institution_id,omitempty"`
	Message       string            `json:"message,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}

// Stream fan-outs events to all active subscribers.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber channel. The returned cancel function must
// be called when the subscriber goes away.
func (s *Stream) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	ch := make(chan Event, 16)
	s.subs[id] = ch
	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber without blocking.
func (s *Stream) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			// subscriber is lagging; drop rather than stall the workflow
		}
	}
}

// Run keeps the stream alive until the context is cancelled. Present so the
// stream can be supervised alongside the HTTP server.
func (s *Stream) Run(ctx context.Context) {
	<-ctx.Done()
}

// Subscribers reports the current subscriber count.
func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
