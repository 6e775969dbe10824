// Package notify provides in-process pub/sub of conversation events.
// Delivery is best-effort and non-blocking: a slow subscriber drops its
// oldest queued events rather than stalling the emitter.
package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/strandlabs/loom/pkg/models"
)

// DefaultBuffer is the per-subscriber queue size.
const DefaultBuffer = 64

// Subscriber is a bounded per-connection event queue. Events for one
// session arrive in emission order.
type Subscriber struct {
	sessionID string
	ch        chan *models.Event

	mu     sync.Mutex
	closed bool
}

// Events returns the receive side of the subscriber queue. The channel
// closes when the subscriber is closed.
func (s *Subscriber) Events() <-chan *models.Event {
	return s.ch
}

// SessionID returns the session this subscriber follows; empty means
// all sessions.
func (s *Subscriber) SessionID() string {
	return s.sessionID
}

// Close shuts the subscriber down. Safe to call more than once; events
// emitted afterwards are silently dropped.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// send delivers non-blockingly, dropping the oldest queued event when
// the buffer is full. Reports false when the subscriber is closed.
func (s *Subscriber) send(event *models.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	for {
		select {
		case s.ch <- event:
			return true
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// Notifier owns the subscriber set and fans events out to matching
// subscribers.
//
// Thread Safety:
// Notifier is safe for concurrent subscribe/unsubscribe/emit.
type Notifier struct {
	mu     sync.RWMutex
	subs   map[*Subscriber]struct{}
	logger *slog.Logger
}

// New creates a notifier. logger may be nil.
func New(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		subs:   make(map[*Subscriber]struct{}),
		logger: logger,
	}
}

// Subscribe registers a sink for one session, or for all sessions when
// sessionID is empty. buffer <= 0 uses DefaultBuffer.
func (n *Notifier) Subscribe(sessionID string, buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	sub := &Subscriber{
		sessionID: sessionID,
		ch:        make(chan *models.Event, buffer),
	}
	n.mu.Lock()
	n.subs[sub] = struct{}{}
	n.mu.Unlock()
	return sub
}

// Unsubscribe removes and closes the subscriber.
func (n *Notifier) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	n.mu.Lock()
	delete(n.subs, sub)
	n.mu.Unlock()
	sub.Close()
}

// Emit delivers the event to every subscriber whose session matches the
// event's session id; subscribers with no session filter receive
// everything. Emit never blocks; closed sinks are pruned.
func (n *Notifier) Emit(event *models.Event) {
	if event == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	n.mu.RLock()
	var dead []*Subscriber
	for sub := range n.subs {
		if sub.sessionID != "" && event.SessionID != "" && sub.sessionID != event.SessionID {
			continue
		}
		if !sub.send(event) {
			dead = append(dead, sub)
		}
	}
	n.mu.RUnlock()

	if len(dead) > 0 {
		n.mu.Lock()
		for _, sub := range dead {
			delete(n.subs, sub)
		}
		n.mu.Unlock()
		n.logger.Debug("pruned closed subscribers", "count", len(dead))
	}
}

// SubscriberCount returns the current number of registered subscribers.
func (n *Notifier) SubscriberCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}
