// Package pubsub provides the generic event envelope used to fan out
// session and working-memory changes to UI sinks, and to demultiplex
// sub-agent events in the parent's adapter.
package pubsub

// EventType classifies a pubsub.Event.
type EventType int

const (
	// CreatedEvent marks a new item.
	CreatedEvent EventType = iota
	// UpdatedEvent marks a mutated item.
	UpdatedEvent
	// DeletedEvent marks a removed item.
	DeletedEvent
)

// Event wraps a typed payload with its event kind and, for sub-agent fan-in,
// the originating session id so a parent UI can demultiplex concurrent
// sub-agents (spec §5: "tagged so consumers can demultiplex").
type Event[T any] struct {
	Type      EventType
	SessionID string
	Payload   T
}

// NewCreatedEvent builds a CreatedEvent.
func NewCreatedEvent[T any](sessionID string, payload T) Event[T] {
	return Event[T]{Type: CreatedEvent, SessionID: sessionID, Payload: payload}
}

// NewUpdatedEvent builds an UpdatedEvent.
func NewUpdatedEvent[T any](sessionID string, payload T) Event[T] {
	return Event[T]{Type: UpdatedEvent, SessionID: sessionID, Payload: payload}
}

// NewDeletedEvent builds a DeletedEvent.
func NewDeletedEvent[T any](sessionID string, payload T) Event[T] {
	return Event[T]{Type: DeletedEvent, SessionID: sessionID, Payload: payload}
}

// Subscription is an active subscription to a Hub; Events delivers the
// stream and Unsubscribe tears it down.
type Subscription[T any] struct {
	events chan Event[T]
	hub    *Hub[T]
}

// Events returns the receive-only channel for this subscription.
func (s *Subscription[T]) Events() <-chan Event[T] {
	return s.events
}

// Unsubscribe removes this subscription from its hub and closes its channel.
func (s *Subscription[T]) Unsubscribe() {
	s.hub.rm <- s.events
}

// Hub is a minimal broadcast hub: one broadcaster, many subscribers, each
// with its own buffered channel so a slow UI never blocks the agent loop.
type Hub[T any] struct {
	pub  chan Event[T]
	add  chan chan Event[T]
	rm   chan chan Event[T]
	subs map[chan Event[T]]struct{}
}

// NewHub creates a Hub and starts its dispatch loop in a background
// goroutine; call Close to stop it.
func NewHub[T any]() *Hub[T] {
	h := &Hub[T]{
		pub:  make(chan Event[T], 64),
		add:  make(chan chan Event[T]),
		rm:   make(chan chan Event[T]),
		subs: make(map[chan Event[T]]struct{}),
	}
	go h.run()
	return h
}

func (h *Hub[T]) run() {
	for {
		select {
		case ch, ok := <-h.add:
			if !ok {
				return
			}
			h.subs[ch] = struct{}{}
		case ch := <-h.rm:
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
		case ev, ok := <-h.pub:
			if !ok {
				for ch := range h.subs {
					close(ch)
				}
				return
			}
			for ch := range h.subs {
				select {
				case ch <- ev:
				default: // best-effort: a stalled subscriber drops events, never blocks the loop
				}
			}
		}
	}
}

// Subscribe registers a new buffered channel that receives every future
// event published to the hub.
func (h *Hub[T]) Subscribe() *Subscription[T] {
	ch := make(chan Event[T], 32)
	h.add <- ch
	return &Subscription[T]{events: ch, hub: h}
}

// Publish broadcasts an event to all current subscribers.
func (h *Hub[T]) Publish(ev Event[T]) {
	h.pub <- ev
}

// Close stops the hub's dispatch loop and closes all subscriber channels.
func (h *Hub[T]) Close() {
	close(h.pub)
}
