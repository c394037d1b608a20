package room

import (
	"sync"

	"rracer/server/internal/v1/protocol"
)

// subscriberBuffer is the per-subscriber bounded queue size. A subscriber
// that falls this far behind the broadcast stream is dropped rather than
// awaited, so one slow socket can never stall the room controller.
const subscriberBuffer = 64

// Subscriber is one consumer of a room's broadcast bus, owned by a single
// WebSocket connection. The room publishes into Out with a non-blocking send;
// on overflow the room closes Dropped and forgets the subscriber, and the
// connection's writer is expected to deliver Error{Lagging} and close the
// socket.
type Subscriber struct {
	ID string

	out     chan protocol.ServerMsg
	dropped chan struct{}
	once    sync.Once
}

// NewSubscriber returns a Subscriber with the standard bounded buffer.
func NewSubscriber(id string) *Subscriber {
	return &Subscriber{
		ID:      id,
		out:     make(chan protocol.ServerMsg, subscriberBuffer),
		dropped: make(chan struct{}),
	}
}

// Out is the message stream for the connection's write pump.
func (s *Subscriber) Out() <-chan protocol.ServerMsg {
	return s.out
}

// Dropped is closed when the room has dropped this subscriber for lagging.
func (s *Subscriber) Dropped() <-chan struct{} {
	return s.dropped
}

// TrySend enqueues a message without blocking. Returns false when the buffer
// is full.
func (s *Subscriber) TrySend(msg protocol.ServerMsg) bool {
	select {
	case s.out <- msg:
		return true
	default:
		return false
	}
}

func (s *Subscriber) drop() {
	s.once.Do(func() { close(s.dropped) })
}
