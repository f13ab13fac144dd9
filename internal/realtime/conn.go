package realtime

import (
	"sync"

	"github.com/google/uuid"
)

// sendBufferSize bounds the per-connection outbound queue. A peer that
// cannot drain this many events starts losing them.
const sendBufferSize = 64

// Conn is one authenticated client connection as seen by the hub. The
// transport write loop drains Outbound; everything else goes through TrySend.
type Conn struct {
	ID     string
	UserID string

	send      chan Event
	closeOnce sync.Once
	done      chan struct{}
}

// NewConn creates a connection handle for an authenticated user.
func NewConn(userID string) *Conn {
	return &Conn{
		ID:     uuid.NewString(),
		UserID: userID,
		send:   make(chan Event, sendBufferSize),
		done:   make(chan struct{}),
	}
}

// TrySend queues the event for delivery without blocking. It returns false
// when the event is dropped: the connection is closing or its buffer is
// full. Dropped events are never retried; the client reconciles by
// re-fetching state after reconnect.
func (c *Conn) TrySend(ev Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- ev:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

// Outbound exposes the queued events for the transport write loop.
func (c *Conn) Outbound() <-chan Event {
	return c.send
}

// Done is closed when the connection is shut down.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close marks the connection as closing. Safe to call more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
