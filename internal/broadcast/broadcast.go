// Package broadcast fans attendance events out to observers watching a
// class's live view. Delivery is best-effort, at-most-once: there is no
// persistence and no replay, so a late subscriber never sees earlier
// events.
package broadcast

import (
	"context"
	"time"
)

// Event is the payload delivered on a class channel.
type Event struct {
	StudentID   string    `json:"studentId"`
	StudentName string    `json:"studentName"`
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
}

// Broadcaster is the abstraction over different fan-out backends.
type Broadcaster interface {
	Publish(ctx context.Context, classID string, ev Event) error
	Subscribe(ctx context.Context, classID string) (*Subscription, error)
}

// Subscription is one observer's membership on a class channel. Close is
// idempotent; after Close the event channel is closed.
type Subscription struct {
	C      <-chan Event
	cancel func()
}

// Close leaves the channel and releases resources.
func (s *Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Channel returns the wire channel name for a class.
func Channel(classID string) string {
	return "class:" + classID
}
