package events

import (
	"github.com/vadiminshakov/walletsync/internal/domain"
)

// AttemptFeed streams connection attempts to UI consumers (toasts).
// Attempts are ephemeral and never stored.
type AttemptFeed struct {
	*Broadcaster[domain.ConnectionAttempt]
}

// NewAttemptFeed creates an attempt feed with the given per-subscriber buffer.
func NewAttemptFeed(buffer int) *AttemptFeed {
	return &AttemptFeed{Broadcaster: NewBroadcaster[domain.ConnectionAttempt](buffer)}
}

// ObserveAttempt publishes the attempt to every subscriber.
func (f *AttemptFeed) ObserveAttempt(a domain.ConnectionAttempt) {
	f.Publish(a)
}
