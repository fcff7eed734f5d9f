package eventbus

import "sync"

// Event is a published event, as delivered to subscribers.
type Event struct {
	ID   uint   `json:"event_id"`
	Name string `json:"event"`
	Data any    `json:"data,omitempty"`
}

// SubscriberID holds the event channel of a subscription.
type SubscriberID struct {
	C <-chan Event

	active bool
	unsub  func()
	once   *sync.Once
}

// IsActive reports whether the subscription delivers events.
func (s SubscriberID) IsActive() bool {
	return s.active
}

// Unsubscribe removes the subscription. The channel is closed
// asynchronously once the subscription is removed.
func (s SubscriberID) Unsubscribe() {
	if !s.active || s.unsub == nil {
		return
	}

	if s.once == nil {
		s.unsub()
		return
	}

	s.once.Do(s.unsub)
}
