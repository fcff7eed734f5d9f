package eventbus

import (
	"sync"

	"github.com/cskr/pubsub/v2"
)

// EventID describes an event topic.
type EventID interface {
	Value() uint
	String() string
}

// nilEventHandler represents a disabled event handler.
type nilEventHandler struct{}

// defaultEventHandler represents an internal event handler.
type defaultEventHandler struct {
	*pubsub.PubSub[uint, Event]
}

// EventPublisher represents an interface that provides an event publisher.
type EventPublisher interface {
	// Publish publishes an event to the event stream.
	Publish(id uint, name string, data any)
}

// EventSubscriber represents an interface that provides an event subscriber.
type EventSubscriber interface {
	// Subscribe subscribes to one or more events from the event stream.
	// Events of all the given topics are delivered on the same channel, in
	// publishing order.
	Subscribe(ids ...uint) SubscriberID
}

// EventHandler represents an interface that provides an event publisher and subscriber.
type EventHandler interface {
	EventPublisher
	EventSubscriber
}

// Bus represents the event emitter of a single controller.
type Bus struct {
	p EventPublisher
	s EventSubscriber

	mu sync.RWMutex
}

// New returns a bus backed by the default event handler.
func New(capacity int) *Bus {
	b := &Bus{}
	b.RegisterEventHandler(DefaultHandler(capacity))

	return b
}

// RegisterEventHandler registers the event handler interface.
func (b *Bus) RegisterEventHandler(eh EventHandler) {
	if eh == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.p = eh
	b.s = eh
}

// RegisterEventHandlers registers the event publisher and subscriber interfaces separately.
// To disable an EventPublisher or EventSubscriber, pass 'nil' as the parameter.
// For example: `RegisterEventHandlers(&eventPublisher{}, nil)` can be called to only register
// an event publisher.
func (b *Bus) RegisterEventHandlers(p EventPublisher, s EventSubscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if p == nil {
		p = &nilEventHandler{}
	}
	if s == nil {
		s = &nilEventHandler{}
	}

	b.p = p
	b.s = s
}

// DisableEvents unregisters the event handler.
func (b *Bus) DisableEvents() {
	b.RegisterEventHandler(&nilEventHandler{})
}

// Publish calls the registered publisher handler.
func (b *Bus) Publish(id EventID, data any) {
	if id == nil {
		return
	}

	b.mu.RLock()
	p := b.p
	b.mu.RUnlock()

	if p == nil {
		return
	}

	p.Publish(id.Value(), id.String(), data)
}

// Subscribe calls the registered subscriber handler.
func (b *Bus) Subscribe(ids ...EventID) SubscriberID {
	topics := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id != nil {
			topics = append(topics, id.Value())
		}
	}

	b.mu.RLock()
	s := b.s
	b.mu.RUnlock()

	if len(topics) == 0 || s == nil {
		return (&nilEventHandler{}).Subscribe()
	}

	return s.Subscribe(topics...)
}

// DefaultHandler returns the default event handler. Each subscriber channel
// buffers up to capacity events; events published to a full channel are dropped.
func DefaultHandler(capacity int) *defaultEventHandler {
	if capacity <= 0 {
		capacity = 10
	}

	return &defaultEventHandler{PubSub: pubsub.New[uint, Event](capacity)}
}

// NilHandler returns a disabled event handler.
func NilHandler() *nilEventHandler {
	return &nilEventHandler{}
}

// Publish publishes an event to the event stream.
func (d *defaultEventHandler) Publish(id uint, name string, data any) {
	d.TryPub(Event{ID: id, Name: name, Data: data}, id)
}

// Subscribe subscribes to an event from the event stream.
func (d *defaultEventHandler) Subscribe(ids ...uint) SubscriberID {
	ch := d.Sub(ids...)
	return SubscriberID{
		C:      ch,
		active: true,
		once:   &sync.Once{},
		unsub: func() {
			go d.Unsub(ch, ids...)
		},
	}
}

// Publish does not do anything.
func (n *nilEventHandler) Publish(uint, string, any) {
}

// Subscribe does not do anything.
func (n *nilEventHandler) Subscribe(...uint) SubscriberID {
	ch := make(chan Event)
	close(ch)
	return SubscriberID{C: ch}
}
