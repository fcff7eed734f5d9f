package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type topic uint

func (t topic) Value() uint    { return uint(t) }
func (t topic) String() string { return map[topic]string{1: "first", 2: "second", 3: "third"}[t] }

func receive(t *testing.T, sub SubscriberID) Event {
	t.Helper()

	select {
	case ev, ok := <-sub.C:
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(time.Second):
		require.FailNow(t, "timed out waiting for event")
	}

	return Event{}
}

func TestBusPublishOrder(t *testing.T) {
	bus := New(8)

	sub := bus.Subscribe(topic(1), topic(2))
	require.True(t, sub.IsActive())
	defer sub.Unsubscribe()

	bus.Publish(topic(1), "a")
	bus.Publish(topic(3), "ignored")
	bus.Publish(topic(2), "b")

	ev := receive(t, sub)
	assert.Equal(t, Event{ID: 1, Name: "first", Data: "a"}, ev)

	ev = receive(t, sub)
	assert.Equal(t, Event{ID: 2, Name: "second", Data: "b"}, ev)
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := New(1)

	sub := bus.Subscribe(topic(1))
	sub.Unsubscribe()
	sub.Unsubscribe()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-sub.C:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestBusDisabled(t *testing.T) {
	bus := New(1)
	bus.DisableEvents()

	sub := bus.Subscribe(topic(1))
	assert.False(t, sub.IsActive())

	bus.Publish(topic(1), "dropped")
	_, ok := <-sub.C
	assert.False(t, ok)
}

type recorder struct {
	names []string
}

func (r *recorder) Publish(_ uint, name string, _ any) {
	r.names = append(r.names, name)
}

func TestBusCustomPublisher(t *testing.T) {
	bus := New(1)
	rec := &recorder{}
	bus.RegisterEventHandlers(rec, nil)

	bus.Publish(topic(2), nil)
	bus.Publish(nil, nil)
	bus.Publish(topic(1), nil)

	assert.Equal(t, []string{"second", "first"}, rec.names)
	assert.False(t, bus.Subscribe(topic(1)).IsActive())
}
