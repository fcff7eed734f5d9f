// Package eventloop serializes the work of a controller onto a single goroutine.
package eventloop

import (
	"context"
	"sync"
)

// Executor runs posted functions one at a time, in posting order.
type Executor interface {
	Post(fn func())
}

// Loop is an Executor backed by an unbounded queue that is drained by Run.
// Post never blocks, so callbacks from platform goroutines cannot stall
// behind a busy loop.
type Loop struct {
	queue []func()
	wake  chan struct{}

	closed bool
	mu     sync.Mutex
}

// New returns a new, idle loop.
func New() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Post queues fn for execution. Functions posted after the loop
// has stopped are discarded.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run executes posted functions until the context is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	defer func() {
		l.mu.Lock()
		l.closed = true
		l.queue = nil
		l.mu.Unlock()
	}()

	for {
		for _, fn := range l.drain() {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			fn()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-l.wake:
		}
	}
}

// Pending returns the number of queued functions.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.queue)
}

func (l *Loop) drain() []func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	queue := l.queue
	l.queue = nil

	return queue
}

// Inline is an Executor that runs functions on the calling goroutine.
// Functions posted while another function runs are queued and executed
// after it returns, which preserves the ordering guarantee of Loop.
type Inline struct {
	queue   []func()
	running bool

	mu sync.Mutex
}

// Post runs fn, or queues it if called from within a running function.
func (i *Inline) Post(fn func()) {
	if fn == nil {
		return
	}

	i.mu.Lock()
	i.queue = append(i.queue, fn)
	if i.running {
		i.mu.Unlock()
		return
	}
	i.running = true
	i.mu.Unlock()

	for {
		i.mu.Lock()
		if len(i.queue) == 0 {
			i.running = false
			i.mu.Unlock()
			return
		}
		next := i.queue[0]
		i.queue = i.queue[1:]
		i.mu.Unlock()

		next()
	}
}
