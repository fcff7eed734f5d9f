package eventloop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopOrder(t *testing.T) {
	loop := New()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	var (
		got []int
		mu  sync.Mutex
		wg  sync.WaitGroup
	)

	wg.Add(100)
	for i := range 100 {
		loop.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			wg.Done()
		})
	}
	wg.Wait()

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	for i, v := range got {
		assert.Equal(t, i, v)
	}
	assert.Len(t, got, 100)
}

func TestLoopPostFromWithin(t *testing.T) {
	loop := New()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var order []string
	finished := make(chan struct{})

	loop.Post(func() {
		order = append(order, "outer")
		loop.Post(func() {
			order = append(order, "inner")
			close(finished)
		})
		order = append(order, "outer-end")
	})

	go loop.Run(ctx)

	select {
	case <-finished:
	case <-ctx.Done():
		require.FailNow(t, "loop did not run the posted function")
	}

	assert.Equal(t, []string{"outer", "outer-end", "inner"}, order)
}

func TestLoopDiscardsAfterStop(t *testing.T) {
	loop := New()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, loop.Run(ctx))

	loop.Post(func() {})
	assert.Zero(t, loop.Pending())
}

func TestInlineNested(t *testing.T) {
	var (
		inline Inline
		order  []string
	)

	inline.Post(func() {
		order = append(order, "a")
		inline.Post(func() { order = append(order, "c") })
		order = append(order, "b")
	})
	inline.Post(func() { order = append(order, "d") })

	assert.Equal(t, []string{"a", "b", "c", "d"}, order)
}
