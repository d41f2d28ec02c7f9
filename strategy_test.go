package courier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestStrategyString(t *testing.T) {
	tests := []struct {
		strategy fmt.Stringer
		want     string
	}{
		{SubscribeSequential, "sequential"},
		{SubscribeParallel, "parallel"},
		{SubscribeSwitch, "switch"},
		{SubscribeDrop, "drop"},
		{SubscribeStrategy(99), "unknown"},
		{PublishParallel, "parallel"},
		{PublishSequential, "sequential"},
		{PublishStrategy(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.strategy.String())
		})
	}
}

func TestDispatcherSequential(t *testing.T) {
	var log recorder[int]
	d := newDispatcher(SubscribeSequential, func(_ context.Context, msg int) error {
		if msg%3 == 0 {
			time.Sleep(time.Millisecond)
		}
		log.add(msg)
		return nil
	})

	var wg sync.WaitGroup
	want := make([]int, 100)
	for i := range 100 {
		want[i] = i
		wg.Add(1)
		d.dispatch(context.Background(), i, func(err error) {
			assert.NoError(t, err)
			wg.Done()
		})
	}
	wg.Wait()

	assert.Equal(t, want, log.snapshot())
}

func TestDispatcherParallel(t *testing.T) {
	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(2)

	d := newDispatcher(SubscribeParallel, func(context.Context, int) error {
		started.Done()
		<-release
		return nil
	})

	var finished sync.WaitGroup
	finished.Add(2)
	for i := range 2 {
		d.dispatch(context.Background(), i, func(error) { finished.Done() })
	}

	// both invocations must be running at the same time
	started.Wait()
	close(release)
	finished.Wait()
}

func TestDispatcherDrop(t *testing.T) {
	b := New[int]()
	var log recorder[int]
	started := make(chan struct{})
	release := make(chan struct{})
	finished := make(chan struct{})

	_, err := SubscribeAwaitFunc(b.Subscriber(), func(_ context.Context, msg int) error {
		if msg == 1 {
			close(started)
			<-release
		}
		log.add(msg)
		if msg == 1 {
			close(finished)
		}
		return nil
	}, SubscribeDrop)
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), 1))
	waitFor(t, started, "first invocation")

	require.NoError(t, b.Publish(context.Background(), 2))
	close(release)
	waitFor(t, finished, "first invocation to finish")

	assert.Equal(t, []int{1}, log.snapshot())

	// idle again, so the next message is accepted
	require.Eventually(t, func() bool {
		return b.PublishAsync(context.Background(), 3, PublishParallel) == nil && len(log.snapshot()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int{1, 3}, log.snapshot())
}

func TestDispatcherSwitch(t *testing.T) {
	f := newFailures()
	b := New[int](WithFailureSink(f.sink))

	cancelled := make(chan int, 3)
	completed := make(chan int, 3)
	release := make(chan struct{})

	_, err := SubscribeAwaitFunc(b.Subscriber(), func(ctx context.Context, msg int) error {
		select {
		case <-ctx.Done():
			cancelled <- msg
			return ctx.Err()
		case <-release:
			completed <- msg
			return nil
		}
	}, SubscribeSwitch)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		require.NoError(t, b.Publish(context.Background(), i))
	}

	got := map[int]bool{}
	for range 2 {
		select {
		case msg := <-cancelled:
			got[msg] = true
		case <-time.After(2 * time.Second):
			t.Fatal("superseded invocation was not cancelled")
		}
	}
	assert.Equal(t, map[int]bool{1: true, 2: true}, got)

	close(release)
	select {
	case msg := <-completed:
		assert.Equal(t, 3, msg)
	case <-time.After(2 * time.Second):
		t.Fatal("latest invocation did not complete")
	}

	assert.Empty(t, completed)
	assert.Empty(t, f.all())
}

func TestDispatcherSwitchUnsubscribeCancels(t *testing.T) {
	b := New[int]()
	started := make(chan struct{})
	stopped := make(chan struct{})

	sub, err := SubscribeAwaitFunc(b.Subscriber(), func(ctx context.Context, _ int) error {
		close(started)
		<-ctx.Done()
		close(stopped)
		return ctx.Err()
	}, SubscribeSwitch)
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), 1))
	waitFor(t, started, "invocation")

	require.NoError(t, sub.Unsubscribe())
	waitFor(t, stopped, "cancellation")
}

func TestDispatcherSwitchCallerCancellation(t *testing.T) {
	d := newDispatcher(SubscribeSwitch, func(ctx context.Context, _ int) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	d.dispatch(ctx, 1, func(err error) { result <- err })
	cancel()

	select {
	case err := <-result:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("invocation did not observe caller cancellation")
	}
}

func TestDispatcherSwitchHandlerCancellation(t *testing.T) {
	f := newFailures()
	b := New[int](WithFailureSink(f.sink))

	_, err := SubscribeAwaitFunc(b.Subscriber(), func(context.Context, int) error {
		return fmt.Errorf("lookup: %w", context.Canceled)
	}, SubscribeSwitch)
	require.NoError(t, err)

	t.Run("publish async reports it", func(t *testing.T) {
		assert.ErrorIs(t, b.PublishAsync(context.Background(), 1, PublishParallel), context.Canceled)
	})

	t.Run("publish routes it to the failure sink", func(t *testing.T) {
		require.NoError(t, b.Publish(context.Background(), 2))
		select {
		case <-f.seen:
		case <-time.After(2 * time.Second):
			t.Fatal("failure sink was not called")
		}
		require.Len(t, f.all(), 1)
		assert.ErrorIs(t, f.all()[0], context.Canceled)
	})
}

func TestDispatcherClose(t *testing.T) {
	t.Run("queued sequential invocations are skipped", func(t *testing.T) {
		var log recorder[int]
		started := make(chan struct{})
		release := make(chan struct{})

		d := newDispatcher(SubscribeSequential, func(_ context.Context, msg int) error {
			if msg == 1 {
				close(started)
				<-release
			}
			log.add(msg)
			return nil
		})

		results := make(chan error, 3)
		for i := 1; i <= 3; i++ {
			d.dispatch(context.Background(), i, func(err error) { results <- err })
		}
		waitFor(t, started, "first invocation")

		d.close()
		close(release)

		for range 3 {
			select {
			case err := <-results:
				assert.NoError(t, err)
			case <-time.After(2 * time.Second):
				t.Fatal("invocation was never settled")
			}
		}
		assert.Equal(t, []int{1}, log.snapshot())
	})

	t.Run("dispatch after close does not run", func(t *testing.T) {
		for _, s := range []SubscribeStrategy{SubscribeSequential, SubscribeParallel, SubscribeSwitch, SubscribeDrop} {
			t.Run(s.String(), func(t *testing.T) {
				var calls atomic.Int32
				d := newDispatcher(s, func(context.Context, int) error {
					calls.Add(1)
					return nil
				})
				d.close()
				assert.NoError(t, d.await(context.Background(), 1))
				assert.Zero(t, calls.Load())
			})
		}
	})

	t.Run("unsubscribe skips queued messages", func(t *testing.T) {
		b := New[int]()
		var log recorder[int]
		started := make(chan struct{})
		release := make(chan struct{})

		sub, err := SubscribeAwaitFunc(b.Subscriber(), func(_ context.Context, msg int) error {
			if msg == 1 {
				close(started)
				<-release
			}
			log.add(msg)
			return nil
		}, SubscribeSequential)
		require.NoError(t, err)

		require.NoError(t, b.Publish(context.Background(), 1))
		waitFor(t, started, "first invocation")
		require.NoError(t, b.Publish(context.Background(), 2))
		require.NoError(t, b.Publish(context.Background(), 3))

		require.NoError(t, sub.Unsubscribe())
		close(release)

		require.Eventually(t, func() bool { return len(log.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, []int{1}, log.snapshot())
	})
}

func TestDispatcherAwait(t *testing.T) {
	boom := errors.New("boom")
	var calls atomic.Int32

	for _, s := range []SubscribeStrategy{SubscribeSequential, SubscribeParallel, SubscribeSwitch, SubscribeDrop} {
		t.Run(s.String(), func(t *testing.T) {
			d := newDispatcher(s, func(context.Context, int) error {
				calls.Add(1)
				return boom
			})
			assert.ErrorIs(t, d.await(context.Background(), 1), boom)
		})
	}
	assert.EqualValues(t, 4, calls.Load())

	t.Run("panic", func(t *testing.T) {
		d := newDispatcher(SubscribeParallel, func(context.Context, int) error {
			panic(boom)
		})
		err := d.await(context.Background(), 1)

		var pe *PanicError
		require.ErrorAs(t, err, &pe)
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "handler panic")
	})
}
