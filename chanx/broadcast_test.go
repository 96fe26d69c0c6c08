package chanx

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collectAll concurrently drains every subscription and returns the values
// received by each.
func collectAll[T any](t *testing.T, subs []*Subscription[T], delay []time.Duration) [][]T {
	t.Helper()
	received := make([][]T, len(subs))
	var wg sync.WaitGroup
	for i, s := range subs {
		wg.Add(1)
		go func(i int, s *Subscription[T]) {
			defer wg.Done()
			for v := range s.All(context.Background()) {
				received[i] = append(received[i], v)
				if delay != nil {
					time.Sleep(delay[i])
				}
			}
		}(i, s)
	}
	wg.Wait()
	return received
}

func TestBroadcastEverySubscriberGetsEverything(t *testing.T) {
	for _, capacity := range []int{1, 2, 10, Unlimited} {
		b := NewBroadcast[int](capacity)
		subs := []*Subscription[int]{b.Subscribe(), b.Subscribe(), b.Subscribe()}

		go func() {
			defer b.Close()
			for i := 1; i <= 20; i++ {
				if err := b.Send(context.Background(), i); err != nil {
					return
				}
			}
		}()

		// one slow subscriber paces delivery but nothing is lost
		received := collectAll(t, subs, []time.Duration{0, 0, time.Millisecond})

		want := make([]int, 20)
		for i := range want {
			want[i] = i + 1
		}
		for i := range subs {
			assert.Equal(t, want, received[i], "capacity %d subscriber %d", capacity, i)
		}
	}
}

func TestBroadcastLateSubscriberMissesHistory(t *testing.T) {
	ctx := context.Background()
	b := NewBroadcast[string](Unlimited)

	early := b.Subscribe()
	require.NoError(t, b.Send(ctx, "Apple"))
	late := b.Subscribe()
	require.NoError(t, b.Send(ctx, "Pear"))
	b.Close()

	got := collectAll(t, []*Subscription[string]{early, late}, nil)
	assert.Equal(t, []string{"Apple", "Pear"}, got[0])
	assert.Equal(t, []string{"Pear"}, got[1])
}

func TestBroadcastWithoutSubscribersDropsItems(t *testing.T) {
	ctx := context.Background()
	b := NewBroadcast[int](1)

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Send(ctx, i), "send without subscribers must not wait")
	}

	s := b.Subscribe()
	b.Close()
	_, err := s.Receive(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestBroadcastConflatedLatestOnly(t *testing.T) {
	ctx := context.Background()
	b := NewBroadcast[string](Conflated)
	slow := b.Subscribe()

	require.NoError(t, b.Send(ctx, "Peach"))
	require.NoError(t, b.Send(ctx, "Blackcurrant"))

	v, err := slow.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Blackcurrant", v)

	_, ok, err := slow.TryReceive()
	assert.False(t, ok, "overwritten items are never delivered")
	assert.NoError(t, err)
}

func TestBroadcastConflatedIndependentSubscribers(t *testing.T) {
	ctx := context.Background()
	b := NewBroadcast[int](Conflated)
	fast := b.Subscribe()
	slow := b.Subscribe()

	require.NoError(t, b.Send(ctx, 1))
	v, err := fast.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	require.NoError(t, b.Send(ctx, 2))
	require.NoError(t, b.Send(ctx, 3))

	v, err = fast.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	v, err = slow.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestBroadcastBoundedBackpressure(t *testing.T) {
	ctx := context.Background()
	b := NewBroadcast[int](1)
	fast := b.Subscribe()
	slow := b.Subscribe()

	require.NoError(t, b.Send(ctx, 1))
	assert.ErrorIs(t, b.TrySend(2), ErrFull)

	sent := make(chan error, 1)
	go func() { sent <- b.Send(ctx, 2) }()

	v, err := fast.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	notDone(t, sent, "send must wait for the slowest subscriber")

	v, err = slow.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	require.NoError(t, <-sent)
}

func TestBroadcastCancelReleasesSender(t *testing.T) {
	ctx := context.Background()
	b := NewBroadcast[int](1)
	stuck := b.Subscribe()
	require.Equal(t, 1, b.Subscribers())

	require.NoError(t, b.Send(ctx, 1))
	sent := make(chan error, 1)
	go func() { sent <- b.Send(ctx, 2) }()
	notDone(t, sent, "send must wait for the stuck subscriber")

	stuck.Cancel()
	stuck.Cancel()
	require.NoError(t, <-sent)
	assert.Equal(t, 0, b.Subscribers())
	assert.True(t, stuck.IsClosedForReceive())

	_, err := stuck.Receive(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestBroadcastSendCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := NewBroadcast[int](1)
	b.Subscribe()
	require.NoError(t, b.Send(ctx, 1))

	sent := make(chan error, 1)
	go func() { sent <- b.Send(ctx, 2) }()
	notDone(t, sent, "send must wait")

	cancel()
	err := <-sent
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBroadcastCloseDrainsThenCloses(t *testing.T) {
	ctx := context.Background()
	b := NewBroadcast[int](Unlimited)
	s := b.Subscribe()
	require.NoError(t, b.Send(ctx, 1))
	require.NoError(t, b.Send(ctx, 2))

	assert.True(t, b.Close())
	assert.False(t, b.Close())
	assert.True(t, b.IsClosedForSend())
	assert.False(t, s.IsClosedForReceive())

	var got []int
	require.NoError(t, s.ConsumeEach(ctx, func(v int) error {
		got = append(got, v)
		return nil
	}))
	assert.Equal(t, []int{1, 2}, got)
	assert.True(t, s.IsClosedForReceive())
	assert.ErrorIs(t, b.Send(ctx, 3), ErrClosed)

	select {
	case <-b.Done():
	default:
		t.Fatal("Done must be closed")
	}
}

func TestBroadcastSubscribeAfterClose(t *testing.T) {
	b := NewBroadcast[int](2)
	b.Close()

	s := b.Subscribe()
	assert.True(t, s.IsClosedForReceive())
	assert.Equal(t, 0, b.Subscribers())

	_, ok, err := s.TryReceive()
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestBroadcastCloseWithCause(t *testing.T) {
	ctx := context.Background()
	cause := errors.New("publisher crashed")
	b := NewBroadcast[int](Unlimited)
	s := b.Subscribe()
	require.NoError(t, b.Send(ctx, 1))
	b.CloseWithCause(cause)

	err := s.ConsumeEach(ctx, func(int) error { return nil })
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, cause, s.Cause())
}

func TestBroadcastConsumeEach(t *testing.T) {
	ctx := context.Background()
	b := NewBroadcast[int](2)

	var (
		got      []int
		finished = make(chan error, 1)
	)
	go func() {
		finished <- b.ConsumeEach(ctx, func(v int) error {
			got = append(got, v)
			return nil
		})
	}()
	require.Eventually(t, func() bool { return b.Subscribers() == 1 }, time.Second, time.Millisecond)

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Send(ctx, i))
	}
	b.Close()

	require.NoError(t, <-finished)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
	assert.Equal(t, 0, b.Subscribers(), "ConsumeEach unsubscribes on return")
}

func TestBroadcastLogIsTrimmed(t *testing.T) {
	ctx := context.Background()
	b := NewBroadcast[int](Unlimited)
	s1 := b.Subscribe()
	s2 := b.Subscribe()

	for i := 0; i < 100; i++ {
		require.NoError(t, b.Send(ctx, i))
	}
	for i := 0; i < 100; i++ {
		_, err := s1.Receive(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 100, b.log.Len(), "retained for the slower subscriber")

	for i := 0; i < 60; i++ {
		_, err := s2.Receive(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 40, b.log.Len())

	s2.Cancel()
	assert.Equal(t, 0, b.log.Len())
}

func TestBroadcastEvents(t *testing.T) {
	ctx := context.Background()
	var (
		mu    sync.Mutex
		kinds []EventKind
	)
	b := NewBroadcast[int](Conflated, WithName("prices"), WithObserver(func(e Event) {
		mu.Lock()
		kinds = append(kinds, e.Kind)
		mu.Unlock()
		assert.Equal(t, "prices", e.Channel)
	}))
	s := b.Subscribe()
	require.NoError(t, b.Send(ctx, 1))
	require.NoError(t, b.Send(ctx, 2))
	_, err := s.Receive(ctx)
	require.NoError(t, err)
	s.Cancel()
	b.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []EventKind{
		EventSubscribed, EventSent, EventConflated, EventSent, EventReceived, EventUnsubscribed, EventClosed,
	}, kinds)
}

func TestBroadcastInvalidCapacity(t *testing.T) {
	requirePanicErrorIs(t, ErrInvalidCapacity, func() { NewBroadcast[int](Rendezvous) })
	requirePanicErrorIs(t, ErrInvalidCapacity, func() { NewBroadcast[int](-7) })
	assert.Equal(t, Conflated, NewBroadcast[int](Conflated).Cap())
}
