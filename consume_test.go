package conduit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baxromumarov/conduit/chanx"
)

func TestConsumeFnError(t *testing.T) {
	errStop := errors.New("stop")
	sc := New(context.Background())
	ch := chanx.NewChannel[int](chanx.Unlimited)
	for i := range 5 {
		require.NoError(t, ch.TrySend(i))
	}
	ch.Close()

	var seen []int
	c := Consume(sc, "consumer", chanx.Receiver[int](ch), func(_ context.Context, v int) error {
		seen = append(seen, v)
		if v == 2 {
			return errStop
		}
		return nil
	})

	err := sc.Wait()
	assert.ErrorIs(t, err, errStop)
	assert.Equal(t, []int{0, 1, 2}, seen)
	assert.Equal(t, TaskFailed, c.State())
	assert.Nil(t, c.Upstream(), "a plain channel has no producing task")
	assert.Equal(t, 2, ch.Len(), "unconsumed items stay buffered")
}

// countFrom sends 0, 1, 2, ... until the send fails.
func countFrom(ctx context.Context, out chanx.Sender[int]) error {
	for i := 0; ; i++ {
		if err := out.Send(ctx, i); err != nil {
			return err
		}
	}
}

func TestConsumeFnErrorReleasesProducer(t *testing.T) {
	errStop := errors.New("stop")
	sc := New(context.Background())

	p := Produce(sc, "producer", 1, func(ctx context.Context, out chanx.Sender[int]) error {
		for i := range 10 {
			if err := out.Send(ctx, i); err != nil {
				return err
			}
		}
		return nil
	})
	c := Consume(sc, "consumer", chanx.Receiver[int](p), func(context.Context, int) error {
		return errStop
	})

	err := sc.WaitTimeout(time.Second)
	require.NotEqual(t, context.DeadlineExceeded, err, "producer left parked in Send")
	assert.ErrorIs(t, err, errStop)
	assert.Equal(t, TaskFailed, c.State())
	assert.Equal(t, TaskCancelled, p.Task().State())
	assert.ErrorIs(t, p.Task().Err(), chanx.ErrCancelled)
	assert.Len(t, AllTaskErrors(err), 1, "the cancelled producer is not a failure")
}

func TestConsumeFnErrorClosesPlainChannel(t *testing.T) {
	errStop := errors.New("stop")
	sc := New(context.Background())
	ch := chanx.NewChannel[int](chanx.Rendezvous)

	sender := sc.Launch("sender", func(ctx context.Context, _ Spawner) error {
		return countFrom(ctx, ch)
	})
	Consume(sc, "consumer", chanx.Receiver[int](ch), func(context.Context, int) error {
		return errStop
	})

	err := sc.WaitTimeout(time.Second)
	require.NotEqual(t, context.DeadlineExceeded, err, "sender left parked in Send")
	assert.ErrorIs(t, err, errStop)
	assert.ErrorIs(t, sender.Err(), chanx.ErrClosed)
	assert.ErrorIs(t, sender.Err(), errStop, "the consumer's error is the close cause")
	assert.ErrorIs(t, ch.Cause(), errStop)
}

func TestCancelledConsumerReleasesProducer(t *testing.T) {
	sc := New(context.Background())
	received := make(chan struct{})

	p := Produce(sc, "producer", chanx.Rendezvous, countFrom)
	c := Consume(sc, "consumer", chanx.Receiver[int](p), func(ctx context.Context, v int) error {
		if v == 0 {
			close(received)
		}
		<-ctx.Done()
		return ctx.Err()
	})

	<-received
	c.Cancel()

	require.NoError(t, sc.WaitTimeout(time.Second))
	assert.Equal(t, TaskCancelled, c.State())
	assert.Equal(t, TaskCancelled, p.Task().State())
}

func TestConsumeCloseCause(t *testing.T) {
	errUpstream := errors.New("upstream gone")
	sc := New(context.Background())
	ch := chanx.NewChannel[int](1)
	ch.CloseWithCause(errUpstream)

	c := Consume(sc, "consumer", chanx.Receiver[int](ch), func(context.Context, int) error { return nil })
	err := sc.Wait()
	assert.ErrorIs(t, err, errUpstream)
	assert.ErrorIs(t, c.Err(), errUpstream)
}

func TestConsumeCleanCloseCompletes(t *testing.T) {
	sc := New(context.Background())
	ch := chanx.NewChannel[string](chanx.Rendezvous)

	c := Consume(sc, "consumer", chanx.Receiver[string](ch), func(context.Context, string) error { return nil })
	sc.Launch("sender", func(ctx context.Context, _ Spawner) error {
		defer ch.Close()
		return ch.Send(ctx, "Apple")
	})

	require.NoError(t, sc.Wait())
	assert.Equal(t, TaskCompleted, c.State())
}

func TestObserveSeesItemsSentAfterCall(t *testing.T) {
	sc := New(context.Background())
	b := chanx.NewBroadcast[string](chanx.Unlimited)

	// Sent before anyone observes: nobody sees it.
	require.NoError(t, b.Send(context.Background(), "Early"))

	var (
		mu  sync.Mutex
		got = map[string][]string{}
	)
	for _, name := range []string{"a", "b"} {
		Observe(sc, name, b, func(_ context.Context, v string) error {
			mu.Lock()
			got[name] = append(got[name], v)
			mu.Unlock()
			return nil
		})
	}
	assert.Equal(t, 2, b.Subscribers())

	// The observer tasks may not be running yet; the items are still theirs.
	for _, v := range []string{"Apple", "Pear", "Plum"} {
		require.NoError(t, b.Send(context.Background(), v))
	}
	b.Close()

	require.NoError(t, sc.Wait())
	want := []string{"Apple", "Pear", "Plum"}
	assert.Equal(t, want, got["a"])
	assert.Equal(t, want, got["b"])
	assert.Equal(t, 0, b.Subscribers(), "subscriptions end with their tasks")
}

func TestObserveCancelReleasesPublisher(t *testing.T) {
	sc := New(context.Background())
	b := chanx.NewBroadcast[int](1)

	observer := Observe(sc, "stuck-observer", b, func(ctx context.Context, _ int) error {
		<-ctx.Done()
		return ctx.Err()
	})
	publisher := sc.Launch("publisher", func(ctx context.Context, _ Spawner) error {
		defer b.Close()
		for i := range 5 {
			if err := b.Send(ctx, i); err != nil {
				return err
			}
		}
		return nil
	})

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, TaskActive, publisher.State(), "publisher is paced by the stuck observer")

	observer.Cancel()
	require.NoError(t, publisher.Join(context.Background()))
	require.NoError(t, sc.Wait())
	assert.Equal(t, TaskCancelled, observer.State())
}
